package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseHelpers(t *testing.T) {
	t.Setenv("T_STR", "value")
	t.Setenv("T_EMPTY", "")
	t.Setenv("T_INT", " 42 ")
	t.Setenv("T_BAD_INT", "4x2")
	t.Setenv("T_DUR", "250ms")
	t.Setenv("T_BOOL_YES", "YES")
	t.Setenv("T_BOOL_BAD", "maybe")
	t.Setenv("T_FLOAT", "0.25")
	t.Setenv("T_LIST", "a,, b ,c")

	assert.Equal(t, "value", ParseString("T_STR", "d"))
	assert.Equal(t, "d", ParseString("T_EMPTY", "d"))
	assert.Equal(t, "d", ParseString("T_UNSET", "d"))
	assert.Equal(t, 42, ParseInt("T_INT", 1))
	assert.Equal(t, 1, ParseInt("T_BAD_INT", 1))
	assert.Equal(t, 250*time.Millisecond, ParseDuration("T_DUR", time.Second))
	assert.Equal(t, time.Second, ParseDuration("T_EMPTY", time.Second))
	assert.True(t, ParseBool("T_BOOL_YES", false))
	assert.True(t, ParseBool("T_BOOL_BAD", true))
	assert.InDelta(t, 0.25, ParseFloat("T_FLOAT", 1), 1e-9)
	assert.Equal(t, []string{"a", "b", "c"}, ParseList("T_LIST", nil))
	assert.Equal(t, []string{"x"}, ParseList("T_EMPTY", []string{"x"}))
}

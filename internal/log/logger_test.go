package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigureAttachesServiceAndComponent(t *testing.T) {
	prev := zerolog.GlobalLevel()
	t.Cleanup(func() {
		zerolog.SetGlobalLevel(prev)
		reset()
	})

	var buf bytes.Buffer
	reset()
	Configure(Config{Level: "debug", Output: &buf, Service: "audiostreamd", Version: "v1.2.3"})

	l := WithComponent("stream")
	l.Debug().Str(FieldCommand, "start").Msg("command")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "audiostreamd", entry["service"])
	assert.Equal(t, "v1.2.3", entry["version"])
	assert.Equal(t, "stream", entry[FieldComponent])
	assert.Equal(t, "start", entry[FieldCommand])
}

func TestSetLevel(t *testing.T) {
	prev := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(prev) })

	require.NoError(t, SetLevel("warn"))
	assert.Equal(t, "warn", Level())
	assert.Error(t, SetLevel("loud"))
	assert.Equal(t, "warn", Level())
}

func TestDeriveAppliesBuilder(t *testing.T) {
	l := Derive(func(c *zerolog.Context) { *c = c.Str("extra", "x") })
	assert.NotNil(t, l)
	l = Derive(nil)
	assert.NotNil(t, l)
}

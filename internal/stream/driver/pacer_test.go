package driver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ManuGH/audiostream/internal/stream/model"
)

func TestPacerSleepsUntilDue(t *testing.T) {
	now := time.Unix(100, 0)
	var slept []time.Duration
	p := NewPacer(1000)
	p.now = func() time.Time { return now }
	p.sleep = func(d time.Duration) { slept = append(slept, d); now = now.Add(d) }

	p.Wait(100)
	p.Wait(100)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 100 * time.Millisecond}, slept)

	now = now.Add(time.Second)
	p.Wait(50)
	assert.Len(t, slept, 2, "a late pacer must not sleep")

	p.Reset()
	p.Wait(0)
	assert.Len(t, slept, 2)
}

func TestFramesToDuration(t *testing.T) {
	assert.Equal(t, 10*time.Millisecond, FramesToDuration(480, 48000))
	assert.Equal(t, time.Duration(0), FramesToDuration(480, 0))
}

func TestBaseDefaults(t *testing.T) {
	var b Base
	pos := model.Position{Frames: 5}
	assert.NoError(t, b.RefinePosition(&pos))
	assert.ErrorIs(t, b.GetMmapPositionAndLatency(&pos, new(int32)), ErrNotSupported)
}

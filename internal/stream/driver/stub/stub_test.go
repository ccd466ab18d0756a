package stub

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/audiostream/internal/stream/model"
)

var format = model.AudioFormat{SampleRate: 48000, ChannelCount: 2, Encoding: model.EncodingPCM16}

type recordingCallback struct {
	mu     sync.Mutex
	buffer []int
	clips  []int
}

func (r *recordingCallback) OnBufferStateChange(framesLeft int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buffer = append(r.buffer, framesLeft)
}

func (r *recordingCallback) OnClipStateChange(clipFramesLeft int, _ bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clips = append(r.clips, clipFramesLeft)
}

func TestCommandsBeforeInitFail(t *testing.T) {
	d := New(Config{Direction: model.DirectionOutput, Format: format})
	assert.ErrorIs(t, d.Start(), ErrNotInitialized)
	var actual int
	var lat int32
	assert.ErrorIs(t, d.Transfer(nil, 0, &actual, &lat), ErrNotInitialized)
}

func TestSynchronousTransfer(t *testing.T) {
	d := New(Config{Direction: model.DirectionInput, Format: format, NominalLatencyMs: 20})
	require.NoError(t, d.Init(nil))
	require.NoError(t, d.Start())

	buf := make([]byte, 64)
	var actual int
	var lat int32
	require.NoError(t, d.Transfer(buf, 16, &actual, &lat))
	assert.Equal(t, 16, actual)
	assert.Equal(t, int32(20), lat)
	assert.NotEqual(t, make([]byte, 64), buf, "capture stub must produce data")

	d.Shutdown()
	assert.Equal(t, []string{"init", "start", "transfer", "shutdown"}, d.Calls())
}

func TestAsyncNotifications(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	cb := &recordingCallback{}
	d := New(Config{Direction: model.DirectionOutput, Format: format, Async: true, CallbackDelay: time.Millisecond})
	require.NoError(t, d.Init(cb))

	var actual int
	var lat int32
	require.NoError(t, d.Transfer(make([]byte, 16), 4, &actual, &lat))
	require.NoError(t, d.Drain(model.DrainEarlyNotify))
	d.Shutdown()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	assert.Equal(t, []int{0}, cb.buffer)
	assert.Equal(t, []int{480, 0}, cb.clips)
}

func TestMmapPositionAdvances(t *testing.T) {
	d := New(Config{Direction: model.DirectionOutput, Format: format, NominalLatencyMs: 5})
	require.NoError(t, d.Init(nil))

	var pos model.Position
	var lat int32
	require.NoError(t, d.GetMmapPositionAndLatency(&pos, &lat))
	assert.Equal(t, int64(0), pos.Frames)

	require.NoError(t, d.Start())
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, d.GetMmapPositionAndLatency(&pos, &lat))
	assert.Positive(t, pos.Frames)
	assert.Equal(t, int32(5), lat)
}

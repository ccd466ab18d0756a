package stream

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/audiostream/internal/stream/driver"
	"github.com/ManuGH/audiostream/internal/stream/model"
)

const exchangeTimeout = 2 * time.Second

var pcm16Stereo = model.AudioFormat{SampleRate: 48000, ChannelCount: 2, Encoding: model.EncodingPCM16}

var speaker = []model.Device{{Type: "speaker", Address: "builtin"}}

func testContextConfig() ContextConfig {
	return ContextConfig{
		Format:           pcm16Stereo,
		CommandQueueSize: 4,
		ReplyQueueSize:   4,
		DataQueueBytes:   16384,
		BufferSizeFrames: 1024,
		NominalLatencyMs: 20,
	}
}

// startStream builds and starts a stream whose worker never sleeps. The
// stream is closed when the test ends.
func startStream(t *testing.T, dir model.Direction, drv driver.Driver, cfg ContextConfig, opts ...Option) *Stream {
	t.Helper()
	sctx, err := NewContext(cfg)
	require.NoError(t, err)

	opts = append([]Option{withSleep(func(time.Duration) {})}, opts...)
	var s *Stream
	if dir == model.DirectionInput {
		s = NewInput(sctx, drv, opts...)
	} else {
		s = NewOutput(sctx, drv, opts...)
	}
	require.NoError(t, s.InitInstance(context.Background()))
	t.Cleanup(func() {
		if err := s.Close(context.Background()); err != nil && !errors.Is(err, ErrAlreadyClosed) {
			t.Errorf("close: %v", err)
		}
	})
	return s
}

// post queues a command without waiting for an answer.
func post(t *testing.T, s *Stream, cmd model.Command) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), exchangeTimeout)
	defer cancel()
	require.NoError(t, s.Context().CommandQueue().Write(ctx, cmd))
}

// exchange sends cmd and waits for its reply.
func exchange(t *testing.T, s *Stream, cmd model.Command) model.Reply {
	t.Helper()
	post(t, s, cmd)
	ctx, cancel := context.WithTimeout(context.Background(), exchangeTimeout)
	defer cancel()
	reply, err := s.Context().ReplyQueue().Read(ctx)
	require.NoError(t, err)
	return reply
}

func expectOK(t *testing.T, s *Stream, cmd model.Command, want model.State) model.Reply {
	t.Helper()
	reply := exchange(t, s, cmd)
	require.Equal(t, model.StatusOK, reply.Status, "%T", cmd)
	require.Equal(t, want, reply.State, "%T", cmd)
	return reply
}

// fill writes n bytes of playback data.
func fill(t *testing.T, s *Stream, n int) {
	t.Helper()
	require.True(t, s.Context().DataQueue().Write(make([]byte, n)))
}

func waitDone(t *testing.T, s *Stream) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(exchangeTimeout):
		t.Fatal("worker did not exit")
	}
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Now()}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingAsync struct {
	transferReady atomic.Int32
	drainReady    atomic.Int32
	errors        atomic.Int32
}

func (r *recordingAsync) OnTransferReady() error {
	r.transferReady.Add(1)
	return nil
}

func (r *recordingAsync) OnDrainReady() error {
	r.drainReady.Add(1)
	return nil
}

func (r *recordingAsync) OnError() error {
	r.errors.Add(1)
	return nil
}

type mockDriver struct {
	mock.Mock
}

var _ driver.Driver = (*mockDriver)(nil)

// newMockDriver returns a driver that accepts every operation and moves
// every requested frame. Tests override single calls with On(...).Once().
func newMockDriver() *mockDriver {
	return &mockDriver{}
}

func (m *mockDriver) allowAll() *mockDriver {
	m.On("Init", mock.Anything).Return(nil).Maybe()
	for _, op := range []string{"Start", "Pause", "Flush", "Standby"} {
		m.On(op).Return(nil).Maybe()
	}
	m.On("Drain", mock.Anything).Return(nil).Maybe()
	m.On("RefinePosition", mock.Anything).Return(nil).Maybe()
	m.On("GetMmapPositionAndLatency").Return(driver.ErrNotSupported).Maybe()
	m.On("Shutdown").Return().Maybe()
	return m
}

func (m *mockDriver) Init(cb driver.Callback) error { return m.Called(cb).Error(0) }
func (m *mockDriver) Start() error                  { return m.Called().Error(0) }
func (m *mockDriver) Pause() error                  { return m.Called().Error(0) }
func (m *mockDriver) Flush() error                  { return m.Called().Error(0) }
func (m *mockDriver) Standby() error                { return m.Called().Error(0) }
func (m *mockDriver) Drain(mode model.DrainMode) error {
	return m.Called(mode).Error(0)
}

// Transfer reports the frame count configured with On("Transfer", ...).
// A negative value echoes the requested frame count.
func (m *mockDriver) Transfer(buf []byte, frameCount int, actual *int, latencyMs *int32) error {
	args := m.Called(len(buf), frameCount)
	if n := args.Int(0); n >= 0 {
		*actual = n
	} else {
		*actual = frameCount
	}
	return args.Error(1)
}

func (m *mockDriver) RefinePosition(pos *model.Position) error {
	return m.Called(pos).Error(0)
}

func (m *mockDriver) GetMmapPositionAndLatency(pos *model.Position, latencyMs *int32) error {
	err := m.Called().Error(0)
	if err == nil {
		pos.Frames = 480
		pos.TimeNs = 1
		*latencyMs = 5
	}
	return err
}

func (m *mockDriver) Shutdown() { m.Called() }

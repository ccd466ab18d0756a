package stream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/audiostream/internal/stream/driver/stub"
	"github.com/ManuGH/audiostream/internal/stream/model"
)

func TestInitInstanceRejectsInvalidContext(t *testing.T) {
	s := NewOutput(nil, newMockDriver())
	assert.ErrorIs(t, s.InitInstance(context.Background()), ErrInvalidContext)
	assert.NoError(t, s.Close(context.Background()))
}

func TestInitInstanceRejectsMissingDriver(t *testing.T) {
	sctx, err := NewContext(testContextConfig())
	require.NoError(t, err)
	s := NewInput(sctx, nil)
	assert.ErrorIs(t, s.InitInstance(context.Background()), ErrInvalidContext)
	assert.NoError(t, s.Close(context.Background()))
}

func TestInitInstanceReportsDriverInitFailure(t *testing.T) {
	drv := newMockDriver()
	drv.On("Init", mock.Anything).Return(errors.New("no such card")).Once()

	sctx, err := NewContext(testContextConfig())
	require.NoError(t, err)
	s := NewOutput(sctx, drv)

	err = s.InitInstance(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such card")
	assert.NoError(t, s.Close(context.Background()))
	drv.AssertExpectations(t)
}

func TestInitInstanceTwice(t *testing.T) {
	s := startStream(t, model.DirectionOutput, newMockDriver().allowAll(), testContextConfig())
	assert.ErrorIs(t, s.InitInstance(context.Background()), ErrAlreadyStarted)
}

func TestCloseIsOneShot(t *testing.T) {
	drv := newMockDriver().allowAll()
	var released int
	s := startStream(t, model.DirectionInput, drv, testContextConfig(),
		WithOnClose(func() error { released++; return nil }))

	require.NoError(t, s.Close(context.Background()))
	assert.ErrorIs(t, s.Close(context.Background()), ErrAlreadyClosed)
	assert.Equal(t, 1, released)
	assert.Equal(t, model.StateClosed, s.State())
	drv.AssertCalled(t, "Shutdown")
	assert.ErrorIs(t, s.InitInstance(context.Background()), ErrAlreadyClosed)
	assert.ErrorIs(t, s.Context().Validate(), ErrInvalidContext, "context is reset by close")
}

func TestCloseJoinsWorkerAndReleasesInOrder(t *testing.T) {
	drv := stub.New(stub.Config{Direction: model.DirectionOutput, Format: pcm16Stereo})
	var s *Stream
	var stateAtRelease model.State
	s = startStream(t, model.DirectionOutput, drv, testContextConfig(),
		WithOnClose(func() error {
			stateAtRelease = s.State()
			return nil
		}))

	expectOK(t, s, model.Start{}, model.StateIdle)
	require.NoError(t, s.Close(context.Background()))

	assert.Equal(t, model.StateClosed, stateAtRelease)
	calls := drv.Calls()
	assert.Equal(t, "shutdown", calls[len(calls)-1])
}

func TestCloseReportsReleaseFailure(t *testing.T) {
	s := startStream(t, model.DirectionOutput, newMockDriver().allowAll(), testContextConfig(),
		WithOnClose(func() error { return errors.New("device busy") }))
	err := s.Close(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "device busy")
}

func TestCloseUnblocksWorkerStuckOnReplies(t *testing.T) {
	cfg := testContextConfig()
	s := startStream(t, model.DirectionOutput, newMockDriver().allowAll(), cfg,
		WithShutdownTimeout(100*time.Millisecond))

	for i := 0; i <= cfg.ReplyQueueSize; i++ {
		post(t, s, model.GetStatus{})
	}
	require.Eventually(t, func() bool {
		return s.Context().ReplyQueue().AvailableToWrite() == 0
	}, exchangeTimeout, time.Millisecond)

	closed := make(chan error, 1)
	go func() { closed <- s.Close(context.Background()) }()
	select {
	case err := <-closed:
		assert.NoError(t, err)
	case <-time.After(exchangeTimeout):
		t.Fatal("close did not return")
	}
	waitDone(t, s)
	assert.Equal(t, model.StateError, s.State())
}

func TestCloseAfterWorkerExited(t *testing.T) {
	s := startStream(t, model.DirectionOutput, newMockDriver().allowAll(), testContextConfig())
	reply := exchange(t, s, model.Exit{Cookie: 0})
	assert.Equal(t, model.StatusOK, reply.Status)
	waitDone(t, s)
	assert.NoError(t, s.Close(context.Background()))
}

func TestWorkerRunsOnOwnThread(t *testing.T) {
	s := startStream(t, model.DirectionInput, newMockDriver().allowAll(), testContextConfig())
	assert.NotZero(t, s.WorkerTid())
	assert.NotEqual(t, gettid(), s.WorkerTid())
}

func TestLowLatencyStreamStartsWithoutPrivileges(t *testing.T) {
	cfg := testContextConfig()
	cfg.Flags = model.FlagFast
	s := startStream(t, model.DirectionOutput, newMockDriver().allowAll(), cfg, WithRealtimePriority(10))
	assert.Equal(t, maxRealtimePriority, s.rtPriority)
	expectOK(t, s, model.Start{}, model.StateIdle)
}

func TestOptions(t *testing.T) {
	sctx, err := NewContext(testContextConfig())
	require.NoError(t, err)
	s := NewOutput(sctx, newMockDriver(),
		WithID("speaker-0"),
		WithRealtimePriority(0),
		WithShutdownTimeout(time.Second),
	)
	assert.Equal(t, "speaker-0", s.ID())
	assert.Equal(t, minRealtimePriority, s.rtPriority)
	assert.Equal(t, time.Second, s.shutdownTimeout)
	assert.Equal(t, model.StateStandby, s.State())
	assert.Zero(t, s.WorkerTid())
	assert.NoError(t, s.Close(context.Background()))

	other := NewOutput(sctx, newMockDriver())
	assert.NotEmpty(t, other.ID())
	assert.NotEqual(t, s.ID(), other.ID())
}

func TestObserverSeesTransitions(t *testing.T) {
	var mu sync.Mutex
	var events []Event
	s := startStream(t, model.DirectionOutput, newMockDriver().allowAll(), testContextConfig(),
		WithID("obs"),
		WithObserver(func(ev Event) {
			mu.Lock()
			events = append(events, ev)
			mu.Unlock()
		}))

	expectOK(t, s, model.Start{}, model.StateIdle)
	expectOK(t, s, model.Standby{}, model.StateStandby)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 2)
	assert.Equal(t, "obs", events[0].StreamID)
	assert.Equal(t, model.StateStandby, events[0].From)
	assert.Equal(t, model.StateIdle, events[0].To)
	assert.Equal(t, string(model.CmdStart), events[0].Cause)
	assert.Equal(t, model.StateStandby, events[1].To)
}

func TestMetadataAndDevices(t *testing.T) {
	s := startStream(t, model.DirectionOutput, newMockDriver().allowAll(), testContextConfig())
	md := model.Metadata{Tracks: []model.TrackMetadata{{Usage: "media", ContentType: "music", Gain: 1}}}
	s.UpdateMetadata(md)
	assert.Equal(t, md, s.Metadata())

	s.SetConnectedDevices(speaker)
	assert.Equal(t, speaker, s.ConnectedDevices())

	snap := s.Snapshot()
	assert.Equal(t, "output", snap.Direction)
	assert.Equal(t, "STANDBY", snap.State)
	assert.True(t, snap.Connected)
	assert.Equal(t, md, snap.Metadata)
	assert.Equal(t, pcm16Stereo.String(), snap.Format)
}

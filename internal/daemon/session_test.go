package daemon

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/audiostream/internal/config"
	"github.com/ManuGH/audiostream/internal/history"
	"github.com/ManuGH/audiostream/internal/resilience"
	"github.com/ManuGH/audiostream/internal/stream"
	"github.com/ManuGH/audiostream/internal/stream/driver"
	"github.com/ManuGH/audiostream/internal/stream/driver/stub"
	"github.com/ManuGH/audiostream/internal/stream/model"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Record(ctx context.Context, r history.Report) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}

type eventLog struct {
	mu     sync.Mutex
	events []stream.Event
}

func (l *eventLog) observe(ev stream.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) reached(s model.State) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, ev := range l.events {
		if ev.To == s {
			return true
		}
	}
	return false
}

func testConfig(t *testing.T) config.AppConfig {
	t.Helper()
	cfg := config.Defaults()
	cfg.Driver.Realtime = false
	cfg.Session.Duration = 50 * time.Millisecond
	cfg.Session.ReopenBackoff = time.Millisecond
	cfg.Stream.RealtimePriority = 0
	return cfg
}

// failingDriver is a stub whose transfers always fail.
type failingDriver struct {
	*stub.Driver
}

func (failingDriver) Transfer([]byte, int, *int, *int32) error {
	return errors.New("device unplugged")
}

func failingFactory(cfg config.AppConfig) (driver.Driver, error) {
	d, err := NewDriver(cfg)
	if err != nil {
		return nil, err
	}
	return failingDriver{Driver: d.(*stub.Driver)}, nil
}

func TestSession_OutputPlaysAndParks(t *testing.T) {
	cfg := testConfig(t)
	cfg.Session.ReportPath = filepath.Join(t.TempDir(), "report.yaml")

	store := &mockStore{}
	store.On("Record", mock.Anything, mock.MatchedBy(func(r history.Report) bool {
		return r.Direction == "output" && r.Error == ""
	})).Return(nil).Once()

	reg := NewRegistry()
	events := &eventLog{}
	s, err := NewSession(cfg, WithRegistry(reg), WithObserver(events.observe), WithReportStore(store))
	require.NoError(t, err)

	report, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, report.SessionID)
	assert.NotEmpty(t, report.StreamID)
	assert.Equal(t, "stub", report.Driver)
	assert.Equal(t, model.StateClosed.String(), report.FinalState)
	assert.Positive(t, report.Frames)
	assert.Positive(t, report.Bytes)
	assert.Greater(t, report.Commands, 3)
	assert.Zero(t, report.Reopens)
	assert.True(t, report.Succeeded())
	assert.Zero(t, reg.Len())

	assert.True(t, events.reached(model.StateActive))
	assert.True(t, events.reached(model.StateStandby))
	assert.True(t, events.reached(model.StateClosed))

	onDisk, err := history.ReadReport(cfg.Session.ReportPath)
	require.NoError(t, err)
	assert.Equal(t, report.SessionID, onDisk.SessionID)
	assert.Equal(t, report.Frames, onDisk.Frames)

	store.AssertExpectations(t)
}

func TestSession_OutputCancelledBeforeFirstBurst(t *testing.T) {
	cfg := testConfig(t)
	cfg.Session.Duration = 0
	s, err := NewSession(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := s.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Frames)
	assert.Equal(t, model.StateClosed.String(), report.FinalState)
}

func TestSession_OutputEarlyNotifyDrainWithAsyncDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.Driver.Async = true
	cfg.Session.DrainMode = "early_notify"

	events := &eventLog{}
	s, err := NewSession(cfg, WithObserver(events.observe))
	require.NoError(t, err)

	report, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, events.reached(model.StateStandby))
	assert.Equal(t, model.StateClosed.String(), report.FinalState)
}

func writeTestWav(t *testing.T, frames int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "source.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	enc := wav.NewEncoder(f, 48000, 16, 2, 1)
	data := make([]int, frames*2)
	for i := range data {
		data[i] = i % 1000
	}
	require.NoError(t, enc.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 2, SampleRate: 48000},
		Data:           data,
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())
	return path
}

func TestSession_InputCapturesFileUntilExhausted(t *testing.T) {
	cfg := testConfig(t)
	cfg.Session.Duration = 0
	cfg.Stream.Direction = "input"
	cfg.Driver.Name = config.DriverFileSrc
	cfg.Driver.Path = writeTestWav(t, 4800)
	cfg.Session.CapturePath = filepath.Join(t.TempDir(), "capture.wav")

	events := &eventLog{}
	s, err := NewSession(cfg, WithObserver(events.observe))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	report, err := s.Run(ctx)
	require.NoError(t, err)
	require.NoError(t, ctx.Err(), "session should end when the source is exhausted")

	assert.Equal(t, "input", report.Direction)
	assert.GreaterOrEqual(t, report.Frames, int64(4800))
	assert.True(t, events.reached(model.StateDraining))
	assert.True(t, events.reached(model.StateStandby))

	f, err := os.Open(cfg.Session.CapturePath)
	require.NoError(t, err)
	defer f.Close()
	dec := wav.NewDecoder(f)
	require.True(t, dec.IsValidFile())
	assert.Equal(t, uint32(48000), dec.SampleRate)
	assert.Equal(t, uint16(2), dec.NumChans)
}

func TestSession_ReopensFailedStream(t *testing.T) {
	cfg := testConfig(t)
	cfg.Session.Duration = 0
	cfg.Session.MaxReopens = 2
	cfg.Session.BreakerThreshold = 10

	s, err := NewSession(cfg, WithDriverFactory(failingFactory))
	require.NoError(t, err)

	report, err := s.Run(context.Background())
	require.ErrorIs(t, err, ErrStreamFailed)
	assert.Equal(t, 2, report.Reopens)
	assert.Equal(t, model.StateError.String(), report.FinalState)
	assert.NotEmpty(t, report.Error)
	assert.False(t, report.Succeeded())
}

func TestSession_BreakerStopsReopening(t *testing.T) {
	cfg := testConfig(t)
	cfg.Session.Duration = 0
	cfg.Session.MaxReopens = 5
	cfg.Session.BreakerThreshold = 2

	s, err := NewSession(cfg, WithDriverFactory(failingFactory))
	require.NoError(t, err)

	report, err := s.Run(context.Background())
	require.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, 2, report.Reopens)
}

func TestSession_DriverFactoryErrorIsNotRetried(t *testing.T) {
	cfg := testConfig(t)
	cfg.Driver.Name = "bogus"

	s, err := NewSession(cfg)
	require.NoError(t, err)

	report, err := s.Run(context.Background())
	require.ErrorIs(t, err, ErrUnknownDriver)
	assert.Zero(t, report.Reopens)
	assert.Empty(t, report.StreamID)
}

func TestSession_StoreFailureIsReported(t *testing.T) {
	cfg := testConfig(t)
	cfg.Session.Duration = time.Millisecond

	store := &mockStore{}
	store.On("Record", mock.Anything, mock.Anything).Return(errors.New("disk full")).Once()

	s, err := NewSession(cfg, WithReportStore(store))
	require.NoError(t, err)

	report, err := s.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.True(t, report.Succeeded())
	store.AssertExpectations(t)
}

func TestNewSession_RejectsBadConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Session.DrainMode = "sometimes"
	_, err := NewSession(cfg)
	require.Error(t, err)

	cfg = testConfig(t)
	cfg.Stream.Direction = "sideways"
	_, err = NewSession(cfg)
	require.Error(t, err)
}

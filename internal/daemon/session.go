// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package daemon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ManuGH/audiostream/internal/config"
	"github.com/ManuGH/audiostream/internal/history"
	"github.com/ManuGH/audiostream/internal/log"
	"github.com/ManuGH/audiostream/internal/metrics"
	"github.com/ManuGH/audiostream/internal/resilience"
	"github.com/ManuGH/audiostream/internal/stream"
	"github.com/ManuGH/audiostream/internal/stream/client"
	"github.com/ManuGH/audiostream/internal/stream/driver"
	"github.com/ManuGH/audiostream/internal/stream/driver/wavfile"
	"github.com/ManuGH/audiostream/internal/stream/model"
)

const (
	// drainWait bounds how long an output drain may stay pending before the
	// session pauses and flushes instead.
	drainWait   = 2 * time.Second
	pollPeriod  = 5 * time.Millisecond
	recordLimit = 5 * time.Second
	// finishSteps caps the commands spent parking a stream.
	finishSteps = 1000
)

// ReportStore persists finished session reports.
type ReportStore interface {
	Record(ctx context.Context, r history.Report) error
}

// exhaustible is implemented by sources that can run out of audio.
type exhaustible interface {
	Exhausted() bool
}

// Session opens one stream per the configuration, moves audio through it
// until the context ends, then parks and closes it. A stream that enters
// ERROR is reopened, bounded by MaxReopens and a circuit breaker.
type Session struct {
	cfg       config.AppConfig
	dir       model.Direction
	drainMode model.DrainMode
	registry  *Registry
	observers []stream.Observer
	store     ReportStore
	newDriver DriverFactory
	breaker   *resilience.CircuitBreaker
	logger    zerolog.Logger
}

type SessionOption func(*Session)

// WithRegistry publishes the session's streams in r while they are open.
func WithRegistry(r *Registry) SessionOption {
	return func(s *Session) { s.registry = r }
}

// WithObserver subscribes fn to every stream the session opens.
func WithObserver(fn stream.Observer) SessionOption {
	return func(s *Session) { s.observers = append(s.observers, fn) }
}

// WithReportStore records each finished session in store.
func WithReportStore(store ReportStore) SessionOption {
	return func(s *Session) { s.store = store }
}

// WithDriverFactory replaces NewDriver.
func WithDriverFactory(f DriverFactory) SessionOption {
	return func(s *Session) { s.newDriver = f }
}

// NewSession checks the parts of cfg the session interprets itself.
func NewSession(cfg config.AppConfig, opts ...SessionOption) (*Session, error) {
	dir, err := model.ParseDirection(cfg.Stream.Direction)
	if err != nil {
		return nil, err
	}
	mode, err := model.ParseDrainMode(cfg.Session.DrainMode)
	if err != nil {
		return nil, err
	}
	s := &Session{
		cfg:       cfg,
		dir:       dir,
		drainMode: mode,
		newDriver: NewDriver,
		logger:    log.WithComponent("session"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = NewRegistry()
	}
	s.breaker = resilience.NewCircuitBreaker("session."+dir.String(),
		max(cfg.Session.BreakerThreshold, 1), cfg.Session.BreakerWindow, cfg.Session.BreakerCooldown)
	return s, nil
}

// streamResult is what one opened stream contributed to a session.
type streamResult struct {
	id       string
	frames   int64
	bytes    int64
	commands int
	final    model.State
}

// Run drives the session until ctx is done, the configured duration has
// elapsed or the source is exhausted. The report is returned, written and
// recorded even when the session failed.
func (s *Session) Run(ctx context.Context) (history.Report, error) {
	started := time.Now()
	report := history.Report{
		SessionID:  uuid.NewString(),
		Direction:  s.dir.String(),
		Driver:     s.cfg.Driver.Name,
		Format:     s.cfg.Stream.Format().String(),
		StartedAt:  started.UTC(),
		FinalState: model.StateStandby.String(),
	}
	logger := s.logger.With().Str(log.FieldSessionID, report.SessionID).Logger()

	runCtx := ctx
	if d := s.cfg.Session.Duration; d > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	logger.Info().
		Str(log.FieldEvent, "session.started").
		Str(log.FieldDirection, report.Direction).
		Str(log.FieldDriver, report.Driver).
		Str("format", report.Format).
		Dur("duration", s.cfg.Session.Duration).
		Msg("session started")

	runErr := s.runWithReopen(runCtx, logger, &report)

	report.Duration = time.Since(started)
	if runErr != nil {
		report.Error = runErr.Error()
	}
	metrics.RecordSessionRun(report.Direction, runErr == nil)

	var errs []error
	if runErr != nil {
		errs = append(errs, runErr)
	}
	if err := s.persist(ctx, report); err != nil {
		logger.Error().Err(err).Msg("failed to persist session report")
		errs = append(errs, err)
	}

	ev := logger.Info()
	if runErr != nil {
		ev = logger.Error().Err(runErr)
	}
	ev.Str(log.FieldEvent, "session.finished").
		Str(log.FieldStreamID, report.StreamID).
		Int64(log.FieldFrames, report.Frames).
		Int64(log.FieldBytes, report.Bytes).
		Int("commands", report.Commands).
		Int("reopens", report.Reopens).
		Str("final_state", report.FinalState).
		Dur("elapsed", report.Duration).
		Msg("session finished")
	return report, errors.Join(errs...)
}

func (s *Session) runWithReopen(ctx context.Context, logger zerolog.Logger, report *history.Report) error {
	for attempt := 0; ; attempt++ {
		var res streamResult
		err := s.breaker.Execute(func() error {
			var runErr error
			res, runErr = s.runStream(ctx, logger)
			return runErr
		})
		if res.id != "" {
			report.StreamID = res.id
			report.FinalState = res.final.String()
		}
		report.Frames += res.frames
		report.Bytes += res.bytes
		report.Commands += res.commands

		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrStreamFailed) || attempt >= s.cfg.Session.MaxReopens || ctx.Err() != nil {
			return err
		}

		report.Reopens++
		metrics.RecordSessionReopen(report.Direction)
		logger.Warn().
			Err(err).
			Str(log.FieldEvent, "session.reopen").
			Int("attempt", attempt+1).
			Dur("backoff", s.cfg.Session.ReopenBackoff).
			Msg("stream failed, reopening")

		t := time.NewTimer(s.cfg.Session.ReopenBackoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return err
		case <-t.C:
		}
	}
}

func (s *Session) runStream(ctx context.Context, logger zerolog.Logger) (res streamResult, err error) {
	ccfg, err := s.cfg.Stream.ContextConfig()
	if err != nil {
		return res, err
	}
	sctx, err := stream.NewContext(ccfg)
	if err != nil {
		return res, fmt.Errorf("create stream context: %w", err)
	}
	drv, err := s.newDriver(s.cfg)
	if err != nil {
		_ = sctx.Reset()
		return res, fmt.Errorf("create driver: %w", err)
	}

	opts := []stream.Option{
		stream.WithRealtimePriority(s.cfg.Stream.RealtimePriority),
		stream.WithShutdownTimeout(s.cfg.Stream.ShutdownTimeout),
	}
	for _, fn := range s.observers {
		opts = append(opts, stream.WithObserver(fn))
	}
	var st *stream.Stream
	if s.dir == model.DirectionInput {
		st = stream.NewInput(sctx, drv, opts...)
	} else {
		st = stream.NewOutput(sctx, drv, opts...)
	}
	st.SetConnectedDevices([]model.Device{{Type: model.DeviceType(s.cfg.Driver.Name), Address: s.cfg.Driver.Path}})
	res.id = st.ID()

	// Commands and closing are issued without the run context so that a
	// cancelled session still parks the stream cleanly.
	cmdCtx := context.WithoutCancel(ctx)
	if err := st.InitInstance(ctx); err != nil {
		_ = st.Close(cmdCtx)
		res.final = st.State()
		if res.final == model.StateError {
			return res, fmt.Errorf("%w: %v", ErrStreamFailed, err)
		}
		return res, err
	}
	s.registry.Add(st)
	logger.Debug().Str(log.FieldStreamID, res.id).Msg("stream registered")

	defer func() {
		s.registry.Remove(res.id)
		res.frames = sctx.FrameCount()
		final := st.State()
		if cerr := st.Close(cmdCtx); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close stream: %w", cerr))
		}
		if final != model.StateError {
			final = st.State()
		}
		res.final = final
	}()

	cl := client.New(sctx)
	if s.dir == model.DirectionInput {
		err = s.capture(ctx, cmdCtx, st, cl, drv, &res)
	} else {
		err = s.playback(ctx, cmdCtx, st, cl, &res)
	}
	if err != nil && st.State() == model.StateError {
		return res, fmt.Errorf("%w: %v", ErrStreamFailed, err)
	}
	return res, err
}

// burstBytes is the size of one client transfer: the configured burst capped
// by the worker buffer and the data queue, in whole frames.
func (s *Session) burstBytes(sctx *stream.Context) int {
	fs := sctx.FrameSize()
	n := min(s.cfg.Session.BurstFrames, sctx.BufferSizeFrames()) * fs
	if dq := sctx.DataQueue(); dq != nil {
		n = min(n, dq.Capacity())
	}
	return max(n-n%fs, fs)
}

func (s *Session) playback(ctx, cmdCtx context.Context, st *stream.Stream, cl *client.Client, res *streamResult) error {
	sctx := st.Context()
	if err := s.send(cmdCtx, st, res, func(c context.Context) (model.Reply, error) { return cl.Start(c) }); err != nil {
		return err
	}

	tone := newToneGenerator(sctx.Format())
	buf := make([]byte, s.burstBytes(sctx))
	for ctx.Err() == nil {
		n := 0
		if !sctx.IsMmap() {
			tone.Fill(buf)
			if err := s.withTimeout(cmdCtx, func(c context.Context) error { return cl.WriteData(c, buf) }); err != nil {
				return err
			}
			n = len(buf)
		}
		if err := s.send(cmdCtx, st, res, func(c context.Context) (model.Reply, error) { return cl.Burst(c, n) }); err != nil {
			return err
		}
	}
	return s.finishOutput(cmdCtx, st, cl, res)
}

func (s *Session) capture(ctx, cmdCtx context.Context, st *stream.Stream, cl *client.Client, drv driver.Driver, res *streamResult) (err error) {
	sctx := st.Context()
	var sink *wavfile.Driver
	if path := s.cfg.Session.CapturePath; path != "" && !sctx.IsMmap() {
		sink = wavfile.New(wavfile.Config{Path: path, Format: sctx.Format()})
		if err := sink.Init(nil); err != nil {
			return fmt.Errorf("open capture file: %w", err)
		}
		defer sink.Shutdown()
	}

	if err := s.send(cmdCtx, st, res, func(c context.Context) (model.Reply, error) { return cl.Start(c) }); err != nil {
		return err
	}

	src, _ := drv.(exhaustible)
	buf := make([]byte, s.burstBytes(sctx))
	fs := sctx.FrameSize()
	for ctx.Err() == nil {
		if src != nil && src.Exhausted() {
			s.logger.Info().Str(log.FieldStreamID, st.ID()).Msg("capture source exhausted")
			break
		}
		if sctx.IsMmap() {
			if err := s.send(cmdCtx, st, res, func(c context.Context) (model.Reply, error) { return cl.Burst(c, 0) }); err != nil {
				return err
			}
			continue
		}
		n, err := s.captureOnce(cmdCtx, st, cl, buf, res)
		if err != nil {
			return err
		}
		if sink != nil && n >= fs {
			actual := 0
			var latency int32
			if err := sink.Transfer(buf[:n], n/fs, &actual, &latency); err != nil {
				return fmt.Errorf("write capture file: %w", err)
			}
		}
	}
	return s.finishInput(cmdCtx, st, cl, buf, res)
}

func (s *Session) captureOnce(cmdCtx context.Context, st *stream.Stream, cl *client.Client, buf []byte, res *streamResult) (int, error) {
	c, cancel := context.WithTimeout(cmdCtx, client.DefaultTimeout)
	defer cancel()
	n, err := cl.Capture(c, buf)
	res.commands++
	res.bytes += int64(n)
	if err != nil {
		return n, err
	}
	if st.State() == model.StateError {
		return n, ErrStreamFailed
	}
	return n, nil
}

// finishOutput parks a playback stream in STANDBY: drain what was queued,
// wait for the drain to complete, then standby. A drain that stays pending
// past drainWait is paused and flushed instead.
func (s *Session) finishOutput(cmdCtx context.Context, st *stream.Stream, cl *client.Client, res *streamResult) error {
	deadline := time.Now().Add(drainWait)
	drained := false
	for range finishSteps {
		reply, err := s.sendReply(cmdCtx, res, func(c context.Context) (model.Reply, error) { return cl.Status(c) })
		if err != nil {
			return err
		}
		late := time.Now().After(deadline)
		var next func(context.Context) (model.Reply, error)
		switch reply.State {
		case model.StateStandby:
			return nil
		case model.StateError:
			return ErrStreamFailed
		case model.StateIdle:
			next = func(c context.Context) (model.Reply, error) { return cl.Standby(c) }
		case model.StatePaused, model.StateDrainPaused, model.StateTransferPaused:
			next = func(c context.Context) (model.Reply, error) { return cl.Flush(c) }
		case model.StateActive, model.StateTransferring:
			if late || (drained && reply.State == model.StateActive) {
				next = func(c context.Context) (model.Reply, error) { return cl.Pause(c) }
			} else if !drained {
				drained = true
				next = func(c context.Context) (model.Reply, error) { return cl.Drain(c, s.drainMode) }
			}
		case model.StateDraining:
			if late {
				next = func(c context.Context) (model.Reply, error) { return cl.Pause(c) }
			}
		}
		if next == nil {
			time.Sleep(pollPeriod)
			continue
		}
		if err := s.send(cmdCtx, st, res, next); err != nil {
			return err
		}
	}
	return fmt.Errorf("stream %s did not reach %s", st.ID(), model.StateStandby)
}

// finishInput parks a capture stream in STANDBY. An active stream is drained
// and read once more, which leaves DRAINING for STANDBY.
func (s *Session) finishInput(cmdCtx context.Context, st *stream.Stream, cl *client.Client, buf []byte, res *streamResult) error {
	mmap := st.Context().IsMmap()
	for range finishSteps {
		switch st.State() {
		case model.StateStandby:
			return nil
		case model.StateError:
			return ErrStreamFailed
		case model.StateIdle:
			if err := s.send(cmdCtx, st, res, func(c context.Context) (model.Reply, error) { return cl.Standby(c) }); err != nil {
				return err
			}
		case model.StatePaused:
			if err := s.send(cmdCtx, st, res, func(c context.Context) (model.Reply, error) { return cl.Flush(c) }); err != nil {
				return err
			}
		case model.StateActive:
			if err := s.send(cmdCtx, st, res, func(c context.Context) (model.Reply, error) { return cl.Drain(c, model.DrainUnspecified) }); err != nil {
				return err
			}
		case model.StateDraining:
			if mmap {
				if err := s.send(cmdCtx, st, res, func(c context.Context) (model.Reply, error) { return cl.Burst(c, 0) }); err != nil {
					return err
				}
				continue
			}
			if _, err := s.captureOnce(cmdCtx, st, cl, buf, res); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unexpected capture state %s", st.State())
		}
	}
	return fmt.Errorf("stream %s did not reach %s", st.ID(), model.StateStandby)
}

// send issues one command and treats a stream left in ERROR as failed even
// when the reply itself was accepted.
func (s *Session) send(cmdCtx context.Context, st *stream.Stream, res *streamResult, fn func(context.Context) (model.Reply, error)) error {
	if _, err := s.sendReply(cmdCtx, res, fn); err != nil {
		return err
	}
	if st.State() == model.StateError {
		return ErrStreamFailed
	}
	return nil
}

func (s *Session) sendReply(cmdCtx context.Context, res *streamResult, fn func(context.Context) (model.Reply, error)) (model.Reply, error) {
	c, cancel := context.WithTimeout(cmdCtx, client.DefaultTimeout)
	defer cancel()
	reply, err := fn(c)
	res.commands++
	if err == nil && reply.FmqByteCount > 0 {
		res.bytes += int64(reply.FmqByteCount)
	}
	return reply, err
}

func (s *Session) withTimeout(cmdCtx context.Context, fn func(context.Context) error) error {
	c, cancel := context.WithTimeout(cmdCtx, client.DefaultTimeout)
	defer cancel()
	return fn(c)
}

func (s *Session) persist(ctx context.Context, report history.Report) error {
	var errs []error
	if path := s.cfg.Session.ReportPath; path != "" {
		if err := history.WriteReport(path, report); err != nil {
			errs = append(errs, err)
		}
	}
	if s.store != nil {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordLimit)
		defer cancel()
		if err := s.store.Record(rctx, report); err != nil {
			errs = append(errs, fmt.Errorf("record session: %w", err))
		}
	}
	return errors.Join(errs...)
}

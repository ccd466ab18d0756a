// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package stream runs the per-stream I/O worker: a dedicated OS thread that
// reads commands, drives the audio driver, moves data and answers with
// replies while enforcing the stream lifecycle.
package stream

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/audiostream/internal/log"
	"github.com/ManuGH/audiostream/internal/metrics"
	"github.com/ManuGH/audiostream/internal/stream/driver"
	"github.com/ManuGH/audiostream/internal/stream/fmq"
	"github.com/ManuGH/audiostream/internal/stream/model"
	"github.com/ManuGH/audiostream/internal/telemetry"
)

var tracer = telemetry.Tracer("github.com/ManuGH/audiostream/internal/stream")

// Stream is one capture or playback stream: its context, its driver and the
// worker thread between them.
type Stream struct {
	id  string
	dir model.Direction
	ctx *Context
	drv driver.Driver

	rtPriority      int
	shutdownTimeout time.Duration
	onClose         func() error
	clock           clock
	sleep           func(time.Duration)
	obs             *observers
	logger          zerolog.Logger

	// core is referenced by the worker goroutine; Stream itself is not, so an
	// abandoned Stream can be finalized while its worker still runs.
	core *streamCore

	startMu sync.Mutex
	started bool
	closed  atomic.Bool

	mu       sync.RWMutex
	devices  []model.Device
	metadata model.Metadata
}

// streamCore is the part of a stream the worker thread keeps alive.
type streamCore struct {
	logic workerLogic
	done  chan struct{}
}

// NewInput creates a capture stream.
func NewInput(sctx *Context, drv driver.Driver, opts ...Option) *Stream {
	return newStream(model.DirectionInput, sctx, drv, opts)
}

// NewOutput creates a playback stream.
func NewOutput(sctx *Context, drv driver.Driver, opts ...Option) *Stream {
	return newStream(model.DirectionOutput, sctx, drv, opts)
}

func newStream(dir model.Direction, sctx *Context, drv driver.Driver, opts []Option) *Stream {
	s := &Stream{
		id:              newStreamID(),
		dir:             dir,
		ctx:             sctx,
		drv:             drv,
		rtPriority:      maxRealtimePriority,
		shutdownTimeout: defaultShutdownTimeout,
		clock:           realClock{},
		sleep:           time.Sleep,
		obs:             &observers{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = log.Derive(func(c *zerolog.Context) {
		*c = c.Str(log.FieldComponent, "stream").
			Str(log.FieldStreamID, s.id).
			Str(log.FieldDirection, dir.String())
	})
	return s
}

func (s *Stream) ID() string                 { return s.id }
func (s *Stream) Direction() model.Direction { return s.dir }
func (s *Stream) Context() *Context          { return s.ctx }

// InitInstance validates the context, starts the worker thread and waits
// until the driver has been initialised on it.
func (s *Stream) InitInstance(ctx context.Context) (err error) {
	_, span := tracer.Start(ctx, "stream.init")
	span.SetAttributes(telemetry.StreamAttributes(s.id, s.dir.String(), s.isMmap(), s.flags().String())...)
	defer func() { telemetry.EndSpan(span, err) }()

	s.startMu.Lock()
	defer s.startMu.Unlock()
	if s.closed.Load() {
		return ErrAlreadyClosed
	}
	if s.started {
		return ErrAlreadyStarted
	}
	if s.drv == nil {
		return fmt.Errorf("%w: no driver", ErrInvalidContext)
	}
	if err := s.ctx.Validate(); err != nil {
		return err
	}
	f := s.ctx.Format()
	span.SetAttributes(telemetry.FormatAttributes(f.SampleRate, f.ChannelCount, string(f.Encoding))...)

	installQueueErrorHandlers(s.id, s.ctx)

	w := newWorker(s.dir, s.id, s.ctx, s.drv, s.obs)
	w.clock = s.clock
	w.sleep = s.sleep
	w.connected.Store(model.AnyConnected(s.devicesSnapshot()))
	var logic workerLogic
	if s.dir == model.DirectionInput {
		logic = &inputWorker{worker: w}
	} else {
		logic = &outputWorker{worker: w}
	}
	core := &streamCore{logic: logic, done: make(chan struct{})}

	initErr := make(chan error, 1)
	rt := s.ctx.Flags().LowLatency(s.dir)
	go core.threadMain(rt, s.rtPriority, initErr)
	if err := <-initErr; err != nil {
		<-core.done
		w.state.Store(int32(model.StateError))
		return fmt.Errorf("init driver: %w", err)
	}

	s.core = core
	s.started = true
	metrics.StreamOpened(s.dir.String())
	runtime.SetFinalizer(s, (*Stream).finalize)
	s.logger.Info().
		Str(log.FieldEvent, "stream.started").
		Int64(log.FieldTID, w.tid.Load()).
		Str("format", f.String()).
		Bool("mmap", s.ctx.IsMmap()).
		Bool("realtime", rt).
		Msg("stream worker started")
	return nil
}

// threadMain is the body of the worker thread. The goroutine stays locked to
// its OS thread and exits without unlocking, so the thread and any real-time
// priority applied to it are discarded with it.
func (c *streamCore) threadMain(realtime bool, priority int, initErr chan<- error) {
	runtime.LockOSThread()
	defer close(c.done)

	w := c.logic.base()
	w.tid.Store(gettid())
	if realtime {
		if err := setRealtimePriority(priority); err != nil {
			w.logger.Warn().Err(err).
				Str(log.FieldEvent, "stream.realtime_failed").
				Msg("failed to apply real-time priority")
		}
	}
	if err := w.drv.Init(c.logic); err != nil {
		initErr <- err
		return
	}
	initErr <- nil
	run(c.logic)
}

// installQueueErrorHandlers wires transport errors to metrics. A corrupted
// queue shuts every channel so the worker aborts. The handlers must not
// capture the Stream, which would keep it reachable from the worker.
func installQueueErrorHandlers(id string, sctx *Context) {
	sctx.CommandQueue().SetErrorHandler(queueErrorHandler(id, "command", sctx))
	sctx.ReplyQueue().SetErrorHandler(queueErrorHandler(id, "reply", sctx))
	if dq := sctx.DataQueue(); dq != nil {
		dq.SetErrorHandler(queueErrorHandler(id, "data", sctx))
	}
}

func queueErrorHandler(id, queue string, sctx *Context) fmq.ErrorHandler {
	return func(kind fmq.ErrorKind, msg string) {
		metrics.RecordQueueError(queue, kind.String())
		if kind != fmq.ErrorCorrupted {
			return
		}
		onQueueCorrupted(id, queue, msg)
		sctx.CommandQueue().Close()
		sctx.ReplyQueue().Close()
		if dq := sctx.DataQueue(); dq != nil {
			dq.Close()
		}
	}
}

// Close stops the worker with the internal exit command, joins it, resets
// the context and runs the release hook. It may be called once.
func (s *Stream) Close(ctx context.Context) (err error) {
	if !s.closed.CompareAndSwap(false, true) {
		return ErrAlreadyClosed
	}
	_, span := tracer.Start(ctx, "stream.close")
	span.SetAttributes(telemetry.StreamAttributes(s.id, s.dir.String(), s.isMmap(), s.flags().String())...)
	defer func() { telemetry.EndSpan(span, err) }()

	s.startMu.Lock()
	core := s.core
	started := s.started
	s.startMu.Unlock()

	if started {
		s.stopWorker(ctx, core)
		metrics.StreamClosed(s.dir.String())
		runtime.SetFinalizer(s, nil)
	}

	var errs []error
	if s.ctx != nil {
		if rerr := s.ctx.Reset(); rerr != nil {
			errs = append(errs, rerr)
		}
	}
	if s.onClose != nil {
		if cerr := s.onClose(); cerr != nil {
			errs = append(errs, fmt.Errorf("release resources: %w", cerr))
		}
	}
	s.logger.Info().Str(log.FieldEvent, "stream.closed").Msg("stream closed")
	return errors.Join(errs...)
}

func (s *Stream) stopWorker(ctx context.Context, core *streamCore) {
	select {
	case <-core.done:
		s.logger.Debug().Msg("worker already exited")
		return
	default:
	}

	w := core.logic.base()
	cookie := s.ctx.InternalCookie() ^ int32(w.tid.Load())
	sendCtx, cancel := context.WithTimeout(ctx, s.shutdownTimeout)
	defer cancel()
	if err := s.ctx.CommandQueue().Write(sendCtx, model.Exit{Cookie: cookie}); err != nil {
		s.logger.Warn().Err(err).Msg("failed to send exit command to worker")
		s.ctx.CommandQueue().Close()
	}

	timer := time.NewTimer(s.shutdownTimeout)
	defer timer.Stop()
	select {
	case <-core.done:
	case <-timer.C:
		s.logger.Error().
			Str(log.FieldEvent, "stream.join_timeout").
			Dur("timeout", s.shutdownTimeout).
			Msg("worker did not exit, closing its queues")
		s.ctx.CommandQueue().Close()
		s.ctx.ReplyQueue().Close()
		if dq := s.ctx.DataQueue(); dq != nil {
			dq.Close()
		}
		<-core.done
	}
}

// State returns the worker's current state, or STANDBY before InitInstance.
func (s *Stream) State() model.State {
	s.startMu.Lock()
	core := s.core
	s.startMu.Unlock()
	if core == nil {
		return model.StateStandby
	}
	return core.logic.base().State()
}

// DrainState reports the output drain sub-state. Input streams always
// report NONE.
func (s *Stream) DrainState() model.DrainState {
	s.startMu.Lock()
	core := s.core
	s.startMu.Unlock()
	if core == nil {
		return model.DrainStateNone
	}
	if ow, ok := core.logic.(*outputWorker); ok {
		return ow.DrainState()
	}
	return model.DrainStateNone
}

// WorkerTid returns the worker thread id, or 0 if not started.
func (s *Stream) WorkerTid() int64 {
	s.startMu.Lock()
	core := s.core
	s.startMu.Unlock()
	if core == nil {
		return 0
	}
	return core.logic.base().tid.Load()
}

// Done is closed when the worker thread has exited.
func (s *Stream) Done() <-chan struct{} {
	s.startMu.Lock()
	defer s.startMu.Unlock()
	if s.core == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return s.core.done
}

// SetConnectedDevices records the devices the stream is routed to. A stream
// without any attached device synthesizes data instead of calling the driver.
func (s *Stream) SetConnectedDevices(devices []model.Device) {
	s.mu.Lock()
	s.devices = append([]model.Device(nil), devices...)
	s.mu.Unlock()

	connected := model.AnyConnected(devices)
	s.startMu.Lock()
	core := s.core
	s.startMu.Unlock()
	if core != nil {
		core.logic.base().connected.Store(connected)
	}
	s.logger.Debug().Bool("connected", connected).Int("devices", len(devices)).Msg("connected devices updated")
}

// ConnectedDevices returns the devices last set.
func (s *Stream) ConnectedDevices() []model.Device {
	return s.devicesSnapshot()
}

func (s *Stream) devicesSnapshot() []model.Device {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Device(nil), s.devices...)
}

// UpdateMetadata replaces the track metadata.
func (s *Stream) UpdateMetadata(md model.Metadata) {
	s.mu.Lock()
	s.metadata = md
	s.mu.Unlock()
}

// Metadata returns the current track metadata.
func (s *Stream) Metadata() model.Metadata {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.metadata
}

// SetAsyncCallback publishes the client's completion callback.
func (s *Stream) SetAsyncCallback(cb driver.AsyncCallback) {
	s.ctx.SetAsyncCallback(cb)
}

// SetDebugParameters publishes new debug parameters to the worker.
func (s *Stream) SetDebugParameters(p DebugParameters) {
	s.ctx.SetDebugParameters(p)
}

// Observe subscribes fn to state changes.
func (s *Stream) Observe(fn Observer) {
	s.obs.add(fn)
}

// Snapshot is a point-in-time view of a stream for reporting.
type Snapshot struct {
	ID         string         `json:"id" yaml:"id"`
	Direction  string         `json:"direction" yaml:"direction"`
	State      string         `json:"state" yaml:"state"`
	DrainState string         `json:"drain_state" yaml:"drain_state"`
	Frames     int64          `json:"frames" yaml:"frames"`
	Format     string         `json:"format" yaml:"format"`
	Flags      string         `json:"flags" yaml:"flags"`
	Mmap       bool           `json:"mmap" yaml:"mmap"`
	Connected  bool           `json:"connected" yaml:"connected"`
	WorkerTid  int64          `json:"worker_tid" yaml:"worker_tid"`
	Metadata   model.Metadata `json:"metadata" yaml:"metadata"`
	Devices    []model.Device `json:"devices" yaml:"devices"`
}

// Snapshot captures the stream's current view.
func (s *Stream) Snapshot() Snapshot {
	devs := s.devicesSnapshot()
	return Snapshot{
		ID:         s.id,
		Direction:  s.dir.String(),
		State:      s.State().String(),
		DrainState: s.DrainState().String(),
		Frames:     s.ctx.FrameCount(),
		Format:     s.ctx.Format().String(),
		Flags:      s.flags().String(),
		Mmap:       s.isMmap(),
		Connected:  model.AnyConnected(devs),
		WorkerTid:  s.WorkerTid(),
		Metadata:   s.Metadata(),
		Devices:    devs,
	}
}

func (s *Stream) isMmap() bool {
	return s.ctx != nil && s.ctx.IsMmap()
}

func (s *Stream) flags() model.IOFlags {
	if s.ctx == nil {
		return 0
	}
	return s.ctx.Flags()
}

// finalize runs when a Stream is collected. A started stream must have been
// closed by then.
func (s *Stream) finalize() {
	if s.started && !s.closed.Load() {
		reportUnclosedStream(s.id)
	}
}

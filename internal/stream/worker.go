// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package stream

import (
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/ManuGH/audiostream/internal/log"
	"github.com/ManuGH/audiostream/internal/metrics"
	"github.com/ManuGH/audiostream/internal/stream/driver"
	"github.com/ManuGH/audiostream/internal/stream/lifecycle"
	"github.com/ManuGH/audiostream/internal/stream/model"
)

// disconnectedTransferDelay emulates the time a blocking transfer takes when
// no device is attached and the worker synthesizes data instead.
const disconnectedTransferDelay = 3 * time.Millisecond

type cycleResult int

const (
	cycleContinue cycleResult = iota
	cycleExit
	cycleAbort
)

// Exit reasons reported in metrics and logs.
const (
	exitInternal   = "internal"
	exitDiagnostic = "diagnostic"
	exitTransport  = "transport_failure"
)

// clock is the monotonic time source of a worker.
type clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

var processStart = time.Now()

// workerLogic is implemented by the input and output loops.
type workerLogic interface {
	driver.Callback
	cycle() cycleResult
	base() *worker
}

// worker holds what the input and output loops have in common. Fields below
// the atomics are owned by the worker thread.
type worker struct {
	dir    model.Direction
	id     string
	sctx   *Context
	drv    driver.Driver
	logger zerolog.Logger
	clock  clock
	sleep  func(time.Duration)
	obs    *observers

	state          atomic.Int32
	connected      atomic.Bool
	tid            atomic.Int64
	transientStart atomic.Int64

	buf        []byte
	exitReason string
	warnEvery  rate.Sometimes
}

func newWorker(dir model.Direction, id string, sctx *Context, drv driver.Driver, obs *observers) *worker {
	w := &worker{
		dir:       dir,
		id:        id,
		sctx:      sctx,
		drv:       drv,
		clock:     realClock{},
		sleep:     time.Sleep,
		obs:       obs,
		buf:       make([]byte, sctx.BufferSizeFrames()*sctx.FrameSize()),
		warnEvery: rate.Sometimes{First: 3, Interval: time.Second},
		logger: log.Derive(func(c *zerolog.Context) {
			*c = c.Str(log.FieldComponent, "stream.worker").
				Str(log.FieldStreamID, id).
				Str(log.FieldDirection, dir.String())
		}),
	}
	w.state.Store(int32(model.StateStandby))
	return w
}

func (w *worker) base() *worker { return w }

// State returns the current lifecycle state.
func (w *worker) State() model.State {
	return model.State(w.state.Load())
}

func (w *worker) monotonicNs() int64 {
	return int64(w.clock.Now().Sub(processStart))
}

// run executes cycles until the loop exits. The driver is shut down on the
// worker thread on every exit path.
func run(logic workerLogic) {
	w := logic.base()
	w.logger.Debug().Int64(log.FieldTID, w.tid.Load()).Msg("worker loop started")
	for {
		switch logic.cycle() {
		case cycleContinue:
			continue
		case cycleExit:
		case cycleAbort:
			w.exitReason = exitTransport
		}
		break
	}
	w.drv.Shutdown()
	if w.exitReason != exitTransport {
		w.moveTo(model.StateClosed, string(model.CmdExit))
	}
	metrics.RecordWorkerExit(w.dir.String(), w.exitReason)
	w.logger.Debug().Str("reason", w.exitReason).Msg("worker loop finished")
}

// cycleWith reads one command, handles it and writes the reply.
func (w *worker) cycleWith(handle func(model.Command, *model.Reply)) cycleResult {
	cmd, ok := w.sctx.CommandQueue().ReadBlocking()
	if !ok {
		w.fail("reading of command from queue failed")
		return cycleAbort
	}
	kind := model.Kind(cmd)
	reply := model.NewReply()

	if exit, isExit := cmd.(model.Exit); isExit {
		res, replyDue := w.handleExit(exit)
		if !replyDue {
			return res
		}
		if res == cycleExit {
			reply.Status = model.StatusOK
		}
		reply.State = w.State()
		if !w.writeReply(kind, reply) {
			return cycleAbort
		}
		return res
	}

	handle(cmd, &reply)
	reply.State = w.State()
	if !w.writeReply(kind, reply) {
		return cycleAbort
	}
	return cycleContinue
}

// handleExit applies the exit cookie protocol. A matching cookie is an
// internal shutdown and is not answered; zero is a diagnostic exit that is
// answered; anything else is answered with BAD_VALUE and the loop goes on.
func (w *worker) handleExit(c model.Exit) (cycleResult, bool) {
	expected := w.sctx.InternalCookie() ^ int32(w.tid.Load())
	switch {
	case c.Cookie == expected:
		w.exitReason = exitInternal
		return cycleExit, false
	case c.Cookie == 0:
		w.exitReason = exitDiagnostic
		return cycleExit, true
	default:
		w.logger.Warn().
			Str(log.FieldEvent, "stream.exit_bad_cookie").
			Int32(log.FieldCookie, c.Cookie).
			Msg("exit command has a bad cookie, rejecting")
		return cycleContinue, true
	}
}

func (w *worker) writeReply(kind model.CommandKind, reply model.Reply) bool {
	metrics.RecordCommand(w.dir.String(), string(kind), reply.Status.String())
	if !w.sctx.ReplyQueue().WriteBlocking(reply) {
		w.fail("writing of reply to queue failed")
		return false
	}
	return true
}

// fail handles a transport failure.
func (w *worker) fail(msg string) {
	w.logger.Error().Str(log.FieldEvent, "stream.transport_failure").Msg(msg)
	w.moveTo(model.StateError, "transport")
}

func (w *worker) driverFailed(op string, err error) {
	w.logger.Error().Err(err).
		Str(log.FieldEvent, "stream.driver_failure").
		Str("op", op).
		Msg("driver operation failed")
	w.moveTo(model.StateError, op)
}

func (w *worker) malformed(kind model.CommandKind, detail string) {
	w.logger.Warn().
		Str(log.FieldEvent, "stream.malformed_command").
		Str(log.FieldCommand, string(kind)).
		Msg(detail)
}

// accept looks up the table row for kind in the current state, filling in a
// wrong-state reply when there is none.
func (w *worker) accept(from model.State, kind model.CommandKind, reply *model.Reply) (lifecycle.Transition, bool) {
	tr, ok := lifecycle.TransitionFor(w.dir, from, kind)
	if !ok {
		w.populateReplyWrongState(reply, from, kind)
	}
	return tr, ok
}

func (w *worker) populateReplyWrongState(reply *model.Reply, from model.State, kind model.CommandKind) {
	reply.Status = model.StatusInvalidOperation
	reason := lifecycle.ForbiddenReason(w.dir, from, kind)
	w.warnEvery.Do(func() {
		w.logger.Warn().
			Str(log.FieldEvent, "stream.wrong_state").
			Str(log.FieldCommand, string(kind)).
			Str("state", from.String()).
			Str("reason", reason).
			Msg("command can not be handled in the current state")
	})
}

// populateReply fills status, positions and latency. Position refinement
// failures degrade to unknown values instead of failing the command.
func (w *worker) populateReply(reply *model.Reply, connected bool) {
	reply.Status = model.StatusOK
	reply.LatencyMs = w.sctx.NominalLatencyMs()
	if !connected {
		reply.Observable = model.UnknownPosition
		reply.Hardware = model.UnknownPosition
		return
	}
	reply.Observable = model.Position{Frames: w.sctx.FrameCount(), TimeNs: w.monotonicNs()}
	if w.sctx.IsMmap() {
		if err := w.drv.GetMmapPositionAndLatency(&reply.Hardware, &reply.LatencyMs); err != nil {
			reply.Hardware = model.UnknownPosition
			reply.LatencyMs = model.LatencyUnknown
		}
	}
	if err := w.drv.RefinePosition(&reply.Observable); err != nil {
		reply.Observable = model.UnknownPosition
		reply.Hardware = model.UnknownPosition
	}
}

// moveTo changes state from the worker thread.
func (w *worker) moveTo(to model.State, cause string) {
	w.moveFrom(w.State(), to, cause)
}

// moveFrom changes state away from the observed value from. Driver callbacks
// update the state concurrently; when one of them wins, the move is
// re-evaluated against the state it left behind. A cause naming a command
// whose edge from the old state no longer applies follows that command's row
// from the new state instead.
func (w *worker) moveFrom(from, to model.State, cause string) {
	for {
		if from == to {
			return
		}
		if !lifecycle.CanMove(w.dir, from, to) {
			if err := lifecycle.IllegalTransition(w.dir, from, to, cause); err != nil {
				return
			}
		}
		if w.state.CompareAndSwap(int32(from), int32(to)) {
			w.transitioned(from, to, cause)
			return
		}
		from = w.State()
		if lifecycle.CanMove(w.dir, from, to) {
			continue
		}
		tr, ok := lifecycle.TransitionFor(w.dir, from, model.CommandKind(cause))
		if !ok {
			w.logger.Debug().
				Str(log.FieldStateFrom, from.String()).
				Str(log.FieldStateTo, to.String()).
				Str("cause", cause).
				Msg("state changed concurrently, keeping it")
			return
		}
		to = tr.To
	}
}

// switchToTransient enters a state that awaits asynchronous completion and
// starts its deadline.
func (w *worker) switchToTransient(to model.State, cause string) {
	w.transientStart.Store(w.monotonicNs())
	w.moveTo(to, cause)
}

func (w *worker) sinceTransientStart() time.Duration {
	return time.Duration(w.monotonicNs() - w.transientStart.Load())
}

// casState changes state only if it still equals from. Driver callbacks and
// deadline resolution use it.
func (w *worker) casState(from, to model.State, cause string) bool {
	if !w.state.CompareAndSwap(int32(from), int32(to)) {
		return false
	}
	w.transitioned(from, to, cause)
	return true
}

func (w *worker) transitioned(from, to model.State, cause string) {
	metrics.RecordTransition(w.dir.String(), from.String(), to.String())
	w.logger.Debug().
		Str(log.FieldStateFrom, from.String()).
		Str(log.FieldStateTo, to.String()).
		Str("cause", cause).
		Msg("state changed")
	if w.obs != nil {
		w.obs.emit(Event{
			StreamID:  w.id,
			Direction: w.dir,
			From:      from,
			To:        to,
			Cause:     cause,
			At:        time.Now(),
		})
	}
}

// clampBytes bounds a transfer request to the client request, the channel
// availability and the copy buffer, rounded down to whole frames.
func (w *worker) clampBytes(clientSize, available int) int {
	n := min(clientSize, available, len(w.buf))
	if n < 0 {
		return 0
	}
	return n - n%w.sctx.FrameSize()
}

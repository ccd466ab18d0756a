// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package stream

import (
	"sync/atomic"

	"github.com/ManuGH/audiostream/internal/log"
	"github.com/ManuGH/audiostream/internal/metrics"
	"github.com/ManuGH/audiostream/internal/stream/driver"
	"github.com/ManuGH/audiostream/internal/stream/lifecycle"
	"github.com/ManuGH/audiostream/internal/stream/model"
)

// outputWorker moves audio from the data queue to the driver. Completion of
// transfers and drains may be reported asynchronously, either by the driver
// through the Callback methods or by the transient state deadline.
type outputWorker struct {
	*worker
	drainState atomic.Int32
}

func (w *outputWorker) DrainState() model.DrainState {
	return model.DrainState(w.drainState.Load())
}

func (w *outputWorker) cycle() cycleResult {
	return w.cycleWith(w.handle)
}

func (w *outputWorker) handle(cmd model.Command, reply *model.Reply) {
	w.resolveTransientDeadline()

	connected := w.connected.Load()
	from := w.State()

	switch c := cmd.(type) {
	case model.GetStatus:
		w.populateReply(reply, connected)

	case model.Start:
		tr, ok := w.accept(from, model.CmdStart, reply)
		if !ok {
			return
		}
		if err := w.drv.Start(); err != nil {
			w.driverFailed("start", err)
			return
		}
		w.populateReply(reply, connected)
		if tr.Transient {
			w.switchToTransient(tr.To, string(model.CmdStart))
		} else {
			w.moveTo(tr.To, string(model.CmdStart))
		}

	case model.Burst:
		if c.ByteCount < 0 {
			w.malformed(model.CmdBurst, "negative byte count")
			return
		}
		tr, ok := w.accept(from, model.CmdBurst, reply)
		if !ok {
			return
		}
		if !w.write(int(c.ByteCount), reply, connected) {
			w.moveTo(model.StateError, string(model.CmdBurst))
			w.notifyError(w.sctx.AsyncCallback())
			return
		}
		if from == model.StateDraining || from == model.StateDrainPaused {
			w.drainState.Store(int32(model.DrainStateNone))
		}
		if reply.FmqByteCount == c.ByteCount && w.sctx.AsyncCallback() == nil {
			w.moveTo(tr.To, string(model.CmdBurst))
		} else {
			w.switchToTransient(model.StateTransferring, string(model.CmdBurst))
		}

	case model.Drain:
		if c.Mode != model.DrainAll && c.Mode != model.DrainEarlyNotify {
			w.malformed(model.CmdDrain, "drain mode "+c.Mode.String()+" is not supported for output")
			return
		}
		tr, ok := w.accept(from, model.CmdDrain, reply)
		if !ok {
			return
		}
		next := model.DrainStateAll
		if c.Mode == model.DrainEarlyNotify {
			next = model.DrainStateEN
		}
		if from == model.StateTransferPaused {
			w.populateReply(reply, connected)
			w.drainState.Store(int32(next))
			w.moveTo(tr.To, string(model.CmdDrain))
			return
		}
		if err := w.drv.Drain(c.Mode); err != nil {
			w.driverFailed("drain", err)
			return
		}
		w.populateReply(reply, connected)
		if from == model.StateActive && w.sctx.DebugParameters().ForceSynchronousDrain {
			w.moveTo(model.StateIdle, lifecycle.CauseDrain)
			return
		}
		w.drainState.Store(int32(next))
		w.switchToTransient(tr.To, string(model.CmdDrain))

	case model.Standby:
		tr, ok := w.accept(from, model.CmdStandby, reply)
		if !ok {
			return
		}
		w.populateReply(reply, connected)
		if err := w.drv.Standby(); err != nil {
			w.driverFailed("standby", err)
			return
		}
		w.moveTo(tr.To, string(model.CmdStandby))

	case model.Pause:
		tr, ok := w.accept(from, model.CmdPause, reply)
		if !ok {
			return
		}
		if err := w.drv.Pause(); err != nil {
			w.driverFailed("pause", err)
			return
		}
		w.populateReply(reply, connected)
		w.moveTo(tr.To, string(model.CmdPause))

	case model.Flush:
		tr, ok := w.accept(from, model.CmdFlush, reply)
		if !ok {
			return
		}
		if err := w.drv.Flush(); err != nil {
			w.driverFailed("flush", err)
			return
		}
		w.populateReply(reply, connected)
		w.drainState.Store(int32(model.DrainStateNone))
		w.moveTo(tr.To, string(model.CmdFlush))
	}
}

// write plays up to clientSize bytes from the data queue. It returns false
// only on a driver failure.
func (w *outputWorker) write(clientSize int, reply *model.Reply, connected bool) bool {
	if w.sctx.IsMmap() {
		return w.writeMmap(reply, connected)
	}
	dataQ := w.sctx.DataQueue()
	frameSize := w.sctx.FrameSize()
	byteCount := w.clampBytes(clientSize, dataQ.AvailableToRead())
	if w.sctx.DebugParameters().ForceTransientBurst && byteCount >= frameSize {
		byteCount -= frameSize
	}
	frames := byteCount / frameSize
	latency := w.sctx.NominalLatencyMs()

	if !dataQ.Read(w.buf[:byteCount]) {
		w.logger.Warn().
			Str(log.FieldEvent, "stream.data_read_failed").
			Int(log.FieldBytes, byteCount).
			Msg("reading of playback data from queue failed")
		reply.Status = model.StatusNotEnoughData
		reply.LatencyMs = latency
		return true
	}

	actual := 0
	started := w.clock.Now()
	if connected {
		if err := w.drv.Transfer(w.buf[:byteCount], frames, &actual, &latency); err != nil {
			w.logger.Error().Err(err).Str(log.FieldEvent, "stream.write_failed").Msg("driver write failed")
			return false
		}
		actual = min(max(actual, 0), frames)
	} else {
		if w.sctx.AsyncCallback() == nil {
			w.sleep(disconnectedTransferDelay)
		}
		actual = frames
	}
	metrics.ObserveTransfer(w.dir.String(), w.clock.Now().Sub(started))

	w.sctx.advanceFrameCount(actual)
	metrics.AddFrames(w.dir.String(), connected, actual)
	w.populateReply(reply, connected)
	reply.FmqByteCount = int32(actual * frameSize)
	reply.LatencyMs = latency
	return true
}

func (w *outputWorker) writeMmap(reply *model.Reply, connected bool) bool {
	actual := 0
	latency := w.sctx.NominalLatencyMs()
	if connected {
		if err := w.drv.Transfer(nil, 0, &actual, &latency); err != nil {
			w.logger.Error().Err(err).Str(log.FieldEvent, "stream.write_failed").Msg("driver mmap write failed")
			return false
		}
	} else if w.sctx.AsyncCallback() == nil {
		w.sleep(disconnectedTransferDelay)
	}
	if actual > 0 {
		w.sctx.advanceFrameCount(actual)
		metrics.AddFrames(w.dir.String(), connected, actual)
	}
	w.populateReply(reply, connected)
	return true
}

// resolveTransientDeadline completes DRAINING or TRANSFERRING once the
// configured delay has passed, standing in for a driver callback.
func (w *outputWorker) resolveTransientDeadline() {
	state := w.State()
	if state != model.StateDraining && state != model.StateTransferring {
		return
	}
	params := w.sctx.DebugParameters()
	if state == model.StateDraining &&
		(params.ForceDrainToDraining || w.DrainState() == model.DrainStateENSent) {
		return
	}
	if w.sinceTransientStart() < params.TransientStateDelay {
		return
	}
	cb := w.sctx.AsyncCallback()
	switch state {
	case model.StateDraining:
		if w.casState(model.StateDraining, model.StateIdle, lifecycle.CauseDeadline) {
			w.drainState.Store(int32(model.DrainStateNone))
			w.notifyDrainReady(cb)
		}
	case model.StateTransferring:
		if w.casState(model.StateTransferring, model.StateActive, lifecycle.CauseDeadline) {
			w.notifyTransferReady(cb)
		}
	}
}

// OnBufferStateChange is called by the driver when its buffer level changes.
func (w *outputWorker) OnBufferStateChange(framesLeft int) {
	switch w.State() {
	case model.StateTransferring:
		if w.casState(model.StateTransferring, model.StateActive, lifecycle.CauseCallback) {
			w.notifyTransferReady(w.sctx.AsyncCallback())
		}
	case model.StateDraining:
		if framesLeft == 0 && w.DrainState() == model.DrainStateAll &&
			w.casState(model.StateDraining, model.StateIdle, lifecycle.CauseCallback) {
			w.drainState.Store(int32(model.DrainStateNone))
			w.notifyDrainReady(w.sctx.AsyncCallback())
		}
	}
}

// OnClipStateChange is called by the driver at clip boundaries during a
// drain. An early-notify drain notifies once when the current clip nears its
// end and once more when it is done.
func (w *outputWorker) OnClipStateChange(clipFramesLeft int, hasNextClip bool) {
	ds := w.DrainState()
	switch {
	case clipFramesLeft == 0 && ds != model.DrainStateNone:
		from := w.State()
		var to model.State
		switch from {
		case model.StateDraining:
			to = model.StateIdle
			if hasNextClip {
				to = model.StateTransferring
			}
		case model.StateDrainPaused:
			to = model.StatePaused
			if hasNextClip {
				to = model.StateTransferPaused
			}
		default:
			return
		}
		if to == model.StateTransferring {
			w.transientStart.Store(w.monotonicNs())
		}
		if !w.casState(from, to, lifecycle.CauseCallback) {
			return
		}
		w.drainState.Store(int32(model.DrainStateNone))
		if ds == model.DrainStateAll || ds == model.DrainStateENSent {
			w.notifyDrainReady(w.sctx.AsyncCallback())
		}
	case clipFramesLeft > 0 && ds == model.DrainStateEN:
		if w.drainState.CompareAndSwap(int32(model.DrainStateEN), int32(model.DrainStateENSent)) {
			w.notifyDrainReady(w.sctx.AsyncCallback())
		}
	}
}

func (w *outputWorker) notifyDrainReady(cb driver.AsyncCallback) {
	if cb == nil {
		return
	}
	if err := cb.OnDrainReady(); err != nil {
		w.logger.Warn().Err(err).Msg("async drain ready notification failed")
	}
}

func (w *outputWorker) notifyTransferReady(cb driver.AsyncCallback) {
	if cb == nil {
		return
	}
	if err := cb.OnTransferReady(); err != nil {
		w.logger.Warn().Err(err).Msg("async transfer ready notification failed")
	}
}

func (w *outputWorker) notifyError(cb driver.AsyncCallback) {
	if cb == nil {
		return
	}
	if err := cb.OnError(); err != nil {
		w.logger.Warn().Err(err).Msg("async error notification failed")
	}
}

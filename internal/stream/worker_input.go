// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package stream

import (
	"github.com/ManuGH/audiostream/internal/log"
	"github.com/ManuGH/audiostream/internal/metrics"
	"github.com/ManuGH/audiostream/internal/stream/model"
)

// inputWorker moves captured audio from the driver into the data queue.
type inputWorker struct {
	*worker
}

// Capture drivers have nothing to report back.
func (w *inputWorker) OnBufferStateChange(int)     {}
func (w *inputWorker) OnClipStateChange(int, bool) {}

func (w *inputWorker) cycle() cycleResult {
	return w.cycleWith(w.handle)
}

func (w *inputWorker) handle(cmd model.Command, reply *model.Reply) {
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
		w.moveTo(tr.To, string(model.CmdStart))

	case model.Burst:
		if c.ByteCount < 0 {
			w.malformed(model.CmdBurst, "negative byte count")
			return
		}
		tr, ok := w.accept(from, model.CmdBurst, reply)
		if !ok {
			return
		}
		if !w.read(int(c.ByteCount), reply, connected) {
			w.moveTo(model.StateError, string(model.CmdBurst))
			return
		}
		w.moveTo(tr.To, string(model.CmdBurst))

	case model.Drain:
		if c.Mode != model.DrainUnspecified {
			w.malformed(model.CmdDrain, "drain mode "+c.Mode.String()+" is not supported for input")
			return
		}
		tr, ok := w.accept(from, model.CmdDrain, reply)
		if !ok {
			return
		}
		if err := w.drv.Drain(c.Mode); err != nil {
			w.driverFailed("drain", err)
			return
		}
		w.populateReply(reply, connected)
		w.moveTo(tr.To, string(model.CmdDrain))

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
		w.moveTo(tr.To, string(model.CmdFlush))
	}
}

// read captures up to clientSize bytes into the data queue. It returns false
// only on a driver failure.
func (w *inputWorker) read(clientSize int, reply *model.Reply, connected bool) bool {
	if w.sctx.IsMmap() {
		return w.readMmap(reply, connected)
	}
	dataQ := w.sctx.DataQueue()
	frameSize := w.sctx.FrameSize()
	byteCount := w.clampBytes(clientSize, dataQ.AvailableToWrite())
	frames := byteCount / frameSize
	latency := w.sctx.NominalLatencyMs()
	actual := 0

	started := w.clock.Now()
	if connected {
		if err := w.drv.Transfer(w.buf[:byteCount], frames, &actual, &latency); err != nil {
			w.logger.Error().Err(err).Str(log.FieldEvent, "stream.read_failed").Msg("driver read failed")
			return false
		}
		actual = min(max(actual, 0), frames)
	} else {
		w.sleep(disconnectedTransferDelay)
		clear(w.buf[:byteCount])
		actual = frames
	}
	metrics.ObserveTransfer(w.dir.String(), w.clock.Now().Sub(started))

	actualBytes := actual * frameSize
	if dataQ.Write(w.buf[:actualBytes]) {
		w.sctx.advanceFrameCount(actual)
		metrics.AddFrames(w.dir.String(), connected, actual)
		w.populateReply(reply, connected)
		reply.FmqByteCount = int32(actualBytes)
	} else {
		w.logger.Warn().
			Str(log.FieldEvent, "stream.data_write_failed").
			Int(log.FieldBytes, actualBytes).
			Msg("writing of captured data to queue failed")
		reply.Status = model.StatusNotEnoughData
	}
	reply.LatencyMs = latency
	return true
}

func (w *inputWorker) readMmap(reply *model.Reply, connected bool) bool {
	actual := 0
	latency := w.sctx.NominalLatencyMs()
	if connected {
		if err := w.drv.Transfer(nil, 0, &actual, &latency); err != nil {
			w.logger.Error().Err(err).Str(log.FieldEvent, "stream.read_failed").Msg("driver mmap read failed")
			return false
		}
	} else {
		w.sleep(disconnectedTransferDelay)
	}
	if actual > 0 {
		w.sctx.advanceFrameCount(actual)
		metrics.AddFrames(w.dir.String(), connected, actual)
	}
	w.populateReply(reply, connected)
	return true
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package driver defines the contract between a stream worker and the audio
// engine underneath it.
package driver

import (
	"errors"

	"github.com/ManuGH/audiostream/internal/stream/model"
)

// ErrNotSupported is returned by optional operations a driver does not
// implement.
var ErrNotSupported = errors.New("driver: operation not supported")

// Driver is the audio engine behind one stream. Every method except the
// callbacks is invoked from the stream's worker thread. A nil error is the
// only success; the worker moves to ERROR on any failure of Start, Pause,
// Flush, Standby, Drain or Transfer.
type Driver interface {
	// Init is called once on the worker thread before the first command.
	Init(cb Callback) error
	Start() error
	Pause() error
	Flush() error
	Standby() error
	Drain(mode model.DrainMode) error
	// Transfer moves frameCount frames to or from buf. For mmap streams buf is
	// nil and frameCount is zero: the driver works on the mapped region.
	Transfer(buf []byte, frameCount int, actualFrameCount *int, latencyMs *int32) error
	// RefinePosition may replace the worker's estimate with a better one.
	RefinePosition(pos *model.Position) error
	GetMmapPositionAndLatency(pos *model.Position, latencyMs *int32) error
	// Shutdown releases the engine. It is called on the worker thread when
	// the stream is closed.
	Shutdown()
}

// Callback receives asynchronous progress from a driver. It is safe to call
// from any goroutine.
type Callback interface {
	OnBufferStateChange(framesLeft int)
	OnClipStateChange(clipFramesLeft int, hasNextClip bool)
}

// AsyncCallback is the client's completion channel for non-blocking output
// streams.
type AsyncCallback interface {
	OnTransferReady() error
	OnDrainReady() error
	OnError() error
}

// Base provides defaults for the optional operations. Embed it in concrete
// drivers.
type Base struct{}

func (Base) RefinePosition(*model.Position) error { return nil }

func (Base) GetMmapPositionAndLatency(*model.Position, *int32) error {
	return ErrNotSupported
}

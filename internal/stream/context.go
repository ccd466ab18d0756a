// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package stream

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ManuGH/audiostream/internal/stream/driver"
	"github.com/ManuGH/audiostream/internal/stream/fmq"
	"github.com/ManuGH/audiostream/internal/stream/mmap"
	"github.com/ManuGH/audiostream/internal/stream/model"
)

// DebugParameters alter worker behaviour for conformance testing.
type DebugParameters struct {
	// ForceTransientBurst makes every burst move one frame less than asked,
	// so that output bursts always pass through TRANSFERRING.
	ForceTransientBurst bool
	// ForceSynchronousDrain completes an output drain from ACTIVE at once.
	ForceSynchronousDrain bool
	// ForceDrainToDraining keeps DRAINING until a driver callback resolves it.
	ForceDrainToDraining bool
	// TransientStateDelay is how long DRAINING and TRANSFERRING are held
	// before the worker resolves them itself.
	TransientStateDelay time.Duration
}

// ContextConfig sizes the channels and describes the stream.
type ContextConfig struct {
	Format model.AudioFormat
	Flags  model.IOFlags

	CommandQueueSize int
	ReplyQueueSize   int
	// DataQueueBytes sizes the byte ring. Ignored for mmap streams.
	DataQueueBytes int
	// BufferSizeFrames is the worker's copy buffer, in frames.
	BufferSizeFrames int

	// Mmap replaces the data queue with a shared-memory region.
	Mmap            bool
	MmapBurstFrames int

	NominalLatencyMs int32
	Debug            DebugParameters
}

// Context owns everything a worker shares with the stream's client.
type Context struct {
	commandQ *fmq.MessageQueue[model.Command]
	replyQ   *fmq.MessageQueue[model.Reply]
	dataQ    *fmq.DataQueue
	region   *mmap.Region

	format           model.AudioFormat
	flags            model.IOFlags
	frameSize        int
	bufferSizeFrames int
	mmapBurstFrames  int
	nominalLatencyMs int32
	internalCookie   int32

	frameCount atomic.Int64
	asyncCB    atomic.Pointer[asyncCallbackRef]

	forceTransientBurst   atomic.Bool
	forceSynchronousDrain atomic.Bool
	forceDrainToDraining  atomic.Bool
	transientStateDelay   atomic.Int64

	resetOnce sync.Once
	reset     atomic.Bool
}

type asyncCallbackRef struct {
	cb driver.AsyncCallback
}

// NewContext allocates the queues (or the mmap region) for one stream.
func NewContext(cfg ContextConfig) (*Context, error) {
	if err := cfg.Format.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidContext, err)
	}
	frameSize := cfg.Format.FrameSize()
	if cfg.BufferSizeFrames <= 0 {
		return nil, fmt.Errorf("%w: buffer size must be positive", ErrInvalidContext)
	}

	c := &Context{
		format:           cfg.Format,
		flags:            cfg.Flags,
		frameSize:        frameSize,
		bufferSizeFrames: cfg.BufferSizeFrames,
		mmapBurstFrames:  cfg.MmapBurstFrames,
		nominalLatencyMs: cfg.NominalLatencyMs,
		internalCookie:   rand.Int32() | 1,
	}

	var err error
	if c.commandQ, err = fmq.NewMessageQueue[model.Command](cfg.CommandQueueSize); err != nil {
		return nil, fmt.Errorf("%w: command queue: %w", ErrInvalidContext, err)
	}
	if c.replyQ, err = fmq.NewMessageQueue[model.Reply](cfg.ReplyQueueSize); err != nil {
		return nil, fmt.Errorf("%w: reply queue: %w", ErrInvalidContext, err)
	}
	if cfg.Mmap {
		burst := cfg.MmapBurstFrames
		if burst <= 0 {
			burst = cfg.BufferSizeFrames
		}
		c.mmapBurstFrames = burst
		if c.region, err = mmap.New("audiostream", cfg.BufferSizeFrames*frameSize); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidContext, err)
		}
	} else {
		if c.dataQ, err = fmq.NewDataQueue(cfg.DataQueueBytes); err != nil {
			return nil, fmt.Errorf("%w: data queue: %w", ErrInvalidContext, err)
		}
	}
	c.SetDebugParameters(cfg.Debug)
	return c, nil
}

// Validate checks that the context can drive a worker.
func (c *Context) Validate() error {
	if c == nil || c.reset.Load() {
		return ErrInvalidContext
	}
	if c.commandQ == nil || c.replyQ == nil {
		return fmt.Errorf("%w: missing command or reply queue", ErrInvalidContext)
	}
	if c.frameSize <= 0 {
		return fmt.Errorf("%w: frame size %d", ErrInvalidContext, c.frameSize)
	}
	if c.IsMmap() {
		if c.region.Size() < c.frameSize {
			return fmt.Errorf("%w: mmap region smaller than one frame", ErrInvalidContext)
		}
		return nil
	}
	if c.dataQ == nil {
		return fmt.Errorf("%w: missing data queue", ErrInvalidContext)
	}
	if c.dataQ.Capacity() < c.frameSize {
		return fmt.Errorf("%w: data queue of %d bytes cannot hold a %d byte frame",
			ErrInvalidContext, c.dataQ.Capacity(), c.frameSize)
	}
	return nil
}

func (c *Context) CommandQueue() *fmq.MessageQueue[model.Command] { return c.commandQ }
func (c *Context) ReplyQueue() *fmq.MessageQueue[model.Reply]     { return c.replyQ }

// DataQueue is nil for mmap streams.
func (c *Context) DataQueue() *fmq.DataQueue { return c.dataQ }

// MmapRegion is nil unless the stream is mmap.
func (c *Context) MmapRegion() *mmap.Region { return c.region }

// MmapDescriptor describes the shared region for the client.
func (c *Context) MmapDescriptor() (model.MmapDescriptor, bool) {
	if c.region == nil {
		return model.MmapDescriptor{}, false
	}
	return c.region.Descriptor(c.mmapBurstFrames), true
}

func (c *Context) IsMmap() bool                  { return c.region != nil }
func (c *Context) Format() model.AudioFormat     { return c.format }
func (c *Context) Flags() model.IOFlags          { return c.flags }
func (c *Context) FrameSize() int                { return c.frameSize }
func (c *Context) BufferSizeFrames() int         { return c.bufferSizeFrames }
func (c *Context) NominalLatencyMs() int32       { return c.nominalLatencyMs }
func (c *Context) InternalCookie() int32         { return c.internalCookie }
func (c *Context) FrameCount() int64             { return c.frameCount.Load() }
func (c *Context) advanceFrameCount(n int) int64 { return c.frameCount.Add(int64(n)) }

// SetAsyncCallback publishes the client's completion callback. Passing nil
// makes the output stream synchronous.
func (c *Context) SetAsyncCallback(cb driver.AsyncCallback) {
	if cb == nil {
		c.asyncCB.Store(nil)
		return
	}
	c.asyncCB.Store(&asyncCallbackRef{cb: cb})
}

// AsyncCallback returns the published callback or nil.
func (c *Context) AsyncCallback() driver.AsyncCallback {
	if ref := c.asyncCB.Load(); ref != nil {
		return ref.cb
	}
	return nil
}

// SetDebugParameters publishes new debug parameters; the worker picks them
// up on its next cycle.
func (c *Context) SetDebugParameters(p DebugParameters) {
	c.forceTransientBurst.Store(p.ForceTransientBurst)
	c.forceSynchronousDrain.Store(p.ForceSynchronousDrain)
	c.forceDrainToDraining.Store(p.ForceDrainToDraining)
	c.transientStateDelay.Store(int64(p.TransientStateDelay))
}

// DebugParameters returns the current debug parameters.
func (c *Context) DebugParameters() DebugParameters {
	return DebugParameters{
		ForceTransientBurst:   c.forceTransientBurst.Load(),
		ForceSynchronousDrain: c.forceSynchronousDrain.Load(),
		ForceDrainToDraining:  c.forceDrainToDraining.Load(),
		TransientStateDelay:   time.Duration(c.transientStateDelay.Load()),
	}
}

// Reset closes the queues and releases the mmap region. It must only be
// called once the worker has been joined.
func (c *Context) Reset() error {
	var err error
	c.resetOnce.Do(func() {
		c.reset.Store(true)
		c.commandQ.Close()
		c.replyQ.Close()
		if c.dataQ != nil {
			c.dataQ.Close()
		}
		if c.region != nil {
			err = c.region.Close()
		}
		c.asyncCB.Store(nil)
	})
	if err != nil {
		return errors.Join(ErrInvalidContext, err)
	}
	return nil
}

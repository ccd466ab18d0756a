// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package client is the caller's side of a stream: it posts commands, waits
// for replies and moves audio through the data queue.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ManuGH/audiostream/internal/stream"
	"github.com/ManuGH/audiostream/internal/stream/fmq"
	"github.com/ManuGH/audiostream/internal/stream/model"
)

// DefaultTimeout bounds a command round trip when the caller's context has
// no deadline.
const DefaultTimeout = 2 * time.Second

// Client serializes command round trips on one stream context.
type Client struct {
	sctx    *stream.Context
	timeout time.Duration

	mu sync.Mutex
}

// New returns a client for sctx.
func New(sctx *stream.Context) *Client {
	return &Client{sctx: sctx, timeout: DefaultTimeout}
}

// WithTimeout returns a client using d for round trips without deadline. It
// must not be used concurrently with c.
func (c *Client) WithTimeout(d time.Duration) *Client {
	return &Client{sctx: c.sctx, timeout: d}
}

// Send posts cmd and waits for its reply. A reply whose status is not OK is
// returned together with a *model.StatusError.
func (c *Client) Send(ctx context.Context, cmd model.Command) (model.Reply, error) {
	if _, ok := ctx.Deadline(); !ok && c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	kind := model.Kind(cmd)
	if err := c.sctx.CommandQueue().Write(ctx, cmd); err != nil {
		return model.NewReply(), transportErr("send "+string(kind), err)
	}
	reply, err := c.sctx.ReplyQueue().Read(ctx)
	if err != nil {
		return model.NewReply(), transportErr("await "+string(kind)+" reply", err)
	}
	return reply, reply.Status.Err()
}

func transportErr(op string, err error) error {
	if errors.Is(err, fmq.ErrClosed) {
		return fmt.Errorf("%s: %w", op, stream.ErrWorkerExited)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (c *Client) Status(ctx context.Context) (model.Reply, error) {
	return c.Send(ctx, model.GetStatus{})
}

func (c *Client) Start(ctx context.Context) (model.Reply, error) {
	return c.Send(ctx, model.Start{})
}

func (c *Client) Pause(ctx context.Context) (model.Reply, error) {
	return c.Send(ctx, model.Pause{})
}

func (c *Client) Flush(ctx context.Context) (model.Reply, error) {
	return c.Send(ctx, model.Flush{})
}

func (c *Client) Standby(ctx context.Context) (model.Reply, error) {
	return c.Send(ctx, model.Standby{})
}

func (c *Client) Drain(ctx context.Context, mode model.DrainMode) (model.Reply, error) {
	return c.Send(ctx, model.Drain{Mode: mode})
}

func (c *Client) Burst(ctx context.Context, byteCount int) (model.Reply, error) {
	return c.Send(ctx, model.Burst{ByteCount: int32(byteCount)})
}

// Exit sends a diagnostic exit. The worker answers with its final state and
// then stops; later commands fail with stream.ErrWorkerExited.
func (c *Client) Exit(ctx context.Context) (model.Reply, error) {
	return c.Send(ctx, model.Exit{})
}

// WriteData queues p on the data queue without bursting.
func (c *Client) WriteData(ctx context.Context, p []byte) error {
	dq := c.sctx.DataQueue()
	if dq == nil {
		return errors.New("write data: stream has no data queue")
	}
	if err := dq.WriteBlocking(ctx, p); err != nil {
		return transportErr("write data", err)
	}
	return nil
}

// ReadData fills p from the data queue without bursting.
func (c *Client) ReadData(ctx context.Context, p []byte) error {
	dq := c.sctx.DataQueue()
	if dq == nil {
		return errors.New("read data: stream has no data queue")
	}
	if err := dq.ReadBlocking(ctx, p); err != nil {
		return transportErr("read data", err)
	}
	return nil
}

// Play queues p for playback in chunks that fit both the data queue and the
// worker buffer, bursting after each one. It returns the number of bytes the
// worker consumed.
func (c *Client) Play(ctx context.Context, p []byte) (int, error) {
	dq := c.sctx.DataQueue()
	if dq == nil {
		return 0, errors.New("play: stream has no data queue")
	}
	chunk := min(dq.Capacity(), c.sctx.BufferSizeFrames()*c.sctx.FrameSize())
	chunk -= chunk % c.sctx.FrameSize()
	played := 0
	for len(p) > 0 {
		n := min(len(p), chunk)
		if err := c.WriteData(ctx, p[:n]); err != nil {
			return played, err
		}
		reply, err := c.Burst(ctx, n)
		if err != nil {
			return played, err
		}
		played += int(reply.FmqByteCount)
		p = p[n:]
	}
	return played, nil
}

// Capture asks the worker for up to len(p) bytes and copies what it
// delivered into p.
func (c *Client) Capture(ctx context.Context, p []byte) (int, error) {
	dq := c.sctx.DataQueue()
	if dq == nil {
		return 0, errors.New("capture: stream has no data queue")
	}
	reply, err := c.Burst(ctx, len(p))
	if err != nil {
		return 0, err
	}
	n := min(int(reply.FmqByteCount), len(p))
	if err := c.ReadData(ctx, p[:n]); err != nil {
		return 0, err
	}
	return n, nil
}

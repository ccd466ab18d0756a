package fmq

import (
	"context"
	"sync"
)

// MessageQueue carries fixed-size messages in one direction.
type MessageQueue[T any] struct {
	ch        chan T
	done      chan struct{}
	closeOnce sync.Once
	errs      errorSlot
}

// NewMessageQueue returns a queue with room for capacity messages.
func NewMessageQueue[T any](capacity int) (*MessageQueue[T], error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	return &MessageQueue[T]{
		ch:   make(chan T, capacity),
		done: make(chan struct{}),
	}, nil
}

// Capacity returns the number of slots.
func (q *MessageQueue[T]) Capacity() int { return cap(q.ch) }

// AvailableToRead returns the number of queued messages.
func (q *MessageQueue[T]) AvailableToRead() int { return len(q.ch) }

// AvailableToWrite returns the number of free slots.
func (q *MessageQueue[T]) AvailableToWrite() int { return cap(q.ch) - len(q.ch) }

// SetErrorHandler installs the transport error callback.
func (q *MessageQueue[T]) SetErrorHandler(h ErrorHandler) { q.errs.set(h) }

// Closed reports whether Close has been called.
func (q *MessageQueue[T]) Closed() bool {
	select {
	case <-q.done:
		return true
	default:
		return false
	}
}

// Close fails all pending and future blocking operations. Messages already
// queued can still be read.
func (q *MessageQueue[T]) Close() {
	q.closeOnce.Do(func() { close(q.done) })
}

// Fail reports a corruption to the error handler and closes the queue.
func (q *MessageQueue[T]) Fail(msg string) {
	q.errs.report(ErrorCorrupted, msg)
	q.Close()
}

// WriteBlocking enqueues v, waiting for a free slot. It returns false only if
// the queue is closed.
func (q *MessageQueue[T]) WriteBlocking(v T) bool {
	if q.Closed() {
		q.errs.report(ErrorClosed, "write on closed queue")
		return false
	}
	select {
	case q.ch <- v:
		return true
	case <-q.done:
		q.errs.report(ErrorClosed, "queue closed during write")
		return false
	}
}

// ReadBlocking dequeues one message, waiting until one is available. It
// returns false only if the queue is closed and empty.
func (q *MessageQueue[T]) ReadBlocking() (T, bool) {
	select {
	case v := <-q.ch:
		return v, true
	default:
	}
	select {
	case v := <-q.ch:
		return v, true
	case <-q.done:
		var zero T
		return zero, false
	}
}

// Write is the client-side enqueue honouring ctx.
func (q *MessageQueue[T]) Write(ctx context.Context, v T) error {
	if q.Closed() {
		return ErrClosed
	}
	select {
	case q.ch <- v:
		return nil
	case <-q.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Read is the client-side dequeue honouring ctx.
func (q *MessageQueue[T]) Read(ctx context.Context) (T, error) {
	var zero T
	select {
	case v := <-q.ch:
		return v, nil
	default:
	}
	select {
	case v := <-q.ch:
		return v, nil
	case <-q.done:
		return zero, ErrClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

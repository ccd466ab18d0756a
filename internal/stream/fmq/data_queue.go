package fmq

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// DataQueue is a byte ring shared by exactly one writer and one reader.
// Positions grow monotonically; the difference between them is the fill.
type DataQueue struct {
	buf      []byte
	capacity uint64

	writePos atomic.Uint64
	readPos  atomic.Uint64

	dataReady  chan struct{}
	spaceReady chan struct{}
	done       chan struct{}
	closeOnce  sync.Once
	errs       errorSlot
}

// NewDataQueue allocates a ring of capacity bytes.
func NewDataQueue(capacity int) (*DataQueue, error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	return &DataQueue{
		buf:        make([]byte, capacity),
		capacity:   uint64(capacity),
		dataReady:  make(chan struct{}, 1),
		spaceReady: make(chan struct{}, 1),
		done:       make(chan struct{}),
	}, nil
}

// Capacity returns the ring size in bytes.
func (q *DataQueue) Capacity() int { return int(q.capacity) }

// SetErrorHandler installs the transport error callback.
func (q *DataQueue) SetErrorHandler(h ErrorHandler) { q.errs.set(h) }

// Close wakes blocked clients and fails further transfers.
func (q *DataQueue) Close() {
	q.closeOnce.Do(func() { close(q.done) })
}

// Closed reports whether Close has been called.
func (q *DataQueue) Closed() bool {
	select {
	case <-q.done:
		return true
	default:
		return false
	}
}

func (q *DataQueue) fill() (uint64, bool) {
	r := q.readPos.Load()
	w := q.writePos.Load()
	if w < r || w-r > q.capacity {
		q.errs.report(ErrorCorrupted, fmt.Sprintf("inconsistent positions read=%d write=%d capacity=%d", r, w, q.capacity))
		return 0, false
	}
	return w - r, true
}

// AvailableToRead returns the number of buffered bytes.
func (q *DataQueue) AvailableToRead() int {
	n, ok := q.fill()
	if !ok {
		return 0
	}
	return int(n)
}

// AvailableToWrite returns the free space in bytes.
func (q *DataQueue) AvailableToWrite() int {
	n, ok := q.fill()
	if !ok {
		return 0
	}
	return int(q.capacity - n)
}

// Write copies all of src into the ring. It fails without side effects if
// src does not fit. Zero-length writes always succeed.
func (q *DataQueue) Write(src []byte) bool {
	if len(src) == 0 {
		return true
	}
	if q.Closed() {
		return false
	}
	n := uint64(len(src))
	fill, ok := q.fill()
	if !ok || n > q.capacity-fill {
		return false
	}
	w := q.writePos.Load()
	off := w % q.capacity
	first := copy(q.buf[off:], src)
	if first < len(src) {
		copy(q.buf, src[first:])
	}
	q.writePos.Store(w + n)
	notify(q.dataReady)
	return true
}

// Read fills all of dst from the ring. It fails without side effects if
// fewer than len(dst) bytes are buffered. Zero-length reads always succeed.
func (q *DataQueue) Read(dst []byte) bool {
	if len(dst) == 0 {
		return true
	}
	if q.Closed() {
		return false
	}
	n := uint64(len(dst))
	fill, ok := q.fill()
	if !ok || n > fill {
		return false
	}
	r := q.readPos.Load()
	off := r % q.capacity
	first := copy(dst, q.buf[off:])
	if first < len(dst) {
		copy(dst[first:], q.buf)
	}
	q.readPos.Store(r + n)
	notify(q.spaceReady)
	return true
}

// WriteBlocking waits until src fits and writes it.
func (q *DataQueue) WriteBlocking(ctx context.Context, src []byte) error {
	if uint64(len(src)) > q.capacity {
		return ErrTooLarge
	}
	for {
		if q.Write(src) {
			return nil
		}
		if err := q.wait(ctx, q.spaceReady); err != nil {
			return err
		}
	}
}

// ReadBlocking waits until len(dst) bytes are buffered and reads them.
func (q *DataQueue) ReadBlocking(ctx context.Context, dst []byte) error {
	if uint64(len(dst)) > q.capacity {
		return ErrTooLarge
	}
	for {
		if q.Read(dst) {
			return nil
		}
		if err := q.wait(ctx, q.dataReady); err != nil {
			return err
		}
	}
}

func (q *DataQueue) wait(ctx context.Context, ch <-chan struct{}) error {
	select {
	case <-ch:
		return nil
	case <-q.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

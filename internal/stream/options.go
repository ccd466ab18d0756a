package stream

import (
	"time"

	"github.com/google/uuid"
)

const (
	minRealtimePriority = 1
	maxRealtimePriority = 3

	defaultShutdownTimeout = 5 * time.Second
)

// Option configures a Stream.
type Option func(*Stream)

// WithID overrides the generated stream id.
func WithID(id string) Option {
	return func(s *Stream) {
		if id != "" {
			s.id = id
		}
	}
}

// WithRealtimePriority sets the SCHED_FIFO priority requested for
// low-latency streams. Values are clamped to the supported range.
func WithRealtimePriority(priority int) Option {
	return func(s *Stream) {
		s.rtPriority = min(max(priority, minRealtimePriority), maxRealtimePriority)
	}
}

// WithOnClose registers the resource release hook run after the worker has
// been joined.
func WithOnClose(fn func() error) Option {
	return func(s *Stream) { s.onClose = fn }
}

// WithShutdownTimeout bounds how long Close waits for the worker to honour
// the exit command before the command queue is closed under it.
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Stream) {
		if d > 0 {
			s.shutdownTimeout = d
		}
	}
}

// WithObserver subscribes fn to state changes.
func WithObserver(fn Observer) Option {
	return func(s *Stream) { s.obs.add(fn) }
}

func withClock(c clock) Option {
	return func(s *Stream) { s.clock = c }
}

func withSleep(fn func(time.Duration)) Option {
	return func(s *Stream) { s.sleep = fn }
}

func newStreamID() string {
	return uuid.NewString()
}

package fmq

import (
	"errors"
	"sync/atomic"
)

var (
	// ErrClosed is returned by context-aware operations on a closed queue.
	ErrClosed = errors.New("fmq: queue closed")
	// ErrTooLarge is returned when a transfer can never fit the queue.
	ErrTooLarge = errors.New("fmq: transfer exceeds queue capacity")
	// ErrInvalidCapacity is returned by constructors.
	ErrInvalidCapacity = errors.New("fmq: capacity must be positive")
)

// ErrorKind classifies a transport error.
type ErrorKind int

const (
	ErrorClosed ErrorKind = iota
	ErrorCorrupted
)

func (k ErrorKind) String() string {
	if k == ErrorCorrupted {
		return "corrupted"
	}
	return "closed"
}

// ErrorHandler is invoked when a queue detects a transport error.
type ErrorHandler func(kind ErrorKind, msg string)

type errorSlot struct {
	h atomic.Pointer[ErrorHandler]
}

func (s *errorSlot) set(h ErrorHandler) {
	if h == nil {
		s.h.Store(nil)
		return
	}
	s.h.Store(&h)
}

func (s *errorSlot) report(kind ErrorKind, msg string) {
	if h := s.h.Load(); h != nil {
		(*h)(kind, msg)
	}
}

// Package mmap provides the shared-memory data region used by mmap streams
// in place of the byte queue.
package mmap

import (
	"errors"
	"sync"

	"github.com/ManuGH/audiostream/internal/stream/model"
)

// ErrInvalidSize is returned for non-positive region sizes.
var ErrInvalidSize = errors.New("mmap: size must be positive")

// Region is a fixed-size byte region shared between a client and a driver.
type Region struct {
	mu     sync.Mutex
	data   []byte
	fd     int
	closed bool
	unmap  func() error
}

// Bytes returns the mapped memory. It is nil after Close.
func (r *Region) Bytes() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.data
}

// Size returns the region length in bytes.
func (r *Region) Size() int {
	return len(r.Bytes())
}

// Fd returns the backing file descriptor, or -1 for heap-backed regions.
func (r *Region) Fd() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fd
}

// Descriptor describes the region for a client.
func (r *Region) Descriptor(burstFrames int) model.MmapDescriptor {
	r.mu.Lock()
	defer r.mu.Unlock()
	return model.MmapDescriptor{
		Fd:              r.fd,
		SizeBytes:       len(r.data),
		BurstSizeFrames: burstFrames,
	}
}

// Close unmaps the region. Calling it more than once is harmless.
func (r *Region) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	r.data = nil
	r.fd = -1
	if r.unmap != nil {
		return r.unmap()
	}
	return nil
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package daemon

import (
	"slices"
	"strings"
	"sync"

	"github.com/ManuGH/audiostream/internal/stream"
)

// Registry tracks the streams a daemon currently has open.
type Registry struct {
	mu      sync.RWMutex
	streams map[string]*stream.Stream
}

func NewRegistry() *Registry {
	return &Registry{streams: make(map[string]*stream.Stream)}
}

func (r *Registry) Add(s *stream.Stream) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.streams[s.ID()] = s
}

func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.streams, id)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.streams)
}

// Get returns a snapshot of the stream with id.
func (r *Registry) Get(id string) (stream.Snapshot, bool) {
	r.mu.RLock()
	s, ok := r.streams[id]
	r.mu.RUnlock()
	if !ok {
		return stream.Snapshot{}, false
	}
	return s.Snapshot(), true
}

// List returns snapshots of every open stream ordered by id.
func (r *Registry) List() []stream.Snapshot {
	out := make([]stream.Snapshot, 0)
	r.Each(func(s *stream.Stream) { out = append(out, s.Snapshot()) })
	slices.SortFunc(out, func(a, b stream.Snapshot) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// Each calls fn for every open stream. fn must not call back into r.
func (r *Registry) Each(fn func(*stream.Stream)) {
	r.mu.RLock()
	streams := make([]*stream.Stream, 0, len(r.streams))
	for _, s := range r.streams {
		streams = append(streams, s)
	}
	r.mu.RUnlock()
	for _, s := range streams {
		fn(s)
	}
}

// ApplyDebug pushes p to every open stream.
func (r *Registry) ApplyDebug(p stream.DebugParameters) {
	r.Each(func(s *stream.Stream) { s.SetDebugParameters(p) })
}

// SetDebug pushes p to the stream with id and reports whether it exists.
func (r *Registry) SetDebug(id string, p stream.DebugParameters) bool {
	r.mu.RLock()
	s, ok := r.streams[id]
	r.mu.RUnlock()
	if ok {
		s.SetDebugParameters(p)
	}
	return ok
}

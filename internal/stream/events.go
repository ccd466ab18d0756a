package stream

import (
	"sync"
	"time"

	"github.com/ManuGH/audiostream/internal/stream/model"
)

// Event describes a state change of a stream.
type Event struct {
	StreamID  string          `json:"stream_id"`
	Direction model.Direction `json:"direction"`
	From      model.State     `json:"from"`
	To        model.State     `json:"to"`
	// Cause is the command kind or the asynchronous source of the change.
	Cause string    `json:"cause"`
	At    time.Time `json:"at"`
}

// Observer is invoked synchronously on the goroutine that changed state: the
// worker thread or a driver callback. It must not block.
type Observer func(Event)

type observers struct {
	mu   sync.RWMutex
	list []Observer
}

func (o *observers) add(fn Observer) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.list = append(o.list, fn)
}

func (o *observers) emit(ev Event) {
	o.mu.RLock()
	list := o.list
	o.mu.RUnlock()
	for _, fn := range list {
		fn(ev)
	}
}

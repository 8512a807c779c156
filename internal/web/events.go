package web

import (
	"sync"
	"time"
)

// eventBuffer is the per-subscriber queue depth. Events beyond it are
// dropped for that subscriber.
const eventBuffer = 16

// Event tells clients that a dataset's authoritative records changed.
type Event struct {
	Type    string    `json:"type"`
	Dataset string    `json:"dataset"`
	At      time.Time `json:"at"`
}

// EventHub fans refresh events out to SSE subscribers.
type EventHub struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

// NewEventHub returns a hub with no subscribers.
func NewEventHub() *EventHub {
	return &EventHub{subs: make(map[chan Event]struct{})}
}

// Subscribe returns a channel of events and a function that unsubscribes
// and closes it.
func (h *EventHub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, eventBuffer)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Publish sends e to every subscriber without blocking.
func (h *EventHub) Publish(e Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Refresh publishes a refresh event for dataset. It has the signature
// core.WithRefresher expects.
func (h *EventHub) Refresh(dataset string) {
	h.Publish(Event{Type: "refresh", Dataset: dataset, At: time.Now().UTC()})
}

// Subscribers returns the number of connected clients.
func (h *EventHub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

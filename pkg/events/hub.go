package events

import (
	"sync"
)

// Hub fans newly ingested records out to any number of live subscribers
// (websocket streams, bus forwarders). Publishing never blocks ingestion:
// a subscriber whose channel is full misses the record.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[chan Record]struct{}
	closed      bool
}

// NewHub constructs an event hub.
func NewHub() *Hub {
	return &Hub{subscribers: make(map[chan Record]struct{})}
}

// Publish notifies all subscribers of a record. Non-blocking; drops if a
// subscriber's buffer is full.
func (h *Hub) Publish(rec Record) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	for ch := range h.subscribers {
		select {
		case ch <- rec:
		default:
			// Subscriber can't keep up; skipping keeps ingestion non-blocking.
		}
	}
}

// Subscribe returns a channel that will receive future records and a cleanup
// func. The cleanup func is idempotent.
func (h *Hub) Subscribe() (<-chan Record, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Record, 128)
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	h.subscribers[ch] = struct{}{}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subscribers[ch]; ok {
				delete(h.subscribers, ch)
				close(ch)
			}
		})
	}
	return ch, cancel
}

// Close shuts down the hub and closes all subscriber channels.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subscribers {
		close(ch)
	}
	h.subscribers = make(map[chan Record]struct{})
}

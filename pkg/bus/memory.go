package bus

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
)

// MemoryBus delivers messages in-process. Handlers run on their own
// goroutine per message, matching the NATS delivery model closely enough
// that forwarder tests exercise the same paths.
type MemoryBus struct {
	mu     sync.RWMutex
	subs   map[*memorySubscription]struct{}
	closed atomic.Bool
}

// NewMemoryBus creates an in-process bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[*memorySubscription]struct{})}
}

func (b *MemoryBus) Publish(ctx context.Context, subject string, data []byte) error {
	if b.closed.Load() {
		return ErrClosed
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs {
		if !subjectMatches(sub.subject, subject) {
			continue
		}
		msg := &Message{Subject: subject, Data: data}
		go sub.handler(msg)
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, subject string, handler MessageHandler) (Subscription, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}

	sub := &memorySubscription{bus: b, subject: subject, handler: handler}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub, nil
}

func (b *MemoryBus) Close() error {
	if b.closed.Swap(true) {
		return ErrClosed
	}
	b.mu.Lock()
	b.subs = make(map[*memorySubscription]struct{})
	b.mu.Unlock()
	return nil
}

type memorySubscription struct {
	bus     *MemoryBus
	subject string
	handler MessageHandler
}

func (s *memorySubscription) Unsubscribe() error {
	s.bus.mu.Lock()
	delete(s.bus.subs, s)
	s.bus.mu.Unlock()
	return nil
}

func (s *memorySubscription) Subject() string {
	return s.subject
}

// subjectMatches applies NATS token semantics: "*" consumes one token, ">"
// consumes everything after its position.
func subjectMatches(pattern, subject string) bool {
	if pattern == subject {
		return true
	}
	pt := strings.Split(pattern, ".")
	st := strings.Split(subject, ".")
	for i, tok := range pt {
		if tok == ">" {
			return true
		}
		if i >= len(st) {
			return false
		}
		if tok != "*" && tok != st[i] {
			return false
		}
	}
	return len(pt) == len(st)
}

// Package bus forwards aggregated protocol events to external consumers
// over a publish/subscribe bus. NATS backs the real deployment; the
// in-memory bus serves tests and single-binary setups.
package bus

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned when operating on a closed bus or subscription.
var ErrClosed = errors.New("bus or subscription closed")

// MessageBus publishes event records keyed by subject. Implementations are
// safe for concurrent use. Publish returns once the message is handed to the
// transport; delivery is fire-and-forget.
type MessageBus interface {
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers a handler for subjects matching the pattern.
	// Patterns use NATS token syntax: "*" matches one token, ">" matches
	// the remainder, so "cdp.events.*" matches "cdp.events.Network".
	Subscribe(ctx context.Context, subject string, handler MessageHandler) (Subscription, error)

	Close() error
}

// MessageHandler receives one delivered message. Handlers run on the bus's
// delivery goroutines and must not block indefinitely.
type MessageHandler func(msg *Message)

// Message is one delivered bus message.
type Message struct {
	Subject string
	Data    []byte
}

// Subscription is a live handler registration.
type Subscription interface {
	// Unsubscribe stops delivery and releases the registration.
	Unsubscribe() error

	// Subject returns the pattern this subscription was created with.
	Subject() string
}

// Config parameterizes a bus connection. URL is ignored by the in-memory
// implementation.
type Config struct {
	URL     string
	Name    string
	Timeout time.Duration
}

// DefaultConfig returns the connection defaults.
func DefaultConfig() Config {
	return Config{
		URL:     "nats://localhost:4222",
		Name:    "cdpbridge",
		Timeout: 30 * time.Second,
	}
}

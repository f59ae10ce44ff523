package bus

import (
	"context"
	"encoding/json"

	"github.com/odvcencio/cdpbridge/pkg/events"
	"github.com/odvcencio/cdpbridge/pkg/logging"
)

// Forwarder drains the live event hub and republishes each record on the bus
// under "<prefix>.<domain>". External consumers get the same centralized
// view the in-process query surface sees.
type Forwarder struct {
	bus    MessageBus
	prefix string
	log    *logging.Logger

	cancel func()
	done   chan struct{}
}

// NewForwarder starts forwarding records from the hub. Stop with Close.
func NewForwarder(bus MessageBus, hub *events.Hub, prefix string, log *logging.Logger) *Forwarder {
	ch, cancel := hub.Subscribe()
	f := &Forwarder{
		bus:    bus,
		prefix: prefix,
		log:    log,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go f.run(ch)
	return f
}

func (f *Forwarder) run(ch <-chan events.Record) {
	defer close(f.done)

	for rec := range ch {
		data, err := json.Marshal(rec)
		if err != nil {
			f.log.Warn("event marshal failed", "error", err, "method", rec.Method)
			continue
		}
		subject := f.prefix + "." + rec.Domain
		if err := f.bus.Publish(context.Background(), subject, data); err != nil {
			f.log.Warn("event publish failed", "error", err, "subject", subject)
		}
	}
}

// Close stops the forwarder and waits for the drain goroutine to exit.
func (f *Forwarder) Close() {
	f.cancel()
	<-f.done
}

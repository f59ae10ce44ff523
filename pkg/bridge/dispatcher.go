package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/odvcencio/cdpbridge/pkg/cdp"
	"github.com/odvcencio/cdpbridge/pkg/config"
	"github.com/odvcencio/cdpbridge/pkg/events"
	"github.com/odvcencio/cdpbridge/pkg/logging"
	"github.com/odvcencio/cdpbridge/pkg/metrics"
	"github.com/odvcencio/cdpbridge/pkg/tracing"
	"github.com/odvcencio/cdpbridge/pkg/transport"
)

// Bridge is the public entry point. It owns the pool, the domain manager,
// and the event aggregator, and exposes exactly the operations the
// route-handler layer consumes.
type Bridge struct {
	cfg     *config.Config
	pool    *Pool
	domains *DomainManager
	agg     *events.Aggregator
	hub     *events.Hub
	limiter *rate.Limiter
	log     *logging.Logger

	closed atomic.Bool
}

// New dials the pool, wires the domain manager and aggregator, and starts
// the sweeper. The context bounds the initial pool dial only.
func New(ctx context.Context, cfg *config.Config, log *logging.Logger) (*Bridge, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	hub := events.NewHub()
	agg := events.NewAggregator(cfg.Events.BufferCapacity, hub)

	dial := func(ctx context.Context) (*transport.Conn, error) {
		dialCtx, cancel := context.WithTimeout(ctx, cfg.Pool.DialTimeout)
		defer cancel()
		return transport.Dial(dialCtx, cfg.Endpoint, agg, log)
	}

	pool, err := NewPool(ctx, cfg.Pool.Size, dial, log)
	if err != nil {
		hub.Close()
		return nil, fmt.Errorf("dialing pool: %w", err)
	}

	domains := NewDomainManager(pool, cfg.Domains, cfg.Commands.ActivationTimeout, log)
	pool.SetReplay(domains.Replay)
	domains.Start()

	var limiter *rate.Limiter
	if cfg.Commands.RateLimit > 0 {
		burst := cfg.Commands.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.Commands.RateLimit), burst)
	}

	return &Bridge{
		cfg:     cfg,
		pool:    pool,
		domains: domains,
		agg:     agg,
		hub:     hub,
		limiter: limiter,
		log:     log,
	}, nil
}

// Hub exposes the live event hub for streaming subscribers.
func (b *Bridge) Hub() *events.Hub { return b.hub }

// Dispatch sends one protocol command and returns its correlated result.
// Required domains are activated first; on activation failure the pool is
// never touched. The connection is released on every exit path.
func (b *Bridge) Dispatch(ctx context.Context, method string, params map[string]any, requiredDomains []string, timeout time.Duration) (map[string]any, error) {
	if b.closed.Load() {
		return nil, cdp.ErrBridgeClosed
	}

	domain := cdp.MethodDomain(method)
	ctx, span := tracing.StartSpan(ctx, "bridge.Dispatch")
	span.SetAttributes(tracing.AttrMethod.String(method), tracing.AttrDomain.String(domain))
	defer span.End()

	outcome := "ok"
	defer func() {
		tracing.SetAttributes(ctx, tracing.AttrOutcome.String(outcome))
	}()

	if timeout <= 0 {
		timeout = b.cfg.Commands.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if b.limiter != nil {
		if err := b.limiter.Wait(ctx); err != nil {
			outcome = "timeout"
			return nil, cdp.ErrCommandTimeout
		}
	}

	for _, d := range requiredDomains {
		if err := b.domains.Ensure(ctx, d); err != nil {
			tracing.RecordError(ctx, err)
			outcome = "domain_unavailable"
			metrics.CommandFailures.WithLabelValues(domain, "domain_unavailable").Inc()
			return nil, err
		}
	}

	acquireCtx, acquireCancel := context.WithTimeout(ctx, b.cfg.Pool.AcquireTimeout)
	conn, err := b.pool.Acquire(acquireCtx)
	acquireCancel()
	if err != nil {
		tracing.RecordError(ctx, err)
		outcome = "pool_exhausted"
		metrics.CommandFailures.WithLabelValues(domain, "pool_exhausted").Inc()
		return nil, err
	}
	defer b.pool.Release(conn)

	span.SetAttributes(tracing.AttrConnID.String(conn.ID()))

	var raw json.RawMessage
	if len(params) > 0 {
		raw, err = json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("encoding params: %w", err)
		}
	}

	start := time.Now()
	result, err := conn.SendAndAwait(ctx, method, raw)
	if err != nil {
		tracing.RecordError(ctx, err)
		outcome = errorKind(err)
		metrics.CommandFailures.WithLabelValues(domain, errorKind(err)).Inc()
		return nil, err
	}

	metrics.CommandsDispatched.WithLabelValues(domain).Inc()
	metrics.CommandLatency.WithLabelValues(domain).Observe(time.Since(start).Seconds())
	for _, d := range requiredDomains {
		b.domains.Touch(d)
	}

	if len(result) == 0 {
		return map[string]any{}, nil
	}
	var decoded map[string]any
	if err := json.Unmarshal(result, &decoded); err != nil {
		return nil, fmt.Errorf("decoding result: %w", err)
	}
	return decoded, nil
}

// QueryEvents returns buffered events for a domain. Results are identical
// regardless of pool scheduling; event storage is never partitioned by which
// connection observed an event.
func (b *Bridge) QueryEvents(domain string, filter events.Filter) ([]events.Record, error) {
	if b.closed.Load() {
		return nil, cdp.ErrBridgeClosed
	}
	return b.agg.Query(domain, filter), nil
}

// ClearEvents drops every buffered event for a domain.
func (b *Bridge) ClearEvents(domain string) error {
	if b.closed.Load() {
		return cdp.ErrBridgeClosed
	}
	b.agg.Clear(domain)
	return nil
}

// Close tears the bridge down: sweeper first, then the pool, then the hub.
func (b *Bridge) Close() error {
	if b.closed.Swap(true) {
		return cdp.ErrBridgeClosed
	}
	b.domains.Stop()
	b.pool.Close()
	b.hub.Close()
	b.log.Info("bridge closed")
	return nil
}

// errorKind classifies a dispatch error for metrics labels.
func errorKind(err error) string {
	switch {
	case errors.Is(err, cdp.ErrCommandTimeout):
		return "timeout"
	case errors.Is(err, cdp.ErrTransportDead):
		return "transport_dead"
	case errors.Is(err, cdp.ErrPoolExhausted):
		return "pool_exhausted"
	case errors.Is(err, cdp.ErrDomainUnavailable):
		return "domain_unavailable"
	case cdp.IsProtocolError(err):
		return "protocol_error"
	default:
		return "other"
	}
}

// Package bridge assembles the pooled-connection manager, the domain
// lifecycle manager, and the dispatcher into the two operations the
// route-handler layer consumes: Dispatch and QueryEvents.
package bridge

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/odvcencio/cdpbridge/pkg/cdp"
	"github.com/odvcencio/cdpbridge/pkg/logging"
	"github.com/odvcencio/cdpbridge/pkg/metrics"
	"github.com/odvcencio/cdpbridge/pkg/transport"
)

// ReplayFunc re-establishes per-session state (the currently active domain
// set) on a freshly dialed connection before the pool marks it idle.
type ReplayFunc func(ctx context.Context, conn *transport.Conn) error

// DialFunc opens a new transport connection. Swapped out in tests.
type DialFunc func(ctx context.Context) (*transport.Conn, error)

// Pool is a fixed-size set of transport connections with exclusive
// checkout/checkin. Waiters are served FIFO. A connection that dies is
// replaced asynchronously and spends zero time idle while dead.
type Pool struct {
	size int
	dial DialFunc
	log  *logging.Logger

	idle chan *transport.Conn

	mu     sync.Mutex
	conns  map[string]*transport.Conn // membership: idle + checked out, not dead
	replay ReplayFunc
	closed bool

	wg sync.WaitGroup
}

// NewPool dials size connections up front. If any dial fails the already
// opened connections are closed and the error returned.
func NewPool(ctx context.Context, size int, dial DialFunc, log *logging.Logger) (*Pool, error) {
	p := &Pool{
		size:  size,
		dial:  dial,
		log:   log,
		idle:  make(chan *transport.Conn, size),
		conns: make(map[string]*transport.Conn, size),
	}

	for i := 0; i < size; i++ {
		conn, err := dial(ctx)
		if err != nil {
			p.Close()
			return nil, err
		}
		p.mu.Lock()
		p.conns[conn.ID()] = conn
		p.mu.Unlock()
		p.idle <- conn
	}

	metrics.PoolConnections.WithLabelValues(transport.StateIdle.String()).Set(float64(size))
	return p, nil
}

// SetReplay installs the domain-replay hook. Must be called before the first
// reconnect can happen; the bridge wires it during construction.
func (p *Pool) SetReplay(fn ReplayFunc) {
	p.mu.Lock()
	p.replay = fn
	p.mu.Unlock()
}

// Size returns the configured pool size.
func (p *Pool) Size() int { return p.size }

// Acquire blocks until a connection is idle or the context expires. The
// returned connection is exclusively owned by the caller until Release.
func (p *Pool) Acquire(ctx context.Context) (*transport.Conn, error) {
	start := time.Now()
	for {
		select {
		case conn, ok := <-p.idle:
			if !ok {
				return nil, cdp.ErrBridgeClosed
			}
			if !conn.Healthy() {
				// Died while idle; replace it and keep waiting.
				metrics.PoolConnections.WithLabelValues(transport.StateIdle.String()).Dec()
				p.retire(conn)
				continue
			}
			conn.SetState(transport.StateInUse)
			metrics.PoolAcquireWait.Observe(time.Since(start).Seconds())
			metrics.PoolConnections.WithLabelValues(transport.StateIdle.String()).Dec()
			metrics.PoolConnections.WithLabelValues(transport.StateInUse.String()).Inc()
			return conn, nil
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil, ctx.Err()
			}
			metrics.PoolExhaustions.Inc()
			return nil, cdp.ErrPoolExhausted
		}
	}
}

// Release returns a connection to the pool. A dead connection is retired and
// replaced asynchronously instead of going back to the idle set.
func (p *Pool) Release(conn *transport.Conn) {
	if conn == nil {
		return
	}
	metrics.PoolConnections.WithLabelValues(transport.StateInUse.String()).Dec()

	if !conn.Healthy() {
		p.retire(conn)
		return
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		_ = conn.Close()
		return
	}
	conn.SetState(transport.StateIdle)
	metrics.PoolConnections.WithLabelValues(transport.StateIdle.String()).Inc()
	// The idle channel's capacity equals the pool size, so this send never
	// blocks while the lock is held.
	p.idle <- conn
	p.mu.Unlock()
}

// Live returns every connection currently in the pool's membership set,
// whether idle or checked out. Used by the domain manager, which must mirror
// activations on every live connection.
func (p *Pool) Live() []*transport.Conn {
	p.mu.Lock()
	defer p.mu.Unlock()

	live := make([]*transport.Conn, 0, len(p.conns))
	for _, conn := range p.conns {
		if conn.Healthy() {
			live = append(live, conn)
		}
	}
	return live
}

// Close shuts the pool down, closing every connection. Blocks until pending
// reconnect workers finish.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	conns := make([]*transport.Conn, 0, len(p.conns))
	for _, conn := range p.conns {
		conns = append(conns, conn)
	}
	p.conns = make(map[string]*transport.Conn)
	p.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Close()
	}

	// Reconnect workers observe closed under the lock and exit without
	// touching the idle channel, so it is safe to close after they finish.
	p.wg.Wait()

	p.mu.Lock()
	close(p.idle)
	p.mu.Unlock()
	for range p.idle {
	}
}

// retire removes a dead connection from membership and kicks off an
// asynchronous replacement.
func (p *Pool) retire(dead *transport.Conn) {
	_ = dead.Close()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	delete(p.conns, dead.ID())
	p.mu.Unlock()

	metrics.PoolConnections.WithLabelValues(transport.StateDead.String()).Inc()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.reconnect(dead.ID())
	}()
}

// reconnect dials a replacement with backoff, replays the active domain set,
// and only then offers the connection to waiters.
func (p *Pool) reconnect(oldID string) {
	backoff := 250 * time.Millisecond
	const maxBackoff = 10 * time.Second

	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return
		}
		replay := p.replay
		p.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		conn, err := p.dial(ctx)
		if err == nil {
			// Membership before replay: a domain activation running
			// concurrently must see the replacement in its live snapshot.
			// Replay then covers the domains that settled before it ran;
			// enabling the same domain from both sides is idempotent.
			p.mu.Lock()
			if p.closed {
				p.mu.Unlock()
				cancel()
				_ = conn.Close()
				return
			}
			p.conns[conn.ID()] = conn
			p.mu.Unlock()

			if replay != nil {
				if rerr := replay(ctx, conn); rerr != nil {
					p.mu.Lock()
					delete(p.conns, conn.ID())
					p.mu.Unlock()
					_ = conn.Close()
					err = rerr
				}
			}
		}
		cancel()

		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			p.log.Warn("reconnect failed, retrying", "error", err, "backoff", backoff.String())
			time.Sleep(backoff)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			_ = conn.Close()
			return
		}
		p.idle <- conn
		p.mu.Unlock()

		metrics.PoolReconnects.Inc()
		metrics.PoolConnections.WithLabelValues(transport.StateDead.String()).Dec()
		metrics.PoolConnections.WithLabelValues(transport.StateIdle.String()).Inc()
		p.log.ConnReplaced(oldID, conn.ID())
		return
	}
}

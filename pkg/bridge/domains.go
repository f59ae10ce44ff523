package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/odvcencio/cdpbridge/pkg/cdp"
	"github.com/odvcencio/cdpbridge/pkg/config"
	"github.com/odvcencio/cdpbridge/pkg/logging"
	"github.com/odvcencio/cdpbridge/pkg/metrics"
	"github.com/odvcencio/cdpbridge/pkg/transport"
)

// domainEntry is the process-wide record for one protocol domain. The mutex
// serializes every transition on this domain; different domains transition
// concurrently.
type domainEntry struct {
	mu       sync.Mutex
	state    cdp.DomainState
	tier     cdp.RiskTier
	lastUsed time.Time
}

// DomainManager tracks which protocol domains are active and mirrors
// activation on every pooled connection. A domain is Active only if
// activation succeeded on all currently live connections; a partial success
// is rolled back and surfaced as unavailable.
type DomainManager struct {
	pool *Pool
	log  *logging.Logger

	activationTimeout time.Duration
	idleTimeouts      config.TierTimeouts
	tierOverrides     map[string]cdp.RiskTier
	sweepInterval     time.Duration

	mu      sync.Mutex
	domains map[string]*domainEntry

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewDomainManager wires a manager over the pool. Call Start to run the
// background sweeper.
func NewDomainManager(pool *Pool, cfg config.DomainConfig, activationTimeout time.Duration, log *logging.Logger) *DomainManager {
	return &DomainManager{
		pool:              pool,
		log:               log,
		activationTimeout: activationTimeout,
		idleTimeouts:      cfg.IdleTimeouts,
		tierOverrides:     cfg.Tiers,
		sweepInterval:     cfg.SweepInterval,
		domains:           make(map[string]*domainEntry),
		stop:              make(chan struct{}),
		done:              make(chan struct{}),
	}
}

// Start launches the background sweeper.
func (m *DomainManager) Start() {
	go m.sweepLoop()
}

// Stop halts the sweeper and waits for it to exit.
func (m *DomainManager) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
	<-m.done
}

// Ensure activates a domain if it is not already active. Idempotent: an
// Active domain just has its idle clock refreshed. Activation is issued on
// every live connection; any failure rolls the whole domain back and returns
// a DomainError.
func (m *DomainManager) Ensure(ctx context.Context, domain string) error {
	entry := m.entryFor(domain)

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.state == cdp.DomainActive {
		entry.lastUsed = time.Now()
		return nil
	}

	entry.state = cdp.DomainActivating
	m.log.DomainTransition(domain, cdp.DomainDisabled.String(), cdp.DomainActivating.String())

	if err := m.applyAll(ctx, domain, true); err != nil {
		// Roll back: best-effort disable everywhere so no connection is left
		// with the domain half-enabled.
		_ = m.applyAll(context.Background(), domain, false)
		entry.state = cdp.DomainDisabled
		m.log.DomainTransition(domain, cdp.DomainActivating.String(), cdp.DomainDisabled.String())
		metrics.DomainActivations.WithLabelValues(domain, "failure").Inc()
		return &cdp.DomainError{Domain: domain, Err: err}
	}

	entry.state = cdp.DomainActive
	entry.lastUsed = time.Now()
	m.log.DomainTransition(domain, cdp.DomainActivating.String(), cdp.DomainActive.String())
	metrics.DomainActivations.WithLabelValues(domain, "success").Inc()
	metrics.ActiveDomains.Inc()
	return nil
}

// Touch refreshes a domain's idle clock without activating it.
func (m *DomainManager) Touch(domain string) {
	m.mu.Lock()
	entry, ok := m.domains[domain]
	m.mu.Unlock()
	if !ok {
		return
	}

	entry.mu.Lock()
	if entry.state == cdp.DomainActive {
		entry.lastUsed = time.Now()
	}
	entry.mu.Unlock()
}

// Active returns the names of all currently active domains.
func (m *DomainManager) Active() []string {
	m.mu.Lock()
	entries := make(map[string]*domainEntry, len(m.domains))
	for name, entry := range m.domains {
		entries[name] = entry
	}
	m.mu.Unlock()

	var active []string
	for name, entry := range entries {
		entry.mu.Lock()
		if entry.state == cdp.DomainActive {
			active = append(active, name)
		}
		entry.mu.Unlock()
	}
	return active
}

// Snapshot reports every known domain's state for diagnostics.
func (m *DomainManager) Snapshot() []DomainStatus {
	m.mu.Lock()
	entries := make(map[string]*domainEntry, len(m.domains))
	for name, entry := range m.domains {
		entries[name] = entry
	}
	m.mu.Unlock()

	statuses := make([]DomainStatus, 0, len(entries))
	for name, entry := range entries {
		entry.mu.Lock()
		statuses = append(statuses, DomainStatus{
			Name:     name,
			State:    entry.state.String(),
			Tier:     entry.tier,
			LastUsed: entry.lastUsed,
		})
		entry.mu.Unlock()
	}
	return statuses
}

// Replay enables the currently active domain set on a single fresh
// connection. The pool calls this before a reconnected socket turns idle so
// it never holds a connection with inconsistent domain state.
func (m *DomainManager) Replay(ctx context.Context, conn *transport.Conn) error {
	for _, domain := range m.Active() {
		if _, err := conn.SendAndAwait(ctx, domain+".enable", nil); err != nil {
			return fmt.Errorf("replaying %s: %w", domain, err)
		}
	}
	return nil
}

// sweepLoop deactivates domains whose idle time exceeds their tier timeout.
func (m *DomainManager) sweepLoop() {
	defer close(m.done)

	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.sweep()
		case <-m.stop:
			return
		}
	}
}

func (m *DomainManager) sweep() {
	m.mu.Lock()
	entries := make(map[string]*domainEntry, len(m.domains))
	for name, entry := range m.domains {
		entries[name] = entry
	}
	m.mu.Unlock()

	now := time.Now()
	for name, entry := range entries {
		entry.mu.Lock()
		if entry.state != cdp.DomainActive || now.Sub(entry.lastUsed) < m.idleTimeouts.For(entry.tier) {
			entry.mu.Unlock()
			continue
		}

		entry.state = cdp.DomainDeactivating
		m.log.DomainTransition(name, cdp.DomainActive.String(), cdp.DomainDeactivating.String())

		ctx, cancel := context.WithTimeout(context.Background(), m.activationTimeout)
		if err := m.applyAll(ctx, name, false); err != nil {
			m.log.Warn("deactivation incomplete", "domain", name, "error", err)
		}
		cancel()

		entry.state = cdp.DomainDisabled
		m.log.DomainTransition(name, cdp.DomainDeactivating.String(), cdp.DomainDisabled.String())
		metrics.DomainSweeps.WithLabelValues(name).Inc()
		metrics.ActiveDomains.Dec()
		entry.mu.Unlock()
	}
}

// applyAll issues the enable or disable command for a domain on every live
// connection, all-or-nothing. Errors from individual connections are joined
// by the errgroup; transport-dead connections are skipped (the pool replaces
// them, and replay restores domain state on the replacement).
func (m *DomainManager) applyAll(ctx context.Context, domain string, enable bool) error {
	method := domain + ".disable"
	if enable {
		method = domain + ".enable"
	}

	conns := m.pool.Live()
	g, gctx := errgroup.WithContext(ctx)
	for _, conn := range conns {
		conn := conn
		g.Go(func() error {
			cmdCtx, cancel := context.WithTimeout(gctx, m.activationTimeout)
			defer cancel()
			_, err := conn.SendAndAwait(cmdCtx, method, nil)
			switch {
			case err == nil:
				return nil
			case errors.Is(err, cdp.ErrTransportDead):
				// The pool retires dead connections, and replay restores
				// domain state on the replacement.
				return nil
			case cdp.IsProtocolError(err) && !enable:
				// Some domains reject disable when not enabled; harmless
				// during rollback.
				return nil
			}
			return err
		})
	}
	return g.Wait()
}

func (m *DomainManager) entryFor(domain string) *domainEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.domains[domain]
	if !ok {
		entry = &domainEntry{
			state: cdp.DomainDisabled,
			tier:  cdp.TierFor(domain, m.tierOverrides),
		}
		m.domains[domain] = entry
	}
	return entry
}

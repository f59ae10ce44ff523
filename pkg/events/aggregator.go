package events

import (
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/odvcencio/cdpbridge/pkg/metrics"
)

// Filter selects records from a domain buffer. Zero values mean "no
// constraint" except Limit, where 0 means unlimited.
type Filter struct {
	// MinLevel drops records below this severity.
	MinLevel Severity
	// Pattern, when non-empty, keeps records whose method or payload
	// contains the substring.
	Pattern string
	// Since, when non-zero, keeps records received at or after this time.
	Since time.Time
	// Limit caps the number of returned records.
	Limit int
	// OldestFirst returns records in receipt order instead of the default
	// most-recent-first.
	OldestFirst bool
}

// Aggregator merges the unsolicited event streams of every pooled connection
// into one domain-partitioned store. Storage is never partitioned by which
// connection observed an event; a query sees the same result no matter how
// the pool is scheduled.
type Aggregator struct {
	mu       sync.RWMutex
	buffers  map[string]*Buffer
	capacity int
	hub      *Hub
}

// NewAggregator creates an aggregator whose per-domain buffers hold up to
// capacity records each. hub may be nil when no live subscribers are wanted.
func NewAggregator(capacity int, hub *Hub) *Aggregator {
	if capacity < 1 {
		capacity = 1
	}
	return &Aggregator{
		buffers:  make(map[string]*Buffer),
		capacity: capacity,
		hub:      hub,
	}
}

// Ingest stores one unsolicited event. Called from every connection's read
// loop; per-source ordering is preserved because each loop ingests
// sequentially.
func (a *Aggregator) Ingest(method string, params json.RawMessage, sourceConn string) {
	domain := methodDomain(method)
	now := time.Now()

	rec := Record{
		ID:         newRecordID(now),
		Domain:     domain,
		Method:     method,
		Params:     params,
		Level:      severityOf(method, params),
		ReceivedAt: now,
		SourceConn: sourceConn,
	}

	evicted := a.bufferFor(domain).Append(rec)

	metrics.EventsIngested.WithLabelValues(domain).Inc()
	if evicted {
		metrics.EventsEvicted.WithLabelValues(domain).Inc()
	}

	if a.hub != nil {
		a.hub.Publish(rec)
	}
}

// Query returns buffered records for a domain matching the filter. The
// buffer is never mutated by a query. An unknown domain yields an empty
// result, not an error; history must survive a failed re-activation.
func (a *Aggregator) Query(domain string, filter Filter) []Record {
	a.mu.RLock()
	buf, ok := a.buffers[domain]
	a.mu.RUnlock()
	if !ok {
		return nil
	}

	snapshot := buf.Snapshot()
	matched := make([]Record, 0, len(snapshot))
	for _, rec := range snapshot {
		if rec.Level < filter.MinLevel {
			continue
		}
		if !filter.Since.IsZero() && rec.ReceivedAt.Before(filter.Since) {
			continue
		}
		if filter.Pattern != "" && !matchesPattern(rec, filter.Pattern) {
			continue
		}
		matched = append(matched, rec)
	}

	// Snapshot order is receipt order per buffer; cross-connection ordering
	// is best-effort by timestamp, so sort on the receipt time.
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].ReceivedAt.Before(matched[j].ReceivedAt)
	})

	if !filter.OldestFirst {
		for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
			matched[i], matched[j] = matched[j], matched[i]
		}
	}

	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched
}

// Clear drops every buffered record for a domain. Distinct from capacity
// eviction; a cleared domain keeps accepting new events.
func (a *Aggregator) Clear(domain string) {
	a.mu.RLock()
	buf, ok := a.buffers[domain]
	a.mu.RUnlock()
	if ok {
		buf.Clear()
	}
}

// Domains returns the names of all domains that have buffered events.
func (a *Aggregator) Domains() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	names := make([]string, 0, len(a.buffers))
	for name := range a.buffers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Fill reports per-domain buffer occupancy for diagnostics.
func (a *Aggregator) Fill() map[string]int {
	a.mu.RLock()
	defer a.mu.RUnlock()

	fill := make(map[string]int, len(a.buffers))
	for name, buf := range a.buffers {
		fill[name] = buf.Len()
	}
	return fill
}

func (a *Aggregator) bufferFor(domain string) *Buffer {
	a.mu.RLock()
	buf, ok := a.buffers[domain]
	a.mu.RUnlock()
	if ok {
		return buf
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if buf, ok = a.buffers[domain]; ok {
		return buf
	}
	buf = NewBuffer(a.capacity)
	a.buffers[domain] = buf
	return buf
}

func matchesPattern(rec Record, pattern string) bool {
	if strings.Contains(rec.Method, pattern) {
		return true
	}
	return strings.Contains(string(rec.Params), pattern)
}

func methodDomain(method string) string {
	if i := strings.IndexByte(method, '.'); i > 0 {
		return method[:i]
	}
	return method
}

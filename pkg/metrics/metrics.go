// Package metrics exposes Prometheus collectors for the bridge.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Command metrics
	CommandsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cdpbridge",
			Subsystem: "command",
			Name:      "dispatched_total",
			Help:      "Total number of protocol commands dispatched",
		},
		[]string{"domain"},
	)

	CommandFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cdpbridge",
			Subsystem: "command",
			Name:      "failures_total",
			Help:      "Total number of failed dispatches by error kind",
		},
		[]string{"domain", "kind"},
	)

	CommandLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cdpbridge",
			Subsystem: "command",
			Name:      "latency_seconds",
			Help:      "Round-trip latency from send to correlated reply",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"domain"},
	)

	// Pool metrics
	PoolAcquireWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "cdpbridge",
			Subsystem: "pool",
			Name:      "acquire_wait_seconds",
			Help:      "Time callers spent waiting for an idle connection",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
	)

	PoolExhaustions = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "cdpbridge",
			Subsystem: "pool",
			Name:      "exhaustions_total",
			Help:      "Acquire attempts that timed out with no idle connection",
		},
	)

	PoolConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "cdpbridge",
			Subsystem: "pool",
			Name:      "connections",
			Help:      "Pooled connections by state",
		},
		[]string{"state"},
	)

	PoolReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "cdpbridge",
			Subsystem: "pool",
			Name:      "reconnects_total",
			Help:      "Dead connections replaced by a fresh socket",
		},
	)

	// Domain metrics
	DomainActivations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cdpbridge",
			Subsystem: "domain",
			Name:      "activations_total",
			Help:      "Domain activations by outcome",
		},
		[]string{"domain", "outcome"},
	)

	DomainSweeps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cdpbridge",
			Subsystem: "domain",
			Name:      "sweeps_total",
			Help:      "Idle domains deactivated by the background sweeper",
		},
		[]string{"domain"},
	)

	ActiveDomains = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "cdpbridge",
			Subsystem: "domain",
			Name:      "active",
			Help:      "Number of currently active protocol domains",
		},
	)

	// Event metrics
	EventsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cdpbridge",
			Subsystem: "events",
			Name:      "ingested_total",
			Help:      "Unsolicited events ingested by the aggregator",
		},
		[]string{"domain"},
	)

	EventsEvicted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cdpbridge",
			Subsystem: "events",
			Name:      "evicted_total",
			Help:      "Events evicted from full buffers (drop-oldest)",
		},
		[]string{"domain"},
	)

	LateReplies = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "cdpbridge",
			Subsystem: "correlator",
			Name:      "late_replies_total",
			Help:      "Replies that arrived after their waiter timed out",
		},
	)
)

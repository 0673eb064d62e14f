package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EnqueuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hybridsync_enqueued_total",
			Help: "Events accepted by intake, by outcome (queued or reused)",
		},
		[]string{"outcome"},
	)

	DispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hybridsync_dispatch_total",
			Help: "Dispatched entries by ledger, module and outcome",
		},
		[]string{"ledger", "module", "outcome"},
	)

	DispatchHaltedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hybridsync_dispatch_halted_total",
			Help: "Dispatch cycles stopped early because the transport was unavailable",
		},
	)

	DeliveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hybridsync_delivery_duration_seconds",
			Help:    "Transport delivery duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"ledger"},
	)

	ResolvedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hybridsync_resolved_total",
			Help: "Entries resolved manually by operators",
		},
		[]string{"ledger"},
	)

	Backlog = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hybridsync_backlog",
			Help: "Entries per ledger and status at the last summary",
		},
		[]string{"ledger", "status"},
	)

	UnmappedNamespaceTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hybridsync_unmapped_namespace_total",
			Help: "Events accepted at intake whose namespace resolved to the general module",
		},
	)

	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hybridsync_transport_breaker_state",
			Help: "Transport circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"name"},
	)
)

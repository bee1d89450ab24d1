// Package metrics holds the prometheus collectors shared across features.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// AdmissionDecisions counts admission checks by outcome.
// Outcome is "allowed", "denied" or "error".
var AdmissionDecisions = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "gometer_admission_decisions_total",
		Help: "Total number of admission checks by outcome",
	},
	[]string{"outcome"},
)

// WindowStoreDuration observes window store round-trip latency.
var WindowStoreDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "gometer_window_store_duration_seconds",
		Help:    "Latency of sliding-window store transactions",
		Buckets: prometheus.DefBuckets,
	},
)

// MeteredTokens counts metered tokens by kind ("prompt" or "completion").
var MeteredTokens = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "gometer_metered_tokens_total",
		Help: "Total number of tokens metered",
	},
	[]string{"kind"},
)

// MeteredCostCents accumulates the total billed cost in cents.
var MeteredCostCents = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "gometer_metered_cost_cents_total",
		Help: "Total metered cost in cents",
	},
)

// UsageEventsRecorded counts assembled usage events by result ("success"
// or "failure" of the metered upstream call).
var UsageEventsRecorded = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "gometer_usage_events_recorded_total",
		Help: "Total number of usage events recorded",
	},
	[]string{"result"},
)

// UsageEventsDropped counts events discarded because the async write buffer
// was full.
var UsageEventsDropped = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "gometer_usage_events_dropped_total",
		Help: "Total number of usage events dropped due to a full buffer",
	},
)

// UsagePartialWrites counts MongoDB batch inserts that only partially
// succeeded. A nonzero rate means events were lost.
var UsagePartialWrites = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "gometer_usage_partial_write_failures_total",
		Help: "Total number of partial batch inserts of usage events",
	},
)

// ObserveWindowStore records one window store transaction duration.
func ObserveWindowStore(start time.Time) {
	WindowStoreDuration.Observe(time.Since(start).Seconds())
}

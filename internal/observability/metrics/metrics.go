// Package metrics exposes the engine's domain counters on the
// Prometheus default registry, scraped via /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes application-level instruments.
type Metrics struct {
	EventsRecorded   *prometheus.CounterVec
	EventsRejected   *prometheus.CounterVec
	LedgersComputed  *prometheus.CounterVec
	FlagsRaised      *prometheus.CounterVec
	BatchTransitions *prometheus.CounterVec
	ExportsGenerated *prometheus.CounterVec
	CalculationRuns  prometheus.Histogram
}

// New registers the domain instruments on the default registry. Safe
// to call once per process.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the instruments on the given registerer. Tests use
// a fresh prometheus.NewRegistry per service under test.
func NewWith(r prometheus.Registerer) *Metrics {
	factory := promauto.With(r)
	return &Metrics{
		EventsRecorded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "finledger",
			Name:      "events_recorded_total",
			Help:      "Financial events accepted by the event store.",
		}, []string{"type", "source_system"}),
		EventsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "finledger",
			Name:      "events_rejected_total",
			Help:      "Financial events rejected at validation.",
		}, []string{"reason"}),
		LedgersComputed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "finledger",
			Name:      "ledgers_computed_total",
			Help:      "Monthly ledgers produced by the calculator.",
		}, []string{"payout_status"}),
		FlagsRaised: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "finledger",
			Name:      "flags_raised_total",
			Help:      "Anomaly flags raised during calculation.",
		}, []string{"rule", "severity"}),
		BatchTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "finledger",
			Name:      "batch_transitions_total",
			Help:      "Payout batch state transitions.",
		}, []string{"to_status"}),
		ExportsGenerated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "finledger",
			Name:      "exports_generated_total",
			Help:      "Payment instruction documents rendered.",
		}, []string{"format"}),
		CalculationRuns: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "finledger",
			Name:      "calculation_run_seconds",
			Help:      "Duration of monthly ledger calculation runs.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// Package monitoring bundles the Prometheus collectors for the price-lookup
// gate and the estimator client. All methods are nil-safe so instrumentation
// can be dropped in tests and one-shot CLI commands.
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Gate decision outcomes used as the label of the decisions counter.
const (
	DecisionCacheHit          = "cache_hit"
	DecisionInvalidated       = "cache_invalidated"
	DecisionRateLimited       = "rate_limited"
	DecisionFresh             = "fresh_lookup"
	DecisionNotSaved          = "not_saved"
	DecisionUnavailable       = "estimator_unavailable"
	DecisionContractViolation = "contract_violation"
)

// Metrics holds the collectors on a dedicated registry.
type Metrics struct {
	Registry          *prometheus.Registry
	DecisionsTotal    *prometheus.CounterVec
	EstimatorDuration prometheus.Histogram
	EstimatorTokens   *prometheus.CounterVec
}

// NewMetrics constructs and registers all collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	decisions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "puzzledex_gate_decisions_total",
			Help: "Price-lookup gate outcomes by decision.",
		},
		[]string{"decision"},
	)
	estimatorDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "puzzledex_estimator_duration_seconds",
			Help:    "Wall-clock latency of estimator calls.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		},
	)
	estimatorTokens := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "puzzledex_estimator_tokens_total",
			Help: "Tokens consumed by estimator calls, by direction.",
		},
		[]string{"direction"},
	)

	registry.MustRegister(decisions, estimatorDuration, estimatorTokens)

	return &Metrics{
		Registry:          registry,
		DecisionsTotal:    decisions,
		EstimatorDuration: estimatorDuration,
		EstimatorTokens:   estimatorTokens,
	}
}

// IncDecision counts one gate outcome.
func (m *Metrics) IncDecision(decision string) {
	if m == nil {
		return
	}
	m.DecisionsTotal.WithLabelValues(decision).Inc()
}

// ObserveEstimator records one estimator call duration.
func (m *Metrics) ObserveEstimator(d time.Duration) {
	if m == nil {
		return
	}
	m.EstimatorDuration.Observe(d.Seconds())
}

// AddTokens accumulates token usage for a direction ("input" or "output").
func (m *Metrics) AddTokens(direction string, n int64) {
	if m == nil {
		return
	}
	m.EstimatorTokens.WithLabelValues(direction).Add(float64(n))
}

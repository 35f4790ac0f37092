package ratelimit

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics implements RateLimitMetrics with Prometheus collectors.
type PrometheusMetrics struct {
	// decisionsTotal counts checks by scope and outcome (allowed, denied, fail_open).
	decisionsTotal *prometheus.CounterVec

	// checkDuration tracks the latency of store round trips.
	// Buckets target sub-millisecond Redis calls and flag anything past 50ms.
	checkDuration *prometheus.HistogramVec

	// circuitState is 1 for the store's current breaker state and 0 for the others.
	circuitState *prometheus.GaugeVec
}

// NewPrometheusMetrics registers the rate limit collectors with reg.
// Pass prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	factory := promauto.With(reg)

	return &PrometheusMetrics{
		decisionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notification_rate_limit_decisions_total",
				Help: "Rate limit decisions by scope and outcome",
			},
			[]string{"scope", "outcome"},
		),
		checkDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "notification_rate_limit_check_duration_seconds",
				Help:    "Duration of rate limit store checks",
				Buckets: []float64{0.0005, 0.001, 0.002, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
			},
			[]string{"scope"},
		),
		circuitState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "notification_rate_limit_circuit_state",
				Help: "Rate limit store circuit breaker state (1 for the current state)",
			},
			[]string{"store", "state"},
		),
	}
}

// RecordAllowed increments the allowed counter.
func (m *PrometheusMetrics) RecordAllowed(scope string) {
	m.decisionsTotal.WithLabelValues(scope, "allowed").Inc()
}

// RecordDenied increments the denied counter.
func (m *PrometheusMetrics) RecordDenied(scope string) {
	m.decisionsTotal.WithLabelValues(scope, "denied").Inc()
}

// RecordFailOpen increments the fail-open counter.
func (m *PrometheusMetrics) RecordFailOpen(scope string) {
	m.decisionsTotal.WithLabelValues(scope, "fail_open").Inc()
}

// RecordCheckDuration observes a store round trip.
func (m *PrometheusMetrics) RecordCheckDuration(scope string, duration time.Duration) {
	m.checkDuration.WithLabelValues(scope).Observe(duration.Seconds())
}

// RecordCircuitState marks state as current for store.
func (m *PrometheusMetrics) RecordCircuitState(store string, state string) {
	for _, s := range []string{"closed", "half-open", "open"} {
		v := 0.0
		if s == state {
			v = 1
		}
		m.circuitState.WithLabelValues(store, s).Set(v)
	}
}

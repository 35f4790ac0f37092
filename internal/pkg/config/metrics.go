package config

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics reports how a component's configuration was loaded:
//   - <component>_config_load_timestamp
//   - <component>_config_fallbacks_total{field}
//   - <component>_config_fallback_active
type Metrics struct {
	LoadTimestamp  prometheus.Gauge
	FallbacksTotal *prometheus.CounterVec
	FallbackActive prometheus.Gauge
}

// NewMetrics registers the collectors on reg under the component prefix.
func NewMetrics(reg prometheus.Registerer, component string) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		LoadTimestamp: f.NewGauge(prometheus.GaugeOpts{
			Name: component + "_config_load_timestamp",
			Help: "Unix timestamp of the last " + component + " configuration load",
		}),
		FallbacksTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: component + "_config_fallbacks_total",
			Help: "Configuration values of " + component + " replaced by their default",
		}, []string{"field"}),
		FallbackActive: f.NewGauge(prometheus.GaugeOpts{
			Name: component + "_config_fallback_active",
			Help: "1 if any " + component + " configuration value fell back to its default",
		}),
	}
}

// RecordFallback counts a fallback for field.
func (m *Metrics) RecordFallback(field string) {
	m.FallbacksTotal.WithLabelValues(field).Inc()
}

// Loaded stamps the load time and publishes whether any fallback happened.
func (m *Metrics) Loaded(fallbackApplied bool) {
	m.LoadTimestamp.SetToCurrentTime()
	if fallbackApplied {
		m.FallbackActive.Set(1)
	} else {
		m.FallbackActive.Set(0)
	}
}

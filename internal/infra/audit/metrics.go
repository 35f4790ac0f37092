package audit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	publishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_events_published_total",
			Help: "Audit events accepted into the queue",
		},
		[]string{"event_type"},
	)

	droppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_events_dropped_total",
			Help: "Audit events that were not persisted",
		},
		[]string{"reason"}, // reason: queue_full|closed|store_error
	)

	writtenTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_events_written_total",
			Help: "Audit events persisted to the audit repository",
		},
	)
)

package batch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	flushesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_writer_flushes_total",
			Help: "Total number of successful bulk flushes",
		},
		[]string{"writer", "trigger"}, // trigger: size|interval|shutdown
	)

	itemsFlushed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_writer_items_flushed_total",
			Help: "Total number of items persisted by the worker",
		},
		[]string{"writer"},
	)

	fallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_writer_fallbacks_total",
			Help: "Writes that left the batch path",
		},
		[]string{"writer", "reason"}, // reason: sync_overflow|sync_canceled|closed|per_item
	)

	batchSizes = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "batch_writer_batch_size",
			Help:    "Items per bulk write",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250},
		},
		[]string{"writer"},
	)

	flushDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "batch_writer_flush_duration_seconds",
			Help:    "Duration of bulk writes",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"writer"},
	)

	queueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "batch_writer_queue_depth",
			Help: "Items waiting in the batch queue",
		},
		[]string{"writer"},
	)
)

package delivery

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"notification-dispatch/internal/domain/entity"
)

var (
	// deliveriesTotal counts terminal delivery outcomes.
	deliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_deliveries_total",
			Help: "Total number of notifications that reached a terminal delivery state",
		},
		[]string{"channel", "provider", "outcome"}, // outcome: sent|failed
	)

	deliveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notification_delivery_duration_seconds",
			Help:    "Time from delivery start to terminal state in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 120},
		},
		[]string{"channel", "provider"},
	)

	deliveryRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_delivery_retries_total",
			Help: "Total number of provider send retries",
		},
		[]string{"channel", "provider", "reason"}, // reason: error|circuit_open
	)

	// deliveryRejectedTotal tracks async tasks the executor could not accept.
	deliveryRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_delivery_rejected_total",
			Help: "Total number of async deliveries rejected by the executor",
		},
		[]string{"executor", "reason"}, // reason: queue_full|closed
	)

	executorActiveTasks = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "notification_executor_active_tasks",
			Help: "Number of delivery tasks currently running",
		},
		[]string{"executor"},
	)

	executorQueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "notification_executor_queue_depth",
			Help: "Number of delivery tasks waiting for a worker",
		},
		[]string{"executor"},
	)

	deviceTokensDeactivatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notification_device_tokens_deactivated_total",
			Help: "Total number of device tokens deactivated after provider rejection",
		},
	)
)

func providerLabel(p entity.ProviderType) string {
	if p == "" {
		return "none"
	}
	return string(p)
}

func recordOutcome(channel entity.Channel, provider entity.ProviderType, outcome string, elapsed time.Duration) {
	deliveriesTotal.WithLabelValues(string(channel), providerLabel(provider), outcome).Inc()
	deliveryDuration.WithLabelValues(string(channel), providerLabel(provider)).Observe(elapsed.Seconds())
}

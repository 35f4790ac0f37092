package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"notification-dispatch/internal/pkg/config"
)

// WorkerMetrics provides Prometheus metrics for the maintenance worker.
// Config holds the worker_config_* collectors. The expiry job adds:
//   - worker_expiry_job_runs_total{status}
//   - worker_expiry_job_duration_seconds
//   - worker_expired_notifications_total{channel}
//   - worker_expiry_job_last_success_timestamp
//
// Metrics are registered through promauto, so NewWorkerMetrics must be called
// once per process.
type WorkerMetrics struct {
	Config *config.Metrics

	JobRunsTotal            *prometheus.CounterVec
	JobDurationSeconds      prometheus.Histogram
	ExpiredTotal            *prometheus.CounterVec
	JobLastSuccessTimestamp prometheus.Gauge
}

// NewWorkerMetrics creates and registers the worker metrics.
func NewWorkerMetrics() *WorkerMetrics {
	return &WorkerMetrics{
		Config: config.NewMetrics(prometheus.DefaultRegisterer, "worker"),

		JobRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_expiry_job_runs_total",
			Help: "Total number of expiry job runs by status (started/success/failure)",
		}, []string{"status"}),

		JobDurationSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "worker_expiry_job_duration_seconds",
			Help:    "Duration of expiry job runs in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 30, 60, 300},
		}),

		ExpiredTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_expired_notifications_total",
			Help: "Notifications moved from PENDING to EXPIRED",
		}, []string{"channel"}),

		JobLastSuccessTimestamp: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "worker_expiry_job_last_success_timestamp",
			Help: "Unix timestamp of the last successful expiry run",
		}),
	}
}

// RecordJobRun increments the run counter for status.
func (m *WorkerMetrics) RecordJobRun(status string) {
	m.JobRunsTotal.WithLabelValues(status).Inc()
}

// RecordJobDuration observes a run duration in seconds.
func (m *WorkerMetrics) RecordJobDuration(seconds float64) {
	m.JobDurationSeconds.Observe(seconds)
}

// RecordExpired adds count to the expired counter of channel.
func (m *WorkerMetrics) RecordExpired(channel string, count int64) {
	if count > 0 {
		m.ExpiredTotal.WithLabelValues(channel).Add(float64(count))
	}
}

// RecordLastSuccess stamps the last successful run with the current time.
func (m *WorkerMetrics) RecordLastSuccess() {
	m.JobLastSuccessTimestamp.SetToCurrentTime()
}

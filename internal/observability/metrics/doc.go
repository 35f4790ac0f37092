// Package metrics provides the Prometheus metrics registry and recording utilities
// shared by the HTTP layer:
//   - HTTP request metrics (duration, count, size, in-flight)
//   - Business metrics (accepted and rejected notifications, device registrations)
//
// Delivery, breaker, rate limit and batch metrics live next to the code that
// produces them. Everything registers with the Prometheus default registry and
// is exposed via /metrics.
//
// Example usage:
//
//	import "notification-dispatch/internal/observability/metrics"
//
//	metrics.RecordNotificationAccepted("EMAIL", "async", 1)
package metrics

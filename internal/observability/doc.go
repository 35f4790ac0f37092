// Package observability groups the dispatcher's logging, metrics and tracing.
//
// Subpackages:
//   - logging: slog logger construction and request-scoped loggers
//   - metrics: HTTP and business Prometheus collectors
//   - tracing: OpenTelemetry provider setup and HTTP middleware
package observability

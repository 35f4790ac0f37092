// Package http wires the notification API: middleware, health checks and
// route registration.
package http

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"notification-dispatch/internal/handler/http/respond"
	"notification-dispatch/pkg/ratelimit"
)

// Check tests one dependency. A nil error means healthy.
type Check func(ctx context.Context) error

// HealthResponse represents the JSON response for health check endpoints.
type HealthResponse struct {
	Status    string                 `json:"status"`    // "healthy" or "unhealthy"
	Timestamp string                 `json:"timestamp"` // RFC 3339
	Checks    map[string]CheckStatus `json:"checks"`
	Version   string                 `json:"version"`
}

// CheckStatus represents the status of a single health check.
type CheckStatus struct {
	Status  string         `json:"status"` // "healthy", "degraded" or "unhealthy"
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

const (
	statusHealthy   = "healthy"
	statusDegraded  = "degraded"
	statusUnhealthy = "unhealthy"
)

// HealthHandler reports every dependency. The audit database is optional
// and only degrades the report.
type HealthHandler struct {
	// Checks are required dependencies such as mongo and redis.
	Checks map[string]Check

	// AuditDB is the Postgres audit log. Nil when auditing is disabled.
	AuditDB *sql.DB

	// RateLimit is reported for operators, never failing the check.
	RateLimit *ratelimit.Config

	Version string
}

// ServeHTTP returns 200 when every required check passes, 503 otherwise.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks, allHealthy := runChecks(ctx, h.Checks)

	if h.AuditDB != nil {
		checks["audit_database"] = checkDatabase(ctx, h.AuditDB)
	}
	if h.RateLimit != nil {
		checks["rate_limiter"] = CheckStatus{
			Status: statusHealthy,
			Details: map[string]any{
				"enabled":             h.RateLimit.Enabled,
				"global_limit":        h.RateLimit.GlobalLimit,
				"per_service_enabled": h.RateLimit.PerServiceEnabled,
				"service_limit":       h.RateLimit.ServiceLimit,
				"window_seconds":      int(h.RateLimit.Window.Seconds()),
			},
		}
	}

	status := statusHealthy
	code := http.StatusOK
	if !allHealthy {
		status = statusUnhealthy
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	respond.JSON(w, code, HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
		Version:   h.Version,
	})
}

func runChecks(ctx context.Context, checks map[string]Check) (map[string]CheckStatus, bool) {
	out := make(map[string]CheckStatus, len(checks)+2)
	healthy := true
	for name, check := range checks {
		if err := check(ctx); err != nil {
			out[name] = CheckStatus{Status: statusUnhealthy, Message: err.Error()}
			healthy = false
			continue
		}
		out[name] = CheckStatus{Status: statusHealthy}
	}
	return out, healthy
}

// checkDatabase pings db and reports pool statistics.
func checkDatabase(ctx context.Context, db *sql.DB) CheckStatus {
	if err := db.PingContext(ctx); err != nil {
		return CheckStatus{Status: statusUnhealthy, Message: err.Error()}
	}

	stats := db.Stats()
	details := map[string]any{
		"max_open_connections": stats.MaxOpenConnections,
		"open_connections":     stats.OpenConnections,
		"in_use":               stats.InUse,
		"idle":                 stats.Idle,
		"wait_count":           stats.WaitCount,
		"wait_duration_ms":     stats.WaitDuration.Milliseconds(),
	}

	if stats.MaxOpenConnections == 0 {
		return CheckStatus{
			Status:  statusDegraded,
			Message: "connection pool max connections not configured",
			Details: details,
		}
	}

	utilization := float64(stats.InUse) / float64(stats.MaxOpenConnections) * 100
	details["utilization_percent"] = utilization
	if utilization >= 80.0 {
		return CheckStatus{
			Status:  statusDegraded,
			Message: "connection pool utilization above 80%",
			Details: details,
		}
	}
	return CheckStatus{Status: statusHealthy, Details: details}
}

// ReadyHandler answers readiness checks. Every check must pass.
type ReadyHandler struct {
	Checks map[string]Check
}

// ServeHTTP returns 200 "ready" or 503 naming the first failing dependencies.
func (h *ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	statuses, ok := runChecks(ctx, h.Checks)
	if !ok {
		failing := make([]string, 0, len(statuses))
		for name, st := range statuses {
			if st.Status != statusHealthy {
				failing = append(failing, name)
			}
		}
		sort.Strings(failing)
		slog.Warn("readiness check failed", slog.Any("dependencies", failing))
		respond.JSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":  "not ready",
			"failing": failing,
			"checks":  statuses,
		})
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ready")); err != nil {
		slog.Debug("ready: failed to write response", slog.Any("error", err))
	}
}

// LiveHandler answers liveness checks and always returns 200.
type LiveHandler struct{}

func (h *LiveHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("alive")); err != nil {
		slog.Debug("alive: failed to write response", slog.Any("error", err))
	}
}

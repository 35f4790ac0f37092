package http

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notification-dispatch/pkg/ratelimit"
)

func okCheck(context.Context) error { return nil }

func failingCheck(context.Context) error { return errors.New("connection refused") }

func TestHealthHandler_ServeHTTP(t *testing.T) {
	tests := []struct {
		name           string
		checks         map[string]Check
		expectedStatus int
		expectHealthy  bool
	}{
		{
			name:           "all dependencies healthy",
			checks:         map[string]Check{"mongo": okCheck, "redis": okCheck},
			expectedStatus: http.StatusOK,
			expectHealthy:  true,
		},
		{
			name:           "redis down",
			checks:         map[string]Check{"mongo": okCheck, "redis": failingCheck},
			expectedStatus: http.StatusServiceUnavailable,
			expectHealthy:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := &HealthHandler{Checks: tt.checks, Version: "test-version"}

			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.expectedStatus, rec.Code)

			var response HealthResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
			if tt.expectHealthy {
				assert.Equal(t, "healthy", response.Status)
			} else {
				assert.Equal(t, "unhealthy", response.Status)
				assert.Equal(t, "connection refused", response.Checks["redis"].Message)
			}
			assert.Equal(t, "test-version", response.Version)
			assert.NotEmpty(t, response.Timestamp)
		})
	}
}

func TestHealthHandler_AuditDatabaseDoesNotFailHealth(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	mock.ExpectPing().WillReturnError(sql.ErrConnDone)

	handler := &HealthHandler{Checks: map[string]Check{"mongo": okCheck}, AuditDB: db}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var response HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
	assert.Equal(t, "unhealthy", response.Checks["audit_database"].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHealthHandler_AuditDatabasePoolStats(t *testing.T) {
	tests := []struct {
		name       string
		maxOpen    int
		wantStatus string
	}{
		{name: "pool configured", maxOpen: 10, wantStatus: "healthy"},
		{name: "pool unbounded", maxOpen: 0, wantStatus: "degraded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
			require.NoError(t, err)
			defer func() { _ = db.Close() }()
			db.SetMaxOpenConns(tt.maxOpen)
			mock.ExpectPing()

			status := checkDatabase(context.Background(), db)
			assert.Equal(t, tt.wantStatus, status.Status)
			assert.Contains(t, status.Details, "open_connections")
		})
	}
}

func TestHealthHandler_ReportsRateLimitConfig(t *testing.T) {
	cfg := ratelimit.DefaultConfig()
	handler := &HealthHandler{RateLimit: &cfg}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var response HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
	details := response.Checks["rate_limiter"].Details
	assert.Equal(t, float64(1000), details["global_limit"])
	assert.Equal(t, float64(60), details["window_seconds"])
}

func TestHealthHandler_CacheControl(t *testing.T) {
	handler := &HealthHandler{}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, "no-cache, no-store, must-revalidate", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestReadyHandler_ServeHTTP(t *testing.T) {
	tests := []struct {
		name           string
		checks         map[string]Check
		expectedStatus int
		expectedBody   string
	}{
		{
			name:           "ready",
			checks:         map[string]Check{"mongo": okCheck, "redis": okCheck},
			expectedStatus: http.StatusOK,
			expectedBody:   "ready",
		},
		{
			name:           "mongo not ready",
			checks:         map[string]Check{"mongo": failingCheck, "redis": okCheck},
			expectedStatus: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := &ReadyHandler{Checks: tt.checks}

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

			assert.Equal(t, tt.expectedStatus, rec.Code)
			if tt.expectedBody != "" {
				assert.Equal(t, tt.expectedBody, rec.Body.String())
			} else {
				assert.Contains(t, rec.Body.String(), `"mongo"`)
			}
		})
	}
}

func TestReadyHandler_Timeout(t *testing.T) {
	slow := func(ctx context.Context) error {
		select {
		case <-time.After(3 * time.Second):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	handler := &ReadyHandler{Checks: map[string]Check{"postgres": slow}}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestLiveHandler_ServeHTTP(t *testing.T) {
	handler := &LiveHandler{}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/live", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alive", rec.Body.String())
	assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))
}

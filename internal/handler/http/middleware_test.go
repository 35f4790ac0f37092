package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"notification-dispatch/internal/handler/http/requestid"
	"notification-dispatch/internal/observability/logging"
)

func TestLogging(t *testing.T) {
	tests := []struct {
		name           string
		method         string
		path           string
		expectedStatus int
		expectedLevel  string
	}{
		{
			name:           "accepted async send",
			method:         http.MethodPost,
			path:           "/api/v1/notification/email/send/async",
			expectedStatus: http.StatusAccepted,
			expectedLevel:  "INFO",
		},
		{
			name:           "status lookup not found",
			method:         http.MethodGet,
			path:           "/api/v1/notification/email/status/missing",
			expectedStatus: http.StatusNotFound,
			expectedLevel:  "INFO",
		},
		{
			name:           "provider failure",
			method:         http.MethodPost,
			path:           "/api/v1/notification/push/send",
			expectedStatus: http.StatusBadGateway,
			expectedLevel:  "ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&buf, nil))

			handler := requestid.Middleware(Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				logging.FromContext(r.Context()).Info("inside handler")
				w.WriteHeader(tt.expectedStatus)
				_, _ = w.Write([]byte("response body"))
			})))

			req := httptest.NewRequest(tt.method, tt.path, nil)
			req.Header.Set(requestid.RequestIDHeader, "req-abc")
			req.Header.Set("X-Service-Id", "billing")
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.expectedStatus {
				t.Errorf("got status %d, want %d", rr.Code, tt.expectedStatus)
			}

			lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
			if len(lines) != 2 {
				t.Fatalf("expected 2 log lines, got %d: %s", len(lines), buf.String())
			}

			var inner, entry map[string]any
			if err := json.Unmarshal([]byte(lines[0]), &inner); err != nil {
				t.Fatal(err)
			}
			if err := json.Unmarshal([]byte(lines[1]), &entry); err != nil {
				t.Fatal(err)
			}
			if inner["request_id"] != "req-abc" {
				t.Errorf("handler logger missing request_id: %v", inner)
			}
			if entry["level"] != tt.expectedLevel {
				t.Errorf("level = %v, want %s", entry["level"], tt.expectedLevel)
			}
			if entry["service_id"] != "billing" {
				t.Errorf("service_id = %v, want billing", entry["service_id"])
			}
			if entry["status"] != float64(tt.expectedStatus) {
				t.Errorf("status = %v, want %d", entry["status"], tt.expectedStatus)
			}
		})
	}
}

func TestRecover(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	tests := []struct {
		name       string
		panicValue any
	}{
		{name: "panic with string", panicValue: "something went wrong"},
		{name: "panic with error", panicValue: fmt.Errorf("test error")},
		{name: "panic with number", panicValue: 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := Recover(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
				panic(tt.panicValue)
			}))

			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/test", nil))

			if rr.Code != http.StatusInternalServerError {
				t.Errorf("got status %d, want %d", rr.Code, http.StatusInternalServerError)
			}
			if !strings.Contains(rr.Body.String(), "internal server error") {
				t.Errorf("unexpected body %q", rr.Body.String())
			}
		})
	}
}

func TestRecover_NoPanic(t *testing.T) {
	handler := Recover(slog.Default())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/test", nil))

	if rr.Code != http.StatusOK {
		t.Errorf("got status %d, want %d", rr.Code, http.StatusOK)
	}
}

func TestLimitRequestBody(t *testing.T) {
	tests := []struct {
		name           string
		maxBytes       int64
		bodySize       int
		expectedStatus int
	}{
		{name: "small body within limit", maxBytes: 1024, bodySize: 512, expectedStatus: http.StatusOK},
		{name: "body exactly at limit", maxBytes: 1024, bodySize: 1024, expectedStatus: http.StatusOK},
		{name: "body exceeds limit", maxBytes: 100, bodySize: 200, expectedStatus: http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := LimitRequestBody(tt.maxBytes)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if _, err := io.ReadAll(r.Body); err != nil {
					w.WriteHeader(http.StatusRequestEntityTooLarge)
					return
				}
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(strings.Repeat("a", tt.bodySize)))
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.expectedStatus {
				t.Errorf("got status %d, want %d", rr.Code, tt.expectedStatus)
			}
		})
	}
}

func TestChain_Order(t *testing.T) {
	var order []string
	mark := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	}), mark("outer"), mark("inner"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if strings.Join(order, ",") != "outer,inner,handler" {
		t.Errorf("unexpected order %v", order)
	}
}

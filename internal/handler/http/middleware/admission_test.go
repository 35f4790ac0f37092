package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"notification-dispatch/internal/domain/entity"
	"notification-dispatch/internal/usecase/admission"
	"notification-dispatch/pkg/ratelimit"
)

type recordingAudit struct {
	mu     sync.Mutex
	events []entity.AuditEvent
}

func (r *recordingAudit) Publish(_ context.Context, ev entity.AuditEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func newTestAdmission(cfg ratelimit.Config) (*Admission, *recordingAudit) {
	store := ratelimit.NewInMemoryRateLimitStore(ratelimit.InMemoryStoreConfig{})
	audit := &recordingAudit{}
	return NewAdmission(admission.NewLimiter(cfg, store, nil, nil), audit), audit
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestAdmission_AllowsWithinLimitAndSetsHeaders(t *testing.T) {
	a, _ := newTestAdmission(ratelimit.Config{Enabled: true, PerServiceEnabled: true, GlobalLimit: 10, ServiceLimit: 5, Window: time.Minute})
	handler := a.Middleware(okHandler)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/notification/email/send", nil)
	req.Header.Set(ServiceIDHeader, "billing")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get(HeaderRemainingGlobal); got != "9" {
		t.Errorf("remaining global = %q, want 9", got)
	}
	if got := rec.Header().Get(HeaderRemainingService); got != "4" {
		t.Errorf("remaining service = %q, want 4", got)
	}
	if got := rec.Header().Get(HeaderRateLimitService); got != "billing" {
		t.Errorf("service header = %q, want billing", got)
	}
	if got := rec.Header().Get(HeaderRateLimitWindow); got != "60s" {
		t.Errorf("window header = %q, want 60s", got)
	}
}

func TestAdmission_RejectsOverServiceLimit(t *testing.T) {
	a, audit := newTestAdmission(ratelimit.Config{Enabled: true, PerServiceEnabled: true, GlobalLimit: 100, ServiceLimit: 2, Window: time.Minute})
	handler := a.Middleware(okHandler)

	var rec *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/notification/push/send", nil)
		req.Header.Set(ServiceIDHeader, "marketing")
		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
	}

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if got := rec.Header().Get(HeaderRetryAfter); got != "60" {
		t.Errorf("Retry-After = %q, want 60", got)
	}

	var body RateLimitResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Code != "RATE_LIMIT_EXCEEDED" || body.ServiceID != "marketing" {
		t.Errorf("unexpected body: %+v", body)
	}

	if len(audit.events) != 1 {
		t.Fatalf("expected one audit event, got %d", len(audit.events))
	}
	ev := audit.events[0]
	if ev.EventType != entity.AuditRateLimitExceeded || ev.EntityID != "marketing" {
		t.Errorf("unexpected audit event: %+v", ev)
	}
	if ev.Metadata["scope"] != ratelimit.ScopeService {
		t.Errorf("scope = %q, want %q", ev.Metadata["scope"], ratelimit.ScopeService)
	}
}

func TestAdmission_GlobalLimitAppliesAcrossServices(t *testing.T) {
	a, _ := newTestAdmission(ratelimit.Config{Enabled: true, PerServiceEnabled: true, GlobalLimit: 2, ServiceLimit: 10, Window: time.Minute})
	handler := a.Middleware(okHandler)

	codes := make([]int, 0, 3)
	for _, svc := range []string{"a", "b", "c"} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/notification/email/send", nil)
		req.Header.Set(ServiceIDHeader, svc)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("unexpected status sequence: %v", codes)
	}
}

func TestAdmission_DefaultServiceID(t *testing.T) {
	a, _ := newTestAdmission(ratelimit.DefaultConfig())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/notification/providers", nil)
	rec := httptest.NewRecorder()
	a.Middleware(okHandler).ServeHTTP(rec, req)

	if got := rec.Header().Get(HeaderRateLimitService); got != admission.DefaultServiceID {
		t.Errorf("service header = %q, want %q", got, admission.DefaultServiceID)
	}
}

func TestAdmission_SkipsOtherPaths(t *testing.T) {
	a, _ := newTestAdmission(ratelimit.Config{Enabled: true, GlobalLimit: 1, Window: time.Minute})
	handler := a.Middleware(okHandler)

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rec.Code)
		}
		if rec.Header().Get(HeaderRemainingGlobal) != "" {
			t.Fatal("rate limit headers set on unmanaged path")
		}
	}
}

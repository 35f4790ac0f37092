package tracing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// record installs an in-memory exporter, serves one request through mw and
// returns the finished spans.
func record(t *testing.T, mw func(http.Handler) http.Handler, status int, req *http.Request) (tracetest.SpanStubs, *httptest.ResponseRecorder) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() {
		otel.SetTracerProvider(sdktrace.NewTracerProvider())
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator())
	})

	rr := httptest.NewRecorder()
	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	})).ServeHTTP(rr, req)
	_ = tp.ForceFlush(context.Background())
	return exporter.GetSpans(), rr
}

func attr(span tracetest.SpanStub, key attribute.Key) (attribute.Value, bool) {
	for _, kv := range span.Attributes {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestMiddleware_CreatesSpan(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/notification/providers", nil)
	spans, rr := record(t, Middleware, http.StatusOK, req)

	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if span.Name != "GET /api/v1/notification/providers" {
		t.Errorf("span name = %q", span.Name)
	}
	if v, ok := attr(span, "http.method"); !ok || v.AsString() != "GET" {
		t.Errorf("http.method = %v", v)
	}
	if v, ok := attr(span, "http.path"); !ok || v.AsString() != "/api/v1/notification/providers" {
		t.Errorf("http.path = %v", v)
	}
	if v, ok := attr(span, "http.status_code"); !ok || v.AsInt64() != 200 {
		t.Errorf("http.status_code = %v", v)
	}

	traceID := rr.Header().Get(TraceIDHeader)
	if traceID != span.SpanContext.TraceID().String() {
		t.Errorf("X-Trace-Id = %q, want %q", traceID, span.SpanContext.TraceID())
	}
}

func TestMiddleware_PropagatesTraceContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/notification/providers", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	spans, _ := record(t, Middleware, http.StatusOK, req)

	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if got := spans[0].SpanContext.TraceID().String(); got != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("trace id = %s", got)
	}
	if got := spans[0].Parent.SpanID().String(); got != "00f067aa0ba902b7" {
		t.Errorf("parent span id = %s", got)
	}
}

func TestMiddleware_ErrorStatus(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantError bool
	}{
		{"5xx marks error", http.StatusServiceUnavailable, true},
		{"4xx is not an error", http.StatusNotFound, false},
		{"2xx is not an error", http.StatusAccepted, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/notification/email/send", nil)
			spans, _ := record(t, Middleware, tt.status, req)
			if len(spans) != 1 {
				t.Fatalf("expected 1 span, got %d", len(spans))
			}
			_, hasError := attr(spans[0], "error")
			if hasError != tt.wantError {
				t.Errorf("error attribute present = %v, want %v", hasError, tt.wantError)
			}
			if gotErr := spans[0].Status.Code == codes.Error; gotErr != tt.wantError {
				t.Errorf("status code = %v", spans[0].Status.Code)
			}
		})
	}
}

func TestMiddleware_RecordsServiceID(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/notification/email/send/async", nil)
	req.Header.Set(ServiceIDHeader, "billing")
	spans, _ := record(t, Middleware, http.StatusAccepted, req)

	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if v, ok := attr(spans[0], "notification.service_id"); !ok || v.AsString() != "billing" {
		t.Errorf("notification.service_id = %v", v)
	}
}

func TestNewMiddleware_CustomNamer(t *testing.T) {
	namer := func(r *http.Request) string {
		if strings.HasPrefix(r.URL.Path, "/api/v1/notification/status/") {
			return r.Method + " /api/v1/notification/status/:id"
		}
		return r.Method + " " + r.URL.Path
	}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/notification/status/abc123", nil)
	spans, _ := record(t, NewMiddleware(namer), http.StatusOK, req)

	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Name != "GET /api/v1/notification/status/:id" {
		t.Errorf("span name = %q", spans[0].Name)
	}
	if v, _ := attr(spans[0], "http.path"); v.AsString() != "/api/v1/notification/status/abc123" {
		t.Errorf("http.path should keep the raw path, got %q", v.AsString())
	}
}

func TestStatusRecorder_DefaultsAndCaptures(t *testing.T) {
	rw := &statusRecorder{ResponseWriter: httptest.NewRecorder(), status: http.StatusOK}
	rw.WriteHeader(http.StatusCreated)
	if rw.status != http.StatusCreated {
		t.Errorf("status = %d, want 201", rw.status)
	}
	if rw.Unwrap() == nil {
		t.Error("Unwrap returned nil")
	}
}

func TestInit_InstallsProviderAndPropagator(t *testing.T) {
	shutdown := Init(1.0)
	defer func() {
		_ = shutdown(context.Background())
		otel.SetTracerProvider(sdktrace.NewTracerProvider())
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator())
	}()

	_, span := GetTracer().Start(context.Background(), "check")
	defer span.End()
	if !span.SpanContext().IsValid() {
		t.Error("expected a recording span with a valid context")
	}
	if len(otel.GetTextMapPropagator().Fields()) == 0 {
		t.Error("expected trace context propagator fields")
	}
}

package tracing

import (
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// ServiceIDHeader identifies the calling service.
const ServiceIDHeader = "X-Service-Id"

// TraceIDHeader carries the server span's trace id back to the caller.
const TraceIDHeader = "X-Trace-Id"

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Unwrap() http.ResponseWriter { return rw.ResponseWriter }

// SpanNamer names the server span of a request.
type SpanNamer func(r *http.Request) string

func methodAndPath(r *http.Request) string { return r.Method + " " + r.URL.Path }

// Middleware opens a server span per request named "<method> <path>".
func Middleware(next http.Handler) http.Handler {
	return NewMiddleware(nil)(next)
}

// NewMiddleware returns tracing middleware whose spans are named by name.
// Pass a namer that collapses ids to keep span names low-cardinality.
//
// The incoming W3C trace context is honoured, the trace id is echoed in
// X-Trace-Id and 5xx responses mark the span as an error.
func NewMiddleware(name SpanNamer) func(http.Handler) http.Handler {
	if name == nil {
		name = methodAndPath
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := GetTracer().Start(ctx, name(r), trace.WithSpanKind(trace.SpanKindServer))
			defer span.End()

			w.Header().Set(TraceIDHeader, span.SpanContext().TraceID().String())

			rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			r = r.WithContext(ctx)
			next.ServeHTTP(rw, r)

			span.SetAttributes(
				attribute.Int("http.status_code", rw.status),
				attribute.String("http.method", r.Method),
				attribute.String("http.path", r.URL.Path),
			)
			if serviceID := r.Header.Get(ServiceIDHeader); serviceID != "" {
				span.SetAttributes(attribute.String("notification.service_id", serviceID))
			}
			if rw.status >= 500 {
				span.SetAttributes(attribute.Bool("error", true))
				span.SetStatus(codes.Error, http.StatusText(rw.status))
			}
		})
	}
}

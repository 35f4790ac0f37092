// Package tracing provides OpenTelemetry tracing integration.
//
// Init installs the SDK tracer provider at startup. Middleware opens a server
// span per HTTP request and returns its trace id in X-Trace-Id. The delivery
// pipeline opens child spans for each send and provider call via GetTracer.
//
//	shutdown := tracing.Init(1.0)
//	defer shutdown(ctx)
//
//	ctx, span := tracing.GetTracer().Start(ctx, "provider.send")
//	defer span.End()
package tracing

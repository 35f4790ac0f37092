// Package provider holds what the concrete email and push providers share:
// their identity, HTTP error mapping, the typed invalid-token error and a send throttle.
//
// Providers are wrapped by the delivery pipeline as retry(breaker(timeout(Send))).
// They make exactly one attempt per call and report failures through the error types
// defined here so the pipeline can decide whether to retry.
package provider

// Package resilience groups the fault tolerance primitives used on the provider call path.
//
// The subpackages provide:
//   - circuitbreaker: per-provider breakers over a sliding window of recent outcomes
//   - retry: exponential backoff with jitter and a pluggable retry classifier
//
// Usage Example:
//
//	cb := circuitbreaker.New(circuitbreaker.DefaultConfig("sendgrid"))
//	err := retry.WithBackoff(ctx, retry.EmailConfig(), func(ctx context.Context) error {
//	    return cb.Execute(ctx, func(ctx context.Context) error {
//	        return provider.Send(ctx, msg)
//	    })
//	})
package resilience

// Package retry provides retry logic with exponential backoff and jitter.
// It helps handle transient failures gracefully by automatically retrying failed operations.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"time"
)

// Config holds the configuration for retry logic.
type Config struct {
	// MaxAttempts is the maximum number of attempts, the first call included
	MaxAttempts int

	// InitialDelay is the delay before the first retry
	InitialDelay time.Duration

	// MaxDelay is the maximum delay between retries
	MaxDelay time.Duration

	// Multiplier is the multiplier for exponential backoff
	Multiplier float64

	// JitterFraction is the fraction of delay to add as random jitter (0.0 to 1.0)
	JitterFraction float64

	// MaxElapsed bounds the whole retry loop, attempts and waits included. Zero disables it.
	MaxElapsed time.Duration

	// Retryable overrides IsRetryable when set.
	Retryable func(err error) bool

	// OnRetry is called before each wait with the attempt that just failed.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultConfig returns a default retry configuration.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    3,
		InitialDelay:   1 * time.Second,
		MaxDelay:       30 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		MaxElapsed:     2 * time.Minute,
	}
}

// EmailConfig returns the backoff used for email providers.
// SMTP relays recover slower than push gateways, so the waits are longer.
func EmailConfig() Config {
	return Config{
		MaxAttempts:    3,
		InitialDelay:   2 * time.Second,
		MaxDelay:       60 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		MaxElapsed:     2 * time.Minute,
	}
}

// PushConfig returns the backoff used for push providers.
func PushConfig() Config {
	return DefaultConfig()
}

// Validate checks that the configuration can drive a retry loop.
func (c Config) Validate() error {
	switch {
	case c.MaxAttempts < 1:
		return fmt.Errorf("max attempts must be at least 1, got %d", c.MaxAttempts)
	case c.InitialDelay < 0:
		return fmt.Errorf("initial delay must not be negative, got %v", c.InitialDelay)
	case c.MaxDelay < c.InitialDelay:
		return fmt.Errorf("max delay %v must not be below initial delay %v", c.MaxDelay, c.InitialDelay)
	case c.Multiplier < 1:
		return fmt.Errorf("multiplier must be at least 1, got %v", c.Multiplier)
	case c.MaxElapsed < 0:
		return fmt.Errorf("max elapsed must not be negative, got %v", c.MaxElapsed)
	}
	return nil
}

// WithBackoff executes fn with retry logic and exponential backoff.
// It returns nil if fn succeeds. A non-retryable error is returned unchanged.
// When attempts run out, or MaxElapsed or ctx ends the loop, the returned error wraps the last failure.
func WithBackoff(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.MaxElapsed > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.MaxElapsed)
		defer cancel()
	}
	retryable := cfg.Retryable
	if retryable == nil {
		retryable = IsRetryable
	}

	var lastErr error
	base := cfg.InitialDelay

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		lastErr = fn(ctx)

		if lastErr == nil {
			if attempt > 1 {
				slog.Info("operation succeeded after retry",
					slog.Int("attempt", attempt))
			}
			return nil
		}

		if ctx.Err() != nil {
			return fmt.Errorf("retry aborted after %d attempt(s): %w: %w", attempt, ctx.Err(), lastErr)
		}

		if !retryable(lastErr) {
			slog.Warn("non-retryable error, aborting",
				slog.Int("attempt", attempt),
				slog.Any("error", lastErr))
			return lastErr
		}

		// Don't wait after last attempt
		if attempt == cfg.MaxAttempts {
			break
		}

		delay := waitFor(base, cfg)

		slog.Warn("operation failed, retrying",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", cfg.MaxAttempts),
			slog.Duration("delay", delay),
			slog.Any("error", lastErr))
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, lastErr, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry aborted after %d attempt(s): %w: %w", attempt, ctx.Err(), lastErr)
		}

		base = time.Duration(float64(base) * cfg.Multiplier)
		if base > cfg.MaxDelay {
			base = cfg.MaxDelay
		}
	}

	return fmt.Errorf("max retry attempts (%d) exceeded: %w", cfg.MaxAttempts, lastErr)
}

// IsRetryable determines if an error is worth retrying.
// Every failure is treated as transient except context errors, errors marked
// Permanent, and HTTP client errors other than 408 and 429.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	if IsPermanent(err) {
		return false
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.StatusCode >= 500:
			return true
		case httpErr.StatusCode == http.StatusTooManyRequests,
			httpErr.StatusCode == http.StatusRequestTimeout:
			return true
		case httpErr.StatusCode >= 400:
			return false
		}
	}

	return true
}

// HTTPError represents an HTTP error with status code.
type HTTPError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err so that WithBackoff gives up on it immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// addJitter adds random jitter to a duration to prevent thundering herd.
// waitFor jitters the un-jittered backoff base and caps the result at MaxDelay.
func waitFor(base time.Duration, cfg Config) time.Duration {
	d := addJitter(base, cfg.JitterFraction)
	if d > cfg.MaxDelay {
		d = cfg.MaxDelay
	}
	return d
}

func addJitter(duration time.Duration, jitterFraction float64) time.Duration {
	if jitterFraction <= 0 {
		return duration
	}
	if jitterFraction > 1.0 {
		jitterFraction = 1.0
	}
	// #nosec G404 -- Using math/rand is acceptable for jitter calculation.
	jitter := time.Duration(rand.Float64() * float64(duration) * jitterFraction)
	return duration + jitter
}

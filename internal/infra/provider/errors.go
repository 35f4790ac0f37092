package provider

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"notification-dispatch/internal/domain/entity"
	"notification-dispatch/internal/resilience/retry"
)

// ErrNotConfigured is returned by constructors when required credentials are missing.
var ErrNotConfigured = errors.New("provider not configured")

// HTTPError is a non-2xx response from a provider API.
// 5xx, 408 and 429 are retried. Other 4xx responses are not.
type HTTPError = retry.HTTPError

// maxErrorBody caps how much of an error response is kept in messages.
const maxErrorBody = 2048

// InvalidTokenError reports that a provider rejected the device token itself.
// The delivery pipeline deactivates the token and does not retry.
type InvalidTokenError struct {
	Provider entity.ProviderType
	Reason   string
}

func (e *InvalidTokenError) Error() string {
	return fmt.Sprintf("%s rejected device token: %s", e.Provider, e.Reason)
}

// InvalidToken marks the error for the delivery pipeline.
func (e *InvalidTokenError) InvalidToken() bool { return true }

// RateLimitError is a 429 response carrying the provider's Retry-After hint.
type RateLimitError struct {
	Provider   entity.ProviderType
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s rate limit exceeded (retry after %v)", e.Provider, e.RetryAfter)
	}
	return fmt.Sprintf("%s rate limit exceeded", e.Provider)
}

// Unwrap exposes the 429 so retry classification treats it as transient.
func (e *RateLimitError) Unwrap() error {
	return &HTTPError{StatusCode: http.StatusTooManyRequests, Message: "rate limited"}
}

// ReadError drains resp and converts a non-2xx status into an error.
// It returns nil for 2xx responses.
func ReadError(p entity.ProviderType, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return StatusError(p, resp.StatusCode, resp.Header, body)
}

// StatusError maps an already-read error response to RateLimitError or HTTPError.
func StatusError(p entity.ProviderType, status int, h http.Header, body []byte) error {
	if status == http.StatusTooManyRequests {
		return &RateLimitError{Provider: p, RetryAfter: RetryAfter(h)}
	}
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return &HTTPError{
		StatusCode: status,
		Message:    fmt.Sprintf("%s: %s", p, string(body)),
	}
}

// RetryAfter parses the Retry-After header in either seconds or HTTP-date form.
func RetryAfter(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// MaskToken shortens a device token for logs.
func MaskToken(token string) string {
	if len(token) <= 10 {
		return token
	}
	return token[:10] + "..."
}

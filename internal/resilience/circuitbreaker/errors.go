package circuitbreaker

import "errors"

var (
	// ErrOpen is returned when a call is rejected because the breaker is open.
	ErrOpen = errors.New("circuit breaker is open")

	// ErrTooManyRequests is returned when the half-open trial quota is used up.
	ErrTooManyRequests = errors.New("circuit breaker half-open call limit reached")
)

// IsCallNotPermitted reports whether err is a breaker rejection rather than a provider failure.
func IsCallNotPermitted(err error) bool {
	return errors.Is(err, ErrOpen) || errors.Is(err, ErrTooManyRequests)
}

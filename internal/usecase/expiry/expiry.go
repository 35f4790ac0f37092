// Package expiry moves notifications that stayed PENDING too long to EXPIRED.
package expiry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// DefaultTTL is how long a notification may stay PENDING.
const DefaultTTL = 24 * time.Hour

// Expirer expires the PENDING records of one collection created before cutoff.
type Expirer interface {
	ExpirePendingBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Result counts the records expired per channel.
type Result struct {
	Email int64
	Push  int64
}

// Service runs one expiry pass over email and push notifications.
type Service struct {
	email Expirer
	push  Expirer
	ttl   time.Duration
	now   func() time.Time
}

// NewService creates an expiry service. A non-positive ttl uses DefaultTTL.
func NewService(email, push Expirer, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{email: email, push: push, ttl: ttl, now: time.Now}
}

// Run expires both channels. A failure on one channel does not skip the other.
func (s *Service) Run(ctx context.Context) (Result, error) {
	cutoff := s.now().Add(-s.ttl)
	var res Result
	var errs []error

	n, err := s.email.ExpirePendingBefore(ctx, cutoff)
	if err != nil {
		errs = append(errs, fmt.Errorf("expire email notifications: %w", err))
	}
	res.Email = n

	n, err = s.push.ExpirePendingBefore(ctx, cutoff)
	if err != nil {
		errs = append(errs, fmt.Errorf("expire push notifications: %w", err))
	}
	res.Push = n

	slog.Info("expired stale pending notifications",
		slog.Time("cutoff", cutoff),
		slog.Int64("email", res.Email),
		slog.Int64("push", res.Push))
	return res, errors.Join(errs...)
}

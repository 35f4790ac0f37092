package provider

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"notification-dispatch/internal/usecase/selector"
)

// Throttle is a token bucket shared by every send through one provider.
// A nil Throttle never waits.
type Throttle struct {
	limiter *rate.Limiter
}

// NewThrottle allows rps sends per second with the given burst.
// It returns nil when rps is not positive.
func NewThrottle(rps float64, burst int) *Throttle {
	if rps <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &Throttle{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Wait blocks until a token is available or ctx is done.
func (t *Throttle) Wait(ctx context.Context) error {
	if t == nil {
		return nil
	}
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("throttle wait: %w", err)
	}
	return nil
}

type throttledEmail struct {
	selector.EmailProvider
	throttle *Throttle
}

// ThrottleEmail attaches t to p as its Pacer. It returns p unchanged for a nil t.
func ThrottleEmail(p selector.EmailProvider, t *Throttle) selector.EmailProvider {
	if t == nil {
		return p
	}
	return &throttledEmail{EmailProvider: p, throttle: t}
}

func (p *throttledEmail) Pace(ctx context.Context) error { return p.throttle.Wait(ctx) }

type throttledPush struct {
	selector.PushProvider
	throttle *Throttle
}

// ThrottlePush attaches t to p as its Pacer. It returns p unchanged for a nil t.
func ThrottlePush(p selector.PushProvider, t *Throttle) selector.PushProvider {
	if t == nil {
		return p
	}
	return &throttledPush{PushProvider: p, throttle: t}
}

func (p *throttledPush) Pace(ctx context.Context) error { return p.throttle.Wait(ctx) }

package delivery

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notification-dispatch/internal/domain/entity"
	"notification-dispatch/internal/infra/provider"
	"notification-dispatch/internal/resilience/circuitbreaker"
)

func TestSender_PacingIsNotCountedAsSlowCalls(t *testing.T) {
	const sends = 20
	base := circuitbreaker.DefaultConfig("")
	base.SlidingWindowSize = sends
	base.SlowCallDurationThreshold = 100 * time.Millisecond
	base.SlowCallRateThreshold = 50
	breakers := circuitbreaker.NewRegistry(base)

	fake := &fakePushProvider{typ: entity.ProviderFCM}
	paced := provider.ThrottlePush(fake, provider.NewThrottle(20, 1))
	s := newSender(entity.ChannelPush, fastConfig(), breakers)

	errs := make([]error, sends)
	var wg sync.WaitGroup
	for i := range sends {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = s.send(context.Background(), "n-1", paced, func(ctx context.Context) error {
				_, err := paced.Send(ctx, &entity.PushMessage{})
				return err
			})
		}()
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.EqualValues(t, sends, fake.calls.Load())

	m := breakers.Get(string(entity.ProviderFCM)).Metrics()
	assert.Equal(t, circuitbreaker.StateClosed, m.State)
	assert.Zero(t, m.SlowCallRate)
	assert.Equal(t, sends, m.BufferedCalls)
}

func TestSender_PacingHonoursCallerContext(t *testing.T) {
	fake := &fakePushProvider{typ: entity.ProviderFCM}
	paced := provider.ThrottlePush(fake, provider.NewThrottle(0.5, 1))
	s := newSender(entity.ChannelPush, fastConfig(), newBreakers())

	call := func(ctx context.Context) error {
		_, err := paced.Send(ctx, &entity.PushMessage{})
		return err
	}
	require.NoError(t, s.send(context.Background(), "n-1", paced, call))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	assert.Error(t, s.send(ctx, "n-2", paced, call))
	assert.EqualValues(t, 1, fake.calls.Load())
}

package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

var errProvider = errors.New("provider unavailable")

func testConfig(name string) Config {
	return Config{
		Name:                                  name,
		SlidingWindowSize:                     10,
		MinimumNumberOfCalls:                  5,
		FailureRateThreshold:                  50,
		SlowCallRateThreshold:                 100,
		SlowCallDurationThreshold:             time.Second,
		WaitDurationInOpenState:               50 * time.Millisecond,
		PermittedNumberOfCallsInHalfOpenState: 3,
		AutomaticTransition:                   true,
	}
}

func succeed(context.Context) error { return nil }
func fail(context.Context) error    { return errProvider }

// stepClock advances by step every time it is read, so each guarded call lasts exactly step.
type stepClock struct {
	mu   sync.Mutex
	t    time.Time
	step time.Duration
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(c.step)
	return c.t
}

func TestNew(t *testing.T) {
	cb := New(Config{Name: "test-circuit"})

	if cb.Name() != "test-circuit" {
		t.Errorf("expected name='test-circuit', got %q", cb.Name())
	}
	if cb.State() != StateClosed {
		t.Errorf("expected initial state=CLOSED, got %v", cb.State())
	}
	if cb.cfg.SlidingWindowSize != 10 || cb.cfg.MinimumNumberOfCalls != 5 {
		t.Errorf("expected defaults to be applied, got %+v", cb.cfg)
	}
}

func TestConfig_Validate(t *testing.T) {
	if err := DefaultConfig("x").Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}

	bad := DefaultConfig("x")
	bad.FailureRateThreshold = 150
	if err := bad.Validate(); err == nil {
		t.Error("expected error for failure rate above 100")
	}

	bad = DefaultConfig("x")
	bad.PermittedNumberOfCallsInHalfOpenState = 0
	if err := bad.Validate(); err == nil {
		t.Error("expected error for zero half-open calls")
	}
}

func TestCircuitBreaker_Execute_PassesResultThrough(t *testing.T) {
	cb := New(testConfig("passthrough"))

	if err := cb.Execute(context.Background(), succeed); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if err := cb.Execute(context.Background(), fail); !errors.Is(err, errProvider) {
		t.Errorf("expected provider error, got %v", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("expected CLOSED below minimum calls, got %v", cb.State())
	}
}

func TestCircuitBreaker_TripsOnFailureRate(t *testing.T) {
	cb := New(testConfig("trip-mixed"))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = cb.Execute(ctx, succeed)
	}
	for i := 0; i < 3; i++ {
		_ = cb.Execute(ctx, fail)
	}

	if cb.State() != StateOpen {
		t.Fatalf("expected OPEN after 3 successes and 3 failures, got %v", cb.State())
	}

	called := false
	err := cb.Execute(ctx, func(context.Context) error {
		called = true
		return nil
	})
	if called {
		t.Error("guarded function must not run while OPEN")
	}
	if !errors.Is(err, ErrOpen) || !IsCallNotPermitted(err) {
		t.Errorf("expected ErrOpen, got %v", err)
	}
}

func TestCircuitBreaker_TripsWhenSuccessReachesMinimum(t *testing.T) {
	cb := New(testConfig("trip-on-success"))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = cb.Execute(ctx, fail)
	}
	_ = cb.Execute(ctx, succeed)
	if cb.State() != StateClosed {
		t.Fatalf("expected CLOSED with 4 recorded calls, got %v", cb.State())
	}

	// Fifth call succeeds, but 3/5 failures is over the 50% threshold.
	if err := cb.Execute(ctx, succeed); err != nil {
		t.Errorf("successful call must report success, got %v", err)
	}
	if cb.State() != StateOpen {
		t.Errorf("expected OPEN once minimum calls reached, got %v", cb.State())
	}
}

func TestCircuitBreaker_StaysClosedBelowMinimumCalls(t *testing.T) {
	cb := New(testConfig("below-min"))

	for i := 0; i < 4; i++ {
		_ = cb.Execute(context.Background(), fail)
	}
	if cb.State() != StateClosed {
		t.Errorf("expected CLOSED with 4 failures and minimum 5, got %v", cb.State())
	}
}

func TestCircuitBreaker_RecoversThroughHalfOpen(t *testing.T) {
	cb := New(testConfig("recover"))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_ = cb.Execute(ctx, fail)
	}
	if cb.State() != StateOpen {
		t.Fatalf("expected OPEN, got %v", cb.State())
	}

	time.Sleep(80 * time.Millisecond)
	if cb.State() != StateHalfOpen {
		t.Fatalf("expected HALF_OPEN after wait duration, got %v", cb.State())
	}

	for i := 0; i < 3; i++ {
		if err := cb.Execute(ctx, succeed); err != nil {
			t.Fatalf("trial call %d failed: %v", i, err)
		}
	}
	if cb.State() != StateClosed {
		t.Errorf("expected CLOSED after permitted trial successes, got %v", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := New(testConfig("reopen"))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_ = cb.Execute(ctx, fail)
	}
	time.Sleep(80 * time.Millisecond)
	if cb.State() != StateHalfOpen {
		t.Fatalf("expected HALF_OPEN, got %v", cb.State())
	}

	_ = cb.Execute(ctx, succeed)
	_ = cb.Execute(ctx, fail)

	if cb.State() != StateOpen {
		t.Errorf("expected OPEN after a trial failure, got %v", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenLimitsTrialCalls(t *testing.T) {
	cfg := testConfig("half-open-limit")
	cfg.PermittedNumberOfCallsInHalfOpenState = 1
	cb := New(cfg)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_ = cb.Execute(ctx, fail)
	}
	time.Sleep(80 * time.Millisecond)

	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- cb.Execute(ctx, func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	err := cb.Execute(ctx, succeed)
	if !errors.Is(err, ErrTooManyRequests) || !IsCallNotPermitted(err) {
		t.Errorf("expected ErrTooManyRequests while the trial call is in flight, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Errorf("trial call failed: %v", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("expected CLOSED after the single permitted trial, got %v", cb.State())
	}
}

func TestCircuitBreaker_TripsOnSlowCallRate(t *testing.T) {
	cfg := testConfig("slow")
	cfg.SlowCallRateThreshold = 60
	cfg.SlowCallDurationThreshold = 10 * time.Millisecond
	cb := New(cfg)
	cb.now = (&stepClock{t: time.Unix(0, 0), step: 20 * time.Millisecond}).Now

	for i := 0; i < 5; i++ {
		if err := cb.Execute(context.Background(), succeed); err != nil {
			t.Fatalf("slow call %d should still succeed, got %v", i, err)
		}
	}

	if cb.State() != StateOpen {
		t.Errorf("expected OPEN after 100%% slow calls, got %v", cb.State())
	}
}

func TestCircuitBreaker_ManualTransitionWaitsForTrialCall(t *testing.T) {
	cfg := testConfig("manual")
	cfg.AutomaticTransition = false
	cb := New(cfg)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_ = cb.Execute(ctx, fail)
	}
	time.Sleep(80 * time.Millisecond)

	if cb.State() != StateOpen {
		t.Fatalf("expected OPEN until a call arrives, got %v", cb.State())
	}

	if err := cb.Execute(ctx, succeed); err != nil {
		t.Fatalf("trial call failed: %v", err)
	}
	if cb.State() != StateHalfOpen {
		t.Errorf("expected HALF_OPEN after a single trial call, got %v", cb.State())
	}
}

func TestCircuitBreaker_IsFailureClassification(t *testing.T) {
	errBadInput := errors.New("bad input")
	cfg := testConfig("classify")
	cfg.IsFailure = func(err error) bool { return !errors.Is(err, errBadInput) }
	cb := New(cfg)

	for i := 0; i < 10; i++ {
		err := cb.Execute(context.Background(), func(context.Context) error { return errBadInput })
		if !errors.Is(err, errBadInput) {
			t.Fatalf("expected caller error to pass through, got %v", err)
		}
	}
	if cb.State() != StateClosed {
		t.Errorf("ignored errors must not trip the breaker, got %v", cb.State())
	}
}

func TestCircuitBreaker_OnStateChange(t *testing.T) {
	var (
		mu          sync.Mutex
		transitions []State
	)
	cfg := testConfig("callback")
	cfg.OnStateChange = func(_ string, _, to State) {
		mu.Lock()
		defer mu.Unlock()
		transitions = append(transitions, to)
	}
	cb := New(cfg)

	for i := 0; i < 5; i++ {
		_ = cb.Execute(context.Background(), fail)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(transitions) != 1 || transitions[0] != StateOpen {
		t.Errorf("expected a single transition to OPEN, got %v", transitions)
	}
}

func TestCircuitBreaker_CanceledContext(t *testing.T) {
	cb := New(testConfig("canceled"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := cb.Execute(ctx, func(context.Context) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if called {
		t.Error("function must not run with a canceled context")
	}
	if m := cb.Metrics(); m.BufferedCalls != 0 {
		t.Errorf("canceled call must not be recorded, got %d", m.BufferedCalls)
	}
}

func TestCircuitBreaker_Metrics(t *testing.T) {
	cb := New(testConfig("metrics"))
	ctx := context.Background()

	_ = cb.Execute(ctx, succeed)
	_ = cb.Execute(ctx, fail)

	m := cb.Metrics()
	if m.BufferedCalls != 2 || m.FailedCalls != 1 {
		t.Errorf("unexpected counts: %+v", m)
	}
	if m.FailureRate != 50 {
		t.Errorf("expected failure rate 50, got %v", m.FailureRate)
	}
	if m.State != StateClosed {
		t.Errorf("expected CLOSED, got %v", m.State)
	}
}

func TestCircuitBreaker_HalfOpenCanceledTrialsDoNotClose(t *testing.T) {
	cb := New(testConfig("half-open-canceled"))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_ = cb.Execute(ctx, fail)
	}
	time.Sleep(80 * time.Millisecond)
	if cb.State() != StateHalfOpen {
		t.Fatalf("expected HALF_OPEN, got %v", cb.State())
	}

	abandoned := func(context.Context) error { return context.Canceled }
	for i := 0; i < 3; i++ {
		_ = cb.Execute(ctx, abandoned)
	}

	if cb.State() == StateClosed {
		t.Fatal("canceled trial calls must not close the breaker")
	}
	if m := cb.Metrics(); m.BufferedCalls != 0 {
		t.Errorf("canceled calls must stay out of the window, got %d", m.BufferedCalls)
	}
}

func TestCircuitBreaker_ClosedCanceledCallsAreNotRecorded(t *testing.T) {
	cb := New(testConfig("closed-canceled"))

	for i := 0; i < 10; i++ {
		err := cb.Execute(context.Background(), func(context.Context) error { return context.Canceled })
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled to pass through, got %v", err)
		}
	}
	m := cb.Metrics()
	if m.State != StateClosed || m.BufferedCalls != 0 {
		t.Errorf("expected CLOSED with an empty window, got %+v", m)
	}
}

func TestCircuitBreaker_DropsOutcomesOfCallsFromBeforeTrip(t *testing.T) {
	cb := New(testConfig("stale"))
	ctx := context.Background()

	const inFlight = 3
	release := make(chan struct{})
	var started, finished sync.WaitGroup
	for i := 0; i < inFlight; i++ {
		started.Add(1)
		finished.Add(1)
		go func() {
			defer finished.Done()
			_ = cb.Execute(ctx, func(context.Context) error {
				started.Done()
				<-release
				return nil
			})
		}()
	}
	started.Wait()

	for i := 0; i < 5; i++ {
		_ = cb.Execute(ctx, fail)
	}
	if cb.State() != StateOpen {
		t.Fatalf("expected OPEN, got %v", cb.State())
	}

	close(release)
	finished.Wait()

	if m := cb.Metrics(); m.BufferedCalls != 0 {
		t.Errorf("calls started before the trip must not be recorded, got %d", m.BufferedCalls)
	}
}

package delivery

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"notification-dispatch/internal/domain/entity"
	"notification-dispatch/internal/resilience/circuitbreaker"
	"notification-dispatch/internal/resilience/retry"
	"notification-dispatch/internal/usecase/selector"
)

func fastConfig() Config {
	return Config{
		Retry: retry.Config{
			MaxAttempts:  3,
			InitialDelay: time.Millisecond,
			MaxDelay:     5 * time.Millisecond,
			Multiplier:   2,
			MaxElapsed:   5 * time.Second,
		},
		DefaultTimeout: time.Second,
		Workers:        2,
		QueueCapacity:  10,
	}
}

func newBreakers() *circuitbreaker.Registry {
	return circuitbreaker.NewRegistry(circuitbreaker.DefaultConfig(""))
}

// eventLog records the order of side effects across fakes.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(e string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

type fakeEmailProvider struct {
	typ   entity.ProviderType
	calls atomic.Int32
	send  func(ctx context.Context, call int) error
}

func (p *fakeEmailProvider) Type() entity.ProviderType { return p.typ }
func (p *fakeEmailProvider) IsAvailable() bool         { return true }
func (p *fakeEmailProvider) Priority() int             { return 1 }
func (p *fakeEmailProvider) Send(ctx context.Context, _ *entity.EmailMessage) error {
	n := int(p.calls.Add(1))
	if p.send == nil {
		return nil
	}
	return p.send(ctx, n)
}

type fakePushProvider struct {
	typ   entity.ProviderType
	calls atomic.Int32
	send  func(ctx context.Context, call int) (string, error)
}

func (p *fakePushProvider) Type() entity.ProviderType { return p.typ }
func (p *fakePushProvider) IsAvailable() bool         { return true }
func (p *fakePushProvider) Priority() int             { return 1 }
func (p *fakePushProvider) Send(ctx context.Context, _ *entity.PushMessage) (string, error) {
	n := int(p.calls.Add(1))
	if p.send == nil {
		return "msg-1", nil
	}
	return p.send(ctx, n)
}

type staticEmailSelector struct {
	provider selector.EmailProvider
	err      error
}

func (s staticEmailSelector) SelectProvider() (selector.EmailProvider, error) {
	return s.provider, s.err
}

type staticPushSelector struct {
	provider selector.PushProvider
	err      error
}

func (s staticPushSelector) SelectProviderByPlatform(entity.Platform) (selector.PushProvider, error) {
	return s.provider, s.err
}

type memoryEmailRepo struct {
	mu    sync.Mutex
	items map[string]entity.EmailNotification
	saves []entity.Status
}

func newMemoryEmailRepo() *memoryEmailRepo {
	return &memoryEmailRepo{items: make(map[string]entity.EmailNotification)}
}

func (r *memoryEmailRepo) Save(_ context.Context, n *entity.EmailNotification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[n.ID] = *n
	r.saves = append(r.saves, n.Status)
	return nil
}

func (r *memoryEmailRepo) SaveAll(ctx context.Context, ns []*entity.EmailNotification) error {
	for _, n := range ns {
		_ = r.Save(ctx, n)
	}
	return nil
}

func (r *memoryEmailRepo) FindByID(_ context.Context, id string) (*entity.EmailNotification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.items[id]
	if !ok {
		return nil, entity.ErrNotFound
	}
	return &n, nil
}

func (r *memoryEmailRepo) FindByEventID(_ context.Context, eventID string) (*entity.EmailNotification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.items {
		if n.EventID == eventID {
			return &n, nil
		}
	}
	return nil, entity.ErrNotFound
}

func (r *memoryEmailRepo) ExpirePendingBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}

type memoryPushRepo struct {
	mu    sync.Mutex
	items map[string]entity.PushNotification
}

func newMemoryPushRepo() *memoryPushRepo {
	return &memoryPushRepo{items: make(map[string]entity.PushNotification)}
}

func (r *memoryPushRepo) Save(_ context.Context, n *entity.PushNotification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[n.ID] = *n
	return nil
}

func (r *memoryPushRepo) SaveAll(ctx context.Context, ns []*entity.PushNotification) error {
	for _, n := range ns {
		_ = r.Save(ctx, n)
	}
	return nil
}

func (r *memoryPushRepo) FindByID(_ context.Context, id string) (*entity.PushNotification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.items[id]
	if !ok {
		return nil, entity.ErrNotFound
	}
	return &n, nil
}

func (r *memoryPushRepo) ExpirePendingBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}

type fakeTokens struct {
	log         *eventLog
	deactivated atomic.Int32
}

func (f *fakeTokens) Save(context.Context, *entity.DeviceToken) error { return nil }
func (f *fakeTokens) FindByToken(context.Context, string) (*entity.DeviceToken, error) {
	return nil, entity.ErrDeviceTokenNotFound
}
func (f *fakeTokens) FindActiveByUser(context.Context, string) ([]*entity.DeviceToken, error) {
	return nil, nil
}
func (f *fakeTokens) Deactivate(_ context.Context, token string) error {
	f.deactivated.Add(1)
	f.log.add("deactivate:" + token)
	return nil
}
func (f *fakeTokens) Delete(context.Context, string) error { return nil }

// recordingPersister keeps a copy of each enqueued record.
type recordingPersister[T any] struct {
	mu    sync.Mutex
	log   *eventLog
	label func(T) string
	items []T
}

func (p *recordingPersister[T]) Enqueue(_ context.Context, item T) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.items = append(p.items, item)
	if p.label != nil {
		p.log.add("persist:" + p.label(item))
	}
	return nil
}

func (p *recordingPersister[T]) snapshot() []T {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]T(nil), p.items...)
}

type recordingAudit struct {
	mu     sync.Mutex
	events []entity.AuditEvent
}

func (a *recordingAudit) Publish(_ context.Context, ev entity.AuditEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, ev)
}

func (a *recordingAudit) types() []entity.AuditEventType {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]entity.AuditEventType, 0, len(a.events))
	for _, ev := range a.events {
		out = append(out, ev.EventType)
	}
	return out
}

// tokenRejected mimics a provider error for a dead device token.
type tokenRejected struct{}

func (tokenRejected) Error() string      { return "device rejected by gateway" }
func (tokenRejected) InvalidToken() bool { return true }

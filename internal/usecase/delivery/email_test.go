package delivery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notification-dispatch/internal/domain/entity"
	"notification-dispatch/internal/resilience/circuitbreaker"
	"notification-dispatch/internal/resilience/retry"
	"notification-dispatch/internal/usecase/selector"
)

type emailFixture struct {
	svc       *EmailService
	provider  *fakeEmailProvider
	repo      *memoryEmailRepo
	persister *recordingPersister[*entity.EmailNotification]
	audit     *recordingAudit
}

func newEmailFixture(t *testing.T, sel EmailProviderSelector, provider *fakeEmailProvider, cfg Config) *emailFixture {
	t.Helper()
	f := &emailFixture{
		provider:  provider,
		repo:      newMemoryEmailRepo(),
		persister: &recordingPersister[*entity.EmailNotification]{},
		audit:     &recordingAudit{},
	}
	if sel == nil {
		sel = staticEmailSelector{provider: provider}
	}
	f.svc = NewEmailService(sel, f.repo, f.persister, f.audit, newBreakers(), cfg)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = f.svc.Shutdown(ctx)
	})
	return f
}

func emailRequest() *EmailRequest {
	return &EmailRequest{
		To:      []string{"user@example.com"},
		Subject: "Welcome",
		Body:    "Hello",
		Attachments: []AttachmentRequest{
			{Filename: "terms.pdf", Content: []byte("%PDF")},
		},
	}
}

func TestEmailDeliver_Success(t *testing.T) {
	provider := &fakeEmailProvider{typ: entity.ProviderSMTP}
	f := newEmailFixture(t, nil, provider, fastConfig())

	n, err := f.svc.Deliver(context.Background(), emailRequest())
	require.NoError(t, err)

	assert.Equal(t, entity.StatusSent, n.Status)
	assert.Equal(t, entity.ProviderSMTP, n.ProviderType)
	assert.NotNil(t, n.SentAt)
	assert.Equal(t, []string{"terms.pdf"}, n.Attachments)
	assert.Equal(t, entity.PriorityNormal, n.Priority)
	assert.EqualValues(t, 1, provider.calls.Load())

	persisted := f.persister.snapshot()
	require.Len(t, persisted, 1)
	assert.Equal(t, entity.StatusSent, persisted[0].Status)
	assert.Equal(t, []entity.AuditEventType{entity.AuditEmailSent}, f.audit.types())
}

func TestEmailDeliver_SucceedsAfterRetry(t *testing.T) {
	provider := &fakeEmailProvider{typ: entity.ProviderSendGrid, send: func(_ context.Context, call int) error {
		if call == 1 {
			return errors.New("connection reset")
		}
		return nil
	}}
	f := newEmailFixture(t, nil, provider, fastConfig())

	n, err := f.svc.Deliver(context.Background(), emailRequest())
	require.NoError(t, err)
	assert.Equal(t, entity.StatusSent, n.Status)
	assert.Equal(t, 0, n.RetryCount)
	assert.EqualValues(t, 2, provider.calls.Load())
}

func TestEmailDeliver_ExhaustedRetriesFailOnce(t *testing.T) {
	cause := errors.New("smtp relay unavailable")
	provider := &fakeEmailProvider{typ: entity.ProviderSMTP, send: func(context.Context, int) error { return cause }}
	f := newEmailFixture(t, nil, provider, fastConfig())

	n, err := f.svc.Deliver(context.Background(), emailRequest())
	require.Error(t, err)
	assert.Nil(t, n)

	assert.EqualValues(t, 3, provider.calls.Load(), "provider called exactly maxAttempts times")
	assert.ErrorIs(t, err, ErrNotificationSend)
	assert.ErrorIs(t, err, cause)

	var sendErr *SendError
	require.ErrorAs(t, err, &sendErr)
	assert.Equal(t, entity.ChannelEmail, sendErr.Channel)
	assert.Equal(t, entity.ProviderSMTP, sendErr.Provider)

	persisted := f.persister.snapshot()
	require.Len(t, persisted, 1)
	assert.Equal(t, entity.StatusFailed, persisted[0].Status)
	assert.Equal(t, 1, persisted[0].RetryCount)
	assert.Contains(t, persisted[0].ErrorMessage, "smtp relay unavailable")
	assert.Equal(t, []entity.AuditEventType{entity.AuditEmailFailed}, f.audit.types())
}

func TestEmailDeliver_ProviderNotAvailableIsNotRetried(t *testing.T) {
	provider := &fakeEmailProvider{typ: entity.ProviderSMTP}
	sel := staticEmailSelector{err: selector.ErrProviderNotAvailable}
	f := newEmailFixture(t, sel, provider, fastConfig())

	_, err := f.svc.Deliver(context.Background(), emailRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, selector.ErrProviderNotAvailable)
	assert.ErrorIs(t, err, ErrNotificationSend)
	assert.Zero(t, provider.calls.Load())

	persisted := f.persister.snapshot()
	require.Len(t, persisted, 1)
	assert.Equal(t, entity.StatusFailed, persisted[0].Status)
	assert.Empty(t, persisted[0].ProviderType)
}

func TestEmailDeliver_ClientErrorStopsRetry(t *testing.T) {
	provider := &fakeEmailProvider{typ: entity.ProviderPostmark, send: func(context.Context, int) error {
		return &retry.HTTPError{StatusCode: 422, Message: "inactive recipient"}
	}}
	f := newEmailFixture(t, nil, provider, fastConfig())

	_, err := f.svc.Deliver(context.Background(), emailRequest())
	require.Error(t, err)
	assert.EqualValues(t, 1, provider.calls.Load())
}

func TestEmailDeliver_ProviderTimeoutIsRetried(t *testing.T) {
	provider := &fakeEmailProvider{typ: entity.ProviderSMTP, send: func(ctx context.Context, _ int) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	cfg := fastConfig()
	cfg.Retry.MaxAttempts = 2
	cfg.ProviderTimeouts = map[entity.ProviderType]time.Duration{entity.ProviderSMTP: 20 * time.Millisecond}
	f := newEmailFixture(t, nil, provider, cfg)

	_, err := f.svc.Deliver(context.Background(), emailRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, errProviderTimeout)
	assert.EqualValues(t, 2, provider.calls.Load())
}

func TestEmailDeliver_OpenBreakerRejectsWithoutCallingProvider(t *testing.T) {
	provider := &fakeEmailProvider{typ: entity.ProviderSMTP, send: func(context.Context, int) error {
		return errors.New("boom")
	}}
	f := newEmailFixture(t, nil, provider, fastConfig())

	cbCfg := circuitbreaker.DefaultConfig("")
	cbCfg.SlidingWindowSize = 1
	cbCfg.MinimumNumberOfCalls = 1
	cbCfg.WaitDurationInOpenState = time.Hour
	breakers := circuitbreaker.NewRegistry(cbCfg)
	f.svc.sender.breakers = breakers

	_, err := f.svc.Deliver(context.Background(), emailRequest())
	require.Error(t, err)
	assert.EqualValues(t, 1, provider.calls.Load())
	assert.True(t, circuitbreaker.IsCallNotPermitted(err))
	assert.Equal(t, circuitbreaker.StateOpen, breakers.Get(string(entity.ProviderSMTP)).State())
}

func TestEmailDeliverAsync_Success(t *testing.T) {
	provider := &fakeEmailProvider{typ: entity.ProviderSMTP}
	f := newEmailFixture(t, nil, provider, fastConfig())
	ctx := context.Background()

	req := emailRequest()
	pending, err := f.svc.CreatePending(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusPending, pending.Status)

	f.svc.DeliverAsync(ctx, req, pending.ID)
	require.NoError(t, f.svc.Shutdown(ctx))

	assert.Equal(t, []entity.Status{entity.StatusPending, entity.StatusProcessing}, f.repo.saves)
	persisted := f.persister.snapshot()
	require.Len(t, persisted, 1)
	assert.Equal(t, pending.ID, persisted[0].ID)
	assert.Equal(t, entity.StatusSent, persisted[0].Status)
	assert.Equal(t, entity.ProviderSMTP, persisted[0].ProviderType)
	assert.Equal(t,
		[]entity.AuditEventType{entity.AuditNotificationCreated, entity.AuditEmailSent},
		f.audit.types())
}

func TestEmailDeliverAsync_FailureRecordedOnce(t *testing.T) {
	provider := &fakeEmailProvider{typ: entity.ProviderSMTP, send: func(context.Context, int) error {
		return errors.New("mailbox unavailable")
	}}
	f := newEmailFixture(t, nil, provider, fastConfig())
	ctx := context.Background()

	req := emailRequest()
	pending, err := f.svc.CreatePending(ctx, req)
	require.NoError(t, err)

	f.svc.DeliverAsync(ctx, req, pending.ID)
	require.NoError(t, f.svc.Shutdown(ctx))

	assert.EqualValues(t, 3, provider.calls.Load())
	persisted := f.persister.snapshot()
	require.Len(t, persisted, 1)
	assert.Equal(t, entity.StatusFailed, persisted[0].Status)
	assert.Equal(t, 1, persisted[0].RetryCount)
}

func TestEmailDeliverAsync_MissingRecord(t *testing.T) {
	provider := &fakeEmailProvider{typ: entity.ProviderSMTP}
	f := newEmailFixture(t, nil, provider, fastConfig())
	ctx := context.Background()

	f.svc.DeliverAsync(ctx, emailRequest(), "does-not-exist")
	require.NoError(t, f.svc.Shutdown(ctx))

	assert.Zero(t, provider.calls.Load())
	assert.Empty(t, f.persister.snapshot())
}

func TestEmailDeliverAsync_QueueFullMarksFailed(t *testing.T) {
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	provider := &fakeEmailProvider{typ: entity.ProviderSMTP, send: func(_ context.Context, call int) error {
		if call == 1 {
			started <- struct{}{}
			<-release
		}
		return nil
	}}
	cfg := fastConfig()
	cfg.Workers = 1
	cfg.QueueCapacity = 1
	f := newEmailFixture(t, nil, provider, cfg)
	ctx := context.Background()

	var ids []string
	for range 3 {
		n, err := f.svc.CreatePending(ctx, emailRequest())
		require.NoError(t, err)
		ids = append(ids, n.ID)
	}

	f.svc.DeliverAsync(ctx, emailRequest(), ids[0])
	<-started
	f.svc.DeliverAsync(ctx, emailRequest(), ids[1])
	f.svc.DeliverAsync(ctx, emailRequest(), ids[2])

	persisted := f.persister.snapshot()
	require.Len(t, persisted, 1)
	assert.Equal(t, ids[2], persisted[0].ID)
	assert.Equal(t, entity.StatusFailed, persisted[0].Status)
	assert.Equal(t, "delivery queue full", persisted[0].ErrorMessage)

	close(release)
	require.NoError(t, f.svc.Shutdown(ctx))
	assert.Len(t, f.persister.snapshot(), 3)
}

func TestEmailDeliverAsync_AfterShutdownMarksFailed(t *testing.T) {
	provider := &fakeEmailProvider{typ: entity.ProviderSMTP}
	f := newEmailFixture(t, nil, provider, fastConfig())
	ctx := context.Background()

	pending, err := f.svc.CreatePending(ctx, emailRequest())
	require.NoError(t, err)
	require.NoError(t, f.svc.Shutdown(ctx))

	f.svc.DeliverAsync(ctx, emailRequest(), pending.ID)

	persisted := f.persister.snapshot()
	require.Len(t, persisted, 1)
	assert.Equal(t, entity.StatusFailed, persisted[0].Status)
	assert.Zero(t, provider.calls.Load())
}

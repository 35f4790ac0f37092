// Package idempotency deduplicates requests that carry a caller-supplied event id.
// Records live in a shared key store with a TTL. Store failures fail open.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// ErrDuplicate is returned by Begin when the event id was already seen.
var ErrDuplicate = errors.New("duplicate event id")

const (
	// DefaultKeyPrefix namespaces email event ids in the key store.
	DefaultKeyPrefix = "idempotency:email:"

	// DefaultTTL is how long an event id is remembered.
	DefaultTTL = 24 * time.Hour
)

// State is the lifecycle stage recorded for an event id.
type State string

const (
	StateProcessing State = "PROCESSING"
	StateCompleted  State = "COMPLETED"
	StateFailed     State = "FAILED"
)

// Record is the decoded value stored for an event id.
// Detail holds the notification id for COMPLETED and the reason for FAILED.
type Record struct {
	State  State
	Detail string
}

func (r Record) encode() string {
	if r.Detail == "" {
		return string(r.State)
	}
	return string(r.State) + ":" + r.Detail
}

func parseRecord(v string) Record {
	state, detail, _ := strings.Cut(v, ":")
	return Record{State: State(state), Detail: detail}
}

// Store is the key-value backend. Get reports found=false for a missing key.
type Store interface {
	SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Delete(ctx context.Context, key string) error
}

// Service tracks event ids through PROCESSING, COMPLETED and FAILED.
type Service struct {
	store  Store
	prefix string
	ttl    time.Duration
}

// NewService returns a Service using DefaultKeyPrefix unless prefix is set.
func NewService(store Store, prefix string, ttl time.Duration) *Service {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{store: store, prefix: prefix, ttl: ttl}
}

func (s *Service) key(eventID string) string {
	return s.prefix + eventID
}

// Begin claims eventID. It returns ErrDuplicate when another request already
// claimed it. An empty id or a store failure lets the request through.
func (s *Service) Begin(ctx context.Context, eventID string) error {
	if eventID == "" {
		return nil
	}
	ok, err := s.store.SetIfAbsent(ctx, s.key(eventID), Record{State: StateProcessing}.encode(), s.ttl)
	if err != nil {
		slog.Error("idempotency check failed, allowing request",
			slog.String("event_id", eventID),
			slog.Any("error", err))
		return nil
	}
	if !ok {
		slog.Warn("duplicate event id detected", slog.String("event_id", eventID))
		return fmt.Errorf("event %s: %w", eventID, ErrDuplicate)
	}
	return nil
}

// MarkProcessed records the notification created for eventID.
func (s *Service) MarkProcessed(ctx context.Context, eventID, notificationID string) {
	s.set(ctx, eventID, Record{State: StateCompleted, Detail: notificationID})
}

// MarkFailed records why eventID could not be accepted.
func (s *Service) MarkFailed(ctx context.Context, eventID, reason string) {
	s.set(ctx, eventID, Record{State: StateFailed, Detail: reason})
}

func (s *Service) set(ctx context.Context, eventID string, r Record) {
	if eventID == "" {
		return
	}
	if err := s.store.Set(ctx, s.key(eventID), r.encode(), s.ttl); err != nil {
		slog.Error("failed to update idempotency record",
			slog.String("event_id", eventID),
			slog.String("state", string(r.State)),
			slog.Any("error", err))
	}
}

// Status returns the record stored for eventID. found is false when nothing is
// stored or the store could not be read.
func (s *Service) Status(ctx context.Context, eventID string) (Record, bool) {
	if eventID == "" {
		return Record{}, false
	}
	v, found, err := s.store.Get(ctx, s.key(eventID))
	if err != nil {
		slog.Error("failed to read idempotency record",
			slog.String("event_id", eventID),
			slog.Any("error", err))
		return Record{}, false
	}
	if !found {
		return Record{}, false
	}
	return parseRecord(v), true
}

// Remove forgets eventID so it can be submitted again.
func (s *Service) Remove(ctx context.Context, eventID string) error {
	if eventID == "" {
		return nil
	}
	if err := s.store.Delete(ctx, s.key(eventID)); err != nil {
		return fmt.Errorf("remove idempotency record %s: %w", eventID, err)
	}
	slog.Info("removed idempotency record", slog.String("event_id", eventID))
	return nil
}

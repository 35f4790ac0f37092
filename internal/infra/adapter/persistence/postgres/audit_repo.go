package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"notification-dispatch/internal/domain/entity"
	"notification-dispatch/internal/repository"
	"notification-dispatch/internal/resilience/circuitbreaker"
)

// auditColumns is the insert column order for audit_events.
const auditColumns = 11

// maxAuditRowsPerStatement keeps each insert below the Postgres bind parameter limit.
const maxAuditRowsPerStatement = 500

type AuditRepo struct{ db *circuitbreaker.DB }

func NewAuditRepo(db *circuitbreaker.DB) repository.AuditRepository {
	return &AuditRepo{db: db}
}

// InsertBatch writes events with multi-row inserts inside one transaction.
// Rows whose id already exists are skipped so a replayed batch is harmless.
func (repo *AuditRepo) InsertBatch(ctx context.Context, events []entity.AuditEvent) error {
	if len(events) == 0 {
		return nil
	}

	err := repo.db.InTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		for start := 0; start < len(events); start += maxAuditRowsPerStatement {
			end := min(start+maxAuditRowsPerStatement, len(events))
			query, args, err := buildAuditInsert(events[start:end])
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("InsertBatch: %w", err)
	}
	return nil
}

func buildAuditInsert(events []entity.AuditEvent) (string, []any, error) {
	var b strings.Builder
	b.WriteString(`INSERT INTO audit_events
(id, event_type, service_name, entity_id, entity_type, user_id, action, status, error_message, metadata, occurred_at)
VALUES `)

	args := make([]any, 0, len(events)*auditColumns)
	for i, ev := range events {
		metadata, err := marshalMetadata(ev.Metadata)
		if err != nil {
			return "", nil, fmt.Errorf("event %s: %w", ev.ID, err)
		}
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for c := range auditColumns {
			if c > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", i*auditColumns+c+1)
		}
		b.WriteByte(')')

		args = append(args,
			ev.ID, string(ev.EventType), ev.ServiceName,
			nullable(ev.EntityID), nullable(ev.EntityType), nullable(ev.UserID),
			nullable(ev.Action), nullable(ev.Status), nullable(ev.ErrorMessage),
			metadata, ev.Timestamp.UTC(),
		)
	}
	b.WriteString(" ON CONFLICT (id) DO NOTHING")
	return b.String(), args, nil
}

func marshalMetadata(m map[string]string) ([]byte, error) {
	if len(m) == 0 {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return data, nil
}

// nullable maps empty strings to SQL NULL.
func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

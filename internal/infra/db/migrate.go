package db

import (
	"database/sql"
	"fmt"
)

// MigrateUp creates the audit_events table and its indexes.
func MigrateUp(db *sql.DB) error {
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS audit_events (
    id            UUID PRIMARY KEY,
    event_type    VARCHAR(64) NOT NULL,
    service_name  VARCHAR(128) NOT NULL,
    entity_id     TEXT,
    entity_type   VARCHAR(64),
    user_id       TEXT,
    action        VARCHAR(128),
    status        VARCHAR(32),
    error_message TEXT,
    metadata      JSONB NOT NULL DEFAULT '{}'::jsonb,
    occurred_at   TIMESTAMPTZ NOT NULL
)`); err != nil {
		return fmt.Errorf("create audit_events: %w", err)
	}

	indexes := []string{
		// Lookups by notification or token
		`CREATE INDEX IF NOT EXISTS idx_audit_events_entity ON audit_events(entity_type, entity_id)`,
		// Time-ordered scans per event type
		`CREATE INDEX IF NOT EXISTS idx_audit_events_type_time ON audit_events(event_type, occurred_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_events_user ON audit_events(user_id) WHERE user_id IS NOT NULL`,
	}
	for _, idx := range indexes {
		if _, err := db.Exec(idx); err != nil {
			return fmt.Errorf("create audit index: %w", err)
		}
	}
	return nil
}

// MigrateDown drops the audit schema. All audit history is lost.
func MigrateDown(db *sql.DB) error {
	dropStatements := []string{
		`DROP INDEX IF EXISTS idx_audit_events_user`,
		`DROP INDEX IF EXISTS idx_audit_events_type_time`,
		`DROP INDEX IF EXISTS idx_audit_events_entity`,
		`DROP TABLE IF EXISTS audit_events`,
	}
	for _, stmt := range dropStatements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate down: %w", err)
		}
	}
	return nil
}

//go:build integration

package postgres_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"

	"notification-dispatch/internal/domain/entity"
	"notification-dispatch/internal/infra/adapter/persistence/postgres"
	"notification-dispatch/internal/infra/db"
	"notification-dispatch/internal/resilience/circuitbreaker"
	"notification-dispatch/internal/testutil"
)

func TestAuditRepo_Postgres(t *testing.T) {
	ctx := context.Background()

	container, err := testutil.NewPostgresContainer(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	conn, err := db.Open(ctx, db.Config{URL: container.ConnectionString})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, db.MigrateUp(conn))
	require.NoError(t, db.MigrateUp(conn))

	repo := postgres.NewAuditRepo(circuitbreaker.NewDB(conn, circuitbreaker.DBConfig("audit-integration")))
	events := []entity.AuditEvent{auditEvent("00000000-0000-0000-0000-000000000001"), auditEvent("00000000-0000-0000-0000-000000000002")}
	require.NoError(t, repo.InsertBatch(ctx, events))
	// replaying the batch is a no-op
	require.NoError(t, repo.InsertBatch(ctx, events))

	var count int
	require.NoError(t, conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_events`).Scan(&count))
	assert.Equal(t, 2, count)

	var provider string
	require.NoError(t, conn.QueryRowContext(ctx,
		`SELECT metadata->>'provider' FROM audit_events WHERE id = $1`, events[0].ID).Scan(&provider))
	assert.Equal(t, "SMTP", provider)

	require.NoError(t, db.MigrateDown(conn))
}

package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notification-dispatch/internal/usecase/idempotency"
)

func newTestKeyStore(t *testing.T) (*KeyStore, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewKeyStore(client), mr, client
}

func TestKeyStore_SetIfAbsent(t *testing.T) {
	ctx := context.Background()
	store, mr, _ := newTestKeyStore(t)

	ok, err := store.SetIfAbsent(ctx, "k", "PROCESSING", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.SetIfAbsent(ctx, "k", "PROCESSING", time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, time.Hour, mr.TTL("k"))
}

func TestKeyStore_GetMissing(t *testing.T) {
	store, _, _ := newTestKeyStore(t)

	v, found, err := store.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, v)
}

func TestKeyStore_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	store, mr, _ := newTestKeyStore(t)

	require.NoError(t, store.Set(ctx, "k", "COMPLETED:n-1", time.Minute))
	v, found, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "COMPLETED:n-1", v)

	mr.FastForward(2 * time.Minute)
	_, found, err = store.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Set(ctx, "k", "x", time.Minute))
	require.NoError(t, store.Delete(ctx, "k"))
	assert.False(t, mr.Exists("k"))
}

func TestKeyStore_ServerDown(t *testing.T) {
	store, mr, _ := newTestKeyStore(t)
	mr.Close()

	_, err := store.SetIfAbsent(context.Background(), "k", "v", time.Minute)
	assert.Error(t, err)
}

func TestKeyStore_BacksIdempotency(t *testing.T) {
	ctx := context.Background()
	store, mr, _ := newTestKeyStore(t)
	svc := idempotency.NewService(store, "", 0)

	require.NoError(t, svc.Begin(ctx, "evt-1"))
	assert.ErrorIs(t, svc.Begin(ctx, "evt-1"), idempotency.ErrDuplicate)

	svc.MarkProcessed(ctx, "evt-1", "n-1")
	got, _ := mr.Get(idempotency.DefaultKeyPrefix + "evt-1")
	assert.Equal(t, "COMPLETED:n-1", got)
}

func TestHealthcheck(t *testing.T) {
	_, mr, client := newTestKeyStore(t)
	check := Healthcheck(client)
	require.NoError(t, check(context.Background()))

	mr.Close()
	assert.ErrorIs(t, check(context.Background()), ErrHealthcheckFailed)
}

func TestConnect(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := Connect(context.Background(), Config{ConnectionURL: "redis://" + mr.Addr() + "/0", RetryAttempts: 1})
	require.NoError(t, err)
	_ = client.Close()

	_, err = Connect(context.Background(), Config{ConnectionURL: "://bad"})
	assert.ErrorIs(t, err, ErrFailedToParseConnString)
}

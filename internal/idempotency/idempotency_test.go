package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisGuardClaim(t *testing.T) {
	db, mock := redismock.NewClientMock()
	mock.ExpectSetNX("webhook:dlv-1", 1, 24*time.Hour).SetVal(true)
	mock.ExpectSetNX("webhook:dlv-1", 1, 24*time.Hour).SetVal(false)

	g := NewRedisGuard(db, "webhook:")

	first, err := g.Claim(context.Background(), "dlv-1", 24*time.Hour)
	require.NoError(t, err)
	assert.True(t, first)

	second, err := g.Claim(context.Background(), "dlv-1", 24*time.Hour)
	require.NoError(t, err)
	assert.False(t, second)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisGuardError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	mock.ExpectSetNX("webhook:dlv-2", 1, time.Hour).SetErr(errors.New("connection refused"))

	_, err := NewRedisGuard(db, "webhook:").Claim(context.Background(), "dlv-2", time.Hour)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestMemoryGuardExpires(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	g := NewMemoryGuard()
	g.now = func() time.Time { return now }

	ok, err := g.Claim(context.Background(), "dlv-1", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = g.Claim(context.Background(), "dlv-1", time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)

	now = now.Add(time.Hour)
	ok, err = g.Claim(context.Background(), "dlv-1", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok, "claim should be available again after ttl")
}

func TestRedisGuardRelease(t *testing.T) {
	db, mock := redismock.NewClientMock()
	mock.ExpectDel("webhook:dlv-3").SetVal(1)

	require.NoError(t, NewRedisGuard(db, "webhook:").Release(context.Background(), "dlv-3"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMemoryGuardRelease(t *testing.T) {
	g := NewMemoryGuard()
	ctx := context.Background()

	ok, err := g.Claim(ctx, "dlv-1", time.Hour)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, g.Release(ctx, "dlv-1"))

	ok, err = g.Claim(ctx, "dlv-1", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)
}

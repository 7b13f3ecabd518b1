package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulsechat-backend/internal/database"
)

func newTestClient(t *testing.T) (*database.RedisClient, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return database.NewRedisClient(client, nil), mr
}

func TestPresenceRepository_OnlineOffline(t *testing.T) {
	client, mr := newTestClient(t)
	repo := NewPresenceRepository(client)
	ctx := context.Background()
	userID := uuid.New()

	require.NoError(t, repo.SetUserOnline(ctx, userID))

	online, err := repo.IsUserOnline(ctx, userID)
	require.NoError(t, err)
	assert.True(t, online)
	assert.Equal(t, 5*time.Minute, mr.TTL(presenceKey(userID)))

	users, err := repo.GetOnlineUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{userID}, users)

	require.NoError(t, repo.SetUserOffline(ctx, userID))

	online, err = repo.IsUserOnline(ctx, userID)
	require.NoError(t, err)
	assert.False(t, online)
}

func TestPresenceRepository_TTLExpiry(t *testing.T) {
	client, mr := newTestClient(t)
	repo := NewPresenceRepository(client)
	ctx := context.Background()
	userID := uuid.New()

	require.NoError(t, repo.SetUserOnline(ctx, userID))
	mr.FastForward(4 * time.Minute)
	require.NoError(t, repo.RefreshPresence(ctx, userID))
	mr.FastForward(4 * time.Minute)

	online, err := repo.IsUserOnline(ctx, userID)
	require.NoError(t, err)
	assert.True(t, online)

	mr.FastForward(2 * time.Minute)
	online, err = repo.IsUserOnline(ctx, userID)
	require.NoError(t, err)
	assert.False(t, online)
}

func TestPresenceRepository_ClearOnline(t *testing.T) {
	client, _ := newTestClient(t)
	repo := NewPresenceRepository(client)
	ctx := context.Background()

	alice, bob := uuid.New(), uuid.New()
	require.NoError(t, repo.SetUserOnline(ctx, alice))
	require.NoError(t, repo.SetUserOnline(ctx, bob))
	require.NoError(t, repo.ClearOnline(ctx))

	users, err := repo.GetOnlineUsers(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)

	for _, userID := range []uuid.UUID{alice, bob} {
		online, err := repo.IsUserOnline(ctx, userID)
		require.NoError(t, err)
		assert.False(t, online)
	}
}

func TestPresenceRepository_ClearOnlineWhenEmpty(t *testing.T) {
	client, _ := newTestClient(t)
	repo := NewPresenceRepository(client)

	assert.NoError(t, repo.ClearOnline(context.Background()))
}

func TestPresenceRepository_Degraded(t *testing.T) {
	client, mr := newTestClient(t)
	repo := NewPresenceRepository(client)
	ctx := context.Background()

	mr.Close()
	require.Error(t, client.HealthCheck(ctx))
	assert.True(t, client.IsDegraded())

	err := repo.SetUserOnline(ctx, uuid.New())
	assert.ErrorIs(t, err, database.ErrRedisDegraded)
}

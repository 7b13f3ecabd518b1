package redis

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupCacheRepository(t *testing.T) {
	client, mr := newTestClient(t)
	repo := NewGroupCacheRepository(client)
	ctx := context.Background()
	groupID := uuid.New()

	_, ok, err := repo.GetMembers(ctx, groupID)
	require.NoError(t, err)
	assert.False(t, ok)

	members := []uuid.UUID{uuid.New(), uuid.New()}
	require.NoError(t, repo.SetMembers(ctx, groupID, members))

	got, ok, err := repo.GetMembers(ctx, groupID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, members, got)

	mr.FastForward(31 * time.Second)
	_, ok, err = repo.GetMembers(ctx, groupID)
	require.NoError(t, err)
	assert.False(t, ok)
}

package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"pulsechat-backend/internal/database"
	"pulsechat-backend/pkg/constants"
)

// GroupCacheRepository caches group member lists in Redis
type GroupCacheRepository struct {
	client *database.RedisClient
	ttl    time.Duration
}

// NewGroupCacheRepository creates a new GroupCacheRepository
func NewGroupCacheRepository(client *database.RedisClient) *GroupCacheRepository {
	return &GroupCacheRepository{client: client, ttl: constants.GroupMembersCacheTTL}
}

func groupMembersKey(groupID uuid.UUID) string {
	return fmt.Sprintf("group:members:%s", groupID)
}

// GetMembers returns the cached members. ok is false on a cache miss.
func (r *GroupCacheRepository) GetMembers(ctx context.Context, groupID uuid.UUID) ([]uuid.UUID, bool, error) {
	raw, err := r.client.SafeGet(ctx, groupMembersKey(groupID)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get group members: %w", err)
	}

	var members []uuid.UUID
	if err := json.Unmarshal(raw, &members); err != nil {
		return nil, false, fmt.Errorf("failed to decode group members: %w", err)
	}
	return members, true, nil
}

// SetMembers caches the member list for a short TTL
func (r *GroupCacheRepository) SetMembers(ctx context.Context, groupID uuid.UUID, members []uuid.UUID) error {
	raw, err := json.Marshal(members)
	if err != nil {
		return fmt.Errorf("failed to encode group members: %w", err)
	}

	if err := r.client.SafeSet(ctx, groupMembersKey(groupID), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache group members: %w", err)
	}
	return nil
}

package cockroach

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"pulsechat-backend/internal/domain"
	"pulsechat-backend/pkg/logger"
)

// MemberCache caches group member lists
type MemberCache interface {
	GetMembers(ctx context.Context, groupID uuid.UUID) ([]uuid.UUID, bool, error)
	SetMembers(ctx context.Context, groupID uuid.UUID, members []uuid.UUID) error
}

// GroupRepository resolves groups and their members in CockroachDB
type GroupRepository struct {
	pool  *pgxpool.Pool
	cache MemberCache
}

// NewGroupRepository creates a new GroupRepository. cache may be nil.
func NewGroupRepository(pool *pgxpool.Pool, cache MemberCache) *GroupRepository {
	return &GroupRepository{pool: pool, cache: cache}
}

// FindGroup returns the group with its members. It reports domain.ErrNotFound
// when the group does not exist or requireMember is not one of its members.
func (r *GroupRepository) FindGroup(ctx context.Context, groupID, requireMember uuid.UUID) (*domain.Group, error) {
	group := &domain.Group{GroupID: groupID}

	err := r.pool.QueryRow(ctx, `SELECT name FROM groups WHERE group_id = $1`, groupID).Scan(&group.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("group %s: %w", groupID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get group: %w", err)
	}

	members, err := r.members(ctx, groupID)
	if err != nil {
		return nil, err
	}
	group.MemberIDs = members

	if !group.IsMember(requireMember) {
		return nil, fmt.Errorf("group %s member %s: %w", groupID, requireMember, domain.ErrNotFound)
	}

	return group, nil
}

func (r *GroupRepository) members(ctx context.Context, groupID uuid.UUID) ([]uuid.UUID, error) {
	if r.cache != nil {
		members, ok, err := r.cache.GetMembers(ctx, groupID)
		if err != nil {
			logger.FromContext(ctx).Debug("Group member cache read failed",
				zap.String("group_id", groupID.String()),
				zap.Error(err))
		} else if ok {
			return members, nil
		}
	}

	rows, err := r.pool.Query(ctx, `SELECT user_id FROM group_members WHERE group_id = $1`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to get group members: %w", err)
	}
	defer rows.Close()

	var members []uuid.UUID
	for rows.Next() {
		var userID uuid.UUID
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("failed to scan group member: %w", err)
		}
		members = append(members, userID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate group members: %w", err)
	}

	if r.cache != nil {
		if err := r.cache.SetMembers(ctx, groupID, members); err != nil {
			logger.FromContext(ctx).Debug("Group member cache write failed",
				zap.String("group_id", groupID.String()),
				zap.Error(err))
		}
	}

	return members, nil
}

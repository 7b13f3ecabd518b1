// Package presence publishes online/offline transitions of users.
package presence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pulsechat-backend/internal/domain"
	"pulsechat-backend/pkg/constants"
	"pulsechat-backend/pkg/logger"
	"pulsechat-backend/pkg/metrics"
)

// Broadcaster is the subset of the connection registry used for presence
type Broadcaster interface {
	IsOnline(userID uuid.UUID) bool
	Broadcast(event string, payload any, except uuid.UUID) int
}

// StatusStore persists the durable status flag and last-seen time
type StatusStore interface {
	UpdateUserStatus(ctx context.Context, userID uuid.UUID, status domain.UserStatus, at time.Time) error
}

// Cache mirrors presence in a shared cache with a TTL
type Cache interface {
	SetUserOnline(ctx context.Context, userID uuid.UUID) error
	SetUserOffline(ctx context.Context, userID uuid.UUID) error
	RefreshPresence(ctx context.Context, userID uuid.UUID) error
	IsUserOnline(ctx context.Context, userID uuid.UUID) (bool, error)
}

// Publisher records presence transitions and announces them to everyone else
type Publisher struct {
	registry Broadcaster
	store    StatusStore
	cache    Cache
	now      func() time.Time
	metrics  *metrics.Metrics
}

// NewPublisher creates a presence publisher. cache may be nil.
func NewPublisher(registry Broadcaster, store StatusStore, cache Cache, m *metrics.Metrics) *Publisher {
	return &Publisher{
		registry: registry,
		store:    store,
		cache:    cache,
		now:      time.Now,
		metrics:  m,
	}
}

// Connected marks userID online and broadcasts user:status
func (p *Publisher) Connected(ctx context.Context, userID uuid.UUID) {
	p.publish(ctx, userID, domain.UserStatusOnline)
}

// Disconnected marks userID offline and broadcasts user:status
func (p *Publisher) Disconnected(ctx context.Context, userID uuid.UUID) {
	p.publish(ctx, userID, domain.UserStatusOffline)
}

// publish never fails: store errors are logged and the broadcast still happens.
// A transition the registry no longer agrees with is dropped, before and
// after the store write; the newer transition publishes itself.
func (p *Publisher) publish(ctx context.Context, userID uuid.UUID, status domain.UserStatus) {
	log := logger.FromContext(ctx).With(
		zap.String("user_id", userID.String()),
		zap.String("status", string(status)))

	if p.current(userID) != status {
		log.Debug("Presence change superseded")
		return
	}

	storeCtx, cancel := context.WithTimeout(ctx, constants.StoreTimeout)
	defer cancel()

	if err := p.store.UpdateUserStatus(storeCtx, userID, status, p.now()); err != nil {
		log.Warn("Failed to persist user status", zap.Error(err))
		p.metrics.RecordPresenceError("database")
	}

	if current := p.current(userID); current != status {
		// our write may have landed after the newer one
		if err := p.store.UpdateUserStatus(storeCtx, userID, current, p.now()); err != nil {
			log.Warn("Failed to restore user status", zap.Error(err))
			p.metrics.RecordPresenceError("database")
		}
		log.Debug("Presence change superseded during store write")
		return
	}

	if p.cache != nil {
		var err error
		if status == domain.UserStatusOnline {
			err = p.cache.SetUserOnline(storeCtx, userID)
		} else {
			err = p.cache.SetUserOffline(storeCtx, userID)
		}
		if err != nil {
			log.Warn("Failed to update presence cache", zap.Error(err))
			p.metrics.RecordPresenceError("redis")
		}
	}

	n := p.registry.Broadcast(domain.EventUserStatus, domain.StatusEvent{
		UserID: userID,
		Status: status,
	}, userID)
	p.metrics.RecordPresenceUpdate(string(status))

	log.Debug("Presence published", zap.Int("recipients", n))
}

func (p *Publisher) current(userID uuid.UUID) domain.UserStatus {
	if p.registry.IsOnline(userID) {
		return domain.UserStatusOnline
	}
	return domain.UserStatusOffline
}

// Heartbeat extends the cached online flag of userID
func (p *Publisher) Heartbeat(ctx context.Context, userID uuid.UUID) {
	if p.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, constants.StoreTimeout)
	defer cancel()

	if err := p.cache.RefreshPresence(ctx, userID); err != nil {
		logger.FromContext(ctx).Debug("Failed to refresh presence",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		p.metrics.RecordPresenceError("redis")
	}
}

// Status reports whether userID is online. The live registry wins; the
// cache answers for users this process has not seen.
func (p *Publisher) Status(ctx context.Context, userID uuid.UUID) domain.UserStatus {
	if p.registry.IsOnline(userID) {
		return domain.UserStatusOnline
	}
	if p.cache == nil {
		return domain.UserStatusOffline
	}

	online, err := p.cache.IsUserOnline(ctx, userID)
	if err != nil {
		logger.FromContext(ctx).Debug("Presence cache lookup failed",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		return domain.UserStatusOffline
	}
	if online {
		return domain.UserStatusOnline
	}
	return domain.UserStatusOffline
}

// Package connection tracks the live socket connection of every online user.
package connection

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pulsechat-backend/pkg/logger"
	"pulsechat-backend/pkg/metrics"
)

// Handle is one live transport connection.
// Send must not block: implementations queue the event or fail.
type Handle interface {
	ID() string
	UserID() uuid.UUID
	Send(event string, payload any) error
	Close()
}

// Registry maps users to their single live connection (last connect wins)
type Registry struct {
	mu      sync.RWMutex
	byUser  map[uuid.UUID]Handle
	metrics *metrics.Metrics
}

// NewRegistry creates an empty registry. m may be nil.
func NewRegistry(m *metrics.Metrics) *Registry {
	return &Registry{
		byUser:  make(map[uuid.UUID]Handle),
		metrics: m,
	}
}

// Register maps h's user to h and returns the handle it displaced, if any.
// Registering the same handle twice returns nil.
func (r *Registry) Register(h Handle) Handle {
	r.mu.Lock()
	prev := r.byUser[h.UserID()]
	r.byUser[h.UserID()] = h
	count := len(r.byUser)
	r.mu.Unlock()

	r.metrics.SetWebSocketConnections(count)

	if prev == nil || prev.ID() == h.ID() {
		return nil
	}
	logger.Info("Connection replaced",
		zap.String("user_id", h.UserID().String()),
		zap.String("old_conn_id", prev.ID()),
		zap.String("conn_id", h.ID()))
	return prev
}

// Lookup returns the live handle of userID
func (r *Registry) Lookup(userID uuid.UUID) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.byUser[userID]
	return h, ok
}

// IsOnline reports whether userID has a live handle
func (r *Registry) IsOnline(userID uuid.UUID) bool {
	_, ok := r.Lookup(userID)
	return ok
}

// Unregister removes h if it is still the registered handle of its user.
// It returns false when h was already superseded or removed.
func (r *Registry) Unregister(h Handle) bool {
	r.mu.Lock()
	cur, ok := r.byUser[h.UserID()]
	if !ok || cur.ID() != h.ID() {
		r.mu.Unlock()
		return false
	}
	delete(r.byUser, h.UserID())
	count := len(r.byUser)
	r.mu.Unlock()

	r.metrics.SetWebSocketConnections(count)
	return true
}

// Deliver sends an event to h. Failures are logged and counted, never returned.
func (r *Registry) Deliver(h Handle, event string, payload any) bool {
	if h == nil {
		return false
	}
	if err := h.Send(event, payload); err != nil {
		logger.Debug("Dropped outbound event",
			zap.String("event", event),
			zap.String("user_id", h.UserID().String()),
			zap.String("conn_id", h.ID()),
			zap.Error(err))
		r.metrics.RecordDeliveryDropped(event)
		return false
	}
	r.metrics.RecordWebSocketMessage(event, "outbound")
	return true
}

// DeliverTo sends an event to userID's live handle, if any
func (r *Registry) DeliverTo(userID uuid.UUID, event string, payload any) bool {
	h, ok := r.Lookup(userID)
	if !ok {
		return false
	}
	return r.Deliver(h, event, payload)
}

// DeliverToMany sends an event to every online user in userIDs except one.
// It returns the number of handles that accepted the event.
func (r *Registry) DeliverToMany(userIDs []uuid.UUID, except uuid.UUID, event string, payload any) int {
	r.mu.RLock()
	targets := make([]Handle, 0, len(userIDs))
	for _, id := range userIDs {
		if id == except {
			continue
		}
		if h, ok := r.byUser[id]; ok {
			targets = append(targets, h)
		}
	}
	r.mu.RUnlock()

	return r.deliverAll(targets, event, payload)
}

// Broadcast sends an event to every live handle except the one owned by except
func (r *Registry) Broadcast(event string, payload any, except uuid.UUID) int {
	r.mu.RLock()
	targets := make([]Handle, 0, len(r.byUser))
	for id, h := range r.byUser {
		if id != except {
			targets = append(targets, h)
		}
	}
	r.mu.RUnlock()

	return r.deliverAll(targets, event, payload)
}

func (r *Registry) deliverAll(targets []Handle, event string, payload any) int {
	delivered := 0
	for _, h := range targets {
		if r.Deliver(h, event, payload) {
			delivered++
		}
	}
	return delivered
}

// Online returns the ids of all users with a live handle
func (r *Registry) Online() []uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]uuid.UUID, 0, len(r.byUser))
	for id := range r.byUser {
		ids = append(ids, id)
	}
	return ids
}

// Count returns the number of registered handles
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}

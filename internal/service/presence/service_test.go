package presence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"pulsechat-backend/internal/connection"
	"pulsechat-backend/internal/connection/connectiontest"
	"pulsechat-backend/internal/domain"
)

// MockStatusStore is a mock implementation of StatusStore
type MockStatusStore struct {
	mock.Mock
}

func (m *MockStatusStore) UpdateUserStatus(ctx context.Context, userID uuid.UUID, status domain.UserStatus, at time.Time) error {
	args := m.Called(ctx, userID, status, at)
	return args.Error(0)
}

// MockCache is a mock implementation of Cache
type MockCache struct {
	mock.Mock
}

func (m *MockCache) SetUserOnline(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *MockCache) SetUserOffline(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *MockCache) RefreshPresence(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *MockCache) IsUserOnline(ctx context.Context, userID uuid.UUID) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

func TestPublisher_Connected(t *testing.T) {
	registry := connection.NewRegistry(nil)
	store := new(MockStatusStore)
	cache := new(MockCache)
	p := NewPublisher(registry, store, cache, nil)

	user := connectiontest.NewHandle(uuid.New())
	other := connectiontest.NewHandle(uuid.New())
	registry.Register(user)
	registry.Register(other)

	store.On("UpdateUserStatus", mock.Anything, user.UserID(), domain.UserStatusOnline, mock.AnythingOfType("time.Time")).Return(nil)
	cache.On("SetUserOnline", mock.Anything, user.UserID()).Return(nil)

	p.Connected(context.Background(), user.UserID())

	store.AssertExpectations(t)
	cache.AssertExpectations(t)
	assert.Equal(t, []any{domain.StatusEvent{UserID: user.UserID(), Status: domain.UserStatusOnline}},
		other.Named(domain.EventUserStatus))
	assert.Equal(t, 0, user.Count(domain.EventUserStatus))
}

func TestPublisher_BroadcastsDespiteStoreFailure(t *testing.T) {
	registry := connection.NewRegistry(nil)
	store := new(MockStatusStore)
	cache := new(MockCache)
	p := NewPublisher(registry, store, cache, nil)

	userID := uuid.New()
	other := connectiontest.NewHandle(uuid.New())
	registry.Register(other)

	store.On("UpdateUserStatus", mock.Anything, userID, domain.UserStatusOffline, mock.Anything).Return(errors.New("db down"))
	cache.On("SetUserOffline", mock.Anything, userID).Return(errors.New("redis down"))

	p.Disconnected(context.Background(), userID)

	assert.Equal(t, []any{domain.StatusEvent{UserID: userID, Status: domain.UserStatusOffline}},
		other.Named(domain.EventUserStatus))
	store.AssertExpectations(t)
	cache.AssertExpectations(t)
}

func TestPublisher_WithoutCache(t *testing.T) {
	registry := connection.NewRegistry(nil)
	store := new(MockStatusStore)
	p := NewPublisher(registry, store, nil, nil)
	user := connectiontest.NewHandle(uuid.New())
	registry.Register(user)

	store.On("UpdateUserStatus", mock.Anything, user.UserID(), domain.UserStatusOnline, mock.Anything).Return(nil)

	p.Connected(context.Background(), user.UserID())
	p.Heartbeat(context.Background(), user.UserID())
	registry.Unregister(user)

	assert.Equal(t, domain.UserStatusOffline, p.Status(context.Background(), user.UserID()))
	store.AssertExpectations(t)
}

func TestPublisher_SkipsSupersededTransition(t *testing.T) {
	registry := connection.NewRegistry(nil)
	store := new(MockStatusStore)
	cache := new(MockCache)
	p := NewPublisher(registry, store, cache, nil)

	other := connectiontest.NewHandle(uuid.New())
	registry.Register(other)
	user := connectiontest.NewHandle(uuid.New())
	registry.Register(user)

	p.Disconnected(context.Background(), user.UserID())

	assert.Empty(t, other.Named(domain.EventUserStatus))
	store.AssertNotCalled(t, "UpdateUserStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	cache.AssertNotCalled(t, "SetUserOffline", mock.Anything, mock.Anything)
}

func TestPublisher_ReconnectDuringOfflineWrite(t *testing.T) {
	registry := connection.NewRegistry(nil)
	store := new(MockStatusStore)
	cache := new(MockCache)
	p := NewPublisher(registry, store, cache, nil)

	other := connectiontest.NewHandle(uuid.New())
	registry.Register(other)
	userID := uuid.New()

	store.On("UpdateUserStatus", mock.Anything, userID, domain.UserStatusOffline, mock.Anything).
		Run(func(mock.Arguments) { registry.Register(connectiontest.NewHandle(userID)) }).
		Return(nil).Once()
	store.On("UpdateUserStatus", mock.Anything, userID, domain.UserStatusOnline, mock.Anything).Return(nil).Once()

	p.Disconnected(context.Background(), userID)

	store.AssertExpectations(t)
	assert.Empty(t, other.Named(domain.EventUserStatus))
	cache.AssertNotCalled(t, "SetUserOffline", mock.Anything, mock.Anything)
}

func TestPublisher_Heartbeat(t *testing.T) {
	cache := new(MockCache)
	p := NewPublisher(connection.NewRegistry(nil), new(MockStatusStore), cache, nil)
	userID := uuid.New()

	cache.On("RefreshPresence", mock.Anything, userID).Return(nil)

	p.Heartbeat(context.Background(), userID)

	cache.AssertExpectations(t)
}

func TestPublisher_Status(t *testing.T) {
	registry := connection.NewRegistry(nil)
	cache := new(MockCache)
	p := NewPublisher(registry, new(MockStatusStore), cache, nil)

	live := connectiontest.NewHandle(uuid.New())
	registry.Register(live)
	cached := uuid.New()
	unknown := uuid.New()
	broken := uuid.New()

	cache.On("IsUserOnline", mock.Anything, cached).Return(true, nil)
	cache.On("IsUserOnline", mock.Anything, unknown).Return(false, nil)
	cache.On("IsUserOnline", mock.Anything, broken).Return(false, errors.New("redis down"))

	require.Equal(t, domain.UserStatusOnline, p.Status(context.Background(), live.UserID()))
	assert.Equal(t, domain.UserStatusOnline, p.Status(context.Background(), cached))
	assert.Equal(t, domain.UserStatusOffline, p.Status(context.Background(), unknown))
	assert.Equal(t, domain.UserStatusOffline, p.Status(context.Background(), broken))
	cache.AssertNotCalled(t, "IsUserOnline", mock.Anything, live.UserID())
}

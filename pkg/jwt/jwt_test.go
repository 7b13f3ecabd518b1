package jwt

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJWTManager(t *testing.T) {
	manager := NewJWTManager("test-secret-key-for-testing-purposes", "pulsechat-api", 15*time.Minute)

	assert.NotNil(t, manager)
	assert.Equal(t, "test-secret-key-for-testing-purposes", manager.secretKey)
	assert.Equal(t, "pulsechat-api", manager.audience)
	assert.Equal(t, 15*time.Minute, manager.accessTokenDuration)
}

func TestValidateToken_ValidToken(t *testing.T) {
	manager := NewJWTManager("test-secret", "pulsechat-api", 15*time.Minute)
	userID := uuid.New()

	token, err := manager.GenerateAccessToken(userID, "testuser", "user")
	require.NoError(t, err)

	claims, err := manager.ValidateToken(token)

	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, "testuser", claims.Username)
	assert.Equal(t, "user", claims.Role)
	assert.Equal(t, "pulsechat-auth", claims.Issuer)
	assert.Equal(t, userID.String(), claims.Subject)
	assert.NotEmpty(t, claims.ID)
}

func TestValidateToken_ExpiredToken(t *testing.T) {
	manager := NewJWTManager("test-secret", "pulsechat-api", -time.Minute)

	token, err := manager.GenerateAccessToken(uuid.New(), "testuser", "user")
	require.NoError(t, err)

	claims, err := manager.ValidateToken(token)

	assert.Error(t, err)
	assert.Nil(t, claims)
	assert.Contains(t, err.Error(), "expired")
}

func TestValidateToken_InvalidToken(t *testing.T) {
	manager := NewJWTManager("test-secret", "pulsechat-api", 15*time.Minute)

	claims, err := manager.ValidateToken("invalid.token.here")

	assert.Error(t, err)
	assert.Nil(t, claims)
}

func TestValidateToken_WrongSecret(t *testing.T) {
	issuerManager := NewJWTManager("secret-1", "pulsechat-api", 15*time.Minute)
	token, err := issuerManager.GenerateAccessToken(uuid.New(), "testuser", "user")
	require.NoError(t, err)

	verifier := NewJWTManager("secret-2", "pulsechat-api", 15*time.Minute)
	claims, err := verifier.ValidateToken(token)

	assert.Error(t, err)
	assert.Nil(t, claims)
}

func TestValidateToken_WrongAudience(t *testing.T) {
	issuerManager := NewJWTManager("test-secret", "other-api", 15*time.Minute)
	token, err := issuerManager.GenerateAccessToken(uuid.New(), "testuser", "user")
	require.NoError(t, err)

	verifier := NewJWTManager("test-secret", "pulsechat-api", 15*time.Minute)
	claims, err := verifier.ValidateToken(token)

	assert.Error(t, err)
	assert.Nil(t, claims)
}

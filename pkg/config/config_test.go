package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, 8085, cfg.Server.Port)
	assert.Equal(t, []int{15, 30, 45}, cfg.Calls.AllowedDurations)
	assert.Equal(t, 30, cfg.Calls.DefaultDuration)
	assert.Equal(t, ":8085", cfg.Server.Addr())
}

func TestLoad_CallDurationsFromEnv(t *testing.T) {
	t.Setenv("CALL_DURATIONS", "5, 10")
	t.Setenv("CALL_DEFAULT_DURATION", "10")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, []int{5, 10}, cfg.Calls.AllowedDurations)
	assert.Equal(t, 10, cfg.Calls.DefaultDuration)
}

func TestLoad_DefaultDurationMustBeAllowed(t *testing.T) {
	t.Setenv("CALL_DURATIONS", "15,45")

	_, err := Load()

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "CALL_DEFAULT_DURATION")
}

func TestLoad_ProductionRequiresStrongSecret(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("JWT_SECRET", "short")

	_, err := Load()

	assert.Error(t, err)
}

func TestLoad_SecretFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jwt")
	require.NoError(t, os.WriteFile(path, []byte("a-very-long-secret-that-is-over-32-chars\n"), 0o600))
	t.Setenv("ENV", "production")
	t.Setenv("JWT_SECRET_FILE", path)

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "a-very-long-secret-that-is-over-32-chars", cfg.JWT.Secret)
}

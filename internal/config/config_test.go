package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("OTP_STATIC_CODE", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.JWTSecret, "no secret may be injected when unset")
	assert.Equal(t, 10*time.Minute, cfg.OtpTTL)
	assert.Equal(t, 5, cfg.OtpMaxAttempts)
	assert.Equal(t, 720*time.Hour, cfg.TokenTTL)
	assert.Equal(t, 5*time.Second, cfg.StorageTimeout)
	assert.Equal(t, ":8080", cfg.Address())
	assert.False(t, cfg.IsProduction())
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("APP_ENV", " Production ")
	t.Setenv("JWT_SECRET", "  0123456789abcdef0123456789abcdef  ")
	t.Setenv("OTP_TTL", "5m")
	t.Setenv("OTP_MAX_ATTEMPTS", "3")
	t.Setenv("STORAGE_TIMEOUT", "750ms")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "0123456789abcdef0123456789abcdef", cfg.JWTSecret)
	assert.Equal(t, 5*time.Minute, cfg.OtpTTL)
	assert.Equal(t, 3, cfg.OtpMaxAttempts)
	assert.Equal(t, 750*time.Millisecond, cfg.StorageTimeout)
}

func TestLoadRejectsMalformedDuration(t *testing.T) {
	t.Setenv("OTP_TTL", "ten minutes")

	_, err := Load()
	require.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLevel("WARN"))
	assert.Equal(t, slog.LevelInfo, parseLevel("loud"))
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_parseEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env")
	t.Setenv("ACCESS_TOKEN_TTL", "10m")
	t.Setenv("LOGIN_MAX_ATTEMPTS", "9")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example ,")

	cfg := &Config{}
	cfg.LoadDefaults()
	require.NoError(t, parseEnv(cfg, ""))

	assert.Equal(t, "postgres://env", cfg.DatabaseDSN)
	assert.Equal(t, 10*time.Minute, cfg.AccessTokenValidityDuration)
	assert.Equal(t, 9, cfg.LoginMaxAttempts)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
}

func Test_parseEnv_Errors(t *testing.T) {
	t.Run("bad duration", func(t *testing.T) {
		t.Setenv("REFRESH_TOKEN_TTL", "a week")
		assert.Error(t, parseEnv(&Config{}, ""))
	})
	t.Run("bad int", func(t *testing.T) {
		t.Setenv("AUDIT_BUFFER_SIZE", "many")
		assert.Error(t, parseEnv(&Config{}, ""))
	})
	t.Run("missing explicit env file", func(t *testing.T) {
		assert.Error(t, parseEnv(&Config{}, "/nonexistent/.env"))
	})
}

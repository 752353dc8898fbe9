package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsAndEnv(t *testing.T) {
	t.Setenv("JWT_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("PORT", "9090")
	t.Setenv("SWEEPER_INTERVAL", "90s")
	t.Setenv("REDIS_ADDRESS", "cache:6379")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, BackendSQL, cfg.Store.Backend)
	assert.Equal(t, 90*time.Second, cfg.Sweeper.Interval)
	assert.Equal(t, int64(5<<20), cfg.Upload.MaxBytes)
	assert.Equal(t, "none", cfg.PubSub.Driver)
	assert.Equal(t, "cache:6379", cfg.PubSub.Redis.Address)
	assert.Equal(t, "/uploads", cfg.Storage.Local.PublicPrefix)
	assert.Equal(t, 60, cfg.RateLimit.RequestsPerMinute)
}

func TestLoad_RequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	_, err := Load()
	assert.Error(t, err)
}

func TestValidate_Backend(t *testing.T) {
	cfg := &Config{
		JWT:    JWTConfig{Secret: "s"},
		Store:  StoreConfig{Backend: "mongo"},
		Upload: UploadConfig{MaxBytes: 1},
	}
	assert.Error(t, cfg.Validate())

	cfg.Store.Backend = BackendDynamoDB
	assert.NoError(t, cfg.Validate())
}

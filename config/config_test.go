package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsAndEnvironment(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("DIRECTORY_SEED_FILE", "contests.yaml")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")
	t.Setenv("HUB_MAX_DROPS", "8")
	t.Setenv("RATE_LIMIT_IDLE_TIMEOUT", "90s")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "6001", cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, DriverBadger, cfg.Storage.Driver)
	assert.Equal(t, "s3cret", cfg.JWT.Secret)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 256, cfg.Hub.SendBuffer)
	assert.Equal(t, 8, cfg.Hub.MaxDrops)
	assert.Equal(t, 90*time.Second, cfg.RateLimit.IdleTimeout)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, 30*time.Second, cfg.Kafka.RetryMaxBackoff)
	host, _ := os.Hostname()
	assert.Equal(t, host, cfg.Server.InstanceID)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
jwt:
  secret: from-file
storage:
  driver: postgres
  postgres:
    dsn: postgres://contest@localhost/contest
redis:
  enabled: true
  host: redis.internal
log:
  level: debug
`), 0o600))
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("INSTANCE_ID", "engine-2")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.JWT.Secret)
	assert.Equal(t, DriverPostgres, cfg.Storage.Driver)
	assert.Equal(t, "postgres://contest@localhost/contest", cfg.Storage.Postgres.DSN)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "redis.internal", cfg.Redis.Host)
	assert.Equal(t, 6380, cfg.Redis.Port)
	assert.Equal(t, "engine-2", cfg.Server.InstanceID)
	assert.Equal(t, zerolog.DebugLevel, cfg.Log.Logger().GetLevel())
}

func TestValidate(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")

	t.Setenv("JWT_SECRET", "x")
	t.Setenv("STORAGE_DRIVER", "sqlite")
	_, err = Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sqlite")

	t.Setenv("STORAGE_DRIVER", DriverPostgres)
	_, err = Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")

	t.Setenv("DATABASE_URL", "postgres://localhost/contest")
	t.Setenv("LOG_LEVEL", "loud")
	_, err = Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log.level")
}

func TestMissingConfigFileFails(t *testing.T) {
	t.Setenv("JWT_SECRET", "x")
	t.Setenv("DIRECTORY_SEED_FILE", "contests.yaml")
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

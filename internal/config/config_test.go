package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Setenv("POSTGRES_HOST", "db")
	t.Setenv("POSTGRES_USER", "postgres")
	t.Setenv("POSTGRES_PASSWORD", "postgres")
	t.Setenv("POSTGRES_DATABASE", "postgres")
	t.Setenv("REDIS_HOST", "redis")
}

func TestLoadFromEnv(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, Postgres{
		Host:     "db",
		Port:     "5432",
		Database: "postgres",
		User:     "postgres",
		Password: "postgres",
		SSLMode:  "disable",
	}, cfg.Postgres)
	assert.Equal(t, QueueBackendRedis, cfg.QueueBackend)
	assert.Equal(t, "votes", cfg.QueueKey)
	assert.Equal(t, "redis", cfg.RedisHost)
	assert.Equal(t, "6379", cfg.RedisPort)
	assert.Equal(t, 100*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, time.Second, cfg.RetryInterval)
	assert.Equal(t, "drop", cfg.UnpersistedVotes)
	assert.Empty(t, cfg.HealthAddr)
}

func TestLoadFlagsOverrideEnv(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("WORKER_POLL_INTERVAL", "250ms")

	cfg, err := Load([]string{"-db-host", "other", "-retry-interval", "2s", "-unpersisted-votes", "requeue"})
	require.NoError(t, err)

	assert.Equal(t, "other", cfg.Postgres.Host)
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 2*time.Second, cfg.RetryInterval)
	assert.Equal(t, "requeue", cfg.UnpersistedVotes)
}

func TestLoadMissingRequired(t *testing.T) {
	t.Setenv("POSTGRES_HOST", "")
	t.Setenv("POSTGRES_USER", "")
	t.Setenv("POSTGRES_DATABASE", "")
	t.Setenv("REDIS_HOST", "")

	_, err := Load(nil)
	require.Error(t, err)
	assert.Equal(t, "missing configuration: POSTGRES_HOST, POSTGRES_USER, POSTGRES_DATABASE, REDIS_HOST", err.Error())
}

func TestLoadAMQPRequiresURL(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("QUEUE_BACKEND", "amqp")
	t.Setenv("RABBITMQ_URL", "")

	_, err := Load(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RABBITMQ_URL")
}

func TestLoadUnknownBackend(t *testing.T) {
	setRequiredEnv(t)

	_, err := Load([]string{"-queue", "kafka"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown queue backend")
}

func TestLoadInvalidDuration(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("WORKER_RETRY_INTERVAL", "soon")

	_, err := Load(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WORKER_RETRY_INTERVAL")
}

package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	QueueBackendRedis = "redis"
	QueueBackendAMQP  = "amqp"
)

type Postgres struct {
	Host     string
	Port     string
	Database string
	User     string
	Password string
	SSLMode  string
}

type Config struct {
	Postgres Postgres

	QueueBackend string
	QueueKey     string
	RedisHost    string
	RedisPort    string
	RabbitMQURL  string

	PollInterval     time.Duration
	RetryInterval    time.Duration
	UnpersistedVotes string

	HealthAddr string
}

// Load reads the configuration from flags, falling back to environment
// variables for every unset flag.
func Load(args []string) (Config, error) {
	var cfg Config

	pollInterval, err := envDuration("WORKER_POLL_INTERVAL", 100*time.Millisecond)
	if err != nil {
		return Config{}, err
	}
	retryInterval, err := envDuration("WORKER_RETRY_INTERVAL", time.Second)
	if err != nil {
		return Config{}, err
	}

	fs := flag.NewFlagSet("worker", flag.ContinueOnError)
	fs.StringVar(&cfg.Postgres.Host, "db-host", os.Getenv("POSTGRES_HOST"), "Database host")
	fs.StringVar(&cfg.Postgres.Port, "db-port", envOr("POSTGRES_PORT", "5432"), "Database port")
	fs.StringVar(&cfg.Postgres.User, "db-user", os.Getenv("POSTGRES_USER"), "Database user")
	fs.StringVar(&cfg.Postgres.Password, "db-pass", os.Getenv("POSTGRES_PASSWORD"), "Database password")
	fs.StringVar(&cfg.Postgres.Database, "db-name", os.Getenv("POSTGRES_DATABASE"), "Database name")
	fs.StringVar(&cfg.Postgres.SSLMode, "db-sslmode", envOr("POSTGRES_SSLMODE", "disable"), "Database sslmode")
	fs.StringVar(&cfg.QueueBackend, "queue", envOr("QUEUE_BACKEND", QueueBackendRedis), "Queue backend (redis or amqp)")
	fs.StringVar(&cfg.QueueKey, "queue-key", envOr("QUEUE_KEY", "votes"), "Redis list or RabbitMQ queue holding votes")
	fs.StringVar(&cfg.RedisHost, "redis-host", os.Getenv("REDIS_HOST"), "Redis host")
	fs.StringVar(&cfg.RedisPort, "redis-port", envOr("REDIS_PORT", "6379"), "Redis port")
	fs.StringVar(&cfg.RabbitMQURL, "rabbitmq-url", os.Getenv("RABBITMQ_URL"), "RabbitMQ URL")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", pollInterval, "Pause between loop iterations")
	fs.DurationVar(&cfg.RetryInterval, "retry-interval", retryInterval, "Pause between connection attempts")
	fs.StringVar(&cfg.UnpersistedVotes, "unpersisted-votes", envOr("WORKER_UNPERSISTED_VOTES", "drop"), "What to do with a vote popped while the store is down (drop or requeue)")
	fs.StringVar(&cfg.HealthAddr, "health-addr", os.Getenv("HEALTH_ADDR"), "Status endpoint address, disabled when empty")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	var missing []string
	if c.Postgres.Host == "" {
		missing = append(missing, "POSTGRES_HOST")
	}
	if c.Postgres.User == "" {
		missing = append(missing, "POSTGRES_USER")
	}
	if c.Postgres.Database == "" {
		missing = append(missing, "POSTGRES_DATABASE")
	}

	switch c.QueueBackend {
	case QueueBackendRedis:
		if c.RedisHost == "" {
			missing = append(missing, "REDIS_HOST")
		}
	case QueueBackendAMQP:
		if c.RabbitMQURL == "" {
			missing = append(missing, "RABBITMQ_URL")
		}
	default:
		return fmt.Errorf("unknown queue backend %q", c.QueueBackend)
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing configuration: %s", strings.Join(missing, ", "))
	}
	if c.PollInterval <= 0 || c.RetryInterval <= 0 {
		return fmt.Errorf("poll and retry intervals must be positive")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

package redis

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"
	goredis "github.com/go-redis/redis/v8"
	"github.com/vncsmyrnk/voteworker/internal/adapters/netutil"
	"github.com/vncsmyrnk/voteworker/internal/core/domain"
	"github.com/vncsmyrnk/voteworker/internal/core/ports"
)

type Config struct {
	Host          string
	Port          string
	Key           string
	RetryInterval time.Duration
}

// Queue pops vote records from the head of a Redis list. Producers RPUSH.
type Queue struct {
	client    *goredis.Client
	key       string
	connected bool
}

// Connect resolves the Redis host and blocks until a PING succeeds or ctx
// is done.
func Connect(ctx context.Context, cfg Config) (*Queue, error) {
	var client *goredis.Client

	operation := func() error {
		ip, err := netutil.ResolveIPv4(ctx, cfg.Host)
		if err != nil {
			return err
		}
		addr := net.JoinHostPort(ip, cfg.Port)
		log.Printf("Found redis at %s", addr)

		log.Println("Connecting to redis")
		c := goredis.NewClient(&goredis.Options{
			Addr: addr,
			// LPOP is not idempotent, a retried pop could lose a record.
			MaxRetries: -1,
		})
		if err := c.Ping(ctx).Err(); err != nil {
			c.Close()
			return err
		}

		client = c
		return nil
	}

	notify := func(err error, wait time.Duration) {
		log.Printf("Waiting for redis: %v", err)
	}

	b := backoff.WithContext(backoff.NewConstantBackOff(cfg.RetryInterval), ctx)
	if err := backoff.RetryNotify(operation, b, notify); err != nil {
		return nil, err
	}

	return &Queue{client: client, key: cfg.Key, connected: true}, nil
}

// Connector adapts Connect to ports.QueueConnector.
func Connector(cfg Config) ports.QueueConnector {
	return func(ctx context.Context) (ports.VoteQueue, error) {
		q, err := Connect(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return q, nil
	}
}

func (q *Queue) IsConnected() bool {
	return q != nil && q.client != nil && q.connected
}

func (q *Queue) PopVote(ctx context.Context) ([]byte, bool, error) {
	record, err := q.client.LPop(ctx, q.key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, q.fail("failed to pop vote", err)
	}
	return record, true, nil
}

// Requeue pushes record back to the head of the list so it is the next one
// popped.
func (q *Queue) Requeue(ctx context.Context, record []byte) error {
	if err := q.client.LPush(ctx, q.key, record).Err(); err != nil {
		return q.fail("failed to requeue vote", err)
	}
	return nil
}

func (q *Queue) Close() error {
	q.connected = false
	return q.client.Close()
}

// fail marks the queue disconnected unless Redis itself answered with an
// error reply, which leaves the connection usable.
func (q *Queue) fail(msg string, err error) error {
	var reply goredis.Error
	if errors.As(err, &reply) {
		return fmt.Errorf("%s: %w", msg, err)
	}
	q.connected = false
	return fmt.Errorf("%s: %w: %w", msg, domain.ErrQueueUnavailable, err)
}

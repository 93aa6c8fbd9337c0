package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/vncsmyrnk/voteworker/internal/adapters/netutil"
	"github.com/vncsmyrnk/voteworker/internal/core/domain"
	"github.com/vncsmyrnk/voteworker/internal/core/ports"
)

const defaultPort = "5672"

type Config struct {
	URL           string
	Queue         string
	RetryInterval time.Duration
}

// Queue pops vote records from a durable RabbitMQ queue with basic.get.
// Records are auto-acknowledged, matching the at-most-once semantics of
// the Redis backend.
type Queue struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

// Connect dials the broker and declares the queue, blocking until both
// succeed or ctx is done. A malformed URL is returned immediately.
func Connect(ctx context.Context, cfg Config) (*Queue, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid rabbitmq url: %w", err)
	}

	var q *Queue
	operation := func() error {
		port := u.Port()
		if port == "" {
			port = defaultPort
		}
		ip, err := netutil.ResolveIPv4(ctx, u.Hostname())
		if err != nil {
			return err
		}
		dialURL := *u
		dialURL.Host = net.JoinHostPort(ip, port)
		log.Printf("Found rabbitmq at %s", dialURL.Host)

		log.Println("Connecting to rabbitmq")
		conn, err := amqp.Dial(dialURL.String())
		if err != nil {
			return err
		}

		ch, err := conn.Channel()
		if err != nil {
			conn.Close()
			return fmt.Errorf("failed to open channel: %w", err)
		}

		_, err = ch.QueueDeclare(
			cfg.Queue,
			true,
			false,
			false,
			false,
			nil,
		)
		if err != nil {
			conn.Close()
			return fmt.Errorf("failed to declare queue: %w", err)
		}

		q = &Queue{conn: conn, ch: ch, queue: cfg.Queue}
		return nil
	}

	notify := func(err error, wait time.Duration) {
		log.Printf("Waiting for rabbitmq: %v", err)
	}

	b := backoff.WithContext(backoff.NewConstantBackOff(cfg.RetryInterval), ctx)
	if err := backoff.RetryNotify(operation, b, notify); err != nil {
		return nil, err
	}

	return q, nil
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
	return q != nil && q.conn != nil && !q.conn.IsClosed() && !q.ch.IsClosed()
}

func (q *Queue) PopVote(ctx context.Context) ([]byte, bool, error) {
	d, ok, err := q.ch.Get(q.queue, true)
	if err != nil {
		return nil, false, wrapError("failed to pop vote", err)
	}
	if !ok {
		return nil, false, nil
	}
	return d.Body, true, nil
}

// Requeue publishes record back to the queue. AMQP has no way to insert at
// the head, so the record goes to the tail.
func (q *Queue) Requeue(ctx context.Context, record []byte) error {
	err := q.ch.PublishWithContext(ctx,
		"",
		q.queue,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         record,
		},
	)
	if err != nil {
		return wrapError("failed to requeue vote", err)
	}
	return nil
}

func (q *Queue) Close() error {
	if err := q.ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		q.conn.Close()
		return err
	}
	return q.conn.Close()
}

func wrapError(msg string, err error) error {
	return fmt.Errorf("%s: %w: %w", msg, domain.ErrQueueUnavailable, err)
}

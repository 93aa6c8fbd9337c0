package integration

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"

	"github.com/vncsmyrnk/voteworker/internal/adapters/codec"
	"github.com/vncsmyrnk/voteworker/internal/adapters/queue/rabbitmq"
	redisqueue "github.com/vncsmyrnk/voteworker/internal/adapters/queue/redis"
	repo "github.com/vncsmyrnk/voteworker/internal/adapters/repository/postgres"
	"github.com/vncsmyrnk/voteworker/internal/core/domain"
	"github.com/vncsmyrnk/voteworker/internal/core/ports"
	"github.com/vncsmyrnk/voteworker/internal/core/services"
)

type workerApp struct {
	Store  *storeFixture
	Redis  *redis.Client
	Worker *services.WorkerService
	cancel context.CancelFunc
	done   chan error
}

func setupWorkerApp(t *testing.T, policy services.UnpersistedVotePolicy, pgOpts ...testcontainers.ContainerCustomizer) *workerApp {
	t.Helper()
	ctx := context.Background()

	store := setupStore(t, pgOpts...)

	redisContainer, host, port, err := setupRedisContainer(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { terminate(t, redisContainer) })

	rdb := redis.NewClient(&redis.Options{Addr: host + ":" + port})
	t.Cleanup(func() { rdb.Close() })

	worker := services.NewWorkerService(
		services.WorkerConfig{WorkerID: "it", PollInterval: 10 * time.Millisecond, UnpersistedVotes: policy},
		redisqueue.Connector(redisqueue.Config{
			Host:          host,
			Port:          port,
			Key:           "votes",
			RetryInterval: 100 * time.Millisecond,
		}),
		repo.Connector(store.Config),
		codec.NewJSONVoteDecoder(),
	)

	runCtx, cancel := context.WithCancel(ctx)
	app := &workerApp{Store: store, Redis: rdb, Worker: worker, cancel: cancel, done: make(chan error, 1)}
	go func() { app.done <- worker.Run(runCtx) }()
	t.Cleanup(app.stop)

	return app
}

func (app *workerApp) stop() {
	app.cancel()
	select {
	case <-app.done:
	case <-time.After(10 * time.Second):
	}
}

func (app *workerApp) waitForVote(t *testing.T, voterID, want string, timeout time.Duration) {
	t.Helper()
	require.Eventually(t, func() bool {
		record, err := getVote(context.Background(), app.Store.DB, voterID)
		return err == nil && record != nil && record.Vote == want
	}, timeout, 50*time.Millisecond)
}

func TestWorkerPersistsLatestVote(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	app := setupWorkerApp(t, services.DropUnpersisted)
	ctx := context.Background()

	require.NoError(t, app.Redis.RPush(ctx, "votes", `{"voter_id":"v1","vote":"a"}`).Err())
	require.NoError(t, app.Redis.RPush(ctx, "votes", `{"voter_id":"v1","vote":"b"}`).Err())

	app.waitForVote(t, "v1", "b", 30*time.Second)

	length, err := app.Redis.LLen(ctx, "votes").Result()
	require.NoError(t, err)
	assert.Zero(t, length)
}

func TestWorkerSurvivesMalformedRecord(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	app := setupWorkerApp(t, services.DropUnpersisted)
	ctx := context.Background()

	require.NoError(t, app.Redis.RPush(ctx, "votes", `{"vote":"a"}`).Err())
	require.NoError(t, app.Redis.RPush(ctx, "votes", `{"voter_id":"v2","vote":"b"}`).Err())

	app.waitForVote(t, "v2", "b", 30*time.Second)

	select {
	case err := <-app.done:
		t.Fatalf("worker stopped: %v", err)
	default:
	}
}

func TestWorkerReportsStatus(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	app := setupWorkerApp(t, services.DropUnpersisted)

	require.Eventually(t, func() bool {
		status := app.Worker.Status()
		return status.Queue.String() == "connected" && status.Store.String() == "connected"
	}, 30*time.Second, 50*time.Millisecond)
}

func TestWorkerResumesAfterStoreRestart(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	app := setupWorkerApp(t, services.RequeueUnpersisted, withFixedHostPort(t, "5432/tcp"))
	ctx := context.Background()

	require.NoError(t, app.Redis.RPush(ctx, "votes", `{"voter_id":"v1","vote":"a"}`).Err())
	app.waitForVote(t, "v1", "a", 30*time.Second)

	timeout := 10 * time.Second
	require.NoError(t, app.Store.DBContainer.Stop(ctx, &timeout))

	require.Eventually(t, func() bool {
		return app.Worker.Status().Store == domain.Disconnected
	}, 30*time.Second, 50*time.Millisecond)

	require.NoError(t, app.Redis.RPush(ctx, "votes", `{"voter_id":"v1","vote":"b"}`).Err())
	// Give the worker time to pop the vote and block on the store.
	time.Sleep(time.Second)

	require.NoError(t, app.Store.DBContainer.Start(ctx))

	app.waitForVote(t, "v1", "b", 60*time.Second)
	assert.Equal(t, 1, countVotes(t, app.Store.DB, "v1"))

	select {
	case err := <-app.done:
		t.Fatalf("worker stopped: %v", err)
	default:
	}
}

func TestAMQPQueuePopsInOrder(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	ctx := context.Background()
	rabbitContainer, url, err := setupRabbitMQContainer(ctx)
	require.NoError(t, err)
	defer terminate(t, rabbitContainer)

	var q ports.VoteQueue
	q, err = rabbitmq.Connect(ctx, rabbitmq.Config{URL: url, Queue: "votes", RetryInterval: 100 * time.Millisecond})
	require.NoError(t, err)
	defer q.Close()
	require.True(t, q.IsConnected())

	_, ok, err := q.PopVote(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, q.Requeue(ctx, []byte(`{"voter_id":"v1","vote":"a"}`)))
	require.NoError(t, q.Requeue(ctx, []byte(`{"voter_id":"v2","vote":"b"}`)))

	var records []string
	require.Eventually(t, func() bool {
		record, ok, err := q.PopVote(ctx)
		if err == nil && ok {
			records = append(records, string(record))
		}
		return len(records) == 2
	}, 10*time.Second, 20*time.Millisecond)

	assert.Equal(t, []string{`{"voter_id":"v1","vote":"a"}`, `{"voter_id":"v2","vote":"b"}`}, records)
}

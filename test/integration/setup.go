package integration

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/go-connections/nat"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	repo "github.com/vncsmyrnk/voteworker/internal/adapters/repository/postgres"
	"github.com/vncsmyrnk/voteworker/internal/core/domain"
	"github.com/vncsmyrnk/voteworker/internal/core/ports"
)

func setupPostgresContainer(ctx context.Context, opts ...testcontainers.ContainerCustomizer) (testcontainers.Container, repo.Config, error) {
	dbName := "testdb"
	user := "user"
	password := "password"

	opts = append([]testcontainers.ContainerCustomizer{
		postgres.WithDatabase(dbName),
		postgres.WithUsername(user),
		postgres.WithPassword(password),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	}, opts...)

	pgContainer, err := postgres.Run(ctx, "postgres:15-alpine", opts...)
	if err != nil {
		return nil, repo.Config{}, fmt.Errorf("failed to start postgres container: %w", err)
	}

	host, err := pgContainer.Host(ctx)
	if err != nil {
		return nil, repo.Config{}, err
	}
	port, err := pgContainer.MappedPort(ctx, "5432/tcp")
	if err != nil {
		return nil, repo.Config{}, err
	}

	return pgContainer, repo.Config{
		Host:           host,
		Port:           port.Port(),
		Database:       dbName,
		User:           user,
		Password:       password,
		SSLMode:        "disable",
		RetryInterval:  100 * time.Millisecond,
		ConnectTimeout: 2 * time.Second,
	}, nil
}

// withFixedHostPort binds the container port to a fixed host port, so a
// stopped and restarted container is reachable at the same address.
func withFixedHostPort(t *testing.T, containerPort string) testcontainers.CustomizeRequestOption {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	hostPort := strconv.Itoa(l.Addr().(*net.TCPAddr).Port)
	require.NoError(t, l.Close())

	return testcontainers.WithHostConfigModifier(func(hc *container.HostConfig) {
		hc.PortBindings = nat.PortMap{
			nat.Port(containerPort): {{HostIP: "127.0.0.1", HostPort: hostPort}},
		}
	})
}

func setupRedisContainer(ctx context.Context) (testcontainers.Container, string, string, error) {
	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
	}
	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, "", "", fmt.Errorf("failed to start redis container: %w", err)
	}

	host, err := redisContainer.Host(ctx)
	if err != nil {
		return nil, "", "", err
	}
	port, err := redisContainer.MappedPort(ctx, "6379/tcp")
	if err != nil {
		return nil, "", "", err
	}

	return redisContainer, host, port.Port(), nil
}

func setupRabbitMQContainer(ctx context.Context) (testcontainers.Container, string, error) {
	req := testcontainers.ContainerRequest{
		Image:        "rabbitmq:3.13-alpine",
		ExposedPorts: []string{"5672/tcp"},
		WaitingFor:   wait.ForLog("Server startup complete").WithStartupTimeout(60 * time.Second),
	}
	rabbitContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to start rabbitmq container: %w", err)
	}

	host, err := rabbitContainer.Host(ctx)
	if err != nil {
		return nil, "", err
	}
	port, err := rabbitContainer.MappedPort(ctx, "5672/tcp")
	if err != nil {
		return nil, "", err
	}

	return rabbitContainer, fmt.Sprintf("amqp://guest:guest@%s:%s/", host, port.Port()), nil
}

func terminate(t *testing.T, c testcontainers.Container) {
	t.Helper()
	if err := testcontainers.TerminateContainer(c); err != nil {
		t.Logf("failed to terminate container: %v", err)
	}
}

type storeFixture struct {
	Repo        ports.VoteRepository
	DB          *sql.DB
	Config      repo.Config
	DBContainer testcontainers.Container
}

func setupStore(t *testing.T, opts ...testcontainers.ContainerCustomizer) *storeFixture {
	t.Helper()
	ctx := context.Background()

	pgContainer, cfg, err := setupPostgresContainer(ctx, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { terminate(t, pgContainer) })

	r, err := repo.Connect(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })

	db, err := sql.Open("postgres", cfg.DSN())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return &storeFixture{Repo: r, DB: db, Config: cfg, DBContainer: pgContainer}
}

func getVote(ctx context.Context, db *sql.DB, voterID string) (*domain.VoteRecord, error) {
	record := &domain.VoteRecord{}
	err := db.QueryRowContext(ctx, "SELECT id, vote FROM votes WHERE id = $1", voterID).Scan(&record.ID, &record.Vote)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return record, nil
}

func countVotes(t *testing.T, db *sql.DB, voterID string) int {
	t.Helper()
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM votes WHERE id = $1", voterID).Scan(&count)
	require.NoError(t, err)
	return count
}

package main

import (
	"context"
	"errors"
	"log"
	stdhttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/vncsmyrnk/voteworker/internal/adapters/codec"
	"github.com/vncsmyrnk/voteworker/internal/adapters/handler/http"
	"github.com/vncsmyrnk/voteworker/internal/adapters/queue/rabbitmq"
	"github.com/vncsmyrnk/voteworker/internal/adapters/queue/redis"
	"github.com/vncsmyrnk/voteworker/internal/adapters/repository/postgres"
	"github.com/vncsmyrnk/voteworker/internal/config"
	"github.com/vncsmyrnk/voteworker/internal/core/ports"
	"github.com/vncsmyrnk/voteworker/internal/core/services"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatal(err)
	}

	policy, err := services.ParseUnpersistedVotePolicy(cfg.UnpersistedVotes)
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	connectStore := postgres.Connector(postgres.Config{
		Host:          cfg.Postgres.Host,
		Port:          cfg.Postgres.Port,
		Database:      cfg.Postgres.Database,
		User:          cfg.Postgres.User,
		Password:      cfg.Postgres.Password,
		SSLMode:       cfg.Postgres.SSLMode,
		RetryInterval: cfg.RetryInterval,
	})

	workerID := uuid.NewString()
	worker := services.NewWorkerService(
		services.WorkerConfig{
			WorkerID:         workerID,
			PollInterval:     cfg.PollInterval,
			UnpersistedVotes: policy,
		},
		queueConnector(cfg),
		connectStore,
		codec.NewJSONVoteDecoder(),
	)

	var server *stdhttp.Server
	if cfg.HealthAddr != "" {
		server = &stdhttp.Server{Addr: cfg.HealthAddr, Handler: http.NewHandler(http.NewStatusHandler(worker))}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
				log.Printf("Status server stopped: %v", err)
			}
		}()
	}

	log.Printf("Starting vote worker %s (queue: %s)", workerID, cfg.QueueBackend)
	runErr := worker.Run(ctx)

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("Failed to shut down status server: %v", err)
		}
	}

	if runErr != nil {
		stop()
		log.Fatalf("Worker stopped: %v", runErr)
	}
	log.Println("Gracefully shut down")
}

func queueConnector(cfg config.Config) ports.QueueConnector {
	if cfg.QueueBackend == config.QueueBackendAMQP {
		return rabbitmq.Connector(rabbitmq.Config{
			URL:           cfg.RabbitMQURL,
			Queue:         cfg.QueueKey,
			RetryInterval: cfg.RetryInterval,
		})
	}
	return redis.Connector(redis.Config{
		Host:          cfg.RedisHost,
		Port:          cfg.RedisPort,
		Key:           cfg.QueueKey,
		RetryInterval: cfg.RetryInterval,
	})
}

package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/lib/pq"
	"github.com/vncsmyrnk/voteworker/internal/core/domain"
	"github.com/vncsmyrnk/voteworker/internal/core/ports"
)

//go:embed migrations/000001_create_votes_table.up.sql
var createVotesTable string

type voteRepository struct {
	db      *sql.DB
	healthy bool
}

func NewVoteRepository(db *sql.DB) ports.VoteRepository {
	return &voteRepository{
		db:      db,
		healthy: true,
	}
}

// Connect opens the store and blocks until it answers a ping. Network and
// Postgres errors are retried every cfg.RetryInterval. Any other failure
// aborts with an error wrapping domain.ErrStoreFatal. The votes table is
// created if missing.
func Connect(ctx context.Context, cfg Config) (ports.VoteRepository, error) {
	var db *sql.DB

	operation := func() error {
		conn, err := sql.Open("postgres", cfg.DSN())
		if err != nil {
			log.Printf("%s while trying to connect to DB: %v", unexpectedError, err)
			return backoff.Permanent(fmt.Errorf("%w: %w", domain.ErrStoreFatal, err))
		}

		if err := conn.PingContext(ctx); err != nil {
			conn.Close()
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			if class := classifyError(err); class == unexpectedError {
				log.Printf("%s while trying to connect to DB: %v", class, err)
				return backoff.Permanent(fmt.Errorf("%w: %w", domain.ErrStoreFatal, err))
			}
			return err
		}

		db = conn
		return nil
	}

	notify := func(err error, wait time.Duration) {
		log.Printf("%s while trying to connect to DB: %v", classifyError(err), err)
	}

	b := backoff.WithContext(backoff.NewConstantBackOff(cfg.RetryInterval), ctx)
	if err := backoff.RetryNotify(operation, b, notify); err != nil {
		return nil, err
	}

	// One connection is enough for a single worker loop.
	db.SetMaxOpenConns(1)

	if err := ensureTable(ctx, db); err != nil {
		log.Printf("Error while trying to create 'votes' table: %v", err)
	}
	log.Println("Connected to DB")

	return NewVoteRepository(db), nil
}

// Connector adapts Connect to ports.RepositoryConnector.
func Connector(cfg Config) ports.RepositoryConnector {
	return func(ctx context.Context) (ports.VoteRepository, error) {
		return Connect(ctx, cfg)
	}
}

func ensureTable(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, createVotesTable); err != nil {
		return fmt.Errorf("failed to create votes table: %w", err)
	}
	return nil
}

func (r *voteRepository) IsHealthy() bool {
	return r.db != nil && r.healthy
}

func (r *voteRepository) KeepAlive(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, "SELECT 1"); err != nil {
		r.healthy = false
		return fmt.Errorf("%w: keep-alive failed: %w", domain.ErrStoreUnavailable, err)
	}
	return nil
}

// UpsertVote inserts the voter's row, or overwrites its vote when the row
// already exists. Both paths run in one transaction; the insert sits behind
// a savepoint so a unique violation does not abort the transaction.
func (r *voteRepository) UpsertVote(ctx context.Context, voterID, choice string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return r.fail("failed to begin transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SAVEPOINT insert_vote`); err != nil {
		return r.fail("failed to create savepoint", err)
	}

	insertQuery := `INSERT INTO votes (id, vote) VALUES ($1, $2)`
	_, err = tx.ExecContext(ctx, insertQuery, voterID, choice)
	if err != nil {
		if !isUniqueViolation(err) {
			return r.fail("failed to insert vote", err)
		}

		if _, err := tx.ExecContext(ctx, `ROLLBACK TO SAVEPOINT insert_vote`); err != nil {
			return r.fail("failed to roll back to savepoint", err)
		}

		updateQuery := `UPDATE votes SET vote = $2 WHERE id = $1`
		if _, err := tx.ExecContext(ctx, updateQuery, voterID, choice); err != nil {
			return r.fail("failed to update vote", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return r.fail("failed to commit transaction", err)
	}

	return nil
}

func (r *voteRepository) Close() error {
	r.healthy = false
	return r.db.Close()
}

// fail marks the repository unhealthy when err is a connection failure and
// tags it with domain.ErrStoreUnavailable so the caller can rebuild it.
func (r *voteRepository) fail(msg string, err error) error {
	if isConnectionError(err) {
		r.healthy = false
		return fmt.Errorf("%s: %w: %w", msg, domain.ErrStoreUnavailable, err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

package ports

import (
	"context"

	"github.com/vncsmyrnk/voteworker/internal/core/domain"
)

// VoteQueue is a FIFO of raw vote records.
type VoteQueue interface {
	IsConnected() bool
	// PopVote removes the head of the queue without blocking. ok is false
	// when the queue is empty.
	PopVote(ctx context.Context) (record []byte, ok bool, err error)
	// Requeue puts a record back at the head of the queue.
	Requeue(ctx context.Context, record []byte) error
	Close() error
}

// QueueConnector builds a connected VoteQueue, blocking until it succeeds
// or ctx is done.
type QueueConnector func(ctx context.Context) (VoteQueue, error)

type VoteRepository interface {
	IsHealthy() bool
	KeepAlive(ctx context.Context) error
	UpsertVote(ctx context.Context, voterID, choice string) error
	Close() error
}

// RepositoryConnector builds a VoteRepository, blocking through transient
// failures. An error wrapping domain.ErrStoreFatal means the store rejected
// the connection for a non-retryable reason.
type RepositoryConnector func(ctx context.Context) (VoteRepository, error)

type VoteDecoder interface {
	Decode(record []byte) (domain.Vote, error)
}

type WorkerStatus struct {
	WorkerID string
	Queue    domain.ConnectionState
	Store    domain.ConnectionState
}

type WorkerService interface {
	Run(ctx context.Context) error
	Status() WorkerStatus
}

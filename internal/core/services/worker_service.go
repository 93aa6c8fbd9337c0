package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/vncsmyrnk/voteworker/internal/core/domain"
	"github.com/vncsmyrnk/voteworker/internal/core/ports"
)

// UnpersistedVotePolicy decides what happens to a popped vote that could
// not be written because the store was down.
type UnpersistedVotePolicy string

const (
	DropUnpersisted    UnpersistedVotePolicy = "drop"
	RequeueUnpersisted UnpersistedVotePolicy = "requeue"
)

func ParseUnpersistedVotePolicy(s string) (UnpersistedVotePolicy, error) {
	switch p := UnpersistedVotePolicy(s); p {
	case DropUnpersisted, RequeueUnpersisted:
		return p, nil
	case "":
		return DropUnpersisted, nil
	default:
		return "", fmt.Errorf("unknown unpersisted vote policy %q", s)
	}
}

type WorkerConfig struct {
	WorkerID         string
	PollInterval     time.Duration
	UnpersistedVotes UnpersistedVotePolicy
}

// WorkerService drains the vote queue into the store. The queue and store
// handles are owned by the loop and replaced wholesale on reconnect; only
// the connection states are shared, through atomics, with Status.
type WorkerService struct {
	cfg          WorkerConfig
	connectQueue ports.QueueConnector
	connectStore ports.RepositoryConnector
	decoder      ports.VoteDecoder

	queue ports.VoteQueue
	store ports.VoteRepository

	queueState atomic.Int32
	storeState atomic.Int32
}

func NewWorkerService(cfg WorkerConfig, connectQueue ports.QueueConnector, connectStore ports.RepositoryConnector, decoder ports.VoteDecoder) *WorkerService {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 100 * time.Millisecond
	}
	if cfg.UnpersistedVotes == "" {
		cfg.UnpersistedVotes = DropUnpersisted
	}
	return &WorkerService{
		cfg:          cfg,
		connectQueue: connectQueue,
		connectStore: connectStore,
		decoder:      decoder,
	}
}

// Run connects to the store and the queue, then processes one vote every
// poll interval until ctx is done or a store operation fails hard.
// Cancellation is a clean stop and returns nil.
func (s *WorkerService) Run(ctx context.Context) error {
	defer s.close()

	if err := s.reconnectStore(ctx); err != nil {
		return ignoreCancel(ctx, err)
	}
	if err := s.reconnectQueue(ctx); err != nil {
		return ignoreCancel(ctx, err)
	}

	timer := time.NewTimer(s.cfg.PollInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		if err := s.RunOnce(ctx); err != nil {
			return ignoreCancel(ctx, err)
		}
		timer.Reset(s.cfg.PollInterval)
	}
}

// RunOnce performs a single loop iteration without the pacing sleep.
func (s *WorkerService) RunOnce(ctx context.Context) error {
	defer s.observe()

	if s.queue == nil || !s.queue.IsConnected() {
		log.Println("Reconnecting queue")
		if err := s.reconnectQueue(ctx); err != nil {
			return err
		}
	}

	record, ok, err := s.queue.PopVote(ctx)
	if err != nil {
		log.Printf("Failed to pop vote: %v", err)
		return nil
	}
	if !ok {
		s.keepAlive(ctx)
		return nil
	}

	vote, err := s.decoder.Decode(record)
	if err != nil {
		log.Printf("Dropping vote record %q: %v", record, err)
		return nil
	}
	log.Printf("Processing vote for '%s' by '%s'", vote.Choice, vote.VoterID)

	if s.store == nil || !s.store.IsHealthy() {
		log.Println("Reconnecting DB")
		if err := s.reconnectStore(ctx); err != nil {
			// The record is already off the queue.
			s.unpersisted(context.WithoutCancel(ctx), record, vote)
			return err
		}
		s.unpersisted(ctx, record, vote)
		return nil
	}

	if err := s.store.UpsertVote(ctx, vote.VoterID, vote.Choice); err != nil {
		if ctx.Err() != nil {
			s.unpersisted(context.WithoutCancel(ctx), record, vote)
			return err
		}
		if errors.Is(err, domain.ErrStoreUnavailable) {
			log.Printf("Store unavailable: %v", err)
			s.unpersisted(ctx, record, vote)
			return nil
		}
		return fmt.Errorf("failed to persist vote by '%s': %w", vote.VoterID, err)
	}

	return nil
}

func (s *WorkerService) Status() ports.WorkerStatus {
	return ports.WorkerStatus{
		WorkerID: s.cfg.WorkerID,
		Queue:    domain.ConnectionState(s.queueState.Load()),
		Store:    domain.ConnectionState(s.storeState.Load()),
	}
}

func (s *WorkerService) keepAlive(ctx context.Context) {
	if s.store == nil || !s.store.IsHealthy() {
		return
	}
	if err := s.store.KeepAlive(ctx); err != nil {
		log.Printf("Keep-alive failed: %v", err)
	}
}

func (s *WorkerService) unpersisted(ctx context.Context, record []byte, vote domain.Vote) {
	if s.cfg.UnpersistedVotes == RequeueUnpersisted {
		if err := s.queue.Requeue(ctx, record); err != nil {
			log.Printf("Failed to requeue vote for '%s' by '%s', dropping it: %v", vote.Choice, vote.VoterID, err)
			return
		}
		log.Printf("Requeued vote for '%s' by '%s'", vote.Choice, vote.VoterID)
		return
	}
	log.Printf("Dropped vote for '%s' by '%s' while the store was unavailable", vote.Choice, vote.VoterID)
}

func (s *WorkerService) reconnectQueue(ctx context.Context) error {
	if s.queue != nil {
		s.queue.Close()
		s.queue = nil
	}

	queue, err := s.connectQueue(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to queue: %w", err)
	}
	s.queue = queue
	s.observe()
	return nil
}

// reconnectStore rebuilds the store handle. A fatal connect error leaves the
// store nil, which the loop treats as still disconnected.
func (s *WorkerService) reconnectStore(ctx context.Context) error {
	if s.store != nil {
		s.store.Close()
		s.store = nil
	}

	store, err := s.connectStore(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrStoreFatal) {
			log.Printf("Giving up on DB connection for now: %v", err)
			s.observe()
			return nil
		}
		return fmt.Errorf("failed to connect to store: %w", err)
	}
	s.store = store
	s.observe()
	return nil
}

func (s *WorkerService) observe() {
	s.queueState.Store(int32(domain.StateOf(s.queue != nil && s.queue.IsConnected())))
	s.storeState.Store(int32(domain.StateOf(s.store != nil && s.store.IsHealthy())))
}

func (s *WorkerService) close() {
	if s.queue != nil {
		s.queue.Close()
		s.queue = nil
	}
	if s.store != nil {
		s.store.Close()
		s.store = nil
	}
	s.observe()
}

func ignoreCancel(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	return err
}

var _ ports.WorkerService = (*WorkerService)(nil)

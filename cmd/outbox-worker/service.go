package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/fastrepair/fastrepair-backend/internal/repairs"
	"github.com/fastrepair/fastrepair-backend/pkg/config"
	"github.com/fastrepair/fastrepair-backend/pkg/enums"
	pkgerrors "github.com/fastrepair/fastrepair-backend/pkg/errors"
	"github.com/fastrepair/fastrepair-backend/pkg/logger"
)

const (
	defaultBatchSize   = 50
	defaultPollMs      = 1000
	defaultMaxAttempts = 10
	maxBackoff         = 30 * time.Second
	jitterWindow       = 250 * time.Millisecond
)

type dbClient interface {
	Ping(context.Context) error
}

type pendingLister interface {
	ListPending(ctx context.Context, eventType enums.OutboxEventType, limit, maxAttempts int) ([]uuid.UUID, error)
}

type creditSettler interface {
	Settle(ctx context.Context, eventID uuid.UUID, mode repairs.LockMode) (*repairs.Settlement, error)
}

type ServiceParams struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         dbClient
	Repository pendingLister
	Settler    creditSettler
}

// Service drains repair credits that were not applied when their repair was
// completed.
type Service struct {
	logg         *logger.Logger
	db           dbClient
	repo         pendingLister
	settler      creditSettler
	batchSize    int
	maxAttempts  int
	pollInterval time.Duration
}

// batchStats summarizes one pass over the pending credits.
type batchStats struct {
	credited     int
	deadLettered int
	skipped      int
	failed       int
}

func (b batchStats) progressed() bool {
	return b.credited+b.deadLettered > 0
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, errors.New("config is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Repository == nil {
		return nil, errors.New("outbox repository is required")
	}
	if params.Settler == nil {
		return nil, errors.New("credit settler is required")
	}

	batch := params.Config.Outbox.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	pollMs := params.Config.Outbox.PollIntervalMS
	if pollMs <= 0 {
		pollMs = defaultPollMs
	}
	maxAttempts := params.Config.Outbox.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	return &Service{
		logg:         params.Logger,
		db:           params.DB,
		repo:         params.Repository,
		settler:      params.Settler,
		batchSize:    batch,
		maxAttempts:  maxAttempts,
		pollInterval: time.Duration(pollMs) * time.Millisecond,
	}, nil
}

func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.db.Ping(ctx); err != nil {
		s.logg.Error(ctx, "database ping failed", err)
		return fmt.Errorf("database ping failed: %w", err)
	}

	idle := s.idleBackoff()
	failures := s.failureBackoff()

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "outbox worker context canceled")
			return ctx.Err()
		default:
		}

		stats, err := s.processBatch(ctx)
		if err != nil {
			s.logg.Error(ctx, "outbox worker batch error", err)
			wait, _ := failures.Next()
			if err := s.sleep(ctx, wait); err != nil {
				return err
			}
			continue
		}

		failures = s.failureBackoff()

		if stats.progressed() {
			continue
		}

		wait, _ := idle.Next()
		if err := s.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// idleBackoff paces polls of an empty queue.
func (s *Service) idleBackoff() retry.Backoff {
	return retry.WithJitter(jitterWindow, retry.NewConstant(s.pollInterval))
}

// failureBackoff doubles the wait after each failed batch, starting at two
// poll intervals, up to maxBackoff. Run replaces it after a clean batch.
func (s *Service) failureBackoff() retry.Backoff {
	return retry.WithJitter(jitterWindow, retry.WithCappedDuration(maxBackoff, retry.NewExponential(2*s.pollInterval)))
}

// processBatch attempts every pending credit once. Rows held by another
// worker are skipped. A batch where every attempt failed reports an error so
// the loop backs off.
func (s *Service) processBatch(ctx context.Context) (batchStats, error) {
	var stats batchStats

	ids, err := s.repo.ListPending(ctx, enums.EventRepairCreditRequested, s.batchSize, s.maxAttempts)
	if err != nil {
		return stats, fmt.Errorf("list pending credits: %w", err)
	}
	if len(ids) == 0 {
		return stats, nil
	}

	var lastErr error
	for _, id := range ids {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}

		settlement, err := s.settler.Settle(ctx, id, repairs.LockSkip)
		if err != nil {
			if pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
				stats.skipped++
				continue
			}
			stats.failed++
			lastErr = err
			continue
		}

		switch settlement.Outcome {
		case repairs.OutcomeCredited:
			stats.credited++
		case repairs.OutcomeDeadLettered:
			stats.deadLettered++
		default:
			stats.skipped++
		}
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"batch_size":    len(ids),
		"credited":      stats.credited,
		"dead_lettered": stats.deadLettered,
		"skipped":       stats.skipped,
		"failed":        stats.failed,
	})
	s.logg.Info(ctx, "outbox worker batch processed")

	if stats.failed > 0 && !stats.progressed() {
		return stats, fmt.Errorf("%d pending credits failed: %w", stats.failed, lastErr)
	}
	return stats, nil
}

func (s *Service) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

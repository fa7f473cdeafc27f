package repairs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fastrepair/fastrepair-backend/internal/cashaccounts"
	"github.com/fastrepair/fastrepair-backend/internal/ledger"
	dbpkg "github.com/fastrepair/fastrepair-backend/pkg/db"
	"github.com/fastrepair/fastrepair-backend/pkg/db/models"
	"github.com/fastrepair/fastrepair-backend/pkg/enums"
	pkgerrors "github.com/fastrepair/fastrepair-backend/pkg/errors"
	"github.com/fastrepair/fastrepair-backend/pkg/logger"
	"github.com/fastrepair/fastrepair-backend/pkg/metrics"
	"github.com/fastrepair/fastrepair-backend/pkg/outbox/payloads"
)

const defaultMaxAttempts = 10

// LockMode selects how Settle waits for a credit another process is settling.
type LockMode int

const (
	// LockWait blocks until the other transaction ends.
	LockWait LockMode = iota
	// LockSkip returns OutcomeBusy instead of waiting.
	LockSkip
)

type creditLedger interface {
	DepositTx(ctx context.Context, tx *gorm.DB, input ledger.DepositInput) (*ledger.MovementResult, error)
}

type outboxRepository interface {
	FindForUpdateTx(tx *gorm.DB, id uuid.UUID) (*models.OutboxEvent, error)
	ClaimTx(tx *gorm.DB, id uuid.UUID) (*models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID, at time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, cause error) error
}

type dlqRepository interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
	FindByEventIDTx(tx *gorm.DB, eventID uuid.UUID) (*models.OutboxDLQ, error)
}

type creditResolver interface {
	ResolveRepairCredit(event models.OutboxEvent) (*payloads.RepairCreditRequested, error)
}

type retryRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
	WithRetryTx(ctx context.Context, policy dbpkg.RetryPolicy, fn func(tx *gorm.DB) error) error
}

// SettlerParams wires a CreditSettler.
type SettlerParams struct {
	DB          retryRunner
	Outbox      outboxRepository
	DLQ         dlqRepository
	Registry    creditResolver
	Accounts    cashaccounts.Repository
	Ledger      creditLedger
	Logger      *logger.Logger
	Metrics     *metrics.LedgerMetrics
	Retry       dbpkg.RetryPolicy
	MaxAttempts int
}

// CreditSettler applies queued repair credits to the shop register. The
// deposit and the outbox acknowledgement commit in one transaction, so a
// credit is applied at most once however many processes race for it.
type CreditSettler struct {
	db          retryRunner
	outbox      outboxRepository
	dlq         dlqRepository
	registry    creditResolver
	accounts    cashaccounts.Repository
	ledger      creditLedger
	logg        *logger.Logger
	metrics     *metrics.LedgerMetrics
	retry       dbpkg.RetryPolicy
	maxAttempts int
	now         func() time.Time
}

// NewCreditSettler validates dependencies and builds a settler.
func NewCreditSettler(params SettlerParams) (*CreditSettler, error) {
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Outbox == nil {
		return nil, errors.New("outbox repository is required")
	}
	if params.DLQ == nil {
		return nil, errors.New("dlq repository is required")
	}
	if params.Registry == nil {
		return nil, errors.New("event registry is required")
	}
	if params.Accounts == nil {
		return nil, errors.New("cash account repository is required")
	}
	if params.Ledger == nil {
		return nil, errors.New("ledger is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	maxAttempts := params.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	return &CreditSettler{
		db:          params.DB,
		outbox:      params.Outbox,
		dlq:         params.DLQ,
		registry:    params.Registry,
		accounts:    params.Accounts,
		ledger:      params.Ledger,
		logg:        params.Logger,
		metrics:     params.Metrics,
		retry:       params.Retry,
		maxAttempts: maxAttempts,
		now:         time.Now,
	}, nil
}

// Settle makes one attempt at crediting the register for the queued event.
// Integrity faults are dead-lettered and reported as OutcomeDeadLettered with
// a nil error. Storage failures count an attempt against the event, move it
// to the dead-letter queue once attempts run out, and return the error with
// OutcomeFailed.
func (s *CreditSettler) Settle(ctx context.Context, eventID uuid.UUID, mode LockMode) (*Settlement, error) {
	settlement := &Settlement{EventID: eventID}
	attempts := 0

	err := s.db.WithRetryTx(ctx, s.retry, func(tx *gorm.DB) error {
		*settlement = Settlement{EventID: eventID}

		event, err := s.lock(tx, eventID, mode)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "pending credit not found")
			}
			return err
		}
		if event == nil {
			settlement.Outcome = OutcomeBusy
			return nil
		}
		attempts = event.AttemptCount

		if event.PublishedAt != nil {
			settlement.Outcome = OutcomeAlreadySettled
			return nil
		}
		dead, err := s.dlq.FindByEventIDTx(tx, event.ID)
		if err != nil {
			return err
		}
		if dead != nil {
			settlement.Outcome = OutcomeDeadLettered
			settlement.Reason = string(dead.ErrorReason)
			return nil
		}

		payload, err := s.registry.ResolveRepairCredit(*event)
		if err != nil {
			return s.deadLetterTx(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, err, settlement)
		}

		if payload.TechnicianID == uuid.Nil {
			fault := fmt.Errorf("no technician to attribute repair %s to", payload.RepairID)
			return s.deadLetterTx(ctx, tx, event, enums.OutboxDLQReasonMissingTechnician, fault, settlement)
		}

		account, err := s.accounts.WithTx(tx).FindByShop(ctx, payload.ShopID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				fault := fmt.Errorf("no cash account for shop %s", payload.ShopID)
				return s.deadLetterTx(ctx, tx, event, enums.OutboxDLQReasonMissingCashAccount, fault, settlement)
			}
			return err
		}

		result, err := s.ledger.DepositTx(ctx, tx, ledger.DepositInput{
			AccountID:    account.ID,
			TechnicianID: payload.TechnicianID,
			Amount:       payload.Amount,
			Note:         payload.Note,
		})
		if err != nil {
			if pkgerrors.HasCode(err, pkgerrors.CodeValidation) || pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
				return s.deadLetterTx(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, err, settlement)
			}
			return err
		}

		if err := s.outbox.MarkPublishedTx(tx, event.ID, s.now()); err != nil {
			return err
		}
		settlement.Outcome = OutcomeCredited
		settlement.Movement = &result.Movement
		settlement.Balance = result.Balance
		return nil
	})
	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
			return nil, err
		}
		return s.failed(ctx, settlement, attempts, err)
	}

	s.metrics.IncCredit(string(settlement.Outcome))
	logCtx := s.eventContext(ctx, eventID)
	switch settlement.Outcome {
	case OutcomeCredited:
		logCtx = s.logg.WithFields(logCtx, map[string]any{
			"movement_id": settlement.Movement.ID.String(),
			"amount":      settlement.Movement.Amount.StringFixed(2),
			"balance":     settlement.Balance.StringFixed(2),
		})
		s.logg.Info(logCtx, "repair credit applied")
	case OutcomeDeadLettered:
		s.logg.Warn(s.logg.WithField(logCtx, "reason", settlement.Reason), "repair credit needs manual settlement")
	default:
		s.logg.Debug(s.logg.WithField(logCtx, "outcome", settlement.Outcome), "repair credit skipped")
	}
	return settlement, nil
}

func (s *CreditSettler) lock(tx *gorm.DB, eventID uuid.UUID, mode LockMode) (*models.OutboxEvent, error) {
	if mode == LockSkip {
		return s.outbox.ClaimTx(tx, eventID)
	}
	return s.outbox.FindForUpdateTx(tx, eventID)
}

// deadLetterTx parks the event for an operator. The caller's transaction
// commits the entry.
func (s *CreditSettler) deadLetterTx(ctx context.Context, tx *gorm.DB, event *models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error, settlement *Settlement) error {
	msg := cause.Error()
	entry := models.OutboxDLQ{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &msg,
		AttemptCount:  event.AttemptCount,
		FailedAt:      s.now().UTC(),
	}
	if err := s.dlq.InsertTx(tx, entry); err != nil {
		return fmt.Errorf("insert dlq %s: %w", event.ID, err)
	}
	settlement.Outcome = OutcomeDeadLettered
	settlement.Reason = string(reason)

	logCtx := s.logg.WithFields(s.eventContext(ctx, event.ID), map[string]any{
		"aggregate_id": event.AggregateID.String(),
		"error_reason": reason,
		"error":        msg,
	})
	s.logg.Warn(logCtx, "repair credit will not be retried")
	return nil
}

// failed records the attempt outside the rolled back transaction.
func (s *CreditSettler) failed(ctx context.Context, settlement *Settlement, attempts int, cause error) (*Settlement, error) {
	ctx = context.WithoutCancel(ctx)
	settlement.Outcome = OutcomeFailed
	settlement.Reason = cause.Error()
	settlement.Movement = nil
	s.metrics.IncCredit(string(OutcomeFailed))

	logCtx := s.logg.WithField(s.eventContext(ctx, settlement.EventID), "attempt_count", attempts+1)
	s.logg.Error(logCtx, "repair credit failed", cause)

	if err := s.outbox.MarkFailed(ctx, settlement.EventID, cause); err != nil {
		s.logg.Error(logCtx, "failed to record repair credit attempt", err)
	} else if attempts+1 >= s.maxAttempts {
		terminal := fmt.Errorf("max credit attempts reached: %w", cause)
		err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
			event, err := s.outbox.FindForUpdateTx(tx, settlement.EventID)
			if err != nil || event.PublishedAt != nil {
				return err
			}
			dead, err := s.dlq.FindByEventIDTx(tx, event.ID)
			if err != nil || dead != nil {
				return err
			}
			return s.deadLetterTx(ctx, tx, event, enums.OutboxDLQReasonMaxAttempts, terminal, &Settlement{})
		})
		if err != nil {
			s.logg.Error(logCtx, "failed to dead-letter repair credit", err)
		}
	}

	if pkgerrors.As(cause) == nil {
		cause = pkgerrors.Wrap(pkgerrors.CodeDependency, cause, "repair credit failed")
	}
	return settlement, cause
}

func (s *CreditSettler) eventContext(ctx context.Context, eventID uuid.UUID) context.Context {
	return s.logg.WithField(ctx, "outbox_id", eventID.String())
}

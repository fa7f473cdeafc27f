package repairs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fastrepair/fastrepair-backend/pkg/db/models"
	"github.com/fastrepair/fastrepair-backend/pkg/enums"
	pkgerrors "github.com/fastrepair/fastrepair-backend/pkg/errors"
	"github.com/fastrepair/fastrepair-backend/pkg/logger"
	"github.com/fastrepair/fastrepair-backend/pkg/outbox"
	"github.com/fastrepair/fastrepair-backend/pkg/outbox/payloads"
)

type repairRepository interface {
	WithTx(tx *gorm.DB) *Repository
}

type eventEmitter interface {
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) (*models.OutboxEvent, error)
}

type eventFinder interface {
	FindByAggregateTx(tx *gorm.DB, eventType enums.OutboxEventType, aggregateID uuid.UUID) (*models.OutboxEvent, error)
}

type creditSettler interface {
	Settle(ctx context.Context, eventID uuid.UUID, mode LockMode) (*Settlement, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes repair operations with a financial side effect.
type Service interface {
	CompleteRepair(ctx context.Context, input CompleteRepairInput) (*CompletionResult, error)
}

// ServiceParams wires the repair service.
type ServiceParams struct {
	DB      txRunner
	Repairs repairRepository
	Emitter eventEmitter
	Events  eventFinder
	Settler creditSettler
	Logger  *logger.Logger
}

type service struct {
	db      txRunner
	repairs repairRepository
	emitter eventEmitter
	events  eventFinder
	settler creditSettler
	logg    *logger.Logger
	now     func() time.Time
}

// NewService builds the repair service.
func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Repairs == nil {
		return nil, fmt.Errorf("repair repository required")
	}
	if params.Emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Events == nil {
		return nil, fmt.Errorf("outbox reader required")
	}
	if params.Settler == nil {
		return nil, fmt.Errorf("credit settler required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		db:      params.DB,
		repairs: params.Repairs,
		emitter: params.Emitter,
		events:  params.Events,
		settler: params.Settler,
		logg:    params.Logger,
		now:     time.Now,
	}, nil
}

// CompleteRepair marks the repair completed and credits its price to the
// shop register. The completion commits first together with a queued credit;
// the credit is then applied right away. A credit that cannot be applied
// leaves the repair completed and is reported through the result warning.
func (s *service) CompleteRepair(ctx context.Context, input CompleteRepairInput) (*CompletionResult, error) {
	if input.RepairID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "repair id is required")
	}
	ctx = s.logg.WithRepairID(ctx, input.RepairID.String())

	result := &CompletionResult{RepairID: input.RepairID}
	var queued *models.OutboxEvent

	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repairs.WithTx(tx)
		repair, err := repo.FindByIDForUpdate(ctx, input.RepairID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "repair not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load repair")
		}

		switch repair.State {
		case enums.RepairStateCompleted:
			result.Completed = true
			result.AlreadyCompleted = true
			return nil
		case enums.RepairStateCancelled:
			return pkgerrors.New(pkgerrors.CodeStateConflict, "cancelled repair cannot be completed")
		}

		credit := repair.TotalPrice.IsPositive()
		technicianID := input.ActorID
		if repair.TechnicianID != nil && *repair.TechnicianID != uuid.Nil {
			technicianID = *repair.TechnicianID
		}
		completedAt := s.now().UTC()
		repair.State = enums.RepairStateCompleted
		repair.CompletedAt = &completedAt
		if err := repo.UpdateState(ctx, repair); err != nil {
			if pkgerrors.As(err) != nil {
				return err
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete repair")
		}
		result.Completed = true

		if !credit {
			return nil
		}
		shopID := repair.ShopID
		queued, err = s.emitter.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventRepairCreditRequested,
			AggregateType: enums.AggregateRepair,
			AggregateID:   repair.ID,
			Actor:         &outbox.ActorRef{TechnicianID: input.ActorID, ShopID: &shopID, Role: string(enums.ActorRoleTechnician)},
			Version:       payloads.RepairCreditRequestedVersion,
			OccurredAt:    completedAt,
			Data: payloads.RepairCreditRequested{
				RepairID:     repair.ID,
				ShopID:       repair.ShopID,
				TechnicianID: technicianID,
				Amount:       repair.TotalPrice,
				Note:         fmt.Sprintf("Repair %s completed", repair.ID),
				CompletedAt:  completedAt,
			},
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue repair credit")
		}
		if queued == nil {
			queued, err = s.events.FindByAggregateTx(tx, enums.EventRepairCreditRequested, repair.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load queued repair credit")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.AlreadyCompleted {
		s.logg.Info(ctx, "repair already completed")
		return result, nil
	}
	if queued == nil {
		s.logg.Info(ctx, "repair completed without credit")
		return result, nil
	}

	settlement, err := s.settler.Settle(ctx, queued.ID, LockWait)
	if err != nil {
		result.CreditPending = true
		result.Warning = WarningCreditRetrying
		s.logg.Warn(s.logg.WithField(ctx, "outbox_id", queued.ID.String()), "repair completed, credit pending")
		return result, nil
	}

	switch settlement.Outcome {
	case OutcomeCredited:
		result.Credited = true
		result.Movement = settlement.Movement
		balance := settlement.Balance
		result.Balance = &balance
	case OutcomeAlreadySettled:
		result.Credited = true
	case OutcomeDeadLettered:
		result.Warning = WarningCreditManual
	default:
		result.CreditPending = true
		result.Warning = WarningCreditRetrying
	}
	s.logg.Info(s.logg.WithField(ctx, "credit_outcome", settlement.Outcome), "repair completed")
	return result, nil
}

package repairs

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fastrepair/fastrepair-backend/pkg/db/models"
)

const (
	// WarningCreditManual tells the operator the register was not credited
	// and will not be retried.
	WarningCreditManual = "Repair completed, but cash-register update failed; add the amount manually."
	// WarningCreditRetrying tells the operator the credit is queued for retry.
	WarningCreditRetrying = "Repair completed, but cash-register update failed; the credit will be retried."
)

// CompleteRepairInput identifies the repair and who is completing it.
type CompleteRepairInput struct {
	RepairID uuid.UUID
	ActorID  uuid.UUID
}

// CompletionResult reports what happened to the repair and to the register.
// The repair is completed even when the credit is not.
type CompletionResult struct {
	RepairID         uuid.UUID        `json:"repair_id"`
	Completed        bool             `json:"completed"`
	AlreadyCompleted bool             `json:"already_completed"`
	Credited         bool             `json:"credited"`
	CreditPending    bool             `json:"credit_pending"`
	Warning          string           `json:"warning,omitempty"`
	Movement         *models.Movement `json:"movement,omitempty"`
	Balance          *decimal.Decimal `json:"balance,omitempty"`
}

// SettlementOutcome describes how a queued credit ended.
type SettlementOutcome string

const (
	OutcomeCredited       SettlementOutcome = "credited"
	OutcomeAlreadySettled SettlementOutcome = "already_settled"
	OutcomeDeadLettered   SettlementOutcome = "dead_lettered"
	OutcomeBusy           SettlementOutcome = "busy"
	OutcomeFailed         SettlementOutcome = "failed"
)

// Settlement is the result of one attempt at applying a queued credit.
type Settlement struct {
	EventID  uuid.UUID
	Outcome  SettlementOutcome
	Reason   string
	Movement *models.Movement
	Balance  decimal.Decimal
}

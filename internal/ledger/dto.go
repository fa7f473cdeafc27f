package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fastrepair/fastrepair-backend/pkg/db/models"
)

// MovementInput carries a single register mutation request.
type MovementInput struct {
	AccountID    uuid.UUID
	TechnicianID uuid.UUID
	Amount       decimal.Decimal
	Note         string
	// ShopID, when set, must own the account.
	ShopID *uuid.UUID
}

type (
	DepositInput  = MovementInput
	WithdrawInput = MovementInput
)

// MovementResult is the recorded movement and the balance it produced.
type MovementResult struct {
	Movement models.Movement
	Balance  decimal.Decimal
}

// MovementWithBalance annotates a movement with the register balance right
// after it was applied.
type MovementWithBalance struct {
	models.Movement
	BalanceAfter decimal.Decimal
}

// Replay compares a stored balance with the sum of the account's movements.
type Replay struct {
	AccountID      uuid.UUID
	ShopID         uuid.UUID
	StoredBalance  decimal.Decimal
	ReplayedAmount decimal.Decimal
	MovementCount  int
	LastMovementAt time.Time
}

// Drift is the stored balance minus the replayed one.
func (r Replay) Drift() decimal.Decimal {
	return r.StoredBalance.Sub(r.ReplayedAmount)
}

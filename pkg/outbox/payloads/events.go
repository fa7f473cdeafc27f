package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RepairCreditRequestedVersion is the envelope version written today.
const RepairCreditRequestedVersion = 1

// RepairCreditRequested asks the ledger to credit a completed repair's price
// to its shop's register.
type RepairCreditRequested struct {
	RepairID     uuid.UUID       `json:"repair_id"`
	ShopID       uuid.UUID       `json:"shop_id"`
	TechnicianID uuid.UUID       `json:"technician_id"`
	Amount       decimal.Decimal `json:"amount"`
	Note         string          `json:"note"`
	CompletedAt  time.Time       `json:"completed_at"`
}

package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/fastrepair/fastrepair-backend/pkg/enums"
)

// Movement is an immutable register entry. Amount is always positive; Kind
// carries the direction.
type Movement struct {
	ID            uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CashAccountID uuid.UUID          `gorm:"column:cash_account_id;type:uuid;not null;index"`
	TechnicianID  uuid.UUID          `gorm:"column:technician_id;type:uuid;not null;index"`
	Kind          enums.MovementKind `gorm:"column:kind;type:varchar(32);not null"`
	Amount        decimal.Decimal    `gorm:"column:amount;type:numeric(12,2);not null"`
	Note          string             `gorm:"column:note;not null;default:''"`
	OccurredAt    time.Time          `gorm:"column:occurred_at;not null"`
	CreatedAt     time.Time          `gorm:"column:created_at;autoCreateTime"`
}

// SignedAmount returns the balance delta the movement applied.
func (m Movement) SignedAmount() decimal.Decimal {
	if m.Kind == enums.MovementKindWithdrawal {
		return m.Amount.Neg()
	}
	return m.Amount
}

// BeforeCreate assigns the identifier on dialects without a uuid default.
func (m *Movement) BeforeCreate(*gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

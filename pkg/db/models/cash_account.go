package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CashAccount is the register of a shop. Exactly one exists per shop and only
// the ledger service mutates its balance.
type CashAccount struct {
	ID             uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ShopID         uuid.UUID       `gorm:"column:shop_id;type:uuid;not null;uniqueIndex:ux_cash_accounts_shop_id"`
	Balance        decimal.Decimal `gorm:"column:balance;type:numeric(12,2);not null;default:0"`
	LastMovementAt time.Time       `gorm:"column:last_movement_at;not null"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// BeforeCreate assigns the identifier on dialects without a uuid default.
func (m *CashAccount) BeforeCreate(*gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

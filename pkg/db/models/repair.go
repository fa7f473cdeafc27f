package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/fastrepair/fastrepair-backend/pkg/enums"
)

// Repair is a unit of work on a customer device, billed when completed.
type Repair struct {
	ID           uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ShopID       uuid.UUID         `gorm:"column:shop_id;type:uuid;not null;index"`
	DeviceID     uuid.UUID         `gorm:"column:device_id;type:uuid;not null"`
	TechnicianID *uuid.UUID        `gorm:"column:technician_id;type:uuid"`
	TotalPrice   decimal.Decimal   `gorm:"column:total_price;type:numeric(12,2);not null;default:0"`
	State        enums.RepairState `gorm:"column:state;type:varchar(32);not null"`
	CompletedAt  *time.Time        `gorm:"column:completed_at"`
	CreatedAt    time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

// BeforeCreate assigns the identifier on dialects without a uuid default.
func (m *Repair) BeforeCreate(*gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

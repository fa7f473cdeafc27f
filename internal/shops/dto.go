package shops

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fastrepair/fastrepair-backend/pkg/db/models"
)

// CreateShopInput captures the fields needed to open a shop.
type CreateShopInput struct {
	Name    string
	OwnerID *uuid.UUID
}

// ShopDTO is the API view of a shop and its register.
type ShopDTO struct {
	ID            uuid.UUID       `json:"id"`
	Name          string          `json:"name"`
	OwnerID       *uuid.UUID      `json:"owner_id,omitempty"`
	CashAccountID uuid.UUID       `json:"cash_account_id"`
	Balance       decimal.Decimal `json:"balance"`
	CreatedAt     time.Time       `json:"created_at"`
}

// FromModels builds the DTO from the persisted shop and account.
func FromModels(shop *models.Shop, account *models.CashAccount) *ShopDTO {
	if shop == nil {
		return nil
	}
	dto := &ShopDTO{
		ID:        shop.ID,
		Name:      shop.Name,
		OwnerID:   shop.OwnerID,
		CreatedAt: shop.CreatedAt,
	}
	if account != nil {
		dto.CashAccountID = account.ID
		dto.Balance = account.Balance
	}
	return dto
}

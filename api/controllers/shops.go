package controllers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fastrepair/fastrepair-backend/api/responses"
	"github.com/fastrepair/fastrepair-backend/api/validators"
	"github.com/fastrepair/fastrepair-backend/internal/ledger"
	"github.com/fastrepair/fastrepair-backend/internal/shops"
	pkgerrors "github.com/fastrepair/fastrepair-backend/pkg/errors"
	"github.com/fastrepair/fastrepair-backend/pkg/logger"
)

type createShopRequest struct {
	Name    string     `json:"name" validate:"required,max=200"`
	OwnerID *uuid.UUID `json:"owner_id"`
}

// CreateShop opens a shop together with its cash register.
func CreateShop(svc shops.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "shop service unavailable"))
			return
		}

		var req createShopRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		shop, err := svc.Create(r.Context(), shops.CreateShopInput{
			Name:    validators.SanitizeString(req.Name, 200),
			OwnerID: req.OwnerID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, shop)
	}
}

// ShopBalance reports the current register balance of a shop.
func ShopBalance(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}

		shopID, err := validators.ParseUUIDParam(r, "shopID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		balance, err := svc.BalanceOf(r.Context(), shopID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, struct {
			ShopID  uuid.UUID       `json:"shop_id"`
			Balance decimal.Decimal `json:"balance"`
		}{ShopID: shopID, Balance: balance})
	}
}

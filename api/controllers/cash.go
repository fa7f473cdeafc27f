package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fastrepair/fastrepair-backend/api/middleware"
	"github.com/fastrepair/fastrepair-backend/api/responses"
	"github.com/fastrepair/fastrepair-backend/api/validators"
	"github.com/fastrepair/fastrepair-backend/internal/ledger"
	"github.com/fastrepair/fastrepair-backend/pkg/db/models"
	"github.com/fastrepair/fastrepair-backend/pkg/enums"
	pkgerrors "github.com/fastrepair/fastrepair-backend/pkg/errors"
	"github.com/fastrepair/fastrepair-backend/pkg/logger"
	"github.com/fastrepair/fastrepair-backend/pkg/pagination"
)

const maxNoteLength = 500

// NextCursorHeader carries the cursor of the next history page.
const NextCursorHeader = "X-Next-Cursor"

type movementRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"gt=0"`
	Note   string          `json:"note" validate:"max=500"`
	// TechnicianID lets an owner record a movement on behalf of a technician.
	TechnicianID *uuid.UUID `json:"technician_id"`
}

type recordFunc func(ctx context.Context, input ledger.MovementInput) (*ledger.MovementResult, error)

// CashDeposit adds money to a cash account.
func CashDeposit(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return unavailable("ledger service unavailable", logg)
	}
	return recordMovement(svc.Deposit, logg)
}

// CashWithdrawal takes money out of a cash account.
func CashWithdrawal(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return unavailable("ledger service unavailable", logg)
	}
	return recordMovement(svc.Withdraw, logg)
}

func recordMovement(record recordFunc, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, err := validators.ParseUUIDParam(r, "accountID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req movementRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		technicianID, err := actingTechnician(r.Context(), req.TechnicianID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := record(r.Context(), ledger.MovementInput{
			AccountID:    accountID,
			TechnicianID: technicianID,
			Amount:       req.Amount,
			Note:         validators.SanitizeString(req.Note, maxNoteLength),
			ShopID:       middleware.ShopUUID(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, MovementResultView{
			Movement: newMovementView(result.Movement),
			Balance:  result.Balance,
		})
	}
}

// CashMovements lists an account's movements, most recent first, each with
// the balance it left.
func CashMovements(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}

		accountID, err := validators.ParseUUIDParam(r, "accountID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := validators.ParsePageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, err := svc.MovementsForAccount(r.Context(), accountID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err = paginate(w, rows, page, func(row ledger.MovementWithBalance) pagination.Cursor {
			return movementCursor(row.Movement)
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newLedgerViews(rows))
	}
}

// TechnicianMovements lists the movements a technician recorded. Technicians
// may only read their own history.
func TechnicianMovements(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}

		technicianID, err := validators.ParseUUIDParam(r, "technicianID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if isTechnician(r.Context()) && technicianID != middleware.TechnicianUUID(r.Context()) {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "technicians can only list their own movements"))
			return
		}

		page, err := validators.ParsePageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, err := svc.MovementsForTechnician(r.Context(), technicianID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err = paginate(w, rows, page, movementCursor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newMovementViews(rows))
	}
}

// paginate applies the requested page to a newest-first history and exposes
// the next cursor through the NextCursorHeader.
func paginate[T any](w http.ResponseWriter, rows []T, page pagination.Params, key func(T) pagination.Cursor) ([]T, error) {
	if !page.Enabled() {
		return rows, nil
	}
	out, next, err := pagination.Page(rows, page, key)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	if next != "" {
		w.Header().Set(NextCursorHeader, next)
	}
	return out, nil
}

func movementCursor(m models.Movement) pagination.Cursor {
	return pagination.Cursor{OccurredAt: m.OccurredAt, CreatedAt: m.CreatedAt, ID: m.ID}
}

// actingTechnician resolves who records a movement: the token subject, or the
// requested technician when the caller is an owner or admin.
func actingTechnician(ctx context.Context, requested *uuid.UUID) (uuid.UUID, error) {
	self := middleware.TechnicianUUID(ctx)
	if requested == nil || *requested == uuid.Nil || *requested == self {
		if self == uuid.Nil {
			return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "technician context missing")
		}
		return self, nil
	}
	if isTechnician(ctx) {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeForbidden, "technicians can only record their own movements")
	}
	return *requested, nil
}

func isTechnician(ctx context.Context) bool {
	return middleware.RoleFromContext(ctx) == string(enums.ActorRoleTechnician)
}

func unavailable(message string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, message))
	}
}

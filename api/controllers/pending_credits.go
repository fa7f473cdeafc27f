package controllers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/fastrepair/fastrepair-backend/api/middleware"
	"github.com/fastrepair/fastrepair-backend/api/responses"
	"github.com/fastrepair/fastrepair-backend/api/validators"
	"github.com/fastrepair/fastrepair-backend/pkg/db/models"
	pkgerrors "github.com/fastrepair/fastrepair-backend/pkg/errors"
	"github.com/fastrepair/fastrepair-backend/pkg/logger"
	"github.com/fastrepair/fastrepair-backend/pkg/outbox"
)

// PendingCreditStore is the dead-letter surface operators work from.
type PendingCreditStore interface {
	List(ctx context.Context, includeResolved bool, limit int) ([]models.OutboxDLQ, error)
	Resolve(ctx context.Context, id, resolvedBy uuid.UUID, at time.Time) (*models.OutboxDLQ, error)
}

// PendingCredits lists repair credits that need to be entered by hand.
func PendingCredits(store PendingCreditStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "pending credit store unavailable"))
			return
		}

		includeResolved, err := validators.ParseQueryBool(r, "include_resolved")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 200)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, err := store.List(r.Context(), includeResolved, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list pending credits"))
			return
		}

		out := make([]PendingCreditView, 0, len(rows))
		for _, row := range rows {
			out = append(out, newPendingCreditView(row))
		}
		responses.WriteSuccess(w, out)
	}
}

// ResolvePendingCredit records that an operator entered the credit by hand.
func ResolvePendingCredit(store PendingCreditStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "pending credit store unavailable"))
			return
		}

		entryID, err := validators.ParseUUIDParam(r, "entryID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		operator := middleware.TechnicianUUID(r.Context())
		if operator == uuid.Nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "technician context missing"))
			return
		}

		row, err := store.Resolve(r.Context(), entryID, operator, time.Now())
		if err != nil {
			if errors.Is(err, outbox.ErrDLQEntryNotFound) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "pending credit not found"))
				return
			}
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve pending credit"))
			return
		}
		responses.WriteSuccess(w, newPendingCreditView(*row))
	}
}

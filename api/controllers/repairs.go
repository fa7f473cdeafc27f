package controllers

import (
	"net/http"

	"github.com/fastrepair/fastrepair-backend/api/middleware"
	"github.com/fastrepair/fastrepair-backend/api/responses"
	"github.com/fastrepair/fastrepair-backend/api/validators"
	"github.com/fastrepair/fastrepair-backend/internal/repairs"
	pkgerrors "github.com/fastrepair/fastrepair-backend/pkg/errors"
	"github.com/fastrepair/fastrepair-backend/pkg/logger"
)

// CompleteRepair marks a repair completed and credits its price to the shop
// register. A completed repair whose credit failed still answers 200 with a
// warning for the operator.
func CompleteRepair(svc repairs.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "repair service unavailable"))
			return
		}

		repairID, err := validators.ParseUUIDParam(r, "repairID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.CompleteRepair(r.Context(), repairs.CompleteRepairInput{
			RepairID: repairID,
			ActorID:  middleware.TechnicianUUID(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if result.Warning != "" && logg != nil {
			ctx := logg.WithFields(r.Context(), map[string]any{
				"repair_id":      repairID.String(),
				"credit_pending": result.CreditPending,
			})
			logg.Warn(ctx, result.Warning)
		}
		responses.WriteSuccess(w, newCompletionView(result))
	}
}

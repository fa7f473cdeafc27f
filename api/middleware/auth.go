package middleware

import (
	"context"
	"net/http"

	"github.com/fastrepair/fastrepair-backend/api/responses"
	pkgAuth "github.com/fastrepair/fastrepair-backend/pkg/auth"
	"github.com/fastrepair/fastrepair-backend/pkg/config"
	pkgerrors "github.com/fastrepair/fastrepair-backend/pkg/errors"
	"github.com/fastrepair/fastrepair-backend/pkg/logger"
)

// Auth validates a bearer token and seeds the request context with the
// technician, shop and role it carries.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := pkgAuth.BearerToken(r.Header.Get("Authorization"))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}
			technicianID, err := claims.TechnicianID()
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid subject"))
				return
			}

			ctx := context.WithValue(r.Context(), ctxTechnicianID, technicianID.String())
			ctx = context.WithValue(ctx, ctxRole, string(claims.Role))
			if claims.ShopID != nil {
				ctx = context.WithValue(ctx, ctxShopID, claims.ShopID.String())
			}

			if logg != nil {
				ctx = logg.WithTechnicianID(ctx, technicianID.String())
				ctx = logg.WithActorRole(ctx, string(claims.Role))
				if claims.ShopID != nil {
					ctx = logg.WithShopID(ctx, claims.ShopID.String())
				}
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

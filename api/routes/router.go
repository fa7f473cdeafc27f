package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fastrepair/fastrepair-backend/api/controllers"
	"github.com/fastrepair/fastrepair-backend/api/middleware"
	"github.com/fastrepair/fastrepair-backend/internal/ledger"
	"github.com/fastrepair/fastrepair-backend/internal/repairs"
	"github.com/fastrepair/fastrepair-backend/internal/shops"
	"github.com/fastrepair/fastrepair-backend/pkg/config"
	"github.com/fastrepair/fastrepair-backend/pkg/enums"
	"github.com/fastrepair/fastrepair-backend/pkg/logger"
)

// NewRouter wires the console API. cachePinger and metricsHandler may be nil.
func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbPinger controllers.Pinger,
	cachePinger controllers.Pinger,
	metricsHandler http.Handler,
	shopService shops.Service,
	ledgerService ledger.Service,
	repairService repairs.Service,
	pendingCredits controllers.PendingCreditStore,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbPinger, cachePinger))
	})

	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.With(middleware.RequireRole(logg, enums.ActorRoleOwner, enums.ActorRoleAdmin)).
			Post("/shops", controllers.CreateShop(shopService, logg))
		r.Get("/shops/{shopID}/balance", controllers.ShopBalance(ledgerService, logg))

		r.Route("/cash-accounts/{accountID}", func(r chi.Router) {
			r.Post("/deposits", controllers.CashDeposit(ledgerService, logg))
			r.Post("/withdrawals", controllers.CashWithdrawal(ledgerService, logg))
			r.Get("/movements", controllers.CashMovements(ledgerService, logg))
		})

		r.Get("/technicians/{technicianID}/movements", controllers.TechnicianMovements(ledgerService, logg))
		r.Post("/repairs/{repairID}/complete", controllers.CompleteRepair(repairService, logg))

		r.Route("/pending-credits", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.ActorRoleOwner, enums.ActorRoleAdmin))
			r.Get("/", controllers.PendingCredits(pendingCredits, logg))
			r.Post("/{entryID}/resolve", controllers.ResolvePendingCredit(pendingCredits, logg))
		})
	})

	return r
}

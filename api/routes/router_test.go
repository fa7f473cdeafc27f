package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/fastrepair/fastrepair-backend/internal/cashaccounts"
	"github.com/fastrepair/fastrepair-backend/internal/ledger"
	"github.com/fastrepair/fastrepair-backend/internal/movements"
	"github.com/fastrepair/fastrepair-backend/internal/repairs"
	"github.com/fastrepair/fastrepair-backend/internal/shops"
	pkgAuth "github.com/fastrepair/fastrepair-backend/pkg/auth"
	"github.com/fastrepair/fastrepair-backend/pkg/config"
	dbpkg "github.com/fastrepair/fastrepair-backend/pkg/db"
	"github.com/fastrepair/fastrepair-backend/pkg/db/dbtest"
	"github.com/fastrepair/fastrepair-backend/pkg/db/models"
	"github.com/fastrepair/fastrepair-backend/pkg/enums"
	"github.com/fastrepair/fastrepair-backend/pkg/logger"
	"github.com/fastrepair/fastrepair-backend/pkg/metrics"
	"github.com/fastrepair/fastrepair-backend/pkg/outbox"
	"github.com/fastrepair/fastrepair-backend/pkg/outbox/registry"
)

type apiHarness struct {
	cfg     *config.Config
	client  *dbpkg.Client
	handler http.Handler
	repairs *repairs.Repository
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()
	cfg := &config.Config{
		App: config.AppConfig{Env: "test", CORSOrigins: []string{"http://console.local"}},
		JWT: config.JWTConfig{Secret: "router-secret", Issuer: "fastrepair", ExpirationMinutes: 30},
	}
	client := dbtest.Open(t)
	logg := logger.New(logger.Options{ServiceName: "router-test", Output: io.Discard})
	reg := prometheus.NewRegistry()

	accounts := cashaccounts.NewRepository(client.DB())
	ledgerSvc, err := ledger.NewService(ledger.ServiceParams{
		DB:        client,
		Accounts:  accounts,
		Movements: movements.NewRepository(client.DB()),
		Logger:    logg,
		Metrics:   metrics.NewLedgerMetrics(reg),
		Options:   ledger.DefaultOptions(),
	})
	require.NoError(t, err)

	shopSvc, err := shops.NewService(client, shops.NewRepository(client.DB()), ledgerSvc, logg)
	require.NoError(t, err)

	outboxRepo := outbox.NewRepository(client.DB())
	dlq := outbox.NewDLQRepository(client.DB())
	settler, err := repairs.NewCreditSettler(repairs.SettlerParams{
		DB:       client,
		Outbox:   outboxRepo,
		DLQ:      dlq,
		Registry: registry.NewEventRegistry(),
		Accounts: accounts,
		Ledger:   ledgerSvc,
		Logger:   logg,
		Retry:    dbpkg.RetryPolicy{MaxRetries: 1, BaseDelay: time.Millisecond},
	})
	require.NoError(t, err)

	repairRepo := repairs.NewRepository(client.DB())
	repairSvc, err := repairs.NewService(repairs.ServiceParams{
		DB:      client,
		Repairs: repairRepo,
		Emitter: outbox.NewService(outboxRepo, logg),
		Events:  outboxRepo,
		Settler: settler,
		Logger:  logg,
	})
	require.NoError(t, err)

	handler := NewRouter(cfg, logg, client, nil, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), shopSvc, ledgerSvc, repairSvc, dlq)
	return &apiHarness{cfg: cfg, client: client, handler: handler, repairs: repairRepo}
}

func (h *apiHarness) token(t *testing.T, technician uuid.UUID, role enums.ActorRole) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(h.cfg.JWT, time.Now(), pkgAuth.AccessTokenPayload{TechnicianID: technician, Role: role})
	require.NoError(t, err)
	return token
}

func (h *apiHarness) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	envelope := struct {
		Data any `json:"data"`
	}{Data: dest}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope))
}

func TestHealthRoutesArePublic(t *testing.T) {
	h := newAPIHarness(t)
	require.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/health/live", "", nil).Code)
	require.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/health/ready", "", nil).Code)
}

func TestAPIRequiresToken(t *testing.T) {
	h := newAPIHarness(t)
	rec := h.do(t, http.MethodGet, "/api/v1/shops/"+uuid.NewString()+"/balance", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTechnicianCannotCreateShop(t *testing.T) {
	h := newAPIHarness(t)
	token := h.token(t, uuid.New(), enums.ActorRoleTechnician)
	rec := h.do(t, http.MethodPost, "/api/v1/shops", token, map[string]any{"name": "Annex"})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/v1/pending-credits", token, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRegisterFlowEndToEnd(t *testing.T) {
	h := newAPIHarness(t)
	owner := h.token(t, uuid.New(), enums.ActorRoleOwner)
	technician := uuid.New()
	techToken := h.token(t, technician, enums.ActorRoleTechnician)

	rec := h.do(t, http.MethodPost, "/api/v1/shops", owner, map[string]any{"name": "Fast-Repair Lyon"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var shop shops.ShopDTO
	decodeData(t, rec, &shop)
	require.NotEqual(t, uuid.Nil, shop.CashAccountID)

	accountPath := "/api/v1/cash-accounts/" + shop.CashAccountID.String()
	require.Equal(t, http.StatusCreated, h.do(t, http.MethodPost, accountPath+"/deposits", techToken, map[string]any{"amount": "100"}).Code)
	require.Equal(t, http.StatusCreated, h.do(t, http.MethodPost, accountPath+"/withdrawals", techToken, map[string]any{"amount": "30", "note": "parts"}).Code)

	repair := &models.Repair{
		ShopID:       shop.ID,
		DeviceID:     uuid.New(),
		TechnicianID: &technician,
		TotalPrice:   decimal.RequireFromString("45.50"),
		State:        enums.RepairStateTesting,
	}
	require.NoError(t, h.repairs.Create(context.Background(), repair))

	rec = h.do(t, http.MethodPost, "/api/v1/repairs/"+repair.ID.String()+"/complete", techToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var completion struct {
		Credited bool            `json:"credited"`
		Balance  decimal.Decimal `json:"balance"`
	}
	decodeData(t, rec, &completion)
	require.True(t, completion.Credited)
	require.True(t, completion.Balance.Equal(decimal.RequireFromString("115.50")))

	// completing again must not credit twice
	rec = h.do(t, http.MethodPost, "/api/v1/repairs/"+repair.ID.String()+"/complete", techToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/v1/shops/"+shop.ID.String()+"/balance", techToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var balance struct {
		Balance decimal.Decimal `json:"balance"`
	}
	decodeData(t, rec, &balance)
	require.True(t, balance.Balance.Equal(decimal.RequireFromString("115.50")))

	rec = h.do(t, http.MethodGet, accountPath+"/movements", techToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var history []struct {
		Kind         enums.MovementKind `json:"kind"`
		Amount       decimal.Decimal    `json:"amount"`
		BalanceAfter decimal.Decimal    `json:"balance_after"`
	}
	decodeData(t, rec, &history)
	require.Len(t, history, 3)
	require.True(t, history[0].BalanceAfter.Equal(decimal.RequireFromString("115.50")))
	require.True(t, history[2].BalanceAfter.Equal(decimal.RequireFromString("100")))

	rec = h.do(t, http.MethodGet, "/api/v1/technicians/"+technician.String()+"/movements", techToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var mine []json.RawMessage
	decodeData(t, rec, &mine)
	require.Len(t, mine, 3)
}

func TestMissingRegisterSurfacesAsPendingCredit(t *testing.T) {
	h := newAPIHarness(t)
	owner := uuid.New()
	ownerToken := h.token(t, owner, enums.ActorRoleOwner)

	shop := &models.Shop{Name: "No Register"}
	require.NoError(t, h.client.DB().Create(shop).Error)
	technician := uuid.New()
	repair := &models.Repair{
		ShopID:       shop.ID,
		DeviceID:     uuid.New(),
		TechnicianID: &technician,
		TotalPrice:   decimal.RequireFromString("80"),
		State:        enums.RepairStateRepairing,
	}
	require.NoError(t, h.repairs.Create(context.Background(), repair))

	rec := h.do(t, http.MethodPost, "/api/v1/repairs/"+repair.ID.String()+"/complete", ownerToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var completion struct {
		Completed bool   `json:"completed"`
		Credited  bool   `json:"credited"`
		Warning   string `json:"warning"`
	}
	decodeData(t, rec, &completion)
	require.True(t, completion.Completed)
	require.False(t, completion.Credited)
	require.Equal(t, repairs.WarningCreditManual, completion.Warning)

	rec = h.do(t, http.MethodGet, "/api/v1/pending-credits", ownerToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var pending []struct {
		ID       uuid.UUID                  `json:"id"`
		RepairID uuid.UUID                  `json:"repair_id"`
		Reason   enums.OutboxDLQErrorReason `json:"reason"`
	}
	decodeData(t, rec, &pending)
	require.Len(t, pending, 1)
	require.Equal(t, repair.ID, pending[0].RepairID)
	require.Equal(t, enums.OutboxDLQReasonMissingCashAccount, pending[0].Reason)

	rec = h.do(t, http.MethodPost, "/api/v1/pending-credits/"+pending[0].ID.String()+"/resolve", ownerToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/v1/pending-credits/"+pending[0].ID.String()+"/resolve", ownerToken, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsEndpointExportsLedgerCounters(t *testing.T) {
	h := newAPIHarness(t)
	owner := h.token(t, uuid.New(), enums.ActorRoleOwner)

	rec := h.do(t, http.MethodPost, "/api/v1/shops", owner, map[string]any{"name": "Metrics"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var shop shops.ShopDTO
	decodeData(t, rec, &shop)
	require.Equal(t, http.StatusCreated, h.do(t, http.MethodPost, "/api/v1/cash-accounts/"+shop.CashAccountID.String()+"/deposits", owner, map[string]any{"amount": 5}).Code)

	rec = h.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "ledger_movements_total")
}

func TestCORSPreflight(t *testing.T) {
	h := newAPIHarness(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/shops", nil)
	req.Header.Set("Origin", "http://console.local")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	require.Equal(t, "http://console.local", rec.Header().Get("Access-Control-Allow-Origin"))
}

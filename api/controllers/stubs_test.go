package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/fastrepair/fastrepair-backend/api/middleware"
	"github.com/fastrepair/fastrepair-backend/internal/ledger"
	"github.com/fastrepair/fastrepair-backend/internal/repairs"
	"github.com/fastrepair/fastrepair-backend/internal/shops"
	"github.com/fastrepair/fastrepair-backend/pkg/db/models"
	"github.com/fastrepair/fastrepair-backend/pkg/enums"
)

type stubLedger struct {
	deposit       func(ctx context.Context, input ledger.DepositInput) (*ledger.MovementResult, error)
	withdraw      func(ctx context.Context, input ledger.WithdrawInput) (*ledger.MovementResult, error)
	accountRows   []ledger.MovementWithBalance
	technicianRow []models.Movement
	balance       decimal.Decimal
	err           error
}

func (s *stubLedger) Deposit(ctx context.Context, input ledger.DepositInput) (*ledger.MovementResult, error) {
	return s.deposit(ctx, input)
}

func (s *stubLedger) Withdraw(ctx context.Context, input ledger.WithdrawInput) (*ledger.MovementResult, error) {
	return s.withdraw(ctx, input)
}

func (s *stubLedger) DepositTx(ctx context.Context, _ *gorm.DB, input ledger.DepositInput) (*ledger.MovementResult, error) {
	return s.deposit(ctx, input)
}

func (s *stubLedger) MovementsForAccount(context.Context, uuid.UUID) ([]ledger.MovementWithBalance, error) {
	return s.accountRows, s.err
}

func (s *stubLedger) MovementsForTechnician(context.Context, uuid.UUID) ([]models.Movement, error) {
	return s.technicianRow, s.err
}

func (s *stubLedger) BalanceOf(context.Context, uuid.UUID) (decimal.Decimal, error) {
	return s.balance, s.err
}

func (s *stubLedger) OpenAccount(context.Context, *gorm.DB, uuid.UUID) (*models.CashAccount, error) {
	return nil, s.err
}

func (s *stubLedger) ReplayAccount(context.Context, uuid.UUID) (*ledger.Replay, error) {
	return nil, s.err
}

type stubShopService struct {
	input shops.CreateShopInput
	dto   *shops.ShopDTO
	err   error
}

func (s *stubShopService) Create(_ context.Context, input shops.CreateShopInput) (*shops.ShopDTO, error) {
	s.input = input
	return s.dto, s.err
}

func (s *stubShopService) EnsureCashAccount(context.Context, uuid.UUID) (*models.CashAccount, error) {
	return nil, s.err
}

type stubRepairService struct {
	input  repairs.CompleteRepairInput
	result *repairs.CompletionResult
	err    error
}

func (s *stubRepairService) CompleteRepair(_ context.Context, input repairs.CompleteRepairInput) (*repairs.CompletionResult, error) {
	s.input = input
	return s.result, s.err
}

type stubPendingCredits struct {
	rows            []models.OutboxDLQ
	includeResolved bool
	limit           int
	resolved        *models.OutboxDLQ
	resolvedBy      uuid.UUID
	err             error
}

func (s *stubPendingCredits) List(_ context.Context, includeResolved bool, limit int) ([]models.OutboxDLQ, error) {
	s.includeResolved = includeResolved
	s.limit = limit
	return s.rows, s.err
}

func (s *stubPendingCredits) Resolve(_ context.Context, id, resolvedBy uuid.UUID, at time.Time) (*models.OutboxDLQ, error) {
	s.resolvedBy = resolvedBy
	if s.err != nil {
		return nil, s.err
	}
	row := *s.resolved
	row.ResolvedAt = &at
	row.ResolvedBy = &resolvedBy
	return &row, nil
}

type stubPinger struct {
	err error
}

func (p stubPinger) Ping(context.Context) error {
	return p.err
}

func withURLParam(req *http.Request, key, value string) *http.Request {
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
}

func asActor(req *http.Request, technicianID uuid.UUID, role enums.ActorRole) *http.Request {
	ctx := middleware.WithTechnicianID(req.Context(), technicianID.String())
	ctx = middleware.WithRole(ctx, string(role))
	return req.WithContext(ctx)
}

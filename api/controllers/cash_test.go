package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/fastrepair/fastrepair-backend/api/middleware"
	"github.com/fastrepair/fastrepair-backend/internal/ledger"
	"github.com/fastrepair/fastrepair-backend/pkg/db/models"
	"github.com/fastrepair/fastrepair-backend/pkg/enums"
	pkgerrors "github.com/fastrepair/fastrepair-backend/pkg/errors"
	"github.com/fastrepair/fastrepair-backend/pkg/types"
)

func echoMovement(kind enums.MovementKind, balance string) func(context.Context, ledger.MovementInput) (*ledger.MovementResult, error) {
	return func(_ context.Context, input ledger.MovementInput) (*ledger.MovementResult, error) {
		return &ledger.MovementResult{
			Movement: models.Movement{
				ID:            uuid.New(),
				CashAccountID: input.AccountID,
				TechnicianID:  input.TechnicianID,
				Kind:          kind,
				Amount:        input.Amount,
				Note:          input.Note,
				OccurredAt:    time.Now(),
			},
			Balance: decimal.RequireFromString(balance),
		}, nil
	}
}

func postMovement(t *testing.T, handler http.HandlerFunc, accountID uuid.UUID, body string, actor uuid.UUID, role enums.ActorRole) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/cash-accounts/"+accountID.String()+"/deposits", bytes.NewBufferString(body))
	req = withURLParam(req, "accountID", accountID.String())
	req = asActor(req, actor, role)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestCashDepositRecordsAsTokenTechnician(t *testing.T) {
	var seen ledger.MovementInput
	svc := &stubLedger{deposit: func(ctx context.Context, input ledger.MovementInput) (*ledger.MovementResult, error) {
		seen = input
		return echoMovement(enums.MovementKindDeposit, "150.00")(ctx, input)
	}}
	accountID := uuid.New()
	technician := uuid.New()

	rec := postMovement(t, CashDeposit(svc, nil), accountID, `{"amount":"50.00","note":"  float top-up "}`, technician, enums.ActorRoleTechnician)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, accountID, seen.AccountID)
	require.Equal(t, technician, seen.TechnicianID)
	require.Equal(t, "float top-up", seen.Note)
	require.True(t, seen.Amount.Equal(decimal.RequireFromString("50")))

	var envelope struct {
		Data MovementResultView `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope))
	require.Equal(t, "Ajout de fonds", envelope.Data.Movement.Label)
	require.True(t, envelope.Data.Balance.Equal(decimal.RequireFromString("150")))
}

func TestCashDepositRejectsNonPositiveAmount(t *testing.T) {
	svc := &stubLedger{deposit: func(context.Context, ledger.MovementInput) (*ledger.MovementResult, error) {
		t.Fatal("ledger must not be called")
		return nil, nil
	}}

	for _, body := range []string{`{"amount":0}`, `{"amount":"-5"}`, `{}`, `{"amount":"10","extra":true}`} {
		rec := postMovement(t, CashDeposit(svc, nil), uuid.New(), body, uuid.New(), enums.ActorRoleTechnician)
		require.Equal(t, http.StatusBadRequest, rec.Code, body)

		var envelope types.ErrorEnvelope
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope))
		require.Equal(t, string(pkgerrors.CodeValidation), envelope.Error.Code)
	}
}

func TestCashDepositRejectsBadAccountID(t *testing.T) {
	handler := CashDeposit(&stubLedger{}, nil)
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"amount":"1"}`))
	req = withURLParam(req, "accountID", "not-a-uuid")
	req = asActor(req, uuid.New(), enums.ActorRoleOwner)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCashWithdrawalOnBehalfOfTechnician(t *testing.T) {
	other := uuid.New()
	body := `{"amount":"20","technician_id":"` + other.String() + `"}`

	t.Run("owner may", func(t *testing.T) {
		var seen ledger.MovementInput
		svc := &stubLedger{withdraw: func(ctx context.Context, input ledger.MovementInput) (*ledger.MovementResult, error) {
			seen = input
			return echoMovement(enums.MovementKindWithdrawal, "-20.00")(ctx, input)
		}}
		rec := postMovement(t, CashWithdrawal(svc, nil), uuid.New(), body, uuid.New(), enums.ActorRoleOwner)
		require.Equal(t, http.StatusCreated, rec.Code)
		require.Equal(t, other, seen.TechnicianID)
	})

	t.Run("technician may not", func(t *testing.T) {
		svc := &stubLedger{withdraw: func(context.Context, ledger.MovementInput) (*ledger.MovementResult, error) {
			t.Fatal("ledger must not be called")
			return nil, nil
		}}
		rec := postMovement(t, CashWithdrawal(svc, nil), uuid.New(), body, uuid.New(), enums.ActorRoleTechnician)
		require.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestCashWithdrawalSurfacesLedgerErrors(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{pkgerrors.New(pkgerrors.CodeStateConflict, "insufficient funds"), http.StatusUnprocessableEntity},
		{pkgerrors.New(pkgerrors.CodeNotFound, "cash account not found"), http.StatusNotFound},
		{pkgerrors.New(pkgerrors.CodeDependency, "cash account busy"), http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		svc := &stubLedger{withdraw: func(context.Context, ledger.MovementInput) (*ledger.MovementResult, error) {
			return nil, tc.err
		}}
		rec := postMovement(t, CashWithdrawal(svc, nil), uuid.New(), `{"amount":"5"}`, uuid.New(), enums.ActorRoleTechnician)
		require.Equal(t, tc.status, rec.Code)
	}
}

func TestCashMovementsIncludeRunningBalance(t *testing.T) {
	accountID := uuid.New()
	svc := &stubLedger{accountRows: []ledger.MovementWithBalance{
		{Movement: models.Movement{ID: uuid.New(), Kind: enums.MovementKindDeposit, Amount: decimal.NewFromInt(10)}, BalanceAfter: decimal.NewFromInt(80)},
		{Movement: models.Movement{ID: uuid.New(), Kind: enums.MovementKindWithdrawal, Amount: decimal.NewFromInt(30)}, BalanceAfter: decimal.NewFromInt(70)},
	}}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = withURLParam(req, "accountID", accountID.String())
	rec := httptest.NewRecorder()
	CashMovements(svc, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var envelope struct {
		Data []MovementView `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope))
	require.Len(t, envelope.Data, 2)
	require.True(t, envelope.Data[0].BalanceAfter.Equal(decimal.NewFromInt(80)))
	require.Equal(t, "Retrait de fonds", envelope.Data[1].Label)
}

func TestTechnicianMovementsScope(t *testing.T) {
	self := uuid.New()
	svc := &stubLedger{technicianRow: []models.Movement{{ID: uuid.New(), TechnicianID: self, Kind: enums.MovementKindDeposit, Amount: decimal.NewFromInt(1)}}}

	get := func(target uuid.UUID, role enums.ActorRole) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = withURLParam(req, "technicianID", target.String())
		req = asActor(req, self, role)
		rec := httptest.NewRecorder()
		TechnicianMovements(svc, nil).ServeHTTP(rec, req)
		return rec
	}

	require.Equal(t, http.StatusOK, get(self, enums.ActorRoleTechnician).Code)
	require.Equal(t, http.StatusForbidden, get(uuid.New(), enums.ActorRoleTechnician).Code)
	require.Equal(t, http.StatusOK, get(uuid.New(), enums.ActorRoleOwner).Code)
}

func TestCashHandlersWithoutService(t *testing.T) {
	rec := postMovement(t, CashDeposit(nil, nil), uuid.New(), `{"amount":"1"}`, uuid.New(), enums.ActorRoleOwner)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestCashMovementsPagesWithCursor(t *testing.T) {
	accountID := uuid.New()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	rows := make([]ledger.MovementWithBalance, 0, 3)
	for i := 3; i > 0; i-- {
		rows = append(rows, ledger.MovementWithBalance{
			Movement:     models.Movement{ID: uuid.New(), Kind: enums.MovementKindDeposit, Amount: decimal.NewFromInt(int64(i)), OccurredAt: base.Add(time.Duration(i) * time.Hour)},
			BalanceAfter: decimal.NewFromInt(int64(i)),
		})
	}
	svc := &stubLedger{accountRows: rows}

	get := func(query string) (*httptest.ResponseRecorder, []MovementView) {
		req := httptest.NewRequest(http.MethodGet, "/?"+query, nil)
		req = withURLParam(req, "accountID", accountID.String())
		rec := httptest.NewRecorder()
		CashMovements(svc, nil).ServeHTTP(rec, req)
		var envelope struct {
			Data []MovementView `json:"data"`
		}
		if rec.Code == http.StatusOK {
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope))
		}
		return rec, envelope.Data
	}

	rec, first := get("limit=2")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, first, 2)
	next := rec.Header().Get(NextCursorHeader)
	require.NotEmpty(t, next)

	rec, second := get("limit=2&cursor=" + next)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, second, 1)
	require.Equal(t, rows[2].Movement.ID, second[0].ID)
	require.Empty(t, rec.Header().Get(NextCursorHeader))

	rec, _ = get("cursor=bad*cursor")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = get("limit=0")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCashDepositCarriesTokenShopScope(t *testing.T) {
	var seen ledger.MovementInput
	svc := &stubLedger{deposit: func(ctx context.Context, input ledger.MovementInput) (*ledger.MovementResult, error) {
		seen = input
		if input.ShopID != nil {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "cash account belongs to another shop")
		}
		return echoMovement(enums.MovementKindDeposit, "10.00")(ctx, input)
	}}
	shopA := uuid.New()
	accountID := uuid.New()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cash-accounts/"+accountID.String()+"/deposits", bytes.NewBufferString(`{"amount":"10"}`))
	req = withURLParam(req, "accountID", accountID.String())
	req = asActor(req, uuid.New(), enums.ActorRoleTechnician)
	req = req.WithContext(middleware.WithShopID(req.Context(), shopA.String()))
	rec := httptest.NewRecorder()
	CashDeposit(svc, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	require.NotNil(t, seen.ShopID)
	require.Equal(t, shopA, *seen.ShopID)

	rec = postMovement(t, CashDeposit(svc, nil), accountID, `{"amount":"10"}`, uuid.New(), enums.ActorRoleAdmin)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Nil(t, seen.ShopID)
}

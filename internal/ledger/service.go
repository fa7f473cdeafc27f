package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/fastrepair/fastrepair-backend/internal/cashaccounts"
	"github.com/fastrepair/fastrepair-backend/internal/movements"
	dbpkg "github.com/fastrepair/fastrepair-backend/pkg/db"
	"github.com/fastrepair/fastrepair-backend/pkg/db/models"
	"github.com/fastrepair/fastrepair-backend/pkg/enums"
	pkgerrors "github.com/fastrepair/fastrepair-backend/pkg/errors"
	"github.com/fastrepair/fastrepair-backend/pkg/logger"
	"github.com/fastrepair/fastrepair-backend/pkg/metrics"
)

// Service is the only component allowed to change a register balance.
type Service interface {
	Deposit(ctx context.Context, input DepositInput) (*MovementResult, error)
	Withdraw(ctx context.Context, input WithdrawInput) (*MovementResult, error)
	DepositTx(ctx context.Context, tx *gorm.DB, input DepositInput) (*MovementResult, error)
	MovementsForAccount(ctx context.Context, accountID uuid.UUID) ([]MovementWithBalance, error)
	MovementsForTechnician(ctx context.Context, technicianID uuid.UUID) ([]models.Movement, error)
	BalanceOf(ctx context.Context, shopID uuid.UUID) (decimal.Decimal, error)
	OpenAccount(ctx context.Context, tx *gorm.DB, shopID uuid.UUID) (*models.CashAccount, error)
	ReplayAccount(ctx context.Context, accountID uuid.UUID) (*Replay, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
	WithRetryTx(ctx context.Context, policy dbpkg.RetryPolicy, fn func(tx *gorm.DB) error) error
}

// Options tunes balance rules and contention handling.
type Options struct {
	AllowNegativeBalance bool
	MaxRetries           uint64
	RetryBaseDelay       time.Duration
	LockTimeout          time.Duration
}

// DefaultOptions keeps the historical behavior of allowing negative balances.
func DefaultOptions() Options {
	return Options{
		AllowNegativeBalance: true,
		MaxRetries:           4,
		RetryBaseDelay:       25 * time.Millisecond,
		LockTimeout:          3 * time.Second,
	}
}

type ServiceParams struct {
	DB        txRunner
	Accounts  cashaccounts.Repository
	Movements movements.Repository
	Logger    *logger.Logger
	Metrics   *metrics.LedgerMetrics
	Options   Options
	Clock     func() time.Time
}

type service struct {
	db        txRunner
	accounts  cashaccounts.Repository
	movements movements.Repository
	logg      *logger.Logger
	metrics   *metrics.LedgerMetrics
	opts      Options
	now       func() time.Time
}

// NewService wires a ledger service with its repositories.
func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Accounts == nil {
		return nil, fmt.Errorf("cash account repository required")
	}
	if params.Movements == nil {
		return nil, fmt.Errorf("movement repository required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &service{
		db:        params.DB,
		accounts:  params.Accounts,
		movements: params.Movements,
		logg:      params.Logger,
		metrics:   params.Metrics,
		opts:      params.Options,
		now:       clock,
	}, nil
}

func (s *service) Deposit(ctx context.Context, input DepositInput) (*MovementResult, error) {
	return s.record(ctx, "deposit", enums.MovementKindDeposit, input)
}

func (s *service) Withdraw(ctx context.Context, input WithdrawInput) (*MovementResult, error) {
	return s.record(ctx, "withdraw", enums.MovementKindWithdrawal, input)
}

// DepositTx applies a deposit inside a transaction owned by the caller, so
// the credit commits or rolls back with the caller's other writes.
func (s *service) DepositTx(ctx context.Context, tx *gorm.DB, input DepositInput) (*MovementResult, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	amount, err := validateInput(input)
	if err != nil {
		s.metrics.IncFailure("deposit", string(pkgerrors.CodeValidation))
		return nil, err
	}
	result, err := s.apply(ctx, tx, enums.MovementKindDeposit, input, amount)
	if err != nil {
		return nil, s.fail(ctx, "deposit", input, err)
	}
	s.recorded(ctx, result)
	return result, nil
}

func (s *service) record(ctx context.Context, op string, kind enums.MovementKind, input MovementInput) (*MovementResult, error) {
	amount, err := validateInput(input)
	if err != nil {
		s.metrics.IncFailure(op, string(pkgerrors.CodeValidation))
		return nil, err
	}

	policy := dbpkg.RetryPolicy{
		MaxRetries:  s.opts.MaxRetries,
		BaseDelay:   s.opts.RetryBaseDelay,
		LockTimeout: s.opts.LockTimeout,
		OnRetry: func(attempt uint64, cause error) {
			s.metrics.IncRetry(op)
			retryCtx := s.logg.WithFields(ctx, map[string]any{
				"op":              op,
				"cash_account_id": input.AccountID.String(),
				"attempt":         attempt,
				"error":           cause.Error(),
			})
			s.logg.Warn(retryCtx, "cash account contended, retrying")
		},
	}

	var result *MovementResult
	err = s.db.WithRetryTx(ctx, policy, func(tx *gorm.DB) error {
		res, err := s.apply(ctx, tx, kind, input, amount)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, s.fail(ctx, op, input, err)
	}
	s.recorded(ctx, result)
	return result, nil
}

func validateInput(input MovementInput) (decimal.Decimal, error) {
	if input.AccountID == uuid.Nil {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "cash account id is required")
	}
	if input.TechnicianID == uuid.Nil {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "technician id is required")
	}
	amount := input.Amount.Round(2)
	if !amount.IsPositive() {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive").
			WithDetails(map[string]any{"amount": input.Amount.String()})
	}
	return amount, nil
}

// apply locks the account, appends the movement and stores the new balance.
// Every write happens on tx.
func (s *service) apply(ctx context.Context, tx *gorm.DB, kind enums.MovementKind, input MovementInput, amount decimal.Decimal) (*MovementResult, error) {
	accounts := s.accounts.WithTx(tx)

	account, err := accounts.FindByIDForUpdate(ctx, input.AccountID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cash account not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cash account")
	}
	if input.ShopID != nil && account.ShopID != *input.ShopID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "cash account belongs to another shop")
	}

	delta := amount
	if kind == enums.MovementKindWithdrawal {
		delta = amount.Neg()
	}
	balance := account.Balance.Add(delta)
	if balance.IsNegative() && !s.opts.AllowNegativeBalance {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "insufficient funds").
			WithDetails(map[string]any{
				"balance": account.Balance.StringFixed(2),
				"amount":  amount.StringFixed(2),
			})
	}

	// occurred_at is strictly increasing per account so replay order is total
	now := s.now().UTC().Truncate(time.Microsecond)
	if !now.After(account.LastMovementAt) {
		now = account.LastMovementAt.UTC().Add(time.Microsecond)
	}
	movement := models.Movement{
		ID:            uuid.New(),
		CashAccountID: account.ID,
		TechnicianID:  input.TechnicianID,
		Kind:          kind,
		Amount:        amount,
		Note:          strings.TrimSpace(input.Note),
		OccurredAt:    now,
		CreatedAt:     now,
	}
	if err := s.movements.WithTx(tx).Create(ctx, &movement); err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert movement")
	}

	account.Balance = balance
	account.LastMovementAt = now
	if err := accounts.Update(ctx, account); err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cash account")
	}

	return &MovementResult{Movement: movement, Balance: balance}, nil
}

func (s *service) recorded(ctx context.Context, result *MovementResult) {
	s.metrics.IncMovement(string(result.Movement.Kind))
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"cash_account_id": result.Movement.CashAccountID.String(),
		"technician_id":   result.Movement.TechnicianID.String(),
		"movement_id":     result.Movement.ID.String(),
		"kind":            result.Movement.Kind,
		"amount":          result.Movement.Amount.StringFixed(2),
		"balance":         result.Balance.StringFixed(2),
	})
	s.logg.Info(logCtx, "cash movement recorded")
}

// fail normalizes err into a typed error and records it.
func (s *service) fail(ctx context.Context, op string, input MovementInput, err error) error {
	typed := pkgerrors.As(err)
	switch {
	case dbpkg.IsRetryable(err):
		typed = pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cash account busy")
	case typed == nil:
		typed = pkgerrors.Wrap(pkgerrors.CodeDependency, err, "ledger storage failure")
	}

	s.metrics.IncFailure(op, string(typed.Code()))
	if typed.Code() == pkgerrors.CodeDependency || typed.Code() == pkgerrors.CodeInternal {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"op":              op,
			"cash_account_id": input.AccountID.String(),
			"technician_id":   input.TechnicianID.String(),
		})
		s.logg.Error(logCtx, "cash movement failed", err)
	}
	return typed
}

// MovementsForAccount lists the account's movements most recent first, each
// with the balance it left, by walking back from the stored balance.
func (s *service) MovementsForAccount(ctx context.Context, accountID uuid.UUID) ([]MovementWithBalance, error) {
	if accountID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cash account id is required")
	}

	var (
		account *models.CashAccount
		rows    []models.Movement
	)
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		account, err = s.accounts.WithTx(tx).FindByID(ctx, accountID)
		if err != nil {
			return err
		}
		rows, err = s.movements.WithTx(tx).ListByCashAccount(ctx, accountID)
		return err
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cash account not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list movements")
	}

	SortMostRecentFirst(rows)

	out := make([]MovementWithBalance, 0, len(rows))
	running := account.Balance
	for _, row := range rows {
		out = append(out, MovementWithBalance{Movement: row, BalanceAfter: running})
		running = running.Sub(row.SignedAmount())
	}
	return out, nil
}

func (s *service) MovementsForTechnician(ctx context.Context, technicianID uuid.UUID) ([]models.Movement, error) {
	if technicianID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "technician id is required")
	}
	rows, err := s.movements.ListByTechnician(ctx, technicianID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list technician movements")
	}
	SortMostRecentFirst(rows)
	return rows, nil
}

func (s *service) BalanceOf(ctx context.Context, shopID uuid.UUID) (decimal.Decimal, error) {
	if shopID == uuid.Nil {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "shop id is required")
	}
	account, err := s.accounts.FindByShop(ctx, shopID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, pkgerrors.New(pkgerrors.CodeNotFound, "no cash account for shop")
		}
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cash account")
	}
	return account.Balance, nil
}

// OpenAccount creates the shop's register with a zero balance unless it
// already exists. When tx is nil the service opens its own transaction.
func (s *service) OpenAccount(ctx context.Context, tx *gorm.DB, shopID uuid.UUID) (*models.CashAccount, error) {
	if shopID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shop id is required")
	}
	if tx == nil {
		var account *models.CashAccount
		err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
			var err error
			account, err = s.OpenAccount(ctx, tx, shopID)
			return err
		})
		return account, err
	}

	accounts := s.accounts.WithTx(tx)
	exists, err := accounts.ExistsForShop(ctx, shopID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check cash account")
	}
	if exists {
		account, err := accounts.FindByShop(ctx, shopID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cash account")
		}
		return account, nil
	}

	now := s.now().UTC()
	account := &models.CashAccount{
		ID:             uuid.New(),
		ShopID:         shopID,
		Balance:        decimal.Zero,
		LastMovementAt: now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := accounts.Create(ctx, account); err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create cash account")
	}

	logCtx := s.logg.WithShopID(ctx, shopID.String())
	s.logg.Info(s.logg.WithCashAccountID(logCtx, account.ID.String()), "cash account opened")
	return account, nil
}

// ReplayAccount sums the account's movements from zero for comparison with
// the stored balance.
func (s *service) ReplayAccount(ctx context.Context, accountID uuid.UUID) (*Replay, error) {
	var replay *Replay
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		account, err := s.accounts.WithTx(tx).FindByID(ctx, accountID)
		if err != nil {
			return err
		}
		rows, err := s.movements.WithTx(tx).ListByCashAccount(ctx, accountID)
		if err != nil {
			return err
		}
		replay = &Replay{
			AccountID:      account.ID,
			ShopID:         account.ShopID,
			StoredBalance:  account.Balance,
			ReplayedAmount: decimal.Zero,
			MovementCount:  len(rows),
			LastMovementAt: account.LastMovementAt,
		}
		for _, row := range rows {
			replay.ReplayedAmount = replay.ReplayedAmount.Add(row.SignedAmount())
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cash account not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "replay cash account")
	}
	return replay, nil
}

// SortMostRecentFirst orders movements by occurred_at, then created_at, then
// id, all descending, so equal timestamps still replay deterministically.
func SortMostRecentFirst(rows []models.Movement) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if !a.OccurredAt.Equal(b.OccurredAt) {
			return a.OccurredAt.After(b.OccurredAt)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID.String() > b.ID.String()
	})
}

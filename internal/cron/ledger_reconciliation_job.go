package cron

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/fastrepair/fastrepair-backend/internal/ledger"
	"github.com/fastrepair/fastrepair-backend/pkg/db/models"
	"github.com/fastrepair/fastrepair-backend/pkg/logger"
	"github.com/fastrepair/fastrepair-backend/pkg/metrics"
)

type LedgerReconciliationJobParams struct {
	Logger   *logger.Logger
	Accounts accountLister
	Ledger   accountReplayer
	Metrics  *metrics.LedgerMetrics
}

type accountLister interface {
	List(ctx context.Context) ([]models.CashAccount, error)
}

type accountReplayer interface {
	ReplayAccount(ctx context.Context, accountID uuid.UUID) (*ledger.Replay, error)
}

// NewLedgerReconciliationJob replays every register from its movements and
// reports the ones whose stored balance disagrees. It never corrects a
// balance.
func NewLedgerReconciliationJob(params LedgerReconciliationJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Accounts == nil {
		return nil, fmt.Errorf("cash account repository required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger required")
	}
	return &ledgerReconciliationJob{
		logg:     params.Logger,
		accounts: params.Accounts,
		ledger:   params.Ledger,
		metrics:  params.Metrics,
	}, nil
}

type ledgerReconciliationJob struct {
	logg     *logger.Logger
	accounts accountLister
	ledger   accountReplayer
	metrics  *metrics.LedgerMetrics
}

func (j *ledgerReconciliationJob) Name() string { return "ledger-reconciliation" }

func (j *ledgerReconciliationJob) Run(ctx context.Context) error {
	accounts, err := j.accounts.List(ctx)
	if err != nil {
		return fmt.Errorf("list cash accounts: %w", err)
	}

	var (
		errs    error
		drifted int
	)
	for _, account := range accounts {
		replay, err := j.ledger.ReplayAccount(ctx, account.ID)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("replay %s: %w", account.ID, err))
			continue
		}
		drift := replay.Drift()
		if drift.IsZero() {
			continue
		}
		drifted++
		logCtx := j.logg.WithShopID(ctx, replay.ShopID.String())
		logCtx = j.logg.WithCashAccountID(logCtx, replay.AccountID.String())
		logCtx = j.logg.WithFields(logCtx, map[string]any{
			"stored_balance":   replay.StoredBalance.StringFixed(2),
			"replayed_balance": replay.ReplayedAmount.StringFixed(2),
			"drift":            drift.StringFixed(2),
			"movement_count":   replay.MovementCount,
		})
		j.logg.Warn(logCtx, "cash account balance drift detected")
	}

	if errs == nil {
		j.metrics.SetDrift(drifted)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"accounts_checked": len(accounts),
		"accounts_drifted": drifted,
		"replay_failures":  len(multierr.Errors(errs)),
	})
	j.logg.Info(logCtx, "ledger reconciliation complete")
	return errs
}

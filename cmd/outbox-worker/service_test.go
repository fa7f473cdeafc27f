package main

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/fastrepair/fastrepair-backend/internal/cashaccounts"
	"github.com/fastrepair/fastrepair-backend/internal/ledger"
	"github.com/fastrepair/fastrepair-backend/internal/movements"
	"github.com/fastrepair/fastrepair-backend/internal/repairs"
	"github.com/fastrepair/fastrepair-backend/pkg/config"
	dbpkg "github.com/fastrepair/fastrepair-backend/pkg/db"
	"github.com/fastrepair/fastrepair-backend/pkg/db/dbtest"
	"github.com/fastrepair/fastrepair-backend/pkg/db/models"
	"github.com/fastrepair/fastrepair-backend/pkg/enums"
	pkgerrors "github.com/fastrepair/fastrepair-backend/pkg/errors"
	"github.com/fastrepair/fastrepair-backend/pkg/logger"
	"github.com/fastrepair/fastrepair-backend/pkg/outbox"
	"github.com/fastrepair/fastrepair-backend/pkg/outbox/payloads"
	"github.com/fastrepair/fastrepair-backend/pkg/outbox/registry"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "outbox-worker-test", Output: io.Discard})
}

func testConfig() *config.Config {
	return &config.Config{Outbox: config.OutboxConfig{BatchSize: 10, PollIntervalMS: 5, MaxAttempts: 3}}
}

type fakeDB struct {
	err error
}

func (f fakeDB) Ping(context.Context) error {
	return f.err
}

type fakeLister struct {
	ids         []uuid.UUID
	err         error
	calls       int
	maxAttempts int
}

func (f *fakeLister) ListPending(_ context.Context, eventType enums.OutboxEventType, limit, maxAttempts int) ([]uuid.UUID, error) {
	f.calls++
	f.maxAttempts = maxAttempts
	if eventType != enums.EventRepairCreditRequested {
		return nil, errors.New("unexpected event type")
	}
	return f.ids, f.err
}

type fakeSettler struct {
	outcomes map[uuid.UUID]repairs.SettlementOutcome
	errs     map[uuid.UUID]error
	modes    []repairs.LockMode
}

func (f *fakeSettler) Settle(_ context.Context, id uuid.UUID, mode repairs.LockMode) (*repairs.Settlement, error) {
	f.modes = append(f.modes, mode)
	if err, ok := f.errs[id]; ok {
		return &repairs.Settlement{EventID: id, Outcome: repairs.OutcomeFailed}, err
	}
	return &repairs.Settlement{EventID: id, Outcome: f.outcomes[id]}, nil
}

func newTestService(t *testing.T, lister pendingLister, settler creditSettler) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Config:     testConfig(),
		Logger:     testLogger(),
		DB:         fakeDB{},
		Repository: lister,
		Settler:    settler,
	})
	require.NoError(t, err)
	return svc
}

func TestNewServiceValidatesParams(t *testing.T) {
	_, err := NewService(ServiceParams{Logger: testLogger()})
	require.Error(t, err)
	_, err = NewService(ServiceParams{Config: testConfig(), Logger: testLogger(), DB: fakeDB{}, Repository: &fakeLister{}})
	require.Error(t, err)

	svc, err := NewService(ServiceParams{Config: &config.Config{}, Logger: testLogger(), DB: fakeDB{}, Repository: &fakeLister{}, Settler: &fakeSettler{}})
	require.NoError(t, err)
	require.Equal(t, defaultBatchSize, svc.batchSize)
	require.Equal(t, defaultMaxAttempts, svc.maxAttempts)
}

func TestProcessBatchCountsOutcomes(t *testing.T) {
	credited, dead, busy, missing := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	lister := &fakeLister{ids: []uuid.UUID{credited, dead, busy, missing}}
	settler := &fakeSettler{
		outcomes: map[uuid.UUID]repairs.SettlementOutcome{
			credited: repairs.OutcomeCredited,
			dead:     repairs.OutcomeDeadLettered,
			busy:     repairs.OutcomeBusy,
		},
		errs: map[uuid.UUID]error{missing: pkgerrors.New(pkgerrors.CodeNotFound, "pending credit not found")},
	}

	stats, err := newTestService(t, lister, settler).processBatch(context.Background())
	require.NoError(t, err)
	require.Equal(t, batchStats{credited: 1, deadLettered: 1, skipped: 2}, stats)
	require.Equal(t, 3, lister.maxAttempts)
	for _, mode := range settler.modes {
		require.Equal(t, repairs.LockSkip, mode)
	}
}

func TestProcessBatchAllFailedReportsError(t *testing.T) {
	id := uuid.New()
	lister := &fakeLister{ids: []uuid.UUID{id}}
	settler := &fakeSettler{errs: map[uuid.UUID]error{id: pkgerrors.New(pkgerrors.CodeDependency, "cash account busy")}}

	stats, err := newTestService(t, lister, settler).processBatch(context.Background())
	require.Error(t, err)
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeDependency))
	require.Equal(t, 1, stats.failed)
}

func TestProcessBatchListError(t *testing.T) {
	_, err := newTestService(t, &fakeLister{err: errors.New("db down")}, &fakeSettler{}).processBatch(context.Background())
	require.ErrorContains(t, err, "list pending credits")
}

func TestRunStopsOnCancel(t *testing.T) {
	lister := &fakeLister{}
	svc := newTestService(t, lister, &fakeSettler{})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := svc.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.GreaterOrEqual(t, lister.calls, 1)
}

func TestRunFailsWhenDatabaseUnreachable(t *testing.T) {
	svc, err := NewService(ServiceParams{
		Config:     testConfig(),
		Logger:     testLogger(),
		DB:         fakeDB{err: errors.New("refused")},
		Repository: &fakeLister{},
		Settler:    &fakeSettler{},
	})
	require.NoError(t, err)
	require.ErrorContains(t, svc.Run(context.Background()), "database ping failed")
}

func TestBackoffSchedules(t *testing.T) {
	cfg := testConfig()
	cfg.Outbox.PollIntervalMS = 1000
	svc, err := NewService(ServiceParams{
		Config:     cfg,
		Logger:     testLogger(),
		DB:         fakeDB{},
		Repository: &fakeLister{},
		Settler:    &fakeSettler{},
	})
	require.NoError(t, err)

	within := func(t *testing.T, d, want time.Duration) {
		t.Helper()
		require.GreaterOrEqual(t, d, want-jitterWindow)
		require.LessOrEqual(t, d, want+jitterWindow)
	}

	idle := svc.idleBackoff()
	for i := 0; i < 3; i++ {
		d, stop := idle.Next()
		require.False(t, stop)
		within(t, d, time.Second)
	}

	failures := svc.failureBackoff()
	d, _ := failures.Next()
	within(t, d, 2*time.Second)
	d, _ = failures.Next()
	within(t, d, 4*time.Second)
	for i := 0; i < 10; i++ {
		d, _ = failures.Next()
	}
	within(t, d, maxBackoff)
}

func TestWorkerCreditsQueuedRepairOnce(t *testing.T) {
	ctx := context.Background()
	client := dbtest.Open(t)
	logg := testLogger()

	accounts := cashaccounts.NewRepository(client.DB())
	ledgerSvc, err := ledger.NewService(ledger.ServiceParams{
		DB:        client,
		Accounts:  accounts,
		Movements: movements.NewRepository(client.DB()),
		Logger:    logg,
		Options:   ledger.DefaultOptions(),
	})
	require.NoError(t, err)

	shop := &models.Shop{Name: "Fast-Repair"}
	require.NoError(t, client.DB().Create(shop).Error)
	account, err := ledgerSvc.OpenAccount(ctx, nil, shop.ID)
	require.NoError(t, err)

	repo := outbox.NewRepository(client.DB())
	emitter := outbox.NewService(repo, logg)
	repairID := uuid.New()
	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		_, err := emitter.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventRepairCreditRequested,
			AggregateType: enums.AggregateRepair,
			AggregateID:   repairID,
			Version:       payloads.RepairCreditRequestedVersion,
			Data: payloads.RepairCreditRequested{
				RepairID:     repairID,
				ShopID:       shop.ID,
				TechnicianID: uuid.New(),
				Amount:       decimal.RequireFromString("75.25"),
				Note:         "Repair completed",
				CompletedAt:  time.Now(),
			},
		})
		return err
	}))

	settler, err := repairs.NewCreditSettler(repairs.SettlerParams{
		DB:       client,
		Outbox:   repo,
		DLQ:      outbox.NewDLQRepository(client.DB()),
		Registry: registry.NewEventRegistry(),
		Accounts: accounts,
		Ledger:   ledgerSvc,
		Logger:   logg,
		Retry:    dbpkg.RetryPolicy{MaxRetries: 1, BaseDelay: time.Millisecond},
	})
	require.NoError(t, err)

	svc := newTestService(t, repo, settler)

	stats, err := svc.processBatch(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.credited)

	stats, err = svc.processBatch(ctx)
	require.NoError(t, err)
	require.Equal(t, batchStats{}, stats)

	stored, err := accounts.FindByID(ctx, account.ID)
	require.NoError(t, err)
	require.True(t, stored.Balance.Equal(decimal.RequireFromString("75.25")))
}

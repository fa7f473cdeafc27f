package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/fastrepair/fastrepair-backend/internal/cashaccounts"
	"github.com/fastrepair/fastrepair-backend/internal/ledger"
	"github.com/fastrepair/fastrepair-backend/internal/movements"
	"github.com/fastrepair/fastrepair-backend/internal/repairs"
	"github.com/fastrepair/fastrepair-backend/pkg/config"
	"github.com/fastrepair/fastrepair-backend/pkg/db"
	"github.com/fastrepair/fastrepair-backend/pkg/instance"
	"github.com/fastrepair/fastrepair-backend/pkg/logger"
	"github.com/fastrepair/fastrepair-backend/pkg/metrics"
	"github.com/fastrepair/fastrepair-backend/pkg/migrate"
	"github.com/fastrepair/fastrepair-backend/pkg/outbox"
	"github.com/fastrepair/fastrepair-backend/pkg/outbox/registry"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "outbox-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "outbox-worker"

	logg = logger.New(logger.Options{
		ServiceName: "outbox-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRun(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run migrations", err)
		os.Exit(1)
	}

	ledgerMetrics := metrics.NewLedgerMetrics(prometheus.DefaultRegisterer)
	accounts := cashaccounts.NewRepository(dbClient.DB())
	ledgerService, err := ledger.NewService(ledger.ServiceParams{
		DB:        dbClient,
		Accounts:  accounts,
		Movements: movements.NewRepository(dbClient.DB()),
		Logger:    logg,
		Metrics:   ledgerMetrics,
		Options: ledger.Options{
			AllowNegativeBalance: cfg.Ledger.AllowNegativeBalance,
			MaxRetries:           cfg.Ledger.MaxRetries,
			RetryBaseDelay:       cfg.Ledger.RetryBaseDelay,
			LockTimeout:          cfg.Ledger.LockTimeout,
		},
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger service", err)
		os.Exit(1)
	}

	repo := outbox.NewRepository(dbClient.DB())
	settler, err := repairs.NewCreditSettler(repairs.SettlerParams{
		DB:       dbClient,
		Outbox:   repo,
		DLQ:      outbox.NewDLQRepository(dbClient.DB()),
		Registry: registry.NewEventRegistry(),
		Accounts: accounts,
		Ledger:   ledgerService,
		Logger:   logg,
		Metrics:  ledgerMetrics,
		Retry: db.RetryPolicy{
			MaxRetries:  cfg.Ledger.MaxRetries,
			BaseDelay:   cfg.Ledger.RetryBaseDelay,
			LockTimeout: cfg.Ledger.LockTimeout,
		},
		MaxAttempts: cfg.Outbox.MaxAttempts,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create credit settler", err)
		os.Exit(1)
	}

	service, err := NewService(ServiceParams{
		Config:     cfg,
		Logger:     logg,
		DB:         dbClient,
		Repository: repo,
		Settler:    settler,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox worker", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"workerId":    instance.GetID(),
	})
	logg.Info(ctx, "starting outbox worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "outbox worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "outbox worker shutting down gracefully")
}

package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/fastrepair/fastrepair-backend/internal/cashaccounts"
	"github.com/fastrepair/fastrepair-backend/internal/cron"
	"github.com/fastrepair/fastrepair-backend/internal/ledger"
	"github.com/fastrepair/fastrepair-backend/internal/movements"
	"github.com/fastrepair/fastrepair-backend/pkg/config"
	"github.com/fastrepair/fastrepair-backend/pkg/db"
	"github.com/fastrepair/fastrepair-backend/pkg/instance"
	"github.com/fastrepair/fastrepair-backend/pkg/logger"
	"github.com/fastrepair/fastrepair-backend/pkg/metrics"
	"github.com/fastrepair/fastrepair-backend/pkg/migrate"
	"github.com/fastrepair/fastrepair-backend/pkg/outbox"
	"github.com/fastrepair/fastrepair-backend/pkg/redis"
)

func main() {
	jobName := flag.String("job", "", "run a single job once and exit")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
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

	var lock cron.Lock = &cron.LocalLock{}
	if cfg.Redis.Enabled() {
		redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap redis", err)
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
		lock, err = cron.NewRedisLock(redisClient, redisClient.LockKey(lockName(cfg.App.Env)), cfg.Cron.LockTTL)
		if err != nil {
			logg.Error(context.Background(), "failed to create cron lock", err)
			os.Exit(1)
		}
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

	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: outbox.NewRepository(dbClient.DB()),
		Retention:  cfg.Cron.OutboxRetentionDays,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox retention job", err)
		os.Exit(1)
	}
	reconciliationJob, err := cron.NewLedgerReconciliationJob(cron.LedgerReconciliationJobParams{
		Logger:   logg,
		Accounts: accounts,
		Ledger:   ledgerService,
		Metrics:  ledgerMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger reconciliation job", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   cron.NewRegistry(retentionJob, reconciliationJob),
		Lock:       lock,
		Metrics:    metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval:   cfg.Cron.Interval,
		JobTimeout: cfg.Cron.LockTTL,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"workerId":    instance.GetID(),
	})
	if *jobName != "" {
		ctx = logg.WithField(ctx, "job", *jobName)
		if err := service.RunNamed(ctx, *jobName); err != nil {
			logg.Error(ctx, "one-shot job failed", err)
			os.Exit(1)
		}
		logg.Info(ctx, "one-shot job complete")
		return
	}

	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func lockName(env string) string {
	if env == "" {
		env = "local"
	}
	return "cron-worker:" + env
}

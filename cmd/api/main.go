package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fastrepair/fastrepair-backend/api/controllers"
	"github.com/fastrepair/fastrepair-backend/api/routes"
	"github.com/fastrepair/fastrepair-backend/internal/cashaccounts"
	"github.com/fastrepair/fastrepair-backend/internal/ledger"
	"github.com/fastrepair/fastrepair-backend/internal/movements"
	"github.com/fastrepair/fastrepair-backend/internal/repairs"
	"github.com/fastrepair/fastrepair-backend/internal/shops"
	"github.com/fastrepair/fastrepair-backend/pkg/config"
	"github.com/fastrepair/fastrepair-backend/pkg/db"
	"github.com/fastrepair/fastrepair-backend/pkg/logger"
	"github.com/fastrepair/fastrepair-backend/pkg/metrics"
	"github.com/fastrepair/fastrepair-backend/pkg/migrate"
	"github.com/fastrepair/fastrepair-backend/pkg/outbox"
	"github.com/fastrepair/fastrepair-backend/pkg/outbox/registry"
	"github.com/fastrepair/fastrepair-backend/pkg/redis"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	// Redis only backs the readiness probe here; workstation installs run without it.
	var cachePinger controllers.Pinger
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
		cachePinger = redisClient
	}

	registerer := prometheus.NewRegistry()
	registerer.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	ledgerMetrics := metrics.NewLedgerMetrics(registerer)

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

	shopService, err := shops.NewService(dbClient, shops.NewRepository(dbClient.DB()), ledgerService, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create shop service", err)
		os.Exit(1)
	}

	outboxRepo := outbox.NewRepository(dbClient.DB())
	dlqRepo := outbox.NewDLQRepository(dbClient.DB())
	settler, err := repairs.NewCreditSettler(repairs.SettlerParams{
		DB:       dbClient,
		Outbox:   outboxRepo,
		DLQ:      dlqRepo,
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

	repairService, err := repairs.NewService(repairs.ServiceParams{
		DB:      dbClient,
		Repairs: repairs.NewRepository(dbClient.DB()),
		Emitter: outbox.NewService(outboxRepo, logg),
		Events:  outboxRepo,
		Settler: settler,
		Logger:  logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create repair service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			cachePinger,
			promhttp.HandlerFor(registerer, promhttp.HandlerOpts{}),
			shopService,
			ledgerService,
			repairService,
			dlqRepo,
		),
		ReadHeaderTimeout: 5 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-sigCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
		logg.Info(ctx, "api server shutting down gracefully")
	}
}

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/hisaab-erp/hisaab-erp/internal/app"
	"github.com/hisaab-erp/hisaab-erp/internal/balance"
	"github.com/hisaab-erp/hisaab-erp/internal/inventory"
	"github.com/hisaab-erp/hisaab-erp/internal/ledger"
	"github.com/hisaab-erp/hisaab-erp/internal/observability"
	"github.com/hisaab-erp/hisaab-erp/internal/platform/cache"
	"github.com/hisaab-erp/hisaab-erp/internal/platform/db"
	"github.com/hisaab-erp/hisaab-erp/internal/returns"
	"github.com/hisaab-erp/hisaab-erp/internal/shared"
	"github.com/hisaab-erp/hisaab-erp/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr, 0)
	if err != nil {
		logger.Warn("redis unavailable, running without cache", slog.Any("error", err))
		redisClient = nil
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(pool)

	ledgerService := ledger.NewService(ledger.NewRepository(pool), auditLogger, metrics)
	inventoryService := inventory.NewService(inventory.NewRepository(pool), auditLogger, metrics, logger)
	balanceCache := balance.NewCache(redisClient, cfg.BalanceCacheTTL)
	balanceService := balance.NewService(balance.NewRepository(pool), balanceCache, logger)
	returnsService := returns.NewService(returns.NewRepository(pool), ledgerService, inventoryService, auditLogger, logger)

	reconciler := jobs.NewReconciler(jobs.NewDirectory(pool), balanceService, returnsService, metrics, logger)

	statsTask, err := jobs.NewPartnerStatsTask(jobs.ReconcilePayload{})
	if err != nil {
		logger.Error("build partner stats task", slog.Any("error", err))
		os.Exit(1)
	}
	driftTask, err := jobs.NewDriftScanTask(jobs.ReconcilePayload{})
	if err != nil {
		logger.Error("build drift scan task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:  asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:     logger,
		Reconciler: reconciler,
		Cron: []jobs.CronRegistration{
			{Spec: "0 1 * * *", Task: statsTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "30 1 * * *", Task: driftTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}

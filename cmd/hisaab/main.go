package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/hisaab-erp/hisaab-erp/internal/app"
	"github.com/hisaab-erp/hisaab-erp/internal/balance"
	"github.com/hisaab-erp/hisaab-erp/internal/inventory"
	"github.com/hisaab-erp/hisaab-erp/internal/ledger"
	"github.com/hisaab-erp/hisaab-erp/internal/observability"
	"github.com/hisaab-erp/hisaab-erp/internal/orders"
	"github.com/hisaab-erp/hisaab-erp/internal/platform/cache"
	"github.com/hisaab-erp/hisaab-erp/internal/platform/db"
	"github.com/hisaab-erp/hisaab-erp/internal/purchasing"
	"github.com/hisaab-erp/hisaab-erp/internal/returns"
	"github.com/hisaab-erp/hisaab-erp/internal/shared"
	"github.com/hisaab-erp/hisaab-erp/internal/shipping"
	"github.com/hisaab-erp/hisaab-erp/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr, 0)
	if err != nil {
		// Ledger caching degrades to direct reads without Redis.
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
	idemStore := shared.NewIdempotencyStore(pool)

	ledgerService := ledger.NewService(ledger.NewRepository(pool), auditLogger, metrics)
	inventoryService := inventory.NewService(inventory.NewRepository(pool), auditLogger, metrics, logger)

	balanceCache := balance.NewCache(redisClient, cfg.BalanceCacheTTL)
	balanceService := balance.NewService(balance.NewRepository(pool), balanceCache, logger)

	returnsService := returns.NewService(returns.NewRepository(pool), ledgerService, inventoryService, auditLogger, logger)
	purchasingService := purchasing.NewService(purchasing.NewRepository(pool), ledgerService, inventoryService, balanceService, logger)

	calculator := shipping.NewCalculator(logger)
	ordersService := orders.NewService(orders.NewRepository(pool), calculator, ledgerService, inventoryService, balanceService, logger)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		LedgerHandler:     ledger.NewHandler(logger, ledgerService),
		InventoryHandler:  inventory.NewHandler(logger, inventoryService),
		BalanceHandler:    balance.NewHandler(logger, balanceService),
		ReturnsHandler:    returns.NewHandler(logger, returnsService),
		PurchasingHandler: purchasing.NewHandler(logger, purchasingService, idemStore),
		OrdersHandler:     orders.NewHandler(logger, ordersService, idemStore),
		JobsHandler:       jobsHandler,
		Metrics:           metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}

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
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/almacen-erp/almacen-erp/internal/adjustments"
	"github.com/almacen-erp/almacen-erp/internal/app"
	"github.com/almacen-erp/almacen-erp/internal/audit"
	"github.com/almacen-erp/almacen-erp/internal/auth"
	"github.com/almacen-erp/almacen-erp/internal/catalog"
	"github.com/almacen-erp/almacen-erp/internal/counts"
	"github.com/almacen-erp/almacen-erp/internal/entries"
	"github.com/almacen-erp/almacen-erp/internal/fuel"
	"github.com/almacen-erp/almacen-erp/internal/inventory"
	"github.com/almacen-erp/almacen-erp/internal/loans"
	"github.com/almacen-erp/almacen-erp/internal/observability"
	"github.com/almacen-erp/almacen-erp/internal/platform/cache"
	"github.com/almacen-erp/almacen-erp/internal/platform/db"
	"github.com/almacen-erp/almacen-erp/internal/shared"
	"github.com/almacen-erp/almacen-erp/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Warn("asynq close", slog.Any("error", err))
		}
	}()
	auditRecorder := audit.NewRecorder(asynqClient, logger)

	jobsClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(jobsClient, logger)

	tokens := shared.NewTokenManager(redisClient, cfg.SessionSecret, cfg.SessionTTL)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	authService := auth.NewService(auth.NewRepository(pool), tokens)
	authHandler := auth.NewHandler(logger, authService)

	inventoryService := inventory.NewService(inventory.NewRepository(pool), auditRecorder)
	inventoryHandler := inventory.NewHandler(logger, inventoryService)

	adjustmentsService := adjustments.NewService(adjustments.NewRepository(pool), auditRecorder)
	adjustmentsHandler := adjustments.NewHandler(logger, adjustmentsService)

	loansService := loans.NewService(loans.NewRepository(pool), auditRecorder)
	loansHandler := loans.NewHandler(logger, loansService)

	countsService := counts.NewService(counts.NewRepository(pool), auditRecorder)
	countsHandler := counts.NewHandler(logger, countsService)

	entriesService := entries.NewService(entries.NewRepository(pool), idempotencyStore, auditRecorder)
	entriesHandler := entries.NewHandler(logger, entriesService)

	fuelService := fuel.NewService(fuel.NewRepository(pool), auditRecorder)
	fuelHandler := fuel.NewHandler(logger, fuelService)

	catalogHandler := catalog.NewHandler(catalog.NewRepository(pool))

	auditHandler := audit.NewHandler(audit.NewService(audit.NewRepository(pool)))

	metrics := observability.NewMetrics()
	metrics.Registerer().MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	inventory.SetMovementObserver(metrics)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		AuthService:        authService,
		AuthHandler:        authHandler,
		InventoryHandler:   inventoryHandler,
		AdjustmentsHandler: adjustmentsHandler,
		LoansHandler:       loansHandler,
		CountsHandler:      countsHandler,
		EntriesHandler:     entriesHandler,
		FuelHandler:        fuelHandler,
		CatalogHandler:     catalogHandler,
		AuditHandler:       auditHandler,
		JobsHandler:        jobsHandler,
		Pool:               pool,
		Metrics:            metrics,
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

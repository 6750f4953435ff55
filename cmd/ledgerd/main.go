package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/mandir-erp/mandir-ledger/internal/accounting/approvals"
	"github.com/mandir-erp/mandir-ledger/internal/accounting/journals"
	"github.com/mandir-erp/mandir-ledger/internal/accounting/ledgers"
	"github.com/mandir-erp/mandir-ledger/internal/accounting/periods"
	"github.com/mandir-erp/mandir-ledger/internal/accounting/reports"
	"github.com/mandir-erp/mandir-ledger/internal/accounting/valuation"
	"github.com/mandir-erp/mandir-ledger/internal/ap"
	"github.com/mandir-erp/mandir-ledger/internal/app"
	"github.com/mandir-erp/mandir-ledger/internal/integration"
	"github.com/mandir-erp/mandir-ledger/internal/observability"
	"github.com/mandir-erp/mandir-ledger/internal/platform/cache"
	"github.com/mandir-erp/mandir-ledger/internal/platform/db"
	"github.com/mandir-erp/mandir-ledger/jobs"
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

	pool, err := db.New(ctx, db.PoolConfig{DSN: cfg.PGDSN, ApplicationName: "ledgerd"})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
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

	metrics := observability.NewMetrics()
	svc, err := app.NewServices(ctx, cfg, pool, redisClient, logger, metrics)
	if err != nil {
		logger.Error("init services", slog.Any("error", err))
		os.Exit(1)
	}

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		Sessions:         svc.Sessions,
		Idempotency:      svc.Idempotency,
		Metrics:          metrics,
		LedgerHandler:    ledgers.NewHandler(logger, svc.Ledgers),
		JournalHandler:   journals.NewHandler(logger, svc.Journals),
		ApprovalHandler:  approvals.NewHandler(logger, svc.Approvals),
		ReportHandler:    reports.NewHandler(logger, svc.Reports),
		MigrationHandler: integration.NewHandler(logger, svc.Migrator),
		PayablesHandler:  ap.NewHandler(logger, svc.Payables),
		PeriodHandler:    periods.NewHandler(logger, svc.Periods),
		ValuationHandler: valuation.NewHandler(logger, svc.Valuation),
		JobHandler:       jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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

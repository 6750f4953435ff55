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

	"github.com/mandir-erp/mandir-ledger/internal/app"
	jobmetrics "github.com/mandir-erp/mandir-ledger/internal/jobs"
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

	pool, err := db.New(ctx, db.PoolConfig{DSN: cfg.PGDSN, ApplicationName: "ledger-worker"})
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
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())

	svc, err := app.NewServices(ctx, cfg, pool, redisClient, logger, metrics)
	if err != nil {
		logger.Error("init services", slog.Any("error", err))
		os.Exit(1)
	}

	retryJob := jobs.NewMigrationRetryJob(svc.Migrator, logger, jobMetrics)
	recordJob := jobs.NewMigrateRecordJob(svc.Migrator, logger, jobMetrics)
	integrityJob := jobs.NewGLIntegrityJob(jobs.NewPGIntegrityScanner(pool), logger, jobMetrics)
	cleanupJob := jobs.NewIdempotencyCleanupJob(svc.Idempotency, cfg.IdempotencyTTL, logger, jobMetrics)

	retryTask, err := jobs.NewMigrationRetryTask(jobs.MigrationRetryPayload{})
	if err != nil {
		logger.Error("build retry task", slog.Any("error", err))
		os.Exit(1)
	}
	cleanupTask, err := jobs.NewIdempotencyCleanupTask(jobs.IdempotencyCleanupPayload{})
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.MigrationWorkers,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskMigrationRetry, Handler: retryJob.Handle},
			{Type: jobs.TaskMigrateRecord, Handler: recordJob.Handle},
			{Type: jobs.TaskGLIntegrity, Handler: integrityJob.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.MigrationRetryCron, Task: retryTask, Options: []asynq.Option{asynq.MaxRetry(3), asynq.Unique(10 * time.Minute)}},
			{Spec: cfg.GLIntegrityCron, Task: jobs.NewGLIntegrityTask(), Options: []asynq.Option{asynq.MaxRetry(1)}},
			{Spec: cfg.IdempotencyCleanupCron, Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	metricsServer := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: metrics.Handler(), ReadTimeout: 5 * time.Second}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("starting worker", slog.Int("concurrency", cfg.MigrationWorkers))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}

package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/mandir-erp/mandir-ledger/internal/accounting/shared"
	"github.com/mandir-erp/mandir-ledger/internal/integration"
	jobmetrics "github.com/mandir-erp/mandir-ledger/internal/jobs"
)

// MigrationRunner is the migrator surface the jobs drive.
type MigrationRunner interface {
	RetryAll(ctx context.Context, filter integration.RetryFilter) ([]integration.MigrationResult, error)
	Migrate(ctx context.Context, module string, id int64) (integration.MigrationResult, error)
}

// MigrationRetryJob sweeps every module's unmigrated records.
type MigrationRetryJob struct {
	Runner  MigrationRunner
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewMigrationRetryJob initialises the backlog sweep handler.
func NewMigrationRetryJob(runner MigrationRunner, logger *slog.Logger, metrics *jobmetrics.Metrics) *MigrationRetryJob {
	return &MigrationRetryJob{Runner: runner, Logger: logger, Metrics: metrics}
}

// Handle executes one sweep. Per-record failures are counted, not returned, so
// asynq does not retry a sweep that already made progress.
func (j *MigrationRetryJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Runner == nil {
		return errors.New("migration retry: handler not configured")
	}
	var payload MigrationRetryPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("migration retry payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	filter, err := payload.filter()
	if err != nil {
		return fmt.Errorf("migration retry payload: %v: %w", err, asynq.SkipRetry)
	}

	metrics := metricsOrDefault(j.Metrics)
	tracker := metrics.Track(TaskMigrationRetry)
	defer func() { err = tracker.End(err) }()

	logger := loggerFor(j.Logger, TaskMigrationRetry)
	start := time.Now()
	results, err := j.Runner.RetryAll(ctx, filter)
	migrated, skipped, failed := integration.Summarize(results)
	metrics.AddProcessed(TaskMigrationRetry, "migrated", migrated)
	metrics.AddProcessed(TaskMigrationRetry, "skipped", skipped)
	metrics.AddProcessed(TaskMigrationRetry, "failed", failed)
	if err != nil {
		logger.Error("migration sweep incomplete", slog.Any("error", err))
		return err
	}
	logger.Info("completed migration sweep",
		slog.Int("migrated", migrated),
		slog.Int("skipped", skipped),
		slog.Int("failed", failed),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (p MigrationRetryPayload) filter() (integration.RetryFilter, error) {
	f := integration.RetryFilter{Limit: p.Limit}
	var err error
	if p.From != "" {
		if f.From, err = time.Parse(time.DateOnly, p.From); err != nil {
			return f, err
		}
	}
	if p.To != "" {
		if f.To, err = time.Parse(time.DateOnly, p.To); err != nil {
			return f, err
		}
	}
	return f, nil
}

// MigrateRecordJob migrates one record queued by an upstream module.
type MigrateRecordJob struct {
	Runner  MigrationRunner
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

func NewMigrateRecordJob(runner MigrationRunner, logger *slog.Logger, metrics *jobmetrics.Metrics) *MigrateRecordJob {
	return &MigrateRecordJob{Runner: runner, Logger: logger, Metrics: metrics}
}

// Handle migrates the record. Failures that a retry cannot fix skip retry; the
// periodic sweep picks the record up once its data is corrected.
func (j *MigrateRecordJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Runner == nil {
		return errors.New("migrate record: handler not configured")
	}
	var payload MigrateRecordPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.SourceID <= 0 {
		return fmt.Errorf("migrate record payload: %w", asynq.SkipRetry)
	}

	metrics := metricsOrDefault(j.Metrics)
	tracker := metrics.Track(TaskMigrateRecord)
	defer func() { err = tracker.End(err) }()

	res, err := j.Runner.Migrate(ctx, payload.Module, payload.SourceID)
	switch {
	case err == nil:
		metrics.AddProcessed(TaskMigrateRecord, "migrated", 1)
		return nil
	case shared.KindOf(err) == shared.KindAlreadyMigrated:
		metrics.AddProcessed(TaskMigrateRecord, "skipped", 1)
		return nil
	case res.Retryable:
		metrics.AddProcessed(TaskMigrateRecord, "failed", 1)
		return err
	default:
		metrics.AddProcessed(TaskMigrateRecord, "failed", 1)
		loggerFor(j.Logger, TaskMigrateRecord).Warn("record left for the sweep",
			slog.String("module", payload.Module),
			slog.Int64("source_id", payload.SourceID),
			slog.String("kind", res.Error),
		)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
}

func loggerFor(logger *slog.Logger, job string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(slog.String("job", job))
}

func metricsOrDefault(m *jobmetrics.Metrics) *jobmetrics.Metrics {
	if m != nil {
		return m
	}
	return defaultJobMetrics
}

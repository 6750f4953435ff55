package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/mandir-erp/mandir-ledger/internal/jobs"
)

// KeyPurger deletes idempotency keys older than a window.
type KeyPurger interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// IdempotencyCleanupJob purges expired request keys.
type IdempotencyCleanupJob struct {
	Store   KeyPurger
	TTL     time.Duration
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

func NewIdempotencyCleanupJob(store KeyPurger, ttl time.Duration, logger *slog.Logger, metrics *jobmetrics.Metrics) *IdempotencyCleanupJob {
	return &IdempotencyCleanupJob{Store: store, TTL: ttl, Logger: logger, Metrics: metrics}
}

func (j *IdempotencyCleanupJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Store == nil {
		return errors.New("idempotency cleanup: handler not configured")
	}
	var payload IdempotencyCleanupPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("idempotency cleanup payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	ttl := j.TTL
	if payload.OlderThan > 0 {
		ttl = payload.OlderThan
	}
	if ttl <= 0 {
		return fmt.Errorf("idempotency cleanup: retention not set: %w", asynq.SkipRetry)
	}

	metrics := metricsOrDefault(j.Metrics)
	tracker := metrics.Track(TaskIdempotencyCleanup)
	defer func() { err = tracker.End(err) }()

	removed, err := j.Store.Cleanup(ctx, ttl)
	if err != nil {
		return err
	}
	metrics.AddProcessed(TaskIdempotencyCleanup, "removed", int(removed))
	loggerFor(j.Logger, TaskIdempotencyCleanup).Info("purged idempotency keys",
		slog.Int64("removed", removed),
		slog.Duration("older_than", ttl),
	)
	return nil
}

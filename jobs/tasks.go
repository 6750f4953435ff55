package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/mandir-erp/mandir-ledger/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	TaskMigrationRetry     = "ledger:migration-retry"
	TaskMigrateRecord      = "ledger:migrate"
	TaskGLIntegrity        = "ledger:gl-integrity"
	TaskIdempotencyCleanup = "ledger:idempotency-cleanup"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// MigrationRetryPayload bounds a backlog sweep. Zero values mean everything.
type MigrationRetryPayload struct {
	From  string `json:"from,omitempty"`
	To    string `json:"to,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

// MigrateRecordPayload names one source record.
type MigrateRecordPayload struct {
	Module   string `json:"module"`
	SourceID int64  `json:"source_id"`
}

// IdempotencyCleanupPayload overrides the retention window.
type IdempotencyCleanupPayload struct {
	OlderThan time.Duration `json:"older_than,omitempty"`
}

// NewMigrationRetryTask constructs the backlog sweep task.
func NewMigrationRetryTask(payload MigrationRetryPayload) (*asynq.Task, error) {
	return newTask(TaskMigrationRetry, payload)
}

// NewMigrateRecordTask constructs a single-record migration.
func NewMigrateRecordTask(payload MigrateRecordPayload) (*asynq.Task, error) {
	return newTask(TaskMigrateRecord, payload)
}

// NewGLIntegrityTask constructs the integrity scan task.
func NewGLIntegrityTask() *asynq.Task {
	return asynq.NewTask(TaskGLIntegrity, nil)
}

// NewIdempotencyCleanupTask constructs the key purge task.
func NewIdempotencyCleanupTask(payload IdempotencyCleanupPayload) (*asynq.Task, error) {
	return newTask(TaskIdempotencyCleanup, payload)
}

func newTask(typ string, payload any) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(typ, data), nil
}

// Package cli implements the ledgerctl operator commands.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/hibiken/asynq"

	"github.com/mandir-erp/mandir-ledger/internal/accounting/periods"
	"github.com/mandir-erp/mandir-ledger/internal/integration"
	"github.com/mandir-erp/mandir-ledger/internal/shared"
	"github.com/mandir-erp/mandir-ledger/jobs"
)

// Migrations runs ledger migrations inline.
type Migrations interface {
	Migrate(ctx context.Context, module string, id int64) (integration.MigrationResult, error)
	RetryAll(ctx context.Context, filter integration.RetryFilter) ([]integration.MigrationResult, error)
}

// Years manages accounting years.
type Years interface {
	List(ctx context.Context) ([]periods.AcYear, error)
	Open(ctx context.Context, from, to periods.YearMonth) (periods.AcYear, error)
	Close(ctx context.Context, id int64, actor shared.Actor) (periods.AcYear, error)
}

// Sessions issues API tokens.
type Sessions interface {
	Issue(ctx context.Context, actor shared.Actor) (shared.Session, error)
}

// Queue submits and inspects background jobs.
type Queue interface {
	Trigger(ctx context.Context, name string) (*asynq.TaskInfo, error)
	EnqueueRetry(ctx context.Context, payload jobs.MigrationRetryPayload) (*asynq.TaskInfo, error)
	EnqueueRecord(ctx context.Context, module string, id int64) (*asynq.TaskInfo, error)
	InspectQueue(ctx context.Context) (QueueStats, error)
}

// Backend opens what a command needs. Commands only touch the parts they use, so
// queue commands never connect to Postgres.
type Backend interface {
	Migrations(ctx context.Context) (Migrations, error)
	Years(ctx context.Context) (Years, error)
	Sessions(ctx context.Context) (Sessions, error)
	Queue(ctx context.Context) (Queue, error)
}

// Runtime is bound into every command's Run method.
type Runtime struct {
	Ctx     context.Context
	Out     io.Writer
	Backend Backend
}

// Globals are flags shared by every command.
type Globals struct {
	JSON bool `help:"Print results as JSON." short:"j"`
}

// CLI is the ledgerctl command tree.
type CLI struct {
	Globals

	Migrate MigrateCmd `cmd:"" help:"Migrate one source record now."`
	Retry   RetryCmd   `cmd:"" help:"Migrate every pending record."`
	Year    YearCmd    `cmd:"" help:"Manage accounting years."`
	Session SessionCmd `cmd:"" help:"Issue API sessions."`
	Jobs    JobsCmd    `cmd:"" help:"Trigger and inspect background jobs."`
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printf(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}

package cli

import (
	"fmt"
	"time"

	"github.com/mandir-erp/mandir-ledger/internal/accounting/periods"
	"github.com/mandir-erp/mandir-ledger/internal/integration"
	"github.com/mandir-erp/mandir-ledger/internal/shared"
	"github.com/mandir-erp/mandir-ledger/jobs"
)

type MigrateCmd struct {
	Module string `arg:"" enum:"donation,purchase_invoice,purchase_payment" help:"Source module."`
	ID     int64  `arg:"" help:"Source record id."`
	Queue  bool   `help:"Queue the record for the worker instead of migrating inline."`
}

func (cmd *MigrateCmd) Run(rt *Runtime, g *Globals) error {
	if cmd.Queue {
		q, err := rt.Backend.Queue(rt.Ctx)
		if err != nil {
			return err
		}
		info, err := q.EnqueueRecord(rt.Ctx, cmd.Module, cmd.ID)
		if err != nil {
			return err
		}
		printf(rt.Out, "queued %s (%s)\n", info.ID, info.Type)
		return nil
	}
	m, err := rt.Backend.Migrations(rt.Ctx)
	if err != nil {
		return err
	}
	res, err := m.Migrate(rt.Ctx, cmd.Module, cmd.ID)
	if g.JSON {
		if perr := printJSON(rt.Out, res); perr != nil {
			return perr
		}
		return err
	}
	if err != nil {
		return err
	}
	printf(rt.Out, "%s %d posted as %s\n", res.Module, res.SourceID, res.Number)
	return nil
}

type RetryCmd struct {
	From  string `help:"Earliest record date (YYYY-MM-DD)."`
	To    string `help:"Latest record date (YYYY-MM-DD)."`
	Limit int    `help:"Maximum records per module." default:"0"`
	Queue bool   `help:"Queue the sweep for the worker instead of running inline."`
}

func (cmd *RetryCmd) Run(rt *Runtime, g *Globals) error {
	if cmd.Queue {
		q, err := rt.Backend.Queue(rt.Ctx)
		if err != nil {
			return err
		}
		info, err := q.EnqueueRetry(rt.Ctx, jobs.MigrationRetryPayload{From: cmd.From, To: cmd.To, Limit: cmd.Limit})
		if err != nil {
			return err
		}
		printf(rt.Out, "queued %s (%s)\n", info.ID, info.Type)
		return nil
	}
	filter := integration.RetryFilter{Limit: cmd.Limit}
	var err error
	if cmd.From != "" {
		if filter.From, err = time.Parse(time.DateOnly, cmd.From); err != nil {
			return fmt.Errorf("--from: %w", err)
		}
	}
	if cmd.To != "" {
		if filter.To, err = time.Parse(time.DateOnly, cmd.To); err != nil {
			return fmt.Errorf("--to: %w", err)
		}
	}
	m, err := rt.Backend.Migrations(rt.Ctx)
	if err != nil {
		return err
	}
	results, err := m.RetryAll(rt.Ctx, filter)
	migrated, skipped, failed := integration.Summarize(results)
	if g.JSON {
		if perr := printJSON(rt.Out, results); perr != nil {
			return perr
		}
	} else {
		for _, r := range results {
			if !r.Success && r.Error != "" {
				printf(rt.Out, "%s %d: %s %s\n", r.Module, r.SourceID, r.Error, r.Message)
			}
		}
		printf(rt.Out, "migrated=%d skipped=%d failed=%d\n", migrated, skipped, failed)
	}
	return err
}

type YearCmd struct {
	List  YearListCmd  `cmd:"" help:"List accounting years."`
	Open  YearOpenCmd  `cmd:"" help:"Open a new active year."`
	Close YearCloseCmd `cmd:"" help:"Close a year and lock its entries."`
}

type YearListCmd struct{}

func (cmd *YearListCmd) Run(rt *Runtime, g *Globals) error {
	y, err := rt.Backend.Years(rt.Ctx)
	if err != nil {
		return err
	}
	list, err := y.List(rt.Ctx)
	if err != nil {
		return err
	}
	if g.JSON {
		return printJSON(rt.Out, list)
	}
	for _, year := range list {
		state := "open"
		if year.HasClosed {
			state = "closed"
		}
		printf(rt.Out, "%d\t%s..%s\t%s\n", year.ID, year.FromYearMonth, year.ToYearMonth, state)
	}
	return nil
}

type YearOpenCmd struct {
	From int `arg:"" help:"First month as YYYYMM."`
	To   int `arg:"" help:"Last month as YYYYMM."`
}

func (cmd *YearOpenCmd) Run(rt *Runtime, g *Globals) error {
	y, err := rt.Backend.Years(rt.Ctx)
	if err != nil {
		return err
	}
	year, err := y.Open(rt.Ctx, periods.YearMonth(cmd.From), periods.YearMonth(cmd.To))
	if err != nil {
		return err
	}
	if g.JSON {
		return printJSON(rt.Out, year)
	}
	printf(rt.Out, "opened year %d (%s..%s)\n", year.ID, year.FromYearMonth, year.ToYearMonth)
	return nil
}

type YearCloseCmd struct {
	ID    int64 `arg:"" help:"Year id."`
	Actor int64 `help:"Actor id recorded on the audit trail." required:""`
}

func (cmd *YearCloseCmd) Run(rt *Runtime, g *Globals) error {
	y, err := rt.Backend.Years(rt.Ctx)
	if err != nil {
		return err
	}
	year, err := y.Close(rt.Ctx, cmd.ID, shared.Actor{ID: cmd.Actor, Role: shared.RoleAdmin})
	if err != nil {
		return err
	}
	if g.JSON {
		return printJSON(rt.Out, year)
	}
	printf(rt.Out, "closed year %d (%s..%s)\n", year.ID, year.FromYearMonth, year.ToYearMonth)
	return nil
}

type SessionCmd struct {
	Issue SessionIssueCmd `cmd:"" help:"Issue a bearer token for an actor."`
}

type SessionIssueCmd struct {
	Actor int64  `help:"Actor id." required:""`
	Role  string `help:"Actor role." enum:"admin,superadmin,accountant,operator" default:"operator"`
}

func (cmd *SessionIssueCmd) Run(rt *Runtime, g *Globals) error {
	if cmd.Actor <= 0 {
		return fmt.Errorf("--actor must be positive")
	}
	s, err := rt.Backend.Sessions(rt.Ctx)
	if err != nil {
		return err
	}
	sess, err := s.Issue(rt.Ctx, shared.Actor{ID: cmd.Actor, Role: cmd.Role})
	if err != nil {
		return err
	}
	if g.JSON {
		return printJSON(rt.Out, map[string]any{"token": sess.ID, "actor_id": sess.ActorID, "role": sess.Role})
	}
	printf(rt.Out, "%s\n", sess.ID)
	return nil
}

type JobsCmd struct {
	Trigger JobsTriggerCmd `cmd:"" help:"Enqueue a periodic job now."`
	Stats   JobsStatsCmd   `cmd:"" help:"Show queue statistics."`
}

type JobsTriggerCmd struct {
	Name string `arg:"" enum:"ledger:migration-retry,ledger:gl-integrity,ledger:idempotency-cleanup" help:"Task type."`
}

func (cmd *JobsTriggerCmd) Run(rt *Runtime) error {
	q, err := rt.Backend.Queue(rt.Ctx)
	if err != nil {
		return err
	}
	info, err := q.Trigger(rt.Ctx, cmd.Name)
	if err != nil {
		return err
	}
	printf(rt.Out, "queued %s (%s)\n", info.ID, info.Type)
	return nil
}

type JobsStatsCmd struct{}

func (cmd *JobsStatsCmd) Run(rt *Runtime, g *Globals) error {
	q, err := rt.Backend.Queue(rt.Ctx)
	if err != nil {
		return err
	}
	stats, err := q.InspectQueue(rt.Ctx)
	if err != nil {
		return err
	}
	if g.JSON {
		return printJSON(rt.Out, stats)
	}
	printf(rt.Out, "queue=%s pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
		stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Archived)
	return nil
}

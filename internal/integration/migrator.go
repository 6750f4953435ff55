package integration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mandir-erp/mandir-ledger/internal/accounting/journals"
	"github.com/mandir-erp/mandir-ledger/internal/accounting/shared"
)

// DefaultWorkers bounds RetryAll when no worker count is configured.
const DefaultWorkers = 4

// MigrationResult is the outcome for one source record.
type MigrationResult struct {
	Module    string `json:"module"`
	SourceID  int64  `json:"source_id"`
	Success   bool   `json:"success"`
	EntryID   int64  `json:"entry_id,omitempty"`
	Number    string `json:"number,omitempty"`
	Error     string `json:"error,omitempty"`
	Message   string `json:"message,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// RetryFilter narrows RetryAll to a date window. Limit caps each module's scan.
type RetryFilter struct {
	From  time.Time
	To    time.Time
	Limit int
}

// MetricsPort counts migration outcomes.
type MetricsPort interface {
	MigrationFinished(module, outcome string)
}

// Migrator posts module records into the ledger exactly once.
type Migrator struct {
	uow     UnitOfWork
	pending PendingSource
	posting *journals.Service
	metrics MetricsPort
	logger  *slog.Logger
	workers int
}

func NewMigrator(uow UnitOfWork, pending PendingSource, posting *journals.Service, logger *slog.Logger) *Migrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Migrator{uow: uow, pending: pending, posting: posting, logger: logger, workers: DefaultWorkers}
}

// WithWorkers sets RetryAll concurrency.
func (m *Migrator) WithWorkers(n int) {
	if n > 0 {
		m.workers = n
	}
}

func (m *Migrator) WithMetrics(metrics MetricsPort) { m.metrics = metrics }

// Adapter migrates one module.
type Adapter struct {
	m    *Migrator
	hook hook
}

func (m *Migrator) Donations() *Adapter { return &Adapter{m: m, hook: donationHook{}} }

func (m *Migrator) PurchaseInvoices() *Adapter { return &Adapter{m: m, hook: invoiceHook{}} }

func (m *Migrator) PurchasePayments() *Adapter { return &Adapter{m: m, hook: paymentHook{}} }

// Adapters lists every module in retry order.
func (m *Migrator) Adapters() []*Adapter {
	return []*Adapter{m.Donations(), m.PurchaseInvoices(), m.PurchasePayments()}
}

// Adapter returns the adapter for a module name such as "donation".
func (m *Migrator) Adapter(module string) (*Adapter, error) {
	for _, a := range m.Adapters() {
		if a.Module() == module {
			return a, nil
		}
	}
	return nil, fmt.Errorf("%w: unknown migration module %q", shared.ErrValidation, module)
}

func (a *Adapter) Module() string { return a.hook.module().String() }

// Migrate posts the record in one transaction together with the chart changes it
// needs and the flag flip. On any failure nothing is written.
func (a *Adapter) Migrate(ctx context.Context, id int64) (MigrationResult, error) {
	res := MigrationResult{Module: a.Module(), SourceID: id}
	var entry journals.Entry
	err := a.m.uow.WithTx(ctx, func(ctx context.Context, tx TxScope) error {
		in, err := a.hook.build(ctx, tx, id)
		if err != nil {
			return err
		}
		entry, err = a.m.posting.PostTx(ctx, tx.Journals(), in)
		if err != nil {
			return err
		}
		return a.hook.mark(ctx, tx, id, entry.ID)
	})
	if err != nil {
		merr := wrapMigrationError(a.hook.module(), id, shared.Persistence("migrate "+res.Module, err))
		res.Error = string(shared.KindOf(merr))
		res.Message = merr.Err.Error()
		res.Retryable = merr.Retryable
		a.m.observe(res)
		return res, merr
	}
	a.m.posting.Committed(ctx, "post", entry, entry.CreatedBy)
	res.Success = true
	res.EntryID = entry.ID
	res.Number = entry.Number
	a.m.observe(res)
	return res, nil
}

// RetryAll migrates every pending record independently. Per-record failures land in
// the results; the error is only set when the backlog could not be read.
func (a *Adapter) RetryAll(ctx context.Context, filter RetryFilter) ([]MigrationResult, error) {
	ids, err := a.m.pending.PendingIDs(ctx, a.hook.module(), filter)
	if err != nil {
		return nil, shared.Persistence("list pending "+a.Module(), err)
	}
	results := make([]MigrationResult, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.m.workers)
	for i, id := range ids {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i] = MigrationResult{Module: a.Module(), SourceID: id, Error: string(shared.KindPersistence), Message: err.Error(), Retryable: true}
				return nil
			}
			results[i], _ = a.Migrate(gctx, id)
			return nil
		})
	}
	_ = g.Wait()
	return results, nil
}

// Migrate migrates one record of the named module.
func (m *Migrator) Migrate(ctx context.Context, module string, id int64) (MigrationResult, error) {
	a, err := m.Adapter(module)
	if err != nil {
		return MigrationResult{Module: module, SourceID: id, Error: string(shared.KindValidation), Message: err.Error()}, err
	}
	return a.Migrate(ctx, id)
}

// RetryAll runs every adapter in turn and concatenates the results.
func (m *Migrator) RetryAll(ctx context.Context, filter RetryFilter) ([]MigrationResult, error) {
	var all []MigrationResult
	var errs []error
	for _, a := range m.Adapters() {
		res, err := a.RetryAll(ctx, filter)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		all = append(all, res...)
	}
	return all, errors.Join(errs...)
}

// Summarize counts successes and failures, treating AlreadyMigrated as neither.
func Summarize(results []MigrationResult) (migrated, skipped, failed int) {
	for _, r := range results {
		switch {
		case r.Success:
			migrated++
		case r.Error == string(shared.KindAlreadyMigrated):
			skipped++
		default:
			failed++
		}
	}
	return migrated, skipped, failed
}

func (m *Migrator) observe(res MigrationResult) {
	outcome := "migrated"
	if !res.Success {
		outcome = res.Error
	}
	if m.metrics != nil {
		m.metrics.MigrationFinished(res.Module, outcome)
	}
	attrs := []any{slog.String("module", res.Module), slog.Int64("source_id", res.SourceID)}
	switch {
	case res.Success:
		m.logger.Info("ledger migration", append(attrs, slog.String("number", res.Number))...)
	case res.Error == string(shared.KindAlreadyMigrated):
		m.logger.Debug("ledger migration skipped", attrs...)
	default:
		m.logger.Warn("ledger migration failed", append(attrs, slog.String("kind", res.Error), slog.String("error", res.Message))...)
	}
}

package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/mandir-erp/mandir-ledger/internal/accounting/shared"
	jobmetrics "github.com/mandir-erp/mandir-ledger/internal/jobs"
	"github.com/mandir-erp/mandir-ledger/internal/platform/db"
)

// Integrity finding kinds.
const (
	FindingUnbalanced     = "unbalanced"
	FindingTotalsMismatch = "totals_mismatch"
)

// IntegrityFinding is one entry whose stored totals disagree with its items.
type IntegrityFinding struct {
	EntryID    int64
	Number     string
	Kind       string
	DrTotal    decimal.Decimal
	CrTotal    decimal.Decimal
	ItemDebit  decimal.Decimal
	ItemCredit decimal.Decimal
}

// IntegrityScanner returns entries that break the double-entry invariants.
type IntegrityScanner interface {
	Scan(ctx context.Context) ([]IntegrityFinding, error)
}

// PGIntegrityScanner checks entries against their items in Postgres.
type PGIntegrityScanner struct {
	q db.Querier
}

func NewPGIntegrityScanner(q db.Querier) *PGIntegrityScanner {
	return &PGIntegrityScanner{q: q}
}

const integritySQL = `
SELECT e.id, e.number, e.dr_total, e.cr_total,
       COALESCE(SUM(i.amount) FILTER (WHERE i.dc = 'D'), 0) AS item_dr,
       COALESCE(SUM(i.amount) FILTER (WHERE i.dc = 'C'), 0) AS item_cr
FROM entries e
LEFT JOIN entry_items i ON i.entry_id = e.id
GROUP BY e.id, e.number, e.dr_total, e.cr_total
HAVING e.dr_total <> e.cr_total
    OR e.dr_total <> COALESCE(SUM(i.amount) FILTER (WHERE i.dc = 'D'), 0)
    OR e.cr_total <> COALESCE(SUM(i.amount) FILTER (WHERE i.dc = 'C'), 0)
ORDER BY e.id`

func (s *PGIntegrityScanner) Scan(ctx context.Context) ([]IntegrityFinding, error) {
	rows, err := s.q.Query(ctx, integritySQL)
	if err != nil {
		return nil, err
	}
	list, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (IntegrityFinding, error) {
		var f IntegrityFinding
		err := row.Scan(&f.EntryID, &f.Number, &f.DrTotal, &f.CrTotal, &f.ItemDebit, &f.ItemCredit)
		return f, err
	})
	if err != nil {
		return nil, err
	}
	for i := range list {
		list[i].Kind = classify(list[i])
	}
	return list, nil
}

func classify(f IntegrityFinding) string {
	if !shared.Balanced(f.DrTotal, f.CrTotal) || !shared.Balanced(f.ItemDebit, f.ItemCredit) {
		return FindingUnbalanced
	}
	return FindingTotalsMismatch
}

// GLIntegrityJob scans posted entries and reports findings through logs and the
// anomalies counter. It never repairs data.
type GLIntegrityJob struct {
	Scanner IntegrityScanner
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

func NewGLIntegrityJob(scanner IntegrityScanner, logger *slog.Logger, metrics *jobmetrics.Metrics) *GLIntegrityJob {
	return &GLIntegrityJob{Scanner: scanner, Logger: logger, Metrics: metrics}
}

// Handle executes the scan.
func (j *GLIntegrityJob) Handle(ctx context.Context, _ *asynq.Task) (err error) {
	if j == nil || j.Scanner == nil {
		return errors.New("gl integrity: handler not configured")
	}
	metrics := metricsOrDefault(j.Metrics)
	tracker := metrics.Track(TaskGLIntegrity)
	defer func() { err = tracker.End(err) }()

	logger := loggerFor(j.Logger, TaskGLIntegrity)
	start := time.Now()
	findings, err := j.Scanner.Scan(ctx)
	if err != nil {
		logger.Error("integrity scan failed", slog.Any("error", err))
		return err
	}
	counts := map[string]int{}
	for _, f := range findings {
		counts[f.Kind]++
		logger.Warn("ledger integrity finding",
			slog.Int64("entry_id", f.EntryID),
			slog.String("number", f.Number),
			slog.String("kind", f.Kind),
			slog.String("dr_total", f.DrTotal.StringFixed(2)),
			slog.String("cr_total", f.CrTotal.StringFixed(2)),
			slog.String("item_debit", f.ItemDebit.StringFixed(2)),
			slog.String("item_credit", f.ItemCredit.StringFixed(2)),
		)
	}
	for kind, n := range counts {
		metrics.AddAnomalies(kind, n)
	}
	logger.Info("completed integrity scan",
		slog.Int("findings", len(findings)),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

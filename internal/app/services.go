package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/mandir-erp/mandir-ledger/internal/accounting/approvals"
	"github.com/mandir-erp/mandir-ledger/internal/accounting/journals"
	"github.com/mandir-erp/mandir-ledger/internal/accounting/ledgers"
	"github.com/mandir-erp/mandir-ledger/internal/accounting/mappings"
	"github.com/mandir-erp/mandir-ledger/internal/accounting/periods"
	"github.com/mandir-erp/mandir-ledger/internal/accounting/reports"
	"github.com/mandir-erp/mandir-ledger/internal/accounting/valuation"
	"github.com/mandir-erp/mandir-ledger/internal/ap"
	"github.com/mandir-erp/mandir-ledger/internal/donations"
	"github.com/mandir-erp/mandir-ledger/internal/integration"
	"github.com/mandir-erp/mandir-ledger/internal/observability"
	"github.com/mandir-erp/mandir-ledger/internal/shared"
)

// Services is the wired ledger core shared by the server, the worker and the CLI.
type Services struct {
	Ledgers     *ledgers.Service
	Journals    *journals.Service
	Approvals   *approvals.Service
	Periods     *periods.Service
	Valuation   *valuation.Service
	Reports     *reports.Service
	Payables    *ap.Service
	Migrator    *integration.Migrator
	Sessions    *shared.SessionManager
	Idempotency *shared.IdempotencyStore
}

// NewServices builds every service over one pool. metrics may be nil.
func NewServices(ctx context.Context, cfg *Config, pool *pgxpool.Pool, redisClient *redis.Client, logger *slog.Logger, metrics *observability.Metrics) (*Services, error) {
	fund, err := mappings.NewRepository(pool).DefaultFund(ctx)
	if err != nil {
		return nil, fmt.Errorf("load default fund: %w", err)
	}

	auditLogger := shared.NewAuditLogger(pool)
	stock := valuation.NewService(valuation.NewRepository(pool), valuation.NewCache(redisClient, cfg.ValuationCacheTTL), logger)

	posting := journals.NewService(journals.NewRepository(pool), auditLogger, logger)
	posting.WithDefaultFund(fund.ID)
	posting.WithStockInvalidator(stock)

	gate := approvals.NewService(approvals.NewRepository(pool), posting, cfg.ApprovalThreshold, shared.NewApprovalRecorder(pool), logger)

	purchases := ap.NewRepository(pool)
	migrator := integration.NewMigrator(
		integration.NewUnitOfWork(pool),
		integration.NewPendingSource(donations.NewRepository(pool), purchases),
		posting,
		logger,
	)
	migrator.WithWorkers(cfg.MigrationWorkers)

	if metrics != nil {
		posting.WithMetrics(metrics)
		gate.WithMetrics(metrics)
		migrator.WithMetrics(metrics)
	}

	return &Services{
		Ledgers:     ledgers.NewService(ledgers.NewRepository(pool)),
		Journals:    posting,
		Approvals:   gate,
		Periods:     periods.NewService(periods.NewRepository(pool), auditLogger, logger),
		Valuation:   stock,
		Reports:     reports.NewService(reports.NewRepository(pool), logger),
		Payables:    ap.NewService(purchases),
		Migrator:    migrator,
		Sessions:    shared.NewSessionManager(redisClient, cfg.SessionCookie, cfg.SessionTTL, cfg.IsProduction()),
		Idempotency: shared.NewIdempotencyStore(pool),
	}, nil
}

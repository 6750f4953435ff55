package integration

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mandir-erp/mandir-ledger/internal/accounting/journals"
	"github.com/mandir-erp/mandir-ledger/internal/accounting/ledgers"
	"github.com/mandir-erp/mandir-ledger/internal/accounting/mappings"
	"github.com/mandir-erp/mandir-ledger/internal/ap"
	"github.com/mandir-erp/mandir-ledger/internal/donations"
	"github.com/mandir-erp/mandir-ledger/internal/platform/db"
)

// TxScope is everything a migration touches, bound to one transaction.
type TxScope interface {
	Journals() journals.TxRepository
	Ledgers() ledgers.TxRepository
	Mappings() mappings.Repository
	Donations() donations.TxRepository
	Purchases() ap.TxRepository
}

// UnitOfWork runs fn in a transaction that commits only when fn returns nil.
type UnitOfWork interface {
	WithTx(ctx context.Context, fn func(context.Context, TxScope) error) error
}

// PendingSource lists unmigrated source records.
type PendingSource interface {
	PendingIDs(ctx context.Context, module journals.SourceModule, filter RetryFilter) ([]int64, error)
}

type pgUnitOfWork struct {
	pool *pgxpool.Pool
}

func NewUnitOfWork(pool *pgxpool.Pool) UnitOfWork {
	return &pgUnitOfWork{pool: pool}
}

type pgScope struct {
	tx pgx.Tx
}

func (s pgScope) Journals() journals.TxRepository { return journals.NewTxRepository(s.tx) }
func (s pgScope) Ledgers() ledgers.TxRepository { return ledgers.NewTxRepository(s.tx) }
func (s pgScope) Mappings() mappings.Repository { return mappings.NewRepository(s.tx) }
func (s pgScope) Donations() donations.TxRepository { return donations.NewTxRepository(s.tx) }
func (s pgScope) Purchases() ap.TxRepository { return ap.NewTxRepository(s.tx) }

func (u *pgUnitOfWork) WithTx(ctx context.Context, fn func(context.Context, TxScope) error) error {
	return db.WithTx(ctx, u.pool, func(tx pgx.Tx) error {
		return fn(ctx, pgScope{tx: tx})
	})
}

type pgPending struct {
	bookings  donations.Repository
	purchases ap.Repository
}

// NewPendingSource reads the retry backlog from the source tables.
func NewPendingSource(bookings donations.Repository, purchases ap.Repository) PendingSource {
	return &pgPending{bookings: bookings, purchases: purchases}
}

func (p *pgPending) PendingIDs(ctx context.Context, module journals.SourceModule, f RetryFilter) ([]int64, error) {
	switch module {
	case journals.SourceDonation:
		return p.bookings.PendingIDs(ctx, donations.PendingFilter{From: f.From, To: f.To, Limit: f.Limit})
	case journals.SourcePurchaseInvoice:
		return p.purchases.PendingInvoiceIDs(ctx, ap.PendingFilter{From: f.From, To: f.To, Limit: f.Limit})
	case journals.SourcePurchasePayment:
		return p.purchases.PendingPaymentIDs(ctx, ap.PendingFilter{From: f.From, To: f.To, Limit: f.Limit})
	default:
		return nil, nil
	}
}

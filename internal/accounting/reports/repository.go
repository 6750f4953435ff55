package reports

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/mandir-erp/mandir-ledger/internal/accounting/periods"
)

// Repository reads bookings, entries and items. It never writes.
type Repository interface {
	ActiveYear(ctx context.Context) (periods.AcYear, error)
	Transactions(ctx context.Context, q Query) ([]TransactionRow, error)
	InventoryCredits(ctx context.Context, q Query) ([]InventoryCredit, error)
	CashMovements(ctx context.Context, date time.Time, actorID int64) ([]CashMovement, error)
	LedgerOpening(ctx context.Context, ledgerID int64, before time.Time) (decimal.Decimal, error)
	LedgerLines(ctx context.Context, ledgerID int64, from, to time.Time) ([]StatementLine, error)
	Balances(ctx context.Context, from, to time.Time) ([]AccountBalance, error)
}

type repository struct {
	pool  *pgxpool.Pool
	years periods.Repository
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool, years: periods.NewRepository(pool)}
}

func (r *repository) ActiveYear(ctx context.Context) (periods.AcYear, error) {
	return r.years.ActiveYear(ctx)
}

const transactionsSQL = `SELECT b.id, b.number, b.date, dt.name, pm.name, COALESCE(occ.meta_value, ''),
	b.amount, b.discount, b.paid, COALESCE(e.number, ''), b.created_by, b.assigned_to
FROM bookings b
JOIN donation_types dt ON dt.id = b.donation_type_id
JOIN payment_modes pm ON pm.id = b.payment_mode_id
LEFT JOIN booking_meta occ ON occ.booking_id = b.id AND occ.meta_key = 'occasion'
LEFT JOIN entries e ON e.id = b.entry_id
WHERE b.status = 'CONFIRMED' AND b.date BETWEEN $1 AND $2
	AND ($3::bigint = 0 OR b.donation_type_id = $3)
	AND ($4::bigint = 0 OR b.payment_mode_id = $4)
	AND ($5::bigint = 0 OR b.created_by = $5 OR b.assigned_to = $5)
ORDER BY b.date, b.id`

func (r *repository) Transactions(ctx context.Context, q Query) ([]TransactionRow, error) {
	rows, err := r.pool.Query(ctx, transactionsSQL, q.From, q.To, q.DonationTypeID, q.PaymentModeID, q.ActorID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (TransactionRow, error) {
		var t TransactionRow
		err := row.Scan(&t.BookingID, &t.Number, &t.Date, &t.DonationType, &t.PaymentMode, &t.Occasion,
			&t.Amount, &t.Discount, &t.Paid, &t.EntryNumber, &t.CreatedBy, &t.AssignedTo)
		return t, err
	})
}

const inventoryCreditsSQL = `SELECT l.id, l.name, COALESCE(SUM(ei.quantity), 0), COALESCE(SUM(ei.amount), 0)
FROM entry_items ei
JOIN entries e ON e.id = ei.entry_id
JOIN ledgers l ON l.id = ei.ledger_id
WHERE l.iv AND ei.dc = 'C' AND e.date BETWEEN $1 AND $2
	AND ($3::bigint = 0 OR e.created_by = $3)
GROUP BY l.id, l.name
ORDER BY l.name`

func (r *repository) InventoryCredits(ctx context.Context, q Query) ([]InventoryCredit, error) {
	rows, err := r.pool.Query(ctx, inventoryCreditsSQL, q.From, q.To, q.ActorID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (InventoryCredit, error) {
		var c InventoryCredit
		err := row.Scan(&c.LedgerID, &c.Ledger, &c.Quantity, &c.Amount)
		return c, err
	})
}

const cashMovementsSQL = `SELECT l.id, l.left_code || '-' || l.right_code, l.name,
	COALESCE(SUM(CASE WHEN m.date < $1 THEN CASE WHEN m.dc = 'D' THEN m.amount ELSE -m.amount END END), 0),
	COALESCE(SUM(CASE WHEN m.date = $1 AND m.dc = 'D' THEN m.amount END), 0),
	COALESCE(SUM(CASE WHEN m.date = $1 AND m.dc = 'C' THEN m.amount END), 0)
FROM ledgers l
LEFT JOIN (
	SELECT ei.ledger_id, ei.dc, ei.amount, e.date
	FROM entry_items ei JOIN entries e ON e.id = ei.entry_id
	WHERE e.date <= $1 AND ($2::bigint = 0 OR e.created_by = $2)
) m ON m.ledger_id = l.id
WHERE l.type = 1
GROUP BY l.id, l.left_code, l.right_code, l.name
ORDER BY l.left_code, l.right_code`

func (r *repository) CashMovements(ctx context.Context, date time.Time, actorID int64) ([]CashMovement, error) {
	rows, err := r.pool.Query(ctx, cashMovementsSQL, date, actorID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (CashMovement, error) {
		var m CashMovement
		err := row.Scan(&m.LedgerID, &m.Code, &m.Name, &m.Before, &m.Debit, &m.Credit)
		return m, err
	})
}

func (r *repository) LedgerOpening(ctx context.Context, ledgerID int64, before time.Time) (decimal.Decimal, error) {
	var opening decimal.Decimal
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(CASE WHEN ei.dc = 'D' THEN ei.amount ELSE -ei.amount END), 0)
FROM entry_items ei JOIN entries e ON e.id = ei.entry_id
WHERE ei.ledger_id = $1 AND e.date < $2`, ledgerID, before).Scan(&opening)
	return opening, err
}

func (r *repository) LedgerLines(ctx context.Context, ledgerID int64, from, to time.Time) ([]StatementLine, error) {
	rows, err := r.pool.Query(ctx, `SELECT e.id, e.number, e.date, e.narration,
	CASE WHEN ei.dc = 'D' THEN ei.amount ELSE 0 END,
	CASE WHEN ei.dc = 'C' THEN ei.amount ELSE 0 END
FROM entry_items ei JOIN entries e ON e.id = ei.entry_id
WHERE ei.ledger_id = $1 AND e.date BETWEEN $2 AND $3
ORDER BY e.date, e.id, ei.id`, ledgerID, from, to)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (StatementLine, error) {
		var l StatementLine
		err := row.Scan(&l.EntryID, &l.Number, &l.Date, &l.Narration, &l.Debit, &l.Credit)
		return l, err
	})
}

const balancesSQL = `SELECT l.id, g.code, l.left_code || '-' || l.right_code, l.name,
	COALESCE(SUM(CASE WHEN m.dc = 'D' THEN m.amount END), 0),
	COALESCE(SUM(CASE WHEN m.dc = 'C' THEN m.amount END), 0)
FROM ledgers l
JOIN groups g ON g.id = l.group_id
LEFT JOIN (
	SELECT ei.ledger_id, ei.dc, ei.amount
	FROM entry_items ei JOIN entries e ON e.id = ei.entry_id
	WHERE e.date BETWEEN $1 AND $2
) m ON m.ledger_id = l.id
GROUP BY l.id, g.code, l.left_code, l.right_code, l.name
ORDER BY l.left_code, l.right_code`

func (r *repository) Balances(ctx context.Context, from, to time.Time) ([]AccountBalance, error) {
	rows, err := r.pool.Query(ctx, balancesSQL, from, to)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (AccountBalance, error) {
		var a AccountBalance
		err := row.Scan(&a.LedgerID, &a.GroupCode, &a.Code, &a.Name, &a.Debit, &a.Credit)
		return a, err
	})
}

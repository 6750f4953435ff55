package ap

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mandir-erp/mandir-ledger/internal/accounting/shared"
	"github.com/mandir-erp/mandir-ledger/internal/platform/db"
)

// Repository defines purchase data access outside migrations.
type Repository interface {
	GetInvoice(ctx context.Context, id int64) (Invoice, error)
	ListInvoices(ctx context.Context, filter ListFilter) ([]Invoice, error)
	GetPayment(ctx context.Context, id int64) (Payment, error)
	ListPayments(ctx context.Context, filter ListFilter) ([]Payment, error)
	PendingInvoiceIDs(ctx context.Context, filter PendingFilter) ([]int64, error)
	PendingPaymentIDs(ctx context.Context, filter PendingFilter) ([]int64, error)
}

// TxRepository is the purchase side of a migration transaction.
type TxRepository interface {
	LockInvoice(ctx context.Context, id int64) (Invoice, error)
	LockPayment(ctx context.Context, id int64) (Payment, error)
	MarkInvoiceMigrated(ctx context.Context, id, entryID int64) error
	MarkPaymentMigrated(ctx context.Context, id, entryID int64) error
}

var (
	_ Repository   = (*pgRepository)(nil)
	_ TxRepository = (*pgTxRepository)(nil)
)

type pgRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

type pgTxRepository struct {
	tx pgx.Tx
}

func NewTxRepository(tx pgx.Tx) TxRepository {
	return &pgTxRepository{tx: tx}
}

const invoiceColumns = `i.id, i.number, i.supplier_id, s.name, i.grn_id, i.date, i.subtotal, i.tax_amount, i.discount, i.total,
	i.status, i.created_by, i.account_migration, i.entry_id`

const paymentColumns = `p.id, p.number, p.supplier_id, s.name, p.invoice_id, p.amount, p.paid_at, p.payment_mode_id,
	COALESCE(p.cheque_no, ''), COALESCE(p.transaction_ref, ''), p.note, p.created_by, p.account_migration, p.entry_id`

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	var migrated int16
	err := row.Scan(&inv.ID, &inv.Number, &inv.SupplierID, &inv.SupplierName, &inv.GRNID, &inv.Date,
		&inv.Subtotal, &inv.TaxAmount, &inv.Discount, &inv.Total, &inv.Status, &inv.CreatedBy, &migrated, &inv.EntryID)
	inv.Migrated = migrated == 1
	return inv, err
}

func scanPayment(row pgx.Row) (Payment, error) {
	var p Payment
	var migrated int16
	err := row.Scan(&p.ID, &p.Number, &p.SupplierID, &p.SupplierName, &p.InvoiceID, &p.Amount, &p.PaidAt,
		&p.PaymentModeID, &p.ChequeNo, &p.TransactionRef, &p.Note, &p.CreatedBy, &migrated, &p.EntryID)
	p.Migrated = migrated == 1
	return p, err
}

func getInvoice(ctx context.Context, q db.Querier, id int64, lock bool) (Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM purchase_invoices i JOIN suppliers s ON s.id = i.supplier_id WHERE i.id=$1`
	if lock {
		query += ` FOR UPDATE OF i`
	}
	inv, err := scanInvoice(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invoice{}, fmt.Errorf("purchase invoice %d: %w", id, shared.ErrSourceNotFound)
		}
		return Invoice{}, err
	}
	rows, err := q.Query(ctx, `SELECT id, product_ledger_id, description, quantity, unit_price, amount
FROM purchase_invoice_lines WHERE invoice_id=$1 ORDER BY id`, id)
	if err != nil {
		return Invoice{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var l InvoiceLine
		if err := rows.Scan(&l.ID, &l.ProductLedgerID, &l.Description, &l.Quantity, &l.UnitPrice, &l.Amount); err != nil {
			return Invoice{}, err
		}
		inv.Lines = append(inv.Lines, l)
	}
	return inv, rows.Err()
}

func getPayment(ctx context.Context, q db.Querier, id int64, lock bool) (Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM purchase_payments p JOIN suppliers s ON s.id = p.supplier_id WHERE p.id=$1`
	if lock {
		query += ` FOR UPDATE OF p`
	}
	p, err := scanPayment(q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Payment{}, fmt.Errorf("purchase payment %d: %w", id, shared.ErrSourceNotFound)
	}
	return p, err
}

func (r *pgTxRepository) LockInvoice(ctx context.Context, id int64) (Invoice, error) {
	return getInvoice(ctx, r.tx, id, true)
}

func (r *pgTxRepository) LockPayment(ctx context.Context, id int64) (Payment, error) {
	return getPayment(ctx, r.tx, id, true)
}

func (r *pgTxRepository) MarkInvoiceMigrated(ctx context.Context, id, entryID int64) error {
	return r.mark(ctx, "purchase_invoices", id, entryID)
}

func (r *pgTxRepository) MarkPaymentMigrated(ctx context.Context, id, entryID int64) error {
	return r.mark(ctx, "purchase_payments", id, entryID)
}

func (r *pgTxRepository) mark(ctx context.Context, table string, id, entryID int64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE `+table+` SET account_migration=1, entry_id=$2, updated_at=NOW()
WHERE id=$1 AND account_migration=0`, id, entryID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s %d: %w", table, id, shared.ErrAlreadyMigrated)
	}
	return nil
}

func (r *pgRepository) GetInvoice(ctx context.Context, id int64) (Invoice, error) {
	return getInvoice(ctx, r.pool, id, false)
}

func (r *pgRepository) GetPayment(ctx context.Context, id int64) (Payment, error) {
	return getPayment(ctx, r.pool, id, false)
}

// where builds the shared listing predicate for alias.
func where(alias, dateCol string, f ListFilter) (string, []any) {
	clauses := []string{"1=1"}
	var args []any
	add := func(clause string, v any) {
		args = append(args, v)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if f.SupplierID > 0 {
		add(alias+".supplier_id = $%d", f.SupplierID)
	}
	if f.Migrated != nil {
		v := 0
		if *f.Migrated {
			v = 1
		}
		add(alias+".account_migration = $%d", v)
	}
	if !f.From.IsZero() {
		add(alias+"."+dateCol+" >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add(alias+"."+dateCol+" <= $%d", f.To)
	}
	return strings.Join(clauses, " AND "), args
}

func page(f ListFilter, args []any) (string, []any) {
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit, max(f.Offset, 0))
	return fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args)), args
}

func (r *pgRepository) ListInvoices(ctx context.Context, f ListFilter) ([]Invoice, error) {
	cond, args := where("i", "date", f)
	tail, args := page(f, args)
	rows, err := r.pool.Query(ctx, `SELECT `+invoiceColumns+` FROM purchase_invoices i JOIN suppliers s ON s.id = i.supplier_id
WHERE `+cond+` ORDER BY i.date DESC, i.id DESC`+tail, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (r *pgRepository) ListPayments(ctx context.Context, f ListFilter) ([]Payment, error) {
	cond, args := where("p", "paid_at", f)
	tail, args := page(f, args)
	rows, err := r.pool.Query(ctx, `SELECT `+paymentColumns+` FROM purchase_payments p JOIN suppliers s ON s.id = p.supplier_id
WHERE `+cond+` ORDER BY p.paid_at DESC, p.id DESC`+tail, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *pgRepository) PendingInvoiceIDs(ctx context.Context, f PendingFilter) ([]int64, error) {
	return r.pending(ctx, `SELECT id FROM purchase_invoices
WHERE account_migration=0 AND status IN ('POSTED','PAID')
  AND ($1::date IS NULL OR date >= $1) AND ($2::date IS NULL OR date <= $2)
ORDER BY date, id LIMIT $3`, f)
}

func (r *pgRepository) PendingPaymentIDs(ctx context.Context, f PendingFilter) ([]int64, error) {
	return r.pending(ctx, `SELECT id FROM purchase_payments
WHERE account_migration=0
  AND ($1::date IS NULL OR paid_at >= $1) AND ($2::date IS NULL OR paid_at <= $2)
ORDER BY paid_at, id LIMIT $3`, f)
}

func (r *pgRepository) pending(ctx context.Context, query string, f PendingFilter) ([]int64, error) {
	if f.Limit <= 0 {
		f.Limit = 500
	}
	var from, to *time.Time
	if !f.From.IsZero() {
		from = &f.From
	}
	if !f.To.IsZero() {
		to = &f.To
	}
	rows, err := r.pool.Query(ctx, query, from, to, f.Limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

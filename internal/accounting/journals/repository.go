package journals

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mandir-erp/mandir-ledger/internal/accounting/ledgers"
	"github.com/mandir-erp/mandir-ledger/internal/accounting/periods"
	"github.com/mandir-erp/mandir-ledger/internal/accounting/sequence"
	"github.com/mandir-erp/mandir-ledger/internal/accounting/shared"
	"github.com/mandir-erp/mandir-ledger/internal/accounting/valuation"
	"github.com/mandir-erp/mandir-ledger/internal/platform/db"
)

// Repository encapsulates DB operations for journals.
type Repository interface {
	Get(ctx context.Context, id int64) (Entry, error)
	List(ctx context.Context, filter ListFilter) ([]Entry, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes methods available within a transaction.
type TxRepository interface {
	sequence.Store

	// InsertEntry returns shared.ErrSequenceCollision when the number is already used.
	InsertEntry(ctx context.Context, e Entry) (Entry, error)
	InsertItems(ctx context.Context, entryID int64, items []Item) ([]Item, error)
	GetEntryForUpdate(ctx context.Context, id int64) (Entry, error)
	UpdateEntryHeader(ctx context.Context, e Entry) error
	DeleteItems(ctx context.Context, entryID int64) error
	DeleteEntry(ctx context.Context, entryID int64) error

	GetLedgers(ctx context.Context, ids []int64) (map[int64]ledgers.Ledger, error)
	LockLedgers(ctx context.Context, ids []int64) error
	StockPositions(ctx context.Context, ledgerIDs []int64, excludeEntryID int64) (map[int64]valuation.Position, error)
	ActiveYear(ctx context.Context) (periods.AcYear, error)

	// ReserveOpeningStock takes the (ledger, warehouse) advisory lock and records the
	// opening row, failing with shared.ErrOpeningStockExists when one is present.
	ReserveOpeningStock(ctx context.Context, ledgerID, warehouseID int64) (int64, error)
	LinkOpeningStock(ctx context.Context, id, entryID int64) error
}

type repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

const entryColumns = `e.id, e.entrytype_id, e.number, e.date, e.dr_total, e.cr_total, e.narration, COALESCE(e.fund_id, 0),
	COALESCE(e.cheque_no, ''), e.cheque_date, COALESCE(e.bank_name, ''), COALESCE(e.transaction_ref, ''), e.inv_type, e.inv_id, e.created_by, e.created_at, e.updated_at`

func scanEntry(row pgx.Row) (Entry, error) {
	var e Entry
	var invType *int16
	var invID *int64
	err := row.Scan(&e.ID, &e.Kind, &e.Number, &e.Date, &e.DrTotal, &e.CrTotal, &e.Narration, &e.FundID,
		&e.Payment.ChequeNo, &e.Payment.ChequeDate, &e.Payment.BankName, &e.Payment.TransactionRef,
		&invType, &invID, &e.CreatedBy, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return Entry{}, err
	}
	if invType != nil && invID != nil {
		e.Source = &SourceRef{Module: SourceModule(*invType), ID: *invID}
	}
	return e, nil
}

func loadItems(ctx context.Context, q db.Querier, entryID int64) ([]Item, error) {
	rows, err := q.Query(ctx, `SELECT id, entry_id, ledger_id, amount, dc, details, quantity, unit_price, is_discount
FROM entry_items WHERE entry_id=$1 ORDER BY id ASC`, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.EntryID, &it.LedgerID, &it.Amount, &it.Side, &it.Details, &it.Quantity, &it.UnitPrice, &it.IsDiscount); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Entry, error) {
	e, err := scanEntry(r.pool.QueryRow(ctx, `SELECT `+entryColumns+` FROM entries e WHERE e.id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, shared.ErrJournalNotFound
		}
		return Entry{}, err
	}
	e.Items, err = loadItems(ctx, r.pool, id)
	return e, err
}

func (r *repository) List(ctx context.Context, f ListFilter) ([]Entry, error) {
	var where []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.Kind != 0 {
		add("e.entrytype_id = $%d", int(f.Kind))
	}
	if !f.From.IsZero() {
		add("e.date >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("e.date <= $%d", f.To)
	}
	if f.LedgerID != 0 {
		add("EXISTS (SELECT 1 FROM entry_items i WHERE i.entry_id = e.id AND i.ledger_id = $%d)", f.LedgerID)
	}
	if f.CreatedBy != 0 {
		add("e.created_by = $%d", f.CreatedBy)
	}
	if f.SystemGenerated != nil {
		if *f.SystemGenerated {
			where = append(where, "e.inv_id IS NOT NULL")
		} else {
			where = append(where, "e.inv_id IS NULL")
		}
	}
	query := `SELECT ` + entryColumns + ` FROM entries e`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	args = append(args, limit, f.Offset)
	query += fmt.Sprintf(` ORDER BY e.date DESC, e.id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

type txRepository struct {
	tx  pgx.Tx
	seq *sequence.PGStore
}

// NewTxRepository binds the journal store to an open transaction so other
// packages can post inside their own unit of work.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx, seq: sequence.NewPGStore(tx)}
}

func (r *txRepository) NextValue(ctx context.Context, b sequence.Bucket) (int64, error) {
	return r.seq.NextValue(ctx, b)
}

func (r *txRepository) CodeTaken(ctx context.Context, code string) (bool, error) {
	return r.seq.CodeTaken(ctx, code)
}

func sourceArgs(src *SourceRef) (any, any) {
	if src == nil {
		return nil, nil
	}
	return int16(src.Module), src.ID
}

func (r *txRepository) InsertEntry(ctx context.Context, e Entry) (Entry, error) {
	sp, err := r.tx.Begin(ctx)
	if err != nil {
		return Entry{}, err
	}
	invType, invID := sourceArgs(e.Source)
	err = sp.QueryRow(ctx, `INSERT INTO entries (entrytype_id, number, date, dr_total, cr_total, narration, fund_id,
	cheque_no, cheque_date, bank_name, transaction_ref, inv_type, inv_id, created_by)
VALUES ($1,$2,$3,$4,$5,$6,NULLIF($7::bigint, 0),$8,$9,$10,$11,$12,$13,$14)
RETURNING id, created_at, updated_at`,
		int(e.Kind), e.Number, e.Date, e.DrTotal, e.CrTotal, e.Narration, e.FundID,
		e.Payment.ChequeNo, e.Payment.ChequeDate, e.Payment.BankName, e.Payment.TransactionRef,
		invType, invID, e.CreatedBy).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		_ = sp.Rollback(ctx)
		if db.IsUniqueViolation(err, "uq_entries_number") {
			return Entry{}, shared.ErrSequenceCollision
		}
		return Entry{}, err
	}
	return e, sp.Commit(ctx)
}

func (r *txRepository) InsertItems(ctx context.Context, entryID int64, items []Item) ([]Item, error) {
	out := make([]Item, 0, len(items))
	for _, it := range items {
		it.EntryID = entryID
		err := r.tx.QueryRow(ctx, `INSERT INTO entry_items (entry_id, ledger_id, amount, dc, details, quantity, unit_price, is_discount)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id`,
			entryID, it.LedgerID, it.Amount, string(it.Side), it.Details, it.Quantity, it.UnitPrice, it.IsDiscount).Scan(&it.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, nil
}

func (r *txRepository) GetEntryForUpdate(ctx context.Context, id int64) (Entry, error) {
	e, err := scanEntry(r.tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM entries e WHERE e.id=$1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, shared.ErrJournalNotFound
		}
		return Entry{}, err
	}
	e.Items, err = loadItems(ctx, r.tx, id)
	return e, err
}

func (r *txRepository) UpdateEntryHeader(ctx context.Context, e Entry) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE entries SET date=$2, dr_total=$3, cr_total=$4, narration=$5,
	cheque_no=$6, cheque_date=$7, bank_name=$8, transaction_ref=$9, updated_at=NOW()
WHERE id=$1`, e.ID, e.Date, e.DrTotal, e.CrTotal, e.Narration,
		e.Payment.ChequeNo, e.Payment.ChequeDate, e.Payment.BankName, e.Payment.TransactionRef)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrJournalNotFound
	}
	return nil
}

func (r *txRepository) DeleteItems(ctx context.Context, entryID int64) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM entry_items WHERE entry_id=$1`, entryID)
	return err
}

func (r *txRepository) DeleteEntry(ctx context.Context, entryID int64) error {
	cmd, err := r.tx.Exec(ctx, `DELETE FROM entries WHERE id=$1`, entryID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrJournalNotFound
	}
	return nil
}

func (r *txRepository) GetLedgers(ctx context.Context, ids []int64) (map[int64]ledgers.Ledger, error) {
	return ledgers.LoadMany(ctx, r.tx, ids)
}

func (r *txRepository) LockLedgers(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.tx.Exec(ctx, `SELECT id FROM ledgers WHERE id = ANY($1) ORDER BY id FOR UPDATE`, ids)
	return err
}

func (r *txRepository) StockPositions(ctx context.Context, ledgerIDs []int64, excludeEntryID int64) (map[int64]valuation.Position, error) {
	return valuation.Positions(ctx, r.tx, ledgerIDs, excludeEntryID)
}

func (r *txRepository) ActiveYear(ctx context.Context) (periods.AcYear, error) {
	return periods.ActiveYear(ctx, r.tx)
}

func (r *txRepository) ReserveOpeningStock(ctx context.Context, ledgerID, warehouseID int64) (int64, error) {
	key := fmt.Sprintf("%d:%d:OPENING_STOCK", ledgerID, warehouseID)
	if _, err := r.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
		return 0, err
	}
	var exists bool
	if err := r.tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM opening_stocks WHERE ledger_id=$1 AND warehouse_id=$2)`, ledgerID, warehouseID).Scan(&exists); err != nil {
		return 0, err
	}
	if exists {
		return 0, shared.ErrOpeningStockExists
	}
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO opening_stocks (ledger_id, warehouse_id, recorded_at) VALUES ($1,$2,$3) RETURNING id`,
		ledgerID, warehouseID, time.Now().UTC()).Scan(&id)
	return id, err
}

func (r *txRepository) LinkOpeningStock(ctx context.Context, id, entryID int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE opening_stocks SET entry_id=$2 WHERE id=$1`, id, entryID)
	return err
}

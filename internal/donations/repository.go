package donations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mandir-erp/mandir-ledger/internal/accounting/shared"
	"github.com/mandir-erp/mandir-ledger/internal/platform/db"
)

// TxRepository is the booking side of a migration transaction.
type TxRepository interface {
	// LockBooking reads the booking FOR UPDATE with its meta.
	LockBooking(ctx context.Context, id int64) (Booking, error)
	DonationType(ctx context.Context, id int64) (DonationType, error)
	MarkMigrated(ctx context.Context, id, entryID int64) error
}

// Repository reads bookings outside a transaction.
type Repository interface {
	Get(ctx context.Context, id int64) (Booking, error)
	PendingIDs(ctx context.Context, filter PendingFilter) ([]int64, error)
	SaveMeta(ctx context.Context, bookingID int64, meta Meta) error
}

type repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

// Bookings come from the counter application with optional cheque and fund fields.
const bookingColumns = `id, number, date, donation_type_id, payment_mode_id, COALESCE(fund_id, 0), amount, discount, paid, status,
	COALESCE(cheque_no, ''), cheque_date, COALESCE(bank_name, ''), COALESCE(transaction_ref, ''), created_by, assigned_to,
	account_migration, entry_id`

func loadBooking(ctx context.Context, q db.Querier, id int64, lock bool) (Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id=$1`
	if lock {
		query += ` FOR UPDATE`
	}
	var b Booking
	var migrated int16
	err := q.QueryRow(ctx, query, id).Scan(&b.ID, &b.Number, &b.Date, &b.DonationTypeID, &b.PaymentModeID, &b.FundID,
		&b.Amount, &b.Discount, &b.Paid, &b.Status, &b.ChequeNo, &b.ChequeDate, &b.BankName, &b.TransactionRef,
		&b.CreatedBy, &b.AssignedTo, &migrated, &b.EntryID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Booking{}, fmt.Errorf("booking %d: %w", id, shared.ErrSourceNotFound)
		}
		return Booking{}, err
	}
	b.Migrated = migrated == 1
	b.RawMeta, err = loadMeta(ctx, q, id)
	return b, err
}

func loadMeta(ctx context.Context, q db.Querier, bookingID int64) (map[string]string, error) {
	rows, err := q.Query(ctx, `SELECT meta_key, meta_value FROM booking_meta WHERE booking_id=$1`, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

func (r *txRepository) LockBooking(ctx context.Context, id int64) (Booking, error) {
	return loadBooking(ctx, r.tx, id, true)
}

func (r *txRepository) DonationType(ctx context.Context, id int64) (DonationType, error) {
	var t DonationType
	err := r.tx.QueryRow(ctx, `SELECT id, name, ledger_id FROM donation_types WHERE id=$1`, id).Scan(&t.ID, &t.Name, &t.LedgerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return DonationType{}, fmt.Errorf("donation type %d: %w", id, shared.ErrSourceNotFound)
	}
	return t, err
}

func (r *txRepository) MarkMigrated(ctx context.Context, id, entryID int64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE bookings SET account_migration=1, entry_id=$2, updated_at=NOW()
WHERE id=$1 AND account_migration=0`, id, entryID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("booking %d: %w", id, shared.ErrAlreadyMigrated)
	}
	return nil
}

func (r *repository) Get(ctx context.Context, id int64) (Booking, error) {
	return loadBooking(ctx, r.pool, id, false)
}

func (r *repository) PendingIDs(ctx context.Context, f PendingFilter) ([]int64, error) {
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
	rows, err := r.pool.Query(ctx, `SELECT id FROM bookings
WHERE account_migration=0 AND status=$1
  AND ($2::date IS NULL OR date >= $2) AND ($3::date IS NULL OR date <= $3)
ORDER BY date, id LIMIT $4`, string(StatusConfirmed), from, to, f.Limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

// SaveMeta replaces the booking's meta with the validated pairs.
func (r *repository) SaveMeta(ctx context.Context, bookingID int64, meta Meta) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM booking_meta WHERE booking_id=$1`, bookingID); err != nil {
			return err
		}
		for k, v := range meta.Pairs() {
			if _, err := tx.Exec(ctx, `INSERT INTO booking_meta (booking_id, meta_key, meta_value) VALUES ($1, $2, $3)`, bookingID, k, v); err != nil {
				return err
			}
		}
		return nil
	})
}

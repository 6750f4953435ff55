package approvals

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mandir-erp/mandir-ledger/internal/accounting/journals"
	"github.com/mandir-erp/mandir-ledger/internal/accounting/shared"
	"github.com/mandir-erp/mandir-ledger/internal/platform/db"
)

// TxRepository exposes approval writes inside a transaction.
type TxRepository interface {
	Insert(ctx context.Context, a Approval) (Approval, error)
	GetForUpdate(ctx context.Context, id int64) (Approval, error)
	MarkApproved(ctx context.Context, id, approverID, entryID int64, at time.Time) error
	MarkRejected(ctx context.Context, id, approverID int64, notes string, at time.Time) error
}

// TxScope gives one transaction over approvals and journals so promotion is atomic.
type TxScope interface {
	Approvals() TxRepository
	Journals() journals.TxRepository
}

type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxScope) error) error
	Get(ctx context.Context, id int64) (Approval, error)
	List(ctx context.Context, status Status) ([]Approval, error)
}

type repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

type scope struct {
	approvals TxRepository
	journals  journals.TxRepository
}

func (s scope) Approvals() TxRepository { return s.approvals }

func (s scope) Journals() journals.TxRepository { return s.journals }

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxScope) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, scope{approvals: &txRepository{tx: tx}, journals: journals.NewTxRepository(tx)})
	})
}

const approvalColumns = `id, ref, entrytype_id, date, COALESCE(fund_id, 0), narration, COALESCE(cheque_no, ''), cheque_date,
	COALESCE(bank_name, ''), COALESCE(transaction_ref, ''),
	total, approval_status, submitted_by, approved_by, approved_at, notes, entry_id, created_at`

func scanApproval(row pgx.Row) (Approval, error) {
	var a Approval
	err := row.Scan(&a.ID, &a.Ref, &a.Kind, &a.Date, &a.FundID, &a.Narration,
		&a.Payment.ChequeNo, &a.Payment.ChequeDate, &a.Payment.BankName, &a.Payment.TransactionRef,
		&a.Total, &a.Status, &a.SubmittedBy, &a.ApprovedBy, &a.ApprovedAt, &a.Notes, &a.EntryID, &a.CreatedAt)
	return a, err
}

func loadLines(ctx context.Context, q db.Querier, id int64) ([]Line, error) {
	rows, err := q.Query(ctx, `SELECT id, ledger_id, amount, dc, details, is_discount FROM entry_item_approvals WHERE approval_id=$1 ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []Line
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.LedgerID, &l.Amount, &l.Side, &l.Details, &l.IsDiscount); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func get(ctx context.Context, q db.Querier, id int64, lock bool) (Approval, error) {
	query := `SELECT ` + approvalColumns + ` FROM entry_approvals WHERE id=$1`
	if lock {
		query += ` FOR UPDATE`
	}
	a, err := scanApproval(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Approval{}, shared.ErrApprovalNotFound
		}
		return Approval{}, err
	}
	a.Lines, err = loadLines(ctx, q, id)
	return a, err
}

func (r *repository) Get(ctx context.Context, id int64) (Approval, error) {
	return get(ctx, r.pool, id, false)
}

func (r *repository) List(ctx context.Context, status Status) ([]Approval, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+approvalColumns+` FROM entry_approvals WHERE approval_status=$1 ORDER BY created_at ASC`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Approval
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) Insert(ctx context.Context, a Approval) (Approval, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO entry_approvals (ref, entrytype_id, date, fund_id, narration, cheque_no, cheque_date,
	bank_name, transaction_ref, total, approval_status, submitted_by, notes)
VALUES ($1,$2,$3,NULLIF($4::bigint, 0),$5,$6,$7,$8,$9,$10,$11,$12,'') RETURNING id, created_at`,
		a.Ref, int(a.Kind), a.Date, a.FundID, a.Narration, a.Payment.ChequeNo, a.Payment.ChequeDate,
		a.Payment.BankName, a.Payment.TransactionRef, a.Total, string(a.Status), a.SubmittedBy).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return Approval{}, err
	}
	for i, l := range a.Lines {
		if err := r.tx.QueryRow(ctx, `INSERT INTO entry_item_approvals (approval_id, ledger_id, amount, dc, details, is_discount)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`, a.ID, l.LedgerID, l.Amount, string(l.Side), l.Details, l.IsDiscount).Scan(&a.Lines[i].ID); err != nil {
			return Approval{}, err
		}
	}
	return a, nil
}

func (r *txRepository) GetForUpdate(ctx context.Context, id int64) (Approval, error) {
	return get(ctx, r.tx, id, true)
}

func (r *txRepository) MarkApproved(ctx context.Context, id, approverID, entryID int64, at time.Time) error {
	return r.decide(ctx, `UPDATE entry_approvals SET approval_status='APPROVED', approved_by=$2, approved_at=$3, entry_id=$4
WHERE id=$1 AND approval_status='PENDING'`, id, approverID, at, entryID)
}

func (r *txRepository) MarkRejected(ctx context.Context, id, approverID int64, notes string, at time.Time) error {
	return r.decide(ctx, `UPDATE entry_approvals SET approval_status='REJECTED', approved_by=$2, approved_at=$3, notes=$4
WHERE id=$1 AND approval_status='PENDING'`, id, approverID, at, notes)
}

func (r *txRepository) decide(ctx context.Context, query string, args ...any) error {
	cmd, err := r.tx.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrAlreadyProcessed
	}
	return nil
}

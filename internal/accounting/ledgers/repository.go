package ledgers

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mandir-erp/mandir-ledger/internal/accounting/shared"
	"github.com/mandir-erp/mandir-ledger/internal/platform/db"
)

// TxRepository is the chart surface available inside a transaction.
type TxRepository interface {
	LockGroupByCode(ctx context.Context, code string) (Group, error)
	InsertGroup(ctx context.Context, g Group) error
	FindLedgerByName(ctx context.Context, groupID int64, name string) (Ledger, error)
	MaxRightCode(ctx context.Context, groupID int64) (int, error)
	// InsertLedger reports false when another transaction already holds the name.
	InsertLedger(ctx context.Context, l Ledger) (int64, bool, error)
}

type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Ledger, error)
	GetMany(ctx context.Context, ids []int64) (map[int64]Ledger, error)
	ByGroupCodeRange(ctx context.Context, start, end int) ([]Ledger, error)
	Inventory(ctx context.Context) ([]Ledger, error)
	ListGroups(ctx context.Context) ([]Group, error)
}

// Root groups store a NULL parent; ParentID reads it back as 0.
const groupColumns = `id, COALESCE(parent_id, 0), name, code, created_at`

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

const ledgerColumns = `l.id, l.group_id, l.name, l.left_code, l.right_code, l.type, l.iv, l.created_at, l.updated_at`

func scanLedger(row pgx.Row) (Ledger, error) {
	var l Ledger
	err := row.Scan(&l.ID, &l.GroupID, &l.Name, &l.LeftCode, &l.RightCode, &l.Type, &l.Inventory, &l.CreatedAt, &l.UpdatedAt)
	return l, err
}

func collectLedgers(rows pgx.Rows) ([]Ledger, error) {
	defer rows.Close()
	var out []Ledger
	for rows.Next() {
		l, err := scanLedger(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Ledger, error) {
	l, err := scanLedger(r.pool.QueryRow(ctx, `SELECT `+ledgerColumns+` FROM ledgers l WHERE l.id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Ledger{}, shared.ErrLedgerNotFound
	}
	return l, err
}

func (r *repository) GetMany(ctx context.Context, ids []int64) (map[int64]Ledger, error) {
	return LoadMany(ctx, r.pool, ids)
}

func (r *repository) ByGroupCodeRange(ctx context.Context, start, end int) ([]Ledger, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+ledgerColumns+`
FROM ledgers l JOIN groups g ON g.id = l.group_id
WHERE g.code::int BETWEEN $1 AND $2
ORDER BY g.code, l.right_code`, start, end)
	if err != nil {
		return nil, err
	}
	return collectLedgers(rows)
}

func (r *repository) Inventory(ctx context.Context) ([]Ledger, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+ledgerColumns+` FROM ledgers l WHERE l.iv ORDER BY l.left_code, l.right_code`)
	if err != nil {
		return nil, err
	}
	return collectLedgers(rows)
}

func (r *repository) ListGroups(ctx context.Context) ([]Group, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+groupColumns+` FROM groups ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var groups []Group
	for rows.Next() {
		var g Group
		if err := rows.Scan(&g.ID, &g.ParentID, &g.Name, &g.Code, &g.CreatedAt); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// LoadMany fetches ledgers by id through any querier. Missing ids are absent from the map.
func LoadMany(ctx context.Context, q db.Querier, ids []int64) (map[int64]Ledger, error) {
	out := make(map[int64]Ledger, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := q.Query(ctx, `SELECT `+ledgerColumns+` FROM ledgers l WHERE l.id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	list, err := collectLedgers(rows)
	if err != nil {
		return nil, err
	}
	for _, l := range list {
		out[l.ID] = l
	}
	return out, nil
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository binds the chart to an open transaction.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

func (r *txRepository) LockGroupByCode(ctx context.Context, code string) (Group, error) {
	var g Group
	err := r.tx.QueryRow(ctx, `SELECT `+groupColumns+` FROM groups WHERE code=$1 FOR UPDATE`, code).
		Scan(&g.ID, &g.ParentID, &g.Name, &g.Code, &g.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Group{}, shared.ErrGroupNotFound
	}
	return g, err
}

func (r *txRepository) InsertGroup(ctx context.Context, g Group) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO groups (parent_id, name, code) VALUES (NULLIF($1::bigint, 0),$2,$3) ON CONFLICT (code) DO NOTHING`, g.ParentID, g.Name, g.Code)
	return err
}

func (r *txRepository) FindLedgerByName(ctx context.Context, groupID int64, name string) (Ledger, error) {
	l, err := scanLedger(r.tx.QueryRow(ctx, `SELECT `+ledgerColumns+` FROM ledgers l WHERE l.group_id=$1 AND l.name_key=$2`, groupID, NameKey(name)))
	if errors.Is(err, pgx.ErrNoRows) {
		return Ledger{}, shared.ErrLedgerNotFound
	}
	return l, err
}

func (r *txRepository) MaxRightCode(ctx context.Context, groupID int64) (int, error) {
	var max int
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(MAX(right_code::int), 0) FROM ledgers WHERE group_id=$1`, groupID).Scan(&max)
	return max, err
}

func (r *txRepository) InsertLedger(ctx context.Context, l Ledger) (int64, bool, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO ledgers (group_id, name, name_key, left_code, right_code, type, iv)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (group_id, name_key) DO NOTHING
RETURNING id`, l.GroupID, l.Name, NameKey(l.Name), l.LeftCode, l.RightCode, l.Type, l.Inventory).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

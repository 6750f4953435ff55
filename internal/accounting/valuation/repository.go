package valuation

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/mandir-erp/mandir-ledger/internal/platform/db"
)

const positionsSQL = `SELECT ledger_id,
	COALESCE(SUM(CASE WHEN dc = 'D' THEN quantity ELSE -quantity END), 0),
	COALESCE(SUM(CASE WHEN dc = 'D' THEN quantity * unit_price ELSE -(quantity * unit_price) END), 0)
FROM entry_items
WHERE ledger_id = ANY($1) AND quantity IS NOT NULL AND ($2::bigint = 0 OR entry_id <> $2)
GROUP BY ledger_id`

// Positions folds stock lines in SQL. Ledgers without movements get a zero position.
func Positions(ctx context.Context, q db.Querier, ledgerIDs []int64, excludeEntry int64) (map[int64]Position, error) {
	out := make(map[int64]Position, len(ledgerIDs))
	for _, id := range ledgerIDs {
		out[id] = Position{LedgerID: id}
	}
	if len(ledgerIDs) == 0 {
		return out, nil
	}
	rows, err := q.Query(ctx, positionsSQL, ledgerIDs, excludeEntry)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var p Position
		if err := rows.Scan(&p.LedgerID, &p.Quantity, &p.Value); err != nil {
			return nil, err
		}
		out[p.LedgerID] = p
	}
	return out, rows.Err()
}

type Repository interface {
	Positions(ctx context.Context, ledgerIDs []int64) (map[int64]Position, error)
	InventoryLedgerIDs(ctx context.Context) ([]int64, error)
	Movements(ctx context.Context, ledgerID int64) ([]Movement, error)
}

type repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) Positions(ctx context.Context, ledgerIDs []int64) (map[int64]Position, error) {
	return Positions(ctx, r.pool, ledgerIDs, 0)
}

func (r *repository) InventoryLedgerIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM ledgers WHERE iv ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *repository) Movements(ctx context.Context, ledgerID int64) ([]Movement, error) {
	rows, err := r.pool.Query(ctx, `SELECT i.ledger_id, i.entry_id, i.dc = 'D', i.quantity, COALESCE(i.unit_price, 0)
FROM entry_items i JOIN entries e ON e.id = i.entry_id
WHERE i.ledger_id=$1 AND i.quantity IS NOT NULL
ORDER BY e.date, i.id`, ledgerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Movement
	for rows.Next() {
		var m Movement
		var qty, price decimal.Decimal
		if err := rows.Scan(&m.LedgerID, &m.EntryID, &m.Debit, &qty, &price); err != nil {
			return nil, err
		}
		m.Quantity, m.UnitPrice = qty, price
		out = append(out, m)
	}
	return out, rows.Err()
}

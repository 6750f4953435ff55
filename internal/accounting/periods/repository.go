package periods

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mandir-erp/mandir-ledger/internal/accounting/shared"
	"github.com/mandir-erp/mandir-ledger/internal/platform/db"
)

type Repository interface {
	ActiveYear(ctx context.Context) (AcYear, error)
	List(ctx context.Context) ([]AcYear, error)
	Create(ctx context.Context, y AcYear) (AcYear, error)
	Close(ctx context.Context, id, actorID int64) (AcYear, error)
}

type repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const yearColumns = `id, from_year_month, to_year_month, status, has_closed, closed_at, closed_by, created_at`

func scanYear(row pgx.Row) (AcYear, error) {
	var y AcYear
	err := row.Scan(&y.ID, &y.FromYearMonth, &y.ToYearMonth, &y.Active, &y.HasClosed, &y.ClosedAt, &y.ClosedBy, &y.CreatedAt)
	return y, err
}

// ActiveYear loads the active accounting year through any querier.
func ActiveYear(ctx context.Context, q db.Querier) (AcYear, error) {
	y, err := scanYear(q.QueryRow(ctx, `SELECT `+yearColumns+` FROM ac_years WHERE status ORDER BY from_year_month DESC LIMIT 1`))
	if errors.Is(err, pgx.ErrNoRows) {
		return AcYear{}, shared.ErrNoFiscalYear
	}
	return y, err
}

func (r *repository) ActiveYear(ctx context.Context) (AcYear, error) {
	return ActiveYear(ctx, r.pool)
}

func (r *repository) List(ctx context.Context) ([]AcYear, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+yearColumns+` FROM ac_years ORDER BY from_year_month DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var years []AcYear
	for rows.Next() {
		y, err := scanYear(rows)
		if err != nil {
			return nil, err
		}
		years = append(years, y)
	}
	return years, rows.Err()
}

// Create inserts a year and makes it the only active one.
func (r *repository) Create(ctx context.Context, y AcYear) (AcYear, error) {
	var created AcYear
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `UPDATE ac_years SET status=false WHERE status`); err != nil {
			return err
		}
		var err error
		created, err = scanYear(tx.QueryRow(ctx, `INSERT INTO ac_years (from_year_month, to_year_month, status, has_closed)
VALUES ($1,$2,true,false) RETURNING `+yearColumns, y.FromYearMonth, y.ToYearMonth))
		return err
	})
	return created, err
}

func (r *repository) Close(ctx context.Context, id, actorID int64) (AcYear, error) {
	var closed AcYear
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		current, err := scanYear(tx.QueryRow(ctx, `SELECT `+yearColumns+` FROM ac_years WHERE id=$1 FOR UPDATE`, id))
		if errors.Is(err, pgx.ErrNoRows) {
			return shared.ErrNoFiscalYear
		}
		if err != nil {
			return err
		}
		if current.HasClosed {
			return shared.ErrAlreadyProcessed
		}
		closed, err = scanYear(tx.QueryRow(ctx, `UPDATE ac_years SET has_closed=true, closed_at=NOW(), closed_by=$2
WHERE id=$1 RETURNING `+yearColumns, id, actorID))
		return err
	})
	return closed, err
}

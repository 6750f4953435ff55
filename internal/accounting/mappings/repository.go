package mappings

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/mandir-erp/mandir-ledger/internal/accounting/shared"
	"github.com/mandir-erp/mandir-ledger/internal/platform/db"
)

type Repository interface {
	Get(ctx context.Context, module, key string) (AccountMapping, error)
	GetPaymentMode(ctx context.Context, id int64) (PaymentMode, error)
	ListPaymentModes(ctx context.Context) ([]PaymentMode, error)
	DefaultFund(ctx context.Context) (Fund, error)
}

type repository struct {
	q db.Querier
}

// NewRepository accepts a pool or an open transaction.
func NewRepository(q db.Querier) Repository {
	return &repository{q: q}
}

// Get resolves an account mapping for the specified key.
func (r *repository) Get(ctx context.Context, module, key string) (AccountMapping, error) {
	if module == "" || key == "" {
		return AccountMapping{}, fmt.Errorf("%w: mapping module and key required", shared.ErrValidation)
	}
	normalized := strings.ToUpper(module)
	var mapping AccountMapping
	err := r.q.QueryRow(ctx, `SELECT module, key, ledger_id, created_at, updated_at FROM account_mappings WHERE module=$1 AND key=$2`, normalized, key).
		Scan(&mapping.Module, &mapping.Key, &mapping.LedgerID, &mapping.CreatedAt, &mapping.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AccountMapping{}, fmt.Errorf("%s/%s: %w", normalized, key, shared.ErrMappingNotFound)
		}
		return AccountMapping{}, err
	}
	return mapping, nil
}

func (r *repository) GetPaymentMode(ctx context.Context, id int64) (PaymentMode, error) {
	var mode PaymentMode
	err := r.q.QueryRow(ctx, `SELECT id, name, ledger_id FROM payment_modes WHERE id=$1`, id).Scan(&mode.ID, &mode.Name, &mode.LedgerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return PaymentMode{}, fmt.Errorf("payment mode %d: %w", id, shared.ErrMappingNotFound)
	}
	return mode, err
}

func (r *repository) ListPaymentModes(ctx context.Context) ([]PaymentMode, error) {
	rows, err := r.q.Query(ctx, `SELECT id, name, ledger_id FROM payment_modes ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var modes []PaymentMode
	for rows.Next() {
		var m PaymentMode
		if err := rows.Scan(&m.ID, &m.Name, &m.LedgerID); err != nil {
			return nil, err
		}
		modes = append(modes, m)
	}
	return modes, rows.Err()
}

// DefaultFund returns the flagged default fund, else the first one.
func (r *repository) DefaultFund(ctx context.Context) (Fund, error) {
	var f Fund
	err := r.q.QueryRow(ctx, `SELECT id, name, is_default FROM funds ORDER BY is_default DESC, id ASC LIMIT 1`).Scan(&f.ID, &f.Name, &f.IsDefault)
	if errors.Is(err, pgx.ErrNoRows) {
		return Fund{}, fmt.Errorf("default fund: %w", shared.ErrMappingNotFound)
	}
	return f, err
}

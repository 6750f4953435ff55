package integration_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mandir-erp/mandir-ledger/internal/accounting/journals"
	"github.com/mandir-erp/mandir-ledger/internal/accounting/ledgers"
	"github.com/mandir-erp/mandir-ledger/internal/accounting/periods"
	"github.com/mandir-erp/mandir-ledger/internal/accounting/shared"
	"github.com/mandir-erp/mandir-ledger/internal/ap"
	"github.com/mandir-erp/mandir-ledger/internal/donations"
	"github.com/mandir-erp/mandir-ledger/internal/integration"
	"github.com/mandir-erp/mandir-ledger/internal/testing/pgtest"
)

// Counter bookings and supplier payments arrive with NULL fund and cheque columns.
func TestPGMigrateRecordsWithNullOptionalColumns(t *testing.T) {
	pool := pgtest.Open(t)
	ctx := context.Background()
	_, err := periods.NewService(periods.NewRepository(pool), nil, nil).Open(ctx, periods.YearMonth(202404), periods.YearMonth(202503))
	require.NoError(t, err)

	cash, err := ledgers.NewService(ledgers.NewRepository(pool)).Create(ctx, ledgers.CreateInput{
		GroupCode: ledgers.GroupCurrentAssets, Name: "Cash in Hand", Type: ledgers.LedgerTypeCashBank,
	})
	require.NoError(t, err)
	mode := pgtest.Exec(t, pool, `INSERT INTO payment_modes (name, ledger_id) VALUES ('Cash', $1) RETURNING id`, cash.ID)
	dtype := pgtest.Exec(t, pool, `INSERT INTO donation_types (name) VALUES ('General Donation') RETURNING id`)
	booking := pgtest.Exec(t, pool, `INSERT INTO bookings (number, date, donation_type_id, payment_mode_id, amount, paid, status, created_by)
VALUES ('BK-1', $1, $2, $3, 100, 100, 'CONFIRMED', 9) RETURNING id`, feb, dtype, mode)
	supplier := pgtest.Exec(t, pool, `INSERT INTO suppliers (name) VALUES ('Lakshmi Flowers') RETURNING id`)
	payment := pgtest.Exec(t, pool, `INSERT INTO purchase_payments (number, supplier_id, amount, paid_at, payment_mode_id, created_by)
VALUES ('PP-1', $1, 250, $2, $3, 9) RETURNING id`, supplier, feb, mode)

	posting := journals.NewService(journals.NewRepository(pool), nil, nil)
	migrator := integration.NewMigrator(
		integration.NewUnitOfWork(pool),
		integration.NewPendingSource(donations.NewRepository(pool), ap.NewRepository(pool)),
		posting,
		nil,
	)

	stored, err := donations.NewRepository(pool).Get(ctx, booking)
	require.NoError(t, err)
	require.Empty(t, stored.ChequeNo)
	require.Zero(t, stored.FundID)

	res, err := migrator.Migrate(ctx, "donation", booking)
	require.NoError(t, err)
	require.True(t, res.Success, res.Message)
	require.Equal(t, "REC250200001", res.Number)

	res, err = migrator.Migrate(ctx, "purchase_payment", payment)
	require.NoError(t, err)
	require.True(t, res.Success, res.Message)

	_, err = migrator.Migrate(ctx, "donation", booking)
	require.ErrorIs(t, err, shared.ErrAlreadyMigrated)

	var flagged int
	require.NoError(t, pool.QueryRow(ctx, `SELECT
	(SELECT COUNT(*) FROM bookings WHERE account_migration = 1) +
	(SELECT COUNT(*) FROM purchase_payments WHERE account_migration = 1)`).Scan(&flagged))
	require.Equal(t, 2, flagged)

	entries, err := posting.List(ctx, journals.ListFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		require.True(t, e.IsSystemGenerated())
		require.True(t, e.DrTotal.Equal(e.CrTotal))
	}
}

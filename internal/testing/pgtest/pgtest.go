// Package pgtest gives repository tests a clean Postgres schema.
// Tests skip unless TEST_DATABASE_URL points at a disposable database.
package pgtest

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/mandir-erp/mandir-ledger/internal/platform/db"
	"github.com/mandir-erp/mandir-ledger/internal/platform/db/schema"
)

// lockKey serializes test packages sharing one database.
const lockKey = 7_310_2025

const truncateSQL = `TRUNCATE entry_item_approvals, entry_approvals, booking_meta, bookings, donation_types,
	purchase_payments, purchase_invoice_lines, purchase_invoices, suppliers, opening_stocks,
	entry_items, entries, entry_sequences, account_mappings, payment_modes, funds, ledgers, groups,
	ac_years, audit_logs, approvals, idempotency_keys RESTART IDENTITY CASCADE`

// DSN returns TEST_DATABASE_URL or skips the test.
func DSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping Postgres repository tests")
	}
	return dsn
}

// Open connects, applies the schema and empties every table. The database stays
// reserved for the calling test until it finishes.
func Open(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := DSN(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := db.New(ctx, db.PoolConfig{DSN: dsn, MaxConns: 8, ApplicationName: "mandir-ledger-test"})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	conn, err := pool.Acquire(ctx)
	require.NoError(t, err)
	_, err = conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, lockKey)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = conn.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, lockKey)
		conn.Release()
	})

	require.NoError(t, schema.Apply(ctx, pool))
	_, err = pool.Exec(ctx, truncateSQL)
	require.NoError(t, err)
	return pool
}

// Exec runs a fixture statement and returns the id it yields.
func Exec(t *testing.T, pool *pgxpool.Pool, sql string, args ...any) int64 {
	t.Helper()
	var id int64
	require.NoError(t, pool.QueryRow(context.Background(), sql, args...).Scan(&id))
	return id
}

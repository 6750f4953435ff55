package journals_test

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/mandir-erp/mandir-ledger/internal/accounting/journals"
	"github.com/mandir-erp/mandir-ledger/internal/accounting/ledgers"
	"github.com/mandir-erp/mandir-ledger/internal/accounting/periods"
	"github.com/mandir-erp/mandir-ledger/internal/accounting/shared"
	"github.com/mandir-erp/mandir-ledger/internal/accounting/valuation"
	"github.com/mandir-erp/mandir-ledger/internal/testing/pgtest"
)

type pgChart struct {
	rice, supplier, cogs int64
}

func seedPGChart(t *testing.T, pool *pgxpool.Pool) pgChart {
	t.Helper()
	ctx := context.Background()
	_, err := periods.NewService(periods.NewRepository(pool), nil, nil).Open(ctx, periods.YearMonth(202404), periods.YearMonth(202503))
	require.NoError(t, err)
	chart := ledgers.NewService(ledgers.NewRepository(pool))
	create := func(group, name string, iv bool) int64 {
		l, err := chart.Create(ctx, ledgers.CreateInput{GroupCode: group, Name: name, Inventory: iv})
		require.NoError(t, err)
		return l.ID
	}
	return pgChart{
		rice:     create(ledgers.GroupInventory, "Rice", true),
		supplier: create(ledgers.GroupCurrentLiabilities, "Ganesh Traders", false),
		cogs:     create(ledgers.GroupExpenses, "Prasadam Consumption", false),
	}
}

func stockMove(c pgChart, units string, purchase bool) []journals.LineInput {
	amount := shared.Round2(dec(units).Mul(dec("5.00")))
	stock := journals.LineInput{LedgerID: c.rice, Amount: amount, Quantity: qty(units), UnitPrice: qty("5.00")}
	if purchase {
		stock.Side = journals.Debit
		return []journals.LineInput{stock, {LedgerID: c.supplier, Amount: amount, Side: journals.Credit}}
	}
	stock.Side = journals.Credit
	return []journals.LineInput{{LedgerID: c.cogs, Amount: amount, Side: journals.Debit}, stock}
}

func TestPGInventoryEntriesKeepStockNonNegative(t *testing.T) {
	pool := pgtest.Open(t)
	c := seedPGChart(t, pool)
	svc := journals.NewService(journals.NewRepository(pool), nil, nil)
	ctx := context.Background()

	purchase, err := svc.Post(ctx, journals.PostInput{Kind: journals.KindInventoryJournal, Date: jan15, Lines: stockMove(c, "10", true), CreatedBy: 1})
	require.NoError(t, err)
	require.Equal(t, "IVJ250100001", purchase.Number)

	stored, err := svc.Get(ctx, purchase.ID)
	require.NoError(t, err)
	require.Zero(t, stored.FundID)
	require.Empty(t, stored.Payment.ChequeNo)
	require.Len(t, stored.Items, 2)

	_, err = svc.Post(ctx, journals.PostInput{Kind: journals.KindInventoryJournal, Date: jan15, Lines: stockMove(c, "8", false), CreatedBy: 1})
	require.NoError(t, err)

	err = svc.Delete(ctx, journals.DeleteInput{EntryID: purchase.ID})
	require.ErrorIs(t, err, shared.ErrInsufficientQuantity)
	_, err = svc.Update(ctx, journals.UpdateInput{EntryID: purchase.ID, Lines: stockMove(c, "2", true)})
	require.ErrorIs(t, err, shared.ErrInsufficientQuantity)

	positions, err := valuation.Positions(ctx, pool, []int64{c.rice}, 0)
	require.NoError(t, err)
	require.True(t, positions[c.rice].Quantity.Equal(dec("2")))
}

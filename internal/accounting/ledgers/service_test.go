package ledgers_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mandir-erp/mandir-ledger/internal/accounting/ledgers"
	"github.com/mandir-erp/mandir-ledger/internal/accounting/shared"
	"github.com/mandir-erp/mandir-ledger/internal/testing/ledgerfake"
)

func TestResolveOrCreateProvisionsGroupAndLedger(t *testing.T) {
	book := ledgerfake.New(2025)
	svc := ledgers.NewService(book.Ledgers())
	ctx := context.Background()

	id, err := svc.ResolveOrCreate(ctx, ledgers.GroupIncomes, ledgers.LedgerAllIncomes)
	require.NoError(t, err)
	require.NotZero(t, id)

	again, err := svc.ResolveOrCreate(ctx, ledgers.GroupIncomes, "  all   INCOMES ")
	require.NoError(t, err)
	require.Equal(t, id, again)

	seva, err := svc.ResolveOrCreate(ctx, ledgers.GroupIncomes, "Seva Income")
	require.NoError(t, err)

	list := book.LedgersInGroup(ledgers.GroupIncomes)
	require.Len(t, list, 2)
	require.Equal(t, "0001", list[0].RightCode)
	require.Equal(t, "0002", list[1].RightCode)
	require.Equal(t, seva, list[1].ID)
	require.Equal(t, "8000", list[0].LeftCode)

	groups, err := svc.ListGroups(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	require.Equal(t, "Incomes", groups[0].Name)
}

func TestResolveOrCreateUnknownGroup(t *testing.T) {
	book := ledgerfake.New(2025)
	svc := ledgers.NewService(book.Ledgers())

	_, err := svc.ResolveOrCreate(context.Background(), "4321", "Anything")
	require.ErrorIs(t, err, shared.ErrGroupNotFound)

	_, err = svc.ResolveOrCreate(context.Background(), ledgers.GroupIncomes, "   ")
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestResolveOrCreateRollsBackWithCaller(t *testing.T) {
	book := ledgerfake.New(2025)
	boom := errors.New("posting failed")

	err := book.Ledgers().WithTx(context.Background(), func(ctx context.Context, tx ledgers.TxRepository) error {
		if _, err := ledgers.ResolveOrCreate(ctx, tx, ledgers.GroupIncomes, ledgers.LedgerAllIncomes); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Empty(t, book.LedgersInGroup(ledgers.GroupIncomes))
}

func TestCreateRejectsDuplicateAndFlagsInventory(t *testing.T) {
	book := ledgerfake.New(2025)
	svc := ledgers.NewService(book.Ledgers())
	ctx := context.Background()

	rice, err := svc.Create(ctx, ledgers.CreateInput{GroupCode: ledgers.GroupInventory, Name: "Rice", Inventory: true})
	require.NoError(t, err)
	require.True(t, rice.Inventory)
	require.Equal(t, "1500-0001", rice.Code())

	_, err = svc.Create(ctx, ledgers.CreateInput{GroupCode: ledgers.GroupInventory, Name: "RICE"})
	require.ErrorIs(t, err, shared.ErrValidation)

	cash, err := svc.Create(ctx, ledgers.CreateInput{GroupCode: ledgers.GroupCurrentAssets, Name: "Cash", Type: ledgers.LedgerTypeCashBank})
	require.NoError(t, err)
	require.True(t, cash.IsCashOrBank())

	inv, err := svc.Inventory(ctx)
	require.NoError(t, err)
	require.Len(t, inv, 1)
	require.Equal(t, rice.ID, inv[0].ID)

	ranged, err := svc.ByGroupCodeRange(ctx, 1000, 1499)
	require.NoError(t, err)
	require.Len(t, ranged, 1)
	require.Equal(t, cash.ID, ranged[0].ID)

	_, err = svc.ByGroupCodeRange(ctx, 2000, 1000)
	require.ErrorIs(t, err, shared.ErrValidation)
}

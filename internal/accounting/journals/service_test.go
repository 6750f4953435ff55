package journals_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/mandir-erp/mandir-ledger/internal/accounting/journals"
	"github.com/mandir-erp/mandir-ledger/internal/accounting/ledgers"
	"github.com/mandir-erp/mandir-ledger/internal/accounting/sequence"
	"github.com/mandir-erp/mandir-ledger/internal/accounting/shared"
	internalShared "github.com/mandir-erp/mandir-ledger/internal/shared"
	"github.com/mandir-erp/mandir-ledger/internal/testing/ledgerfake"
)

var jan15 = time.Date(2025, time.January, 15, 0, 0, 0, 0, time.UTC)

type recordingAudit struct {
	mu   sync.Mutex
	logs []internalShared.AuditLog
}

func (a *recordingAudit) Record(_ context.Context, log internalShared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, log)
	return nil
}

type countingInvalidator struct{ calls int }

func (c *countingInvalidator) Invalidate(context.Context) { c.calls++ }

type fixture struct {
	book     *ledgerfake.Book
	svc      *journals.Service
	audit    *recordingAudit
	stock    *countingInvalidator
	cash     int64
	bank     int64
	income   int64
	discount int64
	expense  int64
	supplier int64
	rice     int64
	cogs     int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	book := ledgerfake.New(2025)
	f := &fixture{
		book:     book,
		audit:    &recordingAudit{},
		stock:    &countingInvalidator{},
		cash:     book.AddLedger(ledgers.GroupCurrentAssets, "Cash", ledgers.LedgerTypeCashBank, false),
		bank:     book.AddLedger(ledgers.GroupCurrentAssets, "SBI Current", ledgers.LedgerTypeCashBank, false),
		income:   book.AddLedger(ledgers.GroupIncomes, "Donation Income", ledgers.LedgerTypeGeneral, false),
		discount: book.AddLedger(ledgers.GroupExpenses, "Discount Allowed", ledgers.LedgerTypeGeneral, false),
		expense:  book.AddLedger(ledgers.GroupExpenses, "Flowers", ledgers.LedgerTypeGeneral, false),
		supplier: book.AddLedger(ledgers.GroupCurrentLiabilities, "Ganesh Traders", ledgers.LedgerTypeGeneral, false),
		rice:     book.AddLedger(ledgers.GroupInventory, "Rice", ledgers.LedgerTypeGeneral, true),
		cogs:     book.AddLedger(ledgers.GroupExpenses, "Prasadam Consumption", ledgers.LedgerTypeGeneral, false),
	}
	f.svc = journals.NewService(book.Journals(), f.audit, nil)
	f.svc.WithStockInvalidator(f.stock)
	f.svc.WithDefaultFund(1)
	return f
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func qty(s string) decimal.NullDecimal { return decimal.NewNullDecimal(dec(s)) }

func (f *fixture) receipt(t *testing.T, amount string) journals.Entry {
	t.Helper()
	lines, err := journals.BuildReceipt(f.cash, []journals.LineInput{{LedgerID: f.income, Amount: dec(amount)}}, nil)
	require.NoError(t, err)
	entry, err := f.svc.Post(context.Background(), journals.PostInput{Kind: journals.KindReceipt, Date: jan15, Lines: lines, CreatedBy: 9})
	require.NoError(t, err)
	return entry
}

func (f *fixture) purchase(t *testing.T, units, price string) journals.Entry {
	t.Helper()
	amount := shared.Round2(dec(units).Mul(dec(price))).String()
	entry, err := f.svc.Post(context.Background(), journals.PostInput{
		Kind: journals.KindInventoryJournal,
		Date: jan15,
		Lines: []journals.LineInput{
			{LedgerID: f.rice, Amount: dec(amount), Side: journals.Debit, Quantity: qty(units), UnitPrice: qty(price)},
			{LedgerID: f.supplier, Amount: dec(amount), Side: journals.Credit},
		},
	})
	require.NoError(t, err)
	return entry
}

func saleLines(f *fixture, units, price string) []journals.LineInput {
	amount := shared.Round2(dec(units).Mul(dec(price)))
	return []journals.LineInput{
		{LedgerID: f.cogs, Amount: amount, Side: journals.Debit},
		{LedgerID: f.rice, Amount: amount, Side: journals.Credit, Quantity: qty(units), UnitPrice: qty(price)},
	}
}

type tuple struct {
	ledger int64
	amount string
	side   journals.Side
}

func tuples(items []journals.Item) []tuple {
	out := make([]tuple, 0, len(items))
	for _, it := range items {
		out = append(out, tuple{it.LedgerID, it.Amount.StringFixed(2), it.Side})
	}
	sort.Slice(out, func(i, j int) bool { return fmt.Sprint(out[i]) < fmt.Sprint(out[j]) })
	return out
}

func TestPostReceiptDerivesCashLeg(t *testing.T) {
	f := newFixture(t)
	entry := f.receipt(t, "100")

	require.Equal(t, "REC250100001", entry.Number)
	require.True(t, entry.DrTotal.Equal(dec("100")))
	require.True(t, entry.CrTotal.Equal(dec("100")))
	require.Equal(t, int64(1), entry.FundID)
	require.False(t, entry.IsSystemGenerated())

	stored, err := f.svc.Get(context.Background(), entry.ID)
	require.NoError(t, err)
	require.Equal(t, []tuple{{f.cash, "100.00", journals.Debit}, {f.income, "100.00", journals.Credit}}, tuples(stored.Items))
	require.Len(t, f.audit.logs, 1)
	require.Equal(t, "entry.post", f.audit.logs[0].Action)
	require.Zero(t, f.stock.calls)
}

func TestPostReceiptWithDiscount(t *testing.T) {
	f := newFixture(t)
	lines, err := journals.BuildReceipt(f.cash,
		[]journals.LineInput{{LedgerID: f.income, Amount: dec("60")}, {LedgerID: f.income, Amount: dec("40")}},
		&journals.LineInput{LedgerID: f.discount, Amount: dec("10")})
	require.NoError(t, err)

	entry, err := f.svc.Post(context.Background(), journals.PostInput{Kind: journals.KindReceipt, Date: jan15, Lines: lines})
	require.NoError(t, err)
	require.True(t, entry.DrTotal.Equal(dec("100")))
	require.True(t, entry.CrTotal.Equal(dec("100")))
	require.Equal(t, []tuple{
		{f.cash, "90.00", journals.Debit},
		{f.income, "40.00", journals.Credit},
		{f.income, "60.00", journals.Credit},
		{f.discount, "10.00", journals.Debit},
	}, tuples(entry.Items))
}

func TestPostRejectsInvalidLines(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cases := map[string]struct {
		kind  journals.Kind
		lines []journals.LineInput
		want  error
	}{
		"unbalanced": {journals.KindJournal, []journals.LineInput{
			{LedgerID: f.expense, Amount: dec("100"), Side: journals.Debit},
			{LedgerID: f.supplier, Amount: dec("99.98"), Side: journals.Credit},
		}, shared.ErrUnbalanced},
		"single line": {journals.KindJournal, []journals.LineInput{
			{LedgerID: f.expense, Amount: dec("100"), Side: journals.Debit},
		}, shared.ErrTooFewLines},
		"zero amount": {journals.KindJournal, []journals.LineInput{
			{LedgerID: f.expense, Amount: dec("0"), Side: journals.Debit},
			{LedgerID: f.supplier, Amount: dec("0"), Side: journals.Credit},
		}, shared.ErrInvalidAmount},
		"unknown ledger": {journals.KindJournal, []journals.LineInput{
			{LedgerID: 9999, Amount: dec("5"), Side: journals.Debit},
			{LedgerID: f.supplier, Amount: dec("5"), Side: journals.Credit},
		}, shared.ErrLedgerNotFound},
		"receipt debit not cash": {journals.KindReceipt, []journals.LineInput{
			{LedgerID: f.expense, Amount: dec("5"), Side: journals.Debit},
			{LedgerID: f.income, Amount: dec("5"), Side: journals.Credit},
		}, shared.ErrInvalidLedgerType},
		"payment two cash credits": {journals.KindPayment, []journals.LineInput{
			{LedgerID: f.expense, Amount: dec("10"), Side: journals.Debit},
			{LedgerID: f.cash, Amount: dec("5"), Side: journals.Credit},
			{LedgerID: f.bank, Amount: dec("5"), Side: journals.Credit},
		}, shared.ErrInvalidLedgerType},
		"contra non cash": {journals.KindContra, []journals.LineInput{
			{LedgerID: f.cash, Amount: dec("5"), Side: journals.Debit},
			{LedgerID: f.income, Amount: dec("5"), Side: journals.Credit},
		}, shared.ErrInvalidLedgerType},
		"contra same ledger": {journals.KindContra, journals.BuildContra(f.cash, f.cash, dec("5")), shared.ErrValidation},
		"quantity on journal": {journals.KindJournal, []journals.LineInput{
			{LedgerID: f.rice, Amount: dec("5"), Side: journals.Debit, Quantity: qty("1"), UnitPrice: qty("5")},
			{LedgerID: f.supplier, Amount: dec("5"), Side: journals.Credit},
		}, shared.ErrValidation},
		"inventory amount mismatch": {journals.KindInventoryJournal, []journals.LineInput{
			{LedgerID: f.rice, Amount: dec("51"), Side: journals.Debit, Quantity: qty("10"), UnitPrice: qty("5")},
			{LedgerID: f.supplier, Amount: dec("51"), Side: journals.Credit},
		}, shared.ErrValidation},
		"quantity on non inventory ledger": {journals.KindInventoryJournal, []journals.LineInput{
			{LedgerID: f.expense, Amount: dec("50"), Side: journals.Debit, Quantity: qty("10"), UnitPrice: qty("5")},
			{LedgerID: f.supplier, Amount: dec("50"), Side: journals.Credit},
		}, shared.ErrInvalidLedgerType},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Post(ctx, journals.PostInput{Kind: tc.kind, Date: jan15, Lines: tc.lines})
			require.ErrorIs(t, err, tc.want)
		})
	}
	require.Empty(t, f.book.Entries())
}

func TestPostWithinToleranceKeepsLineSums(t *testing.T) {
	f := newFixture(t)
	entry, err := f.svc.Post(context.Background(), journals.PostInput{
		Kind: journals.KindJournal,
		Date: jan15,
		Lines: []journals.LineInput{
			{LedgerID: f.expense, Amount: dec("100.01"), Side: journals.Debit},
			{LedgerID: f.supplier, Amount: dec("100.00"), Side: journals.Credit},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "JOR250100001", entry.Number)
	require.True(t, entry.DrTotal.Equal(dec("100.01")))
	require.True(t, entry.CrTotal.Equal(dec("100.00")))
}

func TestPaymentAndContraBuilders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lines, err := journals.BuildPayment(f.bank, []journals.LineInput{{LedgerID: f.expense, Amount: dec("250")}})
	require.NoError(t, err)
	pay, err := f.svc.Post(ctx, journals.PostInput{Kind: journals.KindPayment, Date: jan15, Lines: lines})
	require.NoError(t, err)
	require.Equal(t, "PAY250100001", pay.Number)

	contra, err := f.svc.Post(ctx, journals.PostInput{Kind: journals.KindContra, Date: jan15, Lines: journals.BuildContra(f.cash, f.bank, dec("500"))})
	require.NoError(t, err)
	require.Equal(t, "CON250100001", contra.Number)
	require.True(t, contra.DrTotal.Equal(dec("500")))
}

func TestInventorySaleBeyondStockRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.purchase(t, "10", "5.00")
	require.True(t, f.book.Position(f.rice).Quantity.Equal(dec("10")))
	require.Equal(t, 1, f.stock.calls)

	_, err := f.svc.Post(ctx, journals.PostInput{Kind: journals.KindInventoryJournal, Date: jan15, Lines: saleLines(f, "15", "5.00")})
	require.ErrorIs(t, err, shared.ErrInsufficientQuantity)
	require.Equal(t, shared.KindInsufficientQuantity, shared.KindOf(err))

	sale, err := f.svc.Post(ctx, journals.PostInput{Kind: journals.KindInventoryJournal, Date: jan15, Lines: saleLines(f, "10", "5.00")})
	require.NoError(t, err)
	require.Equal(t, "IVJ250100002", sale.Number)
	require.True(t, f.book.Position(f.rice).Quantity.IsZero())

	_, err = f.svc.Post(ctx, journals.PostInput{Kind: journals.KindInventoryJournal, Date: jan15, Lines: saleLines(f, "0.5", "5.00")})
	require.ErrorIs(t, err, shared.ErrInsufficientQuantity)
}

func TestInventoryUpdateNetsOutOwnLines(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.purchase(t, "10", "5.00")
	sale, err := f.svc.Post(ctx, journals.PostInput{Kind: journals.KindInventoryJournal, Date: jan15, Lines: saleLines(f, "8", "5.00")})
	require.NoError(t, err)

	updated, err := f.svc.Update(ctx, journals.UpdateInput{EntryID: sale.ID, Lines: saleLines(f, "10", "5.00")})
	require.NoError(t, err)
	require.True(t, updated.DrTotal.Equal(dec("50")))
	require.True(t, f.book.Position(f.rice).Quantity.IsZero())

	_, err = f.svc.Update(ctx, journals.UpdateInput{EntryID: sale.ID, Lines: saleLines(f, "11", "5.00")})
	require.ErrorIs(t, err, shared.ErrInsufficientQuantity)
	require.True(t, f.book.Position(f.rice).Quantity.IsZero())
}

func purchaseLines(f *fixture, units, price string) []journals.LineInput {
	amount := shared.Round2(dec(units).Mul(dec(price)))
	return []journals.LineInput{
		{LedgerID: f.rice, Amount: amount, Side: journals.Debit, Quantity: qty(units), UnitPrice: qty(price)},
		{LedgerID: f.supplier, Amount: amount, Side: journals.Credit},
	}
}

func TestDeletePurchaseAlreadyIssuedRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	purchase := f.purchase(t, "10", "5.00")
	sale, err := f.svc.Post(ctx, journals.PostInput{Kind: journals.KindInventoryJournal, Date: jan15, Lines: saleLines(f, "8", "5.00")})
	require.NoError(t, err)

	err = f.svc.Delete(ctx, journals.DeleteInput{EntryID: purchase.ID})
	require.ErrorIs(t, err, shared.ErrInsufficientQuantity)
	require.True(t, f.book.Position(f.rice).Quantity.Equal(dec("2")))
	_, err = f.book.Journals().Get(ctx, purchase.ID)
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, journals.DeleteInput{EntryID: sale.ID}))
	require.NoError(t, f.svc.Delete(ctx, journals.DeleteInput{EntryID: purchase.ID}))
	require.True(t, f.book.Position(f.rice).Quantity.IsZero())
}

func TestUpdatePurchaseBelowIssuedQuantityRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	purchase := f.purchase(t, "10", "5.00")
	_, err := f.svc.Post(ctx, journals.PostInput{Kind: journals.KindInventoryJournal, Date: jan15, Lines: saleLines(f, "8", "5.00")})
	require.NoError(t, err)

	_, err = f.svc.Update(ctx, journals.UpdateInput{EntryID: purchase.ID, Lines: purchaseLines(f, "2", "5.00")})
	require.ErrorIs(t, err, shared.ErrInsufficientQuantity)
	require.True(t, f.book.Position(f.rice).Quantity.Equal(dec("2")))

	updated, err := f.svc.Update(ctx, journals.UpdateInput{EntryID: purchase.ID, Lines: purchaseLines(f, "8", "5.00")})
	require.NoError(t, err)
	require.True(t, updated.DrTotal.Equal(dec("40")))
	require.True(t, f.book.Position(f.rice).Quantity.IsZero())
}

func TestUpdateAndDeleteManualEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	entry := f.receipt(t, "100")

	lines, err := journals.BuildReceipt(f.bank, []journals.LineInput{{LedgerID: f.income, Amount: dec("120")}}, nil)
	require.NoError(t, err)
	updated, err := f.svc.Update(ctx, journals.UpdateInput{EntryID: entry.ID, Narration: "corrected", Lines: lines, ActorID: 3})
	require.NoError(t, err)
	require.Equal(t, entry.Number, updated.Number)
	require.True(t, updated.DrTotal.Equal(dec("120")))
	require.True(t, updated.CrTotal.Equal(dec("120")))

	stored, err := f.svc.Get(ctx, entry.ID)
	require.NoError(t, err)
	require.Equal(t, "corrected", stored.Narration)
	require.Equal(t, []tuple{{f.bank, "120.00", journals.Debit}, {f.income, "120.00", journals.Credit}}, tuples(stored.Items))

	require.NoError(t, f.svc.Delete(ctx, journals.DeleteInput{EntryID: entry.ID, ActorID: 3}))
	_, err = f.svc.Get(ctx, entry.ID)
	require.ErrorIs(t, err, shared.ErrJournalNotFound)
	require.Equal(t, "entry.delete", f.audit.logs[len(f.audit.logs)-1].Action)
}

func TestSystemGeneratedEntryIsLocked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lines, err := journals.BuildReceipt(f.cash, []journals.LineInput{{LedgerID: f.income, Amount: dec("100")}}, nil)
	require.NoError(t, err)
	entry, err := f.svc.Post(ctx, journals.PostInput{
		Kind:   journals.KindReceipt,
		Date:   jan15,
		Lines:  lines,
		Source: &journals.SourceRef{Module: journals.SourceDonation, ID: 42},
	})
	require.NoError(t, err)
	require.True(t, entry.IsSystemGenerated())

	_, err = f.svc.Update(ctx, journals.UpdateInput{EntryID: entry.ID, Lines: lines})
	require.ErrorIs(t, err, shared.ErrEntryLocked)
	err = f.svc.Delete(ctx, journals.DeleteInput{EntryID: entry.ID})
	require.ErrorIs(t, err, shared.ErrEntryLocked)

	stored, err := f.svc.Get(ctx, entry.ID)
	require.NoError(t, err)
	require.Len(t, stored.Items, 2)
}

func TestClosedYearLocksEntries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	entry := f.receipt(t, "100")
	f.book.CloseYear()

	err := f.svc.Delete(ctx, journals.DeleteInput{EntryID: entry.ID})
	require.ErrorIs(t, err, shared.ErrEntryLocked)

	lines, err := journals.BuildReceipt(f.cash, []journals.LineInput{{LedgerID: f.income, Amount: dec("5")}}, nil)
	require.NoError(t, err)
	_, err = f.svc.Post(ctx, journals.PostInput{Kind: journals.KindReceipt, Date: jan15, Lines: lines})
	require.ErrorIs(t, err, shared.ErrEntryLocked)
}

func TestPostOutsideFiscalYear(t *testing.T) {
	f := newFixture(t)
	lines, err := journals.BuildReceipt(f.cash, []journals.LineInput{{LedgerID: f.income, Amount: dec("5")}}, nil)
	require.NoError(t, err)
	_, err = f.svc.Post(context.Background(), journals.PostInput{Kind: journals.KindReceipt, Date: jan15.AddDate(1, 0, 0), Lines: lines})
	require.ErrorIs(t, err, shared.ErrNoFiscalYear)
	require.Equal(t, shared.KindValidation, shared.KindOf(err))
}

func TestFailedInsertRollsBackCounter(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("disk full")
	f.book.Fail["InsertItems"] = boom

	lines, err := journals.BuildReceipt(f.cash, []journals.LineInput{{LedgerID: f.income, Amount: dec("5")}}, nil)
	require.NoError(t, err)
	_, err = f.svc.Post(context.Background(), journals.PostInput{Kind: journals.KindReceipt, Date: jan15, Lines: lines})
	require.ErrorIs(t, err, boom)
	require.Equal(t, shared.KindPersistence, shared.KindOf(err))
	require.Empty(t, f.book.Entries())

	delete(f.book.Fail, "InsertItems")
	require.Equal(t, "REC250100001", f.receipt(t, "5").Number)
}

func TestConcurrentPostsGetContiguousCodes(t *testing.T) {
	f := newFixture(t)
	const n = 20
	var wg sync.WaitGroup
	numbers := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lines, err := journals.BuildReceipt(f.cash, []journals.LineInput{{LedgerID: f.income, Amount: dec("1")}}, nil)
			if err != nil {
				return
			}
			entry, err := f.svc.Post(context.Background(), journals.PostInput{Kind: journals.KindReceipt, Date: jan15, Lines: lines})
			if err == nil {
				numbers <- entry.Number
			}
		}()
	}
	wg.Wait()
	close(numbers)

	var counters []int
	for number := range numbers {
		code, err := sequence.Parse(number)
		require.NoError(t, err)
		counters = append(counters, int(code.Counter))
	}
	require.Len(t, counters, n)
	sort.Ints(counters)
	for i, c := range counters {
		require.Equal(t, i+1, c)
	}
}

func TestOpeningStockOncePerWarehouse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := journals.OpeningStockInput{LedgerID: f.rice, WarehouseID: 1, OffsetLedgerID: f.supplier, Quantity: dec("25"), UnitPrice: dec("4.00"), Date: jan15}

	entry, err := f.svc.PostOpeningStock(ctx, in)
	require.NoError(t, err)
	require.True(t, entry.IsSystemGenerated())
	require.True(t, f.book.Position(f.rice).Quantity.Equal(dec("25")))

	_, err = f.svc.PostOpeningStock(ctx, in)
	require.ErrorIs(t, err, shared.ErrOpeningStockExists)

	in.WarehouseID = 2
	_, err = f.svc.PostOpeningStock(ctx, in)
	require.NoError(t, err)
}

func TestListFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.receipt(t, "10")
	f.purchase(t, "1", "2.00")

	receipts, err := f.svc.List(ctx, journals.ListFilter{Kind: journals.KindReceipt})
	require.NoError(t, err)
	require.Len(t, receipts, 1)

	touchingRice, err := f.svc.List(ctx, journals.ListFilter{LedgerID: f.rice})
	require.NoError(t, err)
	require.Len(t, touchingRice, 1)
	require.Equal(t, journals.KindInventoryJournal, touchingRice[0].Kind)

	_, err = f.svc.List(ctx, journals.ListFilter{From: jan15, To: jan15.AddDate(0, 0, -1)})
	require.ErrorIs(t, err, shared.ErrValidation)
}

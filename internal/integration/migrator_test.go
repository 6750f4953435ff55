package integration_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/mandir-erp/mandir-ledger/internal/accounting/journals"
	"github.com/mandir-erp/mandir-ledger/internal/accounting/ledgers"
	"github.com/mandir-erp/mandir-ledger/internal/accounting/mappings"
	"github.com/mandir-erp/mandir-ledger/internal/accounting/shared"
	"github.com/mandir-erp/mandir-ledger/internal/ap"
	"github.com/mandir-erp/mandir-ledger/internal/donations"
	"github.com/mandir-erp/mandir-ledger/internal/integration"
	"github.com/mandir-erp/mandir-ledger/internal/testing/ledgerfake"
)

var feb = time.Date(2025, time.February, 14, 0, 0, 0, 0, time.UTC)

const (
	modeCash     = 1
	modeUnmapped = 2
	typeGeneral  = 10
	typeAnnadana = 11
)

type fixture struct {
	book     *ledgerfake.Book
	src      *sources
	migrator *integration.Migrator
	cash     int64
	annadana int64
	rice     int64
	expense  int64
	tax      int64
	discount int64
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newFixture(t *testing.T) *fixture {
	t.Helper()
	book := ledgerfake.New(2025)
	src := newSources()
	book.Attach(src)
	f := &fixture{
		book:     book,
		src:      src,
		cash:     book.AddLedger(ledgers.GroupCurrentAssets, "Cash", ledgers.LedgerTypeCashBank, false),
		annadana: book.AddLedger(ledgers.GroupIncomes, "Annadana Fund", ledgers.LedgerTypeGeneral, false),
		rice:     book.AddLedger(ledgers.GroupInventory, "Rice", ledgers.LedgerTypeGeneral, true),
		expense:  book.AddLedger(ledgers.GroupExpenses, "Purchase Expenses", ledgers.LedgerTypeGeneral, false),
		tax:      book.AddLedger(ledgers.GroupCurrentAssets, "Input GST", ledgers.LedgerTypeGeneral, false),
		discount: book.AddLedger(ledgers.GroupIncomes, "Discount Received", ledgers.LedgerTypeGeneral, false),
	}
	src.modes[modeCash] = mappings.PaymentMode{ID: modeCash, Name: "Cash", LedgerID: &f.cash}
	src.modes[modeUnmapped] = mappings.PaymentMode{ID: modeUnmapped, Name: "UPI"}
	src.types[typeGeneral] = donations.DonationType{ID: typeGeneral, Name: "General Donation"}
	src.types[typeAnnadana] = donations.DonationType{ID: typeAnnadana, Name: "Annadana", LedgerID: &f.annadana}
	src.accounts[mappings.ModuleAP+"/"+mappings.KeyInvoiceExpense] = f.expense
	src.accounts[mappings.ModuleAP+"/"+mappings.KeyInvoiceTax] = f.tax
	src.accounts[mappings.ModuleAP+"/"+mappings.KeyInvoiceDiscount] = f.discount

	posting := journals.NewService(book.Journals(), nil, nil)
	posting.WithDefaultFund(1)
	f.migrator = integration.NewMigrator(unitOfWork{book: book, src: src}, src, posting, nil)
	return f
}

func (f *fixture) addBooking(id int64, amount, discount string, mode, dtype int64, meta map[string]string) {
	f.src.bookings[id] = donations.Booking{
		ID:             id,
		Number:         fmt.Sprintf("BK-%d", id),
		Date:           feb,
		DonationTypeID: dtype,
		PaymentModeID:  mode,
		FundID:         1,
		Amount:         dec(amount),
		Discount:       dec(discount),
		Paid:           dec(amount).Sub(dec(discount)),
		Status:         donations.StatusConfirmed,
		CreatedBy:      7,
		RawMeta:        meta,
	}
}

func itemFor(e journals.Entry, ledgerID int64, side journals.Side) (journals.Item, bool) {
	for _, it := range e.Items {
		if it.LedgerID == ledgerID && it.Side == side {
			return it, true
		}
	}
	return journals.Item{}, false
}

func TestDonationMigratesOnce(t *testing.T) {
	f := newFixture(t)
	f.addBooking(1, "1000", "100", modeCash, typeGeneral, map[string]string{donations.MetaDonorName: "Meera", donations.MetaOccasion: "Shivaratri"})
	ctx := context.Background()

	res, err := f.migrator.Donations().Migrate(ctx, 1)
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, "donation", res.Module)
	require.Regexp(t, `^REC2502\d{5}$`, res.Number)

	entries := f.book.Entries()
	require.Len(t, entries, 1)
	e := entries[0]
	require.Equal(t, journals.KindReceipt, e.Kind)
	require.Equal(t, "1000.00", e.DrTotal.StringFixed(2))
	require.Equal(t, "1000.00", e.CrTotal.StringFixed(2))
	require.Equal(t, journals.SourceDonation, e.Source.Module)
	require.EqualValues(t, 1, e.Source.ID)
	require.Contains(t, e.Narration, "Meera")
	require.Contains(t, e.Narration, "Shivaratri")

	cashLine, ok := itemFor(e, f.cash, journals.Debit)
	require.True(t, ok)
	require.Equal(t, "900.00", cashLine.Amount.StringFixed(2))

	incomes := f.book.LedgersInGroup(ledgers.GroupIncomes)
	var allIncomes ledgers.Ledger
	for _, l := range incomes {
		if l.Name == ledgers.LedgerAllIncomes {
			allIncomes = l
		}
	}
	require.NotZero(t, allIncomes.ID)
	credit, ok := itemFor(e, allIncomes.ID, journals.Credit)
	require.True(t, ok)
	require.Equal(t, "1000.00", credit.Amount.StringFixed(2))

	expenses := f.book.LedgersInGroup(ledgers.GroupExpenses)
	var discountAllowed int64
	for _, l := range expenses {
		if l.Name == ledgers.LedgerDiscountAllowed {
			discountAllowed = l.ID
		}
	}
	disc, ok := itemFor(e, discountAllowed, journals.Debit)
	require.True(t, ok)
	require.True(t, disc.IsDiscount)

	b := f.src.booking(1)
	require.True(t, b.Migrated)
	require.Equal(t, e.ID, *b.EntryID)

	again, err := f.migrator.Donations().Migrate(ctx, 1)
	require.ErrorIs(t, err, shared.ErrAlreadyMigrated)
	require.False(t, again.Success)
	require.Equal(t, "AlreadyMigrated", again.Error)
	require.False(t, again.Retryable)
	require.Len(t, f.book.Entries(), 1)
}

func TestDonationTypeLedgerIsUsed(t *testing.T) {
	f := newFixture(t)
	f.addBooking(2, "501", "0", modeCash, typeAnnadana, nil)

	res, err := f.migrator.Donations().Migrate(context.Background(), 2)
	require.NoError(t, err)
	e := f.book.Entries()[0]
	require.Equal(t, res.EntryID, e.ID)
	_, ok := itemFor(e, f.annadana, journals.Credit)
	require.True(t, ok)
	require.Len(t, e.Items, 2)
	for _, l := range f.book.LedgersInGroup(ledgers.GroupIncomes) {
		require.NotEqual(t, ledgers.LedgerAllIncomes, l.Name)
	}
}

func TestDonationMissingPaymentLedgerRollsBack(t *testing.T) {
	f := newFixture(t)
	f.addBooking(3, "250", "0", modeUnmapped, typeGeneral, nil)

	res, err := f.migrator.Donations().Migrate(context.Background(), 3)
	require.ErrorIs(t, err, shared.ErrMappingNotFound)
	require.False(t, res.Success)
	require.Equal(t, "MissingLedgerMapping", res.Error)
	require.True(t, res.Retryable)

	var merr *integration.MigrationError
	require.True(t, errors.As(err, &merr))
	require.EqualValues(t, 3, merr.SourceID)

	require.False(t, f.src.booking(3).Migrated)
	require.Empty(t, f.book.Entries())
	// The All Incomes ledger provisioned before the failure is rolled back too.
	for _, l := range f.book.LedgersInGroup(ledgers.GroupIncomes) {
		require.NotEqual(t, ledgers.LedgerAllIncomes, l.Name)
	}
}

func TestDonationFlagFailureDiscardsEntry(t *testing.T) {
	f := newFixture(t)
	f.addBooking(4, "100", "0", modeCash, typeGeneral, nil)
	f.src.failMark = errors.New("connection reset")

	res, err := f.migrator.Donations().Migrate(context.Background(), 4)
	require.Error(t, err)
	require.Equal(t, string(shared.KindPersistence), res.Error)
	require.Empty(t, f.book.Entries())
	require.False(t, f.src.booking(4).Migrated)

	f.src.failMark = nil
	res, err = f.migrator.Donations().Migrate(context.Background(), 4)
	require.NoError(t, err)
	require.True(t, res.Success)
}

func TestDonationRejectsUnknownMeta(t *testing.T) {
	f := newFixture(t)
	f.addBooking(5, "100", "0", modeCash, typeGeneral, map[string]string{"gotra": "Bharadwaja"})

	res, err := f.migrator.Donations().Migrate(context.Background(), 5)
	require.ErrorIs(t, err, shared.ErrValidation)
	require.False(t, res.Retryable)
	require.Empty(t, f.book.Entries())
}

func TestDonationOutsideFiscalYear(t *testing.T) {
	f := newFixture(t)
	f.addBooking(6, "100", "0", modeCash, typeGeneral, nil)
	b := f.src.bookings[6]
	b.Date = time.Date(2024, time.December, 31, 0, 0, 0, 0, time.UTC)
	f.src.bookings[6] = b

	res, err := f.migrator.Donations().Migrate(context.Background(), 6)
	require.ErrorIs(t, err, shared.ErrNoFiscalYear)
	require.True(t, res.Retryable)
}

func TestConcurrentFirstDonationsShareAllIncomes(t *testing.T) {
	f := newFixture(t)
	for id := int64(1); id <= 8; id++ {
		f.addBooking(id, "10", "0", modeCash, typeGeneral, nil)
	}
	errs := make([]error, 8)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.migrator.Donations().Migrate(context.Background(), int64(i+1))
		}()
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	count := 0
	for _, l := range f.book.LedgersInGroup(ledgers.GroupIncomes) {
		if l.Name == ledgers.LedgerAllIncomes {
			count++
		}
	}
	require.Equal(t, 1, count)
	require.Len(t, f.book.Entries(), 8)
}

func TestGoodsInvoiceBooksStock(t *testing.T) {
	f := newFixture(t)
	grn := int64(90)
	f.src.invoices[20] = ap.Invoice{
		ID:           20,
		Number:       "PI-20",
		SupplierName: "Annapurna Traders",
		GRNID:        &grn,
		Date:         feb,
		Subtotal:     dec("1050"),
		TaxAmount:    dec("52.50"),
		Total:        dec("1102.50"),
		Status:       ap.StatusPosted,
		CreatedBy:    3,
		Lines: []ap.InvoiceLine{
			{ProductLedgerID: &f.rice, Description: "Sona masoori", Quantity: dec("20"), UnitPrice: dec("50"), Amount: dec("1000")},
			{Description: "Freight", Quantity: dec("1"), UnitPrice: dec("50"), Amount: dec("50")},
		},
	}

	res, err := f.migrator.PurchaseInvoices().Migrate(context.Background(), 20)
	require.NoError(t, err)
	require.Regexp(t, `^IVJ`, res.Number)

	e := f.book.Entries()[0]
	require.Equal(t, journals.KindInventoryJournal, e.Kind)
	require.Equal(t, "1102.50", e.DrTotal.StringFixed(2))
	stock, ok := itemFor(e, f.rice, journals.Debit)
	require.True(t, ok)
	require.True(t, stock.Quantity.Decimal.Equal(dec("20")))
	freight, ok := itemFor(e, f.expense, journals.Debit)
	require.True(t, ok)
	require.Equal(t, "50.00", freight.Amount.StringFixed(2))
	_, ok = itemFor(e, f.tax, journals.Debit)
	require.True(t, ok)

	suppliers := f.book.LedgersInGroup(ledgers.GroupCurrentLiabilities)
	require.Len(t, suppliers, 1)
	require.Equal(t, "Annapurna Traders", suppliers[0].Name)
	require.Equal(t, "0001", suppliers[0].RightCode)

	pos := f.book.Position(f.rice)
	require.True(t, pos.Quantity.Equal(dec("20")))
	require.True(t, f.src.invoice(20).Migrated)
}

func TestExpenseInvoiceNeedsMapping(t *testing.T) {
	f := newFixture(t)
	delete(f.src.accounts, mappings.ModuleAP+"/"+mappings.KeyInvoiceExpense)
	f.src.invoices[21] = ap.Invoice{ID: 21, Number: "PI-21", SupplierName: "Electric Co", Date: feb, Subtotal: dec("300"), Total: dec("300"), Status: ap.StatusPaid}

	res, err := f.migrator.PurchaseInvoices().Migrate(context.Background(), 21)
	require.ErrorIs(t, err, shared.ErrMappingNotFound)
	require.Equal(t, "MissingLedgerMapping", res.Error)
	require.Empty(t, f.book.LedgersInGroup(ledgers.GroupCurrentLiabilities))
}

func TestInvoiceWithDiscountBalances(t *testing.T) {
	f := newFixture(t)
	f.src.invoices[22] = ap.Invoice{ID: 22, Number: "PI-22", SupplierName: "Florist", Date: feb,
		Subtotal: dec("400"), Discount: dec("40"), Total: dec("360"), Status: ap.StatusPosted}

	_, err := f.migrator.PurchaseInvoices().Migrate(context.Background(), 22)
	require.NoError(t, err)
	e := f.book.Entries()[0]
	require.Equal(t, journals.KindJournal, e.Kind)
	require.Equal(t, "400.00", e.DrTotal.StringFixed(2))
	require.Equal(t, "400.00", e.CrTotal.StringFixed(2))
	_, ok := itemFor(e, f.discount, journals.Credit)
	require.True(t, ok)
}

func TestDraftInvoiceIsNotPosted(t *testing.T) {
	f := newFixture(t)
	f.src.invoices[23] = ap.Invoice{ID: 23, Number: "PI-23", SupplierName: "X", Date: feb, Subtotal: dec("1"), Total: dec("1"), Status: ap.StatusDraft}
	_, err := f.migrator.PurchaseInvoices().Migrate(context.Background(), 23)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestPurchasePaymentReusesSupplierLedger(t *testing.T) {
	f := newFixture(t)
	f.src.invoices[24] = ap.Invoice{ID: 24, Number: "PI-24", SupplierName: "Ganga Oils", Date: feb, Subtotal: dec("800"), Total: dec("800"), Status: ap.StatusPosted}
	f.src.payments[30] = ap.Payment{ID: 30, Number: "PP-30", SupplierName: "ganga oils", Amount: dec("800"), PaidAt: feb, PaymentModeID: modeCash, CreatedBy: 3}
	ctx := context.Background()

	_, err := f.migrator.PurchaseInvoices().Migrate(ctx, 24)
	require.NoError(t, err)
	res, err := f.migrator.PurchasePayments().Migrate(ctx, 30)
	require.NoError(t, err)
	require.Regexp(t, `^PAY`, res.Number)

	suppliers := f.book.LedgersInGroup(ledgers.GroupCurrentLiabilities)
	require.Len(t, suppliers, 1)
	e := f.book.Entries()[1]
	_, ok := itemFor(e, suppliers[0].ID, journals.Debit)
	require.True(t, ok)
	_, ok = itemFor(e, f.cash, journals.Credit)
	require.True(t, ok)
	require.True(t, f.src.payment(30).Migrated)
}

func TestRetryAllIsolatesFailures(t *testing.T) {
	f := newFixture(t)
	f.addBooking(1, "100", "0", modeCash, typeGeneral, nil)
	f.addBooking(2, "200", "0", modeUnmapped, typeGeneral, nil)
	f.addBooking(3, "300", "0", modeCash, typeAnnadana, nil)
	f.src.payments[40] = ap.Payment{ID: 40, Number: "PP-40", SupplierName: "Ganga Oils", Amount: dec("75"), PaidAt: feb, PaymentModeID: modeCash}
	f.migrator.WithWorkers(3)

	results, err := f.migrator.RetryAll(context.Background(), integration.RetryFilter{})
	require.NoError(t, err)
	require.Len(t, results, 4)
	migrated, skipped, failed := integration.Summarize(results)
	require.Equal(t, 3, migrated)
	require.Equal(t, 0, skipped)
	require.Equal(t, 1, failed)
	for _, r := range results {
		if r.SourceID == 2 {
			require.Equal(t, "MissingLedgerMapping", r.Error)
		}
	}
	require.Len(t, f.book.Entries(), 3)

	again, err := f.migrator.RetryAll(context.Background(), integration.RetryFilter{})
	require.NoError(t, err)
	require.Len(t, again, 1)
	require.EqualValues(t, 2, again[0].SourceID)
}

func TestAdapterLookup(t *testing.T) {
	f := newFixture(t)
	a, err := f.migrator.Adapter("purchase_payment")
	require.NoError(t, err)
	require.Equal(t, "purchase_payment", a.Module())
	_, err = f.migrator.Adapter("sales")
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestMigrateByModuleName(t *testing.T) {
	f := newFixture(t)
	f.addBooking(31, "250", "0", modeCash, typeGeneral, nil)

	res, err := f.migrator.Migrate(context.Background(), "donation", 31)
	require.NoError(t, err)
	require.True(t, res.Success)

	res, err = f.migrator.Migrate(context.Background(), "sales", 31)
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Equal(t, string(shared.KindValidation), res.Error)
}

package integration

import (
	"context"
	"fmt"

	"github.com/mandir-erp/mandir-ledger/internal/accounting/journals"
	"github.com/mandir-erp/mandir-ledger/internal/accounting/ledgers"
	"github.com/mandir-erp/mandir-ledger/internal/accounting/mappings"
	"github.com/mandir-erp/mandir-ledger/internal/accounting/shared"
	"github.com/mandir-erp/mandir-ledger/internal/donations"
)

// hook turns one locked source record into a posting and records the result on it.
type hook interface {
	module() journals.SourceModule
	build(ctx context.Context, tx TxScope, id int64) (journals.PostInput, error)
	mark(ctx context.Context, tx TxScope, id, entryID int64) error
}

func cashLedger(ctx context.Context, tx TxScope, paymentModeID int64) (int64, error) {
	mode, err := tx.Mappings().GetPaymentMode(ctx, paymentModeID)
	if err != nil {
		return 0, err
	}
	return mode.LedgerFor()
}

func mapped(ctx context.Context, tx TxScope, key string) (int64, error) {
	m, err := tx.Mappings().Get(ctx, mappings.ModuleAP, key)
	if err != nil {
		return 0, err
	}
	return m.LedgerID, nil
}

type donationHook struct{}

func (donationHook) module() journals.SourceModule { return journals.SourceDonation }

// build posts a receipt: cash debit for what was collected, income credit for the
// gross amount and a Discount Allowed debit for the difference.
func (donationHook) build(ctx context.Context, tx TxScope, id int64) (journals.PostInput, error) {
	b, err := tx.Donations().LockBooking(ctx, id)
	if err != nil {
		return journals.PostInput{}, err
	}
	if b.Migrated {
		return journals.PostInput{}, fmt.Errorf("booking %s: %w", b.Number, shared.ErrAlreadyMigrated)
	}
	if b.Status != donations.StatusConfirmed {
		return journals.PostInput{}, fmt.Errorf("%w: booking %s is %s", shared.ErrValidation, b.Number, b.Status)
	}
	meta, err := donations.ParseMeta(b.RawMeta)
	if err != nil {
		return journals.PostInput{}, err
	}
	dtype, err := tx.Donations().DonationType(ctx, b.DonationTypeID)
	if err != nil {
		return journals.PostInput{}, err
	}
	var income int64
	if dtype.LedgerID != nil {
		income = *dtype.LedgerID
	} else if income, err = ledgers.ResolveOrCreate(ctx, tx.Ledgers(), ledgers.GroupIncomes, ledgers.LedgerAllIncomes); err != nil {
		return journals.PostInput{}, err
	}
	cash, err := cashLedger(ctx, tx, b.PaymentModeID)
	if err != nil {
		return journals.PostInput{}, err
	}
	var discount *journals.LineInput
	if positive(b.Discount) {
		ledgerID, err := ledgers.ResolveOrCreate(ctx, tx.Ledgers(), ledgers.GroupExpenses, ledgers.LedgerDiscountAllowed)
		if err != nil {
			return journals.PostInput{}, err
		}
		discount = &journals.LineInput{LedgerID: ledgerID, Amount: shared.Round2(b.Discount), Details: "Discount on " + b.Number}
	}
	lines, err := journals.BuildReceipt(cash, []journals.LineInput{{LedgerID: income, Amount: shared.Round2(b.Amount), Details: dtype.Name}}, discount)
	if err != nil {
		return journals.PostInput{}, err
	}
	return journals.PostInput{
		Kind:      journals.KindReceipt,
		Date:      b.Date,
		FundID:    b.FundID,
		Narration: donationNarration(b, dtype.Name, meta),
		Payment:   donationPayment(b),
		Lines:     lines,
		Source:    &journals.SourceRef{Module: journals.SourceDonation, ID: b.ID},
		CreatedBy: b.CreatedBy,
	}, nil
}

func (donationHook) mark(ctx context.Context, tx TxScope, id, entryID int64) error {
	return tx.Donations().MarkMigrated(ctx, id, entryID)
}

type invoiceHook struct{}

func (invoiceHook) module() journals.SourceModule { return journals.SourcePurchaseInvoice }

// build debits stock or the mapped expense ledger plus tax, credits the supplier and,
// when the supplier allowed a discount, credits the mapped discount ledger.
func (invoiceHook) build(ctx context.Context, tx TxScope, id int64) (journals.PostInput, error) {
	inv, err := tx.Purchases().LockInvoice(ctx, id)
	if err != nil {
		return journals.PostInput{}, err
	}
	if inv.Migrated {
		return journals.PostInput{}, fmt.Errorf("invoice %s: %w", inv.Number, shared.ErrAlreadyMigrated)
	}
	if !inv.Status.Postable() {
		return journals.PostInput{}, fmt.Errorf("%w: invoice %s is %s", shared.ErrValidation, inv.Number, inv.Status)
	}
	if err := inv.CheckTotals(); err != nil {
		return journals.PostInput{}, err
	}
	supplier, err := ledgers.ResolveOrCreate(ctx, tx.Ledgers(), ledgers.GroupCurrentLiabilities, inv.SupplierName)
	if err != nil {
		return journals.PostInput{}, err
	}

	kind := journals.KindJournal
	var lines []journals.LineInput
	expenseAmount := shared.Round2(inv.Subtotal)
	if inv.Goods() {
		kind = journals.KindInventoryJournal
		for _, l := range inv.Lines {
			if l.ProductLedgerID == nil {
				continue
			}
			line := stockLine(*l.ProductLedgerID, l)
			lines = append(lines, line)
			expenseAmount = expenseAmount.Sub(line.Amount)
		}
	}
	if positive(expenseAmount) {
		expense, err := mapped(ctx, tx, mappings.KeyInvoiceExpense)
		if err != nil {
			return journals.PostInput{}, err
		}
		lines = append(lines, journals.LineInput{LedgerID: expense, Amount: expenseAmount, Side: journals.Debit, Details: inv.Number})
	}
	if positive(inv.TaxAmount) {
		tax, err := mapped(ctx, tx, mappings.KeyInvoiceTax)
		if err != nil {
			return journals.PostInput{}, err
		}
		lines = append(lines, journals.LineInput{LedgerID: tax, Amount: shared.Round2(inv.TaxAmount), Side: journals.Debit, Details: "Input tax " + inv.Number})
	}
	if positive(inv.Discount) {
		disc, err := mapped(ctx, tx, mappings.KeyInvoiceDiscount)
		if err != nil {
			return journals.PostInput{}, err
		}
		lines = append(lines, journals.LineInput{LedgerID: disc, Amount: shared.Round2(inv.Discount), Side: journals.Credit, Details: "Discount on " + inv.Number})
	}
	lines = append(lines, journals.LineInput{LedgerID: supplier, Amount: shared.Round2(inv.Total), Side: journals.Credit, Details: inv.Number})

	return journals.PostInput{
		Kind:      kind,
		Date:      inv.Date,
		Narration: invoiceNarration(inv),
		Lines:     lines,
		Source:    &journals.SourceRef{Module: journals.SourcePurchaseInvoice, ID: inv.ID},
		CreatedBy: inv.CreatedBy,
	}, nil
}

func (invoiceHook) mark(ctx context.Context, tx TxScope, id, entryID int64) error {
	return tx.Purchases().MarkInvoiceMigrated(ctx, id, entryID)
}

type paymentHook struct{}

func (paymentHook) module() journals.SourceModule { return journals.SourcePurchasePayment }

func (paymentHook) build(ctx context.Context, tx TxScope, id int64) (journals.PostInput, error) {
	p, err := tx.Purchases().LockPayment(ctx, id)
	if err != nil {
		return journals.PostInput{}, err
	}
	if p.Migrated {
		return journals.PostInput{}, fmt.Errorf("payment %s: %w", p.Number, shared.ErrAlreadyMigrated)
	}
	supplier, err := ledgers.ResolveOrCreate(ctx, tx.Ledgers(), ledgers.GroupCurrentLiabilities, p.SupplierName)
	if err != nil {
		return journals.PostInput{}, err
	}
	cash, err := cashLedger(ctx, tx, p.PaymentModeID)
	if err != nil {
		return journals.PostInput{}, err
	}
	lines, err := journals.BuildPayment(cash, []journals.LineInput{{LedgerID: supplier, Amount: shared.Round2(p.Amount), Details: p.Number}})
	if err != nil {
		return journals.PostInput{}, err
	}
	return journals.PostInput{
		Kind:      journals.KindPayment,
		Date:      p.PaidAt,
		Narration: paymentNarration(p),
		Payment:   journals.PaymentMeta{ChequeNo: p.ChequeNo, TransactionRef: p.TransactionRef},
		Lines:     lines,
		Source:    &journals.SourceRef{Module: journals.SourcePurchasePayment, ID: p.ID},
		CreatedBy: p.CreatedBy,
	}, nil
}

func (paymentHook) mark(ctx context.Context, tx TxScope, id, entryID int64) error {
	return tx.Purchases().MarkPaymentMigrated(ctx, id, entryID)
}

var (
	_ hook = donationHook{}
	_ hook = invoiceHook{}
	_ hook = paymentHook{}
)

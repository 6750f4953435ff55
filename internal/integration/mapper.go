package integration

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mandir-erp/mandir-ledger/internal/accounting/journals"
	"github.com/mandir-erp/mandir-ledger/internal/accounting/shared"
	"github.com/mandir-erp/mandir-ledger/internal/ap"
	"github.com/mandir-erp/mandir-ledger/internal/donations"
)

func positive(v decimal.Decimal) bool {
	return shared.Round2(v).IsPositive()
}

func donationNarration(b donations.Booking, typeName string, meta donations.Meta) string {
	parts := []string{fmt.Sprintf("Donation %s", b.Number)}
	if typeName != "" {
		parts = append(parts, typeName)
	}
	parts = append(parts, "from "+meta.Donor())
	if meta.Occasion != "" {
		parts = append(parts, "for "+meta.Occasion)
	}
	return strings.Join(parts, " ")
}

func donationPayment(b donations.Booking) journals.PaymentMeta {
	return journals.PaymentMeta{
		ChequeNo:       b.ChequeNo,
		ChequeDate:     b.ChequeDate,
		BankName:       b.BankName,
		TransactionRef: b.TransactionRef,
	}
}

func invoiceNarration(inv ap.Invoice) string {
	return fmt.Sprintf("Purchase invoice %s from %s", inv.Number, inv.SupplierName)
}

func paymentNarration(p ap.Payment) string {
	n := fmt.Sprintf("Purchase payment %s to %s", p.Number, p.SupplierName)
	if p.Note != "" {
		n += ": " + p.Note
	}
	return n
}

// stockLine debits an inventory ledger for a received goods line.
func stockLine(ledgerID int64, l ap.InvoiceLine) journals.LineInput {
	return journals.LineInput{
		LedgerID:  ledgerID,
		Amount:    shared.Round2(l.Quantity.Mul(l.UnitPrice)),
		Side:      journals.Debit,
		Details:   l.Description,
		Quantity:  decimal.NewNullDecimal(l.Quantity),
		UnitPrice: decimal.NewNullDecimal(l.UnitPrice),
	}
}

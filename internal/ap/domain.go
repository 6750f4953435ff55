package ap

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mandir-erp/mandir-ledger/internal/accounting/shared"
)

// InvoiceStatus enumerates purchase invoice statuses.
type InvoiceStatus string

const (
	StatusDraft  InvoiceStatus = "DRAFT"
	StatusPosted InvoiceStatus = "POSTED"
	StatusPaid   InvoiceStatus = "PAID"
	StatusVoid   InvoiceStatus = "VOID"
)

// Postable reports whether an invoice in this status belongs in the ledger.
func (s InvoiceStatus) Postable() bool {
	return s == StatusPosted || s == StatusPaid
}

// Invoice is a supplier bill.
type Invoice struct {
	ID           int64
	Number       string
	SupplierID   int64
	SupplierName string
	GRNID        *int64
	Date         time.Time
	Subtotal     decimal.Decimal
	TaxAmount    decimal.Decimal
	Discount     decimal.Decimal
	Total        decimal.Decimal
	Status       InvoiceStatus
	CreatedBy    int64
	Migrated     bool
	EntryID      *int64
	Lines        []InvoiceLine
}

// InvoiceLine is one billed line. ProductLedgerID is set for goods received into stock.
type InvoiceLine struct {
	ID              int64
	ProductLedgerID *int64
	Description     string
	Quantity        decimal.Decimal
	UnitPrice       decimal.Decimal
	Amount          decimal.Decimal
}

// Goods reports whether the invoice carries stock lines.
func (inv Invoice) Goods() bool {
	if inv.GRNID == nil {
		return false
	}
	for _, l := range inv.Lines {
		if l.ProductLedgerID != nil {
			return true
		}
	}
	return false
}

// CheckTotals verifies that the header agrees with its lines.
func (inv Invoice) CheckTotals() error {
	if !inv.Total.IsPositive() {
		return fmt.Errorf("%w: invoice %s total must be positive", shared.ErrInvalidAmount, inv.Number)
	}
	want := shared.Round2(inv.Subtotal.Add(inv.TaxAmount).Sub(inv.Discount))
	if !want.Equal(shared.Round2(inv.Total)) {
		return fmt.Errorf("%w: invoice %s total %s != subtotal+tax-discount %s", shared.ErrUnbalanced, inv.Number, inv.Total.StringFixed(2), want.StringFixed(2))
	}
	if len(inv.Lines) == 0 {
		return nil
	}
	sum := decimal.Zero
	for _, l := range inv.Lines {
		sum = sum.Add(l.Amount)
	}
	if !shared.Round2(sum).Equal(shared.Round2(inv.Subtotal)) {
		return fmt.Errorf("%w: invoice %s lines %s != subtotal %s", shared.ErrUnbalanced, inv.Number, sum.StringFixed(2), inv.Subtotal.StringFixed(2))
	}
	return nil
}

// Payment settles supplier balances.
type Payment struct {
	ID             int64
	Number         string
	SupplierID     int64
	SupplierName   string
	InvoiceID      *int64
	Amount         decimal.Decimal
	PaidAt         time.Time
	PaymentModeID  int64
	ChequeNo       string
	TransactionRef string
	Note           string
	CreatedBy      int64
	Migrated       bool
	EntryID        *int64
}

// ListFilter narrows invoice and payment listings.
type ListFilter struct {
	SupplierID int64
	Migrated   *bool
	From       time.Time
	To         time.Time
	Limit      int
	Offset     int
}

// PendingFilter narrows the retry scan.
type PendingFilter struct {
	From  time.Time
	To    time.Time
	Limit int
}

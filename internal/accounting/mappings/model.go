package mappings

import (
	"fmt"
	"time"

	"github.com/mandir-erp/mandir-ledger/internal/accounting/shared"
)

// AccountMapping links integration keys to ledger accounts.
type AccountMapping struct {
	Module    string
	Key       string
	LedgerID  int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PaymentMode is a configured way of paying. LedgerID is nil until an accountant maps it.
type PaymentMode struct {
	ID       int64
	Name     string
	LedgerID *int64
}

// Fund tags entries with a top-level accounting bucket.
type Fund struct {
	ID        int64
	Name      string
	IsDefault bool
}

// Mapping keys used by the purchase adapters.
const (
	ModuleAP           = "AP"
	KeyInvoiceExpense  = "ap.invoice.expense"
	KeyInvoiceTax      = "ap.invoice.tax"
	KeyInvoiceDiscount = "ap.invoice.discount"
)

// LedgerFor returns the mode's ledger or MissingLedgerMapping.
func (m PaymentMode) LedgerFor() (int64, error) {
	if m.LedgerID == nil || *m.LedgerID == 0 {
		return 0, fmt.Errorf("payment mode %q has no ledger: %w", m.Name, shared.ErrMappingNotFound)
	}
	return *m.LedgerID, nil
}

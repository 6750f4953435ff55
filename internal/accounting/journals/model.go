package journals

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the debit/credit indicator of a line.
type Side string

const (
	Debit  Side = "D"
	Credit Side = "C"
)

func (s Side) Valid() bool { return s == Debit || s == Credit }

// SourceModule identifies which module produced a system generated entry.
type SourceModule int16

const (
	SourceSales           SourceModule = 1
	SourceDonation        SourceModule = 2
	SourcePurchaseInvoice SourceModule = 3
	SourcePurchasePayment SourceModule = 4
	SourceApproval        SourceModule = 5
	SourceOpeningStock    SourceModule = 6
)

func (m SourceModule) String() string {
	switch m {
	case SourceSales:
		return "sales"
	case SourceDonation:
		return "donation"
	case SourcePurchaseInvoice:
		return "purchase_invoice"
	case SourcePurchasePayment:
		return "purchase_payment"
	case SourceApproval:
		return "approval"
	case SourceOpeningStock:
		return "opening_stock"
	default:
		return "unknown"
	}
}

// SourceRef is the inv_type/inv_id pair linking an entry to its origin.
type SourceRef struct {
	Module SourceModule
	ID     int64
}

// PaymentMeta carries instrument details printed on vouchers.
type PaymentMeta struct {
	ChequeNo       string
	ChequeDate     *time.Time
	BankName       string
	TransactionRef string
}

// Entry is a posted journal header with its lines.
type Entry struct {
	ID        int64
	Kind      Kind
	Number    string
	Date      time.Time
	DrTotal   decimal.Decimal
	CrTotal   decimal.Decimal
	Narration string
	FundID    int64
	Payment   PaymentMeta
	Source    *SourceRef
	CreatedBy int64
	CreatedAt time.Time
	UpdatedAt time.Time
	Items     []Item
}

// IsSystemGenerated reports whether a module or approval produced the entry.
// Such entries never change through update or delete.
func (e Entry) IsSystemGenerated() bool {
	return e.Source != nil && e.Source.ID != 0
}

// Item is one debit or credit line.
type Item struct {
	ID         int64
	EntryID    int64
	LedgerID   int64
	Amount     decimal.Decimal
	Side       Side
	Details    string
	Quantity   decimal.NullDecimal
	UnitPrice  decimal.NullDecimal
	IsDiscount bool
}

// IsStock reports whether the line moves inventory quantity.
func (i Item) IsStock() bool {
	return i.Quantity.Valid
}

package reports

import (
	"time"

	"github.com/shopspring/decimal"
)

// Filter narrows the transaction report. Zero values mean no restriction.
type Filter struct {
	From           time.Time
	To             time.Time
	DonationTypeID int64
	PaymentModeID  int64
}

// Query is a Filter with a resolved date range and role scope. ActorID 0 reads
// every record.
type Query struct {
	From           time.Time
	To             time.Time
	DonationTypeID int64
	PaymentModeID  int64
	ActorID        int64
}

// TransactionRow is one confirmed booking with its ledger link.
type TransactionRow struct {
	BookingID    int64           `json:"booking_id"`
	Number       string          `json:"number"`
	Date         time.Time       `json:"date"`
	DonationType string          `json:"donation_type"`
	PaymentMode  string          `json:"payment_mode"`
	Occasion     string          `json:"occasion,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
	Discount     decimal.Decimal `json:"discount"`
	Paid         decimal.Decimal `json:"paid"`
	Outstanding  decimal.Decimal `json:"outstanding"`
	EntryNumber  string          `json:"entry_number,omitempty"`
	CreatedBy    int64           `json:"created_by"`
	AssignedTo   *int64          `json:"assigned_to,omitempty"`
}

// Summary totals a set of rows. Outstanding is amount minus paid.
type Summary struct {
	Count       int             `json:"count"`
	Amount      decimal.Decimal `json:"amount"`
	Discount    decimal.Decimal `json:"discount"`
	Paid        decimal.Decimal `json:"paid"`
	Outstanding decimal.Decimal `json:"outstanding"`
}

// Breakdown is a per-dimension subtotal.
type Breakdown struct {
	Key    string          `json:"key"`
	Count  int             `json:"count"`
	Amount decimal.Decimal `json:"amount"`
	Paid   decimal.Decimal `json:"paid"`
}

// InventoryCredit sums the credit side of an inventory ledger in the window.
type InventoryCredit struct {
	LedgerID int64           `json:"ledger_id"`
	Ledger   string          `json:"ledger"`
	Quantity decimal.Decimal `json:"quantity"`
	Amount   decimal.Decimal `json:"amount"`
}

type TransactionReport struct {
	From              time.Time         `json:"from"`
	To                time.Time         `json:"to"`
	Rows              []TransactionRow  `json:"rows"`
	Summary           Summary           `json:"summary"`
	ByPaymentMode     []Breakdown       `json:"by_payment_mode"`
	ByDonationType    []Breakdown       `json:"by_donation_type"`
	ByOccasion        []Breakdown       `json:"by_occasion"`
	ByInventoryLedger []InventoryCredit `json:"by_inventory_ledger"`
}

// CashMovement is a cash/bank ledger's balance before a day and its flows on it.
type CashMovement struct {
	LedgerID int64
	Code     string
	Name     string
	Before   decimal.Decimal
	Debit    decimal.Decimal
	Credit   decimal.Decimal
}

// ClosingRow is one cash/bank ledger in the daily closing.
type ClosingRow struct {
	LedgerID int64           `json:"ledger_id,omitempty"`
	Code     string          `json:"code,omitempty"`
	Name     string          `json:"name"`
	Opening  decimal.Decimal `json:"opening"`
	Receipts decimal.Decimal `json:"receipts"`
	Payments decimal.Decimal `json:"payments"`
	Closing  decimal.Decimal `json:"closing"`
}

type DailyClosing struct {
	Date  time.Time    `json:"date"`
	Rows  []ClosingRow `json:"rows"`
	Total ClosingRow   `json:"total"`
}

// StatementLine is a posted item with the ledger balance after it. Balances are
// debit positive.
type StatementLine struct {
	EntryID   int64           `json:"entry_id"`
	Number    string          `json:"number"`
	Date      time.Time       `json:"date"`
	Narration string          `json:"narration"`
	Debit     decimal.Decimal `json:"debit"`
	Credit    decimal.Decimal `json:"credit"`
	Balance   decimal.Decimal `json:"balance"`
}

type Statement struct {
	LedgerID int64           `json:"ledger_id"`
	From     time.Time       `json:"from"`
	To       time.Time       `json:"to"`
	Opening  decimal.Decimal `json:"opening"`
	Lines    []StatementLine `json:"lines"`
	Debit    decimal.Decimal `json:"debit"`
	Credit   decimal.Decimal `json:"credit"`
	Closing  decimal.Decimal `json:"closing"`
}

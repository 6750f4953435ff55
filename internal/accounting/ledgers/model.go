package ledgers

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
)

// LedgerType distinguishes cash/bank ledgers from everything else.
type LedgerType int16

const (
	LedgerTypeGeneral  LedgerType = 0
	LedgerTypeCashBank LedgerType = 1
)

// Group is a chart of accounts node. Root groups carry ParentID 0.
type Group struct {
	ID        int64
	ParentID  int64
	Name      string
	Code      string
	CreatedAt time.Time
}

// Ledger is a postable account.
type Ledger struct {
	ID        int64
	GroupID   int64
	Name      string
	LeftCode  string
	RightCode string
	Type      LedgerType
	Inventory bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Code renders the full ledger code.
func (l Ledger) Code() string {
	return l.LeftCode + "-" + l.RightCode
}

// IsCashOrBank reports whether the ledger may act as a cash/bank endpoint.
func (l Ledger) IsCashOrBank() bool {
	return l.Type == LedgerTypeCashBank
}

// Well-known group codes used by adapters.
const (
	GroupCurrentAssets      = "1000"
	GroupInventory          = "1500"
	GroupCurrentLiabilities = "2000"
	GroupIncomes            = "8000"
	GroupExpenses           = "9000"
)

// Well-known ledger names.
const (
	LedgerAllIncomes       = "All Incomes"
	LedgerDiscountAllowed  = "Discount Allowed"
	LedgerPurchaseExpenses = "Purchase Expenses"
)

var wellKnownGroups = map[string]string{
	GroupCurrentAssets:      "Current Assets",
	GroupInventory:          "Inventory",
	GroupCurrentLiabilities: "Current Liabilities",
	GroupIncomes:            "Incomes",
	GroupExpenses:           "Expenses",
}

// WellKnownGroup returns the group auto-provisioned for code.
func WellKnownGroup(code string) (Group, bool) {
	name, ok := wellKnownGroups[code]
	if !ok {
		return Group{}, false
	}
	return Group{Name: name, Code: code}, true
}

var folder = cases.Fold()

// NameKey is the case-insensitive identity of a ledger name within its group.
func NameKey(name string) string {
	return folder.String(strings.Join(strings.Fields(name), " "))
}

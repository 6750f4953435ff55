package donations

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mandir-erp/mandir-ledger/internal/accounting/shared"
)

// Status of a booking. Only confirmed bookings reach the ledger.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusConfirmed Status = "CONFIRMED"
	StatusCancelled Status = "CANCELLED"
)

// Booking is a donation receipt waiting to be posted.
type Booking struct {
	ID             int64
	Number         string
	Date           time.Time
	DonationTypeID int64
	PaymentModeID  int64
	FundID         int64
	Amount         decimal.Decimal
	Discount       decimal.Decimal
	Paid           decimal.Decimal
	Status         Status
	ChequeNo       string
	ChequeDate     *time.Time
	BankName       string
	TransactionRef string
	CreatedBy      int64
	AssignedTo     *int64
	Migrated       bool
	EntryID        *int64
	RawMeta        map[string]string
}

// Outstanding is what is still owed on the booking.
func (b Booking) Outstanding() decimal.Decimal {
	return shared.Round2(b.Amount.Sub(b.Discount).Sub(b.Paid))
}

// DonationType groups bookings and may name its own income ledger.
type DonationType struct {
	ID       int64
	Name     string
	LedgerID *int64
}

// Meta keys accepted on a donation booking.
const (
	MetaDonorName    = "donor_name"
	MetaPledgeAmount = "pledge_amount"
	MetaAnonymous    = "anonymous"
	MetaOccasion     = "occasion"
	MetaNakshatra    = "nakshatra"
)

var metaKeys = map[string]bool{
	MetaDonorName:    true,
	MetaPledgeAmount: true,
	MetaAnonymous:    true,
	MetaOccasion:     true,
	MetaNakshatra:    true,
}

// Meta is the typed view of booking_meta.
type Meta struct {
	DonorName    string
	PledgeAmount decimal.NullDecimal
	Anonymous    bool
	Occasion     string
	Nakshatra    string
}

// ParseMeta validates raw key/value pairs. Unknown keys are rejected.
func ParseMeta(raw map[string]string) (Meta, error) {
	var m Meta
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		value := strings.TrimSpace(raw[key])
		if !metaKeys[key] {
			return Meta{}, fmt.Errorf("%w: unknown booking meta key %q", shared.ErrValidation, key)
		}
		switch key {
		case MetaDonorName:
			m.DonorName = value
		case MetaOccasion:
			m.Occasion = value
		case MetaNakshatra:
			m.Nakshatra = value
		case MetaPledgeAmount:
			if value == "" {
				continue
			}
			d, err := decimal.NewFromString(value)
			if err != nil || d.IsNegative() {
				return Meta{}, fmt.Errorf("%w: pledge_amount %q", shared.ErrValidation, value)
			}
			m.PledgeAmount = decimal.NewNullDecimal(shared.Round2(d))
		case MetaAnonymous:
			if value == "" {
				continue
			}
			b, err := strconv.ParseBool(value)
			if err != nil {
				return Meta{}, fmt.Errorf("%w: anonymous %q", shared.ErrValidation, value)
			}
			m.Anonymous = b
		}
	}
	return m, nil
}

// Pairs renders m back to storage form, omitting empty values.
func (m Meta) Pairs() map[string]string {
	out := make(map[string]string)
	if m.DonorName != "" {
		out[MetaDonorName] = m.DonorName
	}
	if m.PledgeAmount.Valid {
		out[MetaPledgeAmount] = m.PledgeAmount.Decimal.StringFixed(2)
	}
	if m.Anonymous {
		out[MetaAnonymous] = "true"
	}
	if m.Occasion != "" {
		out[MetaOccasion] = m.Occasion
	}
	if m.Nakshatra != "" {
		out[MetaNakshatra] = m.Nakshatra
	}
	return out
}

// Donor is the name printed on the receipt.
func (m Meta) Donor() string {
	if m.Anonymous || m.DonorName == "" {
		return "Anonymous"
	}
	return m.DonorName
}

// PendingFilter narrows the retry scan.
type PendingFilter struct {
	From  time.Time
	To    time.Time
	Limit int
}

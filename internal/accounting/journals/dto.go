package journals

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mandir-erp/mandir-ledger/internal/accounting/shared"
)

// LineInput describes one line of a posting request.
type LineInput struct {
	LedgerID   int64
	Amount     decimal.Decimal
	Side       Side
	Details    string
	Quantity   decimal.NullDecimal
	UnitPrice  decimal.NullDecimal
	IsDiscount bool
}

// PostInput groups fields required to create an entry.
type PostInput struct {
	Kind      Kind
	Date      time.Time
	FundID    int64
	Narration string
	Payment   PaymentMeta
	Lines     []LineInput
	Source    *SourceRef
	CreatedBy int64
}

// UpdateInput replaces every line of a manual entry.
type UpdateInput struct {
	EntryID   int64
	Date      time.Time
	Narration string
	Payment   PaymentMeta
	Lines     []LineInput
	ActorID   int64
}

// DeleteInput wraps parameters for deletion.
type DeleteInput struct {
	EntryID int64
	ActorID int64
}

// ListFilter narrows List. Zero values do not filter.
type ListFilter struct {
	Kind            Kind
	From            time.Time
	To              time.Time
	LedgerID        int64
	SystemGenerated *bool
	CreatedBy       int64
	Limit           int
	Offset          int
}

// Totals are the debit and credit sums of a line set.
type Totals struct {
	Debit  decimal.Decimal
	Credit decimal.Decimal
}

// Normalize checks line shape and balance without touching storage.
func Normalize(kind Kind, lines []LineInput) ([]Item, Totals, error) {
	if !kind.Valid() {
		return nil, Totals{}, fmt.Errorf("%w: %d", shared.ErrInvalidKind, int(kind))
	}
	if len(lines) < 2 {
		return nil, Totals{}, shared.ErrTooFewLines
	}
	items := make([]Item, 0, len(lines))
	var totals Totals
	for idx, line := range lines {
		if line.LedgerID == 0 {
			return nil, Totals{}, fmt.Errorf("%w: line %d missing ledger", shared.ErrValidation, idx+1)
		}
		if !line.Side.Valid() {
			return nil, Totals{}, fmt.Errorf("%w: line %d side %q", shared.ErrValidation, idx+1, line.Side)
		}
		amount := shared.Round2(line.Amount)
		if !amount.IsPositive() {
			return nil, Totals{}, fmt.Errorf("line %d: %w", idx+1, shared.ErrInvalidAmount)
		}
		if line.Quantity.Valid != line.UnitPrice.Valid {
			return nil, Totals{}, fmt.Errorf("%w: line %d needs both quantity and unit price", shared.ErrValidation, idx+1)
		}
		if line.Quantity.Valid {
			if kind != KindInventoryJournal {
				return nil, Totals{}, fmt.Errorf("%w: line %d quantity only allowed on inventory journals", shared.ErrValidation, idx+1)
			}
			if !line.Quantity.Decimal.IsPositive() || line.UnitPrice.Decimal.IsNegative() {
				return nil, Totals{}, fmt.Errorf("%w: line %d quantity must be positive", shared.ErrValidation, idx+1)
			}
		}
		if line.IsDiscount && line.Side != Debit {
			return nil, Totals{}, fmt.Errorf("%w: line %d discount must be a debit", shared.ErrValidation, idx+1)
		}
		items = append(items, Item{
			LedgerID:   line.LedgerID,
			Amount:     amount,
			Side:       line.Side,
			Details:    strings.TrimSpace(line.Details),
			Quantity:   line.Quantity,
			UnitPrice:  line.UnitPrice,
			IsDiscount: line.IsDiscount,
		})
		if line.Side == Debit {
			totals.Debit = totals.Debit.Add(amount)
		} else {
			totals.Credit = totals.Credit.Add(amount)
		}
	}
	if !shared.Balanced(totals.Debit, totals.Credit) {
		return nil, Totals{}, fmt.Errorf("%w: debit %s credit %s", shared.ErrUnbalanced, totals.Debit.StringFixed(2), totals.Credit.StringFixed(2))
	}
	return items, totals, nil
}

// Total is the larger side, which is the voucher amount.
func (t Totals) Total() decimal.Decimal {
	if t.Debit.GreaterThan(t.Credit) {
		return t.Debit
	}
	return t.Credit
}

// BuildReceipt derives the cash/bank debit as credits minus discount.
func BuildReceipt(cashLedgerID int64, credits []LineInput, discount *LineInput) ([]LineInput, error) {
	total := decimal.Zero
	for _, c := range credits {
		c.Side = Credit
		total = total.Add(c.Amount)
	}
	lines := make([]LineInput, 0, len(credits)+2)
	cash := total
	if discount != nil && discount.Amount.IsPositive() {
		cash = cash.Sub(discount.Amount)
	}
	if !cash.IsPositive() {
		return nil, fmt.Errorf("receipt cash leg: %w", shared.ErrInvalidAmount)
	}
	lines = append(lines, LineInput{LedgerID: cashLedgerID, Amount: cash, Side: Debit})
	if discount != nil && discount.Amount.IsPositive() {
		d := *discount
		d.Side = Debit
		d.IsDiscount = true
		lines = append(lines, d)
	}
	for _, c := range credits {
		c.Side = Credit
		lines = append(lines, c)
	}
	return lines, nil
}

// BuildPayment derives the cash/bank credit as the sum of the debits.
func BuildPayment(cashLedgerID int64, debits []LineInput) ([]LineInput, error) {
	total := decimal.Zero
	lines := make([]LineInput, 0, len(debits)+1)
	for _, d := range debits {
		d.Side = Debit
		total = total.Add(d.Amount)
		lines = append(lines, d)
	}
	if !total.IsPositive() {
		return nil, fmt.Errorf("payment cash leg: %w", shared.ErrInvalidAmount)
	}
	return append(lines, LineInput{LedgerID: cashLedgerID, Amount: total, Side: Credit}), nil
}

// BuildContra moves amount from one cash/bank ledger to another.
func BuildContra(fromLedgerID, toLedgerID int64, amount decimal.Decimal) []LineInput {
	return []LineInput{
		{LedgerID: toLedgerID, Amount: amount, Side: Debit},
		{LedgerID: fromLedgerID, Amount: amount, Side: Credit},
	}
}

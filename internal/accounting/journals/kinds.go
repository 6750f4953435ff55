package journals

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mandir-erp/mandir-ledger/internal/accounting/ledgers"
	"github.com/mandir-erp/mandir-ledger/internal/accounting/shared"
)

// Kind is the entry type. Each kind owns its code prefix and its line rule.
type Kind int

const (
	KindReceipt          Kind = 1
	KindPayment          Kind = 2
	KindContra           Kind = 3
	KindJournal          Kind = 4
	KindCreditNote       Kind = 5
	KindDebitNote        Kind = 6
	KindInventoryJournal Kind = 7
)

type kindSpec struct {
	prefix string
	name   string
	rule   func(lines []Item, chart map[int64]ledgers.Ledger) error
}

var kinds = map[Kind]kindSpec{
	KindReceipt:          {prefix: "REC", name: "receipt", rule: receiptRule},
	KindPayment:          {prefix: "PAY", name: "payment", rule: paymentRule},
	KindContra:           {prefix: "CON", name: "contra", rule: contraRule},
	KindJournal:          {prefix: "JOR", name: "journal", rule: freeFormRule},
	KindCreditNote:       {prefix: "CRN", name: "credit_note", rule: freeFormRule},
	KindDebitNote:        {prefix: "DBN", name: "debit_note", rule: freeFormRule},
	KindInventoryJournal: {prefix: "IVJ", name: "inventory_journal", rule: inventoryRule},
}

// ParseKind validates an entry type id.
func ParseKind(id int) (Kind, error) {
	k := Kind(id)
	if _, ok := kinds[k]; !ok {
		return 0, fmt.Errorf("%w: %d", shared.ErrInvalidKind, id)
	}
	return k, nil
}

func (k Kind) Valid() bool {
	_, ok := kinds[k]
	return ok
}

// Prefix is the 3-letter code prefix.
func (k Kind) Prefix() string { return kinds[k].prefix }

func (k Kind) String() string {
	if spec, ok := kinds[k]; ok {
		return spec.name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

func receiptRule(lines []Item, chart map[int64]ledgers.Ledger) error {
	cashLegs, discountLegs := 0, 0
	for idx, line := range lines {
		if line.Side != Debit {
			continue
		}
		if line.IsDiscount {
			discountLegs++
			continue
		}
		if !chart[line.LedgerID].IsCashOrBank() {
			return fmt.Errorf("%w: receipt debit line %d must be cash or bank", shared.ErrInvalidLedgerType, idx+1)
		}
		cashLegs++
	}
	if cashLegs != 1 {
		return fmt.Errorf("%w: receipt needs exactly one cash or bank debit, got %d", shared.ErrInvalidLedgerType, cashLegs)
	}
	if discountLegs > 1 {
		return fmt.Errorf("%w: receipt allows one discount leg", shared.ErrValidation)
	}
	return nil
}

func paymentRule(lines []Item, chart map[int64]ledgers.Ledger) error {
	cashLegs := 0
	for idx, line := range lines {
		if line.Side != Credit {
			continue
		}
		if !chart[line.LedgerID].IsCashOrBank() {
			return fmt.Errorf("%w: payment credit line %d must be cash or bank", shared.ErrInvalidLedgerType, idx+1)
		}
		cashLegs++
	}
	if cashLegs != 1 {
		return fmt.Errorf("%w: payment needs exactly one cash or bank credit, got %d", shared.ErrInvalidLedgerType, cashLegs)
	}
	return nil
}

func contraRule(lines []Item, chart map[int64]ledgers.Ledger) error {
	if len(lines) != 2 {
		return fmt.Errorf("%w: contra needs exactly two lines", shared.ErrValidation)
	}
	for idx, line := range lines {
		if !chart[line.LedgerID].IsCashOrBank() {
			return fmt.Errorf("%w: contra line %d must be cash or bank", shared.ErrInvalidLedgerType, idx+1)
		}
	}
	if lines[0].Side == lines[1].Side {
		return fmt.Errorf("%w: contra needs one debit and one credit", shared.ErrValidation)
	}
	if lines[0].LedgerID == lines[1].LedgerID {
		return fmt.Errorf("%w: contra must move between two ledgers", shared.ErrValidation)
	}
	return nil
}

func freeFormRule([]Item, map[int64]ledgers.Ledger) error { return nil }

func inventoryRule(lines []Item, chart map[int64]ledgers.Ledger) error {
	for idx, line := range lines {
		iv := chart[line.LedgerID].Inventory
		if !line.IsStock() {
			if iv {
				return fmt.Errorf("%w: inventory line %d needs quantity and unit price", shared.ErrValidation, idx+1)
			}
			continue
		}
		if !iv {
			return fmt.Errorf("%w: line %d carries quantity on a non-inventory ledger", shared.ErrInvalidLedgerType, idx+1)
		}
		want := shared.Round2(line.Quantity.Decimal.Mul(line.UnitPrice.Decimal))
		if !line.Amount.Equal(want) {
			return fmt.Errorf("%w: line %d amount %s != quantity x unit price %s", shared.ErrValidation, idx+1, line.Amount.StringFixed(2), want.StringFixed(2))
		}
	}
	return nil
}

// stockDelta nets quantity per inventory ledger: debits receive stock, credits issue it.
func stockDelta(lines []Item) map[int64]decimal.Decimal {
	out := make(map[int64]decimal.Decimal)
	for _, line := range lines {
		if !line.IsStock() {
			continue
		}
		if line.Side == Debit {
			out[line.LedgerID] = out[line.LedgerID].Add(line.Quantity.Decimal)
		} else {
			out[line.LedgerID] = out[line.LedgerID].Sub(line.Quantity.Decimal)
		}
	}
	return out
}

// Package valuation derives inventory positions by folding stock lines.
// No stored balance is authoritative.
package valuation

import "github.com/shopspring/decimal"

// Movement is one stock line on an inventory ledger.
type Movement struct {
	LedgerID  int64
	EntryID   int64
	Debit     bool
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
}

// Position is the folded state of one ledger.
type Position struct {
	LedgerID int64           `json:"ledger_id"`
	Quantity decimal.Decimal `json:"quantity"`
	Value    decimal.Decimal `json:"value"`
}

// AverageCost is value/quantity when quantity is positive, else zero.
func (p Position) AverageCost() decimal.Decimal {
	if !p.Quantity.IsPositive() {
		return decimal.Zero
	}
	return p.Value.DivRound(p.Quantity, 4)
}

// Apply folds one movement into the position.
func (p Position) Apply(m Movement) Position {
	value := m.Quantity.Mul(m.UnitPrice)
	if m.Debit {
		p.Quantity = p.Quantity.Add(m.Quantity)
		p.Value = p.Value.Add(value)
		return p
	}
	p.Quantity = p.Quantity.Sub(m.Quantity)
	p.Value = p.Value.Sub(value)
	return p
}

// Fold computes the position of ledgerID, skipping movements of excludeEntry.
func Fold(ledgerID int64, movements []Movement, excludeEntry int64) Position {
	pos := Position{LedgerID: ledgerID}
	for _, m := range movements {
		if m.LedgerID != ledgerID || (excludeEntry != 0 && m.EntryID == excludeEntry) {
			continue
		}
		pos = pos.Apply(m)
	}
	return pos
}

// FoldAll groups movements by ledger.
func FoldAll(movements []Movement, excludeEntry int64) map[int64]Position {
	out := make(map[int64]Position)
	for _, m := range movements {
		if excludeEntry != 0 && m.EntryID == excludeEntry {
			continue
		}
		pos, ok := out[m.LedgerID]
		if !ok {
			pos = Position{LedgerID: m.LedgerID}
		}
		out[m.LedgerID] = pos.Apply(m)
	}
	return out
}

// Snapshot is the reporting view of a position.
type Snapshot struct {
	Position
	AverageCost decimal.Decimal `json:"average_cost"`
}

// NewSnapshot decorates a position with its average cost.
func NewSnapshot(p Position) Snapshot {
	return Snapshot{Position: p, AverageCost: p.AverageCost()}
}

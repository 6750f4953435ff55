package reports

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mandir-erp/mandir-ledger/internal/accounting/shared"
)

const noOccasion = "(none)"

// BuildTransactionReport folds rows into the summary and breakdowns. Every figure
// comes from the rows passed in.
func BuildTransactionReport(from, to time.Time, rows []TransactionRow, credits []InventoryCredit) TransactionReport {
	report := TransactionReport{
		From:              from,
		To:                to,
		Rows:              make([]TransactionRow, 0, len(rows)),
		ByInventoryLedger: credits,
	}
	if report.ByInventoryLedger == nil {
		report.ByInventoryLedger = []InventoryCredit{}
	}
	byMode := newBreakdowns()
	byType := newBreakdowns()
	byOccasion := newBreakdowns()
	for _, row := range rows {
		row.Outstanding = shared.Round2(row.Amount.Sub(row.Paid))
		report.Rows = append(report.Rows, row)

		report.Summary.Count++
		report.Summary.Amount = report.Summary.Amount.Add(row.Amount)
		report.Summary.Discount = report.Summary.Discount.Add(row.Discount)
		report.Summary.Paid = report.Summary.Paid.Add(row.Paid)

		byMode.add(row.PaymentMode, row)
		byType.add(row.DonationType, row)
		occasion := row.Occasion
		if occasion == "" {
			occasion = noOccasion
		}
		byOccasion.add(occasion, row)
	}
	report.Summary.Amount = shared.Round2(report.Summary.Amount)
	report.Summary.Discount = shared.Round2(report.Summary.Discount)
	report.Summary.Paid = shared.Round2(report.Summary.Paid)
	report.Summary.Outstanding = report.Summary.Amount.Sub(report.Summary.Paid)
	report.ByPaymentMode = byMode.sorted()
	report.ByDonationType = byType.sorted()
	report.ByOccasion = byOccasion.sorted()
	return report
}

type breakdowns map[string]*Breakdown

func newBreakdowns() breakdowns { return make(breakdowns) }

func (b breakdowns) add(key string, row TransactionRow) {
	agg, ok := b[key]
	if !ok {
		agg = &Breakdown{Key: key}
		b[key] = agg
	}
	agg.Count++
	agg.Amount = agg.Amount.Add(row.Amount)
	agg.Paid = agg.Paid.Add(row.Paid)
}

// sorted orders by amount descending, then key.
func (b breakdowns) sorted() []Breakdown {
	out := make([]Breakdown, 0, len(b))
	for _, agg := range b {
		out = append(out, *agg)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Amount.Cmp(out[j].Amount); c != 0 {
			return c > 0
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// BuildDailyClosing turns cash/bank movements into opening, receipts, payments and
// closing per ledger.
func BuildDailyClosing(date time.Time, movements []CashMovement) DailyClosing {
	out := DailyClosing{Date: date, Rows: make([]ClosingRow, 0, len(movements)), Total: ClosingRow{Name: "Total"}}
	for _, m := range movements {
		row := ClosingRow{
			LedgerID: m.LedgerID,
			Code:     m.Code,
			Name:     m.Name,
			Opening:  shared.Round2(m.Before),
			Receipts: shared.Round2(m.Debit),
			Payments: shared.Round2(m.Credit),
		}
		row.Closing = row.Opening.Add(row.Receipts).Sub(row.Payments)
		out.Rows = append(out.Rows, row)
		out.Total.Opening = out.Total.Opening.Add(row.Opening)
		out.Total.Receipts = out.Total.Receipts.Add(row.Receipts)
		out.Total.Payments = out.Total.Payments.Add(row.Payments)
		out.Total.Closing = out.Total.Closing.Add(row.Closing)
	}
	return out
}

// BuildStatement runs the balance through lines already ordered by date.
func BuildStatement(ledgerID int64, from, to time.Time, opening decimal.Decimal, lines []StatementLine) Statement {
	st := Statement{LedgerID: ledgerID, From: from, To: to, Opening: shared.Round2(opening), Lines: make([]StatementLine, 0, len(lines))}
	balance := st.Opening
	for _, line := range lines {
		balance = balance.Add(line.Debit).Sub(line.Credit)
		line.Balance = balance
		st.Debit = st.Debit.Add(line.Debit)
		st.Credit = st.Credit.Add(line.Credit)
		st.Lines = append(st.Lines, line)
	}
	st.Closing = balance
	return st
}

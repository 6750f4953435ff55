package reports

import (
	"sort"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/mandir-erp/mandir-ledger/internal/accounting/ledgers"
)

// AccountBalance is a ledger's debit and credit turnover in a window.
type AccountBalance struct {
	LedgerID  int64
	GroupCode string
	Code      string
	Name      string
	Debit     decimal.Decimal
	Credit    decimal.Decimal
}

// Net is the debit-positive balance.
func (a AccountBalance) Net() decimal.Decimal {
	return a.Debit.Sub(a.Credit)
}

// TrialBalanceAccount represents a row inside a trial balance group.
type TrialBalanceAccount struct {
	LedgerID int64           `json:"ledger_id"`
	Code     string          `json:"code"`
	Name     string          `json:"name"`
	Debit    decimal.Decimal `json:"debit"`
	Credit   decimal.Decimal `json:"credit"`
	Net      decimal.Decimal `json:"net"`
}

// TrialBalanceGroup aggregates ledgers of one chart group.
type TrialBalanceGroup struct {
	Code     string                `json:"code"`
	Accounts []TrialBalanceAccount `json:"accounts"`
	Debit    decimal.Decimal       `json:"debit"`
	Credit   decimal.Decimal       `json:"credit"`
}

type TrialBalance struct {
	Groups      []TrialBalanceGroup `json:"groups"`
	TotalDebit  decimal.Decimal     `json:"total_debit"`
	TotalCredit decimal.Decimal     `json:"total_credit"`
}

// Balanced reports whether total debits equal total credits.
func (tb TrialBalance) Balanced() bool {
	return tb.TotalDebit.Equal(tb.TotalCredit)
}

// BuildTrialBalance groups ledger turnover by chart group. Ledgers without
// movement are left out.
func BuildTrialBalance(accounts []AccountBalance) TrialBalance {
	groups := make(map[string]*TrialBalanceGroup)
	keys := make([]string, 0)
	for _, acc := range accounts {
		if acc.Debit.IsZero() && acc.Credit.IsZero() {
			continue
		}
		grp, ok := groups[acc.GroupCode]
		if !ok {
			grp = &TrialBalanceGroup{Code: acc.GroupCode}
			groups[acc.GroupCode] = grp
			keys = append(keys, acc.GroupCode)
		}
		grp.Accounts = append(grp.Accounts, TrialBalanceAccount{
			LedgerID: acc.LedgerID,
			Code:     acc.Code,
			Name:     acc.Name,
			Debit:    acc.Debit,
			Credit:   acc.Credit,
			Net:      acc.Net(),
		})
		grp.Debit = grp.Debit.Add(acc.Debit)
		grp.Credit = grp.Credit.Add(acc.Credit)
	}

	sort.Strings(keys)
	result := TrialBalance{Groups: make([]TrialBalanceGroup, 0, len(keys))}
	for _, key := range keys {
		grp := groups[key]
		sort.Slice(grp.Accounts, func(i, j int) bool {
			return grp.Accounts[i].Code < grp.Accounts[j].Code
		})
		result.Groups = append(result.Groups, *grp)
		result.TotalDebit = result.TotalDebit.Add(grp.Debit)
		result.TotalCredit = result.TotalCredit.Add(grp.Credit)
	}
	return result
}

// IncomeExpenditureLine is one income or expense ledger.
type IncomeExpenditureLine struct {
	Code   string          `json:"code"`
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"amount"`
}

type IncomeExpenditureSection struct {
	Label string                  `json:"label"`
	Lines []IncomeExpenditureLine `json:"lines"`
	Total decimal.Decimal         `json:"total"`
}

// IncomeExpenditure is the surplus statement of a non-profit.
type IncomeExpenditure struct {
	Income      IncomeExpenditureSection `json:"income"`
	Expenditure IncomeExpenditureSection `json:"expenditure"`
	Surplus     decimal.Decimal          `json:"surplus"`
}

var (
	incomeBase  = mustCode(ledgers.GroupIncomes)
	expenseBase = mustCode(ledgers.GroupExpenses)
)

func mustCode(code string) int {
	n, err := strconv.Atoi(code)
	if err != nil {
		panic(err)
	}
	return n
}

// BuildIncomeExpenditure splits turnover of the income (8000s) and expense (9000s)
// groups. Incomes are shown credit positive.
func BuildIncomeExpenditure(accounts []AccountBalance) IncomeExpenditure {
	income := IncomeExpenditureSection{Label: "Income", Lines: []IncomeExpenditureLine{}}
	expense := IncomeExpenditureSection{Label: "Expenditure", Lines: []IncomeExpenditureLine{}}

	for _, acc := range accounts {
		code, err := strconv.Atoi(acc.GroupCode)
		if err != nil || (acc.Debit.IsZero() && acc.Credit.IsZero()) {
			continue
		}
		switch {
		case code >= incomeBase && code < incomeBase+1000:
			line := IncomeExpenditureLine{Code: acc.Code, Name: acc.Name, Amount: acc.Net().Neg()}
			income.Lines = append(income.Lines, line)
			income.Total = income.Total.Add(line.Amount)
		case code >= expenseBase && code < expenseBase+1000:
			line := IncomeExpenditureLine{Code: acc.Code, Name: acc.Name, Amount: acc.Net()}
			expense.Lines = append(expense.Lines, line)
			expense.Total = expense.Total.Add(line.Amount)
		}
	}

	sort.Slice(income.Lines, func(i, j int) bool { return income.Lines[i].Code < income.Lines[j].Code })
	sort.Slice(expense.Lines, func(i, j int) bool { return expense.Lines[i].Code < expense.Lines[j].Code })

	return IncomeExpenditure{
		Income:      income,
		Expenditure: expense,
		Surplus:     income.Total.Sub(expense.Total),
	}
}

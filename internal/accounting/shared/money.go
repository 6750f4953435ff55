package shared

import "github.com/shopspring/decimal"

// Tolerance is the largest debit/credit difference still considered balanced.
var Tolerance = decimal.New(1, -2)

// Round2 rounds an amount to two decimal places.
func Round2(v decimal.Decimal) decimal.Decimal {
	return v.Round(2)
}

// Balanced reports whether |debit - credit| <= Tolerance.
func Balanced(debit, credit decimal.Decimal) bool {
	return debit.Sub(credit).Abs().LessThanOrEqual(Tolerance)
}

// Sum adds amounts.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

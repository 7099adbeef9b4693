package payer

import "github.com/shopspring/decimal"

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// AmountPerCard computes the amount to enter per card so that, once the
// portal adds feePercent on top, the charge comes out to total:
// total / (1 + feePercent/100), rounded to cents.
func AmountPerCard(total, feePercent decimal.Decimal) decimal.Decimal {
	divisor := one.Add(feePercent.Div(hundred))
	return total.Div(divisor).Round(2)
}

// EstimatePayments is how many payments of payPerCard cover remaining,
// floored at zero for display.
func EstimatePayments(remaining, payPerCard decimal.Decimal) int64 {
	if remaining.LessThanOrEqual(decimal.Zero) || payPerCard.LessThanOrEqual(decimal.Zero) {
		return 0
	}
	return remaining.Div(payPerCard).Ceil().IntPart()
}

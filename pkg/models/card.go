package models

import "strings"

// Card is a single payment instrument. Fields are stored exactly as sourced;
// submission-time formatting lives in the accessors, not the constructor.
type Card struct {
	Number   string
	ExpMonth string
	ExpYear  string
	CVV      string
	Zip      string
}

// NewCard builds a card with the billing zip injected from run configuration.
func NewCard(number, expMonth, expYear, cvv, zip string) *Card {
	return &Card{
		Number:   number,
		ExpMonth: expMonth,
		ExpYear:  expYear,
		CVV:      cvv,
		Zip:      zip,
	}
}

// PaddedExpMonth returns the month zero-padded to two digits for submission.
func (c *Card) PaddedExpMonth() string {
	if len(c.ExpMonth) == 1 {
		return "0" + c.ExpMonth
	}
	return c.ExpMonth
}

// Expiry returns the card-face MM/YY string.
func (c *Card) Expiry() string {
	return c.PaddedExpMonth() + "/" + c.ExpYear
}

// Masked returns the card number with everything but the last four digits
// starred out. Logs and previews only ever see this form.
func (c *Card) Masked() string {
	if len(c.Number) <= 4 {
		return c.Number
	}
	return strings.Repeat("*", len(c.Number)-4) + c.Number[len(c.Number)-4:]
}

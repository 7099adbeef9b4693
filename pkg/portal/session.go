package portal

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/yurifrl/bursar/pkg/models"
)

// Session is an authenticated handle on the payment portal. Implementations
// own whatever transport gets them there; everything above this package only
// sees the capability set. A session has exactly one consumer for the whole
// run, so implementations need no locking.
type Session interface {
	// RemainingBalance reads the current outstanding balance.
	RemainingBalance(ctx context.Context) (decimal.Decimal, error)
	// SubmitPayment charges one card for amount and returns the new balance.
	SubmitPayment(ctx context.Context, card *models.Card, amount decimal.Decimal) (decimal.Decimal, error)
	// DiscoverFeePercent reports the portal's live transaction fee percent.
	DiscoverFeePercent(ctx context.Context) (decimal.Decimal, error)
	Close() error
}

// FeeMismatchError means the fee the portal applied to a submission differs
// from the one discovered at run start. Fatal: the per-card amount was
// computed against the discovered fee.
type FeeMismatchError struct {
	Want decimal.Decimal
	Got  decimal.Decimal
}

func (e *FeeMismatchError) Error() string {
	return fmt.Sprintf("fee percent mismatch: expected %s, portal applied %s", e.Want, e.Got)
}

// TotalMismatchError means the total the portal is about to charge differs
// from the submitted per-card amount.
type TotalMismatchError struct {
	Want decimal.Decimal
	Got  decimal.Decimal
}

func (e *TotalMismatchError) Error() string {
	return fmt.Sprintf("total mismatch: expected %s, portal shows %s", e.Want, e.Got)
}

// RejectedError is a payment the portal refused.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("submission rejected: %s", e.Reason)
}

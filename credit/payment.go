package credit

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentAllocation shows where each part of a payment went.
type PaymentAllocation struct {
	YieldPastDue      decimal.Decimal
	LateFee           decimal.Decimal
	PrincipalPastDue  decimal.Decimal
	YieldDue          decimal.Decimal
	PrincipalDue      decimal.Decimal
	UnbilledPrincipal decimal.Decimal
}

// Total is the amount actually applied.
func (a PaymentAllocation) Total() decimal.Decimal {
	return a.YieldPastDue.Add(a.LateFee).Add(a.PrincipalPastDue).
		Add(a.YieldDue).Add(a.PrincipalDue).Add(a.UnbilledPrincipal)
}

// PrincipalPaid is the principal portion of the payment.
func (a PaymentAllocation) PrincipalPaid() decimal.Decimal {
	return a.PrincipalPastDue.Add(a.PrincipalDue).Add(a.UnbilledPrincipal)
}

// ApplyPayment applies amount to a freshly refreshed record. Past due is
// settled oldest-first (yield, then late fee, then principal), then the
// current bill (yield, then principal), then unbilled principal. Anything
// beyond the payoff amount is not applied.
//
// Clearing all past due ends the delinquency episode: missed periods reset,
// late-fee accrual stops and the credit returns to good standing.
func ApplyPayment(cr CreditRecord, dd DueDetail, amount decimal.Decimal) (CreditRecord, DueDetail, PaymentAllocation) {
	var alloc PaymentAllocation
	remaining := amount

	take := func(owed decimal.Decimal) decimal.Decimal {
		x := minDec(remaining, owed)
		if x.IsNegative() {
			x = zero
		}
		remaining = remaining.Sub(x)
		return x
	}

	alloc.YieldPastDue = take(dd.YieldPastDue)
	dd.YieldPastDue = dd.YieldPastDue.Sub(alloc.YieldPastDue)

	alloc.LateFee = take(dd.LateFee)
	dd.LateFee = dd.LateFee.Sub(alloc.LateFee)

	alloc.PrincipalPastDue = take(dd.PrincipalPastDue)
	dd.PrincipalPastDue = dd.PrincipalPastDue.Sub(alloc.PrincipalPastDue)

	cr.TotalPastDue = cr.TotalPastDue.Sub(alloc.YieldPastDue).Sub(alloc.LateFee).Sub(alloc.PrincipalPastDue)

	alloc.YieldDue = take(cr.YieldDue)
	cr.YieldDue = cr.YieldDue.Sub(alloc.YieldDue)
	cr.NextDue = cr.NextDue.Sub(alloc.YieldDue)

	alloc.PrincipalDue = take(cr.NextDue.Sub(cr.YieldDue))
	cr.NextDue = cr.NextDue.Sub(alloc.PrincipalDue)
	dd.Paid = dd.Paid.Add(alloc.YieldDue).Add(alloc.PrincipalDue)

	alloc.UnbilledPrincipal = take(cr.UnbilledPrincipal)
	cr.UnbilledPrincipal = cr.UnbilledPrincipal.Sub(alloc.UnbilledPrincipal)

	if cr.MissedPeriods > 0 && !cr.TotalPastDue.IsPositive() {
		cr.MissedPeriods = 0
		dd.LateFeeUpdatedDate = time.Time{}
		if cr.State == StateDelayed {
			cr.State = StateGoodStanding
		}
	}
	return cr, dd, alloc
}

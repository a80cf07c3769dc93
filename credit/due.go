/*
due.go - Bill refresh algorithm

PURPOSE:
  Given a credit's terms, its last stored billing state and the current
  time, derive the billing state that should hold now. Nothing here touches
  storage; the Manager persists what GetDueInfo returns.

BILLING MODEL:
  A bill covers [start, nextDueDate) and is due at nextDueDate. The first
  bill starts at the first drawdown and ends at the next period boundary;
  every later bill covers one whole period. The bill whose period ends at
  the maturity date is the final bill and collects all unbilled principal.

    t0 (drawdown)      Feb 1             Mar 1             Apr 1 (maturity)
    |---- bill 1 ------|---- bill 2 -----|---- bill 3 -----|
                       due 1             due 2             due 3 (final)

  Bill amounts:
    yield      = max(accrued, committed) + membership fee
    accrued    = outstanding principal * yieldBps * days / (10000 * 360)
    committed  = committedAmount      * yieldBps * days / (10000 * 360)
    principal  = unbilled * minPrincipalRateBps / 10000  (all of it on the final bill)

WHEN A NEW BILL IS GENERATED:
  A credit in good standing with an unpaid bill keeps that bill until the
  late-payment grace period after its due date has passed. Otherwise the
  next bill is generated as soon as the due date passes. Closing a bill that
  still has a balance moves the balance into past due and counts one missed
  period. Refreshing many periods late walks bill by bill, so every skipped
  period is billed and, if unpaid, missed.

  Due exactly at nextDueDate still belongs to the current cycle: the cycle
  closes only when now is strictly after the refresh date.

LATE FEES:
  While at least one period is missed, late fees accrue daily through
  LateFeeAccrualEngine and are added to both DueDetail.LateFee and
  CreditRecord.TotalPastDue.

SEE ALSO:
  - latefee.go: the daily late-fee accrual
  - calendar/calendar.go: period boundaries and day counts
  - manager.go: persists the result
*/
package credit

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/credit-engine/calendar"
)

// DueCalculator refreshes bills. Same inputs always produce the same
// outputs.
type DueCalculator struct {
	Settings PoolSettings
	Fees     FeeStructure
	LateFees LateFeeAccrualEngine
}

// NewDueCalculator builds a calculator for the pool's current settings.
func NewDueCalculator(pool PoolConfig) DueCalculator {
	return DueCalculator{
		Settings: pool.Settings,
		Fees:     pool.Fees,
		LateFees: LateFeeAccrualEngine{
			Fees:              pool.Fees,
			GracePeriodInDays: pool.Settings.LatePaymentGracePeriodInDays,
		},
	}
}

// GraceDeadline is the last instant a bill due at dueDate can be paid
// without being late.
func (c DueCalculator) GraceDeadline(dueDate time.Time) time.Time {
	return dueDate.AddDate(0, 0, c.Settings.LatePaymentGracePeriodInDays)
}

// NextBillRefreshDate is the instant after which the current bill closes.
func (c DueCalculator) NextBillRefreshDate(cr CreditRecord) time.Time {
	if cr.State == StateGoodStanding && cr.NextDue.IsPositive() {
		return c.GraceDeadline(cr.NextDueDate)
	}
	return cr.NextDueDate
}

// GetDueInfo returns the billing state that holds at now, plus whether the
// borrower is late.
func (c DueCalculator) GetDueInfo(cc CreditConfig, cr CreditRecord, dd DueDetail, now, maturity time.Time) (CreditRecord, DueDetail, bool, error) {
	switch cr.State {
	case StateApproved:
		if !cr.NextDueDate.IsZero() || !cr.UnbilledPrincipal.IsPositive() {
			return cr, dd, false, nil
		}
		if err := c.generateBill(cc, &cr, &dd, now, maturity); err != nil {
			return cr, dd, false, err
		}
		cr.State = StateGoodStanding
		return cr, dd, false, nil
	case StateGoodStanding, StateDelayed:
	default:
		// Deleted and Defaulted credits are frozen.
		return cr, dd, false, nil
	}

	if cr.NextDueDate.IsZero() {
		return cr, dd, false, nil
	}
	if cycleStart := c.billStart(cc, cr); now.Before(cycleStart) {
		return cr, dd, false, fmt.Errorf("%w: refresh at %s precedes current bill starting %s",
			ErrInvalidTimeRange, now.UTC().Format(time.RFC3339), cycleStart.Format(time.RFC3339))
	}

	var lateSince time.Time
	for now.After(c.NextBillRefreshDate(cr)) {
		if cr.NextDue.IsPositive() {
			if lateSince.IsZero() {
				lateSince = cr.NextDueDate
			}
			moveToPastDue(&cr, &dd)
		}
		if pastMaturity(cr.NextDueDate, maturity) {
			cr.NextDue, cr.YieldDue = zero, zero
			dd.Accrued, dd.Committed, dd.Paid = zero, zero, zero
			break
		}
		if err := c.generateBill(cc, &cr, &dd, cr.NextDueDate, maturity); err != nil {
			return cr, dd, false, err
		}
	}

	if cr.MissedPeriods > 0 {
		cr.State = StateDelayed
		if lateSince.IsZero() {
			lateSince = cr.NextDueDate
		}
		if err := c.accrueLateFee(cc, &cr, &dd, lateSince, now, maturity); err != nil {
			return cr, dd, false, err
		}
	}

	return cr, dd, c.IsLate(cr, now), nil
}

// IsLate reports delinquency: a missed period, or a current bill still
// unpaid after its grace deadline.
func (c DueCalculator) IsLate(cr CreditRecord, now time.Time) bool {
	if cr.MissedPeriods > 0 {
		return true
	}
	return cr.NextDue.IsPositive() && !cr.NextDueDate.IsZero() && now.After(c.GraceDeadline(cr.NextDueDate))
}

// billStart is the earliest instant the current bill can cover.
func (c DueCalculator) billStart(cc CreditConfig, cr CreditRecord) time.Time {
	return calendar.StartOfPeriod(cc.PeriodDuration, cr.NextDueDate.Add(-time.Nanosecond))
}

// generateBill replaces the current bill with one covering
// [start, min(next period boundary, maturity)).
func (c DueCalculator) generateBill(cc CreditConfig, cr *CreditRecord, dd *DueDetail, start, maturity time.Time) error {
	end := calendar.StartOfNextPeriod(cc.PeriodDuration, start)
	if !maturity.IsZero() && end.After(maturity) {
		end = maturity
	}
	days, err := calendar.DaysDiff(start, end)
	if err != nil {
		return err
	}

	outstanding := OutstandingPrincipal(*cr, *dd)
	accrued := YieldFor(outstanding, cc.YieldInBps, days)
	committed := YieldFor(cc.CommittedAmount, cc.YieldInBps, days)
	yieldDue := maxDec(accrued, committed)
	if outstanding.IsPositive() || cc.CommittedAmount.IsPositive() {
		yieldDue = yieldDue.Add(c.Fees.MembershipFee)
	}

	remaining := max(cr.RemainingPeriods-1, 0)
	final := remaining == 0 || pastMaturity(end, maturity)

	principalDue := cr.UnbilledPrincipal
	if !final {
		principalDue = ApplyBps(cr.UnbilledPrincipal, c.Fees.MinPrincipalRateInBps)
	}

	cr.UnbilledPrincipal = cr.UnbilledPrincipal.Sub(principalDue)
	cr.YieldDue = yieldDue
	cr.NextDue = yieldDue.Add(principalDue)
	cr.NextDueDate = end
	cr.RemainingPeriods = remaining

	dd.Accrued = accrued
	dd.Committed = committed
	dd.Paid = zero
	return nil
}

// moveToPastDue closes the current bill with its balance unpaid.
func moveToPastDue(cr *CreditRecord, dd *DueDetail) {
	dd.YieldPastDue = dd.YieldPastDue.Add(cr.YieldDue)
	dd.PrincipalPastDue = dd.PrincipalPastDue.Add(cr.PrincipalDue())
	cr.TotalPastDue = cr.TotalPastDue.Add(cr.NextDue)
	cr.NextDue, cr.YieldDue = zero, zero
	cr.MissedPeriods++
	cr.State = StateDelayed
}

func (c DueCalculator) accrueLateFee(cc CreditConfig, cr *CreditRecord, dd *DueDetail, lateSince, now, maturity time.Time) error {
	updated, total, err := c.LateFees.RefreshLateFee(cc, *cr, *dd, lateSince, now, maturity)
	if err != nil {
		return err
	}
	cr.TotalPastDue = cr.TotalPastDue.Add(total.Sub(dd.LateFee))
	dd.LateFee = total
	dd.LateFeeUpdatedDate = updated
	return nil
}

// pastMaturity reports whether t is at or beyond a set maturity date.
func pastMaturity(t, maturity time.Time) bool {
	return !maturity.IsZero() && !t.Before(maturity)
}

// AdditionalYieldForDrawdown returns the extra yield a drawdown of amount
// at now adds to the current bill, and the new accrued figure.
func (c DueCalculator) AdditionalYieldForDrawdown(cc CreditConfig, cr CreditRecord, dd DueDetail, amount decimal.Decimal, now time.Time) (decimal.Decimal, decimal.Decimal, error) {
	days, err := calendar.DaysDiff(now, cr.NextDueDate)
	if err != nil {
		return zero, dd.Accrued, err
	}
	accrued := dd.Accrued.Add(YieldFor(amount, cc.YieldInBps, days))
	delta := maxDec(accrued, dd.Committed).Sub(maxDec(dd.Accrued, dd.Committed))
	return delta, accrued, nil
}

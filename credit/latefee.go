package credit

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/credit-engine/calendar"
)

// LateFeeAccrualEngine accrues late fees day by day while a credit has
// missed periods.
//
// A delinquency episode starts when the first missed bill passes its grace
// deadline. Starting an episode charges LateFeeFlat once and accrues from
// that bill's due date. Every later refresh accrues from
// DueDetail.LateFeeUpdatedDate up to the start of the day after now.
//
// The daily rate is LateFeeBps on a 360-day year. Days before maturity
// accrue on max(outstanding principal, committed amount). Days from the
// maturity date on accrue on the past-due principal and yield, which no
// longer grows once the final bill has closed.
type LateFeeAccrualEngine struct {
	Fees              FeeStructure
	GracePeriodInDays int
}

// RefreshLateFee returns the new LateFeeUpdatedDate and the new LateFee
// total. lateSince is the due date of the earliest missed bill; it is only
// read when no episode is running yet.
func (e LateFeeAccrualEngine) RefreshLateFee(cc CreditConfig, cr CreditRecord, dd DueDetail, lateSince, now, maturity time.Time) (time.Time, decimal.Decimal, error) {
	if cr.MissedPeriods == 0 {
		return dd.LateFeeUpdatedDate, dd.LateFee, nil
	}

	from := dd.LateFeeUpdatedDate
	total := dd.LateFee
	if from.IsZero() {
		if lateSince.IsZero() || !now.After(lateSince.AddDate(0, 0, e.GracePeriodInDays)) {
			return dd.LateFeeUpdatedDate, dd.LateFee, nil
		}
		from = lateSince
		total = total.Add(e.Fees.LateFeeFlat)
	}

	to := calendar.StartOfNextDay(now)
	if !to.After(from) {
		return from, total, nil
	}

	split := to
	if !maturity.IsZero() {
		split = calendar.StartOfDay(maturity)
		if split.Before(from) {
			split = from
		}
		if split.After(to) {
			split = to
		}
	}

	preDays, err := calendar.DaysDiff(from, split)
	if err != nil {
		return dd.LateFeeUpdatedDate, dd.LateFee, err
	}
	postDays, err := calendar.DaysDiff(split, to)
	if err != nil {
		return dd.LateFeeUpdatedDate, dd.LateFee, err
	}

	if preDays > 0 {
		basis := maxDec(OutstandingPrincipal(cr, dd), cc.CommittedAmount)
		total = total.Add(YieldFor(basis, e.Fees.LateFeeBps, preDays))
	}
	if postDays > 0 {
		frozen := dd.PrincipalPastDue.Add(dd.YieldPastDue)
		total = total.Add(YieldFor(frozen, e.Fees.LateFeeBps, postDays))
	}
	return to, total, nil
}

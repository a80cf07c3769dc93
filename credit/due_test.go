package credit_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/credit-engine/calendar"
	"github.com/warp/credit-engine/credit"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// Amounts below are chosen so that 1200 bps on 360,000 is exactly 3,600
// per 30-day period: one percent a month.

func at(y int, m time.Month, d, hh, mm, ss int) time.Time {
	return time.Date(y, m, d, hh, mm, ss, 0, time.UTC)
}

func day(y int, m time.Month, d int) time.Time { return at(y, m, d, 0, 0, 0) }

func units(n int64) decimal.Decimal { return credit.Units(n) }

func testPool() credit.PoolConfig {
	return credit.PoolConfig{
		PoolID: "pool-1",
		Name:   "Test Pool",
		Settings: credit.PoolSettings{
			PeriodDuration:               calendar.Monthly,
			LatePaymentGracePeriodInDays: 5,
			DefaultGracePeriodInDays:     90,
			AdvanceRateInBps:             8000,
		},
		Fees: credit.FeeStructure{
			YieldInBps:            1200,
			MinPrincipalRateInBps: 100,
			LateFeeFlat:           units(100),
			LateFeeBps:            2400,
		},
	}
}

func testConfig() credit.CreditConfig {
	return credit.CreditConfig{
		CreditLimit:         units(1_000_000),
		PeriodDuration:      calendar.Monthly,
		NumOfPeriods:        12,
		YieldInBps:          1200,
		BorrowerLevelCredit: true,
	}
}

var drawnAt = at(2024, time.January, 16, 10, 0, 0)

// firstBill draws 360,000 at drawnAt on a fresh credit.
func firstBill(t *testing.T, calc credit.DueCalculator, cc credit.CreditConfig) (credit.CreditRecord, credit.DueDetail, time.Time) {
	t.Helper()
	maturity := calendar.MaturityDate(cc.PeriodDuration, cc.NumOfPeriods, drawnAt)
	cr := credit.CreditRecord{
		UnbilledPrincipal: units(360_000),
		RemainingPeriods:  cc.NumOfPeriods,
		State:             credit.StateApproved,
	}
	cr, dd, late, err := calc.GetDueInfo(cc, cr, credit.DueDetail{}, drawnAt, maturity)
	require.NoError(t, err)
	require.False(t, late)
	return cr, dd, maturity
}

func assertAmount(t *testing.T, want int64, got decimal.Decimal, field string) {
	t.Helper()
	assert.True(t, units(want).Equal(got), "%s: want %d, got %s", field, want, got)
}

// =============================================================================
// FIRST BILL
// =============================================================================

func TestGetDueInfo_FirstDrawdown_PartialPeriod(t *testing.T) {
	// GIVEN: 360,000 drawn on Jan 16 at 10:00, monthly periods
	// WHEN: The first bill is generated
	// THEN: It covers Jan 16 -> Feb 1 (15 days) and collects 1% of principal
	calc := credit.NewDueCalculator(testPool())
	cr, dd, maturity := firstBill(t, calc, testConfig())

	assert.Equal(t, credit.StateGoodStanding, cr.State)
	assert.Equal(t, day(2024, time.February, 1), cr.NextDueDate)
	assert.Equal(t, day(2025, time.January, 1), maturity)
	assertAmount(t, 1_800, cr.YieldDue, "yieldDue")
	assertAmount(t, 5_400, cr.NextDue, "nextDue")
	assertAmount(t, 356_400, cr.UnbilledPrincipal, "unbilled")
	assert.Equal(t, 11, cr.RemainingPeriods)
	assertAmount(t, 1_800, dd.Accrued, "accrued")
	assertAmount(t, 0, dd.Committed, "committed")
}

func TestGetDueInfo_CommittedYieldFloor(t *testing.T) {
	// GIVEN: A commitment of 720,000 but only 360,000 drawn
	// THEN: The bill charges yield on the commitment
	cc := testConfig()
	cc.CommittedAmount = units(720_000)
	calc := credit.NewDueCalculator(testPool())
	cr, dd, _ := firstBill(t, calc, cc)

	assertAmount(t, 1_800, dd.Accrued, "accrued")
	assertAmount(t, 3_600, dd.Committed, "committed")
	assertAmount(t, 3_600, cr.YieldDue, "yieldDue")
	assertAmount(t, 7_200, cr.NextDue, "nextDue")
}

func TestGetDueInfo_ApprovedWithoutPrincipal_Unchanged(t *testing.T) {
	calc := credit.NewDueCalculator(testPool())
	cr := credit.CreditRecord{RemainingPeriods: 12, State: credit.StateApproved}

	got, _, late, err := calc.GetDueInfo(testConfig(), cr, credit.DueDetail{}, drawnAt, time.Time{})
	require.NoError(t, err)
	assert.False(t, late)
	assert.True(t, got.Equal(cr))
}

// =============================================================================
// SAME CYCLE
// =============================================================================

func TestGetDueInfo_SameCycle_Idempotent(t *testing.T) {
	calc := credit.NewDueCalculator(testPool())
	cc := testConfig()
	cr, dd, maturity := firstBill(t, calc, cc)
	now := at(2024, time.January, 25, 8, 0, 0)

	cr1, dd1, late1, err := calc.GetDueInfo(cc, cr, dd, now, maturity)
	require.NoError(t, err)
	cr2, dd2, late2, err := calc.GetDueInfo(cc, cr1, dd1, now, maturity)
	require.NoError(t, err)

	assert.True(t, cr1.Equal(cr), "refresh inside the cycle changes nothing")
	assert.True(t, cr2.Equal(cr1))
	assert.True(t, dd2.Equal(dd1))
	assert.False(t, late1)
	assert.False(t, late2)
}

func TestGetDueInfo_WithinGrace_NotLate(t *testing.T) {
	// GIVEN: The first bill, unpaid, due Feb 1 with a 5-day grace period
	// WHEN: Refreshing on Feb 3
	// THEN: The bill stays current and the borrower is not late
	calc := credit.NewDueCalculator(testPool())
	cc := testConfig()
	cr, dd, maturity := firstBill(t, calc, cc)

	got, _, late, err := calc.GetDueInfo(cc, cr, dd, day(2024, time.February, 3), maturity)
	require.NoError(t, err)
	assert.False(t, late)
	assert.True(t, got.Equal(cr))
}

func TestGetDueInfo_DueInstantBelongsToCurrentCycle(t *testing.T) {
	// GIVEN: The first bill paid in full
	calc := credit.NewDueCalculator(testPool())
	cc := testConfig()
	cr, dd, maturity := firstBill(t, calc, cc)
	cr, dd, _ = credit.ApplyPayment(cr, dd, units(5_400))

	// WHEN: Refreshing exactly at the due date
	got, _, _, err := calc.GetDueInfo(cc, cr, dd, day(2024, time.February, 1), maturity)
	require.NoError(t, err)
	// THEN: No new bill yet
	assert.True(t, got.Equal(cr))

	// WHEN: One second later
	got, gotDD, late, err := calc.GetDueInfo(cc, cr, dd, at(2024, time.February, 1, 0, 0, 1), maturity)
	require.NoError(t, err)
	// THEN: The February bill is generated on the remaining 356,400
	assert.False(t, late)
	assert.Equal(t, day(2024, time.March, 1), got.NextDueDate)
	assertAmount(t, 3_564, got.YieldDue, "yieldDue")
	assertAmount(t, 7_128, got.NextDue, "nextDue")
	assertAmount(t, 352_836, got.UnbilledPrincipal, "unbilled")
	assertAmount(t, 0, gotDD.Paid, "paid resets with the new bill")
	assert.Equal(t, credit.StateGoodStanding, got.State)
}

// =============================================================================
// MISSED PERIODS
// =============================================================================

func TestGetDueInfo_MissedAfterGrace(t *testing.T) {
	// GIVEN: The first bill (5,400) unpaid
	// WHEN: Refreshing 100 seconds after the grace deadline
	// THEN: The bill moves to past due with a late fee, and February is billed
	calc := credit.NewDueCalculator(testPool())
	cc := testConfig()
	cr, dd, maturity := firstBill(t, calc, cc)
	prior := cr.NextDue

	now := calc.GraceDeadline(cr.NextDueDate).Add(100 * time.Second)
	got, gotDD, late, err := calc.GetDueInfo(cc, cr, dd, now, maturity)
	require.NoError(t, err)

	assert.True(t, late)
	assert.Equal(t, 1, got.MissedPeriods)
	assert.Equal(t, credit.StateDelayed, got.State)

	// Late fee: flat 100 + 2400 bps on 360,000 for Feb 1 -> Feb 7 (6 days)
	assertAmount(t, 1_540, gotDD.LateFee, "lateFee")
	assert.True(t, prior.Add(gotDD.LateFee).Equal(got.TotalPastDue), "totalPastDue = prior nextDue + lateFee")
	assertAmount(t, 1_800, gotDD.YieldPastDue, "yieldPastDue")
	assertAmount(t, 3_600, gotDD.PrincipalPastDue, "principalPastDue")
	assert.Equal(t, day(2024, time.February, 7), gotDD.LateFeeUpdatedDate)

	// New bill: 30 days on 360,000 outstanding, 1% of 356,400 unbilled
	assert.Equal(t, day(2024, time.March, 1), got.NextDueDate)
	assertAmount(t, 3_600, got.YieldDue, "yieldDue")
	assertAmount(t, 7_164, got.NextDue, "nextDue")
	assertAmount(t, 352_836, got.UnbilledPrincipal, "unbilled")
	assert.Equal(t, 10, got.RemainingPeriods)
}

func TestGetDueInfo_Delayed_LateFeeAccruesDaily(t *testing.T) {
	calc := credit.NewDueCalculator(testPool())
	cc := testConfig()
	cr, dd, maturity := firstBill(t, calc, cc)

	now := at(2024, time.February, 6, 0, 1, 40)
	cr, dd, _, err := calc.GetDueInfo(cc, cr, dd, now, maturity)
	require.NoError(t, err)

	// Same instant again: nothing moves
	again, againDD, late, err := calc.GetDueInfo(cc, cr, dd, now, maturity)
	require.NoError(t, err)
	assert.True(t, late)
	assert.True(t, again.Equal(cr))
	assert.True(t, againDD.Equal(dd))

	// One day later: 240 more (2400 bps on 360,000 for one day)
	next, nextDD, _, err := calc.GetDueInfo(cc, cr, dd, at(2024, time.February, 7, 12, 0, 0), maturity)
	require.NoError(t, err)
	assertAmount(t, 1_780, nextDD.LateFee, "lateFee")
	assertAmount(t, 7_180, next.TotalPastDue, "totalPastDue")
	assert.Equal(t, day(2024, time.February, 8), nextDD.LateFeeUpdatedDate)
}

func TestGetDueInfo_MultipleMissedPeriods(t *testing.T) {
	// GIVEN: The first bill unpaid and nothing paid since
	// WHEN: Refreshing on Apr 15
	// THEN: January, February and March bills are all missed
	calc := credit.NewDueCalculator(testPool())
	cc := testConfig()
	cr, dd, maturity := firstBill(t, calc, cc)

	got, gotDD, late, err := calc.GetDueInfo(cc, cr, dd, day(2024, time.April, 15), maturity)
	require.NoError(t, err)

	assert.True(t, late)
	assert.Equal(t, 3, got.MissedPeriods)
	assert.Equal(t, day(2024, time.May, 1), got.NextDueDate)
	assertAmount(t, 9_000, gotDD.YieldPastDue, "yieldPastDue")
	assertAmount(t, 10_692, gotDD.PrincipalPastDue, "principalPastDue")
	// Late fee: flat 100 + 2400 bps on 360,000 for Feb 1 -> Apr 16 (75 days)
	assertAmount(t, 18_100, gotDD.LateFee, "lateFee")
	assertAmount(t, 37_792, got.TotalPastDue, "totalPastDue")
	assertAmount(t, 7_093, got.NextDue, "nextDue")
	assertAmount(t, 345_815, got.UnbilledPrincipal, "unbilled")
	assert.Equal(t, 8, got.RemainingPeriods)

	// Principal is conserved across the moves
	assertAmount(t, 360_000, credit.OutstandingPrincipal(got, gotDD), "outstanding")
}

func TestGetDueInfo_Quarterly_PartialBillThenMissedPeriod(t *testing.T) {
	// GIVEN: 360,000 drawn on Jan 16 at 10:00 on a four-quarter line
	pool := testPool()
	pool.Settings.PeriodDuration = calendar.Quarterly
	cc := testConfig()
	cc.PeriodDuration = calendar.Quarterly
	cc.NumOfPeriods = 4
	calc := credit.NewDueCalculator(pool)
	cr, dd, maturity := firstBill(t, calc, cc)

	// THEN: The first bill covers Jan 16 -> Apr 1 (75 days)
	assert.Equal(t, day(2025, time.January, 1), maturity)
	assert.Equal(t, day(2024, time.April, 1), cr.NextDueDate)
	assertAmount(t, 9_000, cr.YieldDue, "yieldDue")
	assertAmount(t, 12_600, cr.NextDue, "nextDue")
	assertAmount(t, 356_400, cr.UnbilledPrincipal, "unbilled")
	assert.Equal(t, 3, cr.RemainingPeriods)

	// WHEN: The April bill is still unpaid on Apr 10, past the 5-day grace
	got, gotDD, late, err := calc.GetDueInfo(cc, cr, dd, at(2024, time.April, 10, 12, 0, 0), maturity)
	require.NoError(t, err)

	// THEN: It is missed and the second quarter is billed for 90 days
	assert.True(t, late)
	assert.Equal(t, credit.StateDelayed, got.State)
	assert.Equal(t, 1, got.MissedPeriods)
	assertAmount(t, 9_000, gotDD.YieldPastDue, "yieldPastDue")
	assertAmount(t, 3_600, gotDD.PrincipalPastDue, "principalPastDue")

	assert.Equal(t, day(2024, time.July, 1), got.NextDueDate)
	assertAmount(t, 10_800, got.YieldDue, "yieldDue")
	assertAmount(t, 14_364, got.NextDue, "nextDue")
	assertAmount(t, 352_836, got.UnbilledPrincipal, "unbilled")
	assert.Equal(t, 2, got.RemainingPeriods)

	// Late fee: flat 100 + 2400 bps on 360,000 for Apr 1 -> Apr 11 (10 days)
	assertAmount(t, 2_500, gotDD.LateFee, "lateFee")
	assertAmount(t, 15_100, got.TotalPastDue, "totalPastDue")
	assert.Equal(t, day(2024, time.April, 11), gotDD.LateFeeUpdatedDate)
}

func TestGetDueInfo_PastDueNeverDecreases(t *testing.T) {
	calc := credit.NewDueCalculator(testPool())
	cc := testConfig()
	cr, dd, maturity := firstBill(t, calc, cc)

	prevPastDue := cr.TotalPastDue
	prevMissed := cr.MissedPeriods
	for now := drawnAt; now.Before(maturity.AddDate(0, 2, 0)); now = now.Add(61 * time.Hour) {
		var err error
		cr, dd, _, err = calc.GetDueInfo(cc, cr, dd, now, maturity)
		require.NoError(t, err)

		assert.False(t, cr.TotalPastDue.LessThan(prevPastDue), "past due decreased at %s", now)
		assert.GreaterOrEqual(t, cr.MissedPeriods, prevMissed)
		assert.False(t, cr.NextDue.LessThan(cr.YieldDue), "nextDue < yieldDue at %s", now)
		assert.False(t, cr.NextDueDate.After(maturity))
		prevPastDue, prevMissed = cr.TotalPastDue, cr.MissedPeriods
	}
	assert.Equal(t, 12, cr.MissedPeriods)
	assertAmount(t, 0, cr.UnbilledPrincipal, "unbilled after maturity")
}

// =============================================================================
// MATURITY
// =============================================================================

func TestGetDueInfo_FinalBillCollectsAllPrincipal(t *testing.T) {
	// GIVEN: A two-period credit maturing Mar 1, first bill paid
	calc := credit.NewDueCalculator(testPool())
	cc := testConfig()
	cc.NumOfPeriods = 2
	cr, dd, maturity := firstBill(t, calc, cc)
	require.Equal(t, day(2024, time.March, 1), maturity)
	cr, dd, _ = credit.ApplyPayment(cr, dd, cr.NextDue)

	// WHEN: The second (final) bill is generated
	got, _, _, err := calc.GetDueInfo(cc, cr, dd, day(2024, time.February, 2), maturity)
	require.NoError(t, err)

	// THEN: It carries every unbilled unit
	assert.Equal(t, maturity, got.NextDueDate)
	assert.Equal(t, 0, got.RemainingPeriods)
	assertAmount(t, 0, got.UnbilledPrincipal, "unbilled")
	assertAmount(t, 3_564, got.YieldDue, "yieldDue")
	assertAmount(t, 359_964, got.NextDue, "nextDue")
}

func TestGetDueInfo_AfterMaturity_LateFeeOnFrozenPastDue(t *testing.T) {
	calc := credit.NewDueCalculator(testPool())
	cc := testConfig()
	cc.NumOfPeriods = 2
	cr, dd, maturity := firstBill(t, calc, cc)
	cr, dd, _ = credit.ApplyPayment(cr, dd, cr.NextDue)
	cr, dd, _, err := calc.GetDueInfo(cc, cr, dd, day(2024, time.February, 2), maturity)
	require.NoError(t, err)

	// WHEN: The final bill is left unpaid past its grace deadline
	now := day(2024, time.March, 10)
	got, gotDD, late, err := calc.GetDueInfo(cc, cr, dd, now, maturity)
	require.NoError(t, err)

	// THEN: No new bill; late fee accrues on past-due principal and yield only
	assert.True(t, late)
	assert.Equal(t, maturity, got.NextDueDate)
	assertAmount(t, 0, got.NextDue, "nextDue")
	assertAmount(t, 359_964, gotDD.PrincipalPastDue.Add(gotDD.YieldPastDue), "frozen past due")
	// flat 100 + 2400 bps on 359,964 for Mar 1 -> Mar 11 (10 days) = 100 + 2,399
	assertAmount(t, 2_499, gotDD.LateFee, "lateFee")
	assertAmount(t, 362_463, got.TotalPastDue, "totalPastDue")

	again, againDD, _, err := calc.GetDueInfo(cc, got, gotDD, now, maturity)
	require.NoError(t, err)
	assert.True(t, again.Equal(got))
	assert.True(t, againDD.Equal(gotDD))
}

// =============================================================================
// EDGE CASES
// =============================================================================

func TestGetDueInfo_ClockBeforeCurrentBill(t *testing.T) {
	calc := credit.NewDueCalculator(testPool())
	cc := testConfig()
	cr, dd, maturity := firstBill(t, calc, cc)
	cr, dd, _, err := calc.GetDueInfo(cc, cr, dd, day(2024, time.February, 10), maturity)
	require.NoError(t, err)

	_, _, _, err = calc.GetDueInfo(cc, cr, dd, day(2024, time.January, 10), maturity)
	assert.ErrorIs(t, err, credit.ErrInvalidTimeRange)
}

func TestGetDueInfo_FrozenStates(t *testing.T) {
	calc := credit.NewDueCalculator(testPool())
	cc := testConfig()
	cr, dd, maturity := firstBill(t, calc, cc)

	for _, state := range []credit.CreditState{credit.StateDefaulted, credit.StateDeleted} {
		frozen := cr
		frozen.State = state
		got, gotDD, _, err := calc.GetDueInfo(cc, frozen, dd, day(2024, time.June, 1), maturity)
		require.NoError(t, err)
		assert.True(t, got.Equal(frozen), state.String())
		assert.True(t, gotDD.Equal(dd), state.String())
	}
}

func TestAdditionalYieldForDrawdown(t *testing.T) {
	// GIVEN: The first bill due Feb 1
	// WHEN: 36,000 more is drawn on Jan 21 (10 days left)
	// THEN: The bill grows by 36,000 * 12% * 10/360 = 120
	calc := credit.NewDueCalculator(testPool())
	cc := testConfig()
	cr, dd, _ := firstBill(t, calc, cc)

	delta, accrued, err := calc.AdditionalYieldForDrawdown(cc, cr, dd, units(36_000), day(2024, time.January, 21))
	require.NoError(t, err)
	assertAmount(t, 120, delta, "delta")
	assertAmount(t, 1_920, accrued, "accrued")
}

func TestAdditionalYieldForDrawdown_AbsorbedByCommitment(t *testing.T) {
	cc := testConfig()
	cc.CommittedAmount = units(720_000)
	calc := credit.NewDueCalculator(testPool())
	cr, dd, _ := firstBill(t, calc, cc)

	// Accrued rises from 1,800 to 1,920, still below the 3,600 committed
	delta, _, err := calc.AdditionalYieldForDrawdown(cc, cr, dd, units(36_000), day(2024, time.January, 21))
	require.NoError(t, err)
	assertAmount(t, 0, delta, "delta")
}

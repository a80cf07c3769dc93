package credit_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/credit-engine/credit"
)

// delayedCredit is the state one missed January bill leaves behind on
// Feb 6: 6,940 past due (1,800 yield, 1,540 late fee, 3,600 principal).
func delayedCredit(t *testing.T) (credit.CreditRecord, credit.DueDetail) {
	t.Helper()
	calc := credit.NewDueCalculator(testPool())
	cc := testConfig()
	cr, dd, maturity := firstBill(t, calc, cc)
	cr, dd, _, err := calc.GetDueInfo(cc, cr, dd, at(2024, time.February, 6, 0, 1, 40), maturity)
	require.NoError(t, err)
	require.Equal(t, credit.StateDelayed, cr.State)
	return cr, dd
}

func TestApplyPayment_PastDueWaterfall(t *testing.T) {
	// GIVEN: 6,940 past due
	// WHEN: Paying 3,000
	// THEN: Past-due yield is paid first, the rest goes to the late fee
	cr, dd := delayedCredit(t)

	got, gotDD, alloc := credit.ApplyPayment(cr, dd, units(3_000))

	assertAmount(t, 1_800, alloc.YieldPastDue, "alloc.yieldPastDue")
	assertAmount(t, 1_200, alloc.LateFee, "alloc.lateFee")
	assertAmount(t, 0, alloc.PrincipalPastDue, "alloc.principalPastDue")
	assertAmount(t, 340, gotDD.LateFee, "lateFee left")
	assertAmount(t, 3_940, got.TotalPastDue, "totalPastDue")
	assert.Equal(t, credit.StateDelayed, got.State)
	assert.Equal(t, 1, got.MissedPeriods)
	assert.True(t, got.NextDue.Equal(cr.NextDue), "current bill untouched")
}

func TestApplyPayment_ClearingPastDueRestoresGoodStanding(t *testing.T) {
	cr, dd := delayedCredit(t)

	got, gotDD, alloc := credit.ApplyPayment(cr, dd, cr.TotalPastDue)

	assertAmount(t, 6_940, alloc.Total(), "applied")
	assertAmount(t, 0, got.TotalPastDue, "totalPastDue")
	assert.Equal(t, 0, got.MissedPeriods)
	assert.Equal(t, credit.StateGoodStanding, got.State)
	assert.True(t, gotDD.LateFeeUpdatedDate.IsZero(), "late fee accrual stops")
	assert.True(t, got.NextDue.Equal(cr.NextDue))
}

func TestApplyPayment_CurrentBillThenUnbilled(t *testing.T) {
	calc := credit.NewDueCalculator(testPool())
	cr, dd, _ := firstBill(t, calc, testConfig())

	got, gotDD, alloc := credit.ApplyPayment(cr, dd, units(10_000))

	assertAmount(t, 1_800, alloc.YieldDue, "alloc.yieldDue")
	assertAmount(t, 3_600, alloc.PrincipalDue, "alloc.principalDue")
	assertAmount(t, 4_600, alloc.UnbilledPrincipal, "alloc.unbilled")
	assertAmount(t, 8_200, alloc.PrincipalPaid(), "principal paid")
	assertAmount(t, 0, got.NextDue, "nextDue")
	assertAmount(t, 351_800, got.UnbilledPrincipal, "unbilled")
	assertAmount(t, 5_400, gotDD.Paid, "paid on current bill")
}

func TestApplyPayment_PayoffIdentity(t *testing.T) {
	// GIVEN: A delayed credit with past due, a current bill and unbilled principal
	// WHEN: Paying far more than owed
	// THEN: Exactly the payoff amount is applied and nothing is left
	cr, dd := delayedCredit(t)
	payoff := credit.PayoffAmount(cr)
	assertAmount(t, 352_836+7_164+6_940, payoff, "payoff")

	got, gotDD, alloc := credit.ApplyPayment(cr, dd, payoff.Add(units(50_000)))

	assert.True(t, alloc.Total().Equal(payoff))
	assert.True(t, credit.PayoffAmount(got).IsZero())
	assert.True(t, credit.OutstandingPrincipal(got, gotDD).IsZero())
	assertAmount(t, 0, gotDD.LateFee, "lateFee")
	assert.Equal(t, credit.StateGoodStanding, got.State)
}

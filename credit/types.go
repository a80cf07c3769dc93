/*
Package credit implements the receivables-backed credit engine.

PURPOSE:
  A credit is a line of capital extended to one borrower. The borrower draws
  principal, gets billed once per period for yield (interest) and a slice of
  principal, pays the bills, and falls behind when it doesn't. This package
  holds the pure billing math (due.go, latefee.go, payment.go), the
  available-credit ledger for receivable-backed lines (limit.go), and the
  Manager that runs every state-changing operation atomically (manager.go).

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: integral smallest-unit amounts carried in decimal.Decimal
  - CreditConfig: terms fixed at approval (limit, periods, yield)
  - CreditRecord: the billing state (what is due, when, how late)
  - DueDetail: the breakdown behind CreditRecord (past-due split, late fee)
  - Credit: the persisted aggregate tying the three together

MONEY:
  Amounts never carry fractions. Every rate application goes through MulDiv,
  which multiplies first and truncates once at the end:

    yield = principal * bps * days / (10000 * 360)

SEE ALSO:
  - calendar/calendar.go: period boundaries and 30/360 day counts
  - due.go: the bill refresh algorithm
  - manager.go: operations on stored credits
*/
package credit

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/credit-engine/calendar"
)

// =============================================================================
// MONEY
// =============================================================================

const (
	// BpsDenominator is the basis-point scale: 10000 bps == 100%.
	BpsDenominator = 10000
)

var (
	bpsDenominator   = decimal.NewFromInt(BpsDenominator)
	yieldDenominator = decimal.NewFromInt(BpsDenominator * calendar.DaysInYear)
	zero             = decimal.Zero
)

// Units creates an integral amount.
func Units(n int64) decimal.Decimal { return decimal.NewFromInt(n) }

// MulDiv returns floor(a*b/c) for non-negative operands.
func MulDiv(a, b, c decimal.Decimal) decimal.Decimal {
	if c.IsZero() {
		return zero
	}
	q, _ := a.Mul(b).QuoRem(c, 0)
	return q
}

// ApplyBps returns floor(amount * bps / 10000).
func ApplyBps(amount decimal.Decimal, bps int) decimal.Decimal {
	return MulDiv(amount, decimal.NewFromInt(int64(bps)), bpsDenominator)
}

// YieldFor returns floor(principal * bps * days / (10000 * 360)).
func YieldFor(principal decimal.Decimal, bps, days int) decimal.Decimal {
	rate := decimal.NewFromInt(int64(bps) * int64(days))
	return MulDiv(principal, rate, yieldDenominator)
}

func minDec(a, b decimal.Decimal) decimal.Decimal { return decimal.Min(a, b) }
func maxDec(a, b decimal.Decimal) decimal.Decimal { return decimal.Max(a, b) }

// =============================================================================
// IDENTIFIERS
// =============================================================================

// ReceivableID identifies a receivable certificate. Zero is never valid.
type ReceivableID uint64

// =============================================================================
// CREDIT STATE
// =============================================================================

// CreditState is the lifecycle position of a credit.
type CreditState int

const (
	StateDeleted CreditState = iota
	StateApproved
	StateGoodStanding
	StateDelayed
	StateDefaulted
)

var creditStateNames = map[CreditState]string{
	StateDeleted:      "deleted",
	StateApproved:     "approved",
	StateGoodStanding: "good_standing",
	StateDelayed:      "delayed",
	StateDefaulted:    "defaulted",
}

func (s CreditState) String() string {
	if name, ok := creditStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("credit_state(%d)", int(s))
}

// ParseCreditState accepts the names produced by String.
func ParseCreditState(name string) (CreditState, error) {
	for s, n := range creditStateNames {
		if strings.EqualFold(n, name) {
			return s, nil
		}
	}
	return StateDeleted, fmt.Errorf("unknown credit state %q", name)
}

func (s CreditState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *CreditState) UnmarshalText(b []byte) error {
	parsed, err := ParseCreditState(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// =============================================================================
// CREDIT CONFIG - Terms fixed at approval
// =============================================================================

type CreditConfig struct {
	CreditLimit      decimal.Decimal
	CommittedAmount  decimal.Decimal
	PeriodDuration   calendar.PeriodDuration
	NumOfPeriods     int
	YieldInBps       int
	AdvanceRateInBps int

	// Revolving lines accept drawdowns after the first one.
	Revolving bool

	// ReceivableBacked lines can only draw what approved receivables allow.
	ReceivableBacked bool

	// BorrowerLevelCredit keys the credit by borrower alone. When false every
	// receivable gets its own credit.
	BorrowerLevelCredit bool
}

// =============================================================================
// CREDIT RECORD - Billing state
// =============================================================================

type CreditRecord struct {
	UnbilledPrincipal decimal.Decimal

	// NextDueDate is the instant the current bill is due. Zero until the
	// first drawdown.
	NextDueDate time.Time

	// NextDue is the current bill, yield included.
	NextDue decimal.Decimal

	// YieldDue is the yield portion of NextDue.
	YieldDue decimal.Decimal

	// TotalPastDue is principal, yield and late fee from missed bills.
	TotalPastDue decimal.Decimal

	MissedPeriods    int
	RemainingPeriods int
	State            CreditState
}

// PrincipalDue is the principal portion of the current bill.
func (r CreditRecord) PrincipalDue() decimal.Decimal {
	return r.NextDue.Sub(r.YieldDue)
}

// =============================================================================
// DUE DETAIL - Breakdown behind the record
// =============================================================================

type DueDetail struct {
	// LateFeeUpdatedDate is the day boundary late fees are accrued up to.
	// Zero when no delinquency episode is running.
	LateFeeUpdatedDate time.Time

	LateFee          decimal.Decimal
	YieldPastDue     decimal.Decimal
	PrincipalPastDue decimal.Decimal

	// Committed and Accrued are the two yield candidates for the current bill.
	// The bill charges the larger of the two.
	Committed decimal.Decimal
	Accrued   decimal.Decimal

	// Paid is what was applied to the current bill since it was generated.
	Paid decimal.Decimal
}

// =============================================================================
// CREDIT - Persisted aggregate
// =============================================================================

type Credit struct {
	Hash         CreditHash
	PoolID       string
	Borrower     string
	ReceivableID ReceivableID
	Config       CreditConfig
	Record       CreditRecord
	DueDetail    DueDetail

	// MaturityDate is the due date of the final bill. Zero until the first
	// drawdown fixes it.
	MaturityDate time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// OutstandingPrincipal is principal drawn and not yet repaid.
func OutstandingPrincipal(cr CreditRecord, dd DueDetail) decimal.Decimal {
	return cr.UnbilledPrincipal.Add(cr.PrincipalDue()).Add(dd.PrincipalPastDue)
}

// PayoffAmount is everything needed to settle the credit in full.
func PayoffAmount(cr CreditRecord) decimal.Decimal {
	return cr.UnbilledPrincipal.Add(cr.NextDue).Add(cr.TotalPastDue)
}

// =============================================================================
// RECEIVABLE APPROVAL - Entry kept per approved receivable
// =============================================================================

// ReceivableApproval records that a receivable raised a borrower's available
// credit. One entry exists per receivable; it ties the receivable to the
// borrower for good.
type ReceivableApproval struct {
	ReceivableID ReceivableID
	Borrower     string
	CreditHash   CreditHash
	Amount       decimal.Decimal
	Incremental  decimal.Decimal
	ApprovedBy   string
	ApprovedAt   time.Time
}

// Equal compares every field of two records.
func (r CreditRecord) Equal(o CreditRecord) bool {
	return r.UnbilledPrincipal.Equal(o.UnbilledPrincipal) &&
		r.NextDueDate.Equal(o.NextDueDate) &&
		r.NextDue.Equal(o.NextDue) &&
		r.YieldDue.Equal(o.YieldDue) &&
		r.TotalPastDue.Equal(o.TotalPastDue) &&
		r.MissedPeriods == o.MissedPeriods &&
		r.RemainingPeriods == o.RemainingPeriods &&
		r.State == o.State
}

// Equal compares every field of two due details.
func (d DueDetail) Equal(o DueDetail) bool {
	return d.LateFeeUpdatedDate.Equal(o.LateFeeUpdatedDate) &&
		d.LateFee.Equal(o.LateFee) &&
		d.YieldPastDue.Equal(o.YieldPastDue) &&
		d.PrincipalPastDue.Equal(o.PrincipalPastDue) &&
		d.Committed.Equal(o.Committed) &&
		d.Accrued.Equal(o.Accrued) &&
		d.Paid.Equal(o.Paid)
}

/*
Package receivable tracks receivables and approves them as collateral for
receivable-backed credit lines.

CONCEPTS:

	Receivable  - an invoice or claim with a face amount and a maturity date,
	              owned by a borrower
	Registry    - where receivables are minted and looked up
	Workflow    - approves receivables against a credit and raises its
	              available credit by amount x advance rate

A receivable can be approved once. Approving it again is a no-op, so
retries from an unreliable caller never double the available credit.

SEE ALSO:
  - credit/limit.go: the available credit counter the workflow raises
  - credit/manager.go: drawdowns that consume it
*/
package receivable

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/credit-engine/credit"
)

// =============================================================================
// STATE
// =============================================================================

// State is the lifecycle position of a receivable.
type State int

const (
	StateDeleted State = iota
	StateMinted
	StateApproved
	StatePartiallyPaid
	StatePaid
	StateRejected
	StateDelayed
	StateDefaulted
)

var stateNames = [...]string{
	StateDeleted:       "deleted",
	StateMinted:        "minted",
	StateApproved:      "approved",
	StatePartiallyPaid: "partially_paid",
	StatePaid:          "paid",
	StateRejected:      "rejected",
	StateDelayed:       "delayed",
	StateDefaulted:     "defaulted",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// ParseState is the inverse of State.String.
func ParseState(s string) (State, error) {
	for i, name := range stateNames {
		if strings.EqualFold(s, name) {
			return State(i), nil
		}
	}
	return 0, fmt.Errorf("unknown receivable state %q", s)
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(b []byte) error {
	parsed, err := ParseState(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// =============================================================================
// RECEIVABLE
// =============================================================================

// Receivable is a claim a borrower holds against a payer.
type Receivable struct {
	ID           credit.ReceivableID
	Owner        string
	Amount       decimal.Decimal
	PaidAmount   decimal.Decimal
	Currency     string
	ReferenceID  string
	CreatedAt    time.Time
	MaturityDate time.Time
	State        State
}

// Matured reports whether the receivable is due at or before now.
func (r Receivable) Matured(now time.Time) bool {
	return !now.Before(r.MaturityDate)
}

// Outstanding is what the payer still owes on the receivable.
func (r Receivable) Outstanding() decimal.Decimal {
	return decimal.Max(r.Amount.Sub(r.PaidAmount), decimal.Zero)
}

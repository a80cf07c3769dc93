/*
errors.go - Error kinds for the credit engine

PURPOSE:
  Every failure an operation can report, in one place. Callers branch on
  the sentinel with errors.Is; structured errors carry the numbers behind
  the failure and unwrap to their sentinel.

ERROR CATEGORIES:
  1. Input errors - zero amounts, zero ids, bad configs
  2. Authorization errors - caller lacks the required role
  3. State conflicts - the credit is not in a state that allows the operation
  4. Limit errors - the credit limit or available credit would be exceeded
  5. Not found - unknown credit, pool or receivable

An operation that fails leaves no state change behind; see Manager.

SEE ALSO:
  - manager.go: returns these errors
  - api/handlers.go: maps them to HTTP status codes
*/
package credit

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/credit-engine/calendar"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidTimeRange is returned when a time range ends before it starts.
	ErrInvalidTimeRange = calendar.ErrInvalidTimeRange

	ErrZeroAmountProvided       = errors.New("zero amount provided")
	ErrZeroReceivableIDProvided = errors.New("zero receivable id provided")
	ErrZeroReceivableAmount     = errors.New("zero receivable amount")
	ErrZeroPayPeriods           = errors.New("zero pay periods")
	ErrBorrowerRequired         = errors.New("borrower or authorized evaluation agent required")

	// ErrCommittedAmountGreaterThanCreditLimit rejects configs that commit the
	// borrower to more than they could ever draw.
	ErrCommittedAmountGreaterThanCreditLimit = errors.New("committed amount greater than credit limit")

	// ErrGreaterThanMaxCreditLine rejects limits above the pool's cap.
	ErrGreaterThanMaxCreditLine = errors.New("credit limit greater than pool max credit line")

	// ErrUnauthorized is returned when the caller lacks the role an operation needs.
	ErrUnauthorized = errors.New("caller not authorized")

	// ErrProtocolIsPaused is returned by every state-changing operation while
	// the protocol pause flag is set.
	ErrProtocolIsPaused = errors.New("protocol is paused")

	ErrCreditLimitExceeded = errors.New("credit limit exceeded")

	ErrCreditNotInStateForDrawdown           = errors.New("credit not in state for drawdown")
	ErrCreditNotInStateForMakingPayment      = errors.New("credit not in state for making payment")
	ErrCreditNotInStateForUpdate             = errors.New("credit not in state for update")
	ErrCreditNotInStateForReceivableApproval = errors.New("credit not in state for receivable approval")
	ErrAttemptedDrawdownOnNonRevolvingLine   = errors.New("attempted drawdown on non-revolving line")
	ErrDrawdownNotAllowedInLateState         = errors.New("drawdown not allowed while payment is late")
	ErrDrawdownNotAllowedAfterDueDate        = errors.New("drawdown not allowed in final period and beyond")
	ErrDrawdownNotAllowedWithUnpaidBill      = errors.New("drawdown not allowed while a bill past its due date is unpaid")
	ErrDrawdownAmountTooLow                  = errors.New("drawdown amount lower than front loading fee")
	ErrCreditNotReceivableBacked             = errors.New("credit is not receivable backed")
	ErrReceivableNotApproved                 = errors.New("receivable not approved for this borrower")

	ErrDefaultTriggeredTooEarly       = errors.New("default triggered too early")
	ErrDefaultHasAlreadyBeenTriggered = errors.New("default has already been triggered")
	ErrCreditHasOutstandingBalance    = errors.New("credit has outstanding balance")
	ErrCreditHasUnfulfilledCommitment = errors.New("credit has unfulfilled commitment")
	ErrCreditAlreadyExists            = errors.New("credit already exists")

	ErrReceivableIDMismatch     = errors.New("receivable id mismatch")
	ErrReceivableAlreadyMatured = errors.New("receivable already matured")
	ErrInvalidReceivableState   = errors.New("invalid receivable state")

	ErrCreditNotFound     = errors.New("credit not found")
	ErrPoolNotFound       = errors.New("pool not found")
	ErrReceivableNotFound = errors.New("receivable not found")

	// ErrDuplicateIdempotencyKey is returned when an event with the same
	// idempotency key was already appended.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// LimitExceededError reports the numbers behind ErrCreditLimitExceeded.
type LimitExceededError struct {
	Hash      CreditHash
	Limit     decimal.Decimal
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("credit limit exceeded for %s: limit %s, available %s, requested %s",
		e.Hash.Short(), e.Limit, e.Available, e.Requested)
}

func (e *LimitExceededError) Unwrap() error { return ErrCreditLimitExceeded }

// AuthorizationError reports which role an operation needed. Err is the
// sentinel the operation reports, usually ErrUnauthorized.
type AuthorizationError struct {
	Op       string
	CallerID string
	Required []Role
	Err      error
}

func (e *AuthorizationError) Error() string {
	roles := make([]string, len(e.Required))
	for i, r := range e.Required {
		roles[i] = string(r)
	}
	return fmt.Sprintf("%s: caller %q needs one of [%s]: %v",
		e.Op, e.CallerID, strings.Join(roles, ", "), e.Err)
}

func (e *AuthorizationError) Unwrap() error {
	if e.Err == nil {
		return ErrUnauthorized
	}
	return e.Err
}

// StateError reports an operation attempted on a credit in the wrong state.
type StateError struct {
	Hash  CreditHash
	State CreditState
	Err   error
}

func (e *StateError) Error() string {
	return fmt.Sprintf("credit %s is %s: %v", e.Hash.Short(), e.State, e.Err)
}

func (e *StateError) Unwrap() error { return e.Err }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsAuthorization returns true if the caller lacked a required role.
func IsAuthorization(err error) bool {
	var authErr *AuthorizationError
	return errors.As(err, &authErr) || errors.Is(err, ErrUnauthorized)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrCreditNotFound) ||
		errors.Is(err, ErrPoolNotFound) ||
		errors.Is(err, ErrReceivableNotFound)
}

// IsStateConflict returns true if the operation is valid in general but not
// for the credit's current state.
func IsStateConflict(err error) bool {
	var stateErr *StateError
	return errors.As(err, &stateErr) ||
		errors.Is(err, ErrProtocolIsPaused) ||
		errors.Is(err, ErrCreditHasOutstandingBalance) ||
		errors.Is(err, ErrCreditHasUnfulfilledCommitment) ||
		errors.Is(err, ErrCreditAlreadyExists) ||
		errors.Is(err, ErrDefaultTriggeredTooEarly) ||
		errors.Is(err, ErrDefaultHasAlreadyBeenTriggered) ||
		errors.Is(err, ErrDuplicateIdempotencyKey)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	for _, target := range []error{
		ErrInvalidTimeRange,
		ErrZeroAmountProvided,
		ErrZeroReceivableIDProvided,
		ErrZeroReceivableAmount,
		ErrZeroPayPeriods,
		ErrBorrowerRequired,
		ErrCommittedAmountGreaterThanCreditLimit,
		ErrGreaterThanMaxCreditLine,
		ErrCreditLimitExceeded,
		ErrDrawdownAmountTooLow,
		ErrReceivableIDMismatch,
		ErrReceivableAlreadyMatured,
		ErrInvalidReceivableState,
		ErrReceivableNotApproved,
		ErrCreditNotReceivableBacked,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

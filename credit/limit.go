package credit

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// CreditLimitLedger is the available-credit counter of receivable-backed
// lines. It never touches principal or yield; it only guarantees that
// available credit stays within [0, creditLimit].
//
// Approving a receivable increases available credit. Drawing down, or an
// explicit reduction by the credit contract, decreases it.
type CreditLimitLedger struct {
	store Store
}

// NewCreditLimitLedger binds a ledger to st. Inside a Manager operation st
// is the transaction view.
func NewCreditLimitLedger(st Store) *CreditLimitLedger {
	return &CreditLimitLedger{store: st}
}

// GetAvailableCredit returns the current counter for hash.
func (l *CreditLimitLedger) GetAvailableCredit(ctx context.Context, hash CreditHash) (decimal.Decimal, error) {
	return l.store.AvailableCredit(ctx, hash)
}

// IncreaseAvailableCredit adds amount, failing if the result would exceed
// the credit limit. Only evaluation agents and the credit contract may
// increase.
func (l *CreditLimitLedger) IncreaseAvailableCredit(ctx context.Context, caller Caller, hash CreditHash, amount decimal.Decimal) (decimal.Decimal, error) {
	if err := caller.require("increase available credit", ErrUnauthorized, RoleEvaluationAgent, RoleCreditContract); err != nil {
		return zero, err
	}
	if !amount.IsPositive() {
		return zero, ErrZeroAmountProvided
	}

	credit, err := l.store.GetCredit(ctx, hash)
	if err != nil {
		return zero, err
	}
	available, err := l.store.AvailableCredit(ctx, hash)
	if err != nil {
		return zero, err
	}

	updated := available.Add(amount)
	if updated.GreaterThan(credit.Config.CreditLimit) {
		return available, &LimitExceededError{
			Hash:      hash,
			Limit:     credit.Config.CreditLimit,
			Available: available,
			Requested: amount,
		}
	}
	if err := l.store.SetAvailableCredit(ctx, hash, updated); err != nil {
		return available, fmt.Errorf("increase available credit: %w", err)
	}
	return updated, nil
}

// DecreaseAvailableCredit subtracts amount, failing if amount exceeds what
// is available. Only the credit contract may decrease.
func (l *CreditLimitLedger) DecreaseAvailableCredit(ctx context.Context, caller Caller, hash CreditHash, amount decimal.Decimal) (decimal.Decimal, error) {
	if err := caller.require("decrease available credit", ErrUnauthorized, RoleCreditContract); err != nil {
		return zero, err
	}
	if !amount.IsPositive() {
		return zero, ErrZeroAmountProvided
	}

	credit, err := l.store.GetCredit(ctx, hash)
	if err != nil {
		return zero, err
	}
	available, err := l.store.AvailableCredit(ctx, hash)
	if err != nil {
		return zero, err
	}
	if amount.GreaterThan(available) {
		return available, &LimitExceededError{
			Hash:      hash,
			Limit:     credit.Config.CreditLimit,
			Available: available,
			Requested: amount,
		}
	}

	updated := available.Sub(amount)
	if err := l.store.SetAvailableCredit(ctx, hash, updated); err != nil {
		return available, fmt.Errorf("decrease available credit: %w", err)
	}
	return updated, nil
}

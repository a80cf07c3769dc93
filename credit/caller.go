package credit

import (
	"context"
	"slices"
	"sync/atomic"
)

// Role is a capability a caller holds.
type Role string

const (
	// RoleEvaluationAgent approves credits and receivables and triggers defaults.
	RoleEvaluationAgent Role = "evaluation_agent"

	// RoleCreditContract is the engine acting on its own behalf: it alone
	// may decrease available credit.
	RoleCreditContract Role = "credit_contract"

	RoleBorrower     Role = "borrower"
	RolePoolOperator Role = "pool_operator"
)

// Caller is the identity an operation runs as. It is resolved once at the
// API boundary and passed down explicitly.
type Caller struct {
	ID    string
	Roles []Role
}

func (c Caller) Has(role Role) bool { return slices.Contains(c.Roles, role) }

// HasAny returns true if the caller holds at least one of roles.
func (c Caller) HasAny(roles ...Role) bool {
	for _, r := range roles {
		if c.Has(r) {
			return true
		}
	}
	return false
}

// require fails with an AuthorizationError unwrapping to sentinel when the
// caller holds none of roles.
func (c Caller) require(op string, sentinel error, roles ...Role) error {
	if c.HasAny(roles...) {
		return nil
	}
	return &AuthorizationError{Op: op, CallerID: c.ID, Required: roles, Err: sentinel}
}

// RequireRole is require for callers outside this package.
func (c Caller) RequireRole(op string, sentinel error, roles ...Role) error {
	return c.require(op, sentinel, roles...)
}

// requireBorrower checks the caller is the credit's borrower.
func (c Caller) requireBorrower(op string, credit *Credit) error {
	if c.Has(RoleBorrower) && c.ID == credit.Borrower {
		return nil
	}
	return &AuthorizationError{Op: op, CallerID: c.ID, Required: []Role{RoleBorrower}, Err: ErrUnauthorized}
}

// =============================================================================
// CONTEXT
// =============================================================================

type callerKey struct{}

// WithCaller stores c in ctx.
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// CallerFrom returns the caller stored in ctx, or an anonymous caller.
func CallerFrom(ctx context.Context) Caller {
	if c, ok := ctx.Value(callerKey{}).(Caller); ok {
		return c
	}
	return Caller{}
}

// =============================================================================
// EXTERNAL COLLABORATORS
// =============================================================================

// PauseChecker reports the protocol-wide pause flag.
type PauseChecker interface {
	IsProtocolPaused(ctx context.Context) bool
}

// NeverPaused is a PauseChecker for deployments without a pause switch.
type NeverPaused struct{}

func (NeverPaused) IsProtocolPaused(context.Context) bool { return false }

// PauseFlag is an in-process pause switch flipped by pool operators.
type PauseFlag struct {
	paused atomic.Bool
}

func (f *PauseFlag) IsProtocolPaused(context.Context) bool { return f.paused.Load() }

// Set pauses or unpauses the protocol.
func (f *PauseFlag) Set(paused bool) { f.paused.Store(paused) }

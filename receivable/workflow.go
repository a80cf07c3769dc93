package receivable

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/credit-engine/credit"
)

// Workflow approves receivables against receivable-backed credits and
// draws on them.
type Workflow struct {
	manager  *credit.Manager
	registry Registry
	logger   *slog.Logger
}

func NewWorkflow(manager *credit.Manager, registry Registry, logger *slog.Logger) *Workflow {
	if logger == nil {
		logger = slog.Default()
	}
	return &Workflow{
		manager:  manager,
		registry: registry,
		logger:   logger.With("component", "receivable"),
	}
}

// Registry returns the receivable registry the workflow validates against.
func (w *Workflow) Registry() Registry { return w.registry }

// ApprovalResult describes a receivable approval. Created is false when the
// receivable had already been approved and nothing changed.
type ApprovalResult struct {
	Approval  credit.ReceivableApproval
	Available decimal.Decimal
	Created   bool
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidateReceivableOwnership returns the receivable if borrower owns it.
// Unknown receivables and receivables owned by someone else both fail with
// credit.ErrReceivableIDMismatch.
func (w *Workflow) ValidateReceivableOwnership(ctx context.Context, borrower string, id credit.ReceivableID) (*Receivable, error) {
	if id == 0 {
		return nil, credit.ErrZeroReceivableIDProvided
	}
	r, err := w.registry.GetReceivable(ctx, id)
	if errors.Is(err, credit.ErrReceivableNotFound) {
		return nil, fmt.Errorf("%w: receivable %d does not exist", credit.ErrReceivableIDMismatch, id)
	}
	if err != nil {
		return nil, err
	}
	if r.Owner != borrower {
		return nil, fmt.Errorf("%w: receivable %d is not owned by %s", credit.ErrReceivableIDMismatch, id, borrower)
	}
	return r, nil
}

// ValidateReceivableStatus fails if the receivable has matured by now or is
// not in one of the allowed states. Minted is allowed when none are given.
func ValidateReceivableStatus(maturity time.Time, state State, now time.Time, allowed ...State) error {
	if !now.Before(maturity) {
		return fmt.Errorf("%w: matured %s", credit.ErrReceivableAlreadyMatured, maturity.UTC().Format(time.RFC3339))
	}
	if len(allowed) == 0 {
		allowed = []State{StateMinted}
	}
	for _, s := range allowed {
		if state == s {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", credit.ErrInvalidReceivableState, state)
}

// creditHashFor finds the receivable-backed credit of borrower: the
// borrower-level line if there is one, else the line opened for id.
func (w *Workflow) creditHashFor(ctx context.Context, borrower string, id credit.ReceivableID) (credit.CreditHash, error) {
	hash := w.manager.BorrowerHash(borrower)
	_, err := w.manager.GetCredit(ctx, hash)
	if errors.Is(err, credit.ErrCreditNotFound) {
		hash = w.manager.ReceivableHash(borrower, id)
		_, err = w.manager.GetCredit(ctx, hash)
	}
	if err != nil {
		return credit.CreditHash{}, err
	}
	return hash, nil
}

// =============================================================================
// APPROVAL
// =============================================================================

// ApproveReceivable raises the available credit of borrower's credit by the
// receivable's amount times the credit's advance rate. Evaluation agents and
// the credit contract may approve.
func (w *Workflow) ApproveReceivable(ctx context.Context, caller credit.Caller, borrower string, id credit.ReceivableID, now time.Time) (*ApprovalResult, error) {
	if err := caller.RequireRole("approve receivable", credit.ErrBorrowerRequired,
		credit.RoleEvaluationAgent, credit.RoleCreditContract); err != nil {
		return nil, err
	}
	if err := w.manager.CheckNotPaused(ctx); err != nil {
		return nil, err
	}

	r, err := w.ValidateReceivableOwnership(ctx, borrower, id)
	if err != nil {
		return nil, err
	}
	if r.Amount.IsZero() {
		return nil, credit.ErrZeroReceivableAmount
	}
	if err := ValidateReceivableStatus(r.MaturityDate, r.State, now); err != nil {
		return nil, err
	}

	hash, err := w.creditHashFor(ctx, borrower, id)
	if err != nil {
		return nil, err
	}

	unlock := w.manager.Lock(hash)
	defer unlock()

	var result ApprovalResult
	err = w.manager.Store().WithTx(ctx, func(st credit.Store) error {
		c, err := st.GetCredit(ctx, hash)
		if err != nil {
			return err
		}
		if !c.Config.ReceivableBacked {
			return credit.ErrCreditNotReceivableBacked
		}
		switch c.Record.State {
		case credit.StateApproved, credit.StateGoodStanding:
		default:
			return &credit.StateError{Hash: hash, State: c.Record.State, Err: credit.ErrCreditNotInStateForReceivableApproval}
		}

		ledger := credit.NewCreditLimitLedger(st)
		existing, err := st.GetReceivableApproval(ctx, id)
		if err != nil {
			return err
		}
		if existing != nil {
			if existing.Borrower != borrower || existing.CreditHash != hash {
				return fmt.Errorf("%w: receivable %d is tied to another credit", credit.ErrReceivableIDMismatch, id)
			}
			available, err := ledger.GetAvailableCredit(ctx, hash)
			if err != nil {
				return err
			}
			result = ApprovalResult{Approval: *existing, Available: available}
			return nil
		}

		incremental := credit.ApplyBps(r.Amount, c.Config.AdvanceRateInBps)
		available, err := ledger.IncreaseAvailableCredit(ctx, caller, hash, incremental)
		if err != nil {
			return err
		}

		approval := credit.ReceivableApproval{
			ReceivableID: id,
			Borrower:     borrower,
			CreditHash:   hash,
			Amount:       r.Amount,
			Incremental:  incremental,
			ApprovedBy:   caller.ID,
			ApprovedAt:   now,
		}
		if err := st.SaveReceivableApproval(ctx, approval); err != nil {
			return err
		}
		event := credit.NewEvent(hash, credit.EventReceivableApproved, incremental, now, caller.ID).
			WithKey(credit.ReceivableApprovalKey(id)).
			With("receivable_id", fmt.Sprint(id)).
			With("receivable_amount", r.Amount.String()).
			With("available", available.String())
		if err := st.AppendEvent(ctx, event); err != nil {
			return err
		}
		result = ApprovalResult{Approval: approval, Available: available, Created: true}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Created {
		w.logger.InfoContext(ctx, "receivable approved",
			"credit", hash.Short(), "receivable", id, "incremental", result.Approval.Incremental.String(),
			"available", result.Available.String())
	}
	return &result, nil
}

// =============================================================================
// DRAWDOWN
// =============================================================================

// DrawdownWithReceivable draws amount on borrower's receivable-backed credit
// against an approved receivable.
func (w *Workflow) DrawdownWithReceivable(ctx context.Context, caller credit.Caller, borrower string, id credit.ReceivableID, amount decimal.Decimal, now time.Time) (*credit.DrawdownResult, error) {
	r, err := w.ValidateReceivableOwnership(ctx, borrower, id)
	if err != nil {
		return nil, err
	}
	if err := ValidateReceivableStatus(r.MaturityDate, r.State, now, StateMinted, StateApproved); err != nil {
		return nil, err
	}
	hash, err := w.creditHashFor(ctx, borrower, id)
	if err != nil {
		return nil, err
	}

	// Mark the receivable drawn first; restore it if the drawdown fails.
	prior := *r
	if r.State == StateMinted {
		r.State = StateApproved
		if err := w.registry.UpdateReceivable(ctx, *r); err != nil {
			return nil, fmt.Errorf("mark receivable %d drawn: %w", id, err)
		}
	}

	result, err := w.manager.DrawdownWithReceivable(ctx, caller, hash, id, amount, now)
	if err != nil {
		if prior.State != r.State {
			if restoreErr := w.registry.UpdateReceivable(ctx, prior); restoreErr != nil {
				w.logger.ErrorContext(ctx, "failed to restore receivable state", "receivable", id, "error", restoreErr)
				return nil, errors.Join(err, fmt.Errorf("restore receivable %d to %s: %w", id, prior.State, restoreErr))
			}
		}
		return nil, err
	}
	return result, nil
}

/*
manager.go - Operations on stored credits

PURPOSE:
  Manager is the only writer of credits. Each operation:

    1. checks the caller's role and the protocol pause flag
    2. takes the credit's lock
    3. opens a store transaction and loads the credit and its pool
    4. refreshes the bill to now (DueCalculator)
    5. validates and applies the change
    6. moves funds through the Treasury
    7. saves the credit and appends an event

  Any failure rolls back the whole transaction, so a failed call leaves no
  trace. Operations on different credits run concurrently; operations on
  the same credit are serialized by the per-hash lock.

SEE ALSO:
  - due.go: bill refresh
  - payment.go: payment waterfall
  - limit.go: available credit of receivable-backed lines
  - receivable/workflow.go: receivable approval on top of Manager
*/
package credit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/credit-engine/calendar"
)

// Manager runs credit operations atomically.
type Manager struct {
	store    TxStore
	oracle   FeeOracle
	treasury Treasury
	pause    PauseChecker
	logger   *slog.Logger
	contract string
	locks    sync.Map // CreditHash -> *sync.Mutex
}

// ManagerDeps are the collaborators a Manager needs. Pause and Logger are
// optional.
type ManagerDeps struct {
	Store    TxStore
	Oracle   FeeOracle
	Treasury Treasury
	Pause    PauseChecker
	Logger   *slog.Logger

	// Contract is the identity of this engine: it namespaces credit hashes
	// and is the caller id used when the engine acts on its own behalf.
	Contract string
}

func NewManager(d ManagerDeps) *Manager {
	if d.Pause == nil {
		d.Pause = NeverPaused{}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Treasury == nil {
		d.Treasury = LogTreasury{Logger: d.Logger}
	}
	return &Manager{
		store:    d.Store,
		oracle:   d.Oracle,
		treasury: d.Treasury,
		pause:    d.Pause,
		logger:   d.Logger.With("component", "credit"),
		contract: d.Contract,
	}
}

// Store exposes the backing store for collaborators that extend Manager.
func (m *Manager) Store() TxStore { return m.store }

// Oracle exposes the fee oracle.
func (m *Manager) Oracle() FeeOracle { return m.oracle }

// Self is the caller identity of the engine acting on its own behalf.
func (m *Manager) Self() Caller {
	return Caller{ID: m.contract, Roles: []Role{RoleCreditContract}}
}

// HashFor derives the key a credit with cc is stored under.
func (m *Manager) HashFor(borrower string, receivableID ReceivableID, cc CreditConfig) CreditHash {
	return StrategyFor(m.contract, cc).CreditHash(borrower, receivableID)
}

// BorrowerHash is the key of the borrower-level credit of borrower.
func (m *Manager) BorrowerHash(borrower string) CreditHash {
	return BorrowerLevelHash{Contract: m.contract}.CreditHash(borrower, 0)
}

// ReceivableHash is the key of the credit opened for one receivable.
func (m *Manager) ReceivableHash(borrower string, receivableID ReceivableID) CreditHash {
	return ReceivableLevelHash{Contract: m.contract}.CreditHash(borrower, receivableID)
}

// Lock serializes operations on one credit. Call the returned func to
// release it.
func (m *Manager) Lock(hash CreditHash) func() {
	v, _ := m.locks.LoadOrStore(hash, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// CheckNotPaused fails with ErrProtocolIsPaused while the pause flag is set.
func (m *Manager) CheckNotPaused(ctx context.Context) error {
	if m.pause.IsProtocolPaused(ctx) {
		return ErrProtocolIsPaused
	}
	return nil
}

// =============================================================================
// RESULTS
// =============================================================================

// DrawdownResult describes a completed drawdown.
type DrawdownResult struct {
	Credit    *Credit
	Amount    decimal.Decimal
	Fee       decimal.Decimal
	NetAmount decimal.Decimal
	First     bool
}

// PaymentResult describes a completed payment.
type PaymentResult struct {
	Credit     *Credit
	Applied    decimal.Decimal
	Allocation PaymentAllocation
	PaidOff    bool
}

// ApproveCreditRequest carries the terms of a new credit.
type ApproveCreditRequest struct {
	PoolID       string
	Borrower     string
	ReceivableID ReceivableID
	Config       CreditConfig
}

// =============================================================================
// APPROVAL
// =============================================================================

// ApproveCredit creates a credit in the Approved state, or replaces the
// terms of one that was never drawn. Evaluation agents only.
func (m *Manager) ApproveCredit(ctx context.Context, caller Caller, req ApproveCreditRequest, now time.Time) (*Credit, error) {
	if err := caller.require("approve credit", ErrUnauthorized, RoleEvaluationAgent); err != nil {
		return nil, err
	}
	if err := m.CheckNotPaused(ctx); err != nil {
		return nil, err
	}
	if req.Borrower == "" {
		return nil, ErrBorrowerRequired
	}

	pool, err := m.oracle.PoolConfig(ctx, req.PoolID)
	if err != nil {
		return nil, err
	}
	cc, err := normalizeConfig(req.Config, pool)
	if err != nil {
		return nil, err
	}
	if !cc.BorrowerLevelCredit && req.ReceivableID == 0 {
		return nil, ErrZeroReceivableIDProvided
	}

	hash := m.HashFor(req.Borrower, req.ReceivableID, cc)
	unlock := m.Lock(hash)
	defer unlock()

	var approved Credit
	err = m.store.WithTx(ctx, func(st Store) error {
		existing, err := st.GetCredit(ctx, hash)
		switch {
		case errors.Is(err, ErrCreditNotFound):
		case err != nil:
			return err
		case existing.Record.State != StateDeleted && existing.Record.State != StateApproved:
			return &StateError{Hash: hash, State: existing.Record.State, Err: ErrCreditAlreadyExists}
		}

		approved = Credit{
			Hash:         hash,
			PoolID:       req.PoolID,
			Borrower:     req.Borrower,
			ReceivableID: req.ReceivableID,
			Config:       cc,
			Record: CreditRecord{
				RemainingPeriods: cc.NumOfPeriods,
				State:            StateApproved,
			},
			CreatedAt: now,
			UpdatedAt: now,
		}
		if existing != nil {
			approved.CreatedAt = existing.CreatedAt
		}
		if err := st.SaveCredit(ctx, approved); err != nil {
			return err
		}
		if cc.ReceivableBacked {
			// Receivable-backed lines only gain available credit through
			// receivable approvals. A re-approval keeps what was approved so far.
			available, err := st.AvailableCredit(ctx, hash)
			if err != nil {
				return err
			}
			if err := st.SetAvailableCredit(ctx, hash, minDec(available, cc.CreditLimit)); err != nil {
				return err
			}
		}
		return st.AppendEvent(ctx, NewEvent(hash, EventCreditApproved, cc.CreditLimit, now, caller.ID).
			With("borrower", req.Borrower).
			With("pool", req.PoolID))
	})
	if err != nil {
		return nil, err
	}

	m.logger.InfoContext(ctx, "credit approved",
		"credit", hash.Short(), "borrower", req.Borrower, "limit", cc.CreditLimit.String())
	return &approved, nil
}

// normalizeConfig validates cc and fills pool defaults.
func normalizeConfig(cc CreditConfig, pool PoolConfig) (CreditConfig, error) {
	if !cc.CreditLimit.IsPositive() {
		return cc, fmt.Errorf("credit limit: %w", ErrZeroAmountProvided)
	}
	if cc.NumOfPeriods <= 0 {
		return cc, ErrZeroPayPeriods
	}
	if cc.CommittedAmount.IsNegative() || cc.CommittedAmount.GreaterThan(cc.CreditLimit) {
		return cc, ErrCommittedAmountGreaterThanCreditLimit
	}
	if maxLine := pool.Settings.MaxCreditLine; maxLine.IsPositive() && cc.CreditLimit.GreaterThan(maxLine) {
		return cc, ErrGreaterThanMaxCreditLine
	}
	if cc.YieldInBps == 0 {
		cc.YieldInBps = pool.Fees.YieldInBps
	}
	if cc.AdvanceRateInBps == 0 {
		cc.AdvanceRateInBps = pool.Settings.AdvanceRateInBps
	}
	if cc.YieldInBps < 0 || cc.AdvanceRateInBps < 0 || cc.AdvanceRateInBps > BpsDenominator {
		return cc, fmt.Errorf("rates out of range: yield %d bps, advance %d bps", cc.YieldInBps, cc.AdvanceRateInBps)
	}
	return cc, nil
}

// =============================================================================
// SHARED PLUMBING
// =============================================================================

// withCredit runs fn on the credit stored under hash inside one
// transaction, holding the credit's lock. fn mutates c; the caller decides
// whether to save.
func (m *Manager) withCredit(ctx context.Context, hash CreditHash, fn func(st Store, c *Credit, pool PoolConfig) error) error {
	unlock := m.Lock(hash)
	defer unlock()

	return m.store.WithTx(ctx, func(st Store) error {
		c, err := st.GetCredit(ctx, hash)
		if err != nil {
			return err
		}
		pool, err := m.oracle.PoolConfig(ctx, c.PoolID)
		if err != nil {
			return err
		}
		return fn(st, c, pool)
	})
}

// refresh brings c's bill to now in place. Returns whether the borrower is
// late and whether anything changed.
func refresh(c *Credit, pool PoolConfig, now time.Time) (bool, bool, error) {
	calc := NewDueCalculator(pool)
	cr, dd, late, err := calc.GetDueInfo(c.Config, c.Record, c.DueDetail, now, c.MaturityDate)
	if err != nil {
		return false, false, err
	}
	changed := !cr.Equal(c.Record) || !dd.Equal(c.DueDetail)
	c.Record, c.DueDetail = cr, dd
	return late, changed, nil
}

func (m *Manager) save(ctx context.Context, st Store, c *Credit, now time.Time, events ...Event) error {
	c.UpdatedAt = now
	if err := st.SaveCredit(ctx, *c); err != nil {
		return err
	}
	for _, e := range events {
		if err := st.AppendEvent(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func refreshedEvent(c *Credit, now time.Time, actor string) Event {
	return NewEvent(c.Hash, EventBillRefreshed, c.Record.NextDue, now, actor).
		With("next_due_date", c.Record.NextDueDate.UTC().Format(time.RFC3339)).
		With("total_past_due", c.Record.TotalPastDue.String()).
		With("missed_periods", fmt.Sprint(c.Record.MissedPeriods)).
		With("state", c.Record.State.String())
}

// =============================================================================
// DRAWDOWN
// =============================================================================

// Drawdown lends amount to the borrower. Only the credit's borrower may draw.
func (m *Manager) Drawdown(ctx context.Context, caller Caller, hash CreditHash, amount decimal.Decimal, now time.Time) (*DrawdownResult, error) {
	return m.drawdownWith(ctx, caller, hash, 0, amount, now)
}

// DrawdownWithReceivable is Drawdown on a receivable-backed line, checking
// that receivableID was approved for this credit first.
func (m *Manager) DrawdownWithReceivable(ctx context.Context, caller Caller, hash CreditHash, receivableID ReceivableID, amount decimal.Decimal, now time.Time) (*DrawdownResult, error) {
	if receivableID == 0 {
		return nil, ErrZeroReceivableIDProvided
	}
	return m.drawdownWith(ctx, caller, hash, receivableID, amount, now)
}

func (m *Manager) drawdownWith(ctx context.Context, caller Caller, hash CreditHash, receivableID ReceivableID, amount decimal.Decimal, now time.Time) (*DrawdownResult, error) {
	if err := m.CheckNotPaused(ctx); err != nil {
		return nil, err
	}
	if !amount.IsPositive() {
		return nil, ErrZeroAmountProvided
	}

	var result DrawdownResult
	err := m.withCredit(ctx, hash, func(st Store, c *Credit, pool PoolConfig) error {
		if err := caller.requireBorrower("drawdown", c); err != nil {
			return err
		}
		if receivableID != 0 {
			if err := checkApproval(ctx, st, c, receivableID); err != nil {
				return err
			}
		}
		r, err := m.drawdown(ctx, st, c, pool, amount, now)
		if err != nil {
			return err
		}
		result = *r
		event := NewEvent(c.Hash, EventDrawdownMade, amount, now, caller.ID).
			With("fee", r.Fee.String()).
			With("net_amount", r.NetAmount.String())
		if receivableID != 0 {
			event = event.With("receivable_id", fmt.Sprint(receivableID))
		}
		return m.save(ctx, st, c, now, event)
	})
	if err != nil {
		return nil, err
	}

	m.logger.InfoContext(ctx, "drawdown",
		"credit", hash.Short(), "amount", amount.String(), "fee", result.Fee.String(), "first", result.First)
	return &result, nil
}

func checkApproval(ctx context.Context, st Store, c *Credit, receivableID ReceivableID) error {
	if !c.Config.ReceivableBacked {
		return ErrCreditNotReceivableBacked
	}
	approval, err := st.GetReceivableApproval(ctx, receivableID)
	if err != nil {
		return err
	}
	if approval == nil || approval.Borrower != c.Borrower || approval.CreditHash != c.Hash {
		return fmt.Errorf("%w: receivable %d", ErrReceivableNotApproved, receivableID)
	}
	return nil
}

// drawdown applies a drawdown to c in place and disburses the net amount.
func (m *Manager) drawdown(ctx context.Context, st Store, c *Credit, pool PoolConfig, amount decimal.Decimal, now time.Time) (*DrawdownResult, error) {
	switch c.Record.State {
	case StateApproved:
	case StateGoodStanding:
		if !c.Config.Revolving {
			return nil, &StateError{Hash: c.Hash, State: c.Record.State, Err: ErrAttemptedDrawdownOnNonRevolvingLine}
		}
	default:
		return nil, &StateError{Hash: c.Hash, State: c.Record.State, Err: ErrCreditNotInStateForDrawdown}
	}

	first := c.Record.NextDueDate.IsZero()
	calc := NewDueCalculator(pool)
	if !first {
		late, _, err := refresh(c, pool, now)
		if err != nil {
			return nil, err
		}
		if late {
			return nil, &StateError{Hash: c.Hash, State: c.Record.State, Err: ErrDrawdownNotAllowedInLateState}
		}
		if c.Record.RemainingPeriods == 0 || pastMaturity(now, c.MaturityDate) {
			return nil, &StateError{Hash: c.Hash, State: c.Record.State, Err: ErrDrawdownNotAllowedAfterDueDate}
		}
		// Inside the grace window the due bill stays open until it is paid.
		if c.Record.NextDue.IsPositive() && now.After(c.Record.NextDueDate) {
			return nil, &StateError{Hash: c.Hash, State: c.Record.State, Err: ErrDrawdownNotAllowedWithUnpaidBill}
		}
	}

	outstanding := OutstandingPrincipal(c.Record, c.DueDetail)
	if outstanding.Add(amount).GreaterThan(c.Config.CreditLimit) {
		return nil, &LimitExceededError{
			Hash:      c.Hash,
			Limit:     c.Config.CreditLimit,
			Available: maxDec(c.Config.CreditLimit.Sub(outstanding), zero),
			Requested: amount,
		}
	}
	if c.Config.ReceivableBacked {
		if _, err := NewCreditLimitLedger(st).DecreaseAvailableCredit(ctx, m.Self(), c.Hash, amount); err != nil {
			return nil, err
		}
	}

	fee := pool.Fees.FrontLoadingFee(amount)
	if fee.GreaterThan(amount) {
		return nil, ErrDrawdownAmountTooLow
	}

	if first {
		if c.MaturityDate.IsZero() {
			c.MaturityDate = calendar.MaturityDate(c.Config.PeriodDuration, c.Config.NumOfPeriods, now)
		}
		c.Record.UnbilledPrincipal = c.Record.UnbilledPrincipal.Add(amount)
		cr, dd, _, err := calc.GetDueInfo(c.Config, c.Record, c.DueDetail, now, c.MaturityDate)
		if err != nil {
			return nil, err
		}
		c.Record, c.DueDetail = cr, dd
	} else {
		delta, accrued, err := calc.AdditionalYieldForDrawdown(c.Config, c.Record, c.DueDetail, amount, now)
		if err != nil {
			return nil, err
		}
		c.Record.UnbilledPrincipal = c.Record.UnbilledPrincipal.Add(amount)
		c.DueDetail.Accrued = accrued
		c.Record.YieldDue = c.Record.YieldDue.Add(delta)
		c.Record.NextDue = c.Record.NextDue.Add(delta)
	}

	net := amount.Sub(fee)
	if err := m.treasury.Disburse(ctx, c.PoolID, c.Borrower, net); err != nil {
		return nil, fmt.Errorf("disburse drawdown: %w", err)
	}

	return &DrawdownResult{
		Credit:    c,
		Amount:    amount,
		Fee:       fee,
		NetAmount: net,
		First:     first,
	}, nil
}

// =============================================================================
// PAYMENT
// =============================================================================

// MakePayment applies amount to the credit's balance. The borrower or a
// pool operator may pay. Anything beyond the payoff amount is not collected.
func (m *Manager) MakePayment(ctx context.Context, caller Caller, hash CreditHash, amount decimal.Decimal, now time.Time) (*PaymentResult, error) {
	if err := m.CheckNotPaused(ctx); err != nil {
		return nil, err
	}
	if !amount.IsPositive() {
		return nil, ErrZeroAmountProvided
	}

	var result PaymentResult
	err := m.withCredit(ctx, hash, func(st Store, c *Credit, pool PoolConfig) error {
		if !caller.Has(RolePoolOperator) {
			if err := caller.requireBorrower("make payment", c); err != nil {
				return err
			}
		}
		switch c.Record.State {
		case StateGoodStanding, StateDelayed, StateDefaulted:
		default:
			return &StateError{Hash: c.Hash, State: c.Record.State, Err: ErrCreditNotInStateForMakingPayment}
		}

		if _, _, err := refresh(c, pool, now); err != nil {
			return err
		}

		cr, dd, alloc := ApplyPayment(c.Record, c.DueDetail, amount)
		applied := alloc.Total()
		if applied.IsPositive() {
			if err := m.treasury.Collect(ctx, c.PoolID, c.Borrower, applied); err != nil {
				return fmt.Errorf("collect payment: %w", err)
			}
		}
		c.Record, c.DueDetail = cr, dd

		result = PaymentResult{
			Credit:     c,
			Applied:    applied,
			Allocation: alloc,
			PaidOff:    PayoffAmount(cr).IsZero(),
		}
		event := NewEvent(c.Hash, EventPaymentMade, applied, now, caller.ID).
			With("yield_past_due", alloc.YieldPastDue.String()).
			With("late_fee", alloc.LateFee.String()).
			With("principal_past_due", alloc.PrincipalPastDue.String()).
			With("yield_due", alloc.YieldDue.String()).
			With("principal_due", alloc.PrincipalDue.String()).
			With("unbilled_principal", alloc.UnbilledPrincipal.String())
		return m.save(ctx, st, c, now, event)
	})
	if err != nil {
		return nil, err
	}

	m.logger.InfoContext(ctx, "payment",
		"credit", hash.Short(), "amount", amount.String(), "applied", result.Applied.String(), "paid_off", result.PaidOff)
	return &result, nil
}

// =============================================================================
// REFRESH
// =============================================================================

// RefreshCredit brings the stored bill up to now. Anyone may refresh.
// Refreshing twice at the same instant changes nothing the second time.
func (m *Manager) RefreshCredit(ctx context.Context, hash CreditHash, now time.Time) (*Credit, bool, error) {
	if err := m.CheckNotPaused(ctx); err != nil {
		return nil, false, err
	}

	var (
		refreshed Credit
		late      bool
	)
	err := m.withCredit(ctx, hash, func(st Store, c *Credit, pool PoolConfig) error {
		isLate, changed, err := refresh(c, pool, now)
		if err != nil {
			return err
		}
		late = isLate
		if changed {
			if err := m.save(ctx, st, c, now, refreshedEvent(c, now, m.contract)); err != nil {
				return err
			}
		}
		refreshed = *c
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return &refreshed, late, nil
}

// PreviewCredit returns the credit as RefreshCredit would leave it, without
// saving anything.
func (m *Manager) PreviewCredit(ctx context.Context, hash CreditHash, now time.Time) (*Credit, bool, error) {
	c, err := m.store.GetCredit(ctx, hash)
	if err != nil {
		return nil, false, err
	}
	pool, err := m.oracle.PoolConfig(ctx, c.PoolID)
	if err != nil {
		return nil, false, err
	}
	late, _, err := refresh(c, pool, now)
	if err != nil {
		return nil, false, err
	}
	return c, late, nil
}

// GetPayoffAmount is what the borrower must pay at now to settle in full.
func (m *Manager) GetPayoffAmount(ctx context.Context, hash CreditHash, now time.Time) (decimal.Decimal, error) {
	c, _, err := m.PreviewCredit(ctx, hash, now)
	if err != nil {
		return zero, err
	}
	return PayoffAmount(c.Record), nil
}

// GetCredit returns the stored credit without refreshing it.
func (m *Manager) GetCredit(ctx context.Context, hash CreditHash) (*Credit, error) {
	return m.store.GetCredit(ctx, hash)
}

// Events returns the event log of a credit.
func (m *Manager) Events(ctx context.Context, hash CreditHash) ([]Event, error) {
	return m.store.Events(ctx, hash)
}

// =============================================================================
// DEFAULT AND CLOSURE
// =============================================================================

// TriggerDefault marks a delinquent credit Defaulted once its missed
// periods span at least the pool's default grace period. Evaluation agents
// only. Returns the loss: the payoff amount at default.
func (m *Manager) TriggerDefault(ctx context.Context, caller Caller, hash CreditHash, now time.Time) (decimal.Decimal, error) {
	if err := caller.require("trigger default", ErrUnauthorized, RoleEvaluationAgent); err != nil {
		return zero, err
	}
	if err := m.CheckNotPaused(ctx); err != nil {
		return zero, err
	}

	var loss decimal.Decimal
	err := m.withCredit(ctx, hash, func(st Store, c *Credit, pool PoolConfig) error {
		if c.Record.State == StateDefaulted {
			return ErrDefaultHasAlreadyBeenTriggered
		}
		if _, _, err := refresh(c, pool, now); err != nil {
			return err
		}
		if c.Record.State != StateDelayed {
			return fmt.Errorf("%w: credit is %s", ErrDefaultTriggeredTooEarly, c.Record.State)
		}
		lateDays := c.Record.MissedPeriods * c.Config.PeriodDuration.Days()
		if lateDays < pool.Settings.DefaultGracePeriodInDays {
			return fmt.Errorf("%w: %d days late, default grace is %d days",
				ErrDefaultTriggeredTooEarly, lateDays, pool.Settings.DefaultGracePeriodInDays)
		}

		c.Record.State = StateDefaulted
		loss = PayoffAmount(c.Record)
		return m.save(ctx, st, c, now, NewEvent(c.Hash, EventDefaultTriggered, loss, now, caller.ID).
			With("missed_periods", fmt.Sprint(c.Record.MissedPeriods)))
	})
	if err != nil {
		return zero, err
	}

	m.logger.WarnContext(ctx, "credit defaulted", "credit", hash.Short(), "loss", loss.String())
	return loss, nil
}

// CloseCredit moves a credit with nothing owed to Deleted. The borrower or
// an evaluation agent may close.
func (m *Manager) CloseCredit(ctx context.Context, caller Caller, hash CreditHash, now time.Time) error {
	if err := m.CheckNotPaused(ctx); err != nil {
		return err
	}

	err := m.withCredit(ctx, hash, func(st Store, c *Credit, pool PoolConfig) error {
		if !caller.Has(RoleEvaluationAgent) {
			if err := caller.requireBorrower("close credit", c); err != nil {
				return err
			}
		}
		if c.Record.State == StateDeleted {
			return &StateError{Hash: c.Hash, State: c.Record.State, Err: ErrCreditNotInStateForUpdate}
		}
		if _, _, err := refresh(c, pool, now); err != nil {
			return err
		}
		if PayoffAmount(c.Record).IsPositive() {
			return fmt.Errorf("%w: payoff %s", ErrCreditHasOutstandingBalance, PayoffAmount(c.Record))
		}
		if c.Record.State != StateApproved && c.Config.CommittedAmount.IsPositive() && c.Record.RemainingPeriods > 0 {
			return ErrCreditHasUnfulfilledCommitment
		}

		c.Record.State = StateDeleted
		c.Record.RemainingPeriods = 0
		if err := st.SetAvailableCredit(ctx, c.Hash, zero); err != nil {
			return err
		}
		return m.save(ctx, st, c, now, NewEvent(c.Hash, EventCreditClosed, zero, now, caller.ID))
	})
	if err != nil {
		return err
	}

	m.logger.InfoContext(ctx, "credit closed", "credit", hash.Short())
	return nil
}

// =============================================================================
// ADMINISTRATION
// =============================================================================

// UpdateLimitAndCommitment changes the credit limit and committed amount.
// The bill is refreshed first so new terms apply from the next bill on.
// Evaluation agents only.
func (m *Manager) UpdateLimitAndCommitment(ctx context.Context, caller Caller, hash CreditHash, limit, committed decimal.Decimal, now time.Time) (*Credit, error) {
	if err := caller.require("update limit and commitment", ErrUnauthorized, RoleEvaluationAgent); err != nil {
		return nil, err
	}
	if err := m.CheckNotPaused(ctx); err != nil {
		return nil, err
	}

	var updated Credit
	err := m.withCredit(ctx, hash, func(st Store, c *Credit, pool PoolConfig) error {
		switch c.Record.State {
		case StateApproved, StateGoodStanding, StateDelayed:
		default:
			return &StateError{Hash: c.Hash, State: c.Record.State, Err: ErrCreditNotInStateForUpdate}
		}
		if _, _, err := refresh(c, pool, now); err != nil {
			return err
		}

		cc := c.Config
		cc.CreditLimit = limit
		cc.CommittedAmount = committed
		cc, err := normalizeConfig(cc, pool)
		if err != nil {
			return err
		}
		c.Config = cc

		if cc.ReceivableBacked {
			available, err := st.AvailableCredit(ctx, c.Hash)
			if err != nil {
				return err
			}
			if err := st.SetAvailableCredit(ctx, c.Hash, minDec(available, cc.CreditLimit)); err != nil {
				return err
			}
		}

		updated = *c
		return m.save(ctx, st, c, now, NewEvent(c.Hash, EventCreditUpdated, limit, now, caller.ID).
			With("committed", committed.String()))
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// ExtendRemainingPeriods adds n periods to the credit and pushes the
// maturity date out accordingly. Evaluation agents only.
func (m *Manager) ExtendRemainingPeriods(ctx context.Context, caller Caller, hash CreditHash, n int, now time.Time) (*Credit, error) {
	if err := caller.require("extend remaining periods", ErrUnauthorized, RoleEvaluationAgent); err != nil {
		return nil, err
	}
	if err := m.CheckNotPaused(ctx); err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, ErrZeroPayPeriods
	}

	var updated Credit
	err := m.withCredit(ctx, hash, func(st Store, c *Credit, pool PoolConfig) error {
		switch c.Record.State {
		case StateApproved, StateGoodStanding:
		default:
			return &StateError{Hash: c.Hash, State: c.Record.State, Err: ErrCreditNotInStateForUpdate}
		}
		if _, _, err := refresh(c, pool, now); err != nil {
			return err
		}

		c.Config.NumOfPeriods += n
		c.Record.RemainingPeriods += n
		if !c.MaturityDate.IsZero() {
			c.MaturityDate = c.MaturityDate.AddDate(0, n*c.Config.PeriodDuration.Months(), 0)
		}

		updated = *c
		return m.save(ctx, st, c, now, NewEvent(c.Hash, EventPeriodsExtended, zero, now, caller.ID).
			With("periods", fmt.Sprint(n)).
			With("maturity_date", c.MaturityDate.UTC().Format(time.RFC3339)))
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// DecreaseAvailableCredit lowers the available credit of a receivable-backed
// line. Only the credit contract may decrease.
func (m *Manager) DecreaseAvailableCredit(ctx context.Context, caller Caller, hash CreditHash, amount decimal.Decimal, now time.Time) (decimal.Decimal, error) {
	if err := caller.require("decrease available credit", ErrUnauthorized, RoleCreditContract); err != nil {
		return zero, err
	}
	if err := m.CheckNotPaused(ctx); err != nil {
		return zero, err
	}

	var available decimal.Decimal
	err := m.withCredit(ctx, hash, func(st Store, c *Credit, _ PoolConfig) error {
		updated, err := NewCreditLimitLedger(st).DecreaseAvailableCredit(ctx, caller, hash, amount)
		if err != nil {
			return err
		}
		available = updated
		return st.AppendEvent(ctx, NewEvent(c.Hash, EventAvailableCreditReduced, amount, now, caller.ID).
			With("available", updated.String()))
	})
	if err != nil {
		return zero, err
	}
	return available, nil
}

// AvailableCredit is what the borrower could draw right now: the ledger
// counter for receivable-backed lines, the unused limit otherwise.
func (m *Manager) AvailableCredit(ctx context.Context, hash CreditHash) (decimal.Decimal, error) {
	c, err := m.store.GetCredit(ctx, hash)
	if err != nil {
		return zero, err
	}
	if c.Config.ReceivableBacked {
		return NewCreditLimitLedger(m.store).GetAvailableCredit(ctx, hash)
	}
	return maxDec(c.Config.CreditLimit.Sub(OutstandingPrincipal(c.Record, c.DueDetail)), zero), nil
}

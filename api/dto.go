/*
dto.go - Data Transfer Objects for API requests and responses

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  Amounts are integral smallest-unit values, encoded as JSON strings so
  clients never round them through floating point.

TIMES:
  RFC 3339, UTC. Zero times are omitted.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/pool.go: PoolJSON and CreditJSON documents
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/credit-engine/credit"
	"github.com/warp/credit-engine/factory"
	"github.com/warp/credit-engine/receivable"
)

// =============================================================================
// REQUESTS
// =============================================================================

// ApproveCreditRequest opens a credit line for a borrower.
type ApproveCreditRequest struct {
	PoolID       string             `json:"pool_id" validate:"required"`
	Borrower     string             `json:"borrower" validate:"required"`
	ReceivableID int64              `json:"receivable_id" validate:"gte=0"`
	Config       factory.CreditJSON `json:"config"`
}

// AmountRequest carries the amount of a drawdown, payment or decrease.
type AmountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// UpdateLimitRequest changes a credit's limit and committed amount.
type UpdateLimitRequest struct {
	CreditLimit     decimal.Decimal `json:"credit_limit"`
	CommittedAmount decimal.Decimal `json:"committed_amount"`
}

// ExtendPeriodsRequest adds periods to a credit.
type ExtendPeriodsRequest struct {
	Periods int `json:"periods" validate:"gt=0"`
}

// MintReceivableRequest registers a receivable.
type MintReceivableRequest struct {
	Owner        string          `json:"owner"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	ReferenceID  string          `json:"reference_id"`
	MaturityDate time.Time       `json:"maturity_date" validate:"required"`
}

// ReceivableActionRequest names the borrower a receivable is approved or
// drawn for.
type ReceivableActionRequest struct {
	Borrower string          `json:"borrower" validate:"required"`
	Amount   decimal.Decimal `json:"amount"`
}

// PauseRequest flips the protocol pause switch.
type PauseRequest struct {
	Paused bool `json:"paused"`
}

// =============================================================================
// RESPONSES
// =============================================================================

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string               `json:"error"`
	Details string               `json:"details,omitempty"`
	Fields  []factory.FieldError `json:"fields,omitempty"`
}

// CreditDTO is a credit as clients see it.
type CreditDTO struct {
	Hash         string             `json:"hash"`
	PoolID       string             `json:"pool_id"`
	Borrower     string             `json:"borrower"`
	ReceivableID int64              `json:"receivable_id,omitempty"`
	State        string             `json:"state"`
	Config       factory.CreditJSON `json:"config"`
	Record       RecordDTO          `json:"record"`
	DueDetail    DueDetailDTO       `json:"due_detail"`
	PayoffAmount decimal.Decimal    `json:"payoff_amount"`
	Late         bool               `json:"late"`
	MaturityDate *time.Time         `json:"maturity_date,omitempty"`
	CreatedAt    *time.Time         `json:"created_at,omitempty"`
	UpdatedAt    *time.Time         `json:"updated_at,omitempty"`
}

type RecordDTO struct {
	UnbilledPrincipal decimal.Decimal `json:"unbilled_principal"`
	NextDueDate       *time.Time      `json:"next_due_date,omitempty"`
	NextDue           decimal.Decimal `json:"next_due"`
	YieldDue          decimal.Decimal `json:"yield_due"`
	PrincipalDue      decimal.Decimal `json:"principal_due"`
	TotalPastDue      decimal.Decimal `json:"total_past_due"`
	MissedPeriods     int             `json:"missed_periods"`
	RemainingPeriods  int             `json:"remaining_periods"`
}

type DueDetailDTO struct {
	LateFeeUpdatedDate *time.Time      `json:"late_fee_updated_date,omitempty"`
	LateFee            decimal.Decimal `json:"late_fee"`
	YieldPastDue       decimal.Decimal `json:"yield_past_due"`
	PrincipalPastDue   decimal.Decimal `json:"principal_past_due"`
	Committed          decimal.Decimal `json:"committed"`
	Accrued            decimal.Decimal `json:"accrued"`
	Paid               decimal.Decimal `json:"paid"`
}

// DrawdownDTO reports a drawdown.
type DrawdownDTO struct {
	Amount    decimal.Decimal `json:"amount"`
	Fee       decimal.Decimal `json:"fee"`
	NetAmount decimal.Decimal `json:"net_amount"`
	Credit    CreditDTO       `json:"credit"`
}

// PaymentDTO reports a payment and where it went.
type PaymentDTO struct {
	Applied    decimal.Decimal `json:"applied"`
	PaidOff    bool            `json:"paid_off"`
	Allocation AllocationDTO   `json:"allocation"`
	Credit     CreditDTO       `json:"credit"`
}

type AllocationDTO struct {
	YieldPastDue      decimal.Decimal `json:"yield_past_due"`
	LateFee           decimal.Decimal `json:"late_fee"`
	PrincipalPastDue  decimal.Decimal `json:"principal_past_due"`
	YieldDue          decimal.Decimal `json:"yield_due"`
	PrincipalDue      decimal.Decimal `json:"principal_due"`
	UnbilledPrincipal decimal.Decimal `json:"unbilled_principal"`
}

// EventDTO is one entry of a credit's audit log.
type EventDTO struct {
	ID             string            `json:"id"`
	Type           string            `json:"type"`
	Amount         decimal.Decimal   `json:"amount"`
	At             time.Time         `json:"at"`
	ActorID        string            `json:"actor_id,omitempty"`
	IdempotencyKey string            `json:"idempotency_key,omitempty"`
	Details        map[string]string `json:"details,omitempty"`
}

// ReceivableDTO is a registered receivable.
type ReceivableDTO struct {
	ID           int64           `json:"id"`
	Owner        string          `json:"owner"`
	Amount       decimal.Decimal `json:"amount"`
	PaidAmount   decimal.Decimal `json:"paid_amount"`
	Currency     string          `json:"currency,omitempty"`
	ReferenceID  string          `json:"reference_id,omitempty"`
	State        string          `json:"state"`
	MaturityDate time.Time       `json:"maturity_date"`
	CreatedAt    time.Time       `json:"created_at"`
}

// ApprovalDTO reports a receivable approval.
type ApprovalDTO struct {
	ReceivableID int64           `json:"receivable_id"`
	Borrower     string          `json:"borrower"`
	CreditHash   string          `json:"credit_hash"`
	Amount       decimal.Decimal `json:"amount"`
	Incremental  decimal.Decimal `json:"incremental"`
	Available    decimal.Decimal `json:"available"`
	Created      bool            `json:"created"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	t = t.UTC()
	return &t
}

func toCreditDTO(f *factory.PoolFactory, c *credit.Credit, late bool) CreditDTO {
	r, dd := c.Record, c.DueDetail
	return CreditDTO{
		Hash:         c.Hash.String(),
		PoolID:       c.PoolID,
		Borrower:     c.Borrower,
		ReceivableID: int64(c.ReceivableID),
		State:        r.State.String(),
		Config:       f.CreditToJSON(c.Config),
		Record: RecordDTO{
			UnbilledPrincipal: r.UnbilledPrincipal,
			NextDueDate:       timePtr(r.NextDueDate),
			NextDue:           r.NextDue,
			YieldDue:          r.YieldDue,
			PrincipalDue:      r.PrincipalDue(),
			TotalPastDue:      r.TotalPastDue,
			MissedPeriods:     r.MissedPeriods,
			RemainingPeriods:  r.RemainingPeriods,
		},
		DueDetail: DueDetailDTO{
			LateFeeUpdatedDate: timePtr(dd.LateFeeUpdatedDate),
			LateFee:            dd.LateFee,
			YieldPastDue:       dd.YieldPastDue,
			PrincipalPastDue:   dd.PrincipalPastDue,
			Committed:          dd.Committed,
			Accrued:            dd.Accrued,
			Paid:               dd.Paid,
		},
		PayoffAmount: credit.PayoffAmount(r),
		Late:         late,
		MaturityDate: timePtr(c.MaturityDate),
		CreatedAt:    timePtr(c.CreatedAt),
		UpdatedAt:    timePtr(c.UpdatedAt),
	}
}

func toAllocationDTO(a credit.PaymentAllocation) AllocationDTO {
	return AllocationDTO{
		YieldPastDue:      a.YieldPastDue,
		LateFee:           a.LateFee,
		PrincipalPastDue:  a.PrincipalPastDue,
		YieldDue:          a.YieldDue,
		PrincipalDue:      a.PrincipalDue,
		UnbilledPrincipal: a.UnbilledPrincipal,
	}
}

func toEventDTO(e credit.Event) EventDTO {
	return EventDTO{
		ID:             e.ID,
		Type:           string(e.Type),
		Amount:         e.Amount,
		At:             e.At.UTC(),
		ActorID:        e.ActorID,
		IdempotencyKey: e.IdempotencyKey,
		Details:        e.Details,
	}
}

func toReceivableDTO(r receivable.Receivable) ReceivableDTO {
	return ReceivableDTO{
		ID:           int64(r.ID),
		Owner:        r.Owner,
		Amount:       r.Amount,
		PaidAmount:   r.PaidAmount,
		Currency:     r.Currency,
		ReferenceID:  r.ReferenceID,
		State:        r.State.String(),
		MaturityDate: r.MaturityDate.UTC(),
		CreatedAt:    r.CreatedAt.UTC(),
	}
}

func toApprovalDTO(res *receivable.ApprovalResult) ApprovalDTO {
	a := res.Approval
	return ApprovalDTO{
		ReceivableID: int64(a.ReceivableID),
		Borrower:     a.Borrower,
		CreditHash:   a.CreditHash.String(),
		Amount:       a.Amount,
		Incremental:  a.Incremental,
		Available:    res.Available,
		Created:      res.Created,
	}
}

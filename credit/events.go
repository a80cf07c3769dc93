package credit

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EventType names what happened to a credit.
type EventType string

const (
	EventCreditApproved         EventType = "credit_approved"
	EventDrawdownMade           EventType = "drawdown_made"
	EventPaymentMade            EventType = "payment_made"
	EventBillRefreshed          EventType = "bill_refreshed"
	EventDefaultTriggered       EventType = "default_triggered"
	EventCreditClosed           EventType = "credit_closed"
	EventCreditUpdated          EventType = "credit_updated"
	EventPeriodsExtended        EventType = "remaining_periods_extended"
	EventReceivableApproved     EventType = "receivable_approved"
	EventAvailableCreditReduced EventType = "available_credit_reduced"
)

// Event is an append-only record of a completed operation. Events are
// never modified or deleted.
type Event struct {
	ID             string
	CreditHash     CreditHash
	Type           EventType
	Amount         decimal.Decimal
	At             time.Time
	ActorID        string
	IdempotencyKey string

	// Details holds per-type fields: the allocation of a payment, the fee of
	// a drawdown, the receivable of an approval.
	Details map[string]string
}

// NewEvent fills ID and, when empty, a random idempotency key.
func NewEvent(hash CreditHash, typ EventType, amount decimal.Decimal, at time.Time, actor string) Event {
	id := uuid.NewString()
	return Event{
		ID:             id,
		CreditHash:     hash,
		Type:           typ,
		Amount:         amount,
		At:             at,
		ActorID:        actor,
		IdempotencyKey: fmt.Sprintf("%s:%s", typ, id),
		Details:        map[string]string{},
	}
}

// WithKey replaces the idempotency key.
func (e Event) WithKey(key string) Event {
	e.IdempotencyKey = key
	return e
}

// With adds a detail field.
func (e Event) With(key, value string) Event {
	details := make(map[string]string, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	details[key] = value
	e.Details = details
	return e
}

// ReceivableApprovalKey is the idempotency key of a receivable approval.
func ReceivableApprovalKey(id ReceivableID) string {
	return fmt.Sprintf("%s:%d", EventReceivableApproved, id)
}

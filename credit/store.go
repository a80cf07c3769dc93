/*
store.go - Persistence interface for credits, approvals and events

PURPOSE:
  Defines the boundary between the engine and the database. Credits are
  stored as whole aggregates (config, record, due detail) and replaced on
  every change; events are append-only.

KEY INTERFACES:
  Store:    Reads and writes inside one consistent view
  TxStore:  Store plus WithTx for all-or-nothing operations

ATOMICITY:
  Every Manager operation runs inside WithTx. If any step fails, including
  the treasury transfer, the whole operation rolls back and the stored
  state is exactly what it was before the call.

IDEMPOTENCY:
  Events carry an idempotency key. Appending a key twice fails with
  ErrDuplicateIdempotencyKey.

IMPLEMENTATIONS:
  - credit/store/memory.go: In-memory for tests and tools
  - store/sqlite/sqlite.go: SQLite
  - store/postgres/postgres.go: PostgreSQL via pgx

SEE ALSO:
  - events.go: Event types
  - manager.go: The only writer
*/
package credit

import (
	"context"

	"github.com/shopspring/decimal"
)

// Store persists credits, available credit, receivable approvals and events.
type Store interface {
	// GetCredit returns ErrCreditNotFound if no credit is stored under hash.
	GetCredit(ctx context.Context, hash CreditHash) (*Credit, error)

	// SaveCredit inserts or replaces the credit stored under c.Hash.
	SaveCredit(ctx context.Context, c Credit) error

	// ListCredits returns credits in any of states, or all credits if none given.
	ListCredits(ctx context.Context, states ...CreditState) ([]Credit, error)

	// AvailableCredit returns zero for hashes never written.
	AvailableCredit(ctx context.Context, hash CreditHash) (decimal.Decimal, error)
	SetAvailableCredit(ctx context.Context, hash CreditHash, amount decimal.Decimal) error

	// GetReceivableApproval returns nil, nil if the receivable was never approved.
	GetReceivableApproval(ctx context.Context, id ReceivableID) (*ReceivableApproval, error)
	SaveReceivableApproval(ctx context.Context, a ReceivableApproval) error

	// AppendEvent fails with ErrDuplicateIdempotencyKey on a repeated key.
	AppendEvent(ctx context.Context, e Event) error

	// Events returns the events of a credit, oldest first.
	Events(ctx context.Context, hash CreditHash) ([]Event, error)
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, the transaction is rolled back.
	WithTx(ctx context.Context, fn func(Store) error) error
}

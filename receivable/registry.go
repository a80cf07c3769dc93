package receivable

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/warp/credit-engine/credit"
)

// Registry holds the receivables borrowers offer as collateral.
type Registry interface {
	// Mint stores r under a fresh id in the Minted state.
	Mint(ctx context.Context, r Receivable) (Receivable, error)
	// GetReceivable fails with credit.ErrReceivableNotFound for unknown ids.
	GetReceivable(ctx context.Context, id credit.ReceivableID) (*Receivable, error)
	// UpdateReceivable records a payment or state change on r.
	UpdateReceivable(ctx context.Context, r Receivable) error
}

// MemoryRegistry is a Registry held in a map.
type MemoryRegistry struct {
	mu          sync.RWMutex
	receivables map[credit.ReceivableID]Receivable
	nextID      credit.ReceivableID
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{receivables: make(map[credit.ReceivableID]Receivable), nextID: 1}
}

func (m *MemoryRegistry) Mint(_ context.Context, r Receivable) (Receivable, error) {
	if err := r.ValidateForMint(); err != nil {
		return Receivable{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	r.ID = m.nextID
	m.nextID++
	r.State = StateMinted
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	m.receivables[r.ID] = r
	return r, nil
}

func (m *MemoryRegistry) GetReceivable(_ context.Context, id credit.ReceivableID) (*Receivable, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.receivables[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", credit.ErrReceivableNotFound, id)
	}
	return &r, nil
}

func (m *MemoryRegistry) UpdateReceivable(_ context.Context, r Receivable) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.receivables[r.ID]; !ok {
		return fmt.Errorf("%w: %d", credit.ErrReceivableNotFound, r.ID)
	}
	m.receivables[r.ID] = r
	return nil
}

// ValidateForMint rejects receivables that could never be approved. Zero
// amounts and past maturities are left to the approval workflow so that it
// reports them.
func (r Receivable) ValidateForMint() error {
	if r.Owner == "" {
		return credit.ErrBorrowerRequired
	}
	if r.Amount.IsNegative() {
		return fmt.Errorf("receivable amount %s is negative", r.Amount)
	}
	return nil
}

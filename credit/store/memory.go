// Package store provides in-memory credit.Store implementations.
package store

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/warp/credit-engine/credit"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory is a credit.TxStore and credit.PoolStore held in maps.
type Memory struct {
	mu sync.RWMutex
	data
}

type data struct {
	credits     map[credit.CreditHash]credit.Credit
	available   map[credit.CreditHash]decimal.Decimal
	approvals   map[credit.ReceivableID]credit.ReceivableApproval
	events      map[credit.CreditHash][]credit.Event
	idempotency map[string]bool
	pools       map[string]credit.PoolConfig
}

func NewMemory() *Memory {
	return &Memory{data: data{
		credits:     make(map[credit.CreditHash]credit.Credit),
		available:   make(map[credit.CreditHash]decimal.Decimal),
		approvals:   make(map[credit.ReceivableID]credit.ReceivableApproval),
		events:      make(map[credit.CreditHash][]credit.Event),
		idempotency: make(map[string]bool),
		pools:       make(map[string]credit.PoolConfig),
	}}
}

func (m *Memory) GetCredit(_ context.Context, hash credit.CreditHash) (*credit.Credit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getCredit(hash)
}

func (m *Memory) SaveCredit(_ context.Context, c credit.Credit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.credits[c.Hash] = c
	return nil
}

func (m *Memory) ListCredits(_ context.Context, states ...credit.CreditState) ([]credit.Credit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listCredits(states), nil
}

func (m *Memory) AvailableCredit(_ context.Context, hash credit.CreditHash) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.available[hash], nil
}

func (m *Memory) SetAvailableCredit(_ context.Context, hash credit.CreditHash, amount decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.available[hash] = amount
	return nil
}

func (m *Memory) GetReceivableApproval(_ context.Context, id credit.ReceivableID) (*credit.ReceivableApproval, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getApproval(id), nil
}

func (m *Memory) SaveReceivableApproval(_ context.Context, a credit.ReceivableApproval) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.approvals[a.ReceivableID] = a
	return nil
}

func (m *Memory) AppendEvent(_ context.Context, e credit.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendEvent(e)
}

func (m *Memory) Events(_ context.Context, hash credit.CreditHash) ([]credit.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.events[hash]), nil
}

// =============================================================================
// POOLS
// =============================================================================

func (m *Memory) GetPool(_ context.Context, poolID string) (*credit.PoolConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pool, ok := m.pools[poolID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", credit.ErrPoolNotFound, poolID)
	}
	return &pool, nil
}

func (m *Memory) SavePool(_ context.Context, pool credit.PoolConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pools[pool.PoolID] = pool
	return nil
}

func (m *Memory) ListPools(_ context.Context) ([]credit.PoolConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pools := make([]credit.PoolConfig, 0, len(m.pools))
	for _, p := range m.pools {
		pools = append(pools, p)
	}
	sort.Slice(pools, func(i, j int) bool { return pools[i].PoolID < pools[j].PoolID })
	return pools, nil
}

// =============================================================================
// UNLOCKED HELPERS - Shared by Memory and the transaction view
// =============================================================================

func (d *data) getCredit(hash credit.CreditHash) (*credit.Credit, error) {
	c, ok := d.credits[hash]
	if !ok {
		return nil, fmt.Errorf("%w: %s", credit.ErrCreditNotFound, hash)
	}
	return &c, nil
}

func (d *data) listCredits(states []credit.CreditState) []credit.Credit {
	var result []credit.Credit
	for _, c := range d.credits {
		if len(states) == 0 || slices.Contains(states, c.Record.State) {
			result = append(result, c)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Hash.String() < result[j].Hash.String()
	})
	return result
}

func (d *data) getApproval(id credit.ReceivableID) *credit.ReceivableApproval {
	a, ok := d.approvals[id]
	if !ok {
		return nil
	}
	return &a
}

func (d *data) appendEvent(e credit.Event) error {
	if e.IdempotencyKey != "" && d.idempotency[e.IdempotencyKey] {
		return fmt.Errorf("%w: %s", credit.ErrDuplicateIdempotencyKey, e.IdempotencyKey)
	}
	d.events[e.CreditHash] = append(d.events[e.CreditHash], e)
	if e.IdempotencyKey != "" {
		d.idempotency[e.IdempotencyKey] = true
	}
	return nil
}

func (d *data) clone() data {
	events := make(map[credit.CreditHash][]credit.Event, len(d.events))
	for k, v := range d.events {
		events[k] = slices.Clone(v)
	}
	return data{
		credits:     maps.Clone(d.credits),
		available:   maps.Clone(d.available),
		approvals:   maps.Clone(d.approvals),
		events:      events,
		idempotency: maps.Clone(d.idempotency),
		pools:       maps.Clone(d.pools),
	}
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(credit.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.data.clone()
	if err := fn(&txMemoryView{d: &tm.data}); err != nil {
		tm.data = snapshot
		return err
	}
	return nil
}

// txMemoryView is the Store handed to WithTx callbacks. The parent lock is
// already held, so it reads and writes the maps directly.
type txMemoryView struct {
	d *data
}

func (tv *txMemoryView) GetCredit(_ context.Context, hash credit.CreditHash) (*credit.Credit, error) {
	return tv.d.getCredit(hash)
}

func (tv *txMemoryView) SaveCredit(_ context.Context, c credit.Credit) error {
	tv.d.credits[c.Hash] = c
	return nil
}

func (tv *txMemoryView) ListCredits(_ context.Context, states ...credit.CreditState) ([]credit.Credit, error) {
	return tv.d.listCredits(states), nil
}

func (tv *txMemoryView) AvailableCredit(_ context.Context, hash credit.CreditHash) (decimal.Decimal, error) {
	return tv.d.available[hash], nil
}

func (tv *txMemoryView) SetAvailableCredit(_ context.Context, hash credit.CreditHash, amount decimal.Decimal) error {
	tv.d.available[hash] = amount
	return nil
}

func (tv *txMemoryView) GetReceivableApproval(_ context.Context, id credit.ReceivableID) (*credit.ReceivableApproval, error) {
	return tv.d.getApproval(id), nil
}

func (tv *txMemoryView) SaveReceivableApproval(_ context.Context, a credit.ReceivableApproval) error {
	tv.d.approvals[a.ReceivableID] = a
	return nil
}

func (tv *txMemoryView) AppendEvent(_ context.Context, e credit.Event) error {
	return tv.d.appendEvent(e)
}

func (tv *txMemoryView) Events(_ context.Context, hash credit.CreditHash) ([]credit.Event, error) {
	return slices.Clone(tv.d.events[hash]), nil
}

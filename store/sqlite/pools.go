package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/warp/credit-engine/credit"
	"github.com/warp/credit-engine/receivable"
)

// =============================================================================
// POOL STORE (credit.PoolStore interface)
// =============================================================================

// SavePool creates or replaces a pool configuration.
func (s *Store) SavePool(ctx context.Context, pool credit.PoolConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	configJSON, err := json.Marshal(pool)
	if err != nil {
		return fmt.Errorf("failed to encode pool: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO pools (id, name, config_json, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			config_json = excluded.config_json,
			updated_at = excluded.updated_at
	`, pool.PoolID, pool.Name, string(configJSON), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save pool: %w", err)
	}
	return nil
}

// GetPool retrieves a pool by ID.
func (s *Store) GetPool(ctx context.Context, poolID string) (*credit.PoolConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var configJSON string
	err := s.db.QueryRowContext(ctx, `SELECT config_json FROM pools WHERE id = ?`, poolID).Scan(&configJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", credit.ErrPoolNotFound, poolID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pool: %w", err)
	}

	var pool credit.PoolConfig
	if err := json.Unmarshal([]byte(configJSON), &pool); err != nil {
		return nil, fmt.Errorf("failed to decode pool: %w", err)
	}
	return &pool, nil
}

// ListPools returns all pools.
func (s *Store) ListPools(ctx context.Context) ([]credit.PoolConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT config_json FROM pools ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list pools: %w", err)
	}
	defer rows.Close()

	var pools []credit.PoolConfig
	for rows.Next() {
		var configJSON string
		if err := rows.Scan(&configJSON); err != nil {
			return nil, err
		}
		var pool credit.PoolConfig
		if err := json.Unmarshal([]byte(configJSON), &pool); err != nil {
			return nil, fmt.Errorf("failed to decode pool: %w", err)
		}
		pools = append(pools, pool)
	}
	return pools, rows.Err()
}

// =============================================================================
// RECEIVABLE REGISTRY (receivable.Registry interface)
// =============================================================================

// Mint stores r under the next id in the Minted state.
func (s *Store) Mint(ctx context.Context, r receivable.Receivable) (receivable.Receivable, error) {
	if err := r.ValidateForMint(); err != nil {
		return receivable.Receivable{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	r.State = receivable.StateMinted
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO receivables (owner, amount, paid_amount, currency, reference_id, created_at, maturity_date, state)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, r.Owner, r.Amount, r.PaidAmount, nullString(r.Currency), nullString(r.ReferenceID),
		unixSeconds(r.CreatedAt), unixSeconds(r.MaturityDate), int(r.State))
	if err != nil {
		return receivable.Receivable{}, fmt.Errorf("failed to mint receivable: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return receivable.Receivable{}, err
	}
	r.ID = credit.ReceivableID(id)
	return r, nil
}

// GetReceivable retrieves a receivable by ID.
func (s *Store) GetReceivable(ctx context.Context, id credit.ReceivableID) (*receivable.Receivable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		r                       receivable.Receivable
		currency, referenceID   sql.NullString
		createdAt, maturityDate int64
		state                   int
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT owner, amount, paid_amount, currency, reference_id, created_at, maturity_date, state
		FROM receivables WHERE id = ?
	`, int64(id)).Scan(&r.Owner, &r.Amount, &r.PaidAmount, &currency, &referenceID,
		&createdAt, &maturityDate, &state)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", credit.ErrReceivableNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get receivable: %w", err)
	}

	r.ID = id
	r.Currency = currency.String
	r.ReferenceID = referenceID.String
	r.CreatedAt = fromUnixSeconds(createdAt)
	r.MaturityDate = fromUnixSeconds(maturityDate)
	r.State = receivable.State(state)
	return &r, nil
}

// UpdateReceivable records a payment, transfer or state change.
func (s *Store) UpdateReceivable(ctx context.Context, r receivable.Receivable) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE receivables
		SET owner = ?, amount = ?, paid_amount = ?, currency = ?, reference_id = ?, maturity_date = ?, state = ?
		WHERE id = ?
	`, r.Owner, r.Amount, r.PaidAmount, nullString(r.Currency), nullString(r.ReferenceID),
		unixSeconds(r.MaturityDate), int(r.State), int64(r.ID))
	if err != nil {
		return fmt.Errorf("failed to update receivable: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %d", credit.ErrReceivableNotFound, r.ID)
	}
	return nil
}

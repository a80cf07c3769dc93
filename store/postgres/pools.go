package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/warp/credit-engine/credit"
	"github.com/warp/credit-engine/receivable"
)

// SavePool creates or replaces a pool configuration.
func (s *Store) SavePool(ctx context.Context, pool credit.PoolConfig) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pools (id, name, config_json, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			config_json = EXCLUDED.config_json,
			updated_at = now()
	`, pool.PoolID, pool.Name, pool)
	if err != nil {
		return fmt.Errorf("failed to save pool: %w", err)
	}
	return nil
}

func (s *Store) GetPool(ctx context.Context, poolID string) (*credit.PoolConfig, error) {
	var pool credit.PoolConfig
	err := s.pool.QueryRow(ctx, `SELECT config_json FROM pools WHERE id = $1`, poolID).Scan(&pool)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", credit.ErrPoolNotFound, poolID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pool: %w", err)
	}
	return &pool, nil
}

func (s *Store) ListPools(ctx context.Context) ([]credit.PoolConfig, error) {
	rows, err := s.pool.Query(ctx, `SELECT config_json FROM pools ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list pools: %w", err)
	}
	defer rows.Close()

	var pools []credit.PoolConfig
	for rows.Next() {
		var pool credit.PoolConfig
		if err := rows.Scan(&pool); err != nil {
			return nil, fmt.Errorf("failed to decode pool: %w", err)
		}
		pools = append(pools, pool)
	}
	return pools, rows.Err()
}

// Mint stores r under the next id in the Minted state.
func (s *Store) Mint(ctx context.Context, r receivable.Receivable) (receivable.Receivable, error) {
	if err := r.ValidateForMint(); err != nil {
		return receivable.Receivable{}, err
	}
	r.State = receivable.StateMinted
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}

	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO receivables (owner, amount, paid_amount, currency, reference_id, created_at, maturity_date, state)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, r.Owner, r.Amount, r.PaidAmount, nullString(r.Currency), nullString(r.ReferenceID),
		unixSeconds(r.CreatedAt), unixSeconds(r.MaturityDate), int(r.State)).Scan(&id)
	if err != nil {
		return receivable.Receivable{}, fmt.Errorf("failed to mint receivable: %w", err)
	}
	r.ID = credit.ReceivableID(id)
	return r, nil
}

func (s *Store) GetReceivable(ctx context.Context, id credit.ReceivableID) (*receivable.Receivable, error) {
	var (
		r                       receivable.Receivable
		currency, referenceID   *string
		createdAt, maturityDate int64
		state                   int
	)
	err := s.pool.QueryRow(ctx, `
		SELECT owner, amount, paid_amount, currency, reference_id, created_at, maturity_date, state
		FROM receivables WHERE id = $1
	`, int64(id)).Scan(&r.Owner, &r.Amount, &r.PaidAmount, &currency, &referenceID,
		&createdAt, &maturityDate, &state)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", credit.ErrReceivableNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get receivable: %w", err)
	}

	r.ID = id
	if currency != nil {
		r.Currency = *currency
	}
	if referenceID != nil {
		r.ReferenceID = *referenceID
	}
	r.CreatedAt = fromUnixSeconds(createdAt)
	r.MaturityDate = fromUnixSeconds(maturityDate)
	r.State = receivable.State(state)
	return &r, nil
}

func (s *Store) UpdateReceivable(ctx context.Context, r receivable.Receivable) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE receivables
		SET owner = $1, amount = $2, paid_amount = $3, currency = $4, reference_id = $5, maturity_date = $6, state = $7
		WHERE id = $8
	`, r.Owner, r.Amount, r.PaidAmount, nullString(r.Currency), nullString(r.ReferenceID),
		unixSeconds(r.MaturityDate), int(r.State), int64(r.ID))
	if err != nil {
		return fmt.Errorf("failed to update receivable: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %d", credit.ErrReceivableNotFound, r.ID)
	}
	return nil
}

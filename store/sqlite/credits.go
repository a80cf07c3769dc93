package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/credit-engine/credit"
)

// =============================================================================
// CREDITS
// =============================================================================

const creditColumns = `
	hash, pool_id, borrower, receivable_id, config_json,
	unbilled_principal, next_due_date, next_due, yield_due, total_past_due,
	missed_periods, remaining_periods, state,
	late_fee_updated_date, late_fee, yield_past_due, principal_past_due,
	committed, accrued, paid,
	maturity_date, created_at, updated_at`

func (c *conn) GetCredit(ctx context.Context, hash credit.CreditHash) (*credit.Credit, error) {
	row := c.q.QueryRowContext(ctx, `SELECT `+creditColumns+` FROM credits WHERE hash = ?`, hash.String())
	cr, err := scanCredit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", credit.ErrCreditNotFound, hash)
	}
	if err != nil {
		return nil, err
	}
	return &cr, nil
}

func (c *conn) SaveCredit(ctx context.Context, cr credit.Credit) error {
	configJSON, err := json.Marshal(cr.Config)
	if err != nil {
		return fmt.Errorf("failed to encode credit config: %w", err)
	}

	query := `
		INSERT INTO credits (` + creditColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(hash) DO UPDATE SET
			pool_id = excluded.pool_id,
			borrower = excluded.borrower,
			receivable_id = excluded.receivable_id,
			config_json = excluded.config_json,
			unbilled_principal = excluded.unbilled_principal,
			next_due_date = excluded.next_due_date,
			next_due = excluded.next_due,
			yield_due = excluded.yield_due,
			total_past_due = excluded.total_past_due,
			missed_periods = excluded.missed_periods,
			remaining_periods = excluded.remaining_periods,
			state = excluded.state,
			late_fee_updated_date = excluded.late_fee_updated_date,
			late_fee = excluded.late_fee,
			yield_past_due = excluded.yield_past_due,
			principal_past_due = excluded.principal_past_due,
			committed = excluded.committed,
			accrued = excluded.accrued,
			paid = excluded.paid,
			maturity_date = excluded.maturity_date,
			updated_at = excluded.updated_at
	`

	r, dd := cr.Record, cr.DueDetail
	_, err = c.q.ExecContext(ctx, query,
		cr.Hash.String(), cr.PoolID, cr.Borrower, int64(cr.ReceivableID), string(configJSON),
		r.UnbilledPrincipal, unixSeconds(r.NextDueDate), r.NextDue, r.YieldDue, r.TotalPastDue,
		r.MissedPeriods, r.RemainingPeriods, int(r.State),
		unixSeconds(dd.LateFeeUpdatedDate), dd.LateFee, dd.YieldPastDue, dd.PrincipalPastDue,
		dd.Committed, dd.Accrued, dd.Paid,
		unixSeconds(cr.MaturityDate), unixSeconds(cr.CreatedAt), unixSeconds(cr.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save credit: %w", err)
	}
	return nil
}

func (c *conn) ListCredits(ctx context.Context, states ...credit.CreditState) ([]credit.Credit, error) {
	query := `SELECT ` + creditColumns + ` FROM credits`
	args := make([]any, len(states))
	if len(states) > 0 {
		placeholders := make([]string, len(states))
		for i, s := range states {
			placeholders[i] = "?"
			args[i] = int(s)
		}
		query += ` WHERE state IN (` + strings.Join(placeholders, ", ") + `)`
	}
	query += ` ORDER BY hash`

	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query credits: %w", err)
	}
	defer rows.Close()

	var credits []credit.Credit
	for rows.Next() {
		cr, err := scanCredit(rows)
		if err != nil {
			return nil, err
		}
		credits = append(credits, cr)
	}
	return credits, rows.Err()
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanCredit(row scanner) (credit.Credit, error) {
	var (
		cr               credit.Credit
		hash, configJSON string
		receivableID     int64
		state            int
		nextDueDate      int64
		lateFeeUpdated   int64
		maturity         int64
		created, updated int64
	)
	r, dd := &cr.Record, &cr.DueDetail

	err := row.Scan(
		&hash, &cr.PoolID, &cr.Borrower, &receivableID, &configJSON,
		&r.UnbilledPrincipal, &nextDueDate, &r.NextDue, &r.YieldDue, &r.TotalPastDue,
		&r.MissedPeriods, &r.RemainingPeriods, &state,
		&lateFeeUpdated, &dd.LateFee, &dd.YieldPastDue, &dd.PrincipalPastDue,
		&dd.Committed, &dd.Accrued, &dd.Paid,
		&maturity, &created, &updated,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return cr, err
		}
		return cr, fmt.Errorf("failed to scan credit: %w", err)
	}

	if cr.Hash, err = credit.ParseCreditHash(hash); err != nil {
		return cr, err
	}
	if err := json.Unmarshal([]byte(configJSON), &cr.Config); err != nil {
		return cr, fmt.Errorf("failed to decode credit config: %w", err)
	}
	cr.ReceivableID = credit.ReceivableID(receivableID)
	r.State = credit.CreditState(state)
	r.NextDueDate = fromUnixSeconds(nextDueDate)
	dd.LateFeeUpdatedDate = fromUnixSeconds(lateFeeUpdated)
	cr.MaturityDate = fromUnixSeconds(maturity)
	cr.CreatedAt = fromUnixSeconds(created)
	cr.UpdatedAt = fromUnixSeconds(updated)
	return cr, nil
}

// =============================================================================
// AVAILABLE CREDIT
// =============================================================================

func (c *conn) AvailableCredit(ctx context.Context, hash credit.CreditHash) (decimal.Decimal, error) {
	var amount decimal.Decimal
	err := c.q.QueryRowContext(ctx,
		`SELECT amount FROM available_credit WHERE credit_hash = ?`, hash.String(),
	).Scan(&amount)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to read available credit: %w", err)
	}
	return amount, nil
}

func (c *conn) SetAvailableCredit(ctx context.Context, hash credit.CreditHash, amount decimal.Decimal) error {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO available_credit (credit_hash, amount) VALUES (?, ?)
		ON CONFLICT(credit_hash) DO UPDATE SET amount = excluded.amount
	`, hash.String(), amount)
	if err != nil {
		return fmt.Errorf("failed to set available credit: %w", err)
	}
	return nil
}

// =============================================================================
// RECEIVABLE APPROVALS
// =============================================================================

func (c *conn) GetReceivableApproval(ctx context.Context, id credit.ReceivableID) (*credit.ReceivableApproval, error) {
	var (
		a          credit.ReceivableApproval
		hash       string
		approvedAt int64
	)
	err := c.q.QueryRowContext(ctx, `
		SELECT borrower, credit_hash, amount, incremental, approved_by, approved_at
		FROM receivable_approvals WHERE receivable_id = ?
	`, int64(id)).Scan(&a.Borrower, &hash, &a.Amount, &a.Incremental, &a.ApprovedBy, &approvedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read receivable approval: %w", err)
	}
	if a.CreditHash, err = credit.ParseCreditHash(hash); err != nil {
		return nil, err
	}
	a.ReceivableID = id
	a.ApprovedAt = fromUnixSeconds(approvedAt)
	return &a, nil
}

func (c *conn) SaveReceivableApproval(ctx context.Context, a credit.ReceivableApproval) error {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO receivable_approvals
		(receivable_id, borrower, credit_hash, amount, incremental, approved_by, approved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, int64(a.ReceivableID), a.Borrower, a.CreditHash.String(), a.Amount, a.Incremental,
		a.ApprovedBy, unixSeconds(a.ApprovedAt))
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: receivable %d already approved", credit.ErrDuplicateIdempotencyKey, a.ReceivableID)
		}
		return fmt.Errorf("failed to save receivable approval: %w", err)
	}
	return nil
}

// =============================================================================
// EVENTS
// =============================================================================

func (c *conn) AppendEvent(ctx context.Context, e credit.Event) error {
	detailsJSON, err := json.Marshal(e.Details)
	if err != nil {
		return fmt.Errorf("failed to encode event details: %w", err)
	}

	_, err = c.q.ExecContext(ctx, `
		INSERT INTO events (id, credit_hash, type, amount, at, actor_id, idempotency_key, details_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.CreditHash.String(), string(e.Type), e.Amount, unixSeconds(e.At),
		nullString(e.ActorID), nullString(e.IdempotencyKey), string(detailsJSON))
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: %s", credit.ErrDuplicateIdempotencyKey, e.IdempotencyKey)
		}
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

func (c *conn) Events(ctx context.Context, hash credit.CreditHash) ([]credit.Event, error) {
	rows, err := c.q.QueryContext(ctx, `
		SELECT id, type, amount, at, actor_id, idempotency_key, details_json
		FROM events WHERE credit_hash = ?
		ORDER BY seq ASC
	`, hash.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []credit.Event
	for rows.Next() {
		var (
			e                     credit.Event
			typ                   string
			at                    int64
			actor, key, detailsJS sql.NullString
		)
		if err := rows.Scan(&e.ID, &typ, &e.Amount, &at, &actor, &key, &detailsJS); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.CreditHash = hash
		e.Type = credit.EventType(typ)
		e.At = fromUnixSeconds(at)
		e.ActorID = actor.String
		e.IdempotencyKey = key.String
		if detailsJS.Valid && detailsJS.String != "" && detailsJS.String != "null" {
			if err := json.Unmarshal([]byte(detailsJS.String), &e.Details); err != nil {
				return nil, fmt.Errorf("failed to decode event details: %w", err)
			}
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

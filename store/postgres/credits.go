package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/warp/credit-engine/credit"
)

const creditColumns = `
	hash, pool_id, borrower, receivable_id, config_json,
	unbilled_principal, next_due_date, next_due, yield_due, total_past_due,
	missed_periods, remaining_periods, state,
	late_fee_updated_date, late_fee, yield_past_due, principal_past_due,
	committed, accrued, paid,
	maturity_date, created_at, updated_at`

func (c *conn) GetCredit(ctx context.Context, hash credit.CreditHash) (*credit.Credit, error) {
	row := c.q.QueryRow(ctx, `SELECT `+creditColumns+` FROM credits WHERE hash = $1`, hash.String())
	cr, err := scanCredit(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", credit.ErrCreditNotFound, hash)
	}
	if err != nil {
		return nil, err
	}
	return &cr, nil
}

func (c *conn) SaveCredit(ctx context.Context, cr credit.Credit) error {
	r, dd := cr.Record, cr.DueDetail
	_, err := c.q.Exec(ctx, `
		INSERT INTO credits (`+creditColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)
		ON CONFLICT (hash) DO UPDATE SET
			pool_id = EXCLUDED.pool_id,
			borrower = EXCLUDED.borrower,
			receivable_id = EXCLUDED.receivable_id,
			config_json = EXCLUDED.config_json,
			unbilled_principal = EXCLUDED.unbilled_principal,
			next_due_date = EXCLUDED.next_due_date,
			next_due = EXCLUDED.next_due,
			yield_due = EXCLUDED.yield_due,
			total_past_due = EXCLUDED.total_past_due,
			missed_periods = EXCLUDED.missed_periods,
			remaining_periods = EXCLUDED.remaining_periods,
			state = EXCLUDED.state,
			late_fee_updated_date = EXCLUDED.late_fee_updated_date,
			late_fee = EXCLUDED.late_fee,
			yield_past_due = EXCLUDED.yield_past_due,
			principal_past_due = EXCLUDED.principal_past_due,
			committed = EXCLUDED.committed,
			accrued = EXCLUDED.accrued,
			paid = EXCLUDED.paid,
			maturity_date = EXCLUDED.maturity_date,
			updated_at = EXCLUDED.updated_at
	`,
		cr.Hash.String(), cr.PoolID, cr.Borrower, int64(cr.ReceivableID), cr.Config,
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
	var args []any
	if len(states) > 0 {
		codes := make([]int32, len(states))
		for i, s := range states {
			codes[i] = int32(s)
		}
		query += ` WHERE state = ANY($1)`
		args = append(args, codes)
	}
	query += ` ORDER BY hash`

	rows, err := c.q.Query(ctx, query, args...)
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

func scanCredit(row pgx.Row) (credit.Credit, error) {
	var (
		cr               credit.Credit
		hash             string
		receivableID     int64
		state            int
		nextDueDate      int64
		lateFeeUpdated   int64
		maturity         int64
		created, updated int64
	)
	r, dd := &cr.Record, &cr.DueDetail

	err := row.Scan(
		&hash, &cr.PoolID, &cr.Borrower, &receivableID, &cr.Config,
		&r.UnbilledPrincipal, &nextDueDate, &r.NextDue, &r.YieldDue, &r.TotalPastDue,
		&r.MissedPeriods, &r.RemainingPeriods, &state,
		&lateFeeUpdated, &dd.LateFee, &dd.YieldPastDue, &dd.PrincipalPastDue,
		&dd.Committed, &dd.Accrued, &dd.Paid,
		&maturity, &created, &updated,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return cr, err
		}
		return cr, fmt.Errorf("failed to scan credit: %w", err)
	}

	if cr.Hash, err = credit.ParseCreditHash(hash); err != nil {
		return cr, err
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

func (c *conn) AvailableCredit(ctx context.Context, hash credit.CreditHash) (decimal.Decimal, error) {
	var amount decimal.Decimal
	err := c.q.QueryRow(ctx,
		`SELECT amount FROM available_credit WHERE credit_hash = $1`, hash.String(),
	).Scan(&amount)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to read available credit: %w", err)
	}
	return amount, nil
}

func (c *conn) SetAvailableCredit(ctx context.Context, hash credit.CreditHash, amount decimal.Decimal) error {
	_, err := c.q.Exec(ctx, `
		INSERT INTO available_credit (credit_hash, amount) VALUES ($1, $2)
		ON CONFLICT (credit_hash) DO UPDATE SET amount = EXCLUDED.amount
	`, hash.String(), amount)
	if err != nil {
		return fmt.Errorf("failed to set available credit: %w", err)
	}
	return nil
}

func (c *conn) GetReceivableApproval(ctx context.Context, id credit.ReceivableID) (*credit.ReceivableApproval, error) {
	var (
		a          credit.ReceivableApproval
		hash       string
		approvedAt int64
	)
	err := c.q.QueryRow(ctx, `
		SELECT borrower, credit_hash, amount, incremental, approved_by, approved_at
		FROM receivable_approvals WHERE receivable_id = $1
	`, int64(id)).Scan(&a.Borrower, &hash, &a.Amount, &a.Incremental, &a.ApprovedBy, &approvedAt)
	if errors.Is(err, pgx.ErrNoRows) {
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
	_, err := c.q.Exec(ctx, `
		INSERT INTO receivable_approvals
		(receivable_id, borrower, credit_hash, amount, incremental, approved_by, approved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, int64(a.ReceivableID), a.Borrower, a.CreditHash.String(), a.Amount, a.Incremental,
		a.ApprovedBy, unixSeconds(a.ApprovedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: receivable %d already approved", credit.ErrDuplicateIdempotencyKey, a.ReceivableID)
		}
		return fmt.Errorf("failed to save receivable approval: %w", err)
	}
	return nil
}

func (c *conn) AppendEvent(ctx context.Context, e credit.Event) error {
	_, err := c.q.Exec(ctx, `
		INSERT INTO events (id, credit_hash, type, amount, at, actor_id, idempotency_key, details_json)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, e.ID, e.CreditHash.String(), string(e.Type), e.Amount, unixSeconds(e.At),
		nullString(e.ActorID), nullString(e.IdempotencyKey), e.Details)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", credit.ErrDuplicateIdempotencyKey, e.IdempotencyKey)
		}
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

func (c *conn) Events(ctx context.Context, hash credit.CreditHash) ([]credit.Event, error) {
	rows, err := c.q.Query(ctx, `
		SELECT id, type, amount, at, actor_id, idempotency_key, details_json
		FROM events WHERE credit_hash = $1
		ORDER BY seq ASC
	`, hash.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []credit.Event
	for rows.Next() {
		var (
			e          credit.Event
			typ        string
			at         int64
			actor, key *string
		)
		if err := rows.Scan(&e.ID, &typ, &e.Amount, &at, &actor, &key, &e.Details); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.CreditHash = hash
		e.Type = credit.EventType(typ)
		e.At = fromUnixSeconds(at)
		if actor != nil {
			e.ActorID = *actor
		}
		if key != nil {
			e.IdempotencyKey = *key
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

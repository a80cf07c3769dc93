package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/credit-engine/credit"
)

// =============================================================================
// REFRESH SCHEDULER
// =============================================================================

func newTestScheduler(env *apiEnv) *RefreshScheduler {
	rs := NewRefreshScheduler(env.manager, slog.New(slog.NewTextHandler(io.Discard, nil)))
	rs.Now = func() time.Time { return env.now }
	rs.Concurrency = 2
	return rs
}

func TestRefreshScheduler_RunNow(t *testing.T) {
	env := newAPIEnv(t)
	ctx := context.Background()

	// GIVEN: One drawn line and one undrawn line
	drawn := env.approveLine(t, false)
	rec := env.do(t, &borrower, http.MethodPost, "/api/credits/"+drawn+"/drawdown", AmountRequest{Amount: units(100_000)})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, &evaluationAgent, http.MethodPost, "/api/credits", map[string]any{
		"pool_id":  "pool-1",
		"borrower": stranger.ID,
		"config":   revolvingLine(false),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rs := newTestScheduler(env)

	// WHEN: Refreshing before the first due date
	summary, err := rs.RunNow(ctx)

	// THEN: Only the drawn line is checked and nothing changes
	require.NoError(t, err)
	assert.Equal(t, RefreshSummary{Checked: 1}, summary)

	// WHEN: Refreshing after the February bill went unpaid
	env.now = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
	summary, err = rs.RunNow(ctx)

	// THEN: The line moved on and is late
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Checked)
	assert.Equal(t, 1, summary.Changed)
	assert.Equal(t, 1, summary.Late)
	assert.Zero(t, summary.Failed)

	hash, err := credit.ParseCreditHash(drawn)
	require.NoError(t, err)
	stored, err := env.manager.GetCredit(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, credit.StateDelayed, stored.Record.State)

	// AND: A second pass at the same instant changes nothing
	summary, err = rs.RunNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Checked)
	assert.Zero(t, summary.Changed)
	assert.Equal(t, 1, summary.Late)
}

func TestRefreshScheduler_CancelledContext(t *testing.T) {
	env := newAPIEnv(t)
	drawn := env.approveLine(t, false)
	rec := env.do(t, &borrower, http.MethodPost, "/api/credits/"+drawn+"/drawdown", AmountRequest{Amount: units(100_000)})
	require.Equal(t, http.StatusOK, rec.Code)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestScheduler(env).RunNow(ctx)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestRefreshScheduler_StartStop(t *testing.T) {
	env := newAPIEnv(t)
	rs := newTestScheduler(env)
	rs.CheckInterval = 10 * time.Millisecond

	rs.Start()
	rs.Start()
	time.Sleep(30 * time.Millisecond)
	rs.Stop()
	rs.Stop()

	assert.Equal(t, env.now.Add(rs.CheckInterval), rs.NextRunTime())
}

func TestRefreshScheduler_Disabled(t *testing.T) {
	env := newAPIEnv(t)
	rs := newTestScheduler(env)
	rs.Enabled = false

	rs.Start()
	defer rs.Stop()

	assert.Nil(t, rs.ticker)
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/credit-engine/credit"
	"github.com/warp/credit-engine/credit/store"
	"github.com/warp/credit-engine/factory"
	"github.com/warp/credit-engine/receivable"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var (
	evaluationAgent = credit.Caller{ID: "ea-1", Roles: []credit.Role{credit.RoleEvaluationAgent}}
	borrower        = credit.Caller{ID: "borrower-1", Roles: []credit.Role{credit.RoleBorrower}}
	stranger        = credit.Caller{ID: "borrower-2", Roles: []credit.Role{credit.RoleBorrower}}
	operator        = credit.Caller{ID: "operator-1", Roles: []credit.Role{credit.RolePoolOperator}}
)

const testSecret = "test-secret-0123456789"

var startOfTest = time.Date(2024, time.January, 16, 10, 0, 0, 0, time.UTC)

type apiEnv struct {
	router  *chi.Mux
	auth    *Authenticator
	handler *Handler
	manager *credit.Manager
	store   *store.TxMemory
	now     time.Time
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	st := store.NewTxMemory()
	f := factory.NewPoolFactory()
	pool, err := f.ParsePool(factory.StandardPoolJSON("pool-1", "Main Pool"))
	require.NoError(t, err)
	require.NoError(t, st.SavePool(ctx, pool))

	pause := &credit.PauseFlag{}
	m := credit.NewManager(credit.ManagerDeps{
		Store:    st,
		Oracle:   credit.StoreFeeOracle{Pools: st},
		Pause:    pause,
		Logger:   logger,
		Contract: "credit-contract",
	})
	wf := receivable.NewWorkflow(m, receivable.NewMemoryRegistry(), logger)

	env := &apiEnv{
		auth:    NewAuthenticator(testSecret, "credit-engine"),
		manager: m,
		store:   st,
		now:     startOfTest,
	}
	env.handler = NewHandler(m, wf, st, pause, logger)
	env.handler.Now = func() time.Time { return env.now }
	env.router = NewRouter(env.handler, env.auth, []string{"http://localhost:5173"})
	return env
}

func (e *apiEnv) do(t *testing.T, caller *credit.Caller, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = strings.NewReader(b)
		default:
			raw, err := json.Marshal(b)
			require.NoError(t, err)
			reader = bytes.NewReader(raw)
		}
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if caller != nil {
		token, err := e.auth.IssueToken(*caller, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", BearerHeader(token))
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func revolvingLine(receivableBacked bool) map[string]any {
	return map[string]any{
		"credit_limit":          "1000000",
		"num_of_periods":        12,
		"period_duration":       "monthly",
		"revolving":             true,
		"receivable_backed":     receivableBacked,
		"borrower_level_credit": true,
	}
}

// approveLine opens a line for borrower and returns its hash.
func (e *apiEnv) approveLine(t *testing.T, receivableBacked bool) string {
	t.Helper()
	rec := e.do(t, &evaluationAgent, http.MethodPost, "/api/credits", map[string]any{
		"pool_id":  "pool-1",
		"borrower": borrower.ID,
		"config":   revolvingLine(receivableBacked),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[CreditDTO](t, rec).Hash
}

func units(n int64) decimal.Decimal { return decimal.NewFromInt(n) }

func assertAmount(t *testing.T, want int64, got decimal.Decimal, field string) {
	t.Helper()
	assert.True(t, units(want).Equal(got), "%s: want %d, got %s", field, want, got)
}

// =============================================================================
// AUTHENTICATION
// =============================================================================

func TestAuth_MissingOrInvalidToken(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, nil, http.MethodGet, "/api/pools", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/pools", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAuth_TokenFromOtherSecretRejected(t *testing.T) {
	env := newAPIEnv(t)
	other := NewAuthenticator("another-secret-0123456789", "credit-engine")
	token, err := other.IssueToken(evaluationAgent, time.Hour)
	require.NoError(t, err)

	_, err = env.auth.ParseToken(token)

	assert.Error(t, err)
}

func TestAuth_TokenRoundTrip(t *testing.T) {
	a := NewAuthenticator(testSecret, "credit-engine")
	token, err := a.IssueToken(operator, time.Hour)
	require.NoError(t, err)

	caller, err := a.ParseToken(token)

	require.NoError(t, err)
	assert.Equal(t, operator.ID, caller.ID)
	assert.True(t, caller.Has(credit.RolePoolOperator))
}

func TestHealth_NoTokenNeeded(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, nil, http.MethodGet, "/healthz", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
}

// =============================================================================
// CREDITS
// =============================================================================

func TestApproveCredit_AndRead(t *testing.T) {
	env := newAPIEnv(t)

	// GIVEN: An evaluation agent approves a line
	hash := env.approveLine(t, false)

	// WHEN: The borrower reads it
	rec := env.do(t, &borrower, http.MethodGet, "/api/credits/"+hash, nil)

	// THEN: The line is approved with the pool's yield filled in
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	dto := decodeBody[CreditDTO](t, rec)
	assert.Equal(t, "approved", dto.State)
	assert.Equal(t, borrower.ID, dto.Borrower)
	assert.Equal(t, 1200, dto.Config.YieldBps)
	assertAmount(t, 1_000_000, dto.Config.CreditLimit, "credit_limit")

	// AND: Another borrower cannot read it
	rec = env.do(t, &stranger, http.MethodGet, "/api/credits/"+hash, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestApproveCredit_RequiresEvaluationAgent(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, &borrower, http.MethodPost, "/api/credits", map[string]any{
		"pool_id":  "pool-1",
		"borrower": borrower.ID,
		"config":   revolvingLine(false),
	})

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestApproveCredit_InvalidConfig(t *testing.T) {
	env := newAPIEnv(t)
	cfg := revolvingLine(false)
	cfg["num_of_periods"] = 0

	rec := env.do(t, &evaluationAgent, http.MethodPost, "/api/credits", map[string]any{
		"pool_id":  "pool-1",
		"borrower": borrower.ID,
		"config":   cfg,
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeBody[ErrorResponse](t, rec)
	require.NotEmpty(t, resp.Fields)
	assert.Equal(t, "config.num_of_periods", resp.Fields[0].Field)
}

func TestApproveCredit_AfterDrawdown(t *testing.T) {
	env := newAPIEnv(t)
	hash := env.approveLine(t, false)
	rec := env.do(t, &borrower, http.MethodPost, "/api/credits/"+hash+"/drawdown", AmountRequest{Amount: units(1_000)})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, &evaluationAgent, http.MethodPost, "/api/credits", map[string]any{
		"pool_id":  "pool-1",
		"borrower": borrower.ID,
		"config":   revolvingLine(false),
	})

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestApproveCredit_UnknownPool(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, &evaluationAgent, http.MethodPost, "/api/credits", map[string]any{
		"pool_id":  "pool-404",
		"borrower": borrower.ID,
		"config":   revolvingLine(false),
	})

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCredit_BadAndUnknownHash(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, &evaluationAgent, http.MethodGet, "/api/credits/not-a-hash", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	unknown := "0x" + strings.Repeat("ab", 32)
	rec = env.do(t, &evaluationAgent, http.MethodGet, "/api/credits/"+unknown, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDrawdownThenPayment(t *testing.T) {
	env := newAPIEnv(t)
	hash := env.approveLine(t, false)

	// GIVEN: A drawdown of 100,000
	rec := env.do(t, &borrower, http.MethodPost, "/api/credits/"+hash+"/drawdown", AmountRequest{Amount: units(100_000)})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	draw := decodeBody[DrawdownDTO](t, rec)
	assertAmount(t, 0, draw.Fee, "fee")
	assertAmount(t, 100_000, draw.NetAmount, "net_amount")
	assert.Equal(t, "good_standing", draw.Credit.State)
	require.NotNil(t, draw.Credit.Record.NextDueDate)
	assert.Equal(t, time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC), *draw.Credit.Record.NextDueDate)

	// WHEN: The borrower pays 1,000
	rec = env.do(t, &borrower, http.MethodPost, "/api/credits/"+hash+"/payments", AmountRequest{Amount: units(1_000)})

	// THEN: The whole payment is applied
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	pay := decodeBody[PaymentDTO](t, rec)
	assertAmount(t, 1_000, pay.Applied, "applied")
	assert.False(t, pay.PaidOff)

	// AND: The audit log has approval, drawdown and payment
	rec = env.do(t, &borrower, http.MethodGet, "/api/credits/"+hash+"/events", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	events := decodeBody[map[string][]EventDTO](t, rec)["events"]
	var types []string
	for _, e := range events {
		types = append(types, e.Type)
	}
	assert.Contains(t, types, string(credit.EventCreditApproved))
	assert.Contains(t, types, string(credit.EventDrawdownMade))
	assert.Contains(t, types, string(credit.EventPaymentMade))
}

func TestDrawdown_InvalidAmounts(t *testing.T) {
	env := newAPIEnv(t)
	hash := env.approveLine(t, false)

	tests := []struct {
		name string
		body string
	}{
		{"negative", `{"amount": "-5"}`},
		{"fractional", `{"amount": "10.5"}`},
		{"not json", `{"amount": `},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, &borrower, http.MethodPost, "/api/credits/"+hash+"/drawdown", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestDrawdown_OnlyBorrower(t *testing.T) {
	env := newAPIEnv(t)
	hash := env.approveLine(t, false)

	rec := env.do(t, &stranger, http.MethodPost, "/api/credits/"+hash+"/drawdown", AmountRequest{Amount: units(100)})

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDrawdown_RejectedWhileLate(t *testing.T) {
	env := newAPIEnv(t)
	hash := env.approveLine(t, false)
	rec := env.do(t, &borrower, http.MethodPost, "/api/credits/"+hash+"/drawdown", AmountRequest{Amount: units(100_000)})
	require.Equal(t, http.StatusOK, rec.Code)

	// GIVEN: The February bill is unpaid past its grace period
	env.now = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

	// WHEN: Drawing again
	rec = env.do(t, &borrower, http.MethodPost, "/api/credits/"+hash+"/drawdown", AmountRequest{Amount: units(1_000)})

	// THEN: The state conflict is reported
	assert.Equal(t, http.StatusConflict, rec.Code)

	// AND: Refreshing shows the credit delayed
	rec = env.do(t, &stranger, http.MethodPost, "/api/credits/"+hash+"/refresh", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	dto := decodeBody[CreditDTO](t, rec)
	assert.Equal(t, "delayed", dto.State)
	assert.True(t, dto.Late)
	assert.True(t, dto.Record.TotalPastDue.IsPositive())
}

func TestTriggerDefault_TooEarly(t *testing.T) {
	env := newAPIEnv(t)
	hash := env.approveLine(t, false)
	rec := env.do(t, &borrower, http.MethodPost, "/api/credits/"+hash+"/drawdown", AmountRequest{Amount: units(100_000)})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, &evaluationAgent, http.MethodPost, "/api/credits/"+hash+"/default", nil)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCloseCredit_Undrawn(t *testing.T) {
	env := newAPIEnv(t)
	hash := env.approveLine(t, false)

	rec := env.do(t, &borrower, http.MethodPost, "/api/credits/"+hash+"/close", nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = env.do(t, &borrower, http.MethodPost, "/api/credits/"+hash+"/drawdown", AmountRequest{Amount: units(100)})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestUpdateLimit_CommittedAboveLimit(t *testing.T) {
	env := newAPIEnv(t)
	hash := env.approveLine(t, false)

	rec := env.do(t, &evaluationAgent, http.MethodPost, "/api/credits/"+hash+"/limit", UpdateLimitRequest{
		CreditLimit:     units(500_000),
		CommittedAmount: units(600_000),
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPayoff_MatchesPreview(t *testing.T) {
	env := newAPIEnv(t)
	hash := env.approveLine(t, false)
	rec := env.do(t, &borrower, http.MethodPost, "/api/credits/"+hash+"/drawdown", AmountRequest{Amount: units(100_000)})
	require.Equal(t, http.StatusOK, rec.Code)
	env.now = env.now.Add(10 * 24 * time.Hour)

	rec = env.do(t, &borrower, http.MethodGet, "/api/credits/"+hash+"/payoff", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	payoff := decodeBody[map[string]decimal.Decimal](t, rec)["payoff_amount"]

	rec = env.do(t, &borrower, http.MethodGet, "/api/credits/"+hash, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, payoff.Equal(decodeBody[CreditDTO](t, rec).PayoffAmount))
	assert.True(t, payoff.GreaterThan(units(100_000)))
}

// =============================================================================
// RECEIVABLES
// =============================================================================

func TestReceivable_MintApproveDraw(t *testing.T) {
	env := newAPIEnv(t)
	hash := env.approveLine(t, true)

	// GIVEN: The borrower mints a 50,000 receivable
	rec := env.do(t, &borrower, http.MethodPost, "/api/receivables", MintReceivableRequest{
		Amount:       units(50_000),
		Currency:     "USD",
		MaturityDate: startOfTest.AddDate(0, 3, 0),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	minted := decodeBody[ReceivableDTO](t, rec)
	assert.Equal(t, borrower.ID, minted.Owner)
	assert.Equal(t, "minted", minted.State)
	path := "/api/receivables/" + jsonNumber(minted.ID)

	// WHEN: The evaluation agent approves it
	rec = env.do(t, &evaluationAgent, http.MethodPost, path+"/approve", ReceivableActionRequest{Borrower: borrower.ID})

	// THEN: Available credit rises by the 80% advance
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	approval := decodeBody[ApprovalDTO](t, rec)
	assert.True(t, approval.Created)
	assertAmount(t, 40_000, approval.Incremental, "incremental")
	assertAmount(t, 40_000, approval.Available, "available")
	assert.Equal(t, hash, approval.CreditHash)

	// AND: Approving again changes nothing
	rec = env.do(t, &evaluationAgent, http.MethodPost, path+"/approve", ReceivableActionRequest{Borrower: borrower.ID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.False(t, decodeBody[ApprovalDTO](t, rec).Created)

	// WHEN: The borrower draws 30,000 against it
	rec = env.do(t, &borrower, http.MethodPost, path+"/drawdown", ReceivableActionRequest{
		Borrower: borrower.ID,
		Amount:   units(30_000),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// THEN: 10,000 remains available
	rec = env.do(t, &borrower, http.MethodGet, "/api/credits/"+hash+"/available-credit", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assertAmount(t, 10_000, decodeBody[map[string]decimal.Decimal](t, rec)["available"], "available")

	// AND: Drawing past it fails
	rec = env.do(t, &borrower, http.MethodPost, "/api/credits/"+hash+"/drawdown", AmountRequest{Amount: units(20_000)})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReceivable_ApproveNeedsEvaluationAgent(t *testing.T) {
	env := newAPIEnv(t)
	env.approveLine(t, true)
	rec := env.do(t, &borrower, http.MethodPost, "/api/receivables", MintReceivableRequest{
		Amount:       units(50_000),
		MaturityDate: startOfTest.AddDate(0, 3, 0),
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decodeBody[ReceivableDTO](t, rec).ID

	rec = env.do(t, &borrower, http.MethodPost, "/api/receivables/"+jsonNumber(id)+"/approve",
		ReceivableActionRequest{Borrower: borrower.ID})

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestReceivable_MatureCannotBeApproved(t *testing.T) {
	env := newAPIEnv(t)
	env.approveLine(t, true)
	rec := env.do(t, &borrower, http.MethodPost, "/api/receivables", MintReceivableRequest{
		Amount:       units(50_000),
		MaturityDate: startOfTest.Add(-time.Hour),
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decodeBody[ReceivableDTO](t, rec).ID

	rec = env.do(t, &evaluationAgent, http.MethodPost, "/api/receivables/"+jsonNumber(id)+"/approve",
		ReceivableActionRequest{Borrower: borrower.ID})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody[ErrorResponse](t, rec).Details, credit.ErrReceivableAlreadyMatured.Error())
}

func TestReceivable_BorrowerCannotMintForOthers(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, &borrower, http.MethodPost, "/api/receivables", MintReceivableRequest{
		Owner:        stranger.ID,
		Amount:       units(50_000),
		MaturityDate: startOfTest.AddDate(0, 3, 0),
	})

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestReceivable_ReadRestrictedToOwner(t *testing.T) {
	env := newAPIEnv(t)
	rec := env.do(t, &borrower, http.MethodPost, "/api/receivables", MintReceivableRequest{
		Amount:       units(50_000),
		MaturityDate: startOfTest.AddDate(0, 3, 0),
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	path := "/api/receivables/" + jsonNumber(decodeBody[ReceivableDTO](t, rec).ID)

	assert.Equal(t, http.StatusOK, env.do(t, &borrower, http.MethodGet, path, nil).Code)
	assert.Equal(t, http.StatusOK, env.do(t, &evaluationAgent, http.MethodGet, path, nil).Code)
	assert.Equal(t, http.StatusForbidden, env.do(t, &stranger, http.MethodGet, path, nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, &borrower, http.MethodGet, "/api/receivables/999", nil).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, &borrower, http.MethodGet, "/api/receivables/abc", nil).Code)
}

// =============================================================================
// POOLS AND ADMIN
// =============================================================================

func TestPools_GetAndPut(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, &borrower, http.MethodGet, "/api/pools/pool-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	pool := decodeBody[factory.PoolJSON](t, rec)
	assert.Equal(t, "Main Pool", pool.Name)

	// Borrowers cannot change pools
	pool.Name = "Renamed"
	rec = env.do(t, &borrower, http.MethodPut, "/api/pools/pool-1", pool)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// The id in the body must match the URL
	rec = env.do(t, &operator, http.MethodPut, "/api/pools/pool-2", pool)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Out-of-range rates are rejected by field
	bad := pool
	bad.AdvanceRateBps = 20_000
	rec = env.do(t, &operator, http.MethodPut, "/api/pools/pool-1", bad)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "advance_rate_bps", decodeBody[ErrorResponse](t, rec).Fields[0].Field)

	rec = env.do(t, &operator, http.MethodPut, "/api/pools/pool-1", pool)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, &borrower, http.MethodGet, "/api/pools", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	pools := decodeBody[map[string][]factory.PoolJSON](t, rec)["pools"]
	require.Len(t, pools, 1)
	assert.Equal(t, "Renamed", pools[0].Name)

	rec = env.do(t, &borrower, http.MethodGet, "/api/pools/pool-404", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPause_BlocksMutations(t *testing.T) {
	env := newAPIEnv(t)
	hash := env.approveLine(t, false)

	rec := env.do(t, &borrower, http.MethodPost, "/api/admin/pause", PauseRequest{Paused: true})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, &operator, http.MethodPost, "/api/admin/pause", PauseRequest{Paused: true})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, &borrower, http.MethodPost, "/api/credits/"+hash+"/drawdown", AmountRequest{Amount: units(1_000)})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, &operator, http.MethodPost, "/api/admin/pause", PauseRequest{Paused: false})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, &borrower, http.MethodPost, "/api/credits/"+hash+"/drawdown", AmountRequest{Amount: units(1_000)})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func jsonNumber(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}

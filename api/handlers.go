/*
handlers.go - HTTP API handlers for the credit engine

PURPOSE:
  Exposes credit.Manager and receivable.Workflow over REST. Handles HTTP
  request/response and JSON, and delegates every rule to the domain.

ENDPOINTS:
  Credits:
    POST   /api/credits                               Approve a credit line
    GET    /api/credits/{hash}                        Credit as of now (not saved)
    POST   /api/credits/{hash}/drawdown               Draw funds
    POST   /api/credits/{hash}/payments               Make a payment
    POST   /api/credits/{hash}/refresh                Bring the stored bill up to date
    POST   /api/credits/{hash}/default                Trigger default
    POST   /api/credits/{hash}/close                  Close the line
    POST   /api/credits/{hash}/limit                  Update limit and commitment
    POST   /api/credits/{hash}/extend                 Add remaining periods
    POST   /api/credits/{hash}/decrease-available-credit
    GET    /api/credits/{hash}/payoff                 Payoff amount now
    GET    /api/credits/{hash}/available-credit       Receivable-backed headroom
    GET    /api/credits/{hash}/events                 Audit log

  Receivables:
    POST   /api/receivables                           Mint
    GET    /api/receivables/{id}
    POST   /api/receivables/{id}/approve              Raise available credit
    POST   /api/receivables/{id}/drawdown             Draw against it

  Pools:
    GET    /api/pools
    GET    /api/pools/{id}
    PUT    /api/pools/{id}

  Admin:
    POST   /api/admin/pause                           Pause or resume the protocol

AUTHORIZATION:
  The caller comes from the bearer token (auth.go). Role checks live in the
  domain; handlers only restrict reads to the borrower and staff roles.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 403: Caller lacks the role the operation needs
  - 404: Credit, pool or receivable not found
  - 409: Valid request, wrong credit state (or paused protocol)
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/warp/credit-engine/credit"
	"github.com/warp/credit-engine/factory"
	"github.com/warp/credit-engine/receivable"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Manager  *credit.Manager
	Workflow *receivable.Workflow
	Pools    credit.PoolStore
	Factory  *factory.PoolFactory
	Pause    *credit.PauseFlag
	Logger   *slog.Logger

	// Now is the clock every operation runs at.
	Now func() time.Time
}

// NewHandler creates a handler. pause may be nil when the deployment has no
// pause switch.
func NewHandler(m *credit.Manager, wf *receivable.Workflow, pools credit.PoolStore, pause *credit.PauseFlag, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Manager:  m,
		Workflow: wf,
		Pools:    pools,
		Factory:  factory.NewPoolFactory(),
		Pause:    pause,
		Logger:   logger.With("component", "api"),
		Now:      time.Now,
	}
}

// staffRoles may read any credit.
var staffRoles = []credit.Role{credit.RoleEvaluationAgent, credit.RolePoolOperator, credit.RoleCreditContract}

// =============================================================================
// CREDIT HANDLERS
// =============================================================================

// ApproveCredit opens a credit line.
// POST /api/credits
func (h *Handler) ApproveCredit(w http.ResponseWriter, r *http.Request) {
	var req ApproveCreditRequest
	if !h.decode(w, r, &req) {
		return
	}
	cc, err := h.Factory.CreditFromJSON(req.Config)
	if err != nil {
		h.writeDomainError(w, r, "Invalid credit config", err)
		return
	}

	c, err := h.Manager.ApproveCredit(r.Context(), credit.CallerFrom(r.Context()), credit.ApproveCreditRequest{
		PoolID:       req.PoolID,
		Borrower:     req.Borrower,
		ReceivableID: credit.ReceivableID(req.ReceivableID),
		Config:       cc,
	}, h.Now())
	if err != nil {
		h.writeDomainError(w, r, "Failed to approve credit", err)
		return
	}
	writeJSON(w, http.StatusCreated, toCreditDTO(h.Factory, c, false))
}

// GetCredit returns the credit as a refresh at now would leave it.
// GET /api/credits/{hash}
func (h *Handler) GetCredit(w http.ResponseWriter, r *http.Request) {
	hash, ok := h.creditHash(w, r)
	if !ok {
		return
	}
	c, late, err := h.Manager.PreviewCredit(r.Context(), hash, h.Now())
	if err != nil {
		h.writeDomainError(w, r, "Failed to get credit", err)
		return
	}
	if !h.canView(w, r, c) {
		return
	}
	writeJSON(w, http.StatusOK, toCreditDTO(h.Factory, c, late))
}

// Drawdown draws funds from a credit line.
// POST /api/credits/{hash}/drawdown
func (h *Handler) Drawdown(w http.ResponseWriter, r *http.Request) {
	hash, ok := h.creditHash(w, r)
	if !ok {
		return
	}
	var req AmountRequest
	if !h.decode(w, r, &req) || !h.checkAmount(w, r, "amount", req.Amount) {
		return
	}

	res, err := h.Manager.Drawdown(r.Context(), credit.CallerFrom(r.Context()), hash, req.Amount, h.Now())
	if err != nil {
		h.writeDomainError(w, r, "Failed to draw down", err)
		return
	}
	writeJSON(w, http.StatusOK, DrawdownDTO{
		Amount:    res.Amount,
		Fee:       res.Fee,
		NetAmount: res.NetAmount,
		Credit:    toCreditDTO(h.Factory, res.Credit, false),
	})
}

// MakePayment applies a payment through the waterfall.
// POST /api/credits/{hash}/payments
func (h *Handler) MakePayment(w http.ResponseWriter, r *http.Request) {
	hash, ok := h.creditHash(w, r)
	if !ok {
		return
	}
	var req AmountRequest
	if !h.decode(w, r, &req) || !h.checkAmount(w, r, "amount", req.Amount) {
		return
	}

	res, err := h.Manager.MakePayment(r.Context(), credit.CallerFrom(r.Context()), hash, req.Amount, h.Now())
	if err != nil {
		h.writeDomainError(w, r, "Failed to make payment", err)
		return
	}
	writeJSON(w, http.StatusOK, PaymentDTO{
		Applied:    res.Applied,
		PaidOff:    res.PaidOff,
		Allocation: toAllocationDTO(res.Allocation),
		Credit:     toCreditDTO(h.Factory, res.Credit, false),
	})
}

// RefreshCredit saves the bill as of now. Anyone may refresh.
// POST /api/credits/{hash}/refresh
func (h *Handler) RefreshCredit(w http.ResponseWriter, r *http.Request) {
	hash, ok := h.creditHash(w, r)
	if !ok {
		return
	}
	c, late, err := h.Manager.RefreshCredit(r.Context(), hash, h.Now())
	if err != nil {
		h.writeDomainError(w, r, "Failed to refresh credit", err)
		return
	}
	writeJSON(w, http.StatusOK, toCreditDTO(h.Factory, c, late))
}

// TriggerDefault defaults a delinquent credit.
// POST /api/credits/{hash}/default
func (h *Handler) TriggerDefault(w http.ResponseWriter, r *http.Request) {
	hash, ok := h.creditHash(w, r)
	if !ok {
		return
	}
	loss, err := h.Manager.TriggerDefault(r.Context(), credit.CallerFrom(r.Context()), hash, h.Now())
	if err != nil {
		h.writeDomainError(w, r, "Failed to trigger default", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "defaulted", "loss": loss})
}

// CloseCredit closes a line with nothing owed.
// POST /api/credits/{hash}/close
func (h *Handler) CloseCredit(w http.ResponseWriter, r *http.Request) {
	hash, ok := h.creditHash(w, r)
	if !ok {
		return
	}
	if err := h.Manager.CloseCredit(r.Context(), credit.CallerFrom(r.Context()), hash, h.Now()); err != nil {
		h.writeDomainError(w, r, "Failed to close credit", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}

// UpdateLimitAndCommitment changes the limit and committed amount.
// POST /api/credits/{hash}/limit
func (h *Handler) UpdateLimitAndCommitment(w http.ResponseWriter, r *http.Request) {
	hash, ok := h.creditHash(w, r)
	if !ok {
		return
	}
	var req UpdateLimitRequest
	if !h.decode(w, r, &req) ||
		!h.checkAmount(w, r, "credit_limit", req.CreditLimit) ||
		!h.checkAmount(w, r, "committed_amount", req.CommittedAmount) {
		return
	}

	c, err := h.Manager.UpdateLimitAndCommitment(r.Context(), credit.CallerFrom(r.Context()), hash,
		req.CreditLimit, req.CommittedAmount, h.Now())
	if err != nil {
		h.writeDomainError(w, r, "Failed to update limit", err)
		return
	}
	writeJSON(w, http.StatusOK, toCreditDTO(h.Factory, c, false))
}

// ExtendRemainingPeriods adds periods to a credit.
// POST /api/credits/{hash}/extend
func (h *Handler) ExtendRemainingPeriods(w http.ResponseWriter, r *http.Request) {
	hash, ok := h.creditHash(w, r)
	if !ok {
		return
	}
	var req ExtendPeriodsRequest
	if !h.decode(w, r, &req) {
		return
	}

	c, err := h.Manager.ExtendRemainingPeriods(r.Context(), credit.CallerFrom(r.Context()), hash, req.Periods, h.Now())
	if err != nil {
		h.writeDomainError(w, r, "Failed to extend periods", err)
		return
	}
	writeJSON(w, http.StatusOK, toCreditDTO(h.Factory, c, false))
}

// DecreaseAvailableCredit lowers the headroom of a receivable-backed line.
// POST /api/credits/{hash}/decrease-available-credit
func (h *Handler) DecreaseAvailableCredit(w http.ResponseWriter, r *http.Request) {
	hash, ok := h.creditHash(w, r)
	if !ok {
		return
	}
	var req AmountRequest
	if !h.decode(w, r, &req) || !h.checkAmount(w, r, "amount", req.Amount) {
		return
	}

	available, err := h.Manager.DecreaseAvailableCredit(r.Context(), credit.CallerFrom(r.Context()), hash, req.Amount, h.Now())
	if err != nil {
		h.writeDomainError(w, r, "Failed to decrease available credit", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"available": available})
}

// GetPayoffAmount returns what settles the credit now.
// GET /api/credits/{hash}/payoff
func (h *Handler) GetPayoffAmount(w http.ResponseWriter, r *http.Request) {
	c, ok := h.viewableCredit(w, r)
	if !ok {
		return
	}
	amount, err := h.Manager.GetPayoffAmount(r.Context(), c.Hash, h.Now())
	if err != nil {
		h.writeDomainError(w, r, "Failed to get payoff amount", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"payoff_amount": amount})
}

// GetAvailableCredit returns the receivable-backed headroom.
// GET /api/credits/{hash}/available-credit
func (h *Handler) GetAvailableCredit(w http.ResponseWriter, r *http.Request) {
	c, ok := h.viewableCredit(w, r)
	if !ok {
		return
	}
	available, err := h.Manager.AvailableCredit(r.Context(), c.Hash)
	if err != nil {
		h.writeDomainError(w, r, "Failed to get available credit", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"available": available})
}

// GetEvents returns the audit log of a credit.
// GET /api/credits/{hash}/events
func (h *Handler) GetEvents(w http.ResponseWriter, r *http.Request) {
	c, ok := h.viewableCredit(w, r)
	if !ok {
		return
	}
	events, err := h.Manager.Events(r.Context(), c.Hash)
	if err != nil {
		h.writeDomainError(w, r, "Failed to get events", err)
		return
	}
	dtos := make([]EventDTO, len(events))
	for i, e := range events {
		dtos[i] = toEventDTO(e)
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": dtos})
}

// =============================================================================
// RECEIVABLE HANDLERS
// =============================================================================

// MintReceivable registers a receivable. Borrowers mint for themselves;
// evaluation agents may mint for anyone.
// POST /api/receivables
func (h *Handler) MintReceivable(w http.ResponseWriter, r *http.Request) {
	var req MintReceivableRequest
	if !h.decode(w, r, &req) || !h.checkAmount(w, r, "amount", req.Amount) {
		return
	}

	caller := credit.CallerFrom(r.Context())
	owner := req.Owner
	switch {
	case caller.Has(credit.RoleEvaluationAgent):
		if owner == "" {
			writeError(w, http.StatusBadRequest, "owner is required", nil)
			return
		}
	case caller.Has(credit.RoleBorrower) && (owner == "" || owner == caller.ID):
		owner = caller.ID
	default:
		writeError(w, http.StatusForbidden, "Caller may not mint this receivable", nil)
		return
	}

	minted, err := h.Workflow.Registry().Mint(r.Context(), receivable.Receivable{
		Owner:        owner,
		Amount:       req.Amount,
		Currency:     req.Currency,
		ReferenceID:  req.ReferenceID,
		MaturityDate: req.MaturityDate,
		CreatedAt:    h.Now(),
	})
	if err != nil {
		h.writeDomainError(w, r, "Failed to mint receivable", err)
		return
	}
	writeJSON(w, http.StatusCreated, toReceivableDTO(minted))
}

// GetReceivable returns a receivable.
// GET /api/receivables/{id}
func (h *Handler) GetReceivable(w http.ResponseWriter, r *http.Request) {
	id, ok := receivableID(w, r)
	if !ok {
		return
	}
	rec, err := h.Workflow.Registry().GetReceivable(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, "Failed to get receivable", err)
		return
	}
	caller := credit.CallerFrom(r.Context())
	if caller.ID != rec.Owner && !caller.HasAny(staffRoles...) {
		writeError(w, http.StatusForbidden, "Caller may not view this receivable", nil)
		return
	}
	writeJSON(w, http.StatusOK, toReceivableDTO(*rec))
}

// ApproveReceivable raises the borrower's available credit by the advance
// on the receivable.
// POST /api/receivables/{id}/approve
func (h *Handler) ApproveReceivable(w http.ResponseWriter, r *http.Request) {
	id, ok := receivableID(w, r)
	if !ok {
		return
	}
	var req ReceivableActionRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.Workflow.ApproveReceivable(r.Context(), credit.CallerFrom(r.Context()), req.Borrower, id, h.Now())
	if err != nil {
		h.writeDomainError(w, r, "Failed to approve receivable", err)
		return
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, toApprovalDTO(res))
}

// DrawdownWithReceivable draws against an approved receivable.
// POST /api/receivables/{id}/drawdown
func (h *Handler) DrawdownWithReceivable(w http.ResponseWriter, r *http.Request) {
	id, ok := receivableID(w, r)
	if !ok {
		return
	}
	var req ReceivableActionRequest
	if !h.decode(w, r, &req) || !h.checkAmount(w, r, "amount", req.Amount) {
		return
	}

	res, err := h.Workflow.DrawdownWithReceivable(r.Context(), credit.CallerFrom(r.Context()), req.Borrower, id, req.Amount, h.Now())
	if err != nil {
		h.writeDomainError(w, r, "Failed to draw down", err)
		return
	}
	writeJSON(w, http.StatusOK, DrawdownDTO{
		Amount:    res.Amount,
		Fee:       res.Fee,
		NetAmount: res.NetAmount,
		Credit:    toCreditDTO(h.Factory, res.Credit, false),
	})
}

// =============================================================================
// POOL HANDLERS
// =============================================================================

// ListPools returns every pool document.
// GET /api/pools
func (h *Handler) ListPools(w http.ResponseWriter, r *http.Request) {
	pools, err := h.Pools.ListPools(r.Context())
	if err != nil {
		h.writeDomainError(w, r, "Failed to list pools", err)
		return
	}
	dtos := make([]factory.PoolJSON, len(pools))
	for i, p := range pools {
		dtos[i] = h.Factory.ToJSON(p)
	}
	writeJSON(w, http.StatusOK, map[string]any{"pools": dtos})
}

// GetPool returns one pool document.
// GET /api/pools/{id}
func (h *Handler) GetPool(w http.ResponseWriter, r *http.Request) {
	pool, err := h.Pools.GetPool(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, "Failed to get pool", err)
		return
	}
	writeJSON(w, http.StatusOK, h.Factory.ToJSON(*pool))
}

// PutPool creates or replaces a pool document. Pool operators only.
// PUT /api/pools/{id}
func (h *Handler) PutPool(w http.ResponseWriter, r *http.Request) {
	caller := credit.CallerFrom(r.Context())
	if err := caller.RequireRole("put pool", credit.ErrUnauthorized, credit.RolePoolOperator); err != nil {
		h.writeDomainError(w, r, "Failed to save pool", err)
		return
	}

	var pj factory.PoolJSON
	if err := json.NewDecoder(r.Body).Decode(&pj); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	id := chi.URLParam(r, "id")
	if pj.ID == "" {
		pj.ID = id
	}
	if pj.ID != id {
		writeError(w, http.StatusBadRequest, "Pool id does not match the URL", nil)
		return
	}

	pool, err := h.Factory.FromJSON(pj)
	if err != nil {
		h.writeDomainError(w, r, "Invalid pool", err)
		return
	}
	if err := h.Pools.SavePool(r.Context(), pool); err != nil {
		h.writeDomainError(w, r, "Failed to save pool", err)
		return
	}
	h.Logger.InfoContext(r.Context(), "pool saved", "pool", pool.PoolID, "by", caller.ID)
	writeJSON(w, http.StatusOK, h.Factory.ToJSON(pool))
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// SetPause pauses or resumes every mutating operation. Pool operators only.
// POST /api/admin/pause
func (h *Handler) SetPause(w http.ResponseWriter, r *http.Request) {
	caller := credit.CallerFrom(r.Context())
	if err := caller.RequireRole("pause", credit.ErrUnauthorized, credit.RolePoolOperator); err != nil {
		h.writeDomainError(w, r, "Failed to pause", err)
		return
	}
	if h.Pause == nil {
		writeError(w, http.StatusNotImplemented, "No pause switch configured", nil)
		return
	}
	var req PauseRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.Pause.Set(req.Paused)
	h.Logger.WarnContext(r.Context(), "protocol pause changed", "paused", req.Paused, "by", caller.ID)
	writeJSON(w, http.StatusOK, map[string]bool{"paused": req.Paused})
}

// Health reports liveness.
// GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

// decode reads and validates a JSON body. It writes the 400 itself.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.Factory.Validate(v); err != nil {
		h.writeDomainError(w, r, "Invalid request", err)
		return false
	}
	return true
}

// checkAmount rejects negative and fractional amounts.
func (h *Handler) checkAmount(w http.ResponseWriter, r *http.Request, field string, amount decimal.Decimal) bool {
	var msg string
	switch {
	case amount.IsNegative():
		msg = "must not be negative"
	case !amount.IsInteger():
		msg = "must be a whole number of units"
	default:
		return true
	}
	h.writeDomainError(w, r, "Invalid request", &factory.ValidationError{
		Fields: []factory.FieldError{{Field: field, Message: msg}},
	})
	return false
}

func (h *Handler) creditHash(w http.ResponseWriter, r *http.Request) (credit.CreditHash, bool) {
	hash, err := credit.ParseCreditHash(chi.URLParam(r, "hash"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid credit hash", err)
		return credit.CreditHash{}, false
	}
	return hash, true
}

func receivableID(w http.ResponseWriter, r *http.Request) (credit.ReceivableID, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid receivable id", err)
		return 0, false
	}
	return credit.ReceivableID(id), true
}

// canView restricts reads to the borrower and staff roles.
func (h *Handler) canView(w http.ResponseWriter, r *http.Request, c *credit.Credit) bool {
	caller := credit.CallerFrom(r.Context())
	if caller.ID == c.Borrower || caller.HasAny(staffRoles...) {
		return true
	}
	writeError(w, http.StatusForbidden, "Caller may not view this credit", nil)
	return false
}

// viewableCredit loads the stored credit named in the URL and checks the
// caller may read it.
func (h *Handler) viewableCredit(w http.ResponseWriter, r *http.Request) (*credit.Credit, bool) {
	hash, ok := h.creditHash(w, r)
	if !ok {
		return nil, false
	}
	c, err := h.Manager.GetCredit(r.Context(), hash)
	if err != nil {
		h.writeDomainError(w, r, "Failed to get credit", err)
		return nil, false
	}
	return c, h.canView(w, r, c)
}

// writeDomainError maps engine errors to HTTP statuses.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, message string, err error) {
	var validationErr *factory.ValidationError
	switch {
	case errors.As(err, &validationErr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: message, Details: err.Error(), Fields: validationErr.Fields})
	case credit.IsAuthorization(err):
		writeError(w, http.StatusForbidden, message, err)
	case credit.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case credit.IsStateConflict(err):
		writeError(w, http.StatusConflict, message, err)
	case credit.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		h.Logger.ErrorContext(r.Context(), message, "error", err, "path", r.URL.Path)
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for dashboards
  5. Auth:       Bearer token to credit.Caller (everything under /api)

ROUTE GROUPS:
  /healthz             Liveness, no token needed
  /api/credits/*       Credit lines
  /api/receivables/*   Receivables
  /api/pools/*         Pool configuration
  /api/admin/*         Pause switch

SEE ALSO:
  - handlers.go: Handler implementations
  - auth.go: Token checks
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, auth *Authenticator, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", h.Health)

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(auth.Middleware)

		r.Route("/credits", func(r chi.Router) {
			r.Post("/", h.ApproveCredit)
			r.Route("/{hash}", func(r chi.Router) {
				r.Get("/", h.GetCredit)
				r.Post("/drawdown", h.Drawdown)
				r.Post("/payments", h.MakePayment)
				r.Post("/refresh", h.RefreshCredit)
				r.Post("/default", h.TriggerDefault)
				r.Post("/close", h.CloseCredit)
				r.Post("/limit", h.UpdateLimitAndCommitment)
				r.Post("/extend", h.ExtendRemainingPeriods)
				r.Post("/decrease-available-credit", h.DecreaseAvailableCredit)
				r.Get("/payoff", h.GetPayoffAmount)
				r.Get("/available-credit", h.GetAvailableCredit)
				r.Get("/events", h.GetEvents)
			})
		})

		r.Route("/receivables", func(r chi.Router) {
			r.Post("/", h.MintReceivable)
			r.Get("/{id}", h.GetReceivable)
			r.Post("/{id}/approve", h.ApproveReceivable)
			r.Post("/{id}/drawdown", h.DrawdownWithReceivable)
		})

		r.Route("/pools", func(r chi.Router) {
			r.Get("/", h.ListPools)
			r.Get("/{id}", h.GetPool)
			r.Put("/{id}", h.PutPool)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/pause", h.SetPause)
		})
	})

	return r
}

// Package v1 wires the HTTP surface of the ledger engine.
// It keeps handlers thin, delegating business rules to the service layer.
package v1

import (
	"log/slog"
	"net/http"
	"time"

	chi "github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/govalues/money"

	"github.com/tinoosan/ledger-engine/internal/service/account"
	"github.com/tinoosan/ledger-engine/internal/service/journal"
)

// Deps are the collaborators the HTTP layer delegates to.
type Deps struct {
	Accounts account.Service
	Journal  journal.Service
	Poster   Poster
	Reports  Reporter
	// Ready is optional; /readyz always succeeds without it.
	Ready ReadyChecker
	// Currency is the book currency amounts are rendered in.
	Currency money.Currency
	// RateLimit caps write requests per client IP per minute; 0 disables it.
	RateLimit int
	Logger    *slog.Logger
}

// Server wires handlers and middleware using Chi.
type Server struct {
	accounts account.Service
	journal  journal.Service
	poster   Poster
	reports  Reporter
	ready    ReadyChecker
	curr     money.Currency
	validate *validator.Validate
	log      *slog.Logger
	rt       *chi.Mux
}

// New constructs the HTTP server with routes and middleware.
// The logger is used by basic request/response logging and panic recovery.
func New(d Deps) *Server {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(requestLogger(logger))
	r.Use(recoverer(logger))
	r.Use(metricsMiddleware)
	r.Use(secureHeaders())
	r.Use(withActor)

	s := &Server{
		accounts: d.Accounts,
		journal:  d.Journal,
		poster:   d.Poster,
		reports:  d.Reports,
		ready:    d.Ready,
		curr:     d.Currency,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      logger,
		rt:       r,
	}
	s.routes(d.RateLimit)
	return s
}

// Handler exposes the configured http.Handler.
func (s *Server) Handler() http.Handler { return s.rt }

// routes declares the public HTTP API endpoints and attaches any per-route middleware.
func (s *Server) routes(rateLimit int) {
	s.rt.Route("/v1", func(r chi.Router) {
		r.Get("/accounts", s.listAccounts)
		r.Get("/accounts/tree", s.accountTree)
		r.Get("/accounts/{id}", s.getAccount)
		r.Get("/accounts/{id}/ledger", s.getAccountLedger)
		r.Get("/entries", s.listEntries)
		r.Get("/entries/{id}", s.getEntry)
		r.Post("/entries/validate", s.validateEntry)
		r.Get("/trial-balance", s.trialBalance)
		r.Get("/dictionary/categories", s.getCategoriesDictionary)

		r.Group(func(wr chi.Router) {
			if rateLimit > 0 {
				wr.Use(httprate.Limit(rateLimit, time.Minute,
					httprate.WithKeyFuncs(httprate.KeyByIP),
					httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
						writeErr(w, http.StatusTooManyRequests, "rate limit exceeded", "rate_limited")
					}),
				))
			}
			wr.Post("/accounts", s.postAccount)
			wr.Patch("/accounts/{id}", s.updateAccount)
			wr.Delete("/accounts/{id}", s.deleteAccount)
			wr.Post("/accounts/{id}/deactivate", s.deactivateAccount)
			wr.Post("/entries", s.postEntry)
			wr.Put("/entries/{id}", s.updateEntry)
			wr.Delete("/entries/{id}", s.deleteEntry)
			wr.Post("/entries/{id}/post", s.postDraft)
			wr.Post("/entries/{id}/reverse", s.reverseEntry)
		})
	})
	// Health and metrics (unversioned)
	s.rt.Get("/healthz", s.healthz)
	s.rt.Get("/readyz", s.readyz)
	s.rt.Handle("/metrics", metricsHandler())
}

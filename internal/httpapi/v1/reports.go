package v1

import (
	"context"
	"net/http"
	"time"
)

// trialBalance handles GET /v1/trial-balance?as_of=. Without as_of it reports
// live balances.
func (s *Server) trialBalance(w http.ResponseWriter, r *http.Request) {
	asOf, ok := queryDate(w, r, "as_of")
	if !ok {
		return
	}
	tb, err := s.reports.TrialBalance(r.Context(), asOf)
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, s.trialBalanceView(tb))
}

// getAccountLedger handles GET /v1/accounts/{id}/ledger?from=&to=.
func (s *Server) getAccountLedger(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	from, ok := queryDate(w, r, "from")
	if !ok {
		return
	}
	to, ok := queryDate(w, r, "to")
	if !ok {
		return
	}
	st, err := s.reports.AccountLedger(r.Context(), id, from, to)
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, s.statementView(st))
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.ready == nil {
		w.WriteHeader(http.StatusOK)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 800*time.Millisecond)
	defer cancel()
	if err := s.ready.Ready(ctx); err != nil {
		s.log.Warn("not ready", "err", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

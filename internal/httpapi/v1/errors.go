package v1

import (
	"errors"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/tinoosan/ledger-engine/internal/errs"
	"github.com/tinoosan/ledger-engine/internal/service/journal"
	"github.com/tinoosan/ledger-engine/internal/service/report"
)

// errorResponse is the standard error payload for the API.
type errorResponse struct {
	Error  string              `json:"error"`
	Code   string              `json:"code,omitempty"`
	Result *validationResponse `json:"result,omitempty"`
}

func writeErr(w http.ResponseWriter, status int, msg, code string) {
	toJSON(w, status, errorResponse{Error: msg, Code: code})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeErr(w, http.StatusBadRequest, msg, "invalid")
}

func notFound(w http.ResponseWriter) {
	writeErr(w, http.StatusNotFound, "not_found", "not_found")
}

// writeServiceErr maps service error kinds onto status codes.
func (s *Server) writeServiceErr(w http.ResponseWriter, r *http.Request, err error) {
	var unbalanced *journal.UnbalancedError
	switch {
	case errors.As(err, &unbalanced):
		for _, le := range unbalanced.Result.Errors {
			validationFailures.WithLabelValues(string(le.Kind)).Inc()
		}
		res := s.validationView(unbalanced.Result)
		toJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error(), Code: "unbalanced", Result: &res})
	case errors.Is(err, errs.ErrInvalid):
		badRequest(w, err.Error())
	case errors.Is(err, errs.ErrNotFound):
		notFound(w)
	case errors.Is(err, errs.ErrInvalidState):
		writeErr(w, http.StatusConflict, err.Error(), "invalid_state")
	case errors.Is(err, errs.ErrConflict):
		writeErr(w, http.StatusConflict, err.Error(), "conflict")
	case errors.Is(err, errs.ErrInvalidOperation):
		writeErr(w, http.StatusUnprocessableEntity, err.Error(), "invalid_operation")
	case errors.Is(err, errs.ErrImbalance):
		trialBalanceImbalances.Inc()
		attrs := []any{"req_id", chimw.GetReqID(r.Context()), "err", err}
		if ie, ok := report.IsImbalance(err); ok {
			attrs = append(attrs, "total_debit", ie.TotalDebit.String(), "total_credit", ie.TotalCredit.String(), "difference", ie.Difference.String())
		}
		s.log.Error("trial balance out of balance", attrs...)
		writeErr(w, http.StatusInternalServerError, err.Error(), "ledger_imbalance")
	default:
		s.log.Error("request failed", "req_id", chimw.GetReqID(r.Context()), "path", r.URL.Path, "err", err)
		writeErr(w, http.StatusInternalServerError, "internal error", "internal")
	}
}

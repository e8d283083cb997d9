package v1

import (
	"net/http"
	"strconv"

	"github.com/tinoosan/ledger-engine/internal/ledger"
	"github.com/tinoosan/ledger-engine/internal/service/account"
)

// postAccount handles POST /v1/accounts.
func (s *Server) postAccount(w http.ResponseWriter, r *http.Request) {
	var req postAccountRequest
	if !s.decode(w, r, &req) {
		return
	}
	acc, err := s.accounts.Create(r.Context(), req.input())
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/accounts/"+acc.ID.String())
	toJSON(w, http.StatusCreated, s.accountView(acc))
}

// listAccounts handles GET /v1/accounts?type=&category=&active=&q=.
func (s *Server) listAccounts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := account.Filter{
		Type:     ledger.AccountType(q.Get("type")),
		Category: q.Get("category"),
		Search:   q.Get("q"),
	}
	if f.Type != "" && !f.Type.Valid() {
		badRequest(w, "invalid type")
		return
	}
	if raw := q.Get("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			badRequest(w, "invalid active")
			return
		}
		f.Active = &active
	}
	accs, err := s.accounts.List(r.Context(), f)
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	out := listResponse[accountResponse]{Items: make([]accountResponse, 0, len(accs))}
	for _, a := range accs {
		out.Items = append(out.Items, s.accountView(a))
	}
	toJSON(w, http.StatusOK, out)
}

// accountTree handles GET /v1/accounts/tree.
func (s *Server) accountTree(w http.ResponseWriter, r *http.Request) {
	nodes, err := s.accounts.Tree(r.Context())
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	out := listResponse[accountNodeResponse]{Items: make([]accountNodeResponse, 0, len(nodes))}
	for _, n := range nodes {
		out.Items = append(out.Items, s.nodeView(n))
	}
	toJSON(w, http.StatusOK, out)
}

// getAccount handles GET /v1/accounts/{id}.
func (s *Server) getAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	acc, err := s.accounts.Get(r.Context(), id)
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, s.accountView(acc))
}

// updateAccount handles PATCH /v1/accounts/{id}. Code and parent are fixed;
// the type can only change while the account has no history or hierarchy.
func (s *Server) updateAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req patchAccountRequest
	if !s.decode(w, r, &req) {
		return
	}
	acc, err := s.accounts.Update(r.Context(), id, req.patch())
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, s.accountView(acc))
}

// deleteAccount handles DELETE /v1/accounts/{id}. Accounts with sub-accounts
// or ledger history answer 409; deactivate those instead.
func (s *Server) deleteAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.accounts.Delete(r.Context(), id); err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// deactivateAccount handles POST /v1/accounts/{id}/deactivate.
func (s *Server) deactivateAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.accounts.Deactivate(r.Context(), id); err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

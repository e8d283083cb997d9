package v1

import (
	"net/http"
	"time"

	"github.com/tinoosan/ledger-engine/internal/ledger"
	"github.com/tinoosan/ledger-engine/internal/service/journal"
)

func (s *Server) entryInput(w http.ResponseWriter, r *http.Request) (journal.EntryInput, bool) {
	var req entryRequest
	if !s.decode(w, r, &req) {
		return journal.EntryInput{}, false
	}
	in, err := req.input(actorFrom(r.Context()))
	if err != nil {
		badRequest(w, err.Error())
		return journal.EntryInput{}, false
	}
	return in, true
}

// postEntry handles POST /v1/entries. Drafts are stored even when they do not
// balance yet; validation happens at post time.
func (s *Server) postEntry(w http.ResponseWriter, r *http.Request) {
	in, ok := s.entryInput(w, r)
	if !ok {
		return
	}
	e, err := s.journal.Create(r.Context(), in)
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/entries/"+e.ID.String())
	toJSON(w, http.StatusCreated, s.entryView(e))
}

// listEntries handles GET /v1/entries?status=&from=&to=.
func (s *Server) listEntries(w http.ResponseWriter, r *http.Request) {
	f := journal.Filter{Status: ledger.EntryStatus(r.URL.Query().Get("status"))}
	if f.Status != "" && f.Status != ledger.EntryStatusDraft && f.Status != ledger.EntryStatusPosted {
		badRequest(w, "invalid status")
		return
	}
	var ok bool
	if f.From, ok = queryDate(w, r, "from"); !ok {
		return
	}
	if f.To, ok = queryDate(w, r, "to"); !ok {
		return
	}
	entries, err := s.journal.List(r.Context(), f)
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	out := listResponse[entryResponse]{Items: make([]entryResponse, 0, len(entries))}
	for _, e := range entries {
		out.Items = append(out.Items, s.entryView(e))
	}
	toJSON(w, http.StatusOK, out)
}

// getEntry handles GET /v1/entries/{id}.
func (s *Server) getEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	e, err := s.journal.Get(r.Context(), id)
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, s.entryView(e))
}

// updateEntry handles PUT /v1/entries/{id}; only drafts can change.
func (s *Server) updateEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	in, ok := s.entryInput(w, r)
	if !ok {
		return
	}
	e, err := s.journal.UpdateDraft(r.Context(), id, in)
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, s.entryView(e))
}

// deleteEntry handles DELETE /v1/entries/{id}; only drafts can be removed.
func (s *Server) deleteEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.journal.Delete(r.Context(), id); err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// validateEntry handles POST /v1/entries/validate. It reports what posting
// would say about the entry without storing anything.
func (s *Server) validateEntry(w http.ResponseWriter, r *http.Request) {
	in, ok := s.entryInput(w, r)
	if !ok {
		return
	}
	res, err := s.journal.Preview(r.Context(), in)
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, s.validationView(res))
}

// postDraft handles POST /v1/entries/{id}/post.
func (s *Server) postDraft(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	e, err := s.poster.Post(r.Context(), id, actorFrom(r.Context()))
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	entriesPosted.Inc()
	toJSON(w, http.StatusOK, s.entryView(e))
}

// reverseEntry handles POST /v1/entries/{id}/reverse with an optional
// {"date": "..."} body.
func (s *Server) reverseEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var date time.Time
	if r.ContentLength != 0 {
		var req reverseRequest
		if !s.decode(w, r, &req) {
			return
		}
		if req.Date != "" {
			d, err := parseDate(req.Date)
			if err != nil {
				badRequest(w, err.Error())
				return
			}
			date = d
		}
	}
	e, err := s.poster.Reverse(r.Context(), id, actorFrom(r.Context()), date)
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	entriesReversed.Inc()
	w.Header().Set("Location", "/v1/entries/"+e.ID.String())
	toJSON(w, http.StatusCreated, s.entryView(e))
}

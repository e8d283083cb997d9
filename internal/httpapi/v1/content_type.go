package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const maxBodyBytes = 1 << 20

// toJSON writes a JSON response with status code.
func toJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// requireJSON ensures the request has Content-Type application/json (optionally with params).
// Writes 415 if not JSON and returns false; otherwise returns true.
func requireJSON(w http.ResponseWriter, r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	mime := strings.ToLower(strings.TrimSpace(strings.Split(ct, ";")[0]))
	if mime != "application/json" {
		writeErr(w, http.StatusUnsupportedMediaType, "unsupported_media_type", "unsupported_media_type")
		return false
	}
	return true
}

// decode reads a JSON body into dst, rejects unknown fields and runs the
// struct's validate tags. It writes the error response itself and reports
// whether the handler should continue.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if !requireJSON(w, r) {
		return false
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		badRequest(w, "invalid JSON: "+err.Error())
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
			}
			badRequest(w, strings.Join(msgs, "; "))
			return false
		}
		badRequest(w, err.Error())
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		badRequest(w, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

// parseDate accepts a calendar date (2006-01-02) or an RFC 3339 timestamp.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	return t.UTC(), nil
}

// queryDate parses an optional date query parameter.
func queryDate(w http.ResponseWriter, r *http.Request, name string) (*time.Time, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, true
	}
	t, err := parseDate(raw)
	if err != nil {
		badRequest(w, "invalid "+name)
		return nil, false
	}
	return &t, true
}

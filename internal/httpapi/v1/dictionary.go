package v1

import (
	"net/http"

	"github.com/tinoosan/ledger-engine/internal/dictionary"
	"github.com/tinoosan/ledger-engine/internal/ledger"
)

// GET /v1/dictionary/categories?type=
func (s *Server) getCategoriesDictionary(w http.ResponseWriter, r *http.Request) {
	var t *ledger.AccountType
	if ts := r.URL.Query().Get("type"); ts != "" {
		tt := ledger.AccountType(ts)
		if !tt.Valid() {
			badRequest(w, "invalid type")
			return
		}
		t = &tt
	}
	toJSON(w, http.StatusOK, listResponse[dictionary.Category]{Items: dictionary.CategoriesFor(t)})
}

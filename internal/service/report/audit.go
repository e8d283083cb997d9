package report

import (
	"context"

	"github.com/google/uuid"
	"github.com/govalues/decimal"

	"github.com/tinoosan/ledger-engine/internal/ledger"
	"github.com/tinoosan/ledger-engine/internal/service/account"
)

// Discrepancy is an account whose stored balance disagrees with its ledger history.
type Discrepancy struct {
	AccountID uuid.UUID
	Code      string
	Stored    decimal.Decimal
	// Replayed is the sum of every ledger row for the account.
	Replayed decimal.Decimal
	// LastRunning is the running balance on the newest row, nil without rows.
	LastRunning *decimal.Decimal
}

// Audit recomputes every balance from the general ledger and returns the
// accounts that disagree, ordered by code. An empty result means the stored
// balances are consistent with the ledger. Postings that commit while the
// audit reads can show up as transient discrepancies.
func (s *Service) Audit(ctx context.Context) ([]Discrepancy, error) {
	version, err := s.repo.LedgerVersion(ctx)
	if err != nil {
		return nil, err
	}
	accs, err := s.repo.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.LedgerRows(ctx, RowFilter{MaxSeq: version})
	if err != nil {
		return nil, err
	}
	replayed, err := replay(accs, rows)
	if err != nil {
		return nil, err
	}
	last := make(map[uuid.UUID]ledger.GeneralLedgerEntry, len(accs))
	for _, r := range rows {
		last[r.AccountID] = r
	}

	account.SortByCode(accs)
	var out []Discrepancy
	for _, a := range accs {
		d := Discrepancy{AccountID: a.ID, Code: a.Code, Stored: a.Balance, Replayed: replayed[a.ID]}
		bad := a.Balance.Cmp(d.Replayed) != 0
		if r, ok := last[a.ID]; ok {
			rb := r.RunningBalance
			d.LastRunning = &rb
			bad = bad || rb.Cmp(d.Replayed) != 0
		}
		if bad {
			out = append(out, d)
		}
	}
	if len(out) > 0 {
		s.log.Error("ledger audit found discrepancies", "accounts", len(out), "version", version)
	}
	return out, nil
}

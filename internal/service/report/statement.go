package report

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/decimal"

	"github.com/tinoosan/ledger-engine/internal/errs"
	"github.com/tinoosan/ledger-engine/internal/ledger"
)

// Statement is an account's ledger rows within a date window.
type Statement struct {
	Account ledger.Account
	From    *time.Time
	To      *time.Time
	// Opening is the balance from rows dated before From.
	Opening decimal.Decimal
	Rows    []ledger.GeneralLedgerEntry
	Closing decimal.Decimal
}

// AccountLedger returns the rows posted to accountID, in posting order, whose
// date falls within [from, to]. Either bound may be nil.
func (s *Service) AccountLedger(ctx context.Context, accountID uuid.UUID, from, to *time.Time) (Statement, error) {
	if accountID == uuid.Nil {
		return Statement{}, errs.ErrInvalid
	}
	if from != nil && to != nil && ledger.Day(*from).After(ledger.Day(*to)) {
		return Statement{}, fmt.Errorf("%w: from is after to", errs.ErrInvalid)
	}
	acc, err := s.repo.GetAccount(ctx, accountID)
	if err != nil {
		return Statement{}, err
	}
	var f, t *time.Time
	if from != nil {
		d := ledger.Day(*from)
		f = &d
	}
	if to != nil {
		d := ledger.Day(*to)
		t = &d
	}

	all, err := s.repo.LedgerRows(ctx, RowFilter{AccountID: &accountID, To: t})
	if err != nil {
		return Statement{}, err
	}
	st := Statement{Account: acc, From: f, To: t, Opening: decimal.Zero, Rows: make([]ledger.GeneralLedgerEntry, 0, len(all))}
	closing := decimal.Zero
	for _, r := range all {
		delta, err := rowDelta(acc.Type, r)
		if err != nil {
			return Statement{}, err
		}
		if closing, err = closing.Add(delta); err != nil {
			return Statement{}, fmt.Errorf("%w: statement %s: %v", errs.ErrInvalid, acc.Code, err)
		}
		if f != nil && r.Date.Before(*f) {
			if st.Opening, err = st.Opening.Add(delta); err != nil {
				return Statement{}, fmt.Errorf("%w: statement %s: %v", errs.ErrInvalid, acc.Code, err)
			}
			continue
		}
		st.Rows = append(st.Rows, r)
	}
	st.Closing = closing
	return st, nil
}

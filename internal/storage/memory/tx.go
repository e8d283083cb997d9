package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/decimal"

	"github.com/tinoosan/ledger-engine/internal/errs"
	"github.com/tinoosan/ledger-engine/internal/ledger"
	"github.com/tinoosan/ledger-engine/internal/service/posting"
	"github.com/tinoosan/ledger-engine/internal/service/report"
)

// WithTx runs fn against a staged view of the store. Writes are buffered and
// applied under the write lock only if fn returns nil and every staged write
// still applies; otherwise nothing changes.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx posting.Tx) error) error {
	t := &tx{
		s:        s,
		accounts: make(map[uuid.UUID]ledger.Account),
		base:     make(map[uuid.UUID]decimal.Decimal),
		entries:  make(map[uuid.UUID]ledger.JournalEntry),
		created:  make(map[uuid.UUID]bool),
	}
	if err := fn(ctx, t); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.commit(t)
}

type tx struct {
	s *Store
	// accounts holds staged balances; base is the stored balance each was read at.
	accounts map[uuid.UUID]ledger.Account
	base     map[uuid.UUID]decimal.Decimal
	entries  map[uuid.UUID]ledger.JournalEntry
	created  map[uuid.UUID]bool
	rows     []ledger.GeneralLedgerEntry
}

func (t *tx) EntryByID(ctx context.Context, id uuid.UUID) (ledger.JournalEntry, error) {
	if e, ok := t.entries[id]; ok {
		return cloneEntry(e), nil
	}
	return t.s.EntryByID(ctx, id)
}

func (t *tx) AccountsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]ledger.Account, error) {
	out, err := t.s.AccountsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		if a, ok := t.accounts[id]; ok {
			out[id] = cloneAccount(a)
		}
	}
	return out, nil
}

func (t *tx) ReversalOf(_ context.Context, id uuid.UUID) (ledger.JournalEntry, bool, error) {
	for cid := range t.created {
		if e := t.entries[cid]; e.ReversalOf != nil && *e.ReversalOf == id {
			return cloneEntry(e), true, nil
		}
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	rid, ok := t.s.reversals[id]
	if !ok {
		return ledger.JournalEntry{}, false, nil
	}
	return cloneEntry(t.s.entries[rid]), true, nil
}

func (t *tx) CreateEntry(_ context.Context, e ledger.JournalEntry) (ledger.JournalEntry, error) {
	if _, ok := t.entries[e.ID]; ok {
		return ledger.JournalEntry{}, fmt.Errorf("%w: entry %s exists", errs.ErrConflict, e.ID)
	}
	e = cloneEntry(e)
	t.entries[e.ID] = e
	t.created[e.ID] = true
	return cloneEntry(e), nil
}

func (t *tx) ApplyDelta(ctx context.Context, accountID uuid.UUID, delta decimal.Decimal) (ledger.Account, error) {
	a, ok := t.accounts[accountID]
	if !ok {
		cur, err := t.s.GetAccount(ctx, accountID)
		if err != nil {
			return ledger.Account{}, err
		}
		a = cur
		t.base[accountID] = cur.Balance
	}
	bal, err := a.Balance.Add(delta)
	if err != nil {
		return ledger.Account{}, fmt.Errorf("%w: balance of %s: %v", errs.ErrInvalid, a.Code, err)
	}
	a.Balance = bal
	t.accounts[accountID] = a
	return cloneAccount(a), nil
}

func (t *tx) AppendLedgerRows(_ context.Context, rows []ledger.GeneralLedgerEntry) error {
	t.rows = append(t.rows, rows...)
	return nil
}

func (t *tx) MarkPosted(ctx context.Context, id uuid.UUID, by string, at time.Time) error {
	e, err := t.EntryByID(ctx, id)
	if err != nil {
		return err
	}
	if e.Status != ledger.EntryStatusDraft {
		return fmt.Errorf("%w: entry %s is %s", errs.ErrInvalidState, id, e.Status)
	}
	e.Status = ledger.EntryStatusPosted
	e.PostedBy = by
	e.PostedAt = &at
	t.entries[id] = e
	return nil
}

// commit checks every staged write against the current state, then applies
// them all. A check failure leaves the store untouched.
func (s *Store) commit(t *tx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, base := range t.base {
		cur, ok := s.accounts[id]
		if !ok {
			return fmt.Errorf("account %s: %w", id, errs.ErrNotFound)
		}
		if cur.Balance.Cmp(base) != 0 {
			return fmt.Errorf("%w: account %s balance moved during the transaction", errs.ErrConflict, cur.Code)
		}
	}
	for id, e := range t.entries {
		cur, exists := s.entries[id]
		if t.created[id] {
			if exists {
				return fmt.Errorf("%w: entry %s exists", errs.ErrConflict, id)
			}
			if e.ReversalOf != nil {
				if _, taken := s.reversals[*e.ReversalOf]; taken {
					return fmt.Errorf("%w: entry %s was already reversed", errs.ErrConflict, *e.ReversalOf)
				}
			}
			continue
		}
		if !exists {
			return fmt.Errorf("entry %s: %w", id, errs.ErrNotFound)
		}
		if cur.Status != ledger.EntryStatusDraft {
			return fmt.Errorf("%w: entry %s is %s", errs.ErrInvalidState, id, cur.Status)
		}
	}
	for _, r := range t.rows {
		if _, ok := s.accounts[r.AccountID]; !ok {
			return fmt.Errorf("ledger row account %s: %w", r.AccountID, errs.ErrNotFound)
		}
	}

	for id, e := range t.entries {
		if t.created[id] {
			s.insertEntryIndexLocked(entryKey{Date: e.Date, ID: e.ID})
			if e.ReversalOf != nil {
				s.reversals[*e.ReversalOf] = e.ID
			}
		}
		s.entries[id] = e
	}
	for id, a := range t.accounts {
		cur := s.accounts[id]
		cur.Balance = a.Balance
		s.accounts[id] = cur
	}
	for _, r := range t.rows {
		s.seq++
		r.Seq = s.seq
		s.byAccount[r.AccountID] = append(s.byAccount[r.AccountID], len(s.rows))
		s.rows = append(s.rows, r)
	}
	return nil
}

// LedgerRows returns matching general ledger rows in posting order.
func (s *Store) LedgerRows(_ context.Context, f report.RowFilter) ([]ledger.GeneralLedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	match := func(r ledger.GeneralLedgerEntry) bool {
		if f.MaxSeq > 0 && r.Seq > f.MaxSeq {
			return false
		}
		if f.From != nil && r.Date.Before(ledger.Day(*f.From)) {
			return false
		}
		if f.To != nil && r.Date.After(ledger.Day(*f.To)) {
			return false
		}
		return true
	}
	var out []ledger.GeneralLedgerEntry
	if f.AccountID != nil {
		for _, i := range s.byAccount[*f.AccountID] {
			if match(s.rows[i]) {
				out = append(out, s.rows[i])
			}
		}
		return out, nil
	}
	for _, r := range s.rows {
		if match(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

// LedgerVersion returns the sequence number of the newest ledger row.
func (s *Store) LedgerVersion(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seq, nil
}

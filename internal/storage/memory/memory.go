// Package memory provides an in-memory store used for development and tests.
// It keeps code paths easy to follow while allowing the Postgres store to be
// swapped in without touching the services.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tinoosan/ledger-engine/internal/errs"
	"github.com/tinoosan/ledger-engine/internal/ledger"
	"github.com/tinoosan/ledger-engine/internal/service/journal"
)

// entryKey tracks ordering for entries: sorted asc by (Date, ID).
type entryKey struct {
	Date time.Time
	ID   uuid.UUID
}

func (k entryKey) less(o entryKey) bool {
	if !k.Date.Equal(o.Date) {
		return k.Date.Before(o.Date)
	}
	return bytes.Compare(k.ID[:], o.ID[:]) < 0
}

// Store is an in-memory implementation of every repository the services use.
// It is guarded by an RWMutex for concurrent reads/writes.
type Store struct {
	mu       sync.RWMutex
	accounts map[uuid.UUID]ledger.Account
	codes    map[string]uuid.UUID
	entries  map[uuid.UUID]ledger.JournalEntry
	// entryKeys is a sorted index of entries for ordered scans.
	entryKeys []entryKey
	// reversals maps an original entry to the entry that reversed it.
	reversals map[uuid.UUID]uuid.UUID
	rows      []ledger.GeneralLedgerEntry
	byAccount map[uuid.UUID][]int
	seq       int64
}

// New constructs an empty in-memory store.
func New() *Store {
	return &Store{
		accounts:  make(map[uuid.UUID]ledger.Account),
		codes:     make(map[string]uuid.UUID),
		entries:   make(map[uuid.UUID]ledger.JournalEntry),
		reversals: make(map[uuid.UUID]uuid.UUID),
		byAccount: make(map[uuid.UUID][]int),
	}
}

// Ready always succeeds; it lets the store back /readyz like the Postgres one.
func (s *Store) Ready(context.Context) error { return nil }

// ListAccounts returns every account in no particular order.
func (s *Store) ListAccounts(_ context.Context) ([]ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ledger.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, cloneAccount(a))
	}
	return out, nil
}

// GetAccount returns an account by ID.
func (s *Store) GetAccount(_ context.Context, id uuid.UUID) (ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[id]
	if !ok {
		return ledger.Account{}, errs.ErrNotFound
	}
	return cloneAccount(a), nil
}

// AccountByCode returns an account by its unique code.
func (s *Store) AccountByCode(_ context.Context, code string) (ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.codes[code]
	if !ok {
		return ledger.Account{}, errs.ErrNotFound
	}
	return cloneAccount(s.accounts[id]), nil
}

// AccountsByIDs returns the subset of ids that exist. Missing ids are simply absent.
func (s *Store) AccountsByIDs(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[uuid.UUID]ledger.Account, len(ids))
	for _, id := range ids {
		if a, ok := s.accounts[id]; ok {
			out[id] = cloneAccount(a)
		}
	}
	return out, nil
}

// HasChildren reports whether any account names id as its parent.
func (s *Store) HasChildren(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasChildrenLocked(id), nil
}

func (s *Store) hasChildrenLocked(id uuid.UUID) bool {
	for _, a := range s.accounts {
		if a.ParentID != nil && *a.ParentID == id {
			return true
		}
	}
	return false
}

// HasLedgerRows reports whether anything was ever posted to the account.
func (s *Store) HasLedgerRows(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byAccount[id]) > 0, nil
}

// CreateAccount persists a new account. Codes are unique and a parent must exist.
func (s *Store) CreateAccount(_ context.Context, a ledger.Account) (ledger.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[a.ID]; ok {
		return ledger.Account{}, fmt.Errorf("%w: account %s exists", errs.ErrConflict, a.ID)
	}
	if _, ok := s.codes[a.Code]; ok {
		return ledger.Account{}, fmt.Errorf("%w: account code %s already exists", errs.ErrConflict, a.Code)
	}
	if a.ParentID != nil {
		if _, ok := s.accounts[*a.ParentID]; !ok {
			return ledger.Account{}, fmt.Errorf("parent account: %w", errs.ErrNotFound)
		}
	}
	a = cloneAccount(a)
	s.accounts[a.ID] = a
	s.codes[a.Code] = a.ID
	return cloneAccount(a), nil
}

// UpdateAccount persists changes to an account. The stored balance is kept as is.
func (s *Store) UpdateAccount(_ context.Context, a ledger.Account) (ledger.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.accounts[a.ID]
	if !ok {
		return ledger.Account{}, errs.ErrNotFound
	}
	if a.Code != cur.Code {
		if _, taken := s.codes[a.Code]; taken {
			return ledger.Account{}, fmt.Errorf("%w: account code %s already exists", errs.ErrConflict, a.Code)
		}
		delete(s.codes, cur.Code)
		s.codes[a.Code] = a.ID
	}
	a = cloneAccount(a)
	a.Balance = cur.Balance
	s.accounts[a.ID] = a
	return cloneAccount(a), nil
}

// DeleteAccount removes an account that has no children and no ledger rows.
func (s *Store) DeleteAccount(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return errs.ErrNotFound
	}
	if s.hasChildrenLocked(id) || len(s.byAccount[id]) > 0 {
		return fmt.Errorf("%w: account %s is referenced", errs.ErrConflict, a.Code)
	}
	delete(s.accounts, id)
	delete(s.codes, a.Code)
	return nil
}

// EntryByID returns a single entry with its lines.
func (s *Store) EntryByID(_ context.Context, id uuid.UUID) (ledger.JournalEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return ledger.JournalEntry{}, errs.ErrNotFound
	}
	return cloneEntry(e), nil
}

// ListEntries returns matching entries ordered by (Date, ID).
func (s *Store) ListEntries(_ context.Context, f journal.Filter) ([]ledger.JournalEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ledger.JournalEntry, 0, len(s.entryKeys))
	for _, k := range s.entryKeys {
		if e, ok := s.entries[k.ID]; ok && f.Match(e) {
			out = append(out, cloneEntry(e))
		}
	}
	return out, nil
}

// CreateEntry stores a new draft.
func (s *Store) CreateEntry(_ context.Context, e ledger.JournalEntry) (ledger.JournalEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[e.ID]; ok {
		return ledger.JournalEntry{}, fmt.Errorf("%w: entry %s exists", errs.ErrConflict, e.ID)
	}
	e = cloneEntry(e)
	s.entries[e.ID] = e
	s.insertEntryIndexLocked(entryKey{Date: e.Date, ID: e.ID})
	return cloneEntry(e), nil
}

// UpdateEntry replaces a draft entry and its lines.
func (s *Store) UpdateEntry(_ context.Context, e ledger.JournalEntry) (ledger.JournalEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.entries[e.ID]
	if !ok {
		return ledger.JournalEntry{}, errs.ErrNotFound
	}
	if cur.Status != ledger.EntryStatusDraft {
		return ledger.JournalEntry{}, fmt.Errorf("%w: entry %s is %s", errs.ErrInvalidState, e.ID, cur.Status)
	}
	e = cloneEntry(e)
	e.Status = ledger.EntryStatusDraft
	s.entries[e.ID] = e
	if !cur.Date.Equal(e.Date) {
		s.removeEntryIndexLocked(entryKey{Date: cur.Date, ID: cur.ID})
		s.insertEntryIndexLocked(entryKey{Date: e.Date, ID: e.ID})
	}
	return cloneEntry(e), nil
}

// DeleteEntry removes a draft entry.
func (s *Store) DeleteEntry(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.entries[id]
	if !ok {
		return errs.ErrNotFound
	}
	if cur.Status != ledger.EntryStatusDraft {
		return fmt.Errorf("%w: entry %s is %s", errs.ErrInvalidState, id, cur.Status)
	}
	delete(s.entries, id)
	s.removeEntryIndexLocked(entryKey{Date: cur.Date, ID: cur.ID})
	return nil
}

// insertEntryIndexLocked inserts k into the sorted index, keeping order asc by (Date, ID).
// Caller must hold s.mu (write lock).
func (s *Store) insertEntryIndexLocked(k entryKey) {
	i := sort.Search(len(s.entryKeys), func(i int) bool { return k.less(s.entryKeys[i]) })
	s.entryKeys = append(s.entryKeys, entryKey{})
	copy(s.entryKeys[i+1:], s.entryKeys[i:])
	s.entryKeys[i] = k
}

// removeEntryIndexLocked drops k from the sorted index. Caller must hold s.mu.
func (s *Store) removeEntryIndexLocked(k entryKey) {
	i := sort.Search(len(s.entryKeys), func(i int) bool { return !s.entryKeys[i].less(k) })
	if i < len(s.entryKeys) && s.entryKeys[i].ID == k.ID {
		s.entryKeys = append(s.entryKeys[:i], s.entryKeys[i+1:]...)
	}
}

func cloneAccount(a ledger.Account) ledger.Account {
	if a.ParentID != nil {
		p := *a.ParentID
		a.ParentID = &p
	}
	return a
}

func cloneEntry(e ledger.JournalEntry) ledger.JournalEntry {
	e.Lines = append([]ledger.JournalLine(nil), e.Lines...)
	if e.ReversalOf != nil {
		r := *e.ReversalOf
		e.ReversalOf = &r
	}
	if e.PostedAt != nil {
		t := *e.PostedAt
		e.PostedAt = &t
	}
	return e
}

// Package posting is the only writer of account balances and general ledger rows.
//
// Post applies a draft journal entry atomically: every line moves its account's
// balance and appends one ledger row carrying the running balance, and the entry
// flips to posted, all inside a single store transaction. Reverse never edits a
// posted entry; it posts a new entry with every side swapped.
package posting

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/decimal"

	"github.com/tinoosan/ledger-engine/internal/errs"
	"github.com/tinoosan/ledger-engine/internal/keylock"
	"github.com/tinoosan/ledger-engine/internal/ledger"
	"github.com/tinoosan/ledger-engine/internal/service/journal"
)

// Tx is the transactional view a posting runs against. Either every write made
// through it commits or none does.
type Tx interface {
	EntryByID(ctx context.Context, id uuid.UUID) (ledger.JournalEntry, error)
	AccountsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]ledger.Account, error)
	// ReversalOf finds the entry that reverses id, if any.
	ReversalOf(ctx context.Context, id uuid.UUID) (ledger.JournalEntry, bool, error)
	CreateEntry(ctx context.Context, e ledger.JournalEntry) (ledger.JournalEntry, error)
	// ApplyDelta adds delta, expressed on the account's normal side, to the
	// stored balance and returns the updated account.
	ApplyDelta(ctx context.Context, accountID uuid.UUID, delta decimal.Decimal) (ledger.Account, error)
	AppendLedgerRows(ctx context.Context, rows []ledger.GeneralLedgerEntry) error
	MarkPosted(ctx context.Context, id uuid.UUID, by string, at time.Time) error
}

// Store runs transactions and serves the unlocked read used to plan a posting.
type Store interface {
	EntryByID(ctx context.Context, id uuid.UUID) (ledger.JournalEntry, error)
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Option customizes a Poster.
type Option func(*Poster)

// WithNow overrides the clock for testing.
func WithNow(now func() time.Time) Option {
	return func(p *Poster) {
		if now != nil {
			p.now = now
		}
	}
}

// WithLogger sets the logger used for posting events.
func WithLogger(l *slog.Logger) Option {
	return func(p *Poster) {
		if l != nil {
			p.log = l
		}
	}
}

// Poster posts and reverses journal entries.
type Poster struct {
	store Store
	locks *keylock.Locker
	now   func() time.Time
	log   *slog.Logger
}

// New constructs a Poster. locks must be the Locker shared with the account
// and journal services.
func New(store Store, locks *keylock.Locker, opts ...Option) *Poster {
	if locks == nil {
		locks = keylock.New()
	}
	p := &Poster{store: store, locks: locks, now: time.Now, log: slog.Default()}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Post validates a draft entry and commits it to the ledger.
// Posting an entry that is not a draft fails with errs.ErrInvalidState, and an
// entry that fails validation fails with a *journal.UnbalancedError.
func (p *Poster) Post(ctx context.Context, entryID uuid.UUID, actor string) (ledger.JournalEntry, error) {
	if entryID == uuid.Nil {
		return ledger.JournalEntry{}, errs.ErrInvalid
	}
	plan, err := p.store.EntryByID(ctx, entryID)
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	if plan.Status != ledger.EntryStatusDraft {
		return ledger.JournalEntry{}, fmt.Errorf("%w: entry %s is already %s", errs.ErrInvalidState, entryID, plan.Status)
	}

	unlock := p.locks.Lock(append([]uuid.UUID{entryID}, plan.AccountIDs()...)...)
	defer unlock()

	var posted ledger.JournalEntry
	err = p.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		e, err := tx.EntryByID(ctx, entryID)
		if err != nil {
			return err
		}
		if e.Status != ledger.EntryStatusDraft {
			return fmt.Errorf("%w: entry %s is already %s", errs.ErrInvalidState, entryID, e.Status)
		}
		if !sameAccounts(plan, e) {
			return fmt.Errorf("%w: entry %s changed while posting; retry", errs.ErrConflict, entryID)
		}
		posted, err = p.apply(ctx, tx, e, actor)
		return err
	})
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	p.log.Info("entry posted", "entry_id", posted.ID.String(), "lines", len(posted.Lines), "actor", actor)
	return posted, nil
}

// Reverse posts a new entry that offsets a posted one line by line. The
// original entry and its ledger rows are left untouched. A zero date uses today.
func (p *Poster) Reverse(ctx context.Context, entryID uuid.UUID, actor string, date time.Time) (ledger.JournalEntry, error) {
	if entryID == uuid.Nil {
		return ledger.JournalEntry{}, errs.ErrInvalid
	}
	orig, err := p.store.EntryByID(ctx, entryID)
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	if orig.Status != ledger.EntryStatusPosted {
		return ledger.JournalEntry{}, fmt.Errorf("%w: only posted entries can be reversed; %s is %s", errs.ErrInvalidState, entryID, orig.Status)
	}
	if date.IsZero() {
		date = p.now()
	}

	unlock := p.locks.Lock(append([]uuid.UUID{entryID}, orig.AccountIDs()...)...)
	defer unlock()

	var posted ledger.JournalEntry
	err = p.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		if prev, found, err := tx.ReversalOf(ctx, entryID); err != nil {
			return err
		} else if found {
			return fmt.Errorf("%w: entry %s was already reversed by %s", errs.ErrConflict, entryID, prev.ID)
		}
		rev, err := tx.CreateEntry(ctx, reversalOf(orig, actor, ledger.Day(date), p.now().UTC()))
		if err != nil {
			return err
		}
		posted, err = p.apply(ctx, tx, rev, actor)
		return err
	})
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	p.log.Info("entry reversed", "entry_id", entryID.String(), "reversal_id", posted.ID.String(), "actor", actor)
	return posted, nil
}

// apply validates e and writes its effects through tx. Nothing is written
// unless validation passes; a failure after that aborts the whole transaction.
func (p *Poster) apply(ctx context.Context, tx Tx, e ledger.JournalEntry, actor string) (ledger.JournalEntry, error) {
	accs, err := tx.AccountsByIDs(ctx, e.AccountIDs())
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	res, err := journal.Validate(e, accs)
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	if !res.Balanced {
		return ledger.JournalEntry{}, &journal.UnbalancedError{Result: res}
	}

	now := p.now().UTC()
	rows := make([]ledger.GeneralLedgerEntry, 0, len(e.Lines))
	for i, ln := range e.Lines {
		net, err := ln.Net()
		if err != nil {
			return ledger.JournalEntry{}, fmt.Errorf("%w: line[%d]: %v", errs.ErrInvalid, i, err)
		}
		updated, err := tx.ApplyDelta(ctx, ln.AccountID, accs[ln.AccountID].Type.Normalize(net))
		if err != nil {
			return ledger.JournalEntry{}, fmt.Errorf("apply line[%d] to account %s: %w", i, ln.AccountID, err)
		}
		rows = append(rows, ledger.GeneralLedgerEntry{
			ID:             uuid.New(),
			JournalEntryID: e.ID,
			AccountID:      ln.AccountID,
			Date:           e.Date,
			Debit:          ln.Debit,
			Credit:         ln.Credit,
			RunningBalance: updated.Balance,
			PostedAt:       now,
		})
	}
	if err := tx.AppendLedgerRows(ctx, rows); err != nil {
		return ledger.JournalEntry{}, fmt.Errorf("append ledger rows: %w", err)
	}
	if err := tx.MarkPosted(ctx, e.ID, actor, now); err != nil {
		return ledger.JournalEntry{}, fmt.Errorf("mark posted: %w", err)
	}
	e.Status = ledger.EntryStatusPosted
	e.PostedBy = actor
	e.PostedAt = &now
	return e, nil
}

func reversalOf(orig ledger.JournalEntry, actor string, date, now time.Time) ledger.JournalEntry {
	id := uuid.New()
	origID := orig.ID
	lines := make([]ledger.JournalLine, 0, len(orig.Lines))
	for _, ln := range orig.Lines {
		lines = append(lines, ledger.JournalLine{
			ID:          uuid.New(),
			EntryID:     id,
			AccountID:   ln.AccountID,
			Description: ln.Description,
			Debit:       ln.Credit,
			Credit:      ln.Debit,
		})
	}
	desc := "reversal of " + orig.ID.String()
	if orig.Description != "" {
		desc += ": " + orig.Description
	}
	return ledger.JournalEntry{
		ID:          id,
		Date:        date,
		Reference:   orig.Reference,
		Description: desc,
		Status:      ledger.EntryStatusDraft,
		ReversalOf:  &origID,
		CreatedBy:   actor,
		CreatedAt:   now,
		Lines:       lines,
	}
}

// sameAccounts reports whether b touches no account outside of a's set, which is what was locked.
func sameAccounts(a, b ledger.JournalEntry) bool {
	locked := make(map[uuid.UUID]struct{}, len(a.Lines))
	for _, id := range a.AccountIDs() {
		locked[id] = struct{}{}
	}
	for _, id := range b.AccountIDs() {
		if _, ok := locked[id]; !ok {
			return false
		}
	}
	return true
}

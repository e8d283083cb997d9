// Package journal manages the draft lifecycle of journal entries and the pure
// validation rules an entry must satisfy before it can be posted.
package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/decimal"

	"github.com/tinoosan/ledger-engine/internal/errs"
	"github.com/tinoosan/ledger-engine/internal/keylock"
	"github.com/tinoosan/ledger-engine/internal/ledger"
)

// Filter narrows ListEntries. Zero values mean "any".
type Filter struct {
	Status ledger.EntryStatus
	From   *time.Time
	To     *time.Time
}

// Match reports whether e passes the filter.
func (f Filter) Match(e ledger.JournalEntry) bool {
	if f.Status != "" && e.Status != f.Status {
		return false
	}
	if f.From != nil && e.Date.Before(ledger.Day(*f.From)) {
		return false
	}
	if f.To != nil && e.Date.After(ledger.Day(*f.To)) {
		return false
	}
	return true
}

// Repo defines read operations needed by the service.
type Repo interface {
	EntryByID(ctx context.Context, id uuid.UUID) (ledger.JournalEntry, error)
	ListEntries(ctx context.Context, f Filter) ([]ledger.JournalEntry, error)
	AccountsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]ledger.Account, error)
}

// Writer defines write operations needed by the service. Stores only update or
// delete entries that are still drafts and return errs.ErrInvalidState otherwise.
type Writer interface {
	CreateEntry(ctx context.Context, e ledger.JournalEntry) (ledger.JournalEntry, error)
	UpdateEntry(ctx context.Context, e ledger.JournalEntry) (ledger.JournalEntry, error)
	DeleteEntry(ctx context.Context, id uuid.UUID) error
}

// LineInput is a proposed journal line.
type LineInput struct {
	AccountID   uuid.UUID
	Description string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
}

// EntryInput carries the caller-editable fields of a draft.
type EntryInput struct {
	Date        time.Time
	Reference   string
	Description string
	// CreatedBy is the opaque actor id supplied by the identity collaborator.
	CreatedBy string
	Lines     []LineInput
}

// Service exposes the draft lifecycle and validation previews.
type Service interface {
	Create(ctx context.Context, in EntryInput) (ledger.JournalEntry, error)
	Get(ctx context.Context, id uuid.UUID) (ledger.JournalEntry, error)
	List(ctx context.Context, f Filter) ([]ledger.JournalEntry, error)
	UpdateDraft(ctx context.Context, id uuid.UUID, in EntryInput) (ledger.JournalEntry, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Preview(ctx context.Context, in EntryInput) (Result, error)
	Check(ctx context.Context, id uuid.UUID) (Result, error)
}

// Option customizes the service.
type Option func(*service)

// WithNow overrides the clock for testing.
func WithNow(now func() time.Time) Option {
	return func(s *service) {
		if now != nil {
			s.now = now
		}
	}
}

type service struct {
	repo   Repo
	writer Writer
	locks  *keylock.Locker
	now    func() time.Time
}

// New builds the service. locks must be shared with the poster so draft edits
// and postings of the same entry never interleave.
func New(repo Repo, writer Writer, locks *keylock.Locker, opts ...Option) Service {
	if locks == nil {
		locks = keylock.New()
	}
	s := &service{repo: repo, writer: writer, locks: locks, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *service) Create(ctx context.Context, in EntryInput) (ledger.JournalEntry, error) {
	if in.Date.IsZero() {
		return ledger.JournalEntry{}, fmt.Errorf("%w: date is required", errs.ErrInvalid)
	}
	id := uuid.New()
	e := ledger.JournalEntry{
		ID:          id,
		Date:        ledger.Day(in.Date),
		Reference:   in.Reference,
		Description: in.Description,
		Status:      ledger.EntryStatusDraft,
		CreatedBy:   in.CreatedBy,
		CreatedAt:   s.now().UTC(),
		Lines:       buildLines(id, in.Lines),
	}
	return s.writer.CreateEntry(ctx, e)
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (ledger.JournalEntry, error) {
	if id == uuid.Nil {
		return ledger.JournalEntry{}, errs.ErrInvalid
	}
	return s.repo.EntryByID(ctx, id)
}

func (s *service) List(ctx context.Context, f Filter) ([]ledger.JournalEntry, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", errs.ErrInvalid, f.Status)
	}
	return s.repo.ListEntries(ctx, f)
}

// UpdateDraft replaces the editable fields and all lines of a draft entry.
func (s *service) UpdateDraft(ctx context.Context, id uuid.UUID, in EntryInput) (ledger.JournalEntry, error) {
	if id == uuid.Nil {
		return ledger.JournalEntry{}, errs.ErrInvalid
	}
	if in.Date.IsZero() {
		return ledger.JournalEntry{}, fmt.Errorf("%w: date is required", errs.ErrInvalid)
	}
	unlock := s.locks.Lock(id)
	defer unlock()

	cur, err := s.repo.EntryByID(ctx, id)
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	if cur.Status != ledger.EntryStatusDraft {
		return ledger.JournalEntry{}, fmt.Errorf("%w: entry %s is %s", errs.ErrInvalidState, id, cur.Status)
	}
	cur.Date = ledger.Day(in.Date)
	cur.Reference = in.Reference
	cur.Description = in.Description
	cur.Lines = buildLines(id, in.Lines)
	return s.writer.UpdateEntry(ctx, cur)
}

// Delete removes a draft. Posted entries are permanent.
func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return errs.ErrInvalid
	}
	unlock := s.locks.Lock(id)
	defer unlock()

	cur, err := s.repo.EntryByID(ctx, id)
	if err != nil {
		return err
	}
	if cur.Status != ledger.EntryStatusDraft {
		return fmt.Errorf("%w: entry %s is %s", errs.ErrInvalidState, id, cur.Status)
	}
	return s.writer.DeleteEntry(ctx, id)
}

// Preview validates a proposed entry against the current chart without storing it.
func (s *service) Preview(ctx context.Context, in EntryInput) (Result, error) {
	e := ledger.JournalEntry{Date: in.Date, Lines: buildLines(uuid.Nil, in.Lines)}
	return s.validate(ctx, e)
}

// Check validates a stored entry as posting would.
func (s *service) Check(ctx context.Context, id uuid.UUID) (Result, error) {
	e, err := s.Get(ctx, id)
	if err != nil {
		return Result{}, err
	}
	return s.validate(ctx, e)
}

func (s *service) validate(ctx context.Context, e ledger.JournalEntry) (Result, error) {
	accs, err := s.repo.AccountsByIDs(ctx, e.AccountIDs())
	if err != nil {
		return Result{}, err
	}
	return Validate(e, accs)
}

func buildLines(entryID uuid.UUID, in []LineInput) []ledger.JournalLine {
	lines := make([]ledger.JournalLine, 0, len(in))
	for _, ln := range in {
		lines = append(lines, ledger.JournalLine{
			ID:          uuid.New(),
			EntryID:     entryID,
			AccountID:   ln.AccountID,
			Description: ln.Description,
			Debit:       ln.Debit,
			Credit:      ln.Credit,
		})
	}
	return lines
}

// Package account implements the chart of accounts: unique codes, a two-level
// header/sub-account hierarchy whose children share the header's type,
// immutable types once an account has history, and soft deletes.
// Balances are read here but only ever written by the posting package.
package account

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/decimal"
	"golang.org/x/text/cases"

	"github.com/tinoosan/ledger-engine/internal/code"
	"github.com/tinoosan/ledger-engine/internal/errs"
	"github.com/tinoosan/ledger-engine/internal/keylock"
	"github.com/tinoosan/ledger-engine/internal/ledger"
)

// Repo defines read operations needed by the service.
type Repo interface {
	ListAccounts(ctx context.Context) ([]ledger.Account, error)
	GetAccount(ctx context.Context, id uuid.UUID) (ledger.Account, error)
	AccountByCode(ctx context.Context, code string) (ledger.Account, error)
	HasChildren(ctx context.Context, id uuid.UUID) (bool, error)
	HasLedgerRows(ctx context.Context, id uuid.UUID) (bool, error)
}

// Writer defines write operations needed by the service. UpdateAccount never
// touches the stored balance; CreateAccount returns errs.ErrConflict on a duplicate code.
type Writer interface {
	CreateAccount(ctx context.Context, a ledger.Account) (ledger.Account, error)
	UpdateAccount(ctx context.Context, a ledger.Account) (ledger.Account, error)
	DeleteAccount(ctx context.Context, id uuid.UUID) error
}

// CreateInput carries the fields of a new account.
type CreateInput struct {
	Code        string
	Name        string
	Description string
	Type        ledger.AccountType
	Category    string
	ParentID    *uuid.UUID
	// Inactive creates the account already deactivated.
	Inactive bool
}

// Patch lists optional changes; nil fields are left untouched.
type Patch struct {
	Name        *string
	Description *string
	Category    *string
	Type        *ledger.AccountType
	Active      *bool
}

// Filter narrows List. Conditions are ANDed; zero values mean "any".
type Filter struct {
	Type     ledger.AccountType
	Category string
	Active   *bool
	// Search is a case-insensitive substring match on code, name or description.
	Search string
}

// Node is an account with its sub-accounts and the balance rolled up from them.
type Node struct {
	Account  ledger.Account
	Rollup   decimal.Decimal
	Children []Node
}

type Service interface {
	Create(ctx context.Context, in CreateInput) (ledger.Account, error)
	Get(ctx context.Context, id uuid.UUID) (ledger.Account, error)
	GetByCode(ctx context.Context, code string) (ledger.Account, error)
	List(ctx context.Context, f Filter) ([]ledger.Account, error)
	Update(ctx context.Context, id uuid.UUID, p Patch) (ledger.Account, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Deactivate(ctx context.Context, id uuid.UUID) error
	Tree(ctx context.Context) ([]Node, error)
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

// New builds the service. locks must be shared with the poster so account
// mutations never interleave with a posting that touches the same account.
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

// ValidateCreate checks the stateless rules of a new account.
func ValidateCreate(in CreateInput) error {
	if !code.Valid(code.Normalize(in.Code)) {
		return fmt.Errorf("%w: code %q must be numeric-like, e.g. 1000 or 1100.10", errs.ErrInvalid, in.Code)
	}
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: name is required", errs.ErrInvalid)
	}
	if !in.Type.Valid() {
		return fmt.Errorf("%w: invalid account type %q", errs.ErrInvalid, in.Type)
	}
	return nil
}

func (s *service) Create(ctx context.Context, in CreateInput) (ledger.Account, error) {
	if err := ValidateCreate(in); err != nil {
		return ledger.Account{}, err
	}
	c := code.Normalize(in.Code)
	if _, err := s.repo.AccountByCode(ctx, c); err == nil {
		return ledger.Account{}, fmt.Errorf("%w: account code %s already exists", errs.ErrConflict, c)
	} else if !isNotFound(err) {
		return ledger.Account{}, err
	}

	level := 0
	if in.ParentID != nil {
		unlock := s.locks.Lock(*in.ParentID)
		defer unlock()
		parent, err := s.repo.GetAccount(ctx, *in.ParentID)
		if err != nil {
			return ledger.Account{}, fmt.Errorf("parent account: %w", err)
		}
		if parent.Type != in.Type {
			return ledger.Account{}, fmt.Errorf("%w: sub-account type %s must match parent type %s", errs.ErrInvalidOperation, in.Type, parent.Type)
		}
		level = parent.Level + 1
	}

	now := s.now().UTC()
	a := ledger.Account{
		ID:          uuid.New(),
		Code:        c,
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Type:        in.Type,
		Category:    strings.TrimSpace(in.Category),
		ParentID:    in.ParentID,
		Level:       level,
		Balance:     decimal.Zero,
		Active:      !in.Inactive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return s.writer.CreateAccount(ctx, a)
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (ledger.Account, error) {
	if id == uuid.Nil {
		return ledger.Account{}, errs.ErrInvalid
	}
	return s.repo.GetAccount(ctx, id)
}

func (s *service) GetByCode(ctx context.Context, c string) (ledger.Account, error) {
	return s.repo.AccountByCode(ctx, code.Normalize(c))
}

func (s *service) List(ctx context.Context, f Filter) ([]ledger.Account, error) {
	if f.Type != "" && !f.Type.Valid() {
		return nil, fmt.Errorf("%w: invalid account type %q", errs.ErrInvalid, f.Type)
	}
	all, err := s.repo.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	// a Caser is stateful, so each call folds with its own
	fold := cases.Fold()
	needle := fold.String(strings.TrimSpace(f.Search))
	out := make([]ledger.Account, 0, len(all))
	for _, a := range all {
		if f.Type != "" && a.Type != f.Type {
			continue
		}
		if f.Category != "" && !strings.EqualFold(a.Category, strings.TrimSpace(f.Category)) {
			continue
		}
		if f.Active != nil && a.Active != *f.Active {
			continue
		}
		if needle != "" && !matches(fold, a, needle) {
			continue
		}
		out = append(out, a)
	}
	SortByCode(out)
	return out, nil
}

func matches(fold cases.Caser, a ledger.Account, needle string) bool {
	for _, field := range []string{a.Code, a.Name, a.Description} {
		if strings.Contains(fold.String(field), needle) {
			return true
		}
	}
	return false
}

// Update applies a patch. Changing the type is rejected once the account has
// posted history or belongs to a hierarchy, since children must share the header's type.
func (s *service) Update(ctx context.Context, id uuid.UUID, p Patch) (ledger.Account, error) {
	if id == uuid.Nil {
		return ledger.Account{}, errs.ErrInvalid
	}
	unlock := s.locks.Lock(id)
	defer unlock()

	cur, err := s.repo.GetAccount(ctx, id)
	if err != nil {
		return ledger.Account{}, err
	}
	if p.Name != nil {
		if strings.TrimSpace(*p.Name) == "" {
			return ledger.Account{}, fmt.Errorf("%w: name is required", errs.ErrInvalid)
		}
		cur.Name = strings.TrimSpace(*p.Name)
	}
	if p.Description != nil {
		cur.Description = *p.Description
	}
	if p.Category != nil {
		cur.Category = strings.TrimSpace(*p.Category)
	}
	if p.Active != nil {
		cur.Active = *p.Active
	}
	if p.Type != nil && *p.Type != cur.Type {
		if !p.Type.Valid() {
			return ledger.Account{}, fmt.Errorf("%w: invalid account type %q", errs.ErrInvalid, *p.Type)
		}
		hasRows, err := s.repo.HasLedgerRows(ctx, id)
		if err != nil {
			return ledger.Account{}, err
		}
		if hasRows {
			return ledger.Account{}, fmt.Errorf("%w: account %s has posted history; its type is fixed", errs.ErrInvalidOperation, cur.Code)
		}
		if cur.ParentID != nil {
			return ledger.Account{}, fmt.Errorf("%w: sub-account %s must keep its parent's type", errs.ErrInvalidOperation, cur.Code)
		}
		hasChildren, err := s.repo.HasChildren(ctx, id)
		if err != nil {
			return ledger.Account{}, err
		}
		if hasChildren {
			return ledger.Account{}, fmt.Errorf("%w: header %s has sub-accounts sharing its type", errs.ErrInvalidOperation, cur.Code)
		}
		cur.Type = *p.Type
	}
	cur.UpdatedAt = s.now().UTC()
	return s.writer.UpdateAccount(ctx, cur)
}

// Delete removes an account without children or ledger history. Accounts with
// history should be deactivated instead.
func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return errs.ErrInvalid
	}
	unlock := s.locks.Lock(id)
	defer unlock()

	cur, err := s.repo.GetAccount(ctx, id)
	if err != nil {
		return err
	}
	hasChildren, err := s.repo.HasChildren(ctx, id)
	if err != nil {
		return err
	}
	if hasChildren {
		return fmt.Errorf("%w: account %s has sub-accounts", errs.ErrConflict, cur.Code)
	}
	hasRows, err := s.repo.HasLedgerRows(ctx, id)
	if err != nil {
		return err
	}
	if hasRows {
		return fmt.Errorf("%w: account %s has ledger history; deactivate it instead", errs.ErrConflict, cur.Code)
	}
	return s.writer.DeleteAccount(ctx, id)
}

// Deactivate sets Active=false (soft delete).
func (s *service) Deactivate(ctx context.Context, id uuid.UUID) error {
	f := false
	_, err := s.Update(ctx, id, Patch{Active: &f})
	return err
}

// Tree returns header accounts with their sub-accounts, ordered by code.
// Rollup is the account balance plus the rollups of its children.
func (s *service) Tree(ctx context.Context) ([]Node, error) {
	all, err := s.repo.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	SortByCode(all)
	children := make(map[uuid.UUID][]ledger.Account)
	var roots []ledger.Account
	for _, a := range all {
		if a.ParentID == nil {
			roots = append(roots, a)
			continue
		}
		children[*a.ParentID] = append(children[*a.ParentID], a)
	}
	var build func(a ledger.Account) (Node, error)
	build = func(a ledger.Account) (Node, error) {
		n := Node{Account: a, Rollup: a.Balance}
		for _, c := range children[a.ID] {
			cn, err := build(c)
			if err != nil {
				return Node{}, err
			}
			if n.Rollup, err = n.Rollup.Add(cn.Rollup); err != nil {
				return Node{}, fmt.Errorf("rollup %s: %w", a.Code, err)
			}
			n.Children = append(n.Children, cn)
		}
		return n, nil
	}
	out := make([]Node, 0, len(roots))
	for _, r := range roots {
		n, err := build(r)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

// SortByCode orders accounts by code using code.Less.
func SortByCode(accs []ledger.Account) {
	sort.SliceStable(accs, func(i, j int) bool { return code.Less(accs[i].Code, accs[j].Code) })
}

func isNotFound(err error) bool { return errors.Is(err, errs.ErrNotFound) }

// Package report derives read-only views from the chart of accounts and the
// general ledger: the trial balance, per-account statements and the balance audit.
package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/tinoosan/ledger-engine/internal/errs"
	"github.com/tinoosan/ledger-engine/internal/ledger"
	"github.com/tinoosan/ledger-engine/internal/service/account"
	"github.com/tinoosan/ledger-engine/internal/service/journal"
)

// RowFilter narrows LedgerRows. Zero values mean "any".
type RowFilter struct {
	AccountID *uuid.UUID
	From      *time.Time
	To        *time.Time
	// MaxSeq excludes rows appended after the given ledger version.
	MaxSeq int64
}

// Repo defines the reads the reporter needs. LedgerRows returns rows in
// ascending Seq order.
type Repo interface {
	ListAccounts(ctx context.Context) ([]ledger.Account, error)
	GetAccount(ctx context.Context, id uuid.UUID) (ledger.Account, error)
	LedgerRows(ctx context.Context, f RowFilter) ([]ledger.GeneralLedgerEntry, error)
	// LedgerVersion is the Seq of the newest ledger row, 0 when empty.
	LedgerVersion(ctx context.Context) (int64, error)
}

// Cache keeps replayed historical balances. Keys embed the ledger version, so
// entries never go stale; they only stop being asked for. Account details are
// never cached, they are read fresh for every report.
type Cache interface {
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	SetJSON(ctx context.Context, key string, v any) error
}

// snapshot is the ledger replayed up to one day at one ledger version.
type snapshot struct {
	Version  int64                         `json:"version"`
	Balances map[uuid.UUID]decimal.Decimal `json:"balances"`
}

// Row is one account line of the trial balance. Balance is on the account's
// normal side; a positive balance lands in the normal column and a negative one
// in the opposite column.
type Row struct {
	AccountID uuid.UUID          `json:"account_id"`
	Code      string             `json:"code"`
	Name      string             `json:"name"`
	Type      ledger.AccountType `json:"type"`
	Category  string             `json:"category,omitempty"`
	Active    bool               `json:"active"`
	Balance   decimal.Decimal    `json:"balance"`
	Debit     decimal.Decimal    `json:"debit"`
	Credit    decimal.Decimal    `json:"credit"`
}

// TrialBalance is a point-in-time listing of account balances.
type TrialBalance struct {
	// AsOf is nil for the live report.
	AsOf        *time.Time                             `json:"as_of,omitempty"`
	Version     int64                                  `json:"version"`
	GeneratedAt time.Time                              `json:"generated_at"`
	Rows        []Row                                  `json:"rows"`
	TotalDebit  decimal.Decimal                        `json:"total_debit"`
	TotalCredit decimal.Decimal                        `json:"total_credit"`
	ByType      map[ledger.AccountType]decimal.Decimal `json:"by_type"`
}

// Option customizes the service.
type Option func(*Service)

// WithCache enables caching of historical trial balances.
func WithCache(c Cache) Option {
	return func(s *Service) { s.cache = c }
}

// WithNow overrides the clock for testing.
func WithNow(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger used for cache failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// Service builds reports.
type Service struct {
	repo  Repo
	cache Cache
	now   func() time.Time
	log   *slog.Logger
	group singleflight.Group
}

// New constructs a reporting service.
func New(repo Repo, opts ...Option) *Service {
	s := &Service{repo: repo, now: time.Now, log: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// TrialBalance lists every active account, plus inactive accounts that still
// carry a balance, with debit and credit columns. A nil asOf reads the live
// balances; otherwise the ledger is replayed up to and including that day.
// Totals that disagree by more than journal.Epsilon yield an *errs.ImbalanceError.
func (s *Service) TrialBalance(ctx context.Context, asOf *time.Time) (TrialBalance, error) {
	if asOf == nil {
		return s.live(ctx)
	}
	day := ledger.Day(*asOf)
	version, err := s.repo.LedgerVersion(ctx)
	if err != nil {
		return TrialBalance{}, err
	}
	key := fmt.Sprintf("tb:%s:v%d", day.Format(time.DateOnly), version)

	ch := s.group.DoChan(key, func() (any, error) {
		// detached so one caller giving up does not fail the others sharing the call
		return s.replayed(context.WithoutCancel(ctx), key, day, version)
	})
	var snap snapshot
	select {
	case <-ctx.Done():
		return TrialBalance{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return TrialBalance{}, res.Err
		}
		snap = res.Val.(snapshot)
	}

	accs, err := s.repo.ListAccounts(ctx)
	if err != nil {
		return TrialBalance{}, err
	}
	// accounts opened after the day only show up if something was backdated into them
	opened := make([]ledger.Account, 0, len(accs))
	cutoff := day.AddDate(0, 0, 1)
	for _, a := range accs {
		if a.CreatedAt.Before(cutoff) || !snap.Balances[a.ID].IsZero() {
			opened = append(opened, a)
		}
	}
	return s.build(opened, snap.Balances, &day, version)
}

func (s *Service) live(ctx context.Context) (TrialBalance, error) {
	version, err := s.repo.LedgerVersion(ctx)
	if err != nil {
		return TrialBalance{}, err
	}
	accs, err := s.repo.ListAccounts(ctx)
	if err != nil {
		return TrialBalance{}, err
	}
	balances := make(map[uuid.UUID]decimal.Decimal, len(accs))
	for _, a := range accs {
		balances[a.ID] = a.Balance
	}
	return s.build(accs, balances, nil, version)
}

// replayed returns the balances as of day, from the cache when possible.
func (s *Service) replayed(ctx context.Context, key string, day time.Time, version int64) (snapshot, error) {
	if s.cache != nil {
		var snap snapshot
		ok, err := s.cache.GetJSON(ctx, key, &snap)
		if err != nil {
			s.log.Warn("trial balance cache read failed", "key", key, "err", err)
		} else if ok && snap.Version == version {
			return snap, nil
		}
	}

	accs, err := s.repo.ListAccounts(ctx)
	if err != nil {
		return snapshot{}, err
	}
	rows, err := s.repo.LedgerRows(ctx, RowFilter{To: &day, MaxSeq: version})
	if err != nil {
		return snapshot{}, err
	}
	balances, err := replay(accs, rows)
	if err != nil {
		return snapshot{}, err
	}
	snap := snapshot{Version: version, Balances: balances}
	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, key, snap); err != nil {
			s.log.Warn("trial balance cache write failed", "key", key, "err", err)
		}
	}
	return snap, nil
}

func (s *Service) build(accs []ledger.Account, balances map[uuid.UUID]decimal.Decimal, asOf *time.Time, version int64) (TrialBalance, error) {
	sorted := append([]ledger.Account(nil), accs...)
	account.SortByCode(sorted)

	tb := TrialBalance{
		AsOf:        asOf,
		Version:     version,
		GeneratedAt: s.now().UTC(),
		Rows:        make([]Row, 0, len(sorted)),
		TotalDebit:  decimal.Zero,
		TotalCredit: decimal.Zero,
		ByType:      make(map[ledger.AccountType]decimal.Decimal, len(ledger.AccountTypes)),
	}
	for _, t := range ledger.AccountTypes {
		tb.ByType[t] = decimal.Zero
	}

	var err error
	for _, a := range sorted {
		bal := balances[a.ID]
		if !a.Active && bal.IsZero() {
			continue
		}
		row := Row{
			AccountID: a.ID,
			Code:      a.Code,
			Name:      a.Name,
			Type:      a.Type,
			Category:  a.Category,
			Active:    a.Active,
			Balance:   bal,
			Debit:     decimal.Zero,
			Credit:    decimal.Zero,
		}
		side := a.Type.NormalSide()
		if bal.IsNeg() {
			side = opposite(side)
		}
		if side == ledger.SideDebit {
			row.Debit = bal.Abs()
			tb.TotalDebit, err = tb.TotalDebit.Add(row.Debit)
		} else {
			row.Credit = bal.Abs()
			tb.TotalCredit, err = tb.TotalCredit.Add(row.Credit)
		}
		if err != nil {
			return TrialBalance{}, fmt.Errorf("%w: total for %s: %v", errs.ErrInvalid, a.Code, err)
		}
		if tb.ByType[a.Type], err = tb.ByType[a.Type].Add(bal); err != nil {
			return TrialBalance{}, fmt.Errorf("%w: %s subtotal: %v", errs.ErrInvalid, a.Type, err)
		}
		tb.Rows = append(tb.Rows, row)
	}

	diff, err := tb.TotalDebit.Sub(tb.TotalCredit)
	if err != nil {
		return TrialBalance{}, fmt.Errorf("%w: difference: %v", errs.ErrInvalid, err)
	}
	if diff.Abs().Cmp(journal.Epsilon) > 0 {
		return TrialBalance{}, &errs.ImbalanceError{TotalDebit: tb.TotalDebit, TotalCredit: tb.TotalCredit, Difference: diff.Abs()}
	}
	return tb, nil
}

// replay sums ledger rows into normal-side balances starting from zero.
func replay(accs []ledger.Account, rows []ledger.GeneralLedgerEntry) (map[uuid.UUID]decimal.Decimal, error) {
	types := make(map[uuid.UUID]ledger.AccountType, len(accs))
	out := make(map[uuid.UUID]decimal.Decimal, len(accs))
	for _, a := range accs {
		types[a.ID] = a.Type
		out[a.ID] = decimal.Zero
	}
	for _, r := range rows {
		t, ok := types[r.AccountID]
		if !ok {
			return nil, fmt.Errorf("%w: ledger row %s references unknown account %s", errs.ErrNotFound, r.ID, r.AccountID)
		}
		delta, err := rowDelta(t, r)
		if err != nil {
			return nil, err
		}
		if out[r.AccountID], err = out[r.AccountID].Add(delta); err != nil {
			return nil, fmt.Errorf("%w: replay %s: %v", errs.ErrInvalid, r.AccountID, err)
		}
	}
	return out, nil
}

func rowDelta(t ledger.AccountType, r ledger.GeneralLedgerEntry) (decimal.Decimal, error) {
	net, err := r.Debit.Sub(r.Credit)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: ledger row %s: %v", errs.ErrInvalid, r.ID, err)
	}
	return t.Normalize(net), nil
}

func opposite(s ledger.Side) ledger.Side {
	if s == ledger.SideDebit {
		return ledger.SideCredit
	}
	return ledger.SideDebit
}

// IsImbalance reports whether err carries trial balance totals that disagree.
func IsImbalance(err error) (*errs.ImbalanceError, bool) {
	var ie *errs.ImbalanceError
	if errors.As(err, &ie) {
		return ie, true
	}
	return nil, false
}

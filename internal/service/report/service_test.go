package report_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/govalues/decimal"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinoosan/ledger-engine/internal/errs"
	"github.com/tinoosan/ledger-engine/internal/keylock"
	"github.com/tinoosan/ledger-engine/internal/ledger"
	"github.com/tinoosan/ledger-engine/internal/platform/cache"
	"github.com/tinoosan/ledger-engine/internal/service/account"
	"github.com/tinoosan/ledger-engine/internal/service/journal"
	"github.com/tinoosan/ledger-engine/internal/service/posting"
	"github.com/tinoosan/ledger-engine/internal/service/report"
	"github.com/tinoosan/ledger-engine/internal/storage/memory"
)

var (
	jan1  = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	jan5  = time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC)
	jan10 = time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
)

type books struct {
	store    *memory.Store
	accounts account.Service
	journal  journal.Service
	poster   *posting.Poster
	byCode   map[string]ledger.Account
}

func newBooks(t *testing.T) *books {
	t.Helper()
	store := memory.New()
	locks := keylock.New()
	b := &books{
		store:    store,
		accounts: account.New(store, store, locks, account.WithNow(func() time.Time { return jan1 })),
		journal:  journal.New(store, store, locks),
		poster:   posting.New(store, locks),
		byCode:   map[string]ledger.Account{},
	}
	for _, a := range []account.CreateInput{
		{Code: "1000", Name: "Cash", Type: ledger.AccountTypeAsset},
		{Code: "2000", Name: "Payables", Type: ledger.AccountTypeLiability},
		{Code: "3000", Name: "Capital", Type: ledger.AccountTypeEquity},
		{Code: "4000", Name: "Sales", Type: ledger.AccountTypeRevenue},
		{Code: "5000", Name: "Rent", Type: ledger.AccountTypeExpense},
	} {
		acc, err := b.accounts.Create(context.Background(), a)
		require.NoError(t, err)
		b.byCode[acc.Code] = acc
	}
	return b
}

func (b *books) post(t *testing.T, date time.Time, debit, credit, amt string) ledger.JournalEntry {
	t.Helper()
	ctx := context.Background()
	e, err := b.journal.Create(ctx, journal.EntryInput{Date: date, Lines: []journal.LineInput{
		{AccountID: b.byCode[debit].ID, Debit: decimal.MustParse(amt)},
		{AccountID: b.byCode[credit].ID, Credit: decimal.MustParse(amt)},
	}})
	require.NoError(t, err)
	posted, err := b.poster.Post(ctx, e.ID, "test")
	require.NoError(t, err)
	return posted
}

func assertDec(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Zero(t, decimal.MustParse(want).Cmp(got), "want %s, got %s", want, got)
}

func rowFor(t *testing.T, tb report.TrialBalance, code string) report.Row {
	t.Helper()
	for _, r := range tb.Rows {
		if r.Code == code {
			return r
		}
	}
	t.Fatalf("no trial balance row for %s", code)
	return report.Row{}
}

func TestLiveTrialBalanceBalances(t *testing.T) {
	b := newBooks(t)
	b.post(t, jan1, "1000", "3000", "10000")
	b.post(t, jan5, "1000", "4000", "2500.50")
	b.post(t, jan5, "5000", "1000", "1200")
	b.post(t, jan10, "5000", "2000", "300")

	tb, err := report.New(b.store).TrialBalance(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, tb.AsOf)
	assert.Equal(t, int64(8), tb.Version)
	assertDec(t, "12800.50", tb.TotalDebit)
	assertDec(t, "12800.50", tb.TotalCredit)

	codes := make([]string, 0, len(tb.Rows))
	for _, r := range tb.Rows {
		codes = append(codes, r.Code)
	}
	assert.Equal(t, []string{"1000", "2000", "3000", "4000", "5000"}, codes)

	cash := rowFor(t, tb, "1000")
	assertDec(t, "11300.50", cash.Debit)
	assertDec(t, "0", cash.Credit)
	sales := rowFor(t, tb, "4000")
	assertDec(t, "2500.50", sales.Credit)
	assertDec(t, "2500.50", sales.Balance)

	assertDec(t, "11300.50", tb.ByType[ledger.AccountTypeAsset])
	assertDec(t, "300", tb.ByType[ledger.AccountTypeLiability])
	assertDec(t, "1500", tb.ByType[ledger.AccountTypeExpense])
}

func TestNegativeBalanceUsesOppositeColumn(t *testing.T) {
	b := newBooks(t)
	b.post(t, jan1, "5000", "1000", "50")

	tb, err := report.New(b.store).TrialBalance(context.Background(), nil)
	require.NoError(t, err)
	cash := rowFor(t, tb, "1000")
	assertDec(t, "-50", cash.Balance)
	assertDec(t, "0", cash.Debit)
	assertDec(t, "50", cash.Credit)
	assertDec(t, "50", tb.TotalDebit)
	assertDec(t, "50", tb.TotalCredit)
}

func TestInactiveAccountsAppearOnlyWithBalance(t *testing.T) {
	b := newBooks(t)
	ctx := context.Background()
	b.post(t, jan1, "1000", "2000", "75")
	require.NoError(t, b.accounts.Deactivate(ctx, b.byCode["2000"].ID))
	require.NoError(t, b.accounts.Deactivate(ctx, b.byCode["3000"].ID))

	tb, err := report.New(b.store).TrialBalance(ctx, nil)
	require.NoError(t, err)
	payables := rowFor(t, tb, "2000")
	assert.False(t, payables.Active)
	assertDec(t, "75", payables.Credit)
	for _, r := range tb.Rows {
		assert.NotEqual(t, "3000", r.Code, "inactive zero-balance account listed")
	}
	assertDec(t, tb.TotalDebit.String(), tb.TotalCredit)
}

func TestHistoricalTrialBalanceReplaysUpToDate(t *testing.T) {
	b := newBooks(t)
	ctx := context.Background()
	b.post(t, jan1, "1000", "3000", "1000")
	b.post(t, jan10, "5000", "1000", "400")
	// backdated after the jan10 posting, still counts for jan5
	b.post(t, jan5, "1000", "4000", "60")

	svc := report.New(b.store)
	asOf := jan5.Add(13 * time.Hour)
	tb, err := svc.TrialBalance(ctx, &asOf)
	require.NoError(t, err)
	require.NotNil(t, tb.AsOf)
	assert.Equal(t, jan5, *tb.AsOf)
	assertDec(t, "1060", rowFor(t, tb, "1000").Debit)
	assertDec(t, "0", rowFor(t, tb, "5000").Debit)
	assertDec(t, "1060", tb.TotalCredit)

	before := jan1.AddDate(0, 0, -1)
	tb, err = svc.TrialBalance(ctx, &before)
	require.NoError(t, err)
	assert.Empty(t, tb.Rows)
	assert.True(t, tb.TotalDebit.IsZero())

	// an as-of date on or after the last posting matches the live report
	live, err := svc.TrialBalance(ctx, nil)
	require.NoError(t, err)
	latest := jan10
	hist, err := svc.TrialBalance(ctx, &latest)
	require.NoError(t, err)
	require.Len(t, hist.Rows, len(live.Rows))
	for i := range live.Rows {
		assert.Equal(t, live.Rows[i].Code, hist.Rows[i].Code)
		assertDec(t, live.Rows[i].Balance.String(), hist.Rows[i].Balance)
	}
}

// skewed corrupts one stored balance to simulate a broken ledger.
type skewed struct {
	*memory.Store
	id uuid.UUID
}

func (s skewed) ListAccounts(ctx context.Context) ([]ledger.Account, error) {
	accs, err := s.Store.ListAccounts(ctx)
	for i := range accs {
		if accs[i].ID == s.id {
			accs[i].Balance, _ = accs[i].Balance.Add(decimal.MustParse("10"))
		}
	}
	return accs, err
}

func TestImbalanceIsReported(t *testing.T) {
	b := newBooks(t)
	b.post(t, jan1, "1000", "4000", "100")
	svc := report.New(skewed{Store: b.store, id: b.byCode["1000"].ID}, report.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	_, err := svc.TrialBalance(context.Background(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrImbalance)
	var ie *errs.ImbalanceError
	require.True(t, errors.As(err, &ie))
	assertDec(t, "110", ie.TotalDebit)
	assertDec(t, "100", ie.TotalCredit)
	assertDec(t, "10", ie.Difference)

	// replaying the ledger does not read stored balances, so history stays clean
	_, err = svc.TrialBalance(context.Background(), &jan1)
	assert.NoError(t, err)

	diffs, err := svc.Audit(context.Background())
	require.NoError(t, err)
	require.Len(t, diffs, 1)
	assert.Equal(t, "1000", diffs[0].Code)
	assertDec(t, "110", diffs[0].Stored)
	assertDec(t, "100", diffs[0].Replayed)
	require.NotNil(t, diffs[0].LastRunning)
	assertDec(t, "100", *diffs[0].LastRunning)
}

func TestAuditCleanLedger(t *testing.T) {
	b := newBooks(t)
	b.post(t, jan1, "1000", "3000", "500")
	b.post(t, jan5, "5000", "1000", "120")
	diffs, err := report.New(b.store).Audit(context.Background())
	require.NoError(t, err)
	assert.Empty(t, diffs)
}

type countingRepo struct {
	*memory.Store
	rows atomic.Int32
}

func (c *countingRepo) LedgerRows(ctx context.Context, f report.RowFilter) ([]ledger.GeneralLedgerEntry, error) {
	c.rows.Add(1)
	return c.Store.LedgerRows(ctx, f)
}

func TestHistoricalTrialBalanceIsCachedPerVersion(t *testing.T) {
	b := newBooks(t)
	ctx := context.Background()
	b.post(t, jan1, "1000", "3000", "800")

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	repo := &countingRepo{Store: b.store}
	svc := report.New(repo, report.WithCache(cache.NewJSON(client, "ledger:", time.Hour)))

	first, err := svc.TrialBalance(ctx, &jan5)
	require.NoError(t, err)
	second, err := svc.TrialBalance(ctx, &jan5)
	require.NoError(t, err)
	assert.Equal(t, int32(1), repo.rows.Load())
	assert.True(t, mr.Exists("ledger:tb:2025-01-05:v2"))
	assertDec(t, first.TotalDebit.String(), second.TotalDebit)
	assert.Equal(t, len(first.Rows), len(second.Rows))

	b.post(t, jan1, "5000", "1000", "30")
	third, err := svc.TrialBalance(ctx, &jan5)
	require.NoError(t, err)
	assert.Equal(t, int32(2), repo.rows.Load())
	assert.Equal(t, int64(4), third.Version)
	assertDec(t, "770", rowFor(t, third, "1000").Debit)
}

func TestCachedHistoricalTrialBalanceFollowsAccountChanges(t *testing.T) {
	b := newBooks(t)
	ctx := context.Background()
	b.post(t, jan1, "1000", "3000", "800")

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	repo := &countingRepo{Store: b.store}
	cached := report.New(repo, report.WithCache(cache.NewJSON(client, "ledger:", time.Hour)))

	warm, err := cached.TrialBalance(ctx, &jan5)
	require.NoError(t, err)
	require.Len(t, warm.Rows, 5)

	require.NoError(t, b.accounts.Deactivate(ctx, b.byCode["2000"].ID))
	renamed := "Cash at bank"
	_, err = b.accounts.Update(ctx, b.byCode["1000"].ID, account.Patch{Name: &renamed})
	require.NoError(t, err)

	got, err := cached.TrialBalance(ctx, &jan5)
	require.NoError(t, err)
	assert.Equal(t, int32(1), repo.rows.Load(), "balances should come from the cache")
	fresh, err := report.New(b.store).TrialBalance(ctx, &jan5)
	require.NoError(t, err)

	require.Len(t, got.Rows, len(fresh.Rows))
	assert.Len(t, got.Rows, 4)
	for i := range fresh.Rows {
		assert.Equal(t, fresh.Rows[i].Code, got.Rows[i].Code)
		assert.Equal(t, fresh.Rows[i].Name, got.Rows[i].Name)
		assert.Equal(t, fresh.Rows[i].Active, got.Rows[i].Active)
		assertDec(t, fresh.Rows[i].Balance.String(), got.Rows[i].Balance)
	}
	assert.Equal(t, "Cash at bank", rowFor(t, got, "1000").Name)
	assertDec(t, "800", rowFor(t, got, "1000").Debit)
}

func TestAccountLedgerStatement(t *testing.T) {
	b := newBooks(t)
	ctx := context.Background()
	b.post(t, jan1, "1000", "3000", "1000")
	b.post(t, jan5, "5000", "1000", "250")
	b.post(t, jan10, "1000", "4000", "90")

	svc := report.New(b.store)
	cash := b.byCode["1000"].ID
	from, to := jan5, jan5
	st, err := svc.AccountLedger(ctx, cash, &from, &to)
	require.NoError(t, err)
	assertDec(t, "1000", st.Opening)
	require.Len(t, st.Rows, 1)
	assertDec(t, "250", st.Rows[0].Credit)
	assertDec(t, "750", st.Rows[0].RunningBalance)
	assertDec(t, "750", st.Closing)

	all, err := svc.AccountLedger(ctx, cash, nil, nil)
	require.NoError(t, err)
	assert.Len(t, all.Rows, 3)
	assertDec(t, "840", all.Closing)

	_, err = svc.AccountLedger(ctx, uuid.New(), nil, nil)
	assert.ErrorIs(t, err, errs.ErrNotFound)
	_, err = svc.AccountLedger(ctx, cash, &jan10, &jan1)
	assert.ErrorIs(t, err, errs.ErrInvalid)
}

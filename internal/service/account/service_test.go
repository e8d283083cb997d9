package account_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinoosan/ledger-engine/internal/errs"
	"github.com/tinoosan/ledger-engine/internal/keylock"
	"github.com/tinoosan/ledger-engine/internal/ledger"
	"github.com/tinoosan/ledger-engine/internal/service/account"
	"github.com/tinoosan/ledger-engine/internal/service/journal"
	"github.com/tinoosan/ledger-engine/internal/service/posting"
	"github.com/tinoosan/ledger-engine/internal/storage/memory"
)

var now = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

type env struct {
	svc     account.Service
	journal journal.Service
	poster  *posting.Poster
}

func setup(t *testing.T) env {
	t.Helper()
	store := memory.New()
	locks := keylock.New()
	return env{
		svc:     account.New(store, store, locks, account.WithNow(func() time.Time { return now })),
		journal: journal.New(store, store, locks),
		poster:  posting.New(store, locks),
	}
}

func (e env) create(t *testing.T, in account.CreateInput) ledger.Account {
	t.Helper()
	a, err := e.svc.Create(context.Background(), in)
	require.NoError(t, err)
	return a
}

// post moves amt from credit to debit through a real posting.
func (e env) post(t *testing.T, debit, credit uuid.UUID, amt string) {
	t.Helper()
	ctx := context.Background()
	d, err := e.journal.Create(ctx, journal.EntryInput{Date: now, Lines: []journal.LineInput{
		{AccountID: debit, Debit: decimal.MustParse(amt)},
		{AccountID: credit, Credit: decimal.MustParse(amt)},
	}})
	require.NoError(t, err)
	_, err = e.poster.Post(ctx, d.ID, "test")
	require.NoError(t, err)
}

func TestCreateHeaderAndSubAccount(t *testing.T) {
	e := setup(t)
	header := e.create(t, account.CreateInput{Code: " 1000 ", Name: "Current Assets", Type: ledger.AccountTypeAsset, Category: "Current Assets"})
	assert.Equal(t, "1000", header.Code)
	assert.Equal(t, 0, header.Level)
	assert.True(t, header.IsHeader())
	assert.True(t, header.Active)
	assert.True(t, header.Balance.IsZero())
	assert.Equal(t, now, header.CreatedAt)

	child := e.create(t, account.CreateInput{Code: "1000.10", Name: "Petty Cash", Type: ledger.AccountTypeAsset, ParentID: &header.ID})
	assert.Equal(t, 1, child.Level)
	require.NotNil(t, child.ParentID)
	assert.Equal(t, header.ID, *child.ParentID)

	got, err := e.svc.GetByCode(context.Background(), "1000.10")
	require.NoError(t, err)
	assert.Equal(t, child.ID, got.ID)
}

func TestCreateRejections(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	header := e.create(t, account.CreateInput{Code: "2000", Name: "Liabilities", Type: ledger.AccountTypeLiability})
	missing := uuid.New()

	tests := []struct {
		name string
		in   account.CreateInput
		want error
	}{
		{"bad code", account.CreateInput{Code: "CASH", Name: "Cash", Type: ledger.AccountTypeAsset}, errs.ErrInvalid},
		{"no name", account.CreateInput{Code: "1000", Type: ledger.AccountTypeAsset}, errs.ErrInvalid},
		{"bad type", account.CreateInput{Code: "1000", Name: "Cash", Type: "cash"}, errs.ErrInvalid},
		{"duplicate code", account.CreateInput{Code: "2000", Name: "Again", Type: ledger.AccountTypeLiability}, errs.ErrConflict},
		{"missing parent", account.CreateInput{Code: "2100", Name: "AP", Type: ledger.AccountTypeLiability, ParentID: &missing}, errs.ErrNotFound},
		{"type differs from parent", account.CreateInput{Code: "2200", Name: "Odd", Type: ledger.AccountTypeAsset, ParentID: &header.ID}, errs.ErrInvalidOperation},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.svc.Create(ctx, tc.in)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestListFilters(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	e.create(t, account.CreateInput{Code: "1100", Name: "Receivables", Type: ledger.AccountTypeAsset, Category: "Current Assets"})
	e.create(t, account.CreateInput{Code: "1000", Name: "Cash at Bank", Description: "Main operating account", Type: ledger.AccountTypeAsset, Category: "Current Assets"})
	e.create(t, account.CreateInput{Code: "1500", Name: "Equipment", Type: ledger.AccountTypeAsset, Category: "Fixed Assets", Inactive: true})
	e.create(t, account.CreateInput{Code: "4000", Name: "Sales", Type: ledger.AccountTypeRevenue, Category: "Operating Revenue"})

	codes := func(accs []ledger.Account) []string {
		out := make([]string, 0, len(accs))
		for _, a := range accs {
			out = append(out, a.Code)
		}
		return out
	}
	yes, no := true, false
	tests := []struct {
		name string
		f    account.Filter
		want []string
	}{
		{"all sorted by code", account.Filter{}, []string{"1000", "1100", "1500", "4000"}},
		{"by type", account.Filter{Type: ledger.AccountTypeAsset}, []string{"1000", "1100", "1500"}},
		{"by category ignores case", account.Filter{Category: "current assets"}, []string{"1000", "1100"}},
		{"active only", account.Filter{Active: &yes}, []string{"1000", "1100", "4000"}},
		{"inactive only", account.Filter{Active: &no}, []string{"1500"}},
		{"search name", account.Filter{Search: "BANK"}, []string{"1000"}},
		{"search description", account.Filter{Search: "operating"}, []string{"1000"}},
		{"search code", account.Filter{Search: "40"}, []string{"4000"}},
		{"combined", account.Filter{Type: ledger.AccountTypeAsset, Active: &yes, Search: "re"}, []string{"1100"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := e.svc.List(ctx, tc.f)
			require.NoError(t, err)
			assert.Equal(t, tc.want, codes(got))
		})
	}

	_, err := e.svc.List(ctx, account.Filter{Type: "cash"})
	assert.ErrorIs(t, err, errs.ErrInvalid)
}

func TestTypeIsFixedOnceUsed(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	cash := e.create(t, account.CreateInput{Code: "1000", Name: "Cash", Type: ledger.AccountTypeAsset})
	eq := e.create(t, account.CreateInput{Code: "3000", Name: "Capital", Type: ledger.AccountTypeEquity})
	spare := e.create(t, account.CreateInput{Code: "1900", Name: "Spare", Type: ledger.AccountTypeAsset})

	expense := ledger.AccountTypeExpense
	retyped, err := e.svc.Update(ctx, spare.ID, account.Patch{Type: &expense})
	require.NoError(t, err)
	assert.Equal(t, ledger.AccountTypeExpense, retyped.Type)

	e.post(t, cash.ID, eq.ID, "100")
	liability := ledger.AccountTypeLiability
	_, err = e.svc.Update(ctx, cash.ID, account.Patch{Type: &liability})
	assert.ErrorIs(t, err, errs.ErrInvalidOperation)

	name := "Cash on Hand"
	renamed, err := e.svc.Update(ctx, cash.ID, account.Patch{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Cash on Hand", renamed.Name)
	assert.Zero(t, renamed.Balance.Cmp(decimal.MustParse("100")), "update keeps the posted balance")
}

func TestSubAccountKeepsParentType(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	header := e.create(t, account.CreateInput{Code: "5000", Name: "Expenses", Type: ledger.AccountTypeExpense})
	child := e.create(t, account.CreateInput{Code: "5000.10", Name: "Travel", Type: ledger.AccountTypeExpense, ParentID: &header.ID})

	asset := ledger.AccountTypeAsset
	_, err := e.svc.Update(ctx, child.ID, account.Patch{Type: &asset})
	assert.ErrorIs(t, err, errs.ErrInvalidOperation)
	_, err = e.svc.Update(ctx, header.ID, account.Patch{Type: &asset})
	assert.ErrorIs(t, err, errs.ErrInvalidOperation)
}

func TestDeleteRules(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	header := e.create(t, account.CreateInput{Code: "1000", Name: "Assets", Type: ledger.AccountTypeAsset})
	child := e.create(t, account.CreateInput{Code: "1000.10", Name: "Cash", Type: ledger.AccountTypeAsset, ParentID: &header.ID})
	eq := e.create(t, account.CreateInput{Code: "3000", Name: "Capital", Type: ledger.AccountTypeEquity})
	unused := e.create(t, account.CreateInput{Code: "1999", Name: "Unused", Type: ledger.AccountTypeAsset})

	assert.ErrorIs(t, e.svc.Delete(ctx, header.ID), errs.ErrConflict)

	e.post(t, child.ID, eq.ID, "10")
	assert.ErrorIs(t, e.svc.Delete(ctx, child.ID), errs.ErrConflict)

	require.NoError(t, e.svc.Deactivate(ctx, child.ID))
	got, err := e.svc.Get(ctx, child.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)

	require.NoError(t, e.svc.Delete(ctx, unused.ID))
	_, err = e.svc.Get(ctx, unused.ID)
	assert.ErrorIs(t, err, errs.ErrNotFound)
	assert.ErrorIs(t, e.svc.Delete(ctx, unused.ID), errs.ErrNotFound)
}

func TestTreeRollsUpBalances(t *testing.T) {
	e := setup(t)
	header := e.create(t, account.CreateInput{Code: "1000", Name: "Assets", Type: ledger.AccountTypeAsset})
	bank := e.create(t, account.CreateInput{Code: "1000.20", Name: "Bank", Type: ledger.AccountTypeAsset, ParentID: &header.ID})
	petty := e.create(t, account.CreateInput{Code: "1000.10", Name: "Petty", Type: ledger.AccountTypeAsset, ParentID: &header.ID})
	eq := e.create(t, account.CreateInput{Code: "3000", Name: "Capital", Type: ledger.AccountTypeEquity})
	e.post(t, bank.ID, eq.ID, "900")
	e.post(t, petty.ID, eq.ID, "100")

	tree, err := e.svc.Tree(context.Background())
	require.NoError(t, err)
	require.Len(t, tree, 2)
	assert.Equal(t, "1000", tree[0].Account.Code)
	assert.Zero(t, tree[0].Rollup.Cmp(decimal.MustParse("1000")))
	require.Len(t, tree[0].Children, 2)
	assert.Equal(t, "1000.10", tree[0].Children[0].Account.Code)
	assert.Equal(t, "3000", tree[1].Account.Code)
	assert.Zero(t, tree[1].Rollup.Cmp(decimal.MustParse("1000")))
}

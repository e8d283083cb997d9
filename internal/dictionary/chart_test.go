package dictionary_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinoosan/ledger-engine/internal/dictionary"
	"github.com/tinoosan/ledger-engine/internal/errs"
	"github.com/tinoosan/ledger-engine/internal/keylock"
	"github.com/tinoosan/ledger-engine/internal/ledger"
	"github.com/tinoosan/ledger-engine/internal/service/account"
	"github.com/tinoosan/ledger-engine/internal/storage/memory"
)

func TestParseChartInheritsFromHeader(t *testing.T) {
	c, err := dictionary.ParseChart(strings.NewReader(`
accounts:
  - code: "2000"
    name: Liabilities
    type: liability
    category: Current Liabilities
    children:
      - code: "2000.10"
        name: Payables
      - code: "2000.20"
        name: Mortgage
        category: Long-term Liabilities
`))
	require.NoError(t, err)
	require.Len(t, c.Accounts, 1)
	kids := c.Accounts[0].Children
	require.Len(t, kids, 2)
	assert.Equal(t, ledger.AccountTypeLiability, kids[0].Type)
	assert.Equal(t, "Current Liabilities", kids[0].Category)
	assert.Equal(t, "Long-term Liabilities", kids[1].Category)
	assert.Equal(t, 3, c.Size())
}

func TestParseChartRejectsUnknownKeys(t *testing.T) {
	_, err := dictionary.ParseChart(strings.NewReader("accounts:\n  - code: \"1000\"\n    colour: blue\n"))
	assert.ErrorIs(t, err, errs.ErrInvalid)
}

func TestSeedDefaultChartIsIdempotent(t *testing.T) {
	store := memory.New()
	svc := account.New(store, store, keylock.New())
	ctx := context.Background()
	chart := dictionary.DefaultChart()

	created, err := dictionary.Seed(ctx, svc, chart)
	require.NoError(t, err)
	assert.Len(t, created, chart.Size())

	bank, err := svc.GetByCode(ctx, "1000.20")
	require.NoError(t, err)
	require.NotNil(t, bank.ParentID)
	assert.Equal(t, 1, bank.Level)
	assert.Equal(t, ledger.AccountTypeAsset, bank.Type)
	assert.Equal(t, "Current Assets", bank.Category)

	again, err := dictionary.Seed(ctx, svc, chart)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestCategories(t *testing.T) {
	eq := ledger.AccountTypeEquity
	list := dictionary.CategoriesFor(&eq)
	require.NotEmpty(t, list)
	for _, c := range list {
		assert.Equal(t, ledger.AccountTypeEquity, c.Type)
	}
	assert.True(t, dictionary.IsReserved(eq, "opening balances"))
	assert.False(t, dictionary.IsReserved(ledger.AccountTypeAsset, "Current Assets"))

	all := dictionary.CategoriesFor(nil)
	assert.Equal(t, ledger.AccountTypeAsset, all[0].Type)
	assert.Equal(t, ledger.AccountTypeExpense, all[len(all)-1].Type)
}

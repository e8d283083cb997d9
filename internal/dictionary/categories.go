// Package dictionary holds the curated account categories and the default
// chart of accounts a new ledger is seeded with.
package dictionary

import (
	"strings"

	"github.com/tinoosan/ledger-engine/internal/ledger"
)

// Category is a suggested grouping within an account type.
type Category struct {
	Type  ledger.AccountType `json:"type"`
	Label string             `json:"label"`
	// Reserved categories are created by the system, e.g. opening balances.
	Reserved bool `json:"reserved"`
}

var curated = map[ledger.AccountType][]Category{
	ledger.AccountTypeAsset: {
		{Label: "Current Assets"},
		{Label: "Fixed Assets"},
		{Label: "Other Assets"},
	},
	ledger.AccountTypeLiability: {
		{Label: "Current Liabilities"},
		{Label: "Long-term Liabilities"},
	},
	ledger.AccountTypeEquity: {
		{Label: "Opening Balances", Reserved: true},
		{Label: "Owner Equity"},
		{Label: "Retained Earnings"},
	},
	ledger.AccountTypeRevenue: {
		{Label: "Operating Revenue"},
		{Label: "Other Income"},
	},
	ledger.AccountTypeExpense: {
		{Label: "Cost of Sales"},
		{Label: "Operating Expenses"},
		{Label: "Other Expenses"},
	},
}

func init() {
	for t, list := range curated {
		for i := range list {
			list[i].Type = t
		}
	}
}

// IsReserved reports whether label is a system category of type t.
func IsReserved(t ledger.AccountType, label string) bool {
	for _, c := range curated[t] {
		if c.Reserved && strings.EqualFold(c.Label, label) {
			return true
		}
	}
	return false
}

// CategoriesFor returns the curated categories of t, or of every type in chart order when t is nil.
func CategoriesFor(t *ledger.AccountType) []Category {
	if t != nil {
		return append([]Category(nil), curated[*t]...)
	}
	out := make([]Category, 0)
	for _, typ := range ledger.AccountTypes {
		out = append(out, curated[typ]...)
	}
	return out
}

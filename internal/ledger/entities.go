package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/govalues/decimal"
)

// Side represents the accounting position of a journal line.
type Side string

const (
	// SideDebit records a value on the debit side of an account.
	SideDebit Side = "debit"
	// SideCredit records a value on the credit side of an account.
	SideCredit Side = "credit"
)

// AccountType enumerates the broad classification of an account in the ledger.
// It is fixed at creation and determines the account's normal balance.
type AccountType string

const (
	// AccountTypeAsset increases on the debit side and holds resources owned by the business.
	AccountTypeAsset AccountType = "asset"
	// AccountTypeLiability increases on the credit side and tracks obligations.
	AccountTypeLiability AccountType = "liability"
	// AccountTypeEquity captures the owner's residual interest in the entity.
	AccountTypeEquity AccountType = "equity"
	// AccountTypeRevenue represents inflows that increase equity.
	AccountTypeRevenue AccountType = "revenue"
	// AccountTypeExpense represents outflows that decrease equity.
	AccountTypeExpense AccountType = "expense"
)

// AccountTypes lists every account type in chart order.
var AccountTypes = []AccountType{
	AccountTypeAsset,
	AccountTypeLiability,
	AccountTypeEquity,
	AccountTypeRevenue,
	AccountTypeExpense,
}

// Valid reports whether t is one of the known account types.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeRevenue, AccountTypeExpense:
		return true
	}
	return false
}

// NormalSide returns the side on which an account of this type carries a positive balance.
func (t AccountType) NormalSide() Side {
	switch t {
	case AccountTypeAsset, AccountTypeExpense:
		return SideDebit
	default:
		return SideCredit
	}
}

// Normalize converts a signed debit-minus-credit amount into a change of the
// account balance expressed on the type's normal side.
func (t AccountType) Normalize(debitMinusCredit decimal.Decimal) decimal.Decimal {
	if t.NormalSide() == SideCredit {
		return debitMinusCredit.Neg()
	}
	return debitMinusCredit
}

// EntryStatus is the lifecycle state of a journal entry.
type EntryStatus string

const (
	// EntryStatusDraft entries are editable and have no effect on balances.
	EntryStatusDraft EntryStatus = "draft"
	// EntryStatusPosted entries have been applied to balances and are immutable.
	EntryStatusPosted EntryStatus = "posted"
)

// Valid reports whether s is a known entry status.
func (s EntryStatus) Valid() bool { return s == EntryStatusDraft || s == EntryStatusPosted }

// Account is a node in the chart of accounts.
type Account struct {
	ID          uuid.UUID
	Code        string
	Name        string
	Description string
	Type        AccountType
	// Category is a free-text grouping within a type, e.g. "Current Assets".
	Category string
	ParentID *uuid.UUID
	// Level is 0 for header accounts and parent.Level+1 otherwise.
	Level int
	// Balance is expressed on the type's normal side and only changes through posting.
	Balance   decimal.Decimal
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsHeader reports whether the account sits at the top of the hierarchy.
func (a Account) IsHeader() bool { return a.ParentID == nil }

// JournalEntry groups balanced lines that are posted together.
type JournalEntry struct {
	ID          uuid.UUID
	Date        time.Time
	Reference   string
	Description string
	Status      EntryStatus
	// ReversalOf is set on entries created by reversing a posted entry.
	ReversalOf *uuid.UUID
	CreatedBy  string
	CreatedAt  time.Time
	PostedBy   string
	PostedAt   *time.Time
	Lines      []JournalLine
}

// AccountIDs returns the distinct accounts referenced by the entry's lines in line order.
func (e JournalEntry) AccountIDs() []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(e.Lines))
	out := make([]uuid.UUID, 0, len(e.Lines))
	for _, ln := range e.Lines {
		if _, ok := seen[ln.AccountID]; ok {
			continue
		}
		seen[ln.AccountID] = struct{}{}
		out = append(out, ln.AccountID)
	}
	return out
}

// JournalLine links a journal entry to an account with a debit or a credit amount.
type JournalLine struct {
	ID          uuid.UUID
	EntryID     uuid.UUID
	AccountID   uuid.UUID
	Description string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
}

// Net returns debit minus credit for the line.
func (l JournalLine) Net() (decimal.Decimal, error) { return l.Debit.Sub(l.Credit) }

// GeneralLedgerEntry is an append-only record of one posted line.
type GeneralLedgerEntry struct {
	ID             uuid.UUID
	Seq            int64
	JournalEntryID uuid.UUID
	AccountID      uuid.UUID
	Date           time.Time
	Debit          decimal.Decimal
	Credit         decimal.Decimal
	// RunningBalance is the account balance immediately after this row was applied.
	RunningBalance decimal.Decimal
	PostedAt       time.Time
}

// Day truncates t to midnight UTC; entry dates and as-of dates are compared at day precision.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

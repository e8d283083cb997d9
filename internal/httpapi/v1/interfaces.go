package v1

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tinoosan/ledger-engine/internal/ledger"
	"github.com/tinoosan/ledger-engine/internal/service/report"
)

// Poster commits drafts to the ledger and reverses posted entries.
type Poster interface {
	Post(ctx context.Context, entryID uuid.UUID, actor string) (ledger.JournalEntry, error)
	Reverse(ctx context.Context, entryID uuid.UUID, actor string, date time.Time) (ledger.JournalEntry, error)
}

// Reporter produces read-only views over balances and ledger rows.
type Reporter interface {
	TrialBalance(ctx context.Context, asOf *time.Time) (report.TrialBalance, error)
	AccountLedger(ctx context.Context, accountID uuid.UUID, from, to *time.Time) (report.Statement, error)
}

// ReadyChecker is optionally implemented by stores to indicate readiness.
type ReadyChecker interface {
	Ready(ctx context.Context) error
}

package postgres

import (
	"github.com/tinoosan/ledger-engine/internal/service/account"
	"github.com/tinoosan/ledger-engine/internal/service/journal"
	"github.com/tinoosan/ledger-engine/internal/service/posting"
	"github.com/tinoosan/ledger-engine/internal/service/report"
)

// Compile-time interface assertions documenting which interfaces Store satisfies.
var (
	_ account.Repo   = (*Store)(nil)
	_ account.Writer = (*Store)(nil)
	_ journal.Repo   = (*Store)(nil)
	_ journal.Writer = (*Store)(nil)
	_ posting.Store  = (*Store)(nil)
	_ posting.Tx     = (*Tx)(nil)
	_ report.Repo    = (*Store)(nil)
)

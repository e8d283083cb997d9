package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/decimal"
	"github.com/jackc/pgx/v5"

	"github.com/tinoosan/ledger-engine/internal/ledger"
	"github.com/tinoosan/ledger-engine/internal/service/posting"
	"github.com/tinoosan/ledger-engine/internal/service/report"
)

// WithTx runs fn in a read-committed transaction. Entry and account reads
// inside it take row locks that are held until commit or rollback.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx posting.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &Tx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit tx: %w", mapErr(err))
	}
	return nil
}

// Tx is the posting view of a database transaction.
type Tx struct {
	tx pgx.Tx
}

// EntryByID loads and locks an entry.
func (t *Tx) EntryByID(ctx context.Context, id uuid.UUID) (ledger.JournalEntry, error) {
	return entryByID(ctx, t.tx, id, true)
}

// AccountsByIDs loads and locks accounts in id order.
func (t *Tx) AccountsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]ledger.Account, error) {
	return accountsByIDs(ctx, t.tx, ids, true)
}

// ReversalOf finds the entry reversing id, if any.
func (t *Tx) ReversalOf(ctx context.Context, id uuid.UUID) (ledger.JournalEntry, bool, error) {
	var rid uuid.UUID
	err := t.tx.QueryRow(ctx, `select id from journal_entries where reversal_of = $1`, id).Scan(&rid)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.JournalEntry{}, false, nil
	}
	if err != nil {
		return ledger.JournalEntry{}, false, err
	}
	e, err := entryByID(ctx, t.tx, rid, false)
	return e, err == nil, err
}

// CreateEntry inserts an entry inside the transaction. The unique reversal_of
// column turns a concurrent second reversal into errs.ErrConflict.
func (t *Tx) CreateEntry(ctx context.Context, e ledger.JournalEntry) (ledger.JournalEntry, error) {
	if err := insertEntry(ctx, t.tx, e); err != nil {
		return ledger.JournalEntry{}, err
	}
	return entryByID(ctx, t.tx, e.ID, true)
}

// ApplyDelta adds delta to the stored balance.
func (t *Tx) ApplyDelta(ctx context.Context, accountID uuid.UUID, delta decimal.Decimal) (ledger.Account, error) {
	return scanAccount(t.tx.QueryRow(ctx, `
		update accounts set balance = balance + $2::numeric
		where id = $1
		returning `+accountCols, accountID, delta.String()))
}

// AppendLedgerRows reserves a block of sequence numbers from the version row
// and inserts the rows with them. The version row stays locked until commit,
// so sequence numbers follow commit order.
func (t *Tx) AppendLedgerRows(ctx context.Context, rows []ledger.GeneralLedgerEntry) error {
	if len(rows) == 0 {
		return nil
	}
	var last int64
	if err := t.tx.QueryRow(ctx, `
		update ledger_version set version = version + $1
		returning version`, len(rows)).Scan(&last); err != nil {
		return fmt.Errorf("reserve ledger seq: %w", err)
	}
	first := last - int64(len(rows)) + 1
	for i, r := range rows {
		if _, err := t.tx.Exec(ctx, `
			insert into general_ledger (seq, id, journal_entry_id, account_id, date, debit, credit, running_balance, posted_at)
			values ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8::numeric, $9)`,
			first+int64(i), r.ID, r.JournalEntryID, r.AccountID, r.Date, r.Debit.String(), r.Credit.String(), r.RunningBalance.String(), r.PostedAt); err != nil {
			return mapErr(err)
		}
	}
	return nil
}

// MarkPosted flips a draft to posted.
func (t *Tx) MarkPosted(ctx context.Context, id uuid.UUID, by string, at time.Time) error {
	return markPosted(ctx, t.tx, id, by, at)
}

const ledgerCols = `seq, id, journal_entry_id, account_id, date, debit::text, credit::text, running_balance::text, posted_at`

// LedgerRows returns matching general ledger rows in seq order.
func (s *Store) LedgerRows(ctx context.Context, f report.RowFilter) ([]ledger.GeneralLedgerEntry, error) {
	var where []string
	var args []any
	if f.AccountID != nil {
		args = append(args, *f.AccountID)
		where = append(where, fmt.Sprintf("account_id = $%d", len(args)))
	}
	if f.From != nil {
		args = append(args, ledger.Day(*f.From))
		where = append(where, fmt.Sprintf("date >= $%d", len(args)))
	}
	if f.To != nil {
		args = append(args, ledger.Day(*f.To))
		where = append(where, fmt.Sprintf("date <= $%d", len(args)))
	}
	if f.MaxSeq > 0 {
		args = append(args, f.MaxSeq)
		where = append(where, fmt.Sprintf("seq <= $%d", len(args)))
	}
	sql := `select ` + ledgerCols + ` from general_ledger`
	if len(where) > 0 {
		sql += ` where ` + strings.Join(where, " and ")
	}
	sql += ` order by seq`

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ledger.GeneralLedgerEntry
	for rows.Next() {
		var r ledger.GeneralLedgerEntry
		var debit, credit, running string
		if err := rows.Scan(&r.Seq, &r.ID, &r.JournalEntryID, &r.AccountID, &r.Date, &debit, &credit, &running, &r.PostedAt); err != nil {
			return nil, err
		}
		r.Date = ledger.Day(r.Date)
		if r.Debit, err = numeric(debit); err != nil {
			return nil, err
		}
		if r.Credit, err = numeric(credit); err != nil {
			return nil, err
		}
		if r.RunningBalance, err = numeric(running); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// LedgerVersion returns the newest committed ledger sequence number.
func (s *Store) LedgerVersion(ctx context.Context) (int64, error) {
	var v int64
	err := s.pool.QueryRow(ctx, `select version from ledger_version`).Scan(&v)
	return v, mapErr(err)
}

package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tinoosan/ledger-engine/internal/errs"
	"github.com/tinoosan/ledger-engine/internal/ledger"
	"github.com/tinoosan/ledger-engine/internal/service/journal"
)

const entryCols = `id, date, reference, description, status, reversal_of, created_by, created_at, posted_by, posted_at`

func scanEntry(row scanner) (ledger.JournalEntry, error) {
	var e ledger.JournalEntry
	if err := row.Scan(&e.ID, &e.Date, &e.Reference, &e.Description, &e.Status, &e.ReversalOf, &e.CreatedBy, &e.CreatedAt, &e.PostedBy, &e.PostedAt); err != nil {
		return ledger.JournalEntry{}, mapErr(err)
	}
	e.Date = ledger.Day(e.Date)
	return e, nil
}

func entryByID(ctx context.Context, q querier, id uuid.UUID, lock bool) (ledger.JournalEntry, error) {
	sql := `select ` + entryCols + ` from journal_entries where id = $1`
	if lock {
		sql += ` for update`
	}
	e, err := scanEntry(q.QueryRow(ctx, sql, id))
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	lines, err := linesFor(ctx, q, []uuid.UUID{id})
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	e.Lines = lines[id]
	return e, nil
}

func linesFor(ctx context.Context, q querier, entryIDs []uuid.UUID) (map[uuid.UUID][]ledger.JournalLine, error) {
	rows, err := q.Query(ctx, `
		select id, entry_id, account_id, description, debit::text, credit::text
		from journal_lines
		where entry_id = any($1)
		order by entry_id, line_no`, entryIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[uuid.UUID][]ledger.JournalLine, len(entryIDs))
	for rows.Next() {
		var ln ledger.JournalLine
		var debit, credit string
		if err := rows.Scan(&ln.ID, &ln.EntryID, &ln.AccountID, &ln.Description, &debit, &credit); err != nil {
			return nil, err
		}
		if ln.Debit, err = numeric(debit); err != nil {
			return nil, err
		}
		if ln.Credit, err = numeric(credit); err != nil {
			return nil, err
		}
		out[ln.EntryID] = append(out[ln.EntryID], ln)
	}
	return out, rows.Err()
}

// EntryByID returns a single entry with its lines.
func (s *Store) EntryByID(ctx context.Context, id uuid.UUID) (ledger.JournalEntry, error) {
	return entryByID(ctx, s.pool, id, false)
}

// ListEntries returns matching entries ordered by (date, id).
func (s *Store) ListEntries(ctx context.Context, f journal.Filter) ([]ledger.JournalEntry, error) {
	var where []string
	var args []any
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.From != nil {
		args = append(args, ledger.Day(*f.From))
		where = append(where, fmt.Sprintf("date >= $%d", len(args)))
	}
	if f.To != nil {
		args = append(args, ledger.Day(*f.To))
		where = append(where, fmt.Sprintf("date <= $%d", len(args)))
	}
	sql := `select ` + entryCols + ` from journal_entries`
	if len(where) > 0 {
		sql += ` where ` + strings.Join(where, " and ")
	}
	sql += ` order by date, id`

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	var out []ledger.JournalEntry
	var ids []uuid.UUID
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, e)
		ids = append(ids, e.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []ledger.JournalEntry{}, nil
	}
	lines, err := linesFor(ctx, s.pool, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Lines = lines[out[i].ID]
	}
	return out, nil
}

func insertEntry(ctx context.Context, q querier, e ledger.JournalEntry) error {
	if _, err := q.Exec(ctx, `
		insert into journal_entries (id, date, reference, description, status, reversal_of, created_by, created_at, posted_by, posted_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, e.Date, e.Reference, e.Description, e.Status, e.ReversalOf, e.CreatedBy, e.CreatedAt, e.PostedBy, e.PostedAt); err != nil {
		return mapErr(err)
	}
	return insertLines(ctx, q, e.ID, e.Lines)
}

func insertLines(ctx context.Context, q querier, entryID uuid.UUID, lines []ledger.JournalLine) error {
	for i, ln := range lines {
		if _, err := q.Exec(ctx, `
			insert into journal_lines (id, entry_id, line_no, account_id, description, debit, credit)
			values ($1, $2, $3, $4, $5, $6::numeric, $7::numeric)`,
			ln.ID, entryID, i, ln.AccountID, ln.Description, ln.Debit.String(), ln.Credit.String()); err != nil {
			return mapErr(err)
		}
	}
	return nil
}

// CreateEntry stores a new draft with its lines.
func (s *Store) CreateEntry(ctx context.Context, e ledger.JournalEntry) (ledger.JournalEntry, error) {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error { return insertEntry(ctx, tx, e) })
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	return s.EntryByID(ctx, e.ID)
}

// UpdateEntry replaces a draft's header fields and all of its lines.
func (s *Store) UpdateEntry(ctx context.Context, e ledger.JournalEntry) (ledger.JournalEntry, error) {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := requireDraft(ctx, tx, e.ID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			update journal_entries set date = $2, reference = $3, description = $4
			where id = $1`, e.ID, e.Date, e.Reference, e.Description); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `delete from journal_lines where entry_id = $1`, e.ID); err != nil {
			return err
		}
		return insertLines(ctx, tx, e.ID, e.Lines)
	})
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	return s.EntryByID(ctx, e.ID)
}

// DeleteEntry removes a draft and its lines.
func (s *Store) DeleteEntry(ctx context.Context, id uuid.UUID) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := requireDraft(ctx, tx, id); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `delete from journal_entries where id = $1`, id)
		return err
	})
}

// requireDraft locks the entry row and checks that it is still a draft.
func requireDraft(ctx context.Context, q querier, id uuid.UUID) error {
	var status ledger.EntryStatus
	if err := q.QueryRow(ctx, `select status from journal_entries where id = $1 for update`, id).Scan(&status); err != nil {
		return mapErr(err)
	}
	if status != ledger.EntryStatusDraft {
		return fmt.Errorf("%w: entry %s is %s", errs.ErrInvalidState, id, status)
	}
	return nil
}

func markPosted(ctx context.Context, q querier, id uuid.UUID, by string, at time.Time) error {
	tag, err := q.Exec(ctx, `
		update journal_entries set status = 'posted', posted_by = $2, posted_at = $3
		where id = $1 and status = 'draft'`, id, by, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: entry %s is not a draft", errs.ErrInvalidState, id)
	}
	return nil
}

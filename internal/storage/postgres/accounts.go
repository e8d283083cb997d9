package postgres

import (
	"context"

	"github.com/google/uuid"

	"github.com/tinoosan/ledger-engine/internal/errs"
	"github.com/tinoosan/ledger-engine/internal/ledger"
)

const accountCols = `id, code, name, description, type, category, parent_id, level, balance::text, active, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (ledger.Account, error) {
	var a ledger.Account
	var bal string
	if err := row.Scan(&a.ID, &a.Code, &a.Name, &a.Description, &a.Type, &a.Category, &a.ParentID, &a.Level, &bal, &a.Active, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return ledger.Account{}, mapErr(err)
	}
	var err error
	if a.Balance, err = numeric(bal); err != nil {
		return ledger.Account{}, err
	}
	return a, nil
}

func queryAccounts(ctx context.Context, q querier, sql string, args ...any) ([]ledger.Account, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ledger.Account, 0)
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ListAccounts returns every account ordered by code.
func (s *Store) ListAccounts(ctx context.Context) ([]ledger.Account, error) {
	return queryAccounts(ctx, s.pool, `select `+accountCols+` from accounts order by code`)
}

// GetAccount returns an account by ID.
func (s *Store) GetAccount(ctx context.Context, id uuid.UUID) (ledger.Account, error) {
	return scanAccount(s.pool.QueryRow(ctx, `select `+accountCols+` from accounts where id = $1`, id))
}

// AccountByCode returns an account by its unique code.
func (s *Store) AccountByCode(ctx context.Context, code string) (ledger.Account, error) {
	return scanAccount(s.pool.QueryRow(ctx, `select `+accountCols+` from accounts where code = $1`, code))
}

// AccountsByIDs returns the subset of ids that exist.
func (s *Store) AccountsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]ledger.Account, error) {
	return accountsByIDs(ctx, s.pool, ids, false)
}

// accountsByIDs optionally row-locks the accounts, always in id order so
// concurrent postings acquire them in the same sequence.
func accountsByIDs(ctx context.Context, q querier, ids []uuid.UUID, lock bool) (map[uuid.UUID]ledger.Account, error) {
	out := make(map[uuid.UUID]ledger.Account, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	sql := `select ` + accountCols + ` from accounts where id = any($1) order by id`
	if lock {
		sql += ` for update`
	}
	accs, err := queryAccounts(ctx, q, sql, ids)
	if err != nil {
		return nil, err
	}
	for _, a := range accs {
		out[a.ID] = a
	}
	return out, nil
}

// HasChildren reports whether any account names id as its parent.
func (s *Store) HasChildren(ctx context.Context, id uuid.UUID) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx, `select exists(select 1 from accounts where parent_id = $1)`, id).Scan(&ok)
	return ok, err
}

// HasLedgerRows reports whether anything was ever posted to the account.
func (s *Store) HasLedgerRows(ctx context.Context, id uuid.UUID) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx, `select exists(select 1 from general_ledger where account_id = $1)`, id).Scan(&ok)
	return ok, err
}

// CreateAccount inserts a new account; a duplicate code maps to errs.ErrConflict.
func (s *Store) CreateAccount(ctx context.Context, a ledger.Account) (ledger.Account, error) {
	if a.ParentID != nil {
		var exists bool
		if err := s.pool.QueryRow(ctx, `select exists(select 1 from accounts where id = $1)`, *a.ParentID).Scan(&exists); err != nil {
			return ledger.Account{}, err
		}
		if !exists {
			return ledger.Account{}, errs.ErrNotFound
		}
	}
	return scanAccount(s.pool.QueryRow(ctx, `
		insert into accounts (id, code, name, description, type, category, parent_id, level, balance, active, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9::numeric, $10, $11, $12)
		returning `+accountCols,
		a.ID, a.Code, a.Name, a.Description, a.Type, a.Category, a.ParentID, a.Level, a.Balance.String(), a.Active, a.CreatedAt, a.UpdatedAt))
}

// UpdateAccount persists the editable fields. The balance column is never written here.
func (s *Store) UpdateAccount(ctx context.Context, a ledger.Account) (ledger.Account, error) {
	return scanAccount(s.pool.QueryRow(ctx, `
		update accounts
		set code = $2, name = $3, description = $4, type = $5, category = $6, active = $7, updated_at = $8
		where id = $1
		returning `+accountCols,
		a.ID, a.Code, a.Name, a.Description, a.Type, a.Category, a.Active, a.UpdatedAt))
}

// DeleteAccount removes an account; references from children or ledger rows map to errs.ErrConflict.
func (s *Store) DeleteAccount(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `delete from accounts where id = $1`, id)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

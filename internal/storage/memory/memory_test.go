package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinoosan/ledger-engine/internal/errs"
	"github.com/tinoosan/ledger-engine/internal/ledger"
	"github.com/tinoosan/ledger-engine/internal/service/journal"
	"github.com/tinoosan/ledger-engine/internal/service/posting"
	"github.com/tinoosan/ledger-engine/internal/service/report"
)

var day = time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)

func mustAccount(t *testing.T, s *Store, code string) ledger.Account {
	t.Helper()
	a, err := s.CreateAccount(context.Background(), ledger.Account{
		ID: uuid.New(), Code: code, Name: code, Type: ledger.AccountTypeAsset, Active: true,
	})
	require.NoError(t, err)
	return a
}

func row(a ledger.Account, debit string) ledger.GeneralLedgerEntry {
	return ledger.GeneralLedgerEntry{ID: uuid.New(), AccountID: a.ID, Date: day, Debit: decimal.MustParse(debit)}
}

func TestCreateAccount_Conflicts(t *testing.T) {
	s := New()
	a := mustAccount(t, s, "1000")

	_, err := s.CreateAccount(context.Background(), ledger.Account{ID: uuid.New(), Code: "1000", Type: ledger.AccountTypeAsset})
	assert.ErrorIs(t, err, errs.ErrConflict)

	missing := uuid.New()
	_, err = s.CreateAccount(context.Background(), ledger.Account{ID: uuid.New(), Code: "1001", Type: ledger.AccountTypeAsset, ParentID: &missing, Level: 1})
	assert.ErrorIs(t, err, errs.ErrNotFound)

	got, err := s.AccountByCode(context.Background(), "1000")
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
}

func TestWithTx_ErrorDiscardsStagedWrites(t *testing.T) {
	s := New()
	a := mustAccount(t, s, "1000")
	boom := errors.New("boom")

	err := s.WithTx(context.Background(), func(ctx context.Context, tx posting.Tx) error {
		if _, err := tx.ApplyDelta(ctx, a.ID, decimal.MustNew(5, 0)); err != nil {
			return err
		}
		if err := tx.AppendLedgerRows(ctx, []ledger.GeneralLedgerEntry{row(a, "5")}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.GetAccount(context.Background(), a.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.IsZero())
	v, err := s.LedgerVersion(context.Background())
	require.NoError(t, err)
	assert.Zero(t, v)
}

func TestWithTx_StagedReadsSeeOwnWrites(t *testing.T) {
	s := New()
	a := mustAccount(t, s, "1000")

	err := s.WithTx(context.Background(), func(ctx context.Context, tx posting.Tx) error {
		if _, err := tx.ApplyDelta(ctx, a.ID, decimal.MustNew(3, 0)); err != nil {
			return err
		}
		got, err := tx.AccountsByIDs(ctx, []uuid.UUID{a.ID})
		if err != nil {
			return err
		}
		assert.Equal(t, "3", got[a.ID].Balance.String())

		outside, err := s.GetAccount(ctx, a.ID)
		if err != nil {
			return err
		}
		assert.True(t, outside.Balance.IsZero())
		return nil
	})
	require.NoError(t, err)
}

func TestCommit_RejectsMovedBalance(t *testing.T) {
	s := New()
	a := mustAccount(t, s, "1000")

	err := s.WithTx(context.Background(), func(ctx context.Context, tx posting.Tx) error {
		if _, err := tx.ApplyDelta(ctx, a.ID, decimal.MustNew(1, 0)); err != nil {
			return err
		}
		// a concurrent writer commits first
		return s.WithTx(ctx, func(ctx context.Context, inner posting.Tx) error {
			_, err := inner.ApplyDelta(ctx, a.ID, decimal.MustNew(2, 0))
			return err
		})
	})
	assert.ErrorIs(t, err, errs.ErrConflict)

	got, err := s.GetAccount(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, "2", got.Balance.String())
}

func TestCommit_AssignsSeqAndFilters(t *testing.T) {
	s := New()
	a := mustAccount(t, s, "1000")
	b := mustAccount(t, s, "1100")

	for i := 0; i < 3; i++ {
		err := s.WithTx(context.Background(), func(ctx context.Context, tx posting.Tx) error {
			r1, r2 := row(a, "1"), row(b, "2")
			r2.Date = day.AddDate(0, 0, i)
			return tx.AppendLedgerRows(ctx, []ledger.GeneralLedgerEntry{r1, r2})
		})
		require.NoError(t, err)
	}

	v, err := s.LedgerVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(6), v)

	all, err := s.LedgerRows(context.Background(), report.RowFilter{})
	require.NoError(t, err)
	require.Len(t, all, 6)
	for i, r := range all {
		assert.Equal(t, int64(i+1), r.Seq)
	}

	onlyB, err := s.LedgerRows(context.Background(), report.RowFilter{AccountID: &b.ID})
	require.NoError(t, err)
	assert.Len(t, onlyB, 3)

	to := day
	upTo, err := s.LedgerRows(context.Background(), report.RowFilter{To: &to, MaxSeq: 4})
	require.NoError(t, err)
	// seq 1-4 minus b's row dated day+1
	assert.Len(t, upTo, 3)

	has, err := s.HasLedgerRows(context.Background(), a.ID)
	require.NoError(t, err)
	assert.True(t, has)
	assert.ErrorIs(t, s.DeleteAccount(context.Background(), a.ID), errs.ErrConflict)
}

func TestEntries_OrderAndDraftOnlyWrites(t *testing.T) {
	s := New()
	ctx := context.Background()
	later := ledger.JournalEntry{ID: uuid.New(), Date: day.AddDate(0, 0, 2), Status: ledger.EntryStatusDraft}
	earlier := ledger.JournalEntry{ID: uuid.New(), Date: day, Status: ledger.EntryStatusDraft}
	_, err := s.CreateEntry(ctx, later)
	require.NoError(t, err)
	_, err = s.CreateEntry(ctx, earlier)
	require.NoError(t, err)

	list, err := s.ListEntries(ctx, journal.Filter{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, earlier.ID, list[0].ID)

	err = s.WithTx(ctx, func(ctx context.Context, tx posting.Tx) error {
		return tx.MarkPosted(ctx, earlier.ID, "alice", day)
	})
	require.NoError(t, err)

	_, err = s.UpdateEntry(ctx, earlier)
	assert.ErrorIs(t, err, errs.ErrInvalidState)
	assert.ErrorIs(t, s.DeleteEntry(ctx, earlier.ID), errs.ErrInvalidState)
	require.NoError(t, s.DeleteEntry(ctx, later.ID))

	posted := ledger.EntryStatusPosted
	list, err = s.ListEntries(ctx, journal.Filter{Status: posted})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "alice", list[0].PostedBy)
}

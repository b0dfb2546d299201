package repository

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fiscalhost/ledger/internal/database"
	"github.com/fiscalhost/ledger/internal/hcbcode"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := database.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.RunMigrationsWithDB(db))
	return db
}

func TestPendingStateMachineMonotonic(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := NewPendingRepo(newTestDB(t))

	id, err := repo.Insert(ctx, PendingTransaction{
		HcbCode:          "HCB-400-CHK-1",
		SourceType:       hcbcode.SourceOutgoingCheck,
		SourceIdentifier: "CHK-1",
		AmountCents:      100,
		Date:             time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		State:            StatePending,
	})
	require.NoError(t, err)

	ok, err := repo.MarkSettled(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)

	// settling twice is a no-op, not an error
	ok, err = repo.MarkSettled(ctx, id)
	require.NoError(t, err)
	require.False(t, ok)

	// a settled row can never be declined
	require.NoError(t, repo.MarkDeclined(ctx, id))
	pt, err := repo.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, StateSettled, pt.State)
}

func TestPendingNaturalKeyUnique(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := NewPendingRepo(newTestDB(t))

	row := PendingTransaction{
		HcbCode:          "HCB-100-inv",
		SourceType:       hcbcode.SourceInvoice,
		SourceIdentifier: "inv",
		AmountCents:      100,
		Date:             time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		State:            StatePending,
	}
	_, err := repo.Insert(ctx, row)
	require.NoError(t, err)
	_, err = repo.Insert(ctx, row)
	require.Error(t, err)
	require.Contains(t, err.Error(), "UNIQUE")
}

func TestLinkPendingIsPermanent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := newTestDB(t)
	pending := NewPendingRepo(db)
	canonical := NewCanonicalRepo(db)

	p1, err := pending.Insert(ctx, PendingTransaction{
		HcbCode: "HCB-300-a", SourceType: hcbcode.SourceAchTransfer, SourceIdentifier: "a",
		AmountCents: 100, Date: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC), State: StatePending,
	})
	require.NoError(t, err)
	p2, err := pending.Insert(ctx, PendingTransaction{
		HcbCode: "HCB-300-b", SourceType: hcbcode.SourceAchTransfer, SourceIdentifier: "b",
		AmountCents: 100, Date: time.Date(2026, 6, 2, 0, 0, 0, 0, time.UTC), State: StatePending,
	})
	require.NoError(t, err)

	cid, err := canonical.Insert(ctx, CanonicalTransaction{
		HcbCode: "HCB-300-a", SourceType: hcbcode.SourceBankFeed, SourceIdentifier: "feed",
		AmountCents: 100, Date: time.Date(2026, 6, 3, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	require.NoError(t, canonical.LinkPending(ctx, cid, p1))
	// second link attempt must not overwrite
	require.NoError(t, canonical.LinkPending(ctx, cid, p2))

	ct, err := canonical.Get(ctx, cid)
	require.NoError(t, err)
	require.NotNil(t, ct.PendingTransactionID)
	require.Equal(t, p1, *ct.PendingTransactionID)
}

func TestOpenByHcbCodeOrdersEarliestFirst(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := NewPendingRepo(newTestDB(t))

	for _, ident := range []string{"x1", "x2", "x3"} {
		_, err := repo.Insert(ctx, PendingTransaction{
			HcbCode: "HCB-100-shared", SourceType: hcbcode.SourceInvoice, SourceIdentifier: ident,
			AmountCents: 100, Date: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC), State: StatePending,
		})
		require.NoError(t, err)
	}

	open, err := repo.OpenByHcbCode(ctx, "HCB-100-shared")
	require.NoError(t, err)
	require.Len(t, open, 3)
	require.Equal(t, "x1", open[0].SourceIdentifier)
	require.Equal(t, "x2", open[1].SourceIdentifier)
	require.Equal(t, "x3", open[2].SourceIdentifier)
}

func TestHcbSequenceMonotonic(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := NewRawRecordRepo(newTestDB(t))

	a, err := repo.NextHcbSequence(ctx)
	require.NoError(t, err)
	b, err := repo.NextHcbSequence(ctx)
	require.NoError(t, err)
	require.Greater(t, b, a)
}

package engine

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/fiscalhost/ledger/internal/database"
	"github.com/fiscalhost/ledger/internal/database/repository"
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

func seedEvent(t *testing.T, db *sql.DB, name, slug string) repository.Event {
	t.Helper()
	e := repository.Event{ID: uuid.NewString(), Name: name, Slug: slug}
	require.NoError(t, repository.NewEventRepo(db).Upsert(context.Background(), e))
	return e
}

func seedCard(t *testing.T, db *sql.DB, externalID, eventID string) {
	t.Helper()
	c := repository.Card{ID: uuid.NewString(), ExternalID: externalID, EventID: eventID}
	require.NoError(t, repository.NewEventRepo(db).UpsertCard(context.Background(), c))
}

func testDate(day int) time.Time {
	return time.Date(2026, 3, day, 12, 0, 0, 0, time.UTC)
}

func nopLog() zerolog.Logger { return zerolog.Nop() }

package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/fiscalhost/ledger/internal/database"
	"github.com/fiscalhost/ledger/internal/database/repository"
	"github.com/fiscalhost/ledger/internal/hcbcode"
	"github.com/fiscalhost/ledger/internal/publicid"
)

func newTestServer(t *testing.T) (*Server, *sql.DB) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := database.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.RunMigrationsWithDB(db))

	codec, err := publicid.New("test-salt")
	require.NoError(t, err)
	return NewServer(db, codec, zerolog.Nop()), db
}

func seedLedger(t *testing.T, db *sql.DB) repository.Event {
	t.Helper()
	ctx := context.Background()
	ev := repository.Event{ID: uuid.NewString(), Name: "Launchpad", Slug: "launchpad"}
	require.NoError(t, repository.NewEventRepo(db).Upsert(ctx, ev))

	_, err := repository.NewCanonicalRepo(db).Insert(ctx, repository.CanonicalTransaction{
		HcbCode:          "HCB-400-CHK-1",
		EventID:          &ev.ID,
		SourceType:       hcbcode.SourceBankFeed,
		SourceIdentifier: "feed_1",
		AmountCents:      -5000,
		Date:             time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC),
		Memo:             "check one",
	})
	require.NoError(t, err)

	_, err = repository.NewPendingRepo(db).Insert(ctx, repository.PendingTransaction{
		HcbCode:          "HCB-100-inv_1",
		EventID:          &ev.ID,
		SourceType:       hcbcode.SourceInvoice,
		SourceIdentifier: "inv_1",
		AmountCents:      2000,
		Date:             time.Date(2026, 5, 3, 0, 0, 0, 0, time.UTC),
		Memo:             "sponsor invoice",
		State:            repository.StatePending,
	})
	require.NoError(t, err)
	return ev
}

func get(t *testing.T, h http.Handler, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestListTransactions(t *testing.T) {
	t.Parallel()

	srv, db := newTestServer(t)
	seedLedger(t, db)
	h := srv.Routes()

	rec, body := get(t, h, "/api/v1/events/launchpad/transactions")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, float64(2), body["total_count"])

	txs := body["transactions"].([]any)
	require.Len(t, txs, 2)
	first := txs[0].(map[string]any)
	// newest first
	require.Equal(t, "HCB-100-inv_1", first["hcb_code"])
	require.Equal(t, "pending", first["state"])
	// public ids are namespaced away from HCB codes
	require.Contains(t, first["id"], "pnd_")
}

func TestListTransactionsUnknownEvent(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)
	rec, _ := get(t, srv.Routes(), "/api/v1/events/nope/transactions")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTransactionDetailByPublicID(t *testing.T) {
	t.Parallel()

	srv, db := newTestServer(t)
	seedLedger(t, db)
	h := srv.Routes()

	_, body := get(t, h, "/api/v1/events/launchpad/transactions")
	txs := body["transactions"].([]any)
	settled := txs[1].(map[string]any)
	publicID := settled["id"].(string)

	rec, detail := get(t, h, "/api/v1/transactions/"+publicID)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "HCB-400-CHK-1", detail["hcb_code"])
	require.Equal(t, float64(-5000), detail["amount_cents"])
}

func TestTransactionDetailRejectsGarbage(t *testing.T) {
	t.Parallel()

	srv, db := newTestServer(t)
	seedLedger(t, db)
	h := srv.Routes()

	rec, _ := get(t, h, "/api/v1/transactions/HCB-400-CHK-1")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEventBalance(t *testing.T) {
	t.Parallel()

	srv, db := newTestServer(t)
	seedLedger(t, db)

	rec, body := get(t, srv.Routes(), "/api/v1/events/launchpad/balance")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, float64(-5000), body["settled_cents"])
	require.Equal(t, float64(2000), body["pending_cents"])
	require.Equal(t, float64(-3000), body["total_cents"])
}

func TestUnmappedQueue(t *testing.T) {
	t.Parallel()

	srv, db := newTestServer(t)
	ctx := context.Background()

	_, err := repository.NewPendingRepo(db).Insert(ctx, repository.PendingTransaction{
		HcbCode:          "HCB-600-ch_x",
		SourceType:       hcbcode.SourceCardCharge,
		SourceIdentifier: "ch_x",
		AmountCents:      -1200,
		Date:             time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC),
		State:            repository.StatePending,
	})
	require.NoError(t, err)

	rec, body := get(t, srv.Routes(), "/api/v1/admin/unmapped")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, float64(1), body["count"])
}

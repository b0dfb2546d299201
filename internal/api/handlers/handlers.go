// Package handlers implements the public read API over the unified
// transaction view. Records are addressed by opaque public ids, never by
// HCB codes or internal row ids.
package handlers

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/fiscalhost/ledger/internal/api/middleware"
	"github.com/fiscalhost/ledger/internal/database/repository"
	"github.com/fiscalhost/ledger/internal/publicid"
	"github.com/fiscalhost/ledger/internal/view"
)

// TransactionEntry is the wire shape of one unified-ledger row.
type TransactionEntry struct {
	PublicID    string `json:"id"`
	HcbCode     string `json:"hcb_code"`
	AmountCents int64  `json:"amount_cents"`
	Date        string `json:"date"`
	State       string `json:"state"`
	SourceType  string `json:"source_type"`
	Memo        string `json:"memo,omitempty"`
}

// Server holds the read API's collaborators.
type Server struct {
	DB     *sql.DB
	Codec  *publicid.Codec
	Ledger *view.Ledger
	Log    zerolog.Logger
}

func NewServer(db *sql.DB, codec *publicid.Codec, log zerolog.Logger) *Server {
	return &Server{DB: db, Codec: codec, Ledger: view.New(db), Log: log}
}

// Routes builds the handler tree with logging and recovery applied.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/events/{slug}/transactions", s.listTransactions)
	mux.HandleFunc("GET /api/v1/events/{slug}/balance", s.eventBalance)
	mux.HandleFunc("GET /api/v1/transactions/{publicID}", s.getTransaction)
	mux.HandleFunc("GET /api/v1/admin/unmapped", s.listUnmapped)

	var h http.Handler = mux
	h = middleware.Logger(s.Log)(h)
	h = middleware.Recovery(s.Log)(h)
	return h
}

// listTransactions handles GET /api/v1/events/{slug}/transactions.
func (s *Server) listTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	event, err := repository.NewEventRepo(s.DB).GetBySlug(ctx, r.PathValue("slug"))
	if err != nil {
		s.Log.Error().Err(err).Msg("event lookup failed")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list transactions")
		return
	}
	if event == nil {
		middleware.WriteError(w, http.StatusNotFound, "Event not found")
		return
	}

	page := view.Page{
		Number: queryInt(r, "page", 1),
		Size:   queryInt(r, "page_size", view.DefaultPageSize),
	}
	entries, total, err := s.Ledger.List(ctx, event.ID, page)
	if err != nil {
		s.Log.Error().Err(err).Str("event", event.Slug).Msg("ledger fold failed")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list transactions")
		return
	}

	out := make([]TransactionEntry, 0, len(entries))
	for _, e := range entries {
		wire, err := s.toWire(e)
		if err != nil {
			s.Log.Error().Err(err).Int64("row", e.ID).Msg("public id encode failed")
			middleware.WriteError(w, http.StatusInternalServerError, "Failed to list transactions")
			return
		}
		out = append(out, wire)
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"transactions": out,
		"total_count":  total,
		"page":         page.Number,
	})
}

// eventBalance handles GET /api/v1/events/{slug}/balance.
func (s *Server) eventBalance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	event, err := repository.NewEventRepo(s.DB).GetBySlug(ctx, r.PathValue("slug"))
	if err != nil {
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to compute balance")
		return
	}
	if event == nil {
		middleware.WriteError(w, http.StatusNotFound, "Event not found")
		return
	}

	bal, err := s.Ledger.Balance(ctx, event.ID)
	if err != nil {
		s.Log.Error().Err(err).Str("event", event.Slug).Msg("balance failed")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to compute balance")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"settled_cents": bal.SettledCents,
		"pending_cents": bal.PendingCents,
		"total_cents":   bal.TotalCents(),
	})
}

// getTransaction handles GET /api/v1/transactions/{publicID}. Both
// ledgers are addressable: txn_ ids resolve settled rows, pnd_ ids
// resolve pending rows.
func (s *Server) getTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	publicID := r.PathValue("publicID")

	if id, err := s.Codec.Decode(publicid.PrefixTransaction, publicID); err == nil {
		ct, err := repository.NewCanonicalRepo(s.DB).Get(ctx, id)
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, "Failed to load transaction")
			return
		}
		if ct == nil {
			middleware.WriteError(w, http.StatusNotFound, "Transaction not found")
			return
		}
		middleware.WriteJSON(w, http.StatusOK, TransactionEntry{
			PublicID:    publicID,
			HcbCode:     ct.HcbCode,
			AmountCents: ct.AmountCents,
			Date:        ct.Date.UTC().Format(time.RFC3339),
			State:       repository.StateSettled,
			SourceType:  string(ct.SourceType),
			Memo:        ct.Memo,
		})
		return
	}

	if id, err := s.Codec.Decode(publicid.PrefixPending, publicID); err == nil {
		pt, err := repository.NewPendingRepo(s.DB).Get(ctx, id)
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, "Failed to load transaction")
			return
		}
		if pt == nil {
			middleware.WriteError(w, http.StatusNotFound, "Transaction not found")
			return
		}
		middleware.WriteJSON(w, http.StatusOK, TransactionEntry{
			PublicID:    publicID,
			HcbCode:     pt.HcbCode,
			AmountCents: pt.AmountCents,
			Date:        pt.Date.UTC().Format(time.RFC3339),
			State:       pt.State,
			SourceType:  string(pt.SourceType),
			Memo:        pt.Memo,
		})
		return
	}

	middleware.WriteError(w, http.StatusNotFound, "Transaction not found")
}

// listUnmapped handles GET /api/v1/admin/unmapped: rows awaiting manual
// event assignment, across both ledgers.
func (s *Server) listUnmapped(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	pending, err := repository.NewPendingRepo(s.DB).ListUnmapped(ctx)
	if err != nil {
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list unmapped")
		return
	}
	settled, err := repository.NewCanonicalRepo(s.DB).ListUnmapped(ctx)
	if err != nil {
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list unmapped")
		return
	}

	out := make([]TransactionEntry, 0, len(pending)+len(settled))
	for _, ct := range settled {
		pid, err := s.Codec.Encode(publicid.PrefixTransaction, ct.ID)
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, "Failed to list unmapped")
			return
		}
		out = append(out, TransactionEntry{
			PublicID:    pid,
			HcbCode:     ct.HcbCode,
			AmountCents: ct.AmountCents,
			Date:        ct.Date.UTC().Format(time.RFC3339),
			State:       repository.StateSettled,
			SourceType:  string(ct.SourceType),
			Memo:        ct.Memo,
		})
	}
	for _, pt := range pending {
		pid, err := s.Codec.Encode(publicid.PrefixPending, pt.ID)
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, "Failed to list unmapped")
			return
		}
		out = append(out, TransactionEntry{
			PublicID:    pid,
			HcbCode:     pt.HcbCode,
			AmountCents: pt.AmountCents,
			Date:        pt.Date.UTC().Format(time.RFC3339),
			State:       pt.State,
			SourceType:  string(pt.SourceType),
			Memo:        pt.Memo,
		})
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"unmapped": out,
		"count":    len(out),
	})
}

func (s *Server) toWire(e view.Entry) (TransactionEntry, error) {
	prefix := publicid.PrefixPending
	if e.Settled {
		prefix = publicid.PrefixTransaction
	}
	pid, err := s.Codec.Encode(prefix, e.ID)
	if err != nil {
		return TransactionEntry{}, err
	}
	return TransactionEntry{
		PublicID:    pid,
		HcbCode:     e.HcbCode,
		AmountCents: e.AmountCents,
		Date:        e.Date.UTC().Format(time.RFC3339),
		State:       e.State,
		SourceType:  string(e.SourceType),
		Memo:        e.Memo,
	}, nil
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

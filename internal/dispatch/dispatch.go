// Package dispatch is the outbound payment boundary. The core submits a
// money movement to an external network (check printer, ACH, wire) and
// records the returned identifier as the natural key for that source's
// raw records. Failures surface as typed rejections; the core never
// retries them.
package dispatch

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/fiscalhost/ledger/internal/database"
	"github.com/fiscalhost/ledger/internal/engine"
	"github.com/fiscalhost/ledger/internal/hcbcode"
	"github.com/fiscalhost/ledger/internal/source"
)

// Request describes one outbound movement. Recipient details are opaque
// to the core; the dispatcher implementation knows its own wire format.
type Request struct {
	Source      hcbcode.Source
	AmountCents int64
	EventID     string
	Memo        string
	Recipient   map[string]string
}

// Rejection is a typed submission failure from the payment network.
type Rejection struct {
	Source  hcbcode.Source
	Code    string
	Message string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s dispatch rejected (%s): %s", r.Source, r.Code, r.Message)
}

// Dispatcher is implemented per payment network by subsystems outside
// the core.
type Dispatcher interface {
	Submit(ctx context.Context, req Request) (externalID string, err error)
}

// Service submits a movement and snapshots it as a raw pending record so
// the next engine run canonicalizes it. A rejected submission writes
// nothing.
type Service struct {
	DB          *sql.DB
	Dispatchers map[hcbcode.Source]Dispatcher
	Log         zerolog.Logger
}

func (s *Service) Submit(ctx context.Context, req Request) (string, error) {
	d, ok := s.Dispatchers[req.Source]
	if !ok {
		return "", fmt.Errorf("no dispatcher for source %s", req.Source)
	}

	externalID, err := d.Submit(ctx, req)
	if err != nil {
		// rejections propagate untouched so callers can type-assert
		return "", err
	}

	rec := source.Record{
		Source:     req.Source,
		Identifier: externalID,
		Amount:     req.AmountCents,
		PostedAt:   database.Now(),
		Extra:      payloadFor(req),
	}
	err = database.WithTx(s.DB, func(tx *sql.Tx) error {
		_, err := engine.NewIngestor(tx, s.Log).Store(ctx, []source.RawRecord{rec})
		return err
	})
	if err != nil {
		// The movement exists upstream but the snapshot failed; the
		// next feed sync re-delivers it, so log loudly and move on.
		s.Log.Error().Err(err).Str("external_id", externalID).Msg("dispatched but snapshot failed")
		return externalID, err
	}

	s.Log.Info().
		Str("source", string(req.Source)).
		Str("external_id", externalID).
		Int64("amount_cents", req.AmountCents).
		Msg("movement dispatched")
	return externalID, nil
}

func payloadFor(req Request) map[string]any {
	p := map[string]any{"memo": req.Memo}
	if req.EventID != "" {
		p["event_id"] = req.EventID
	}
	for k, v := range req.Recipient {
		p["recipient_"+k] = v
	}
	return p
}

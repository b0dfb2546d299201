package engine

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/fiscalhost/ledger/internal/database"
	"github.com/fiscalhost/ledger/internal/database/repository"
	"github.com/fiscalhost/ledger/internal/hcbcode"
	"github.com/fiscalhost/ledger/internal/source"
)

// pendingSources is the fixed canonicalization order for the pending
// ledger. Fixed ordering keeps runs deterministic.
var pendingSources = []hcbcode.Source{
	hcbcode.SourceInvoice,
	hcbcode.SourceDonation,
	hcbcode.SourceAchTransfer,
	hcbcode.SourceOutgoingCheck,
	hcbcode.SourceCardCharge,
	hcbcode.SourceDisbursement,
}

// settledSources is the settled-ledger order; the bank feed is the
// primary settled source.
var settledSources = []hcbcode.Source{
	hcbcode.SourceBankFeed,
}

// Nightly runs the full reconciliation pass in strict order: sync feeds,
// canonicalize pending, canonicalize settled, settle against pending.
// Settlement must observe already-canonicalized pending rows, hence the
// ordering. Each stage runs in its own all-or-nothing transaction, and
// same-engine runs are mutually exclusive.
type Nightly struct {
	DB    *sql.DB
	Feeds []source.Feed
	Log   zerolog.Logger

	pendingMu sync.Mutex
	settledMu sync.Mutex
}

func (n *Nightly) Run(ctx context.Context) error {
	if err := n.SyncFeeds(ctx); err != nil {
		return err
	}
	if _, err := n.CanonizePending(ctx); err != nil {
		return err
	}
	if _, err := n.CanonizeSettled(ctx); err != nil {
		return err
	}
	_, err := n.Settle(ctx)
	return err
}

// SyncFeeds pulls every configured feed forward. A failing feed is
// logged and skipped so one provider outage cannot starve the rest.
func (n *Nightly) SyncFeeds(ctx context.Context) error {
	for _, feed := range n.Feeds {
		err := database.WithTx(n.DB, func(tx *sql.Tx) error {
			_, err := NewIngestor(tx, n.Log).Sync(ctx, feed)
			return err
		})
		if err != nil {
			n.Log.Error().Err(err).Str("source", string(feed.Source())).Msg("feed sync failed")
		}
	}
	return nil
}

// CanonizePending imports every stored raw pending record in one batch
// transaction.
func (n *Nightly) CanonizePending(ctx context.Context) (int, error) {
	n.pendingMu.Lock()
	defer n.pendingMu.Unlock()

	imported := 0
	err := database.WithTx(n.DB, func(tx *sql.Tx) error {
		eng := NewPendingEngine(tx, n.Log)
		raw := repository.NewRawRecordRepo(tx)
		for _, src := range pendingSources {
			records, err := raw.ListBySource(ctx, src)
			if err != nil {
				return fmt.Errorf("list raw %s: %w", src, err)
			}
			count, err := eng.ImportPending(ctx, toSourceRecords(records))
			if err != nil {
				return fmt.Errorf("canonize pending %s: %w", src, err)
			}
			imported += count
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	n.Log.Info().Int("imported", imported).Msg("pending canonicalization complete")
	return imported, nil
}

// CanonizeSettled imports raw settled records in one batch transaction.
func (n *Nightly) CanonizeSettled(ctx context.Context) (int, error) {
	n.settledMu.Lock()
	defer n.settledMu.Unlock()

	imported := 0
	err := database.WithTx(n.DB, func(tx *sql.Tx) error {
		eng := NewSettledEngine(tx, n.Log)
		raw := repository.NewRawRecordRepo(tx)
		for _, src := range settledSources {
			records, err := raw.ListBySource(ctx, src)
			if err != nil {
				return fmt.Errorf("list raw %s: %w", src, err)
			}
			count, err := eng.ImportSettled(ctx, toSourceRecords(records))
			if err != nil {
				return fmt.Errorf("canonize settled %s: %w", src, err)
			}
			imported += count
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	n.Log.Info().Int("imported", imported).Msg("settled canonicalization complete")
	return imported, nil
}

// Settle links settled rows against open pending rows. The matcher reads
// pending rows inside the same transaction it links in, so it never sees
// a half-written upsert.
func (n *Nightly) Settle(ctx context.Context) (int, error) {
	n.settledMu.Lock()
	defer n.settledMu.Unlock()

	matched := 0
	err := database.WithTx(n.DB, func(tx *sql.Tx) error {
		var err error
		matched, err = NewSettledEngine(tx, n.Log).SettleAgainstPending(ctx)
		return err
	})
	if err != nil {
		return 0, err
	}
	n.Log.Info().Int("matched", matched).Msg("settlement pass complete")
	return matched, nil
}

func toSourceRecords(rows []repository.RawRecord) []source.RawRecord {
	out := make([]source.RawRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, source.Record{
			Source:     r.SourceType,
			Identifier: r.SourceIdentifier,
			Amount:     r.AmountCents,
			PostedAt:   r.Date,
			Extra:      r.Payload,
			IsDeclined: r.Declined,
		})
	}
	return out
}

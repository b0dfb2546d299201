// Package engine holds the reconciliation engines: raw ingestion,
// pending canonicalization, settled canonicalization and the
// settle-against-pending matcher. Engines are bound to a DBTX so a whole
// batch runs inside one transaction.
package engine

import (
	"context"
	"errors"
	"strings"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/fiscalhost/ledger/internal/database"
	"github.com/fiscalhost/ledger/internal/database/repository"
	"github.com/fiscalhost/ledger/internal/hcbcode"
	"github.com/fiscalhost/ledger/internal/source"
)

// PendingEngine folds raw pending records into the canonical pending
// ledger. Imports are idempotent: re-running with the same input creates
// no duplicates and changes no final state.
type PendingEngine struct {
	Pending  *repository.PendingRepo
	Resolver *EventResolver
	Log      zerolog.Logger
}

func NewPendingEngine(db database.DBTX, log zerolog.Logger) *PendingEngine {
	return &PendingEngine{
		Pending:  repository.NewPendingRepo(db),
		Resolver: &EventResolver{Events: repository.NewEventRepo(db)},
		Log:      log,
	}
}

// ImportPending canonicalizes a batch of raw pending records and returns
// how many new rows were created. A malformed record is skipped and
// logged; it never aborts the batch.
func (e *PendingEngine) ImportPending(ctx context.Context, records []source.RawRecord) (int, error) {
	imported := 0
	for _, rec := range records {
		created, err := e.importOne(ctx, rec)
		if err != nil {
			return imported, err
		}
		if created {
			imported++
		}
	}
	return imported, nil
}

func (e *PendingEngine) importOne(ctx context.Context, rec source.RawRecord) (bool, error) {
	if strings.TrimSpace(rec.SourceIdentifier()) == "" {
		e.Log.Warn().Str("source", string(rec.SourceType())).Msg("pending record missing identifier, skipped")
		return false, nil
	}
	// Zero amounts are not-yet-settled placeholders upstream, not errors.
	if rec.AmountCents() == 0 {
		return false, nil
	}

	existing, err := e.Pending.GetBySourceKey(ctx, rec.SourceType(), rec.SourceIdentifier())
	if err != nil {
		return false, err
	}
	if existing != nil {
		return false, e.refresh(ctx, existing, rec)
	}

	code := hcbcode.Derive(rec.SourceType(), rec.SourceIdentifier())
	t := repository.PendingTransaction{
		HcbCode:          code,
		SourceType:       rec.SourceType(),
		SourceIdentifier: rec.SourceIdentifier(),
		AmountCents:      rec.AmountCents(),
		Date:             rec.Date(),
		Memo:             recordMemo(rec),
		State:            repository.StatePending,
	}
	if ev, err := e.Resolver.Resolve(ctx, rec.Payload(), t.Memo); err != nil {
		return false, err
	} else if ev != nil {
		t.EventID = &ev.ID
	}

	id, err := e.Pending.Insert(ctx, t)
	if err != nil {
		// A concurrent import of the same natural key won the race:
		// re-read and fall through to the update path.
		if isUniqueViolation(err) {
			existing, rerr := e.Pending.GetBySourceKey(ctx, rec.SourceType(), rec.SourceIdentifier())
			if rerr != nil {
				return false, rerr
			}
			if existing != nil {
				return false, e.refresh(ctx, existing, rec)
			}
		}
		return false, err
	}
	if declined(rec) {
		if err := e.Pending.MarkDeclined(ctx, id); err != nil {
			return false, err
		}
	}
	return true, nil
}

// refresh applies the mutable fields of a re-ingested record. Settled
// and declined states are final and never reopened here.
func (e *PendingEngine) refresh(ctx context.Context, existing *repository.PendingTransaction, rec source.RawRecord) error {
	if existing.AmountCents != rec.AmountCents() && existing.State == repository.StatePending {
		if err := e.Pending.UpdateAmount(ctx, existing.ID, rec.AmountCents()); err != nil {
			return err
		}
	}
	if declined(rec) {
		if err := e.Pending.MarkDeclined(ctx, existing.ID); err != nil {
			return err
		}
	}
	if existing.EventID == nil {
		ev, err := e.Resolver.Resolve(ctx, rec.Payload(), existing.Memo)
		if err != nil {
			return err
		}
		if ev != nil {
			if err := e.Pending.AssignEvent(ctx, existing.ID, ev.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

func declined(rec source.RawRecord) bool {
	d, ok := rec.(source.Declinable)
	return ok && d.Declined()
}

func recordMemo(rec source.RawRecord) string {
	if m, ok := stringField(rec.Payload(), "memo"); ok {
		return m
	}
	if m, ok := stringField(rec.Payload(), "merchant"); ok {
		return m
	}
	return ""
}

// sqlite reports natural-key races as UNIQUE constraint failures.
func isUniqueViolation(err error) bool {
	var serr sqlite3.Error
	return errors.As(err, &serr) && serr.ExtendedCode == sqlite3.ErrConstraintUnique
}

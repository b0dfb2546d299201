package engine

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/fiscalhost/ledger/internal/database"
	"github.com/fiscalhost/ledger/internal/database/repository"
	"github.com/fiscalhost/ledger/internal/hcbcode"
	"github.com/fiscalhost/ledger/internal/source"
)

// refKeys maps a bank-feed cross-reference payload key to the pending
// source it points back at. Order matters: the first key present decides
// the HCB code, so the list is fixed.
var refKeys = []struct {
	key    string
	source hcbcode.Source
}{
	{"check_id", hcbcode.SourceOutgoingCheck},
	{"ach_transfer_id", hcbcode.SourceAchTransfer},
	{"invoice_id", hcbcode.SourceInvoice},
	{"donation_id", hcbcode.SourceDonation},
	{"charge_id", hcbcode.SourceCardCharge},
	{"disbursement_id", hcbcode.SourceDisbursement},
}

// SettledEngine folds raw settled records (primarily bank-feed lines)
// into the canonical settled ledger and links them against open pending
// rows. Safe to re-run; creation and matching are both idempotent.
type SettledEngine struct {
	Raw       *repository.RawRecordRepo
	Canonical *repository.CanonicalRepo
	Pending   *repository.PendingRepo
	Resolver  *EventResolver
	Log       zerolog.Logger
}

func NewSettledEngine(db database.DBTX, log zerolog.Logger) *SettledEngine {
	return &SettledEngine{
		Raw:       repository.NewRawRecordRepo(db),
		Canonical: repository.NewCanonicalRepo(db),
		Pending:   repository.NewPendingRepo(db),
		Resolver:  &EventResolver{Events: repository.NewEventRepo(db)},
		Log:       log,
	}
}

// ImportSettled creates one canonical transaction per unique raw settled
// record and returns how many were created.
func (e *SettledEngine) ImportSettled(ctx context.Context, records []source.RawRecord) (int, error) {
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

func (e *SettledEngine) importOne(ctx context.Context, rec source.RawRecord) (bool, error) {
	if strings.TrimSpace(rec.SourceIdentifier()) == "" {
		e.Log.Warn().Str("source", string(rec.SourceType())).Msg("settled record missing identifier, skipped")
		return false, nil
	}

	existing, err := e.Canonical.GetBySourceKey(ctx, rec.SourceType(), rec.SourceIdentifier())
	if err != nil {
		return false, err
	}
	if existing != nil {
		// Settled rows are immutable once written; a late event
		// resolution is the only allowed touch.
		if existing.EventID == nil {
			if err := e.assignEvent(ctx, existing.ID, rec); err != nil {
				return false, err
			}
		}
		return false, nil
	}

	code, err := e.codeFor(ctx, rec)
	if err != nil {
		return false, err
	}
	t := repository.CanonicalTransaction{
		HcbCode:          code,
		SourceType:       rec.SourceType(),
		SourceIdentifier: rec.SourceIdentifier(),
		AmountCents:      rec.AmountCents(),
		Date:             rec.Date(),
		Memo:             recordMemo(rec),
	}
	if ev, err := e.Resolver.Resolve(ctx, rec.Payload(), t.Memo); err != nil {
		return false, err
	} else if ev != nil {
		t.EventID = &ev.ID
	}

	if _, err := e.Canonical.Insert(ctx, t); err != nil {
		if isUniqueViolation(err) {
			// concurrent import won; nothing left to do, the row exists
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// codeFor reuses the pending side's HCB code when the record carries a
// cross-reference, and mints a sequence code otherwise. Minting only
// happens on first sight of a record, so re-runs never burn sequence
// numbers for rows that already exist.
func (e *SettledEngine) codeFor(ctx context.Context, rec source.RawRecord) (string, error) {
	payload := rec.Payload()
	for _, ref := range refKeys {
		if id, ok := stringField(payload, ref.key); ok {
			return hcbcode.Derive(ref.source, id), nil
		}
	}
	if rec.SourceType() != hcbcode.SourceBankFeed {
		// Non-feed settled sources reference themselves.
		return hcbcode.Derive(rec.SourceType(), rec.SourceIdentifier()), nil
	}
	n, err := e.Raw.NextHcbSequence(ctx)
	if err != nil {
		return "", err
	}
	return hcbcode.MintSequence(n), nil
}

func (e *SettledEngine) assignEvent(ctx context.Context, id int64, rec source.RawRecord) error {
	ev, err := e.Resolver.Resolve(ctx, rec.Payload(), recordMemo(rec))
	if err != nil || ev == nil {
		return err
	}
	return e.Canonical.AssignEvent(ctx, id, ev.ID)
}

// SettleAgainstPending links unlinked settled rows to open pending rows
// sharing their HCB code. Amounts must match exactly; when several
// pending rows qualify the earliest created wins. Already-settled
// pending rows are invisible here, so re-running is a no-op.
func (e *SettledEngine) SettleAgainstPending(ctx context.Context) (int, error) {
	unlinked, err := e.Canonical.ListUnlinked(ctx)
	if err != nil {
		return 0, err
	}
	matched := 0
	for _, ct := range unlinked {
		candidates, err := e.Pending.OpenByHcbCode(ctx, ct.HcbCode)
		if err != nil {
			return matched, err
		}
		for _, p := range candidates {
			if p.AmountCents != ct.AmountCents {
				continue
			}
			ok, err := e.Pending.MarkSettled(ctx, p.ID)
			if err != nil {
				return matched, err
			}
			if !ok {
				continue
			}
			if err := e.Canonical.LinkPending(ctx, ct.ID, p.ID); err != nil {
				return matched, err
			}
			// settled row inherits the pending side's event when it
			// could not resolve one itself
			if ct.EventID == nil && p.EventID != nil {
				if err := e.Canonical.AssignEvent(ctx, ct.ID, *p.EventID); err != nil {
					return matched, err
				}
			}
			matched++
			break
		}
	}
	return matched, nil
}

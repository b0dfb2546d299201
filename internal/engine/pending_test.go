package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fiscalhost/ledger/internal/database/repository"
	"github.com/fiscalhost/ledger/internal/hcbcode"
	"github.com/fiscalhost/ledger/internal/source"
)

func TestImportPendingCreatesRow(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := newTestDB(t)
	eng := NewPendingEngine(db, nopLog())

	check := source.OutgoingCheck{CheckID: "CHK-100", Amount: 5000, MailedAt: testDate(1), Memo: "venue deposit"}
	n, err := eng.ImportPending(ctx, []source.RawRecord{check})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	pt, err := eng.Pending.GetBySourceKey(ctx, hcbcode.SourceOutgoingCheck, "CHK-100")
	require.NoError(t, err)
	require.NotNil(t, pt)
	require.Equal(t, "HCB-400-CHK-100", pt.HcbCode)
	require.Equal(t, int64(5000), pt.AmountCents)
	require.Equal(t, repository.StatePending, pt.State)
	require.Equal(t, "venue deposit", pt.Memo)
	require.Nil(t, pt.EventID)
}

func TestImportPendingIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := newTestDB(t)
	eng := NewPendingEngine(db, nopLog())

	records := []source.RawRecord{
		source.Invoice{InvoiceID: "inv_1", AmountDue: 2500, CreatedAt: testDate(2)},
		source.Invoice{InvoiceID: "inv_2", AmountDue: 900, CreatedAt: testDate(3)},
	}
	n, err := eng.ImportPending(ctx, records)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	// re-running with the same input must not create duplicates or
	// change final state
	n, err = eng.ImportPending(ctx, records)
	require.NoError(t, err)
	require.Equal(t, 0, n)

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM canonical_pending_transactions`).Scan(&count))
	require.Equal(t, 2, count)
}

func TestImportPendingSkipsZeroAmount(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := newTestDB(t)
	eng := NewPendingEngine(db, nopLog())

	n, err := eng.ImportPending(ctx, []source.RawRecord{
		source.Invoice{InvoiceID: "inv_zero", AmountDue: 0, CreatedAt: testDate(1)},
	})
	require.NoError(t, err)
	require.Equal(t, 0, n)

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM canonical_pending_transactions`).Scan(&count))
	require.Equal(t, 0, count)
}

func TestImportPendingSkipsMissingIdentifier(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := newTestDB(t)
	eng := NewPendingEngine(db, nopLog())

	// one bad record must not abort the batch
	n, err := eng.ImportPending(ctx, []source.RawRecord{
		source.Invoice{InvoiceID: "  ", AmountDue: 100, CreatedAt: testDate(1)},
		source.Invoice{InvoiceID: "inv_ok", AmountDue: 100, CreatedAt: testDate(1)},
	})
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestImportPendingAmountCorrection(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := newTestDB(t)
	eng := NewPendingEngine(db, nopLog())

	_, err := eng.ImportPending(ctx, []source.RawRecord{
		source.AchTransfer{TransferID: "ach_1", Amount: 1000, ScheduledAt: testDate(4)},
	})
	require.NoError(t, err)

	_, err = eng.ImportPending(ctx, []source.RawRecord{
		source.AchTransfer{TransferID: "ach_1", Amount: 1200, ScheduledAt: testDate(4)},
	})
	require.NoError(t, err)

	pt, err := eng.Pending.GetBySourceKey(ctx, hcbcode.SourceAchTransfer, "ach_1")
	require.NoError(t, err)
	require.Equal(t, int64(1200), pt.AmountCents)
	require.Equal(t, repository.StatePending, pt.State)
}

func TestImportPendingDeclineIsTerminal(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := newTestDB(t)
	eng := NewPendingEngine(db, nopLog())

	_, err := eng.ImportPending(ctx, []source.RawRecord{
		source.CardCharge{ChargeID: "ch_1", Amount: -700, AuthedAt: testDate(5), Merchant: "STICKER MULE"},
	})
	require.NoError(t, err)

	_, err = eng.ImportPending(ctx, []source.RawRecord{
		source.CardCharge{ChargeID: "ch_1", Amount: -700, AuthedAt: testDate(5), Merchant: "STICKER MULE", IsDeclined: true},
	})
	require.NoError(t, err)

	pt, err := eng.Pending.GetBySourceKey(ctx, hcbcode.SourceCardCharge, "ch_1")
	require.NoError(t, err)
	require.Equal(t, repository.StateDeclined, pt.State)

	// later re-ingest without the declined flag must not revive it
	_, err = eng.ImportPending(ctx, []source.RawRecord{
		source.CardCharge{ChargeID: "ch_1", Amount: -700, AuthedAt: testDate(5), Merchant: "STICKER MULE"},
	})
	require.NoError(t, err)
	pt, err = eng.Pending.GetBySourceKey(ctx, hcbcode.SourceCardCharge, "ch_1")
	require.NoError(t, err)
	require.Equal(t, repository.StateDeclined, pt.State)
}

func TestImportPendingResolvesEvent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := newTestDB(t)
	ev := seedEvent(t, db, "Hack Night", "hack-night")
	eng := NewPendingEngine(db, nopLog())

	_, err := eng.ImportPending(ctx, []source.RawRecord{
		source.Invoice{InvoiceID: "inv_ev", AmountDue: 4200, CreatedAt: testDate(6), EventID: ev.ID},
	})
	require.NoError(t, err)

	pt, err := eng.Pending.GetBySourceKey(ctx, hcbcode.SourceInvoice, "inv_ev")
	require.NoError(t, err)
	require.NotNil(t, pt.EventID)
	require.Equal(t, ev.ID, *pt.EventID)
}

func TestImportPendingResolvesEventOnLaterPass(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := newTestDB(t)
	eng := NewPendingEngine(db, nopLog())

	charge := source.CardCharge{ChargeID: "ch_card", Amount: -1500, AuthedAt: testDate(7), CardID: "card_ext_1"}
	_, err := eng.ImportPending(ctx, []source.RawRecord{charge})
	require.NoError(t, err)

	pt, err := eng.Pending.GetBySourceKey(ctx, hcbcode.SourceCardCharge, "ch_card")
	require.NoError(t, err)
	require.Nil(t, pt.EventID)

	// card shows up later; the next pass maps the charge
	ev := seedEvent(t, db, "Robotics", "robotics")
	seedCard(t, db, "card_ext_1", ev.ID)

	_, err = eng.ImportPending(ctx, []source.RawRecord{charge})
	require.NoError(t, err)
	pt, err = eng.Pending.GetBySourceKey(ctx, hcbcode.SourceCardCharge, "ch_card")
	require.NoError(t, err)
	require.NotNil(t, pt.EventID)
	require.Equal(t, ev.ID, *pt.EventID)
}

func TestUniqueViolationDetection(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := newTestDB(t)
	eng := NewPendingEngine(db, nopLog())

	row := repository.PendingTransaction{
		HcbCode:          "HCB-100-inv_u",
		SourceType:       hcbcode.SourceInvoice,
		SourceIdentifier: "inv_u",
		AmountCents:      100,
		Date:             testDate(1),
		State:            repository.StatePending,
	}
	_, err := eng.Pending.Insert(ctx, row)
	require.NoError(t, err)
	_, err = eng.Pending.Insert(ctx, row)
	require.Error(t, err)
	require.True(t, isUniqueViolation(err))

	// only the driver's typed constraint error qualifies
	require.False(t, isUniqueViolation(errors.New("UNIQUE constraint failed")))
	require.False(t, isUniqueViolation(nil))
}

func TestPendingDatesSurviveRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := newTestDB(t)
	eng := NewPendingEngine(db, nopLog())

	when := time.Date(2026, 3, 9, 17, 30, 0, 0, time.UTC)
	_, err := eng.ImportPending(ctx, []source.RawRecord{
		source.Donation{DonationID: "don_1", Amount: 100, ReceivedAt: when},
	})
	require.NoError(t, err)

	pt, err := eng.Pending.GetBySourceKey(ctx, hcbcode.SourceDonation, "don_1")
	require.NoError(t, err)
	require.True(t, pt.Date.Equal(when))
}

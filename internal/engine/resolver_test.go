package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fiscalhost/ledger/internal/database/repository"
)

func TestResolveByExplicitEventID(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := newTestDB(t)
	ev := seedEvent(t, db, "Assemble", "assemble")
	r := &EventResolver{Events: repository.NewEventRepo(db)}

	got, err := r.Resolve(ctx, map[string]any{"event_id": ev.ID}, "")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, ev.ID, got.ID)
}

func TestResolveByCard(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := newTestDB(t)
	ev := seedEvent(t, db, "Zephyr", "zephyr")
	seedCard(t, db, "card_77", ev.ID)
	r := &EventResolver{Events: repository.NewEventRepo(db)}

	got, err := r.Resolve(ctx, map[string]any{"card_id": "card_77"}, "")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, ev.ID, got.ID)
}

func TestResolveByDisbursementMemo(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := newTestDB(t)
	ev := seedEvent(t, db, "Epoch", "epoch")
	r := &EventResolver{Events: repository.NewEventRepo(db)}

	got, err := r.Resolve(ctx, map[string]any{}, "HCB DISBURSE epoch weekly transfer")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, ev.ID, got.ID)
}

func TestResolveToleratesMangledSignature(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := newTestDB(t)
	ev := seedEvent(t, db, "Epoch", "epoch")
	r := &EventResolver{Events: repository.NewEventRepo(db)}

	// feeds sometimes truncate or garble a character
	got, err := r.Resolve(ctx, map[string]any{}, "HCB DISBURS epoch weekly transfer")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, ev.ID, got.ID)
}

func TestResolveRejectsUnrelatedMemo(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := newTestDB(t)
	seedEvent(t, db, "Epoch", "epoch")
	r := &EventResolver{Events: repository.NewEventRepo(db)}

	got, err := r.Resolve(ctx, map[string]any{}, "ACME PAYROLL epoch something")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestResolveChainOrder(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := newTestDB(t)
	explicit := seedEvent(t, db, "Explicit", "explicit")
	viaCard := seedEvent(t, db, "Via Card", "via-card")
	seedCard(t, db, "card_x", viaCard.ID)
	r := &EventResolver{Events: repository.NewEventRepo(db)}

	// explicit id beats the card lookup
	got, err := r.Resolve(ctx, map[string]any{"event_id": explicit.ID, "card_id": "card_x"}, "")
	require.NoError(t, err)
	require.Equal(t, explicit.ID, got.ID)

	// stale explicit id falls through to the card
	got, err = r.Resolve(ctx, map[string]any{"event_id": "gone", "card_id": "card_x"}, "")
	require.NoError(t, err)
	require.Equal(t, viaCard.ID, got.ID)
}

func TestResolveUnmappedIsNotAnError(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := newTestDB(t)
	r := &EventResolver{Events: repository.NewEventRepo(db)}

	got, err := r.Resolve(ctx, map[string]any{}, "")
	require.NoError(t, err)
	require.Nil(t, got)
}

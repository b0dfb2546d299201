// Package view is the read side of the ledger: a pure fold over the
// pending and settled tables. It performs no writes and takes no locks.
package view

import (
	"context"
	"time"

	"github.com/fiscalhost/ledger/internal/database"
	"github.com/fiscalhost/ledger/internal/hcbcode"
)

const (
	// DefaultPageSize applies when a request does not name a size.
	DefaultPageSize = 25
	// MaxPageSize caps any requested size.
	MaxPageSize = 100
)

// Page is one-based pagination applied after sorting.
type Page struct {
	Number int
	Size   int
}

func (p Page) normalize() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Size <= 0 {
		p.Size = DefaultPageSize
	}
	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
	return p
}

func (p Page) offset() int { return (p.Number - 1) * p.Size }

// Entry is one unified-ledger row. ID addresses the row within its
// ledger; Settled says which ledger that is.
type Entry struct {
	ID          int64
	HcbCode     string
	AmountCents int64
	Date        time.Time
	State       string
	Settled     bool
	SourceType  hcbcode.Source
	Memo        string
}

// Ledger reads both canonical tables as one ordered sequence.
type Ledger struct {
	db database.DBTX
}

func New(db database.DBTX) *Ledger { return &Ledger{db: db} }

// foldQuery unions both ledgers for one event. A settled transaction
// supersedes the pending row it fulfills, so a movement never appears
// twice within one fold. Superseding requires the settled row to sit in
// the same event and either carry the back-reference or match the amount
// exactly; an amount-mismatched or foreign settled row stands alone and
// leaves the pending row visible. Declined rows are listed only when
// asked for.
const foldQuery = `
	SELECT id, hcb_code, amount_cents, date, 'settled' AS state, 1 AS settled, source_type, memo
	FROM canonical_transactions
	WHERE event_id = ?
	UNION ALL
	SELECT p.id, p.hcb_code, p.amount_cents, p.date, p.state, 0, p.source_type, p.memo
	FROM canonical_pending_transactions p
	WHERE p.event_id = ?
	  AND (p.state = 'pending' OR (? AND p.state = 'declined'))
	  AND NOT EXISTS (
	    SELECT 1 FROM canonical_transactions c
	    WHERE c.hcb_code = p.hcb_code
	      AND c.event_id = p.event_id
	      AND (c.pending_transaction_id = p.id OR c.amount_cents = p.amount_cents)
	  )`

// List returns one page of the event's unified ledger, sorted by date
// descending, plus the total row count independent of the page slice.
func (l *Ledger) List(ctx context.Context, eventID string, page Page) ([]Entry, int, error) {
	return l.list(ctx, eventID, page, false)
}

// ListWithDeclined additionally surfaces declined pending rows. They
// never contribute to balances.
func (l *Ledger) ListWithDeclined(ctx context.Context, eventID string, page Page) ([]Entry, int, error) {
	return l.list(ctx, eventID, page, true)
}

func (l *Ledger) list(ctx context.Context, eventID string, page Page, includeDeclined bool) ([]Entry, int, error) {
	page = page.normalize()

	var total int
	countQuery := `SELECT COUNT(*) FROM (` + foldQuery + `)`
	if err := l.db.QueryRowContext(ctx, countQuery, eventID, eventID, includeDeclined).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := foldQuery + ` ORDER BY date DESC, hcb_code DESC LIMIT ? OFFSET ?`
	rows, err := l.db.QueryContext(ctx, query, eventID, eventID, includeDeclined, page.Size, page.offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var settled int
		var src string
		if err := rows.Scan(&e.ID, &e.HcbCode, &e.AmountCents, &e.Date, &e.State, &settled, &src, &e.Memo); err != nil {
			return nil, 0, err
		}
		e.Settled = settled != 0
		e.SourceType = hcbcode.Source(src)
		out = append(out, e)
	}
	return out, total, rows.Err()
}

// Balance computes the event's running totals on demand from the
// canonical tables. SettledCents is finalized money; PendingCents is the
// open-authorization hold. Declined rows count toward neither.
type Balance struct {
	SettledCents int64
	PendingCents int64
}

func (b Balance) TotalCents() int64 { return b.SettledCents + b.PendingCents }

func (l *Ledger) Balance(ctx context.Context, eventID string) (Balance, error) {
	var b Balance
	err := l.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount_cents), 0) FROM canonical_transactions WHERE event_id = ?`,
		eventID).Scan(&b.SettledCents)
	if err != nil {
		return Balance{}, err
	}
	err = l.db.QueryRowContext(ctx, `
	SELECT COALESCE(SUM(p.amount_cents), 0)
	FROM canonical_pending_transactions p
	WHERE p.event_id = ? AND p.state = 'pending'
	  AND NOT EXISTS (
	    SELECT 1 FROM canonical_transactions c
	    WHERE c.hcb_code = p.hcb_code
	      AND c.event_id = p.event_id
	      AND (c.pending_transaction_id = p.id OR c.amount_cents = p.amount_cents)
	  )`,
		eventID).Scan(&b.PendingCents)
	if err != nil {
		return Balance{}, err
	}
	return b, nil
}

package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fiscalhost/ledger/internal/database"
	"github.com/fiscalhost/ledger/internal/hcbcode"
)

// PendingRepo handles the canonical pending ledger.
type PendingRepo struct {
	db database.DBTX
}

func NewPendingRepo(db database.DBTX) *PendingRepo { return &PendingRepo{db: db} }

func (r *PendingRepo) Insert(ctx context.Context, t PendingTransaction) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
	INSERT INTO canonical_pending_transactions(
	 hcb_code, event_id, source_type, source_identifier, amount_cents, date, memo, state, created_at, updated_at)
	VALUES(?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	`, t.HcbCode, t.EventID, string(t.SourceType), t.SourceIdentifier, t.AmountCents, t.Date, t.Memo, t.State)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetBySourceKey looks up by natural key, returning nil when absent.
func (r *PendingRepo) GetBySourceKey(ctx context.Context, sourceType hcbcode.Source, sourceIdentifier string) (*PendingTransaction, error) {
	row := r.db.QueryRowContext(ctx, pendingSelect+` WHERE source_type = ? AND source_identifier = ?`,
		string(sourceType), sourceIdentifier)
	return scanPendingPtr(row)
}

func (r *PendingRepo) Get(ctx context.Context, id int64) (*PendingTransaction, error) {
	row := r.db.QueryRowContext(ctx, pendingSelect+` WHERE id = ?`, id)
	return scanPendingPtr(row)
}

// UpdateAmount applies an amount correction from a re-ingested raw record.
func (r *PendingRepo) UpdateAmount(ctx context.Context, id int64, amountCents int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE canonical_pending_transactions SET amount_cents = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		amountCents, id)
	return err
}

// MarkDeclined is terminal: it only transitions rows still in state
// pending, so a settled row can never be declined afterwards.
func (r *PendingRepo) MarkDeclined(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE canonical_pending_transactions SET state = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND state = ?`,
		StateDeclined, id, StatePending)
	return err
}

// MarkSettled transitions pending -> settled. Rows already settled or
// declined are left untouched; the returned bool reports whether the
// transition happened.
func (r *PendingRepo) MarkSettled(ctx context.Context, id int64) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE canonical_pending_transactions SET state = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND state = ?`,
		StateSettled, id, StatePending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *PendingRepo) AssignEvent(ctx context.Context, id int64, eventID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE canonical_pending_transactions SET event_id = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		eventID, id)
	return err
}

// OpenByHcbCode returns unresolved pending rows for a code, earliest
// created first. The settlement matcher relies on this ordering for its
// tie-break.
func (r *PendingRepo) OpenByHcbCode(ctx context.Context, hcbCode string) ([]PendingTransaction, error) {
	rows, err := r.db.QueryContext(ctx, pendingSelect+
		` WHERE hcb_code = ? AND state = ? ORDER BY created_at ASC, id ASC`,
		hcbCode, StatePending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPending(rows)
}

// ListUnmapped returns undeclined pending rows with no owning event, the
// admin "under review" queue.
func (r *PendingRepo) ListUnmapped(ctx context.Context) ([]PendingTransaction, error) {
	rows, err := r.db.QueryContext(ctx, pendingSelect+
		` WHERE event_id IS NULL AND state != ? ORDER BY date DESC, id DESC`, StateDeclined)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPending(rows)
}

const pendingSelect = `
	SELECT id, hcb_code, event_id, source_type, source_identifier, amount_cents, date, memo, state, created_at, updated_at
	FROM canonical_pending_transactions`

func collectPending(rows *sql.Rows) ([]PendingTransaction, error) {
	var out []PendingTransaction
	for rows.Next() {
		t, err := scanPending(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanPending(row scanner) (PendingTransaction, error) {
	var t PendingTransaction
	var event sql.NullString
	var src string
	if err := row.Scan(&t.ID, &t.HcbCode, &event, &src, &t.SourceIdentifier, &t.AmountCents,
		&t.Date, &t.Memo, &t.State, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return PendingTransaction{}, err
	}
	t.SourceType = hcbcode.Source(src)
	if event.Valid {
		t.EventID = &event.String
	}
	return t, nil
}

func scanPendingPtr(row *sql.Row) (*PendingTransaction, error) {
	t, err := scanPending(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan pending transaction: %w", err)
	}
	return &t, nil
}

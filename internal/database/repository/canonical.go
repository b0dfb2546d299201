package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fiscalhost/ledger/internal/database"
	"github.com/fiscalhost/ledger/internal/hcbcode"
)

// CanonicalRepo handles the settled ledger.
type CanonicalRepo struct {
	db database.DBTX
}

func NewCanonicalRepo(db database.DBTX) *CanonicalRepo { return &CanonicalRepo{db: db} }

func (r *CanonicalRepo) Insert(ctx context.Context, t CanonicalTransaction) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
	INSERT INTO canonical_transactions(
	 hcb_code, event_id, source_type, source_identifier, amount_cents, date, memo, pending_transaction_id, created_at, updated_at)
	VALUES(?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	`, t.HcbCode, t.EventID, string(t.SourceType), t.SourceIdentifier, t.AmountCents, t.Date, t.Memo, t.PendingTransactionID)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r *CanonicalRepo) GetBySourceKey(ctx context.Context, sourceType hcbcode.Source, sourceIdentifier string) (*CanonicalTransaction, error) {
	row := r.db.QueryRowContext(ctx, canonicalSelect+` WHERE source_type = ? AND source_identifier = ?`,
		string(sourceType), sourceIdentifier)
	return scanCanonicalPtr(row)
}

func (r *CanonicalRepo) Get(ctx context.Context, id int64) (*CanonicalTransaction, error) {
	row := r.db.QueryRowContext(ctx, canonicalSelect+` WHERE id = ?`, id)
	return scanCanonicalPtr(row)
}

// LinkPending sets the permanent back-reference to the pending row this
// settled transaction fulfills. Once set it is never overwritten.
func (r *CanonicalRepo) LinkPending(ctx context.Context, id, pendingID int64) error {
	_, err := r.db.ExecContext(ctx, `
	UPDATE canonical_transactions SET pending_transaction_id = ?, updated_at = CURRENT_TIMESTAMP
	WHERE id = ? AND pending_transaction_id IS NULL`, pendingID, id)
	return err
}

func (r *CanonicalRepo) AssignEvent(ctx context.Context, id int64, eventID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE canonical_transactions SET event_id = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		eventID, id)
	return err
}

// ListUnlinked returns settled rows that have not been matched against a
// pending entry yet; the settle-against-pending step walks these.
func (r *CanonicalRepo) ListUnlinked(ctx context.Context) ([]CanonicalTransaction, error) {
	rows, err := r.db.QueryContext(ctx, canonicalSelect+
		` WHERE pending_transaction_id IS NULL ORDER BY date ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectCanonical(rows)
}

// ListUnmapped returns settled rows with no owning event.
func (r *CanonicalRepo) ListUnmapped(ctx context.Context) ([]CanonicalTransaction, error) {
	rows, err := r.db.QueryContext(ctx, canonicalSelect+
		` WHERE event_id IS NULL ORDER BY date DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectCanonical(rows)
}

const canonicalSelect = `
	SELECT id, hcb_code, event_id, source_type, source_identifier, amount_cents, date, memo, pending_transaction_id, created_at, updated_at
	FROM canonical_transactions`

func collectCanonical(rows *sql.Rows) ([]CanonicalTransaction, error) {
	var out []CanonicalTransaction
	for rows.Next() {
		t, err := scanCanonical(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanCanonical(row scanner) (CanonicalTransaction, error) {
	var t CanonicalTransaction
	var event sql.NullString
	var pendingID sql.NullInt64
	var src string
	if err := row.Scan(&t.ID, &t.HcbCode, &event, &src, &t.SourceIdentifier, &t.AmountCents,
		&t.Date, &t.Memo, &pendingID, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return CanonicalTransaction{}, err
	}
	t.SourceType = hcbcode.Source(src)
	if event.Valid {
		t.EventID = &event.String
	}
	if pendingID.Valid {
		t.PendingTransactionID = &pendingID.Int64
	}
	return t, nil
}

func scanCanonicalPtr(row *sql.Row) (*CanonicalTransaction, error) {
	t, err := scanCanonical(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan canonical transaction: %w", err)
	}
	return &t, nil
}

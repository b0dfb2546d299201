package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/fiscalhost/ledger/internal/database"
	"github.com/fiscalhost/ledger/internal/hcbcode"
)

// RawRecordRepo stores unmodified ingestion snapshots.
type RawRecordRepo struct {
	db database.DBTX
}

func NewRawRecordRepo(db database.DBTX) *RawRecordRepo { return &RawRecordRepo{db: db} }

// Upsert writes a snapshot keyed by (source_type, source_identifier).
// Re-ingesting the same external id updates in place, never duplicates.
func (r *RawRecordRepo) Upsert(ctx context.Context, rec RawRecord) error {
	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	_, err = r.db.ExecContext(ctx, `
	INSERT INTO raw_records(id, source_type, source_identifier, amount_cents, date, payload, declined, created_at, updated_at)
	VALUES(?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	ON CONFLICT(source_type, source_identifier) DO UPDATE SET
	 amount_cents = excluded.amount_cents,
	 date = excluded.date,
	 payload = excluded.payload,
	 declined = excluded.declined,
	 updated_at = CURRENT_TIMESTAMP
	`, rec.ID, string(rec.SourceType), rec.SourceIdentifier, rec.AmountCents, rec.Date, string(payload), rec.Declined)
	return err
}

// Get returns the snapshot for a natural key, or nil when absent.
func (r *RawRecordRepo) Get(ctx context.Context, sourceType hcbcode.Source, sourceIdentifier string) (*RawRecord, error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT id, source_type, source_identifier, amount_cents, date, payload, declined, created_at, updated_at
	FROM raw_records WHERE source_type = ? AND source_identifier = ?`,
		string(sourceType), sourceIdentifier)
	rec, err := scanRawRecord(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// ListBySource returns every snapshot for one source ordered by date then
// identifier, which keeps engine runs deterministic.
func (r *RawRecordRepo) ListBySource(ctx context.Context, sourceType hcbcode.Source) ([]RawRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT id, source_type, source_identifier, amount_cents, date, payload, declined, created_at, updated_at
	FROM raw_records WHERE source_type = ? ORDER BY date ASC, source_identifier ASC`,
		string(sourceType))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RawRecord
	for rows.Next() {
		rec, err := scanRawRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanRawRecord(row scanner) (RawRecord, error) {
	var rec RawRecord
	var src, payload string
	var declined int
	if err := row.Scan(&rec.ID, &src, &rec.SourceIdentifier, &rec.AmountCents, &rec.Date,
		&payload, &declined, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return RawRecord{}, err
	}
	rec.SourceType = hcbcode.Source(src)
	rec.Declined = declined != 0
	if err := json.Unmarshal([]byte(payload), &rec.Payload); err != nil {
		return RawRecord{}, fmt.Errorf("payload for %s/%s: %w", src, rec.SourceIdentifier, err)
	}
	return rec, nil
}

// scanner handles both Row and Rows.
type scanner interface {
	Scan(dest ...any) error
}

// NextHcbSequence mints the next value of the durable sequence used for
// codes with no natural identifier.
func (r *RawRecordRepo) NextHcbSequence(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `INSERT INTO hcb_code_seq(minted_at) VALUES(CURRENT_TIMESTAMP)`)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

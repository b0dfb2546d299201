package repository

import (
	"context"
	"database/sql"

	"github.com/fiscalhost/ledger/internal/database"
	"github.com/fiscalhost/ledger/internal/hcbcode"
)

// CheckpointRepo persists per-source ingestion cursors so sync jobs make
// incremental progress across runs.
type CheckpointRepo struct {
	db database.DBTX
}

func NewCheckpointRepo(db database.DBTX) *CheckpointRepo { return &CheckpointRepo{db: db} }

// Get returns the stored checkpoint, or "" when the source has never
// been synced.
func (r *CheckpointRepo) Get(ctx context.Context, sourceType hcbcode.Source) (string, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT checkpoint FROM source_checkpoints WHERE source_type = ?`, string(sourceType))
	var cp string
	if err := row.Scan(&cp); err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", err
	}
	return cp, nil
}

func (r *CheckpointRepo) Set(ctx context.Context, sourceType hcbcode.Source, checkpoint string) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO source_checkpoints(source_type, checkpoint, updated_at) VALUES(?, ?, CURRENT_TIMESTAMP)
	ON CONFLICT(source_type) DO UPDATE SET checkpoint = excluded.checkpoint, updated_at = CURRENT_TIMESTAMP
	`, string(sourceType), checkpoint)
	return err
}

package repository

import (
	"context"
	"database/sql"

	"github.com/fiscalhost/ledger/internal/database"
)

// EventRepo handles organizations and their issued cards.
type EventRepo struct {
	db database.DBTX
}

func NewEventRepo(db database.DBTX) *EventRepo { return &EventRepo{db: db} }

func (r *EventRepo) Upsert(ctx context.Context, e Event) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO events(id, name, slug, created_at) VALUES(?, ?, ?, CURRENT_TIMESTAMP)
	ON CONFLICT(slug) DO UPDATE SET name = excluded.name
	`, e.ID, e.Name, e.Slug)
	return err
}

func (r *EventRepo) Get(ctx context.Context, id string) (*Event, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, name, slug, created_at FROM events WHERE id = ?`, id)
	var e Event
	if err := row.Scan(&e.ID, &e.Name, &e.Slug, &e.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

func (r *EventRepo) GetBySlug(ctx context.Context, slug string) (*Event, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, name, slug, created_at FROM events WHERE slug = ?`, slug)
	var e Event
	if err := row.Scan(&e.ID, &e.Name, &e.Slug, &e.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

func (r *EventRepo) List(ctx context.Context) ([]Event, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, slug, created_at FROM events ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.Name, &e.Slug, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *EventRepo) UpsertCard(ctx context.Context, c Card) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO cards(id, external_id, event_id, last4, created_at) VALUES(?, ?, ?, ?, CURRENT_TIMESTAMP)
	ON CONFLICT(external_id) DO UPDATE SET event_id = excluded.event_id, last4 = excluded.last4
	`, c.ID, c.ExternalID, c.EventID, c.Last4)
	return err
}

// CardByExternalID resolves a processor-side card id, or nil when the
// card is not known to us.
func (r *EventRepo) CardByExternalID(ctx context.Context, externalID string) (*Card, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, external_id, event_id, last4, created_at FROM cards WHERE external_id = ?`, externalID)
	var c Card
	var last4 sql.NullString
	if err := row.Scan(&c.ID, &c.ExternalID, &c.EventID, &last4, &c.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if last4.Valid {
		c.Last4 = &last4.String
	}
	return &c, nil
}

package engine

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/fiscalhost/ledger/internal/database"
	"github.com/fiscalhost/ledger/internal/database/repository"
	"github.com/fiscalhost/ledger/internal/source"
)

// Ingestor pulls a provider feed forward from its stored checkpoint and
// snapshots the records into the raw store. Feeds may re-deliver old
// records; the upsert keeps that harmless.
type Ingestor struct {
	Raw         *repository.RawRecordRepo
	Checkpoints *repository.CheckpointRepo
	Log         zerolog.Logger
}

func NewIngestor(db database.DBTX, log zerolog.Logger) *Ingestor {
	return &Ingestor{
		Raw:         repository.NewRawRecordRepo(db),
		Checkpoints: repository.NewCheckpointRepo(db),
		Log:         log,
	}
}

// Sync fetches new records from one feed and stores them, advancing the
// checkpoint only after the whole batch is written.
func (i *Ingestor) Sync(ctx context.Context, feed source.Feed) (int, error) {
	cp, err := i.Checkpoints.Get(ctx, feed.Source())
	if err != nil {
		return 0, fmt.Errorf("checkpoint for %s: %w", feed.Source(), err)
	}
	records, next, err := feed.FetchNewRecords(ctx, cp)
	if err != nil {
		return 0, fmt.Errorf("fetch %s: %w", feed.Source(), err)
	}

	stored, err := i.Store(ctx, records)
	if err != nil {
		return stored, err
	}
	if next != cp {
		if err := i.Checkpoints.Set(ctx, feed.Source(), next); err != nil {
			return stored, err
		}
	}
	i.Log.Info().Str("source", string(feed.Source())).Int("records", stored).Msg("source synced")
	return stored, nil
}

// Store snapshots records directly, used both by Sync and by the
// dispatch path that records a submission it just made.
func (i *Ingestor) Store(ctx context.Context, records []source.RawRecord) (int, error) {
	stored := 0
	for _, rec := range records {
		if rec.SourceIdentifier() == "" {
			i.Log.Warn().Str("source", string(rec.SourceType())).Msg("record missing identifier, skipped")
			continue
		}
		err := i.Raw.Upsert(ctx, repository.RawRecord{
			SourceType:       rec.SourceType(),
			SourceIdentifier: rec.SourceIdentifier(),
			AmountCents:      rec.AmountCents(),
			Date:             rec.Date(),
			Payload:          rec.Payload(),
			Declined:         declined(rec),
		})
		if err != nil {
			return stored, fmt.Errorf("store %s/%s: %w", rec.SourceType(), rec.SourceIdentifier(), err)
		}
		stored++
	}
	return stored, nil
}

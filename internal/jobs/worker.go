package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Worker polls the queue and runs handlers. Engine-level retry is
// deliberately absent: a failed job is requeued whole and the handlers
// are idempotent, so partial completion is safe to repeat.
type Worker struct {
	Queue        *Queue
	PollInterval time.Duration
	Log          zerolog.Logger

	handlers map[JobType]Handler
}

// Register installs the handler for a job type. Must be called before
// Start.
func (w *Worker) Register(jobType JobType, h Handler) {
	if w.handlers == nil {
		w.handlers = make(map[JobType]Handler)
	}
	w.handlers[jobType] = h
}

// Start blocks, draining the queue and then polling, until ctx is done.
func (w *Worker) Start(ctx context.Context) error {
	interval := w.PollInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := w.drain(ctx); err != nil {
			w.Log.Error().Err(err).Msg("queue drain failed")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// drain claims and runs jobs until the queue is empty.
func (w *Worker) drain(ctx context.Context) error {
	for {
		job, err := w.Queue.ClaimNext(ctx)
		if err != nil {
			return err
		}
		if job == nil {
			return nil
		}
		w.runOne(ctx, *job)

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

func (w *Worker) runOne(ctx context.Context, job Job) {
	log := w.Log.With().Str("job_id", job.ID).Str("job_type", string(job.Type)).Logger()

	h, ok := w.handlers[job.Type]
	if !ok {
		err := fmt.Errorf("no handler registered for %s", job.Type)
		log.Error().Err(err).Msg("job dropped")
		if merr := w.Queue.MarkFailed(ctx, job.ID, err); merr != nil {
			log.Error().Err(merr).Msg("mark failed errored")
		}
		return
	}

	if err := h(ctx, job); err != nil {
		log.Error().Err(err).Int("retry_count", job.RetryCount).Msg("job failed")
		if merr := w.Queue.MarkFailed(ctx, job.ID, err); merr != nil {
			log.Error().Err(merr).Msg("mark failed errored")
		}
		return
	}
	if err := w.Queue.MarkCompleted(ctx, job.ID); err != nil {
		log.Error().Err(err).Msg("mark completed errored")
		return
	}
	log.Info().Msg("job completed")
}

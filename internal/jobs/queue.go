package jobs

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/fiscalhost/ledger/internal/database"
)

// Queue is the sqlite-backed job store. Claiming flips status inside a
// single UPDATE so two workers can never run the same job.
type Queue struct {
	db database.DBTX
}

func NewQueue(db database.DBTX) *Queue { return &Queue{db: db} }

// Enqueue adds a pending job and returns its id.
func (q *Queue) Enqueue(ctx context.Context, jobType JobType, payload any, maxRetries int) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	_, err = q.db.ExecContext(ctx, `
	INSERT INTO jobs(id, job_type, payload, status, max_retries, created_at)
	VALUES(?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	`, id, string(jobType), string(body), string(JobStatusPending), maxRetries)
	return id, err
}

// ClaimNext atomically claims the oldest pending job, or returns nil
// when the queue is empty.
func (q *Queue) ClaimNext(ctx context.Context) (*Job, error) {
	row := q.db.QueryRowContext(ctx, `
	UPDATE jobs SET status = ?, started_at = CURRENT_TIMESTAMP
	WHERE id = (SELECT id FROM jobs WHERE status = ? ORDER BY created_at ASC, rowid ASC LIMIT 1)
	RETURNING id, job_type, payload, status, retry_count, max_retries, last_error, created_at, started_at, completed_at
	`, string(JobStatusRunning), string(JobStatusPending))
	j, err := scanJob(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &j, nil
}

// MarkCompleted finishes a job successfully.
func (q *Queue) MarkCompleted(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, `
	UPDATE jobs SET status = ?, completed_at = CURRENT_TIMESTAMP WHERE id = ?`,
		string(JobStatusCompleted), id)
	return err
}

// MarkFailed records a handler error. The job goes back to pending until
// its retry budget is spent, then fails for good.
func (q *Queue) MarkFailed(ctx context.Context, id string, handlerErr error) error {
	msg := handlerErr.Error()
	_, err := q.db.ExecContext(ctx, `
	UPDATE jobs SET
	 retry_count = retry_count + 1,
	 last_error = ?,
	 status = CASE WHEN retry_count + 1 > max_retries THEN ? ELSE ? END,
	 completed_at = CASE WHEN retry_count + 1 > max_retries THEN CURRENT_TIMESTAMP ELSE NULL END
	WHERE id = ?`,
		msg, string(JobStatusFailed), string(JobStatusPending), id)
	return err
}

// Get returns a job by id, or nil.
func (q *Queue) Get(ctx context.Context, id string) (*Job, error) {
	row := q.db.QueryRowContext(ctx, jobSelect+` WHERE id = ?`, id)
	j, err := scanJob(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &j, nil
}

// ListByStatus returns jobs in a status, oldest first.
func (q *Queue) ListByStatus(ctx context.Context, status JobStatus) ([]Job, error) {
	rows, err := q.db.QueryContext(ctx, jobSelect+` WHERE status = ? ORDER BY created_at ASC, rowid ASC`, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

const jobSelect = `
	SELECT id, job_type, payload, status, retry_count, max_retries, last_error, created_at, started_at, completed_at
	FROM jobs`

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (Job, error) {
	var j Job
	var jt, status, payload string
	var lastErr sql.NullString
	var started, completed sql.NullTime
	if err := row.Scan(&j.ID, &jt, &payload, &status, &j.RetryCount, &j.MaxRetries,
		&lastErr, &j.CreatedAt, &started, &completed); err != nil {
		return Job{}, err
	}
	j.Type = JobType(jt)
	j.Status = JobStatus(status)
	j.Payload = json.RawMessage(payload)
	if lastErr.Valid {
		j.LastError = &lastErr.String
	}
	if started.Valid {
		j.StartedAt = &started.Time
	}
	if completed.Valid {
		j.CompletedAt = &completed.Time
	}
	return j, nil
}

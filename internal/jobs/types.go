// Package jobs is the durable background-job queue the reconciliation
// engines run under. Jobs survive restarts; a worker claims the oldest
// pending job, runs its handler, and either completes or requeues it.
package jobs

import (
	"context"
	"encoding/json"
	"time"
)

// JobType names a handler.
type JobType string

const (
	// JobTypeSyncSource pulls one provider feed forward.
	JobTypeSyncSource JobType = "sync_source"
	// JobTypeNightly runs the full reconciliation pass.
	JobTypeNightly JobType = "nightly_reconcile"
)

// JobStatus is the queue lifecycle.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Job is one queued unit of work.
type Job struct {
	ID          string
	Type        JobType
	Payload     json.RawMessage
	Status      JobStatus
	RetryCount  int
	MaxRetries  int
	LastError   *string
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// SyncSourcePayload names the feed a sync job should pull.
type SyncSourcePayload struct {
	Source string `json:"source"`
}

// Handler processes one job. A returned error requeues the job until its
// retry budget runs out; handlers must therefore be idempotent.
type Handler func(ctx context.Context, job Job) error

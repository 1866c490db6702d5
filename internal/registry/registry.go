// Package registry tracks acquisition jobs through their lifecycle
// state machine. The PostgreSQL implementation is the durable system
// of record; per-job artifacts live on disk under the storage layout.
package registry

import (
	"context"

	"github.com/google/uuid"

	"github.com/spinalsurgery-research/acquisition-service/internal/database"
	"github.com/spinalsurgery-research/acquisition-service/internal/domain"
)

// DBTX is the database handle registries run against, either a pool
// or an open transaction.
type DBTX = database.DBTX

// JobFilter narrows List results.
type JobFilter struct {
	ProjectID string
	Status    []domain.JobStatus
	Limit     int
	Offset    int
}

// Validate applies bounds and defaults to the filter.
func (f *JobFilter) Validate() error {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Limit > 200 {
		f.Limit = 200
	}
	if f.Offset < 0 {
		return domain.NewValidationError("offset", "must be >= 0")
	}
	return nil
}

// JobRegistry is the durable job store. Status changes go through the
// state machine: pending->running, running<->paused, running->completed,
// running->failed, and any non-terminal state ->cancelled. Terminal
// states never change.
type JobRegistry interface {
	// Create inserts a new job in pending state.
	Create(ctx context.Context, job *domain.Job) error

	// Get returns a job by ID.
	Get(ctx context.Context, id uuid.UUID) (*domain.Job, error)

	// List returns jobs matching the filter, newest first, plus the
	// total match count.
	List(ctx context.Context, filter JobFilter) ([]*domain.Job, int64, error)

	// UpdateStatus moves a job to a new status, validating the
	// transition. errMsg is recorded when the new status is failed.
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.JobStatus, errMsg string) error

	// Cancel moves a job to cancelled recording who asked. Cancelling
	// a job already in a terminal state is a no-op.
	Cancel(ctx context.Context, id uuid.UUID, origin string) error

	// RecordProgress persists progress for a running or paused job.
	// Writes are monotonic: a lower percentage or counter than what is
	// already stored is ignored, which makes replayed writes after a
	// crash idempotent.
	RecordProgress(ctx context.Context, id uuid.UUID, pct int, counters domain.StageCounters) error

	// ListRunning returns jobs left in running state, used at startup
	// to reconcile work orphaned by a crash.
	ListRunning(ctx context.Context) ([]*domain.Job, error)
}

package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/spinalsurgery-research/acquisition-service/internal/domain"
)

// txBeginner is satisfied by pool-like handles that can open a
// transaction. Update wraps SELECT FOR UPDATE in one automatically
// when the registry was built on a pool rather than a transaction.
type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// pgUniqueViolation is the PostgreSQL unique_violation error code.
const pgUniqueViolation = "23505"

// validStatusTransitions encodes the job state machine. Cancellation
// from any non-terminal state is handled separately in Cancel.
var validStatusTransitions = map[domain.JobStatus][]domain.JobStatus{
	domain.JobStatusPending: {
		domain.JobStatusRunning,
		domain.JobStatusCancelled,
	},
	domain.JobStatusRunning: {
		domain.JobStatusPaused,
		domain.JobStatusCompleted,
		domain.JobStatusFailed,
		domain.JobStatusCancelled,
	},
	domain.JobStatusPaused: {
		domain.JobStatusRunning,
		domain.JobStatusCancelled,
	},
}

// isValidStatusTransition reports whether from -> to is allowed.
func isValidStatusTransition(from, to domain.JobStatus) bool {
	for _, allowed := range validStatusTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

const jobColumns = `id, project_id, query, sources, target_count,
		download_pdfs, translate, target_language, status, progress_pct,
		found_count, downloaded_count, extracted_count, translated_count,
		error_message, cancel_origin, storage_root,
		created_at, updated_at, started_at, completed_at`

// PgJobRegistry is the PostgreSQL JobRegistry.
type PgJobRegistry struct {
	db DBTX
}

var _ JobRegistry = (*PgJobRegistry)(nil)

// NewPgJobRegistry creates a registry over the given handle.
func NewPgJobRegistry(db DBTX) *PgJobRegistry {
	return &PgJobRegistry{db: db}
}

// Create implements JobRegistry.
func (r *PgJobRegistry) Create(ctx context.Context, job *domain.Job) error {
	if job == nil {
		return domain.NewValidationError("job", "job cannot be nil")
	}
	if job.ID == uuid.Nil {
		return domain.NewValidationError("id", "job ID is required")
	}
	if strings.TrimSpace(job.Query) == "" {
		return domain.NewValidationError("query", "query is required")
	}
	if len(job.Sources) == 0 {
		return domain.NewValidationError("sources", "at least one source is required")
	}
	if job.TargetCount < 1 {
		return domain.NewValidationError("target_count", "must be >= 1")
	}

	query := `
		INSERT INTO jobs (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`

	_, err := r.db.Exec(ctx, query,
		job.ID, job.ProjectID, job.Query, sourceStrings(job.Sources), job.TargetCount,
		job.Options.DownloadPDFs, job.Options.Translate, job.Options.TargetLanguage,
		job.Status, job.ProgressPct,
		job.Counters.Found, job.Counters.Downloaded, job.Counters.Extracted, job.Counters.Translated,
		job.ErrorMessage, job.CancelOrigin, job.StorageRoot,
		job.CreatedAt, job.UpdatedAt, job.StartedAt, job.CompletedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return domain.NewValidationError("id", fmt.Sprintf("job %s already exists", job.ID))
		}
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

// Get implements JobRegistry.
func (r *PgJobRegistry) Get(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`

	job, err := scanJob(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("job", id.String())
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// List implements JobRegistry.
func (r *PgJobRegistry) List(ctx context.Context, filter JobFilter) ([]*domain.Job, int64, error) {
	if err := filter.Validate(); err != nil {
		return nil, 0, err
	}

	conditions := []string{"TRUE"}
	args := []interface{}{}
	argIndex := 1

	if filter.ProjectID != "" {
		conditions = append(conditions, fmt.Sprintf("project_id = $%d", argIndex))
		args = append(args, filter.ProjectID)
		argIndex++
	}
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, s := range filter.Status {
			placeholders[i] = fmt.Sprintf("$%d", argIndex)
			args = append(args, s)
			argIndex++
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ", ")))
	}
	whereClause := strings.Join(conditions, " AND ")

	var total int64
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM jobs WHERE %s", whereClause)
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", err)
	}

	selectQuery := fmt.Sprintf(`SELECT %s FROM jobs WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, jobColumns, whereClause, argIndex, argIndex+1)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.Query(ctx, selectQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate jobs: %w", err)
	}
	return jobs, total, nil
}

// UpdateStatus implements JobRegistry.
func (r *PgJobRegistry) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.JobStatus, errMsg string) error {
	return r.update(ctx, id, func(job *domain.Job) error {
		if !isValidStatusTransition(job.Status, status) {
			return domain.NewInvalidTransitionError(id.String(), job.Status, status)
		}
		job.Status = status
		if status == domain.JobStatusFailed {
			job.ErrorMessage = errMsg
		}

		now := time.Now().UTC()
		if status == domain.JobStatusRunning && job.StartedAt == nil {
			job.StartedAt = &now
		}
		if status.IsTerminal() && job.CompletedAt == nil {
			job.CompletedAt = &now
		}
		return nil
	})
}

// errNoChange signals that the update closure decided nothing needs
// writing; update treats it as success and skips the UPDATE.
var errNoChange = errors.New("registry: no change")

// Cancel implements JobRegistry.
func (r *PgJobRegistry) Cancel(ctx context.Context, id uuid.UUID, origin string) error {
	return r.update(ctx, id, func(job *domain.Job) error {
		if job.Status.IsTerminal() {
			// Idempotent: cancelling a finished job changes nothing.
			return errNoChange
		}
		job.Status = domain.JobStatusCancelled
		job.CancelOrigin = origin
		now := time.Now().UTC()
		job.CompletedAt = &now
		return nil
	})
}

// RecordProgress implements JobRegistry. GREATEST keeps the write
// monotonic so a replayed lower value is a silent no-op; terminal jobs
// are never touched.
func (r *PgJobRegistry) RecordProgress(ctx context.Context, id uuid.UUID, pct int, counters domain.StageCounters) error {
	if pct < 0 || pct > 100 {
		return domain.NewValidationError("progress_pct", "must be in [0,100]")
	}

	query := `
		UPDATE jobs SET
			progress_pct = GREATEST(progress_pct, $2),
			found_count = GREATEST(found_count, $3),
			downloaded_count = GREATEST(downloaded_count, $4),
			extracted_count = GREATEST(extracted_count, $5),
			translated_count = GREATEST(translated_count, $6),
			updated_at = now()
		WHERE id = $1 AND status IN ('running', 'paused')`

	tag, err := r.db.Exec(ctx, query, id, pct,
		counters.Found, counters.Downloaded, counters.Extracted, counters.Translated)
	if err != nil {
		return fmt.Errorf("record progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Job is terminal or missing; either way the write is dropped.
		return nil
	}
	return nil
}

// ListRunning implements JobRegistry.
func (r *PgJobRegistry) ListRunning(ctx context.Context) ([]*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE status = 'running' ORDER BY created_at`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list running jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate running jobs: %w", err)
	}
	return jobs, nil
}

// update loads a job FOR UPDATE, applies fn, and writes the result
// back. When the handle is a pool, the whole thing runs in its own
// transaction for correct row locking.
func (r *PgJobRegistry) update(ctx context.Context, id uuid.UUID, fn func(*domain.Job) error) error {
	if beginner, ok := r.db.(txBeginner); ok {
		tx, err := beginner.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin update transaction: %w", err)
		}
		defer func() { _ = tx.Rollback(ctx) }()

		txRegistry := &PgJobRegistry{db: tx}
		if err := txRegistry.updateInTx(ctx, id, fn); err != nil {
			return err
		}
		return tx.Commit(ctx)
	}
	return r.updateInTx(ctx, id, fn)
}

func (r *PgJobRegistry) updateInTx(ctx context.Context, id uuid.UUID, fn func(*domain.Job) error) error {
	selectQuery := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1 FOR UPDATE`

	rows, err := r.db.Query(ctx, selectQuery, id)
	if err != nil {
		return fmt.Errorf("query job for update: %w", err)
	}

	job, err := scanJobRows(rows)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.NewNotFoundError("job", id.String())
		}
		return fmt.Errorf("scan job: %w", err)
	}

	if err := fn(job); err != nil {
		if errors.Is(err, errNoChange) {
			return nil
		}
		return err
	}
	job.UpdatedAt = time.Now().UTC()

	updateQuery := `
		UPDATE jobs SET
			status = $1,
			progress_pct = $2,
			found_count = $3,
			downloaded_count = $4,
			extracted_count = $5,
			translated_count = $6,
			error_message = $7,
			cancel_origin = $8,
			updated_at = $9,
			started_at = $10,
			completed_at = $11
		WHERE id = $12`

	_, err = r.db.Exec(ctx, updateQuery,
		job.Status, job.ProgressPct,
		job.Counters.Found, job.Counters.Downloaded, job.Counters.Extracted, job.Counters.Translated,
		job.ErrorMessage, job.CancelOrigin,
		job.UpdatedAt, job.StartedAt, job.CompletedAt,
		id,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

// sourceStrings converts typed sources to the TEXT[] column value.
func sourceStrings(sources []domain.SourceType) []string {
	out := make([]string, len(sources))
	for i, s := range sources {
		out[i] = string(s)
	}
	return out
}

// scanJob scans one row into a Job.
func scanJob(row pgx.Row) (*domain.Job, error) {
	var (
		job     domain.Job
		sources []string
	)
	err := row.Scan(
		&job.ID, &job.ProjectID, &job.Query, &sources, &job.TargetCount,
		&job.Options.DownloadPDFs, &job.Options.Translate, &job.Options.TargetLanguage,
		&job.Status, &job.ProgressPct,
		&job.Counters.Found, &job.Counters.Downloaded, &job.Counters.Extracted, &job.Counters.Translated,
		&job.ErrorMessage, &job.CancelOrigin, &job.StorageRoot,
		&job.CreatedAt, &job.UpdatedAt, &job.StartedAt, &job.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	job.Sources = make([]domain.SourceType, len(sources))
	for i, s := range sources {
		job.Sources[i] = domain.SourceType(s)
	}
	return &job, nil
}

// scanJobRows scans the first row of a result set and closes it.
func scanJobRows(rows pgx.Rows) (*domain.Job, error) {
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, pgx.ErrNoRows
	}
	return scanJob(rows)
}

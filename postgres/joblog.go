package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Vector/gbp-ops-sync/models"
)

// JobLogRepository records sync runs. Every run gets a row in running
// state before any upstream I/O, then exactly one terminal update.
type JobLogRepository interface {
	Create(ctx context.Context, jobType string, metadata map[string]any) (*models.SyncJob, error)
	Complete(ctx context.Context, job *models.SyncJob) error
	Select(ctx context.Context, params models.SelectJobsParams) ([]models.SyncJob, error)
	GetLastCompleted(ctx context.Context, jobType string) (*models.SyncJob, error)
}

type jobLogRepository struct {
	db *sql.DB
}

// NewJobLogRepository creates a PostgreSQL-backed JobLogRepository.
func NewJobLogRepository(db *sql.DB) JobLogRepository {
	return &jobLogRepository{db: db}
}

func (repo *jobLogRepository) Create(ctx context.Context, jobType string, metadata map[string]any) (*models.SyncJob, error) {
	job := &models.SyncJob{
		ID:        uuid.New().String(),
		JobType:   jobType,
		Status:    models.JobStatusRunning,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}

	if err := job.Validate(); err != nil {
		return nil, fmt.Errorf("invalid job: %w", err)
	}

	meta, err := marshalMetadata(metadata)
	if err != nil {
		return nil, err
	}

	const q = `INSERT INTO sync_jobs (id, job_type, status, metadata, created_at)
	           VALUES ($1, $2, $3, $4, $5)`

	_, err = repo.db.ExecContext(ctx, q, job.ID, job.JobType, job.Status, meta, job.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create job log entry: %w", err)
	}

	return job, nil
}

// Complete writes the terminal state of a run. The status transition is
// guarded in SQL so a row can only leave running state once.
func (repo *jobLogRepository) Complete(ctx context.Context, job *models.SyncJob) error {
	if job.Status != models.JobStatusCompleted && job.Status != models.JobStatusFailed {
		return fmt.Errorf("job %s: %q is not a terminal status", job.ID, job.Status)
	}

	now := time.Now().UTC()
	job.CompletedAt = &now
	job.DurationMs = now.Sub(job.CreatedAt).Milliseconds()

	const q = `UPDATE sync_jobs SET
	               status = $1,
	               records_fetched = $2,
	               records_created = $3,
	               records_updated = $4,
	               records_skipped = $5,
	               record_errors = $6,
	               error = NULLIF($7, ''),
	               completed_at = $8,
	               duration_ms = $9
	           WHERE id = $10 AND status = $11`

	result, err := repo.db.ExecContext(ctx, q,
		job.Status,
		job.Counts.Fetched, job.Counts.Created, job.Counts.Updated, job.Counts.Skipped, job.Counts.Errors,
		job.Error, job.CompletedAt, job.DurationMs,
		job.ID, models.JobStatusRunning,
	)
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("job %s is not in running state", job.ID)
	}

	return nil
}

func (repo *jobLogRepository) Select(ctx context.Context, params models.SelectJobsParams) ([]models.SyncJob, error) {
	q := `SELECT id, job_type, status,
	             records_fetched, records_created, records_updated, records_skipped, record_errors,
	             metadata, COALESCE(error, ''), created_at, completed_at, duration_ms
	      FROM sync_jobs`

	var args []any

	var conditions []string

	argNum := 1

	if params.JobType != "" {
		conditions = append(conditions, fmt.Sprintf("job_type = $%d", argNum))
		args = append(args, params.JobType)
		argNum++
	}

	if params.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argNum))
		args = append(args, params.Status)
		argNum++
	}

	if len(conditions) > 0 {
		q += " WHERE " + conditions[0]
		for i := 1; i < len(conditions); i++ {
			q += " AND " + conditions[i]
		}
	}

	q += " ORDER BY created_at DESC"

	if params.Limit > 0 {
		q += fmt.Sprintf(" LIMIT $%d", argNum)
		args = append(args, params.Limit)
	}

	rows, err := repo.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select jobs: %w", err)
	}
	defer rows.Close()

	var ans []models.SyncJob

	for rows.Next() {
		job, err := rowToSyncJob(rows)
		if err != nil {
			return nil, err
		}

		ans = append(ans, job)
	}

	return ans, rows.Err()
}

// GetLastCompleted returns the most recent successfully completed run of
// the given type, or nil when there is none. Incremental sync uses its
// start time as the modified-since cursor.
func (repo *jobLogRepository) GetLastCompleted(ctx context.Context, jobType string) (*models.SyncJob, error) {
	const q = `SELECT id, job_type, status,
	                  records_fetched, records_created, records_updated, records_skipped, record_errors,
	                  metadata, COALESCE(error, ''), created_at, completed_at, duration_ms
	           FROM sync_jobs
	           WHERE job_type = $1 AND status = $2
	           ORDER BY created_at DESC LIMIT 1`

	row := repo.db.QueryRowContext(ctx, q, jobType, models.JobStatusCompleted)

	job, err := rowToSyncJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, err
	}

	return &job, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func rowToSyncJob(row scannable) (models.SyncJob, error) {
	var (
		job  models.SyncJob
		meta []byte
	)

	err := row.Scan(
		&job.ID, &job.JobType, &job.Status,
		&job.Counts.Fetched, &job.Counts.Created, &job.Counts.Updated, &job.Counts.Skipped, &job.Counts.Errors,
		&meta, &job.Error, &job.CreatedAt, &job.CompletedAt, &job.DurationMs,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.SyncJob{}, err
		}

		return models.SyncJob{}, fmt.Errorf("failed to scan job: %w", err)
	}

	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &job.Metadata); err != nil {
			return models.SyncJob{}, fmt.Errorf("failed to unmarshal job metadata: %w", err)
		}
	}

	return job, nil
}

func marshalMetadata(metadata map[string]any) ([]byte, error) {
	if metadata == nil {
		return nil, nil
	}

	data, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job metadata: %w", err)
	}

	return data, nil
}

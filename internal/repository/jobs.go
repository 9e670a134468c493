package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// JobState is the ledger's view of one extraction.
type JobState string

const (
	StateStarted      JobState = "started"
	StatePolling      JobState = "polling"
	StateCompleted    JobState = "completed"
	StateFailed       JobState = "failed"
	StateDeadLettered JobState = "dead_lettered"
)

// ErrJobNotFound is returned by Get for unknown ids.
var ErrJobNotFound = errors.New("job not found")

// JobRecord is a row in extraction_jobs.
type JobRecord struct {
	JobID     string    `json:"jobId"`
	Bucket    string    `json:"bucket"`
	RawKey    string    `json:"rawKey"`
	State     JobState  `json:"status"`
	Attempts  int       `json:"attempts"`
	Message   string    `json:"message,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// JobRepository records orchestrator transitions.
type JobRepository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewJobRepository constructs a repository.
func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool, now: func() time.Time { return time.Now().UTC() }}
}

// Started inserts the job. Restarting a known id resets it.
func (r *JobRepository) Started(ctx context.Context, jobID, bucket, rawKey string) error {
	now := r.now()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO extraction_jobs (job_id, bucket, raw_key, status, attempts, message, created_at, updated_at)
		VALUES ($1,$2,$3,$4,0,'',$5,$5)
		ON CONFLICT (job_id) DO UPDATE
		SET bucket=EXCLUDED.bucket, raw_key=EXCLUDED.raw_key, status=EXCLUDED.status,
			attempts=0, message='', updated_at=EXCLUDED.updated_at
	`, jobID, bucket, rawKey, StateStarted, now)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// Polling records that attempt has run.
func (r *JobRepository) Polling(ctx context.Context, jobID string, attempt int) error {
	return r.update(ctx, jobID, StatePolling, attempt, "")
}

// Completed marks the job done.
func (r *JobRepository) Completed(ctx context.Context, jobID string, attempt int) error {
	return r.update(ctx, jobID, StateCompleted, attempt, "")
}

// Failed marks a terminal failure reported by the detection service.
func (r *JobRepository) Failed(ctx context.Context, jobID string, attempt int, msg string) error {
	return r.update(ctx, jobID, StateFailed, attempt, msg)
}

// DeadLettered marks a job abandoned after exhausting its poll budget.
func (r *JobRepository) DeadLettered(ctx context.Context, jobID string, attempt int, msg string) error {
	return r.update(ctx, jobID, StateDeadLettered, attempt, msg)
}

func (r *JobRepository) update(ctx context.Context, jobID string, state JobState, attempt int, msg string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE extraction_jobs
		SET status=$1, attempts=GREATEST(attempts, $2), message=$3, updated_at=$4
		WHERE job_id=$5
	`, state, attempt, msg, r.now(), jobID)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update job %s: %w", jobID, ErrJobNotFound)
	}
	return nil
}

// Get returns a job by id.
func (r *JobRepository) Get(ctx context.Context, jobID string) (*JobRecord, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT job_id, bucket, raw_key, status, attempts, message, created_at, updated_at
		FROM extraction_jobs WHERE job_id=$1
	`, jobID)
	var rec JobRecord
	if err := row.Scan(&rec.JobID, &rec.Bucket, &rec.RawKey, &rec.State, &rec.Attempts, &rec.Message, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", jobID, ErrJobNotFound)
		}
		return nil, fmt.Errorf("select job: %w", err)
	}
	return &rec, nil
}

// List returns the most recently updated jobs, optionally filtered by state.
func (r *JobRepository) List(ctx context.Context, state JobState, limit int) ([]JobRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT job_id, bucket, raw_key, status, attempts, message, created_at, updated_at
		FROM extraction_jobs
		WHERE $1 = '' OR status = $1
		ORDER BY updated_at DESC
		LIMIT $2
	`, string(state), limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	recs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (JobRecord, error) {
		var rec JobRecord
		err := row.Scan(&rec.JobID, &rec.Bucket, &rec.RawKey, &rec.State, &rec.Attempts, &rec.Message, &rec.CreatedAt, &rec.UpdatedAt)
		return rec, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan jobs: %w", err)
	}
	return recs, nil
}

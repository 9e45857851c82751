package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/user/redeem-checker/internal/entity"
	"github.com/user/redeem-checker/internal/repository"
)

const jobColumns = `id, profile_name, COALESCE(url_override, ''), created_by, status, total_codes,
	http_concurrency, browser_concurrency, max_retries, request_delay_ms, COALESCE(notes, ''),
	created_at, started_at, completed_at`

// JobRepoImpl provides a concrete implementation for the JobRepository interface using PostgreSQL.
type JobRepoImpl struct {
	db *pgxpool.Pool
}

var _ repository.JobRepository = (*JobRepoImpl)(nil)

func NewJobRepo(db *pgxpool.Pool) *JobRepoImpl {
	return &JobRepoImpl{db: db}
}

// CreateWithCodes inserts the job and its pending results in one transaction.
func (r *JobRepoImpl) CreateWithCodes(ctx context.Context, job *entity.Job, codes []string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	job.Status = entity.JobQueued
	job.TotalCodes = len(codes)
	err = tx.QueryRow(ctx,
		`INSERT INTO jobs (id, profile_name, url_override, created_by, status, total_codes,
		                   http_concurrency, browser_concurrency, max_retries, request_delay_ms)
		 VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $10)
		 RETURNING created_at`,
		job.ID, job.ProfileName, job.URLOverride, job.CreatedBy, job.Status, job.TotalCodes,
		job.HTTPConcurrency, job.BrowserConcurrency, job.MaxRetries, job.RequestDelayMS,
	).Scan(&job.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}

	batch := &pgx.Batch{}
	for _, code := range codes {
		batch.Queue(`INSERT INTO results (job_id, code, status, source) VALUES ($1, $2, $3, $4)`,
			job.ID, code, entity.ResultPending, entity.SourceNone)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert results: %w", err)
	}

	return tx.Commit(ctx)
}

func (r *JobRepoImpl) Get(ctx context.Context, id string) (*entity.Job, error) {
	job, err := scanJob(r.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	return job, err
}

func (r *JobRepoImpl) List(ctx context.Context, limit int) ([]*entity.Job, error) {
	rows, err := r.db.Query(ctx, `SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	return collectJobs(rows)
}

func (r *JobRepoImpl) ListByStatus(ctx context.Context, statuses ...entity.JobStatus) ([]*entity.Job, error) {
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}
	rows, err := r.db.Query(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE status = ANY($1) ORDER BY created_at ASC`, names)
	if err != nil {
		return nil, err
	}
	return collectJobs(rows)
}

func (r *JobRepoImpl) MarkRunning(ctx context.Context, id string) error {
	return r.exec(ctx,
		`UPDATE jobs SET status = $2, started_at = NOW(), completed_at = NULL, notes = NULL WHERE id = $1`,
		id, entity.JobRunning)
}

func (r *JobRepoImpl) MarkCompleted(ctx context.Context, id string) error {
	return r.exec(ctx, `UPDATE jobs SET status = $2, completed_at = NOW() WHERE id = $1`, id, entity.JobCompleted)
}

func (r *JobRepoImpl) MarkFailed(ctx context.Context, id, note string) error {
	return r.exec(ctx,
		`UPDATE jobs SET status = $2, completed_at = NOW(), notes = $3 WHERE id = $1`,
		id, entity.JobFailed, entity.Truncate(note))
}

// ResetInterrupted returns in-flight rows to their resumable states.
func (r *JobRepoImpl) ResetInterrupted(ctx context.Context, note string) (int64, int64, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, 0, err
	}
	defer tx.Rollback(ctx)

	res, err := tx.Exec(ctx,
		`UPDATE results
		 SET status = 'pending', source = 'none', reason = NULL, failure_kind = NULL, attempts = 0,
		     http_status = NULL, redirect_url = NULL, checked_at = NULL, updated_at = NOW()
		 WHERE status IN ('running', 'queued_browser')`)
	if err != nil {
		return 0, 0, err
	}
	jobs, err := tx.Exec(ctx,
		`UPDATE jobs
		 SET status = 'queued', started_at = NULL, completed_at = NULL, notes = $1
		 WHERE status = 'running'`, entity.Truncate(note))
	if err != nil {
		return 0, 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, 0, err
	}
	return res.RowsAffected(), jobs.RowsAffected(), nil
}

// RequeueUncertain resets the job's unknown, blocked and error results and
// any rows an aborted run left in flight, then counts what is pending.
func (r *JobRepoImpl) RequeueUncertain(ctx context.Context, id string) (int64, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`UPDATE results
		 SET status = 'pending', source = 'none', reason = NULL, failure_kind = NULL, attempts = 0,
		     http_status = NULL, redirect_url = NULL, checked_at = NULL, updated_at = NOW()
		 WHERE job_id = $1 AND status IN ('unknown', 'blocked', 'error', 'running', 'queued_browser')`, id); err != nil {
		return 0, err
	}

	var n int64
	if err := tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM results WHERE job_id = $1 AND status = 'pending'`, id).Scan(&n); err != nil {
		return 0, err
	}

	var jobs pgconn.CommandTag
	if n > 0 {
		jobs, err = tx.Exec(ctx,
			`UPDATE jobs SET status = 'queued', started_at = NULL, completed_at = NULL, notes = NULL WHERE id = $1`, id)
	} else {
		jobs, err = tx.Exec(ctx, `UPDATE jobs SET status = 'completed', completed_at = NOW() WHERE id = $1`, id)
	}
	if err != nil {
		return 0, err
	}
	if jobs.RowsAffected() == 0 {
		return 0, repository.ErrNotFound
	}
	return n, tx.Commit(ctx)
}

func (r *JobRepoImpl) exec(ctx context.Context, sql string, args ...any) error {
	res, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func scanJob(row pgx.Row) (*entity.Job, error) {
	var j entity.Job
	err := row.Scan(
		&j.ID, &j.ProfileName, &j.URLOverride, &j.CreatedBy, &j.Status, &j.TotalCodes,
		&j.HTTPConcurrency, &j.BrowserConcurrency, &j.MaxRetries, &j.RequestDelayMS, &j.Notes,
		&j.CreatedAt, &j.StartedAt, &j.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func collectJobs(rows pgx.Rows) ([]*entity.Job, error) {
	defer rows.Close()
	var jobs []*entity.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/user/redeem-checker/internal/entity"
	"github.com/user/redeem-checker/internal/repository"
)

// ResultRepoImpl provides a concrete implementation for the ResultRepository interface using PostgreSQL.
type ResultRepoImpl struct {
	db *pgxpool.Pool
}

var _ repository.ResultRepository = (*ResultRepoImpl)(nil)

func NewResultRepo(db *pgxpool.Pool) *ResultRepoImpl {
	return &ResultRepoImpl{db: db}
}

func (r *ResultRepoImpl) Pending(ctx context.Context, jobID string) ([]entity.PendingCode, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, code FROM results WHERE job_id = $1 AND status = 'pending' ORDER BY id ASC`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []entity.PendingCode
	for rows.Next() {
		var p entity.PendingCode
		if err := rows.Scan(&p.ResultID, &p.Code); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *ResultRepoImpl) MarkRunning(ctx context.Context, resultID int64) error {
	return r.exec(ctx,
		`UPDATE results SET status = 'running', source = 'none', updated_at = NOW() WHERE id = $1`, resultID)
}

func (r *ResultRepoImpl) MarkQueuedBrowser(ctx context.Context, resultID int64, o entity.Outcome) error {
	return r.exec(ctx,
		`UPDATE results
		 SET status = 'queued_browser', source = 'http', reason = $2, failure_kind = NULLIF($3, ''),
		     attempts = $4, http_status = NULLIF($5, 0), redirect_url = NULLIF($6, ''), updated_at = NOW()
		 WHERE id = $1`,
		resultID, entity.Truncate(o.Reason()), string(o.Failure), o.Attempts, o.HTTPStatus, o.RedirectURL)
}

func (r *ResultRepoImpl) MarkFinal(ctx context.Context, resultID int64, o entity.Outcome) error {
	return r.exec(ctx,
		`UPDATE results
		 SET status = $2, source = $3, reason = $4, failure_kind = NULLIF($5, ''), attempts = $6,
		     http_status = NULLIF($7, 0), redirect_url = NULLIF($8, ''), checked_at = NOW(), updated_at = NOW()
		 WHERE id = $1`,
		resultID, string(o.Status), string(o.Source), entity.Truncate(o.Reason()), string(o.Failure),
		o.Attempts, o.HTTPStatus, o.RedirectURL)
}

func (r *ResultRepoImpl) CountByStatus(ctx context.Context, jobID string) (int, map[entity.ResultStatus]int, error) {
	counts := make(map[entity.ResultStatus]int)

	var total int
	err := r.db.QueryRow(ctx, `SELECT total_codes FROM jobs WHERE id = $1`, jobID).Scan(&total)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, counts, nil
	}
	if err != nil {
		return 0, nil, err
	}

	rows, err := r.db.Query(ctx,
		`SELECT status, COUNT(*) FROM results WHERE job_id = $1 GROUP BY status`, jobID)
	if err != nil {
		return 0, nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return 0, nil, err
		}
		counts[entity.ResultStatus(status)] = n
	}
	return total, counts, rows.Err()
}

func (r *ResultRepoImpl) List(ctx context.Context, jobID string, status entity.ResultStatus, limit, offset int) ([]*entity.Result, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, job_id, code, status, source, COALESCE(reason, ''), COALESCE(failure_kind, ''),
		        attempts, COALESCE(http_status, 0), COALESCE(redirect_url, ''), checked_at, created_at, updated_at
		 FROM results
		 WHERE job_id = $1 AND ($2 = '' OR status = $2)
		 ORDER BY id DESC
		 LIMIT $3 OFFSET $4`,
		jobID, string(status), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*entity.Result, 0)
	for rows.Next() {
		var (
			res                        entity.Result
			resStatus, source, failure string
		)
		if err := rows.Scan(
			&res.ID, &res.JobID, &res.Code, &resStatus, &source, &res.Reason, &failure,
			&res.Attempts, &res.HTTPStatus, &res.RedirectURL, &res.CheckedAt, &res.CreatedAt, &res.UpdatedAt,
		); err != nil {
			return nil, err
		}
		res.Status = entity.ResultStatus(resStatus)
		res.Source = entity.Source(source)
		res.FailureKind = entity.FailureKind(failure)
		out = append(out, &res)
	}
	return out, rows.Err()
}

func (r *ResultRepoImpl) exec(ctx context.Context, sql string, args ...any) error {
	res, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

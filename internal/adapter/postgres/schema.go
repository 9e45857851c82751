package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS jobs (
		id                  TEXT PRIMARY KEY,
		profile_name        TEXT NOT NULL,
		url_override        TEXT,
		created_by          TEXT NOT NULL,
		status              TEXT NOT NULL,
		total_codes         INTEGER NOT NULL,
		http_concurrency    INTEGER NOT NULL,
		browser_concurrency INTEGER NOT NULL,
		max_retries         INTEGER NOT NULL,
		request_delay_ms    INTEGER NOT NULL,
		notes               TEXT,
		created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		started_at          TIMESTAMPTZ,
		completed_at        TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS results (
		id           BIGSERIAL PRIMARY KEY,
		job_id       TEXT NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
		code         TEXT NOT NULL,
		status       TEXT NOT NULL,
		source       TEXT NOT NULL,
		reason       TEXT,
		failure_kind TEXT,
		attempts     INTEGER NOT NULL DEFAULT 0,
		http_status  INTEGER,
		redirect_url TEXT,
		checked_at   TIMESTAMPTZ,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (job_id, code)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_results_job_status ON results (job_id, status)`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs (status)`,
}

// NewPool connects to PostgreSQL and applies the schema.
func NewPool(ctx context.Context, connStr string) (*pgxpool.Pool, error) {
	db, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to reach database: %w", err)
	}
	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Migrate creates missing tables and indexes.
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

package repository

import (
	"context"

	"github.com/user/redeem-checker/internal/entity"
)

// ResultRepository defines the per-code state transitions. Writers touch
// disjoint rows keyed by result id.
type ResultRepository interface {
	// Pending returns the pending codes of a job in insertion order.
	Pending(ctx context.Context, jobID string) ([]entity.PendingCode, error)
	MarkRunning(ctx context.Context, resultID int64) error
	// MarkQueuedBrowser records the HTTP diagnostics of a code handed to
	// the browser stage.
	MarkQueuedBrowser(ctx context.Context, resultID int64, outcome entity.Outcome) error
	// MarkFinal stores a terminal outcome.
	MarkFinal(ctx context.Context, resultID int64, outcome entity.Outcome) error
	// CountByStatus returns the job's total code count and its results
	// grouped by status.
	CountByStatus(ctx context.Context, jobID string) (int, map[entity.ResultStatus]int, error)
	// List pages through a job's results, newest first. An empty status
	// matches every row.
	List(ctx context.Context, jobID string, status entity.ResultStatus, limit, offset int) ([]*entity.Result, error)
}

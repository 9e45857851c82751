package repository

import (
	"context"
	"errors"

	"github.com/user/redeem-checker/internal/entity"
)

// ErrNotFound is returned when a job or result does not exist.
var ErrNotFound = errors.New("not found")

// JobRepository defines the contract for job rows and the operations that
// touch a job together with its results.
type JobRepository interface {
	// CreateWithCodes stores the job and one pending result per code in a
	// single transaction.
	CreateWithCodes(ctx context.Context, job *entity.Job, codes []string) error
	// Get returns ErrNotFound when the job does not exist.
	Get(ctx context.Context, id string) (*entity.Job, error)
	// List returns the most recently created jobs first.
	List(ctx context.Context, limit int) ([]*entity.Job, error)
	// ListByStatus returns matching jobs, oldest first.
	ListByStatus(ctx context.Context, statuses ...entity.JobStatus) ([]*entity.Job, error)
	MarkRunning(ctx context.Context, id string) error
	MarkCompleted(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id, note string) error
	// ResetInterrupted returns results left running or queued_browser to
	// pending, clearing their diagnostics, and running jobs to queued.
	ResetInterrupted(ctx context.Context, note string) (results, jobs int64, err error)
	// RequeueUncertain resets unknown, blocked and error results of a job to
	// pending, along with rows an aborted run left running or
	// queued_browser. It returns the number of pending rows afterwards. When
	// there are any the job becomes queued, otherwise it is marked completed.
	RequeueUncertain(ctx context.Context, id string) (int64, error)
}

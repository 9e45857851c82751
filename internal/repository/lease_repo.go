package repository

import (
	"context"
	"time"
)

// LeaseRepository guards ownership of the job store by one orchestrator
// process.
type LeaseRepository interface {
	// Acquire takes the lease for owner if it is free or already held by
	// owner.
	Acquire(ctx context.Context, owner string, ttl time.Duration) (bool, error)
	// Refresh extends a lease held by owner.
	Refresh(ctx context.Context, owner string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, owner string) error
}

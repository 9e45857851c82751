package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/user/redeem-checker/internal/repository"
)

// ErrLeaseHeld is returned by Recover when another process owns the job
// store.
var ErrLeaseHeld = errors.New("job store is owned by another instance")

type leaseKeeper struct {
	repo   repository.LeaseRepository
	owner  string
	ttl    time.Duration
	logger *zap.Logger
	stop   context.CancelFunc
}

// WithLease makes Recover take ownership of the job store through repo and
// keep it until Shutdown. Losing the lease cancels every running job.
func (o *Orchestrator) WithLease(repo repository.LeaseRepository, owner string, ttl time.Duration) *Orchestrator {
	o.lease = &leaseKeeper{repo: repo, owner: owner, ttl: ttl, logger: o.logger.With(zap.String("owner", owner))}
	return o
}

func (o *Orchestrator) acquireLease(ctx context.Context) error {
	l := o.lease
	ok, err := l.repo.Acquire(ctx, l.owner, l.ttl)
	if err != nil {
		return fmt.Errorf("failed to acquire lease: %w", err)
	}
	if !ok {
		return ErrLeaseHeld
	}

	refreshCtx, stop := context.WithCancel(o.ctx)
	l.stop = stop
	go o.keepLease(refreshCtx)
	l.logger.Info("Lease acquired", zap.Duration("ttl", l.ttl))
	return nil
}

func (o *Orchestrator) keepLease(ctx context.Context) {
	l := o.lease
	ticker := time.NewTicker(max(time.Second, l.ttl/3))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ok, err := l.repo.Refresh(ctx, l.owner, l.ttl)
			if err != nil {
				if ctx.Err() == nil {
					l.logger.Warn("Lease refresh failed", zap.Error(err))
				}
				continue
			}
			if !ok {
				l.logger.Error("Lease lost, stopping all jobs")
				o.mu.Lock()
				o.closed = true
				o.mu.Unlock()
				o.cancel()
				return
			}
		}
	}
}

func (o *Orchestrator) releaseLease(ctx context.Context) {
	l := o.lease
	if l.stop != nil {
		l.stop()
	}
	if err := l.repo.Release(context.WithoutCancel(ctx), l.owner); err != nil {
		l.logger.Warn("Failed to release lease", zap.Error(err))
	}
}

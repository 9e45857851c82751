package memory

import (
	"context"
	"sync"
	"time"

	"github.com/user/redeem-checker/internal/repository"
)

// Lease is a process-local repository.LeaseRepository.
type Lease struct {
	mu      sync.Mutex
	owner   string
	expires time.Time
	now     func() time.Time
}

var _ repository.LeaseRepository = (*Lease)(nil)

func NewLease() *Lease {
	return &Lease{now: time.Now}
}

func (l *Lease) Acquire(_ context.Context, owner string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if l.owner != "" && l.owner != owner && now.Before(l.expires) {
		return false, nil
	}
	l.owner, l.expires = owner, now.Add(ttl)
	return true, nil
}

func (l *Lease) Refresh(_ context.Context, owner string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if l.owner != owner || !now.Before(l.expires) {
		return false, nil
	}
	l.expires = now.Add(ttl)
	return true, nil
}

func (l *Lease) Release(_ context.Context, owner string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.owner == owner {
		l.owner = ""
	}
	return nil
}

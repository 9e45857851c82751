package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/user/redeem-checker/internal/repository"
)

const leaseKey = "redeem-checker:orchestrator:lease"

var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// LeaseRepoImpl provides a concrete implementation for the LeaseRepository interface using a Redis key with a TTL.
type LeaseRepoImpl struct {
	client *redis.Client
	key    string
}

var _ repository.LeaseRepository = (*LeaseRepoImpl)(nil)

// NewClient creates a Redis client and checks the connection.
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, err
	}
	return rdb, nil
}

func NewLeaseRepo(client *redis.Client) *LeaseRepoImpl {
	return &LeaseRepoImpl{client: client, key: leaseKey}
}

// Acquire sets the lease key if it is absent. A lease already held by owner
// is extended.
func (r *LeaseRepoImpl) Acquire(ctx context.Context, owner string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, r.key, owner, ttl).Result()
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}
	return r.Refresh(ctx, owner, ttl)
}

func (r *LeaseRepoImpl) Refresh(ctx context.Context, owner string, ttl time.Duration) (bool, error) {
	n, err := refreshScript.Run(ctx, r.client, []string{r.key}, owner, ttl.Milliseconds()).Int()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *LeaseRepoImpl) Release(ctx context.Context, owner string) error {
	err := releaseScript.Run(ctx, r.client, []string{r.key}, owner).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}

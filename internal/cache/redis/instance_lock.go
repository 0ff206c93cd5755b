package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/DecentralizedMoney/matreshka/internal/domain"
)

// unlockLua deletes a lock key only when it still holds the caller's
// token, so an expired holder cannot release a successor's lock.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// InstanceLock guards execute mode: only one engine instance may trade
// against a set of venue accounts at a time. Built on SETNX with a TTL
// and a Lua conditional unlock.
type InstanceLock struct {
	rdb      *redis.Client
	unlockSc *redis.Script
}

// NewInstanceLock creates an InstanceLock backed by the given Client.
func NewInstanceLock(c *Client) *InstanceLock {
	return &InstanceLock{
		rdb:      c.Underlying(),
		unlockSc: redis.NewScript(unlockLua),
	}
}

func instanceLockKey(name string) string {
	return "matreshka:lock:" + name
}

// Acquire takes the named lock for ttl and returns a release function that
// is safe to call more than once. Returns domain.ErrLockHeld when another
// instance holds it.
func (l *InstanceLock) Acquire(ctx context.Context, name string, ttl time.Duration) (func(), error) {
	token := uuid.New().String()
	key := instanceLockKey(name)

	ok, err := l.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", name, err)
	}
	if !ok {
		return nil, fmt.Errorf("redis: lock %s: %w", name, domain.ErrLockHeld)
	}

	released := false
	release := func() {
		if released {
			return
		}
		released = true
		// Release with a fresh context so shutdown paths with a cancelled
		// context still unlock.
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = l.unlockSc.Run(unlockCtx, l.rdb, []string{key}, token).Err()
	}
	return release, nil
}

// Refresh extends the TTL of a held lock. A lock that expired or changed
// hands reports domain.ErrLockHeld.
func (l *InstanceLock) Refresh(ctx context.Context, name string, ttl time.Duration) error {
	key := instanceLockKey(name)
	ok, err := l.rdb.Expire(ctx, key, ttl).Result()
	if err != nil {
		return fmt.Errorf("redis: refresh lock %s: %w", name, err)
	}
	if !ok {
		return fmt.Errorf("redis: lock %s expired: %w", name, domain.ErrLockHeld)
	}
	return nil
}

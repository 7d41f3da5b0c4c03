package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrLockHeld is returned when another process holds the requested lock.
var ErrLockHeld = errors.New("lock: already held")

// Locker serializes availability mutations per provider so concurrent
// requests cannot both pass overlap validation and then both write.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// RedisLocker implements Locker with Redis SET NX.
type RedisLocker struct {
	client *redis.Client
}

// NewRedisLocker wraps an existing Redis client. Returns nil when the client
// is nil so callers can fall back to unlocked operation.
func NewRedisLocker(client *redis.Client) *RedisLocker {
	if client == nil {
		return nil
	}
	return &RedisLocker{client: client}
}

func lockKey(key string) string {
	return fmt.Sprintf("carelane:lock:%s", key)
}

// Acquire takes the lock if free. Returns false when another holder has it.
func (r *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, lockKey(key), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("lock: acquire %s: %w", key, err)
	}
	return ok, nil
}

// Release frees the lock. Releasing a lock that already expired is not an
// error.
func (r *RedisLocker) Release(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, lockKey(key)).Err(); err != nil {
		return fmt.Errorf("lock: release %s: %w", key, err)
	}
	return nil
}

// Do runs fn while holding the lock, returning ErrLockHeld when it cannot be
// acquired. A nil Locker runs fn unlocked.
func Do(ctx context.Context, l Locker, key string, ttl time.Duration, fn func(ctx context.Context) error) error {
	if l == nil {
		return fn(ctx)
	}
	ok, err := l.Acquire(ctx, key, ttl)
	if err != nil {
		return err
	}
	if !ok {
		return ErrLockHeld
	}
	defer func() { _ = l.Release(ctx, key) }()
	return fn(ctx)
}

package policy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Locker takes an advisory, per-key exclusive lock around a run_policies
// pass for one user, so two concurrent executors never run the same
// user's phases in parallel (spec.md §5). Release is idempotent.
type Locker interface {
	TryLock(ctx context.Context, key string) (release func(), acquired bool, err error)
}

// LocalLocker is an in-process fallback used when no Redis URL is
// configured. It only protects a single instance's goroutines, not a
// multi-instance deployment.
type LocalLocker struct {
	mu      sync.Mutex
	holders map[string]struct{}
}

// NewLocalLocker builds a LocalLocker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{holders: map[string]struct{}{}}
}

func (l *LocalLocker) TryLock(_ context.Context, key string) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, held := l.holders[key]; held {
		return nil, false, nil
	}
	l.holders[key] = struct{}{}
	return func() {
		l.mu.Lock()
		delete(l.holders, key)
		l.mu.Unlock()
	}, true, nil
}

// RedisLocker backs the advisory lock with Redis SETNX (with a TTL safety
// net so a crashed executor doesn't hold a lock forever), so the lock is
// effective across every executor instance sharing the Redis deployment.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisLocker builds a RedisLocker against the given Redis URL.
func NewRedisLocker(redisURL string, ttl time.Duration) (*RedisLocker, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("policy: invalid redis url: %w", err)
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisLocker{client: redis.NewClient(opts), ttl: ttl}, nil
}

func (l *RedisLocker) TryLock(ctx context.Context, key string) (func(), bool, error) {
	lockKey := "memoric:policy-lock:" + key
	ok, err := l.client.SetNX(ctx, lockKey, "1", l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("policy: redis setnx: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	return func() {
		l.client.Del(context.Background(), lockKey)
	}, true, nil
}

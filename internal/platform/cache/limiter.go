package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// AttemptLimiter counts failures per key inside a fixed window that starts at
// the first failure.
type AttemptLimiter interface {
	// Exceeded reports whether key has reached the failure limit.
	Exceeded(ctx context.Context, key string) (bool, error)
	// Fail records one failure and returns the count within the window.
	Fail(ctx context.Context, key string) (int, error)
	Reset(ctx context.Context, key string) error
}

type RedisLimiter struct {
	c      *redis.Client
	prefix string
	max    int
	window time.Duration
}

func NewRedisLimiter(c *redis.Client, prefix string, max int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{c: c, prefix: prefix, max: max, window: window}
}

func (l *RedisLimiter) key(k string) string { return l.prefix + k }

func (l *RedisLimiter) Exceeded(ctx context.Context, key string) (bool, error) {
	n, err := l.c.Get(ctx, l.key(key)).Int()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, fmt.Errorf("read attempt counter: %w", err)
	}
	return n >= l.max, nil
}

func (l *RedisLimiter) Fail(ctx context.Context, key string) (int, error) {
	k := l.key(key)
	n, err := l.c.Incr(ctx, k).Result()
	if err != nil {
		return 0, fmt.Errorf("increment attempt counter: %w", err)
	}
	if n == 1 {
		if err := l.c.Expire(ctx, k, l.window).Err(); err != nil {
			return 0, fmt.Errorf("set attempt window: %w", err)
		}
	}
	return int(n), nil
}

func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	return l.c.Del(ctx, l.key(key)).Err()
}

type memCounter struct {
	count   int
	resetAt time.Time
}

type MemoryLimiter struct {
	mu        sync.Mutex
	counters  map[string]*memCounter
	max       int
	window    time.Duration
	now       func() time.Time
	lastSweep time.Time
}

func NewMemoryLimiter(max int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		counters: make(map[string]*memCounter),
		max:      max,
		window:   window,
		now:      time.Now,
	}
}

// current returns the live counter for key or nil. Callers hold mu.
func (l *MemoryLimiter) current(key string) *memCounter {
	c, ok := l.counters[key]
	if !ok {
		return nil
	}
	if !l.now().Before(c.resetAt) {
		delete(l.counters, key)
		return nil
	}
	return c
}

// sweep drops expired counters at most once per window. Callers hold mu.
func (l *MemoryLimiter) sweep() {
	now := l.now()
	if now.Sub(l.lastSweep) < l.window {
		return
	}
	l.lastSweep = now
	for key, c := range l.counters {
		if !now.Before(c.resetAt) {
			delete(l.counters, key)
		}
	}
}

func (l *MemoryLimiter) Exceeded(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c := l.current(key)
	return c != nil && c.count >= l.max, nil
}

func (l *MemoryLimiter) Fail(_ context.Context, key string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweep()
	c := l.current(key)
	if c == nil {
		c = &memCounter{resetAt: l.now().Add(l.window)}
		l.counters[key] = c
	}
	c.count++
	return c.count, nil
}

func (l *MemoryLimiter) Reset(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.counters, key)
	return nil
}

package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// AttemptCounter counts events per key in fixed windows
type AttemptCounter interface {
	// Hit records one attempt and returns the attempts so far in the
	// current window and the time left until it resets
	Hit(ctx context.Context, key string, window time.Duration) (int, time.Duration, error)
	Reset(ctx context.Context, key string) error
}

// RedisAttemptCounter shares counts between instances
type RedisAttemptCounter struct {
	client redis.UniversalClient
}

// NewRedisAttemptCounter creates a new RedisAttemptCounter
func NewRedisAttemptCounter(client redis.UniversalClient) *RedisAttemptCounter {
	return &RedisAttemptCounter{client: client}
}

func attemptKey(key string) string {
	return "rail:attempts:" + key
}

// Hit increments the key and starts its window on the first attempt
func (c *RedisAttemptCounter) Hit(ctx context.Context, key string, window time.Duration) (int, time.Duration, error) {
	k := attemptKey(key)

	var incr *redis.IntCmd
	var ttl *redis.DurationCmd
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		pipe.ExpireNX(ctx, k, window)
		ttl = pipe.PTTL(ctx, k)
		return nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count attempt: %w", err)
	}

	remaining := ttl.Val()
	if remaining < 0 {
		remaining = window
	}
	return int(incr.Val()), remaining, nil
}

// Reset clears the key
func (c *RedisAttemptCounter) Reset(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, attemptKey(key)).Err(); err != nil {
		return fmt.Errorf("failed to reset attempts: %w", err)
	}
	return nil
}

// MemoryAttemptCounter counts attempts for a single instance
type MemoryAttemptCounter struct {
	mu      sync.Mutex
	windows map[string]attemptWindow
	now     func() time.Time
}

type attemptWindow struct {
	count   int
	resetAt time.Time
}

// NewMemoryAttemptCounter creates a new MemoryAttemptCounter
func NewMemoryAttemptCounter() *MemoryAttemptCounter {
	return &MemoryAttemptCounter{
		windows: make(map[string]attemptWindow),
		now:     time.Now,
	}
}

// Hit records an attempt. Expired windows are dropped lazily.
func (c *MemoryAttemptCounter) Hit(ctx context.Context, key string, window time.Duration) (int, time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	w, ok := c.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = attemptWindow{resetAt: now.Add(window)}
	}
	w.count++
	c.windows[key] = w

	if len(c.windows) > 10000 {
		for k, v := range c.windows {
			if !now.Before(v.resetAt) {
				delete(c.windows, k)
			}
		}
	}

	return w.count, w.resetAt.Sub(now), nil
}

// Reset clears the key
func (c *MemoryAttemptCounter) Reset(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.windows, key)
	return nil
}

var (
	_ AttemptCounter = (*RedisAttemptCounter)(nil)
	_ AttemptCounter = (*MemoryAttemptCounter)(nil)
)

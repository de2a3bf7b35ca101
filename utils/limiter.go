package utils

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// Limiter decides whether one more event for key fits in its budget.
// A non-nil error comes with allowed=true: limiters fail open so a backend outage
// never locks families out.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

type limiterEntry struct {
	limiter *rate.Limiter
	expires time.Time
}

// MemoryLimiter is a per-key token bucket refilling limit tokens per window.
// It is process-local; use RedisLimiter when running more than one instance.
type MemoryLimiter struct {
	mu        sync.Mutex
	entries   map[string]*limiterEntry
	every     rate.Limit
	burst     int
	window    time.Duration
	lastSweep time.Time
	now       func() time.Time
}

// NewMemoryLimiter allows limit events per window for each key.
func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	if limit < 1 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &MemoryLimiter{
		entries: map[string]*limiterEntry{},
		every:   rate.Every(window / time.Duration(limit)),
		burst:   limit,
		window:  window,
		now:     time.Now,
	}
}

// Allow consumes one token for key.
func (m *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if now.Sub(m.lastSweep) >= m.window {
		m.sweepLocked(now)
	}
	entry, ok := m.entries[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(m.every, m.burst)}
		m.entries[key] = entry
	}
	entry.expires = now.Add(m.window)
	return entry.limiter.AllowN(now, 1), nil
}

// Len reports how many keys are tracked.
func (m *MemoryLimiter) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *MemoryLimiter) sweepLocked(now time.Time) {
	for key, entry := range m.entries {
		if now.After(entry.expires) {
			delete(m.entries, key)
		}
	}
	m.lastSweep = now
}

// RedisLimiter is a fixed-window counter shared by every instance.
type RedisLimiter struct {
	client *redis.Client
	prefix string
	limit  int64
	window time.Duration
	now    func() time.Time
}

// NewRedisLimiter allows limit events per window for each key, namespaced by prefix.
func NewRedisLimiter(client *redis.Client, prefix string, limit int, window time.Duration) *RedisLimiter {
	if limit < 1 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RedisLimiter{client: client, prefix: prefix, limit: int64(limit), window: window, now: time.Now}
}

// Allow increments the counter of the current window for key.
func (r *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	slot := r.now().UnixNano() / int64(r.window)
	redisKey := "rl:" + r.prefix + ":" + key + ":" + strconv.FormatInt(slot, 10)

	var incr *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, redisKey)
		pipe.Expire(ctx, redisKey, r.window)
		return nil
	})
	if err != nil {
		return true, err
	}
	return incr.Val() <= r.limit, nil
}

// NewLimiter picks the redis-backed limiter when a client is available.
func NewLimiter(client *redis.Client, prefix string, limit int, window time.Duration) Limiter {
	if client != nil {
		return NewRedisLimiter(client, prefix, limit, window)
	}
	return NewMemoryLimiter(limit, window)
}

// Package ratelimit throttles public form submissions with a sliding window
// and per-form submission guards.
package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultMax    = 5
	DefaultWindow = 15 * time.Minute
)

var ErrRateLimited = errors.New("rate limit exceeded")

// Limiter reports whether identifier may make another request now. An
// accepted call is counted against the window.
type Limiter interface {
	Allow(ctx context.Context, identifier string) (bool, error)
	Window() time.Duration
}

// MemoryLimiter keeps a list of call times per identifier. State lives in the
// process and is lost on restart.
type MemoryLimiter struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	now    func() time.Time
	hits   map[string][]time.Time
}

func NewMemoryLimiter(max int, window time.Duration) *MemoryLimiter {
	if max <= 0 {
		max = DefaultMax
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &MemoryLimiter{
		max:    max,
		window: window,
		now:    time.Now,
		hits:   make(map[string][]time.Time),
	}
}

// WithClock replaces the time source.
func (l *MemoryLimiter) WithClock(now func() time.Time) *MemoryLimiter {
	l.now = now
	return l
}

func (l *MemoryLimiter) Window() time.Duration { return l.window }

func (l *MemoryLimiter) Allow(_ context.Context, identifier string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	recent := prune(l.hits[identifier], now.Add(-l.window))
	if len(recent) >= l.max {
		l.hits[identifier] = recent
		return false, nil
	}
	l.hits[identifier] = append(recent, now)
	return true, nil
}

// Sweep drops identifiers with no calls inside the window and returns how
// many were removed.
func (l *MemoryLimiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.window)
	removed := 0
	for id, hits := range l.hits {
		recent := prune(hits, cutoff)
		if len(recent) == 0 {
			delete(l.hits, id)
			removed++
			continue
		}
		l.hits[id] = recent
	}
	return removed
}

// prune keeps the times strictly after cutoff. hits is ordered oldest first.
func prune(hits []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return hits
	}
	return append(hits[:0:0], hits[i:]...)
}

var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now_ms = tonumber(ARGV[1])
local window_ms = tonumber(ARGV[2])
local max = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '-inf', now_ms - window_ms)
if redis.call('ZCARD', key) >= max then
	return 0
end
redis.call('ZADD', key, now_ms, member)
redis.call('PEXPIRE', key, window_ms)
return 1
`)

// RedisLimiter runs the same sliding window on a sorted set so every API
// instance shares one budget.
type RedisLimiter struct {
	rdb    redis.Scripter
	prefix string
	max    int
	window time.Duration
	now    func() time.Time
}

func NewRedisLimiter(rdb redis.Scripter, max int, window time.Duration) *RedisLimiter {
	if max <= 0 {
		max = DefaultMax
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &RedisLimiter{rdb: rdb, prefix: "ratelimit:", max: max, window: window, now: time.Now}
}

// WithPrefix namespaces the keys so limiters sharing a Redis do not share
// budgets.
func (l *RedisLimiter) WithPrefix(prefix string) *RedisLimiter {
	l.prefix = prefix
	return l
}

func (l *RedisLimiter) Window() time.Duration { return l.window }

func (l *RedisLimiter) Allow(ctx context.Context, identifier string) (bool, error) {
	res, err := slidingWindowScript.Run(ctx, l.rdb, []string{l.prefix + identifier},
		l.now().UnixMilli(),
		l.window.Milliseconds(),
		l.max,
		uuid.NewString(),
	).Int64()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

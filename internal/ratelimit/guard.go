package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrTooSoon         = errors.New("please wait before submitting again")
	ErrTooManyAttempts = errors.New("too many submission attempts")
)

const (
	DefaultMinInterval   = 2 * time.Second
	DefaultMaxAttempts   = 5
	DefaultAttemptWindow = time.Hour
)

// SubmissionGuard enforces the per-form rules: a minimum gap between two
// attempts and a cap on attempts per window. key identifies one form
// instance (form name plus visitor).
type SubmissionGuard interface {
	Check(ctx context.Context, key string) error
}

type GuardOptions struct {
	MinInterval   time.Duration
	MaxAttempts   int
	AttemptWindow time.Duration
}

func (o GuardOptions) withDefaults() GuardOptions {
	if o.MinInterval <= 0 {
		o.MinInterval = DefaultMinInterval
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.AttemptWindow <= 0 {
		o.AttemptWindow = DefaultAttemptWindow
	}
	return o
}

type guardState struct {
	last     time.Time
	attempts []time.Time
}

type MemoryGuard struct {
	mu    sync.Mutex
	opts  GuardOptions
	now   func() time.Time
	state map[string]*guardState
}

func NewMemoryGuard(opts GuardOptions) *MemoryGuard {
	return &MemoryGuard{
		opts:  opts.withDefaults(),
		now:   time.Now,
		state: make(map[string]*guardState),
	}
}

func (g *MemoryGuard) WithClock(now func() time.Time) *MemoryGuard {
	g.now = now
	return g
}

// Check rejects without recording when the attempt is too soon or over the
// cap; otherwise it records the attempt.
func (g *MemoryGuard) Check(_ context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	st, ok := g.state[key]
	if !ok {
		st = &guardState{}
		g.state[key] = st
	}

	if !st.last.IsZero() && now.Sub(st.last) < g.opts.MinInterval {
		return ErrTooSoon
	}

	st.attempts = prune(st.attempts, now.Add(-g.opts.AttemptWindow))
	if len(st.attempts) >= g.opts.MaxAttempts {
		return ErrTooManyAttempts
	}

	st.attempts = append(st.attempts, now)
	st.last = now
	return nil
}

func (g *MemoryGuard) Sweep() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	cutoff := g.now().Add(-g.opts.AttemptWindow)
	removed := 0
	for key, st := range g.state {
		st.attempts = prune(st.attempts, cutoff)
		if len(st.attempts) == 0 && g.now().Sub(st.last) >= g.opts.MinInterval {
			delete(g.state, key)
			removed++
		}
	}
	return removed
}

var guardScript = redis.NewScript(`
local last_key = KEYS[1]
local attempts_key = KEYS[2]
local now_ms = tonumber(ARGV[1])
local min_interval_ms = tonumber(ARGV[2])
local window_ms = tonumber(ARGV[3])
local max = tonumber(ARGV[4])
local member = ARGV[5]

local last = redis.call('GET', last_key)
if last and now_ms - tonumber(last) < min_interval_ms then
	return 1
end

redis.call('ZREMRANGEBYSCORE', attempts_key, '-inf', now_ms - window_ms)
if redis.call('ZCARD', attempts_key) >= max then
	return 2
end

redis.call('ZADD', attempts_key, now_ms, member)
redis.call('PEXPIRE', attempts_key, window_ms)
redis.call('SET', last_key, now_ms, 'PX', min_interval_ms)
return 0
`)

type RedisGuard struct {
	rdb  redis.Scripter
	opts GuardOptions
	now  func() time.Time
}

func NewRedisGuard(rdb redis.Scripter, opts GuardOptions) *RedisGuard {
	return &RedisGuard{rdb: rdb, opts: opts.withDefaults(), now: time.Now}
}

func (g *RedisGuard) Check(ctx context.Context, key string) error {
	res, err := guardScript.Run(ctx, g.rdb,
		[]string{"guard:last:" + key, "guard:attempts:" + key},
		g.now().UnixMilli(),
		g.opts.MinInterval.Milliseconds(),
		g.opts.AttemptWindow.Milliseconds(),
		g.opts.MaxAttempts,
		uuid.NewString(),
	).Int64()
	if err != nil {
		return err
	}
	switch res {
	case 1:
		return ErrTooSoon
	case 2:
		return ErrTooManyAttempts
	default:
		return nil
	}
}

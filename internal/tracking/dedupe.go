package tracking

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduper claims an event id so at most one server-side delivery happens
// per (event name, event id).
type Deduper interface {
	Claim(ctx context.Context, eventName, eventID string) (bool, error)
	Release(ctx context.Context, eventName, eventID string) error
}

type RedisDeduper struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedisDeduper(client redis.Cmdable, ttl time.Duration) *RedisDeduper {
	if ttl <= 0 {
		ttl = 48 * time.Hour
	}
	return &RedisDeduper{client: client, ttl: ttl}
}

func dedupeKey(eventName, eventID string) string {
	return "tracking:event:" + eventName + ":" + eventID
}

func (d *RedisDeduper) Claim(ctx context.Context, eventName, eventID string) (bool, error) {
	return d.client.SetNX(ctx, dedupeKey(eventName, eventID), 1, d.ttl).Result()
}

func (d *RedisDeduper) Release(ctx context.Context, eventName, eventID string) error {
	return d.client.Del(ctx, dedupeKey(eventName, eventID)).Err()
}

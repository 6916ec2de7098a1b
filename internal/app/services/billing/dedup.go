package billing

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

const dedupKeyPrefix = "webhook:event:"

// RedisDeduper remembers handled webhook event IDs in Redis so
// provider retries are acknowledged without reprocessing.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDeduper wraps a Redis client. ttl bounds how long an event
// ID is remembered; zero defaults to 24 hours.
func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisDeduper{client: client, ttl: ttl}
}

// Seen marks eventID and reports whether it was already marked.
func (d *RedisDeduper) Seen(ctx context.Context, eventID string) (bool, error) {
	created, err := d.client.SetNX(ctx, dedupKeyPrefix+eventID, 1, d.ttl).Result()
	if err != nil {
		return false, err
	}
	return !created, nil
}

package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBackend shares counters across nodes.
//
// Every key carries a TTL equal to its window, so the key space is bounded by
// the arrival rate within one window.
type RedisBackend struct {
	client redis.Cmdable
	prefix string
}

// NewRedisBackend returns a backend storing counters under prefix.
func NewRedisBackend(client redis.Cmdable, prefix string) *RedisBackend {
	if prefix == "" {
		prefix = "laba:rl:"
	}
	return &RedisBackend{client: client, prefix: prefix}
}

// Hit implements Backend with INCR, EXPIRE NX and PTTL in one MULTI/EXEC.
func (r *RedisBackend) Hit(ctx context.Context, key string, window time.Duration, now time.Time) (int, time.Time, error) {
	k := r.prefix + key

	var (
		incr *redis.IntCmd
		pttl *redis.DurationCmd
	)
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, k)
		p.ExpireNX(ctx, k, window)
		pttl = p.PTTL(ctx, k)
		return nil
	})
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("ratelimit: redis hit: %w", err)
	}

	ttl := pttl.Val()
	if ttl <= 0 {
		ttl = window
	}
	return int(incr.Val()), now.Add(ttl), nil
}

package lock

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/MouseNguyen/laba-platform-phase1-sub000/cmd/internal/metrics"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements Locker with SET NX PX.
type RedisLocker struct {
	client  RedisClient
	prefix  string
	log     *slog.Logger
	metrics *metrics.Auth

	mu     sync.Mutex
	tokens map[string]string
}

// RedisClient is what RedisLocker needs from go-redis.
type RedisClient interface {
	redis.Scripter
	redis.StringCmdable
}

// NewRedisLocker builds a RedisLocker on client.
func NewRedisLocker(client RedisClient, log *slog.Logger, m *metrics.Auth) *RedisLocker {
	if log == nil {
		log = slog.Default()
	}
	return &RedisLocker{
		client:  client,
		prefix:  "laba:lock:refresh:",
		log:     log,
		metrics: m,
		tokens:  make(map[string]string),
	}
}

// Acquire implements Locker. Redis errors grant the lock.
func (r *RedisLocker) Acquire(ctx context.Context, userID string, ttl time.Duration) bool {
	tok := uuid.NewString()
	ok, err := r.client.SetNX(ctx, r.prefix+userID, tok, ttl).Result()
	if err != nil {
		r.log.Warn("auth.lock.fail_open", "user_id", userID, "err", err)
		r.metrics.FailOpen("lock")
		return true
	}
	if !ok {
		return false
	}

	r.mu.Lock()
	r.tokens[userID] = tok
	r.mu.Unlock()
	return true
}

// Release implements Locker.
func (r *RedisLocker) Release(ctx context.Context, userID string) {
	r.mu.Lock()
	tok, ok := r.tokens[userID]
	delete(r.tokens, userID)
	r.mu.Unlock()
	if !ok {
		return
	}

	if err := releaseScript.Run(ctx, r.client, []string{r.prefix + userID}, tok).Err(); err != nil && !errors.Is(err, redis.Nil) {
		r.log.Warn("auth.lock.release.fail", "user_id", userID, "err", err)
	}
}

package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only if it is still held by our token.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLocker is a cycle.Locker shared by every replica. Locks expire after
// ttl so a crashed holder cannot block a symbol forever.
type RedisLocker struct {
	redis    *RedisClient
	ttl      time.Duration
	minRetry time.Duration
	maxRetry time.Duration
}

// NewRedisLocker creates a locker. ttl must exceed the longest critical
// section.
func NewRedisLocker(redis *RedisClient, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &RedisLocker{redis: redis, ttl: ttl, minRetry: 20 * time.Millisecond, maxRetry: 200 * time.Millisecond}
}

// Lock blocks until the key is acquired or ctx is done.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	client := l.redis.Client()
	if client == nil {
		return nil, fmt.Errorf("redis client not initialized")
	}

	lockKey := "lock:" + key
	token := uuid.NewString()
	delay := l.minRetry

	for {
		ok, err := client.SetNX(ctx, lockKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire %s: %w", lockKey, err)
		}
		if ok {
			break
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		delay *= 2
		if delay > l.maxRetry {
			delay = l.maxRetry
		}
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		releaseScript.Run(releaseCtx, client, []string{lockKey}, token)
	}, nil
}

// Package locks serializes position mutations across service instances.
package locks

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/trogers1052/portfolio-tracker/internal/models"
)

const retryInterval = 25 * time.Millisecond

// Deletes the key only while it still holds our token, so an expired lock
// re-acquired by someone else is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a SET NX lock with a TTL per key
type RedisLocker struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
	wait   time.Duration
	log    zerolog.Logger
}

// NewRedisLocker creates a locker. ttl bounds how long a crashed holder can
// block a key; wait bounds how long Lock retries before giving up.
func NewRedisLocker(rdb *redis.Client, prefix string, ttl, wait time.Duration, log zerolog.Logger) *RedisLocker {
	return &RedisLocker{
		rdb:    rdb,
		prefix: prefix,
		ttl:    ttl,
		wait:   wait,
		log:    log.With().Str("component", "locks").Logger(),
	}
}

// Lock blocks until key is acquired, wait elapses (models.ErrLockTimeout) or
// ctx is done.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	fullKey := l.prefix + key
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.rdb.SetNX(ctx, fullKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
		}
		if ok {
			return func() { l.release(fullKey, token) }, nil
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("lock %s: %w", key, models.ErrLockTimeout)
		}

		timer := time.NewTimer(retryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (l *RedisLocker) release(key, token string) {
	// The caller's context may already be cancelled; the release must still go out.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := releaseScript.Run(ctx, l.rdb, []string{key}, token).Err(); err != nil {
		l.log.Warn().Err(err).Str("key", key).Msg("failed to release lock")
	}
}

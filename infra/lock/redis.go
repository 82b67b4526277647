package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mstgnz/oxipay/infra/logger"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "oxipay:lock:session:"

// releaseScript deletes the key only while it still carries our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// refreshScript extends the key only while it still carries our token
var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLocker holds per-session locks across processes with SET NX PX.
// A held lock is extended every ttl/3 until it is released, so the TTL only bounds
// how long a crashed process can block a session.
type RedisLocker struct {
	rdb        redis.UniversalClient
	ttl        time.Duration
	retryDelay time.Duration
	maxDelay   time.Duration
}

// NewRedisLocker creates a locker. ttl bounds how long a crashed holder can block a session.
func NewRedisLocker(rdb redis.UniversalClient, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{
		rdb:        rdb,
		ttl:        ttl,
		retryDelay: 10 * time.Millisecond,
		maxDelay:   250 * time.Millisecond,
	}
}

// Lock retries until the key is acquired or ctx is done
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := keyPrefix + key
	token := uuid.New().String()
	delay := l.retryDelay

	for {
		ok, err := l.rdb.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("lock: acquire %s: %w", key, err)
		}
		if ok {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		if delay *= 2; delay > l.maxDelay {
			delay = l.maxDelay
		}
	}

	stop := make(chan struct{})
	stopped := make(chan struct{})
	go l.keepAlive(redisKey, key, token, stop, stopped)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-stopped

			// the caller's ctx may already be cancelled
			releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := releaseScript.Run(releaseCtx, l.rdb, []string{redisKey}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
				// the TTL frees the key eventually
				logger.Warn("failed to release session lock", logger.LogContext{
					SessionRef: key,
					Fields:     map[string]any{"error": err.Error()},
				})
			}
		})
	}, nil
}

// keepAlive re-arms the key's TTL until stop is closed or the token is no longer ours
func (l *RedisLocker) keepAlive(redisKey, key, token string, stop <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)

	interval := l.ttl / 3
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), interval)
		extended, err := refreshScript.Run(ctx, l.rdb, []string{redisKey}, token, l.ttl.Milliseconds()).Int64()
		cancel()
		if err != nil {
			// retried on the next tick, the key survives until its TTL runs out
			logger.Warn("failed to extend session lock", logger.LogContext{
				SessionRef: key,
				Fields:     map[string]any{"error": err.Error()},
			})
			continue
		}
		if extended == 0 {
			logger.Warn("session lock lost before release", logger.LogContext{SessionRef: key})
			return
		}
	}
}

// Ping checks the Redis connection
func (l *RedisLocker) Ping(ctx context.Context) error {
	return l.rdb.Ping(ctx).Err()
}

package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"bibleverse-backend/internal/database"
	"bibleverse-backend/pkg/logger"
)

// releaseScript deletes the lock only while it still carries our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type locker interface {
	Lock(ctx context.Context, callID string) (func(), error)
}

// CallLocker serializes call transitions across instances with SET NX PX.
// While Redis is degraded it hands out locks from fallback.
type CallLocker struct {
	client     *database.RedisClient
	fallback   locker
	ttl        time.Duration
	retryDelay time.Duration
	maxDelay   time.Duration
}

// NewCallLocker creates a CallLocker. ttl bounds how long a crashed holder blocks a call.
func NewCallLocker(client *database.RedisClient, fallback locker, ttl time.Duration) *CallLocker {
	return &CallLocker{
		client:     client,
		fallback:   fallback,
		ttl:        ttl,
		retryDelay: 10 * time.Millisecond,
		maxDelay:   200 * time.Millisecond,
	}
}

func callLockKey(callID string) string {
	return fmt.Sprintf("call:lock:%s", callID)
}

// Lock blocks until the call lock is held or ctx is done
func (l *CallLocker) Lock(ctx context.Context, callID string) (func(), error) {
	if l.client.IsDegraded() && l.fallback != nil {
		return l.fallback.Lock(ctx, callID)
	}

	key := callLockKey(callID)
	token := uuid.NewString()
	delay := l.retryDelay

	for {
		ok, err := l.client.SafeSetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			if errors.Is(err, database.ErrRedisDegraded) && l.fallback != nil {
				return l.fallback.Lock(ctx, callID)
			}
			return nil, fmt.Errorf("failed to acquire call lock: %w", err)
		}
		if ok {
			return func() { l.release(key, token) }, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		if delay *= 2; delay > l.maxDelay {
			delay = l.maxDelay
		}
	}
}

func (l *CallLocker) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := l.client.SafeEval(ctx, releaseScript, []string{key}, token).Err(); err != nil {
		// The TTL frees the call eventually
		logger.Warn("Failed to release call lock", zap.String("key", key), zap.Error(err))
	}
}

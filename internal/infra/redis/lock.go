// File: internal/infra/redis/lock.go
package redis

import (
	"context"
	"time"

	"dispatch-bot/internal/domain"
	"dispatch-bot/internal/domain/ports/adapter"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

var _ adapter.Locker = (*RedisLocker)(nil)

type RedisLocker struct {
	client   *Client
	attempts int
	wait     time.Duration
}

func NewLocker(c *Client) *RedisLocker {
	return &RedisLocker{client: c, attempts: 3, wait: 50 * time.Millisecond}
}

// TryLock returns domain.ErrLockNotAcquired when another holder keeps the key
// for all attempts.
func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	var lastErr error
	for i := 0; i < l.attempts; i++ {
		ok, err := l.client.cli.SetNX(ctx, l.client.key("lock", key), token, ttl).Result()
		if err == nil && ok {
			return token, nil
		}
		lastErr = err
		if i == l.attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(l.wait):
		}
	}
	if lastErr != nil {
		return "", lastErr
	}
	return "", domain.ErrLockNotAcquired
}

var luaUnlock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`)

// Unlock only releases a key still holding token.
func (l *RedisLocker) Unlock(ctx context.Context, key, token string) error {
	_, err := luaUnlock.Run(ctx, l.client.cli, []string{l.client.key("lock", key)}, token).Result()
	return err
}

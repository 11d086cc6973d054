package rediscache

import (
	"context"
	"time"

	"github.com/BearBump/ShipBox/internal/cache"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker is a SETNX lock. The holder token lets Unlock skip a lock that
// expired and was taken by somebody else.
type Locker struct {
	c *redis.Client
}

var _ cache.Locker = (*Locker)(nil)

func NewLocker(c *redis.Client) *Locker {
	return &Locker{c: c}
}

func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := l.c.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", false, errors.Wrap(err, "redis setnx")
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

func (l *Locker) Unlock(ctx context.Context, key, token string) error {
	if err := unlockScript.Run(ctx, l.c, []string{key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return errors.Wrap(err, "redis unlock")
	}
	return nil
}

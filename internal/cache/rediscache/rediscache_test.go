package rediscache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestRedisCache_GetSetDelete(t *testing.T) {
	mr := miniredis.RunT(t)
	c := New(mr.Addr())
	t.Cleanup(func() { _ = c.Close() })

	ctx := context.Background()
	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	b, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v"), b)

	mr.FastForward(2 * time.Minute)
	_, ok, err = c.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	require.NoError(t, c.Delete(ctx, "k"))
	require.False(t, mr.Exists("k"))
	require.NoError(t, c.Ping(ctx))
}

func TestRedisCache_GetError(t *testing.T) {
	mr := miniredis.RunT(t)
	c := New(mr.Addr())
	mr.Close()

	_, _, err := c.Get(context.Background(), "k")
	require.Error(t, err)
}

func TestRateLimiter_Allow(t *testing.T) {
	mr := miniredis.RunT(t)
	rl := NewRateLimiter(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	ctx := context.Background()
	ok, n, err := rl.Allow(ctx, "rl:test", 2, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(1), n)

	ok, n, _ = rl.Allow(ctx, "rl:test", 2, time.Minute)
	require.True(t, ok)
	require.Equal(t, int64(2), n)

	ok, n, _ = rl.Allow(ctx, "rl:test", 2, time.Minute)
	require.False(t, ok)
	require.Equal(t, int64(3), n)
}

func TestLocker_TryLockUnlock(t *testing.T) {
	mr := miniredis.RunT(t)
	l := NewLocker(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	ctx := context.Background()

	tok, ok, err := l.TryLock(ctx, "lock:a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEmpty(t, tok)

	_, ok, err = l.TryLock(ctx, "lock:a", time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	// чужой токен не снимает блокировку
	require.NoError(t, l.Unlock(ctx, "lock:a", "someone-else"))
	require.True(t, mr.Exists("lock:a"))

	require.NoError(t, l.Unlock(ctx, "lock:a", tok))
	require.False(t, mr.Exists("lock:a"))

	_, ok, err = l.TryLock(ctx, "lock:a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
}

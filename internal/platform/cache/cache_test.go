package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniredis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedisKV(t *testing.T) {
	mr, client := newMiniredis(t)
	kv := NewRedisKV(client)
	ctx := context.Background()

	_, err := kv.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, kv.Set(ctx, "hospital:names", `["A","B"]`, time.Hour))
	got, err := kv.Get(ctx, "hospital:names")
	require.NoError(t, err)
	assert.Equal(t, `["A","B"]`, got)

	mr.FastForward(2 * time.Hour)
	_, err = kv.Get(ctx, "hospital:names")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, kv.Set(ctx, "k", "v", 0))
	require.NoError(t, kv.Delete(ctx, "k"))
	_, err = kv.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := NewRedisClient(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	defer client.Close()

	_, err = NewRedisClient(context.Background(), "://bad")
	assert.Error(t, err)
}

func TestMemoryKV_Expiry(t *testing.T) {
	kv := NewMemoryKV()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	kv.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, kv.Set(ctx, "k", "v", time.Minute))
	got, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)

	now = now.Add(time.Minute)
	_, err = kv.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestRedisLimiter(t *testing.T) {
	mr, client := newMiniredis(t)
	l := NewRedisLimiter(client, "verify:", 3, 15*time.Minute)
	ctx := context.Background()

	exceeded, err := l.Exceeded(ctx, "a@b.co")
	require.NoError(t, err)
	assert.False(t, exceeded)

	for i := 1; i <= 3; i++ {
		n, err := l.Fail(ctx, "a@b.co")
		require.NoError(t, err)
		assert.Equal(t, i, n)
	}

	exceeded, err = l.Exceeded(ctx, "a@b.co")
	require.NoError(t, err)
	assert.True(t, exceeded)
	assert.True(t, mr.TTL("verify:a@b.co") > 0, "window must be set")

	mr.FastForward(16 * time.Minute)
	exceeded, err = l.Exceeded(ctx, "a@b.co")
	require.NoError(t, err)
	assert.False(t, exceeded)

	_, err = l.Fail(ctx, "a@b.co")
	require.NoError(t, err)
	require.NoError(t, l.Reset(ctx, "a@b.co"))
	exceeded, err = l.Exceeded(ctx, "a@b.co")
	require.NoError(t, err)
	assert.False(t, exceeded)
}

func TestMemoryLimiter(t *testing.T) {
	l := NewMemoryLimiter(2, time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	n, _ := l.Fail(ctx, "k")
	assert.Equal(t, 1, n)
	exceeded, _ := l.Exceeded(ctx, "k")
	assert.False(t, exceeded)

	n, _ = l.Fail(ctx, "k")
	assert.Equal(t, 2, n)
	exceeded, _ = l.Exceeded(ctx, "k")
	assert.True(t, exceeded)

	now = now.Add(time.Minute)
	exceeded, _ = l.Exceeded(ctx, "k")
	assert.False(t, exceeded, "window elapsed")

	l.Fail(ctx, "k")
	require.NoError(t, l.Reset(ctx, "k"))
	exceeded, _ = l.Exceeded(ctx, "k")
	assert.False(t, exceeded)
}

func TestMemoryLimiter_SweepsExpiredCounters(t *testing.T) {
	l := NewMemoryLimiter(3, time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for _, key := range []string{"a@b.co", "c@d.co", "e@f.co"} {
		_, err := l.Fail(ctx, key)
		require.NoError(t, err)
	}
	assert.Len(t, l.counters, 3)

	now = now.Add(30 * time.Second)
	_, _ = l.Fail(ctx, "g@h.co")
	assert.Len(t, l.counters, 4, "nothing expired yet")

	now = now.Add(45 * time.Second)
	_, err := l.Fail(ctx, "i@j.co")
	require.NoError(t, err)
	assert.Len(t, l.counters, 2)
	assert.Contains(t, l.counters, "g@h.co")
	assert.Contains(t, l.counters, "i@j.co")
}

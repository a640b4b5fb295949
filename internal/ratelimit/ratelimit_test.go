package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisLimiter(t *testing.T, limits Limits) (*RedisLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLimiter(client, limits), mr
}

func TestRedisLimiterTechnicianCap(t *testing.T) {
	l, _ := newRedisLimiter(t, Limits{PerTechnician: 3, SystemWide: 15})
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		d, err := l.Reserve(ctx, "tech-a")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, i, d.TechnicianCount)
	}

	d, err := l.Reserve(ctx, "tech-a")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonTechnicianLimit, d.Reason)

	d, err = l.Reserve(ctx, "tech-b")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 4, d.SystemCount)
}

func TestRedisLimiterSystemCap(t *testing.T) {
	l, _ := newRedisLimiter(t, Limits{PerTechnician: 3, SystemWide: 2})
	ctx := context.Background()

	_, err := l.Reserve(ctx, "tech-a")
	require.NoError(t, err)
	_, err = l.Reserve(ctx, "tech-b")
	require.NoError(t, err)

	d, err := l.Check(ctx, "tech-c")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonSystemLimit, d.Reason)
	assert.Equal(t, 0, d.TechnicianCount)
	assert.Equal(t, 2, d.SystemCount)
}

func TestRedisLimiterReleaseAndExpiry(t *testing.T) {
	l, mr := newRedisLimiter(t, Limits{PerTechnician: 1, SystemWide: 15})
	now := time.Date(2024, 5, 10, 22, 30, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	_, err := l.Reserve(ctx, "tech-a")
	require.NoError(t, err)
	require.NoError(t, l.Release(ctx, "tech-a"))

	d, err := l.Reserve(ctx, "tech-a")
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	ttl := mr.TTL("ratelimit:tech-a:2024-05-10")
	assert.Greater(t, ttl, time.Duration(0))

	require.NoError(t, l.Release(ctx, "tech-a"))
	require.NoError(t, l.Release(ctx, "tech-a"))
	v, err := mr.Get("ratelimit:system:2024-05-10")
	require.NoError(t, err)
	assert.Equal(t, "0", v)
}

func TestRedisLimiterNewDayResets(t *testing.T) {
	l, _ := newRedisLimiter(t, Limits{PerTechnician: 1, SystemWide: 15})
	now := time.Date(2024, 5, 10, 23, 59, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	_, err := l.Reserve(ctx, "tech-a")
	require.NoError(t, err)
	d, err := l.Reserve(ctx, "tech-a")
	require.NoError(t, err)
	assert.False(t, d.Allowed)

	now = now.Add(2 * time.Minute)
	d, err = l.Reserve(ctx, "tech-a")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestMemoryLimiterConcurrentReserve(t *testing.T) {
	l := NewMemoryLimiter(Limits{PerTechnician: 3, SystemWide: 15})
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := l.Reserve(ctx, "tech-a")
			if err == nil && d.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 3, allowed)

	d, err := l.Check(ctx, "tech-a")
	require.NoError(t, err)
	assert.Equal(t, ReasonTechnicianLimit, d.Reason)
}

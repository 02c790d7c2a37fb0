package service_test

import (
	"context"
	"testing"
	"time"

	"safevoice/internal/grievance/service"
	pkgerrors "safevoice/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterAllow(t *testing.T) {
	ctx := context.Background()
	mr, redisCache := newRedisCache(t)
	limiter := service.NewRateLimiter(redisCache, 3, time.Minute, time.Second)

	for i := 0; i < 3; i++ {
		require.NoError(t, limiter.Allow(ctx, "k"))
	}
	requireCode(t, limiter.Allow(ctx, "k"), pkgerrors.TooManyRequests)
	require.NoError(t, limiter.Allow(ctx, "other"))

	ttl := mr.TTL("k")
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Minute)

	mr.FastForward(time.Minute + time.Second)
	require.NoError(t, limiter.Allow(ctx, "k"))
}

func TestRateLimiterRepairsMissingExpiry(t *testing.T) {
	ctx := context.Background()
	mr, redisCache := newRedisCache(t)
	limiter := service.NewRateLimiter(redisCache, 5, time.Minute, time.Second)

	require.NoError(t, mr.Set("k", "1"))
	require.NoError(t, limiter.Allow(ctx, "k"))
	assert.Greater(t, mr.TTL("k"), time.Duration(0))
}

func TestRateLimiterDisabled(t *testing.T) {
	ctx := context.Background()
	var nilLimiter *service.RateLimiter
	require.NoError(t, nilLimiter.Allow(ctx, "k"))

	unlimited := service.NewRateLimiter(nil, 0, time.Minute, time.Second)
	for i := 0; i < 10; i++ {
		require.NoError(t, unlimited.Allow(ctx, "k"))
	}
}

func TestRateLimiterCacheDown(t *testing.T) {
	mr, redisCache := newRedisCache(t)
	limiter := service.NewRateLimiter(redisCache, 3, time.Minute, 200*time.Millisecond)
	mr.Close()

	requireCode(t, limiter.Allow(context.Background(), "k"), pkgerrors.CacheError)
}

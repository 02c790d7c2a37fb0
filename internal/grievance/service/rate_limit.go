package service

import (
	"context"
	"fmt"
	"time"

	"safevoice/internal/common/cache"
	pkgerrors "safevoice/pkg/errors"
)

// RateLimiter enforces fixed-window limits using Redis.
type RateLimiter struct {
	cache        cache.BasicOps
	max          int
	window       time.Duration
	redisTimeout time.Duration
}

// NewRateLimiter allows max hits per window and key; max <= 0 disables the limit.
func NewRateLimiter(cacheClient cache.BasicOps, max int, window, redisTimeout time.Duration) *RateLimiter {
	if window <= 0 {
		window = time.Minute
	}
	if redisTimeout <= 0 {
		redisTimeout = time.Second
	}
	return &RateLimiter{cache: cacheClient, max: max, window: window, redisTimeout: redisTimeout}
}

// Allow counts one hit for key and fails with TooManyRequests once the window is full.
func (l *RateLimiter) Allow(ctx context.Context, key string) error {
	if l == nil || l.max <= 0 {
		return nil
	}
	if l.cache == nil {
		return pkgerrors.New(pkgerrors.ServiceUnavailable).WithMessage("rate limit cache is unavailable")
	}

	ctxCache, cancel := context.WithTimeout(ctx, l.redisTimeout)
	defer cancel()

	count, err := l.cache.Incr(ctxCache, key)
	if err != nil {
		return pkgerrors.Wrapf(err, pkgerrors.CacheError, "rate limit check failed")
	}
	if count == 1 {
		if err := l.cache.Expire(ctxCache, key, l.window); err != nil {
			return pkgerrors.Wrapf(err, pkgerrors.CacheError, "rate limit check failed")
		}
	} else if ttl, ttlErr := l.cache.TTL(ctxCache, key); ttlErr == nil && ttl < 0 {
		// A crash between Incr and Expire leaves a key that never expires.
		_ = l.cache.Expire(ctxCache, key, l.window)
	}
	if int(count) > l.max {
		return pkgerrors.New(pkgerrors.TooManyRequests).WithMessage(fmt.Sprintf("rate limit exceeded for %s", key))
	}
	return nil
}

func submissionRateKey(reporterID int64) string {
	return fmt.Sprintf("safevoice:ratelimit:submit:%d", reporterID)
}

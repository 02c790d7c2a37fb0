package service_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"safevoice/internal/common/cache"
	"safevoice/internal/grievance/model"
	"safevoice/internal/grievance/service"
	pkgerrors "safevoice/pkg/errors"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSecret = "test-secret"
	testIssuer = "safevoice"
)

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return raw
}

func accessClaims(sub, role string) jwt.MapClaims {
	return jwt.MapClaims{
		"sub":  sub,
		"role": role,
		"typ":  "access",
		"iss":  testIssuer,
		"exp":  time.Now().Add(time.Hour).Unix(),
	}
}

func newRedisCache(t *testing.T) (*miniredis.Miniredis, *cache.RedisCache) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	redisCache, err := cache.NewRedisCacheWithClient(client)
	require.NoError(t, err)
	return mr, redisCache
}

func TestAuthenticateValidToken(t *testing.T) {
	auth := service.NewAuthService(testSecret, testIssuer, nil, 0)

	principal, err := auth.Authenticate(context.Background(), signToken(t, testSecret, accessClaims("7", "Resolver")))
	require.NoError(t, err)
	assert.Equal(t, model.Principal{ID: 7, Role: model.RoleResolver}, principal)
}

func TestAuthenticateRejectsBadTokens(t *testing.T) {
	auth := service.NewAuthService(testSecret, testIssuer, nil, 0)

	expired := accessClaims("1", "reporter")
	expired["exp"] = time.Now().Add(-time.Minute).Unix()
	wrongIssuer := accessClaims("1", "reporter")
	wrongIssuer["iss"] = "someone-else"
	refresh := accessClaims("1", "reporter")
	refresh["typ"] = "refresh"
	noExpiry := accessClaims("1", "reporter")
	delete(noExpiry, "exp")

	tests := []struct {
		name string
		raw  string
		code pkgerrors.ErrorCode
	}{
		{"empty", "", pkgerrors.TokenInvalid},
		{"garbage", "not-a-jwt", pkgerrors.TokenInvalid},
		{"wrong secret", signToken(t, "other-secret", accessClaims("1", "reporter")), pkgerrors.TokenInvalid},
		{"expired", signToken(t, testSecret, expired), pkgerrors.TokenExpired},
		{"wrong issuer", signToken(t, testSecret, wrongIssuer), pkgerrors.TokenInvalid},
		{"refresh token", signToken(t, testSecret, refresh), pkgerrors.TokenInvalid},
		{"missing expiry", signToken(t, testSecret, noExpiry), pkgerrors.TokenInvalid},
		{"non numeric subject", signToken(t, testSecret, accessClaims("asha", "reporter")), pkgerrors.TokenInvalid},
		{"zero subject", signToken(t, testSecret, accessClaims("0", "reporter")), pkgerrors.TokenInvalid},
		{"unknown role", signToken(t, testSecret, accessClaims("1", "superuser")), pkgerrors.InvalidRole},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			principal, err := auth.Authenticate(context.Background(), tt.raw)
			requireCode(t, err, tt.code)
			assert.True(t, principal.IsAnonymous())
		})
	}
}

func TestAuthenticateRejectsOtherAlgorithms(t *testing.T) {
	auth := service.NewAuthService(testSecret, testIssuer, nil, 0)
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS512, accessClaims("1", "admin")).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = auth.Authenticate(context.Background(), raw)
	requireCode(t, err, pkgerrors.TokenInvalid)
}

func TestRevokeToken(t *testing.T) {
	ctx := context.Background()
	mr, redisCache := newRedisCache(t)
	auth := service.NewAuthService(testSecret, testIssuer, redisCache, time.Second)
	raw := signToken(t, testSecret, accessClaims("3", "admin"))

	_, err := auth.Authenticate(ctx, raw)
	require.NoError(t, err)

	require.NoError(t, auth.Revoke(ctx, raw))
	sum := sha256.Sum256([]byte(raw))
	key := "safevoice:revoked:" + hex.EncodeToString(sum[:])
	require.True(t, mr.Exists(key))
	ttl := mr.TTL(key)
	assert.Greater(t, ttl, 50*time.Minute)
	assert.LessOrEqual(t, ttl, time.Hour)

	_, err = auth.Authenticate(ctx, raw)
	requireCode(t, err, pkgerrors.TokenInvalid)

	other := signToken(t, testSecret, accessClaims("4", "admin"))
	_, err = auth.Authenticate(ctx, other)
	require.NoError(t, err)
}

func TestRevokeWithoutCache(t *testing.T) {
	auth := service.NewAuthService(testSecret, testIssuer, nil, 0)
	err := auth.Revoke(context.Background(), signToken(t, testSecret, accessClaims("3", "admin")))
	requireCode(t, err, pkgerrors.ServiceUnavailable)
}

func TestAuthenticateFailsClosedWhenCacheDown(t *testing.T) {
	mr, redisCache := newRedisCache(t)
	auth := service.NewAuthService(testSecret, testIssuer, redisCache, 200*time.Millisecond)
	mr.Close()

	_, err := auth.Authenticate(context.Background(), signToken(t, testSecret, accessClaims("3", "admin")))
	requireCode(t, err, pkgerrors.ServiceUnavailable)
}

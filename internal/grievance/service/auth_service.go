package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"time"

	"safevoice/internal/common/cache"
	"safevoice/internal/grievance/model"
	pkgerrors "safevoice/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
)

const revokedTokenKeyPrefix = "safevoice:revoked:"

// AuthService turns a bearer token into a Principal. Credential checks and
// token issuance live outside this service.
type AuthService struct {
	jwtSecret    []byte
	jwtIssuer    string
	revocations  cache.BasicOps
	cacheTimeout time.Duration
}

func NewAuthService(jwtSecret, jwtIssuer string, revocations cache.BasicOps, cacheTimeout time.Duration) *AuthService {
	if cacheTimeout <= 0 {
		cacheTimeout = time.Second
	}
	return &AuthService{
		jwtSecret:    []byte(jwtSecret),
		jwtIssuer:    jwtIssuer,
		revocations:  revocations,
		cacheTimeout: cacheTimeout,
	}
}

type tokenClaims struct {
	Role      string `json:"role"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// Authenticate verifies raw and returns the principal it names.
func (s *AuthService) Authenticate(ctx context.Context, raw string) (model.Principal, error) {
	if raw == "" {
		return model.Anonymous, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	claims, err := s.parseToken(raw)
	if err != nil {
		return model.Anonymous, err
	}
	principalID, err := parsePrincipalID(claims.Subject)
	if err != nil {
		return model.Anonymous, err
	}
	role, ok := model.ParseRole(claims.Role)
	if !ok {
		return model.Anonymous, pkgerrors.New(pkgerrors.InvalidRole)
	}
	if s.revocations != nil {
		revoked, err := s.isRevoked(ctx, raw)
		if err != nil {
			return model.Anonymous, pkgerrors.Wrap(err, pkgerrors.ServiceUnavailable)
		}
		if revoked {
			return model.Anonymous, pkgerrors.New(pkgerrors.TokenInvalid)
		}
	}
	return model.Principal{ID: principalID, Role: role}, nil
}

// Revoke blocks raw until it would have expired anyway.
func (s *AuthService) Revoke(ctx context.Context, raw string) error {
	if s.revocations == nil {
		return pkgerrors.New(pkgerrors.ServiceUnavailable).WithMessage("token revocation is not configured")
	}
	claims, err := s.parseToken(raw)
	if err != nil {
		return err
	}
	ttl := time.Until(claims.ExpiresAt.Time)
	if ttl <= 0 {
		return nil
	}
	ctxCache, cancel := context.WithTimeout(ctx, s.cacheTimeout)
	defer cancel()
	if err := s.revocations.Set(ctxCache, revokedTokenKeyPrefix+hashToken(raw), 1, ttl); err != nil {
		return pkgerrors.Wrapf(err, pkgerrors.CacheError, "revoke token failed")
	}
	return nil
}

func (s *AuthService) isRevoked(ctx context.Context, raw string) (bool, error) {
	ctxCache, cancel := context.WithTimeout(ctx, s.cacheTimeout)
	defer cancel()
	n, err := s.revocations.Exists(ctxCache, revokedTokenKeyPrefix+hashToken(raw))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *AuthService) parseToken(raw string) (*tokenClaims, error) {
	if len(s.jwtSecret) == 0 {
		return nil, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if s.jwtIssuer != "" {
		opts = append(opts, jwt.WithIssuer(s.jwtIssuer))
	}
	parsed, err := jwt.ParseWithClaims(raw, &tokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, pkgerrors.New(pkgerrors.TokenExpired)
		}
		return nil, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	claims, ok := parsed.Claims.(*tokenClaims)
	if !ok || !parsed.Valid {
		return nil, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	if claims.TokenType != "access" || claims.Subject == "" {
		return nil, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	return claims, nil
}

func parsePrincipalID(subject string) (int64, error) {
	id, err := strconv.ParseInt(subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	return id, nil
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

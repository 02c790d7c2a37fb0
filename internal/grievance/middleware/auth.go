package middleware

import (
	"context"
	"strconv"
	"strings"

	"safevoice/internal/grievance/model"
	"safevoice/internal/grievance/service"
	pkgerrors "safevoice/pkg/errors"
	"safevoice/pkg/utils/contextkey"
	"safevoice/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

const principalContextKey = "principal"

// AuthMiddleware resolves the acting principal from a bearer token. Requests
// without a token continue as Anonymous; role and ownership rules are enforced
// by the lifecycle operations themselves.
func AuthMiddleware(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ExtractBearerToken(c.GetHeader("Authorization"))
		if token == "" {
			c.Set(principalContextKey, model.Anonymous)
			c.Next()
			return
		}
		if authService == nil {
			response.AbortWithErrorCode(c, pkgerrors.ServiceUnavailable, "auth service unavailable")
			return
		}

		principal, err := authService.Authenticate(c.Request.Context(), token)
		if err != nil {
			response.AbortWithError(c, err)
			return
		}

		c.Set(principalContextKey, principal)
		ctx := context.WithValue(c.Request.Context(), contextkey.UserID, strconv.FormatInt(principal.ID, 10))
		ctx = context.WithValue(ctx, contextkey.Role, string(principal.Role))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// PrincipalFrom returns the principal set by AuthMiddleware, or Anonymous.
func PrincipalFrom(c *gin.Context) model.Principal {
	if v, ok := c.Get(principalContextKey); ok {
		if p, ok := v.(model.Principal); ok {
			return p
		}
	}
	return model.Anonymous
}

// ExtractBearerToken returns the token of an "Authorization: Bearer" header.
func ExtractBearerToken(authHeader string) string {
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

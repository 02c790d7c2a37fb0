package controller

import (
	"safevoice/internal/grievance/middleware"
	"safevoice/internal/grievance/service"
	"safevoice/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// SessionController ends sessions by revoking their access tokens.
type SessionController struct {
	auth *service.AuthService
}

func NewSessionController(auth *service.AuthService) *SessionController {
	return &SessionController{auth: auth}
}

// Register mounts the session routes on group.
func (h *SessionController) Register(group *gin.RouterGroup) {
	group.DELETE("/session", h.Revoke)
}

// Revoke blocks the caller's token for the rest of its lifetime.
func (h *SessionController) Revoke(c *gin.Context) {
	if middleware.PrincipalFrom(c).IsAnonymous() {
		response.Unauthorized(c, "Missing access token")
		return
	}
	token := middleware.ExtractBearerToken(c.GetHeader("Authorization"))
	if err := h.auth.Revoke(c.Request.Context(), token); err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMessage(c, "Session ended", nil)
}

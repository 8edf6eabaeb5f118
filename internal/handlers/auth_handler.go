package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/rail-reservation/internal/models"
	"github.com/smarttransit/rail-reservation/internal/services"
	"github.com/smarttransit/rail-reservation/internal/utils"
)

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	auth    *services.AuthService
	limiter *services.RateLimitService
	audits  *services.AuditService
	logger  *logrus.Logger
}

// NewAuthHandler creates a new AuthHandler. limiter may be nil.
func NewAuthHandler(
	auth *services.AuthService,
	limiter *services.RateLimitService,
	audits *services.AuditService,
	logger *logrus.Logger,
) *AuthHandler {
	return &AuthHandler{auth: auth, limiter: limiter, audits: audits, logger: logger}
}

// Login handles POST /api/v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	ctx := c.Request.Context()
	ip := utils.ClientIP(c)

	if h.limiter != nil {
		if err := h.limiter.CheckLoginAttempt(ctx, req.Email, ip); err != nil {
			writeError(c, h.logger, err)
			return
		}
	}

	resp, err := h.auth.Login(ctx, &req)
	if err != nil {
		if errors.Is(err, models.ErrInvalidCredentials) {
			h.audits.Record(ctx, models.AuditEvent{
				Action:     models.AuditLoginFailed,
				EntityType: "user",
				IPAddress:  ip,
				UserAgent:  utils.UserAgent(c),
				Details:    models.JSONMap{"email": strings.ToLower(strings.TrimSpace(req.Email))},
			})
		}
		writeError(c, h.logger, err)
		return
	}

	if h.limiter != nil {
		h.limiter.ResetLogin(ctx, req.Email)
	}

	h.audits.Record(ctx, models.AuditEvent{
		UserID:     &resp.User.ID,
		Action:     models.AuditLogin,
		EntityType: "user",
		EntityID:   resp.User.ID.String(),
		IPAddress:  ip,
		UserAgent:  utils.UserAgent(c),
	})

	c.JSON(http.StatusOK, resp)
}

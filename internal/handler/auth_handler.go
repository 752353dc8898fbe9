package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/shaamilshan/hamme/internal/domain"
	"github.com/shaamilshan/hamme/pkg/log"
	"github.com/shaamilshan/hamme/pkg/middleware"
	"github.com/shaamilshan/hamme/pkg/response"
)

// Register handles user registration.
func (h *Handler) Register(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)
	var req domain.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("invalid register request")
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.users.Register(ctx, &req)
	if err != nil {
		writeError(c, err, "failed to register user")
		return
	}

	response.Created(c, result)
}

// Login handles user login.
func (h *Handler) Login(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)
	var req domain.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("invalid login request")
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.users.Login(ctx, &req)
	if err != nil {
		writeError(c, err, "failed to login")
		return
	}

	response.Success(c, result)
}

// RefreshToken handles token refresh.
func (h *Handler) RefreshToken(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)
	var req domain.RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("invalid refresh token request")
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.users.RefreshToken(ctx, &req)
	if err != nil {
		l.Warn().Err(err).Msg("refresh token failed")
		response.Unauthorized(c, "invalid or expired refresh token")
		return
	}

	response.Success(c, result)
}

// Logout revokes the presented access token.
func (h *Handler) Logout(c *gin.Context) {
	if err := h.users.Logout(c.Request.Context(), middleware.GetClaims(c)); err != nil {
		writeError(c, err, "failed to logout")
		return
	}

	response.Success(c, gin.H{"message": "logged out"})
}

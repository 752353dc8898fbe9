package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/shaamilshan/hamme/internal/domain"
	"github.com/shaamilshan/hamme/pkg/log"
	"github.com/shaamilshan/hamme/pkg/middleware"
	"github.com/shaamilshan/hamme/pkg/response"
)

// SubmitChoice records the caller's choice about another profile.
func (h *Handler) SubmitChoice(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	var req domain.ChoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("invalid choice request")
		response.BadRequest(c, "invalid request body")
		return
	}

	result, err := h.matching.Submit(ctx, middleware.GetUserID(c), req.TargetUserID, req.Choice)
	if err != nil {
		writeError(c, err, "failed to submit choice")
		return
	}

	response.Success(c, result)
}

// ListPending lists recent inbound choices the caller has not answered.
func (h *Handler) ListPending(c *gin.Context) {
	pending, err := h.matching.ListPending(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		writeError(c, err, "failed to list pending profiles")
		return
	}

	response.Success(c, gin.H{"profiles": pending})
}

// ListMatches lists the caller's active matches.
func (h *Handler) ListMatches(c *gin.Context) {
	matches, err := h.matching.ListActiveMatches(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		writeError(c, err, "failed to list matches")
		return
	}

	response.Success(c, gin.H{"matches": matches})
}

// GetPublicProfile returns a public profile and, for an authenticated
// caller, the caller's current vote on it.
func (h *Handler) GetPublicProfile(c *gin.Context) {
	view, err := h.matching.GetPublicProfile(c.Request.Context(), middleware.GetUserID(c), c.Param("userId"))
	if err != nil {
		writeError(c, err, "failed to get profile")
		return
	}

	response.Success(c, view)
}

package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shaamilshan/hamme/internal/service"
	"github.com/shaamilshan/hamme/pkg/log"
	"github.com/shaamilshan/hamme/pkg/middleware"
	"github.com/shaamilshan/hamme/pkg/response"
)

// Handler handles HTTP requests for the matching API.
type Handler struct {
	matching       service.MatchingService
	users          service.UserService
	profiles       service.ProfileService
	authMiddleware *middleware.AuthMiddleware
	choiceLimiter  *middleware.RateLimiter
	maxUploadBytes int64
}

// Options holds the optional parts of a Handler.
type Options struct {
	// ChoiceLimiter rate limits choice submissions. Nil disables it.
	ChoiceLimiter  *middleware.RateLimiter
	MaxUploadBytes int64
}

// NewHandler creates a new HTTP handler.
func NewHandler(
	matching service.MatchingService,
	users service.UserService,
	profiles service.ProfileService,
	authMiddleware *middleware.AuthMiddleware,
	opts Options,
) *Handler {
	return &Handler{
		matching:       matching,
		users:          users,
		profiles:       profiles,
		authMiddleware: authMiddleware,
		choiceLimiter:  opts.ChoiceLimiter,
		maxUploadBytes: opts.MaxUploadBytes,
	}
}

// RegisterRoutes registers all routes.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)
	r.GET("/api/health", h.Health)

	api := r.Group("/api/v1")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/register", h.Register)
			auth.POST("/login", h.Login)
			auth.POST("/refresh", h.RefreshToken)
			auth.POST("/logout", h.authMiddleware.RequireAuth(), h.Logout)
		}

		profile := api.Group("/profile")
		profile.Use(h.authMiddleware.RequireAuth())
		{
			profile.GET("", h.GetMe)
			profile.PATCH("/dob", h.UpdateDateOfBirth)
			profile.PATCH("/bio", h.UpdateBio)
			profile.PATCH("/picture", h.SetPictureURL)
			profile.POST("/picture", h.UploadPicture)
		}

		matching := api.Group("/matching")
		{
			choice := []gin.HandlerFunc{h.authMiddleware.RequireAuth()}
			if h.choiceLimiter != nil {
				choice = append(choice, h.choiceLimiter.Middleware())
			}
			matching.POST("/choice", append(choice, h.SubmitChoice)...)
			matching.GET("/pending", h.authMiddleware.RequireAuth(), h.ListPending)
			matching.GET("/matches", h.authMiddleware.RequireAuth(), h.ListMatches)
			matching.GET("/public/:userId", h.authMiddleware.OptionalAuth(), h.GetPublicProfile)
		}
	}
}

// Health reports liveness.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// writeError maps service errors onto the response envelope. Anything
// unrecognised is logged and reported as an internal error.
func writeError(c *gin.Context, err error, internalMsg string) {
	switch {
	case errors.Is(err, service.ErrInvalidChoice),
		errors.Is(err, service.ErrInvalidTarget),
		errors.Is(err, service.ErrSelfInteraction),
		errors.Is(err, service.ErrInvalidName),
		errors.Is(err, service.ErrInvalidEmail),
		errors.Is(err, service.ErrPasswordTooShort),
		errors.Is(err, service.ErrInvalidDateOfBirth),
		errors.Is(err, service.ErrAgeOutOfRange),
		errors.Is(err, service.ErrBioTooLong),
		errors.Is(err, service.ErrInvalidPicture):
		response.BadRequest(c, err.Error())
	case errors.Is(err, service.ErrPictureTooLarge):
		response.PayloadTooLarge(c, err.Error())
	case errors.Is(err, service.ErrTargetNotFound),
		errors.Is(err, service.ErrUserNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, service.ErrInvalidCredentials):
		response.Unauthorized(c, err.Error())
	case errors.Is(err, service.ErrEmailExists):
		response.Conflict(c, err.Error())
	default:
		l := log.Ctx(c.Request.Context())
		l.Error().Err(err).Msg(internalMsg)
		response.InternalError(c, internalMsg)
	}
}

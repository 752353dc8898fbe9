package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shaamilshan/hamme/internal/domain"
	"github.com/shaamilshan/hamme/internal/service"
	"github.com/shaamilshan/hamme/pkg/log"
	"github.com/shaamilshan/hamme/pkg/middleware"
	"github.com/shaamilshan/hamme/pkg/response"
)

const pictureField = "profilePicture"

// multipart framing allowance on top of the file size limit
const multipartOverhead = 1 << 20

func (h *Handler) GetMe(c *gin.Context) {
	user, err := h.profiles.GetMe(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		writeError(c, err, "failed to get profile")
		return
	}
	response.Success(c, user)
}

func (h *Handler) UpdateDateOfBirth(c *gin.Context) {
	var req domain.UpdateDOBRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "dateOfBirth is required")
		return
	}

	user, err := h.profiles.UpdateDateOfBirth(c.Request.Context(), middleware.GetUserID(c), req.DateOfBirth)
	if err != nil {
		writeError(c, err, "failed to update date of birth")
		return
	}
	response.Success(c, user)
}

func (h *Handler) UpdateBio(c *gin.Context) {
	var req domain.UpdateBioRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}

	user, err := h.profiles.UpdateBio(c.Request.Context(), middleware.GetUserID(c), req.Bio)
	if err != nil {
		writeError(c, err, "failed to update bio")
		return
	}
	response.Success(c, user)
}

func (h *Handler) SetPictureURL(c *gin.Context) {
	var req domain.UpdatePictureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "profilePicture is required")
		return
	}

	user, err := h.profiles.SetPictureURL(c.Request.Context(), middleware.GetUserID(c), req.ProfilePicture)
	if err != nil {
		writeError(c, err, "failed to update picture")
		return
	}
	response.Success(c, user)
}

// UploadPicture accepts a multipart image upload in the profilePicture field.
func (h *Handler) UploadPicture(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+multipartOverhead)
	}

	header, err := c.FormFile(pictureField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.PayloadTooLarge(c, service.ErrPictureTooLarge.Error())
			return
		}
		l.Warn().Err(err).Msg("missing picture upload")
		response.BadRequest(c, "profilePicture file is required")
		return
	}

	file, err := header.Open()
	if err != nil {
		writeError(c, err, "failed to read upload")
		return
	}
	defer file.Close()

	user, err := h.profiles.UploadPicture(ctx, middleware.GetUserID(c), &service.PictureUpload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		writeError(c, err, "failed to upload picture")
		return
	}
	response.Success(c, user)
}

// Image upload handler.
//
// POST /images accepts a multipart form with a single "file" part, stores it
// in object storage under a date-partitioned key, and returns the public URL
// for use as a chat image reference. When object storage is not configured
// the endpoint returns 503 with a distinct code so the UI can hide the
// attach button instead of surfacing a generic failure.
package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lshimizu/invoice-chat-backend/internal/storage"
)

// UploadImageResponse returns the public URL of a stored image.
type UploadImageResponse struct {
	URL string `json:"url" example:"https://cdn.example.com/chat-images/2026/07/15/1a2b3c4d.png"`
}

// UploadImage godoc
// @ID          uploadImage
// @Summary     Upload a chat image
// @Description Stores a timesheet or receipt image and returns its public URL. Accepts jpeg, png, gif, webp, and svg up to the configured size cap.
// @Tags        Images
// @Accept      multipart/form-data
// @Produce     json
//
// @Param       file  formData  file  true  "Image file"
//
// @Success     200  {object}  handlers.UploadImageResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     413  {object}  handlers.ErrorResponse  "File too large"
// @Failure     415  {object}  handlers.ErrorResponse  "Unsupported image type"
// @Failure     503  {object}  handlers.ErrorResponse  "Object storage not configured"
// @Router      /images [post]
func (h *Handlers) UploadImage(c *gin.Context) {
	if h.uploader == nil {
		fail(c, http.StatusServiceUnavailable, ErrCodeStorageNotConfigured, "image storage is not configured")
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "file part required")
		return
	}
	if fh.Size > h.maxUploadBytes {
		fail(c, http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge,
			fmt.Sprintf("file exceeds %d byte limit", h.maxUploadBytes))
		return
	}

	contentType := fh.Header.Get("Content-Type")
	if contentType != "" && !storage.AllowedType(contentType) {
		fail(c, http.StatusUnsupportedMediaType, ErrCodeUnsupportedMedia,
			"unsupported image type: "+contentType)
		return
	}

	f, err := fh.Open()
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "cannot read file part")
		return
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, h.maxUploadBytes+1))
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "cannot read file part")
		return
	}
	if int64(len(data)) > h.maxUploadBytes {
		fail(c, http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge,
			fmt.Sprintf("file exceeds %d byte limit", h.maxUploadBytes))
		return
	}

	url, err := h.uploader.Upload(c.Request.Context(), data, contentType, fh.Filename)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotConfigured):
			fail(c, http.StatusServiceUnavailable, ErrCodeStorageNotConfigured, "image storage is not configured")
		case errors.Is(err, storage.ErrUnsupportedType):
			fail(c, http.StatusUnsupportedMediaType, ErrCodeUnsupportedMedia, err.Error())
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	ok(c, http.StatusOK, UploadImageResponse{URL: url})
}

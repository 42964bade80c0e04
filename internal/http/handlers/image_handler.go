// Image HTTP handlers.
//
//   - POST   /images                  (generate; Idempotency-Key aware)
//   - GET    /images                  (caller's images, cursor paged)
//   - GET    /gallery                 (public images, cursor paged)
//   - PATCH  /images/{id}/visibility  (publish or hide)
//   - POST   /images/{id}/share       (record a share)
//   - DELETE /images/{id}
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/engrish-backend/internal/http/middleware"
	"github.com/tbourn/engrish-backend/internal/repo"
)

// GenerateImageRequest is the prompt for a new image (10-500 characters).
type GenerateImageRequest struct {
	Prompt string `json:"prompt" example:"a shiba inu reading a dictionary, watercolor"`
}

// VisibilityRequest publishes or hides an image.
type VisibilityRequest struct {
	IsPublic *bool `json:"is_public" example:"false"`
}

// GenerateImage godoc
// @ID          generateImage
// @Summary     Generate an image
// @Description Generates an image from the prompt. Limited to 5 per minute per user; a repeated Idempotency-Key returns the earlier image without counting against the limit.
// @Tags        Images
// @Accept      json
// @Produce     json
// @Param       Idempotency-Key  header    string  false  "Retry key"  example(3c8e4a1f-idem)
// @Param       body             body      handlers.GenerateImageRequest  true  "Prompt"
// @Success     201              {object}  domain.GeneratedImage
// @Success     200              {object}  domain.GeneratedImage  "Replayed"
// @Failure     400              {object}  handlers.ErrorResponse  "Prompt out of bounds"
// @Failure     401              {object}  handlers.ErrorResponse  "Not signed in"
// @Failure     429              {object}  handlers.ErrorResponse  "Rate limited; see retry_after_seconds"
// @Failure     503              {object}  handlers.ErrorResponse  "Image provider unavailable"
// @Router      /images [post]
func (h *Handlers) GenerateImage(c *gin.Context) {
	var req GenerateImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	key, _ := middleware.GetIdempotencyKey(c)
	img, err := h.images.Generate(c.Request.Context(), userID(c), req.Prompt, key)
	if err != nil {
		serviceError(c, err)
		return
	}
	status := http.StatusCreated
	if middleware.IsReplay(c) {
		status = http.StatusOK
	}
	ok(c, status, img)
}

// ListMyImages godoc
// @ID          listMyImages
// @Summary     Caller's images
// @Tags        Images
// @Produce     json
// @Param       cursor  query     string  false  "next_cursor from the previous page (opaque)"
// @Param       limit   query     int     false  "Page size"  minimum(1) maximum(100) default(20)
// @Success     200     {object}  services.ImagePage
// @Failure     400     {object}  handlers.ErrorResponse  "Bad cursor"
// @Failure     401     {object}  handlers.ErrorResponse  "Not signed in"
// @Router      /images [get]
func (h *Handlers) ListMyImages(c *gin.Context) {
	cursor, limit, valid := cursorParams(c)
	if !valid {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "cursor must be a next_cursor value and limit an integer")
		return
	}
	page, err := h.images.ListMine(c.Request.Context(), userID(c), cursor, limit)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, page)
}

// Gallery godoc
// @ID          gallery
// @Summary     Public gallery
// @Tags        Images
// @Produce     json
// @Param       cursor  query     string  false  "next_cursor from the previous page (opaque)"
// @Param       limit   query     int     false  "Page size"  minimum(1) maximum(100) default(20)
// @Success     200     {object}  services.ImagePage
// @Failure     400     {object}  handlers.ErrorResponse  "Bad cursor"
// @Router      /gallery [get]
func (h *Handlers) Gallery(c *gin.Context) {
	cursor, limit, valid := cursorParams(c)
	if !valid {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "cursor must be a next_cursor value and limit an integer")
		return
	}
	page, err := h.images.Gallery(c.Request.Context(), cursor, limit)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, page)
}

// SetImageVisibility godoc
// @ID          setImageVisibility
// @Summary     Publish or hide an image
// @Tags        Images
// @Accept      json
// @Produce     json
// @Param       id    path      string  true  "Image ID (UUID)"  format(uuid)
// @Param       body  body      handlers.VisibilityRequest  true  "Visibility"
// @Success     200   {object}  domain.GeneratedImage
// @Failure     400   {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404   {object}  handlers.ErrorResponse  "Image not found"
// @Router      /images/{id}/visibility [patch]
func (h *Handlers) SetImageVisibility(c *gin.Context) {
	id, valid := imageID(c)
	if !valid {
		return
	}
	var req VisibilityRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.IsPublic == nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "is_public is required")
		return
	}
	img, err := h.images.SetVisibility(c.Request.Context(), userID(c), id, *req.IsPublic)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, img)
}

// ShareImage godoc
// @ID          shareImage
// @Summary     Record a share
// @Description Marks the image as shared. The share counter moves only the first time.
// @Tags        Images
// @Success     204  {string}  string  "No Content"
// @Failure     404  {object}  handlers.ErrorResponse  "Image not found"
// @Router      /images/{id}/share [post]
func (h *Handlers) ShareImage(c *gin.Context) {
	id, valid := imageID(c)
	if !valid {
		return
	}
	if err := h.images.MarkShared(c.Request.Context(), userID(c), id); err != nil {
		serviceError(c, err)
		return
	}
	noContent(c)
}

// DeleteImage godoc
// @ID          deleteImage
// @Summary     Delete an image
// @Tags        Images
// @Success     204  {string}  string  "No Content"
// @Failure     404  {object}  handlers.ErrorResponse  "Image not found"
// @Router      /images/{id} [delete]
func (h *Handlers) DeleteImage(c *gin.Context) {
	id, valid := imageID(c)
	if !valid {
		return
	}
	if err := h.images.Delete(c.Request.Context(), userID(c), id); err != nil {
		serviceError(c, err)
		return
	}
	noContent(c)
}

func imageID(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "image id must be a UUID")
		return "", false
	}
	return id, true
}

// cursorParams parses ?cursor=<next_cursor>&limit=<n>. The service clamps
// limit.
func cursorParams(c *gin.Context) (*repo.ImageCursor, int, bool) {
	limit, valid := queryInt(c, "limit", 0)
	if !valid {
		return nil, 0, false
	}
	raw := c.Query("cursor")
	if raw == "" {
		return nil, limit, true
	}
	cur, err := repo.ParseImageCursor(raw)
	if err != nil {
		return nil, 0, false
	}
	return cur, limit, true
}

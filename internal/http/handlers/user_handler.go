// User HTTP handlers for the signed-in caller.
//
//   - GET    /me        (profile)
//   - PATCH  /me        (edit name, bio, avatar)
//   - GET    /me/stats  (counters)
//   - DELETE /me        (delete account, clear session)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/engrish-backend/internal/services"
)

// GetProfile godoc
// @ID          getProfile
// @Summary     Caller's profile
// @Tags        Users
// @Produce     json
// @Success     200  {object}  domain.User
// @Failure     401  {object}  handlers.ErrorResponse  "Not signed in"
// @Router      /me [get]
func (h *Handlers) GetProfile(c *gin.Context) {
	u, err := h.users.Profile(c.Request.Context(), userID(c))
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, u)
}

// UpdateProfile godoc
// @ID          updateProfile
// @Summary     Edit profile
// @Description Omitted fields stay unchanged. Name 2-50 characters, bio up to 500, avatar an absolute http(s) URL or empty.
// @Tags        Users
// @Accept      json
// @Produce     json
// @Param       body  body      services.ProfileUpdate  true  "Changes"
// @Success     200   {object}  domain.User
// @Failure     400   {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     401   {object}  handlers.ErrorResponse  "Not signed in"
// @Router      /me [patch]
func (h *Handlers) UpdateProfile(c *gin.Context) {
	var req services.ProfileUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	u, err := h.users.UpdateProfile(c.Request.Context(), userID(c), req)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, u)
}

// GetStats godoc
// @ID          getStats
// @Summary     Caller's counters
// @Tags        Users
// @Produce     json
// @Success     200  {object}  domain.UserStats
// @Failure     401  {object}  handlers.ErrorResponse  "Not signed in"
// @Router      /me/stats [get]
func (h *Handlers) GetStats(c *gin.Context) {
	st, err := h.users.Stats(c.Request.Context(), userID(c))
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, st)
}

// DeleteAccount godoc
// @ID          deleteAccount
// @Summary     Delete the account
// @Description Removes the user with their mentions, images and stats, and clears the session cookie.
// @Tags        Users
// @Success     204  {string}  string  "No Content"
// @Failure     401  {object}  handlers.ErrorResponse  "Not signed in"
// @Router      /me [delete]
func (h *Handlers) DeleteAccount(c *gin.Context) {
	if err := h.users.Delete(c.Request.Context(), userID(c)); err != nil {
		serviceError(c, err)
		return
	}
	h.clearSessionCookie(c)
	noContent(c)
}

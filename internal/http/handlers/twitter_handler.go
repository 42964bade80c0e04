// Twitter HTTP handlers.
//
//   - POST   /twitter/link          (link account, ingest mentions)
//   - DELETE /twitter/link          (unlink, mentions stay)
//   - POST   /twitter/sync          (re-ingest mentions)
//   - GET    /twitter/mentions      (caller's stored mentions)
//   - GET    /twitter/feed          (global tracked feed)
//   - POST   /twitter/feed/refresh  (drop cache, refetch)
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/engrish-backend/internal/domain"
	"github.com/tbourn/engrish-backend/internal/services"
)

// LinkRequest names the account to link, with or without "@".
type LinkRequest struct {
	Username string `json:"username" example:"engrish_fan"`
}

// LinkResponse reports the linked account and its current totals.
type LinkResponse struct {
	Success bool `json:"success" example:"true"`
	domain.LinkResult
}

// SyncResponse reports totals after a sync.
type SyncResponse struct {
	Success bool `json:"success" example:"true"`
	domain.SyncResult
}

// MentionsResponse lists stored mentions.
type MentionsResponse struct {
	Mentions []domain.Mention `json:"mentions"`
}

// FeedResponse lists tracked tweets.
type FeedResponse struct {
	Tweets []domain.Tweet `json:"tweets"`
}

// LinkAccount godoc
// @ID          linkAccount
// @Summary     Link a Twitter account
// @Description Looks the account up, attaches it to the caller and ingests its mentions of the tracked account.
// @Tags        Twitter
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.LinkRequest  true  "Username (letters, digits, underscore; max 15)"
// @Success     200   {object}  handlers.LinkResponse
// @Failure     400   {object}  handlers.ErrorResponse  "Invalid username"
// @Failure     401   {object}  handlers.ErrorResponse  "Not signed in"
// @Failure     404   {object}  handlers.ErrorResponse  "account_not_found"
// @Failure     503   {object}  handlers.ErrorResponse  "Twitter unavailable"
// @Router      /twitter/link [post]
func (h *Handlers) LinkAccount(c *gin.Context) {
	var req LinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	username := strings.TrimPrefix(strings.TrimSpace(req.Username), "@")
	if !services.ValidUsername(username) {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "username must be 1-15 letters, digits or underscores")
		return
	}
	res, err := h.mentions.LinkAndIngest(c.Request.Context(), userID(c), username)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, LinkResponse{Success: true, LinkResult: *res})
}

// UnlinkAccount godoc
// @ID          unlinkAccount
// @Summary     Unlink the Twitter account
// @Tags        Twitter
// @Success     204  {string}  string  "No Content"
// @Failure     401  {object}  handlers.ErrorResponse  "Not signed in"
// @Router      /twitter/link [delete]
func (h *Handlers) UnlinkAccount(c *gin.Context) {
	if err := h.mentions.Unlink(c.Request.Context(), userID(c)); err != nil {
		serviceError(c, err)
		return
	}
	noContent(c)
}

// SyncMentions godoc
// @ID          syncMentions
// @Summary     Re-ingest mentions
// @Description Fetches recent mentions of the tracked account and upserts those authored by the caller's linked account.
// @Tags        Twitter
// @Produce     json
// @Success     200  {object}  handlers.SyncResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Not signed in"
// @Failure     409  {object}  handlers.ErrorResponse  "not_linked"
// @Failure     503  {object}  handlers.ErrorResponse  "Twitter unavailable"
// @Router      /twitter/sync [post]
func (h *Handlers) SyncMentions(c *gin.Context) {
	res, err := h.mentions.SyncMentions(c.Request.Context(), userID(c))
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, SyncResponse{Success: true, SyncResult: *res})
}

// ListMyMentions godoc
// @ID          listMyMentions
// @Summary     Caller's stored mentions
// @Tags        Twitter
// @Produce     json
// @Param       limit  query     int  false  "Max items"  minimum(1) maximum(100) default(50)
// @Success     200    {object}  handlers.MentionsResponse
// @Failure     400    {object}  handlers.ErrorResponse  "Bad limit"
// @Failure     401    {object}  handlers.ErrorResponse  "Not signed in"
// @Router      /twitter/mentions [get]
func (h *Handlers) ListMyMentions(c *gin.Context) {
	limit, valid := queryInt(c, "limit", 50)
	if !valid || limit < 1 || limit > 100 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "limit must be between 1 and 100")
		return
	}
	items, err := h.mentions.UserMentions(c.Request.Context(), userID(c), limit)
	if err != nil {
		serviceError(c, err)
		return
	}
	if items == nil {
		items = []domain.Mention{}
	}
	ok(c, http.StatusOK, MentionsResponse{Mentions: items})
}

// GlobalFeed godoc
// @ID          globalFeed
// @Summary     Tracked feed
// @Description Latest tweets mentioning the tracked account. Empty when Twitter is unavailable.
// @Tags        Twitter
// @Produce     json
// @Success     200  {object}  handlers.FeedResponse
// @Router      /twitter/feed [get]
func (h *Handlers) GlobalFeed(c *gin.Context) {
	tweets, err := h.mentions.GlobalFeed(c.Request.Context())
	if err != nil || tweets == nil {
		tweets = []domain.Tweet{}
	}
	ok(c, http.StatusOK, FeedResponse{Tweets: tweets})
}

// RefreshFeed godoc
// @ID          refreshFeed
// @Summary     Refetch the tracked feed
// @Tags        Twitter
// @Produce     json
// @Success     200  {object}  handlers.RefreshResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Not signed in"
// @Failure     503  {object}  handlers.ErrorResponse  "Twitter unavailable"
// @Router      /twitter/feed/refresh [post]
func (h *Handlers) RefreshFeed(c *gin.Context) {
	n, err := h.mentions.RefreshFeed(c.Request.Context())
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, RefreshResponse{Success: true, Count: n})
}

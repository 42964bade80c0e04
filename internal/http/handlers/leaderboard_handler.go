// Leaderboard HTTP handlers.
//
//   - GET  /leaderboard          (top mentioners, paginated)
//   - GET  /leaderboard/me       (caller's rank)
//   - POST /leaderboard/refresh  (drop cache, recompute)
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	minLeaderboardLimit     = 10
	maxLeaderboardLimit     = 50
	defaultLeaderboardLimit = 50
)

// RefreshResponse reports the size of a rebuilt read model.
type RefreshResponse struct {
	Success bool `json:"success" example:"true"`
	Count   int  `json:"count"   example:"120"`
}

// queryInt reads an optional integer query parameter. Present but
// non-numeric values are rejected.
func queryInt(c *gin.Context, key string, def int) (int, bool) {
	raw, present := c.GetQuery(key)
	if !present || raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}

// TopMentioners godoc
// @ID          topMentioners
// @Summary     Leaderboard page
// @Description Accounts ranked by total mention score. Ties go to whoever was seen first; ranks are global across pages.
// @Tags        Leaderboard
// @Produce     json
// @Param       page   query     int  false  "Page number"     minimum(1)  default(1)
// @Param       limit  query     int  false  "Items per page"  minimum(10) maximum(50) default(50)
// @Success     200    {object}  domain.LeaderboardPage
// @Failure     400    {object}  handlers.ErrorResponse  "Bad page or limit"
// @Failure     500    {object}  handlers.ErrorResponse  "Internal error"
// @Router      /leaderboard [get]
func (h *Handlers) TopMentioners(c *gin.Context) {
	page, okPage := queryInt(c, "page", 1)
	limit, okLimit := queryInt(c, "limit", defaultLeaderboardLimit)
	if !okPage || page < 1 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "page must be an integer >= 1")
		return
	}
	if !okLimit || limit < minLeaderboardLimit || limit > maxLeaderboardLimit {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "limit must be between 10 and 50")
		return
	}
	res, err := h.board.TopMentioners(c.Request.Context(), page, limit)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}

// MyRank godoc
// @ID          myRank
// @Summary     Caller's leaderboard rank
// @Description Rank is null with a message when no account is linked or the account has no mentions yet.
// @Tags        Leaderboard
// @Produce     json
// @Success     200  {object}  domain.UserRank
// @Failure     401  {object}  handlers.ErrorResponse  "Not signed in"
// @Router      /leaderboard/me [get]
func (h *Handlers) MyRank(c *gin.Context) {
	res, err := h.board.UserRank(c.Request.Context(), userID(c))
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}

// RefreshLeaderboard godoc
// @ID          refreshLeaderboard
// @Summary     Rebuild the leaderboard
// @Tags        Leaderboard
// @Produce     json
// @Success     200  {object}  handlers.RefreshResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Not signed in"
// @Router      /leaderboard/refresh [post]
func (h *Handlers) RefreshLeaderboard(c *gin.Context) {
	n, err := h.board.Refresh(c.Request.Context())
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, RefreshResponse{Success: true, Count: n})
}

// Auth HTTP handlers.
//
//   - POST /auth/nonce    (challenge for a wallet)
//   - POST /auth/signin   (verify signature, set session cookie)
//   - GET  /auth/session  (current user or null, never fails)
//   - POST /auth/signout  (clear session cookie)
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/engrish-backend/internal/auth"
	"github.com/tbourn/engrish-backend/internal/domain"
	"github.com/tbourn/engrish-backend/internal/http/middleware"
)

// NonceRequest asks for a sign-in challenge.
type NonceRequest struct {
	WalletAddress string `json:"walletAddress" example:"9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin"`
}

// NonceResponse carries the nonce and the exact message to sign.
type NonceResponse struct {
	Nonce   string `json:"nonce"   example:"5f0c9e4b2a7d4c1e8b3a6f9d0e2c4b7a"`
	Message string `json:"message"`
}

// SignInRequest submits a signed challenge. Signature is base58.
type SignInRequest struct {
	WalletAddress string `json:"walletAddress"`
	Signature     string `json:"signature"`
	Message       string `json:"message"`
}

// SessionResponse wraps the current user; User is null when signed out.
type SessionResponse struct {
	User *domain.UserSummary `json:"user"`
}

// RequestNonce godoc
// @ID          requestNonce
// @Summary     Issue a sign-in nonce
// @Description Issues a single-use nonce for the wallet, valid for five minutes, and the message to sign.
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.NonceRequest  true  "Wallet"
// @Success     200   {object}  handlers.NonceResponse
// @Failure     400   {object}  handlers.ErrorResponse  "Missing or malformed wallet address"
// @Failure     429   {object}  handlers.ErrorResponse  "Too many requests"
// @Router      /auth/nonce [post]
func (h *Handlers) RequestNonce(c *gin.Context) {
	var req NonceRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.WalletAddress) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "walletAddress is required")
		return
	}
	ch, err := h.auth.RequestChallenge(c.Request.Context(), req.WalletAddress)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, NonceResponse{Nonce: ch.Nonce, Message: ch.Message})
}

// SignIn godoc
// @ID          signIn
// @Summary     Sign in with a wallet signature
// @Description Verifies an ed25519 signature over the challenge message, consumes the nonce, creates the user on first sign-in and sets the auth-token cookie.
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.SignInRequest  true  "Signed challenge"
// @Success     200   {object}  handlers.SessionResponse
// @Header      200   {string}  Set-Cookie  "auth-token; HttpOnly; SameSite=Lax"
// @Failure     400   {object}  handlers.ErrorResponse  "Missing fields"
// @Failure     401   {object}  handlers.ErrorResponse  "invalid_signature or nonce_expired"
// @Failure     500   {object}  handlers.ErrorResponse  "Internal error"
// @Router      /auth/signin [post]
func (h *Handlers) SignIn(c *gin.Context) {
	var req SignInRequest
	if err := c.ShouldBindJSON(&req); err != nil ||
		strings.TrimSpace(req.WalletAddress) == "" || strings.TrimSpace(req.Signature) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "walletAddress and signature are required")
		return
	}
	sess, err := h.auth.SignIn(c.Request.Context(), req.WalletAddress, req.Signature, req.Message)
	if err != nil {
		serviceError(c, err)
		return
	}
	h.setSessionCookie(c, sess.Token)
	sum := sess.User.Summary()
	ok(c, http.StatusOK, SessionResponse{User: &sum})
}

// GetSession godoc
// @ID          getSession
// @Summary     Current session
// @Description Returns the signed-in user, or null. Invalid or expired tokens are treated as signed out.
// @Tags        Auth
// @Produce     json
// @Success     200  {object}  handlers.SessionResponse
// @Router      /auth/session [get]
func (h *Handlers) GetSession(c *gin.Context) {
	u := middleware.CurrentUser(c)
	if u == nil {
		ok(c, http.StatusOK, SessionResponse{})
		return
	}
	sum := u.Summary()
	ok(c, http.StatusOK, SessionResponse{User: &sum})
}

// SignOut godoc
// @ID          signOut
// @Summary     Sign out
// @Description Clears the session cookie. Idempotent.
// @Tags        Auth
// @Produce     json
// @Success     200  {object}  handlers.SuccessResponse
// @Router      /auth/signout [post]
func (h *Handlers) SignOut(c *gin.Context) {
	h.clearSessionCookie(c)
	ok(c, http.StatusOK, SuccessResponse{Success: true})
}

func (h *Handlers) setSessionCookie(c *gin.Context, token string) {
	ttl := h.cookie.TTL
	if ttl <= 0 {
		ttl = auth.DefaultSessionTTL
	}
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handlers) clearSessionCookie(c *gin.Context) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

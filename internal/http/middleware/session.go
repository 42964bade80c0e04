// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file resolves the caller's session. The token is read from the
// auth-token cookie, falling back to an Authorization bearer header for
// non-browser clients. A missing or invalid token is not an error here:
// the request simply continues anonymously and RequireAuth guards the
// routes that need a user.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/engrish-backend/internal/auth"
	"github.com/tbourn/engrish-backend/internal/domain"
)

const (
	userIDKey = "userID"
	userKey   = "user"
)

// SessionResolver maps a token to the current user, or nil.
type SessionResolver interface {
	ResolveSession(ctx context.Context, token string) *domain.User
}

// Session stores the resolved user under "user" and its id under "userID".
func Session(resolver SessionResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tok := TokenFrom(c.Request); tok != "" && resolver != nil {
			if u := resolver.ResolveSession(c.Request.Context(), tok); u != nil {
				c.Set(userKey, u)
				c.Set(userIDKey, u.ID)
			}
		}
		c.Next()
	}
}

// TokenFrom extracts the session token from the cookie or bearer header.
func TokenFrom(r *http.Request) string {
	if ck, err := r.Cookie(auth.CookieName); err == nil && ck.Value != "" {
		return ck.Value
	}
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// RequireAuth rejects anonymous callers with 401.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if UserID(c) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"request_id": c.GetString(requestIDKey),
				"code":       "unauthenticated",
				"message":    "sign in required",
			})
			return
		}
		c.Next()
	}
}

// UserID returns the authenticated user id, or "".
func UserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}

// CurrentUser returns the authenticated user, or nil.
func CurrentUser(c *gin.Context) *domain.User {
	if v, ok := c.Get(userKey); ok {
		if u, ok := v.(*domain.User); ok {
			return u
		}
	}
	return nil
}

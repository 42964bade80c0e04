// Package handlers defines the HTTP error taxonomy. Codes are stable
// snake_case strings; clients branch on them, never on messages.
//
// serviceError is the single place service errors become HTTP statuses:
//
//	ErrValidation           400 bad_request
//	ErrUnauthenticated      401 unauthenticated
//	ErrInvalidSignature     401 invalid_signature
//	ErrNonceExpired         401 nonce_expired
//	ErrAccountNotFound      404 account_not_found
//	ErrNotFound             404 not_found
//	ErrNotLinked            409 not_linked
//	ErrRateLimited          429 rate_limited (+ Retry-After)
//	ErrUpstreamUnavailable  503 upstream_unavailable
//	anything else           500 internal_error
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/engrish-backend/internal/services"
)

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthenticated  = "unauthenticated"
	ErrCodeNotFound         = "not_found"
	ErrCodeRateLimited      = "rate_limited"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Domain-specific:
	ErrCodeInvalidSignature    = "invalid_signature"
	ErrCodeNonceExpired        = "nonce_expired"
	ErrCodeAccountNotFound     = "account_not_found"
	ErrCodeNotLinked           = "not_linked"
	ErrCodeUpstreamUnavailable = "upstream_unavailable"
)

// serviceError writes the envelope matching err. The raw error is attached
// to the Gin context so the access log carries it; messages for 5xx stay
// generic.
func serviceError(c *gin.Context, err error) {
	_ = c.Error(err)

	var rl *services.RateLimitError
	switch {
	case errors.As(err, &rl):
		secs := rateLimitSeconds(rl.ResetAt, time.Now())
		c.Header("Retry-After", strconv.Itoa(secs))
		failWith(c, http.StatusTooManyRequests, ErrorResponse{
			Code:              ErrCodeRateLimited,
			Message:           fmt.Sprintf("Rate limit exceeded. Try again in %d seconds.", secs),
			RetryAfterSeconds: secs,
		})
	case errors.Is(err, services.ErrValidation):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, clientMessage(err, services.ErrValidation))
	case errors.Is(err, services.ErrUnauthenticated):
		fail(c, http.StatusUnauthorized, ErrCodeUnauthenticated, "sign in required")
	case errors.Is(err, services.ErrInvalidSignature):
		fail(c, http.StatusUnauthorized, ErrCodeInvalidSignature, "signature verification failed")
	case errors.Is(err, services.ErrNonceExpired):
		fail(c, http.StatusUnauthorized, ErrCodeNonceExpired, "nonce expired or not found, request a new one")
	case errors.Is(err, services.ErrAccountNotFound):
		fail(c, http.StatusNotFound, ErrCodeAccountNotFound, clientMessage(err, services.ErrAccountNotFound))
	case errors.Is(err, services.ErrNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "resource not found")
	case errors.Is(err, services.ErrNotLinked):
		fail(c, http.StatusConflict, ErrCodeNotLinked, "link a Twitter account first")
	case errors.Is(err, services.ErrUpstreamUnavailable):
		fail(c, http.StatusServiceUnavailable, ErrCodeUpstreamUnavailable, "upstream service unavailable, try again later")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
	}
}

// clientMessage turns "<sentinel>: detail" into "detail".
func clientMessage(err, sentinel error) string {
	msg := err.Error()
	if detail, found := strings.CutPrefix(msg, sentinel.Error()+": "); found {
		return detail
	}
	return msg
}

func rateLimitSeconds(resetAt, now time.Time) int {
	secs := int((resetAt.Sub(now) + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

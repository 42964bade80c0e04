// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file wires request correlation and request-scoped logging:
//
//   - RequestID() reuses or mints the X-Request-ID correlation id.
//   - Logger() builds a zerolog.Logger carrying the request id, route and
//     caller, stores it in the Gin context and in the request context, so
//     services reached through c.Request.Context() log via zerolog.Ctx.
//   - Recovery() turns panics into the JSON error envelope.
//
// Recommended order: RequestID, Recovery, Session, Logger, RedactingLogger.
// Logger must run after Session to pick up the user id.
package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	requestIDKey    = "requestID"
	requestIDHeader = "X-Request-ID"
	loggerKey       = "logger"
	// maxRequestIDLength bounds client supplied ids before they reach logs.
	maxRequestIDLength = 128
)

// RequestID attaches the inbound X-Request-ID, or a new UUID, to the context
// and echoes it on the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if rid == "" || len(rid) > maxRequestIDLength {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Next()
	}
}

// Logger attaches a request-scoped logger. It does not write the access log;
// RedactingLogger does, using the logger stored here.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		l := log.With().
			Str("request_id", c.GetString(requestIDKey)).
			Str("user_id", UserID(c)).
			Str("method", c.Request.Method).
			Str("route", routeOf(c)).
			Logger()

		c.Set(loggerKey, &l)
		c.Request = c.Request.WithContext(l.WithContext(c.Request.Context()))
		c.Next()
	}
}

// LoggerFrom returns the request-scoped logger, or the global logger when
// Logger did not run.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if lg, ok := v.(*zerolog.Logger); ok {
			return lg
		}
	}
	l := log.Logger
	return &l
}

// Recovery logs the panic with its stack and answers 500 with the error
// envelope when nothing was written yet.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			rid := c.GetString(requestIDKey)
			LoggerFrom(c).Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Str("request_id", rid).
				Msg("panic recovered")

			if c.Writer.Written() {
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
			c.Header(requestIDHeader, rid)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"request_id": rid,
				"code":       "internal_error",
				"message":    "internal server error",
			})
		}()
		c.Next()
	}
}

// routeOf is the matched route template, or the raw path for 404s.
func routeOf(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return c.Request.URL.Path
}

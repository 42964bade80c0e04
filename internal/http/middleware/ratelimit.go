// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file holds the two request limiters:
//
//   - RateLimiter is a process-local token bucket per caller built on
//     golang.org/x/time/rate. It is coarse edge protection for the whole API.
//   - FixedWindow delegates to the shared fixed-window counter of the cache
//     service, so limits hold across instances. It fails open with the
//     counter store.
//
// Idempotent replays flagged by IdempotencyValidator skip both.
package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/tbourn/engrish-backend/internal/cache"
)

// KeyFunc names the bucket a request is charged to.
type KeyFunc func(*gin.Context) string

// KeyByUserOrIP charges signed-in callers by user id and others by client IP.
func KeyByUserOrIP() KeyFunc {
	return func(c *gin.Context) string {
		if uid := UserID(c); uid != "" {
			return "user:" + uid
		}
		return "ip:" + c.ClientIP()
	}
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per key. Buckets idle for longer than
// idleTTL are swept every sweepEvery lookups.
type RateLimiter struct {
	limit rate.Limit
	burst int
	keyFn KeyFunc

	mu         sync.Mutex
	buckets    map[string]*bucket
	idleTTL    time.Duration
	lookups    int
	sweepEvery int
}

// NewRateLimiter allows rps sustained requests with bursts up to burst.
func NewRateLimiter(rps float64, burst int, keyFn KeyFunc) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	if keyFn == nil {
		keyFn = KeyByUserOrIP()
	}
	return &RateLimiter{
		limit:      rate.Limit(rps),
		burst:      burst,
		keyFn:      keyFn,
		buckets:    make(map[string]*bucket),
		idleTTL:    10 * time.Minute,
		sweepEvery: 5000,
	}
}

func (rl *RateLimiter) bucketFor(key string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.lookups++
	if rl.lookups >= rl.sweepEvery {
		rl.lookups = 0
		for k, b := range rl.buckets {
			if now.Sub(b.lastSeen) >= rl.idleTTL {
				delete(rl.buckets, k)
			}
		}
	}
	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter
}

// Handler answers 429 with Retry-After once a caller's bucket is empty.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}
		now := time.Now()
		lim := rl.bucketFor(rl.keyFn(c), now)
		if lim.AllowN(now, 1) {
			c.Next()
			return
		}
		retry := 1
		if rl.limit > 0 {
			if secs := int(1/float64(rl.limit) + 0.999); secs > retry {
				retry = secs
			}
		}
		rejectRateLimited(c, retry)
	}
}

// WindowLimiter is the cache service's fixed-window check.
type WindowLimiter interface {
	CheckRateLimit(ctx context.Context, identifier string, max int, window time.Duration) cache.RateLimit
}

// FixedWindow allows max requests per window for each key under name. It
// sets X-RateLimit-Limit, X-RateLimit-Remaining and, on rejection,
// Retry-After in seconds.
func FixedWindow(l WindowLimiter, name string, max int, window time.Duration, keyFn KeyFunc) gin.HandlerFunc {
	if keyFn == nil {
		keyFn = KeyByUserOrIP()
	}
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}
		res := l.CheckRateLimit(c.Request.Context(), name+":"+keyFn(c), max, window)
		c.Header("X-RateLimit-Limit", strconv.Itoa(max))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		if !res.Allowed {
			rejectRateLimited(c, res.RetryAfter(time.Now()))
			return
		}
		c.Next()
	}
}

// IsRateBypass reports whether IdempotencyValidator marked the request as a
// replay.
func IsRateBypass(c *gin.Context) bool {
	return c.GetBool(ctxKeyRateBypass)
}

func rejectRateLimited(c *gin.Context, retryAfter int) {
	c.Header("Retry-After", strconv.Itoa(retryAfter))
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"request_id":  c.GetString(requestIDKey),
		"code":        "rate_limited",
		"message":     "rate limit exceeded",
		"retry_after": retryAfter,
	})
}

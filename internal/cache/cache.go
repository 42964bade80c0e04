// Package cache provides cache-aside reads and a fixed-window rate limiter
// on top of a key-value Store with TTL support.
//
// The service never makes correctness depend on the store. With no store
// configured, or when a store call fails or times out, reads fall through to
// the recompute function and the limiter allows the request.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// ErrMiss is returned by Store.Get when the key does not exist.
var ErrMiss = errors.New("cache: miss")

// Store is the minimal key-value contract the service needs.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	// Incr atomically increments the counter at key. The first increment of
	// a window starts its expiry at window. It returns the new count and the
	// counter's remaining time to live.
	Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
	Ping(ctx context.Context) error
}

var (
	cacheRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_requests_total",
			Help: "Cache lookups by result (hit, miss, error, bypass).",
		},
		[]string{"result"},
	)
	rateLimitDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_decisions_total",
			Help: "Fixed-window limiter decisions (allowed, rejected, fail_open).",
		},
		[]string{"decision"},
	)
)

func init() {
	prometheus.MustRegister(cacheRequests, rateLimitDecisions)
}

// Service wraps an optional Store. The zero value is not usable; call New.
type Service struct {
	store   Store
	timeout time.Duration
	now     func() time.Time
}

// New returns a service over store. A nil store disables caching and rate
// limiting. Each store call is bounded by timeout (default 2s).
func New(store Store, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Service{store: store, timeout: timeout, now: time.Now}
}

// Enabled reports whether a store is configured.
func (s *Service) Enabled() bool { return s != nil && s.store != nil }

// GetCached returns the value cached under key, or computes it with
// recompute, stores it for ttl and returns it. Values are JSON encoded.
// Store failures are logged and never surfaced; errors from recompute are
// returned unchanged and nothing is cached.
func GetCached[T any](ctx context.Context, s *Service, key string, ttl time.Duration, recompute func(context.Context) (T, error)) (T, error) {
	if !s.Enabled() {
		cacheRequests.WithLabelValues("bypass").Inc()
		return recompute(ctx)
	}
	lg := zerolog.Ctx(ctx)

	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	raw, err := s.store.Get(opCtx, key)
	cancel()
	switch {
	case err == nil:
		var v T
		if uerr := json.Unmarshal(raw, &v); uerr == nil {
			cacheRequests.WithLabelValues("hit").Inc()
			return v, nil
		}
		lg.Warn().Str("key", key).Msg("cache: dropping undecodable entry")
		cacheRequests.WithLabelValues("error").Inc()
	case errors.Is(err, ErrMiss):
		cacheRequests.WithLabelValues("miss").Inc()
	default:
		lg.Warn().Err(err).Str("key", key).Msg("cache: read failed")
		cacheRequests.WithLabelValues("error").Inc()
	}

	v, err := recompute(ctx)
	if err != nil {
		return v, err
	}
	if buf, merr := json.Marshal(v); merr == nil {
		opCtx, cancel := context.WithTimeout(ctx, s.timeout)
		if serr := s.store.Set(opCtx, key, buf, ttl); serr != nil {
			lg.Warn().Err(serr).Str("key", key).Msg("cache: write failed")
		}
		cancel()
	}
	return v, nil
}

// Invalidate deletes key. Missing keys and store failures are not errors.
func (s *Service) Invalidate(ctx context.Context, key string) {
	if !s.Enabled() {
		return
	}
	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.store.Del(opCtx, key); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("cache: invalidate failed")
	}
}

// RateLimit is the outcome of one limiter check.
type RateLimit struct {
	Allowed   bool      `json:"allowed"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

// RetryAfter is the time left until the window resets, rounded up to whole
// seconds and never below one.
func (r RateLimit) RetryAfter(now time.Time) int {
	d := r.ResetAt.Sub(now)
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// CheckRateLimit counts one request for identifier in a fixed window of the
// given length and rejects once more than max requests were seen. When the
// store is missing or failing the request is allowed.
func (s *Service) CheckRateLimit(ctx context.Context, identifier string, max int, window time.Duration) RateLimit {
	if !s.Enabled() {
		rateLimitDecisions.WithLabelValues("fail_open").Inc()
		return RateLimit{Allowed: true, Remaining: max, ResetAt: time.Now().Add(window)}
	}
	now := s.now()
	open := RateLimit{Allowed: true, Remaining: max, ResetAt: now.Add(window)}

	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	count, ttl, err := s.store.Incr(opCtx, "ratelimit:"+identifier, window)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("identifier", identifier).Msg("rate limiter unavailable, allowing")
		rateLimitDecisions.WithLabelValues("fail_open").Inc()
		return open
	}
	if ttl <= 0 || ttl > window {
		ttl = window
	}
	res := RateLimit{
		Allowed:   count <= int64(max),
		Remaining: max - int(count),
		ResetAt:   now.Add(ttl),
	}
	if res.Remaining < 0 {
		res.Remaining = 0
	}
	if res.Allowed {
		rateLimitDecisions.WithLabelValues("allowed").Inc()
	} else {
		rateLimitDecisions.WithLabelValues("rejected").Inc()
	}
	return res
}

// Health reports "disabled", "ok" or "down".
func (s *Service) Health(ctx context.Context) string {
	if !s.Enabled() {
		return "disabled"
	}
	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.store.Ping(opCtx); err != nil {
		return "down"
	}
	return "ok"
}

// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, sessions, idempotency, and rate limiting.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/engrish-backend/internal/auth"
	"github.com/tbourn/engrish-backend/internal/cache"
	"github.com/tbourn/engrish-backend/internal/config"
	"github.com/tbourn/engrish-backend/internal/http/handlers"
	"github.com/tbourn/engrish-backend/internal/http/middleware"
	"github.com/tbourn/engrish-backend/internal/nonce"
	"github.com/tbourn/engrish-backend/internal/repo"
	"github.com/tbourn/engrish-backend/internal/services"
)

// Deps are the collaborators built by main. Cache may be nil: reads then go
// straight to the database and the fixed-window limiters fail open.
type Deps struct {
	DB     *gorm.DB
	Cache  *cache.Service
	Nonces nonce.Store
	Social services.SocialSource
	Images services.Generator
}

var corsMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}

var corsHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderIdempotencyKey}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and mounts the public API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Recovery: JSON 500 with the request id
//  4. Body size limiter and gzip
//  5. CORS and security headers
//  6. Session: resolve the auth-token cookie into a user
//  7. Logger + RedactingLogger: request-scoped logger, then the access log
//  8. Metrics
//  9. Token-bucket limiter per user/IP
//
// POST /auth/nonce and /auth/signin share a fixed-window limiter per IP, and
// POST /images validates Idempotency-Key before the handler.
func RegisterRoutes(r *gin.Engine, deps Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	tokens := auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.SessionTTL)
	authSvc := &services.AuthService{
		DB:     deps.DB,
		Nonces: deps.Nonces,
		Tokens: tokens,
		Domain: cfg.Auth.Domain,
	}
	boardSvc := &services.LeaderboardService{DB: deps.DB, Cache: deps.Cache}
	mentionSvc := &services.MentionService{
		DB:            deps.DB,
		Social:        deps.Social,
		Cache:         deps.Cache,
		TrackingQuery: cfg.Twitter.TrackingQuery,
		MaxResults:    cfg.Twitter.MaxResults,
	}
	imageSvc := &services.ImageService{
		DB:             deps.DB,
		Generator:      deps.Images,
		Cache:          deps.Cache,
		RateMax:        cfg.Image.RateMax,
		RateWindow:     cfg.Image.RateWindow,
		IdempotencyTTL: cfg.IdempotencyTTL,
	}
	userSvc := &services.UserService{DB: deps.DB, Cache: deps.Cache}

	h := handlers.New(handlers.Services{
		Auth:        authSvc,
		Leaderboard: boardSvc,
		Mentions:    mentionSvc,
		Images:      imageSvc,
		Users:       userSvc,
	}, handlers.CookieOptions{Secure: cfg.Auth.CookieSecure, TTL: tokens.TTL()})

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery())
	r.Use(limitBody(1 << 20))
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))
	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins))
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		EnablePolicy: true,
	}))
	r.Use(middleware.Session(authSvc))
	r.Use(middleware.Logger())
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"X-Replicate-Token"},
	}))
	r.Use(middleware.Metrics())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/health", health(deps))
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	api := groupWithPrefix(r, cfg.APIBasePath)
	api.Use(rl.Handler())

	// Only nonce issuance and sign-in share the per-IP window; session reads
	// and sign-out stay unthrottled beyond the token bucket.
	authLimit := middleware.FixedWindow(
		deps.Cache, "auth", cfg.Auth.RateMax, cfg.Auth.RateWindow,
		func(c *gin.Context) string { return "ip:" + c.ClientIP() },
	)
	authGroup := api.Group("/auth")
	{
		authGroup.POST("/nonce", authLimit, h.RequestNonce)
		authGroup.POST("/signin", authLimit, h.SignIn)
		authGroup.GET("/session", h.GetSession)
		authGroup.POST("/signout", h.SignOut)
	}

	// Public reads
	api.GET("/leaderboard", h.TopMentioners)
	api.GET("/twitter/feed", h.GlobalFeed)
	api.GET("/gallery", h.Gallery)

	me := api.Group("", middleware.RequireAuth())
	{
		me.GET("/leaderboard/me", h.MyRank)
		me.POST("/leaderboard/refresh", h.RefreshLeaderboard)

		me.POST("/twitter/link", h.LinkAccount)
		me.DELETE("/twitter/link", h.UnlinkAccount)
		me.POST("/twitter/sync", h.SyncMentions)
		me.GET("/twitter/mentions", h.ListMyMentions)
		me.POST("/twitter/feed/refresh", h.RefreshFeed)

		me.POST("/images", middleware.IdempotencyValidator(
			middleware.IdempotencyOptions{MaxLen: 200, Scope: services.IdempotencyScopeImages},
			idempotencyLookup(deps.DB),
		), h.GenerateImage)
		me.GET("/images", h.ListMyImages)
		me.PATCH("/images/:id/visibility", h.SetImageVisibility)
		me.POST("/images/:id/share", h.ShareImage)
		me.DELETE("/images/:id", h.DeleteImage)

		me.GET("/me", h.GetProfile)
		me.PATCH("/me", h.UpdateProfile)
		me.GET("/me/stats", h.GetStats)
		me.DELETE("/me", h.DeleteAccount)
	}
}

// corsMiddleware allows credentialed requests from the configured origins.
// Without an allowlist every origin is accepted, and credentials are off
// since browsers refuse them with a wildcard origin.
func corsMiddleware(origins []string) gin.HandlerFunc {
	cc := cors.Config{
		AllowMethods:  corsMethods,
		AllowHeaders:  corsHeaders,
		ExposeHeaders: []string{"X-Request-ID", "Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		cc.AllowAllOrigins = true
	} else {
		cc.AllowOrigins = origins
		cc.AllowCredentials = true
	}
	return cors.New(cc)
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status   string `json:"status" example:"ok"`
	Database string `json:"database" example:"ok"`
	Cache    string `json:"cache" example:"disabled"`
}

// health reports liveness. A down cache degrades but does not fail the
// check; a down database does.
func health(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		resp := HealthResponse{Status: "ok", Database: "ok", Cache: deps.Cache.Health(ctx)}
		status := http.StatusOK
		if err := pingDB(ctx, deps.DB); err != nil {
			resp.Status, resp.Database = "degraded", "down"
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, resp)
	}
}

func pingDB(ctx context.Context, db *gorm.DB) error {
	if db == nil {
		return gorm.ErrInvalidDB
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// idempotencyLookup reports whether an unexpired record exists for the key.
func idempotencyLookup(db *gorm.DB) middleware.IdempotencyLookup {
	return func(ctx context.Context, userID, scope, key string, now time.Time) (bool, error) {
		rec, err := repo.GetIdempotency(ctx, db, userID, scope, key, now)
		if err != nil || rec == nil {
			return false, nil
		}
		return true, nil
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}

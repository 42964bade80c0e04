// Command server runs the Engrish backend HTTP API.
//
// @title                      Engrish API
// @version                    1.0
// @description                Wallet sign-in, Twitter mention leaderboard and AI image generation for the $ENGRISH community.
// @BasePath                   /api
// @securityDefinitions.apikey CookieAuth
// @in                         cookie
// @name                       auth-token
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/engrish-backend/docs"
	"github.com/tbourn/engrish-backend/internal/cache"
	"github.com/tbourn/engrish-backend/internal/config"
	httpapi "github.com/tbourn/engrish-backend/internal/http"
	"github.com/tbourn/engrish-backend/internal/imagegen"
	"github.com/tbourn/engrish-backend/internal/nonce"
	"github.com/tbourn/engrish-backend/internal/observability"
	"github.com/tbourn/engrish-backend/internal/repo"
	"github.com/tbourn/engrish-backend/internal/sysutil"
	"github.com/tbourn/engrish-backend/internal/twitter"
)

// version is set at build time with -ldflags "-X main.version=...".
var version string

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := config.MustLoad()
	ver := sysutil.FirstNonEmpty(version, os.Getenv("APP_VERSION"), "dev")
	sysutil.SetupLogging(sysutil.LogOptions{
		Level:   cfg.LogLevel,
		Pretty:  cfg.LogPretty,
		Service: cfg.OTEL.ServiceName,
		Version: ver,
	})
	gin.SetMode(cfg.GinMode)
	docs.SwaggerInfo.BasePath = cfg.APIBasePath
	docs.SwaggerInfo.Version = ver

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, observability.BuildInfo{Version: ver, Environment: cfg.GinMode})
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}

	db, err := repo.Open(repo.Options{
		Driver:  cfg.DB.Driver,
		DSN:     cfg.DB.DSN(),
		Tracing: cfg.OTEL.Enabled,
		Silent:  cfg.Release(),
	})
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DB.Driver).Msg("database open failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}

	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	cacheSvc, rdb, err := cache.Connect(dialCtx, cfg.Cache.RedisURL, cfg.Cache.Timeout)
	cancel()
	switch {
	case err != nil && cfg.Auth.NonceBackend == "redis":
		log.Fatal().Err(err).Msg("redis required for NONCE_BACKEND=redis")
	case err != nil:
		log.Warn().Err(err).Msg("redis unavailable, using in-process cache (single instance only)")
	case rdb == nil:
		log.Info().Msg("REDIS_URL not set, using in-process cache (single instance only)")
	}

	var nonces nonce.Store = nonce.NewMemoryStore(cfg.Auth.NonceTTL)
	if cfg.Auth.NonceBackend == "redis" {
		nonces = nonce.NewRedisStore(rdb, cfg.Auth.NonceTTL)
	}

	if cfg.Twitter.APIKey == "" {
		log.Warn().Msg("TWITTER_API_KEY not set, mention ingestion will fail upstream")
	}
	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.Deps{
		DB:     db,
		Cache:  cacheSvc,
		Nonces: nonces,
		Social: twitter.NewClient(cfg.Twitter.BaseURL, cfg.Twitter.APIKey, cfg.Twitter.Timeout),
		Images: imagegen.NewReplicate("", cfg.Image.ReplicateToken, cfg.Image.Model, cfg.Image.Timeout),
	}, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("db", cfg.DB.Driver).
			Str("cache", cacheSvc.Health(ctx)).
			Str("nonces", cfg.Auth.NonceBackend).
			Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("otel shutdown")
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

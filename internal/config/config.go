// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes server timeouts,
// logging, storage, the Redis cache, wallet sessions, the social and image
// providers, rate limiting and observability.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "engrish-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// DBConfig selects the SQL backend.
type DBConfig struct {
	Driver string // DB_DRIVER: sqlite|postgres
	Path   string // DB_PATH, sqlite file
	URL    string // DATABASE_URL, postgres DSN
}

// DSN is the connection string for the selected driver.
func (d DBConfig) DSN() string {
	if d.Driver == "postgres" {
		return d.URL
	}
	return d.Path
}

// AuthConfig drives wallet sign-in and session cookies.
type AuthConfig struct {
	JWTSecret    string        // JWT_SECRET
	SessionTTL   time.Duration // SESSION_TTL
	CookieSecure bool          // COOKIE_SECURE, defaults to true in release
	Domain       string        // AUTH_DOMAIN, named in the sign-in message
	NonceTTL     time.Duration // NONCE_TTL
	NonceBackend string        // NONCE_BACKEND: memory|redis
	RateMax      int           // AUTH_RATE_MAX requests per window per IP
	RateWindow   time.Duration // AUTH_RATE_WINDOW
}

// CacheConfig points at Redis. An empty URL disables caching and the
// fixed-window limiter fails open.
type CacheConfig struct {
	RedisURL string        // REDIS_URL
	Timeout  time.Duration // CACHE_TIMEOUT per store call
}

// TwitterConfig configures the social search API.
type TwitterConfig struct {
	BaseURL       string        // TWITTER_API_BASE
	APIKey        string        // TWITTER_API_KEY
	TrackingQuery string        // TWITTER_TRACKING_QUERY
	MaxResults    int           // TWITTER_MAX_RESULTS
	Timeout       time.Duration // TWITTER_TIMEOUT
}

// ImageConfig configures image generation.
type ImageConfig struct {
	ReplicateToken string        // REPLICATE_API_TOKEN
	Model          string        // REPLICATE_MODEL
	Timeout        time.Duration // IMAGE_TIMEOUT
	RateMax        int           // IMAGE_RATE_MAX
	RateWindow     time.Duration // IMAGE_RATE_WINDOW
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 90s, image generation blocks
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// Storage
	DB    DBConfig
	Cache CacheConfig

	// Domain
	Auth    AuthConfig
	Twitter TwitterConfig
	Image   ImageConfig

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Observability
	OTEL OTELConfig
}

// Release reports whether the server runs in release mode.
func (c Config) Release() bool { return c.GinMode == "release" }

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 90*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api")),

		// Storage
		DB: DBConfig{
			Driver: strings.ToLower(getenv("DB_DRIVER", "sqlite")),
			Path:   getenv("DB_PATH", "app.db"),
			URL:    getenv("DATABASE_URL", ""),
		},
		Cache: CacheConfig{
			RedisURL: getenv("REDIS_URL", ""),
			Timeout:  getdur("CACHE_TIMEOUT", 2*time.Second),
		},

		// Domain
		Auth: AuthConfig{
			JWTSecret:    getenv("JWT_SECRET", ""),
			SessionTTL:   getdur("SESSION_TTL", 30*24*time.Hour),
			Domain:       getenv("AUTH_DOMAIN", "engrish.app"),
			NonceTTL:     getdur("NONCE_TTL", 5*time.Minute),
			NonceBackend: strings.ToLower(getenv("NONCE_BACKEND", "memory")),
			RateMax:      getint("AUTH_RATE_MAX", 20),
			RateWindow:   getdur("AUTH_RATE_WINDOW", time.Minute),
		},
		Twitter: TwitterConfig{
			BaseURL:       getenv("TWITTER_API_BASE", "https://api.twitterapi.io"),
			APIKey:        getenv("TWITTER_API_KEY", ""),
			TrackingQuery: getenv("TWITTER_TRACKING_QUERY", "@Engrishcoin"),
			MaxResults:    getint("TWITTER_MAX_RESULTS", 100),
			Timeout:       getdur("TWITTER_TIMEOUT", 10*time.Second),
		},
		Image: ImageConfig{
			ReplicateToken: getenv("REPLICATE_API_TOKEN", ""),
			Model:          getenv("REPLICATE_MODEL", "black-forest-labs/flux-schnell"),
			Timeout:        getdur("IMAGE_TIMEOUT", 60*time.Second),
			RateMax:        getint("IMAGE_RATE_MAX", 5),
			RateWindow:     getdur("IMAGE_RATE_WINDOW", 60*time.Second),
		},

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Idempotency
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "engrish-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	if cfg.DB.Driver == "postgresql" {
		cfg.DB.Driver = "postgres"
	}
	cfg.Auth.CookieSecure = getbool("COOKIE_SECURE", cfg.Release())

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	switch cfg.DB.Driver {
	case "sqlite":
		if strings.TrimSpace(cfg.DB.Path) == "" {
			return cfg, errors.New("DB_PATH must not be empty")
		}
	case "postgres":
		if strings.TrimSpace(cfg.DB.URL) == "" {
			return cfg, errors.New("DATABASE_URL is required when DB_DRIVER=postgres")
		}
	default:
		return cfg, errors.New("DB_DRIVER must be one of: sqlite, postgres")
	}
	if cfg.Cache.Timeout <= 0 {
		return cfg, errors.New("CACHE_TIMEOUT must be > 0")
	}
	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		return cfg, errors.New("JWT_SECRET must be set")
	}
	if cfg.Release() && len(cfg.Auth.JWTSecret) < 32 {
		return cfg, errors.New("JWT_SECRET must be at least 32 bytes in release mode")
	}
	if cfg.Auth.SessionTTL <= 0 || cfg.Auth.NonceTTL <= 0 {
		return cfg, errors.New("SESSION_TTL and NONCE_TTL must be > 0")
	}
	switch cfg.Auth.NonceBackend {
	case "memory":
	case "redis":
		if cfg.Cache.RedisURL == "" {
			return cfg, errors.New("NONCE_BACKEND=redis requires REDIS_URL")
		}
	default:
		return cfg, errors.New("NONCE_BACKEND must be one of: memory, redis")
	}
	if strings.TrimSpace(cfg.Auth.Domain) == "" {
		return cfg, errors.New("AUTH_DOMAIN must not be empty")
	}
	if cfg.Auth.RateMax < 1 || cfg.Auth.RateWindow <= 0 {
		return cfg, errors.New("AUTH_RATE_MAX must be >= 1 and AUTH_RATE_WINDOW > 0")
	}
	if cfg.Twitter.MaxResults < 1 || cfg.Twitter.Timeout <= 0 {
		return cfg, errors.New("TWITTER_MAX_RESULTS must be >= 1 and TWITTER_TIMEOUT > 0")
	}
	if cfg.Image.RateMax < 1 || cfg.Image.RateWindow <= 0 || cfg.Image.Timeout <= 0 {
		return cfg, fmt.Errorf("IMAGE_RATE_MAX must be >= 1, IMAGE_RATE_WINDOW and IMAGE_TIMEOUT > 0 (got %d, %s, %s)",
			cfg.Image.RateMax, cfg.Image.RateWindow, cfg.Image.Timeout)
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}

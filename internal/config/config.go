// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes settings for the HTTP
// server, logging, persistence, comment rate limiting, moderation credentials,
// web push, and observability.
package config

import (
	"errors"
	"net"
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
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-blog-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// AccessConfig describes how a privileged endpoint group is guarded.
//
// Open must be set explicitly to allow unauthenticated access; an empty Key
// and KeyBcrypt with Open=false denies every request.
type AccessConfig struct {
	Key       string // plaintext bearer key
	KeyBcrypt string // bcrypt hash of the bearer key
	Open      bool   // explicit "no credential required" mode
}

// Configured reports whether any credential is set.
func (a AccessConfig) Configured() bool {
	return strings.TrimSpace(a.Key) != "" || strings.TrimSpace(a.KeyBcrypt) != ""
}

// CommentsConfig groups comment submission and read-path settings.
type CommentsConfig struct {
	RateWindow  time.Duration // COMMENT_RATE_WINDOW
	RateMax     int           // COMMENT_RATE_MAX
	RateMaxKeys int           // COMMENT_RATE_MAX_KEYS (in-memory limiter only)
	CacheTTL    time.Duration // COMMENT_CACHE_TTL, 0 disables
	Blocklist   []string      // SPAM_BLOCKLIST
	MaxLinks    int           // SPAM_MAX_LINKS
}

// PushConfig groups web push settings.
type PushConfig struct {
	Store           string        // memory|db|redis
	VAPIDPublicKey  string        // VAPID_PUBLIC_KEY
	VAPIDPrivateKey string        // VAPID_PRIVATE_KEY
	Subject         string        // VAPID_SUBJECT (mailto: or https: URL)
	TTL             time.Duration // PUSH_TTL
	Concurrency     int           // PUSH_BROADCAST_CONCURRENCY
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	ShutdownTimeout   time.Duration // e.g. 10s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging
	LogLevel    string // debug|info|warn|error|fatal|panic
	LogPretty   bool   // pretty console logs in dev
	APIBasePath string // base path for API routes

	// Persistence
	DBDriver    string // sqlite|postgres|none
	DBPath      string // SQLite path
	DatabaseURL string // Postgres DSN
	RedisURL    string // optional; enables shared limiter/registry state

	// Global edge rate limiting (token bucket)
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	Comments   CommentsConfig
	Moderation AccessConfig
	PushAccess AccessConfig
	Push       PushConfig

	// Web protection
	CORS           CORSConfig
	Security       SecurityConfig
	TrustedProxies []string // IPs/CIDRs allowed to set X-Forwarded-For; empty trusts none

	// Observability
	OTEL OTELConfig
}

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
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout:   getdur("SHUTDOWN_TIMEOUT", 10*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging
		LogLevel:    strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:   getbool("LOG_PRETTY", false),
		APIBasePath: normalizeBasePath(getenv("API_BASE_PATH", "/api")),

		// Persistence
		DBDriver:    strings.ToLower(getenv("DB_DRIVER", "sqlite")),
		DBPath:      getenv("DB_PATH", "app.db"),
		DatabaseURL: getenv("DATABASE_URL", ""),
		RedisURL:    getenv("REDIS_URL", ""),

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		Comments: CommentsConfig{
			RateWindow:  getdur("COMMENT_RATE_WINDOW", 60*time.Second),
			RateMax:     getint("COMMENT_RATE_MAX", 3),
			RateMaxKeys: getint("COMMENT_RATE_MAX_KEYS", 10000),
			CacheTTL:    getdur("COMMENT_CACHE_TTL", 30*time.Second),
			Blocklist:   splitCSV(getenv("SPAM_BLOCKLIST", "")),
			MaxLinks:    getint("SPAM_MAX_LINKS", 3),
		},
		Moderation: AccessConfig{
			Key:       getenv("MODERATION_API_KEY", ""),
			KeyBcrypt: getenv("MODERATION_API_KEY_BCRYPT", ""),
			Open:      getbool("MODERATION_OPEN", false),
		},
		PushAccess: AccessConfig{
			Key:       getenv("PUSH_API_KEY", ""),
			KeyBcrypt: getenv("PUSH_API_KEY_BCRYPT", ""),
			Open:      getbool("PUSH_OPEN", false),
		},
		Push: PushConfig{
			Store:           strings.ToLower(getenv("PUSH_STORE", "")),
			VAPIDPublicKey:  getenv("VAPID_PUBLIC_KEY", ""),
			VAPIDPrivateKey: getenv("VAPID_PRIVATE_KEY", ""),
			Subject:         getenv("VAPID_SUBJECT", "mailto:"+getenv("ADMIN_EMAIL", "admin@example.com")),
			TTL:             getdur("PUSH_TTL", 24*time.Hour),
			Concurrency:     getint("PUSH_BROADCAST_CONCURRENCY", 8),
		},

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},
		TrustedProxies: splitCSV(getenv("TRUSTED_PROXIES", "")),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-blog-backend"),
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
	if cfg.DBDriver == "postgresql" {
		cfg.DBDriver = "postgres"
	}
	if cfg.Push.Store == "" {
		switch {
		case cfg.RedisURL != "":
			cfg.Push.Store = "redis"
		case cfg.DBDriver != "none":
			cfg.Push.Store = "db"
		default:
			cfg.Push.Store = "memory"
		}
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 || cfg.ShutdownTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	switch cfg.DBDriver {
	case "sqlite":
		if strings.TrimSpace(cfg.DBPath) == "" {
			return cfg, errors.New("DB_PATH must not be empty")
		}
	case "postgres":
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return cfg, errors.New("DATABASE_URL is required when DB_DRIVER=postgres")
		}
	case "none":
	default:
		return cfg, errors.New("DB_DRIVER must be one of: sqlite, postgres, none")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Comments.RateWindow <= 0 {
		return cfg, errors.New("COMMENT_RATE_WINDOW must be > 0")
	}
	if cfg.Comments.RateMax < 1 {
		return cfg, errors.New("COMMENT_RATE_MAX must be >= 1")
	}
	if cfg.Comments.RateMaxKeys < 1 {
		return cfg, errors.New("COMMENT_RATE_MAX_KEYS must be >= 1")
	}
	if cfg.Comments.CacheTTL < 0 {
		return cfg, errors.New("COMMENT_CACHE_TTL must be >= 0")
	}
	if cfg.Comments.MaxLinks < 0 {
		return cfg, errors.New("SPAM_MAX_LINKS must be >= 0")
	}
	switch cfg.Push.Store {
	case "memory":
	case "db":
		if cfg.DBDriver == "none" {
			return cfg, errors.New("PUSH_STORE=db requires a DB_DRIVER")
		}
	case "redis":
		if cfg.RedisURL == "" {
			return cfg, errors.New("PUSH_STORE=redis requires REDIS_URL")
		}
	default:
		return cfg, errors.New("PUSH_STORE must be one of: memory, db, redis")
	}
	if (cfg.Push.VAPIDPublicKey == "") != (cfg.Push.VAPIDPrivateKey == "") {
		return cfg, errors.New("VAPID_PUBLIC_KEY and VAPID_PRIVATE_KEY must be set together")
	}
	if cfg.Push.TTL < 0 {
		return cfg, errors.New("PUSH_TTL must be >= 0")
	}
	if cfg.Push.Concurrency < 1 {
		return cfg, errors.New("PUSH_BROADCAST_CONCURRENCY must be >= 1")
	}
	if cfg.Moderation.Open && cfg.Moderation.Configured() {
		return cfg, errors.New("MODERATION_OPEN cannot be combined with a moderation API key")
	}
	if cfg.PushAccess.Open && cfg.PushAccess.Configured() {
		return cfg, errors.New("PUSH_OPEN cannot be combined with a push API key")
	}
	for _, p := range cfg.TrustedProxies {
		if net.ParseIP(p) == nil {
			if _, _, err := net.ParseCIDR(p); err != nil {
				return cfg, errors.New("TRUSTED_PROXIES entries must be IPs or CIDRs: " + p)
			}
		}
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
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

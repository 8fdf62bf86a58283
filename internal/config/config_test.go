package config

import (
	"os"
	"reflect"
	"strings"
	"testing"
	"time"
)

// --- MustLoad ---

func TestMustLoad_PanicsOnInvalidConfig(t *testing.T) {
	t.Setenv("LOG_LEVEL", "verbose") // invalid -> Load() error
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("MustLoad should panic on invalid config")
		}
	}()
	_ = MustLoad()
}

// --- Load success + normalization + parsing ---

func TestLoad_Success_DefaultsAndOverrides(t *testing.T) {
	// Server timeouts / sizes (valid)
	t.Setenv("PORT", "8088")
	t.Setenv("READ_TIMEOUT", "2s")
	t.Setenv("READ_HEADER_TIMEOUT", "1s")
	t.Setenv("WRITE_TIMEOUT", "3s")
	t.Setenv("IDLE_TIMEOUT", "4s")
	t.Setenv("SHUTDOWN_TIMEOUT", "5s")
	t.Setenv("MAX_HEADER_BYTES", "8192")
	t.Setenv("GIN_MODE", "weird") // will normalize to "release"

	// Logging
	t.Setenv("LOG_LEVEL", "warning") // will normalize to "warn"
	t.Setenv("LOG_PRETTY", "yes")
	t.Setenv("API_BASE_PATH", "api/v2/") // -> "/api/v2"

	// Persistence
	t.Setenv("DB_DRIVER", "PostgreSQL") // -> "postgres"
	t.Setenv("DATABASE_URL", "postgres://u:p@db/blog")

	// Rate limiting (use invalids for parse to fall back to defaults)
	t.Setenv("RATE_RPS", "x")      // -> default 5.0
	t.Setenv("RATE_BURST", "nope") // -> default 10
	t.Setenv("COMMENT_RATE_WINDOW", "2m")
	t.Setenv("COMMENT_RATE_MAX", "5")
	t.Setenv("COMMENT_CACHE_TTL", "0s")
	t.Setenv("SPAM_BLOCKLIST", "casino, viagra ,")

	// Access
	t.Setenv("MODERATION_API_KEY", "mod-secret")
	t.Setenv("PUSH_OPEN", "on")

	// Push
	t.Setenv("VAPID_PUBLIC_KEY", "pub")
	t.Setenv("VAPID_PRIVATE_KEY", "priv")
	t.Setenv("ADMIN_EMAIL", "me@blog.dev")
	t.Setenv("PUSH_BROADCAST_CONCURRENCY", "3")

	// Web protection
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.com , , http://b ")
	t.Setenv("ENABLE_HSTS", "TRUE")
	t.Setenv("HSTS_MAX_AGE", "24h")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, 192.168.1.10")

	// OTEL
	t.Setenv("OTEL_ENABLED", "1")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "otel:4317")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "0")
	t.Setenv("OTEL_SERVICE_NAME", "svc")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.75")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Port != "8088" ||
		cfg.ReadTimeout != 2*time.Second ||
		cfg.ReadHeaderTimeout != 1*time.Second ||
		cfg.WriteTimeout != 3*time.Second ||
		cfg.IdleTimeout != 4*time.Second ||
		cfg.ShutdownTimeout != 5*time.Second ||
		cfg.MaxHeaderBytes != 8192 ||
		cfg.GinMode != "release" {
		t.Fatalf("server fields unexpected: %+v", cfg)
	}
	if cfg.LogLevel != "warn" || !cfg.LogPretty || cfg.APIBasePath != "/api/v2" {
		t.Fatalf("logging unexpected: %+v", cfg)
	}
	if cfg.DBDriver != "postgres" || cfg.DatabaseURL != "postgres://u:p@db/blog" {
		t.Fatalf("persistence unexpected: %+v", cfg)
	}
	if cfg.RateRPS != 5.0 || cfg.RateBurst != 10 {
		t.Fatalf("rate limiting unexpected: %+v", cfg)
	}
	if cfg.Comments.RateWindow != 2*time.Minute || cfg.Comments.RateMax != 5 || cfg.Comments.CacheTTL != 0 {
		t.Fatalf("comments unexpected: %+v", cfg.Comments)
	}
	if !reflect.DeepEqual(cfg.Comments.Blocklist, []string{"casino", "viagra"}) {
		t.Fatalf("blocklist unexpected: %#v", cfg.Comments.Blocklist)
	}
	if !cfg.Moderation.Configured() || cfg.Moderation.Open {
		t.Fatalf("moderation access unexpected: %+v", cfg.Moderation)
	}
	if cfg.PushAccess.Configured() || !cfg.PushAccess.Open {
		t.Fatalf("push access unexpected: %+v", cfg.PushAccess)
	}
	// PUSH_STORE unset + DB configured -> durable table
	if cfg.Push.Store != "db" || cfg.Push.Subject != "mailto:me@blog.dev" || cfg.Push.Concurrency != 3 {
		t.Fatalf("push unexpected: %+v", cfg.Push)
	}
	if !reflect.DeepEqual(cfg.CORS.AllowedOrigins, []string{"https://a.com", "http://b"}) {
		t.Fatalf("cors origins unexpected: %#v", cfg.CORS.AllowedOrigins)
	}
	if !cfg.Security.EnableHSTS || cfg.Security.HSTSMaxAge != 24*time.Hour {
		t.Fatalf("security unexpected: %+v", cfg.Security)
	}
	if !reflect.DeepEqual(cfg.TrustedProxies, []string{"10.0.0.0/8", "192.168.1.10"}) {
		t.Fatalf("trusted proxies unexpected: %#v", cfg.TrustedProxies)
	}
	if !cfg.OTEL.Enabled || cfg.OTEL.Endpoint != "otel:4317" || cfg.OTEL.Insecure || cfg.OTEL.ServiceName != "svc" || cfg.OTEL.SampleRatio != 0.75 {
		t.Fatalf("otel unexpected: %+v", cfg.OTEL)
	}
}

func TestLoad_PushStoreDefaults(t *testing.T) {
	t.Run("redis when REDIS_URL set", func(t *testing.T) {
		t.Setenv("REDIS_URL", "redis://localhost:6379/0")
		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.Push.Store != "redis" {
			t.Fatalf("store=%q want redis", cfg.Push.Store)
		}
	})
	t.Run("memory when no DB", func(t *testing.T) {
		t.Setenv("DB_DRIVER", "none")
		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.Push.Store != "memory" {
			t.Fatalf("store=%q want memory", cfg.Push.Store)
		}
	})
}

// --- Load validations (each case triggers exactly one validation error) ---

func TestLoad_ValidationErrors(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"invalid LOG_LEVEL", map[string]string{"LOG_LEVEL": "verbose"}, "LOG_LEVEL"},
		{"empty PORT via spaces", map[string]string{"PORT": "   "}, "PORT must not be empty"},
		{"non-positive timeouts", map[string]string{"READ_TIMEOUT": "0s"}, "timeouts must be positive"},
		{"non-positive shutdown", map[string]string{"SHUTDOWN_TIMEOUT": "-1s"}, "timeouts must be positive"},
		{"max header bytes <= 0", map[string]string{"MAX_HEADER_BYTES": "0"}, "MAX_HEADER_BYTES"},
		{"empty DB_PATH", map[string]string{"DB_PATH": "   "}, "DB_PATH must not be empty"},
		{"postgres without url", map[string]string{"DB_DRIVER": "postgres"}, "DATABASE_URL"},
		{"unknown driver", map[string]string{"DB_DRIVER": "oracle"}, "DB_DRIVER"},
		{"rate rps negative", map[string]string{"RATE_RPS": "-1"}, "RATE_RPS"},
		{"rate burst < 1", map[string]string{"RATE_BURST": "0"}, "RATE_BURST"},
		{"comment window zero", map[string]string{"COMMENT_RATE_WINDOW": "0s"}, "COMMENT_RATE_WINDOW"},
		{"comment max zero", map[string]string{"COMMENT_RATE_MAX": "0"}, "COMMENT_RATE_MAX"},
		{"comment keys zero", map[string]string{"COMMENT_RATE_MAX_KEYS": "0"}, "COMMENT_RATE_MAX_KEYS"},
		{"cache ttl negative", map[string]string{"COMMENT_CACHE_TTL": "-1s"}, "COMMENT_CACHE_TTL"},
		{"max links negative", map[string]string{"SPAM_MAX_LINKS": "-1"}, "SPAM_MAX_LINKS"},
		{"push store unknown", map[string]string{"PUSH_STORE": "s3"}, "PUSH_STORE"},
		{"push store db without db", map[string]string{"PUSH_STORE": "db", "DB_DRIVER": "none"}, "PUSH_STORE=db"},
		{"push store redis without url", map[string]string{"PUSH_STORE": "redis"}, "REDIS_URL"},
		{"half vapid pair", map[string]string{"VAPID_PUBLIC_KEY": "pub"}, "VAPID"},
		{"push ttl negative", map[string]string{"PUSH_TTL": "-1s"}, "PUSH_TTL"},
		{"broadcast concurrency zero", map[string]string{"PUSH_BROADCAST_CONCURRENCY": "0"}, "PUSH_BROADCAST_CONCURRENCY"},
		{"moderation open with key", map[string]string{"MODERATION_OPEN": "true", "MODERATION_API_KEY": "k"}, "MODERATION_OPEN"},
		{"push open with bcrypt key", map[string]string{"PUSH_OPEN": "1", "PUSH_API_KEY_BCRYPT": "$2a$10$x"}, "PUSH_OPEN"},
		{"trusted proxy not an address", map[string]string{"TRUSTED_PROXIES": "10.0.0.0/8,proxy.local"}, "TRUSTED_PROXIES"},
		{"hsts max age negative", map[string]string{"HSTS_MAX_AGE": "-1s"}, "HSTS_MAX_AGE"},
		{"otel sample ratio out of range", map[string]string{"OTEL_TRACES_SAMPLER_ARG": "1.5"}, "OTEL_TRACES_SAMPLER_ARG"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil || !containsErr(err, tc.want) {
				t.Fatalf("expected error containing %q, got: %v", tc.want, err)
			}
		})
	}
}

func TestAccessConfig_Configured(t *testing.T) {
	if (AccessConfig{}).Configured() {
		t.Fatalf("empty access config should not be configured")
	}
	if (AccessConfig{Key: "   "}).Configured() {
		t.Fatalf("whitespace key should not count as configured")
	}
	if !(AccessConfig{KeyBcrypt: "$2a$10$abc"}).Configured() {
		t.Fatalf("bcrypt hash should count as configured")
	}
}

// --- helpers ---

func TestHelpers_getenv(t *testing.T) {
	t.Setenv("X_EMPTY", "")
	if getenv("X_EMPTY", "d") != "d" {
		t.Fatalf("getenv should fall back to default on empty var")
	}
	t.Setenv("X_SET", "val")
	if getenv("X_SET", "d") != "val" {
		t.Fatalf("getenv should read set value")
	}
}

func TestHelpers_getfloat_getint_getdur(t *testing.T) {
	t.Setenv("F_VALID", "3.14")
	if getfloat("F_VALID", 0) != 3.14 {
		t.Fatalf("getfloat parse failed")
	}
	t.Setenv("F_BAD", "nope")
	if getfloat("F_BAD", 1.23) != 1.23 {
		t.Fatalf("getfloat default on bad parse failed")
	}

	t.Setenv("I_VALID", "42")
	if getint("I_VALID", 0) != 42 {
		t.Fatalf("getint parse failed")
	}
	t.Setenv("I_BAD", "x")
	if getint("I_BAD", 7) != 7 {
		t.Fatalf("getint default on bad parse failed")
	}

	t.Setenv("D_VALID", "150ms")
	if getdur("D_VALID", time.Second) != 150*time.Millisecond {
		t.Fatalf("getdur parse failed")
	}
	t.Setenv("D_BAD", "zzz")
	if getdur("D_BAD", 2*time.Second) != 2*time.Second {
		t.Fatalf("getdur default on bad parse failed")
	}
}

func TestHelpers_getbool(t *testing.T) {
	trueVals := []string{"1", "true", "TRUE", " yes ", "Y", "on", "On"}
	for i, v := range trueVals {
		k := "B_T_" + keySuffix(i)
		t.Setenv(k, v)
		if !getbool(k, false) {
			t.Fatalf("getbool(%q) = false; want true", v)
		}
	}
	falseVals := []string{"0", "false", "FALSE", " no ", "N", "off", "Off"}
	for i, v := range falseVals {
		k := "B_F_" + keySuffix(i)
		t.Setenv(k, v)
		if getbool(k, true) {
			t.Fatalf("getbool(%q) = true; want false", v)
		}
	}
	t.Setenv("B_EMPTY", "")
	if !getbool("B_EMPTY", true) || getbool("B_EMPTY", false) {
		t.Fatalf("getbool default behavior unexpected")
	}
}

func TestHelpers_splitCSV_and_normalizeBasePath(t *testing.T) {
	if out := splitCSV(""); out != nil {
		t.Fatalf("splitCSV empty should return nil")
	}
	in := " a, ,b ,  c  ,"
	want := []string{"a", "b", "c"}
	if got := splitCSV(in); !reflect.DeepEqual(got, want) {
		t.Fatalf("splitCSV mismatch: got %#v want %#v", got, want)
	}

	if normalizeBasePath("") != "/" {
		t.Fatalf("normalizeBasePath empty -> '/' failed")
	}
	if normalizeBasePath("v1") != "/v1" {
		t.Fatalf("normalizeBasePath missing leading slash failed")
	}
	if normalizeBasePath("/v1/") != "/v1" {
		t.Fatalf("normalizeBasePath trailing slash trim failed")
	}
	if normalizeBasePath(" / ") != "/" {
		t.Fatalf("normalizeBasePath whitespace failed")
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.APIBasePath != "/api" {
		t.Fatalf("API_BASE_PATH default expected '/api', got %q", cfg.APIBasePath)
	}
	if cfg.DBDriver != "sqlite" || cfg.Push.Store != "db" {
		t.Fatalf("persistence defaults unexpected: driver=%q store=%q", cfg.DBDriver, cfg.Push.Store)
	}
	if cfg.Comments.RateWindow != time.Minute || cfg.Comments.RateMax != 3 {
		t.Fatalf("comment rate defaults unexpected: %+v", cfg.Comments)
	}
	if cfg.Moderation.Configured() || cfg.Moderation.Open {
		t.Fatalf("moderation must default to closed and unconfigured: %+v", cfg.Moderation)
	}
	if len(cfg.TrustedProxies) != 0 {
		t.Fatalf("no proxy may be trusted by default: %v", cfg.TrustedProxies)
	}
	if cfg.Push.Subject != "mailto:admin@example.com" {
		t.Fatalf("default VAPID subject unexpected: %q", cfg.Push.Subject)
	}
}

func TestMustLoad_Success_NoPanic(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("MustLoad should not panic on valid defaults, got: %v", r)
		}
	}()
	cfg := MustLoad()
	if cfg.APIBasePath == "" {
		t.Fatalf("unexpected empty config from MustLoad")
	}
}

// small helper (avoid fmt just for ints)
func keySuffix(i int) string { return string('a' + rune(i)) }

// Ensure tests don't inherit deployment env.
func TestMain(m *testing.M) {
	for _, k := range []string{
		"PORT", "DB_DRIVER", "DB_PATH", "DATABASE_URL", "REDIS_URL", "PUSH_STORE",
		"VAPID_PUBLIC_KEY", "VAPID_PRIVATE_KEY", "VAPID_SUBJECT", "ADMIN_EMAIL",
		"MODERATION_API_KEY", "MODERATION_API_KEY_BCRYPT", "MODERATION_OPEN",
		"PUSH_API_KEY", "PUSH_API_KEY_BCRYPT", "PUSH_OPEN", "TRUSTED_PROXIES",
		"API_BASE_PATH", "LOG_LEVEL",
	} {
		os.Unsetenv(k)
	}
	os.Exit(m.Run())
}

// containsErr reports whether err's message contains the given substring.
func containsErr(err error, want string) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), want)
}

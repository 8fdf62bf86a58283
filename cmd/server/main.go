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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/go-blog-backend/internal/config"
	httpapi "github.com/tbourn/go-blog-backend/internal/http"
	"github.com/tbourn/go-blog-backend/internal/http/handlers"
	"github.com/tbourn/go-blog-backend/internal/observability"
	"github.com/tbourn/go-blog-backend/internal/push"
	"github.com/tbourn/go-blog-backend/internal/ratelimit"
	"github.com/tbourn/go-blog-backend/internal/repo"
	"github.com/tbourn/go-blog-backend/internal/services"
	"github.com/tbourn/go-blog-backend/internal/spam"
	"github.com/tbourn/go-blog-backend/internal/sysutil"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	cfg := config.MustLoad()
	log := sysutil.ConfigureLogger(os.Stdout, cfg.LogLevel, cfg.LogPretty, cfg.OTEL.ServiceName)
	ver := sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), version)
	log.Info().Str("version", ver).Msg("Starting blog backend...")

	gin.SetMode(cfg.GinMode)

	// Tracing
	shutdownOTel, err := observability.SetupOTel(context.Background(), cfg.OTEL, ver)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up OpenTelemetry")
	}

	// Database (optional: DB_DRIVER=none runs push-only)
	var db *gorm.DB
	if cfg.DBDriver != "none" {
		dsn := cfg.DBPath
		if cfg.DBDriver == "postgres" {
			dsn = cfg.DatabaseURL
		}
		db, err = repo.Open(cfg.DBDriver, dsn)
		if err != nil {
			log.Fatal().Err(err).Str("driver", cfg.DBDriver).Msg("Failed to connect to database")
		}
		if cfg.OTEL.Enabled {
			if err := repo.EnableTracing(db); err != nil {
				log.Warn().Err(err).Msg("GORM tracing disabled")
			}
		}
		if err := repo.AutoMigrate(db); err != nil {
			log.Fatal().Err(err).Msg("Failed to run database migrations")
		}
		if sysutil.IsTruthy(os.Getenv("MIGRATE_ONLY")) {
			log.Info().Msg("Migrations applied, exiting")
			return
		}
	} else {
		log.Warn().Msg("DB_DRIVER=none: comment endpoints will answer 503")
	}

	// Redis (optional: shared limiter and registry state)
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid REDIS_URL")
		}
		rdb = redis.NewClient(opt)
		pctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := rdb.Ping(pctx).Err(); err != nil {
			log.Warn().Err(err).Msg("Redis not reachable yet")
		}
		cancel()
	}

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(reg)

	// Comments
	var limiter ratelimit.Limiter
	if rdb != nil {
		limiter = ratelimit.NewRedisLimiter(rdb, cfg.Comments.RateWindow, cfg.Comments.RateMax)
	} else {
		limiter = ratelimit.NewMemoryLimiter(cfg.Comments.RateWindow, cfg.Comments.RateMax, cfg.Comments.RateMaxKeys)
	}
	scorer := spam.New(spam.WithBlocklist(cfg.Comments.Blocklist), spam.WithMaxLinks(cfg.Comments.MaxLinks))
	comments := services.NewCommentService(db, limiter, scorer, cfg.Comments.CacheTTL)

	// Push
	var registry push.Registry
	switch cfg.Push.Store {
	case "redis":
		registry = push.NewRedisRegistry(rdb)
	case "db":
		registry = push.NewDBRegistry(db)
	default:
		registry = push.NewMemoryRegistry()
	}
	dispatcher := push.NewDispatcher(push.Config{
		VAPIDPublicKey:  cfg.Push.VAPIDPublicKey,
		VAPIDPrivateKey: cfg.Push.VAPIDPrivateKey,
		Subject:         cfg.Push.Subject,
		TTL:             cfg.Push.TTL,
		HTTPClient:      &http.Client{Timeout: 10 * time.Second},
	})
	if !dispatcher.Configured() {
		log.Warn().Msg("VAPID keys missing: push delivery will answer 503")
	}
	broadcaster := &push.Broadcaster{
		Registry:    registry,
		Sender:      dispatcher,
		Concurrency: cfg.Push.Concurrency,
		Log:         log.With().Str("component", "push").Logger(),
		OnResult:    func(r push.Result) { metrics.Dispatched(r.String()) },
	}

	// Access gates
	modGate := gate(log, "moderation", cfg.Moderation)
	pushGate := gate(log, "push", cfg.PushAccess)

	// Router
	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.Deps{
		Handlers: handlers.New(handlers.Deps{
			Comments:    comments,
			Registry:    registry,
			Sender:      dispatcher,
			Broadcaster: broadcaster,
			Metrics:     metrics,
		}),
		Moderation: modGate,
		PushAccess: pushGate,
		Metrics:    reg,
		Ping:       pinger(db, rdb),
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
		log.Info().Str("port", cfg.Port).Str("base_path", cfg.APIBasePath).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := shutdownOTel(ctx); err != nil {
		log.Warn().Err(err).Msg("OpenTelemetry shutdown")
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	if db != nil {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}

	log.Info().Msg("Server exited gracefully")
}

// gate builds the access gate for a route group and logs its mode.
func gate(log zerolog.Logger, name string, a config.AccessConfig) *services.Gate {
	g := services.NewGate(a.Key, a.KeyBcrypt, a.Open)
	switch g.Mode() {
	case services.GateOpen:
		log.Warn().Str("gate", name).Msg("Access gate is OPEN: no credential required")
	case services.GateLocked:
		log.Warn().Str("gate", name).Msg("No API key configured: every privileged request is rejected")
	default:
		log.Info().Str("gate", name).Msg("Access gate requires a bearer key")
	}
	return g
}

// pinger checks the configured stores for /health.
func pinger(db *gorm.DB, rdb *redis.Client) func(context.Context) error {
	if db == nil && rdb == nil {
		return nil
	}
	return func(ctx context.Context) error {
		if db != nil {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			if err := sqlDB.PingContext(ctx); err != nil {
				return err
			}
		}
		if rdb != nil {
			return rdb.Ping(ctx).Err()
		}
		return nil
	}
}

package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-blog-backend/internal/config"
	"github.com/tbourn/go-blog-backend/internal/domain"
	"github.com/tbourn/go-blog-backend/internal/http/handlers"
	"github.com/tbourn/go-blog-backend/internal/observability"
	"github.com/tbourn/go-blog-backend/internal/push"
	"github.com/tbourn/go-blog-backend/internal/ratelimit"
	"github.com/tbourn/go-blog-backend/internal/services"
	"github.com/tbourn/go-blog-backend/internal/spam"
)

// --- test DB helper (pure-Go sqlite, no CGO) ---
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:router_"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.Comment{}, &domain.PushSubscription{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func baseConfig() config.Config {
	return config.Config{
		APIBasePath: "/api",
		RateRPS:     100,
		RateBurst:   50,
		OTEL:        config.OTELConfig{ServiceName: "test-svc"},
	}
}

// newRouter wires the production route table over sqlite, an in-memory
// registry and a dispatcher without VAPID keys.
func newRouter(t *testing.T, cfg config.Config, ping func(context.Context) error) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	reg := prometheus.NewRegistry()
	db := newTestDB(t)
	subs := push.NewMemoryRegistry()
	disp := push.NewDispatcher(push.Config{})
	h := handlers.New(handlers.Deps{
		Comments:    services.NewCommentService(db, ratelimit.NewMemoryLimiter(time.Minute, 3, 100), spam.New(), time.Minute),
		Registry:    subs,
		Sender:      disp,
		Broadcaster: &push.Broadcaster{Registry: subs, Sender: disp, Concurrency: 2},
		Metrics:     observability.NewMetrics(reg),
	})

	r := gin.New()
	RegisterRoutes(r, Deps{
		Handlers:   h,
		Moderation: services.NewGate("mod-key", "", false),
		PushAccess: services.NewGate("", "", false),
		Metrics:    reg,
		Ping:       ping,
	}, cfg)
	return r
}

func serve(r http.Handler, method, path, body string, hdr map[string]string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRegisterRoutes_CORSAllowAll_Health_Metrics_Fallbacks(t *testing.T) {
	r := newRouter(t, baseConfig(), nil)

	// /health works
	w := serve(r, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	// CORS (AllowAllOrigins) → header "*"
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("AllowAllOrigins expected '*', got %q", got)
	}

	// /metrics is wired to the injected registry
	w = serve(r, http.MethodGet, "/metrics", "", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "http_requests_total") {
		t.Fatalf("GET /metrics bad: code=%d body=%q", w.Code, w.Body.String())
	}

	// NoRoute → 404 envelope
	w = serve(r, http.MethodGet, "/nope", "", nil)
	var env handlers.ErrorResponse
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	if w.Code != http.StatusNotFound || env.Code != handlers.ErrCodeNotFound || env.RequestID == "" {
		t.Fatalf("GET /nope: %d %+v", w.Code, env)
	}

	// NoMethod → 405 (POST /health)
	if w = serve(r, http.MethodPost, "/health", "", nil); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /health expected 405, got %d", w.Code)
	}
}

func TestRegisterRoutes_CORSWithOrigins_HeaderEcho(t *testing.T) {
	cfg := baseConfig()
	cfg.CORS = config.CORSConfig{AllowedOrigins: []string{"http://example.com"}}
	r := newRouter(t, cfg, nil)

	w := serve(r, http.MethodGet, "/health", "", map[string]string{"Origin": "http://example.com"})
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://example.com" {
		t.Fatalf("expected ACAO echo, got %q", got)
	}

	w = serve(r, http.MethodGet, "/health", "", map[string]string{"Origin": "http://evil.example"})
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unlisted origin echoed: %q", got)
	}
}

func TestRoutes_CommentFlowThroughStack(t *testing.T) {
	r := newRouter(t, baseConfig(), nil)

	body := `{"postId":"hello-world","author":"Jo","email":"jo@x.com","content":"Nice post!"}`
	w := serve(r, http.MethodPost, "/api/comments", body, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("submit: %d %s", w.Code, w.Body.String())
	}

	w = serve(r, http.MethodGet, "/api/comments?post=hello-world", "", nil)
	if w.Code != http.StatusOK || w.Header().Get("ETag") == "" {
		t.Fatalf("list: %d headers=%v", w.Code, w.Header())
	}
}

// submitFrom posts a distinct comment over the default httptest socket
// (192.0.2.1) claiming the given forwarded client address.
func submitFrom(r http.Handler, i int, forwarded string) int {
	body := fmt.Sprintf(`{"postId":"p1","author":"Jo","email":"jo@x.com","content":"comment %d"}`, i)
	return serve(r, http.MethodPost, "/api/comments", body, map[string]string{"X-Forwarded-For": forwarded}).Code
}

func TestRoutes_CommentLimitIgnoresUntrustedForwardedFor(t *testing.T) {
	r := newRouter(t, baseConfig(), nil)
	for i := 1; i <= 3; i++ {
		if code := submitFrom(r, i, fmt.Sprintf("10.0.0.%d", i)); code != http.StatusOK {
			t.Fatalf("submission %d: %d", i, code)
		}
	}
	if code := submitFrom(r, 4, "10.0.0.4"); code != http.StatusTooManyRequests {
		t.Fatalf("rotating X-Forwarded-For escaped the limit: %d", code)
	}
}

func TestRoutes_TrustedProxyForwardsClientIP(t *testing.T) {
	cfg := baseConfig()
	cfg.TrustedProxies = []string{"192.0.2.0/24"}
	r := newRouter(t, cfg, nil)
	for i := 1; i <= 4; i++ {
		if code := submitFrom(r, i, fmt.Sprintf("10.0.0.%d", i)); code != http.StatusOK {
			t.Fatalf("client %d behind trusted proxy: %d", i, code)
		}
	}
}

func TestRoutes_PrivilegedGroups(t *testing.T) {
	r := newRouter(t, baseConfig(), nil)

	w := serve(r, http.MethodGet, "/api/comments/moderate", "", nil)
	if w.Code != http.StatusUnauthorized || w.Header().Get("Cache-Control") != "no-store" {
		t.Fatalf("queue without key: %d cc=%q", w.Code, w.Header().Get("Cache-Control"))
	}
	w = serve(r, http.MethodGet, "/api/comments/moderate", "", map[string]string{"Authorization": "Bearer mod-key"})
	if w.Code != http.StatusOK {
		t.Fatalf("queue with key: %d %s", w.Code, w.Body.String())
	}

	// the push gate has no key configured: locked even for the moderation key
	w = serve(r, http.MethodPost, "/api/push/broadcast", `{"payload":{"title":"x"}}`, map[string]string{"Authorization": "Bearer mod-key"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("locked push gate: %d", w.Code)
	}

	// subscription management stays public
	w = serve(r, http.MethodGet, "/api/push/subscribe", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("push status: %d", w.Code)
	}
}

func TestRoutes_EdgeThrottle(t *testing.T) {
	cfg := baseConfig()
	cfg.RateRPS, cfg.RateBurst = 0, 2
	r := newRouter(t, cfg, nil)

	for i := 0; i < 2; i++ {
		if w := serve(r, http.MethodGet, "/health", "", nil); w.Code != http.StatusOK {
			t.Fatalf("request %d: %d", i+1, w.Code)
		}
	}
	w := serve(r, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusTooManyRequests || w.Header().Get("Retry-After") == "" {
		t.Fatalf("third request: %d retry-after=%q", w.Code, w.Header().Get("Retry-After"))
	}
}

func TestHealth_PingFailure(t *testing.T) {
	r := newRouter(t, baseConfig(), func(context.Context) error { return errors.New("db down") })
	w := serve(r, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusServiceUnavailable || !strings.Contains(w.Body.String(), "degraded") {
		t.Fatalf("health: %d %s", w.Code, w.Body.String())
	}
}

// Smoke test that a request traverses otel + throttle + security headers.
func TestPipeline_Smoke(t *testing.T) {
	cfg := baseConfig()
	cfg.Security = config.SecurityConfig{EnableHSTS: true, HSTSMaxAge: time.Hour}
	r := newRouter(t, cfg, nil)

	w := serve(r, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("pipeline GET /health = %d", w.Code)
	}
	if rid := w.Header().Get("X-Request-ID"); rid == "" {
		t.Fatalf("expected X-Request-ID header to be set")
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("security headers missing: %v", w.Header())
	}
	// plain http: no HSTS
	if w.Header().Get("Strict-Transport-Security") != "" {
		t.Fatalf("HSTS on plain http")
	}
}

func Test_limitBody_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	// tiny cap to trigger MaxBytesReader
	r.Use(limitBody(10))
	r.POST("/echo", func(c *gin.Context) {
		_, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.String(http.StatusRequestEntityTooLarge, "too big")
			return
		}
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/echo", bytes.NewBufferString("0123456789AB")) // 12 bytes
	r.ServeHTTP(w, req)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 from limitBody, got %d", w.Code)
	}
}

func Test_groupWithPrefix(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	// "/" and "" should mount at root
	groupWithPrefix(r, "/").GET("/one", func(c *gin.Context) { c.String(http.StatusOK, "one") })
	groupWithPrefix(r, "").GET("/two", func(c *gin.Context) { c.String(http.StatusOK, "two") })
	groupWithPrefix(r, "/api").GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	for path, want := range map[string]string{"/one": "one", "/two": "two", "/api/ping": "pong"} {
		rec := serve(r, http.MethodGet, path, "", nil)
		if rec.Code != http.StatusOK || rec.Body.String() != want {
			t.Fatalf("GET %s got %d %q", path, rec.Code, rec.Body.String())
		}
	}
}

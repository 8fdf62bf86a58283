// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements the edge throttle: a per-client token bucket that sits
// in front of every API route. It is coarse abuse control for the whole
// surface and is independent of the comment-submission window enforced by
// the comment service.
//
// Buckets live in a size-capped LRU whose entries expire after a period of
// inactivity, so a flood of distinct client addresses cannot grow memory
// without bound.
package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

const (
	defaultThrottleKeys = 10000
	defaultThrottleIdle = 10 * time.Minute
)

// KeyFunc selects the identity used to key a bucket.
type KeyFunc func(*gin.Context) string

// KeyByIP keys buckets by client address as resolved by Gin. Forwarded
// headers are only honoured from the engine's trusted proxies.
func KeyByIP() KeyFunc {
	return func(c *gin.Context) string {
		return "ip:" + c.ClientIP()
	}
}

// ThrottleOptions configures Throttle. Zero values select defaults.
type ThrottleOptions struct {
	RPS     float64       // tokens replenished per second
	Burst   int           // bucket size; <= 0 becomes 1
	MaxKeys int           // bucket cap before LRU eviction
	Idle    time.Duration // bucket lifetime without traffic
	Key     KeyFunc
}

// Throttler holds the per-key buckets. Safe for concurrent use.
type Throttler struct {
	rps   rate.Limit
	burst int
	key   KeyFunc

	mu      sync.Mutex
	buckets *expirable.LRU[string, *rate.Limiter]
}

// NewThrottler builds a Throttler from opt.
func NewThrottler(opt ThrottleOptions) *Throttler {
	if opt.Burst <= 0 {
		opt.Burst = 1
	}
	if opt.MaxKeys <= 0 {
		opt.MaxKeys = defaultThrottleKeys
	}
	if opt.Idle <= 0 {
		opt.Idle = defaultThrottleIdle
	}
	if opt.Key == nil {
		opt.Key = KeyByIP()
	}
	return &Throttler{
		rps:     rate.Limit(opt.RPS),
		burst:   opt.Burst,
		key:     opt.Key,
		buckets: expirable.NewLRU[string, *rate.Limiter](opt.MaxKeys, nil, opt.Idle),
	}
}

// bucket returns the limiter for key, creating it on first use. Re-adding
// on every hit refreshes the idle TTL.
func (t *Throttler) bucket(key string) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()
	lim, ok := t.buckets.Get(key)
	if !ok {
		lim = rate.NewLimiter(t.rps, t.burst)
	}
	t.buckets.Add(key, lim)
	return lim
}

// Len reports the number of live buckets.
func (t *Throttler) Len() int { return t.buckets.Len() }

// Handler rejects requests over budget with 429 and a Retry-After hint.
func (t *Throttler) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		r := t.bucket(t.key(c)).Reserve()
		if !r.OK() {
			abortTooMany(c, 1)
			return
		}
		if d := r.Delay(); d > 0 {
			r.Cancel()
			abortTooMany(c, int(d/time.Second)+1)
			return
		}
		c.Next()
	}
}

func abortTooMany(c *gin.Context, retryAfter int) {
	c.Header("Retry-After", strconv.Itoa(retryAfter))
	AbortJSON(c, http.StatusTooManyRequests, "too_many_requests", "rate limit exceeded")
}

// AbortJSON writes the API error envelope and stops the chain. Handlers use
// the richer variant in the handlers package; middleware only needs this.
func AbortJSON(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success":    false,
		"request_id": c.Writer.Header().Get(requestIDHeader),
		"code":       code,
		"message":    msg,
	})
}

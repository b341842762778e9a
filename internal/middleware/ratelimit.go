package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// KeyFunc picks the bucket a request is counted against.
type KeyFunc func(c *gin.Context) string

// ClientKey buckets by client address.
func ClientKey(c *gin.Context) string {
	return c.ClientIP()
}

// RouteClientKey buckets by route template and client address, so a burst on one
// redemption or callback route does not spend the budget of another.
func RouteClientKey(c *gin.Context) string {
	return c.Request.Method + " " + c.FullPath() + " " + c.ClientIP()
}

// RateLimitOption customises a RateLimiter.
type RateLimitOption func(*RateLimiter)

func WithKey(fn KeyFunc) RateLimitOption {
	return func(r *RateLimiter) { r.key = fn }
}

func WithBurst(burst int) RateLimitOption {
	return func(r *RateLimiter) {
		if burst > 0 {
			r.burst = burst
		}
	}
}

// WithName labels rejections in logs.
func WithName(name string) RateLimitOption {
	return func(r *RateLimiter) { r.name = name }
}

func WithLogger(logger *zap.Logger) RateLimitOption {
	return func(r *RateLimiter) { r.logger = logger }
}

// RateLimiter keeps one token bucket per key.
type RateLimiter struct {
	name   string
	limit  rate.Limit
	burst  int
	idle   time.Duration
	key    KeyFunc
	logger *zap.Logger

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows requestsPerMinute per key. A non-positive budget disables limiting.
func NewRateLimiter(requestsPerMinute int, opts ...RateLimitOption) *RateLimiter {
	if requestsPerMinute <= 0 {
		return nil
	}
	r := &RateLimiter{
		name:    "default",
		limit:   rate.Limit(float64(requestsPerMinute) / 60.0),
		burst:   max(requestsPerMinute/10, 1),
		idle:    5 * time.Minute,
		key:     ClientKey,
		buckets: make(map[string]*bucket),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handler rejects requests over budget with 429 and a Retry-After hint.
func (r *RateLimiter) Handler() gin.HandlerFunc {
	if r == nil {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return func(c *gin.Context) {
		key := r.key(c)
		limiter := r.bucketFor(key, time.Now())
		if !limiter.Allow() {
			wait := r.retryAfter(limiter)
			r.log().Warn("rate limited",
				zap.String("limiter", r.name),
				zap.String("path", c.FullPath()),
				zap.String("client_ip", c.ClientIP()),
				zap.Int("retry_after_s", wait),
			)
			c.Header("Retry-After", strconv.Itoa(wait))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":             "rate_limited",
				"error_description": "Too many requests. Please slow down.",
			})
			return
		}

		c.Next()
	}
}

// Len is the number of live buckets.
func (r *RateLimiter) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buckets)
}

func (r *RateLimiter) bucketFor(key string, now time.Time) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.buckets[key]; ok {
		b.lastSeen = now
		return b.limiter
	}

	r.evictIdleLocked(now)
	limiter := rate.NewLimiter(r.limit, r.burst)
	r.buckets[key] = &bucket{limiter: limiter, lastSeen: now}
	return limiter
}

func (r *RateLimiter) evictIdleLocked(now time.Time) {
	for key, b := range r.buckets {
		if now.Sub(b.lastSeen) > r.idle {
			delete(r.buckets, key)
		}
	}
}

// retryAfter is the whole seconds until the bucket holds one token again.
func (r *RateLimiter) retryAfter(limiter *rate.Limiter) int {
	missing := 1 - limiter.Tokens()
	if missing <= 0 {
		return 1
	}
	return max(int(math.Ceil(missing/float64(r.limit))), 1)
}

func (r *RateLimiter) log() *zap.Logger {
	if r.logger != nil {
		return r.logger
	}
	return zap.L()
}

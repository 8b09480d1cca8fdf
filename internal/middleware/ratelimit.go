// ratelimit.go provides Gin middleware that enforces a fixed-window per-IP rate
// limit on the public testimonial submission endpoint, returning 429 responses
// with the remaining wait time once the window's ceiling is reached.
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"

	"github.com/testimonial-hub/testimonials-backend/internal/config"
	"github.com/testimonial-hub/testimonials-backend/internal/telemetry"
)

// SubmissionCounter decides whether a client may submit within the current
// window. Implementations must be safe for concurrent use. The in-memory
// implementation is the single-instance default; the Redis implementation
// shares counters across instances.
type SubmissionCounter interface {
	// Allow records an attempt for key and reports whether it fits under the
	// ceiling, along with how long the client must wait if it does not.
	Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error)
	// Stop releases any background resources.
	Stop()
}

// windowEntry tracks one client's count within its current fixed window.
type windowEntry struct {
	count       int
	windowStart time.Time
}

// MemoryCounter is a fixed-window in-process SubmissionCounter. Counters reset
// when their window elapses; a cleanup goroutine drops stale entries so the map
// does not grow with every IP ever seen.
type MemoryCounter struct {
	window time.Duration
	max    int

	mu      sync.Mutex
	entries map[string]*windowEntry
	stopCh  chan struct{}
}

// NewMemoryCounter creates a memory counter enforcing max requests per window.
func NewMemoryCounter(window time.Duration, max int) *MemoryCounter {
	mc := &MemoryCounter{
		window:  window,
		max:     max,
		entries: make(map[string]*windowEntry),
		stopCh:  make(chan struct{}),
	}
	go mc.cleanup()
	return mc
}

func (mc *MemoryCounter) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	now := time.Now()

	mc.mu.Lock()
	defer mc.mu.Unlock()

	entry, exists := mc.entries[key]
	if !exists || now.Sub(entry.windowStart) >= mc.window {
		mc.entries[key] = &windowEntry{count: 1, windowStart: now}
		return true, 0, nil
	}

	if entry.count < mc.max {
		entry.count++
		return true, 0, nil
	}

	retryAfter := mc.window - now.Sub(entry.windowStart)
	return false, retryAfter, nil
}

// cleanup periodically removes entries whose window has elapsed.
func (mc *MemoryCounter) cleanup() {
	ticker := time.NewTicker(mc.window)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := time.Now()
			mc.mu.Lock()
			for key, entry := range mc.entries {
				if now.Sub(entry.windowStart) >= mc.window {
					delete(mc.entries, key)
				}
			}
			mc.mu.Unlock()
		case <-mc.stopCh:
			return
		}
	}
}

// Stop stops the cleanup goroutine.
func (mc *MemoryCounter) Stop() {
	close(mc.stopCh)
}

// RedisCounter is a SubmissionCounter backed by redis_rate, for deployments
// running more than one instance behind a load balancer. Counters live in
// Redis, so every instance enforces the same ceiling.
type RedisCounter struct {
	client  *redis.Client
	limiter *redis_rate.Limiter
	limit   redis_rate.Limit
}

// NewRedisCounter creates a Redis-backed counter enforcing max requests per window.
func NewRedisCounter(addr string, window time.Duration, max int) *RedisCounter {
	client := redis.NewClient(&redis.Options{Addr: addr})
	return &RedisCounter{
		client:  client,
		limiter: redis_rate.NewLimiter(client),
		limit: redis_rate.Limit{
			Rate:   max,
			Burst:  max,
			Period: window,
		},
	}
}

func (rc *RedisCounter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	res, err := rc.limiter.Allow(ctx, "submit:"+key, rc.limit)
	if err != nil {
		return false, 0, err
	}
	if res.Allowed > 0 {
		return true, 0, nil
	}
	return false, res.RetryAfter, nil
}

// Stop closes the Redis connection.
func (rc *RedisCounter) Stop() {
	_ = rc.client.Close()
}

// NewSubmissionCounter builds the counter selected by configuration.
func NewSubmissionCounter(cfg config.RateLimitingConfig) SubmissionCounter {
	if cfg.Backend == "redis" {
		return NewRedisCounter(cfg.RedisAddr, cfg.Window, cfg.MaxRequests)
	}
	return NewMemoryCounter(cfg.Window, cfg.MaxRequests)
}

// SubmissionRateLimitMiddleware limits public testimonial submissions per
// client IP. When rate limiting is disabled in configuration, the middleware is
// a pass-through. Counter errors (e.g. Redis unreachable) fail open with a
// logged warning: losing spam protection briefly beats rejecting legitimate
// submissions.
func SubmissionRateLimitMiddleware(cfg config.RateLimitingConfig, counter SubmissionCounter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cfg.Enabled {
			c.Next()
			return
		}

		ip := c.ClientIP()
		if ip == "" {
			ip = c.Request.RemoteAddr
		}

		allowed, retryAfter, err := counter.Allow(c.Request.Context(), ip)
		if err != nil {
			slog.Warn("rate limit check failed, allowing request", "ip", ip, "error", err)
			c.Next()
			return
		}

		if !allowed {
			minutes := int(math.Ceil(retryAfter.Minutes()))
			if minutes < 1 {
				minutes = 1
			}
			telemetry.TestimonialSubmissionsTotal.WithLabelValues("rate_limited").Inc()
			c.Header("Retry-After", fmt.Sprintf("%d", int(retryAfter.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": fmt.Sprintf("Too many submissions. Please try again in %d minutes.", minutes),
			})
			return
		}

		c.Next()
	}
}

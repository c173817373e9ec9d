package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// KeyFunc picks the bucket a request is charged to.
type KeyFunc func(c *gin.Context) string

type RateLimiter struct {
	limiters map[string]*keyLimit
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
	idle     time.Duration
	keyFunc  KeyFunc
	logger   zerolog.Logger
	done     chan struct{}
	once     sync.Once
}

type keyLimit struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows perMinute requests per key with the given burst.
// Keys idle for longer than idle are forgotten by the sweeper.
func NewRateLimiter(perMinute, burst int, idle time.Duration, keyFunc KeyFunc, logger zerolog.Logger) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	if keyFunc == nil {
		keyFunc = ClientIP
	}
	rl := &RateLimiter{
		limiters: make(map[string]*keyLimit),
		rate:     rate.Limit(float64(perMinute) / 60),
		burst:    burst,
		idle:     idle,
		keyFunc:  keyFunc,
		logger:   logger.With().Str("component", "ratelimit").Logger(),
		done:     make(chan struct{}),
	}

	if idle > 0 {
		go rl.cleanup()
	}
	return rl
}

func ClientIP(c *gin.Context) string {
	return c.ClientIP()
}

func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(rl.idle)
	defer ticker.Stop()
	for {
		select {
		case <-rl.done:
			return
		case now := <-ticker.C:
			rl.sweep(now)
		}
	}
}

func (rl *RateLimiter) sweep(now time.Time) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	removed := 0
	for key, kl := range rl.limiters {
		if now.Sub(kl.lastSeen) > rl.idle {
			delete(rl.limiters, key)
			removed++
		}
	}
	return removed
}

func (rl *RateLimiter) Stop() {
	rl.once.Do(func() { close(rl.done) })
}

func (rl *RateLimiter) reserve(key string, now time.Time) *rate.Reservation {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	kl, ok := rl.limiters[key]
	if !ok {
		kl = &keyLimit{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.limiters[key] = kl
	}
	kl.lastSeen = now
	return kl.limiter.ReserveN(now, 1)
}

// Allow reports whether key may proceed now and, if not, how long until it may.
func (rl *RateLimiter) Allow(key string) (bool, time.Duration) {
	now := time.Now()
	r := rl.reserve(key, now)
	if !r.OK() {
		return false, 0
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay
	}
	return true, 0
}

func (rl *RateLimiter) Limit() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := rl.keyFunc(c)
		allowed, wait := rl.Allow(key)
		if !allowed {
			retryAfter := int(math.Ceil(wait.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			rl.logger.Warn().Str("key", key).Str("path", c.FullPath()).Msg("Rate limit exceeded")
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "too many requests",
				"retry_after": retryAfter,
			})
			return
		}
		c.Next()
	}
}

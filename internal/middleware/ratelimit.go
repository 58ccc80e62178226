package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/response"
)

// RateLimiter is a per-IP fixed-window limiter backed by Redis, so every
// server instance shares the same counters.
type RateLimiter struct {
	rdb     *redis.Client
	rate    int           // Requests per window
	window  time.Duration // Window length
	keyFunc func(ip string) string
	log     zerolog.Logger
}

// NewRateLimiter creates a RateLimiter (e.g., 20 requests per minute).
func NewRateLimiter(rdb *redis.Client, rate int, window time.Duration, keyFunc func(ip string) string, log zerolog.Logger) *RateLimiter {
	return &RateLimiter{
		rdb:     rdb,
		rate:    rate,
		window:  window,
		keyFunc: keyFunc,
		log:     log.With().Str("component", "rate_limiter").Logger(),
	}
}

// Allow counts one request from ip and reports whether it is within the limit.
func (rl *RateLimiter) Allow(c *gin.Context, ip string) (bool, error) {
	key := rl.keyFunc(ip)
	pipe := rl.rdb.TxPipeline()
	incr := pipe.Incr(c, key)
	pipe.ExpireNX(c, key, rl.window)
	if _, err := pipe.Exec(c); err != nil {
		return false, err
	}
	return incr.Val() <= int64(rl.rate), nil
}

// Middleware returns a Gin middleware that rate-limits requests by IP.
// Requests pass when Redis is unreachable.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, err := rl.Allow(c, c.ClientIP())
		if err != nil {
			rl.log.Warn().Err(err).Msg("Rate limit check failed, allowing request")
			c.Next()
			return
		}
		if !ok {
			c.Header("Retry-After", strconv.Itoa(int(rl.window.Seconds())))
			response.AbortFail(c, http.StatusTooManyRequests, response.ErrRateLimitExceeded)
			return
		}
		c.Next()
	}
}

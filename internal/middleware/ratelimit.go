package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/cinema-screening-room/internal/config"
	xlog "github.com/iliyamo/cinema-screening-room/internal/log"
)

// takeToken keeps one bucket per key as the string "level:stamp_ms".  The
// level refills continuously at ARGV[3] tokens per millisecond up to the
// burst in ARGV[2].  Returns {taken, whole tokens left, wait_ms}.
var takeToken = redis.NewScript(`
local now = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local rate = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local level = burst
local saved = redis.call('GET', KEYS[1])
if saved then
  local sep = string.find(saved, ':', 1, true)
  local was = tonumber(string.sub(saved, 1, sep - 1))
  local at = tonumber(string.sub(saved, sep + 1))
  level = math.min(burst, was + math.max(0, now - at) * rate)
end

local wait = 0
if level >= 1 then
  level = level - 1
else
  wait = math.ceil((1 - level) / rate)
end

redis.call('SET', KEYS[1], string.format('%.6f:%.0f', level, now), 'PX', ttl)
local taken = 0
if wait == 0 then taken = 1 end
return { taken, math.floor(level), wait }
`)

// NewTokenBucket limits HTTP requests per client IP and route with a
// Redis-backed token bucket.  Redis errors fail open.  Paths listed in
// cfg.Exempt are never limited.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	logger := xlog.WithComponent("http")
	exempt := make(map[string]bool, len(cfg.Exempt))
	for _, p := range cfg.Exempt {
		exempt[p] = true
	}
	rate := strconv.FormatFloat(cfg.RefillPerMilli(), 'g', -1, 64)
	ttl := max(cfg.TTL.Milliseconds(), 1)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if exempt[c.Request().URL.Path] {
				return next(c)
			}
			key := bucketKey(cfg.Prefix, c)
			res, err := takeToken.Run(c.Request().Context(), rdb, []string{key},
				time.Now().UnixMilli(), cfg.Capacity, rate, ttl).Int64Slice()
			if err != nil || len(res) != 3 {
				logger.Warn().Err(err).Str("key", key).Msg("rate limit check failed, allowing request")
				return next(c)
			}
			taken, left, waitMs := res[0] == 1, res[1], res[2]

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(left, 10))
			if cfg.Debug {
				h.Set("X-RateLimit-Key", key)
			}
			if taken {
				return next(c)
			}

			secs := (waitMs + 999) / 1000
			h.Set("Retry-After", strconv.FormatInt(secs, 10))
			if cfg.Debug {
				logger.Debug().Str("key", key).Int64("wait_ms", waitMs).Msg("rate limited")
			}
			return c.JSON(http.StatusTooManyRequests, echo.Map{
				"error":       "too_many_requests",
				"message":     "rate limit exceeded",
				"retry_after": secs,
			})
		}
	}
}

// bucketKey is prefix:ip:METHOD route.
func bucketKey(prefix string, c echo.Context) string {
	ip := c.RealIP()
	if ip == "" {
		ip = "unknown"
	}
	return strings.Join([]string{prefix, ip, c.Request().Method + " " + c.Path()}, ":")
}

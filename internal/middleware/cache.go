package middleware

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/iliyamo/cinema-screening-room/internal/config"
	xlog "github.com/iliyamo/cinema-screening-room/internal/log"
)

// cachedPage is what the billboard cache stores per URL.
type cachedPage struct {
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// bodyRecorder forwards the response while keeping a copy of the first limit
// bytes.  overflow is set once the body outgrows limit.
type bodyRecorder struct {
	http.ResponseWriter
	status   int
	body     bytes.Buffer
	limit    int
	overflow bool
}

func (w *bodyRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
	if !w.overflow {
		if w.limit > 0 && w.body.Len()+len(b) > w.limit {
			w.overflow = true
			w.body.Reset()
		} else {
			w.body.Write(b)
		}
	}
	return w.ResponseWriter.Write(b)
}

// ResponseCache keeps successful GET responses of the public billboard in
// Redis.  Invalidate drops every entry when the schedule changes.
type ResponseCache struct {
	cfg    config.CacheConfig
	rdb    *redis.Client
	logger zerolog.Logger
}

// NewResponseCache returns a cache.  A nil client or a disabled config
// yields a cache whose middleware is a pass-through.
func NewResponseCache(cfg config.CacheConfig, rdb *redis.Client) *ResponseCache {
	return &ResponseCache{cfg: cfg, rdb: rdb, logger: xlog.WithComponent("http")}
}

func (rc *ResponseCache) enabled() bool {
	return rc != nil && rc.cfg.Enabled && rc.rdb != nil && rc.cfg.TTL > 0
}

// pageKey hashes the request URL under the cache prefix.
func (rc *ResponseCache) pageKey(r *http.Request) string {
	sum := sha1.Sum([]byte(r.URL.RequestURI()))
	return rc.cfg.Prefix + ":" + hex.EncodeToString(sum[:])
}

// Middleware serves GET hits from Redis and stores 200 responses on a miss.
// X-Cache reports HIT or MISS.
func (rc *ResponseCache) Middleware() echo.MiddlewareFunc {
	if !rc.enabled() {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Method != http.MethodGet {
				return next(c)
			}
			key := rc.pageKey(req)
			if page, ok := rc.lookup(req.Context(), key); ok {
				c.Response().Header().Set("X-Cache", "HIT")
				return c.Blob(http.StatusOK, page.ContentType, page.Body)
			}

			rec := &bodyRecorder{ResponseWriter: c.Response().Writer, status: http.StatusOK, limit: rc.cfg.MaxBodyBytes}
			c.Response().Writer = rec
			c.Response().Header().Set("X-Cache", "MISS")
			if err := next(c); err != nil {
				return err
			}
			if rec.status == http.StatusOK && !rec.overflow {
				rc.store(context.WithoutCancel(req.Context()), key, cachedPage{
					ContentType: c.Response().Header().Get(echo.HeaderContentType),
					Body:        rec.body.Bytes(),
				})
			}
			return nil
		}
	}
}

func (rc *ResponseCache) lookup(ctx context.Context, key string) (cachedPage, bool) {
	var page cachedPage
	raw, err := rc.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			rc.logger.Warn().Err(err).Msg("cache read failed")
		}
		return page, false
	}
	if err := json.Unmarshal(raw, &page); err != nil {
		return page, false
	}
	return page, true
}

func (rc *ResponseCache) store(ctx context.Context, key string, page cachedPage) {
	raw, err := json.Marshal(page)
	if err != nil {
		return
	}
	if err := rc.rdb.Set(ctx, key, raw, rc.cfg.TTL).Err(); err != nil {
		rc.logger.Warn().Err(err).Msg("cache write failed")
	}
}

// Invalidate deletes every entry under the cache prefix.
func (rc *ResponseCache) Invalidate(ctx context.Context) error {
	if !rc.enabled() {
		return nil
	}
	var keys []string
	iter := rc.rdb.Scan(ctx, 0, rc.cfg.Prefix+":*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil || len(keys) == 0 {
		return err
	}
	return rc.rdb.Del(ctx, keys...).Err()
}

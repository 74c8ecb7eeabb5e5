package middleware

import (
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	xlog "github.com/iliyamo/cinema-screening-room/internal/log"
)

// RequestLogger tags every request with an X-Request-ID (reusing the
// caller's when present) and writes one access line per request.
func RequestLogger() echo.MiddlewareFunc {
	logger := xlog.WithComponent("http")
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			rid := req.Header.Get(echo.HeaderXRequestID)
			if rid == "" {
				rid = uuid.NewString()
				req.Header.Set(echo.HeaderXRequestID, rid)
			}
			c.Response().Header().Set(echo.HeaderXRequestID, rid)

			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			status := c.Response().Status
			ev := logger.Info()
			if status >= 500 {
				ev = logger.Error().Err(err)
			}
			ev.Str(xlog.FieldRequestID, rid).
				Str("method", req.Method).
				Str(xlog.FieldPath, c.Path()).
				Int("status", status).
				Dur("duration", time.Since(start)).
				Str("caller", userID(c)).
				Msg("request")
			return nil
		}
	}
}

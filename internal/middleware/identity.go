package middleware

// identity.go holds the caller identity helpers shared by the rate limiter
// and the request logger.

import (
	"github.com/labstack/echo/v4"
)

// userID returns the subject stored by JWTAuth, or "guest" for anonymous
// viewers.
func userID(c echo.Context) string {
	if s, ok := c.Get("user_id").(string); ok && s != "" {
		return s
	}
	return "guest"
}

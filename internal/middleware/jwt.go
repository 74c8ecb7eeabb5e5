package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
	"net/http" // HTTP status codes and request access
	"strings"  // string utilities for prefix checking and trimming

	"github.com/labstack/echo/v4" // Echo framework used for defining middleware and handlers

	"github.com/iliyamo/cinema-screening-room/internal/utils" // token parsing
)

// TokenCookie is the cookie the admin panel stores its access token in.
const TokenCookie = "admin_token"

// TokenFromRequest extracts a raw access token from, in order, the
// Authorization bearer header, the admin_token cookie and the token query
// parameter.  Browsers cannot set headers on websocket upgrades, hence the
// last two.
func TokenFromRequest(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	if ck, err := r.Cookie(TokenCookie); err == nil && ck.Value != "" {
		return ck.Value
	}
	return r.URL.Query().Get("token")
}

// JWTAuth returns an Echo middleware that validates an access token and
// injects the token's subject and role claims into the request context.
// Handlers and the role middleware read them via c.Get("user_id") and
// c.Get("role").
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := TokenFromRequest(c.Request())
			if raw == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			claims, err := utils.ParseAccessToken(secret, raw)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}
			c.Set("user_id", claims.Subject)
			c.Set("role", claims.Role)
			return next(c)
		}
	}
}

// AdminAuthorizer reports whether a request carries a valid ADMIN token.
// It backs the websocket upgrade, which runs outside Echo's middleware
// chain.
func AdminAuthorizer(secret string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		claims, err := utils.ParseAccessToken(secret, TokenFromRequest(r))
		return err == nil && claims.Role == utils.RoleAdmin
	}
}

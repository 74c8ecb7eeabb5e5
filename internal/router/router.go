package router // package router defines how HTTP routes are registered for the API

import (
	"net/http" // http.Handler for the websocket server

	"github.com/labstack/echo/v4"                             // Echo web framework
	"github.com/prometheus/client_golang/prometheus/promhttp" // metrics exposition

	"github.com/iliyamo/cinema-screening-room/internal/handler"    // HTTP handlers
	"github.com/iliyamo/cinema-screening-room/internal/middleware" // JWT and role middlewares
	"github.com/iliyamo/cinema-screening-room/internal/utils"      // role names
)

// RegisterRoutes registers the unauthenticated infrastructure routes:
// liveness, readiness, Prometheus metrics and the websocket endpoint.  The
// websocket server authorizes admin connections itself because the upgrade
// bypasses Echo's group middleware.
func RegisterRoutes(e *echo.Echo, health *handler.HealthHandler, ws http.Handler) {
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", health.Ready)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/ws", echo.WrapHandler(ws))
}

// RegisterAuth registers the admin login routes.  Login gets its own, much
// smaller rate-limit bucket.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, loginLimit echo.MiddlewareFunc) {
	g := e.Group("/v1/admin")
	g.POST("/login", a.Login, loginLimit)
	g.POST("/logout", a.Logout)
}

// RegisterAdmin registers the admin panel API.  Every route requires a
// valid JWT with the ADMIN role.
func RegisterAdmin(e *echo.Echo, h *handler.AdminSessionHandler, jwtSecret string) {
	g := e.Group(
		"/v1/admin",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(utils.RoleAdmin),
	)
	g.GET("/movies", h.ListMovies)
	g.GET("/sessions", h.ListSessions)
	g.POST("/sessions", h.CreateSession)
	g.DELETE("/sessions/:id", h.DeleteSession)
}

// RegisterPublic registers the guest-facing routes.  Only the billboard is
// cached; entering the vestibule has side effects.
func RegisterPublic(e *echo.Echo, p *handler.PublicSessionHandler, cache echo.MiddlewareFunc) {
	e.GET("/v1/sessions", p.Billboard, cache)
	e.POST("/v1/sessions/:id/vestibule", p.EnterVestibule)
}

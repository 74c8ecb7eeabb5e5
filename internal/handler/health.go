package handler // declare the package name; contains HTTP handlers

import (
	"context"      // bounded ping
	"database/sql" // database handle for readiness
	"net/http"     // net/http provides status codes and response helpers
	"time"         // ping timeout

	"github.com/labstack/echo/v4" // echo is the web framework used for this project
)

// Health is a liveness endpoint used by load balancers and monitoring
// systems.  It returns a plain text "ok" with 200.
func Health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

// HealthHandler reports readiness: the session store must answer a ping.
type HealthHandler struct {
	DB     *sql.DB
	Engine Engine
}

// Ready pings the database and reports the number of resident sessions.
func (h *HealthHandler) Ready(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()
	if err := h.DB.PingContext(ctx); err != nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "unavailable", "error": "database unreachable"})
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "ready", "resident_sessions": len(h.Engine.Views())})
}

package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	xlog "github.com/iliyamo/cinema-screening-room/internal/log"
	"github.com/iliyamo/cinema-screening-room/internal/model"
	"github.com/iliyamo/cinema-screening-room/internal/screening"
)

// PublicSessionHandler serves the billboard and the vestibule entry point.
// Neither requires authentication.
type PublicSessionHandler struct {
	Store  SessionStore
	Engine Engine
	Now    func() time.Time
	logger zerolog.Logger
}

func NewPublicSessionHandler(store SessionStore, engine Engine) *PublicSessionHandler {
	return &PublicSessionHandler{Store: store, Engine: engine, Now: time.Now, logger: xlog.WithComponent("http")}
}

type billboardItem struct {
	ID            string       `json:"id"`
	MovieTitle    string       `json:"movie_title"`
	PosterFile    string       `json:"poster_file,omitempty"`
	ScheduledTime time.Time    `json:"scheduled_time"`
	DisplayStatus model.Status `json:"display_status"`
	OpensAt       time.Time    `json:"opens_at"`
}

type vestibuleResp struct {
	SessionID   string       `json:"session_id"`
	Status      model.Status `json:"status"`
	TimeToStart int          `json:"time_to_start"`
	MovieTitle  string       `json:"movie_title"`
	PosterFile  string       `json:"poster_file,omitempty"`
}

// Billboard lists sessions that are not finished, soonest first.  A resident
// session shows its in-memory status; otherwise the status follows the
// clock: VESTIBULE once the pre-show window is open, SCHEDULED before.
func (h *PublicSessionHandler) Billboard(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	recs, err := h.Store.ListNotFinished(ctx)
	if err != nil {
		h.logger.Error().Err(err).Msg("list billboard")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not list sessions"})
	}

	window := h.Engine.Config().VestibuleOpen
	now := h.Now()
	items := make([]billboardItem, 0, len(recs))
	for _, r := range recs {
		item := billboardItem{
			ID: r.ID, MovieTitle: r.MovieTitle, PosterFile: r.PosterFile,
			ScheduledTime: r.ScheduledAt, OpensAt: r.OpensAt(window),
		}
		switch v, ok := h.Engine.View(r.ID); {
		case ok:
			item.DisplayStatus = v.State.Status
		case !now.Before(item.OpensAt):
			item.DisplayStatus = model.StatusVestibule
		default:
			item.DisplayStatus = model.StatusScheduled
		}
		items = append(items, item)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// EnterVestibule hydrates the session when its pre-show window is open.
// Unknown or finished sessions are 404; a window not open yet is 409.
func (h *PublicSessionHandler) EnterVestibule(c echo.Context) error {
	id := c.Param("id")
	v, err := h.Engine.OpenVestibule(c.Request().Context(), id)
	switch {
	case errors.Is(err, screening.ErrSessionNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "session not found"})
	case errors.Is(err, screening.ErrVestibuleClosed):
		return c.JSON(http.StatusConflict, echo.Map{"error": "vestibule not open yet"})
	case err != nil:
		h.logger.Error().Err(err).Str(xlog.FieldSessionID, id).Msg("open vestibule")
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "session store unavailable"})
	}
	return c.JSON(http.StatusOK, vestibuleResp{
		SessionID: v.ID, Status: v.State.Status, TimeToStart: v.SecondsToStart,
		MovieTitle: v.MovieTitle, PosterFile: v.PosterFile,
	})
}

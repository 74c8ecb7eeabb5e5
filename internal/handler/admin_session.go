package handler

import (
	"context"
	"errors"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	xlog "github.com/iliyamo/cinema-screening-room/internal/log"
	"github.com/iliyamo/cinema-screening-room/internal/media"
	"github.com/iliyamo/cinema-screening-room/internal/model"
	"github.com/iliyamo/cinema-screening-room/internal/repository"
	"github.com/iliyamo/cinema-screening-room/internal/screening"
)

// scheduledLayouts are accepted for scheduled_time; the last one is what an
// HTML datetime-local input submits and is read in the server's zone.
var scheduledLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02T15:04"}

// PlaylistClips names the fixed clips around every feature.
type PlaylistClips struct {
	Intro        string
	Outro        string
	StaticPrefix string
}

// AdminSessionHandler serves the admin panel: movie catalogue, scheduling,
// the session table and deletion.
type AdminSessionHandler struct {
	Store   SessionStore
	Engine  Engine
	Catalog media.Catalog
	Prober  Prober
	Clips   PlaylistClips
	Cache   Invalidator
	logger  zerolog.Logger
}

func NewAdminSessionHandler(store SessionStore, engine Engine, catalog media.Catalog, prober Prober, clips PlaylistClips, cache Invalidator) *AdminSessionHandler {
	if cache == nil {
		cache = nopInvalidator{}
	}
	return &AdminSessionHandler{
		Store: store, Engine: engine, Catalog: catalog, Prober: prober, Clips: clips, Cache: cache,
		logger: xlog.WithComponent("http"),
	}
}

type scheduleReq struct {
	MovieTitle    string `json:"movie_title" form:"movie_title"`
	ScheduledTime string `json:"scheduled_time" form:"scheduled_time"`
}

type sessionResp struct {
	ID             string         `json:"id"`
	MovieTitle     string         `json:"movie_title"`
	MovieFile      string         `json:"movie_file"`
	PosterFile     string         `json:"poster_file,omitempty"`
	Playlist       model.Playlist `json:"playlist"`
	ScheduledTime  time.Time      `json:"scheduled_time"`
	Status         model.Status   `json:"status"`
	CurrentStatus  model.Status   `json:"current_status"`
	Resident       bool           `json:"resident"`
	VestibuleCount int            `json:"user_count_vestibule"`
	WatchCount     int            `json:"user_count_watch_room"`
}

func toSessionResp(r model.SessionRecord) sessionResp {
	return sessionResp{
		ID: r.ID, MovieTitle: r.MovieTitle, MovieFile: r.MovieFile, PosterFile: r.PosterFile,
		Playlist: r.Playlist, ScheduledTime: r.ScheduledAt, Status: r.Status, CurrentStatus: r.Status,
	}
}

// ListMovies returns the playable files in the media directory.
func (h *AdminSessionHandler) ListMovies(c echo.Context) error {
	movies, err := h.Catalog.Movies()
	if err != nil {
		h.logger.Error().Err(err).Msg("list movies")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not read media directory"})
	}
	return c.JSON(http.StatusOK, echo.Map{"items": movies})
}

// CreateSession schedules a screening of a catalogue movie.
func (h *AdminSessionHandler) CreateSession(c echo.Context) error {
	var req scheduleReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.MovieTitle = strings.TrimSpace(req.MovieTitle)
	if req.MovieTitle == "" || strings.TrimSpace(req.ScheduledTime) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "movie_title and scheduled_time required"})
	}
	at, ok := parseScheduled(req.ScheduledTime)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "scheduled_time must be RFC3339 or YYYY-MM-DDTHH:MM"})
	}

	movie, err := h.Catalog.Lookup(req.MovieTitle)
	if err != nil {
		if errors.Is(err, media.ErrMovieNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "movie not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not read media directory"})
	}

	ctx := c.Request().Context()
	secs := h.Prober.DurationOrDefault(ctx, h.Catalog.MoviePath(movie))
	rec := &model.SessionRecord{
		ID:          newSessionID(),
		MovieTitle:  movie.Title,
		MovieFile:   movie.File,
		PosterFile:  h.Catalog.Poster(movie.Title),
		Playlist:    model.BuildPlaylist(h.Clips.Intro, path.Join(h.Clips.StaticPrefix, movie.File), h.Clips.Outro, secs),
		ScheduledAt: at.UTC(),
		Status:      model.StatusScheduled,
	}

	ictx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := h.Store.Insert(ictx, rec); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "session id collision, retry"})
		}
		h.logger.Error().Err(err).Str(xlog.FieldSessionID, rec.ID).Msg("insert session")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not schedule session"})
	}
	h.invalidate(ctx)
	h.logger.Info().Str(xlog.FieldSessionID, rec.ID).Str("movie", rec.MovieTitle).Time("scheduled_at", rec.ScheduledAt).Int("feature_seconds", secs).Msg("session scheduled")
	return c.JSON(http.StatusCreated, toSessionResp(*rec))
}

// ListSessions returns every stored session overlaid with the in-memory
// status and room counts of resident sessions.
func (h *AdminSessionHandler) ListSessions(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	recs, err := h.Store.ListAll(ctx)
	if err != nil {
		h.logger.Error().Err(err).Msg("list sessions")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not list sessions"})
	}
	views := h.Engine.Views()
	items := make([]sessionResp, 0, len(recs))
	for _, r := range recs {
		item := toSessionResp(r)
		if v, ok := views[r.ID]; ok {
			item.Resident = true
			item.CurrentStatus = v.State.Status
			item.VestibuleCount = v.VestibuleCount
			item.WatchCount = v.WatchCount
		}
		items = append(items, item)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// DeleteSession stops and removes a session.
func (h *AdminSessionHandler) DeleteSession(c echo.Context) error {
	id := c.Param("id")
	if err := h.Engine.DeleteSession(c.Request().Context(), id); err != nil {
		if errors.Is(err, screening.ErrSessionNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "session not found"})
		}
		h.logger.Error().Err(err).Str(xlog.FieldSessionID, id).Msg("delete session")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not delete session"})
	}
	h.invalidate(c.Request().Context())
	return c.NoContent(http.StatusNoContent)
}

func (h *AdminSessionHandler) invalidate(ctx context.Context) {
	if err := h.Cache.Invalidate(ctx); err != nil {
		h.logger.Warn().Err(err).Msg("billboard cache invalidation failed")
	}
}

func parseScheduled(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range scheduledLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// newSessionID returns 8 lowercase hex characters.
func newSessionID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

package handler

import (
	"context"

	"github.com/iliyamo/cinema-screening-room/internal/model"
	"github.com/iliyamo/cinema-screening-room/internal/screening"
)

// SessionStore is the part of the session repository the HTTP layer uses.
type SessionStore interface {
	Insert(ctx context.Context, s *model.SessionRecord) error
	ListAll(ctx context.Context) ([]model.SessionRecord, error)
	ListNotFinished(ctx context.Context) ([]model.SessionRecord, error)
}

// Engine is the part of the screening engine the HTTP layer uses.
type Engine interface {
	OpenVestibule(ctx context.Context, id string) (screening.SessionView, error)
	DeleteSession(ctx context.Context, id string) error
	View(id string) (screening.SessionView, bool)
	Views() map[string]screening.SessionView
	Config() screening.Config
}

// Prober measures feature length in seconds.
type Prober interface {
	DurationOrDefault(ctx context.Context, path string) int
}

// Invalidator drops cached billboard responses.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

type nopInvalidator struct{}

func (nopInvalidator) Invalidate(context.Context) error { return nil }

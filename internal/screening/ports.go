package screening

import (
	"context"
	"time"

	"github.com/iliyamo/cinema-screening-room/internal/model"
)

// Store is the durable record store the engine hydrates from and flushes
// coarse status transitions to.  *repository.SessionRepo satisfies it.
type Store interface {
	GetNotFinished(ctx context.Context, id string) (*model.SessionRecord, error)
	UpdateStatus(ctx context.Context, id string, status model.Status) error
	Delete(ctx context.Context, id string) error
}

// Transport delivers events to connections grouped in rooms.  The engine
// calls every method while holding the registry lock, so implementations
// must queue and return without blocking on the network.
type Transport interface {
	Broadcast(room, event string, payload any)
	SendTo(connID, event string, payload any)
	Subscribe(connID, room string)
	Unsubscribe(connID, room string)
	Disconnect(connID string)
}

// StatusChange describes one coarse lifecycle transition.
type StatusChange struct {
	SessionID  string       `json:"session_id"`
	MovieTitle string       `json:"movie_title"`
	From       model.Status `json:"from"`
	To         model.Status `json:"to"`
	At         time.Time    `json:"at"`
}

// StatusPublisher fans status changes out to other processes.  Publishing is
// best effort.
type StatusPublisher interface {
	PublishStatusChanged(ctx context.Context, change StatusChange) error
}

type nopPublisher struct{}

func (nopPublisher) PublishStatusChanged(context.Context, StatusChange) error { return nil }

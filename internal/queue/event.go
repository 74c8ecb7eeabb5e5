// Package queue defines message payloads exchanged over the message broker.
package queue

// StatusChangedQueue is the durable queue coarse session transitions are
// published to.
const StatusChangedQueue = "screening.status_changed"

// StatusChangedEvent is published whenever a screening session moves to a
// new coarse status.  It carries enough context for downstream consumers to
// audit or notify without querying the primary database.
type StatusChangedEvent struct {
	SessionID  string `json:"session_id"`
	MovieTitle string `json:"movie_title"`
	From       string `json:"from"`
	To         string `json:"to"`
	ChangedAt  string `json:"changed_at"` // RFC 3339, UTC
}

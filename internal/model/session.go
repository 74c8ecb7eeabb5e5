package model

import "time"

// SessionRecord is the durable row for a screening session.  It is the
// only representation a SCHEDULED session has; once the pre-show room
// opens the engine hydrates an in-memory aggregate from it and writes
// back only the coarse Status.
//
// Fields:
//  ID          – short unique identifier (8 hex characters).
//  MovieTitle  – title shown on the billboard.
//  MovieFile   – media file name inside the media directory.
//  PosterFile  – poster image name (may be empty).
//  Playlist    – intro, feature and outro clips; immutable.
//  ScheduledAt – wall-clock start of the show.
//  Status      – last flushed lifecycle status.
//  CreatedAt   – creation timestamp.
type SessionRecord struct {
	ID          string    // screening_sessions.id
	MovieTitle  string    // screening_sessions.movie_title
	MovieFile   string    // screening_sessions.movie_file
	PosterFile  string    // screening_sessions.poster_file
	Playlist    Playlist  // screening_sessions.playlist_json
	ScheduledAt time.Time // screening_sessions.scheduled_at_ms
	Status      Status    // screening_sessions.status
	CreatedAt   time.Time // screening_sessions.created_at_ms
}

// OpensAt returns the instant the pre-show room opens for this record.
func (r SessionRecord) OpensAt(window time.Duration) time.Time {
	return r.ScheduledAt.Add(-window)
}

// Package repository contains data access logic for screening sessions.
// SessionRepo is the durable record store the screening engine hydrates
// from and flushes coarse status transitions to.
package repository

import (
	"context"      // context for controlling query lifetime
	"database/sql" // sql provides DB abstraction
	"errors"       // errors for sentinel matching
	"fmt"          // fmt wraps decode failures
	"strings"      // strings inspects SQLite constraint messages
	"time"         // time converts unix milliseconds

	"github.com/go-sql-driver/mysql" // mysql exposes driver error numbers

	"github.com/iliyamo/cinema-screening-room/internal/model"
)

// mysqlDuplicateEntry is the MySQL error number for a primary key collision.
const mysqlDuplicateEntry = 1062

const sessionColumns = `id, movie_title, movie_file, poster_file, playlist_json, scheduled_at_ms, status, created_at_ms`

// SessionRepo manages persistence for screening sessions.
type SessionRepo struct {
	db *sql.DB
}

// NewSessionRepo constructs a SessionRepo with the given DB handle.
func NewSessionRepo(db *sql.DB) *SessionRepo {
	return &SessionRepo{db: db}
}

// Insert stores a new session.  CreatedAt is filled in when zero.  A
// duplicate id yields ErrConflict.
func (r *SessionRepo) Insert(ctx context.Context, s *model.SessionRecord) error {
	playlist, err := model.MarshalPlaylist(s.Playlist)
	if err != nil {
		return err
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	if s.Status == "" {
		s.Status = model.StatusScheduled
	}
	const q = `INSERT INTO screening_sessions (` + sessionColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = r.db.ExecContext(ctx, q,
		s.ID, s.MovieTitle, s.MovieFile, s.PosterFile, playlist,
		s.ScheduledAt.UnixMilli(), string(s.Status), s.CreatedAt.UnixMilli(),
	)
	if err != nil {
		if isDuplicateKey(err) {
			return ErrConflict
		}
		return err
	}
	return nil
}

// UpdateStatus sets the coarse status of a session.  Updating a row that no
// longer exists is not an error: the session may have been deleted by an
// administrator while its last transition was in flight.
func (r *SessionRepo) UpdateStatus(ctx context.Context, id string, status model.Status) error {
	if !status.Valid() {
		return fmt.Errorf("update status: invalid status %q", status)
	}
	const q = `UPDATE screening_sessions SET status = ? WHERE id = ?`
	_, err := r.db.ExecContext(ctx, q, string(status), id)
	return err
}

// Delete removes the session row.  Deleting an unknown id returns
// ErrSessionNotFound.
func (r *SessionRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM screening_sessions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// ListAll returns every session, most recently scheduled first.  It backs
// the admin panel.
func (r *SessionRepo) ListAll(ctx context.Context) ([]model.SessionRecord, error) {
	const q = `SELECT ` + sessionColumns + ` FROM screening_sessions ORDER BY scheduled_at_ms DESC`
	return r.list(ctx, q)
}

// ListNotFinished returns sessions that are still upcoming or running,
// soonest first.  It backs the public billboard.
func (r *SessionRepo) ListNotFinished(ctx context.Context) ([]model.SessionRecord, error) {
	const q = `SELECT ` + sessionColumns + ` FROM screening_sessions WHERE status <> ? ORDER BY scheduled_at_ms ASC`
	return r.list(ctx, q, string(model.StatusFinished))
}

// GetNotFinished loads one session for hydration.  FINISHED sessions are
// reported as ErrSessionNotFound because they can never be reopened.
func (r *SessionRepo) GetNotFinished(ctx context.Context, id string) (*model.SessionRecord, error) {
	const q = `SELECT ` + sessionColumns + ` FROM screening_sessions WHERE id = ? AND status <> ?`
	s, err := scanSession(r.db.QueryRowContext(ctx, q, id, string(model.StatusFinished)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return s, nil
}

func (r *SessionRepo) list(ctx context.Context, q string, args ...any) ([]model.SessionRecord, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result := []model.SessionRecord{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*model.SessionRecord, error) {
	var (
		s           model.SessionRecord
		playlist    string
		status      string
		scheduledMs int64
		createdMs   int64
	)
	if err := row.Scan(&s.ID, &s.MovieTitle, &s.MovieFile, &s.PosterFile, &playlist, &scheduledMs, &status, &createdMs); err != nil {
		return nil, err
	}
	p, err := model.ParsePlaylist(playlist)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", s.ID, err)
	}
	st, err := model.ParseStatus(status)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", s.ID, err)
	}
	s.Playlist = p
	s.Status = st
	s.ScheduledAt = time.UnixMilli(scheduledMs).UTC()
	s.CreatedAt = time.UnixMilli(createdMs).UTC()
	return &s, nil
}

func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == mysqlDuplicateEntry
	}
	// modernc.org/sqlite reports constraint failures in the message text.
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

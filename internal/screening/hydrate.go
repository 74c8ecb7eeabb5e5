package screening

import (
	"context"
	"errors"
	"fmt"

	xlog "github.com/iliyamo/cinema-screening-room/internal/log"
	"github.com/iliyamo/cinema-screening-room/internal/model"
	"github.com/iliyamo/cinema-screening-room/internal/repository"
)

var (
	// ErrSessionNotFound means the session is neither resident nor a
	// not-finished row in the store.
	ErrSessionNotFound = repository.ErrSessionNotFound
	// ErrVestibuleClosed means the pre-show window has not opened yet.
	ErrVestibuleClosed = errors.New("vestibule not open yet")
)

// OpenVestibule returns the resident session id, hydrating it from the store
// when the pre-show window is open.  Only the call that actually inserts the
// session into the registry writes VESTIBULE to the store.
func (e *Engine) OpenVestibule(ctx context.Context, id string) (SessionView, error) {
	if v, ok := e.View(id); ok {
		return v, nil
	}

	from := model.StatusScheduled
	s, created, err := e.reg.HydrateIfAbsent(id, func() (*Session, error) {
		lctx, cancel := context.WithTimeout(ctx, e.cfg.StoreTimeout)
		defer cancel()
		rec, err := e.store.GetNotFinished(lctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrSessionNotFound) {
				return nil, ErrSessionNotFound
			}
			return nil, fmt.Errorf("load session %s: %w", id, err)
		}
		now := e.now()
		if now.Before(rec.OpensAt(e.cfg.VestibuleOpen)) {
			return nil, ErrVestibuleClosed
		}
		if rec.Status != model.StatusScheduled {
			// Rehydrated after a restart; playback replays from the pre-show.
			from = model.StatusVestibule
		}
		return newSession(rec, now), nil
	})
	if err != nil {
		return SessionView{}, err
	}

	if created {
		e.logger.Info().Str(xlog.FieldSessionID, id).Msg("session hydrated")
		e.persistStatus(id, s.MovieTitle, from, model.StatusVestibule)
	}
	v, ok := e.View(id)
	if !ok {
		// Closed between hydration and the snapshot.
		return SessionView{}, ErrSessionNotFound
	}
	return v, nil
}

// DeleteSession disconnects every member, drops the session from memory and
// deletes its record.  A session missing from both memory and the store
// yields ErrSessionNotFound.
func (e *Engine) DeleteSession(ctx context.Context, id string) error {
	var resident bool
	now := e.now()
	e.reg.withLock(func(sessions map[string]*Session) {
		if s, ok := sessions[id]; ok {
			resident = true
			e.ejectAllLocked(s, "session_deleted")
		}
		// Retired even when not resident so a hydration already past its
		// store read cannot insert it back.
		e.reg.retireLocked(id, now)
	})
	e.forget(id)

	dctx, cancel := context.WithTimeout(ctx, e.cfg.StoreTimeout)
	err := e.store.Delete(dctx, id)
	cancel()
	if err != nil && !(resident && errors.Is(err, repository.ErrSessionNotFound)) {
		if !errors.Is(err, repository.ErrSessionNotFound) {
			storeWriteFailures.WithLabelValues("delete").Inc()
		}
		return err
	}

	e.logger.Info().Str(xlog.FieldSessionID, id).Bool("resident", resident).Msg("session deleted")
	e.transport.Broadcast(AdminRoom, EventAdminPanelUpdate, AdminPanelPayload{SessionID: id})
	return nil
}

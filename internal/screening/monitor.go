package screening

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	xlog "github.com/iliyamo/cinema-screening-room/internal/log"
	"github.com/iliyamo/cinema-screening-room/internal/model"
)

// Monitor reconciles resident sessions against the wall clock: it promotes
// sessions whose start time has arrived and closes idle or finished ones.
type Monitor struct {
	engine *Engine
	logger zerolog.Logger
}

func newMonitor(e *Engine) *Monitor {
	return &Monitor{engine: e, logger: xlog.WithComponent("screening.monitor")}
}

// Run calls SweepOnce on every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	interval := m.engine.cfg.MonitorInterval
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.SweepOnce(ctx)
		}
	}
}

// SweepOnce performs exactly one scan and then acts on it.  It returns the
// ids it promoted and the ids it closed.
func (m *Monitor) SweepOnce(ctx context.Context) (started, closed []string) {
	toStart, toClose := m.scan()

	for _, id := range toStart {
		if m.engine.Promote(id) {
			m.logger.Info().Str(xlog.FieldSessionID, id).Msg("scheduled start reached")
			started = append(started, id)
		}
	}
	for _, id := range toClose {
		if ctx.Err() != nil {
			break
		}
		if m.engine.closeSession(id, "session_closed") {
			m.logger.Info().Str(xlog.FieldSessionID, id).Msg("closed idle or finished session")
			closed = append(closed, id)
		}
	}

	if ctx.Err() == nil {
		for _, id := range m.engine.reconcile(ctx) {
			m.logger.Info().Str(xlog.FieldSessionID, id).Msg("abandoned status write reconciled")
		}
	}
	if ttl := m.engine.cfg.RetiredTTL; ttl > 0 {
		pending := m.engine.pendingIDs()
		m.engine.reg.pruneRetired(m.engine.now().Add(-ttl), func(id string) bool { return pending[id] })
	}
	return started, closed
}

// scan builds both action sets under one short lock hold.  A session due for
// closing is never also promoted.
func (m *Monitor) scan() (toStart, toClose []string) {
	e := m.engine
	now := e.now()
	e.reg.withLock(func(sessions map[string]*Session) {
		for id, s := range sessions {
			idle := s.empty() && !s.emptySince.IsZero() && now.Sub(s.emptySince) > e.cfg.IdleGrace
			done := s.playback.Status == model.StatusFinished &&
				!s.finishedSince.IsZero() && now.Sub(s.finishedSince) > e.cfg.PostShowGrace
			switch {
			case idle || done:
				toClose = append(toClose, id)
			case s.playback.Status == model.StatusVestibule && !s.ScheduledAt.After(now):
				toStart = append(toStart, id)
			}
		}
	})
	sort.Strings(toStart)
	sort.Strings(toClose)
	return toStart, toClose
}

// closeSession ejects every member, removes the session and persists
// FINISHED.  It reports false when the session was not resident.
func (e *Engine) closeSession(id, reason string) bool {
	var (
		s    *Session
		from model.Status
	)
	e.reg.withLock(func(sessions map[string]*Session) {
		var ok bool
		if s, ok = sessions[id]; !ok {
			return
		}
		from = s.playback.Status
		e.ejectAllLocked(s, reason)
		e.reg.retireLocked(id, e.now())
	})
	if s == nil {
		return false
	}
	e.persistStatus(id, s.MovieTitle, from, model.StatusFinished)
	return true
}

// ejectAllLocked tells both rooms the session is going away and drops every
// connection from its room.
func (e *Engine) ejectAllLocked(s *Session, reason string) {
	for _, room := range roomTypes {
		key := RoomKey(s.ID, room)
		e.transport.Broadcast(key, EventForceDisconnect, ReasonPayload{Reason: reason})
		for connID := range s.members[room] {
			e.transport.Unsubscribe(connID, key)
		}
		s.members[room] = map[string]string{}
	}
}

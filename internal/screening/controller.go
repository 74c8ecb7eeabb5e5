package screening

import (
	"time"

	xlog "github.com/iliyamo/cinema-screening-room/internal/log"
	"github.com/iliyamo/cinema-screening-room/internal/model"
)

// Promote moves a VESTIBULE session to ACTIVE.  It sends the pre-show room
// to the viewing room, starts the projectionist and arms the countdown after
// which playback begins.  It reports false, without side effects, when the
// session is not resident or not in VESTIBULE, so racing callers are safe.
func (e *Engine) Promote(id string) bool {
	var (
		promoted bool
		title    string
		from     model.Status
	)
	e.reg.withLock(func(sessions map[string]*Session) {
		s, ok := sessions[id]
		if !ok {
			return
		}
		from = s.playback.Status
		if from != model.StatusVestibule {
			return
		}
		title = s.MovieTitle
		s.playback.Status = model.StatusActive
		s.playback.Playing = false
		s.playback.Time = 0
		s.playback.CurrentVideoIndex = 0

		e.transport.Broadcast(RoomKey(id, RoomVestibule), EventForceStartProjection, struct{}{})

		p := newProjectionist(e, s)
		s.projectionist = p
		if !e.tasks.Go(func() { p.Run(e.ctx) }) {
			e.logger.Warn().Str(xlog.FieldSessionID, id).Msg("engine closing, projectionist not started")
		}

		e.transport.Broadcast(RoomKey(id, RoomWatch), EventPlaybackStarting, CountdownPayload{
			Countdown: int(e.cfg.Countdown / time.Second),
		})
		s.countdown = time.AfterFunc(e.cfg.Countdown, func() { e.releasePlayback(s) })
		promoted = true
	})

	if !promoted {
		ev := e.logger.Debug().Str(xlog.FieldSessionID, id)
		if from != "" {
			ev = ev.Str(xlog.FieldOldState, string(from))
		}
		ev.Msg("promote skipped")
		return false
	}
	e.persistStatus(id, title, model.StatusVestibule, model.StatusActive)
	return true
}

// releasePlayback fires when the countdown elapses.  It only acts on the
// same instance that armed it, and only while that instance is ACTIVE.
func (e *Engine) releasePlayback(s *Session) {
	e.reg.withLock(func(sessions map[string]*Session) {
		if cur, ok := sessions[s.ID]; !ok || cur != s {
			return
		}
		s.countdown = nil
		if s.playback.Status != model.StatusActive {
			return
		}
		s.playback.Playing = true
		e.transport.Broadcast(RoomKey(s.ID, RoomWatch), EventStateChange, s.playback)
	})
}

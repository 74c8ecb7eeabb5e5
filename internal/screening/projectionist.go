package screening

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	xlog "github.com/iliyamo/cinema-screening-room/internal/log"
	"github.com/iliyamo/cinema-screening-room/internal/model"
)

// Projectionist is the playback clock of one ACTIVE session.
type Projectionist struct {
	engine  *Engine
	session *Session
	logger  zerolog.Logger

	stop     chan struct{}
	stopOnce sync.Once
}

func newProjectionist(e *Engine, s *Session) *Projectionist {
	return &Projectionist{
		engine:  e,
		session: s,
		logger:  xlog.WithComponent("screening.projectionist").With().Str(xlog.FieldSessionID, s.ID).Logger(),
		stop:    make(chan struct{}),
	}
}

// Run ticks until Stop is called, ctx is cancelled or the session leaves the
// registry.
func (p *Projectionist) Run(ctx context.Context) {
	projectionistsRunning.Inc()
	defer projectionistsRunning.Dec()

	tick := p.engine.cfg.Tick
	if tick <= 0 {
		tick = time.Second
	}
	t := time.NewTicker(tick)
	defer t.Stop()

	p.logger.Debug().Msg("projectionist started")
	defer p.logger.Debug().Msg("projectionist stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stop:
			return
		case <-t.C:
			if !p.Tick() {
				return
			}
		}
	}
}

// Stop asks the loop to exit at its next tick boundary.  Safe to call more
// than once.
func (p *Projectionist) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
}

func (p *Projectionist) stopped() bool {
	select {
	case <-p.stop:
		return true
	default:
		return false
	}
}

// Tick advances the clock by one second.  It returns false once the loop
// should exit: the session finished, was removed or was replaced.
func (p *Projectionist) Tick() bool {
	e := p.engine
	s := p.session
	var (
		alive    = true
		finished bool
	)
	e.reg.withLock(func(sessions map[string]*Session) {
		if cur, ok := sessions[s.ID]; !ok || cur != s || p.stopped() {
			alive = false
			return
		}
		pb := &s.playback
		if pb.Status != model.StatusActive || !pb.Playing {
			return
		}
		pb.Time++

		d, ok := s.Playlist.DurationAt(pb.CurrentVideoIndex)
		if ok && pb.Time < d {
			if len(s.members[RoomWatch]) > 0 {
				e.transport.Broadcast(RoomKey(s.ID, RoomWatch), EventSyncPulse, SyncPulsePayload{Time: pb.Time})
				syncPulsesTotal.Inc()
			}
			return
		}

		if pb.CurrentVideoIndex+1 < len(s.Playlist) {
			pb.CurrentVideoIndex++
			pb.Time = 0
			pb.Playing = true
			e.transport.Broadcast(RoomKey(s.ID, RoomWatch), EventPlayNextVideo, NextVideoPayload{State: *pb})
			return
		}

		// End of playlist. The index stays on the last clip.
		if n := len(s.Playlist); n > 0 {
			pb.CurrentVideoIndex = n - 1
		}
		pb.Status = model.StatusFinished
		pb.Playing = false
		s.finishedSince = e.now()
		e.transport.Broadcast(RoomKey(s.ID, RoomWatch), EventSessionFinished, SessionFinishedPayload{SessionID: s.ID})
		p.Stop()
		finished = true
		alive = false
	})

	if finished {
		p.logger.Info().Msg("playlist finished")
		e.persistStatus(s.ID, s.MovieTitle, model.StatusActive, model.StatusFinished)
	}
	return alive
}

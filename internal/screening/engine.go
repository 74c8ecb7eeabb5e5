// Package screening is the session lifecycle and synchronized playback
// engine.  It owns the in-memory registry of resident sessions, promotes
// them from the pre-show room to active playback, runs one projectionist per
// active session and periodically reaps idle or finished sessions.
package screening

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	xlog "github.com/iliyamo/cinema-screening-room/internal/log"
	"github.com/iliyamo/cinema-screening-room/internal/model"
)

// Config holds the engine timings.
type Config struct {
	VestibuleOpen   time.Duration // how long before the start the pre-show room opens
	PostShowGrace   time.Duration // how long a FINISHED session stays resident
	IdleGrace       time.Duration // how long both rooms may stay empty
	MonitorInterval time.Duration
	Tick            time.Duration // projectionist tick
	Countdown       time.Duration // delay between promotion and playback
	StoreTimeout    time.Duration // per store call
	StoreRetries    int           // background attempts after a failed status write
	StoreBackoff    time.Duration // first retry delay, doubled per attempt
	RetiredTTL      time.Duration // how long a closed or deleted id is refused
}

// DefaultConfig returns the production timings.
func DefaultConfig() Config {
	return Config{
		VestibuleOpen:   15 * time.Minute,
		PostShowGrace:   5 * time.Minute,
		IdleGrace:       10 * time.Minute,
		MonitorInterval: 5 * time.Second,
		Tick:            time.Second,
		Countdown:       5 * time.Second,
		StoreTimeout:    3 * time.Second,
		StoreRetries:    5,
		StoreBackoff:    500 * time.Millisecond,
		RetiredTTL:      time.Hour,
	}
}

// Engine wires the registry to the store and the transport.
type Engine struct {
	cfg       Config
	reg       *Registry
	store     Store
	transport Transport
	publisher StatusPublisher
	now       func() time.Time
	logger    zerolog.Logger

	tasks   taskGroup
	ctx     context.Context
	cancel  context.CancelFunc
	monitor *Monitor
	started bool

	// writeMu serializes durable status writes; wanted holds the latest
	// status each session still needs flushed.  abandoned lists the ids
	// whose background retries gave up; the monitor flushes them again.
	writeMu   sync.Mutex
	wantMu    sync.Mutex
	wanted    map[string]model.Status
	abandoned map[string]struct{}
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithPublisher sets the publisher notified of every coarse transition.
func WithPublisher(p StatusPublisher) Option {
	return func(e *Engine) {
		if p != nil {
			e.publisher = p
		}
	}
}

// WithLogger overrides the component logger.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine builds an engine with an empty registry.  Call Start to run the
// lifecycle monitor.
func NewEngine(cfg Config, store Store, transport Transport, opts ...Option) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		cfg:       cfg,
		reg:       NewRegistry(),
		store:     store,
		transport: transport,
		publisher: nopPublisher{},
		now:       time.Now,
		logger:    xlog.WithComponent("screening"),
		ctx:       ctx,
		cancel:    cancel,
		wanted:    make(map[string]model.Status),
		abandoned: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.monitor = newMonitor(e)
	return e
}

// Registry exposes the engine's registry.
func (e *Engine) Registry() *Registry { return e.reg }

// Monitor exposes the lifecycle monitor.
func (e *Engine) Monitor() *Monitor { return e.monitor }

// Config returns the engine timings.
func (e *Engine) Config() Config { return e.cfg }

// Start launches the lifecycle monitor.  It is safe to call once.
func (e *Engine) Start() {
	if e.started {
		return
	}
	e.started = true
	e.tasks.Go(func() { e.monitor.Run(e.ctx) })
	e.logger.Info().Dur("interval", e.cfg.MonitorInterval).Msg("lifecycle monitor started")
}

// Shutdown stops the monitor, every projectionist and countdown, then waits
// for engine goroutines until ctx expires.  Resident sessions are kept in
// the registry; their last flushed status is what a restart hydrates from.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.cancel()
	e.reg.withLock(func(sessions map[string]*Session) {
		for _, s := range sessions {
			s.haltLocked()
		}
	})
	err := e.tasks.CloseAndWait(ctx)
	if err != nil {
		e.logger.Warn().Err(err).Msg("screening shutdown incomplete")
		return err
	}
	e.logger.Info().Msg("screening engine stopped")
	return nil
}

// View returns a snapshot of the resident session id.
func (e *Engine) View(id string) (SessionView, bool) {
	var (
		v  SessionView
		ok bool
	)
	now := e.now()
	e.reg.withLock(func(sessions map[string]*Session) {
		var s *Session
		if s, ok = sessions[id]; ok {
			v = s.view(now)
		}
	})
	return v, ok
}

// Views returns snapshots of every resident session keyed by id.
func (e *Engine) Views() map[string]SessionView {
	now := e.now()
	out := map[string]SessionView{}
	e.reg.withLock(func(sessions map[string]*Session) {
		for id, s := range sessions {
			out[id] = s.view(now)
		}
	})
	return out
}

// persistStatus flushes a coarse transition after the in-memory change has
// been applied.  A failed write is retried in the background and never
// rolls the in-memory state back.
func (e *Engine) persistStatus(id, title string, from, to model.Status) {
	e.want(id, to)
	if from != to {
		recordTransition(string(from), string(to))
		e.logger.Info().
			Str(xlog.FieldSessionID, id).
			Str(xlog.FieldOldState, string(from)).
			Str(xlog.FieldNewState, string(to)).
			Msg("session status changed")
	}

	if err := e.flush(e.ctx, id); err != nil {
		storeWriteFailures.WithLabelValues("update_status").Inc()
		e.logger.Warn().Err(err).Str(xlog.FieldSessionID, id).Str(xlog.FieldNewState, string(to)).Msg("status write failed, retrying")
		e.tasks.Go(func() { e.retryFlush(id) })
	}

	if from != to {
		ctx, cancel := context.WithTimeout(e.ctx, e.cfg.StoreTimeout)
		err := e.publisher.PublishStatusChanged(ctx, StatusChange{
			SessionID: id, MovieTitle: title, From: from, To: to, At: e.now().UTC(),
		})
		cancel()
		if err != nil {
			e.logger.Warn().Err(err).Str(xlog.FieldSessionID, id).Msg("status event publish failed")
		}
	}
	e.transport.Broadcast(AdminRoom, EventAdminPanelUpdate, AdminPanelPayload{SessionID: id, Status: to})
}

// want records to as the status id must reach; it never moves backwards.
func (e *Engine) want(id string, to model.Status) {
	e.wantMu.Lock()
	defer e.wantMu.Unlock()
	if cur, ok := e.wanted[id]; ok && to.Before(cur) {
		return
	}
	e.wanted[id] = to
}

func (e *Engine) forget(id string) {
	e.wantMu.Lock()
	delete(e.wanted, id)
	delete(e.abandoned, id)
	e.wantMu.Unlock()
}

// pendingIDs snapshots the ids that still have a status waiting to be
// flushed.
func (e *Engine) pendingIDs() map[string]bool {
	e.wantMu.Lock()
	defer e.wantMu.Unlock()
	ids := make(map[string]bool, len(e.wanted))
	for id := range e.wanted {
		ids[id] = true
	}
	return ids
}

// reconcile flushes every abandoned id once and returns those that reached
// the store.
func (e *Engine) reconcile(ctx context.Context) []string {
	e.wantMu.Lock()
	ids := make([]string, 0, len(e.abandoned))
	for id := range e.abandoned {
		ids = append(ids, id)
	}
	e.wantMu.Unlock()

	var done []string
	for _, id := range ids {
		if err := e.flush(ctx, id); err != nil {
			storeWriteFailures.WithLabelValues("update_status").Inc()
			e.logger.Debug().Err(err).Str(xlog.FieldSessionID, id).Msg("status reconcile failed")
			continue
		}
		e.wantMu.Lock()
		delete(e.abandoned, id)
		e.wantMu.Unlock()
		done = append(done, id)
	}
	return done
}

// flush writes the latest wanted status of id.  Concurrent flushes are
// serialized so an older status can never land after a newer one.
func (e *Engine) flush(ctx context.Context, id string) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	e.wantMu.Lock()
	to, ok := e.wanted[id]
	e.wantMu.Unlock()
	if !ok {
		return nil
	}

	wctx, cancel := context.WithTimeout(ctx, e.cfg.StoreTimeout)
	err := e.store.UpdateStatus(wctx, id, to)
	cancel()
	if err != nil {
		return err
	}

	e.wantMu.Lock()
	if e.wanted[id] == to {
		delete(e.wanted, id)
	}
	e.wantMu.Unlock()
	return nil
}

func (e *Engine) retryFlush(id string) {
	delay := e.cfg.StoreBackoff
	for attempt := 1; attempt <= e.cfg.StoreRetries; attempt++ {
		t := time.NewTimer(delay)
		select {
		case <-e.ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
		err := e.flush(e.ctx, id)
		if err == nil {
			return
		}
		if errors.Is(err, context.Canceled) {
			return
		}
		storeWriteFailures.WithLabelValues("update_status").Inc()
		e.logger.Warn().Err(err).Str(xlog.FieldSessionID, id).Int("attempt", attempt).Msg("status write retry failed")
		delay *= 2
	}
	e.wantMu.Lock()
	if _, ok := e.wanted[id]; ok {
		e.abandoned[id] = struct{}{}
	}
	e.wantMu.Unlock()
	e.logger.Error().Str(xlog.FieldSessionID, id).Msg("status write retries abandoned; monitor will reconcile")
}

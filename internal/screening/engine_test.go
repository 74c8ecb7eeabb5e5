package screening

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/iliyamo/cinema-screening-room/internal/model"
)

type recordingPublisher struct {
	mu      sync.Mutex
	changes []StatusChange
	err     error
}

func (p *recordingPublisher) PublishStatusChanged(_ context.Context, c StatusChange) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changes = append(p.changes, c)
	return p.err
}

func (p *recordingPublisher) transitions() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.changes))
	for _, c := range p.changes {
		out = append(out, string(c.From)+">"+string(c.To))
	}
	return out
}

func TestOpenVestibuleWindow(t *testing.T) {
	now := time.Date(2026, 10, 14, 20, 0, 0, 0, time.UTC)
	h := newHarness(t,
		record("early001", now.Add(16*time.Minute)),
		record("open0001", now.Add(15*time.Minute)),
	)

	_, err := h.engine.OpenVestibule(context.Background(), "early001")
	assert.ErrorIs(t, err, ErrVestibuleClosed)
	_, err = h.engine.OpenVestibule(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	v, err := h.engine.OpenVestibule(context.Background(), "open0001")
	require.NoError(t, err)
	assert.Equal(t, model.StatusVestibule, v.State.Status)
	assert.True(t, v.State.ChatEnabled)
	assert.Equal(t, 900, v.SecondsToStart)
	assert.Equal(t, model.StatusVestibule, h.store.status("open0001"))
	assert.Equal(t, 1, h.engine.reg.Len())
}

func TestOpenVestibuleConcurrentHydratesOnce(t *testing.T) {
	now := time.Date(2026, 10, 14, 20, 0, 0, 0, time.UTC)
	h := newHarness(t, record("hyd00001", now.Add(5*time.Minute)))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.engine.OpenVestibule(context.Background(), "hyd00001")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, h.store.writeCount(model.StatusVestibule))
	assert.Equal(t, 1, h.engine.reg.Len())
}

func TestStatusFlowIsForwardOnly(t *testing.T) {
	now := time.Date(2026, 10, 14, 20, 0, 0, 0, time.UTC)
	pub := &recordingPublisher{}
	store := newFakeStore(record("flow0001", now.Add(time.Minute), 1, 1))
	tr := newFakeTransport()
	e := NewEngine(testConfig(), store, tr, WithClock(func() time.Time { return now }), WithPublisher(pub))
	t.Cleanup(func() { _ = e.Shutdown(context.Background()) })

	_, err := e.OpenVestibule(context.Background(), "flow0001")
	require.NoError(t, err)
	require.True(t, e.Promote("flow0001"))
	s, _ := e.reg.Get("flow0001")
	e.releasePlayback(s)
	p := func() *Projectionist {
		var p *Projectionist
		e.reg.withLock(func(map[string]*Session) { p = s.projectionist })
		return p
	}()
	for p.Tick() {
	}
	require.True(t, e.closeSession("flow0001", "session_closed"))

	assert.Equal(t, []string{"scheduled>vestibule", "vestibule>active", "active>finished"}, pub.transitions())
	assert.Equal(t, []model.Status{model.StatusVestibule, model.StatusActive, model.StatusFinished, model.StatusFinished}, store.writes)
}

func TestStoreFailureRetriedWithoutRollback(t *testing.T) {
	now := time.Date(2026, 10, 14, 20, 0, 0, 0, time.UTC)
	h := newHarness(t, record("retry001", now.Add(time.Minute)))
	h.open(t, "retry001")

	h.store.mu.Lock()
	h.store.failNext = 2
	h.store.mu.Unlock()

	require.True(t, h.engine.Promote("retry001"))
	assert.Equal(t, model.StatusActive, h.playback(t, "retry001").Status, "memory stays authoritative")

	require.Eventually(t, func() bool {
		return h.store.status("retry001") == model.StatusActive
	}, time.Second, 5*time.Millisecond)
}

// finishUnderOutage plays a one-second session to the end and closes it
// while every store write fails, then waits for the retries to give up.
func finishUnderOutage(t *testing.T, h *harness, id string) {
	t.Helper()
	h.open(t, id)
	require.True(t, h.engine.Promote(id))
	s, _ := h.engine.reg.Get(id)
	h.engine.releasePlayback(s)

	h.store.failWrites(1000)
	p := h.projectionist(t, id)
	for p.Tick() {
	}
	h.clock.Advance(6 * time.Minute)
	_, closed := h.engine.Monitor().SweepOnce(context.Background())
	require.Equal(t, []string{id}, closed)

	// FINISHED is written twice, at the last tick and at close; each write
	// fails once inline and once per retry.
	spent := 2 * (1 + h.engine.cfg.StoreRetries)
	require.Eventually(t, func() bool {
		h.engine.wantMu.Lock()
		_, ok := h.engine.abandoned[id]
		h.engine.wantMu.Unlock()
		return ok && h.store.failsLeft() == 1000-spent
	}, 2*time.Second, 5*time.Millisecond)
	h.store.failWrites(0)
	require.Equal(t, model.StatusActive, h.store.status(id), "store still holds the stale status")
}

func TestClosedSessionNotRehydratedAfterAbandonedWrite(t *testing.T) {
	now := time.Date(2026, 10, 14, 20, 0, 0, 0, time.UTC)
	h := newHarness(t, record("stale001", now.Add(time.Minute), 1))
	finishUnderOutage(t, h, "stale001")

	_, err := h.engine.OpenVestibule(context.Background(), "stale001")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Zero(t, h.engine.reg.Len())
	assert.Equal(t, 1, h.store.writeCount(model.StatusVestibule), "no second VESTIBULE write")
}

func TestSweepReconcilesAbandonedWrite(t *testing.T) {
	now := time.Date(2026, 10, 14, 20, 0, 0, 0, time.UTC)
	h := newHarness(t, record("stale002", now.Add(time.Minute), 1))
	finishUnderOutage(t, h, "stale002")

	h.engine.Monitor().SweepOnce(context.Background())
	assert.Equal(t, model.StatusFinished, h.store.status("stale002"))
	assert.Empty(t, h.engine.pendingIDs())
	assert.True(t, h.engine.reg.Retired("stale002"))

	h.clock.Advance(2 * time.Hour)
	h.engine.Monitor().SweepOnce(context.Background())
	assert.False(t, h.engine.reg.Retired("stale002"), "tombstone pruned once the store agrees")
	_, err := h.engine.OpenVestibule(context.Background(), "stale002")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestDeleteDuringHydrationWins(t *testing.T) {
	now := time.Date(2026, 10, 14, 20, 0, 0, 0, time.UTC)
	h := newHarness(t, record("race0002", now.Add(time.Minute)))
	h.store.afterGet = func(id string) {
		h.store.afterGet = nil
		assert.NoError(t, h.engine.DeleteSession(context.Background(), id))
	}

	_, err := h.engine.OpenVestibule(context.Background(), "race0002")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, ok := h.engine.reg.Get("race0002")
	assert.False(t, ok)
	assert.Zero(t, h.store.writeCount(model.StatusVestibule))
}

func TestPublisherErrorIsNotFatal(t *testing.T) {
	now := time.Date(2026, 10, 14, 20, 0, 0, 0, time.UTC)
	pub := &recordingPublisher{err: errors.New("broker down")}
	store := newFakeStore(record("pub00001", now.Add(time.Minute)))
	e := NewEngine(testConfig(), store, newFakeTransport(), WithClock(func() time.Time { return now }), WithPublisher(pub))
	t.Cleanup(func() { _ = e.Shutdown(context.Background()) })

	_, err := e.OpenVestibule(context.Background(), "pub00001")
	require.NoError(t, err)
	assert.True(t, e.Promote("pub00001"))
	assert.Equal(t, model.StatusActive, store.status("pub00001"))
}

func TestDeleteSession(t *testing.T) {
	now := time.Date(2026, 10, 14, 20, 0, 0, 0, time.UTC)
	h := newHarness(t, record("rm000001", now.Add(time.Minute)), record("rm000002", now.Add(2*time.Hour)))
	h.open(t, "rm000001")
	require.NoError(t, h.engine.Join("c1", JoinRequest{SessionID: "rm000001", RoomType: RoomVestibule, Username: "ana"}))
	require.True(t, h.engine.Promote("rm000001"))

	require.NoError(t, h.engine.DeleteSession(context.Background(), "rm000001"))
	_, ok := h.engine.reg.Get("rm000001")
	assert.False(t, ok)
	assert.Empty(t, h.store.status("rm000001"))
	require.Len(t, h.transport.named(EventForceDisconnect), 2)

	// Not resident, only stored.
	require.NoError(t, h.engine.DeleteSession(context.Background(), "rm000002"))
	assert.ErrorIs(t, h.engine.DeleteSession(context.Background(), "rm000002"), ErrSessionNotFound)
}

func TestAdminStateChange(t *testing.T) {
	now := time.Date(2026, 10, 14, 20, 0, 0, 0, time.UTC)
	h := newHarness(t, record("adm00001", now.Add(time.Minute), 5, 30, 5))
	h.open(t, "adm00001")

	playing := true
	at := 12
	idx := 1
	patch := &StatePatch{Playing: &playing, Time: &at, CurrentVideoIndex: &idx}

	err := h.engine.ApplyAdminAction(AdminAction{SessionID: "adm00001", Action: ActionStateChange, State: patch})
	assert.ErrorIs(t, err, ErrInvalidTransition, "only while active")

	require.NoError(t, h.engine.ApplyAdminAction(AdminAction{SessionID: "adm00001", Action: ActionForceStart}))
	assert.ErrorIs(t, h.engine.ApplyAdminAction(AdminAction{SessionID: "adm00001", Action: ActionForceStart}), ErrNotVestibule)

	require.NoError(t, h.engine.ApplyAdminAction(AdminAction{SessionID: "adm00001", Action: ActionStateChange, State: patch}))
	pb := h.playback(t, "adm00001")
	assert.True(t, pb.Playing)
	assert.Equal(t, 12, pb.Time)
	assert.Equal(t, 1, pb.CurrentVideoIndex)

	bad := 3
	err = h.engine.ApplyAdminAction(AdminAction{SessionID: "adm00001", Action: ActionStateChange, State: &StatePatch{CurrentVideoIndex: &bad}})
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, 1, h.playback(t, "adm00001").CurrentVideoIndex)

	assert.ErrorIs(t, h.engine.ApplyAdminAction(AdminAction{SessionID: "adm00001", Action: "rewind"}), ErrUnknownAction)
	assert.ErrorIs(t, h.engine.ApplyAdminAction(AdminAction{SessionID: "zzz", Action: ActionToggleChat}), ErrSessionNotFound)
}

func TestShutdownStopsEveryGoroutine(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	now := time.Date(2026, 10, 14, 20, 0, 0, 0, time.UTC)
	cfg := testConfig()
	cfg.MonitorInterval = 10 * time.Millisecond
	cfg.Tick = 5 * time.Millisecond
	store := newFakeStore(record("leak0001", now.Add(time.Minute)), record("leak0002", now.Add(time.Minute)))
	e := NewEngine(cfg, store, newFakeTransport(), WithClock(func() time.Time { return now }))
	e.Start()

	for _, id := range []string{"leak0001", "leak0002"} {
		_, err := e.OpenVestibule(context.Background(), id)
		require.NoError(t, err)
		require.True(t, e.Promote(id))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, e.Shutdown(ctx))
}

package screening

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-screening-room/internal/model"
)

func TestPromoteConcurrentStartsOnce(t *testing.T) {
	h := newHarness(t, record("race0001", time.Date(2026, 10, 14, 20, 5, 0, 0, time.UTC)))
	h.open(t, "race0001")

	const callers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if h.engine.Promote("race0001") {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Len(t, h.transport.named(EventPlaybackStarting), 1)
	assert.Len(t, h.transport.named(EventForceStartProjection), 1)
	assert.Equal(t, 1, h.store.writeCount(model.StatusActive))

	pb := h.playback(t, "race0001")
	assert.Equal(t, model.StatusActive, pb.Status)
	assert.False(t, pb.Playing)
	assert.Zero(t, pb.Time)
	assert.Zero(t, pb.CurrentVideoIndex)
}

func TestPromoteRequiresVestibule(t *testing.T) {
	h := newHarness(t, record("noop0001", time.Date(2026, 10, 14, 20, 5, 0, 0, time.UTC)))

	assert.False(t, h.engine.Promote("noop0001"), "not resident")

	h.open(t, "noop0001")
	require.True(t, h.engine.Promote("noop0001"))
	assert.False(t, h.engine.Promote("noop0001"), "already active")
	assert.Equal(t, model.StatusActive, h.playback(t, "noop0001").Status)
}

func TestPromoteSendsRoomsAndCountdown(t *testing.T) {
	h := newHarness(t, record("room0001", time.Date(2026, 10, 14, 20, 5, 0, 0, time.UTC)))
	h.open(t, "room0001")
	require.True(t, h.engine.Promote("room0001"))

	fs := h.transport.named(EventForceStartProjection)
	require.Len(t, fs, 1)
	assert.Equal(t, "room0001:preshow", fs[0].Target)

	ps := h.transport.named(EventPlaybackStarting)
	require.Len(t, ps, 1)
	assert.Equal(t, "room0001", ps[0].Target)
	assert.Equal(t, CountdownPayload{Countdown: int(time.Hour / time.Second)}, ps[0].Payload)

	panel := h.transport.named(EventAdminPanelUpdate)
	require.NotEmpty(t, panel)
	assert.Equal(t, AdminRoom, panel[len(panel)-1].Target)
}

func TestCountdownReleasesPlayback(t *testing.T) {
	h := newHarness(t, record("cd000001", time.Date(2026, 10, 14, 20, 5, 0, 0, time.UTC)))
	h.open(t, "cd000001")
	require.True(t, h.engine.Promote("cd000001"))

	s, ok := h.engine.reg.Get("cd000001")
	require.True(t, ok)
	h.engine.releasePlayback(s)

	pb := h.playback(t, "cd000001")
	assert.True(t, pb.Playing)
	sc := h.transport.named(EventStateChange)
	require.Len(t, sc, 1)
	assert.Equal(t, "cd000001", sc[0].Target)
}

func TestCountdownIgnoresRemovedSession(t *testing.T) {
	h := newHarness(t, record("cd000002", time.Date(2026, 10, 14, 20, 5, 0, 0, time.UTC)))
	h.open(t, "cd000002")
	require.True(t, h.engine.Promote("cd000002"))

	s, ok := h.engine.reg.Get("cd000002")
	require.True(t, ok)
	h.engine.reg.Remove("cd000002")

	h.engine.releasePlayback(s)
	assert.Empty(t, h.transport.named(EventStateChange))

	h.engine.reg.withLock(func(map[string]*Session) {
		assert.False(t, s.playback.Playing)
		assert.Nil(t, s.countdown)
	})
}

func TestCountdownFiresAfterDelay(t *testing.T) {
	h := newHarness(t, record("cd000003", time.Date(2026, 10, 14, 20, 5, 0, 0, time.UTC)))
	h.engine.cfg.Countdown = 10 * time.Millisecond
	h.open(t, "cd000003")
	require.True(t, h.engine.Promote("cd000003"))

	require.Eventually(t, func() bool {
		v, ok := h.engine.View("cd000003")
		return ok && v.State.Playing
	}, time.Second, 5*time.Millisecond)
}

package screening

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-screening-room/internal/model"
	"github.com/iliyamo/cinema-screening-room/internal/repository"
)

type sentEvent struct {
	Target  string // room key or connection id
	Direct  bool
	Event   string
	Payload any
}

type fakeTransport struct {
	mu           sync.Mutex
	events       []sentEvent
	subs         map[string]map[string]bool // room -> conns
	disconnected []string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{subs: map[string]map[string]bool{}}
}

func (f *fakeTransport) Broadcast(room, event string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, sentEvent{Target: room, Event: event, Payload: payload})
}

func (f *fakeTransport) SendTo(connID, event string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, sentEvent{Target: connID, Direct: true, Event: event, Payload: payload})
}

func (f *fakeTransport) Subscribe(connID, room string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subs[room] == nil {
		f.subs[room] = map[string]bool{}
	}
	f.subs[room][connID] = true
}

func (f *fakeTransport) Unsubscribe(connID, room string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subs[room], connID)
}

func (f *fakeTransport) Disconnect(connID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnected = append(f.disconnected, connID)
}

func (f *fakeTransport) named(event string) []sentEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentEvent
	for _, e := range f.events {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

func (f *fakeTransport) subscribed(room, connID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs[room][connID]
}

func (f *fakeTransport) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = nil
}

type fakeStore struct {
	mu       sync.Mutex
	records  map[string]*model.SessionRecord
	writes   []model.Status
	failNext int
	afterGet func(id string) // runs after a successful read, lock released
}

func newFakeStore(recs ...*model.SessionRecord) *fakeStore {
	s := &fakeStore{records: map[string]*model.SessionRecord{}}
	for _, r := range recs {
		s.records[r.ID] = r
	}
	return s
}

func (f *fakeStore) GetNotFinished(_ context.Context, id string) (*model.SessionRecord, error) {
	f.mu.Lock()
	r, ok := f.records[id]
	if !ok || r.Status == model.StatusFinished {
		f.mu.Unlock()
		return nil, repository.ErrSessionNotFound
	}
	cp := *r
	hook := f.afterGet
	f.mu.Unlock()
	if hook != nil {
		hook(id)
	}
	return &cp, nil
}

func (f *fakeStore) failWrites(n int) {
	f.mu.Lock()
	f.failNext = n
	f.mu.Unlock()
}

func (f *fakeStore) failsLeft() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failNext
}

func (f *fakeStore) UpdateStatus(_ context.Context, id string, status model.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext > 0 {
		f.failNext--
		return errors.New("store unavailable")
	}
	f.writes = append(f.writes, status)
	if r, ok := f.records[id]; ok {
		r.Status = status
	}
	return nil
}

func (f *fakeStore) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.records[id]; !ok {
		return repository.ErrSessionNotFound
	}
	delete(f.records, id)
	return nil
}

func (f *fakeStore) status(id string) model.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.records[id]; ok {
		return r.Status
	}
	return ""
}

func (f *fakeStore) writeCount(status model.Status) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, w := range f.writes {
		if w == status {
			n++
		}
	}
	return n
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// testConfig keeps tickers and countdowns from firing on their own so tests
// drive Tick, releasePlayback and SweepOnce directly.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Tick = time.Hour
	cfg.Countdown = time.Hour
	cfg.StoreBackoff = time.Millisecond
	return cfg
}

type harness struct {
	engine    *Engine
	store     *fakeStore
	transport *fakeTransport
	clock     *fakeClock
}

func record(id string, at time.Time, durations ...int) *model.SessionRecord {
	p := make(model.Playlist, 0, len(durations))
	for _, d := range durations {
		p = append(p, model.Clip{Source: "clip.mp4", Duration: d})
	}
	if len(p) == 0 {
		p = model.BuildPlaylist("assets/intro.mp4", "videos/feature.mp4", "assets/outro.mp4", 60)
	}
	return &model.SessionRecord{
		ID:          id,
		MovieTitle:  "Nosferatu",
		MovieFile:   "nosferatu.mp4",
		Playlist:    p,
		ScheduledAt: at,
		Status:      model.StatusScheduled,
	}
}

func newHarness(t *testing.T, recs ...*model.SessionRecord) *harness {
	t.Helper()
	h := &harness{
		store:     newFakeStore(recs...),
		transport: newFakeTransport(),
		clock:     &fakeClock{now: time.Date(2026, 10, 14, 20, 0, 0, 0, time.UTC)},
	}
	h.engine = NewEngine(testConfig(), h.store, h.transport, WithClock(h.clock.Now))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		require.NoError(t, h.engine.Shutdown(ctx))
	})
	return h
}

// open hydrates id, failing the test on error.
func (h *harness) open(t *testing.T, id string) {
	t.Helper()
	_, err := h.engine.OpenVestibule(context.Background(), id)
	require.NoError(t, err)
}

func (h *harness) projectionist(t *testing.T, id string) *Projectionist {
	t.Helper()
	s, ok := h.engine.reg.Get(id)
	require.True(t, ok)
	var p *Projectionist
	h.engine.reg.withLock(func(map[string]*Session) { p = s.projectionist })
	require.NotNil(t, p)
	return p
}

func (h *harness) playback(t *testing.T, id string) PlaybackState {
	t.Helper()
	v, ok := h.engine.View(id)
	require.True(t, ok)
	return v.State
}

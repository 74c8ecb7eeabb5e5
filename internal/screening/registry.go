package screening

import (
	"sort"
	"sync"
	"time"
)

// Registry maps session ids to resident sessions.  Its mutex is the single
// lock guarding the map and every mutable field of every Session in it.
// Nothing that performs I/O or sleeps may run while it is held.
//
// Retired ids belong to sessions that were closed or deleted.  They can
// never be hydrated again, even while the store still reports an older
// status for them.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	retired  map[string]time.Time
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		retired:  make(map[string]time.Time),
	}
}

// Get returns the resident session with the given id.  Only the immutable
// fields of the returned value may be read without holding the lock.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// HydrateIfAbsent returns the resident session for id, building it with
// load when it is missing.  load runs without the lock held so it may hit
// the store.  When two callers race, the first insert wins and the second
// caller receives that instance; created is true only for the winner.
// Retired ids yield ErrSessionNotFound, including ids retired while load
// was running.
func (r *Registry) HydrateIfAbsent(id string, load func() (*Session, error)) (s *Session, created bool, err error) {
	r.mu.Lock()
	if s, ok := r.sessions[id]; ok {
		r.mu.Unlock()
		return s, false, nil
	}
	_, gone := r.retired[id]
	r.mu.Unlock()
	if gone {
		return nil, false, ErrSessionNotFound
	}

	fresh, err := load()
	if err != nil {
		return nil, false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.sessions[id]; ok {
		return existing, false, nil
	}
	if _, gone := r.retired[id]; gone {
		return nil, false, ErrSessionNotFound
	}
	r.sessions[id] = fresh
	residentSessions.Set(float64(len(r.sessions)))
	return fresh, true, nil
}

// Remove deletes id from the registry, stopping its projectionist and any
// pending countdown.  It returns the removed session.
func (r *Registry) Remove(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(id)
}

func (r *Registry) removeLocked(id string) (*Session, bool) {
	s, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	s.haltLocked()
	delete(r.sessions, id)
	residentSessions.Set(float64(len(r.sessions)))
	return s, true
}

// retireLocked removes id if resident and marks it retired as of at.
func (r *Registry) retireLocked(id string, at time.Time) (*Session, bool) {
	r.retired[id] = at
	return r.removeLocked(id)
}

// Retired reports whether id was closed or deleted.
func (r *Registry) Retired(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.retired[id]
	return ok
}

// pruneRetired forgets retired ids older than before, except those keep
// reports true for.  It returns how many were dropped.
func (r *Registry) pruneRetired(before time.Time, keep func(id string) bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, at := range r.retired {
		if at.Before(before) && !keep(id) {
			delete(r.retired, id)
			n++
		}
	}
	return n
}

// Len returns the number of resident sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// IDs returns the resident session ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// withLock runs fn while holding the registry lock.
func (r *Registry) withLock(fn func(sessions map[string]*Session)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r.sessions)
}

// update runs fn on the resident session id under the lock.  It reports
// false when the session is not resident.
func (r *Registry) update(id string, fn func(s *Session)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return false
	}
	fn(s)
	return true
}

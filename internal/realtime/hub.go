// Package realtime is the websocket transport of the screening rooms.  The
// Hub implements screening.Transport: every outbound call only queues a
// frame on a buffered per-connection channel, so the engine can call it
// while holding its registry lock.
package realtime

import (
	"encoding/json"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	xlog "github.com/iliyamo/cinema-screening-room/internal/log"
)

const sendBuffer = 64

var (
	connectionsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "screening_ws_connections",
		Help: "Open websocket connections",
	})
	framesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "screening_ws_frames_dropped_total",
		Help: "Outbound frames dropped because a connection was slow or gone",
	})
)

// Frame is the wire envelope in both directions.
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type client struct {
	id      string
	admin   bool
	send    chan Frame
	done    chan struct{}
	closing sync.Once
}

func (c *client) close() {
	c.closing.Do(func() { close(c.done) })
}

// enqueue never blocks.  A full buffer drops the frame; the next sync pulse
// or an explicit state request brings the client back in line.
func (c *client) enqueue(f Frame) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- f:
		return true
	default:
		return false
	}
}

// Hub tracks connections and the rooms they are subscribed to.
type Hub struct {
	mu     sync.Mutex
	conns  map[string]*client
	rooms  map[string]map[string]*client
	logger zerolog.Logger
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{
		conns:  make(map[string]*client),
		rooms:  make(map[string]map[string]*client),
		logger: xlog.WithComponent("realtime"),
	}
}

func (h *Hub) register(id string, admin bool) *client {
	c := &client{
		id:    id,
		admin: admin,
		send:  make(chan Frame, sendBuffer),
		done:  make(chan struct{}),
	}
	h.mu.Lock()
	h.conns[id] = c
	h.mu.Unlock()
	connectionsOpen.Inc()
	return c
}

func (h *Hub) unregister(id string) {
	h.mu.Lock()
	c, ok := h.conns[id]
	if ok {
		delete(h.conns, id)
		for key, members := range h.rooms {
			delete(members, id)
			if len(members) == 0 {
				delete(h.rooms, key)
			}
		}
	}
	h.mu.Unlock()
	if ok {
		c.close()
		connectionsOpen.Dec()
	}
}

// Broadcast queues event for every connection subscribed to room.
func (h *Hub) Broadcast(room, event string, payload any) {
	f, ok := h.frame(event, payload)
	if !ok {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.rooms[room] {
		if !c.enqueue(f) {
			framesDropped.Inc()
		}
	}
}

// SendTo queues event for one connection.
func (h *Hub) SendTo(connID, event string, payload any) {
	f, ok := h.frame(event, payload)
	if !ok {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.conns[connID]; ok {
		if !c.enqueue(f) {
			framesDropped.Inc()
		}
	}
}

// Subscribe adds connID to room.  Unknown connections are ignored.
func (h *Hub) Subscribe(connID, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.conns[connID]
	if !ok {
		return
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[string]*client)
		h.rooms[room] = members
	}
	members[connID] = c
}

// Unsubscribe removes connID from room.
func (h *Hub) Unsubscribe(connID, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members, ok := h.rooms[room]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// Disconnect asks the connection to close once its queued frames are
// written.  It returns immediately.
func (h *Hub) Disconnect(connID string) {
	h.mu.Lock()
	c, ok := h.conns[connID]
	h.mu.Unlock()
	if ok {
		c.close()
	}
}

// CloseAll asks every connection to close after flushing its queue.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.conns {
		c.close()
	}
}

// RoomSize returns the number of connections subscribed to room.
func (h *Hub) RoomSize(room string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[room])
}

// Len returns the number of registered connections.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

func (h *Hub) frame(event string, payload any) (Frame, bool) {
	raw, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error().Err(err).Str(xlog.FieldEvent, event).Msg("failed to marshal frame payload")
		return Frame{}, false
	}
	return Frame{Type: event, Payload: raw}, true
}

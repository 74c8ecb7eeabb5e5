package realtime

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/net/websocket"

	xlog "github.com/iliyamo/cinema-screening-room/internal/log"
	"github.com/iliyamo/cinema-screening-room/internal/screening"
)

const (
	maxFramePayloadBytes   = 16 << 10
	maxFramesPerSecond     = 20
	maxDecodeErrorsPerConn = 5
	writeTimeout           = 10 * time.Second
)

// Inbound frame types.
const (
	FrameJoin             = "join"
	FrameSetUsername      = "set_username"
	FrameChatMessage      = "chat_message"
	FrameRequestStateSync = "request_state_sync"
	FrameAdminAction      = "admin_action"
	FrameError            = "error"
)

// Engine is the part of the screening engine the socket server drives.
type Engine interface {
	Join(connID string, req screening.JoinRequest) error
	Chat(connID string, req screening.ChatRequest) bool
	RequestStateSync(connID, sessionID string) bool
	ApplyAdminAction(a screening.AdminAction) error
	Disconnect(connID string)
}

// Authorizer reports whether the upgrading request carries administrative
// credentials.
type Authorizer func(r *http.Request) bool

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type syncRequest struct {
	SessionID string `json:"session_id"`
}

// Server upgrades HTTP requests to websocket connections and feeds their
// frames to the engine.
type Server struct {
	hub       *Hub
	engine    Engine
	authorize Authorizer
	logger    zerolog.Logger
	ws        websocket.Handler
}

// NewServer builds a server.  A nil authorizer treats every connection as a
// viewer.
func NewServer(hub *Hub, engine Engine, authorize Authorizer) *Server {
	if authorize == nil {
		authorize = func(*http.Request) bool { return false }
	}
	s := &Server{
		hub:       hub,
		engine:    engine,
		authorize: authorize,
		logger:    xlog.WithComponent("realtime"),
	}
	s.ws = websocket.Handler(s.serveConn)
	return s
}

// ServeHTTP accepts only GET upgrades.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.ws.ServeHTTP(w, r)
}

func (s *Server) serveConn(conn *websocket.Conn) {
	conn.MaxPayloadBytes = maxFramePayloadBytes

	id := uuid.NewString()
	admin := s.authorize(conn.Request())
	c := s.hub.register(id, admin)
	if admin {
		s.hub.Subscribe(id, screening.AdminRoom)
	}
	logger := s.logger.With().Str(xlog.FieldConnID, id).Bool("admin", admin).Logger()
	logger.Debug().Msg("connection opened")

	written := make(chan struct{})
	go func() {
		defer close(written)
		s.writeLoop(conn, c)
	}()

	s.readLoop(conn, c, logger)

	c.close()
	s.engine.Disconnect(id)
	s.hub.unregister(id)
	<-written
	_ = conn.Close()
	logger.Debug().Msg("connection closed")
}

// writeLoop is the only writer of conn.  After close it flushes what is
// already queued, then closes the socket so the read loop unblocks.
func (s *Server) writeLoop(conn *websocket.Conn, c *client) {
	enc := json.NewEncoder(conn)
	write := func(f Frame) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		return enc.Encode(f) == nil
	}
	for {
		select {
		case f := <-c.send:
			if !write(f) {
				c.close()
				_ = conn.Close()
				return
			}
		case <-c.done:
			for {
				select {
				case f := <-c.send:
					if !write(f) {
						_ = conn.Close()
						return
					}
				default:
					_ = conn.Close()
					return
				}
			}
		}
	}
}

func (s *Server) readLoop(conn *websocket.Conn, c *client, logger zerolog.Logger) {
	dec := json.NewDecoder(conn)
	windowStart := time.Now()
	framesInWindow := 0
	decodeErrors := 0

	for {
		var frame Frame
		if err := dec.Decode(&frame); err != nil {
			if errors.Is(err, io.EOF) || isClosed(c) {
				return
			}
			var syntax *json.SyntaxError
			if !errors.As(err, &syntax) {
				// Transport level failure; the decoder cannot recover.
				return
			}
			decodeErrors++
			s.sendError(c, "INVALID_ARGUMENT", "invalid frame")
			if decodeErrors >= maxDecodeErrorsPerConn {
				return
			}
			dec = json.NewDecoder(conn)
			continue
		}
		decodeErrors = 0

		now := time.Now()
		if now.Sub(windowStart) >= time.Second {
			windowStart = now
			framesInWindow = 0
		}
		framesInWindow++
		if framesInWindow > maxFramesPerSecond {
			s.sendError(c, "RESOURCE_EXHAUSTED", "rate limit exceeded")
			logger.Warn().Msg("frame rate exceeded, closing")
			return
		}

		s.dispatch(c, frame, logger)
	}
}

func (s *Server) dispatch(c *client, frame Frame, logger zerolog.Logger) {
	switch frame.Type {
	case FrameJoin, FrameSetUsername:
		var req screening.JoinRequest
		if !s.decode(c, frame, &req) {
			return
		}
		if strings.TrimSpace(req.SessionID) == "" {
			s.sendError(c, "INVALID_ARGUMENT", "session_id is required")
			return
		}
		if err := s.engine.Join(c.id, req); errors.Is(err, screening.ErrInvalidRoom) {
			s.sendError(c, "INVALID_ARGUMENT", "room_type must be vestibule or watch_room")
		}
	case FrameChatMessage:
		var req screening.ChatRequest
		if !s.decode(c, frame, &req) {
			return
		}
		s.engine.Chat(c.id, req)
	case FrameRequestStateSync:
		var req syncRequest
		if !s.decode(c, frame, &req) {
			return
		}
		s.engine.RequestStateSync(c.id, req.SessionID)
	case FrameAdminAction:
		if !c.admin {
			s.sendError(c, "FORBIDDEN", "admin privileges required")
			return
		}
		var a screening.AdminAction
		if !s.decode(c, frame, &a) {
			return
		}
		if err := s.engine.ApplyAdminAction(a); err != nil {
			logger.Debug().Err(err).Str(xlog.FieldAction, a.Action).Str(xlog.FieldSessionID, a.SessionID).Msg("admin action not applied")
			s.sendError(c, "FAILED_PRECONDITION", err.Error())
		}
	default:
		s.sendError(c, "INVALID_ARGUMENT", "unsupported frame type")
	}
}

func (s *Server) decode(c *client, frame Frame, v any) bool {
	if len(frame.Payload) == 0 {
		s.sendError(c, "INVALID_ARGUMENT", "payload is required")
		return false
	}
	if err := json.Unmarshal(frame.Payload, v); err != nil {
		s.sendError(c, "INVALID_ARGUMENT", "invalid "+frame.Type+" payload")
		return false
	}
	return true
}

func (s *Server) sendError(c *client, code, message string) {
	s.hub.SendTo(c.id, FrameError, errorPayload{Code: code, Message: message})
}

func isClosed(c *client) bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

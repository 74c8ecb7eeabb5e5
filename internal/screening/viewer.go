package screening

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	xlog "github.com/iliyamo/cinema-screening-room/internal/log"
)

var (
	ErrBanned      = errors.New("display name is banned from this session")
	ErrInvalidRoom = errors.New("invalid room type")
	ErrNotMember   = errors.New("connection is not in this room")
)

// JoinRequest is the payload of a join event.
type JoinRequest struct {
	SessionID string   `json:"session_id"`
	RoomType  RoomType `json:"room_type"`
	Username  string   `json:"username"`
}

// ChatRequest is the payload of a chat_message event.
type ChatRequest struct {
	SessionID string   `json:"session_id"`
	RoomType  RoomType `json:"room_type"`
	Message   string   `json:"message"`
}

// Join places connID in one room of a session.  A connection sits in at
// most one room of a session, so joining moves it out of the other one.
// Banned names get a join_rejected reply and ErrBanned.
func (e *Engine) Join(connID string, req JoinRequest) error {
	if !req.RoomType.Valid() {
		return ErrInvalidRoom
	}
	name := NormalizeName(req.Username)
	now := e.now()

	var err error
	e.reg.withLock(func(sessions map[string]*Session) {
		s, ok := sessions[req.SessionID]
		if !ok {
			e.transport.SendTo(connID, EventForceDisconnect, ReasonPayload{Reason: "session_not_found"})
			err = ErrSessionNotFound
			return
		}
		if s.isBanned(name) {
			e.transport.SendTo(connID, EventJoinRejected, ReasonPayload{Reason: "banned"})
			err = ErrBanned
			return
		}

		if prev, prevName, ok := s.removeMember(connID, now); ok {
			prevKey := RoomKey(s.ID, prev)
			e.transport.Unsubscribe(connID, prevKey)
			if prev != req.RoomType {
				e.transport.Broadcast(prevKey, EventSystemMessage, SystemMessagePayload{Text: fmt.Sprintf("%s left.", prevName)})
			}
		}

		key := RoomKey(s.ID, req.RoomType)
		e.transport.Broadcast(key, EventSystemMessage, SystemMessagePayload{Text: fmt.Sprintf("%s joined.", name)})
		e.transport.Subscribe(connID, key)
		s.addMember(req.RoomType, connID, name)

		e.transport.SendTo(connID, EventInitialState, InitialState{
			MySID:       connID,
			MyUsername:  name,
			Room:        req.RoomType,
			ChatHistory: s.history(req.RoomType),
			State:       s.playback,
			Playlist:    s.Playlist,
			Moderation:  s.moderation(),
		})
		e.broadcastModerationLocked(s)
	})
	if err != nil {
		e.logger.Debug().Err(err).Str(xlog.FieldSessionID, req.SessionID).Str(xlog.FieldConnID, connID).Str(xlog.FieldUsername, name).Msg("join refused")
		return err
	}
	e.logger.Debug().
		Str(xlog.FieldSessionID, req.SessionID).
		Str(xlog.FieldConnID, connID).
		Str(xlog.FieldRoom, string(req.RoomType)).
		Str(xlog.FieldUsername, name).
		Msg("joined")
	return nil
}

// Chat appends a message to the sender's room log and broadcasts it.  It
// reports false when the message was dropped: empty text, chat disabled,
// sender not in that room, muted or banned.
func (e *Engine) Chat(connID string, req ChatRequest) bool {
	text := truncateRunes(strings.TrimSpace(req.Message), maxMessageRunes)
	if text == "" || !req.RoomType.Valid() {
		return false
	}
	now := e.now()

	var accepted bool
	e.reg.withLock(func(sessions map[string]*Session) {
		s, ok := sessions[req.SessionID]
		if !ok || !s.playback.ChatEnabled {
			return
		}
		name, ok := s.members[req.RoomType][connID]
		if !ok || s.isMuted(name) || s.isBanned(name) {
			return
		}
		msg := ChatMessage{
			ID:        uuid.NewString(),
			SID:       connID,
			Username:  name,
			Text:      text,
			Timestamp: now.UTC(),
		}
		s.chat[req.RoomType] = append(s.chat[req.RoomType], msg)
		e.transport.Broadcast(RoomKey(s.ID, req.RoomType), EventNewMessage, msg)
		accepted = true
	})

	if accepted {
		chatMessagesTotal.WithLabelValues("accepted").Inc()
	} else {
		chatMessagesTotal.WithLabelValues("dropped").Inc()
	}
	return accepted
}

// RequestStateSync sends the current playback state to connID only.
func (e *Engine) RequestStateSync(connID, sessionID string) bool {
	var ok bool
	e.reg.withLock(func(sessions map[string]*Session) {
		var s *Session
		if s, ok = sessions[sessionID]; ok {
			e.transport.SendTo(connID, EventStateChange, s.playback)
		}
	})
	return ok
}

// Disconnect removes connID from every room it occupies and announces the
// departure.  The idle clock of a session starts when its last member leaves.
func (e *Engine) Disconnect(connID string) {
	now := e.now()
	var left []string
	e.reg.withLock(func(sessions map[string]*Session) {
		for _, s := range sessions {
			room, name, ok := s.removeMember(connID, now)
			if !ok {
				continue
			}
			key := RoomKey(s.ID, room)
			e.transport.Unsubscribe(connID, key)
			e.transport.Broadcast(key, EventSystemMessage, SystemMessagePayload{Text: fmt.Sprintf("%s left.", name)})
			e.broadcastModerationLocked(s)
			left = append(left, s.ID)
		}
	})
	for _, id := range left {
		e.logger.Debug().Str(xlog.FieldSessionID, id).Str(xlog.FieldConnID, connID).Msg("left")
	}
}

// broadcastModerationLocked pushes the moderation lists and rosters to both
// rooms and the admin observers.
func (e *Engine) broadcastModerationLocked(s *Session) {
	m := s.moderation()
	for _, room := range roomTypes {
		e.transport.Broadcast(RoomKey(s.ID, room), EventUserListUpdate, m)
	}
	e.transport.Broadcast(AdminRoom, EventAdminPanelUpdate, AdminPanelPayload{SessionID: s.ID, Status: s.playback.Status})
}

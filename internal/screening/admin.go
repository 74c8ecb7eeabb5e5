package screening

import (
	"errors"
	"fmt"

	xlog "github.com/iliyamo/cinema-screening-room/internal/log"
	"github.com/iliyamo/cinema-screening-room/internal/model"
)

// Admin action names.
const (
	ActionForceStart    = "force_start"
	ActionStateChange   = "state_change"
	ActionToggleChat    = "toggle_chat"
	ActionMuteUser      = "mute_user"
	ActionUnmuteUser    = "unmute_user"
	ActionBanUser       = "ban_user"
	ActionUnbanUser     = "unban_user"
	ActionDeleteMessage = "delete_message"
)

// Precondition failures.  They are expected when several triggers race and
// callers log them instead of failing.
var (
	ErrNotVestibule      = errors.New("session is not in vestibule")
	ErrInvalidTransition = errors.New("session is not active")
	ErrUnknownUser       = errors.New("unknown user")
	ErrUnknownAction     = errors.New("unknown admin action")
	ErrMessageNotFound   = errors.New("message not found")
	ErrInvalidState      = errors.New("state patch out of range")
)

// StatePatch carries the playback fields an administrator may set.
type StatePatch struct {
	Playing           *bool `json:"playing,omitempty"`
	Time              *int  `json:"time,omitempty"`
	CurrentVideoIndex *int  `json:"current_video_index,omitempty"`
}

// AdminAction is the payload of an admin_action event.
type AdminAction struct {
	SessionID string      `json:"session_id"`
	Action    string      `json:"action"`
	RoomType  RoomType    `json:"room_type,omitempty"`
	Username  string      `json:"username,omitempty"`
	SID       string      `json:"sid,omitempty"`
	MessageID string      `json:"message_id,omitempty"`
	State     *StatePatch `json:"state,omitempty"`
}

// ApplyAdminAction executes one moderation or playback command.  The caller
// must have checked administrative privilege.
func (e *Engine) ApplyAdminAction(a AdminAction) error {
	logger := e.logger.With().Str(xlog.FieldSessionID, a.SessionID).Str(xlog.FieldAction, a.Action).Logger()

	if a.Action == ActionForceStart {
		if _, ok := e.reg.Get(a.SessionID); !ok {
			return ErrSessionNotFound
		}
		if !e.Promote(a.SessionID) {
			return ErrNotVestibule
		}
		logger.Info().Msg("projection started by admin")
		return nil
	}

	var err error
	found := e.reg.update(a.SessionID, func(s *Session) {
		switch a.Action {
		case ActionStateChange:
			err = e.patchStateLocked(s, a.State)
		case ActionToggleChat:
			e.toggleChatLocked(s)
		case ActionMuteUser, ActionUnmuteUser:
			err = e.setMutedLocked(s, NormalizeName(a.Username), a.Action == ActionMuteUser)
		case ActionBanUser:
			err = e.banLocked(s, a)
		case ActionUnbanUser:
			err = e.unbanLocked(s, NormalizeName(a.Username))
		case ActionDeleteMessage:
			err = e.deleteMessageLocked(s, a.RoomType, a.MessageID)
		default:
			err = ErrUnknownAction
		}
	})
	if !found {
		return ErrSessionNotFound
	}
	if err != nil {
		logger.Debug().Err(err).Msg("admin action ignored")
		return err
	}
	logger.Info().Msg("admin action applied")
	return nil
}

func (e *Engine) patchStateLocked(s *Session, patch *StatePatch) error {
	if s.playback.Status != model.StatusActive {
		return ErrInvalidTransition
	}
	if patch == nil {
		return ErrInvalidState
	}
	next := s.playback
	if patch.CurrentVideoIndex != nil {
		if *patch.CurrentVideoIndex < 0 || *patch.CurrentVideoIndex >= len(s.Playlist) {
			return ErrInvalidState
		}
		next.CurrentVideoIndex = *patch.CurrentVideoIndex
	}
	if patch.Time != nil {
		d, _ := s.Playlist.DurationAt(next.CurrentVideoIndex)
		if *patch.Time < 0 || *patch.Time >= d {
			return ErrInvalidState
		}
		next.Time = *patch.Time
	}
	if patch.Playing != nil {
		next.Playing = *patch.Playing
	}
	s.playback = next
	e.transport.Broadcast(RoomKey(s.ID, RoomWatch), EventStateChange, s.playback)
	return nil
}

func (e *Engine) toggleChatLocked(s *Session) {
	s.playback.ChatEnabled = !s.playback.ChatEnabled
	verb := "disabled"
	if s.playback.ChatEnabled {
		verb = "enabled"
	}
	for _, room := range roomTypes {
		key := RoomKey(s.ID, room)
		e.transport.Broadcast(key, EventChatStateChange, ChatStatePayload{ChatEnabled: s.playback.ChatEnabled})
		e.transport.Broadcast(key, EventSystemMessage, SystemMessagePayload{Text: "An administrator has " + verb + " the chat."})
	}
}

// setMutedLocked mutes or unmutes a name.  Muting only blocks future
// messages; the log is left as it is.
func (e *Engine) setMutedLocked(s *Session, name string, mute bool) error {
	if mute {
		if !s.knows(name) {
			return ErrUnknownUser
		}
		s.muted[name] = struct{}{}
		e.announceLocked(s, fmt.Sprintf("%s has been muted by an administrator.", name))
	} else {
		if !s.isMuted(name) {
			return ErrUnknownUser
		}
		delete(s.muted, name)
		e.announceLocked(s, fmt.Sprintf("%s can chat again.", name))
	}
	e.broadcastModerationLocked(s)
	return nil
}

// banLocked bans a display name and ejects every connection using it.  The
// name may come on its own or be resolved from a connection id.
func (e *Engine) banLocked(s *Session, a AdminAction) error {
	name := ""
	if a.Username != "" {
		name = NormalizeName(a.Username)
	} else if a.SID != "" {
		if _, n, ok := s.membership(a.SID); ok {
			name = n
		}
	}
	if name == "" {
		return ErrUnknownUser
	}
	s.banned[name] = struct{}{}

	targets := s.connsNamed(name)
	if a.SID != "" {
		if room, _, ok := s.membership(a.SID); ok {
			targets[a.SID] = room
		}
	}
	for connID, room := range targets {
		e.transport.SendTo(connID, EventForceDisconnect, ReasonPayload{Reason: "banned"})
		delete(s.members[room], connID)
		e.transport.Unsubscribe(connID, RoomKey(s.ID, room))
		e.transport.Disconnect(connID)
	}
	if s.empty() && s.emptySince.IsZero() {
		s.emptySince = e.now()
	}
	e.announceLocked(s, fmt.Sprintf("%s has been banned by an administrator.", name))
	e.broadcastModerationLocked(s)
	return nil
}

func (e *Engine) unbanLocked(s *Session, name string) error {
	if !s.isBanned(name) {
		return ErrUnknownUser
	}
	delete(s.banned, name)
	e.broadcastModerationLocked(s)
	return nil
}

// deleteMessageLocked removes one message by id.  A second delete of the same
// id returns ErrMessageNotFound and broadcasts nothing.
func (e *Engine) deleteMessageLocked(s *Session, room RoomType, id string) error {
	rooms := roomTypes[:]
	if room != "" {
		if !room.Valid() {
			return ErrInvalidRoom
		}
		rooms = []RoomType{room}
	}
	for _, r := range rooms {
		if s.deleteMessage(r, id) {
			e.transport.Broadcast(RoomKey(s.ID, r), EventMessageDeleted, MessageDeletedPayload{ID: id})
			return nil
		}
	}
	return ErrMessageNotFound
}

func (e *Engine) announceLocked(s *Session, text string) {
	for _, room := range roomTypes {
		e.transport.Broadcast(RoomKey(s.ID, room), EventSystemMessage, SystemMessagePayload{Text: text})
	}
}

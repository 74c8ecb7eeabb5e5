package screening

import "github.com/iliyamo/cinema-screening-room/internal/model"

// AdminRoom is the transport room administrator panels subscribe to.
const AdminRoom = "admin"

// Outbound event names.
const (
	EventForceStartProjection = "force_start_projection"
	EventPlaybackStarting     = "playback_starting"
	EventStateChange          = "state_change"
	EventPlayNextVideo        = "play_next_video"
	EventSessionFinished      = "session_finished"
	EventSyncPulse            = "sync_pulse"
	EventAdminPanelUpdate     = "admin_panel_update"
	EventInitialState         = "initial_state"
	EventSystemMessage        = "system_message"
	EventNewMessage           = "new_message"
	EventChatStateChange      = "chat_state_change"
	EventMessageDeleted       = "message_deleted"
	EventUserListUpdate       = "user_list_update"
	EventForceDisconnect      = "force_disconnect"
	EventJoinRejected         = "join_rejected"
)

type CountdownPayload struct {
	Countdown int `json:"countdown"`
}

type NextVideoPayload struct {
	State PlaybackState `json:"state"`
}

type SyncPulsePayload struct {
	Time int `json:"time"`
}

type SessionFinishedPayload struct {
	SessionID string `json:"session_id"`
}

// AdminPanelPayload tells panels to refresh.  Status is empty after a delete.
type AdminPanelPayload struct {
	SessionID string       `json:"session_id"`
	Status    model.Status `json:"status,omitempty"`
}

type SystemMessagePayload struct {
	Text string `json:"text"`
}

type ChatStatePayload struct {
	ChatEnabled bool `json:"chat_enabled"`
}

type MessageDeletedPayload struct {
	ID string `json:"id"`
}

type ReasonPayload struct {
	Reason string `json:"reason"`
}

// ModerationState lists muted and banned names plus the roster of each room.
type ModerationState struct {
	Muted  []string              `json:"muted"`
	Banned []string              `json:"banned"`
	Users  map[RoomType][]string `json:"users"`
}

// InitialState is the snapshot sent to a connection after it joins.
type InitialState struct {
	MySID       string          `json:"my_sid"`
	MyUsername  string          `json:"my_username"`
	Room        RoomType        `json:"room_type"`
	ChatHistory []ChatMessage   `json:"chat_history"`
	State       PlaybackState   `json:"state"`
	Playlist    model.Playlist  `json:"playlist"`
	Moderation  ModerationState `json:"moderation"`
}

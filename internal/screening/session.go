package screening

import (
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/iliyamo/cinema-screening-room/internal/model"
)

// RoomType selects one of the two rooms of a session.
type RoomType string

const (
	RoomVestibule RoomType = "vestibule"  // pre-show waiting area
	RoomWatch     RoomType = "watch_room" // synchronized viewing room
)

var roomTypes = [...]RoomType{RoomVestibule, RoomWatch}

// Valid reports whether r names one of the two rooms.
func (r RoomType) Valid() bool {
	return r == RoomVestibule || r == RoomWatch
}

// RoomKey is the transport room a connection subscribes to.  The viewing
// room uses the bare session id.
func RoomKey(sessionID string, room RoomType) string {
	if room == RoomVestibule {
		return sessionID + ":preshow"
	}
	return sessionID
}

const (
	maxNameRunes    = 25
	maxMessageRunes = 500
	defaultName     = "Anonymous"
)

// NormalizeName trims a display name and caps it at 25 characters.
func NormalizeName(raw string) string {
	name := strings.TrimSpace(raw)
	if name == "" {
		return defaultName
	}
	return strings.TrimSpace(truncateRunes(name, maxNameRunes))
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// PlaybackState is the in-memory playback clock of a session.  Time is the
// elapsed seconds inside the current clip.
type PlaybackState struct {
	Status            model.Status `json:"status"`
	Playing           bool         `json:"playing"`
	Time              int          `json:"time"`
	CurrentVideoIndex int          `json:"current_video_index"`
	ChatEnabled       bool         `json:"chat_enabled"`
}

// ChatMessage is one entry of a room chat log.  SID is the sender's
// connection id.
type ChatMessage struct {
	ID        string    `json:"id"`
	SID       string    `json:"sid"`
	Username  string    `json:"username"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is the resident aggregate for one screening.  The exported fields
// are fixed at hydration; everything else is guarded by the registry lock.
type Session struct {
	ID          string
	MovieTitle  string
	MediaFile   string
	PosterFile  string
	Playlist    model.Playlist
	ScheduledAt time.Time

	playback      PlaybackState
	members       map[RoomType]map[string]string // connID -> display name
	chat          map[RoomType][]ChatMessage
	muted         map[string]struct{}
	banned        map[string]struct{}
	emptySince    time.Time // zero while any room has members
	finishedSince time.Time

	projectionist *Projectionist
	countdown     *time.Timer
}

func newSession(rec *model.SessionRecord, now time.Time) *Session {
	playlist := make(model.Playlist, len(rec.Playlist))
	copy(playlist, rec.Playlist)
	return &Session{
		ID:          rec.ID,
		MovieTitle:  rec.MovieTitle,
		MediaFile:   rec.MovieFile,
		PosterFile:  rec.PosterFile,
		Playlist:    playlist,
		ScheduledAt: rec.ScheduledAt,
		playback: PlaybackState{
			Status:      model.StatusVestibule,
			ChatEnabled: true,
		},
		members: map[RoomType]map[string]string{
			RoomVestibule: {},
			RoomWatch:     {},
		},
		chat: map[RoomType][]ChatMessage{
			RoomVestibule: {},
			RoomWatch:     {},
		},
		muted:      map[string]struct{}{},
		banned:     map[string]struct{}{},
		emptySince: now,
	}
}

// membership returns the room and name of connID within this session.
func (s *Session) membership(connID string) (RoomType, string, bool) {
	for _, room := range roomTypes {
		if name, ok := s.members[room][connID]; ok {
			return room, name, true
		}
	}
	return "", "", false
}

func (s *Session) addMember(room RoomType, connID, name string) {
	s.members[room][connID] = name
	s.emptySince = time.Time{}
}

// removeMember drops connID from whichever room holds it and starts the idle
// clock when both rooms are left empty.
func (s *Session) removeMember(connID string, now time.Time) (RoomType, string, bool) {
	room, name, ok := s.membership(connID)
	if !ok {
		return "", "", false
	}
	delete(s.members[room], connID)
	if s.empty() && s.emptySince.IsZero() {
		s.emptySince = now
	}
	return room, name, true
}

// connsNamed returns every connection using name, with its room.
func (s *Session) connsNamed(name string) map[string]RoomType {
	out := map[string]RoomType{}
	for _, room := range roomTypes {
		for connID, n := range s.members[room] {
			if n == name {
				out[connID] = room
			}
		}
	}
	return out
}

func (s *Session) empty() bool {
	return len(s.members[RoomVestibule]) == 0 && len(s.members[RoomWatch]) == 0
}

// knows reports whether name is present in a room or authored a message.
func (s *Session) knows(name string) bool {
	if len(s.connsNamed(name)) > 0 {
		return true
	}
	for _, room := range roomTypes {
		for _, m := range s.chat[room] {
			if m.Username == name {
				return true
			}
		}
	}
	return false
}

func (s *Session) isMuted(name string) bool {
	_, ok := s.muted[name]
	return ok
}

func (s *Session) isBanned(name string) bool {
	_, ok := s.banned[name]
	return ok
}

func (s *Session) history(room RoomType) []ChatMessage {
	out := make([]ChatMessage, len(s.chat[room]))
	copy(out, s.chat[room])
	return out
}

// deleteMessage removes the message with id from room and reports whether it
// was present.
func (s *Session) deleteMessage(room RoomType, id string) bool {
	log := s.chat[room]
	for i, m := range log {
		if m.ID == id {
			s.chat[room] = append(log[:i:i], log[i+1:]...)
			return true
		}
	}
	return false
}

func (s *Session) moderation() ModerationState {
	users := map[RoomType][]string{}
	for _, room := range roomTypes {
		names := make([]string, 0, len(s.members[room]))
		for _, n := range s.members[room] {
			names = append(names, n)
		}
		sort.Strings(names)
		users[room] = names
	}
	return ModerationState{
		Muted:  sortedKeys(s.muted),
		Banned: sortedKeys(s.banned),
		Users:  users,
	}
}

// haltLocked stops the projectionist and the pending countdown.
func (s *Session) haltLocked() {
	if s.projectionist != nil {
		s.projectionist.Stop()
	}
	if s.countdown != nil {
		s.countdown.Stop()
		s.countdown = nil
	}
}

func (s *Session) view(now time.Time) SessionView {
	secs := int(s.ScheduledAt.Sub(now).Seconds())
	if secs < 0 {
		secs = 0
	}
	return SessionView{
		ID:             s.ID,
		MovieTitle:     s.MovieTitle,
		PosterFile:     s.PosterFile,
		ScheduledAt:    s.ScheduledAt,
		State:          s.playback,
		SecondsToStart: secs,
		VestibuleCount: len(s.members[RoomVestibule]),
		WatchCount:     len(s.members[RoomWatch]),
	}
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// SessionView is a point-in-time copy of a resident session, safe to use
// without the lock.
type SessionView struct {
	ID             string        `json:"id"`
	MovieTitle     string        `json:"movie_title"`
	PosterFile     string        `json:"poster_file,omitempty"`
	ScheduledAt    time.Time     `json:"scheduled_time"`
	State          PlaybackState `json:"state"`
	SecondsToStart int           `json:"time_to_start"`
	VestibuleCount int           `json:"user_count_vestibule"`
	WatchCount     int           `json:"user_count_watch_room"`
}

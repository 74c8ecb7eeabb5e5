package screening

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "Anonymous", NormalizeName("   "))
	assert.Equal(t, "ana", NormalizeName("  ana "))
	long := strings.Repeat("ñ", 40)
	assert.Equal(t, strings.Repeat("ñ", 25), NormalizeName(long))
}

func TestJoinSendsInitialStateAndAnnounces(t *testing.T) {
	h := newHarness(t, record("join0001", time.Date(2026, 10, 14, 20, 5, 0, 0, time.UTC)))
	h.open(t, "join0001")

	require.NoError(t, h.engine.Join("c1", JoinRequest{SessionID: "join0001", RoomType: RoomVestibule, Username: "ana"}))
	require.True(t, h.engine.Chat("c1", ChatRequest{SessionID: "join0001", RoomType: RoomVestibule, Message: "hola"}))
	require.NoError(t, h.engine.Join("c2", JoinRequest{SessionID: "join0001", RoomType: RoomVestibule, Username: "bea"}))

	var initial *InitialState
	for _, ev := range h.transport.named(EventInitialState) {
		if ev.Target == "c2" {
			st := ev.Payload.(InitialState)
			initial = &st
		}
	}
	require.NotNil(t, initial)
	assert.Equal(t, "c2", initial.MySID)
	assert.Equal(t, "bea", initial.MyUsername)
	require.Len(t, initial.ChatHistory, 1)
	assert.Equal(t, "hola", initial.ChatHistory[0].Text)
	assert.Len(t, initial.Playlist, 3)
	assert.Equal(t, []string{"ana", "bea"}, initial.Moderation.Users[RoomVestibule])

	assert.True(t, h.transport.subscribed("join0001:preshow", "c2"))
	assert.NotEmpty(t, h.transport.named(EventUserListUpdate))
}

func TestJoinMovesBetweenRooms(t *testing.T) {
	h := newHarness(t, record("move0001", time.Date(2026, 10, 14, 20, 5, 0, 0, time.UTC)))
	h.open(t, "move0001")

	require.NoError(t, h.engine.Join("c1", JoinRequest{SessionID: "move0001", RoomType: RoomVestibule, Username: "ana"}))
	require.NoError(t, h.engine.Join("c1", JoinRequest{SessionID: "move0001", RoomType: RoomWatch, Username: "ana"}))

	v, ok := h.engine.View("move0001")
	require.True(t, ok)
	assert.Equal(t, 0, v.VestibuleCount)
	assert.Equal(t, 1, v.WatchCount)
	assert.False(t, h.transport.subscribed("move0001:preshow", "c1"))
	assert.True(t, h.transport.subscribed("move0001", "c1"))
}

func TestJoinUnknownSession(t *testing.T) {
	h := newHarness(t)
	err := h.engine.Join("c1", JoinRequest{SessionID: "nope", RoomType: RoomWatch, Username: "ana"})
	assert.ErrorIs(t, err, ErrSessionNotFound)
	fd := h.transport.named(EventForceDisconnect)
	require.Len(t, fd, 1)
	assert.True(t, fd[0].Direct)

	assert.ErrorIs(t, h.engine.Join("c1", JoinRequest{SessionID: "nope", RoomType: "lobby"}), ErrInvalidRoom)
}

func TestBannedNameCannotJoin(t *testing.T) {
	h := newHarness(t, record("ban00001", time.Date(2026, 10, 14, 20, 5, 0, 0, time.UTC)))
	h.open(t, "ban00001")
	require.NoError(t, h.engine.Join("c1", JoinRequest{SessionID: "ban00001", RoomType: RoomWatch, Username: "troll"}))
	require.NoError(t, h.engine.Join("c2", JoinRequest{SessionID: "ban00001", RoomType: RoomVestibule, Username: "troll"}))

	require.NoError(t, h.engine.ApplyAdminAction(AdminAction{SessionID: "ban00001", Action: ActionBanUser, Username: "troll"}))
	assert.ElementsMatch(t, []string{"c1", "c2"}, h.transport.disconnected)
	v, _ := h.engine.View("ban00001")
	assert.Zero(t, v.VestibuleCount+v.WatchCount)

	for _, room := range []RoomType{RoomVestibule, RoomWatch} {
		err := h.engine.Join("c3", JoinRequest{SessionID: "ban00001", RoomType: room, Username: " troll "})
		assert.ErrorIs(t, err, ErrBanned)
	}
	rejected := h.transport.named(EventJoinRejected)
	require.Len(t, rejected, 2)
	assert.Equal(t, ReasonPayload{Reason: "banned"}, rejected[0].Payload)
	assert.Equal(t, "c3", rejected[0].Target)

	require.NoError(t, h.engine.ApplyAdminAction(AdminAction{SessionID: "ban00001", Action: ActionUnbanUser, Username: "troll"}))
	assert.NoError(t, h.engine.Join("c3", JoinRequest{SessionID: "ban00001", RoomType: RoomWatch, Username: "troll"}))
}

func TestChatDropRules(t *testing.T) {
	h := newHarness(t, record("chat0001", time.Date(2026, 10, 14, 20, 5, 0, 0, time.UTC)))
	h.open(t, "chat0001")
	require.NoError(t, h.engine.Join("c1", JoinRequest{SessionID: "chat0001", RoomType: RoomWatch, Username: "ana"}))

	msg := func(conn string, room RoomType, text string) bool {
		return h.engine.Chat(conn, ChatRequest{SessionID: "chat0001", RoomType: room, Message: text})
	}

	assert.True(t, msg("c1", RoomWatch, "hello"))
	assert.False(t, msg("c1", RoomWatch, "   "), "empty")
	assert.False(t, msg("c1", RoomVestibule, "wrong room"), "not registered in that room")
	assert.False(t, msg("ghost", RoomWatch, "who"), "unregistered")

	require.NoError(t, h.engine.ApplyAdminAction(AdminAction{SessionID: "chat0001", Action: ActionToggleChat}))
	assert.False(t, msg("c1", RoomWatch, "muted room"), "chat disabled")
	require.NoError(t, h.engine.ApplyAdminAction(AdminAction{SessionID: "chat0001", Action: ActionToggleChat}))
	assert.True(t, msg("c1", RoomWatch, "back"))

	sent := h.transport.named(EventNewMessage)
	require.Len(t, sent, 2)
	m := sent[0].Payload.(ChatMessage)
	assert.Equal(t, "ana", m.Username)
	assert.Equal(t, "c1", m.SID)
	assert.NotEmpty(t, m.ID)
	assert.Equal(t, "chat0001", sent[0].Target)

	cs := h.transport.named(EventChatStateChange)
	require.Len(t, cs, 4)
	assert.Equal(t, ChatStatePayload{ChatEnabled: false}, cs[0].Payload)
}

func TestMuteStopsNewMessagesOnly(t *testing.T) {
	h := newHarness(t, record("mute0001", time.Date(2026, 10, 14, 20, 5, 0, 0, time.UTC)))
	h.open(t, "mute0001")
	require.NoError(t, h.engine.Join("c1", JoinRequest{SessionID: "mute0001", RoomType: RoomWatch, Username: "ana"}))
	require.True(t, h.engine.Chat("c1", ChatRequest{SessionID: "mute0001", RoomType: RoomWatch, Message: "first"}))

	require.NoError(t, h.engine.ApplyAdminAction(AdminAction{SessionID: "mute0001", Action: ActionMuteUser, Username: "ana"}))
	assert.False(t, h.engine.Chat("c1", ChatRequest{SessionID: "mute0001", RoomType: RoomWatch, Message: "second"}))

	s, _ := h.engine.reg.Get("mute0001")
	h.engine.reg.withLock(func(map[string]*Session) {
		require.Len(t, s.chat[RoomWatch], 1)
		assert.Equal(t, "first", s.chat[RoomWatch][0].Text)
	})

	assert.ErrorIs(t, h.engine.ApplyAdminAction(AdminAction{SessionID: "mute0001", Action: ActionMuteUser, Username: "nobody"}), ErrUnknownUser)

	require.NoError(t, h.engine.ApplyAdminAction(AdminAction{SessionID: "mute0001", Action: ActionUnmuteUser, Username: "ana"}))
	assert.True(t, h.engine.Chat("c1", ChatRequest{SessionID: "mute0001", RoomType: RoomWatch, Message: "third"}))
}

func TestDeleteMessageIsIdempotent(t *testing.T) {
	h := newHarness(t, record("del00001", time.Date(2026, 10, 14, 20, 5, 0, 0, time.UTC)))
	h.open(t, "del00001")
	require.NoError(t, h.engine.Join("c1", JoinRequest{SessionID: "del00001", RoomType: RoomVestibule, Username: "ana"}))
	for _, text := range []string{"one", "two", "three"} {
		require.True(t, h.engine.Chat("c1", ChatRequest{SessionID: "del00001", RoomType: RoomVestibule, Message: text}))
	}
	target := h.transport.named(EventNewMessage)[1].Payload.(ChatMessage).ID

	del := AdminAction{SessionID: "del00001", Action: ActionDeleteMessage, RoomType: RoomVestibule, MessageID: target}
	require.NoError(t, h.engine.ApplyAdminAction(del))
	assert.ErrorIs(t, h.engine.ApplyAdminAction(del), ErrMessageNotFound)

	deleted := h.transport.named(EventMessageDeleted)
	require.Len(t, deleted, 1)
	assert.Equal(t, MessageDeletedPayload{ID: target}, deleted[0].Payload)
	assert.Equal(t, "del00001:preshow", deleted[0].Target)

	s, _ := h.engine.reg.Get("del00001")
	h.engine.reg.withLock(func(map[string]*Session) {
		var texts []string
		for _, m := range s.chat[RoomVestibule] {
			texts = append(texts, m.Text)
		}
		assert.Equal(t, []string{"one", "three"}, texts)
	})
}

func TestRequestStateSyncRepliesToCaller(t *testing.T) {
	h := newHarness(t, record("sync0001", time.Date(2026, 10, 14, 20, 5, 0, 0, time.UTC)))
	h.open(t, "sync0001")

	assert.True(t, h.engine.RequestStateSync("c9", "sync0001"))
	assert.False(t, h.engine.RequestStateSync("c9", "missing"))

	sc := h.transport.named(EventStateChange)
	require.Len(t, sc, 1)
	assert.True(t, sc[0].Direct)
	assert.Equal(t, "c9", sc[0].Target)
}

func TestDisconnectAnnouncesDeparture(t *testing.T) {
	h := newHarness(t, record("bye00001", time.Date(2026, 10, 14, 20, 5, 0, 0, time.UTC)))
	h.open(t, "bye00001")
	require.NoError(t, h.engine.Join("c1", JoinRequest{SessionID: "bye00001", RoomType: RoomWatch, Username: "ana"}))
	h.transport.reset()

	h.engine.Disconnect("c1")
	msgs := h.transport.named(EventSystemMessage)
	require.Len(t, msgs, 1)
	assert.Equal(t, SystemMessagePayload{Text: "ana left."}, msgs[0].Payload)
	assert.False(t, h.transport.subscribed("bye00001", "c1"))

	s, _ := h.engine.reg.Get("bye00001")
	h.engine.reg.withLock(func(map[string]*Session) {
		assert.Equal(t, h.clock.Now(), s.emptySince)
	})
}

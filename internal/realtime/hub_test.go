package realtime

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubBroadcastReachesRoomOnly(t *testing.T) {
	h := NewHub()
	a := h.register("a", false)
	b := h.register("b", false)
	h.Subscribe("a", "s1")
	h.Subscribe("b", "s1:preshow")

	h.Broadcast("s1", "sync_pulse", map[string]int{"time": 7})

	require.Len(t, a.send, 1)
	assert.Len(t, b.send, 0)
	f := <-a.send
	assert.Equal(t, "sync_pulse", f.Type)
	var p map[string]int
	require.NoError(t, json.Unmarshal(f.Payload, &p))
	assert.Equal(t, 7, p["time"])
}

func TestHubSendToAndUnsubscribe(t *testing.T) {
	h := NewHub()
	a := h.register("a", false)
	h.Subscribe("a", "s1")
	h.Unsubscribe("a", "s1")
	assert.Zero(t, h.RoomSize("s1"))

	h.Broadcast("s1", "x", nil)
	assert.Len(t, a.send, 0)

	h.SendTo("a", "state_change", struct{}{})
	h.SendTo("ghost", "state_change", struct{}{})
	assert.Len(t, a.send, 1)

	h.Subscribe("ghost", "s1")
	assert.Zero(t, h.RoomSize("s1"))
}

func TestHubNeverBlocksOnSlowClient(t *testing.T) {
	h := NewHub()
	a := h.register("a", false)
	h.Subscribe("a", "s1")
	for i := 0; i < sendBuffer*2; i++ {
		h.Broadcast("s1", "sync_pulse", i)
	}
	assert.Len(t, a.send, sendBuffer)
}

func TestHubDisconnectAndUnregister(t *testing.T) {
	h := NewHub()
	a := h.register("a", false)
	h.Subscribe("a", "s1")

	h.Disconnect("a")
	assert.True(t, isClosed(a))
	h.SendTo("a", "late", nil)
	assert.Len(t, a.send, 0, "closed clients get nothing new")

	h.unregister("a")
	assert.Zero(t, h.Len())
	assert.Zero(t, h.RoomSize("s1"))
	h.Disconnect("a")
}

func TestHubCloseAll(t *testing.T) {
	h := NewHub()
	a := h.register("a", false)
	b := h.register("b", true)
	h.CloseAll()
	assert.True(t, isClosed(a))
	assert.True(t, isClosed(b))
}

package websocket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"tracking-support-be/internal/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	h := NewHub(nil, logger.NewNopLogger())
	go h.Run(ctx)
	return h
}

func connect(t *testing.T, h *Hub, agentID string, watch ...string) *Client {
	t.Helper()
	c := newClient(h, nil, agentID)
	for _, s := range watch {
		c.handle([]byte(`{"action":"watch","session_id":"` + s + `"}`))
	}
	h.register <- c
	require.Eventually(t, func() bool {
		h.mu.RLock()
		defer h.mu.RUnlock()
		return h.clients[c]
	}, time.Second, 5*time.Millisecond)
	return c
}

func receive(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case raw := <-c.Send:
		var msg Message
		require.NoError(t, json.Unmarshal(raw, &msg))
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message delivered")
		return Message{}
	}
}

func TestHub_BroadcastReachesEveryConsole(t *testing.T) {
	h := startHub(t)
	a := connect(t, h, "agent-a")
	b := connect(t, h, "agent-b", "s1")

	h.Broadcast(Message{Type: TypeEscalation, SessionID: "s1", Data: "handoff"})

	assert.Equal(t, TypeEscalation, receive(t, a).Type)
	assert.Equal(t, TypeEscalation, receive(t, b).Type)
}

func TestHub_TurnUpdatesOnlyReachWatchers(t *testing.T) {
	h := startHub(t)
	watcher := connect(t, h, "agent-a", "s1")
	other := connect(t, h, "agent-b", "s2")

	h.SendToWatchers("s1", Message{Type: TypeTurn, SessionID: "s1"})

	assert.Equal(t, "s1", receive(t, watcher).SessionID)
	assert.Empty(t, other.Send)
}

func TestClient_WatchCommands(t *testing.T) {
	c := newClient(nil, nil, "agent")

	c.handle([]byte(`{"action":"watch","session_id":"s1"}`))
	assert.True(t, c.Watching("s1"))

	c.handle([]byte(`{"action":"unwatch","session_id":"s1"}`))
	assert.False(t, c.Watching("s1"))

	c.handle([]byte(`not json`))
	assert.False(t, c.Watching("s1"))
}

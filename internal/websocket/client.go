package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// command is what a console may send: {"action":"watch","session_id":"..."}
type command struct {
	Action    string `json:"action"`
	SessionID string `json:"session_id"`
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	Hub     *Hub
	Conn    *websocket.Conn
	AgentID string

	// Buffered channel of outbound messages.
	Send chan []byte

	mu      sync.RWMutex
	watched map[string]bool
}

func newClient(hub *Hub, conn *websocket.Conn, agentID string) *Client {
	return &Client{
		Hub:     hub,
		Conn:    conn,
		AgentID: agentID,
		Send:    make(chan []byte, 256),
		watched: make(map[string]bool),
	}
}

func (c *Client) Watching(sessionID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.watched[sessionID]
}

func (c *Client) handle(raw []byte) {
	var cmd command
	if err := json.Unmarshal(raw, &cmd); err != nil || cmd.SessionID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	switch cmd.Action {
	case "watch":
		c.watched[cmd.SessionID] = true
	case "unwatch":
		delete(c.watched, cmd.SessionID)
	}
}

// readPump pumps commands from the websocket connection to the client.
func (c *Client) readPump() {
	defer func() {
		c.Hub.unregister <- c
		c.Conn.Close()
	}()
	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Warn("Hub", "Console connection closed unexpectedly", map[string]interface{}{"agent_id": c.AgentID, "error": err.Error()})
			}
			break
		}
		c.handle(raw)
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

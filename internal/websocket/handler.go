package websocket

import (
	"github.com/gofiber/websocket/v2"
)

// ServeWs attaches an agent console to the hub and blocks until it disconnects.
func ServeWs(hub *Hub, c *websocket.Conn, agentID string) {
	client := newClient(hub, c, agentID)
	client.Hub.register <- client

	go client.writePump()
	client.readPump()
}

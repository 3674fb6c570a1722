package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"tracking-support-be/internal/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const clusterChannel = "support_console_events"

// Message is one frame pushed to agent consoles
type Message struct {
	Type      string      `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	Data      interface{} `json:"data"`
}

// Message types
const (
	TypeEscalation = "escalation"
	TypeTurn       = "turn"
)

// clusterEnvelope travels over Redis. Origin lets an instance skip its own
// publications, which it already delivered locally.
type clusterEnvelope struct {
	Origin  string          `json:"origin"`
	Session string          `json:"session"`
	Message json.RawMessage `json:"message"`
}

// Hub tracks connected agent consoles. Escalations go to every console;
// turn updates only to consoles watching that session.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex

	// Redis connection for cross-instance communication
	rdb      *redis.Client
	instance string

	logger logger.ILogger
}

func NewHub(rdb *redis.Client, log logger.ILogger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client, 16),
		rdb:        rdb,
		instance:   uuid.NewString(),
		logger:     log,
	}
}

// Run serves registrations until ctx ends
func (h *Hub) Run(ctx context.Context) {
	if h.rdb != nil {
		go h.subscribeToRedis(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.Send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Info("Hub", "Console registered", map[string]interface{}{"agent_id": client.AgentID})

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
				h.logger.Info("Hub", "Console unregistered", map[string]interface{}{"agent_id": client.AgentID})
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends to every console on every instance
func (h *Hub) Broadcast(msg Message) {
	h.publish("", msg)
}

// SendToWatchers sends to consoles watching sessionID on every instance
func (h *Hub) SendToWatchers(sessionID string, msg Message) {
	h.publish(sessionID, msg)
}

func (h *Hub) publish(sessionID string, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("Hub", "Failed to encode console message", map[string]interface{}{"error": err.Error()})
		return
	}

	h.deliver(sessionID, data)

	if h.rdb != nil {
		env, _ := json.Marshal(clusterEnvelope{Origin: h.instance, Session: sessionID, Message: data})
		if err := h.rdb.Publish(context.Background(), clusterChannel, env).Err(); err != nil {
			h.logger.Warn("Hub", "Redis publish failed", map[string]interface{}{"error": err.Error()})
		}
	}
}

// deliver writes to local consoles; an empty sessionID means everyone
func (h *Hub) deliver(sessionID string, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		if sessionID != "" && !client.Watching(sessionID) {
			continue
		}
		select {
		case client.Send <- data:
		default:
			h.logger.Warn("Hub", "Console send buffer full, dropping connection", map[string]interface{}{"agent_id": client.AgentID})
			select {
			case h.unregister <- client:
			default:
			}
		}
	}
}

func (h *Hub) subscribeToRedis(ctx context.Context) {
	pubsub := h.rdb.Subscribe(ctx, clusterChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var env clusterEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				h.logger.Warn("Hub", "Redis message parse error", map[string]interface{}{"error": err.Error()})
				continue
			}
			if env.Origin == h.instance {
				continue
			}
			h.deliver(env.Session, env.Message)
		}
	}
}

package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"tracking-support-be/internal/dto"
	"tracking-support-be/internal/pkg/logger"
	"tracking-support-be/internal/pkg/mailer"
	"tracking-support-be/internal/websocket"
	"tracking-support-be/pkg/events"
	pktNats "tracking-support-be/pkg/nats"
	"tracking-support-be/pkg/store"
	"tracking-support-be/pkg/support/dialogue"
	engine "tracking-support-be/pkg/support/memory"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// In-process queue topics
const (
	TopicEscalations = "support.escalations"
	TopicTurns       = "support.turns"
)

const escalationModule = "EscalationService"

// EventPublisher is the outbound event bus (NATS JetStream in production)
type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

// EventSubscriber is the inbound side of the event bus
type EventSubscriber interface {
	Subscribe(ctx context.Context, eventType, durableName string, handler pktNats.EventHandler) error
}

// ConsoleNotifier pushes live updates to agent consoles. Implemented by the
// websocket hub.
type ConsoleNotifier interface {
	Broadcast(msg websocket.Message)
	SendToWatchers(sessionID string, msg websocket.Message)
}

// SessionReader gives read access to live sessions
type SessionReader interface {
	Get(sessionID string) (*engine.Session, bool)
}

// escalationPublisher queues hand-offs so the turn never waits on the bus,
// mail server or consoles
type escalationPublisher struct {
	publisher message.Publisher
}

func NewEscalationPublisher(publisher message.Publisher) dialogue.Escalator {
	return &escalationPublisher{publisher: publisher}
}

func (p *escalationPublisher) Escalate(ctx context.Context, e dialogue.Escalation) error {
	payload, err := json.Marshal(dto.PublishEscalationMessage{Escalation: e})
	if err != nil {
		return err
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	return p.publisher.Publish(TopicEscalations, msg)
}

func EscalationEvent(e dialogue.Escalation) events.BaseEvent {
	return events.New(events.TypeSupportEscalated, map[string]interface{}{
		"session_id":  e.SessionID,
		"thread":      e.Thread,
		"category":    string(e.Category),
		"reason":      e.Reason,
		"frustration": e.Frustration.String(),
		"turn_index":  e.TurnIndex,
		"at":          e.At.UTC().Format(time.RFC3339),
	}, e.At)
}

type IEscalationConsumer interface {
	Consume(ctx context.Context) error
}

type EscalationConsumerConfig struct {
	Subscriber message.Subscriber
	Events     EventPublisher // nil: deliver to consoles directly
	Console    ConsoleNotifier
	Mailer     mailer.IEmailService
	Inbox      string // hand-off address; empty disables mail
	Sessions   SessionReader
	ConsoleURL string
	Logger     logger.ILogger
}

type escalationConsumer struct {
	cfg EscalationConsumerConfig
}

func NewEscalationConsumer(cfg EscalationConsumerConfig) IEscalationConsumer {
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNopLogger()
	}
	return &escalationConsumer{cfg: cfg}
}

func (c *escalationConsumer) Consume(ctx context.Context) error {
	messages, err := c.cfg.Subscriber.Subscribe(ctx, TopicEscalations)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			c.processMessage(msg)
		}
	}()
	return nil
}

func (c *escalationConsumer) processMessage(msg *message.Message) {
	var payload dto.PublishEscalationMessage
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		c.cfg.Logger.Error(escalationModule, "Failed to unmarshal escalation", map[string]interface{}{"error": err.Error()})
		msg.Ack() // Ack invalid messages to prevent infinite retry
		return
	}
	e := payload.Escalation
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c.cfg.Logger.Info(escalationModule, "Conversation handed off", map[string]interface{}{
		"session_id":  e.SessionID,
		"thread":      e.Thread,
		"category":    e.Category,
		"reason":      e.Reason,
		"frustration": e.Frustration.String(),
		"turn_index":  e.TurnIndex,
	})

	c.announce(ctx, e)
	c.mail(ctx, e)

	// Delivery is best effort; a retry would duplicate the mail
	msg.Ack()
}

// announce goes through the bus when there is one, so the console feed on a
// single instance picks it up; otherwise straight to the local hub
func (c *escalationConsumer) announce(ctx context.Context, e dialogue.Escalation) {
	if c.cfg.Events != nil {
		err := c.cfg.Events.Publish(ctx, EscalationEvent(e))
		if err == nil {
			return
		}
		c.cfg.Logger.Warn(escalationModule, "Escalation event publish failed, notifying consoles directly", map[string]interface{}{
			"session_id": e.SessionID,
			"error":      err.Error(),
		})
	}
	if c.cfg.Console != nil {
		c.cfg.Console.Broadcast(websocket.Message{Type: websocket.TypeEscalation, SessionID: e.SessionID, Data: e})
	}
}

func (c *escalationConsumer) mail(ctx context.Context, e dialogue.Escalation) {
	if c.cfg.Mailer == nil || c.cfg.Inbox == "" {
		return
	}

	notice := mailer.HandoffNotice{
		SessionID:   e.SessionID,
		Reason:      e.Reason,
		Category:    string(e.Category),
		Frustration: e.Frustration.String(),
		At:          e.At,
	}
	if c.cfg.ConsoleURL != "" {
		notice.ConsoleURL = fmt.Sprintf("%s/sessions/%s", c.cfg.ConsoleURL, e.SessionID)
	}
	if c.cfg.Sessions != nil {
		if s, ok := c.cfg.Sessions.Get(e.SessionID); ok {
			if snap, err := s.Snapshot(ctx); err == nil {
				notice.Identifiers, notice.Transcript = transcriptOf(snap, 6)
			}
		}
	}

	if err := c.cfg.Mailer.SendHandoff(c.cfg.Inbox, notice); err != nil {
		c.cfg.Logger.Error(escalationModule, "Hand-off email failed", map[string]interface{}{
			"session_id": e.SessionID,
			"error":      err.Error(),
		})
	}
}

// transcriptOf returns the tracked identifiers and the last n user messages
func transcriptOf(snap engine.Snapshot, n int) ([]string, []string) {
	var ids []string
	for _, th := range snap.Threads {
		if th.Key != engine.GeneralThread && th.Kind != store.KindMalformed {
			ids = append(ids, th.Key)
		}
	}
	turns := snap.Turns
	if len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		lines = append(lines, t.Text)
	}
	return ids, lines
}

// ConsoleFeedService relays escalation events from the bus to the agent
// consoles. Instances share one durable consumer, so each event is handled
// once and the hub fans it out to every instance.
type ConsoleFeedService struct {
	subscriber EventSubscriber
	console    ConsoleNotifier
	logger     logger.ILogger
}

func NewConsoleFeedService(sub EventSubscriber, console ConsoleNotifier, log logger.ILogger) *ConsoleFeedService {
	return &ConsoleFeedService{subscriber: sub, console: console, logger: log}
}

func (s *ConsoleFeedService) Start(ctx context.Context) error {
	if err := s.subscriber.Subscribe(ctx, events.TypeSupportEscalated, "agent-console", s.handleEvent); err != nil {
		return err
	}
	s.logger.Info("ConsoleFeedService", "Console feed started", map[string]interface{}{"subject": pktNats.Subject(events.TypeSupportEscalated)})
	return nil
}

func (s *ConsoleFeedService) handleEvent(_ context.Context, event events.Event) error {
	payload := event.Payload()
	sessionID, _ := payload["session_id"].(string)
	if sessionID == "" {
		s.logger.Warn("ConsoleFeedService", "Escalation event without session", map[string]interface{}{"type": event.EventType()})
		return nil
	}
	s.console.Broadcast(websocket.Message{Type: websocket.TypeEscalation, SessionID: sessionID, Data: payload})
	return nil
}

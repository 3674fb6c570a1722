package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"tracking-support-be/internal/dto"
	"tracking-support-be/internal/entity"
	"tracking-support-be/internal/pkg/logger"
	"tracking-support-be/internal/repository/contract"
	"tracking-support-be/internal/repository/specification"
	"tracking-support-be/internal/websocket"
	"tracking-support-be/pkg/store"
	"tracking-support-be/pkg/support/dialogue"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
)

const auditModule = "TurnAuditService"

// turnPublisher queues every committed turn for the audit log and the
// consoles watching the session
type turnPublisher struct {
	publisher message.Publisher
}

func NewTurnPublisher(publisher message.Publisher) dialogue.TurnRecorder {
	return &turnPublisher{publisher: publisher}
}

func (p *turnPublisher) RecordTurn(ctx context.Context, sessionID string, turn store.Turn, out dialogue.Outcome) error {
	m, err := turnMessage(sessionID, turn, out)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(m)
	if err != nil {
		return err
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	return p.publisher.Publish(TopicTurns, msg)
}

func turnMessage(sessionID string, turn store.Turn, out dialogue.Outcome) (dto.PublishTurnMessage, error) {
	m := dto.PublishTurnMessage{
		SessionId:     sessionID,
		TurnId:        turn.ID,
		TurnIndex:     turn.Index,
		Text:          turn.Text,
		ReceivedAt:    turn.Timestamp,
		Intent:        string(out.Intent),
		Category:      string(turn.Issue.Category),
		Phase:         out.Phase.String(),
		Frustration:   out.Frustration.String(),
		Clarification: string(out.Clarification),
		Escalated:     out.Escalated,
		Stalled:       out.Stalled,
	}
	if turn.Offered != nil {
		m.StepKey = turn.Offered.Key
		m.StepRank = turn.Offered.Rank
	}
	entities, err := json.Marshal(turn.Entities)
	if err != nil {
		return m, fmt.Errorf("marshal turn entities: %w", err)
	}
	issue, err := json.Marshal(turn.Issue)
	if err != nil {
		return m, fmt.Errorf("marshal turn issue: %w", err)
	}
	m.Entities, m.Issue = entities, issue
	return m, nil
}

type ITurnAuditConsumer interface {
	Consume(ctx context.Context) error
}

type turnAuditConsumer struct {
	subscriber message.Subscriber
	repo       contract.TurnLogRepository // nil when no database is configured
	console    ConsoleNotifier
	logger     logger.ILogger
}

func NewTurnAuditConsumer(sub message.Subscriber, repo contract.TurnLogRepository, console ConsoleNotifier, log logger.ILogger) ITurnAuditConsumer {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &turnAuditConsumer{
		subscriber: sub,
		repo:       repo,
		console:    console,
		logger:     log,
	}
}

func (c *turnAuditConsumer) Consume(ctx context.Context) error {
	messages, err := c.subscriber.Subscribe(ctx, TopicTurns)
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

func (c *turnAuditConsumer) processMessage(msg *message.Message) {
	var payload dto.PublishTurnMessage
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		c.logger.Error(auditModule, "Failed to unmarshal turn", map[string]interface{}{"error": err.Error()})
		msg.Ack()
		return
	}

	if c.console != nil {
		c.console.SendToWatchers(payload.SessionId, websocket.Message{
			Type:      websocket.TypeTurn,
			SessionID: payload.SessionId,
			Data:      payload,
		})
	}

	if c.repo == nil {
		msg.Ack()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.repo.Create(ctx, turnLogFrom(payload)); err != nil {
		// gochannel redelivers a Nack immediately, which would spin while the
		// database is down; the audit row is dropped instead
		c.logger.Error(auditModule, "Failed to persist turn, dropping", map[string]interface{}{
			"session_id": payload.SessionId,
			"turn_id":    payload.TurnId,
			"error":      err.Error(),
		})
	}
	msg.Ack()
}

func turnLogFrom(m dto.PublishTurnMessage) *entity.TurnLog {
	turnID, err := uuid.Parse(m.TurnId)
	if err != nil {
		turnID = uuid.New()
	}
	log := &entity.TurnLog{
		SessionId:     m.SessionId,
		TurnId:        turnID,
		TurnIndex:     m.TurnIndex,
		Text:          m.Text,
		Intent:        m.Intent,
		Category:      m.Category,
		Phase:         m.Phase,
		Frustration:   m.Frustration,
		StepRank:      m.StepRank,
		Clarification: m.Clarification,
		Escalated:     m.Escalated,
		Entities:      m.Entities,
		Issue:         m.Issue,
		ReceivedAt:    m.ReceivedAt,
	}
	if m.StepKey != "" {
		key := m.StepKey
		log.StepKey = &key
	}
	return log
}

// ErrAuditDisabled is returned by the history service when no database is configured
var ErrAuditDisabled = errors.New("turn audit log is not configured")

type ITurnHistoryService interface {
	List(ctx context.Context, request *dto.TurnHistoryRequest) (*dto.TurnHistoryResponse, error)
}

type turnHistoryService struct {
	repo contract.TurnLogRepository
}

func NewTurnHistoryService(repo contract.TurnLogRepository) ITurnHistoryService {
	return &turnHistoryService{repo: repo}
}

func (s *turnHistoryService) List(ctx context.Context, request *dto.TurnHistoryRequest) (*dto.TurnHistoryResponse, error) {
	if s.repo == nil {
		return nil, ErrAuditDisabled
	}

	filters := []specification.Specification{specification.BySessionID{SessionID: request.SessionId}}
	if request.EscalatedOnly {
		filters = append(filters, specification.EscalatedOnly{})
	}

	total, err := s.repo.Count(ctx, filters...)
	if err != nil {
		return nil, err
	}

	limit := request.Limit
	if limit <= 0 {
		limit = 50
	}
	logs, err := s.repo.FindAll(ctx, append(filters,
		specification.OrderBy{Field: "turn_index"},
		specification.Pagination{Limit: limit, Offset: request.Offset},
	)...)
	if err != nil {
		return nil, err
	}

	res := &dto.TurnHistoryResponse{Total: total, Turns: make([]dto.TurnLogResponse, 0, len(logs))}
	for _, l := range logs {
		item := dto.TurnLogResponse{
			TurnId:        l.TurnId.String(),
			TurnIndex:     l.TurnIndex,
			Text:          l.Text,
			Intent:        l.Intent,
			Category:      l.Category,
			Phase:         l.Phase,
			Frustration:   l.Frustration,
			StepRank:      l.StepRank,
			Clarification: l.Clarification,
			Escalated:     l.Escalated,
			Issue:         l.Issue,
			ReceivedAt:    l.ReceivedAt,
		}
		if l.StepKey != nil {
			item.StepKey = *l.StepKey
		}
		res.Turns = append(res.Turns, item)
	}
	return res, nil
}

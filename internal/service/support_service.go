package service

import (
	"context"
	"errors"
	"time"

	"tracking-support-be/internal/dto"
	"tracking-support-be/internal/pkg/logger"
	"tracking-support-be/pkg/events"
	"tracking-support-be/pkg/support/carrier"
	"tracking-support-be/pkg/support/dialogue"
	engine "tracking-support-be/pkg/support/memory"
)

const supportModule = "SupportService"

var ErrSessionNotFound = errors.New("session not found")

// SessionRepository is the live session store the service reads and evicts from
type SessionRepository interface {
	dialogue.SessionStore
	Get(sessionID string) (*engine.Session, bool)
	Delete(sessionID string) bool
	Count() int
}

type ISupportService interface {
	SendMessage(ctx context.Context, request *dto.SendMessageRequest) (*dto.SendMessageResponse, error)
	GetSession(ctx context.Context, sessionID string) (*dto.SessionResponse, error)
	DeleteSession(ctx context.Context, sessionID string) error
	ListCarriers(ctx context.Context) []dto.CarrierResponse
	ActiveSessions() int
}

type supportService struct {
	orchestrator *dialogue.Orchestrator
	sessions     SessionRepository
	renderer     IReplyRenderer
	kb           *carrier.KnowledgeBase
	events       EventPublisher
	logger       logger.ILogger
	now          func() time.Time
}

func NewSupportService(
	orchestrator *dialogue.Orchestrator,
	sessions SessionRepository,
	renderer IReplyRenderer,
	kb *carrier.KnowledgeBase,
	eventPublisher EventPublisher,
	log logger.ILogger,
) ISupportService {
	return &supportService{
		orchestrator: orchestrator,
		sessions:     sessions,
		renderer:     renderer,
		kb:           kb,
		events:       eventPublisher,
		logger:       log,
		now:          time.Now,
	}
}

// SendMessage runs one turn and renders the reply. The turn is committed
// before rendering starts, so a render failure returns the outcome together
// with ErrRenderFailed.
func (s *supportService) SendMessage(ctx context.Context, request *dto.SendMessageRequest) (*dto.SendMessageResponse, error) {
	at := s.now()
	if request.SentAt != nil && !request.SentAt.IsZero() && !request.SentAt.After(at) {
		at = *request.SentAt
	}

	out, err := s.orchestrator.ProcessTurn(ctx, request.SessionId, request.Message, at)
	if err != nil {
		return nil, err
	}

	s.logger.Info(supportModule, "Turn processed", map[string]interface{}{
		"session_id": out.SessionID,
		"turn_index": out.TurnIndex,
		"intent":     out.Intent,
		"category":   out.Issue.Category,
		"phase":      out.Phase.String(),
		"escalated":  out.Escalated,
	})

	if out.Intent == dialogue.IntentResolution && s.events != nil {
		s.publishResolved(ctx, out, at)
	}

	res := &dto.SendMessageResponse{
		SessionId: out.SessionID,
		TurnId:    out.TurnID,
		TurnIndex: out.TurnIndex,
		Outcome:   out,
	}

	reply, err := s.renderer.Render(ctx, out)
	if err != nil {
		return res, err
	}
	res.Reply = reply
	return res, nil
}

func (s *supportService) publishResolved(ctx context.Context, out dialogue.Outcome, at time.Time) {
	event := events.New(events.TypeSupportResolved, map[string]interface{}{
		"session_id": out.SessionID,
		"threads":    out.Touched,
		"turn_index": out.TurnIndex,
	}, at)
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Warn(supportModule, "Resolution event publish failed", map[string]interface{}{
			"session_id": out.SessionID,
			"error":      err.Error(),
		})
	}
}

func (s *supportService) GetSession(ctx context.Context, sessionID string) (*dto.SessionResponse, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return nil, ErrSessionNotFound
	}
	snap, err := session.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return &dto.SessionResponse{Snapshot: snap}, nil
}

func (s *supportService) DeleteSession(_ context.Context, sessionID string) error {
	if !s.sessions.Delete(sessionID) {
		return ErrSessionNotFound
	}
	s.logger.Info(supportModule, "Session evicted", map[string]interface{}{"session_id": sessionID})
	return nil
}

func (s *supportService) ListCarriers(_ context.Context) []dto.CarrierResponse {
	profiles := s.kb.Profiles()
	res := make([]dto.CarrierResponse, 0, len(profiles))
	for _, p := range profiles {
		res = append(res, dto.CarrierResponse{
			Name:     p.Name,
			Tier:     string(p.Tier),
			Prefixes: p.Prefixes,
			MinHours: p.MinHours,
			MaxHours: p.MaxHours,
		})
	}
	return res
}

func (s *supportService) ActiveSessions() int {
	return s.sessions.Count()
}

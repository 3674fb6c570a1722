package mapper

import (
	"encoding/json"

	"tracking-support-be/internal/entity"
	"tracking-support-be/internal/model"

	"gorm.io/datatypes"
)

type TurnLogMapper struct{}

func NewTurnLogMapper() *TurnLogMapper {
	return &TurnLogMapper{}
}

func (m *TurnLogMapper) ToEntity(t *model.TurnLog) *entity.TurnLog {
	if t == nil {
		return nil
	}

	return &entity.TurnLog{
		Id:            t.Id,
		SessionId:     t.SessionId,
		TurnId:        t.TurnId,
		TurnIndex:     t.TurnIndex,
		Text:          t.Text,
		Intent:        t.Intent,
		Category:      t.Category,
		Phase:         t.Phase,
		Frustration:   t.Frustration,
		StepKey:       t.StepKey,
		StepRank:      t.StepRank,
		Clarification: t.Clarification,
		Escalated:     t.Escalated,
		Entities:      json.RawMessage(t.Entities),
		Issue:         json.RawMessage(t.Issue),
		ReceivedAt:    t.ReceivedAt,
		CreatedAt:     t.CreatedAt,
	}
}

func (m *TurnLogMapper) ToModel(t *entity.TurnLog) *model.TurnLog {
	if t == nil {
		return nil
	}

	return &model.TurnLog{
		Id:            t.Id,
		SessionId:     t.SessionId,
		TurnId:        t.TurnId,
		TurnIndex:     t.TurnIndex,
		Text:          t.Text,
		Intent:        t.Intent,
		Category:      t.Category,
		Phase:         t.Phase,
		Frustration:   t.Frustration,
		StepKey:       t.StepKey,
		StepRank:      t.StepRank,
		Clarification: t.Clarification,
		Escalated:     t.Escalated,
		Entities:      datatypes.JSON(t.Entities),
		Issue:         datatypes.JSON(t.Issue),
		ReceivedAt:    t.ReceivedAt,
		CreatedAt:     t.CreatedAt,
	}
}

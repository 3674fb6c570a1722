package dto

import (
	"encoding/json"
	"time"

	"tracking-support-be/pkg/support/dialogue"
	"tracking-support-be/pkg/support/memory"
)

type SendMessageRequest struct {
	SessionId string     `json:"session_id" validate:"omitempty,max=64,printascii"`
	Message   string     `json:"message" validate:"required,max=2000"`
	SentAt    *time.Time `json:"sent_at,omitempty"`
}

type SendMessageResponse struct {
	SessionId string           `json:"session_id"`
	TurnId    string           `json:"turn_id"`
	TurnIndex int              `json:"turn_index"`
	Reply     string           `json:"reply"`
	Outcome   dialogue.Outcome `json:"outcome"`
}

type SessionResponse struct {
	memory.Snapshot
}

type CarrierResponse struct {
	Name     string   `json:"name"`
	Tier     string   `json:"tier"`
	Prefixes []string `json:"prefixes"`
	MinHours int      `json:"min_hours,omitempty"`
	MaxHours int      `json:"max_hours,omitempty"`
}

// PublishEscalationMessage is the in-process queue payload for a hand-off
type PublishEscalationMessage struct {
	Escalation dialogue.Escalation `json:"escalation"`
}

// PublishTurnMessage is the in-process queue payload for the turn audit log
type PublishTurnMessage struct {
	SessionId     string          `json:"session_id"`
	TurnId        string          `json:"turn_id"`
	TurnIndex     int             `json:"turn_index"`
	Text          string          `json:"text"`
	ReceivedAt    time.Time       `json:"received_at"`
	Intent        string          `json:"intent"`
	Category      string          `json:"category"`
	Phase         string          `json:"phase"`
	Frustration   string          `json:"frustration"`
	StepKey       string          `json:"step_key,omitempty"`
	StepRank      int             `json:"step_rank,omitempty"`
	Clarification string          `json:"clarification,omitempty"`
	Escalated     bool            `json:"escalated"`
	Stalled       bool            `json:"stalled,omitempty"`
	Entities      json.RawMessage `json:"entities"`
	Issue         json.RawMessage `json:"issue"`
}

type TurnHistoryRequest struct {
	SessionId     string `validate:"required,max=64"`
	EscalatedOnly bool
	Limit         int `validate:"gte=0,lte=200"`
	Offset        int `validate:"gte=0"`
}

type TurnLogResponse struct {
	TurnId        string          `json:"turn_id"`
	TurnIndex     int             `json:"turn_index"`
	Text          string          `json:"text"`
	Intent        string          `json:"intent"`
	Category      string          `json:"category"`
	Phase         string          `json:"phase"`
	Frustration   string          `json:"frustration"`
	StepKey       string          `json:"step_key,omitempty"`
	StepRank      int             `json:"step_rank,omitempty"`
	Clarification string          `json:"clarification,omitempty"`
	Escalated     bool            `json:"escalated"`
	Issue         json.RawMessage `json:"issue,omitempty"`
	ReceivedAt    time.Time       `json:"received_at"`
}

type TurnHistoryResponse struct {
	Total int64             `json:"total"`
	Turns []TurnLogResponse `json:"turns"`
}

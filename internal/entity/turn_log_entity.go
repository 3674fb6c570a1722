package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// TurnLog is the audit record of one committed conversation turn
type TurnLog struct {
	Id            uuid.UUID
	SessionId     string
	TurnId        uuid.UUID
	TurnIndex     int
	Text          string
	Intent        string
	Category      string
	Phase         string
	Frustration   string
	StepKey       *string
	StepRank      int
	Clarification string
	Escalated     bool
	Entities      json.RawMessage
	Issue         json.RawMessage
	ReceivedAt    time.Time
	CreatedAt     time.Time
}

package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type TurnLog struct {
	Id            uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	SessionId     string         `gorm:"type:varchar(64);not null;index:idx_turn_logs_session_turn,priority:1"`
	TurnId        uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex"`
	TurnIndex     int            `gorm:"not null;index:idx_turn_logs_session_turn,priority:2"`
	Text          string         `gorm:"type:text;not null"`
	Intent        string         `gorm:"type:varchar(20);not null"`
	Category      string         `gorm:"type:varchar(40);not null;index"`
	Phase         string         `gorm:"type:varchar(20);not null"`
	Frustration   string         `gorm:"type:varchar(10);not null"`
	StepKey       *string        `gorm:"type:varchar(64)"`
	StepRank      int            `gorm:"not null;default:0"`
	Clarification string         `gorm:"type:varchar(40)"`
	Escalated     bool           `gorm:"not null;default:false;index"`
	Entities      datatypes.JSON `gorm:"type:jsonb"`
	Issue         datatypes.JSON `gorm:"type:jsonb"`
	ReceivedAt    time.Time      `gorm:"not null"`
	CreatedAt     time.Time      `gorm:"autoCreateTime"`
}

func (TurnLog) TableName() string {
	return "support_turn_logs"
}

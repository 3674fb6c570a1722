package specification

import "gorm.io/gorm"

type BySessionID struct {
	SessionID string
}

func (s BySessionID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("session_id = ?", s.SessionID)
}

type EscalatedOnly struct{}

func (s EscalatedOnly) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("escalated = ?", true)
}

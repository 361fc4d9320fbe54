package model

import (
	"time"

	"github.com/google/uuid"
)

type ChatSession struct {
	Id                  uuid.UUID  `gorm:"type:uuid;primaryKey"`
	UserId              *string    `gorm:"type:varchar(255);index"`
	CreatedAt           time.Time  `gorm:"not null"`
	LastActiveAt        time.Time  `gorm:"not null;index"`
	SelectionText       *string    `gorm:"type:text"`
	SelectionCapturedAt *time.Time
}

func (ChatSession) TableName() string {
	return "chat_sessions"
}

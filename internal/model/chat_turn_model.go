package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type ChatTurn struct {
	Id            int64                       `gorm:"primaryKey;autoIncrement"`
	ChatSessionId uuid.UUID                   `gorm:"type:uuid;not null;index:idx_chat_turns_session_order,priority:1;uniqueIndex:idx_chat_turns_session_turn_key,priority:1"`
	Role          string                      `gorm:"type:varchar(20);not null"`
	Content       string                      `gorm:"type:text;not null"`
	Citations     datatypes.JSONSlice[string] `gorm:"type:jsonb"`
	TurnKey       *string                     `gorm:"type:varchar(128);uniqueIndex:idx_chat_turns_session_turn_key,priority:2"`
	CreatedAt     time.Time                   `gorm:"not null;index:idx_chat_turns_session_order,priority:2"`

	ChatSession *ChatSession `gorm:"foreignKey:ChatSessionId;references:Id;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}

func (ChatTurn) TableName() string {
	return "chat_turns"
}

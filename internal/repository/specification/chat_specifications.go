package specification

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ByChatSessionID struct {
	ChatSessionID uuid.UUID
}

func (s ByChatSessionID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("chat_session_id = ?", s.ChatSessionID)
}

type ByTurnKey struct {
	TurnKey string
}

func (s ByTurnKey) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("turn_key = ?", s.TurnKey)
}

// TurnIDBefore keeps turns appended before the given turn id. Zero disables it.
type TurnIDBefore struct {
	ID int64
}

func (s TurnIDBefore) Apply(db *gorm.DB) *gorm.DB {
	if s.ID <= 0 {
		return db
	}
	return db.Where("id < ?", s.ID)
}

// Chronological orders turns oldest first; the id breaks created_at ties.
func Chronological(desc bool) []Specification {
	return []Specification{
		OrderBy{Field: "created_at", Desc: desc},
		OrderBy{Field: "id", Desc: desc},
	}
}

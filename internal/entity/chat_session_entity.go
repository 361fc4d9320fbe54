package entity

import (
	"time"

	"github.com/google/uuid"
)

type ChatSession struct {
	Id           uuid.UUID
	UserId       *string
	CreatedAt    time.Time
	LastActiveAt time.Time
	Selection    *SelectionContext
}

// SelectionContext is text the user highlighted, staged for the next turn.
type SelectionContext struct {
	Text       string
	CapturedAt time.Time
}

// IsActive reports whether the session has been used within idleTTL.
// Inactive sessions are kept; a new turn reactivates them.
func (s *ChatSession) IsActive(now time.Time, idleTTL time.Duration) bool {
	return now.Sub(s.LastActiveAt) <= idleTTL
}

// FreshSelection returns the staged selection, or nil when there is none or it
// was captured more than ttl ago.
func (s *ChatSession) FreshSelection(now time.Time, ttl time.Duration) *SelectionContext {
	if s == nil || s.Selection == nil || s.Selection.Text == "" {
		return nil
	}
	if now.Sub(s.Selection.CapturedAt) > ttl {
		return nil
	}
	return s.Selection
}

// SessionPatch is applied by an upsert. On insert, Touch becomes both
// created_at and last_active_at. On update, last_active_at never moves
// backwards, a nil UserId keeps the stored one and a nil Selection leaves the
// stored selection untouched.
type SessionPatch struct {
	Touch     time.Time
	UserId    *string
	Selection *SelectionContext
}

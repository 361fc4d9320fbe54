package entity

import (
	"time"

	"github.com/google/uuid"
)

// ChatTurn is one immutable message in a session. Ids are assigned by the
// store and increase monotonically.
type ChatTurn struct {
	Id            int64
	ChatSessionId uuid.UUID
	Role          string
	Content       string
	Citations     []string
	// TurnKey lets a retried append resolve to the already stored turn.
	TurnKey   string
	CreatedAt time.Time
}

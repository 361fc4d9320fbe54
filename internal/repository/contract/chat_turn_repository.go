package contract

import (
	"context"

	"rag-agent-be/internal/entity"

	"github.com/google/uuid"
)

type ChatTurnRepository interface {
	// Append stores the turn and fills in Id and CreatedAt. When a turn with
	// the same (session, TurnKey) already exists, turn is overwritten with the
	// stored row and created is false. Turns without a key are always inserted.
	Append(ctx context.Context, turn *entity.ChatTurn) (created bool, err error)
	// FindRecent returns up to limit turns stored before beforeId, oldest first.
	// A beforeId of zero means no upper bound.
	FindRecent(ctx context.Context, sessionId uuid.UUID, beforeId int64, limit int) ([]*entity.ChatTurn, error)
	// FindBySession returns every turn of the session, oldest first.
	FindBySession(ctx context.Context, sessionId uuid.UUID) ([]*entity.ChatTurn, error)
}

package contract

import (
	"context"

	"rag-agent-be/internal/entity"

	"github.com/google/uuid"
)

type ChatSessionRepository interface {
	// FindById returns nil, nil when the session does not exist.
	FindById(ctx context.Context, id uuid.UUID) (*entity.ChatSession, error)
	// Upsert creates the session if missing, otherwise applies the patch.
	// Concurrent first writers resolve to one row; later writers update it.
	Upsert(ctx context.Context, id uuid.UUID, patch entity.SessionPatch) (*entity.ChatSession, error)
	Count(ctx context.Context) (int64, error)
}

package history

import (
	"context"

	"rag-agent-be/internal/pkg/logger"
	"rag-agent-be/internal/repository/unitofwork"
	"rag-agent-be/pkg/llm"

	"github.com/google/uuid"
)

// Loader turns stored chat turns into model messages.
type Loader struct {
	uowFactory unitofwork.RepositoryFactory
	limit      int
	logger     logger.ILogger
}

func NewLoader(uowFactory unitofwork.RepositoryFactory, limit int, log logger.ILogger) *Loader {
	return &Loader{
		uowFactory: uowFactory,
		limit:      limit,
		logger:     log,
	}
}

// LoadConversationHistory returns up to limit turns stored before beforeId,
// oldest first. A read failure is reported as ok=false with no messages so
// the turn can still be answered without history.
func (l *Loader) LoadConversationHistory(ctx context.Context, sessionId uuid.UUID, beforeId int64) (messages []llm.Message, ok bool) {
	uow := l.uowFactory.NewUnitOfWork(ctx)

	turns, err := uow.ChatTurnRepository().FindRecent(ctx, sessionId, beforeId, l.limit)
	if err != nil {
		l.logger.Warn("HISTORY", "Failed to load conversation history", map[string]interface{}{
			"session_id": sessionId.String(),
			"error":      err.Error(),
		})
		return nil, false
	}

	messages = make([]llm.Message, 0, len(turns))
	for _, turn := range turns {
		messages = append(messages, llm.Message{
			Role:    turn.Role,
			Content: turn.Content,
		})
	}
	return messages, true
}

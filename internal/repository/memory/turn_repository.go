package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"rag-agent-be/internal/entity"
	"rag-agent-be/internal/repository/contract"

	"github.com/google/uuid"
)

type TurnRepository struct {
	mu       sync.RWMutex
	nextId   int64
	sessions *SessionRepository
	turns    map[uuid.UUID][]*entity.ChatTurn
	byKey    map[string]*entity.ChatTurn
}

var _ contract.ChatTurnRepository = (*TurnRepository)(nil)

// NewTurnRepository enforces that turns reference an existing session, the
// same way the SQL foreign key does.
func NewTurnRepository(sessions *SessionRepository) *TurnRepository {
	return &TurnRepository{
		sessions: sessions,
		turns:    make(map[uuid.UUID][]*entity.ChatTurn),
		byKey:    make(map[string]*entity.ChatTurn),
	}
}

func (r *TurnRepository) Append(ctx context.Context, turn *entity.ChatTurn) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if session, _ := r.sessions.FindById(ctx, turn.ChatSessionId); session == nil {
		return false, fmt.Errorf("%w: session %s does not exist", contract.ErrConstraintViolation, turn.ChatSessionId)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := ""
	if turn.TurnKey != "" {
		key = turn.ChatSessionId.String() + "/" + turn.TurnKey
		if existing, ok := r.byKey[key]; ok {
			*turn = *copyTurn(existing)
			return false, nil
		}
	}

	r.nextId++
	stored := copyTurn(turn)
	stored.Id = r.nextId
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	r.turns[stored.ChatSessionId] = append(r.turns[stored.ChatSessionId], stored)
	if key != "" {
		r.byKey[key] = stored
	}

	*turn = *copyTurn(stored)
	return true, nil
}

func (r *TurnRepository) FindRecent(ctx context.Context, sessionId uuid.UUID, beforeId int64, limit int) ([]*entity.ChatTurn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var res []*entity.ChatTurn
	all := r.turns[sessionId]
	for i := len(all) - 1; i >= 0 && (limit <= 0 || len(res) < limit); i-- {
		if beforeId > 0 && all[i].Id >= beforeId {
			continue
		}
		res = append(res, copyTurn(all[i]))
	}
	for i, j := 0, len(res)-1; i < j; i, j = i+1, j-1 {
		res[i], res[j] = res[j], res[i]
	}
	return res, nil
}

func (r *TurnRepository) FindBySession(ctx context.Context, sessionId uuid.UUID) ([]*entity.ChatTurn, error) {
	return r.FindRecent(ctx, sessionId, 0, 0)
}

func copyTurn(t *entity.ChatTurn) *entity.ChatTurn {
	c := *t
	c.Citations = append([]string(nil), t.Citations...)
	return &c
}

package memory

import (
	"context"
	"sync"

	"rag-agent-be/internal/entity"
	"rag-agent-be/internal/repository/contract"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// SessionRepository keeps sessions in process memory. Entries never expire;
// inactivity is derived from LastActiveAt like the SQL store.
type SessionRepository struct {
	mu    sync.Mutex
	cache *cache.Cache
}

var _ contract.ChatSessionRepository = (*SessionRepository)(nil)

func NewSessionRepository() *SessionRepository {
	return &SessionRepository{
		cache: cache.New(cache.NoExpiration, 0),
	}
}

func (r *SessionRepository) FindById(ctx context.Context, id uuid.UUID) (*entity.ChatSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if x, found := r.cache.Get(id.String()); found {
		return copySession(x.(*entity.ChatSession)), nil
	}
	return nil, nil
}

func (r *SessionRepository) Upsert(ctx context.Context, id uuid.UUID, patch entity.SessionPatch) (*entity.ChatSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var session *entity.ChatSession
	if x, found := r.cache.Get(id.String()); found {
		session = copySession(x.(*entity.ChatSession))
		if patch.Touch.After(session.LastActiveAt) {
			session.LastActiveAt = patch.Touch
		}
		if patch.UserId != nil {
			session.UserId = patch.UserId
		}
	} else {
		session = &entity.ChatSession{
			Id:           id,
			UserId:       patch.UserId,
			CreatedAt:    patch.Touch,
			LastActiveAt: patch.Touch,
		}
	}
	if patch.Selection != nil {
		selection := *patch.Selection
		session.Selection = &selection
	}

	r.cache.Set(id.String(), session, cache.NoExpiration)
	return copySession(session), nil
}

func (r *SessionRepository) Count(ctx context.Context) (int64, error) {
	return int64(r.cache.ItemCount()), nil
}

func copySession(s *entity.ChatSession) *entity.ChatSession {
	c := *s
	if s.Selection != nil {
		selection := *s.Selection
		c.Selection = &selection
	}
	if s.UserId != nil {
		userId := *s.UserId
		c.UserId = &userId
	}
	return &c
}

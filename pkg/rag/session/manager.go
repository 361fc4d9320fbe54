package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"rag-agent-be/internal/entity"
	"rag-agent-be/internal/repository/unitofwork"

	"github.com/google/uuid"
)

// Resolution is the outcome of looking up a caller-supplied session id.
type Resolution struct {
	ID       uuid.UUID
	Existing *entity.ChatSession // nil when a new session will be created
	// Reactivated is set when an idle session receives a new turn.
	Reactivated bool
}

func (r Resolution) IsNew() bool {
	return r.Existing == nil
}

// Manager handles session lookup and the writes that go with it.
type Manager struct {
	idleTTL      time.Duration
	selectionTTL time.Duration
	now          func() time.Time
}

func NewManager(idleTTL, selectionTTL time.Duration) *Manager {
	return &Manager{
		idleTTL:      idleTTL,
		selectionTTL: selectionTTL,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source, for tests.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

func (m *Manager) Now() time.Time {
	return m.now()
}

// Resolve maps a raw session id to a session. Empty, malformed and unknown
// ids get a fresh server-generated id; clients cannot choose their own.
func (m *Manager) Resolve(ctx context.Context, uow unitofwork.UnitOfWork, raw string) (Resolution, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Resolution{ID: uuid.New()}, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return Resolution{ID: uuid.New()}, nil
	}

	existing, err := uow.ChatSessionRepository().FindById(ctx, id)
	if err != nil {
		return Resolution{}, fmt.Errorf("find session: %w", err)
	}
	if existing == nil {
		return Resolution{ID: uuid.New()}, nil
	}
	return Resolution{
		ID:          id,
		Existing:    existing,
		Reactivated: !existing.IsActive(m.now(), m.idleTTL),
	}, nil
}

// Touch creates the session or moves its last_active_at forward.
func (m *Manager) Touch(ctx context.Context, uow unitofwork.UnitOfWork, id uuid.UUID) (*entity.ChatSession, error) {
	return uow.ChatSessionRepository().Upsert(ctx, id, entity.SessionPatch{Touch: m.now()})
}

// StageSelection overwrites the session's selection with text captured now.
func (m *Manager) StageSelection(ctx context.Context, uow unitofwork.UnitOfWork, id uuid.UUID, text string) (*entity.ChatSession, error) {
	now := m.now()
	return uow.ChatSessionRepository().Upsert(ctx, id, entity.SessionPatch{
		Touch:     now,
		Selection: &entity.SelectionContext{Text: text, CapturedAt: now},
	})
}

// FreshSelection returns the selection text still eligible for the prompt.
func (m *Manager) FreshSelection(s *entity.ChatSession) string {
	if sel := s.FreshSelection(m.now(), m.selectionTTL); sel != nil {
		return sel.Text
	}
	return ""
}

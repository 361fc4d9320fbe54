package mapper

import (
	"rag-agent-be/internal/entity"
	"rag-agent-be/internal/model"

	"gorm.io/datatypes"
)

type ChatMapper struct{}

func NewChatMapper() *ChatMapper {
	return &ChatMapper{}
}

// Session Mappers

func (m *ChatMapper) ChatSessionToEntity(s *model.ChatSession) *entity.ChatSession {
	if s == nil {
		return nil
	}

	var selection *entity.SelectionContext
	if s.SelectionText != nil && s.SelectionCapturedAt != nil {
		selection = &entity.SelectionContext{
			Text:       *s.SelectionText,
			CapturedAt: *s.SelectionCapturedAt,
		}
	}

	return &entity.ChatSession{
		Id:           s.Id,
		UserId:       s.UserId,
		CreatedAt:    s.CreatedAt,
		LastActiveAt: s.LastActiveAt,
		Selection:    selection,
	}
}

func (m *ChatMapper) ChatSessionToModel(s *entity.ChatSession) *model.ChatSession {
	if s == nil {
		return nil
	}

	res := &model.ChatSession{
		Id:           s.Id,
		UserId:       s.UserId,
		CreatedAt:    s.CreatedAt,
		LastActiveAt: s.LastActiveAt,
	}
	if s.Selection != nil {
		text := s.Selection.Text
		capturedAt := s.Selection.CapturedAt
		res.SelectionText = &text
		res.SelectionCapturedAt = &capturedAt
	}
	return res
}

// Turn Mappers

func (m *ChatMapper) ChatTurnToEntity(t *model.ChatTurn) *entity.ChatTurn {
	if t == nil {
		return nil
	}

	var turnKey string
	if t.TurnKey != nil {
		turnKey = *t.TurnKey
	}

	citations := make([]string, len(t.Citations))
	copy(citations, t.Citations)

	return &entity.ChatTurn{
		Id:            t.Id,
		ChatSessionId: t.ChatSessionId,
		Role:          t.Role,
		Content:       t.Content,
		Citations:     citations,
		TurnKey:       turnKey,
		CreatedAt:     t.CreatedAt,
	}
}

func (m *ChatMapper) ChatTurnToModel(t *entity.ChatTurn) *model.ChatTurn {
	if t == nil {
		return nil
	}

	var turnKey *string
	if t.TurnKey != "" {
		key := t.TurnKey
		turnKey = &key
	}

	var citations datatypes.JSONSlice[string]
	if len(t.Citations) > 0 {
		citations = datatypes.JSONSlice[string](append([]string(nil), t.Citations...))
	}

	return &model.ChatTurn{
		Id:            t.Id,
		ChatSessionId: t.ChatSessionId,
		Role:          t.Role,
		Content:       t.Content,
		Citations:     citations,
		TurnKey:       turnKey,
		CreatedAt:     t.CreatedAt,
	}
}

func (m *ChatMapper) ChatTurnsToEntities(turns []*model.ChatTurn) []*entity.ChatTurn {
	res := make([]*entity.ChatTurn, len(turns))
	for i, t := range turns {
		res[i] = m.ChatTurnToEntity(t)
	}
	return res
}

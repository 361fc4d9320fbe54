package implementation

import (
	"context"
	"errors"

	"rag-agent-be/internal/entity"
	"rag-agent-be/internal/mapper"
	"rag-agent-be/internal/model"
	"rag-agent-be/internal/repository/contract"
	"rag-agent-be/internal/repository/specification"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ChatSessionRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.ChatMapper
}

func NewChatSessionRepository(db *gorm.DB) contract.ChatSessionRepository {
	return &ChatSessionRepositoryImpl{
		db:     db,
		mapper: mapper.NewChatMapper(),
	}
}

func (r *ChatSessionRepositoryImpl) applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

func (r *ChatSessionRepositoryImpl) FindById(ctx context.Context, id uuid.UUID) (*entity.ChatSession, error) {
	var m model.ChatSession
	query := r.applySpecifications(r.db.WithContext(ctx), specification.ByID{ID: id})
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.ChatSessionToEntity(&m), nil
}

func (r *ChatSessionRepositoryImpl) Upsert(ctx context.Context, id uuid.UUID, patch entity.SessionPatch) (*entity.ChatSession, error) {
	m := &model.ChatSession{
		Id:           id,
		UserId:       patch.UserId,
		CreatedAt:    patch.Touch,
		LastActiveAt: patch.Touch,
	}

	// last_active_at is monotonic even when a delayed writer lands late
	updates := map[string]interface{}{
		"last_active_at": gorm.Expr("GREATEST(chat_sessions.last_active_at, excluded.last_active_at)"),
		"user_id":        gorm.Expr("COALESCE(excluded.user_id, chat_sessions.user_id)"),
	}
	if patch.Selection != nil {
		text := patch.Selection.Text
		capturedAt := patch.Selection.CapturedAt
		m.SelectionText = &text
		m.SelectionCapturedAt = &capturedAt
		updates["selection_text"] = gorm.Expr("excluded.selection_text")
		updates["selection_captured_at"] = gorm.Expr("excluded.selection_captured_at")
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.Assignments(updates),
		}).
		Create(m).Error
	if err != nil {
		return nil, classifyError(err)
	}

	return r.FindById(ctx, id)
}

func (r *ChatSessionRepositoryImpl) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.ChatSession{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

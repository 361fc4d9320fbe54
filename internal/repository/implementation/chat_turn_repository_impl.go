package implementation

import (
	"context"
	"fmt"
	"slices"
	"time"

	"rag-agent-be/internal/entity"
	"rag-agent-be/internal/mapper"
	"rag-agent-be/internal/model"
	"rag-agent-be/internal/repository/contract"
	"rag-agent-be/internal/repository/specification"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ChatTurnRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.ChatMapper
}

func NewChatTurnRepository(db *gorm.DB) contract.ChatTurnRepository {
	return &ChatTurnRepositoryImpl{
		db:     db,
		mapper: mapper.NewChatMapper(),
	}
}

func (r *ChatTurnRepositoryImpl) applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

func (r *ChatTurnRepositoryImpl) Append(ctx context.Context, turn *entity.ChatTurn) (bool, error) {
	m := r.mapper.ChatTurnToModel(turn)
	m.Id = 0
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "chat_session_id"}, {Name: "turn_key"}},
			DoNothing: true,
		}).
		Create(m)
	if res.Error != nil {
		return false, classifyError(res.Error)
	}

	if res.RowsAffected == 0 {
		// Same key already stored by an earlier attempt
		var existing model.ChatTurn
		query := r.applySpecifications(r.db.WithContext(ctx),
			specification.ByChatSessionID{ChatSessionID: turn.ChatSessionId},
			specification.ByTurnKey{TurnKey: turn.TurnKey},
		)
		if err := query.First(&existing).Error; err != nil {
			return false, fmt.Errorf("load deduplicated turn %q: %w", turn.TurnKey, err)
		}
		*turn = *r.mapper.ChatTurnToEntity(&existing)
		return false, nil
	}

	*turn = *r.mapper.ChatTurnToEntity(m)
	return true, nil
}

func (r *ChatTurnRepositoryImpl) FindRecent(ctx context.Context, sessionId uuid.UUID, beforeId int64, limit int) ([]*entity.ChatTurn, error) {
	specs := []specification.Specification{
		specification.ByChatSessionID{ChatSessionID: sessionId},
		specification.TurnIDBefore{ID: beforeId},
	}
	specs = append(specs, specification.Chronological(true)...)
	specs = append(specs, specification.Pagination{Limit: limit})

	turns, err := r.findAll(ctx, specs...)
	if err != nil {
		return nil, err
	}
	slices.Reverse(turns)
	return turns, nil
}

func (r *ChatTurnRepositoryImpl) FindBySession(ctx context.Context, sessionId uuid.UUID) ([]*entity.ChatTurn, error) {
	specs := append(
		[]specification.Specification{specification.ByChatSessionID{ChatSessionID: sessionId}},
		specification.Chronological(false)...,
	)
	return r.findAll(ctx, specs...)
}

func (r *ChatTurnRepositoryImpl) findAll(ctx context.Context, specs ...specification.Specification) ([]*entity.ChatTurn, error) {
	var models []*model.ChatTurn
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	return r.mapper.ChatTurnsToEntities(models), nil
}

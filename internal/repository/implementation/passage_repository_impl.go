package implementation

import (
	"context"

	"rag-agent-be/internal/entity"
	"rag-agent-be/internal/mapper"
	"rag-agent-be/internal/model"
	"rag-agent-be/internal/repository/contract"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

type PassageRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.PassageMapper
}

func NewPassageRepository(db *gorm.DB) contract.PassageRepository {
	return &PassageRepositoryImpl{
		db:     db,
		mapper: mapper.NewPassageMapper(),
	}
}

// SearchSimilar ranks passages by cosine similarity. pgvector's <=> is cosine
// distance, so similarity is 1 - distance.
func (r *PassageRepositoryImpl) SearchSimilar(ctx context.Context, embedding []float32, limit int, threshold float64) ([]*contract.ScoredPassage, error) {
	if limit <= 0 {
		limit = 3
	}

	type result struct {
		model.DocumentPassage
		Similarity float64
	}
	var results []result

	queryVector := pgvector.NewVector(embedding)

	err := r.db.WithContext(ctx).
		Table(model.DocumentPassage{}.TableName()).
		Select("document_passages.*, 1 - (embedding <=> ?) AS similarity", queryVector).
		Where("1 - (embedding <=> ?) >= ?", queryVector, threshold).
		Order(gorm.Expr("embedding <=> ?", queryVector)).
		Limit(limit).
		Scan(&results).Error
	if err != nil {
		return nil, err
	}

	scored := make([]*contract.ScoredPassage, len(results))
	for i := range results {
		scored[i] = &contract.ScoredPassage{
			Passage:    r.mapper.ToEntity(&results[i].DocumentPassage),
			Similarity: results[i].Similarity,
		}
	}
	return scored, nil
}

func (r *PassageRepositoryImpl) CreateBulk(ctx context.Context, passages []*entity.DocumentPassage) error {
	if len(passages) == 0 {
		return nil
	}
	models := make([]*model.DocumentPassage, len(passages))
	for i, p := range passages {
		models[i] = r.mapper.ToModel(p)
	}

	if err := r.db.WithContext(ctx).CreateInBatches(models, 100).Error; err != nil {
		return classifyError(err)
	}

	for i, m := range models {
		*passages[i] = *r.mapper.ToEntity(m)
	}
	return nil
}

func (r *PassageRepositoryImpl) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.DocumentPassage{}).Count(&count).Error
	return count, err
}

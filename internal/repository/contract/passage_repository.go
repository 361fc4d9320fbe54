package contract

import (
	"context"

	"rag-agent-be/internal/entity"
)

type ScoredPassage struct {
	Passage    *entity.DocumentPassage
	Similarity float64
}

type PassageRepository interface {
	// SearchSimilar returns at most limit passages whose cosine similarity to
	// embedding is at least threshold, most similar first.
	SearchSimilar(ctx context.Context, embedding []float32, limit int, threshold float64) ([]*ScoredPassage, error)
	CreateBulk(ctx context.Context, passages []*entity.DocumentPassage) error
	Count(ctx context.Context) (int64, error)
}

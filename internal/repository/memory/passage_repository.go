package memory

import (
	"context"
	"math"
	"sort"
	"sync"

	"rag-agent-be/internal/entity"
	"rag-agent-be/internal/repository/contract"

	"github.com/google/uuid"
)

// PassageRepository is a brute-force cosine index over passages held in memory.
type PassageRepository struct {
	mu       sync.RWMutex
	passages []*entity.DocumentPassage
}

var _ contract.PassageRepository = (*PassageRepository)(nil)

func NewPassageRepository() *PassageRepository {
	return &PassageRepository{}
}

func (r *PassageRepository) SearchSimilar(ctx context.Context, embedding []float32, limit int, threshold float64) ([]*contract.ScoredPassage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 3
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var scored []*contract.ScoredPassage
	for _, p := range r.passages {
		if len(p.Embedding) != len(embedding) {
			continue
		}
		similarity := cosine(embedding, p.Embedding)
		if similarity < threshold {
			continue
		}
		c := *p
		scored = append(scored, &contract.ScoredPassage{Passage: &c, Similarity: similarity})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Similarity > scored[j].Similarity
	})
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

func (r *PassageRepository) CreateBulk(ctx context.Context, passages []*entity.DocumentPassage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range passages {
		if p.Id == uuid.Nil {
			p.Id = uuid.New()
		}
		c := *p
		c.Embedding = append([]float32(nil), p.Embedding...)
		r.passages = append(r.passages, &c)
	}
	return nil
}

func (r *PassageRepository) Count(ctx context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.passages)), nil
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

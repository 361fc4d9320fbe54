package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rag-agent-be/internal/constant"
	"rag-agent-be/internal/entity"
	"rag-agent-be/internal/pkg/logger"
	"rag-agent-be/internal/repository/contract"
	"rag-agent-be/internal/repository/unitofwork"
	"rag-agent-be/pkg/embedding"
	"rag-agent-be/pkg/store"
)

const (
	StageEmbedding = "embedding"
	StageRetrieval = "retrieval"
)

var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Outcome is the result of one retrieval. A degraded outcome carries no
// passages and names the stage that failed; it is never an error for the turn.
type Outcome struct {
	Passages []store.Passage
	Degraded bool
	Stage    string
	Err      error

	EmbeddingLatency time.Duration
	RetrievalLatency time.Duration
}

type Config struct {
	MinScore         float64
	Dimensions       int
	EmbeddingTimeout time.Duration
	RetrievalTimeout time.Duration
}

// Retriever embeds a query and looks up the nearest passages.
type Retriever struct {
	embedder    embedding.EmbeddingProvider
	repoFactory unitofwork.RepositoryFactory
	cfg         Config
	logger      logger.ILogger
}

func NewRetriever(embedder embedding.EmbeddingProvider, repoFactory unitofwork.RepositoryFactory, cfg Config, log logger.ILogger) *Retriever {
	return &Retriever{
		embedder:    embedder,
		repoFactory: repoFactory,
		cfg:         cfg,
		logger:      log,
	}
}

// Retrieve returns at most k passages, most relevant first, one per source.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) Outcome {
	var out Outcome
	if k <= 0 {
		return out
	}

	start := time.Now()
	vector, err := r.embed(ctx, query)
	out.EmbeddingLatency = time.Since(start)
	if err != nil {
		return r.degrade(out, StageEmbedding, err)
	}

	start = time.Now()
	results, err := r.search(ctx, vector, k)
	out.RetrievalLatency = time.Since(start)
	if err != nil {
		return r.degrade(out, StageRetrieval, err)
	}

	seen := make(map[string]bool, len(results))
	for _, res := range results {
		if res == nil || res.Passage == nil {
			continue
		}
		sourceID := sourceIDOf(res.Passage)
		if seen[sourceID] {
			continue
		}
		seen[sourceID] = true
		out.Passages = append(out.Passages, store.Passage{
			SourceID: sourceID,
			Text:     res.Passage.Content,
			Score:    float32(res.Similarity),
			Header:   res.Passage.Header,
			URL:      res.Passage.Url,
		})
	}
	store.SortByScore(out.Passages)
	if len(out.Passages) > k {
		out.Passages = out.Passages[:k]
	}

	r.logger.Debug("RETRIEVER", "Passages retrieved", map[string]interface{}{
		"count":         len(out.Passages),
		"embedding_ms":  out.EmbeddingLatency.Milliseconds(),
		"retrieval_ms":  out.RetrievalLatency.Milliseconds(),
		"requested_top": k,
	})
	return out
}

func (r *Retriever) embed(ctx context.Context, query string) ([]float32, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.EmbeddingTimeout)
	defer cancel()

	res, err := r.embedder.Generate(ctx, query, constant.EmbeddingTaskRetrievalQuery)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	values := res.Embedding.Values
	if r.cfg.Dimensions > 0 && len(values) != r.cfg.Dimensions {
		return nil, fmt.Errorf("%w: got %d, index expects %d", ErrDimensionMismatch, len(values), r.cfg.Dimensions)
	}
	return values, nil
}

func (r *Retriever) search(ctx context.Context, vector []float32, k int) ([]*contract.ScoredPassage, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.RetrievalTimeout)
	defer cancel()

	// over-fetch so that de-duplicating by source still fills k
	results, err := r.repoFactory.NewUnitOfWork(ctx).PassageRepository().SearchSimilar(ctx, vector, k*2, r.cfg.MinScore)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	return results, nil
}

func (r *Retriever) degrade(out Outcome, stage string, err error) Outcome {
	r.logger.Warn("RETRIEVER", "Retrieval degraded, answering without book context", map[string]interface{}{
		"stage": stage,
		"error": err.Error(),
	})
	out.Passages = nil
	out.Degraded = true
	out.Stage = stage
	out.Err = err
	return out
}

// sourceIDOf prefers the ingestion-assigned id, then the page url and header,
// and finally the row id.
func sourceIDOf(p *entity.DocumentPassage) string {
	switch {
	case p.SourceId != "":
		return p.SourceId
	case p.Url != "":
		return p.Url
	case p.Header != "":
		return p.Header
	default:
		return p.Id.String()
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

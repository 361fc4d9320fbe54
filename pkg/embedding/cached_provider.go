package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "emb:"

// CachedProvider memoises query embeddings. Lookups go to an in-process
// cache first, then to Redis when a client is configured. Cache failures are
// never fatal: a Redis error falls through to the wrapped provider.
type CachedProvider struct {
	next      EmbeddingProvider
	namespace string
	local     *cache.Cache
	redis     redis.UniversalClient
	ttl       time.Duration
}

// NewCachedProvider wraps next. namespace should identify the model so that
// switching models never serves stale vectors. rdb may be nil.
func NewCachedProvider(next EmbeddingProvider, namespace string, rdb redis.UniversalClient, ttl time.Duration) *CachedProvider {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &CachedProvider{
		next:      next,
		namespace: namespace,
		local:     cache.New(ttl, 10*time.Minute),
		redis:     rdb,
		ttl:       ttl,
	}
}

func (p *CachedProvider) Generate(ctx context.Context, text string, taskType string) (*EmbeddingResponse, error) {
	key := p.key(text, taskType)

	if x, found := p.local.Get(key); found {
		return cloneResponse(x.(*EmbeddingResponse)), nil
	}

	if p.redis != nil {
		if raw, err := p.redis.Get(ctx, key).Bytes(); err == nil {
			var values []float32
			if json.Unmarshal(raw, &values) == nil && len(values) > 0 {
				res := &EmbeddingResponse{Embedding: EmbeddingResponseEmbedding{Values: values}}
				p.local.Set(key, res, cache.DefaultExpiration)
				return cloneResponse(res), nil
			}
		}
	}

	res, err := p.next.Generate(ctx, text, taskType)
	if err != nil {
		return nil, err
	}

	p.local.Set(key, cloneResponse(res), cache.DefaultExpiration)
	if p.redis != nil {
		if raw, err := json.Marshal(res.Embedding.Values); err == nil {
			// best effort; the local cache already holds the value
			_ = p.redis.Set(ctx, key, raw, p.ttl).Err()
		}
	}
	return res, nil
}

// Ping delegates to the wrapped provider. Redis has its own health check.
func (p *CachedProvider) Ping(ctx context.Context) error {
	if pinger, ok := p.next.(Pinger); ok {
		return pinger.Ping(ctx)
	}
	_, err := p.next.Generate(ctx, "ping", "")
	return err
}

func (p *CachedProvider) key(text, taskType string) string {
	sum := sha256.Sum256([]byte(p.namespace + "\x00" + taskType + "\x00" + text))
	return cacheKeyPrefix + hex.EncodeToString(sum[:])
}

func cloneResponse(r *EmbeddingResponse) *EmbeddingResponse {
	values := make([]float32, len(r.Embedding.Values))
	copy(values, r.Embedding.Values)
	return &EmbeddingResponse{Embedding: EmbeddingResponseEmbedding{Values: values}}
}

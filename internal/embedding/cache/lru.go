// Package cache memoizes embedding batches in an expirable LRU.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"ragqa/internal/embedding"
)

type entry struct {
	tier   string
	vector []float32
}

// Embedder serves a batch from cache only when every text hits and all hits came from
// the same tier; anything else goes to the wrapped resolver as a whole batch.
type Embedder struct {
	next   embedding.Resolver
	cache  *expirable.LRU[string, entry]
	logger *zap.Logger
}

// Wrap returns next unchanged when size or ttl disable caching.
func Wrap(next embedding.Resolver, size int, ttl time.Duration, logger *zap.Logger) embedding.Resolver {
	if next == nil || size <= 0 || ttl <= 0 {
		return next
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Embedder{
		next:   next,
		cache:  expirable.NewLRU[string, entry](size, nil, ttl),
		logger: logger,
	}
}

func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	res, err := e.Resolve(ctx, texts)
	if err != nil {
		return nil, err
	}
	return res.Vectors, nil
}

func (e *Embedder) Resolve(ctx context.Context, texts []string) (embedding.Result, error) {
	if len(texts) == 0 {
		return embedding.Result{}, nil
	}
	if res, ok := e.lookup(texts); ok {
		e.logger.Debug("embedding cache hit", zap.Int("texts", len(texts)), zap.String("tier", res.Tier))
		return res, nil
	}
	res, err := e.next.Resolve(ctx, texts)
	if err != nil {
		return res, err
	}
	for i, t := range texts {
		e.cache.Add(cacheKey(t), entry{tier: res.Tier, vector: clone(res.Vectors[i])})
	}
	return res, nil
}

func (e *Embedder) lookup(texts []string) (embedding.Result, bool) {
	vectors := make([][]float32, len(texts))
	tier := ""
	for i, t := range texts {
		hit, ok := e.cache.Get(cacheKey(t))
		if !ok {
			return embedding.Result{}, false
		}
		if i > 0 && hit.tier != tier {
			return embedding.Result{}, false
		}
		tier = hit.tier
		vectors[i] = clone(hit.vector)
	}
	return embedding.Result{Vectors: vectors, Tier: tier}, true
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func clone(values []float32) []float32 {
	out := make([]float32, len(values))
	copy(out, values)
	return out
}

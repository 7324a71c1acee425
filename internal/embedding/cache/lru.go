package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"docqa/internal/domain"
	"docqa/internal/embedding"
)

// WrapLRU keeps recently embedded texts (typically chat queries) in memory.
// A non-positive size or ttl disables the cache and returns e unchanged.
func WrapLRU(e domain.Embedder, size int, ttl time.Duration) domain.Embedder {
	if e == nil || size <= 0 || ttl <= 0 {
		return e
	}
	return &lruEmbedder{
		next:  e,
		cache: expirable.NewLRU[string, []float32](size, nil, ttl),
	}
}

type lruEmbedder struct {
	next  domain.Embedder
	cache *expirable.LRU[string, []float32]
}

func (l *lruEmbedder) ModelName() string { return l.next.ModelName() }

func (l *lruEmbedder) Dimension() int { return l.next.Dimension() }

func (l *lruEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	prefix := modelKey(l.next.ModelName()) + ":"
	var missIdx []int
	var missTexts []string
	for i, text := range texts {
		if cached, ok := l.cache.Get(prefix + contentHash(text)); ok {
			out[i] = cloneEmbedding(cached)
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}
	if len(missTexts) == 0 {
		logutil.GetLogger(ctx).Debug("embedding cache hit (lru)", zap.Int("count", len(texts)))
		return out, nil
	}
	vecs, err := l.next.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if err := embedding.CheckBatch(vecs, len(missTexts), 0); err != nil {
		return nil, err
	}
	for j, i := range missIdx {
		out[i] = vecs[j]
		l.cache.Add(prefix+contentHash(missTexts[j]), cloneEmbedding(vecs[j]))
	}
	return out, nil
}

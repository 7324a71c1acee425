package cache

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"docqa/internal/domain"
	"docqa/internal/embedding"
	"docqa/internal/store"
)

// Repo is the persistence used by WrapPersistent.
type Repo interface {
	GetMany(ctx context.Context, modelName string, hashes []string) (map[string][]float32, error)
	SaveMany(ctx context.Context, items []store.CachedEmbedding) error
}

// WrapPersistent stores every computed embedding so that re-ingesting or rebuilding
// the index does not re-embed unchanged chunks.
func WrapPersistent(e domain.Embedder, repo Repo) domain.Embedder {
	if e == nil || repo == nil {
		return e
	}
	return &dbEmbedder{next: e, repo: repo}
}

type dbEmbedder struct {
	next domain.Embedder
	repo Repo
}

func (d *dbEmbedder) ModelName() string { return d.next.ModelName() }

func (d *dbEmbedder) Dimension() int { return d.next.Dimension() }

func (d *dbEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	model := modelKey(d.next.ModelName())
	hashes := make([]string, len(texts))
	for i, text := range texts {
		hashes[i] = contentHash(text)
	}
	cached, err := d.repo.GetMany(ctx, model, hashes)
	if err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string
	dim := d.next.Dimension()
	for i, h := range hashes {
		if v, ok := cached[h]; ok && (dim == 0 || len(v) == dim) {
			out[i] = v
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, texts[i])
	}
	logutil.GetLogger(ctx).Debug("embedding cache lookup (db)",
		zap.Int("hits", len(texts)-len(missTexts)), zap.Int("misses", len(missTexts)))
	if len(missTexts) == 0 {
		return out, nil
	}
	vecs, err := d.next.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if err := embedding.CheckBatch(vecs, len(missTexts), 0); err != nil {
		return nil, err
	}
	now := time.Now().Unix()
	items := make([]store.CachedEmbedding, 0, len(missIdx))
	for j, i := range missIdx {
		out[i] = vecs[j]
		items = append(items, store.CachedEmbedding{
			ModelName:   model,
			ContentHash: hashes[i],
			Embedding:   vecs[j],
			Ctime:       now,
		})
	}
	if err := d.repo.SaveMany(ctx, items); err != nil {
		logutil.GetLogger(ctx).Warn("failed to cache embeddings", zap.Error(err))
	}
	return out, nil
}

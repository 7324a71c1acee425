package retriever

import (
	"context"
	"fmt"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"docqa/internal/blocklist"
	"docqa/internal/domain"
)

// Index is the read side of the vector index used for retrieval.
type Index interface {
	SearchChunks(query []float32, topN int) ([]domain.Hit, error)
}

// Retriever turns a query into scored chunks.
type Retriever struct {
	embedder domain.Embedder
	index    Index
	blocked  *blocklist.List
}

func New(embedder domain.Embedder, index Index, blocked *blocklist.List) *Retriever {
	return &Retriever{embedder: embedder, index: index, blocked: blocked}
}

// EmbedQuery embeds a single query text.
func (r *Retriever) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	vecs, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embed query: got %d vectors", len(vecs))
	}
	return vecs[0], nil
}

// Retrieve embeds query and returns up to topN non-blocked chunks in index order.
func (r *Retriever) Retrieve(ctx context.Context, query string, topN int) ([]domain.Hit, error) {
	vec, err := r.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	return r.SearchVector(ctx, vec, topN)
}

// SearchVector searches with a precomputed query vector. Hits whose source basename
// is blocklisted are dropped; survivors keep the index ordering.
func (r *Retriever) SearchVector(ctx context.Context, vec []float32, topN int) ([]domain.Hit, error) {
	hits, err := r.index.SearchChunks(vec, topN)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}
	out := hits[:0]
	for _, h := range hits {
		if r.blocked.Contains(h.Chunk.Source) || r.blocked.Contains(h.Chunk.DocID) {
			logutil.GetLogger(ctx).Debug("drop blocklisted hit", zap.Int("id", h.ID), zap.String("source", h.Chunk.Source))
			continue
		}
		out = append(out, h)
	}
	return out, nil
}

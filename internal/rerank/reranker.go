package rerank

import (
	"context"
	"fmt"
	"sort"

	"docqa/internal/domain"
)

// Candidate is a retrieved chunk together with its stored vector.
type Candidate = domain.Hit

// Reranker narrows broad retrieval candidates down to the k passages used for generation.
type Reranker interface {
	Name() string
	Rerank(ctx context.Context, query string, queryVec []float32, candidates []Candidate, k int) ([]domain.ScoredChunk, error)
}

// MMR diversifies candidates with SelectDiverse. It is the variant used when no
// pairwise scorer is configured.
type MMR struct {
	Lambda float64
}

func NewMMR(lambda float64) *MMR {
	return &MMR{Lambda: lambda}
}

func (m *MMR) Name() string { return "mmr" }

func (m *MMR) Rerank(_ context.Context, _ string, queryVec []float32, candidates []Candidate, k int) ([]domain.ScoredChunk, error) {
	vectors := make([][]float32, len(candidates))
	for i, c := range candidates {
		vectors[i] = c.Vector
	}
	picks := SelectDiverse(queryVec, vectors, k, m.Lambda)
	out := make([]domain.ScoredChunk, len(picks))
	for i, p := range picks {
		out[i] = candidates[p.Index].ScoredChunk
		out[i].Score = p.Relevance
	}
	return out, nil
}

// CrossEncoder orders candidates by a joint (query, passage) relevance score.
type CrossEncoder struct {
	scorer domain.PairScorer
	name   string
}

func NewCrossEncoder(name string, scorer domain.PairScorer) *CrossEncoder {
	return &CrossEncoder{scorer: scorer, name: name}
}

func (c *CrossEncoder) Name() string { return c.name }

// Rerank returns the top k candidates by descending pair score; ties keep candidate order.
func (c *CrossEncoder) Rerank(ctx context.Context, query string, _ []float32, candidates []Candidate, k int) ([]domain.ScoredChunk, error) {
	scored := make([]domain.ScoredChunk, len(candidates))
	for i, cand := range candidates {
		s, err := c.scorer.Score(ctx, query, cand.Chunk.Text)
		if err != nil {
			return nil, fmt.Errorf("score candidate %d: %w", cand.ID, err)
		}
		scored[i] = cand.ScoredChunk
		scored[i].Score = s
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if k < 0 {
		k = 0
	}
	if k > len(scored) {
		k = len(scored)
	}
	return scored[:k], nil
}

package rerank

import (
	"math"

	"docqa/internal/embedding"
)

// DefaultLambda weights relevance against redundancy in SelectDiverse.
const DefaultLambda = 0.65

// Pick is one MMR selection: the position in the candidate slice and its query relevance.
type Pick struct {
	Index     int
	Relevance float64
}

// SelectDiverse greedily selects up to k candidates by maximal marginal relevance:
// the first pick is the most relevant vector, every following pick maximizes
// lambda*relevance - (1-lambda)*max similarity to the already selected ones.
// Ties go to the lowest candidate position. Picks are returned in selection order.
func SelectDiverse(query []float32, vectors [][]float32, k int, lambda float64) []Pick {
	n := len(vectors)
	if k > n {
		k = n
	}
	if k <= 0 {
		return []Pick{}
	}
	rel := make([]float64, n)
	maxSim := make([]float64, n)
	selected := make([]bool, n)
	for i, v := range vectors {
		rel[i] = embedding.Dot(query, v)
		maxSim[i] = math.Inf(-1)
	}
	out := make([]Pick, 0, k)
	for len(out) < k {
		best, bestScore := -1, math.Inf(-1)
		for i := 0; i < n; i++ {
			if selected[i] {
				continue
			}
			score := rel[i]
			if len(out) > 0 {
				score = lambda*rel[i] - (1-lambda)*maxSim[i]
			}
			if best == -1 || score > bestScore {
				best, bestScore = i, score
			}
		}
		selected[best] = true
		out = append(out, Pick{Index: best, Relevance: rel[best]})
		for i := 0; i < n; i++ {
			if selected[i] {
				continue
			}
			if s := embedding.Dot(vectors[i], vectors[best]); s > maxSim[i] {
				maxSim[i] = s
			}
		}
	}
	return out
}

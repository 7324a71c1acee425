package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"docqa/internal/domain"
)

var (
	ErrNoIndex           = errors.New("index has not been created")
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrLengthMismatch    = errors.New("vectors and metadata length mismatch")
	ErrCorruptIndex      = errors.New("corrupt index artifacts")
)

// Stats summarizes the index state.
type Stats struct {
	Exists    bool   `json:"exists"`
	Dimension int    `json:"dimension"`
	Entries   int    `json:"entries"`
	Version   uint64 `json:"version"`
}

// Index is an exact inner-product index over L2-normalized vectors with a parallel
// metadata slice. Entry ids are insertion ordinals and are never reused.
type Index struct {
	mu  sync.RWMutex
	dir string
	st  state
}

type state struct {
	exists    bool
	dimension int
	vectors   [][]float32
	meta      []domain.Chunk
	version   uint64
}

// New returns an empty index persisted under dir. An empty dir keeps the index in memory only.
func New(dir string) *Index {
	return &Index{dir: dir}
}

// Dir returns the persistence directory.
func (x *Index) Dir() string { return x.dir }

// Create replaces the contents of the index with the given entries.
func (x *Index) Create(vectors [][]float32, meta []domain.Chunk) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.st.create(vectors, meta)
}

// Add appends entries; ids continue from the current length.
func (x *Index) Add(vectors [][]float32, meta []domain.Chunk) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.st.add(vectors, meta)
}

// Rebuild drops every entry and resets the index to an empty index of the given dimension.
func (x *Index) Rebuild(ctx context.Context, dimension int, reason string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.st.rebuild(ctx, dimension, reason)
}

// Search returns up to topN entries ordered by descending inner product with query.
// Ties are broken by the lower id. An empty index yields an empty result.
func (x *Index) Search(query []float32, topN int) ([]domain.ScoredID, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.st.search(query, topN)
}

// SearchChunks is Search with the metadata and a copy of the vector of every hit,
// all read under one lock so a concurrent rebuild cannot mix snapshots.
func (x *Index) SearchChunks(query []float32, topN int) ([]domain.Hit, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	ids, err := x.st.search(query, topN)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Hit, len(ids))
	for i, h := range ids {
		out[i] = domain.Hit{
			ScoredChunk: domain.ScoredChunk{ID: h.ID, Score: h.Score, Chunk: x.st.meta[h.ID]},
			Vector:      append([]float32(nil), x.st.vectors[h.ID]...),
		}
	}
	return out, nil
}

func (s *state) search(query []float32, topN int) ([]domain.ScoredID, error) {
	if len(s.vectors) == 0 || topN <= 0 {
		return []domain.ScoredID{}, nil
	}
	if len(query) != s.dimension {
		return nil, fmt.Errorf("query has dimension %d, index has %d: %w", len(query), s.dimension, ErrDimensionMismatch)
	}
	scores := make([]float64, len(s.vectors))
	for i, v := range s.vectors {
		scores[i] = clamp(dot(v, query))
	}
	idxs := argsortDesc(scores)
	if topN > len(idxs) {
		topN = len(idxs)
	}
	out := make([]domain.ScoredID, 0, topN)
	for _, id := range idxs[:topN] {
		out = append(out, domain.ScoredID{ID: id, Score: scores[id]})
	}
	return out, nil
}

// Chunk returns the metadata stored for id.
func (x *Index) Chunk(id int) (domain.Chunk, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if id < 0 || id >= len(x.st.meta) {
		return domain.Chunk{}, false
	}
	return x.st.meta[id], true
}

func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.st.vectors)
}

func (x *Index) Stats() Stats {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.st.stats()
}

func (s *state) stats() Stats {
	return Stats{Exists: s.exists, Dimension: s.dimension, Entries: len(s.vectors), Version: s.version}
}

func (s *state) create(vectors [][]float32, meta []domain.Chunk) error {
	if len(vectors) != len(meta) {
		return ErrLengthMismatch
	}
	if len(vectors) == 0 {
		return errors.New("create requires at least one vector")
	}
	dim := len(vectors[0])
	if dim == 0 {
		return fmt.Errorf("empty vector: %w", ErrDimensionMismatch)
	}
	if err := checkDimension(vectors, dim); err != nil {
		return err
	}
	s.exists = true
	s.dimension = dim
	s.vectors = append([][]float32(nil), vectors...)
	s.meta = append([]domain.Chunk(nil), meta...)
	return nil
}

func (s *state) add(vectors [][]float32, meta []domain.Chunk) error {
	if !s.exists {
		return ErrNoIndex
	}
	if len(vectors) != len(meta) {
		return ErrLengthMismatch
	}
	if err := checkDimension(vectors, s.dimension); err != nil {
		return err
	}
	s.vectors = append(s.vectors, vectors...)
	s.meta = append(s.meta, meta...)
	return nil
}

func (s *state) rebuild(ctx context.Context, dimension int, reason string) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid dimension %d", dimension)
	}
	logutil.GetLogger(ctx).Warn("rebuilding vector index, existing entries dropped",
		zap.Int("dropped_entries", len(s.vectors)),
		zap.Int("old_dimension", s.dimension),
		zap.Int("new_dimension", dimension),
		zap.String("reason", reason),
	)
	s.exists = true
	s.dimension = dimension
	s.vectors = nil
	s.meta = nil
	s.version++
	return nil
}

func checkDimension(vectors [][]float32, dim int) error {
	for i, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("vector %d has dimension %d, want %d: %w", i, len(v), dim, ErrDimensionMismatch)
		}
	}
	return nil
}

func dot(a, b []float32) float64 {
	sum := 0.0
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// Normalized vectors can drift slightly past unit length in float32.
func clamp(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

func argsortDesc(vals []float64) []int {
	idxs := make([]int, len(vals))
	for i := range vals {
		idxs[i] = i
	}
	sort.SliceStable(idxs, func(a, b int) bool {
		return vals[idxs[a]] > vals[idxs[b]]
	})
	return idxs
}

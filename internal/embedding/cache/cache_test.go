package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"docqa/internal/store"
)

type countingEmbedder struct {
	calls  int
	inputs []string
}

func (c *countingEmbedder) ModelName() string { return "counting" }

func (c *countingEmbedder) Dimension() int { return 2 }

func (c *countingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	c.calls++
	c.inputs = append(c.inputs, texts...)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

func TestLRUOnlyEmbedsMisses(t *testing.T) {
	ctx := context.Background()
	inner := &countingEmbedder{}
	e := WrapLRU(inner, 16, time.Minute)

	first, err := e.Embed(ctx, []string{"a", "bb"})
	require.NoError(t, err)
	second, err := e.Embed(ctx, []string{"bb", "ccc"})
	require.NoError(t, err)

	require.Equal(t, first[1], second[0])
	require.Equal(t, []string{"a", "bb", "ccc"}, inner.inputs)
	require.Equal(t, 2, inner.calls)
}

type shortEmbedder struct{ countingEmbedder }

func (s *shortEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out, err := s.countingEmbedder.Embed(ctx, texts)
	return out[:len(out)-1], err
}

func TestWrappersRejectShortBatch(t *testing.T) {
	ctx := context.Background()
	_, err := WrapLRU(&shortEmbedder{}, 16, time.Minute).Embed(ctx, []string{"a", "bb"})
	require.ErrorContains(t, err, "embedding count mismatch")

	s, err := store.Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	defer s.Close()
	_, err = WrapPersistent(&shortEmbedder{}, s.EmbeddingCache()).Embed(ctx, []string{"a", "bb"})
	require.ErrorContains(t, err, "embedding count mismatch")
}

func TestLRUDisabled(t *testing.T) {
	inner := &countingEmbedder{}
	require.Same(t, inner, WrapLRU(inner, 0, time.Minute))
}

func TestPersistentSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "cache.db")

	s, err := store.Open(dsn)
	require.NoError(t, err)
	inner := &countingEmbedder{}
	e := WrapPersistent(inner, s.EmbeddingCache())
	_, err = e.Embed(ctx, []string{"alpha", "beta"})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = store.Open(dsn)
	require.NoError(t, err)
	defer s.Close()
	inner2 := &countingEmbedder{}
	e = WrapPersistent(inner2, s.EmbeddingCache())
	vecs, err := e.Embed(ctx, []string{"beta", "gamma", "alpha"})
	require.NoError(t, err)
	require.Equal(t, []string{"gamma"}, inner2.inputs)
	require.Equal(t, []float32{4, 1}, vecs[0])
	require.Equal(t, []float32{5, 1}, vecs[1])
	require.Equal(t, []float32{5, 1}, vecs[2])
}

package retriever

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"docqa/internal/blocklist"
	"docqa/internal/domain"
	"docqa/internal/vectorindex"
)

type fixedEmbedder struct {
	vec []float32
}

func (f fixedEmbedder) ModelName() string { return "fixed" }
func (f fixedEmbedder) Dimension() int    { return len(f.vec) }
func (f fixedEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vec
	}
	return out, nil
}

func TestRetrieveExcludesBlocklistedSources(t *testing.T) {
	idx := vectorindex.New("")
	require.NoError(t, idx.Create(
		[][]float32{{1, 0}, {0.8, 0.6}, {0.6, 0.8}, {0, 1}},
		[]domain.Chunk{
			{DocID: "index.md", Source: "corpus/index.md", Text: "table of contents"},
			{DocID: "guide.md", Source: "corpus/guide.md", Text: "guide"},
			{DocID: "GLOSSARY.txt", Source: "corpus/GLOSSARY.txt", Text: "terms"},
			{DocID: "notes.txt", Source: "corpus/notes.txt", Text: "notes"},
		},
	))
	r := New(fixedEmbedder{vec: []float32{1, 0}}, idx, blocklist.Default())

	got, err := r.Retrieve(context.Background(), "anything", 4)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, 1, got[0].ID)
	require.Equal(t, 3, got[1].ID)
	require.InDelta(t, 0.8, got[0].Vector[0], 1e-6)
	for _, h := range got {
		require.False(t, blocklist.Default().Contains(h.Chunk.Source))
	}
}

func TestRetrieveEmptyIndex(t *testing.T) {
	r := New(fixedEmbedder{vec: []float32{1, 0}}, vectorindex.New(""), blocklist.Default())
	got, err := r.Retrieve(context.Background(), "q", 20)
	require.NoError(t, err)
	require.Empty(t, got)
}

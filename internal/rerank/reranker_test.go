package rerank

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"docqa/internal/domain"
)

type lengthScorer struct{}

func (lengthScorer) Score(_ context.Context, _ string, text string) (float64, error) {
	return float64(len(text)), nil
}

type failingScorer struct{}

func (failingScorer) Score(context.Context, string, string) (float64, error) {
	return 0, errors.New("scorer down")
}

func textCandidates(texts ...string) []Candidate {
	out := make([]Candidate, len(texts))
	for i, t := range texts {
		out[i] = Candidate{ScoredChunk: domain.ScoredChunk{ID: i, Score: 0.5, Chunk: domain.Chunk{Text: t}}}
	}
	return out
}

func TestCrossEncoderOrdersByPairScore(t *testing.T) {
	r := NewCrossEncoder("tei", lengthScorer{})
	out, err := r.Rerank(context.Background(), "q", nil, textCandidates("bb", "dddd", "a", "cccc"), 3)
	require.NoError(t, err)
	require.Len(t, out, 3)
	require.Equal(t, []int{1, 3, 0}, []int{out[0].ID, out[1].ID, out[2].ID})
	require.Equal(t, 4.0, out[0].Score)
}

func TestCrossEncoderPropagatesErrors(t *testing.T) {
	_, err := NewCrossEncoder("tei", failingScorer{}).Rerank(context.Background(), "q", nil, textCandidates("a"), 1)
	require.Error(t, err)
}

func TestRerankerVariants(t *testing.T) {
	var r Reranker = NewMMR(DefaultLambda)
	require.Equal(t, "mmr", r.Name())
	r = NewCrossEncoder("tei", lengthScorer{})
	require.Equal(t, "tei", r.Name())
}

func TestTEIScorer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/rerank", r.URL.Path)
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		var req teiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "what is go", req.Query)
		require.Len(t, req.Texts, 1)
		score := 0.1
		if strings.Contains(req.Texts[0], "Go") {
			score = 0.9
		}
		_ = json.NewEncoder(w).Encode([]teiResult{{Index: 0, Score: score}})
	}))
	defer srv.Close()

	s, err := NewTEIScorer(TEIConfig{URL: srv.URL + "/", APIKey: "secret"})
	require.NoError(t, err)
	got, err := s.Score(context.Background(), "what is go", "Go is a language")
	require.NoError(t, err)
	require.Equal(t, 0.9, got)
}

func TestTEIScorerHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s, err := NewTEIScorer(TEIConfig{URL: srv.URL})
	require.NoError(t, err)
	_, err = s.Score(context.Background(), "q", "t")
	require.ErrorContains(t, err, "503")

	_, err = NewTEIScorer(TEIConfig{})
	require.Error(t, err)
}

package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

type batchRequest struct {
	Requests []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"requests"`
}

// newEmbedServer answers batchEmbedContents with [len(text), 0, 1] per input.
func newEmbedServer(t *testing.T, calls *atomic.Int32, drop int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, ":batchEmbedContents"), r.URL.Path)
		calls.Add(1)
		var req batchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		embeddings := make([]map[string]any, 0, len(req.Requests))
		for _, item := range req.Requests[drop:] {
			text := item.Content.Parts[0].Text
			embeddings = append(embeddings, map[string]any{"values": []float32{float32(len(text)), 0, 1}})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": embeddings})
	}))
}

func TestEmbedBatchesAndNormalizes(t *testing.T) {
	var calls atomic.Int32
	srv := newEmbedServer(t, &calls, 0)
	defer srv.Close()

	c, err := NewClient(context.Background(), Config{BaseURL: srv.URL, APIKey: "test", BatchSize: 2})
	require.NoError(t, err)
	require.Equal(t, 3, c.Dimension())
	require.Equal(t, "text-embedding-004", c.ModelName())

	vecs, err := c.Embed(context.Background(), []string{"abc", "a", "abcd"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	require.Equal(t, int32(3), calls.Load())

	require.InDelta(t, 3/float32(3.1622777), vecs[0][0], 1e-5)
	require.InDelta(t, 1/float32(1.4142135), vecs[1][2], 1e-5)
	require.InDelta(t, 4/float32(4.1231055), vecs[2][0], 1e-5)
}

func TestEmbedRejectsShortResponse(t *testing.T) {
	var calls atomic.Int32
	srv := newEmbedServer(t, &calls, 1)
	defer srv.Close()

	c, err := NewClient(context.Background(), Config{BaseURL: srv.URL, APIKey: "test", Dimension: 3})
	require.NoError(t, err)
	_, err = c.Embed(context.Background(), []string{"a", "b"})
	require.ErrorContains(t, err, "unexpected embedding count")
}

func TestNewClientRequiresKey(t *testing.T) {
	_, err := NewClient(context.Background(), Config{Dimension: 3})
	require.ErrorIs(t, err, ErrMissingKey)
}

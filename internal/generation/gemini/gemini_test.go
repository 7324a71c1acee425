package gemini

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"docqa/internal/generation"
)

func newTestClient(t *testing.T, srv *httptest.Server, retries int) *Client {
	t.Helper()
	c, err := NewClient(context.Background(), Config{
		BaseURL:    srv.URL,
		APIKey:     "test",
		Timeout:    5 * time.Second,
		MaxRetries: retries,
	})
	require.NoError(t, err)
	return c
}

func TestGenerateReturnsCandidateText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "gemini-2.0-flash:generateContent"), r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"  grounded answer [1] "}]},"finishReason":"STOP"}]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, 0)
	require.Equal(t, "gemini/gemini-2.0-flash", c.Name())
	out, err := c.Generate(context.Background(), "system", "question")
	require.NoError(t, err)
	require.Equal(t, "grounded answer [1]", out)
}

func TestGenerateEmptyResponseIsProviderStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"   "}]}}]}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv, 0).Generate(context.Background(), "s", "u")
	var genErr *generation.Error
	require.ErrorAs(t, err, &genErr)
	require.Equal(t, generation.ProviderStatus, genErr.Kind)
}

func TestGenerateServerErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"code":500,"message":"internal","status":"INTERNAL"}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv, 2).Generate(context.Background(), "s", "u")
	var genErr *generation.Error
	require.ErrorAs(t, err, &genErr)
	require.Equal(t, generation.ProviderStatus, genErr.Kind)
	require.Equal(t, int32(1), calls.Load())
}

func TestNewClientWithoutKeyIsUnavailable(t *testing.T) {
	_, err := NewClient(context.Background(), Config{})
	require.ErrorIs(t, err, generation.ErrUnavailable)
}

func TestIsConnectivity(t *testing.T) {
	require.True(t, isConnectivity(&net.OpError{Op: "dial", Err: errors.New("refused")}))
	require.True(t, isConnectivity(context.DeadlineExceeded))
	require.False(t, isConnectivity(errors.New("bad request")))
}

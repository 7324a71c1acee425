package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"docqa/internal/chunker"
	"docqa/internal/domain"
	"docqa/internal/embedding/hashing"
	"docqa/internal/generation"
	"docqa/internal/rerank"
	"docqa/internal/service"
	"docqa/internal/vectorindex"
)

type stubGenerator struct {
	err error
}

func (g *stubGenerator) Name() string { return "stub" }

func (g *stubGenerator) Generate(context.Context, string, string) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	return "grounded answer [1]", nil
}

type apiEnv struct {
	engine  *gin.Engine
	dataDir string
	gen     *stubGenerator
}

func newAPIEnv(t *testing.T, apiKey string) *apiEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	tok, err := chunker.NewTokenizer(chunker.WordsTokenizer)
	require.NoError(t, err)
	ch, err := chunker.NewTokenChunker(tok, 20, 5)
	require.NoError(t, err)
	emb, err := hashing.NewEmbedder(64)
	require.NoError(t, err)
	gen := &stubGenerator{}
	p := service.NewPipeline(service.Deps{
		Index:     vectorindex.New(t.TempDir()),
		Embedder:  emb,
		Chunker:   ch,
		Reranker:  rerank.NewMMR(rerank.DefaultLambda),
		Generator: gen,
	}, service.Options{Candidates: 20, DefaultK: 5, MaxK: 10})
	dataDir := t.TempDir()
	engine := NewEngine(RouterDeps{Handler: NewHandler(p, []string{dataDir}), APIKey: apiKey}, nil)
	return &apiEnv{engine: engine, dataDir: dataDir, gen: gen}
}

func (e *apiEnv) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.engine.ServeHTTP(rec, req)
	return rec
}

func (e *apiEnv) writeDoc(t *testing.T, name string, n int) {
	t.Helper()
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("word%d", i)
	}
	require.NoError(t, os.WriteFile(filepath.Join(e.dataDir, name), []byte(strings.Join(parts, " ")), 0o644))
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealthOnEmptyIndex(t *testing.T) {
	env := newAPIEnv(t, "")
	rec := env.do(http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	require.Equal(t, true, body["ok"])
	require.Equal(t, false, body["exists"])
	require.Equal(t, float64(0), body["entries"])
	require.Equal(t, "mmr", body["reranker"])
}

func TestIngestThenChat(t *testing.T) {
	env := newAPIEnv(t, "")
	env.writeDoc(t, "notes.txt", 50)

	rec := env.do(http.MethodPost, "/ingest", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	require.Equal(t, true, body["ok"])
	require.Equal(t, "indexed", body["status"])
	require.Equal(t, float64(3), body["chunks_indexed"])
	require.Equal(t, float64(1), body["docs"])

	rec = env.do(http.MethodPost, "/chat", `{"query":"word3 word4","k":2}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp chatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "grounded answer [1]", resp.Answer)
	require.NotEmpty(t, resp.Sources)
	require.LessOrEqual(t, len(resp.Sources), 2)
	seen := map[int]bool{}
	for _, src := range resp.Sources {
		require.GreaterOrEqual(t, src.ID, 0)
		require.Less(t, src.ID, 3)
		require.False(t, seen[src.ID])
		seen[src.ID] = true
		require.Equal(t, "notes.txt", src.DocID)
		require.NotEmpty(t, src.Text)
		require.Greater(t, src.Score, 0.0)
	}

	rec = env.do(http.MethodGet, "/health", "", nil)
	body = decode(t, rec)
	require.Equal(t, true, body["exists"])
	require.Equal(t, float64(64), body["dimension"])
	require.Equal(t, float64(3), body["entries"])
}

func TestSourcesMatchScoresByChunkID(t *testing.T) {
	res := &service.ChatResult{
		Answer: "a",
		Citations: []domain.Citation{
			{ID: 7, DocID: "x.md", Text: "x"},
			{ID: 2, DocID: "y.md", Text: "y"},
		},
		Scored: []domain.ScoredChunk{{ID: 2, Score: 0.4}, {ID: 7, Score: 0.9}},
	}
	got := toSources(res)
	require.Len(t, got, 2)
	require.Equal(t, 7, got[0].ID)
	require.InDelta(t, 0.9, got[0].Score, 1e-9)
	require.Equal(t, 2, got[1].ID)
	require.InDelta(t, 0.4, got[1].Score, 1e-9)
}

func TestIngestWithoutDocuments(t *testing.T) {
	env := newAPIEnv(t, "")
	rec := env.do(http.MethodPost, "/ingest", fmt.Sprintf(`{"paths":[%q]}`, env.dataDir), nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode(t, rec)
	require.Equal(t, false, body["ok"])
	require.Equal(t, "no_documents", body["status"])
}

func TestIngestRejectsPathOutsideDataDirs(t *testing.T) {
	env := newAPIEnv(t, "")
	rec := env.do(http.MethodPost, "/ingest", fmt.Sprintf(`{"paths":[%q]}`, t.TempDir()), nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "invalid", decode(t, rec)["error"])
}

func TestChatOnEmptyIndex(t *testing.T) {
	env := newAPIEnv(t, "")
	rec := env.do(http.MethodPost, "/chat", `{"query":"anything"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp chatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, service.EmptyIndexMessage, resp.Answer)
	require.Empty(t, resp.Sources)
}

func TestChatRequiresQuery(t *testing.T) {
	env := newAPIEnv(t, "")
	rec := env.do(http.MethodPost, "/chat", `{"query":"   "}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatGenerationFailure(t *testing.T) {
	env := newAPIEnv(t, "")
	env.writeDoc(t, "a.txt", 30)
	require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/ingest", "", nil).Code)

	env.gen.err = &generation.Error{Provider: "stub", Kind: generation.Connectivity, Err: context.DeadlineExceeded}
	rec := env.do(http.MethodPost, "/chat", `{"query":"word1"}`, nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode(t, rec)
	require.Equal(t, "chat_failed", body["error"])
	require.Equal(t, string(generation.Connectivity), body["kind"])
}

func TestAPIKeyGuard(t *testing.T) {
	env := newAPIEnv(t, "secret")

	require.Equal(t, http.StatusOK, env.do(http.MethodGet, "/health", "", nil).Code)
	require.Equal(t, http.StatusUnauthorized, env.do(http.MethodPost, "/chat", `{"query":"hi"}`, nil).Code)
	require.Equal(t, http.StatusUnauthorized,
		env.do(http.MethodPost, "/chat", `{"query":"hi"}`, map[string]string{APIKeyHeader: "wrong"}).Code)
	require.Equal(t, http.StatusOK,
		env.do(http.MethodPost, "/chat", `{"query":"hi"}`, map[string]string{APIKeyHeader: "secret"}).Code)
}

func TestCORS(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(CORS([]string{"https://app.example"}))
	engine.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	req := httptest.NewRequest(http.MethodOptions, "/ping", nil)
	req.Header.Set("Origin", "https://app.example")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "https://other.example")
	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

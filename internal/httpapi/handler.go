package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"docqa/internal/generation"
	"docqa/internal/service"
)

// Handler serves the question answering API on top of a Pipeline.
type Handler struct {
	pipeline *service.Pipeline
	dataDirs []string
}

func NewHandler(pipeline *service.Pipeline, dataDirs []string) *Handler {
	return &Handler{pipeline: pipeline, dataDirs: dataDirs}
}

type chatRequest struct {
	Query string `json:"query"`
	K     int    `json:"k"`
}

type sourceItem struct {
	ID     int     `json:"id"`
	DocID  string  `json:"doc_id"`
	Source string  `json:"source"`
	Text   string  `json:"text"`
	Score  float64 `json:"score"`
}

type chatResponse struct {
	Answer  string       `json:"answer"`
	Sources []sourceItem `json:"sources"`
}

type ingestRequest struct {
	Paths []string `json:"paths"`
}

type ingestResponse struct {
	OK            bool   `json:"ok"`
	Status        string `json:"status"`
	ChunksIndexed int    `json:"chunks_indexed"`
	Docs          int    `json:"docs"`
	DocsSkipped   int    `json:"docs_skipped"`
	Rebuilt       bool   `json:"rebuilt"`
}

func (h *Handler) Health(c *gin.Context) {
	st := h.pipeline.Stats()
	c.JSON(http.StatusOK, gin.H{
		"ok":        true,
		"exists":    st.Exists,
		"dimension": st.Dimension,
		"entries":   st.Entries,
		"version":   st.Version,
		"reranker":  h.pipeline.RerankerName(),
	})
}

func (h *Handler) Chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Query) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid", "message": "query is required"})
		return
	}
	ctx := c.Request.Context()
	res, err := h.pipeline.Chat(ctx, req.Query, req.K)
	if err != nil {
		logutil.GetLogger(ctx).Error("chat failed", zap.Error(err))
		body := gin.H{"error": "chat_failed"}
		if errors.Is(err, generation.ErrGenerationFailed) {
			body["kind"] = string(generation.KindOf(err))
		}
		c.JSON(http.StatusInternalServerError, body)
		return
	}
	c.JSON(http.StatusOK, chatResponse{Answer: res.Answer, Sources: toSources(res)})
}

// toSources pairs each citation with the score of the chunk it cites.
func toSources(res *service.ChatResult) []sourceItem {
	scores := make(map[int]float64, len(res.Scored))
	for _, s := range res.Scored {
		scores[s.ID] = s.Score
	}
	sources := make([]sourceItem, len(res.Citations))
	for i, cit := range res.Citations {
		sources[i] = sourceItem{ID: cit.ID, DocID: cit.DocID, Source: cit.Source, Text: cit.Text, Score: scores[cit.ID]}
	}
	return sources
}

func (h *Handler) Ingest(c *gin.Context) {
	var req ingestRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid", "message": err.Error()})
			return
		}
	}
	paths := req.Paths
	if len(paths) == 0 {
		paths = h.dataDirs
	}
	for _, p := range paths {
		if !h.withinDataDirs(p) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid", "message": fmt.Sprintf("path %q is outside the data directories", p)})
			return
		}
	}
	ctx := c.Request.Context()
	report, err := h.pipeline.Ingest(ctx, paths)
	if err != nil {
		logutil.GetLogger(ctx).Error("ingest failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "ingest_failed"})
		return
	}
	resp := ingestResponse{
		OK:            report.Status != service.StatusNoDocuments,
		Status:        string(report.Status),
		ChunksIndexed: report.ChunksAdded,
		Docs:          report.DocsProcessed,
		DocsSkipped:   report.DocsSkipped,
		Rebuilt:       report.Rebuilt,
	}
	if report.Status == service.StatusNoDocuments {
		c.JSON(http.StatusBadRequest, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) withinDataDirs(p string) bool {
	abs, err := filepath.Abs(p)
	if err != nil {
		return false
	}
	for _, dir := range h.dataDirs {
		root, err := filepath.Abs(dir)
		if err != nil {
			continue
		}
		rel, err := filepath.Rel(root, abs)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

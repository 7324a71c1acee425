package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// TEIConfig configures a text-embeddings-inference rerank endpoint.
type TEIConfig struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// TEIScorer is a minimal REST client for the /rerank route of a cross-encoder server.
type TEIScorer struct {
	url    string
	apiKey string
	client *http.Client
}

func NewTEIScorer(cfg TEIConfig) (*TEIScorer, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("rerank url is required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &TEIScorer{
		url:    strings.TrimRight(cfg.URL, "/"),
		apiKey: cfg.APIKey,
		client: &http.Client{Timeout: timeout},
	}, nil
}

type teiRequest struct {
	Query string   `json:"query"`
	Texts []string `json:"texts"`
}

type teiResult struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// Score returns the relevance of text to query.
func (s *TEIScorer) Score(ctx context.Context, query, text string) (float64, error) {
	var resp []teiResult
	if err := s.postJSON(ctx, s.url+"/rerank", teiRequest{Query: query, Texts: []string{text}}, &resp); err != nil {
		return 0, err
	}
	for _, r := range resp {
		if r.Index == 0 {
			return r.Score, nil
		}
	}
	return 0, errors.New("rerank response missing score")
}

func (s *TEIScorer) postJSON(ctx context.Context, url string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("rerank POST %s failed: %s", url, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

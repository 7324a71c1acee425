package gemini

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"docqa/internal/embedding"
)

// ErrMissingKey is returned when no API key is configured.
var ErrMissingKey = errors.New("gemini embedder: missing API key")

// Config configures the Gemini embeddings client.
type Config struct {
	BaseURL   string
	APIKey    string
	Model     string
	Dimension int
	BatchSize int
}

// Client embeds texts with the Gemini API.
type Client struct {
	client    *genai.Client
	model     string
	dimension int
	batchSize int
}

// NewClient creates the client and discovers the embedding dimension when it is not configured.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingKey
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-004"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: cfg.BaseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	c := &Client{client: gc, model: cfg.Model, dimension: cfg.Dimension, batchSize: cfg.BatchSize}
	if c.dimension == 0 {
		sample, err := c.embedBatch(ctx, []string{"dimension check"})
		if err != nil {
			return nil, fmt.Errorf("discover embedding dimension: %w", err)
		}
		c.dimension = len(sample[0])
	}
	return c, nil
}

func (c *Client) ModelName() string { return c.model }

func (c *Client) Dimension() int { return c.dimension }

func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += c.batchSize {
		end := start + c.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := c.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		if err := embedding.CheckBatch(vecs, end-start, c.dimension); err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (c *Client) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = &genai.Content{Parts: []*genai.Part{{Text: text}}}
	}
	resp, err := c.client.Models.EmbedContent(ctx, c.model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("gemini embeddings failed: %w", err)
	}
	if resp == nil || len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("gemini returned unexpected embedding count for %d inputs", len(texts))
	}
	out := make([][]float32, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		if e == nil || len(e.Values) == 0 {
			return nil, errors.New("no embedding values returned")
		}
		out[i] = embedding.Normalize(e.Values)
	}
	return out, nil
}

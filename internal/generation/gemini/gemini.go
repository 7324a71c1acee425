package gemini

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"google.golang.org/genai"

	"docqa/internal/generation"
	"docqa/internal/retry"
)

// Config configures the Gemini generator.
type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration
	MaxRetries int
}

// Client implements domain.Generator with the Gemini API.
type Client struct {
	client     *genai.Client
	model      string
	timeout    time.Duration
	maxRetries int
}

func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: %w: missing API key", generation.ErrUnavailable)
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: cfg.BaseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Client{client: gc, model: cfg.Model, timeout: cfg.Timeout, maxRetries: cfg.MaxRetries}, nil
}

func (c *Client) Name() string { return "gemini/" + c.model }

func (c *Client) Generate(ctx context.Context, system, user string) (string, error) {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: system}}},
	}
	var text string
	err := retry.Do(ctx, c.maxRetries, isConnectivity, func() error {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		resp, err := c.client.Models.GenerateContent(callCtx, c.model, genai.Text(user), cfg)
		if err != nil {
			return err
		}
		text = resp.Text()
		return nil
	})
	if err != nil {
		kind := generation.ProviderStatus
		if isConnectivity(err) {
			kind = generation.Connectivity
		}
		return "", &generation.Error{Provider: "gemini", Kind: kind, Err: err}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", &generation.Error{Provider: "gemini", Kind: generation.ProviderStatus, Err: errors.New("empty response")}
	}
	return text, nil
}

func isConnectivity(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded)
}

package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"docqa/internal/generation"
	"docqa/internal/retry"
)

// DefaultGroqBaseURL is the OpenAI-compatible endpoint of Groq.
const DefaultGroqBaseURL = "https://api.groq.com/openai/v1"

// Config configures an OpenAI-compatible chat completion client.
type Config struct {
	Provider    string
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
	MaxRetries  int
}

// Client implements domain.Generator over the chat completions API.
type Client struct {
	client     *goopenai.Client
	provider   string
	model      string
	temp       float32
	maxTokens  int
	timeout    time.Duration
	maxRetries int
}

// NewClient validates cfg and builds a client. A missing key is a configuration error.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s: %w: missing API key", cfg.Provider, generation.ErrUnavailable)
	}
	if cfg.Provider == "" {
		cfg.Provider = "openai"
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%s: model is required", cfg.Provider)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	oc := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	return &Client{
		client:     goopenai.NewClientWithConfig(oc),
		provider:   cfg.Provider,
		model:      cfg.Model,
		temp:       cfg.Temperature,
		maxTokens:  cfg.MaxTokens,
		timeout:    cfg.Timeout,
		maxRetries: cfg.MaxRetries,
	}, nil
}

func (c *Client) Name() string { return c.provider + "/" + c.model }

// Generate sends the system instruction and user prompt and returns the first choice.
func (c *Client) Generate(ctx context.Context, system, user string) (string, error) {
	req := goopenai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temp,
		MaxTokens:   c.maxTokens,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: system},
			{Role: goopenai.ChatMessageRoleUser, Content: user},
		},
	}
	var resp goopenai.ChatCompletionResponse
	err := retry.Do(ctx, c.maxRetries, retryable, func() error {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		var err error
		resp, err = c.client.CreateChatCompletion(callCtx, req)
		if err != nil {
			logutil.GetLogger(ctx).Warn("chat completion attempt failed",
				zap.String("provider", c.provider), zap.Error(err))
		}
		return err
	})
	if err != nil {
		return "", c.classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", &generation.Error{Provider: c.provider, Kind: generation.ProviderStatus, Err: errors.New("empty choices")}
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (c *Client) classify(err error) error {
	if code := statusCode(err); code != 0 {
		return &generation.Error{Provider: c.provider, Kind: generation.ProviderStatus, StatusCode: code, Err: err}
	}
	return &generation.Error{Provider: c.provider, Kind: generation.Connectivity, Err: err}
}

func statusCode(err error) int {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

func retryable(err error) bool {
	code := statusCode(err)
	if code != 0 {
		return code == http.StatusTooManyRequests || code >= 500
	}
	return !errors.Is(err, context.Canceled)
}

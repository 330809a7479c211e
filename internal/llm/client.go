package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// Generator produces summary text from a prompt. The summarizer depends on
// this interface only; tests substitute a stub.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Config controls the completion client.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float32
	// RequestsPerSecond throttles outgoing calls. Zero disables throttling.
	RequestsPerSecond float64
}

// Client is an OpenAI-compatible chat-completion Generator.
type Client struct {
	api     *openai.Client
	model   string
	maxTok  int
	temp    float32
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewClient builds a Generator from config. The API key is required.
func NewClient(cfg *Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("missing API key")
	}

	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	maxTok := cfg.MaxTokens
	if maxTok <= 0 {
		maxTok = 1000
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &Client{
		api:     openai.NewClientWithConfig(apiCfg),
		model:   model,
		maxTok:  maxTok,
		temp:    cfg.Temperature,
		limiter: limiter,
		logger:  slog.Default().With("component", "llm"),
	}, nil
}

// Generate runs one chat completion.
func (c *Client) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		Temperature: c.temp,
		MaxTokens:   c.maxTok,
	})
	if err != nil {
		return "", fmt.Errorf("completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("completion returned no choices")
	}

	out := strings.TrimSpace(resp.Choices[0].Message.Content)
	c.logger.Debug("llm.completion",
		"model", c.model,
		"prompt_length", len(userPrompt),
		"response_length", len(out),
		"tokens_used", resp.Usage.TotalTokens,
	)
	return out, nil
}

// Retryable reports whether a generation error is worth another attempt.
// Rate limits and transient server errors are; bad requests and context
// cancellation are not.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == 429 || reqErr.HTTPStatusCode >= 500
	}
	// Network-level failures surface as plain errors.
	return true
}

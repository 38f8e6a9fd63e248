// Package llm wraps the external text-generation collaborator: one prompt
// in, one completion out, with request pacing and bounded retries.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Default client behavior.
const (
	defaultMaxTokens   = 512
	defaultMaxRetries  = 3
	defaultBaseBackoff = time.Second

	// ~50 requests per minute with small bursts, under typical API quotas.
	defaultRateLimit = 50.0 / 60.0
	defaultBurst     = 5
)

// ErrLLM indicates the completion service failed after bounded retries.
var ErrLLM = errors.New("llm request failed")

// Client is the text-generation collaborator interface.
type Client interface {
	// Complete generates a plain-text completion for the prompt.
	Complete(ctx context.Context, prompt string) (string, error)

	// CompleteJSON generates a completion constrained to a JSON object.
	CompleteJSON(ctx context.Context, prompt string) (string, error)
}

// Config holds configuration for the OpenAI-compatible client.
type Config struct {
	BaseURL    string
	Model      string
	APIKey     string
	MaxTokens  int
	MaxRetries int
}

// OpenAIClient implements Client against the OpenAI API or any compatible
// endpoint, via langchaingo.
type OpenAIClient struct {
	llm        *openai.LLM
	limiter    *rate.Limiter
	maxTokens  int
	maxRetries int
	logger     *zap.Logger
}

// NewOpenAIClient creates a client for the configured endpoint.
func NewOpenAIClient(cfg Config, logger *zap.Logger) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm API key required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("llm model required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := []openai.Option{
		openai.WithModel(cfg.Model),
		openai.WithToken(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating OpenAI client: %w", err)
	}

	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}
	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = defaultMaxRetries
	}

	return &OpenAIClient{
		llm:        client,
		limiter:    rate.NewLimiter(rate.Limit(defaultRateLimit), defaultBurst),
		maxTokens:  maxTokens,
		maxRetries: maxRetries,
		logger:     logger,
	}, nil
}

// Complete generates a plain-text completion.
func (c *OpenAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.generate(ctx, prompt,
		llms.WithMaxTokens(c.maxTokens),
		llms.WithTemperature(0.3),
	)
}

// CompleteJSON generates a completion with the response constrained to a
// JSON object.
func (c *OpenAIClient) CompleteJSON(ctx context.Context, prompt string) (string, error) {
	return c.generate(ctx, prompt,
		llms.WithMaxTokens(c.maxTokens),
		llms.WithTemperature(0.3),
		llms.WithJSONMode(),
	)
}

// generate runs one completion with rate-limiter pacing and bounded
// exponential-backoff retries. Rate-limit and connectivity errors from the
// provider are indistinguishable at this layer, so every failure short of
// context cancellation is retried up to the bound.
func (c *OpenAIClient) generate(ctx context.Context, prompt string, opts ...llms.CallOption) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := defaultBaseBackoff * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
			c.logger.Debug("retrying llm request",
				zap.Int("attempt", attempt),
				zap.Error(lastErr),
			)
		}

		response, err := llms.GenerateFromSinglePrompt(ctx, c.llm, prompt, opts...)
		if err == nil {
			return response, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		lastErr = err
	}

	return "", fmt.Errorf("%w after %d attempts: %v", ErrLLM, c.maxRetries+1, lastErr)
}

var _ Client = (*OpenAIClient)(nil)

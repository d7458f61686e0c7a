// Package ai calls the chat completion endpoint (Mistral's OpenAI
// compatible API) used to categorize and summarize messages.
package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"

	"mailsense/pkg/circuitbreaker"
	"mailsense/pkg/metrics"
)

const (
	DefaultBaseURL = "https://api.mistral.ai/v1/"
	DefaultModel   = "open-mistral-7b"
	DefaultTimeout = 60 * time.Second
)

// TransportError covers network failures, timeouts, non-2xx replies other
// than 429, empty completions and an open circuit breaker.
type TransportError struct {
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("ai transport error (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("ai transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RateLimitError is returned when the service answers 429.
type RateLimitError struct {
	Err error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("ai rate limited: %v", e.Err)
}

func (e *RateLimitError) Unwrap() error { return e.Err }

type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration
	MaxRetries int
}

type Client struct {
	client  openai.Client
	model   string
	timeout time.Duration
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewClient builds the completion client. breaker may be nil.
func NewClient(cfg Config, breaker *circuitbreaker.CircuitBreaker, logger *zap.Logger) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(baseURL),
		option.WithMaxRetries(cfg.MaxRetries),
	}

	return &Client{
		client:  openai.NewClient(opts...),
		model:   model,
		timeout: timeout,
		breaker: breaker,
		logger:  logger,
	}
}

func (c *Client) Model() string { return c.model }

// Complete sends prompt as a single user message and returns the raw reply
// text. Errors are *TransportError or *RateLimitError.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	var content string

	call := func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
			Model:    c.model,
			Messages: []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)},
		})
		if err != nil {
			return classify(err)
		}
		if len(resp.Choices) == 0 {
			return &TransportError{Err: errors.New("no choices in response")}
		}
		content = resp.Choices[0].Message.Content

		c.logger.Debug("AI completion finished",
			zap.String("model", c.model),
			zap.Int64("prompt_tokens", resp.Usage.PromptTokens),
			zap.Int64("completion_tokens", resp.Usage.CompletionTokens),
			zap.Duration("duration", time.Since(start)),
		)
		return nil
	}

	var err error
	if c.breaker != nil {
		err = c.breaker.Execute(ctx, call)
		if errors.Is(err, circuitbreaker.ErrOpen) {
			err = &TransportError{Err: err}
		}
	} else {
		err = call(ctx)
	}

	metrics.RecordAICall(c.model, callStatus(err), time.Since(start))
	if err != nil {
		return "", err
	}
	return content, nil
}

// IsBreakerFailure is the circuit breaker predicate: rate limiting means the
// service is up, so it does not count.
func IsBreakerFailure(err error) bool {
	var rl *RateLimitError
	return !errors.As(err, &rl)
}

func classify(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests {
			return &RateLimitError{Err: err}
		}
		return &TransportError{StatusCode: apiErr.StatusCode, Err: err}
	}
	return &TransportError{Err: err}
}

func callStatus(err error) string {
	var rl *RateLimitError
	switch {
	case err == nil:
		return "success"
	case errors.As(err, &rl):
		return "rate_limited"
	case errors.Is(err, circuitbreaker.ErrOpen):
		return "circuit_open"
	default:
		return "error"
	}
}

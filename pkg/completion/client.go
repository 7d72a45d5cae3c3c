package completion

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"kernelretry/pkg/logger"
)

// Config describes one OpenAI-compatible backend
type Config struct {
	Name      string
	BaseURL   string
	APIKey    string
	Model     string
	MaxTokens int
}

// Result of a chat completion
type Result struct {
	Backend               string
	Text                  string
	Model                 string
	PromptTokens          int64
	CompletionTokens      int64
	EstimatedPromptTokens int
	Latency               time.Duration
}

// APIError is returned when the backend answered with a failure status after
// the transport gave up retrying.
type APIError struct {
	Backend    string
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend '%s': status %d %s: %s", e.Backend, e.StatusCode, http.StatusText(e.StatusCode), e.Message)
}

// Unwrap returns the underlying SDK error.
func (e *APIError) Unwrap() error {
	return e.Err
}

// Client sends chat completions to a single backend. Retries are the job of
// the http.Client it is given; the SDK's own retry loop is disabled.
type Client struct {
	cfg     Config
	api     openai.Client
	log     logger.Logger
	counter TokenCounter
}

func NewClient(cfg Config, httpClient *http.Client, log logger.Logger, counter TokenCounter) *Client {
	if cfg.Name == "" {
		cfg.Name = cfg.BaseURL
	}

	opts := []option.RequestOption{
		option.WithBaseURL(withTrailingSlash(cfg.BaseURL)),
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}

	return &Client{
		cfg:     cfg,
		api:     openai.NewClient(opts...),
		log:     log.WithComponent("completion").WithFields(map[string]interface{}{"backend": cfg.Name}),
		counter: counter,
	}
}

// Name returns the backend label
func (c *Client) Name() string {
	return c.cfg.Name
}

// Complete sends prompt, optionally preceded by a system message
func (c *Client) Complete(ctx context.Context, prompt, system string) (*Result, error) {
	var messages []openai.ChatCompletionMessageParamUnion
	if system != "" {
		messages = append(messages, openai.SystemMessage(system))
	}
	messages = append(messages, openai.UserMessage(prompt))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.cfg.Model),
		Messages: messages,
	}
	if c.cfg.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(c.cfg.MaxTokens))
	}

	result := &Result{Backend: c.cfg.Name}
	if c.counter != nil {
		result.EstimatedPromptTokens = c.counter.CountTextTokens(system + prompt)
	}

	c.log.Debug("sending completion", map[string]interface{}{
		"model":            c.cfg.Model,
		"estimated_tokens": result.EstimatedPromptTokens,
	})

	start := time.Now()
	resp, err := c.api.Chat.Completions.New(ctx, params)
	result.Latency = time.Since(start)
	if err != nil {
		return nil, c.wrapError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("backend '%s': completion has no choices", c.cfg.Name)
	}

	result.Text = resp.Choices[0].Message.Content
	result.Model = resp.Model
	result.PromptTokens = resp.Usage.PromptTokens
	result.CompletionTokens = resp.Usage.CompletionTokens

	c.log.Info("completion received", map[string]interface{}{
		"model":      result.Model,
		"latency_ms": result.Latency.Milliseconds(),
		"tokens":     resp.Usage.TotalTokens,
	})
	return result, nil
}

func (c *Client) wrapError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		wrapped := &APIError{
			Backend:    c.cfg.Name,
			StatusCode: apiErr.StatusCode,
			Message:    apiErr.Message,
			Err:        err,
		}
		c.log.Error("completion failed", wrapped, map[string]interface{}{
			"status_code": apiErr.StatusCode,
		})
		return wrapped
	}
	return fmt.Errorf("backend '%s': completion request failed: %w", c.cfg.Name, err)
}

func withTrailingSlash(url string) string {
	if url == "" || strings.HasSuffix(url, "/") {
		return url
	}
	return url + "/"
}

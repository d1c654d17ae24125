package llmprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	sqlragerrors "github.com/sqlrag/engine/internal/errors"
)

// OpenAICompatibleConfig configures a client for any OpenAI-compatible
// chat-completions endpoint (OpenAI itself, vLLM, llama.cpp server, etc.).
type OpenAICompatibleConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration
	MaxRetries int
}

// DefaultOpenAICompatibleConfig returns sensible defaults.
func DefaultOpenAICompatibleConfig() OpenAICompatibleConfig {
	return OpenAICompatibleConfig{
		BaseURL:    "https://api.openai.com/v1",
		Model:      "gpt-4o-mini",
		Timeout:    DefaultTimeout,
		MaxRetries: DefaultMaxRetries,
	}
}

// OpenAICompatibleClient generates completions via the /chat/completions
// endpoint shared by OpenAI and its self-hosted lookalikes.
type OpenAICompatibleClient struct {
	client *http.Client
	cfg    OpenAICompatibleConfig

	mu     sync.Mutex
	closed bool
}

var _ Client = (*OpenAICompatibleClient)(nil)

// NewOpenAICompatibleClient builds an OpenAICompatibleClient.
func NewOpenAICompatibleClient(cfg OpenAICompatibleConfig) *OpenAICompatibleClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOpenAICompatibleConfig().BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAICompatibleConfig().Model
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	return &OpenAICompatibleClient{client: &http.Client{}, cfg: cfg}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Generate calls the chat-completions endpoint with retry on transient
// errors, per spec.md §4.4.
func (c *OpenAICompatibleClient) Generate(ctx context.Context, req Request) (*Response, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("openai-compatible client closed")
	}

	model := req.Model
	if model == "" {
		model = c.cfg.Model
	}
	temperature := req.Temperature
	if temperature == 0 {
		temperature = DefaultTemperature
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = DefaultMaxTokens
	}

	body := chatCompletionRequest{
		Model:       model,
		Messages:    []chatMessage{{Role: "user", Content: req.Prompt}},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}

	retryCfg := sqlragerrors.RetryConfig{
		MaxRetries:   c.cfg.MaxRetries,
		InitialDelay: DefaultRetryBaseDelay,
		MaxDelay:     DefaultRetryMaxDelay,
		Multiplier:   2.0,
	}

	return sqlragerrors.RetryWithResult(ctx, retryCfg, func() (*Response, error) {
		return c.doGenerate(ctx, body)
	})
}

func (c *OpenAICompatibleClient) doGenerate(ctx context.Context, body chatCompletionRequest) (*Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal chat completion request: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build chat completion request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("chat completion call: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read chat completion response: %w", err)
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("chat completion transient error: status %d: %s", resp.StatusCode, string(data))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chat completion error: status %d: %s", resp.StatusCode, string(data))
	}

	var parsed chatCompletionResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parse chat completion response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("chat completion returned no choices")
	}

	return &Response{
		Text:             parsed.Choices[0].Message.Content,
		PromptTokens:     parsed.Usage.PromptTokens,
		CompletionTokens: parsed.Usage.CompletionTokens,
	}, nil
}

// ModelName returns the configured default model.
func (c *OpenAICompatibleClient) ModelName() string { return c.cfg.Model }

// Available probes the /models endpoint.
func (c *OpenAICompatibleClient) Available(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/models", nil)
	if err != nil {
		return false
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Close releases resources.
func (c *OpenAICompatibleClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.client.CloseIdleConnections()
	return nil
}

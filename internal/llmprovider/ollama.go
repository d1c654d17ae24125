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

// OllamaConfig configures the Ollama generation client.
type OllamaConfig struct {
	Host       string
	Model      string
	Timeout    time.Duration
	MaxRetries int

	// SkipHealthCheck skips the initial Ollama reachability probe (for testing).
	SkipHealthCheck bool
}

// DefaultOllamaConfig returns sensible defaults.
func DefaultOllamaConfig() OllamaConfig {
	return OllamaConfig{
		Host:       "http://localhost:11434",
		Model:      "qwen2.5:7b",
		Timeout:    DefaultTimeout,
		MaxRetries: DefaultMaxRetries,
	}
}

// OllamaClient generates completions via Ollama's HTTP API.
type OllamaClient struct {
	client *http.Client
	cfg    OllamaConfig

	mu     sync.Mutex
	closed bool
}

var _ Client = (*OllamaClient)(nil)

// NewOllamaClient builds an OllamaClient. Per the embedding provider's
// lesson (never set http.Client.Timeout — it overrides context timeouts)
// the client carries no static timeout; every call is scoped by the
// context the caller supplies.
func NewOllamaClient(ctx context.Context, cfg OllamaConfig) (*OllamaClient, error) {
	if cfg.Host == "" {
		cfg.Host = DefaultOllamaConfig().Host
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaConfig().Model
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}

	c := &OllamaClient{
		client: &http.Client{},
		cfg:    cfg,
	}

	if !cfg.SkipHealthCheck {
		checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if !c.Available(checkCtx) {
			return nil, fmt.Errorf("ollama unreachable at %s", cfg.Host)
		}
	}

	return c, nil
}

type ollamaGenerateRequest struct {
	Model       string  `json:"model"`
	Prompt      string  `json:"prompt"`
	Stream      bool    `json:"stream"`
	Temperature float64 `json:"temperature,omitempty"`
	Options     struct {
		Temperature float64 `json:"temperature"`
		NumPredict  int     `json:"num_predict"`
	} `json:"options"`
}

type ollamaGenerateResponse struct {
	Response        string `json:"response"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

// Generate calls Ollama's /api/generate with retry on transient errors
// (timeout, 5xx, rate-limit), per spec.md §4.4: up to 3 retries,
// exponential backoff starting at 500ms capped at 4s.
func (c *OllamaClient) Generate(ctx context.Context, req Request) (*Response, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("ollama client closed")
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

	body := ollamaGenerateRequest{Model: model, Prompt: req.Prompt, Stream: false}
	body.Options.Temperature = temperature
	body.Options.NumPredict = maxTokens

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

func (c *OllamaClient) doGenerate(ctx context.Context, body ollamaGenerateRequest) (*Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal ollama request: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.cfg.Host+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build ollama request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama generate call: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read ollama response: %w", err)
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("ollama transient error: status %d: %s", resp.StatusCode, string(data))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama error: status %d: %s", resp.StatusCode, string(data))
	}

	var parsed ollamaGenerateResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parse ollama response: %w", err)
	}

	return &Response{
		Text:             parsed.Response,
		PromptTokens:     parsed.PromptEvalCount,
		CompletionTokens: parsed.EvalCount,
	}, nil
}

// ModelName returns the configured default model.
func (c *OllamaClient) ModelName() string { return c.cfg.Model }

// Available pings Ollama's /api/tags.
func (c *OllamaClient) Available(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.Host+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Close releases resources.
func (c *OllamaClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.client.CloseIdleConnections()
	return nil
}

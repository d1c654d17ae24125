// Package llmprovider defines the LLM capability set used by the query
// rewriter and the generation layer, plus concrete Ollama and
// OpenAI-compatible clients. Polymorphism across providers is expressed as
// a capability set rather than an inheritance hierarchy (spec.md §9
// Design Notes), mirroring internal/embedprovider's Embedder interface.
package llmprovider

import (
	"context"
	"time"
)

// Default generation parameters (spec.md §4.4).
const (
	DefaultTemperature   = 0.2
	DefaultMaxTokens     = 2048
	DefaultTimeout       = 30 * time.Second
	DefaultMaxRetries    = 3
	DefaultRetryBaseDelay = 500 * time.Millisecond
	DefaultRetryMaxDelay  = 4 * time.Second
)

// Request carries one generation call's parameters (spec.md §6: "LLM
// provider contract").
type Request struct {
	Prompt      string
	Model       string
	Temperature float64
	MaxTokens   int
}

// Response is one generation call's result.
type Response struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
}

// Client generates text completions from a prompt. Concrete variants
// (Ollama, OpenAI-compatible) are selected by configuration; callers
// program against this interface only.
type Client interface {
	// Generate performs one completion call.
	Generate(ctx context.Context, req Request) (*Response, error)

	// ModelName returns the default model identifier for this client.
	ModelName() string

	// Available reports whether the backend is reachable.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

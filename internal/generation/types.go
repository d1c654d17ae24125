// Package generation implements the Generation Layer (spec.md §4.4): it
// assembles a prompt from the agent dispatch table, the schema snippet,
// conversation context, and deduplicated retrieved examples, calls the LLM
// client, and extracts SQL from the response.
package generation

import (
	"time"

	"github.com/sqlrag/engine/internal/agent"
)

// Source is one retrieved example surfaced in a response, independent of
// the retriever's internal fused-score bookkeeping.
type Source struct {
	ID          string
	Score       float64
	SQL         string
	Description string
}

// Usage is token accounting returned by the LLM call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Finding is a non-fatal note surfaced alongside a response (spec.md §6/§7).
type Finding struct {
	Level   string // "info" | "warn" | "error"
	Code    string
	Message string
}

const (
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Request is everything the Generation Layer needs to build a prompt and
// produce an answer.
type Request struct {
	Question            string
	ConversationContext string
	AgentType           string // "", "default", "create", "explain", "chat", "schema"
	Model               string
	Temperature         float64
	MaxOutputTokens     int
	SchemaSnippet       string
	Sources             []Source
}

// Result is the Generation Layer's output: (answer_text, cleaned_sql, usage)
// per spec.md §4.4, plus any findings raised during SQL extraction.
type Result struct {
	Answer     string
	SQL        string
	CleanedSQL string
	Usage      Usage
	Findings   []Finding
	Agent      agent.Spec
	Elapsed    time.Duration
}

// GenerationFailure wraps a non-transient LLM error (spec.md §4.4: "other
// errors surface as GenerationFailure").
type GenerationFailure struct {
	Cause error
}

func (e *GenerationFailure) Error() string { return "generation failed: " + e.Cause.Error() }
func (e *GenerationFailure) Unwrap() error { return e.Cause }

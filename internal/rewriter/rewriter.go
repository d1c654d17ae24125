// Package rewriter implements the Query Rewriter (spec.md §4.1): an
// optional LLM call that expands a user's question into a
// retrieval-optimized form, surfacing latent domain keywords.
package rewriter

import (
	"context"
	"fmt"
	"strings"

	"github.com/sqlrag/engine/internal/llmprovider"
)

const instruction = "Produce a dense retrieval query enumerating relevant table names, metrics, and SQL constructs for the user's ask; no prose, no SQL."

// Result is the rewriter's output: the (possibly unchanged) question and
// whether a rewrite was applied.
type Result struct {
	RewrittenQuestion string
	WasRewritten      bool
}

// Rewriter calls an LLM to reformulate a question for retrieval, applying
// the accept/reject heuristic as a pure, independently testable function.
type Rewriter struct {
	client llmprovider.Client
	model  string
}

// New builds a Rewriter. client may be nil only if the caller never enables
// rewriting (Rewrite returns the identity result without touching client).
func New(client llmprovider.Client, model string) *Rewriter {
	return &Rewriter{client: client, model: model}
}

// ErrBackendUnavailable is returned when rewriting is enabled and the LLM
// call errors (spec.md §4.1's RewriteBackendUnavailable).
type ErrBackendUnavailable struct {
	Cause error
}

func (e *ErrBackendUnavailable) Error() string {
	return fmt.Sprintf("rewrite backend unavailable: %v", e.Cause)
}

func (e *ErrBackendUnavailable) Unwrap() error { return e.Cause }

// Rewrite produces a retrieval-optimized reformulation of question, or
// returns it unchanged when enabled is false. On an LLM failure the error
// is ErrBackendUnavailable; per spec.md §4.1 the caller MUST fall back to
// the original question rather than abort the pipeline — Rewrite itself
// does not perform that fallback so callers can log/observe the failure
// first, but the error type makes the fallback condition unambiguous.
func (r *Rewriter) Rewrite(ctx context.Context, question, conversationContext string, enabled bool) (Result, error) {
	if !enabled || strings.TrimSpace(question) == "" {
		return Result{RewrittenQuestion: question, WasRewritten: false}, nil
	}

	prompt := buildPrompt(question, conversationContext)
	resp, err := r.client.Generate(ctx, llmprovider.Request{
		Prompt:      prompt,
		Model:       r.model,
		Temperature: 0,
	})
	if err != nil {
		return Result{RewrittenQuestion: question, WasRewritten: false}, &ErrBackendUnavailable{Cause: err}
	}

	candidate := strings.TrimSpace(resp.Text)
	if acceptRewrite(question, candidate) {
		return Result{RewrittenQuestion: candidate, WasRewritten: true}, nil
	}
	return Result{RewrittenQuestion: question, WasRewritten: false}, nil
}

func buildPrompt(question, conversationContext string) string {
	var b strings.Builder
	b.WriteString(instruction)
	b.WriteString("\n\nQuestion: ")
	b.WriteString(question)
	if strings.TrimSpace(conversationContext) != "" {
		b.WriteString("\n\nConversation context: ")
		b.WriteString(conversationContext)
	}
	return b.String()
}

// acceptRewrite implements spec.md §4.1's accept/reject heuristic: the
// rewrite replaces the question only if it is at least as long as the
// original, or mentions at least 2 schema-like tokens (identifiers that
// look like table/column names rather than prose words). Otherwise the
// original is kept, to avoid hallucinated narrowing.
func acceptRewrite(original, candidate string) bool {
	if candidate == "" {
		return false
	}
	if len(candidate) >= len(original) {
		return true
	}
	return countSchemaTokens(candidate) >= 2
}

// countSchemaTokens counts tokens in text that look like schema
// identifiers: snake_case or containing an underscore/digit, a proxy for
// "mentions a table or column name" without requiring a live SchemaStore.
func countSchemaTokens(text string) int {
	count := 0
	for _, tok := range strings.Fields(text) {
		tok = strings.Trim(tok, ".,;:()\"'")
		if looksLikeSchemaToken(tok) {
			count++
		}
	}
	return count
}

func looksLikeSchemaToken(tok string) bool {
	if len(tok) < 3 {
		return false
	}
	hasUnderscore := strings.Contains(tok, "_")
	hasDigit := strings.ContainsAny(tok, "0123456789")
	hasDot := strings.Contains(tok, ".")
	return hasUnderscore || hasDigit || hasDot
}

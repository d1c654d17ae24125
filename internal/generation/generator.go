package generation

import (
	"context"
	"strings"
	"time"

	"github.com/sqlrag/engine/internal/agent"
	"github.com/sqlrag/engine/internal/llmprovider"
)

// explainHelpMessage is returned for a bare "@explain" question when
// conversation_context holds no SQL to explain (spec.md §8).
const explainHelpMessage = "There's no earlier SQL in this conversation to explain. Ask \"@explain\" together with a query, or run one first."

// isBareExplainQuestion reports whether question is exactly the @explain
// token with no SQL or further instructions attached (spec.md §8: "question
// containing only @explain").
func isBareExplainQuestion(question string) bool {
	return strings.EqualFold(strings.TrimSpace(question), "@explain")
}

// Generator builds prompts, invokes an LLM client, and extracts SQL from
// its response (spec.md §4.4). Retry on transient LLM errors is the
// client's responsibility (internal/llmprovider already retries 5xx/429);
// Generator surfaces any remaining error as GenerationFailure.
type Generator struct {
	client         llmprovider.Client
	contextTokens  int
	reservedTokens int
}

// New builds a Generator. contextWindowTokens and reservedCompletionTokens
// come from config (spec.md §9 defaults: context window per model,
// reserved completion 2048).
func New(client llmprovider.Client, contextWindowTokens, reservedCompletionTokens int) *Generator {
	return &Generator{
		client:         client,
		contextTokens:  contextWindowTokens,
		reservedTokens: reservedCompletionTokens,
	}
}

// Generate runs the full Generation Layer: agent dispatch, deduplication,
// prompt assembly within budget, the LLM call, and SQL extraction.
func (g *Generator) Generate(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	spec, ok := agent.Lookup(req.AgentType)
	if !ok {
		spec = agent.DefaultSpec()
	}

	if spec.Name == agent.Explain && isBareExplainQuestion(req.Question) {
		lastSQL, found := extractLastSQL(req.ConversationContext)
		if !found {
			return &Result{
				Answer:  explainHelpMessage,
				Agent:   spec,
				Elapsed: time.Since(start),
			}, nil
		}
		req.Question = "@explain " + lastSQL
	}

	sources := req.Sources
	if spec.IncludeExamples {
		sources = dedupeSources(sources)
	} else {
		sources = nil
	}

	budget := g.contextTokens - g.reservedTokens
	promptText := buildPrompt(req, spec, sources, budget)

	maxTokens := req.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = llmprovider.DefaultMaxTokens
	}
	temperature := req.Temperature
	if temperature == 0 {
		temperature = llmprovider.DefaultTemperature
	}

	resp, err := g.client.Generate(ctx, llmprovider.Request{
		Prompt:      promptText,
		Model:       req.Model,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return nil, &GenerationFailure{Cause: err}
	}

	result := &Result{
		Answer: resp.Text,
		Agent:  spec,
		Usage: Usage{
			PromptTokens:     resp.PromptTokens,
			CompletionTokens: resp.CompletionTokens,
			TotalTokens:      resp.PromptTokens + resp.CompletionTokens,
		},
		Elapsed: time.Since(start),
	}

	if spec.Name == agent.Schema {
		// §4.4: @schema never produces SQL.
		return result, nil
	}

	sql, found := extractSQL(resp.Text)
	if !found {
		if spec.ExpectsSQL {
			result.Findings = append(result.Findings, Finding{
				Level:   LevelWarn,
				Code:    "no_sql_extracted",
				Message: "agent expected SQL but none was found in the response",
			})
		}
		return result, nil
	}

	result.SQL = sql
	result.CleanedSQL = sql
	return result, nil
}

package generation

import (
	"fmt"
	"strings"

	"github.com/sqlrag/engine/internal/agent"
)

// charsPerToken is the 4-chars/token heuristic used throughout (spec.md
// §4.4), shared with the schema injector's own budget estimate.
const charsPerToken = 4

func estimateTokens(s string) int {
	return len(s) / charsPerToken
}

// promptSection is one candidate piece of the assembled prompt, in the
// fixed priority order spec.md §4.4 defines. Sections 1-2 are always kept;
// sections 3-6 are dropped from the tail (lowest priority first) when the
// running total would exceed budget.
type promptSection struct {
	name     string
	text     string
	required bool
}

// buildPrompt assembles the prompt text for req under spec's, dropping
// sections from lowest to highest priority until the remainder fits within
// budgetTokens (the context window minus reserved completion tokens).
// Conversation context is dropped before examples are lowest-ranked-first
// trimmed to fit, per spec.md §4.4's priority list.
func buildPrompt(req Request, spec agent.Spec, sources []Source, budgetTokens int) string {
	sections := []promptSection{
		{name: "preamble", text: spec.SystemPreamble, required: true},
		{name: "agent_instructions", text: agentInstructions(spec), required: true},
		{name: "question", text: "Question: " + req.Question, required: true},
	}
	if spec.IncludeSchema && strings.TrimSpace(req.SchemaSnippet) != "" {
		sections = append(sections, promptSection{name: "schema", text: "Schema:\n" + req.SchemaSnippet})
	}
	if strings.TrimSpace(req.ConversationContext) != "" {
		sections = append(sections, promptSection{name: "conversation", text: "Conversation so far:\n" + req.ConversationContext})
	}
	if spec.IncludeExamples && len(sources) > 0 {
		sections = append(sections, promptSection{name: "examples", text: renderExamples(sources)})
	}

	return assembleWithinBudget(sections, sources, budgetTokens)
}

func agentInstructions(spec agent.Spec) string {
	return fmt.Sprintf("Respond in the %s style.", spec.Style)
}

func renderExamples(sources []Source) string {
	var b strings.Builder
	b.WriteString("Examples:\n")
	for _, s := range sources {
		b.WriteString("-- ")
		b.WriteString(s.Description)
		b.WriteString("\n")
		b.WriteString(s.SQL)
		b.WriteString("\n")
	}
	return b.String()
}

// assembleWithinBudget keeps the required sections unconditionally, then
// adds optional sections in priority order. If the total overflows budget,
// the conversation section is dropped first (its oldest-turns-first
// trimming is the caller's job before it reaches here), then examples are
// trimmed from the lowest-ranked end until the prompt fits.
func assembleWithinBudget(sections []promptSection, sources []Source, budgetTokens int) string {
	render := func(secs []promptSection) string {
		parts := make([]string, 0, len(secs))
		for _, s := range secs {
			if s.text != "" {
				parts = append(parts, s.text)
			}
		}
		return strings.Join(parts, "\n\n")
	}

	current := append([]promptSection(nil), sections...)
	if estimateTokens(render(current)) <= budgetTokens || budgetTokens <= 0 {
		return render(current)
	}

	// Drop conversation context first.
	current = dropSection(current, "conversation")
	if estimateTokens(render(current)) <= budgetTokens {
		return render(current)
	}

	// Trim examples from the lowest-ranked end, one at a time.
	remainingSources := append([]Source(nil), sources...)
	for len(remainingSources) > 0 && estimateTokens(render(current)) > budgetTokens {
		remainingSources = remainingSources[:len(remainingSources)-1]
		current = replaceSection(current, "examples", renderExamples(remainingSources))
		if len(remainingSources) == 0 {
			current = dropSection(current, "examples")
		}
	}

	return render(current)
}

func dropSection(sections []promptSection, name string) []promptSection {
	out := make([]promptSection, 0, len(sections))
	for _, s := range sections {
		if s.name == name {
			continue
		}
		out = append(out, s)
	}
	return out
}

func replaceSection(sections []promptSection, name, text string) []promptSection {
	out := make([]promptSection, 0, len(sections))
	for _, s := range sections {
		if s.name == name {
			s.text = text
		}
		out = append(out, s)
	}
	return out
}

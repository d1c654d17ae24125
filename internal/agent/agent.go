// Package agent holds the @explain|@create|@schema dispatch table
// (spec.md §4.4, promoted to its own package per SPEC_FULL.md §4.7):
// a typed registry mapping an agent name to the preamble, style, and
// context-inclusion flags the generation layer uses to assemble a prompt.
package agent

import "strings"

// Style is the response style an agent produces.
type Style string

const (
	StyleConciseAnswer Style = "concise_answer"
	StyleSQLPrimary    Style = "sql_primary"
	StyleDetailedProse Style = "detailed_prose"
	StyleSchemaOnly    Style = "schema_only"
)

// Spec binds one agent's behavior: its system preamble, whether to
// include retrieved SQL examples, whether to include the schema snippet,
// and its response style (spec.md §4.4 table).
type Spec struct {
	Name            string
	SystemPreamble  string
	IncludeExamples bool
	IncludeSchema   bool
	Style           Style
	ExpectsSQL      bool
}

const (
	Default = "default"
	Create  = "create"
	Explain = "explain"
	Schema  = "schema"
)

// registry is the agent dispatch table (spec.md §4.4).
var registry = map[string]Spec{
	Default: {
		Name:            Default,
		SystemPreamble:  "You are a SQL analyst assistant. Answer the question concisely, and include SQL only if the question asks for a query.",
		IncludeExamples: true,
		IncludeSchema:   true,
		Style:           StyleConciseAnswer,
		ExpectsSQL:      false,
	},
	Create: {
		Name:            Create,
		SystemPreamble:  "You write correct, warehouse-specific SQL. Produce the SQL query first, then a brief rationale.",
		IncludeExamples: true,
		IncludeSchema:   true,
		Style:           StyleSQLPrimary,
		ExpectsSQL:      true,
	},
	Explain: {
		Name:            Explain,
		SystemPreamble:  "You explain SQL queries in detail, focusing on the query the user is asking about.",
		IncludeExamples: true, // focused on the chosen one; caller narrows the example set
		IncludeSchema:   true, // optional per spec.md; caller may omit when no schema is relevant
		Style:           StyleDetailedProse,
		ExpectsSQL:      false,
	},
	Schema: {
		Name:            Schema,
		SystemPreamble:  "You describe the relevant database schema only. Do not produce SQL.",
		IncludeExamples: false,
		IncludeSchema:   true,
		Style:           StyleSchemaOnly,
		ExpectsSQL:      false,
	},
}

// Lookup returns the Spec for a named agent, and whether it's known.
func Lookup(name string) (Spec, bool) {
	s, ok := registry[strings.ToLower(name)]
	return s, ok
}

// DefaultSpec returns the default agent's Spec.
func DefaultSpec() Spec {
	s, _ := Lookup(Default)
	return s
}

// tokenAgents lists the @explain|@create|@schema tokens Detect looks for in
// a question (spec.md §4.4: "The first token-pattern @explain|@create|@schema
// in the question selects the agent; otherwise agent = default").
var tokenAgents = []string{"@explain", "@create", "@schema"}

// Detect scans question for the first recognized @-token and returns the
// matching agent name, or Default if none is present.
func Detect(question string) string {
	lower := strings.ToLower(question)
	bestIdx := -1
	bestName := Default
	for _, tok := range tokenAgents {
		idx := strings.Index(lower, tok)
		if idx == -1 {
			continue
		}
		if bestIdx == -1 || idx < bestIdx {
			bestIdx = idx
			bestName = strings.TrimPrefix(tok, "@")
		}
	}
	return bestName
}

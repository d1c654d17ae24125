// Package httpapi exposes the engine over the bit-exact JSON contracts
// (spec.md §6): POST /query/search, POST /query/quick, POST /sql/execute.
// Handlers translate these wire shapes onto internal/pipeline.Orchestrator
// and internal/executor.Executor calls and back.
package httpapi

// SearchRequest is the request body for POST /query/search and, minus the
// retrieval knobs, POST /query/quick (spec.md §6).
type SearchRequest struct {
	Question string `json:"question"`
	// K is a pointer so an explicit `"k": 0` (spec.md §8 Boundaries: skip
	// retrieval, schema-only answer) can be told apart from an omitted
	// field (falls back to the default of 4).
	K                   *int    `json:"k"`
	GeminiMode          bool    `json:"gemini_mode"`
	HybridSearch        bool    `json:"hybrid_search"`
	AutoAdjustWeights   bool    `json:"auto_adjust_weights"`
	QueryRewriting      bool    `json:"query_rewriting"`
	SQLValidation       bool    `json:"sql_validation"`
	AgentType           string  `json:"agent_type"`
	ConversationContext *string `json:"conversation_context"`
	LLMModel            *string `json:"llm_model"`
}

// Source is one retrieved example surfaced alongside an answer.
type Source struct {
	ID          string  `json:"id"`
	Score       float64 `json:"score"`
	SQL         string  `json:"sql"`
	Description string  `json:"description"`
}

// Usage is token accounting for one generation call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Finding is a non-fatal note surfaced alongside a response.
type Finding struct {
	Level   string `json:"level"` // "info" | "warn" | "error"
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SearchResponse is the response body for both POST /query/search and
// POST /query/quick (spec.md §6: identical shape). /query/quick fixes k=4;
// its generation step is the same as /query/search's, with no separate
// concise preamble.
type SearchResponse struct {
	Answer     string    `json:"answer"`
	SQL        *string   `json:"sql"`
	CleanedSQL *string   `json:"cleaned_sql"`
	Sources    []Source  `json:"sources"`
	Usage      Usage     `json:"usage"`
	Findings   []Finding `json:"findings"`
}

// ExecuteRequest is the request body for POST /sql/execute (spec.md §6).
type ExecuteRequest struct {
	SQL            string `json:"sql"`
	DryRun         bool   `json:"dry_run"`
	MaxBytesBilled int64  `json:"max_bytes_billed"`
}

// ExecuteResponse is the response body for POST /sql/execute (spec.md §6).
type ExecuteResponse struct {
	Data            []map[string]any `json:"data"`
	TotalRows       int64            `json:"total_rows"`
	BytesProcessed  int64            `json:"bytes_processed"`
	BytesBilled     int64            `json:"bytes_billed"`
	CacheHit        bool             `json:"cache_hit"`
	DryRun          bool             `json:"dry_run"`
	JobID           string           `json:"job_id"`
	ExecutionTimeMS int64            `json:"execution_time_ms"`
}

// ErrorResponse is the body returned alongside a non-2xx status for any
// endpoint, rendering the internal/errors.SQLRAGError taxonomy (spec.md §7).
type ErrorResponse struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Category   string            `json:"category,omitempty"`
	Retryable  bool              `json:"retryable"`
	Suggestion string            `json:"suggestion,omitempty"`
	Details    map[string]string `json:"details,omitempty"`
}

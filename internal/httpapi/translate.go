package httpapi

import (
	"strings"

	"github.com/sqlrag/engine/internal/agent"
	"github.com/sqlrag/engine/internal/pipeline"
)

// quickDefaultK is the fixed k POST /query/quick uses regardless of what the
// caller sends (spec.md §6: "same request minus retrieval knobs... fixed
// k=4").
const quickDefaultK = 4

// normalizeAgentType maps the wire contract's agent_type values onto the
// dispatch table in internal/agent. "chat" is accepted on the wire for
// compatibility with older callers but is not a distinct agent: its
// documented behavior ("concise answer + SQL if asked") is exactly
// agent.Default's, so it is normalized away before the question ever
// reaches the orchestrator's agent validation.
func normalizeAgentType(raw string) string {
	if strings.EqualFold(raw, "chat") {
		return agent.Default
	}
	return raw
}

// toOrchestratorRequest builds a pipeline.Request from a full /query/search
// body. quickMode fixes k and disables the retrieval-tuning knobs the way
// /query/quick does.
func toOrchestratorRequest(req SearchRequest, quickMode bool) pipeline.Request {
	k := req.K
	if quickMode {
		fixed := quickDefaultK
		k = &fixed
	}

	var conversationContext string
	if req.ConversationContext != nil {
		conversationContext = *req.ConversationContext
	}

	return pipeline.Request{
		Question:            req.Question,
		ConversationContext: conversationContext,
		AgentType:           normalizeAgentType(req.AgentType),
		K:                   k,
	}
}

// toSearchResponse renders an Orchestrator Response onto the wire shape
// shared by /query/search and /query/quick.
func toSearchResponse(resp *pipeline.Response) SearchResponse {
	out := SearchResponse{
		Answer:   resp.Answer,
		Sources:  make([]Source, 0, len(resp.Sources)),
		Usage:    Usage(resp.Usage),
		Findings: make([]Finding, 0, len(resp.Findings)),
	}

	if resp.SQL != "" {
		sql := resp.SQL
		out.SQL = &sql
		out.CleanedSQL = &sql
	}

	for _, s := range resp.Sources {
		out.Sources = append(out.Sources, Source(s))
	}
	for _, f := range resp.Findings {
		out.Findings = append(out.Findings, Finding(f))
	}
	for _, vf := range validationFindings(resp) {
		out.Findings = append(out.Findings, vf)
	}

	return out
}

// validationFindings converts the validator's findings, if any ran, onto
// the wire Finding shape so /query/search surfaces them alongside the
// generation layer's own findings (spec.md §6's findings array is not
// scoped to one pipeline stage).
func validationFindings(resp *pipeline.Response) []Finding {
	if resp.Validation == nil {
		return nil
	}
	out := make([]Finding, 0, len(resp.Validation.Findings))
	for _, f := range resp.Validation.Findings {
		out = append(out, Finding{
			Level:   string(f.Level),
			Code:    f.Code,
			Message: f.Message,
		})
	}
	return out
}

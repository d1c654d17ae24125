package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sqlrag/engine/internal/agent"
	sqlragerrors "github.com/sqlrag/engine/internal/errors"
	"github.com/sqlrag/engine/internal/executor"
	"github.com/sqlrag/engine/internal/generation"
	"github.com/sqlrag/engine/internal/index"
	"github.com/sqlrag/engine/internal/retriever"
	"github.com/sqlrag/engine/internal/rewriter"
	"github.com/sqlrag/engine/internal/schema"
	"github.com/sqlrag/engine/internal/validator"
)

// Timeouts holds the per-step timeout budget spec.md §5 defines: "Embedding
// 5 s, retrieval 1 s, LLM 30 s with 3 retries, dry-run 10 s, wet-run 60 s.
// The overall request budget is the sum; if exceeded, the deepest in-flight
// step is cancelled." Embedding and retrieval are a single call into
// internal/retriever (embedding happens inside it), so their budgets are
// combined into one context deadline around that call.
type Timeouts struct {
	Retrieval time.Duration // embedding + retrieval combined
	LLM       time.Duration
	DryRun    time.Duration
	WetRun    time.Duration
}

// DefaultTimeouts returns the spec's default per-step budget.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Retrieval: 5*time.Second + 1*time.Second,
		LLM:       30 * time.Second,
		DryRun:    10 * time.Second,
		WetRun:    60 * time.Second,
	}
}

// Settings configures one Orchestrator instance, independent of the
// reloadable Snapshot state.
type Settings struct {
	EnableRewrite      bool
	RewriteModel       string
	GenerationModel    string
	Temperature        float64
	MaxOutputTokens    int
	DefaultK           int
	ValidatorLevel     validator.Level
	WideTableThreshold int
	InjectorConfig     schema.InjectorConfig
	Timeouts           Timeouts
}

// DefaultSettings returns the spec's documented defaults (§4/§9).
func DefaultSettings() Settings {
	return Settings{
		EnableRewrite:      true,
		Temperature:        0.2,
		MaxOutputTokens:    2048,
		DefaultK:           4,
		ValidatorLevel:     validator.SchemaStrict,
		WideTableThreshold: 20,
		InjectorConfig:     schema.DefaultInjectorConfig(),
		Timeouts:           DefaultTimeouts(),
	}
}

// Request is one end-to-end question asked of the Orchestrator.
type Request struct {
	Question            string
	ConversationContext string
	AgentType           string
	// K is the number of exemplars to retrieve. nil means "omitted": falls
	// back to Settings.DefaultK. A non-nil zero is an explicit k=0, which
	// skips retrieval entirely and yields a schema-only answer (spec.md §8
	// Boundaries: "k=0 returns empty sources and still produces an answer").
	K              *int
	Execute        bool // run the validated SQL, subject to ValidationStatusOK
	DryRun         bool
	MaxBytesBilled int64
}

// Response is the Orchestrator's end-to-end result.
type Response struct {
	RewrittenQuestion string
	WasRewritten      bool
	Sources           []generation.Source
	Answer            string
	SQL               string
	Usage             generation.Usage
	Findings          []generation.Finding
	Validation        *validator.Result
	Execution         *executor.Result
	Agent             string
	Elapsed           time.Duration
}

// Orchestrator runs one request through Rewriter < Retriever < Schema
// Injector < Generation < Validator < Executor (spec.md §5's ordering
// guarantee), reading a consistent Snapshot for the whole request and
// respecting the per-step timeout budget.
type Orchestrator struct {
	holder    *Holder
	rewriter  *rewriter.Rewriter
	generator *generation.Generator
	executor  *executor.Executor // nil disables execution entirely
	semaphore *Semaphore
	usage     *UsageCounters
	settings  Settings
	logger    *slog.Logger
}

// New builds an Orchestrator. exec may be nil if SQL execution against the
// warehouse is not configured for this deployment (spec.md §4.6 is
// optional: "a deployment may run the engine read-through to answer-and-SQL
// only, never touching the warehouse").
func New(holder *Holder, rw *rewriter.Rewriter, gen *generation.Generator, exec *executor.Executor, sem *Semaphore, usage *UsageCounters, settings Settings, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		holder:    holder,
		rewriter:  rw,
		generator: gen,
		executor:  exec,
		semaphore: sem,
		usage:     usage,
		settings:  settings,
		logger:    logger,
	}
}

// Run executes the full pipeline for one request. Cancellation at any step
// returns sqlragerrors.Cancelled() rather than a partial Response, per
// spec.md §5: "cancellation never returns partial results."
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Response, error) {
	release, err := o.semaphore.Acquire(ctx)
	if err != nil {
		o.usage.RecordOverloadedRejection()
		return nil, err
	}
	defer release()

	o.usage.RecordRequest()
	start := time.Now()

	if req.Question == "" {
		o.usage.RecordError()
		return nil, sqlragerrors.New(sqlragerrors.ErrCodeEmptyQuestion, "question is required", nil)
	}

	snapshot := o.holder.Load()

	agentType := req.AgentType
	if agentType == "" {
		agentType = agent.Detect(req.Question)
	}
	if _, ok := agent.Lookup(agentType); !ok {
		o.usage.RecordError()
		return nil, sqlragerrors.New(sqlragerrors.ErrCodeUnknownAgent, "unrecognized agent type: "+agentType, nil).
			WithSuggestion("use one of default, create, explain, schema")
	}

	rewriteResult, rewriteErr := o.rewriter.Rewrite(ctx, req.Question, req.ConversationContext, o.settings.EnableRewrite)
	if rewriteErr != nil {
		var backendErr *rewriter.ErrBackendUnavailable
		if errors.As(rewriteErr, &backendErr) {
			o.logger.Warn("rewrite backend unavailable, falling back to original question",
				slog.String("error", rewriteErr.Error()))
		} else {
			return nil, o.cancelOr(ctx, sqlragerrors.Wrap(sqlragerrors.ErrCodeRewriteUnavailable, rewriteErr))
		}
	}

	var retrieval *retriever.RetrievalResult
	if req.K != nil && *req.K == 0 {
		// Explicit k=0: skip retrieval entirely rather than coercing to
		// DefaultK. The rest of the pipeline sees zero sources and the
		// Schema Injector produces a schema-only snippet.
		retrieval = &retriever.RetrievalResult{Query: rewriteResult.RewrittenQuestion, Results: []*retriever.Result{}}
	} else {
		k := o.settings.DefaultK
		if req.K != nil {
			k = *req.K
		}

		retrieveCtx, cancelRetrieve := context.WithTimeout(ctx, o.settings.Timeouts.Retrieval)
		result, err := snapshot.Retriever.Retrieve(retrieveCtx, rewriteResult.RewrittenQuestion, k)
		cancelRetrieve()
		if err != nil {
			o.usage.RecordError()
			return nil, o.cancelOr(ctx, sqlragerrors.Wrap(sqlragerrors.ErrCodeEmbeddingFailure, err))
		}
		retrieval = result
		if retrieval.CacheHit {
			o.usage.RecordCacheHit()
		} else {
			o.usage.RecordCacheMiss()
		}
	}

	exemplars := make([]*index.Exemplar, 0, len(retrieval.Results))
	sources := make([]generation.Source, 0, len(retrieval.Results))
	for _, r := range retrieval.Results {
		exemplars = append(exemplars, r.Exemplar)
		sources = append(sources, generation.Source{
			ID:          r.Exemplar.ID,
			Score:       r.FusedScore,
			SQL:         r.Exemplar.SQL,
			Description: r.Exemplar.Description,
		})
	}

	injector := schema.NewInjector(snapshot.Schema, snapshot.Joins, snapshot.Glossary, o.settings.InjectorConfig)
	snippet := injector.Build(exemplars, rewriteResult.RewrittenQuestion)
	schemaSnippet := schema.Render(snippet)

	genReq := generation.Request{
		Question:            rewriteResult.RewrittenQuestion,
		ConversationContext: req.ConversationContext,
		AgentType:           agentType,
		Model:               o.settings.GenerationModel,
		Temperature:         o.settings.Temperature,
		MaxOutputTokens:     o.settings.MaxOutputTokens,
		SchemaSnippet:       schemaSnippet,
		Sources:             sources,
	}

	genCtx, cancelGen := context.WithTimeout(ctx, o.settings.Timeouts.LLM)
	genResult, err := o.generator.Generate(genCtx, genReq)
	cancelGen()
	if err != nil {
		o.usage.RecordError()
		code := sqlragerrors.ErrCodeGenerationFailure
		if errors.Is(genCtx.Err(), context.DeadlineExceeded) {
			code = sqlragerrors.ErrCodeGenerationTimeout
		}
		return nil, o.cancelOr(ctx, sqlragerrors.Wrap(code, err))
	}

	resp := &Response{
		RewrittenQuestion: rewriteResult.RewrittenQuestion,
		WasRewritten:      rewriteResult.WasRewritten,
		Sources:           sources,
		Answer:            genResult.Answer,
		SQL:               genResult.CleanedSQL,
		Usage:             genResult.Usage,
		Findings:          genResult.Findings,
		Agent:             genResult.Agent.Name,
	}

	if genResult.CleanedSQL == "" {
		resp.Elapsed = time.Since(start)
		return resp, nil
	}

	v := validator.New(snapshot.Schema, snapshot.Joins, o.settings.WideTableThreshold)
	valResult := v.Validate(genResult.CleanedSQL, o.settings.ValidatorLevel)
	resp.Validation = valResult
	resp.SQL = valResult.NormalizedSQL

	if req.Execute && o.executor != nil {
		execTimeout := o.settings.Timeouts.WetRun
		if req.DryRun || req.MaxBytesBilled > 0 {
			execTimeout = o.settings.Timeouts.DryRun
			if !req.DryRun {
				execTimeout += o.settings.Timeouts.WetRun
			}
		}
		execCtx, cancelExec := context.WithTimeout(ctx, execTimeout)
		execResult, execErr := o.executor.Execute(execCtx, executor.Request{
			SQL:            valResult.NormalizedSQL,
			DryRun:         req.DryRun,
			MaxBytesBilled: req.MaxBytesBilled,
			Timeout:        execTimeout,
		}, string(valResult.Status))
		cancelExec()
		if execErr != nil {
			o.usage.RecordError()
			return nil, o.cancelOr(ctx, classifyExecutionError(execErr))
		}
		resp.Execution = execResult
		o.usage.RecordBytesBilled(execResult.BytesBilled)
	}

	resp.Elapsed = time.Since(start)
	return resp, nil
}

// cancelOr returns sqlragerrors.Cancelled() if ctx was cancelled by the
// caller (not merely by one step's own sub-deadline), otherwise fallback.
func (o *Orchestrator) cancelOr(ctx context.Context, fallback error) error {
	if ctx.Err() == context.Canceled {
		return sqlragerrors.Cancelled()
	}
	return fallback
}

// classifyExecutionError maps the executor package's typed errors onto the
// request-level error taxonomy (spec.md §7).
func classifyExecutionError(err error) error {
	var rejected executor.ValidationRejected
	if errors.As(err, &rejected) {
		return sqlragerrors.New(sqlragerrors.ErrCodeValidationRejected, rejected.Error(), err)
	}
	var budget *executor.BudgetExceeded
	if errors.As(err, &budget) {
		return sqlragerrors.New(sqlragerrors.ErrCodeBudgetExceeded, budget.Error(), err)
	}
	var timeout *executor.ExecutionTimeout
	if errors.As(err, &timeout) {
		return sqlragerrors.New(sqlragerrors.ErrCodeExecutionTimeout, timeout.Error(), err)
	}
	var backend *executor.BackendError
	if errors.As(err, &backend) {
		return sqlragerrors.New(sqlragerrors.ErrCodeBackendError, backend.Error(), err)
	}
	return sqlragerrors.New(sqlragerrors.ErrCodeBackendError, err.Error(), err)
}

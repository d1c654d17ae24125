package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	sqlragerrors "github.com/sqlrag/engine/internal/errors"
	"github.com/sqlrag/engine/internal/executor"
	"github.com/sqlrag/engine/internal/pipeline"
)

// Handlers wires the HTTP surface (spec.md §6) onto the Orchestrator and,
// for the standalone execute endpoint, the Executor directly.
type Handlers struct {
	orchestrator *pipeline.Orchestrator
	executor     *executor.Executor // nil disables POST /sql/execute
	logger       *slog.Logger
}

// NewHandlers builds a Handlers. exec may be nil if this deployment never
// executes SQL against the warehouse (spec.md §4.6 is optional).
func NewHandlers(o *pipeline.Orchestrator, exec *executor.Executor, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{orchestrator: o, executor: exec, logger: logger}
}

// HandleSearch serves POST /query/search.
func (h *Handlers) HandleSearch(w http.ResponseWriter, r *http.Request) {
	h.handleQuery(w, r, false)
}

// HandleQuick serves POST /query/quick.
func (h *Handlers) HandleQuick(w http.ResponseWriter, r *http.Request) {
	h.handleQuery(w, r, true)
}

func (h *Handlers) handleQuery(w http.ResponseWriter, r *http.Request, quickMode bool) {
	var body SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, sqlragerrors.New(sqlragerrors.ErrCodeEmptyQuestion, "request body is not valid JSON", err))
		return
	}

	req := toOrchestratorRequest(body, quickMode)
	resp, err := h.orchestrator.Run(r.Context(), req)
	if err != nil {
		h.logOrchestratorError(r.Context(), err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toSearchResponse(resp))
}

// HandleExecute serves POST /sql/execute, bypassing the Orchestrator
// entirely: the caller supplies already-validated SQL directly (spec.md §6).
func (h *Handlers) HandleExecute(w http.ResponseWriter, r *http.Request) {
	if h.executor == nil {
		writeError(w, sqlragerrors.New(sqlragerrors.ErrCodeBackendError, "sql execution is not configured for this deployment", nil))
		return
	}

	var body ExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, sqlragerrors.New(sqlragerrors.ErrCodeEmptyQuestion, "request body is not valid JSON", err))
		return
	}
	if body.SQL == "" {
		writeError(w, sqlragerrors.New(sqlragerrors.ErrCodeEmptyQuestion, "sql is required", nil))
		return
	}

	timeout := executor.DefaultTimeout
	result, err := h.executor.Execute(r.Context(), executor.Request{
		SQL:            body.SQL,
		DryRun:         body.DryRun,
		MaxBytesBilled: body.MaxBytesBilled,
		Timeout:        timeout,
	}, executor.ValidationStatusOK)
	if err != nil {
		writeError(w, classifyExecutorError(err))
		return
	}

	writeJSON(w, http.StatusOK, toExecuteResponse(result))
}

func (h *Handlers) logOrchestratorError(ctx context.Context, err error) {
	if ctx.Err() != nil {
		return
	}
	h.logger.Warn("request failed", slog.String("code", sqlragerrors.GetCode(err)), slog.String("error", err.Error()))
}

// classifyExecutorError maps the executor package's typed errors onto the
// request-level taxonomy, mirroring internal/pipeline's own mapping for the
// case where /sql/execute is called directly rather than through a search.
func classifyExecutorError(err error) error {
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

func toExecuteResponse(r *executor.Result) ExecuteResponse {
	data := make([]map[string]any, 0, len(r.Rows))
	for _, row := range r.Rows {
		data = append(data, map[string]any(row))
	}
	return ExecuteResponse{
		Data:            data,
		TotalRows:       r.TotalRows,
		BytesProcessed:  r.BytesProcessed,
		BytesBilled:     r.BytesBilled,
		CacheHit:        r.CacheHit,
		DryRun:          r.DryRun,
		JobID:           r.JobID,
		ExecutionTimeMS: r.ExecutionTime.Milliseconds(),
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError renders any error as the ErrorResponse shape (spec.md §7),
// deriving the HTTP status from the taxonomy when err is a SQLRAGError and
// falling back to 500 for anything else.
func writeError(w http.ResponseWriter, err error) {
	var sqlErr *sqlragerrors.SQLRAGError
	if errors.As(err, &sqlErr) {
		writeJSON(w, sqlErr.HTTPStatus(), ErrorResponse{
			Code:       sqlErr.Code,
			Message:    sqlErr.Message,
			Category:   string(sqlErr.Category),
			Retryable:  sqlErr.Retryable,
			Suggestion: sqlErr.Suggestion,
			Details:    sqlErr.Details,
		})
		return
	}
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Code:    sqlragerrors.ErrCodeInternal,
		Message: err.Error(),
	})
}

package executor

import (
	"context"
	"errors"
	"time"
)

// Executor runs validated SQL against a Runner with the safety caps spec.md
// §4.6 requires.
type Executor struct {
	runner  Runner
	maxRows int
}

// New builds an Executor. maxRows <= 0 uses DefaultMaxRows.
func New(runner Runner, maxRows int) *Executor {
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	return &Executor{runner: runner, maxRows: maxRows}
}

// ValidationStatusOK identifies the single acceptable validator status
// string; defined here rather than importing internal/validator to avoid a
// dependency cycle risk as the pipeline package wires both together.
const ValidationStatusOK = "ok"

// Execute runs req.SQL, which the caller has already validated; sqlStatus
// is the validator's reported status for that SQL.
func (e *Executor) Execute(ctx context.Context, req Request, sqlStatus string) (*Result, error) {
	if sqlStatus != ValidationStatusOK {
		return nil, ValidationRejected{}
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()

	dryRun := req.DryRun
	if req.MaxBytesBilled > 0 {
		dryRunResult, err := e.runner.RunQuery(ctx, req.SQL, true)
		if err != nil {
			return nil, classifyError(err)
		}
		if dryRunResult.BytesProcessed > req.MaxBytesBilled {
			return nil, &BudgetExceeded{EstimatedBytes: dryRunResult.BytesProcessed, MaxBytesBilled: req.MaxBytesBilled}
		}
		if dryRun {
			return toResult(dryRunResult, true, time.Since(start), e.maxRows), nil
		}
	} else if dryRun {
		raw, err := e.runner.RunQuery(ctx, req.SQL, true)
		if err != nil {
			return nil, classifyError(err)
		}
		return toResult(raw, true, time.Since(start), e.maxRows), nil
	}

	raw, err := e.runner.RunQuery(ctx, req.SQL, false)
	if err != nil {
		return nil, classifyError(err)
	}
	return toResult(raw, false, time.Since(start), e.maxRows), nil
}

func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &ExecutionTimeout{Cause: err}
	}
	return &BackendError{Cause: err}
}

func toResult(raw *RawResult, dryRun bool, elapsed time.Duration, maxRows int) *Result {
	rows := raw.Rows
	truncated := false
	if len(rows) > maxRows {
		rows = rows[:maxRows]
		truncated = true
	}
	return &Result{
		Rows:           rows,
		TotalRows:      raw.TotalRows,
		Truncated:      truncated,
		BytesProcessed: raw.BytesProcessed,
		BytesBilled:    raw.BytesBilled,
		CacheHit:       raw.CacheHit,
		DryRun:         dryRun,
		JobID:          raw.JobID,
		ExecutionTime:  elapsed,
	}
}

package executor

import "context"

// RawResult is what a Runner returns for one query attempt, before the
// Executor applies row truncation and budget checks.
type RawResult struct {
	JobID          string
	BytesProcessed int64
	BytesBilled    int64
	CacheHit       bool
	TotalRows      int64
	Rows           []Row // empty for a dry run
}

// Runner abstracts the warehouse call so Executor can be tested without a
// live BigQuery project; BigQueryRunner is the production implementation.
type Runner interface {
	RunQuery(ctx context.Context, sql string, dryRun bool) (*RawResult, error)
}

package executor

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"strconv"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
)

// BigQueryRunner is the production Runner, backed by a real warehouse
// project (spec.md §4.6/§6's warehouse executor contract).
type BigQueryRunner struct {
	client *bigquery.Client
}

// NewBigQueryRunner opens a BigQuery client scoped to projectID.
func NewBigQueryRunner(ctx context.Context, projectID string) (*BigQueryRunner, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("opening bigquery client: %w", err)
	}
	return &BigQueryRunner{client: client}, nil
}

// Close releases the underlying client.
func (r *BigQueryRunner) Close() error {
	return r.client.Close()
}

// RunQuery implements Runner.
func (r *BigQueryRunner) RunQuery(ctx context.Context, sql string, dryRun bool) (*RawResult, error) {
	q := r.client.Query(sql)
	q.DryRun = dryRun

	job, err := q.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("running query: %w", err)
	}

	status := job.LastStatus()
	if status == nil {
		status, err = job.Wait(ctx)
		if err != nil {
			return nil, fmt.Errorf("waiting for job: %w", err)
		}
	}
	if err := status.Err(); err != nil {
		return nil, fmt.Errorf("job failed: %w", err)
	}

	result := &RawResult{JobID: job.ID()}
	if stats, ok := status.Statistics.Details.(*bigquery.QueryStatistics); ok && stats != nil {
		result.BytesProcessed = stats.TotalBytesProcessed
		result.BytesBilled = stats.TotalBytesProcessed
		result.CacheHit = stats.CacheHit
	}

	if dryRun {
		return result, nil
	}

	it, err := job.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading results: %w", err)
	}
	result.TotalRows = int64(it.TotalRows)

	for {
		var raw map[string]bigquery.Value
		err := it.Next(&raw)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterating results: %w", err)
		}
		result.Rows = append(result.Rows, convertRow(raw))
	}

	return result, nil
}

// convertRow stringifies numeric values too wide for int64, per spec.md
// §4.6's "numeric types that do not fit a 64-bit integer are stringified".
func convertRow(raw map[string]bigquery.Value) Row {
	row := make(Row, len(raw))
	for col, v := range raw {
		row[col] = convertValue(v)
	}
	return row
}

func convertValue(v bigquery.Value) any {
	switch val := v.(type) {
	case int64:
		return val
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return strconv.FormatFloat(val, 'g', -1, 64)
		}
		return val
	case *big.Rat:
		return val.RatString()
	default:
		return val
	}
}

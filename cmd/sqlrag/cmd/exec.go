package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sqlrag/engine/internal/executor"
	"github.com/sqlrag/engine/internal/validator"
)

type execOptions struct {
	file           string
	dryRun         bool
	maxBytesBilled int64
	jsonOut        bool
}

func newExecCmd() *cobra.Command {
	var opts execOptions

	cmd := &cobra.Command{
		Use:   "exec <sql>",
		Short: "Validate and execute SQL against the configured warehouse",
		Long: `Validates SQL at SCHEMA_STRICT and, only if it is accepted, runs it
through the Executor: a dry-run budget check before any wet run, unless
--dry-run is given.

Examples:
  sqlrag exec "SELECT id FROM ds.orders LIMIT 10"
  sqlrag exec --file query.sql --dry-run`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sql, err := resolveSQLArg(args, opts.file)
			if err != nil {
				return err
			}
			return runExec(cmd, sql, opts)
		},
	}

	cmd.Flags().StringVar(&opts.file, "file", "", "Read SQL from a file instead of the positional argument")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Dry-run only: report bytes processed, never bill or return rows")
	cmd.Flags().Int64Var(&opts.maxBytesBilled, "max-bytes-billed", 0, "Reject if the dry-run estimate exceeds this many bytes (0 = use config default)")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "Output the result as JSON")

	return cmd
}

func runExec(cmd *cobra.Command, sql string, opts execOptions) error {
	ctx := cmd.Context()

	eng, err := buildEngine(ctx, configDir, nil)
	if err != nil {
		return err
	}
	defer eng.close()

	if eng.executor == nil {
		return fmt.Errorf("sql execution is not configured: set warehouse.project")
	}

	snap := eng.holder.Load()
	v := validator.New(snap.Schema, snap.Joins, eng.cfg.Prompt.WideTableThreshold)
	validated := v.Validate(sql, validator.SchemaStrict)
	if validated.Status != validator.StatusOK {
		for _, f := range validated.Findings {
			fmt.Fprintf(cmd.ErrOrStderr(), "[%s] %s: %s\n", f.Level, f.Code, f.Message)
		}
		return fmt.Errorf("sql rejected by validator")
	}

	maxBytesBilled := opts.maxBytesBilled
	if maxBytesBilled == 0 {
		maxBytesBilled = eng.cfg.Warehouse.MaxBytesBilledDefault
	}

	result, err := eng.executor.Execute(ctx, executor.Request{
		SQL:            validated.NormalizedSQL,
		DryRun:         opts.dryRun,
		MaxBytesBilled: maxBytesBilled,
	}, string(validated.Status))
	if err != nil {
		return fmt.Errorf("exec: %w", err)
	}

	out := cmd.OutOrStdout()
	if opts.jsonOut {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	fmt.Fprintf(out, "%d row(s), %d bytes processed, %d bytes billed, dry_run=%v\n",
		result.TotalRows, result.BytesProcessed, result.BytesBilled, result.DryRun)
	for _, row := range result.Rows {
		fmt.Fprintln(out, row)
	}
	return nil
}

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sqlrag/engine/internal/validator"
)

type validateOptions struct {
	level string
	file  string
}

func newValidateCmd() *cobra.Command {
	var opts validateOptions

	cmd := &cobra.Command{
		Use:   "validate <sql>",
		Short: "Validate SQL against the configured schema and safe-join map",
		Long: `Runs the SQL Validator directly, without retrieval or generation.

Examples:
  sqlrag validate "SELECT id FROM ds.orders"
  sqlrag validate --file query.sql --level SCHEMA_STRICT`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sql, err := resolveSQLArg(args, opts.file)
			if err != nil {
				return err
			}
			return runValidate(cmd, sql, opts)
		},
	}

	cmd.Flags().StringVar(&opts.level, "level", "SCHEMA_STRICT", "Validation level: SYNTAX_ONLY, READ_ONLY, SCHEMA_LOOSE, SCHEMA_STRICT")
	cmd.Flags().StringVar(&opts.file, "file", "", "Read SQL from a file instead of the positional argument")

	return cmd
}

func resolveSQLArg(args []string, file string) (string, error) {
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("read sql file: %w", err)
		}
		return string(data), nil
	}
	if len(args) == 0 {
		return "", fmt.Errorf("sql is required, either as an argument or via --file")
	}
	return args[0], nil
}

func runValidate(cmd *cobra.Command, sql string, opts validateOptions) error {
	ctx := cmd.Context()

	eng, err := buildEngine(ctx, configDir, nil)
	if err != nil {
		return err
	}
	defer eng.close()

	snap := eng.holder.Load()
	v := validator.New(snap.Schema, snap.Joins, eng.cfg.Prompt.WideTableThreshold)
	result := v.Validate(sql, validator.ParseLevel(opts.level))

	out := cmd.OutOrStdout()
	color := colorEnabled(out)
	fmt.Fprintf(out, "status: %s (%s)\n", result.Status, result.Level)
	for _, f := range result.Findings {
		fmt.Fprintf(out, "[%s] %s: %s\n", colorizeLevel(string(f.Level), color), f.Code, f.Message)
	}
	if result.NormalizedSQL != "" {
		fmt.Fprintf(out, "\nnormalized:\n%s\n", result.NormalizedSQL)
	}

	if result.Status != validator.StatusOK {
		return fmt.Errorf("sql rejected")
	}
	return nil
}

package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sqlrag/engine/internal/pipeline"
)

type askOptions struct {
	k         int
	agentType string
	jsonOut   bool
	execute   bool
	dryRun    bool
}

func newAskCmd() *cobra.Command {
	var opts askOptions

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a natural-language question and get an answer and SQL",
		Long: `Runs a question through the full pipeline: query rewriting, hybrid
retrieval, schema injection, generation, and SQL validation.

Examples:
  sqlrag ask "how many orders were placed last week"
  sqlrag ask "revenue by user" --agent create --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd, args[0], opts)
		},
	}

	cmd.Flags().IntVarP(&opts.k, "k", "k", 0, "Number of exemplars to retrieve (omit for the server default; 0 skips retrieval for a schema-only answer)")
	cmd.Flags().StringVar(&opts.agentType, "agent", "default", "Agent type: default, create, explain, schema")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "Output the full response as JSON")
	cmd.Flags().BoolVar(&opts.execute, "execute", false, "Execute the generated SQL against the warehouse")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "With --execute, dry-run only (no charge, no rows)")

	return cmd
}

func runAsk(cmd *cobra.Command, question string, opts askOptions) error {
	ctx := cmd.Context()

	eng, err := buildEngine(ctx, configDir, nil)
	if err != nil {
		return err
	}
	defer eng.close()

	var k *int
	if cmd.Flags().Changed("k") {
		k = &opts.k
	}

	req := pipeline.Request{
		Question:       question,
		AgentType:      opts.agentType,
		K:              k,
		Execute:        opts.execute,
		DryRun:         opts.dryRun,
		MaxBytesBilled: eng.cfg.Warehouse.MaxBytesBilledDefault,
	}

	resp, err := eng.orchestrator.Run(ctx, req)
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}

	if opts.jsonOut {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	out := cmd.OutOrStdout()
	color := colorEnabled(out)
	fmt.Fprintln(out, resp.Answer)
	if resp.SQL != "" {
		fmt.Fprintln(out)
		fmt.Fprintln(out, resp.SQL)
	}
	for _, f := range resp.Findings {
		fmt.Fprintf(out, "[%s] %s: %s\n", colorizeLevel(f.Level, color), f.Code, f.Message)
	}
	if resp.Execution != nil {
		fmt.Fprintf(out, "\n%d row(s), %d bytes processed\n", resp.Execution.TotalRows, resp.Execution.BytesProcessed)
	}
	return nil
}

package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	sqlragerrors "github.com/sqlrag/engine/internal/errors"
)

type searchOptions struct {
	k       int
	jsonOut bool
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Retrieve exemplars from the hybrid index without generating SQL",
		Long: `Runs only the hybrid retrieval step (vector + lexical fusion) and
prints the matched exemplars, skipping rewriting and generation.

Examples:
  sqlrag search "revenue by user" --k 5
  sqlrag search "orders last week" --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, args[0], opts)
		},
	}

	cmd.Flags().IntVarP(&opts.k, "k", "k", 10, "Number of exemplars to retrieve")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "Output results as JSON")

	return cmd
}

func runSearch(cmd *cobra.Command, query string, opts searchOptions) error {
	ctx := cmd.Context()

	eng, err := buildEngine(ctx, configDir, nil)
	if err != nil {
		return err
	}
	defer eng.close()

	snap := eng.holder.Load()
	if snap == nil || snap.Retriever == nil {
		return sqlragerrors.New(sqlragerrors.ErrCodeIndexUnavailable, "no index loaded", nil)
	}

	result, err := snap.Retriever.Retrieve(ctx, query, opts.k)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}

	out := cmd.OutOrStdout()
	if opts.jsonOut {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	for i, r := range result.Results {
		fmt.Fprintf(out, "%d. [%.3f] %s\n   %s\n   %s\n", i+1, r.FusedScore, r.Exemplar.ID, r.Exemplar.Description, r.Exemplar.SQL)
	}
	return nil
}

package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sqlrag/engine/internal/builder"
	"github.com/sqlrag/engine/internal/config"
	"github.com/sqlrag/engine/internal/index"
)

// Exit codes for the offline builder (spec.md §6): 0 ok, 2 config error,
// 3 corpus parse error, 4 embedding backend failure.
const (
	exitOK               = 0
	exitConfigError      = 2
	exitCorpusParseError = 3
	exitEmbeddingFailure = 4
)

func newBuildIndexCmd() *cobra.Command {
	var batchSize int

	cmd := &cobra.Command{
		Use:   "build-index",
		Short: "Build the vector and lexical indices from corpus.csv",
		Long: `Reads corpus.csv, schema.csv, and the safe-join map, embeds every
exemplar with the configured embedding provider, and writes the vector
index blob/sidecar plus the bleve lexical index.

Exits 0 on success, 2 on a configuration error, 3 if corpus.csv cannot be
parsed into any usable rows, and 4 if the embedding backend fails.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := runBuildIndex(cmd, batchSize)
			if err == nil {
				return nil
			}
			fmt.Fprintln(cmd.ErrOrStderr(), err)

			var buildErr *builder.Error
			if errors.As(err, &buildErr) {
				switch buildErr.Stage {
				case builder.StageCorpus:
					os.Exit(exitCorpusParseError)
				case builder.StageEmbedding:
					os.Exit(exitEmbeddingFailure)
				}
			}
			os.Exit(exitConfigError)
			return nil
		},
	}

	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Embedding batch size (0 = provider default)")

	return cmd
}

func runBuildIndex(cmd *cobra.Command, batchSize int) error {
	ctx := cmd.Context()

	cfg, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	embedder, err := buildEmbedder(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build embedding provider: %w", err)
	}
	defer embedder.Close()

	buildCfg := builder.Config{
		CorpusCSVPath:    cfg.Paths.CorpusCSVPath,
		SchemaCSVPath:    cfg.Paths.SchemaCSVPath,
		SafeJoinMapPath:  cfg.Paths.SafeJoinMapPath,
		VectorIndexPath:  cfg.Paths.VectorIndexPath,
		LexicalIndexPath: cfg.Paths.VectorIndexPath + ".bleve",
		VectorStoreConfig: index.VectorStoreConfig{
			Dimensions: cfg.Embeddings.Dimensions,
		},
		BatchSize: batchSize,
	}

	result, err := builder.Build(ctx, buildCfg, embedder, nil)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "built index: %d exemplar(s), %d dropped row(s), fingerprint %s\n",
		result.ExemplarCount, result.DroppedRows, result.Fingerprint)
	return nil
}

// Package builder implements the offline index build described in
// spec.md §6's "Offline builder": read corpus.csv + schema.csv + the
// safe-join map, embed every exemplar in batches, and write the vector
// index blob/sidecar plus the bleve lexical index to disk.
package builder

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sqlrag/engine/internal/corpus"
	"github.com/sqlrag/engine/internal/embedprovider"
	"github.com/sqlrag/engine/internal/index"
	"github.com/sqlrag/engine/internal/schema"
)

// Config describes the inputs and outputs of one build.
type Config struct {
	CorpusCSVPath     string
	SchemaCSVPath     string
	SafeJoinMapPath   string
	VectorIndexPath   string
	LexicalIndexPath  string
	VectorStoreConfig index.VectorStoreConfig
	BM25Config        index.BM25Config
	BatchSize         int
}

// Stage identifies which part of the build failed, so callers (the CLI)
// can translate it into spec.md §6's offline-tool exit codes.
type Stage int

const (
	StageConfig Stage = iota
	StageCorpus
	StageEmbedding
)

// Error wraps a build failure with the Stage it happened in.
type Error struct {
	Stage Stage
	Err   error
}

func (e *Error) Error() string { return e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// Result summarizes a completed build.
type Result struct {
	ExemplarCount int
	DroppedRows   int
	Dimensions    int
	Fingerprint   string
}

// Build reads cfg's inputs, embeds every exemplar with embedder, and
// writes the vector and lexical indices to cfg's output paths.
func Build(ctx context.Context, cfg Config, embedder embedprovider.Embedder, logger *slog.Logger) (*Result, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.CorpusCSVPath == "" || cfg.VectorIndexPath == "" || cfg.LexicalIndexPath == "" {
		return nil, &Error{Stage: StageConfig, Err: fmt.Errorf("corpus path, vector index path, and lexical index path are required")}
	}

	store, err := schema.LoadSchemaCSV(cfg.SchemaCSVPath)
	if err != nil {
		return nil, &Error{Stage: StageConfig, Err: fmt.Errorf("load schema csv: %w", err)}
	}

	joins, err := schema.LoadSafeJoinMapJSON(cfg.SafeJoinMapPath)
	if err != nil {
		return nil, &Error{Stage: StageConfig, Err: fmt.Errorf("load safe join map: %w", err)}
	}
	if err := joins.Validate(store); err != nil {
		return nil, &Error{Stage: StageConfig, Err: fmt.Errorf("validate safe join map against schema: %w", err)}
	}

	result, err := corpus.LoadCorpusCSV(cfg.CorpusCSVPath)
	if err != nil {
		return nil, &Error{Stage: StageCorpus, Err: fmt.Errorf("load corpus csv: %w", err)}
	}
	for _, dropped := range result.Dropped {
		logger.Warn("dropped malformed corpus row", slog.String("error", dropped.Error()))
	}
	if len(result.Rows) == 0 {
		return nil, &Error{Stage: StageCorpus, Err: fmt.Errorf("corpus.csv produced no usable rows")}
	}

	batchSize := cfg.BatchSize
	if batchSize < embedprovider.MinBatchSize {
		batchSize = embedprovider.DefaultBatchSize
	}
	if batchSize > embedprovider.MaxBatchSize {
		batchSize = embedprovider.MaxBatchSize
	}

	exemplars := make([]*index.Exemplar, 0, len(result.Rows))
	docs := make([]*index.Document, 0, len(result.Rows))
	for start := 0; start < len(result.Rows); start += batchSize {
		end := start + batchSize
		if end > len(result.Rows) {
			end = len(result.Rows)
		}
		batch := result.Rows[start:end]

		texts := make([]string, len(batch))
		for i, row := range batch {
			texts[i] = row.Description + " " + row.SQL
		}

		embedder.SetFinalBatch(end == len(result.Rows))
		vecs, err := embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, &Error{Stage: StageEmbedding, Err: fmt.Errorf("embed batch [%d:%d): %w", start, end, err)}
		}
		if len(vecs) != len(batch) {
			return nil, &Error{Stage: StageEmbedding, Err: fmt.Errorf("embedder returned %d vectors for %d inputs", len(vecs), len(batch))}
		}

		for i, row := range batch {
			exemplars = append(exemplars, &index.Exemplar{
				ID:          row.ID,
				SQL:         row.SQL,
				Description: row.Description,
				Tables:      row.Tables,
				Joins:       row.Joins,
				Embedding:   vecs[i],
			})
			docs = append(docs, &index.Document{ID: row.ID, Content: texts[i]})
		}

		logger.Info("embedded batch", slog.Int("embedded", end), slog.Int("total", len(result.Rows)))
	}

	vecCfg := cfg.VectorStoreConfig
	if vecCfg.Dimensions == 0 {
		vecCfg.Dimensions = embedder.Dimensions()
	}
	vec, err := index.NewHNSWIndex(vecCfg)
	if err != nil {
		return nil, &Error{Stage: StageConfig, Err: fmt.Errorf("create vector index: %w", err)}
	}
	defer vec.Close()

	ids := make([]string, len(exemplars))
	vectors := make([][]float32, len(exemplars))
	for i, ex := range exemplars {
		ids[i] = ex.ID
		vectors[i] = ex.Embedding
	}
	if err := vec.Add(ctx, ids, vectors); err != nil {
		return nil, &Error{Stage: StageEmbedding, Err: fmt.Errorf("add vectors to index: %w", err)}
	}
	if err := vec.Save(cfg.VectorIndexPath); err != nil {
		return nil, &Error{Stage: StageConfig, Err: fmt.Errorf("save vector index: %w", err)}
	}

	lex, err := index.NewBleveLexicalIndex(cfg.LexicalIndexPath, cfg.BM25Config)
	if err != nil {
		return nil, &Error{Stage: StageConfig, Err: fmt.Errorf("create lexical index: %w", err)}
	}
	defer lex.Close()
	if err := lex.Index(ctx, docs); err != nil {
		return nil, &Error{Stage: StageEmbedding, Err: fmt.Errorf("index documents: %w", err)}
	}

	return &Result{
		ExemplarCount: len(exemplars),
		DroppedRows:   len(result.Dropped),
		Dimensions:    vecCfg.Dimensions,
		Fingerprint:   vec.Fingerprint(),
	}, nil
}

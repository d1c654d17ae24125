package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sqlrag/engine/internal/config"
	"github.com/sqlrag/engine/internal/embedprovider"
	"github.com/sqlrag/engine/internal/executor"
	"github.com/sqlrag/engine/internal/generation"
	"github.com/sqlrag/engine/internal/index"
	"github.com/sqlrag/engine/internal/llmprovider"
	"github.com/sqlrag/engine/internal/pipeline"
	"github.com/sqlrag/engine/internal/retriever"
	"github.com/sqlrag/engine/internal/rewriter"
	"github.com/sqlrag/engine/internal/validator"
)

// engine bundles the pieces a one-shot CLI invocation needs: an
// Orchestrator backed by a single Reload() (no watcher, unlike the
// daemon), an optional Executor, and a close func releasing the LLM and
// warehouse clients.
type engine struct {
	cfg          *config.Config
	orchestrator *pipeline.Orchestrator
	executor     *executor.Executor
	holder       *pipeline.Holder
	close        func()
}

// buildEngine loads configuration from dir and wires an Orchestrator the
// same way cmd/sqlragd does, minus the reload watcher: a CLI invocation
// only needs one consistent snapshot for its own lifetime.
func buildEngine(ctx context.Context, dir string, logger *slog.Logger) (*engine, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := config.Load(dir)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	embedder, err := buildEmbedder(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("build embedding provider: %w", err)
	}

	llmClient, err := buildLLMClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("build llm provider: %w", err)
	}

	retrieverCfg := retriever.DefaultConfig()
	retrieverCfg.DefaultK = cfg.Search.DefaultK
	retrieverCfg.Weights = retriever.Weights{Vector: cfg.Search.VectorWeight, Lexical: cfg.Search.LexicalWeight}
	retrieverCfg.AutoAdjustWeights = cfg.Search.AutoAdjustWeights
	retrieverCfg.BM25Threshold = cfg.Search.AutoAdjustBM25Threshold
	retrieverCfg.CacheSize = cfg.Search.CacheSize

	reloadCfg := pipeline.Config{
		VectorIndexPath:  cfg.Paths.VectorIndexPath,
		LexicalIndexPath: cfg.Paths.VectorIndexPath + ".bleve",
		SchemaCSVPath:    cfg.Paths.SchemaCSVPath,
		SafeJoinMapPath:  cfg.Paths.SafeJoinMapPath,
		CorpusCSVPath:    cfg.Paths.CorpusCSVPath,
		VectorStoreConfig: index.VectorStoreConfig{
			Dimensions: cfg.Embeddings.Dimensions,
		},
		BM25Config:      index.BM25Config{},
		RetrieverConfig: retrieverCfg,
	}

	holder := pipeline.NewHolder(nil)
	reloader := pipeline.NewReloader(reloadCfg, holder, embedder, logger)
	if _, err := reloader.Reload(); err != nil {
		llmClient.Close()
		return nil, fmt.Errorf("load index: %w", err)
	}

	rw := rewriter.New(llmClient, cfg.LLM.ModelDefault)
	gen := generation.New(llmClient, cfg.Prompt.ContextWindowTokens, cfg.Prompt.ReservedCompletionTokens)
	usage := pipeline.NewUsageCounters()
	sem := pipeline.NewSemaphore(4)

	settings := pipeline.DefaultSettings()
	settings.GenerationModel = cfg.LLM.ModelDefault
	settings.RewriteModel = cfg.LLM.ModelDefault
	settings.Temperature = cfg.LLM.Temperature
	settings.MaxOutputTokens = cfg.LLM.MaxTokens
	settings.DefaultK = cfg.Search.DefaultK
	settings.WideTableThreshold = cfg.Prompt.WideTableThreshold
	settings.ValidatorLevel = validator.SchemaStrict
	settings.InjectorConfig.MaxTablesInPrompt = cfg.Prompt.MaxTablesInPrompt
	settings.InjectorConfig.SchemaSnippetTokenBudget = cfg.Prompt.SchemaSnippetTokenBudget

	var exec *executor.Executor
	var closeRunner func()
	if cfg.Warehouse.Project != "" {
		runner, err := executor.NewBigQueryRunner(ctx, cfg.Warehouse.Project)
		if err != nil {
			llmClient.Close()
			return nil, fmt.Errorf("connect to warehouse: %w", err)
		}
		exec = executor.New(runner, cfg.Warehouse.MaxRows)
		closeRunner = func() { runner.Close() }
	}

	orchestrator := pipeline.New(holder, rw, gen, exec, sem, usage, settings, logger)

	return &engine{
		cfg:          cfg,
		orchestrator: orchestrator,
		executor:     exec,
		holder:       holder,
		close: func() {
			llmClient.Close()
			if closeRunner != nil {
				closeRunner()
			}
		},
	}, nil
}

func buildEmbedder(ctx context.Context, cfg *config.Config) (embedprovider.Embedder, error) {
	switch cfg.Embeddings.Provider {
	case "static":
		return embedprovider.NewStaticEmbedder(cfg.Embeddings.Dimensions), nil
	default:
		ollamaCfg := embedprovider.DefaultOllamaConfig()
		if cfg.Embeddings.Model != "" {
			ollamaCfg.Model = cfg.Embeddings.Model
		}
		if cfg.Embeddings.OllamaHost != "" {
			ollamaCfg.Host = cfg.Embeddings.OllamaHost
		}
		if cfg.Embeddings.Dimensions > 0 {
			ollamaCfg.Dimensions = cfg.Embeddings.Dimensions
		}
		if cfg.Embeddings.BatchSize > 0 {
			ollamaCfg.BatchSize = cfg.Embeddings.BatchSize
		}
		return embedprovider.NewOllamaEmbedder(ctx, ollamaCfg)
	}
}

func buildLLMClient(ctx context.Context, cfg *config.Config) (llmprovider.Client, error) {
	client, err := buildRawLLMClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return llmprovider.WithCircuitBreaker(client, "llm:"+cfg.LLM.Provider), nil
}

func buildRawLLMClient(ctx context.Context, cfg *config.Config) (llmprovider.Client, error) {
	switch cfg.LLM.Provider {
	case "openai_compatible":
		return llmprovider.NewOpenAICompatibleClient(llmprovider.OpenAICompatibleConfig{
			Model:      cfg.LLM.ModelDefault,
			Timeout:    cfg.LLM.Timeout,
			MaxRetries: cfg.LLM.MaxRetries,
		}), nil
	default:
		ollamaCfg := llmprovider.DefaultOllamaConfig()
		if cfg.LLM.ModelDefault != "" {
			ollamaCfg.Model = cfg.LLM.ModelDefault
		}
		if cfg.LLM.OllamaHost != "" {
			ollamaCfg.Host = cfg.LLM.OllamaHost
		}
		if cfg.LLM.Timeout > 0 {
			ollamaCfg.Timeout = cfg.LLM.Timeout
		}
		if cfg.LLM.MaxRetries > 0 {
			ollamaCfg.MaxRetries = cfg.LLM.MaxRetries
		}
		return llmprovider.NewOllamaClient(ctx, ollamaCfg)
	}
}

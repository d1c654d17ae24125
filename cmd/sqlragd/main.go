// Command sqlragd runs the SQL-RAG engine as a long-lived HTTP daemon:
// it loads the corpus/schema/index artifacts into a Snapshot, serves the
// endpoints in internal/httpapi, and watches its backing files for changes
// to trigger a full-swap reload (spec.md §5).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sqlrag/engine/internal/config"
	"github.com/sqlrag/engine/internal/embedprovider"
	"github.com/sqlrag/engine/internal/executor"
	"github.com/sqlrag/engine/internal/generation"
	"github.com/sqlrag/engine/internal/httpapi"
	"github.com/sqlrag/engine/internal/index"
	"github.com/sqlrag/engine/internal/llmprovider"
	"github.com/sqlrag/engine/internal/logging"
	"github.com/sqlrag/engine/internal/pipeline"
	"github.com/sqlrag/engine/internal/retriever"
	"github.com/sqlrag/engine/internal/rewriter"
	"github.com/sqlrag/engine/internal/validator"
)

func main() {
	if err := run(); err != nil {
		slog.Error("sqlragd exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	logCfg := logging.DefaultConfig()
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("set up logging: %w", err)
	}
	defer cleanup()
	slog.SetDefault(logger)

	cfg, err := config.Load(".")
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	embedder, err := buildEmbedder(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build embedding provider: %w", err)
	}

	llmClient, err := buildLLMClient(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build llm provider: %w", err)
	}
	defer llmClient.Close()

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
		return fmt.Errorf("initial index load: %w", err)
	}

	watcher, err := pipeline.NewReloadWatcher([]string{
		reloadCfg.VectorIndexPath,
		reloadCfg.SchemaCSVPath,
		reloadCfg.SafeJoinMapPath,
	}, 2*time.Second)
	if err != nil {
		return fmt.Errorf("start reload watcher: %w", err)
	}
	go watcher.Start(ctx)
	go func() {
		for range watcher.Triggers() {
			if _, err := reloader.Reload(); err != nil {
				logger.Error("reload failed", slog.String("error", err.Error()))
			}
		}
	}()

	rw := rewriter.New(llmClient, cfg.LLM.ModelDefault)
	gen := generation.New(llmClient, cfg.Prompt.ContextWindowTokens, cfg.Prompt.ReservedCompletionTokens)
	usage := pipeline.NewUsageCounters()
	sem := pipeline.NewSemaphore(16)

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
	if cfg.Warehouse.Project != "" {
		runner, err := executor.NewBigQueryRunner(ctx, cfg.Warehouse.Project)
		if err != nil {
			return fmt.Errorf("connect to warehouse: %w", err)
		}
		defer runner.Close()
		exec = executor.New(runner, cfg.Warehouse.MaxRows)
	}

	orchestrator := pipeline.New(holder, rw, gen, exec, sem, usage, settings, logger)
	handlers := httpapi.NewHandlers(orchestrator, exec, logger)
	server := httpapi.NewServer(fmt.Sprintf(":%d", cfg.Server.Port), handlers, logger)

	return server.ListenAndServe(ctx)
}

func buildEmbedder(ctx context.Context, cfg *config.Config) (retriever.Embedder, error) {
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

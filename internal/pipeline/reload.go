package pipeline

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/sqlrag/engine/internal/corpus"
	"github.com/sqlrag/engine/internal/index"
	"github.com/sqlrag/engine/internal/retriever"
	"github.com/sqlrag/engine/internal/schema"
)

// Config describes where a Snapshot's backing files live on disk and how
// the vector/lexical indices and retriever should be configured when
// loaded.
type Config struct {
	VectorIndexPath   string
	LexicalIndexPath  string
	SchemaCSVPath     string
	SafeJoinMapPath   string
	CorpusCSVPath     string
	GlossaryJSONPath  string // optional; "" means no glossary
	VectorStoreConfig index.VectorStoreConfig
	BM25Config        index.BM25Config
	RetrieverConfig   retriever.Config
}

// Reloader owns the single-writer-latch that serializes rebuilds, both
// within this process (the gofrs/flock file is also exclusive across
// processes sharing the same data directory), mirroring the teacher's
// FileLock pattern for the offline embedding model download
// (internal/embed/lock.go) applied here to index reloads instead.
type Reloader struct {
	cfg      Config
	holder   *Holder
	embedder retriever.Embedder
	lockPath string
	logger   *slog.Logger
}

// NewReloader builds a Reloader bound to holder. embedder is the query
// embedding backend handed to every generation's fresh Retriever.
func NewReloader(cfg Config, holder *Holder, embedder retriever.Embedder, logger *slog.Logger) *Reloader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reloader{
		cfg:      cfg,
		holder:   holder,
		embedder: embedder,
		lockPath: filepath.Join(filepath.Dir(cfg.VectorIndexPath), ".reload.lock"),
		logger:   logger,
	}
}

// Reload loads a fresh Snapshot from disk and installs it via Holder.Swap.
// In-flight requests holding a reference to the previous Snapshot are
// unaffected (spec.md §5: "in-flight requests continue with the old
// snapshot"). Cross-process exclusion is via gofrs/flock so two sqlragd
// instances (or an offline rebuild tool and a running daemon) never read a
// half-written index.
func (r *Reloader) Reload() (*Snapshot, error) {
	if err := os.MkdirAll(filepath.Dir(r.lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	fl := flock.New(r.lockPath)
	if err := fl.Lock(); err != nil {
		return nil, fmt.Errorf("acquire reload lock: %w", err)
	}
	defer fl.Unlock()

	next, err := loadSnapshot(r.cfg, r.embedder, r.logger)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	prev := r.holder.Swap(next)
	r.logger.Info("reload complete",
		slog.String("fingerprint", next.Fingerprint),
		slog.Int("table_count", next.Schema.Len()),
		slog.Bool("had_previous", prev != nil),
	)
	return next, nil
}

// loadSnapshot reads the vector index, lexical index, schema store, safe
// join map, corpus exemplar metadata, and optional business glossary from
// disk and assembles a new immutable Snapshot, including a Retriever built
// fresh against this generation's indices. Failures are returned wholesale
// rather than partially applied, following the coordinator's
// reconciliation pattern of not mutating shared state until every
// dependency for the new generation has been resolved.
func loadSnapshot(cfg Config, embedder retriever.Embedder, logger *slog.Logger) (*Snapshot, error) {
	vec, err := index.NewHNSWIndex(cfg.VectorStoreConfig)
	if err != nil {
		return nil, fmt.Errorf("create vector index: %w", err)
	}
	if err := vec.Load(cfg.VectorIndexPath); err != nil {
		return nil, fmt.Errorf("load vector index: %w", err)
	}

	lex, err := index.NewBleveLexicalIndex(cfg.LexicalIndexPath, cfg.BM25Config)
	if err != nil {
		return nil, fmt.Errorf("open lexical index: %w", err)
	}

	store, err := schema.LoadSchemaCSV(cfg.SchemaCSVPath)
	if err != nil {
		return nil, fmt.Errorf("load schema csv: %w", err)
	}

	joins, err := schema.LoadSafeJoinMapJSON(cfg.SafeJoinMapPath)
	if err != nil {
		return nil, fmt.Errorf("load safe join map: %w", err)
	}
	if err := joins.Validate(store); err != nil {
		return nil, fmt.Errorf("validate safe join map against schema: %w", err)
	}

	corpusResult, err := corpus.LoadCorpusCSV(cfg.CorpusCSVPath)
	if err != nil {
		return nil, fmt.Errorf("load corpus csv: %w", err)
	}
	for _, dropped := range corpusResult.Dropped {
		logger.Warn("dropped malformed corpus row", slog.String("error", dropped.Error()))
	}
	exemplars := make([]*index.Exemplar, 0, len(corpusResult.Rows))
	for _, row := range corpusResult.Rows {
		exemplars = append(exemplars, &index.Exemplar{
			ID:          row.ID,
			SQL:         row.SQL,
			Description: row.Description,
			Tables:      row.Tables,
			Joins:       row.Joins,
		})
	}
	lookup := NewMapExemplarLookup(exemplars)

	var glossary *schema.BusinessGlossary
	if cfg.GlossaryJSONPath != "" {
		glossary, err = schema.LoadBusinessGlossaryJSON(cfg.GlossaryJSONPath)
		if err != nil {
			return nil, fmt.Errorf("load business glossary: %w", err)
		}
	}

	r, err := retriever.New(vec, lex, embedder, lookup, cfg.RetrieverConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("build retriever: %w", err)
	}

	return &Snapshot{
		Vector:      vec,
		Lexical:     lex,
		Schema:      store,
		Joins:       joins,
		Glossary:    glossary,
		Retriever:   r,
		Fingerprint: vec.Fingerprint(),
		LoadedAt:    time.Now(),
	}, nil
}

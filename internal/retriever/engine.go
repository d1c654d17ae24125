package retriever

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sqlrag/engine/internal/index"
)

// Retriever runs hybrid retrieval over the exemplar corpus: vector search
// and lexical (BM25) search in parallel, fused by weighted sum, with an LRU
// cache in front.
type Retriever struct {
	vector   index.VectorIndex
	lexical  index.LexicalIndex
	embedder Embedder
	lookup   ExemplarLookup
	fusion   *WeightedFusion
	cache    *Cache
	config   Config

	mu          sync.RWMutex
	fingerprint string

	logger *slog.Logger
}

// ErrNilDependency is returned when a required dependency is nil.
var ErrNilDependency = fmt.Errorf("nil dependency")

// New creates a Retriever from its dependencies and config.
func New(vector index.VectorIndex, lexical index.LexicalIndex, embedder Embedder, lookup ExemplarLookup, cfg Config, logger *slog.Logger) (*Retriever, error) {
	if vector == nil {
		return nil, fmt.Errorf("%w: vector index is required", ErrNilDependency)
	}
	if lexical == nil {
		return nil, fmt.Errorf("%w: lexical index is required", ErrNilDependency)
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrNilDependency)
	}
	if lookup == nil {
		return nil, fmt.Errorf("%w: exemplar lookup is required", ErrNilDependency)
	}
	if logger == nil {
		logger = slog.Default()
	}

	var fusion *WeightedFusion
	if cfg.AutoAdjustWeights {
		fusion = NewAutoAdjustingFusion(cfg.BM25Threshold)
	} else {
		fusion = NewWeightedFusion()
	}

	return &Retriever{
		vector:      vector,
		lexical:     lexical,
		embedder:    embedder,
		lookup:      lookup,
		fusion:      fusion,
		cache:       NewCache(cfg.CacheSize, cfg.CacheTTL),
		config:      cfg,
		fingerprint: vector.Fingerprint(),
		logger:      logger,
	}, nil
}

// SetIndexFingerprint updates the fingerprint used in cache keys and
// invalidates the cache. Called after an index reload.
func (r *Retriever) SetIndexFingerprint(fingerprint string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if fingerprint == r.fingerprint {
		return
	}
	r.fingerprint = fingerprint
	r.cache.Invalidate()
}

// Retrieve runs hybrid retrieval for query, returning up to k results. A
// negative k falls back to config.DefaultK; k == 0 is an explicit request
// for no results and is honored as such (spec.md §8 Boundaries: "k=0
// returns empty sources and still produces an answer"), neither index is
// queried.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) (*RetrievalResult, error) {
	if k < 0 {
		k = r.config.DefaultK
	}
	if k == 0 {
		return &RetrievalResult{
			Query:   query,
			K:       0,
			Weights: r.config.Weights,
			Results: []*Result{},
			Fetched: time.Now(),
		}, nil
	}
	weights := r.config.Weights

	r.mu.RLock()
	fingerprint := r.fingerprint
	r.mu.RUnlock()

	cacheKey := Key(query, k, weights, fingerprint)
	if cached, ok := r.cache.Get(cacheKey); ok {
		hit := *cached
		hit.CacheHit = true
		return &hit, nil
	}

	candidateK := k
	if candidateK < minCandidateK {
		candidateK = minCandidateK
	}

	var (
		vecResults []*index.VectorResult
		lexResults []*index.BM25Result
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		trimmed := strings.TrimSpace(query)
		if trimmed == "" {
			vecResults = nil
			return nil
		}
		embedding, err := r.embedder.Embed(gctx, trimmed)
		if err != nil {
			return fmt.Errorf("retriever: embed query: %w", err)
		}
		results, err := r.vector.Search(gctx, embedding, candidateK)
		if err != nil {
			return fmt.Errorf("retriever: vector search: %w", err)
		}
		vecResults = results
		return nil
	})
	g.Go(func() error {
		results, err := r.lexical.Search(gctx, query, candidateK)
		if err != nil {
			return fmt.Errorf("retriever: lexical search: %w", err)
		}
		lexResults = results
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	resolvedWeights := r.fusion.ResolveWeights(weights, lexResults)
	fused := r.fusion.Fuse(vecResults, lexResults, resolvedWeights, r.lookup)

	if len(fused) > k {
		fused = fused[:k]
	}

	result := &RetrievalResult{
		Query:   query,
		K:       k,
		Weights: resolvedWeights,
		Results: fused,
		Fetched: time.Now(),
	}

	r.cache.Put(cacheKey, result)

	r.logger.Debug("retrieval complete",
		"query", query,
		"k", k,
		"vector_candidates", len(vecResults),
		"lexical_candidates", len(lexResults),
		"fused", len(fused),
	)

	return result, nil
}

// Package retriever fuses vector and lexical search over the exemplar
// corpus into a single ranked RetrievalResult, with an LRU cache in front
// of the fused search.
package retriever

import (
	"context"
	"time"

	"github.com/sqlrag/engine/internal/index"
)

// Weights configures the relative contribution of vector and lexical
// scores to the fused score: s = w_vec*s_vec + w_lex*s_lex.
type Weights struct {
	Vector  float64
	Lexical float64
}

// DefaultWeights returns the default fusion weights.
func DefaultWeights() Weights {
	return Weights{Vector: 0.7, Lexical: 0.3}
}

// AutoAdjustedWeights returns the weights used when auto-adjustment is
// enabled and the top lexical match exceeds the configured BM25 threshold.
func AutoAdjustedWeights() Weights {
	return Weights{Vector: 0.5, Lexical: 0.5}
}

// Result is one fused retrieval record for a single exemplar.
type Result struct {
	Exemplar     *index.Exemplar
	FusedScore   float64
	VectorScore  float64
	LexicalScore float64
}

// RetrievalResult is the ordered response to one retrieval request: up to
// K results sorted by FusedScore descending, with distinct exemplar IDs.
type RetrievalResult struct {
	Query    string
	K        int
	Weights  Weights
	Results  []*Result
	CacheHit bool
	Fetched  time.Time
}

// Config configures a Retriever.
type Config struct {
	// DefaultK is the number of results returned when the caller doesn't
	// specify one.
	DefaultK int

	// Weights are the default vector/lexical fusion weights.
	Weights Weights

	// AutoAdjustWeights, when true, shifts to AutoAdjustedWeights() whenever
	// the top lexical match's BM25 score exceeds BM25Threshold.
	AutoAdjustWeights bool

	// BM25Threshold is the absolute BM25 score above which auto-adjustment
	// triggers.
	BM25Threshold float64

	// CacheSize is the maximum number of cached RetrievalResults. 0 disables
	// caching.
	CacheSize int

	// CacheTTL is the optional time-to-live for cache entries. 0 means no
	// expiry (entries live until evicted by size or invalidated).
	CacheTTL time.Duration
}

// DefaultConfig returns sensible defaults for a Retriever.
func DefaultConfig() Config {
	return Config{
		DefaultK:          10,
		Weights:           DefaultWeights(),
		AutoAdjustWeights: false,
		BM25Threshold:     8.0,
		CacheSize:         256,
		CacheTTL:          0,
	}
}

// minCandidateK is the floor on how many candidates Retrieve fetches from
// each of the vector and lexical indexes before fusion (spec.md §4.2 steps
// 2-3: "candidateK = max(k, 20)"), so fusion has enough candidates to
// rerank accurately even when the caller asks for a small k.
const minCandidateK = 20

// ExemplarLookup resolves an exemplar ID to its full Exemplar record.
type ExemplarLookup interface {
	Exemplar(id string) (*index.Exemplar, bool)
}

// Embedder produces a dense embedding for a retrieval query.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Package index provides the on-disk vector index, the lexical (BM25) index,
// and the tokenizer shared by both over the exemplar corpus.
package index

import (
	"context"
	"fmt"
	"time"
)

// Exemplar represents one known-good SQL query retrievable by the hybrid
// retriever. Exemplars are produced by the offline embedding tool and are
// immutable at runtime; they are replaced wholesale on rebuild.
type Exemplar struct {
	ID          string    // stable identifier
	SQL         string    // the query text
	Description string    // natural-language description
	Tables      []string  // ordered set of qualified table names
	Joins       []Join    // ordered set of join edges
	Embedding   []float32 // dense vector, fixed dimension D
	CreatedAt   time.Time
}

// Join is one join edge between two qualified columns, e.g.
// orders.user_id = users.id.
type Join struct {
	LeftTableCol  string
	RightTableCol string
}

// Document is a unit of text indexed by the lexical index: an exemplar's
// concatenated description and SQL.
type Document struct {
	ID      string // exemplar ID
	Content string // description + sql
}

// BM25Result is a single lexical search hit.
type BM25Result struct {
	DocID        string
	Score        float64
	MatchedTerms []string
}

// IndexStats describes the lexical index contents.
type IndexStats struct {
	DocumentCount int
	TermCount     int
	AvgDocLength  float64
}

// LexicalIndex is a keyword index over exemplar description+sql text,
// scored by BM25. Its document set must match the vector index's exemplar
// set 1:1 (spec invariant for LexicalIndex).
type LexicalIndex interface {
	Index(ctx context.Context, docs []*Document) error
	Search(ctx context.Context, query string, limit int) ([]*BM25Result, error)
	Delete(ctx context.Context, docIDs []string) error
	AllIDs() ([]string, error)
	Stats() *IndexStats
	Save(path string) error
	Load(path string) error
	Close() error
}

// BM25Config configures the lexical index's scoring and tokenization.
type BM25Config struct {
	// K1 is the term frequency saturation parameter (default: 1.2)
	K1 float64

	// B is the length normalization parameter (default: 0.75)
	B float64

	// StopWords is a list of words to filter out during tokenization
	StopWords []string

	// MinTokenLength is minimum token length to index (default: 2)
	MinTokenLength int
}

// DefaultBM25Config returns default lexical index configuration.
func DefaultBM25Config() BM25Config {
	return BM25Config{
		K1:             1.2,
		B:              0.75,
		StopWords:      DefaultSQLStopWords,
		MinTokenLength: 2,
	}
}

// DefaultSQLStopWords contains SQL keywords and generic identifier noise to
// filter out of lexical matching so scoring reflects domain vocabulary
// (table/column names) rather than syntax.
var DefaultSQLStopWords = []string{
	"select", "from", "where", "join", "on", "group", "by", "order",
	"having", "limit", "as", "and", "or", "not", "null", "is", "in",
	"left", "right", "inner", "outer", "distinct", "count", "sum", "avg",
	"min", "max", "asc", "desc", "table", "column", "value",
}

// VectorResult is a single approximate-nearest-neighbour search hit.
// Score is a monotone similarity (higher = closer), per the vector index
// invariant.
type VectorResult struct {
	ID       string  // exemplar ID
	Distance float32 // lower is more similar (0-2 for cosine)
	Score    float32 // normalized similarity (0-1)
}

// VectorStoreConfig configures the vector index.
type VectorStoreConfig struct {
	// Dimensions is the embedding dimension D
	Dimensions int

	// Metric is the distance metric: "cos" (cosine), "l2" (euclidean)
	Metric string

	// M is HNSW max connections per layer
	M int

	// EfConstruction is HNSW build-time search width
	EfConstruction int

	// EfSearch is HNSW query-time search width
	EfSearch int
}

// DefaultVectorStoreConfig returns sensible defaults for the vector index.
func DefaultVectorStoreConfig(dimensions int) VectorStoreConfig {
	return VectorStoreConfig{
		Dimensions:     dimensions,
		Metric:         "cos",
		M:              32,
		EfConstruction: 128,
		EfSearch:       64,
	}
}

// VectorIndex maps exemplar embeddings to approximate nearest neighbours.
// Its on-disk representation is a raw little-endian float32 blob plus a
// sidecar; the index fingerprint is the SHA-256 of the blob (spec: Vector
// index on disk).
type VectorIndex interface {
	Add(ctx context.Context, ids []string, vectors [][]float32) error
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)
	Delete(ctx context.Context, ids []string) error
	AllIDs() []string
	Contains(id string) bool
	Count() int
	// Fingerprint returns the SHA-256 hex digest of the raw vector blob
	// backing this index, used to key the retrieval cache and to refuse
	// mismatched sidecars on load.
	Fingerprint() string
	Save(path string) error
	Load(path string) error
	Close() error
}

// ErrDimensionMismatch indicates an embedding's dimension does not match
// the index's configured dimension D.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d (rebuild the index)", e.Expected, e.Got)
}

// ErrFingerprintMismatch indicates the vector blob and its sidecar
// metadata disagree, per the spec's "refuses mismatched sidecars" rule.
type ErrFingerprintMismatch struct {
	BlobFingerprint    string
	SidecarFingerprint string
}

func (e ErrFingerprintMismatch) Error() string {
	return fmt.Sprintf("vector index sidecar fingerprint mismatch: blob=%s sidecar=%s", e.BlobFingerprint, e.SidecarFingerprint)
}

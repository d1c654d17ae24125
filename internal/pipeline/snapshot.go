// Package pipeline orchestrates one request through Rewriter < Retriever <
// Schema Injector < Generation < Validator < Executor (spec.md §5's
// ordering guarantee), and owns the immutable-snapshot reload machinery
// that lets the process swap its index/schema state without disrupting
// in-flight requests.
package pipeline

import (
	"sync/atomic"
	"time"

	"github.com/sqlrag/engine/internal/index"
	"github.com/sqlrag/engine/internal/retriever"
	"github.com/sqlrag/engine/internal/schema"
)

// Snapshot is the full set of process-lifetime-immutable state a request
// reads from: the vector/lexical indices, the schema store, and the
// safe-join map (spec.md §5: "loaded once at startup; treated as immutable
// for the process lifetime. Reload is a full swap under a single write
// latch; in-flight requests continue with the old snapshot").
type Snapshot struct {
	Vector      index.VectorIndex
	Lexical     index.LexicalIndex
	Schema      *schema.Store
	Joins       *schema.SafeJoinMap
	Glossary    *schema.BusinessGlossary
	Retriever   *retriever.Retriever
	Fingerprint string
	LoadedAt    time.Time
}

// Holder is a lock-free reader / single-writer-latch container for the
// current Snapshot, backed by atomic.Pointer so every in-flight request
// sees a single consistent generation even across a reload.
type Holder struct {
	ptr atomic.Pointer[Snapshot]
}

// NewHolder builds a Holder pre-populated with initial.
func NewHolder(initial *Snapshot) *Holder {
	h := &Holder{}
	h.ptr.Store(initial)
	return h
}

// Load returns the current snapshot. Safe for concurrent use without
// locking; the caller gets a consistent, self-contained generation even if
// a Swap happens concurrently.
func (h *Holder) Load() *Snapshot {
	return h.ptr.Load()
}

// Swap installs next as the current snapshot and returns the previous one.
func (h *Holder) Swap(next *Snapshot) *Snapshot {
	return h.ptr.Swap(next)
}

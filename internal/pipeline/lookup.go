package pipeline

import "github.com/sqlrag/engine/internal/index"

// MapExemplarLookup is a static, reload-time-built ExemplarLookup backed by
// a plain map. It is rebuilt fresh for every Snapshot generation rather
// than mutated in place, matching the rest of this package's full-swap
// reload model.
type MapExemplarLookup struct {
	exemplars map[string]*index.Exemplar
}

// NewMapExemplarLookup builds a lookup from a slice of exemplars, keyed by
// Exemplar.ID.
func NewMapExemplarLookup(exemplars []*index.Exemplar) *MapExemplarLookup {
	m := make(map[string]*index.Exemplar, len(exemplars))
	for _, ex := range exemplars {
		m[ex.ID] = ex
	}
	return &MapExemplarLookup{exemplars: m}
}

// Exemplar resolves id to its full record.
func (l *MapExemplarLookup) Exemplar(id string) (*index.Exemplar, bool) {
	ex, ok := l.exemplars[id]
	return ex, ok
}

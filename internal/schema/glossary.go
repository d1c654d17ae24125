package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// BusinessGlossary annotates tables with business-term notes, supplementing
// the schema snippet when present. Motivated by the narapulse RAG
// service's buildKPIContext/buildGlossaryContext, which inject business
// vocabulary alongside raw schema facts; here it is a plain table-name to
// note lookup rather than a separate retrieval pass, so its absence never
// changes the bit-exact §6 response shape.
type BusinessGlossary struct {
	notes map[string]string
}

// NewBusinessGlossary wraps a qualified-table-name to note mapping.
func NewBusinessGlossary(notes map[string]string) *BusinessGlossary {
	return &BusinessGlossary{notes: notes}
}

// LoadBusinessGlossaryJSON reads a JSON object mapping qualified table name
// to a one-line business annotation.
func LoadBusinessGlossaryJSON(path string) (*BusinessGlossary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read business glossary: %w", err)
	}
	var notes map[string]string
	if err := json.Unmarshal(data, &notes); err != nil {
		return nil, fmt.Errorf("parse business glossary: %w", err)
	}
	return &BusinessGlossary{notes: notes}, nil
}

// Note returns the glossary annotation for a qualified table, or "" if none.
func (g *BusinessGlossary) Note(qualifiedTable string) string {
	if g == nil {
		return ""
	}
	if n, ok := g.notes[qualifiedTable]; ok {
		return n
	}
	// Fall back to a case-insensitive match on the unqualified name.
	unqualified := strings.ToLower(lastSegment(qualifiedTable))
	for k, v := range g.notes {
		if strings.ToLower(lastSegment(k)) == unqualified {
			return v
		}
	}
	return ""
}

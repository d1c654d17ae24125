// Package corpus loads the exemplar CSV (corpus.csv) that seeds the
// retrieval index. The schema CSV and the safe-join map JSON are loaded by
// internal/schema, not here. It is the read side for both the offline
// builder (cmd/sqlrag build-index) and any tooling that needs to inspect the
// raw exemplars without touching the built indices.
package corpus

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sqlrag/engine/internal/index"
)

// Row is one parsed line of corpus.csv before embedding. It mirrors
// index.Exemplar but without the Embedding field, which is filled in by the
// offline builder after calling the embedding provider.
type Row struct {
	ID          string
	SQL         string
	Description string
	Tables      []string
	Joins       []index.Join
}

// ParseError records a corpus.csv row that could not be parsed. The offline
// builder drops malformed rows with a warning rather than aborting the
// whole build (spec.md §9: "malformed rows are dropped with a warning").
type ParseError struct {
	Line   int
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("corpus.csv line %d: %s", e.Line, e.Reason)
}

// LoadResult carries the parsed rows plus any rows that were dropped.
type LoadResult struct {
	Rows    []Row
	Dropped []*ParseError
}

// LoadCorpusCSV reads corpus.csv: columns query, description, tables
// (comma-separated qualified names), joins (comma-separated
// table.col=table.col). The ID is synthesized as "row-<n>" unless an "id"
// column is present, since the spec's corpus CSV has no dedicated id column.
func LoadCorpusCSV(path string) (*LoadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open corpus csv: %w", err)
	}
	defer f.Close()
	return parseCorpusCSV(f)
}

func parseCorpusCSV(r io.Reader) (*LoadResult, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read corpus csv header: %w", err)
	}
	col := columnIndex(header)

	queryIdx, ok := col["query"]
	if !ok {
		return nil, fmt.Errorf("corpus csv missing required column %q", "query")
	}
	descIdx, ok := col["description"]
	if !ok {
		return nil, fmt.Errorf("corpus csv missing required column %q", "description")
	}
	tablesIdx, hasTables := col["tables"]
	joinsIdx, hasJoins := col["joins"]
	idIdx, hasID := col["id"]

	result := &LoadResult{}
	line := 1
	for {
		line++
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			result.Dropped = append(result.Dropped, &ParseError{Line: line, Reason: err.Error()})
			continue
		}

		sql := strings.TrimSpace(field(rec, queryIdx))
		if sql == "" {
			result.Dropped = append(result.Dropped, &ParseError{Line: line, Reason: "empty query"})
			continue
		}

		row := Row{
			SQL:         sql,
			Description: strings.TrimSpace(field(rec, descIdx)),
		}
		if hasID {
			row.ID = strings.TrimSpace(field(rec, idIdx))
		}
		if row.ID == "" {
			row.ID = fmt.Sprintf("row-%d", line)
		}
		if hasTables {
			row.Tables = splitNonEmpty(field(rec, tablesIdx), ",")
		}
		if hasJoins {
			joins, dropped := parseJoins(field(rec, joinsIdx))
			row.Joins = joins
			for _, reason := range dropped {
				result.Dropped = append(result.Dropped, &ParseError{Line: line, Reason: reason})
			}
		}

		result.Rows = append(result.Rows, row)
	}

	return result, nil
}

// parseJoins parses the corpus CSV's free-form joins column into structured
// join edges, per spec.md §9: "the offline builder must parse it into the
// structured safe-join entries; malformed rows are dropped with a warning."
func parseJoins(raw string) ([]index.Join, []string) {
	var joins []index.Join
	var dropped []string
	for _, part := range splitNonEmpty(raw, ",") {
		left, right, ok := strings.Cut(part, "=")
		if !ok {
			dropped = append(dropped, fmt.Sprintf("malformed join %q: missing '='", part))
			continue
		}
		left, right = strings.TrimSpace(left), strings.TrimSpace(right)
		if !strings.Contains(left, ".") || !strings.Contains(right, ".") {
			dropped = append(dropped, fmt.Sprintf("malformed join %q: expected table.col=table.col", part))
			continue
		}
		joins = append(joins, index.Join{LeftTableCol: left, RightTableCol: right})
	}
	return joins, dropped
}

func columnIndex(header []string) map[string]int {
	m := make(map[string]int, len(header))
	for i, h := range header {
		m[strings.ToLower(strings.TrimSpace(h))] = i
	}
	return m
}

func field(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return rec[i]
}

func splitNonEmpty(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

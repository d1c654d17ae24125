package schema

import (
	"sort"
	"strings"

	"github.com/sqlrag/engine/internal/index"
)

// InjectorConfig tunes the snippet assembly algorithm (spec.md §4.3).
type InjectorConfig struct {
	MaxTablesInPrompt       int
	SchemaSnippetTokenBudget int
	MaxColumnDescriptionLen int
}

// DefaultInjectorConfig matches the spec's defaults.
func DefaultInjectorConfig() InjectorConfig {
	return InjectorConfig{
		MaxTablesInPrompt:        6,
		SchemaSnippetTokenBudget: 2000,
		MaxColumnDescriptionLen:  80,
	}
}

// Injector assembles a compact schema snippet from retrieved exemplars and
// the user's question, guided by a Store, a SafeJoinMap, and optionally a
// BusinessGlossary.
type Injector struct {
	store    *Store
	joins    *SafeJoinMap
	glossary *BusinessGlossary
	cfg      InjectorConfig
}

// NewInjector builds an Injector. glossary may be nil (spec.md §11: absent
// by default, merged in only when present).
func NewInjector(store *Store, joins *SafeJoinMap, glossary *BusinessGlossary, cfg InjectorConfig) *Injector {
	return &Injector{store: store, joins: joins, glossary: glossary, cfg: cfg}
}

// Snippet is the assembled schema context: kept tables (with columns) and
// the join edges between them.
type Snippet struct {
	Tables []TableSnippet
	Joins  []JoinEdge
}

// TableSnippet is one kept table's rendering, with columns possibly pruned
// to fit the token budget.
type TableSnippet struct {
	QualifiedName string
	Columns       []Column
	GlossaryNote  string
}

// tableFreq tracks how many retrieved exemplars reference a table and the
// earliest rank at which it appeared, for the step-2 cap and step-5 drop
// order (spec.md §4.3).
type tableFreq struct {
	table     string
	count     int
	earliest  int
	referenced map[string]bool // columns referenced by any exemplar's SQL, lowercased
}

// Build assembles the snippet per spec.md §4.3:
//  1. union of tables from exemplars + tables whose name tokens appear in the question
//  2. cap at MaxTablesInPrompt, keeping tables in the most exemplars, then earliest rank
//  3. for each kept table, full column list with datatype + truncated description
//  4. append safe-join edges whose endpoints are both kept
//  5. if over budget, drop unreferenced columns first, then lowest-frequency tables
func (inj *Injector) Build(exemplars []*index.Exemplar, question string) Snippet {
	freq := inj.collectTableFrequency(exemplars, question)
	kept := inj.capTables(freq)

	snippet := Snippet{}
	keptSet := make(map[string]bool, len(kept))
	for _, k := range kept {
		keptSet[k.table] = true
	}

	for _, k := range kept {
		table, ok := inj.store.Table(k.table)
		if !ok {
			continue
		}
		ts := TableSnippet{QualifiedName: table.QualifiedName}
		for _, c := range table.Columns {
			col := c
			col.Description = truncate(col.Description, inj.cfg.MaxColumnDescriptionLen)
			ts.Columns = append(ts.Columns, col)
		}
		if inj.glossary != nil {
			ts.GlossaryNote = inj.glossary.Note(table.QualifiedName)
		}
		snippet.Tables = append(snippet.Tables, ts)
	}

	snippet.Joins = inj.joins.Between(keptSet)

	return inj.fitBudget(snippet, freq)
}

func (inj *Injector) collectTableFrequency(exemplars []*index.Exemplar, question string) map[string]*tableFreq {
	freq := make(map[string]*tableFreq)
	ensure := func(table string) *tableFreq {
		f, ok := freq[table]
		if !ok {
			f = &tableFreq{table: table, earliest: 1 << 30, referenced: make(map[string]bool)}
			freq[table] = f
		}
		return f
	}

	for rank, ex := range exemplars {
		for _, t := range ex.Tables {
			f := ensure(t)
			f.count++
			if rank < f.earliest {
				f.earliest = rank
			}
			for _, col := range referencedColumns(ex.SQL) {
				f.referenced[col] = true
			}
		}
	}

	questionTokens := tokenizeIdentifierLike(question)
	for _, name := range inj.store.Tables() {
		unqualified := lastSegment(name)
		if questionTokens[strings.ToLower(unqualified)] {
			ensure(name)
		}
	}

	return freq
}

// capTables keeps at most MaxTablesInPrompt tables, ranked by exemplar
// frequency descending, then earliest rank ascending (spec.md §4.3 step 2).
func (inj *Injector) capTables(freq map[string]*tableFreq) []*tableFreq {
	all := make([]*tableFreq, 0, len(freq))
	for _, f := range freq {
		all = append(all, f)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].count != all[j].count {
			return all[i].count > all[j].count
		}
		return all[i].earliest < all[j].earliest
	})

	limit := inj.cfg.MaxTablesInPrompt
	if limit <= 0 || limit > len(all) {
		limit = len(all)
	}
	return all[:limit]
}

// fitBudget applies step 5: if the snippet exceeds the token budget, drop
// columns unreferenced by any retrieved exemplar's SQL first, then drop the
// lowest-exemplar-frequency tables.
func (inj *Injector) fitBudget(snippet Snippet, freq map[string]*tableFreq) Snippet {
	if estimateTokens(snippet) <= inj.cfg.SchemaSnippetTokenBudget {
		return snippet
	}

	// Step 5a: drop unreferenced columns.
	for i := range snippet.Tables {
		ts := &snippet.Tables[i]
		f := freq[ts.QualifiedName]
		if f == nil || len(f.referenced) == 0 {
			continue
		}
		var kept []Column
		for _, c := range ts.Columns {
			if f.referenced[strings.ToLower(c.Name)] {
				kept = append(kept, c)
			}
		}
		ts.Columns = kept
		if estimateTokens(snippet) <= inj.cfg.SchemaSnippetTokenBudget {
			return snippet
		}
	}

	// Step 5b: drop lowest-frequency tables until the budget fits.
	sort.Slice(snippet.Tables, func(i, j int) bool {
		fi, fj := freq[snippet.Tables[i].QualifiedName], freq[snippet.Tables[j].QualifiedName]
		ci, cj := 0, 0
		if fi != nil {
			ci = fi.count
		}
		if fj != nil {
			cj = fj.count
		}
		return ci > cj
	})
	for len(snippet.Tables) > 1 && estimateTokens(snippet) > inj.cfg.SchemaSnippetTokenBudget {
		dropped := snippet.Tables[len(snippet.Tables)-1].QualifiedName
		snippet.Tables = snippet.Tables[:len(snippet.Tables)-1]
		keptSet := make(map[string]bool, len(snippet.Tables))
		for _, t := range snippet.Tables {
			keptSet[t.QualifiedName] = true
		}
		var joins []JoinEdge
		for _, j := range snippet.Joins {
			if j.LeftTable() != dropped && j.RightTable() != dropped {
				joins = append(joins, j)
			}
		}
		snippet.Joins = joins
	}

	return snippet
}

// estimateTokens uses the same 4-chars-per-token heuristic as the generation
// layer's context budgeting (spec.md §4.4), applied to the rendered snippet.
func estimateTokens(s Snippet) int {
	return len(Render(s)) / 4
}

func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max]
}

func lastSegment(qualified string) string {
	idx := strings.LastIndex(qualified, ".")
	if idx < 0 {
		return qualified
	}
	return qualified[idx+1:]
}

func tokenizeIdentifierLike(s string) map[string]bool {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !(r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'))
	})
	out := make(map[string]bool, len(fields))
	for _, f := range fields {
		out[strings.ToLower(f)] = true
	}
	return out
}

// referencedColumns extracts a best-effort set of column-like identifiers
// from an exemplar's SQL text, lowercased, used only to decide which columns
// survive a budget trim (not full SQL parsing).
func referencedColumns(sql string) []string {
	tokens := tokenizeIdentifierLike(sql)
	out := make([]string, 0, len(tokens))
	for t := range tokens {
		out = append(out, t)
	}
	return out
}

// Render renders a Snippet as the plain-text schema section embedded in the
// assembled prompt (internal/generation consumes this directly).
func Render(s Snippet) string {
	var b strings.Builder
	for _, t := range s.Tables {
		b.WriteString(t.QualifiedName)
		if t.GlossaryNote != "" {
			b.WriteString(" -- ")
			b.WriteString(t.GlossaryNote)
		}
		b.WriteString("\n")
		for _, c := range t.Columns {
			b.WriteString("  ")
			b.WriteString(c.Name)
			b.WriteString(" ")
			b.WriteString(c.DataType)
			if c.Description != "" {
				b.WriteString(" -- ")
				b.WriteString(c.Description)
			}
			b.WriteString("\n")
		}
	}
	if len(s.Joins) > 0 {
		b.WriteString("joins:\n")
		for _, j := range s.Joins {
			b.WriteString("  ")
			b.WriteString(j.Left)
			b.WriteString(" = ")
			b.WriteString(j.Right)
			b.WriteString("  (")
			b.WriteString(string(j.Relationship))
			b.WriteString(", ")
			b.WriteString(string(j.Cardinality))
			b.WriteString(")\n")
		}
	}
	return b.String()
}

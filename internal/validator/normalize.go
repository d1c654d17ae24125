package validator

import (
	"strings"

	"github.com/sqlrag/engine/internal/schema"
)

// normalize produces the rewritten-SQL output spec.md §4.5 calls for:
// whitespace canonicalized, and (when resolvable) unqualified table names
// replaced by their fully-qualified form.
func normalize(sql string, refs []tableRef, store *schema.Store, level Level) string {
	out := sql
	if level >= SchemaLoose && store != nil {
		out = qualifyUnqualifiedTables(out, refs, store)
	}
	return normalizeWhitespace(out)
}

// qualifyUnqualifiedTables replaces bare table names with their
// fully-qualified form when exactly one schema-store table shares that
// unqualified name; ambiguous or unresolvable names are left as-is.
func qualifyUnqualifiedTables(sql string, refs []tableRef, store *schema.Store) string {
	for _, r := range refs {
		if r.Qualified {
			continue
		}
		match := findUniqueTableByUnqualifiedName(store, r.Raw)
		if match == "" {
			continue
		}
		sql = replaceWholeWord(sql, r.Raw, match)
	}
	return sql
}

func findUniqueTableByUnqualifiedName(store *schema.Store, name string) string {
	found := ""
	for _, qualified := range store.Tables() {
		if strings.EqualFold(lastSegment(qualified), name) {
			if found != "" {
				return "" // ambiguous
			}
			found = qualified
		}
	}
	return found
}

func replaceWholeWord(sql, word, replacement string) string {
	var b strings.Builder
	i := 0
	for i < len(sql) {
		idx := strings.Index(sql[i:], word)
		if idx == -1 {
			b.WriteString(sql[i:])
			break
		}
		start := i + idx
		end := start + len(word)
		before := start == 0 || !isIdentByte(sql[start-1])
		after := end == len(sql) || !isIdentByte(sql[end])
		b.WriteString(sql[i:start])
		if before && after {
			b.WriteString(replacement)
		} else {
			b.WriteString(word)
		}
		i = end
	}
	return b.String()
}

func isIdentByte(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9') || b == '.'
}

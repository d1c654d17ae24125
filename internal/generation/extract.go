package generation

import (
	"regexp"
	"strings"
)

var fencedSQLPattern = regexp.MustCompile("(?is)```sql\\s*(.*?)\\s*```")

// bareStatementPattern finds the first bare SELECT or WITH keyword when no
// fenced block is present and matches greedily to the end of text; extractSQL
// then cuts the match at the first blank-line break.
var bareStatementPattern = regexp.MustCompile(`(?is)\b(SELECT|WITH)\b.*`)

// extractSQL implements spec.md §4.4's SQL extraction: the first fenced
// ```sql block wins; otherwise the first bare SELECT/WITH statement;
// trailing semicolons are normalized to exactly one.
func extractSQL(text string) (sql string, found bool) {
	if m := fencedSQLPattern.FindStringSubmatch(text); m != nil {
		return normalizeTrailingSemicolon(strings.TrimSpace(m[1])), true
	}
	if m := bareStatementPattern.FindString(text); m != "" {
		return normalizeTrailingSemicolon(strings.TrimSpace(cutAtDoubleNewline(m))), true
	}
	return "", false
}

// cutAtDoubleNewline truncates a bare-statement match at the first
// paragraph break, so trailing prose after the SQL isn't folded in.
func cutAtDoubleNewline(s string) string {
	if idx := strings.Index(s, "\n\n"); idx != -1 {
		return s[:idx]
	}
	return s
}

// sqlKeywordPattern locates every SELECT/WITH keyword start, used by
// extractLastSQL to find the most recent statement in a multi-turn
// transcript rather than extractSQL's first-match rule.
var sqlKeywordPattern = regexp.MustCompile(`(?i)\b(?:SELECT|WITH)\b`)

// extractLastSQL finds the most recently referenced SQL statement in text
// (a conversation transcript), preferring the last fenced ```sql block and
// otherwise the last bare SELECT/WITH statement through to its paragraph
// break (spec.md §8: bare "@explain" explains "the last referenced SQL
// from conversation_context").
func extractLastSQL(text string) (sql string, found bool) {
	if matches := fencedSQLPattern.FindAllStringSubmatch(text, -1); len(matches) > 0 {
		last := matches[len(matches)-1]
		return normalizeTrailingSemicolon(strings.TrimSpace(last[1])), true
	}
	locs := sqlKeywordPattern.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return "", false
	}
	// Start at the first keyword of the last paragraph that holds one, so a
	// WITH ... SELECT statement or a subquery is taken whole.
	last := locs[len(locs)-1][0]
	paraStart := 0
	if i := strings.LastIndex(text[:last], "\n\n"); i != -1 {
		paraStart = i + 2
	}
	start := last
	for _, loc := range locs {
		if loc[0] >= paraStart {
			start = loc[0]
			break
		}
	}
	stmt := strings.TrimSpace(cutAtDoubleNewline(text[start:]))
	if stmt == "" {
		return "", false
	}
	return normalizeTrailingSemicolon(stmt), true
}

func normalizeTrailingSemicolon(sql string) string {
	sql = strings.TrimRight(sql, " \t\n;")
	if sql == "" {
		return sql
	}
	return sql + ";"
}

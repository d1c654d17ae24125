package validator

import (
	"regexp"
	"strings"

	"github.com/sqlrag/engine/internal/schema"
)

// tableRef is one FROM/JOIN target found in a query, with its resolved
// alias (if any).
type tableRef struct {
	Raw           string // as written, e.g. "project.dataset.orders" or "`project.dataset.orders`"
	QualifiedName string // Raw with backticks stripped
	Alias         string // alias used elsewhere in the query to refer to this table, "" if none
	Qualified     bool   // true if Raw looks like a dotted/backtick-qualified name
}

// fromJoinPattern finds a FROM/JOIN target followed by an optional alias.
// It purposefully does not try to fully parse BigQuery's dialect; it only
// needs the identifier and, if present, the token immediately after it that
// isn't a SQL keyword.
var fromJoinPattern = regexp.MustCompile(
	`(?i)\b(?:FROM|JOIN)\s+` +
		"(`[^`]+`|[A-Za-z_][A-Za-z0-9_.]*)" +
		`(?:\s+(?:AS\s+)?([A-Za-z_][A-Za-z0-9_]*))?`,
)

var clauseKeywords = map[string]bool{
	"where": true, "on": true, "group": true, "order": true, "limit": true,
	"having": true, "join": true, "left": true, "right": true, "inner": true,
	"outer": true, "full": true, "cross": true, "union": true, "as": true,
}

// extractTableRefs finds every FROM/JOIN target in sql.
func extractTableRefs(sql string) []tableRef {
	matches := fromJoinPattern.FindAllStringSubmatch(sql, -1)
	refs := make([]tableRef, 0, len(matches))
	for _, m := range matches {
		raw := m[1]
		qualified := strings.Trim(raw, "`")
		alias := ""
		if len(m) > 2 && m[2] != "" && !clauseKeywords[strings.ToLower(m[2])] {
			alias = m[2]
		}
		refs = append(refs, tableRef{
			Raw:           raw,
			QualifiedName: qualified,
			Qualified:     isQualifiedName(qualified),
			Alias:         alias,
		})
	}
	return refs
}

func isQualifiedName(name string) bool {
	return strings.Count(name, ".") >= 1
}

// aliasMap maps every alias (or bare table name when no alias is given) to
// its qualified table name.
func aliasMap(refs []tableRef) map[string]string {
	m := make(map[string]string, len(refs))
	for _, r := range refs {
		key := r.Alias
		if key == "" {
			key = lastSegment(r.QualifiedName)
		}
		m[strings.ToLower(key)] = r.QualifiedName
	}
	return m
}

func lastSegment(qualified string) string {
	idx := strings.LastIndex(qualified, ".")
	if idx == -1 {
		return qualified
	}
	return qualified[idx+1:]
}

func checkSchemaLoose(result *Result, refs []tableRef) {
	for _, r := range refs {
		if !r.Qualified {
			result.addFinding(Warn, "unqualified_table", "table reference \""+r.Raw+"\" is not fully qualified as project.dataset.table")
		}
	}
}

var qualifiedColumnPattern = regexp.MustCompile(`\b([A-Za-z_][A-Za-z0-9_]*)\.([A-Za-z_][A-Za-z0-9_]*)\b`)
var joinPredicatePattern = regexp.MustCompile(`(?i)\bON\s+([A-Za-z_][\w.]*)\s*=\s*([A-Za-z_][\w.]*)`)

func checkSchemaStrict(result *Result, store *schema.Store, joins *schema.SafeJoinMap, sql string, refs []tableRef) {
	if store == nil {
		result.addFinding(Warn, "no_schema_store", "SCHEMA_STRICT requested but no SchemaStore is configured; skipping table/column resolution")
		return
	}

	aliases := aliasMap(refs)

	for _, r := range refs {
		if !r.Qualified {
			result.addFinding(Error, "unresolvable_table", "table reference \""+r.Raw+"\" cannot be resolved without a qualified name")
			continue
		}
		if _, ok := store.Table(r.QualifiedName); !ok {
			result.addFinding(Error, "unknown_table", "table \""+r.QualifiedName+"\" is not present in the schema store")
		}
	}

	for _, m := range qualifiedColumnPattern.FindAllStringSubmatch(sql, -1) {
		alias, col := strings.ToLower(m[1]), m[2]
		table, ok := aliases[alias]
		if !ok {
			continue // not a table alias (e.g. a function-qualified reference); skip
		}
		if !store.HasColumn(table, col) {
			result.addFinding(Error, "unknown_column", "column \""+m[1]+"."+col+"\" does not exist on table \""+table+"\"")
		}
	}

	for _, m := range joinPredicatePattern.FindAllStringSubmatch(sql, -1) {
		leftTable, leftCol, leftOK := resolveQualifiedColumn(m[1], aliases)
		rightTable, rightCol, rightOK := resolveQualifiedColumn(m[2], aliases)
		if !leftOK || !rightOK {
			continue
		}
		leftFQ := leftTable + "." + leftCol
		rightFQ := rightTable + "." + rightCol
		if joins != nil {
			if _, ok := joins.Find(leftFQ, rightFQ); ok {
				continue
			}
		}
		if strings.EqualFold(leftCol, rightCol) {
			continue // same-name columns are allowed as a fallback per spec.md §4.5
		}
		result.addFinding(Error, "unknown_join", "join predicate \""+m[1]+" = "+m[2]+"\" is not in the safe-join map and columns do not share a name")
	}
}

// resolveQualifiedColumn splits "alias.column" and resolves alias to a
// table via aliases; a bare column (no dot) cannot be resolved here.
func resolveQualifiedColumn(ref string, aliases map[string]string) (table, column string, ok bool) {
	parts := strings.SplitN(ref, ".", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	table, ok = aliases[strings.ToLower(parts[0])]
	if !ok {
		return "", "", false
	}
	return table, parts[1], true
}

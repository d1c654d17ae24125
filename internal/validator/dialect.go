package validator

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/sqlrag/engine/internal/schema"
)

var selectStarPattern = regexp.MustCompile(`(?i)SELECT\s+(?:[A-Za-z_][A-Za-z0-9_]*\.)?\*`)
var dateSubOnTimestampPattern = regexp.MustCompile(`(?i)DATE_SUB\s*\(\s*CURRENT_DATE\s*\(\s*\)`)
var aggregatePattern = regexp.MustCompile(`(?i)\b(COUNT|SUM|AVG|MIN|MAX)\s*\(`)
var groupByPattern = regexp.MustCompile(`(?i)\bGROUP\s+BY\b`)
var limitPattern = regexp.MustCompile(`(?i)\bLIMIT\b`)

var dateFamily = map[string]bool{"DATE": true}
var timestampFamily = map[string]bool{"TIMESTAMP": true, "DATETIME": true}

// applyDialectWarnings adds the warning-level dialect findings spec.md
// §4.5 calls out, given SCHEMA_STRICT-level table/column resolution.
func applyDialectWarnings(result *Result, store *schema.Store, wideTableThreshold int, sql string, refs []tableRef) {
	if store == nil {
		return
	}

	if selectStarPattern.MatchString(sql) {
		for _, r := range refs {
			if !r.Qualified {
				continue
			}
			table, ok := store.Table(r.QualifiedName)
			if !ok {
				continue
			}
			if wideTableThreshold > 0 && len(table.Columns) > wideTableThreshold {
				result.addFinding(Warn, "select_star_on_wide_table", "SELECT * on \""+r.QualifiedName+"\" which has more than "+strconv.Itoa(wideTableThreshold)+" columns")
			}
		}
	}

	if dateSubOnTimestampPattern.MatchString(sql) {
		for _, r := range refs {
			if !r.Qualified {
				continue
			}
			table, ok := store.Table(r.QualifiedName)
			if !ok {
				continue
			}
			for _, col := range table.Columns {
				if timestampFamily[strings.ToUpper(col.DataType)] {
					result.addFinding(Warn, "date_sub_on_timestamp", "DATE_SUB(CURRENT_DATE(), ...) applied near a TIMESTAMP column on \""+r.QualifiedName+"\"")
					break
				}
			}
		}
	}

	checkMixedDateTimestampComparison(result, store, sql, refs)

	if !limitPattern.MatchString(sql) && !aggregatePattern.MatchString(sql) && !groupByPattern.MatchString(sql) {
		for _, r := range refs {
			if strings.Contains(strings.ToLower(lastSegment(r.QualifiedName)), "fact") {
				result.addFinding(Warn, "missing_limit", "no LIMIT on fact table \""+r.QualifiedName+"\" with no aggregation present")
				break
			}
		}
	}
}

func checkMixedDateTimestampComparison(result *Result, store *schema.Store, sql string, refs []tableRef) {
	aliases := aliasMap(refs)
	for _, m := range comparisonPattern.FindAllStringSubmatch(sql, -1) {
		leftTable, leftCol, leftOK := resolveQualifiedColumn(m[1], aliases)
		rightTable, rightCol, rightOK := resolveQualifiedColumn(m[2], aliases)
		if !leftOK || !rightOK {
			continue
		}
		leftType := columnType(store, leftTable, leftCol)
		rightType := columnType(store, rightTable, rightCol)
		if leftType == "" || rightType == "" {
			continue
		}
		if (dateFamily[leftType] && timestampFamily[rightType]) || (timestampFamily[leftType] && dateFamily[rightType]) {
			result.addFinding(Warn, "mixed_date_timestamp", "comparison between DATE and TIMESTAMP columns (\""+m[1]+"\", \""+m[2]+"\") may behave unexpectedly")
		}
	}
}

var comparisonPattern = regexp.MustCompile(`\b([A-Za-z_][\w.]*)\s*=\s*([A-Za-z_][\w.]*)\b`)

func columnType(store *schema.Store, table, column string) string {
	t, ok := store.Table(table)
	if !ok {
		return ""
	}
	for _, c := range t.Columns {
		if strings.EqualFold(c.Name, column) {
			return strings.ToUpper(c.DataType)
		}
	}
	return ""
}

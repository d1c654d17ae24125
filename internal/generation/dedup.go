package generation

import (
	"regexp"
	"strings"
)

// normalizeSQL case-folds keywords and collapses whitespace so that two
// exemplars differing only in casing/formatting compare equal (spec.md
// §4.4 dedup rule).
func normalizeSQL(sql string) string {
	fields := strings.Fields(strings.ToLower(sql))
	return strings.Join(fields, " ")
}

var wordPattern = regexp.MustCompile(`[a-z0-9_]+`)

// fiveGrams returns the set of token 5-grams in sql, for Jaccard comparison.
func fiveGrams(sql string) map[string]struct{} {
	tokens := wordPattern.FindAllString(strings.ToLower(sql), -1)
	grams := make(map[string]struct{})
	if len(tokens) < 5 {
		if len(tokens) > 0 {
			grams[strings.Join(tokens, " ")] = struct{}{}
		}
		return grams
	}
	for i := 0; i+5 <= len(tokens); i++ {
		grams[strings.Join(tokens[i:i+5], " ")] = struct{}{}
	}
	return grams
}

// jaccard computes |a∩b| / |a∪b| over two 5-gram sets.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	intersection := 0
	for g := range a {
		if _, ok := b[g]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

const nearDuplicateThreshold = 0.85

// dedupeSources implements spec.md §4.4's deduplication rule: exemplars
// with identical normalized SQL are merged, keeping only the highest-ranked
// (callers pass sources already ranked best-first); near-duplicates
// (Jaccard on token 5-grams ≥ 0.85) are merged similarly, keeping the
// shorter SQL of the pair.
func dedupeSources(sources []Source) []Source {
	type kept struct {
		source Source
		norm   string
		grams  map[string]struct{}
	}

	var result []kept
	for _, s := range sources {
		norm := normalizeSQL(s.SQL)
		grams := fiveGrams(s.SQL)

		mergedIdx := -1
		for i, k := range result {
			if k.norm == norm {
				mergedIdx = i
				break
			}
			if jaccard(k.grams, grams) >= nearDuplicateThreshold {
				mergedIdx = i
				break
			}
		}

		if mergedIdx == -1 {
			result = append(result, kept{source: s, norm: norm, grams: grams})
			continue
		}

		// Keep the shorter SQL of the near-duplicate pair; the existing
		// entry already holds the higher-ranked one when SQL is identical,
		// since callers pass sources in rank order.
		if norm != result[mergedIdx].norm && len(s.SQL) < len(result[mergedIdx].source.SQL) {
			result[mergedIdx].source = s
			result[mergedIdx].norm = norm
			result[mergedIdx].grams = grams
		}
	}

	out := make([]Source, 0, len(result))
	for _, k := range result {
		out = append(out, k.source)
	}
	return out
}

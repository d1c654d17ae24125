package retriever

import (
	"sort"

	"github.com/sqlrag/engine/internal/index"
)

// WeightedFusion combines vector and lexical search results using a plain
// weighted sum: s = w_vec*s_vec + w_lex*s_lex. Missing scores (an exemplar
// appearing in only one of the two result lists) are treated as 0.
type WeightedFusion struct {
	AutoAdjustWeights bool
	BM25Threshold     float64
}

// NewWeightedFusion creates a WeightedFusion with auto-adjustment disabled.
func NewWeightedFusion() *WeightedFusion {
	return &WeightedFusion{}
}

// NewAutoAdjustingFusion creates a WeightedFusion that shifts to
// AutoAdjustedWeights() whenever the top lexical match's BM25 score exceeds
// threshold.
func NewAutoAdjustingFusion(threshold float64) *WeightedFusion {
	return &WeightedFusion{AutoAdjustWeights: true, BM25Threshold: threshold}
}

// ResolveWeights returns the weights to use for this fusion pass, applying
// auto-adjustment if configured and triggered by the lexical results.
func (f *WeightedFusion) ResolveWeights(base Weights, lex []*index.BM25Result) Weights {
	if !f.AutoAdjustWeights || len(lex) == 0 {
		return base
	}
	if lex[0].Score > f.BM25Threshold {
		return AutoAdjustedWeights()
	}
	return base
}

// Fuse combines vector and lexical results for one exemplar corpus into a
// single score per exemplar ID, normalizes vector distances are already
// scores in [0,1] coming from the vector index, and sorts the fused list by
// FusedScore descending, breaking ties first by higher VectorScore and
// finally by exemplar ID for determinism.
//
// Exemplars are resolved via lookup; an ID that cannot be resolved (stale
// index entry) is dropped rather than surfaced with a nil Exemplar.
func (f *WeightedFusion) Fuse(
	vec []*index.VectorResult,
	lex []*index.BM25Result,
	weights Weights,
	lookup ExemplarLookup,
) []*Result {
	if len(vec) == 0 && len(lex) == 0 {
		return []*Result{}
	}

	type partial struct {
		vectorScore  float64
		lexicalScore float64
		hasLexical   bool
	}
	byID := make(map[string]*partial, len(vec)+len(lex))

	for _, r := range vec {
		p := byID[r.ID]
		if p == nil {
			p = &partial{}
			byID[r.ID] = p
		}
		p.vectorScore = float64(r.Score)
	}

	maxBM25 := 0.0
	for _, r := range lex {
		if r.Score > maxBM25 {
			maxBM25 = r.Score
		}
	}

	for _, r := range lex {
		p := byID[r.DocID]
		if p == nil {
			p = &partial{}
			byID[r.DocID] = p
		}
		normalized := r.Score
		if maxBM25 > 0 {
			normalized = r.Score / maxBM25
		}
		p.lexicalScore = normalized
		p.hasLexical = true
	}

	results := make([]*Result, 0, len(byID))
	for id, p := range byID {
		exemplar, ok := lookup.Exemplar(id)
		if !ok {
			continue
		}
		fused := weights.Vector*p.vectorScore + weights.Lexical*p.lexicalScore
		results = append(results, &Result{
			Exemplar:     exemplar,
			FusedScore:   fused,
			VectorScore:  p.vectorScore,
			LexicalScore: p.lexicalScore,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].FusedScore != results[j].FusedScore {
			return results[i].FusedScore > results[j].FusedScore
		}
		if results[i].VectorScore != results[j].VectorScore {
			return results[i].VectorScore > results[j].VectorScore
		}
		return results[i].Exemplar.ID < results[j].Exemplar.ID
	})

	return results
}

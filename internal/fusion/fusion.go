// Package fusion combines a lexical ranking and a vector ranking of the
// same document set into one ordered, scored list, per §4.3 step 3 and
// §9's "hybrid fusion formula" design note.
package fusion

import (
	"sort"

	"github.com/Aman-CERP/aisearch-core/internal/config"
)

// Candidate is one side's contribution for a single document: its
// lexical score, its vector similarity, or both.
type Candidate struct {
	DocID        string
	TextScore    float64 // 0 if the document wasn't matched by the text leg
	VectorScore  float64 // 0 if the document wasn't matched by any vector probe
	InText       bool
	InVector     bool
	MatchedTerms []string
}

// Result is one fused, ordered hit.
type Result struct {
	DocID        string
	Score        float64
	MatchedTerms []string
}

// Fuse combines candidates per the configured strategy, returning results
// sorted by descending score with a stable ascending-DocID tie-break.
func Fuse(candidates []Candidate, cfg config.HybridConfig) []Result {
	switch cfg.Fusion {
	case config.FusionRRF:
		return fuseRRF(candidates, cfg.RRFK)
	default:
		return fuseWeightedSum(candidates, cfg.TextWeight, cfg.VectorWeight)
	}
}

// fuseWeightedSum is §4.3 step 3's mandated default: a fixed-weight sum
// of each side's own score, 0 on the side a document wasn't matched by.
func fuseWeightedSum(candidates []Candidate, textWeight, vectorWeight float64) []Result {
	results := make([]Result, 0, len(candidates))
	for _, c := range candidates {
		score := textWeight*c.TextScore + vectorWeight*c.VectorScore
		results = append(results, Result{DocID: c.DocID, Score: score, MatchedTerms: c.MatchedTerms})
	}
	sortResults(results)
	return results
}

// fuseRRF is the optional reciprocal-rank-fusion strategy, adapted from
// the teacher's hybrid searcher: each side contributes 1/(k+rank) instead
// of its own raw score, removing the need to calibrate scores across
// dissimilar rankers.
func fuseRRF(candidates []Candidate, k int) []Result {
	if k <= 0 {
		k = 60
	}

	textRanked := rankedBy(candidates, func(c Candidate) (float64, bool) { return c.TextScore, c.InText })
	vectorRanked := rankedBy(candidates, func(c Candidate) (float64, bool) { return c.VectorScore, c.InVector })

	scores := make(map[string]*Result, len(candidates))
	for _, c := range candidates {
		scores[c.DocID] = &Result{DocID: c.DocID, MatchedTerms: c.MatchedTerms}
	}

	for rank, id := range textRanked {
		scores[id].Score += 1.0 / float64(k+rank+1)
	}
	for rank, id := range vectorRanked {
		scores[id].Score += 1.0 / float64(k+rank+1)
	}

	results := make([]Result, 0, len(scores))
	for _, r := range scores {
		results = append(results, *r)
	}
	sortResults(results)
	return results
}

// rankedBy returns candidate IDs present on the given side, ordered by
// descending score.
func rankedBy(candidates []Candidate, score func(Candidate) (float64, bool)) []string {
	type ranked struct {
		id string
		s  float64
	}
	var present []ranked
	for _, c := range candidates {
		if s, ok := score(c); ok {
			present = append(present, ranked{id: c.DocID, s: s})
		}
	}
	sort.Slice(present, func(i, j int) bool {
		if present[i].s != present[j].s {
			return present[i].s > present[j].s
		}
		return present[i].id < present[j].id
	})
	ids := make([]string, len(present))
	for i, r := range present {
		ids[i] = r.id
	}
	return ids
}

func sortResults(results []Result) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].DocID < results[j].DocID
	})
}

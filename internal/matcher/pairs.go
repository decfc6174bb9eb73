package matcher

import (
	"sort"
)

// Pair is one scored (requirement, document) candidate. Req and Doc index the inputs of the run.
type Pair struct {
	Req   int
	Doc   int
	Score float64
	// DocConfidence is the classification confidence of the document, the first tie-breaker.
	DocConfidence float64
}

// SortPairs orders pairs by score, then document confidence, both descending, then by
// requirement and document position.
func SortPairs(pairs []Pair) {
	sort.Slice(pairs, func(i, j int) bool {
		a, b := pairs[i], pairs[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.DocConfidence != b.DocConfidence {
			return a.DocConfidence > b.DocConfidence
		}
		if a.Req != b.Req {
			return a.Req < b.Req
		}
		return a.Doc < b.Doc
	})
}

// Assign runs the greedy exclusive assignment: the best remaining pair at or above threshold is
// taken and both of its sides leave the pool. The result maps every requirement index to its
// pair, or to nil when it got none.
func Assign(pairs []Pair, requirements int, threshold float64) []*Pair {
	sorted := make([]Pair, len(pairs))
	copy(sorted, pairs)
	SortPairs(sorted)

	assigned := make([]*Pair, requirements)
	usedDocs := make(map[int]bool)
	for i := range sorted {
		p := &sorted[i]
		if p.Score < threshold {
			break
		}
		if p.Req < 0 || p.Req >= requirements || assigned[p.Req] != nil || usedDocs[p.Doc] {
			continue
		}
		assigned[p.Req] = p
		usedDocs[p.Doc] = true
	}
	return assigned
}

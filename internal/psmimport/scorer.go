package psmimport

import (
	"cmp"
	"math"
	"slices"

	"github.com/524D/mzpep/internal/inputmap"
)

// Scorer selects, per search engine, the assumptions of a match that go
// into the target/decoy maps
type Scorer interface {
	BestAssumptions(m *Match) ([]Assumption, error)
}

// BestScorer keeps the best (lowest score) assumption of every search
// engine. Ties are broken by rank, then by sequence. Assumptions with a
// NaN score are ignored.
type BestScorer struct{}

// BestAssumptions implements Scorer. The result is ordered by advocate.
func (BestScorer) BestAssumptions(m *Match) ([]Assumption, error) {
	best := make(map[inputmap.AdvocateID]int)
	for i, a := range m.Assumptions {
		if math.IsNaN(a.Score) {
			continue
		}
		j, ok := best[a.Advocate]
		if !ok || better(a, m.Assumptions[j]) {
			best[a.Advocate] = i
		}
	}
	result := make([]Assumption, 0, len(best))
	for _, i := range best {
		result = append(result, m.Assumptions[i])
	}
	slices.SortFunc(result, func(a, b Assumption) int {
		return cmp.Compare(a.Advocate, b.Advocate)
	})
	return result, nil
}

func better(a, b Assumption) bool {
	if c := cmp.Compare(a.Score, b.Score); c != 0 {
		return c < 0
	}
	if a.Rank != b.Rank {
		return a.Rank < b.Rank
	}
	return a.Sequence < b.Sequence
}

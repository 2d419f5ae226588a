// Package validation decides which imported matches pass a PEP threshold
// and records what every search engine contributed to them.
package validation

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/524D/mzpep/internal/inputmap"
	"github.com/524D/mzpep/internal/psmimport"
)

var ErrNotEstimated = errors.New("validation: probabilities were not estimated")

type hit struct {
	file string
	key  string
	best []psmimport.Assumption
}

// Validator collects the best assumptions of every imported match. It
// implements psmimport.Validator.
type Validator struct {
	mu   sync.Mutex
	hits []hit
}

// New returns an empty validator
func New() *Validator {
	return &Validator{}
}

// Add implements psmimport.Validator
func (v *Validator) Add(m *psmimport.Match, best []psmimport.Assumption) {
	if len(best) == 0 {
		return
	}
	h := hit{file: m.File, key: m.Key, best: append([]psmimport.Assumption(nil), best...)}
	v.mu.Lock()
	v.hits = append(v.hits, h)
	v.mu.Unlock()
}

// Len returns the number of collected matches
func (v *Validator) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.hits)
}

// Summary counts the outcome of a validation
type Summary struct {
	MaxPEP float64
	// Matches with at least one assumption
	Matches int
	// Matches validated by at least one advocate
	Validated int
	// Validated matches supported by exactly one advocate
	Unique int
	// Mean of the best PEP of the validated matches, 0 when none
	MeanPEP float64
	// Validated target and decoy assumptions per advocate
	Targets map[inputmap.AdvocateID]int
	Decoys  map[inputmap.AdvocateID]int
}

// Validate looks up the PEP of every collected assumption in the global map
// of its advocate. An advocate supports a match when its best target
// assumption has PEP <= maxPEP. The contribution counters of agg are
// cleared and then rebuilt, so validating again with another threshold
// replaces the previous counts.
func (v *Validator) Validate(agg *inputmap.Map, maxPEP float64) (Summary, error) {
	if !agg.Ready() {
		return Summary{}, ErrNotEstimated
	}
	v.mu.Lock()
	hits := append([]hit(nil), v.hits...)
	v.mu.Unlock()
	sort.Slice(hits, func(i, j int) bool { return hits[i].key < hits[j].key })

	agg.ResetContributions()
	s := Summary{
		MaxPEP:  maxPEP,
		Matches: len(hits),
		Targets: map[inputmap.AdvocateID]int{},
		Decoys:  map[inputmap.AdvocateID]int{},
	}
	var peps []float64
	for _, h := range hits {
		var supporting []inputmap.AdvocateID
		bestPEP := 1.0
		for _, a := range h.best {
			pep, err := agg.Probability(a.Advocate, a.Score)
			if err != nil {
				return Summary{}, fmt.Errorf("match %q, %v: %w", h.key, a.Advocate, err)
			}
			if pep > maxPEP {
				continue
			}
			if a.Decoy {
				s.Decoys[a.Advocate]++
				continue
			}
			s.Targets[a.Advocate]++
			supporting = append(supporting, a.Advocate)
			bestPEP = min(bestPEP, pep)
		}
		if len(supporting) == 0 {
			continue
		}
		unique := len(supporting) == 1
		for _, adv := range supporting {
			agg.AddAdvocateContribution(adv, h.file, unique)
		}
		agg.AddReferenceHit(h.file, unique)
		s.Validated++
		if unique {
			s.Unique++
		}
		peps = append(peps, bestPEP)
	}
	if len(peps) > 0 {
		s.MeanPEP = stat.Mean(peps, nil)
	}
	return s, nil
}

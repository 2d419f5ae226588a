package targetdecoy

import (
	"gonum.org/v1/gonum/floats"
)

// Series is a snapshot of a map as parallel slices, sorted by score.
// Counts are float64 so they can be used directly for plotting and
// gonum computations.
type Series struct {
	Scores  []float64 `json:"scores"`
	NTarget []float64 `json:"nTarget"`
	NDecoy  []float64 `json:"nDecoy"`
	PEP     []float64 `json:"pep"`
	// FDR is the cumulative decoy/target ratio of all hits up to and
	// including the score
	FDR []float64 `json:"fdr"`
	// TruePositives is the cumulative estimated number of correct
	// target hits, sum(nTarget*(1-PEP))
	TruePositives []float64 `json:"truePositives"`
}

// Series returns the points of the map. PEP values are only meaningful
// after EstimateProbabilities.
func (m *Map) Series() Series {
	m.stateMu.Lock()
	scores, points := m.sortedPoints()
	n := len(scores)
	s := Series{
		Scores:        append([]float64(nil), scores...),
		NTarget:       make([]float64, n),
		NDecoy:        make([]float64, n),
		PEP:           make([]float64, n),
		FDR:           make([]float64, n),
		TruePositives: make([]float64, n),
	}
	for i, pt := range points {
		s.NTarget[i] = float64(pt.NTarget())
		s.NDecoy[i] = float64(pt.NDecoy())
		s.PEP[i] = pt.P()
	}
	m.stateMu.Unlock()

	if n == 0 {
		return s
	}
	cumTarget := floats.CumSum(make([]float64, n), s.NTarget)
	cumDecoy := floats.CumSum(make([]float64, n), s.NDecoy)
	for i := range s.FDR {
		if cumTarget[i] > 0 {
			s.FDR[i] = cumDecoy[i] / cumTarget[i]
		} else {
			s.FDR[i] = 1
		}
	}
	tp := make([]float64, n)
	for i := range tp {
		tp[i] = s.NTarget[i] * (1 - s.PEP[i])
	}
	floats.CumSum(s.TruePositives, tp)
	return s
}

// Len returns the number of points in the series
func (s Series) Len() int {
	return len(s.Scores)
}

// lastIndex returns the highest index for which v[i] <= limit, or -1
func lastIndex(v []float64, limit float64) int {
	last := -1
	for i, x := range v {
		if x <= limit {
			last = i
		}
	}
	return last
}

// ThresholdAtFDR returns the worst score at which the cumulative FDR is
// still at most fdr. ok is false if no score qualifies.
func (s Series) ThresholdAtFDR(fdr float64) (score float64, ok bool) {
	i := lastIndex(s.FDR, fdr)
	if i < 0 {
		return 0, false
	}
	return s.Scores[i], true
}

// ThresholdAtPEP returns the worst score whose PEP is at most pep
func (s Series) ThresholdAtPEP(pep float64) (score float64, ok bool) {
	i := lastIndex(s.PEP, pep)
	if i < 0 {
		return 0, false
	}
	return s.Scores[i], true
}

// Confidence converts a PEP into a confidence in percent
func Confidence(pep float64) float64 {
	c := 100 * (1 - pep)
	if c < 0 {
		return 0
	}
	if c > 100 {
		return 100
	}
	return c
}

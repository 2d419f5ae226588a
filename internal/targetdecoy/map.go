// Package targetdecoy estimates posterior error probabilities from the
// competition between target and decoy hits along one score axis.
//
// Scores are "lower is better" (e-value like): the map is scanned in
// ascending score order, from the most to the least confident hits.
package targetdecoy

import (
	"errors"
	"math"
	"sort"
	"sync"
	"sync/atomic"
)

// DefaultMinDecoysInBin is the number of decoys a bin must hold before
// its target count is considered for the bin size.
const DefaultMinDecoysInBin = 2

// Once the PEP reaches this value, all worse scores get PEP 1
const saturationPEP = 0.98

var (
	ErrEmptyAxis    = errors.New("targetdecoy: probability requested from empty map")
	ErrUnknownScore = errors.New("targetdecoy: no point at score")
	ErrEmptyPoint   = errors.New("targetdecoy: no hit left to remove at score")
	ErrInvalidScore = errors.New("targetdecoy: score is not a finite number")
)

// stamp records the mutation version a cached value was computed at
type stamp struct {
	valid bool
	at    uint64
}

func (s stamp) fresh(version uint64) bool {
	return s.valid && s.at == version
}

// Map holds the target/decoy points of one score axis: one search
// engine, one engine in one file, or one intermediate score.
//
// Put and Remove may be called from many goroutines. Creating a new point
// takes a short write lock, incrementing an existing point is lock free.
// Derived values (sorted scores, Nmax, window size) are cached and
// recomputed when the map changed since they were last computed.
type Map struct {
	minDecoysInBin int

	mu     sync.RWMutex // guards the key set of points
	points map[float64]*Point

	version atomic.Uint64 // incremented on every mutation
	skipped atomic.Int64  // hits dropped for a non-finite score

	stateMu     sync.Mutex // guards everything below
	scores      []float64  // ascending
	sorted      []*Point   // points in the order of scores
	scoresStamp stamp
	nMax        int
	nTargetOnly int
	nsStamp     stamp
	windowSize  int
	windowSet   bool
	minFDR      float64 // only decreases, until Merge
}

// New creates an empty map. minDecoysInBin < 1 selects the default.
func New(minDecoysInBin int) *Map {
	if minDecoysInBin < 1 {
		minDecoysInBin = DefaultMinDecoysInBin
	}
	return &Map{
		minDecoysInBin: minDecoysInBin,
		points:         make(map[float64]*Point),
		minFDR:         1.0,
	}
}

// NewDefault creates an empty map with DefaultMinDecoysInBin
func NewDefault() *Map {
	return New(DefaultMinDecoysInBin)
}

// MinDecoysInBin returns the number of decoys needed to close a bin
func (m *Map) MinDecoysInBin() int {
	return m.minDecoysInBin
}

// point returns the point at score, creating it if needed. Concurrent
// callers creating the same score get the same point.
func (m *Map) point(score float64) *Point {
	m.mu.RLock()
	pt := m.points[score]
	m.mu.RUnlock()
	if pt != nil {
		return pt
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	pt = m.points[score]
	if pt == nil {
		pt = &Point{}
		m.points[score] = pt
	}
	return pt
}

func (m *Map) lookup(score float64) *Point {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.points[score]
}

// Put adds a target (decoy == false) or decoy hit at the given score.
// Hits with a NaN or infinite score are not added but counted in
// Skipped.
func (m *Map) Put(score float64, decoy bool) {
	m.putN(score, decoy, 1)
}

func (m *Map) putN(score float64, decoy bool, n int64) {
	if n <= 0 {
		return
	}
	if math.IsNaN(score) || math.IsInf(score, 0) {
		m.skipped.Add(n)
		return
	}
	m.point(score).add(decoy, n)
	m.version.Add(1)
}

// Remove takes one target or decoy hit away from the given score.
// The point itself stays in the map, even when empty; call Cleanup
// after a series of removals.
func (m *Map) Remove(score float64, decoy bool) error {
	pt := m.lookup(score)
	if pt == nil {
		return ErrUnknownScore
	}
	if !pt.decrease(decoy) {
		return ErrEmptyPoint
	}
	m.version.Add(1)
	return nil
}

// Cleanup removes the points without any hit left, and clears the
// derived values if a point was removed.
func (m *Map) Cleanup() {
	removed := false
	m.mu.Lock()
	for score, pt := range m.points {
		if pt.empty() {
			delete(m.points, score)
			removed = true
		}
	}
	m.mu.Unlock()

	if removed {
		m.invalidate()
	}
}

// Skipped returns the number of hits Put dropped for a non-finite score
func (m *Map) Skipped() int {
	return int(m.skipped.Load())
}

// Merge adds all hits of other to m. The minimal FDR is computed anew
// from the merged hits, a value m reported before the merge is dropped.
func (m *Map) Merge(other *Map) {
	if other == nil || other == m {
		return
	}
	type entry struct {
		score           float64
		nTarget, nDecoy int64
	}
	other.mu.RLock()
	entries := make([]entry, 0, len(other.points))
	for score, pt := range other.points {
		entries = append(entries, entry{score, pt.nTarget.Load(), pt.nDecoy.Load()})
	}
	other.mu.RUnlock()

	for _, e := range entries {
		m.putN(e.score, true, e.nDecoy)
		m.putN(e.score, false, e.nTarget)
	}
	m.skipped.Add(other.skipped.Load())

	m.stateMu.Lock()
	m.minFDR = 1.0
	m.stateMu.Unlock()
	m.invalidate()
}

// invalidate drops all cached values, including a window size set
// with SetWindowSize. The minimal FDR is kept.
func (m *Map) invalidate() {
	m.version.Add(1)
	m.stateMu.Lock()
	m.scoresStamp.valid = false
	m.nsStamp.valid = false
	m.windowSet = false
	m.stateMu.Unlock()
}

// Size returns the number of distinct scores in the map
func (m *Map) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.points)
}

// NTarget returns the number of targets at score (0 if unknown)
func (m *Map) NTarget(score float64) int {
	if pt := m.lookup(score); pt != nil {
		return pt.NTarget()
	}
	return 0
}

// NDecoy returns the number of decoys at score (0 if unknown)
func (m *Map) NDecoy(score float64) int {
	if pt := m.lookup(score); pt != nil {
		return pt.NDecoy()
	}
	return 0
}

// sortedPoints returns the ascending scores and their points.
// stateMu must be held.
func (m *Map) sortedPoints() ([]float64, []*Point) {
	v := m.version.Load()
	if m.scoresStamp.fresh(v) {
		return m.scores, m.sorted
	}
	m.mu.RLock()
	scores := make([]float64, 0, len(m.points))
	for s := range m.points {
		scores = append(scores, s)
	}
	sort.Float64s(scores)
	sorted := make([]*Point, len(scores))
	for i, s := range scores {
		sorted[i] = m.points[s]
	}
	m.mu.RUnlock()

	m.scores = scores
	m.sorted = sorted
	m.scoresStamp = stamp{valid: true, at: v}
	return scores, sorted
}

// Scores returns a copy of the scores in the map, sorted ascending
func (m *Map) Scores() []float64 {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	scores, _ := m.sortedPoints()
	return append([]float64(nil), scores...)
}

// Probability returns the posterior error probability at score.
// A score between two points gets the plain average of both
// probabilities, a score beyond the last point gets the probability of
// the last point.
func (m *Map) Probability(score float64) (float64, error) {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()

	if math.IsNaN(score) {
		return 0, ErrInvalidScore
	}
	scores, points := m.sortedPoints()
	n := len(scores)
	if n == 0 {
		return 0, ErrEmptyAxis
	}
	i := sort.SearchFloat64s(scores, score)
	if i < n && scores[i] == score {
		return points[i].P(), nil
	}
	if score >= scores[n-1] {
		return points[n-1].P(), nil
	}
	up := sort.Search(n, func(i int) bool { return scores[i] > score })
	if up == 0 {
		// Below the first score: the first two points bracket it
		up = min(1, n-1)
	}
	down := max(up-1, 0)
	return (points[up].P() + points[down].P()) / 2, nil
}

// estimateNs computes Nmax, the number of targets before the first
// decoy and updates the minimal FDR. Scores of 1 and above are skipped
// for Nmax. stateMu must be held.
func (m *Map) estimateNs() {
	v := m.version.Load()
	if m.nsStamp.fresh(v) {
		return
	}
	scores, points := m.sortedPoints()

	onlyTarget := true
	nMax := 0
	nTargetOnly := 0
	targetCpt, decoyCpt := 0, 0
	targetCount, decoyCount := 0, 0

	for i, pt := range points {
		nT, nD := pt.NTarget(), pt.NDecoy()

		if onlyTarget {
			if nD > 0 {
				// Targets sharing the score of the first decoy do not
				// precede it; half of them start the first bin
				targetCpt += nT / 2
				decoyCpt += nD
				onlyTarget = false
			} else {
				nTargetOnly += nT
			}
		} else if nD > 0 {
			// Decoy closes the bin, targets at this score are shared
			// with the next bin
			targetCpt += nT/2 + nT%2
			decoyCpt += nD
			if targetCpt > nMax && scores[i] < 1.0 && decoyCpt >= m.minDecoysInBin {
				nMax = targetCpt
			}
			targetCpt = nT / 2
			decoyCpt = nD
		} else {
			targetCpt += nT
		}

		targetCount += nT
		decoyCount += nD
		if targetCount > 0 {
			fdr := float64(decoyCount) / float64(targetCount)
			if fdr < m.minFDR {
				m.minFDR = fdr
			}
		}
	}

	m.nMax = nMax
	m.nTargetOnly = nTargetOnly
	m.nsStamp = stamp{valid: true, at: v}
}

// EstimateProbabilities estimates the PEP of every point with a sliding
// window of WindowSize target hits centered on each score. It is meant
// to run once, after all hits were added.
func (m *Map) EstimateProbabilities() {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()

	_, points := m.sortedPoints()
	if len(points) == 0 {
		return
	}
	m.estimateNs()
	nLimit := 0.5 * float64(m.windowSizeLocked())

	// The current point counts half below and half above the center
	prev := points[0]
	nTargetUp := 1.5 * float64(prev.NTarget())
	nTargetDown := -0.5 * float64(prev.NTarget())
	nDecoy := float64(prev.NDecoy())
	iDown, iUp := 0, 1
	saturated := false

	for i, pt := range points {
		if saturated {
			pt.setP(1)
			continue
		}

		change := 0.5 * float64(prev.NTarget()+pt.NTarget())
		nTargetDown += change
		nTargetUp -= change

		for nTargetDown > nLimit && iDown < i {
			t := float64(points[iDown].NTarget())
			if nTargetDown-t < nLimit {
				break
			}
			nDecoy -= float64(points[iDown].NDecoy())
			nTargetDown -= t
			iDown++
		}
		for nTargetUp < nLimit && iUp < len(points) {
			nTargetUp += float64(points[iUp].NTarget())
			nDecoy += float64(points[iUp].NDecoy())
			iUp++
		}

		p := 1.0
		if nTarget := nTargetDown + nTargetUp; nTarget > 0 {
			p = math.Max(math.Min(nDecoy/nTarget, 1), 0)
		}
		pt.setP(p)
		if p >= saturationPEP {
			saturated = true
		}
		prev = pt
	}
}

// NMax returns the bin size: the largest number of targets found
// between consecutive decoys (with at least MinDecoysInBin decoys).
func (m *Map) NMax() int {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	m.estimateNs()
	return m.nMax
}

// NTargetOnly returns the number of targets scoring better than the
// best decoy.
func (m *Map) NTargetOnly() int {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	m.estimateNs()
	return m.nTargetOnly
}

// MinFDR returns the lowest FDR that can be achieved with this map
func (m *Map) MinFDR() float64 {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	m.estimateNs()
	return m.minFDR
}

func (m *Map) windowSizeLocked() int {
	if m.windowSet {
		return m.windowSize
	}
	m.estimateNs()
	return m.nMax
}

// WindowSize returns the window used for PEP estimation, Nmax unless
// set with SetWindowSize.
func (m *Map) WindowSize() int {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	return m.windowSizeLocked()
}

// SetWindowSize overrides the window size until the map is merged or
// cleaned up.
func (m *Map) SetWindowSize(n int) {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	m.windowSize = n
	m.windowSet = true
}

// Resolution returns the smallest detectable PEP change in percent
func (m *Map) Resolution() float64 {
	nMax := m.NMax()
	if nMax == 0 {
		return 0
	}
	return 100.0 / float64(nMax)
}

// SuspiciousInput reports whether the decoy sample is too small for a
// reliable estimate, or the requested FDR cannot be reached.
// It is a warning only, estimation works regardless.
func (m *Map) SuspiciousInput(requestedFDR float64) bool {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	m.estimateNs()
	return m.nMax < 100 || m.minFDR > requestedFDR
}

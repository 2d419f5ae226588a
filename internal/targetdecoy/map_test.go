package targetdecoy

import (
	"math"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type hit struct {
	score float64
	decoy bool
}

// randomHits generates hits on a grid of scores, with the decoy fraction
// growing with the score like a typical e-value distribution.
func randomHits(seed uint64, n int) []hit {
	r := rand.New(rand.NewPCG(seed, seed+1))
	hits := make([]hit, n)
	for i := range hits {
		score := float64(r.IntN(400)) / 200.0 // 0 .. 2 in steps of 0.005
		hits[i] = hit{score: score, decoy: r.Float64() < score/2.5}
	}
	return hits
}

func fill(m *Map, hits []hit) *Map {
	for _, h := range hits {
		m.Put(h.score, h.decoy)
	}
	return m
}

func TestConcurrentPutNoLostUpdates(t *testing.T) {
	m := NewDefault()
	var wg sync.WaitGroup
	for _, decoy := range []bool{false, true} {
		wg.Add(1)
		go func(decoy bool) {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				m.Put(5.0, decoy)
			}
		}(decoy)
	}
	wg.Wait()

	assert.Equal(t, 1000, m.NTarget(5.0))
	assert.Equal(t, 1000, m.NDecoy(5.0))
	assert.Equal(t, 1, m.Size())
}

func TestDecoySharingScoreWithTargets(t *testing.T) {
	m := New(1)
	for i := 0; i < 100; i++ {
		m.Put(10, false)
	}
	m.Put(10, true)
	m.EstimateProbabilities()

	assert.Equal(t, 0, m.NTargetOnly())
	p, err := m.Probability(10)
	require.NoError(t, err)
	assert.InDelta(t, 1.0/101, p, 1e-3)
}

func TestOnlyDecoys(t *testing.T) {
	m := NewDefault()
	for _, s := range []float64{0.1, 0.2, 0.3} {
		m.Put(s, true)
	}
	require.NotPanics(t, m.EstimateProbabilities)

	assert.Equal(t, 1.0, m.MinFDR())
	assert.Equal(t, 0, m.NMax())
	assert.Equal(t, 0.0, m.Resolution())
	for _, s := range m.Scores() {
		p, err := m.Probability(s)
		require.NoError(t, err)
		assert.Equal(t, 1.0, p)
	}
}

func TestProbabilityEmptyMap(t *testing.T) {
	m := NewDefault()
	_, err := m.Probability(0.5)
	assert.ErrorIs(t, err, ErrEmptyAxis)
}

func TestProbabilityLookup(t *testing.T) {
	m := fill(NewDefault(), randomHits(7, 5000))
	m.EstimateProbabilities()
	scores := m.Scores()
	require.Greater(t, len(scores), 10)

	prob := func(s float64) float64 {
		p, err := m.Probability(s)
		require.NoError(t, err)
		return p
	}

	for i := 0; i+1 < len(scores); i += 17 {
		lo, hi := scores[i], scores[i+1]
		want := (prob(lo) + prob(hi)) / 2
		assert.Equal(t, want, prob((lo+hi)/2), "between %v and %v", lo, hi)
	}

	last := scores[len(scores)-1]
	assert.Equal(t, prob(last), prob(last+100))
	assert.Equal(t, (prob(scores[0])+prob(scores[1]))/2, prob(scores[0]-1))
}

func TestProbabilityIdempotent(t *testing.T) {
	m := fill(NewDefault(), randomHits(3, 2000))
	m.EstimateProbabilities()
	for _, s := range []float64{0.0, 0.0125, 0.3333, 1.5, 7} {
		p1, err := m.Probability(s)
		require.NoError(t, err)
		p2, err := m.Probability(s)
		require.NoError(t, err)
		assert.Equal(t, math.Float64bits(p1), math.Float64bits(p2))
	}
}

func TestSaturation(t *testing.T) {
	m := fill(NewDefault(), randomHits(11, 20000))
	m.EstimateProbabilities()

	saturated := false
	for _, s := range m.Scores() {
		p, err := m.Probability(s)
		require.NoError(t, err)
		if saturated {
			assert.Equal(t, 1.0, p, "score %v after saturation", s)
		}
		if p == 1 {
			saturated = true
		}
	}
	assert.True(t, saturated, "expected the decoy rich tail to saturate")
}

func TestMergeMatchesDirectBuild(t *testing.T) {
	hits := randomHits(42, 8000)
	direct := fill(NewDefault(), hits)

	a, b := NewDefault(), NewDefault()
	for i, h := range hits {
		if i%2 == 0 {
			a.Put(h.score, h.decoy)
		} else {
			b.Put(h.score, h.decoy)
		}
	}
	a.Merge(b)

	direct.EstimateProbabilities()
	a.EstimateProbabilities()

	assert.Equal(t, direct.NMax(), a.NMax())
	assert.Equal(t, direct.MinFDR(), a.MinFDR())
	if diff := cmp.Diff(direct.Series(), a.Series()); diff != "" {
		t.Errorf("merged series mismatch (-direct +merged):\n%s", diff)
	}
}

func TestMergeSelfIsNoop(t *testing.T) {
	m := fill(NewDefault(), randomHits(5, 100))
	before := m.Series()
	m.Merge(m)
	m.Merge(nil)
	assert.Equal(t, before, m.Series())
}

func TestMergeRecomputesMinFDR(t *testing.T) {
	a := NewDefault()
	a.Put(0.1, false)
	a.Put(0.2, false)
	assert.Equal(t, 0.0, a.MinFDR())

	b := NewDefault()
	b.Put(0.05, true)
	a.Merge(b)

	direct := NewDefault()
	direct.Put(0.05, true)
	direct.Put(0.1, false)
	direct.Put(0.2, false)
	assert.Equal(t, 0.5, direct.MinFDR())
	assert.Equal(t, direct.MinFDR(), a.MinFDR())
}

func TestNonFiniteScoresSkipped(t *testing.T) {
	m := NewDefault()
	m.Put(math.NaN(), false)
	m.Put(math.NaN(), true)
	m.Put(math.Inf(1), false)
	m.Put(math.Inf(-1), true)
	m.Put(0.1, false)

	assert.Equal(t, 1, m.Size())
	assert.Equal(t, 4, m.Skipped())
	assert.Equal(t, []float64{0.1}, m.Scores())
	assert.Equal(t, 0, m.NTarget(math.NaN()))
	assert.ErrorIs(t, m.Remove(math.NaN(), false), ErrUnknownScore)

	m.Cleanup()
	assert.Equal(t, 1, m.Size())

	m.EstimateProbabilities()
	_, err := m.Probability(math.NaN())
	assert.ErrorIs(t, err, ErrInvalidScore)
	p, err := m.Probability(0.1)
	require.NoError(t, err)
	assert.Equal(t, 0.0, p)

	merged := NewDefault()
	merged.Merge(m)
	assert.Equal(t, 4, merged.Skipped())
	assert.Equal(t, 1, merged.Size())
}

func TestRemoveAndCleanup(t *testing.T) {
	m := NewDefault()
	m.Put(0.1, false)
	m.Put(0.2, true)
	m.Put(0.2, false)

	assert.ErrorIs(t, m.Remove(0.3, false), ErrUnknownScore)
	require.NoError(t, m.Remove(0.1, false))
	assert.ErrorIs(t, m.Remove(0.1, false), ErrEmptyPoint)
	assert.Equal(t, 0, m.NTarget(0.1))
	assert.Equal(t, 2, m.Size(), "remove must not delete points")

	m.Cleanup()
	assert.Equal(t, 1, m.Size())
	assert.Equal(t, []float64{0.2}, m.Scores())
	for _, s := range m.Scores() {
		assert.GreaterOrEqual(t, m.NTarget(s), 0)
		assert.GreaterOrEqual(t, m.NDecoy(s), 0)
	}
}

func TestMinFDRNonIncreasing(t *testing.T) {
	m := NewDefault()
	prev := m.MinFDR()
	assert.Equal(t, 1.0, prev)
	for _, h := range randomHits(9, 500) {
		m.Put(h.score, h.decoy)
		cur := m.MinFDR()
		assert.LessOrEqual(t, cur, prev)
		prev = cur
	}
}

func TestNMaxIgnoresScoresAboveOne(t *testing.T) {
	m := NewDefault()
	m.Put(2.0, true)
	for i := 0; i < 150; i++ {
		m.Put(2.0+float64(i+1)*0.001, false)
	}
	m.Put(3.0, true)
	assert.Equal(t, 0, m.NMax())
}

// binnedMap has 150 targets before the first decoy if leadingDecoy is
// false, and a bin of 120 targets between two decoys.
func binnedMap(leadingDecoy bool) *Map {
	m := NewDefault()
	if leadingDecoy {
		m.Put(0.0001, true)
	} else {
		for i := 1; i <= 150; i++ {
			m.Put(float64(i)*0.001, false)
		}
		m.Put(0.2, true)
	}
	for i := 0; i < 120; i++ {
		m.Put(0.3+float64(i)*0.001, false)
	}
	m.Put(0.5, true)
	return m
}

func TestBinSize(t *testing.T) {
	m := binnedMap(false)
	assert.Equal(t, 120, m.NMax())
	assert.Equal(t, 150, m.NTargetOnly())
	assert.Equal(t, 0.0, m.MinFDR())
	assert.InDelta(t, 100.0/120, m.Resolution(), 1e-12)

	m = binnedMap(true)
	assert.Equal(t, 120, m.NMax())
	assert.Equal(t, 0, m.NTargetOnly())
	assert.InDelta(t, 1.0/120, m.MinFDR(), 1e-12)
}

func TestSuspiciousInput(t *testing.T) {
	small := NewDefault()
	small.Put(0.1, false)
	small.Put(0.2, true)
	small.Put(0.3, false)
	small.Put(0.4, true)
	assert.Less(t, small.NMax(), 100)
	assert.True(t, small.SuspiciousInput(1.0), "small Nmax must be suspicious whatever the FDR")

	clean := binnedMap(false)
	assert.False(t, clean.SuspiciousInput(0.01))

	noisy := binnedMap(true)
	assert.True(t, noisy.SuspiciousInput(0.001), "min FDR above request")
	assert.False(t, noisy.SuspiciousInput(0.01))
}

func TestWindowSize(t *testing.T) {
	m := binnedMap(false)
	assert.Equal(t, m.NMax(), m.WindowSize())
	m.SetWindowSize(10)
	assert.Equal(t, 10, m.WindowSize())

	m.Merge(binnedMap(false))
	assert.Equal(t, m.NMax(), m.WindowSize(), "merge resets the window size")
}

func TestSeriesThresholds(t *testing.T) {
	m := binnedMap(true)
	m.EstimateProbabilities()
	s := m.Series()
	require.Equal(t, m.Size(), s.Len())

	assert.Equal(t, 1.0, s.FDR[0], "no target yet at the first decoy")
	score, ok := s.ThresholdAtFDR(0.01)
	require.True(t, ok)
	assert.InDelta(t, 0.3+119*0.001, score, 1e-9)

	_, ok = s.ThresholdAtFDR(0.001)
	assert.False(t, ok)

	last := s.TruePositives[s.Len()-1]
	assert.LessOrEqual(t, last, 120.0)
	assert.Equal(t, 50.0, Confidence(0.5))
	assert.Equal(t, 0.0, Confidence(1.5))
}

package inputmap

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/524D/mzpep/internal/targetdecoy"
)

type countingProgress struct {
	mu            sync.Mutex
	max, n        int
	indeterminate bool
	onIncrement   func(n int)
}

func (p *countingProgress) SetMax(n int) {
	p.mu.Lock()
	p.max = n
	p.mu.Unlock()
}

func (p *countingProgress) Increment() {
	p.mu.Lock()
	p.n++
	n := p.n
	p.mu.Unlock()
	if p.onIncrement != nil {
		p.onIncrement(n)
	}
}

func (p *countingProgress) SetIndeterminate(b bool) {
	p.mu.Lock()
	p.indeterminate = b
	p.mu.Unlock()
}

func TestAddEntryCreatesGlobalAndFileMaps(t *testing.T) {
	m := New()
	m.AddEntry(Comet, "a.mzML", 0.01, false)
	m.AddEntry(Comet, "b.mzML", 0.01, true)
	m.AddEntry(XTandem, "a.mzML", 0.5, false)

	assert.Equal(t, []AdvocateID{XTandem, Comet}, m.Advocates())
	assert.True(t, m.IsMultipleAlgorithms())
	assert.Equal(t, []string{"a.mzML", "b.mzML"}, m.Files(Comet))

	global := m.TargetDecoyMap(Comet)
	require.NotNil(t, global)
	assert.Equal(t, 1, global.NTarget(0.01))
	assert.Equal(t, 1, global.NDecoy(0.01))

	assert.Equal(t, 1, m.FileTargetDecoyMap(Comet, "a.mzML").NTarget(0.01))
	assert.Equal(t, 0, m.FileTargetDecoyMap(Comet, "a.mzML").NDecoy(0.01))
	assert.Nil(t, m.FileTargetDecoyMap(Comet, "c.mzML"))
	assert.Nil(t, m.FileTargetDecoyMap(Mascot, "a.mzML"))

	assert.Equal(t, 2, m.NEntries())
	assert.Equal(t, 3, m.NEntriesSpecific())
	assert.Len(t, m.FileMaps(), 3)
}

func TestMinDecoysInBin(t *testing.T) {
	fill := func(m *Map) {
		for i := 0; i < 10; i++ {
			m.AddEntry(Comet, "a", float64(i)/100, false)
		}
		// decoy, target, decoy, ...: one target per decoy
		for i := 0; i < 20; i++ {
			m.AddEntry(Comet, "a", 0.1+float64(i)/100, i%2 == 0)
		}
	}

	def := New()
	fill(def)
	assert.Equal(t, targetdecoy.DefaultMinDecoysInBin, def.TargetDecoyMap(Comet).MinDecoysInBin())
	assert.Equal(t, 1, def.TargetDecoyMap(Comet).NMax())

	strict := New()
	strict.MinDecoysInBin = 1000
	fill(strict)
	assert.Equal(t, 1000, strict.TargetDecoyMap(Comet).MinDecoysInBin())
	assert.Equal(t, 1000, strict.FileTargetDecoyMap(Comet, "a").MinDecoysInBin())
	assert.Equal(t, 0, strict.TargetDecoyMap(Comet).NMax(), "no bin holds 1000 decoys")
	assert.Equal(t, 0, strict.FileTargetDecoyMap(Comet, "a").NMax())
}

func TestConcurrentAddEntry(t *testing.T) {
	m := New()
	const workers, perWorker = 8, 500
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				file := fmt.Sprintf("f%d.mzML", i%3)
				m.AddEntry(AdvocateID(i%2), file, float64(i%10)/10, i%4 == 0)
				m.AddAdvocateContribution(AdvocateID(i%2), file, i%5 == 0)
			}
		}(w)
	}
	wg.Wait()

	total := 0
	for _, a := range m.Advocates() {
		tdMap := m.TargetDecoyMap(a)
		for _, s := range tdMap.Scores() {
			total += tdMap.NTarget(s) + tdMap.NDecoy(s)
		}
	}
	assert.Equal(t, workers*perWorker, total)
	assert.Equal(t, workers*perWorker,
		m.AdvocateContributionTotal(0)+m.AdvocateContributionTotal(1))
	assert.Equal(t, workers*perWorker/5,
		m.AdvocateUniqueContributionTotal(0)+m.AdvocateUniqueContributionTotal(1))
}

func TestSingleMap(t *testing.T) {
	m := New()
	_, err := m.SingleMap()
	assert.ErrorIs(t, err, ErrNoAxis)

	m.AddEntry(MSGF, "a", 1e-5, false)
	tdMap, err := m.SingleMap()
	require.NoError(t, err)
	assert.Same(t, m.TargetDecoyMap(MSGF), tdMap)

	m.AddEntry(Comet, "a", 1e-5, false)
	_, err = m.SingleMap()
	assert.ErrorIs(t, err, ErrAmbiguousAxis)
}

func TestIntermediateScores(t *testing.T) {
	m := New()
	m.SetIntermediateScore("a", Mascot, 3, 0.2, false, 1)
	m.SetIntermediateScore("a", Mascot, 3, 0.3, true, 5)
	m.SetIntermediateScore("a", Mascot, 4, 0.3, true, 5)

	assert.Equal(t, []AdvocateID{Mascot}, m.IntermediateScoreAdvocates("a"))
	assert.Equal(t, []int{3, 4}, m.IntermediateScoreKinds("a", Mascot))
	assert.Nil(t, m.IntermediateScoreAdvocates("b"))
	assert.Nil(t, m.IntermediateScoreMap("a", Comet, 3))

	tdMap := m.IntermediateScoreMap("a", Mascot, 3)
	require.NotNil(t, tdMap)
	assert.Equal(t, 1, tdMap.MinDecoysInBin(), "first writer sets the bin size")
	assert.Equal(t, 2, tdMap.Size())
	assert.Equal(t, 5, m.IntermediateScoreMap("a", Mascot, 4).MinDecoysInBin())
}

func TestContributions(t *testing.T) {
	m := New()
	assert.False(t, m.HasAdvocateContribution())
	assert.Equal(t, 0, m.AdvocateContribution(Comet, "a"))
	assert.Equal(t, 0, m.ReferenceHitsTotal())

	m.AddAdvocateContribution(Comet, "a", true)
	m.AddAdvocateContribution(Comet, "a", false)
	m.AddAdvocateContribution(Comet, "b", false)
	m.AddReferenceHit("a", true)
	m.AddReferenceHit("b", false)

	assert.True(t, m.HasAdvocateContribution())
	assert.Equal(t, 2, m.AdvocateContribution(Comet, "a"))
	assert.Equal(t, 3, m.AdvocateContributionTotal(Comet))
	assert.Equal(t, 1, m.AdvocateUniqueContribution(Comet, "a"))
	assert.Equal(t, 0, m.AdvocateUniqueContribution(Comet, "b"))
	assert.Equal(t, 1, m.AdvocateUniqueContributionTotal(Comet))
	assert.Equal(t, 1, m.ReferenceHits("a"))
	assert.Equal(t, 2, m.ReferenceHitsTotal())
	assert.Equal(t, 1, m.ReferenceUniqueContribution("a"))
	assert.Equal(t, 1, m.ReferenceUniqueContributionTotal())

	m.ResetAdvocateContributions("a")
	assert.Equal(t, 0, m.AdvocateContribution(Comet, "a"))
	assert.Equal(t, 1, m.AdvocateContributionTotal(Comet))
	assert.Equal(t, 1, m.ReferenceHits("a"), "reference hits are kept")

	m.ResetContributions()
	assert.False(t, m.HasAdvocateContribution())
}

func TestEstimateProbabilities(t *testing.T) {
	m := New()
	for i := 0; i < 200; i++ {
		m.AddEntry(Comet, fmt.Sprintf("f%d", i%2), float64(i)/100, i%7 == 0)
	}
	p := &countingProgress{}
	require.NoError(t, m.EstimateProbabilities(context.Background(), p))
	assert.True(t, m.Ready())
	assert.Equal(t, 3, p.max, "one tick per map")
	assert.Equal(t, 3, p.n)
	assert.True(t, p.indeterminate)

	prob, err := m.Probability(Comet, 0.5)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, prob, 0.0)
	assert.LessOrEqual(t, prob, 1.0)

	prob, err = m.Probability(Mascot, 0.5)
	require.NoError(t, err)
	assert.Equal(t, 1.0, prob)
}

func TestEstimateProbabilitiesCancelled(t *testing.T) {
	m := New()
	m.AddEntry(Comet, "a", 0.1, false)
	m.AddEntry(Comet, "b", 0.1, true)

	ctx, cancel := context.WithCancel(context.Background())
	p := &countingProgress{onIncrement: func(n int) {
		if n == 1 {
			cancel()
		}
	}}
	err := m.EstimateProbabilities(ctx, p)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, m.Ready())
	assert.Equal(t, 1, p.n, "cancellation is checked between maps")
}

func TestReset(t *testing.T) {
	m := New()
	m.AddEntry(Comet, "a", 0.1, false)
	m.SetIntermediateScore("a", Comet, 1, 0.1, false, 2)
	m.AddReferenceHit("a", false)
	m.Reset()

	assert.Empty(t, m.Advocates())
	assert.Nil(t, m.IntermediateScoreMap("a", Comet, 1))
	assert.Equal(t, 0, m.ReferenceHitsTotal())
	assert.False(t, m.Ready())
}

func TestParseAdvocate(t *testing.T) {
	for name, want := range map[string]AdvocateID{
		"X! Tandem": XTandem,
		"MS-GF+":    MSGF,
		"msgfplus":  MSGF,
		"Comet":     Comet,
		"sage":      Sage,
	} {
		got, ok := ParseAdvocate(name)
		assert.True(t, ok, name)
		assert.Equal(t, want, got, name)
	}
	_, ok := ParseAdvocate("unknown engine")
	assert.False(t, ok)
	assert.Equal(t, "Comet", Comet.String())
	assert.Equal(t, "advocate 1001", (UserAdvocate + 1).String())
}

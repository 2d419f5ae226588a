package validation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/524D/mzpep/internal/inputmap"
	"github.com/524D/mzpep/internal/psmimport"
)

// fill adds 300 well separated targets followed by a region where targets
// and decoys alternate
func fill(agg *inputmap.Map, advocate inputmap.AdvocateID) {
	for i := 1; i <= 300; i++ {
		agg.AddEntry(advocate, "a.mzML", float64(i)/1000, false)
	}
	for i := 0; i < 100; i++ {
		agg.AddEntry(advocate, "a.mzML", 0.4+float64(i)/200, i%2 == 0)
	}
}

func target(adv inputmap.AdvocateID, score float64) psmimport.Assumption {
	return psmimport.Assumption{Advocate: adv, Rank: 1, Sequence: "PEPTIDE", Score: score}
}

func setup(t *testing.T) (*inputmap.Map, *Validator) {
	t.Helper()
	agg := inputmap.New()
	fill(agg, inputmap.Comet)
	fill(agg, inputmap.XTandem)
	require.NoError(t, agg.EstimateProbabilities(context.Background(), nil))

	v := New()
	decoy := target(inputmap.XTandem, 0.001)
	decoy.Decoy = true
	v.Add(&psmimport.Match{Key: "m1", File: "a.mzML"},
		[]psmimport.Assumption{target(inputmap.Comet, 0.001), target(inputmap.XTandem, 0.001)})
	v.Add(&psmimport.Match{Key: "m2", File: "a.mzML"},
		[]psmimport.Assumption{target(inputmap.Comet, 0.003)})
	v.Add(&psmimport.Match{Key: "m3", File: "a.mzML"},
		[]psmimport.Assumption{decoy})
	v.Add(&psmimport.Match{Key: "m4", File: "a.mzML"}, nil)
	return agg, v
}

func TestValidate(t *testing.T) {
	agg, v := setup(t)
	assert.Equal(t, 3, v.Len(), "matches without assumptions are ignored")

	s, err := v.Validate(agg, 0.01)
	require.NoError(t, err)
	assert.Equal(t, 3, s.Matches)
	assert.Equal(t, 2, s.Validated)
	assert.Equal(t, 1, s.Unique)
	assert.Equal(t, 0.0, s.MeanPEP)
	assert.Equal(t, map[inputmap.AdvocateID]int{inputmap.Comet: 2, inputmap.XTandem: 1}, s.Targets)
	assert.Equal(t, map[inputmap.AdvocateID]int{inputmap.XTandem: 1}, s.Decoys)

	assert.Equal(t, 2, agg.AdvocateContribution(inputmap.Comet, "a.mzML"))
	assert.Equal(t, 1, agg.AdvocateUniqueContribution(inputmap.Comet, "a.mzML"))
	assert.Equal(t, 1, agg.AdvocateContribution(inputmap.XTandem, "a.mzML"))
	assert.Equal(t, 0, agg.AdvocateUniqueContributionTotal(inputmap.XTandem))
	assert.Equal(t, 2, agg.ReferenceHits("a.mzML"))
	assert.Equal(t, 1, agg.ReferenceUniqueContributionTotal())
}

func TestValidateAgainReplacesCounts(t *testing.T) {
	agg, v := setup(t)
	_, err := v.Validate(agg, 0.01)
	require.NoError(t, err)

	s, err := v.Validate(agg, -1)
	require.NoError(t, err)
	assert.Equal(t, 0, s.Validated)
	assert.Empty(t, s.Targets)
	assert.False(t, agg.HasAdvocateContribution())
}

func TestValidateNeedsEstimation(t *testing.T) {
	agg := inputmap.New()
	fill(agg, inputmap.Comet)
	_, err := New().Validate(agg, 0.01)
	assert.ErrorIs(t, err, ErrNotEstimated)
}

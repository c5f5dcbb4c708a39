package quantile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/browninglab/ibdends/genmap"
	"github.com/browninglab/ibdends/globalibs"
	"github.com/browninglab/ibdends/ibscounts"
	"github.com/browninglab/ibdends/ibslen"
	"github.com/browninglab/ibdends/markerframe"
)

// buildScenario constructs the uniform-chromosome, no-errors end-to-end
// scenario from spec.md §8 scenario 1: 5 markers, 4 haplotypes, all
// identical everywhere.
func buildScenario(t *testing.T, mutate func(alleles []uint8, nHaps int)) (*Estimator, *genmap.Map) {
	t.Helper()
	basePos := []int64{100, 200, 300, 400, 500}
	morganPos := []float64{0, 0.01, 0.02, 0.03, 0.04}
	nAlleles := []uint8{2, 2, 2, 2, 2}
	nHaps := 4
	alleles := make([]uint8, len(basePos)*nHaps)
	if mutate != nil {
		mutate(alleles, nHaps)
	}
	fwd, err := markerframe.New(basePos, morganPos, nAlleles, alleles, nHaps)
	require.NoError(t, err)
	bwd := fwd.Reverse()

	fwdCounts, err := ibscounts.Build(fwd, ibscounts.Options{LocalHaps: nHaps, MaxLocalCDF: 0.999, Seed: 1})
	require.NoError(t, err)
	bwdCounts := fwdCounts.Reverse()

	global, err := globalibs.Build(fwd, globalibs.Options{GlobalPos: 20, GlobalSegments: 10, GlobalQuantile: 0.9, GlobalFactor: 5, Seed: 1})
	require.NoError(t, err)

	fwdLen := ibslen.Build(fwd, fwdCounts, global)
	bwdLen := ibslen.Build(bwd, bwdCounts, global)

	gm, err := genmap.New(basePos, []float64{0, 1, 2, 3, 4})
	require.NoError(t, err)

	est, err := New(fwd, bwd, fwdLen, bwdLen, gm, Options{Ne: 10000, Err: 1e-3, GcErr: 1e-3, GcBp: 1000})
	require.NoError(t, err)
	return est, gm
}

func TestForwardOrderingAndBounds(t *testing.T) {
	est, gm := buildScenario(t, nil)
	focusPos := int64(300)
	anchorM := gm.ToMorgan(100)
	results, err := est.Forward(0, 1, anchorM, focusPos, []float64{0.1, 0.5, 0.9})
	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, r := range results {
		assert.Greater(t, r, focusPos)
		assert.LessOrEqual(t, r, int64(500))
	}
	assert.LessOrEqual(t, results[0], results[1])
	assert.LessOrEqual(t, results[1], results[2])
}

func TestBackwardOrderingAndBounds(t *testing.T) {
	est, gm := buildScenario(t, nil)
	focusPos := int64(300)
	anchorM := gm.ToMorgan(500)
	results, err := est.Backward(0, 1, anchorM, focusPos, []float64{0.1, 0.5, 0.9})
	require.NoError(t, err)
	for _, r := range results {
		assert.Less(t, r, focusPos)
		assert.GreaterOrEqual(t, r, int64(100))
	}
}

func TestDiscordanceShortensForwardQuantile(t *testing.T) {
	est, gm := buildScenario(t, func(alleles []uint8, nHaps int) {
		// marker 3 (0-based, base 400, the first marker past the
		// focus), haplotype 1 differs.
		alleles[3*nHaps+1] = 1
	})
	focusPos := int64(300)
	anchorM := gm.ToMorgan(100)
	results, err := est.Forward(0, 1, anchorM, focusPos, []float64{0.5})
	require.NoError(t, err)
	assert.LessOrEqual(t, results[0], int64(400))
}

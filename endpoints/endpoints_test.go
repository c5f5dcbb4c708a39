package endpoints

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/browninglab/ibdends/genmap"
	"github.com/browninglab/ibdends/globalibs"
	"github.com/browninglab/ibdends/ibscounts"
	"github.com/browninglab/ibdends/ibslen"
	"github.com/browninglab/ibdends/markerframe"
	"github.com/browninglab/ibdends/quantile"
	"github.com/browninglab/ibdends/segment"
)

func buildEstimator(t *testing.T) (*quantile.Estimator, *genmap.Map) {
	t.Helper()
	nMarkers := 40
	nHaps := 6
	basePos := make([]int64, nMarkers)
	morganPos := make([]float64, nMarkers)
	nAlleles := make([]uint8, nMarkers)
	alleles := make([]uint8, nMarkers*nHaps)
	for m := 0; m < nMarkers; m++ {
		basePos[m] = int64(1000 * (m + 1))
		morganPos[m] = float64(m) * 0.001
		nAlleles[m] = 2
		for h := 0; h < nHaps; h++ {
			alleles[m*nHaps+h] = 0
		}
	}
	fwd, err := markerframe.New(basePos, morganPos, nAlleles, alleles, nHaps)
	require.NoError(t, err)
	bwd := fwd.Reverse()

	fwdCounts, err := ibscounts.Build(fwd, ibscounts.Options{LocalHaps: nHaps, MaxLocalCDF: 0.999, Seed: 11})
	require.NoError(t, err)
	bwdCounts := fwdCounts.Reverse()

	global, err := globalibs.Build(fwd, globalibs.Options{GlobalPos: 30, GlobalSegments: 12, GlobalQuantile: 0.9, GlobalFactor: 5, Seed: 11})
	require.NoError(t, err)

	fwdLen := ibslen.Build(fwd, fwdCounts, global)
	bwdLen := ibslen.Build(bwd, bwdCounts, global)

	cM := make([]float64, nMarkers)
	for m := range cM {
		cM[m] = float64(m) * 0.1
	}
	gm, err := genmap.New(basePos, cM)
	require.NoError(t, err)

	est, err := quantile.New(fwd, bwd, fwdLen, bwdLen, gm, quantile.Options{Ne: 10000, Err: 1e-3, GcErr: 1e-3, GcBp: 1000})
	require.NoError(t, err)
	return est, gm
}

func TestRefineConverges(t *testing.T) {
	est, gm := buildEstimator(t)
	seg := segment.Shared{Hap1: 0, Hap2: 1, BasePosStart: 5000, BasePosInclEnd: 30000}
	rng := rand.New(rand.NewSource(42))
	opts := Options{MaxIts: 10, MaxRelDiff: 1e-6, LengthQuantile: 0.05, Quantiles: []float64{0.1, 0.5, 0.9}, NumSamples: 2}

	res, err := Refine(est, gm, seg, rng, opts)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.FocusPos, seg.BasePosStart)
	assert.LessOrEqual(t, res.FocusPos, seg.BasePosInclEnd)
	assert.Len(t, res.FwdEnds, 1+len(opts.Quantiles)+opts.NumSamples)
	assert.Len(t, res.BwdEnds, 1+len(opts.Quantiles)+opts.NumSamples)
	for _, v := range res.FwdEnds {
		assert.Greater(t, v, res.FocusPos)
	}
	for _, v := range res.BwdEnds {
		assert.Less(t, v, res.FocusPos)
	}
}

func TestRefineRejectsBadOptions(t *testing.T) {
	est, gm := buildEstimator(t)
	seg := segment.Shared{Hap1: 0, Hap2: 1, BasePosStart: 5000, BasePosInclEnd: 30000}
	rng := rand.New(rand.NewSource(1))

	_, err := Refine(est, gm, seg, rng, Options{MaxIts: 0, MaxRelDiff: 1e-3, LengthQuantile: 0.05})
	assert.Error(t, err)
	_, err = Refine(est, gm, seg, rng, Options{MaxIts: 5, MaxRelDiff: 0, LengthQuantile: 0.05})
	assert.Error(t, err)
	_, err = Refine(est, gm, seg, rng, Options{MaxIts: 5, MaxRelDiff: 1e-3, LengthQuantile: 1.5})
	assert.Error(t, err)
}

func TestRefineClampsToSegmentBounds(t *testing.T) {
	est, gm := buildEstimator(t)
	// A narrow segment inside a much wider, entirely concordant frame:
	// with no discordance anywhere nearby, the model wants to extend
	// both endpoints well past the segment's own bounds, so clamping
	// has to intervene for every returned quantile, not just the
	// internal convergence probe.
	seg := segment.Shared{Hap1: 0, Hap2: 1, BasePosStart: 10000, BasePosInclEnd: 15000}
	rng := rand.New(rand.NewSource(3))
	opts := Options{MaxIts: 10, MaxRelDiff: 1e-9, LengthQuantile: 0.05, Quantiles: []float64{0.1, 0.5, 0.9, 0.99}, NumSamples: 3}

	res, err := Refine(est, gm, seg, rng, opts)
	require.NoError(t, err)
	for _, v := range res.FwdEnds {
		assert.LessOrEqual(t, v, seg.BasePosInclEnd)
	}
	for _, v := range res.BwdEnds {
		assert.GreaterOrEqual(t, v, seg.BasePosStart)
	}
}

func TestRefineFixFocusKeepsMidpoint(t *testing.T) {
	est, gm := buildEstimator(t)
	seg := segment.Shared{Hap1: 0, Hap2: 1, BasePosStart: 5000, BasePosInclEnd: 30000}
	rng := rand.New(rand.NewSource(7))
	opts := Options{MaxIts: 6, MaxRelDiff: 1e-9, LengthQuantile: 0.05, FixFocus: true, Quantiles: []float64{0.5}, NumSamples: 0}

	res, err := Refine(est, gm, seg, rng, opts)
	require.NoError(t, err)
	assert.Equal(t, (seg.BasePosStart+seg.BasePosInclEnd)/2, res.FocusPos)
}

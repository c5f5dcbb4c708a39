package globalibs

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/browninglab/ibdends/markerframe"
)

func denseFrame(t *testing.T, nMarkers, nHaps int, seed int64) *markerframe.Frame {
	t.Helper()
	basePos := make([]int64, nMarkers)
	morganPos := make([]float64, nMarkers)
	nAlleles := make([]uint8, nMarkers)
	alleles := make([]uint8, nMarkers*nHaps)
	r := rand.New(rand.NewSource(seed))
	for m := 0; m < nMarkers; m++ {
		basePos[m] = int64(m + 1)
		morganPos[m] = float64(m) * 0.001
		nAlleles[m] = 2
		for h := 0; h < nHaps; h++ {
			if r.Intn(2) == 1 {
				alleles[m*nHaps+h] = 1
			}
		}
	}
	f, err := markerframe.New(basePos, morganPos, nAlleles, alleles, nHaps)
	require.NoError(t, err)
	return f
}

func TestCdfMonotonicAndBounded(t *testing.T) {
	f := denseFrame(t, 200, 8, 42)
	model, err := Build(f, Options{GlobalPos: 20, GlobalSegments: 10, GlobalQuantile: 0.9, GlobalFactor: 5, Seed: 1})
	require.NoError(t, err)

	prev := 0.0
	xs := []float64{-1, 0, 0.01, 0.05, 0.1, 0.2, 1000}
	for _, x := range xs {
		c := model.Cdf(x)
		assert.GreaterOrEqual(t, c, 1.0/float64(model.NumLengths()))
		assert.LessOrEqual(t, c, float64(model.NumLengths()-1)/float64(model.NumLengths()))
		assert.GreaterOrEqual(t, c, prev)
		prev = c
	}
	assert.InDelta(t, float64(model.NumLengths()-1)/float64(model.NumLengths()), model.Cdf(1e9), 1e-9)
}

func TestBuildRejectsBadOptions(t *testing.T) {
	f := denseFrame(t, 50, 4, 1)
	_, err := Build(f, Options{GlobalPos: 0, GlobalSegments: 5, GlobalQuantile: 0.5, GlobalFactor: 1})
	assert.Error(t, err)
	_, err = Build(f, Options{GlobalPos: 5, GlobalSegments: 5, GlobalQuantile: 1.5, GlobalFactor: 1})
	assert.Error(t, err)
}

func TestMedianHelper(t *testing.T) {
	assert.Equal(t, 2.0, median([]float64{1, 2, 3}))
	assert.True(t, math.Abs(median([]float64{1, 2, 3, 4})-2.5) < 1e-12)
}

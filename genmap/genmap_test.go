package genmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToMorganInterpolates(t *testing.T) {
	m, err := New([]int64{100, 200, 300}, []float64{0, 1, 3})
	require.NoError(t, err)

	assert.InDelta(t, 0.0, m.ToCM(100), 1e-9)
	assert.InDelta(t, 0.5, m.ToCM(150), 1e-9)
	assert.InDelta(t, 1.0, m.ToCM(200), 1e-9)
	assert.InDelta(t, 2.0, m.ToCM(250), 1e-9)
	assert.InDelta(t, 0.01, m.ToMorgan(200), 1e-9)
}

func TestToMorganExtrapolates(t *testing.T) {
	m, err := New([]int64{100, 200, 300}, []float64{0, 1, 3})
	require.NoError(t, err)

	// Before the first anchor, extrapolate using the first segment's slope.
	assert.InDelta(t, -1.0, m.ToCM(0), 1e-9)
	// After the last anchor, extrapolate using the last segment's slope.
	assert.InDelta(t, 5.0, m.ToCM(400), 1e-9)
}

func TestNewRejectsBadInput(t *testing.T) {
	_, err := New([]int64{1, 2}, []float64{0})
	assert.Error(t, err)

	_, err = New([]int64{2, 1}, []float64{0, 1})
	assert.Error(t, err)
}

func TestMinSpacingFloor(t *testing.T) {
	m, err := New([]int64{1, 2, 3}, []float64{0, 0, 0})
	require.NoError(t, err)
	assert.Greater(t, m.anchors[1].cM, m.anchors[0].cM)
	assert.Greater(t, m.anchors[2].cM, m.anchors[1].cM)
}

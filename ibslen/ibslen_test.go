package ibslen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/browninglab/ibdends/globalibs"
	"github.com/browninglab/ibdends/ibscounts"
	"github.com/browninglab/ibdends/markerframe"
)

func buildFrame(t *testing.T, rows [][]uint8) *markerframe.Frame {
	t.Helper()
	nMarkers := len(rows)
	nHaps := len(rows[0])
	basePos := make([]int64, nMarkers)
	morganPos := make([]float64, nMarkers)
	nAlleles := make([]uint8, nMarkers)
	alleles := make([]uint8, 0, nMarkers*nHaps)
	for m, row := range rows {
		basePos[m] = int64(100 * (m + 1))
		morganPos[m] = float64(m) * 0.01
		nAlleles[m] = 2
		alleles = append(alleles, row...)
	}
	f, err := markerframe.New(basePos, morganPos, nAlleles, alleles, nHaps)
	require.NoError(t, err)
	return f
}

func buildTable(t *testing.T, rows [][]uint8) (*markerframe.Frame, *Table) {
	t.Helper()
	f := buildFrame(t, rows)
	counts, err := ibscounts.Build(f, ibscounts.Options{LocalHaps: len(rows[0]), MaxLocalCDF: 0.9, Seed: 3})
	require.NoError(t, err)
	global, err := globalibs.Build(f, globalibs.Options{GlobalPos: 20, GlobalSegments: 10, GlobalQuantile: 0.9, GlobalFactor: 5, Seed: 3})
	require.NoError(t, err)
	return f, Build(f, counts, global)
}

func TestFwdProbWithinLocalHorizon(t *testing.T) {
	_, tbl := buildTable(t, [][]uint8{
		{0, 0, 0, 0},
		{0, 0, 1, 1},
		{0, 1, 1, 1},
		{0, 0, 0, 1},
		{1, 0, 1, 0},
	})
	p := tbl.FwdProb(0, 1)
	assert.GreaterOrEqual(t, p, 0.0)
	assert.LessOrEqual(t, p, 1.0)
}

func TestFwdProbAtChromosomeEnd(t *testing.T) {
	m := [][]uint8{
		{0, 0, 0, 0},
		{0, 0, 0, 0},
		{0, 0, 0, 0},
	}
	f, tbl := buildTable(t, m)
	n := f.NumMarkers()
	assert.Equal(t, 1.0, tbl.FwdProb(n, n))
}

func TestFwdProbBeyondLocalHorizonFallsBackToGlobal(t *testing.T) {
	rows := make([][]uint8, 30)
	for i := range rows {
		// haplotype 1 diverges from haplotype 0 at marker 2 and
		// haplotype 2 at marker 4, so by marker 4 every pair has been
		// discordant, row 0 truncates there, and later queries take the
		// global fallback path.
		v := uint8(0)
		if i == 2 {
			v = 1
		}
		u := uint8(0)
		if i == 4 {
			u = 1
		}
		rows[i] = []uint8{0, v, u, 1}
	}
	f, tbl := buildTable(t, rows)
	p := tbl.FwdProb(0, f.NumMarkers())
	assert.GreaterOrEqual(t, p, 0.0)
	assert.LessOrEqual(t, p, 1.0)
}

func TestFwdProbNonNegative(t *testing.T) {
	_, tbl := buildTable(t, [][]uint8{
		{0, 0, 0, 0},
		{0, 1, 0, 1},
		{1, 1, 0, 0},
		{0, 0, 1, 1},
	})
	for s := 0; s < 4; s++ {
		for e := s; e <= 4; e++ {
			assert.GreaterOrEqual(t, tbl.FwdProb(s, e), 0.0, "s=%d e=%d", s, e)
		}
	}
}

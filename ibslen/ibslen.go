// Package ibslen combines ibscounts (local, exact pair counts) and
// globalibs (pooled, sampled tail distribution) into the per-(start,end)
// probability that a random haplotype pair is IBS on [s,e) and discordant
// at e. See spec.md §4.3.
package ibslen

import (
	"github.com/browninglab/ibdends/globalibs"
	"github.com/browninglab/ibdends/ibscounts"
	"github.com/browninglab/ibdends/markerframe"
)

// Table holds, for each start marker s, the prefix-of-discordance
// probability vector P[s], plus references to the counts/global models
// needed to answer queries that extend past ibscounts' horizon.
type Table struct {
	f      *markerframe.Frame
	counts *ibscounts.Table
	global *globalibs.Model

	rows [][]float64 // P[s], length RowLen(s) (+1 if end(s) == M)
}

// Build constructs the Table described in spec.md §4.3 from an already-
// built IbsCounts table and GlobalIbsProbs model sharing the same Frame.
func Build(f *markerframe.Frame, counts *ibscounts.Table, global *globalibs.Model) *Table {
	numMarkers := f.NumMarkers()
	n := counts.NumHaps()
	denom := 1.0 / (float64(n)*float64(n-1) + 1)

	rows := make([][]float64, numMarkers)
	for s := 0; s < numMarkers; s++ {
		end := counts.End(s)
		rowLen := end - s
		p := make([]float64, 0, rowLen+1)
		lastPairs := int64(n) * int64(n - 1)
		for m := s; m < end; m++ {
			c := counts.At(s, m-s)
			p = append(p, float64(lastPairs-c+1)*denom)
			lastPairs = c
		}
		if end == numMarkers {
			p = append(p, float64(lastPairs+1)*denom)
		}
		rows[s] = p
	}
	return &Table{f: f, counts: counts, global: global, rows: rows}
}

// FwdProb returns P(pair IBS on [s,e) and discordant at e), per spec.md
// §4.3's fwdProb query.
func (t *Table) FwdProb(s, e int) float64 {
	m := t.f.NumMarkers()
	if s == m && e == m {
		return 1
	}
	row := t.rows[s]
	if e-s < len(row) {
		return row[e-s]
	}
	if e == m {
		return 1 - t.global.Cdf(t.f.MorganPos(e-1)-t.f.MorganPos(s))
	}
	p1 := t.global.Cdf(t.f.MorganPos(e-1) - t.f.MorganPos(s))
	p2 := t.global.Cdf(t.f.MorganPos(e) - t.f.MorganPos(s))
	if p1 == p2 {
		return 0.5 / float64(t.global.NumLengths())
	}
	return p2 - p1
}

// Package genmap provides the base-pair-to-genetic-distance conversion
// that the core assumes is already available: a linearly interpolated
// map from base-pair position to centiMorgans, with the minimum
// intra-map spacing floor described in spec.md §6. Reading a PLINK-format
// map file is an external collaborator's job; this package only holds
// and interpolates already-decoded anchor points.
package genmap

import (
	"github.com/biogo/store/llrb"
	"github.com/pkg/errors"
)

// minSpacingCM is the floor enforced on the spacing between consecutive
// map anchors before conversion to Morgans, per spec.md §6.
const minSpacingCM = 1e-6

// anchor is one (basePos, cM) pair in the map, stored in an llrb.Tree
// keyed by basePos so ToMorgan can floor-search for the bracketing pair
// in O(log n), the same pattern bampair.ShardInfo uses to find the shard
// containing a given alignment position.
type anchor struct {
	basePos int64
	cM      float64
}

// Compare implements llrb.Comparable.
func (a anchor) Compare(c llrb.Comparable) int {
	b := c.(anchor)
	switch {
	case a.basePos < b.basePos:
		return -1
	case a.basePos > b.basePos:
		return 1
	default:
		return 0
	}
}

// Map is an immutable, shared base-pair-to-Morgan converter.
type Map struct {
	anchors []anchor
	tree    llrb.Tree
}

// New builds a Map from parallel basePos/cM anchor slices, which must be
// sorted by basePos and have equal, non-zero length. Anchors closer than
// minSpacingCM are pushed apart before conversion, mirroring the floor
// markerframe applies to Morgan spacing.
func New(basePos []int64, cM []float64) (*Map, error) {
	if len(basePos) == 0 || len(basePos) != len(cM) {
		return nil, errors.New("genmap: basePos and cM must be equal-length and non-empty")
	}
	for i := 1; i < len(basePos); i++ {
		if basePos[i] <= basePos[i-1] {
			return nil, errors.Errorf("genmap: basePos not strictly increasing at anchor %d", i)
		}
	}
	fixed := append([]float64(nil), cM...)
	for i := 1; i < len(fixed); i++ {
		if fixed[i] < fixed[i-1]+minSpacingCM {
			fixed[i] = fixed[i-1] + minSpacingCM
		}
	}
	m := &Map{anchors: make([]anchor, len(basePos))}
	for i := range basePos {
		a := anchor{basePos: basePos[i], cM: fixed[i]}
		m.anchors[i] = a
		m.tree.Insert(a)
	}
	return m, nil
}

// ToMorgan converts a base-pair position to Morgans (cM/100), linearly
// interpolating between the bracketing anchors. Positions before the
// first anchor or after the last are extrapolated using the nearest
// segment's slope.
func (m *Map) ToMorgan(basePos int64) float64 {
	return m.ToCM(basePos) / 100
}

// ToCM converts a base-pair position to centiMorgans.
func (m *Map) ToCM(basePos int64) float64 {
	n := len(m.anchors)
	if n == 1 {
		return m.anchors[0].cM
	}
	floor := m.tree.Floor(anchor{basePos: basePos})
	var lo, hi anchor
	switch {
	case floor == nil:
		// basePos is before the first anchor: extrapolate using the
		// first segment.
		lo, hi = m.anchors[0], m.anchors[1]
	default:
		lowAnchor := floor.(anchor)
		idx := m.indexOf(lowAnchor.basePos)
		if idx == n-1 {
			// basePos is at or after the last anchor: extrapolate using
			// the last segment.
			lo, hi = m.anchors[n-2], m.anchors[n-1]
		} else {
			lo, hi = m.anchors[idx], m.anchors[idx+1]
		}
	}
	frac := float64(basePos-lo.basePos) / float64(hi.basePos-lo.basePos)
	return lo.cM + frac*(hi.cM-lo.cM)
}

// indexOf does a binary search for the anchor with the given basePos.
// The anchors slice is sorted, so this is O(log n); a parallel map from
// basePos to index would cost more memory for no benefit at genetic-map
// sizes (tens of thousands of anchors).
func (m *Map) indexOf(basePos int64) int {
	lo, hi := 0, len(m.anchors)
	for lo < hi {
		mid := (lo + hi) / 2
		if m.anchors[mid].basePos < basePos {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// Package markerframe holds the immutable, shared input to every other
// component of the IBD endpoint estimator: a phased haplotype allele
// matrix, base-pair positions, and genetic (Morgan) positions for an
// ordered sequence of markers on one chromosome.
package markerframe

import (
	"github.com/pkg/errors"
)

// minSpacingMorgans is the floor enforced on the spacing between
// consecutive markers' genetic positions, per spec.md's MarkerFrame
// invariant.
const minSpacingMorgans = 1e-6

// Frame is an ordered sequence of M markers on one chromosome, holding H
// phased haplotypes. It is built once and is read-only for the rest of
// the run: every later component (IbsCounts, GlobalIbsProbs,
// IbsLengthProbs, QuantileEstimator) shares it by reference.
//
// Alleles are stored row-major, one row of H bytes per marker, for cache
// locality during the sequential per-marker scans in ibscounts and
// globalibs (see spec.md §9's flat-buffer re-architecture hint).
type Frame struct {
	nMarkers int
	nHaps    int

	basePos   []int64   // length nMarkers, strictly increasing
	morganPos []float64 // length nMarkers, non-decreasing, forward orientation
	nAlleles  []uint8   // length nMarkers, >= 2

	alleles []uint8 // nMarkers*nHaps, row-major: alleles[m*nHaps+h]

	reverse   *Frame // lazily built mirror; nil until Reverse() is called
	isReverse bool   // true if this Frame was itself built by Reverse
}

// New builds a Frame from already-decoded inputs. basePos and morganPos
// must have length nMarkers; basePos must be strictly increasing. The
// Frame's copy of morganPos is adjusted upward (monotonically) to enforce
// the minimum spacing floor; the caller's slice is not modified.
// alleles must have length nMarkers*nHaps with alleles[m*nHaps+h] in
// [0, nAlleles[m]).
func New(basePos []int64, morganPos []float64, nAlleles []uint8, alleles []uint8, nHaps int) (*Frame, error) {
	nMarkers := len(basePos)
	if len(morganPos) != nMarkers || len(nAlleles) != nMarkers {
		return nil, errors.New("markerframe: basePos, morganPos, and nAlleles must have equal length")
	}
	if len(alleles) != nMarkers*nHaps {
		return nil, errors.Errorf("markerframe: alleles has length %d, want %d (nMarkers*nHaps)", len(alleles), nMarkers*nHaps)
	}
	if nHaps < 2 {
		return nil, errors.New("markerframe: fewer than two haplotypes")
	}
	for m, n := range nAlleles {
		if n < 2 {
			return nil, errors.Errorf("markerframe: marker %d has nAlleles %d, want >= 2", m, n)
		}
	}
	for m := 1; m < nMarkers; m++ {
		if basePos[m] <= basePos[m-1] {
			return nil, errors.Errorf("markerframe: basePos not strictly increasing at marker %d", m)
		}
	}

	mp := make([]float64, nMarkers)
	copy(mp, morganPos)
	for m := 1; m < nMarkers; m++ {
		if mp[m] < mp[m-1]+minSpacingMorgans {
			mp[m] = mp[m-1] + minSpacingMorgans
		}
	}

	f := &Frame{
		nMarkers:  nMarkers,
		nHaps:     nHaps,
		basePos:   append([]int64(nil), basePos...),
		morganPos: mp,
		nAlleles:  append([]uint8(nil), nAlleles...),
		alleles:   append([]uint8(nil), alleles...),
	}
	return f, nil
}

// FilterByMaf drops every marker whose minor-allele frequency (one minus
// the frequency of its most common allele, which generalizes to markers
// with more than two alleles) is below minMaf, returning a new Frame
// over the surviving markers. minMaf<=0 returns f unchanged, per
// spec.md §6's "min-maf: minimum minor-allele frequency for retaining a
// marker".
func FilterByMaf(f *Frame, minMaf float64) (*Frame, error) {
	if minMaf <= 0 {
		return f, nil
	}
	var basePos []int64
	var morganPos []float64
	var nAlleles []uint8
	var alleles []uint8
	var counts [256]int
	for m := 0; m < f.nMarkers; m++ {
		for i := range counts[:f.nAlleles[m]] {
			counts[i] = 0
		}
		for h := 0; h < f.nHaps; h++ {
			counts[f.alleles[m*f.nHaps+h]]++
		}
		major := 0
		for _, c := range counts[:f.nAlleles[m]] {
			if c > major {
				major = c
			}
		}
		maf := 1 - float64(major)/float64(f.nHaps)
		if maf < minMaf {
			continue
		}
		basePos = append(basePos, f.basePos[m])
		morganPos = append(morganPos, f.morganPos[m])
		nAlleles = append(nAlleles, f.nAlleles[m])
		alleles = append(alleles, f.alleles[m*f.nHaps:(m+1)*f.nHaps]...)
	}
	return New(basePos, morganPos, nAlleles, alleles, f.nHaps)
}

// NumMarkers returns M.
func (f *Frame) NumMarkers() int { return f.nMarkers }

// NumHaps returns H.
func (f *Frame) NumHaps() int { return f.nHaps }

// NumAlleles returns the number of distinct allele values at marker m.
func (f *Frame) NumAlleles(m int) uint8 { return f.nAlleles[m] }

// BasePos returns the base-pair position of marker m.
func (f *Frame) BasePos(m int) int64 { return f.basePos[m] }

// MorganPos returns the forward genetic position of marker m, in Morgans.
func (f *Frame) MorganPos(m int) float64 { return f.morganPos[m] }

// Allele returns the allele value of haplotype h at marker m.
func (f *Frame) Allele(m, h int) uint8 { return f.alleles[m*f.nHaps+h] }

// FirstMorgan and LastMorgan return the genetic position of the first and
// last marker, used by globalibs to bound the random-focus sampling
// interval.
func (f *Frame) FirstMorgan() float64 { return f.morganPos[0] }
func (f *Frame) LastMorgan() float64  { return f.morganPos[f.nMarkers-1] }

// MidMorgan returns the genetic midpoint of the chromosome, used by
// globalibs to choose a sampling direction.
func (f *Frame) MidMorgan() float64 {
	return (f.morganPos[0] + f.morganPos[f.nMarkers-1]) / 2
}

// FirstMarkerPos and LastMarkerPos return the base-pair positions used to
// clamp incoming segment endpoints, per spec.md §6.
func (f *Frame) FirstMarkerPos() int64 { return f.basePos[0] }
func (f *Frame) LastMarkerPos() int64  { return f.basePos[f.nMarkers-1] }

// MarkerAtOrAfter returns the index of the first marker with BasePos >=
// pos, or NumMarkers() if none exists.
func (f *Frame) MarkerAtOrAfter(pos int64) int {
	lo, hi := 0, f.nMarkers
	for lo < hi {
		mid := (lo + hi) / 2
		if f.basePos[mid] < pos {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// MarkerAtOrAfterMorgan returns the index of the first marker with
// MorganPos >= p, or NumMarkers() if none exists.
func (f *Frame) MarkerAtOrAfterMorgan(p float64) int {
	lo, hi := 0, f.nMarkers
	for lo < hi {
		mid := (lo + hi) / 2
		if f.morganPos[mid] < p {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// MarkerAtOrBeforeMorgan returns the index of the last marker with
// MorganPos <= p, or -1 if none exists.
func (f *Frame) MarkerAtOrBeforeMorgan(p float64) int {
	lo, hi := 0, f.nMarkers
	for lo < hi {
		mid := (lo + hi) / 2
		if f.morganPos[mid] <= p {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo - 1
}

// Reverse returns the reverse-orientation mirror of f, building it on
// first use. revBase[i] = -fwdBase[M-1-i], revMorgan[i] =
// -fwdMorgan[M-1-i], and alleles/nAlleles are index-reversed; haplotype
// identity (column index h) is unchanged, since reversing direction does
// not reverse which sample a haplotype belongs to. Calling Reverse on an
// already-reversed Frame returns the original forward Frame: a
// reverse-of-reverse (the "build reverse markers twice"
// DataConsistencyError named in spec.md §7) is never built.
func (f *Frame) Reverse() *Frame {
	if f.reverse != nil {
		return f.reverse
	}
	if f.isReverse {
		return f
	}
	n := f.nMarkers
	r := &Frame{
		nMarkers:  n,
		nHaps:     f.nHaps,
		basePos:   make([]int64, n),
		morganPos: make([]float64, n),
		nAlleles:  make([]uint8, n),
		alleles:   make([]uint8, n*f.nHaps),
		isReverse: true,
	}
	for i := 0; i < n; i++ {
		src := n - 1 - i
		r.basePos[i] = -f.basePos[src]
		r.morganPos[i] = -f.morganPos[src]
		r.nAlleles[i] = f.nAlleles[src]
		copy(r.alleles[i*f.nHaps:(i+1)*f.nHaps], f.alleles[src*f.nHaps:(src+1)*f.nHaps])
	}
	r.reverse = f
	f.reverse = r
	return r
}

// isReverse marks a Frame built by Reverse, so a second call to Reverse
// on it is recognised as the disallowed reverse-of-reverse case and
// simply returns the original forward Frame instead of rebuilding.

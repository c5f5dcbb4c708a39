// Package globalibs estimates the pooled one-sided distribution of
// genetic distance from a random focus to the nearest discordance
// between a random pair of haplotypes, by Monte-Carlo sampling, with
// right-tail outlier filtering. See spec.md §4.2.
package globalibs

import (
	"math/rand"
	"sort"

	"github.com/pkg/errors"

	"github.com/browninglab/ibdends/markerframe"
)

// Options configures Build.
type Options struct {
	// GlobalPos is the number of random foci sampled.
	GlobalPos int
	// GlobalSegments is the number of haplotype-pair draws per focus.
	GlobalSegments int
	// GlobalQuantile and GlobalFactor define the outlier filter: a
	// position is dropped if its length at the GlobalQuantile rank
	// exceeds GlobalFactor times the median of those per-position ranks.
	GlobalQuantile float64
	GlobalFactor   float64
	// Seed is combined with the position index (Seed+i) to draw focus i,
	// per spec.md §4.2.
	Seed int64
}

// Model is the immutable, sorted pool of sampled one-sided IBS lengths,
// in Morgans, shared read-only by every worker for the run.
type Model struct {
	lengths []float64 // sorted ascending
}

// NumLengths returns the pool size, used by ibslen when two adjacent cdf
// evaluations are equal (spec.md §4.3's `0.5 / global.nLengths` case).
func (m *Model) NumLengths() int { return len(m.lengths) }

// Build runs the Monte-Carlo sampling and outlier filter described in
// spec.md §4.2 against f.
func Build(f *markerframe.Frame, opts Options) (*Model, error) {
	if opts.GlobalPos <= 0 || opts.GlobalSegments <= 0 {
		return nil, errors.New("globalibs: globalPos and globalSegments must be positive")
	}
	if opts.GlobalQuantile <= 0 || opts.GlobalQuantile >= 1 {
		return nil, errors.New("globalibs: globalQuantile must be in (0,1)")
	}
	if opts.GlobalFactor <= 0 {
		return nil, errors.New("globalibs: globalFactor must be positive")
	}

	idx := int(opts.GlobalQuantile * float64(opts.GlobalSegments))
	if idx >= opts.GlobalSegments {
		idx = opts.GlobalSegments - 1
	}

	perPosition := make([][]float64, opts.GlobalPos)
	tailValues := make([]float64, opts.GlobalPos)

	first, last, mid := f.FirstMorgan(), f.LastMorgan(), f.MidMorgan()
	nHaps := f.NumHaps()

	for i := 0; i < opts.GlobalPos; i++ {
		r := rand.New(rand.NewSource(opts.Seed + int64(i)))
		p := first + r.Float64()*(last-first)
		forward := p < mid

		lens := make([]float64, opts.GlobalSegments)
		for j := 0; j < opts.GlobalSegments; j++ {
			h1 := r.Intn(nHaps)
			h2 := r.Intn(nHaps - 1)
			if h2 >= h1 {
				h2++
			}
			lens[j] = oneSidedLength(f, p, h1, h2, forward)
		}
		sort.Float64s(lens)
		perPosition[i] = lens
		tailValues[i] = lens[idx]
	}

	med := median(append([]float64(nil), tailValues...))
	threshold := opts.GlobalFactor * med

	var pooled []float64
	for i, v := range tailValues {
		if v <= threshold {
			pooled = append(pooled, perPosition[i]...)
		}
	}
	sort.Float64s(pooled)
	if len(pooled) == 0 {
		return nil, errors.New("globalibs: all sampled positions were filtered out as outliers")
	}
	return &Model{lengths: pooled}, nil
}

// oneSidedLength measures, from genetic position p, the Morgan distance
// to the first discordance between haplotypes h1 and h2, in the given
// direction, or to the terminal marker if no discordance is found.
func oneSidedLength(f *markerframe.Frame, p float64, h1, h2 int, forward bool) float64 {
	if forward {
		for m := f.MarkerAtOrAfterMorgan(p); m < f.NumMarkers(); m++ {
			if f.Allele(m, h1) != f.Allele(m, h2) {
				return f.MorganPos(m) - p
			}
		}
		return f.LastMorgan() - p
	}
	for m := f.MarkerAtOrBeforeMorgan(p); m >= 0; m-- {
		if f.Allele(m, h1) != f.Allele(m, h2) {
			return p - f.MorganPos(m)
		}
	}
	return p - f.FirstMorgan()
}

func median(xs []float64) float64 {
	sort.Float64s(xs)
	n := len(xs)
	if n%2 == 1 {
		return xs[n/2]
	}
	return (xs[n/2-1] + xs[n/2]) / 2
}

// Cdf returns the empirical CDF of x: the fraction of sampled lengths
// <= x, with the returned rank clamped to [1, n-1] so the result never
// reaches 0 or 1 exactly, per spec.md §4.2.
func (m *Model) Cdf(x float64) float64 {
	n := len(m.lengths)
	// sort.Search finds the first index with lengths[i] > x, which is the
	// count of elements <= x (ties included).
	rank := sort.Search(n, func(i int) bool { return m.lengths[i] > x })
	if rank < 1 {
		rank = 1
	}
	if rank > n-1 {
		rank = n - 1
	}
	return float64(rank) / float64(n)
}

// Package quantile builds, for one candidate IBD pair and one focus
// point, a cumulative distribution over the position of the first
// discordance past the focus, and inverts it at requested probabilities.
// See spec.md §4.4.
package quantile

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/browninglab/ibdends/coalescent"
	"github.com/browninglab/ibdends/genmap"
	"github.com/browninglab/ibdends/ibslen"
	"github.com/browninglab/ibdends/markerframe"
)

// minRatio is MIN_RATIO from spec.md §4.4: the loop stops growing a CDF
// once a window's added mass falls below this fraction of the
// accumulated mass.
const minRatio = 1e-3

// rescaleThreshold is the numeric-stability rescale trigger.
const rescaleThreshold = 1e50

// Options holds the error-model and prior parameters shared by every
// query made against one Estimator.
type Options struct {
	Ne    float64 // coalescent effective population size
	Err   float64 // baseline per-site discordance rate inside an IBD segment
	GcErr float64 // per-site discordance rate within a gene-conversion tract
	GcBp  int64   // maximum gene-conversion tract length, in base pairs
}

// Estimator holds the forward and reverse sub-models needed to answer
// both forward and backward quantile queries for one chromosome. It is
// built once and shared read-only by every worker.
type Estimator struct {
	fwdFrame *markerframe.Frame
	bwdFrame *markerframe.Frame
	fwdLen   *ibslen.Table
	bwdLen   *ibslen.Table
	gmap     *genmap.Map
	opts     Options
}

// New builds an Estimator. bwdFrame and bwdLen must be the reverse
// (marker-index-reversed) counterparts of fwdFrame and fwdLen.
func New(fwdFrame, bwdFrame *markerframe.Frame, fwdLen, bwdLen *ibslen.Table, gmap *genmap.Map, opts Options) (*Estimator, error) {
	if opts.Ne <= 0 {
		return nil, errors.New("quantile: Ne must be positive")
	}
	if opts.Err <= 0 || opts.Err >= 1 {
		return nil, errors.New("quantile: err must be in (0,1)")
	}
	if opts.GcErr <= 0 || opts.GcErr >= 1 {
		return nil, errors.New("quantile: gcErr must be in (0,1)")
	}
	if opts.GcBp < 0 {
		return nil, errors.New("quantile: gcBp must be non-negative")
	}
	return &Estimator{fwdFrame: fwdFrame, bwdFrame: bwdFrame, fwdLen: fwdLen, bwdLen: bwdLen, gmap: gmap, opts: opts}, nil
}

// Forward computes the forward quantiles of the first discordance beyond
// focusPos at each probability in probs, given the Morgan position
// anchorM of the segment's other (already-fixed) endpoint.
func (e *Estimator) Forward(h1, h2 int, anchorM float64, focusPos int64, probs []float64) ([]int64, error) {
	return query(e.fwdFrame, e.fwdLen, e.opts, h1, h2, anchorM, e.gmap.ToMorgan(focusPos), focusPos, probs)
}

// Backward computes the backward quantiles symmetrically, by negating
// positions/Morgans and delegating to the forward machinery over the
// reverse Frame/Table, then negating the results back.
func (e *Estimator) Backward(h1, h2 int, anchorM float64, focusPos int64, probs []float64) ([]int64, error) {
	results, err := query(e.bwdFrame, e.bwdLen, e.opts, h1, h2, -anchorM, -e.gmap.ToMorgan(focusPos), -focusPos, probs)
	if err != nil {
		return nil, err
	}
	out := make([]int64, len(results))
	for i, r := range results {
		out[i] = -r
	}
	return out, nil
}

// discordance is one entry of the built CDF: the marker index and the
// accumulated (unnormalised-until-final-rescale) probability mass up to
// and including that marker.
type discordance struct {
	marker int
	value  float64
}

// query is the direction-agnostic CDF construction and inversion of
// spec.md §4.4, operating entirely in "forward" terms against whichever
// Frame/Table was handed to it (the real forward pair, or the reverse
// pair standing in for a backward query). focusM is the Morgan position
// of focusPos in the same orientation as frame.
func query(frame *markerframe.Frame, lenTable *ibslen.Table, opts Options, h1, h2 int, anchorM, focusM float64, focusPos int64, probs []float64) ([]int64, error) {
	m := frame.NumMarkers()
	cdfStart := frame.MarkerAtOrAfter(focusPos + 1)
	if cdfStart >= m {
		return nil, errors.Errorf("quantile: focus %d leaves no markers past it", focusPos)
	}

	entries, err := buildCDF(frame, lenTable, opts, h1, h2, anchorM, focusM, cdfStart)
	if err != nil {
		return nil, err
	}

	results := make([]int64, len(probs))
	for i, p := range probs {
		if !(p > 0) || !(p < 1) {
			return nil, errors.Errorf("quantile: invalid probability %v", p)
		}
		base, err := invert(frame, entries, opts.Ne, anchorM, focusM, focusPos, cdfStart, p)
		if err != nil {
			return nil, err
		}
		results[i] = base
	}
	return results, nil
}

// fwdDiscord returns the first marker >= from where h1 and h2 differ, or
// frame.NumMarkers() if no discordance is found before the chromosome
// end.
func fwdDiscord(frame *markerframe.Frame, h1, h2, from int) int {
	for mk := from; mk < frame.NumMarkers(); mk++ {
		if frame.Allele(mk, h1) != frame.Allele(mk, h2) {
			return mk
		}
	}
	return frame.NumMarkers()
}

// buildCDF runs the window-by-window CDF construction of spec.md §4.4,
// returning the non-baseline entries from marker cdfStart onward. The
// baseline entry cdf[cdfStart-1] = 0 is implicit (never stored); invert
// uses it, at the focus position, as the lower bracket whenever p falls
// at or below the first stored entry.
func buildCDF(frame *markerframe.Frame, lenTable *ibslen.Table, opts Options, h1, h2 int, anchorM, focusM float64, cdfStart int) ([]discordance, error) {
	m := frame.NumMarkers()
	F1, err := coalescent.F(focusM-anchorM, opts.Ne)
	if err != nil {
		return nil, err
	}

	next := fwdDiscord(frame, h1, h2, cdfStart)
	minNextDiscordPos := int64(1)<<62 // effectively +inf when next == m
	if next < m {
		minNextDiscordPos = frame.BasePos(next) + opts.GcBp
	}

	var entries []discordance
	constant := 1.0
	currentStart := cdfStart
	baseline := 0.0 // cdf[currentStart-1]

	for {
		cdfEnd := next + 1
		if cdfEnd > m {
			cdfEnd = m
		}
		windowStartValue := baseline
		prev := baseline
		for mk := currentStart; mk < cdfEnd; mk++ {
			F2, err := coalescent.F(frame.MorganPos(mk)-anchorM, opts.Ne)
			if err != nil {
				return nil, err
			}
			v := prev + (F2-F1)*lenTable.FwdProb(mk, next)*constant
			entries = append(entries, discordance{marker: mk, value: v})
			prev = v
			F1 = F2
		}
		last := prev

		terminated := cdfEnd == m
		if !terminated {
			addedMass := last - windowStartValue
			if addedMass < minRatio*last {
				terminated = true
			}
		}
		if terminated {
			rescaleEntries(entries, last)
			return entries, nil
		}

		if last > rescaleThreshold {
			rescaleEntries(entries, last)
			constant /= last
			last = 1
		}

		baseline = last
		currentStart = cdfEnd
		next = fwdDiscord(frame, h1, h2, currentStart)

		var rate float64
		if next >= m || frame.BasePos(next) >= minNextDiscordPos {
			rate = opts.Err
			if next < m {
				minNextDiscordPos = frame.BasePos(next) + opts.GcBp
			}
		} else {
			rate = opts.GcErr
		}
		constant *= rate / lenTable.FwdProb(currentStart, next)
	}
}

// rescaleEntries divides every accumulated value in entries by denom in
// place, used both for the final normalising rescale and for the
// numeric-stability rescale when the accumulated mass exceeds
// rescaleThreshold. F1 is deliberately left untouched by both rescales,
// per spec.md §9's Open Question: "preserve the existing behavior (F1
// untouched) unless a numerical property test fails."
func rescaleEntries(entries []discordance, denom float64) {
	if denom == 0 {
		return
	}
	for i := range entries {
		entries[i].value /= denom
	}
}

// invert performs the binary search and coalescent-scale interpolation
// of spec.md §4.4's quantile inversion step.
func invert(frame *markerframe.Frame, entries []discordance, ne, anchorM, focusM float64, focusPos int64, cdfStart int, p float64) (int64, error) {
	idx := sort.Search(len(entries), func(i int) bool { return entries[i].value >= p })
	if idx >= len(entries) {
		idx = len(entries) - 1
	}

	var lowMorgan, lowValue float64
	var lowBase int64
	if idx == 0 {
		lowMorgan, lowValue, lowBase = focusM, 0, focusPos
	} else {
		lowMorgan = frame.MorganPos(entries[idx-1].marker)
		lowValue = entries[idx-1].value
		lowBase = frame.BasePos(entries[idx-1].marker)
	}
	highMorgan := frame.MorganPos(entries[idx].marker)
	highValue := entries[idx].value
	highBase := frame.BasePos(entries[idx].marker)

	f1, err := coalescent.F(lowMorgan-anchorM, ne)
	if err != nil {
		return 0, err
	}
	f2, err := coalescent.F(highMorgan-anchorM, ne)
	if err != nil {
		return 0, err
	}

	var pp float64
	if highValue == lowValue {
		pp = f1
	} else {
		pp = f1 + (p-lowValue)/(highValue-lowValue)*(f2-f1)
	}
	if !(pp > 0) || !(pp < 1) {
		// Clamp to the open interval so InvF never sees an edge value
		// introduced by floating-point interpolation noise.
		if pp <= 0 {
			pp = 1e-300
		} else {
			pp = 1 - 1e-15
		}
	}
	xMorgan, err := coalescent.InvF(pp, ne)
	if err != nil {
		return 0, err
	}
	x := anchorM + xMorgan

	var base int64
	if highMorgan == lowMorgan {
		base = highBase
	} else {
		frac := (x - lowMorgan) / (highMorgan - lowMorgan)
		base = lowBase + int64(frac*float64(highBase-lowBase))
	}
	if base <= focusPos {
		base = focusPos + 1
	}
	return base, nil
}

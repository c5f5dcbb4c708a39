// Package endpoints implements the two-sided iterative refinement that
// turns one candidate SharedSegment into a focus position plus forward
// and backward endpoint quantile vectors. See spec.md §4.5.
package endpoints

import (
	"math/rand"

	"github.com/pkg/errors"

	"github.com/browninglab/ibdends/genmap"
	"github.com/browninglab/ibdends/quantile"
	"github.com/browninglab/ibdends/segment"
)

// Options configures Refine. Quantiles holds the Q user-requested
// quantiles; NumSamples is S, the count of additional independent
// uniform(0,1) draws appended after them, per spec.md §4.5's
// probability-vector convention.
type Options struct {
	MaxIts         int
	MaxRelDiff     float64
	FixFocus       bool
	LengthQuantile float64
	Quantiles      []float64
	NumSamples     int
}

// Result is the outcome of refining one segment: the final focus
// position and the full, length-(1+Q+S) forward/backward quantile
// vectors (index 0 is the internal convergence probe and is not meant
// for output).
type Result struct {
	FocusPos int64
	FwdEnds  []int64
	BwdEnds  []int64
}

// buildProbs assembles the probability vector described in spec.md
// §4.5: index 0 is the convergence probability, 1..Q are the
// user-requested quantiles, Q+1..Q+S are independent uniform draws from
// rng (drawn once, so repeated iterations query the same sampled
// slots).
func buildProbs(opts Options, rng *rand.Rand) []float64 {
	probs := make([]float64, 1+len(opts.Quantiles)+opts.NumSamples)
	probs[0] = opts.LengthQuantile
	copy(probs[1:], opts.Quantiles)
	for i := 0; i < opts.NumSamples; i++ {
		probs[1+len(opts.Quantiles)+i] = rng.Float64()
	}
	return probs
}

// Refine runs the two-sided refinement loop of spec.md §4.5 for one
// segment, using est to answer forward/backward quantile queries and
// gm to convert between base-pair and Morgan coordinates. rng must
// already be seeded per-segment (userSeed XOR hash(segment), per
// spec.md §4.6) so sampled draws are reproducible independent of thread
// count.
func Refine(est *quantile.Estimator, gm *genmap.Map, seg segment.Shared, rng *rand.Rand, opts Options) (Result, error) {
	if opts.MaxIts <= 0 {
		return Result{}, errors.New("endpoints: maxIts must be positive")
	}
	if opts.MaxRelDiff <= 0 {
		return Result{}, errors.New("endpoints: maxRelDiff must be positive")
	}
	if !(opts.LengthQuantile > 0) || !(opts.LengthQuantile < 1) {
		return Result{}, errors.New("endpoints: lengthQuantile must be in (0,1)")
	}

	probs := buildProbs(opts, rng)
	h1, h2 := seg.Hap1, seg.Hap2
	origStart, origEnd := seg.BasePosStart, seg.BasePosInclEnd
	startPos, endPos := origStart, origEnd
	focusPos := (startPos + endPos) / 2

	var fwdEndsInt, bwdEndsInt []int64
	unchangedRun := 0
	totalIts := 2 * opts.MaxIts

	for it := 0; it < totalIts && unchangedRun < 2; it++ {
		if it%2 == 0 {
			anchorM := gm.ToMorgan(startPos)
			ends, err := est.Forward(h1, h2, anchorM, focusPos, probs)
			if err != nil {
				return Result{}, errors.Wrap(err, "endpoints: forward quantile")
			}
			fwdEndsInt = ends
			newEnd := ends[0]
			if newEnd > origEnd {
				newEnd = origEnd
			}

			focusM := gm.ToMorgan(focusPos)
			endM := gm.ToMorgan(endPos)
			newEndM := gm.ToMorgan(newEnd)
			if unchanged(endM, newEndM, focusM, opts.MaxRelDiff) {
				unchangedRun++
				continue
			}
			unchangedRun = 0
			endPos = newEnd
			if !opts.FixFocus {
				focusPos = (startPos + endPos) / 2
			}
		} else {
			anchorM := gm.ToMorgan(endPos)
			ends, err := est.Backward(h1, h2, anchorM, focusPos, probs)
			if err != nil {
				return Result{}, errors.Wrap(err, "endpoints: backward quantile")
			}
			bwdEndsInt = ends
			newStart := ends[0]
			if newStart < origStart {
				newStart = origStart
			}

			focusM := gm.ToMorgan(focusPos)
			startM := gm.ToMorgan(startPos)
			newStartM := gm.ToMorgan(newStart)
			if unchanged(startM, newStartM, focusM, opts.MaxRelDiff) {
				unchangedRun++
				continue
			}
			unchangedRun = 0
			startPos = newStart
			if !opts.FixFocus {
				focusPos = (startPos + endPos) / 2
			}
		}
	}
	if fwdEndsInt == nil || bwdEndsInt == nil {
		// maxIts was too small to complete even one pass on each side;
		// fall back to direct queries from the final state so callers
		// always receive full-length vectors.
		if fwdEndsInt == nil {
			ends, err := est.Forward(h1, h2, gm.ToMorgan(startPos), focusPos, probs)
			if err != nil {
				return Result{}, errors.Wrap(err, "endpoints: forward quantile")
			}
			fwdEndsInt = ends
		}
		if bwdEndsInt == nil {
			ends, err := est.Backward(h1, h2, gm.ToMorgan(endPos), focusPos, probs)
			if err != nil {
				return Result{}, errors.Wrap(err, "endpoints: backward quantile")
			}
			bwdEndsInt = ends
		}
	}

	clampEnds(fwdEndsInt, origEnd, false)
	clampEnds(bwdEndsInt, origStart, true)

	return Result{FocusPos: focusPos, FwdEnds: fwdEndsInt, BwdEnds: bwdEndsInt}, nil
}

// clampEnds enforces spec.md §8's IbdEnds clamping property in place:
// every forward endpoint must be <= the segment's original inclusive
// end, and every backward endpoint must be >= the segment's original
// start, regardless of which probability slot produced it.
func clampEnds(ends []int64, bound int64, isLowerBound bool) {
	for i, e := range ends {
		if isLowerBound {
			if e < bound {
				ends[i] = bound
			}
		} else if e > bound {
			ends[i] = bound
		}
	}
}

// unchanged reports whether moving an endpoint from oldM to newM (both
// in Morgans, measured from focusM) is within maxRelDiff of its prior
// genetic length, per spec.md §4.5's convergence test.
func unchanged(oldM, newM, focusM, maxRelDiff float64) bool {
	denom := oldM - focusM
	if denom == 0 {
		return false
	}
	diff := (newM - focusM) - denom
	if diff < 0 {
		diff = -diff
	}
	if denom < 0 {
		denom = -denom
	}
	return diff/denom < maxRelDiff
}

// Package coalescent implements the coalescent-based IBD segment length
// prior used by quantile: F(y;Ne) is the prior probability that an IBD
// segment containing a focal point ends within y Morgans, given a
// constant effective population size Ne. See spec.md §4.4.
//
// Both functions are pure and kept branch-free except for domain checks,
// per spec.md §9's re-architecture hint to centralise this math.
package coalescent

import (
	"math"

	"github.com/pkg/errors"
)

// F returns 1 - 1/(2*Ne*expm1(2y)+1) for y > 0.
func F(y, ne float64) (float64, error) {
	if !(ne > 0) || math.IsNaN(ne) || math.IsInf(ne, 0) {
		return 0, errors.Errorf("coalescent: invalid Ne %v", ne)
	}
	if !(y > 0) || math.IsNaN(y) {
		return 0, errors.Errorf("coalescent: invalid y %v", y)
	}
	return 1 - 1/(2*ne*math.Expm1(2*y)+1), nil
}

// InvF returns the inverse of F: 0.5*log((p+d)/d) with d = 2*Ne*(1-p).
func InvF(p, ne float64) (float64, error) {
	if !(ne > 0) || math.IsNaN(ne) || math.IsInf(ne, 0) {
		return 0, errors.Errorf("coalescent: invalid Ne %v", ne)
	}
	if !(p > 0) || !(p < 1) || math.IsNaN(p) {
		return 0, errors.Errorf("coalescent: invalid probability %v", p)
	}
	d := 2 * ne * (1 - p)
	return 0.5 * math.Log((p+d)/d), nil
}

package pipeline

import (
	"github.com/pkg/errors"
)

// blockSize is BLOCK_SIZE from spec.md §4.6: the number of input lines
// grouped into one unit of reader/worker/writer work.
const blockSize = 10000

// baosThreshold is BAOS_THRESHOLD from spec.md §4.6: a worker flushes its
// compression buffer once it holds at least this many bytes.
const baosThreshold = 1 << 18

// maxLocalHapsCap mirrors ibscounts.MaxLocalHaps; repeated here so
// Config.Validate can give a ConfigurationError without importing
// ibscounts just for the constant.
const maxLocalHapsCap = 40000

// Config collects every option spec.md §6's configuration table names.
// Validate turns out-of-range or nonsensical combinations into the
// ConfigurationError spec.md §7 describes.
type Config struct {
	Quantiles      []float64 // requested endpoint quantiles, 0<q<1
	NumSamples     int       // nsamples: extra sampled-endpoint draws per segment
	NumThreads     int       // nthreads: worker pool size
	Err            float64   // baseline per-site discordance rate inside IBD
	EstimateErr    bool      // estimate-err
	GcErr          float64   // gc-err
	GcBp           int64     // gc-bp
	MinMaf         float64   // min-maf
	Seed           int64     // deterministic RNG seed
	Ne             float64   // coalescent effective population size
	LocalHaps      int       // local-haps, capped at 40000
	GlobalPos      int       // global-pos
	GlobalSegments int       // global-segments
	GlobalQuantile float64   // global-quantile
	GlobalFactor   float64   // global-factor
	MaxLocalCDF    float64   // max-local-cdf
	MaxIts         int       // max-its
	FixFocus       bool      // fix-focus
	LengthQuantile float64   // length-quantile
	MaxRelDiff     float64   // max-diff
	Chrom          string    // chromosome the input MarkerFrame covers
}

// Validate checks every Config field against the range spec.md §6
// implies for it, returning a ConfigurationError-flavored error
// describing the first violation found.
func (c Config) Validate() error {
	for i, q := range c.Quantiles {
		if !(q > 0) || !(q < 1) {
			return errors.Errorf("pipeline: quantiles[%d]=%v must be in (0,1)", i, q)
		}
	}
	if c.NumSamples < 0 {
		return errors.New("pipeline: nsamples must be non-negative")
	}
	if c.NumThreads < 1 {
		return errors.New("pipeline: nthreads must be >= 1")
	}
	if !(c.Err > 0) || !(c.Err < 1) {
		return errors.New("pipeline: err must be in (0,1)")
	}
	if !(c.GcErr > 0) || !(c.GcErr < 1) {
		return errors.New("pipeline: gc-err must be in (0,1)")
	}
	if c.GcBp < 0 {
		return errors.New("pipeline: gc-bp must be non-negative")
	}
	if c.MinMaf < 0 || c.MinMaf >= 0.5 {
		return errors.New("pipeline: min-maf must be in [0,0.5)")
	}
	if !(c.Ne > 0) {
		return errors.New("pipeline: ne must be positive")
	}
	if c.LocalHaps < 2 || c.LocalHaps > maxLocalHapsCap {
		return errors.Errorf("pipeline: local-haps must be in [2,%d]", maxLocalHapsCap)
	}
	if c.GlobalPos <= 0 {
		return errors.New("pipeline: global-pos must be positive")
	}
	if c.GlobalSegments <= 0 {
		return errors.New("pipeline: global-segments must be positive")
	}
	if !(c.GlobalQuantile > 0) || !(c.GlobalQuantile < 1) {
		return errors.New("pipeline: global-quantile must be in (0,1)")
	}
	if !(c.GlobalFactor > 0) {
		return errors.New("pipeline: global-factor must be positive")
	}
	if !(c.MaxLocalCDF > 0) || !(c.MaxLocalCDF < 1) {
		return errors.New("pipeline: max-local-cdf must be in (0,1)")
	}
	if c.MaxIts <= 0 {
		return errors.New("pipeline: max-its must be positive")
	}
	if !(c.LengthQuantile > 0) || !(c.LengthQuantile < 1) {
		return errors.New("pipeline: length-quantile must be in (0,1)")
	}
	if !(c.MaxRelDiff > 0) {
		return errors.New("pipeline: max-diff must be positive")
	}
	if c.Chrom == "" {
		return errors.New("pipeline: chromosome must be set")
	}
	return nil
}

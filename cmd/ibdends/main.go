// Command ibdends estimates IBD segment endpoints: given a haplotype
// source, a genetic map, and a stream of candidate segments, it refines
// each segment's endpoints and reports quantiles of their uncertainty,
// per spec.md.
package main

import (
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/pkg/errors"
	"v.io/x/lib/cmdline"

	"github.com/browninglab/ibdends/markerframe"
	"github.com/browninglab/ibdends/pipeline"
)

type flags struct {
	haps    *string
	genmap  *string
	segs    *string
	out     *string
	chrom   *string
	quants  *string
	samples *int

	nthreads  *int
	err       *float64
	estErr    *bool
	gcErr     *float64
	gcBp      *int64
	minMaf    *float64
	seed      *int64
	ne        *float64
	localHaps *int

	globalPos      *int
	globalSegments *int
	globalQuantile *float64
	globalFactor   *float64
	maxLocalCDF    *float64

	maxIts         *int
	fixFocus       *bool
	lengthQuantile *float64
	maxDiff        *float64
}

func newRootCmd() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:  "ibdends",
		Short: "Estimate IBD segment endpoint uncertainty",
	}
	fl := flags{
		haps:           cmd.Flags.String("haps", "", "Path to the decoded haplotype source"),
		genmap:         cmd.Flags.String("genmap", "", "Path to the decoded genetic map"),
		segs:           cmd.Flags.String("segments", "", "Path to the input segment stream (default stdin)"),
		out:            cmd.Flags.String("out", "", "Path to the output stream (default stdout)"),
		chrom:          cmd.Flags.String("chrom", "", "Chromosome name the haplotype source and segments cover"),
		quants:         cmd.Flags.String("quantiles", "0.5", "Comma-separated list of requested endpoint quantiles"),
		samples:        cmd.Flags.Int("nsamples", 0, "Additional independent sampled endpoint draws per segment"),
		nthreads:       cmd.Flags.Int("nthreads", 1, "Worker pool size"),
		err:            cmd.Flags.Float64("err", 1e-3, "Baseline per-site discordance rate inside an IBD segment"),
		estErr:         cmd.Flags.Bool("estimate-err", false, "Compute the aggregate discordance rate"),
		gcErr:          cmd.Flags.Float64("gc-err", 1e-3, "Per-site discordance rate within a gene-conversion tract"),
		gcBp:           cmd.Flags.Int64("gc-bp", 1000, "Maximum gene-conversion tract length, in base pairs"),
		minMaf:         cmd.Flags.Float64("min-maf", 0, "Minimum minor-allele frequency for retaining a marker"),
		seed:           cmd.Flags.Int64("seed", 1, "Deterministic RNG seed"),
		ne:             cmd.Flags.Float64("ne", 10000, "Constant effective population size"),
		localHaps:      cmd.Flags.Int("local-haps", 1000, "Cap on haplotypes sampled for IbsCounts (<= 40000)"),
		globalPos:      cmd.Flags.Int("global-pos", 1000, "Number of random foci sampled for GlobalIbsProbs"),
		globalSegments: cmd.Flags.Int("global-segments", 100, "Pair draws per focus"),
		globalQuantile: cmd.Flags.Float64("global-quantile", 0.9, "Outlier-filter quantile for GlobalIbsProbs"),
		globalFactor:   cmd.Flags.Float64("global-factor", 5, "Outlier-filter factor for GlobalIbsProbs"),
		maxLocalCDF:    cmd.Flags.Float64("max-local-cdf", 0.999, "Threshold fraction at which IbsCounts truncation stops"),
		maxIts:         cmd.Flags.Int("max-its", 10, "Per-side iteration cap for endpoint refinement"),
		fixFocus:       cmd.Flags.Bool("fix-focus", false, "Do not recompute the midpoint focus between iterations"),
		lengthQuantile: cmd.Flags.Float64("length-quantile", 0.05, "Convergence probability used internally by refinement"),
		maxDiff:        cmd.Flags.Float64("max-diff", 1e-3, "Relative-change tolerance that declares an endpoint converged"),
	}
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		return run(fl)
	})
	return cmd
}

func parseQuantiles(s string) ([]float64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, errors.Wrapf(err, "ibdends: malformed quantile %q", p)
		}
		out[i] = v
	}
	return out, nil
}

func toConfig(fl flags, quantiles []float64) pipeline.Config {
	return pipeline.Config{
		Quantiles:      quantiles,
		NumSamples:     *fl.samples,
		NumThreads:     *fl.nthreads,
		Err:            *fl.err,
		EstimateErr:    *fl.estErr,
		GcErr:          *fl.gcErr,
		GcBp:           *fl.gcBp,
		MinMaf:         *fl.minMaf,
		Seed:           *fl.seed,
		Ne:             *fl.ne,
		LocalHaps:      *fl.localHaps,
		GlobalPos:      *fl.globalPos,
		GlobalSegments: *fl.globalSegments,
		GlobalQuantile: *fl.globalQuantile,
		GlobalFactor:   *fl.globalFactor,
		MaxLocalCDF:    *fl.maxLocalCDF,
		MaxIts:         *fl.maxIts,
		FixFocus:       *fl.fixFocus,
		LengthQuantile: *fl.lengthQuantile,
		MaxRelDiff:     *fl.maxDiff,
		Chrom:          *fl.chrom,
	}
}

func run(fl flags) (err error) {
	if *fl.haps == "" || *fl.genmap == "" || *fl.chrom == "" {
		return errors.New("ibdends: -haps, -genmap, and -chrom are required")
	}
	quantiles, err := parseQuantiles(*fl.quants)
	if err != nil {
		return err
	}
	cfg := toConfig(fl, quantiles)
	if err := cfg.Validate(); err != nil {
		return err
	}

	log.Debug.Printf("loading haplotype source from %s", *fl.haps)
	frame, samples, err := NewTextHaplotypeSource(*fl.haps).Load()
	if err != nil {
		return err
	}
	preFilter := frame.NumMarkers()
	frame, err = markerframe.FilterByMaf(frame, cfg.MinMaf)
	if err != nil {
		return err
	}
	if dropped := preFilter - frame.NumMarkers(); dropped > 0 {
		log.Debug.Printf("min-maf %v dropped %d of %d markers", cfg.MinMaf, dropped, preFilter)
	}
	log.Debug.Printf("loading genetic map from %s", *fl.genmap)
	gm, err := NewTextGeneticMapSource(*fl.genmap).Load()
	if err != nil {
		return err
	}

	est, err := wireEstimator(frame, gm, cfg)
	if err != nil {
		return err
	}

	driver, err := pipeline.NewDriver(frame, est, gm, pipeline.NewSampleTable(samples), cfg)
	if err != nil {
		return err
	}

	ctx := vcontext.Background()

	var in io.Reader
	if *fl.segs == "" {
		in = os.Stdin
	} else {
		f, openErr := file.Open(ctx, *fl.segs)
		if openErr != nil {
			return errors.Wrap(openErr, "ibdends: open segment stream")
		}
		defer file.CloseAndReport(ctx, f, &err)
		in = f.Reader(ctx)
	}

	var outWriter io.Writer
	if *fl.out == "" {
		outWriter = os.Stdout
	} else {
		f, createErr := file.Create(ctx, *fl.out)
		if createErr != nil {
			return errors.Wrap(createErr, "ibdends: create output stream")
		}
		defer file.CloseAndReport(ctx, f, &err)
		outWriter = f.Writer(ctx)
	}

	if err := driver.Run(in, outWriter); err != nil {
		return err
	}

	if rate, ok := driver.Stats.ErrorRate(); ok {
		log.Debug.Printf("aggregate discordance rate: %v", rate)
	}
	log.Debug.Printf("markers: %d samples: %d segments processed: %d",
		driver.Stats.Markers(), driver.Stats.Samples(), driver.Stats.Segments())
	return nil
}

func main() {
	cleanup := grail.Init()
	defer cleanup()
	cmdline.HideGlobalFlagsExcept()
	cmdline.Main(newRootCmd())
}

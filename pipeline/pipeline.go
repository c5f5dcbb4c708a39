// Package pipeline implements the reader/worker/writer driver of
// spec.md §4.6: it reads segment records in blocks, refines each
// segment's endpoints in parallel, accumulates run statistics, and
// writes ordered, compressed output blocks.
package pipeline

import (
	"bufio"
	"fmt"
	"io"
	"math/rand"
	"strings"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"

	"github.com/browninglab/ibdends/endpoints"
	"github.com/browninglab/ibdends/genmap"
	"github.com/browninglab/ibdends/ibdstats"
	"github.com/browninglab/ibdends/markerframe"
	"github.com/browninglab/ibdends/quantile"
	"github.com/browninglab/ibdends/segment"
)

// minDiscordanceMorgans is the 0.02-Morgan floor spec.md §4.6 places on
// an interval before its discordance statistics are folded in.
const minDiscordanceMorgans = 0.02

// Driver owns the immutable, run-wide models shared read-only by every
// worker, plus the Config and stats collector for one pipeline run.
type Driver struct {
	Frame     *markerframe.Frame
	Estimator *quantile.Estimator
	GenMap    *genmap.Map
	Samples   segment.SampleResolver
	Config    Config
	Stats     *ibdstats.Collector
}

// NewDriver validates cfg and returns a Driver ready for Run.
func NewDriver(frame *markerframe.Frame, est *quantile.Estimator, gm *genmap.Map, samples segment.SampleResolver, cfg Config) (*Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Driver{
		Frame:     frame,
		Estimator: est,
		GenMap:    gm,
		Samples:   samples,
		Config:    cfg,
		Stats:     ibdstats.New(cfg.EstimateErr),
	}, nil
}

// block is one unit of reader/worker work: up to blockSize raw input
// lines.
type block struct {
	lines []string
}

// Run reads whitespace-delimited segment records from r, refines each
// one's endpoints, and writes compressed output blocks to w. It returns
// the first fatal error encountered by any worker (funneled through a
// single process-level abort path, per spec.md §5/§7); unknown-sample or
// unknown-chromosome records are skipped silently instead of aborting.
func (d *Driver) Run(r io.Reader, w io.Writer) error {
	d.Stats.AddMarkers(int64(d.Frame.NumMarkers()))
	d.Stats.AddSamples(int64(d.Frame.NumHaps() / 2))

	writer := newSharedWriter(w)
	blocks := make(chan block, 2*d.Config.NumThreads)
	var abort errors.Once

	var readerWg sync.WaitGroup
	readerWg.Add(1)
	go func() {
		defer readerWg.Done()
		defer close(blocks)
		if err := readBlocks(r, blocks); err != nil {
			abort.Set(err)
		}
	}()

	var workerWg sync.WaitGroup
	for i := 0; i < d.Config.NumThreads; i++ {
		workerWg.Add(1)
		go func() {
			defer workerWg.Done()
			sink := newBlockSink(writer)
			for b := range blocks {
				for _, line := range b.lines {
					if err := d.processLine(line, sink); err != nil {
						abort.Set(err)
						// Keep draining so the reader never blocks on a
						// full channel once every worker has failed.
						for range blocks {
						}
						return
					}
				}
			}
			if err := sink.Flush(); err != nil {
				abort.Set(err)
			}
		}()
	}

	readerWg.Wait()
	workerWg.Wait()
	return abort.Err()
}

// readBlocks scans r line by line, grouping lines into blocks of
// blockSize and sending each completed block downstream.
func readBlocks(r io.Reader, out chan<- block) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var cur block
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		cur.lines = append(cur.lines, line)
		if len(cur.lines) >= blockSize {
			out <- cur
			cur = block{}
		}
	}
	if len(cur.lines) > 0 {
		out <- cur
	}
	return scanner.Err()
}

// processLine parses, refines, and serialises one input line, writing
// the result into sink. Unknown sample/chromosome records are logged
// and skipped, per spec.md §7's one non-fatal short-circuit case.
func (d *Driver) processLine(line string, sink *blockSink) error {
	seg, err := segment.ParseLine(line, d.Samples, d.Config.Chrom)
	if err != nil {
		var unk *segment.UnknownRecordError
		if asUnknownRecord(err, &unk) {
			log.Debug.Printf("pipeline: skipping unknown record: %v", err)
			return nil
		}
		return errors.E(err, "pipeline: malformed segment record")
	}
	clamped := seg.Clamp(d.Frame.FirstMarkerPos(), d.Frame.LastMarkerPos())

	rng := rand.New(rand.NewSource(d.Config.Seed ^ int64(clamped.Hash())))
	opts := endpoints.Options{
		MaxIts:         d.Config.MaxIts,
		MaxRelDiff:     d.Config.MaxRelDiff,
		FixFocus:       d.Config.FixFocus,
		LengthQuantile: d.Config.LengthQuantile,
		Quantiles:      d.Config.Quantiles,
		NumSamples:     d.Config.NumSamples,
	}
	res, err := endpoints.Refine(d.Estimator, d.GenMap, clamped, rng, opts)
	if err != nil {
		return errors.E(err, "pipeline: endpoint refinement")
	}

	if d.Config.EstimateErr {
		fwdEnd, bwdEnd := res.FwdEnds[0], res.BwdEnds[0]
		if morgans := d.GenMap.ToMorgan(fwdEnd) - d.GenMap.ToMorgan(bwdEnd); morgans >= minDiscordanceMorgans {
			discordant, examined := d.countDiscordance(clamped.Hap1, clamped.Hap2, bwdEnd, fwdEnd)
			d.Stats.AddDiscordance(clamped.Hap1, clamped.Hap2, d.Config.Chrom, discordant, examined)
		}
	}
	d.Stats.AddSegment()

	return sink.Write([]byte(serialize(*seg, res, d.GenMap, len(d.Config.Quantiles)+d.Config.NumSamples)))
}

// countDiscordance tallies mismatches between haplotypes h1 and h2 over
// the markers spanning [bwdEnd, fwdEnd], feeding spec.md §4.6's
// estimate-err numerator/denominator.
func (d *Driver) countDiscordance(h1, h2 int, bwdEnd, fwdEnd int64) (discordant, examined int64) {
	start := d.Frame.MarkerAtOrAfter(bwdEnd)
	end := d.Frame.MarkerAtOrAfter(fwdEnd + 1)
	for m := start; m < end; m++ {
		examined++
		if d.Frame.Allele(m, h1) != d.Frame.Allele(m, h2) {
			discordant++
		}
	}
	return discordant, examined
}

// serialize renders the original segment, the focus position, and the
// Q+S (start,end,cM) triples (dropping index 0, the internal
// convergence probe), per spec.md §6's output description.
func serialize(seg segment.Shared, res endpoints.Result, gm *genmap.Map, n int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d %d %d %d %d", seg.Hap1, seg.Hap2, seg.BasePosStart, seg.BasePosInclEnd, res.FocusPos)
	for i := 1; i <= n; i++ {
		start, end := res.BwdEnds[i], res.FwdEnds[i]
		cm := 100 * (gm.ToMorgan(end) - gm.ToMorgan(start))
		fmt.Fprintf(&sb, " %d %d %g", start, end, cm)
	}
	sb.WriteString("\n")
	return sb.String()
}

// asUnknownRecord reports whether err is a *segment.UnknownRecordError,
// writing it into *target on success. ParseLine never wraps this error
// type further, so a direct assertion is enough.
func asUnknownRecord(err error, target **segment.UnknownRecordError) bool {
	u, ok := err.(*segment.UnknownRecordError)
	if !ok {
		return false
	}
	*target = u
	return true
}

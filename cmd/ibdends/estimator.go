package main

import (
	"github.com/browninglab/ibdends/genmap"
	"github.com/browninglab/ibdends/globalibs"
	"github.com/browninglab/ibdends/ibscounts"
	"github.com/browninglab/ibdends/ibslen"
	"github.com/browninglab/ibdends/markerframe"
	"github.com/browninglab/ibdends/pipeline"
	"github.com/browninglab/ibdends/quantile"
)

// wireEstimator builds the forward and reverse IbsCounts tables, the
// chromosome-wide GlobalIbsProbs model, and the forward/backward
// IbsLengthProbs tables that together back one quantile.Estimator, per
// spec.md §4's model-building pipeline. It runs once per chromosome and
// is shared read-only by every pipeline worker.
func wireEstimator(frame *markerframe.Frame, gm *genmap.Map, cfg pipeline.Config) (*quantile.Estimator, error) {
	bwdFrame := frame.Reverse()

	fwdCounts, err := ibscounts.Build(frame, ibscounts.Options{
		LocalHaps:   cfg.LocalHaps,
		MaxLocalCDF: cfg.MaxLocalCDF,
		Seed:        cfg.Seed,
		NumWorkers:  cfg.NumThreads,
	})
	if err != nil {
		return nil, err
	}
	bwdCounts := fwdCounts.Reverse()

	global, err := globalibs.Build(frame, globalibs.Options{
		GlobalPos:      cfg.GlobalPos,
		GlobalSegments: cfg.GlobalSegments,
		GlobalQuantile: cfg.GlobalQuantile,
		GlobalFactor:   cfg.GlobalFactor,
		Seed:           cfg.Seed,
	})
	if err != nil {
		return nil, err
	}

	fwdLen := ibslen.Build(frame, fwdCounts, global)
	bwdLen := ibslen.Build(bwdFrame, bwdCounts, global)

	return quantile.New(frame, bwdFrame, fwdLen, bwdLen, gm, quantile.Options{
		Ne:    cfg.Ne,
		Err:   cfg.Err,
		GcErr: cfg.GcErr,
		GcBp:  cfg.GcBp,
	})
}

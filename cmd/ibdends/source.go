package main

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/browninglab/ibdends/genmap"
	"github.com/browninglab/ibdends/markerframe"
	"github.com/browninglab/ibdends/pipeline"
)

// HaplotypeSource loads an already-phased, already-decoded marker
// matrix plus the sample names in haplotype order. Reading a real VCF
// or PLINK file is an external collaborator's job (spec.md §1); this
// interface is the minimal boundary the core package set needs from
// whatever does that decoding.
type HaplotypeSource interface {
	Load() (*markerframe.Frame, []string, error)
}

// GeneticMapSource loads an already-decoded base-pair/cM anchor list.
// Parsing a PLINK map file is likewise an external collaborator's job.
type GeneticMapSource interface {
	Load() (*genmap.Map, error)
}

// textHaplotypeSource reads the minimal whitespace interchange format
// this binary accepts in place of a real VCF/PLINK decoder: a header
// line of sample names, then one line per marker of "basePos morganPos
// nAlleles allele0 allele1 ...".
type textHaplotypeSource struct{ path string }

// NewTextHaplotypeSource returns a HaplotypeSource reading the minimal
// interchange format described on textHaplotypeSource.
func NewTextHaplotypeSource(path string) HaplotypeSource {
	return &textHaplotypeSource{path: path}
}

func (s *textHaplotypeSource) Load() (*markerframe.Frame, []string, error) {
	f, err := pipeline.NewMmapReader(s.path)
	if err != nil {
		return nil, nil, errors.Wrap(err, "ibdends: open haplotype source")
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	if !scanner.Scan() {
		return nil, nil, errors.New("ibdends: haplotype source missing sample header")
	}
	samples := strings.Fields(scanner.Text())
	if len(samples) == 0 {
		return nil, nil, errors.New("ibdends: haplotype source has no samples")
	}
	nHaps := 2 * len(samples)

	var basePos []int64
	var morganPos []float64
	var nAlleles []uint8
	var alleles []uint8
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 3+nHaps {
			return nil, nil, errors.Errorf("ibdends: marker row has %d fields, want %d", len(fields), 3+nHaps)
		}
		bp, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			return nil, nil, errors.Wrap(err, "ibdends: malformed basePos")
		}
		morgan, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, nil, errors.Wrap(err, "ibdends: malformed morganPos")
		}
		na, err := strconv.ParseUint(fields[2], 10, 8)
		if err != nil {
			return nil, nil, errors.Wrap(err, "ibdends: malformed nAlleles")
		}
		basePos = append(basePos, bp)
		morganPos = append(morganPos, morgan)
		nAlleles = append(nAlleles, uint8(na))
		for _, field := range fields[3:] {
			a, err := strconv.ParseUint(field, 10, 8)
			if err != nil {
				return nil, nil, errors.Wrap(err, "ibdends: malformed allele")
			}
			alleles = append(alleles, uint8(a))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, errors.Wrap(err, "ibdends: read haplotype source")
	}

	frame, err := markerframe.New(basePos, morganPos, nAlleles, alleles, nHaps)
	if err != nil {
		return nil, nil, err
	}
	return frame, samples, nil
}

// textGeneticMapSource reads "basePos cM" pairs, one per line.
type textGeneticMapSource struct{ path string }

// NewTextGeneticMapSource returns a GeneticMapSource reading the
// "basePos cM" per-line format.
func NewTextGeneticMapSource(path string) GeneticMapSource {
	return &textGeneticMapSource{path: path}
}

func (s *textGeneticMapSource) Load() (*genmap.Map, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, errors.Wrap(err, "ibdends: open genetic map")
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var basePos []int64
	var cM []float64
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, errors.Errorf("ibdends: genetic map row has %d fields, want 2", len(fields))
		}
		bp, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			return nil, errors.Wrap(err, "ibdends: malformed basePos")
		}
		v, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, errors.Wrap(err, "ibdends: malformed cM")
		}
		basePos = append(basePos, bp)
		cM = append(cM, v)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "ibdends: read genetic map")
	}
	return genmap.New(basePos, cM)
}

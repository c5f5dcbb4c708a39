// Package segment holds the SharedSegment entity (spec.md §3) and the
// whitespace-delimited wire grammar (spec.md §6) used to parse one input
// record. Segment parsing sits inside the in-scope Pipeline worker step
// (spec.md §4.6), even though VCF/binary-reference decoding and PLINK
// map reading remain external collaborators.
package segment

import (
	"strconv"
	"strings"

	"github.com/dgryski/go-farm"
	"github.com/pkg/errors"
)

// Shared is one candidate IBD segment between two haplotypes on one
// chromosome, per spec.md §3.
type Shared struct {
	Hap1, Hap2             int
	BasePosStart, BasePosInclEnd int64
}

// Less implements the (hap1,hap2,start,inclEnd) lexicographic ordering
// spec.md §3 defines for deterministic output-adjacent comparisons.
func (s Shared) Less(o Shared) bool {
	if s.Hap1 != o.Hap1 {
		return s.Hap1 < o.Hap1
	}
	if s.Hap2 != o.Hap2 {
		return s.Hap2 < o.Hap2
	}
	if s.BasePosStart != o.BasePosStart {
		return s.BasePosStart < o.BasePosStart
	}
	return s.BasePosInclEnd < o.BasePosInclEnd
}

// Hash returns a deterministic 64-bit digest of s, used by pipeline to
// reseed each segment's per-segment RNG as userSeed XOR hash(segment),
// per spec.md §4.6/§9.
func (s Shared) Hash() uint64 {
	var buf [32]byte
	putInt(buf[0:8], int64(s.Hap1))
	putInt(buf[8:16], int64(s.Hap2))
	putInt(buf[16:24], s.BasePosStart)
	putInt(buf[24:32], s.BasePosInclEnd)
	return farm.Hash64(buf[:])
}

func putInt(b []byte, v int64) {
	u := uint64(v)
	for i := 0; i < 8; i++ {
		b[i] = byte(u >> (8 * i))
	}
}

// UnknownRecordError marks a parsed record whose sample or chromosome
// was not recognised; per spec.md §7 this is the one case that
// short-circuits a single segment (emit NIL) instead of aborting the run.
type UnknownRecordError struct{ Reason string }

func (e *UnknownRecordError) Error() string { return "segment: " + e.Reason }

// SampleResolver maps a sample name to its 0-based index, and reports
// whether the sample is known. Resolving the haplotype source's sample
// list is an external collaborator's concern; this is the interface the
// in-scope parser needs from it.
type SampleResolver interface {
	SampleIndex(name string) (idx int, ok bool)
}

// ParseLine parses one whitespace-delimited segment record: sample1,
// hap1 in {1,2}, sample2, hap2 in {1,2}, chrom, startBp, inclEndBp (at
// least 7 fields; extra trailing fields are ignored). chrom must equal
// wantChrom for the record to be accepted. The haplotype key is
// sampleIndex*2 + hapChoice - 1, per spec.md §6.
func ParseLine(line string, samples SampleResolver, wantChrom string) (*Shared, error) {
	fields := strings.Fields(line)
	if len(fields) < 7 {
		return nil, errors.Errorf("segment: expected at least 7 fields, got %d", len(fields))
	}
	sample1, hap1Str, sample2, hap2Str, chrom, startStr, endStr := fields[0], fields[1], fields[2], fields[3], fields[4], fields[5], fields[6]

	if chrom != wantChrom {
		return nil, &UnknownRecordError{Reason: "unknown chromosome " + chrom}
	}

	idx1, ok := samples.SampleIndex(sample1)
	if !ok {
		return nil, &UnknownRecordError{Reason: "unknown sample " + sample1}
	}
	idx2, ok := samples.SampleIndex(sample2)
	if !ok {
		return nil, &UnknownRecordError{Reason: "unknown sample " + sample2}
	}

	hap1, err := parseHapChoice(hap1Str)
	if err != nil {
		return nil, err
	}
	hap2, err := parseHapChoice(hap2Str)
	if err != nil {
		return nil, err
	}

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil {
		return nil, errors.Wrap(err, "segment: malformed start position")
	}
	end, err := strconv.ParseInt(endStr, 10, 64)
	if err != nil {
		return nil, errors.Wrap(err, "segment: malformed end position")
	}
	if start > end {
		return nil, errors.Errorf("segment: start %d > end %d", start, end)
	}

	return &Shared{
		Hap1:          idx1*2 + hap1 - 1,
		Hap2:          idx2*2 + hap2 - 1,
		BasePosStart:  start,
		BasePosInclEnd: end,
	}, nil
}

func parseHapChoice(s string) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.Wrap(err, "segment: malformed haplotype designator")
	}
	if v != 1 && v != 2 {
		return 0, errors.Errorf("segment: haplotype designator %d outside {1,2}", v)
	}
	return v, nil
}

// Clamp restricts s's start/inclEnd to [firstMarkerPos, lastMarkerPos],
// per spec.md §6: "positions are clamped to [firstMarkerPos,
// lastMarkerPos]".
func (s Shared) Clamp(firstMarkerPos, lastMarkerPos int64) Shared {
	if s.BasePosStart < firstMarkerPos {
		s.BasePosStart = firstMarkerPos
	}
	if s.BasePosInclEnd > lastMarkerPos {
		s.BasePosInclEnd = lastMarkerPos
	}
	return s
}

// Package ibscounts precomputes, per start marker, how many ordered
// pairs among a seeded random subsample of haplotypes remain IBS through
// each successive marker, truncating the row once the surviving fraction
// drops below a configured threshold. See spec.md §4.1.
package ibscounts

import (
	"math"
	"math/rand"
	"sync"

	"github.com/pkg/errors"

	"github.com/browninglab/ibdends/markerframe"
)

// MaxLocalHaps is the default/validated ceiling on LocalHaps. Historically
// this bounded N*(N-1) to fit a 31-bit signed integer (spec.md §9); this
// implementation stores counts as int64, so the ceiling is now a policy
// default rather than a storage-forced limit, per the §9 Open Question.
const MaxLocalHaps = 40000

// Options configures Build.
type Options struct {
	// LocalHaps caps the number of haplotypes sampled for this table,
	// capped again at MaxLocalHaps.
	LocalHaps int
	// MaxLocalCDF is the tail threshold: a row stops extending once the
	// surviving IBS-pair fraction would drop below 1-MaxLocalCDF.
	MaxLocalCDF float64
	// Seed selects which haplotypes are sampled and is otherwise
	// deterministic (row computation itself has no randomness).
	Seed int64
	// NumWorkers bounds the parallelism used to compute rows; defaults to
	// 1 if <= 0.
	NumWorkers int
}

// Table is the immutable, flat-buffer jagged IBS-count table: counts[s][k]
// for 0 <= s < M, 0 <= k < rowLen(s). Stored as a flat []int64 plus an
// offset index, per spec.md §9's flat-buffer re-architecture hint, rather
// than [][]int64.
type Table struct {
	numMarkers int
	numHaps    int // N, the subsample size pairs are drawn from

	offset []int32 // length numMarkers+1
	counts []int64 // flat, length offset[numMarkers]
}

// NumHaps returns N, the subsample size used to build this table.
func (t *Table) NumHaps() int { return t.numHaps }

// RowLen returns L(s), the number of entries in row s.
func (t *Table) RowLen(s int) int { return int(t.offset[s+1] - t.offset[s]) }

// End returns end(s) = s + L(s), the first marker beyond this row's reach.
func (t *Table) End(s int) int { return s + t.RowLen(s) }

// Row returns counts[s][0:RowLen(s)].
func (t *Table) Row(s int) []int64 {
	return t.counts[t.offset[s]:t.offset[s+1]]
}

// At returns counts[s][k], the number of ordered pairs IBS on [s,s+k].
func (t *Table) At(s, k int) int64 {
	return t.counts[int(t.offset[s])+k]
}

// Build computes the forward IbsCounts table for f.
func Build(f *markerframe.Frame, opts Options) (*Table, error) {
	nHapsTotal := f.NumHaps()
	n := opts.LocalHaps
	if n <= 0 || n > nHapsTotal {
		n = nHapsTotal
	}
	if n > MaxLocalHaps {
		n = MaxLocalHaps
	}
	if n < 2 {
		return nil, errors.New("ibscounts: fewer than two haplotypes available to sample")
	}
	if opts.MaxLocalCDF <= 0 || opts.MaxLocalCDF >= 1 {
		return nil, errors.Errorf("ibscounts: maxLocalCDF must be in (0,1), got %v", opts.MaxLocalCDF)
	}
	total := int64(n) * int64(n-1)
	if total <= 0 || total/int64(n) != int64(n-1) {
		return nil, errors.New("ibscounts: N*(N-1) overflow")
	}

	haps := sampleHaps(nHapsTotal, n, opts.Seed)
	threshold := int64(math.Ceil((1 - opts.MaxLocalCDF) * float64(total)))

	numMarkers := f.NumMarkers()
	rows := make([][]int64, numMarkers)

	workers := opts.NumWorkers
	if workers <= 0 {
		workers = 1
	}
	if workers > numMarkers {
		workers = numMarkers
	}

	var wg sync.WaitGroup
	starts := make(chan int, numMarkers)
	for s := 0; s < numMarkers; s++ {
		starts <- s
	}
	close(starts)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for s := range starts {
				rows[s] = computeRow(f, haps, s, total, threshold)
			}
		}()
	}
	wg.Wait()

	return flatten(rows, n), nil
}

// computeRow runs the sequence-coded equivalence-class refinement of
// spec.md §4.1/§9 for a single start marker s, against the haplotype
// subsample in haps. It maintains a per-haplotype class index, refined at
// each marker as oldClass*nAlleles(m)+allele(m,h), rather than lists of
// haplotype index arrays, to avoid per-marker allocation.
func computeRow(f *markerframe.Frame, haps []int, s int, total, threshold int64) []int64 {
	n := len(haps)
	class := make([]int32, n)   // all haplotypes start in class 0
	newClass := make([]int32, n)
	row := make([]int64, 0, 8)
	scratch := make(map[int64]int32, n)
	classSizes := make([]int64, n)

	lastPairs := total
	for m := s; m < f.NumMarkers(); m++ {
		monomorphic := true
		first := f.Allele(m, haps[0])
		for _, h := range haps[1:] {
			if f.Allele(m, h) != first {
				monomorphic = false
				break
			}
		}

		var pairs int64
		if monomorphic {
			// Advance the row by one entry equal to the previous value,
			// per spec.md §9: classes are unaffected, but ibslen's
			// indexing and the reverse reconstruction rely on this
			// positional alignment.
			pairs = lastPairs
		} else {
			for k := range scratch {
				delete(scratch, k)
			}
			var nextID int32
			na := int64(f.NumAlleles(m))
			for i, h := range haps {
				key := int64(class[i])*na + int64(f.Allele(m, h))
				id, ok := scratch[key]
				if !ok {
					id = nextID
					nextID++
					scratch[key] = id
				}
				newClass[i] = id
			}
			copy(class, newClass)
			sizes := classSizes[:nextID]
			for i := range sizes {
				sizes[i] = 0
			}
			for _, id := range class {
				sizes[id]++
			}
			pairs = 0
			for _, c := range sizes {
				pairs += c * (c - 1)
			}
		}

		row = append(row, pairs)
		lastPairs = pairs
		if pairs < threshold {
			break
		}
	}
	return row
}

func flatten(rows [][]int64, n int) *Table {
	numMarkers := len(rows)
	offset := make([]int32, numMarkers+1)
	total := 0
	for s, r := range rows {
		offset[s] = int32(total)
		total += len(r)
	}
	offset[numMarkers] = int32(total)
	counts := make([]int64, 0, total)
	for _, r := range rows {
		counts = append(counts, r...)
	}
	return &Table{
		numMarkers: numMarkers,
		numHaps:    n,
		offset:     offset,
		counts:     counts,
	}
}

// sampleHaps draws n distinct haplotype indices from [0,total) using a
// seeded Fisher-Yates partial shuffle, giving deterministic, reproducible
// subsampling for a given seed.
func sampleHaps(total, n int, seed int64) []int {
	perm := make([]int, total)
	for i := range perm {
		perm[i] = i
	}
	r := rand.New(rand.NewSource(seed))
	for i := 0; i < n; i++ {
		j := i + r.Intn(total-i)
		perm[i], perm[j] = perm[j], perm[i]
	}
	return perm[:n]
}

// Reverse derives the reverse-orientation table from t by marker-index
// reversal, per spec.md §4.1: reverseCounts[M-1-e][M-1-s] = counts[s][e-s].
// Because a row is itself a truncated prefix, gathering can hit a gap (a
// contributing start whose own row doesn't reach this far); the reverse
// row stops at the first such gap, preserving the same prefix-truncation
// semantics as the forward table.
func (t *Table) Reverse() *Table {
	m := t.numMarkers
	rows := make([][]int64, m)
	for r := 0; r < m; r++ {
		e := m - 1 - r
		row := make([]int64, 0, 4)
		for c := 0; ; c++ {
			s := e - c
			if s < 0 || c >= t.RowLen(s) {
				break
			}
			row = append(row, t.At(s, c))
		}
		rows[r] = row
	}
	return flatten(rows, t.numHaps)
}

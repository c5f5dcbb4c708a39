// Package ibdstats holds the concurrent run-wide counters described in
// spec.md §4.6 ("global statistics (concurrent)") and §6 ("Statistics at
// shutdown"): total markers, samples, and segments processed, plus an
// optional running discordance rate broken down per haplotype pair and
// chromosome.
package ibdstats

import (
	"sync"
	"sync/atomic"

	"github.com/minio/highwayhash"
)

// pairKey hashes (hap1, hap2, chromosome) into a fixed-size map key, the
// same role highwayhash.Sum plays keying fusion's gene-pair candidate
// map.
type pairKey = [highwayhash.Size]uint8

var zeroSeed = pairKey{}

// discordance is one haplotype-pair/chromosome's running rate: numerator is
// discordant sites observed, denominator is sites examined.
type discordance struct {
	numerator   int64
	denominator int64
}

// Collector accumulates run-wide statistics across concurrent pipeline
// workers. The scalar counters are additive and lock-free (sync/atomic);
// the per-pair discordance map is guarded by a mutex since its key set
// grows dynamically, matching spec.md §5's "statistics counters are
// additive and lock-free" for the counters it names explicitly while
// still supporting the optional per-pair breakdown.
type Collector struct {
	markers  int64
	samples  int64
	segments int64

	estimateErr bool

	mu   sync.Mutex
	pairs map[pairKey]*discordance
}

// New returns a Collector. When estimateErr is true, AddDiscordance calls
// are tracked; otherwise they are no-ops, matching spec.md §6's
// `estimate-err` configuration flag.
func New(estimateErr bool) *Collector {
	c := &Collector{estimateErr: estimateErr}
	if estimateErr {
		c.pairs = make(map[pairKey]*discordance)
	}
	return c
}

// AddMarkers, AddSamples, and AddSegment record run-wide totals.
func (c *Collector) AddMarkers(n int64)  { atomic.AddInt64(&c.markers, n) }
func (c *Collector) AddSamples(n int64)  { atomic.AddInt64(&c.samples, n) }
func (c *Collector) AddSegment()         { atomic.AddInt64(&c.segments, 1) }

// Markers, Samples, and Segments return the current totals.
func (c *Collector) Markers() int64  { return atomic.LoadInt64(&c.markers) }
func (c *Collector) Samples() int64  { return atomic.LoadInt64(&c.samples) }
func (c *Collector) Segments() int64 { return atomic.LoadInt64(&c.segments) }

// AddDiscordance records, for one (hap1, hap2, chrom) key, that
// `examined` sites were compared and `discordant` of them differed. It is
// a no-op when the Collector was built with estimateErr=false.
func (c *Collector) AddDiscordance(hap1, hap2 int, chrom string, discordant, examined int64) {
	if !c.estimateErr {
		return
	}
	key := hashPair(hap1, hap2, chrom)

	c.mu.Lock()
	d, ok := c.pairs[key]
	if !ok {
		d = &discordance{}
		c.pairs[key] = d
	}
	d.numerator += discordant
	d.denominator += examined
	c.mu.Unlock()
}

// ErrorRate returns the aggregate discordance rate Σdiscordant/Σexamined
// across every tracked pair, and false if estimateErr is disabled or no
// sites were ever examined.
func (c *Collector) ErrorRate() (float64, bool) {
	if !c.estimateErr {
		return 0, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	var num, den int64
	for _, d := range c.pairs {
		num += d.numerator
		den += d.denominator
	}
	if den == 0 {
		return 0, false
	}
	return float64(num) / float64(den), true
}

func hashPair(hap1, hap2 int, chrom string) pairKey {
	if hap1 > hap2 {
		hap1, hap2 = hap2, hap1
	}
	buf := make([]byte, 0, 16+len(chrom))
	buf = appendInt(buf, hap1)
	buf = appendInt(buf, hap2)
	buf = append(buf, chrom...)
	return highwayhash.Sum(buf, zeroSeed[:])
}

func appendInt(buf []byte, v int) []byte {
	var tmp [8]byte
	u := uint64(v)
	for i := 0; i < 8; i++ {
		tmp[i] = byte(u >> (8 * i))
	}
	return append(buf, tmp[:]...)
}

package ibdstats

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCountersAreAdditiveAcrossGoroutines(t *testing.T) {
	c := New(false)
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.AddMarkers(1)
			c.AddSamples(2)
			c.AddSegment()
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(100), c.Markers())
	assert.Equal(t, int64(200), c.Samples())
	assert.Equal(t, int64(100), c.Segments())
}

func TestErrorRateDisabledByDefault(t *testing.T) {
	c := New(false)
	c.AddDiscordance(0, 1, "chr1", 5, 100)
	_, ok := c.ErrorRate()
	assert.False(t, ok)
}

func TestErrorRateAggregatesAcrossPairs(t *testing.T) {
	c := New(true)
	c.AddDiscordance(0, 1, "chr1", 5, 100)
	c.AddDiscordance(2, 3, "chr1", 15, 100)
	rate, ok := c.ErrorRate()
	assert.True(t, ok)
	assert.InDelta(t, 0.1, rate, 1e-9)
}

func TestErrorRateNoExaminedSitesIsFalse(t *testing.T) {
	c := New(true)
	rate, ok := c.ErrorRate()
	assert.False(t, ok)
	assert.Equal(t, 0.0, rate)
}

func TestHashPairOrderIndependent(t *testing.T) {
	a := hashPair(0, 1, "chr1")
	b := hashPair(1, 0, "chr1")
	assert.Equal(t, a, b)
	c := hashPair(0, 2, "chr1")
	assert.NotEqual(t, a, c)
}

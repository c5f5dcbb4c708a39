package segment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSamples map[string]int

func (f fakeSamples) SampleIndex(name string) (int, bool) {
	idx, ok := f[name]
	return idx, ok
}

func TestParseLineHappyPath(t *testing.T) {
	samples := fakeSamples{"s1": 0, "s2": 1}
	s, err := ParseLine("s1 1 s2 2 chr1 100 200 extra", samples, "chr1")
	require.NoError(t, err)
	assert.Equal(t, 0, s.Hap1) // sample 0, hap 1 -> 0*2+1-1=0
	assert.Equal(t, 3, s.Hap2) // sample 1, hap 2 -> 1*2+2-1=3
	assert.Equal(t, int64(100), s.BasePosStart)
	assert.Equal(t, int64(200), s.BasePosInclEnd)
}

func TestParseLineUnknownChromOrSample(t *testing.T) {
	samples := fakeSamples{"s1": 0, "s2": 1}
	_, err := ParseLine("s1 1 s2 2 chr2 100 200", samples, "chr1")
	require.Error(t, err)
	var unk *UnknownRecordError
	assert.ErrorAs(t, err, &unk)

	_, err = ParseLine("s1 1 unknown 2 chr1 100 200", samples, "chr1")
	require.Error(t, err)
	assert.ErrorAs(t, err, &unk)
}

func TestParseLineRejectsBadFields(t *testing.T) {
	samples := fakeSamples{"s1": 0, "s2": 1}
	_, err := ParseLine("s1 3 s2 2 chr1 100 200", samples, "chr1")
	assert.Error(t, err)
	_, err = ParseLine("s1 1 s2 2 chr1 200 100", samples, "chr1")
	assert.Error(t, err)
	_, err = ParseLine("too few fields", samples, "chr1")
	assert.Error(t, err)
}

func TestLessOrdering(t *testing.T) {
	a := Shared{Hap1: 0, Hap2: 1, BasePosStart: 10, BasePosInclEnd: 20}
	b := Shared{Hap1: 0, Hap2: 1, BasePosStart: 10, BasePosInclEnd: 30}
	c := Shared{Hap1: 0, Hap2: 2, BasePosStart: 0, BasePosInclEnd: 0}
	assert.True(t, a.Less(b))
	assert.False(t, b.Less(a))
	assert.True(t, b.Less(c))
}

func TestHashDeterministic(t *testing.T) {
	a := Shared{Hap1: 1, Hap2: 2, BasePosStart: 100, BasePosInclEnd: 200}
	b := Shared{Hap1: 1, Hap2: 2, BasePosStart: 100, BasePosInclEnd: 200}
	assert.Equal(t, a.Hash(), b.Hash())

	c := Shared{Hap1: 1, Hap2: 2, BasePosStart: 100, BasePosInclEnd: 201}
	assert.NotEqual(t, a.Hash(), c.Hash())
}

func TestClamp(t *testing.T) {
	s := Shared{BasePosStart: 1, BasePosInclEnd: 1000}
	clamped := s.Clamp(50, 500)
	assert.Equal(t, int64(50), clamped.BasePosStart)
	assert.Equal(t, int64(500), clamped.BasePosInclEnd)
}

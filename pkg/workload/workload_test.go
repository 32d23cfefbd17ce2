package workload

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var referenceDomain = Domain{Min: 115724, Max: 5423454068}

func TestGenerator_Deterministic(t *testing.T) {
	a, err := NewGenerator(42, referenceDomain)
	require.NoError(t, err)

	b, err := NewGenerator(42, referenceDomain)
	require.NoError(t, err)

	first, err := a.Generate(500)
	require.NoError(t, err)

	second, err := b.Generate(500)
	require.NoError(t, err)

	assert.Equal(t, first, second)

	// Repeated calls on the same generator restart from the seed.
	again, err := a.Generate(500)
	require.NoError(t, err)
	assert.Equal(t, first, again)
}

func TestGenerator_PrefixStable(t *testing.T) {
	gen, err := NewGenerator(7, referenceDomain)
	require.NoError(t, err)

	short, err := gen.Generate(10)
	require.NoError(t, err)

	long, err := gen.Generate(100)
	require.NoError(t, err)

	assert.Equal(t, short, long[:10])
}

func TestGenerator_DifferentSeeds(t *testing.T) {
	a, err := NewGenerator(1, referenceDomain)
	require.NoError(t, err)

	b, err := NewGenerator(2, referenceDomain)
	require.NoError(t, err)

	pa, err := a.Generate(50)
	require.NoError(t, err)

	pb, err := b.Generate(50)
	require.NoError(t, err)

	assert.NotEqual(t, pa, pb)
}

func TestGenerator_CountAndBounds(t *testing.T) {
	tests := []struct {
		name   string
		domain Domain
		n      int
	}{
		{name: "reference domain", domain: referenceDomain, n: 1000},
		{name: "single value", domain: Domain{Min: 5, Max: 5}, n: 20},
		{name: "negative domain", domain: Domain{Min: -10, Max: -1}, n: 200},
		{name: "zero pairs", domain: referenceDomain, n: 0},
		{name: "full range", domain: Domain{Min: math.MinInt64, Max: math.MaxInt64}, n: 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen, err := NewGenerator(99, tt.domain)
			require.NoError(t, err)

			pairs, err := gen.Generate(tt.n)
			require.NoError(t, err)
			require.Len(t, pairs, tt.n)

			for _, p := range pairs {
				assert.True(t, tt.domain.Contains(p.Source), "source %d out of bounds", p.Source)
				assert.True(t, tt.domain.Contains(p.Target), "target %d out of bounds", p.Target)
			}
		})
	}
}

func TestGenerator_NegativeCount(t *testing.T) {
	gen, err := NewGenerator(1, referenceDomain)
	require.NoError(t, err)

	_, err = gen.Generate(-1)
	require.ErrorIs(t, err, ErrInvalidCount)
}

func TestNewGenerator_InvalidDomain(t *testing.T) {
	_, err := NewGenerator(1, Domain{Min: 10, Max: 9})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "min exceeds max")
}

func TestRemap_Membership(t *testing.T) {
	ids := []int64{17, 4, 99, 1024, 3}
	member := make(map[int64]struct{}, len(ids))

	for _, id := range ids {
		member[id] = struct{}{}
	}

	gen, err := NewGenerator(3, Domain{Min: math.MinInt64, Max: math.MaxInt64})
	require.NoError(t, err)

	raw, err := gen.Generate(1000)
	require.NoError(t, err)

	raw = append(raw, Pair{Source: math.MinInt64, Target: math.MaxInt64}, Pair{Source: 0, Target: -1})

	remapped, err := Remap(raw, ids)
	require.NoError(t, err)
	require.Len(t, remapped, len(raw))

	for _, p := range remapped {
		assert.Contains(t, member, p.Source)
		assert.Contains(t, member, p.Target)
	}
}

func TestRemap_Examples(t *testing.T) {
	ids := []int64{1, 2, 3}

	tests := []struct {
		name string
		raw  Pair
		want Pair
	}{
		{name: "reference example", raw: Pair{Source: 0, Target: 4}, want: Pair{Source: 1, Target: 2}},
		{name: "negative uses absolute value", raw: Pair{Source: -4, Target: -3}, want: Pair{Source: 2, Target: 1}},
		{name: "min int64", raw: Pair{Source: math.MinInt64, Target: 2}, want: Pair{Source: ids[uint64(1<<63)%3], Target: 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Remap([]Pair{tt.raw}, ids)
			require.NoError(t, err)
			assert.Equal(t, []Pair{tt.want}, got)
		})
	}
}

func TestRemap_EmptyVertices(t *testing.T) {
	_, err := Remap([]Pair{{Source: 1, Target: 2}}, nil)
	require.ErrorIs(t, err, ErrNoVertices)
}

func TestSampleIndices(t *testing.T) {
	ids := []int64{10, 20, 30, 40}

	a, err := SampleIndices(5, ids, 200)
	require.NoError(t, err)

	b, err := SampleIndices(5, ids, 200)
	require.NoError(t, err)

	assert.Equal(t, a, b)

	for _, p := range a {
		assert.Contains(t, ids, p.Source)
		assert.Contains(t, ids, p.Target)
	}

	_, err = SampleIndices(5, nil, 1)
	require.ErrorIs(t, err, ErrNoVertices)

	_, err = SampleIndices(5, ids, -1)
	require.ErrorIs(t, err, ErrInvalidCount)
}

func TestBuild(t *testing.T) {
	gen, err := NewGenerator(11, referenceDomain)
	require.NoError(t, err)

	ids := []int64{1, 2, 3}

	modulo, err := Build(gen, RemapModulo, ids, 25)
	require.NoError(t, err)
	assert.Len(t, modulo, 25)

	raw, err := gen.Generate(25)
	require.NoError(t, err)

	expected, err := Remap(raw, ids)
	require.NoError(t, err)
	assert.Equal(t, expected, modulo)

	uniform, err := Build(gen, RemapUniform, ids, 25)
	require.NoError(t, err)
	assert.Len(t, uniform, 25)

	_, err = Build(gen, "bogus", ids, 25)
	require.Error(t, err)
}

func TestPairsFile_RoundTrip(t *testing.T) {
	pairs := []Pair{{Source: 1, Target: 2}, {Source: -5, Target: 5423454068}, {Source: 1, Target: 2}}

	var buf bytes.Buffer
	require.NoError(t, WritePairs(&buf, pairs))
	assert.Equal(t, "3\n1 2\n-5 5423454068\n1 2\n", buf.String())

	got, err := ReadPairs(&buf)
	require.NoError(t, err)
	assert.Equal(t, pairs, got)
}

func TestReadPairs_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{name: "empty", input: "", wantErr: "empty input"},
		{name: "bad count", input: "x\n", wantErr: "parsing pair count"},
		{name: "short", input: "2\n1 2\n", wantErr: "declared 2 pairs but found 1"},
		{name: "bad field count", input: "1\n1 2 3\n", wantErr: "expected 2 fields"},
		{name: "bad number", input: "1\n1 b\n", wantErr: "target"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadPairs(strings.NewReader(tt.input))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

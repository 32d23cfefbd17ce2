package workload

import (
	"errors"
	"fmt"
	"math/rand/v2"
)

// ErrNoVertices is returned when remapping against an empty vertex list.
var ErrNoVertices = errors.New("vertex id list is empty")

// RemapStrategy names how generated pairs are mapped onto real vertices.
type RemapStrategy string

const (
	// RemapModulo maps raw value v to ids[|v| mod N]. This is the reference
	// behaviour and slightly favours low indices when N does not divide the
	// raw domain size.
	RemapModulo RemapStrategy = "modulo"

	// RemapUniform ignores raw values and samples indices from [0, N)
	// directly with the workload seed.
	RemapUniform RemapStrategy = "uniform"
)

// Remap maps every raw pair onto ids using the modulo rule. Order and
// length are preserved.
func Remap(pairs []Pair, ids []int64) ([]Pair, error) {
	if len(ids) == 0 {
		return nil, ErrNoVertices
	}

	n := uint64(len(ids))
	out := make([]Pair, len(pairs))

	for i, p := range pairs {
		out[i] = Pair{
			Source: ids[absMod(p.Source, n)],
			Target: ids[absMod(p.Target, n)],
		}
	}

	return out, nil
}

// absMod returns |v| mod n without overflowing on math.MinInt64.
func absMod(v int64, n uint64) uint64 {
	u := uint64(v)
	if v < 0 {
		u = uint64(-(v + 1)) + 1
	}

	return u % n
}

// SampleIndices draws n pairs of vertices by sampling indices uniformly
// from [0, len(ids)). It is deterministic for a given seed.
func SampleIndices(seed uint64, ids []int64, n int) ([]Pair, error) {
	if n < 0 {
		return nil, fmt.Errorf("sampling %d pairs: %w", n, ErrInvalidCount)
	}

	if len(ids) == 0 {
		return nil, ErrNoVertices
	}

	rng := rand.New(rand.NewPCG(seed, pcgStream))
	size := len(ids)
	out := make([]Pair, n)

	for i := range out {
		out[i] = Pair{
			Source: ids[rng.IntN(size)],
			Target: ids[rng.IntN(size)],
		}
	}

	return out, nil
}

// Build produces the final query set for a graph's vertex list using the
// given strategy.
func Build(gen *Generator, strategy RemapStrategy, ids []int64, n int) ([]Pair, error) {
	switch strategy {
	case "", RemapModulo:
		raw, err := gen.Generate(n)
		if err != nil {
			return nil, err
		}

		return Remap(raw, ids)
	case RemapUniform:
		return SampleIndices(gen.Seed(), ids, n)
	default:
		return nil, fmt.Errorf("unknown remap strategy %q", strategy)
	}
}

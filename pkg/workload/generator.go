package workload

import (
	"errors"
	"fmt"
	"math/rand/v2"
)

// ErrInvalidCount is returned when a negative number of pairs is requested.
var ErrInvalidCount = errors.New("pair count must not be negative")

// pcgStream is the fixed PCG stream selector. Changing it changes every
// generated workload, so it is part of the reproducibility contract.
const pcgStream = 0x9e3779b97f4a7c15

// Pair is a single (source, target) shortest-path query.
type Pair struct {
	Source int64
	Target int64
}

// String formats the pair the way solvers receive it on stdin.
func (p Pair) String() string {
	return fmt.Sprintf("%d %d", p.Source, p.Target)
}

// Domain is the closed interval raw IDs are drawn from.
type Domain struct {
	Min int64
	Max int64
}

// Contains reports whether v lies within the domain bounds.
func (d Domain) Contains(v int64) bool {
	return v >= d.Min && v <= d.Max
}

// Generator produces reproducible query workloads from a seed.
type Generator struct {
	seed   uint64
	domain Domain
}

// NewGenerator creates a generator drawing from domain.
func NewGenerator(seed uint64, domain Domain) (*Generator, error) {
	if domain.Min > domain.Max {
		return nil, fmt.Errorf("invalid id domain [%d, %d]: min exceeds max", domain.Min, domain.Max)
	}

	return &Generator{seed: seed, domain: domain}, nil
}

// Seed returns the generator seed.
func (g *Generator) Seed() uint64 {
	return g.seed
}

// Domain returns the raw ID domain.
func (g *Generator) Domain() Domain {
	return g.domain
}

// Generate returns n pairs drawn uniformly, with repetition, from the
// domain. Every call restarts from the seed, so the same n always yields
// the same sequence.
func (g *Generator) Generate(n int) ([]Pair, error) {
	if n < 0 {
		return nil, fmt.Errorf("generating %d pairs: %w", n, ErrInvalidCount)
	}

	rng := rand.New(rand.NewPCG(g.seed, pcgStream))
	pairs := make([]Pair, n)

	for i := range pairs {
		pairs[i] = Pair{
			Source: g.draw(rng),
			Target: g.draw(rng),
		}
	}

	return pairs, nil
}

// draw returns a uniform value in [Min, Max].
func (g *Generator) draw(rng *rand.Rand) int64 {
	span := uint64(g.domain.Max-g.domain.Min) + 1
	if span == 0 {
		// Full int64 range.
		return int64(rng.Uint64())
	}

	return g.domain.Min + int64(rng.Uint64N(span))
}

package analysis

import (
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/splidsboel/assignment3/pkg/results"
)

// ErrNoOverlap is returned when two tables share no (source, target) key.
var ErrNoOverlap = errors.New("no matching (source, target) pairs")

// Speedup is the mean per-query ratio baseline time / contender time.
type Speedup struct {
	Baseline  string  `json:"baseline"`
	Contender string  `json:"contender"`
	Pairs     int     `json:"pairs"`
	Mean      float64 `json:"mean"`
	Median    float64 `json:"median"`
}

func (s Speedup) String() string {
	return fmt.Sprintf("Average speed-up (%s / %s): %.2fx", s.Baseline, s.Contender, s.Mean)
}

type pairKey struct {
	source int64
	target int64
}

// ComputeSpeedup inner-joins baseline and contender on (source, target).
// A key present n times in one table and m times in the other contributes
// n*m ratios. Rows without a partner are dropped.
func ComputeSpeedup(baseline, contender *results.Table) (*Speedup, error) {
	byKey := make(map[pairKey][]int64, len(contender.Records))

	for _, r := range contender.Records {
		k := pairKey{r.Source, r.Target}
		byKey[k] = append(byKey[k], r.TimeNS)
	}

	var ratios []float64

	for _, r := range baseline.Records {
		for _, other := range byKey[pairKey{r.Source, r.Target}] {
			ratios = append(ratios, float64(r.TimeNS)/float64(other))
		}
	}

	if len(ratios) == 0 {
		return nil, fmt.Errorf("speed-up %s / %s: %w", baseline.Label, contender.Label, ErrNoOverlap)
	}

	mean := stat.Mean(ratios, nil)

	sort.Float64s(ratios)

	return &Speedup{
		Baseline:  baseline.Label,
		Contender: contender.Label,
		Pairs:     len(ratios),
		Mean:      mean,
		Median:    median(ratios),
	}, nil
}

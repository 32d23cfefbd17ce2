// Package analysis compares result tables from different algorithms and
// renders report artifacts.
package analysis

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/splidsboel/assignment3/pkg/results"
)

// nsPerMS converts time_ns to milliseconds.
const nsPerMS = 1e6

// Summary holds descriptive statistics for one result table.
type Summary struct {
	Label         string  `json:"label"`
	Count         int     `json:"count"`
	Unreachable   int     `json:"unreachable"`
	MeanTimeMS    float64 `json:"mean_time_ms"`
	MedianTimeMS  float64 `json:"median_time_ms"`
	P95TimeMS     float64 `json:"p95_time_ms"`
	MinTimeMS     float64 `json:"min_time_ms"`
	MaxTimeMS     float64 `json:"max_time_ms"`
	StdDevTimeMS  float64 `json:"stddev_time_ms"`
	MeanRelaxed   float64 `json:"mean_relaxed"`
	MedianRelaxed float64 `json:"median_relaxed"`
}

// Summarize computes statistics over every record in t. Statistics of an
// empty table are NaN.
func Summarize(t *results.Table) Summary {
	s := Summary{Label: t.Label, Count: len(t.Records)}

	if len(t.Records) == 0 {
		nan := math.NaN()
		s.MeanTimeMS, s.MedianTimeMS, s.P95TimeMS = nan, nan, nan
		s.MinTimeMS, s.MaxTimeMS, s.StdDevTimeMS = nan, nan, nan
		s.MeanRelaxed, s.MedianRelaxed = nan, nan

		return s
	}

	times := TimesMS(t.Records)
	relaxed := make([]float64, len(t.Records))

	for i, r := range t.Records {
		relaxed[i] = float64(r.Relaxed)

		if !r.Reachable() {
			s.Unreachable++
		}
	}

	sort.Float64s(times)
	sort.Float64s(relaxed)

	s.MeanTimeMS = stat.Mean(times, nil)
	s.MedianTimeMS = median(times)
	s.P95TimeMS = stat.Quantile(0.95, stat.Empirical, times, nil)
	s.MinTimeMS = floats.Min(times)
	s.MaxTimeMS = floats.Max(times)
	s.MeanRelaxed = stat.Mean(relaxed, nil)
	s.MedianRelaxed = median(relaxed)

	if len(times) > 1 {
		s.StdDevTimeMS = stat.StdDev(times, nil)
	}

	return s
}

// TimesMS returns the query times of records in milliseconds.
func TimesMS(records []results.Record) []float64 {
	out := make([]float64, len(records))

	for i, r := range records {
		out[i] = float64(r.TimeNS) / nsPerMS
	}

	return out
}

// median of sorted x; the mean of the two middle values for even lengths.
func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}

	return (sorted[n/2-1] + sorted[n/2]) / 2
}

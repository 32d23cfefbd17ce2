package analysis

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/splidsboel/assignment3/pkg/fsutil"
	"github.com/splidsboel/assignment3/pkg/results"
)

// Default artifact file names.
const (
	TableFileName     = "comparison_table.tex"
	BoxPlotFileName   = "runtime_comparison.png"
	ScatterFileName   = "relaxed_vs_distance.png"
	MarkdownFileName  = "summary.md"
	SummariesFileName = "summaries.json"
)

// Input names one result table to compare.
type Input struct {
	Label string
	Path  string
}

// ReportOptions select which artifacts are written. Empty paths are
// skipped.
type ReportOptions struct {
	Title         string
	TablePath     string
	PlotPath      string
	ScatterPath   string
	MarkdownPath  string
	SummariesPath string
	Owner         *fsutil.OwnerConfig
}

// Report is the outcome of comparing a set of tables. The first table is
// the baseline of every speed-up.
type Report struct {
	Summaries []Summary `json:"summaries"`
	Speedups  []Speedup `json:"speedups"`
}

// Compare summarises tables and computes the speed-up of the first table
// over every other. Pairs of tables without overlap are left out and
// logged.
func Compare(log logrus.FieldLogger, tables []*results.Table) *Report {
	report := &Report{Summaries: make([]Summary, 0, len(tables))}

	for _, t := range tables {
		report.Summaries = append(report.Summaries, Summarize(t))
	}

	if len(tables) < 2 {
		return report
	}

	for _, t := range tables[1:] {
		s, err := ComputeSpeedup(tables[0], t)
		if err != nil {
			log.WithFields(logrus.Fields{
				"baseline":  tables[0].Label,
				"contender": t.Label,
			}).WithError(err).Warn("Speed-up undefined")

			continue
		}

		report.Speedups = append(report.Speedups, *s)
	}

	return report
}

// BuildReport loads every input, validating all schemas before any
// statistic is computed, and writes the requested artifacts.
func BuildReport(log logrus.FieldLogger, inputs []Input, opts ReportOptions) (*Report, error) {
	log = log.WithField("component", "analysis")

	if len(inputs) == 0 {
		return nil, fmt.Errorf("at least one result table is required")
	}

	tables := make([]*results.Table, 0, len(inputs))

	for _, in := range inputs {
		t, err := results.Read(in.Path, in.Label)
		if err != nil {
			return nil, fmt.Errorf("loading %s results: %w", in.Label, err)
		}

		tables = append(tables, t)
	}

	report := Compare(log, tables)

	for _, s := range report.Speedups {
		log.WithFields(logrus.Fields{
			"pairs":  s.Pairs,
			"median": s.Median,
		}).Info(s.String())
	}

	if opts.TablePath != "" {
		if err := fsutil.WriteFile(opts.TablePath, []byte(LatexTable(report.Summaries)+"\n"), opts.Owner); err != nil {
			return nil, fmt.Errorf("writing LaTeX table: %w", err)
		}

		log.WithField("path", opts.TablePath).Info("LaTeX table written")
	}

	if opts.PlotPath != "" {
		if err := BoxPlot(tables, opts.PlotPath, opts.Owner); err != nil {
			return nil, fmt.Errorf("writing runtime plot: %w", err)
		}

		log.WithField("path", opts.PlotPath).Info("Runtime plot written")
	}

	if opts.ScatterPath != "" {
		err := ScatterPlot(tables, opts.ScatterPath, opts.Owner)

		switch {
		case errors.Is(err, ErrNothingToPlot):
			log.Warn("No reachable queries, skipping scatter plot")
		case err != nil:
			return nil, fmt.Errorf("writing scatter plot: %w", err)
		default:
			log.WithField("path", opts.ScatterPath).Info("Scatter plot written")
		}
	}

	if opts.MarkdownPath != "" {
		title := opts.Title
		if title == "" {
			title = "Algorithm Comparison"
		}

		md := MarkdownSummary(title, report.Summaries, report.Speedups)
		if err := fsutil.WriteFile(opts.MarkdownPath, []byte(md), opts.Owner); err != nil {
			return nil, fmt.Errorf("writing markdown summary: %w", err)
		}

		log.WithField("path", opts.MarkdownPath).Info("Markdown summary written")
	}

	if opts.SummariesPath != "" {
		if err := WriteSummaries(opts.SummariesPath, report, opts.Owner); err != nil {
			return nil, err
		}
	}

	return report, nil
}

// WriteSummaries stores report as indented JSON.
func WriteSummaries(path string, report *Report, owner *fsutil.OwnerConfig) error {
	data, err := json.MarshalIndent(sanitize(report), "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling summaries: %w", err)
	}

	if err := fsutil.WriteFile(path, data, owner); err != nil {
		return fmt.Errorf("writing summaries: %w", err)
	}

	return nil
}

// sanitize returns a copy of r with non-finite values replaced by zero,
// which JSON cannot represent.
func sanitize(r *Report) *Report {
	out := &Report{
		Summaries: append([]Summary(nil), r.Summaries...),
		Speedups:  append([]Speedup(nil), r.Speedups...),
	}

	for i := range out.Summaries {
		s := &out.Summaries[i]
		for _, v := range []*float64{
			&s.MeanTimeMS, &s.MedianTimeMS, &s.P95TimeMS, &s.MinTimeMS,
			&s.MaxTimeMS, &s.StdDevTimeMS, &s.MeanRelaxed, &s.MedianRelaxed,
		} {
			*v = finite(*v)
		}
	}

	for i := range out.Speedups {
		out.Speedups[i].Mean = finite(out.Speedups[i].Mean)
		out.Speedups[i].Median = finite(out.Speedups[i].Median)
	}

	return out
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}

	return v
}

// ReadSummaries loads a report written by WriteSummaries.
func ReadSummaries(data []byte) (*Report, error) {
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parsing summaries: %w", err)
	}

	return &r, nil
}

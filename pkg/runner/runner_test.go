package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splidsboel/assignment3/pkg/analysis"
	"github.com/splidsboel/assignment3/pkg/config"
	"github.com/splidsboel/assignment3/pkg/graphfile"
	"github.com/splidsboel/assignment3/pkg/results"
	"github.com/splidsboel/assignment3/pkg/solver"
	"github.com/splidsboel/assignment3/pkg/workload"
)

const (
	plainGraph  = "3 2\n1 0 0\n2 0 0\n3 0 0\n1 2 5 0\n2 3 5 0\n"
	rankedGraph = "3 2\n1 0 0 2\n2 0 0 1\n3 0 0 0\n1 2 5 0\n2 3 5 0\n"
)

// modeCost makes every mode answer at a different speed. Query time only
// depends on the pair so repeated pairs keep the ratios exact.
var modeCost = map[string]int64{
	"query-dijkstra": 4000,
	"query-raw":      2000,
	"query":          1000,
}

type fakeSolver struct {
	mu       sync.Mutex
	requests []solver.Request
	failMode string
}

var _ solver.Solver = (*fakeSolver)(nil)

func (f *fakeSolver) Name() string { return "fake" }

func (f *fakeSolver) Solve(ctx context.Context, req *solver.Request) ([]results.Record, error) {
	f.mu.Lock()
	f.requests = append(f.requests, solver.Request{Mode: req.Mode, Graph: req.Graph, Pairs: req.Pairs})
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("solver cancelled: %w", err)
	}

	if req.Mode == f.failMode {
		return nil, &solver.ExitError{Mode: req.Mode, Code: 1, Stderr: "boom"}
	}

	out := make([]results.Record, len(req.Pairs))
	for i, p := range req.Pairs {
		out[i] = results.Record{
			Source:   p.Source,
			Target:   p.Target,
			Distance: 5,
			TimeNS:   modeCost[req.Mode] * (p.Source*10 + p.Target),
			Relaxed:  int64(10 * (i + 1)),
		}
	}

	return out, nil
}

func (f *fakeSolver) calls() []solver.Request {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]solver.Request(nil), f.requests...)
}

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	return log
}

func testConfig(t *testing.T, original, augmented string) *config.Config {
	t.Helper()

	dir := t.TempDir()

	write := func(name, content string) string {
		if content == "" {
			return ""
		}

		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

		return path
	}

	cfg, err := config.Load()
	require.NoError(t, err)

	cfg.Global.ResultsDir = filepath.Join(dir, "results")
	cfg.Experiment.Pairs = 5
	cfg.Graphs.Original = write("graph.txt", original)
	cfg.Graphs.Augmented = write("ranked.txt", augmented)
	cfg.Solver.Command = []string{"engine"}

	return cfg
}

func onlyRunDir(t *testing.T, cfg *config.Config) string {
	t.Helper()

	dirs, err := filepath.Glob(filepath.Join(cfg.Global.ResultsDir, RunsDir, "*"))
	require.NoError(t, err)
	require.Len(t, dirs, 1)

	return dirs[0]
}

func TestRunner_Run(t *testing.T) {
	cfg := testConfig(t, plainGraph, rankedGraph)
	fake := &fakeSolver{}

	r := NewRunner(testLogger(), cfg, fake, Options{})
	require.NoError(t, r.Start(context.Background()))

	defer func() { require.NoError(t, r.Stop()) }()

	result, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, IsRunDir(result.RunDir))
	assert.Equal(t, filepath.Base(result.RunDir), result.Metadata.ID)

	for _, name := range []string{
		ConfigFileName,
		PairsFileName,
		"regular/dijkstra_results.csv",
		"regular/bidirectional_results.csv",
		"augmented/bidirectional_results.csv",
		MetricsFileName,
		analysis.TableFileName,
		analysis.BoxPlotFileName,
		analysis.MarkdownFileName,
		analysis.SummariesFileName,
	} {
		assert.FileExists(t, filepath.Join(result.RunDir, name))
	}

	assert.NoFileExists(t, filepath.Join(result.RunDir, analysis.ScatterFileName))

	meta, err := ReadMetadata(result.RunDir)
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, meta.Status)
	assert.Empty(t, meta.TerminationReason)
	assert.Equal(t, config.DefaultSeed, meta.Seed)
	assert.Equal(t, "plain", meta.Graphs[config.GraphOriginal].Format)
	assert.Equal(t, "ranked", meta.Graphs[config.GraphAugmented].Format)
	assert.Equal(t, int64(3), meta.Graphs[config.GraphOriginal].Vertices)
	require.Len(t, meta.Algorithms, 3)

	for _, alg := range meta.Algorithms {
		assert.Equal(t, AlgorithmCompleted, alg.Status)
		assert.Equal(t, 5, alg.Queries)
	}

	table, err := results.Read(filepath.Join(result.RunDir, "regular/dijkstra_results.csv"), "Dijkstra")
	require.NoError(t, err)
	require.Len(t, table.Records, 5)

	for _, rec := range table.Records {
		assert.Contains(t, []int64{1, 2, 3}, rec.Source)
		assert.Contains(t, []int64{1, 2, 3}, rec.Target)
	}

	require.NotNil(t, result.Report)
	require.Len(t, result.Report.Speedups, 2)
	assert.InDelta(t, 2.0, result.Report.Speedups[0].Mean, 1e-9)
	assert.InDelta(t, 4.0, result.Report.Speedups[1].Mean, 1e-9)

	metrics, err := os.ReadFile(filepath.Join(result.RunDir, MetricsFileName))
	require.NoError(t, err)
	assert.Contains(t, string(metrics), `chbench_queries_total{algorithm="dijkstra",result="reachable"} 5`)
	assert.Contains(t, string(metrics), `chbench_relaxed_edges_total{algorithm="ch"} 150`)

	// Every measured call got the full workload.
	calls := fake.calls()
	require.Len(t, calls, 3)
	assert.Equal(t, "query-dijkstra", calls[0].Mode)
	assert.Equal(t, meta.Graphs[config.GraphOriginal].Path, calls[0].Graph)
	assert.Equal(t, "query", calls[2].Mode)
	assert.Equal(t, meta.Graphs[config.GraphAugmented].Path, calls[2].Graph)
}

func TestRunner_PairsAreReproducible(t *testing.T) {
	cfg := testConfig(t, plainGraph, "")
	cfg.Analysis.Enabled = false

	read := func() []workload.Pair {
		result, err := NewRunner(testLogger(), cfg, &fakeSolver{}, Options{
			Algorithms: []string{"dijkstra"},
		}).Run(context.Background())
		require.NoError(t, err)

		f, err := os.Open(filepath.Join(result.RunDir, PairsFileName))
		require.NoError(t, err)

		defer f.Close()

		pairs, err := workload.ReadPairs(f)
		require.NoError(t, err)

		return pairs
	}

	first := read()
	second := read()

	assert.Len(t, first, 5)
	assert.Equal(t, first, second)
}

func TestRunner_AlgorithmsShareWorkload(t *testing.T) {
	tests := []struct {
		name       string
		original   string
		augmented  string
		algorithms []string
		wantIDs    []int64
	}{
		{
			name:      "plain graph order differs from ranked graph order",
			original:  "3 2\n3 0 0\n1 0 0\n2 0 0\n1 2 5 0\n2 3 5 0\n",
			augmented: rankedGraph,
			wantIDs:   []int64{1, 2, 3},
		},
		{
			name:       "augmented ids without an original algorithm",
			augmented:  "3 2\n7 0 0 2\n8 0 0 1\n9 0 0 0\n7 8 5 0\n8 9 5 0\n",
			algorithms: []string{"ch"},
			wantIDs:    []int64{7, 8, 9},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t, tt.original, tt.augmented)
			cfg.Experiment.Pairs = 20
			cfg.Analysis.Enabled = false
			fake := &fakeSolver{}

			result, err := NewRunner(testLogger(), cfg, fake, Options{
				Algorithms: tt.algorithms,
			}).Run(context.Background())
			require.NoError(t, err)

			f, err := os.Open(filepath.Join(result.RunDir, PairsFileName))
			require.NoError(t, err)

			defer f.Close()

			written, err := workload.ReadPairs(f)
			require.NoError(t, err)
			require.Len(t, written, 20)

			for _, p := range written {
				assert.Contains(t, tt.wantIDs, p.Source)
				assert.Contains(t, tt.wantIDs, p.Target)
			}

			calls := fake.calls()
			require.NotEmpty(t, calls)

			for _, call := range calls {
				assert.Equal(t, written, call.Pairs, call.Mode)
			}
		})
	}
}

func TestRunner_EarlyFailureMarksRunFailed(t *testing.T) {
	orig := newRunID
	t.Cleanup(func() { newRunID = orig })

	newRunID = func(time.Time) string { return "1700000000_deadbeef" }

	cfg := testConfig(t, plainGraph, rankedGraph)
	runDir := filepath.Join(cfg.Global.ResultsDir, RunsDir, "1700000000_deadbeef")

	// A directory in place of the snapshot makes the snapshot write fail.
	require.NoError(t, os.MkdirAll(filepath.Join(runDir, ConfigFileName), 0o755))

	fake := &fakeSolver{}

	_, err := NewRunner(testLogger(), cfg, fake, Options{}).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "writing config snapshot")
	assert.Empty(t, fake.calls())

	meta, err := ReadMetadata(runDir)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, meta.Status)
	assert.Contains(t, meta.TerminationReason, "writing config snapshot")
	assert.Positive(t, meta.TimestampEnd)
}

func TestRunner_RoleMismatchStopsBeforeSolver(t *testing.T) {
	tests := []struct {
		name      string
		original  string
		augmented string
		role      string
	}{
		{
			name:      "ranked file given as original",
			original:  rankedGraph,
			augmented: rankedGraph,
			role:      "original",
		},
		{
			name:      "plain file given as augmented",
			original:  plainGraph,
			augmented: plainGraph,
			role:      "augmented",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t, tt.original, tt.augmented)
			fake := &fakeSolver{}

			_, err := NewRunner(testLogger(), cfg, fake, Options{}).Run(context.Background())
			require.Error(t, err)

			var roleErr *graphfile.RoleError
			require.ErrorAs(t, err, &roleErr)
			assert.Contains(t, err.Error(), tt.role)
			assert.Empty(t, fake.calls())

			meta, err := ReadMetadata(onlyRunDir(t, cfg))
			require.NoError(t, err)
			assert.Equal(t, StatusFailed, meta.Status)
			assert.Contains(t, meta.TerminationReason, "expected")
		})
	}
}

func TestRunner_SolverFailureAbortsRun(t *testing.T) {
	cfg := testConfig(t, plainGraph, rankedGraph)
	fake := &fakeSolver{failMode: "query-raw"}

	_, err := NewRunner(testLogger(), cfg, fake, Options{}).Run(context.Background())
	require.Error(t, err)

	var exitErr *solver.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Contains(t, err.Error(), "algorithm bidirectional")

	// ch never ran.
	assert.Len(t, fake.calls(), 2)

	runDir := onlyRunDir(t, cfg)

	meta, err := ReadMetadata(runDir)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, meta.Status)
	assert.Equal(t, AlgorithmCompleted, meta.Algorithms[0].Status)
	assert.Equal(t, AlgorithmFailed, meta.Algorithms[1].Status)
	assert.Equal(t, AlgorithmPending, meta.Algorithms[2].Status)
	assert.Positive(t, meta.TimestampEnd)

	assert.FileExists(t, filepath.Join(runDir, "regular/dijkstra_results.csv"))
	assert.NoFileExists(t, filepath.Join(runDir, "regular/bidirectional_results.csv"))
	assert.NoFileExists(t, filepath.Join(runDir, analysis.MarkdownFileName))
}

func TestRunner_Cancelled(t *testing.T) {
	cfg := testConfig(t, plainGraph, rankedGraph)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewRunner(testLogger(), cfg, &fakeSolver{}, Options{}).Run(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))

	meta, err := ReadMetadata(onlyRunDir(t, cfg))
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, meta.Status)
}

func TestRunner_LimitAlgorithms(t *testing.T) {
	// No augmented graph is needed when ch is not selected.
	cfg := testConfig(t, plainGraph, "")
	fake := &fakeSolver{}

	result, err := NewRunner(testLogger(), cfg, fake, Options{
		Algorithms: []string{"dijkstra", "bidirectional"},
	}).Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, result.Metadata.Algorithms, 2)
	assert.NotContains(t, result.Metadata.Graphs, config.GraphAugmented)
	assert.Len(t, fake.calls(), 2)
}

func TestRunner_Warmup(t *testing.T) {
	cfg := testConfig(t, plainGraph, "")
	cfg.Experiment.Warmup = 2
	cfg.Analysis.Enabled = false
	fake := &fakeSolver{}

	result, err := NewRunner(testLogger(), cfg, fake, Options{
		Algorithms: []string{"dijkstra"},
	}).Run(context.Background())
	require.NoError(t, err)

	calls := fake.calls()
	require.Len(t, calls, 2)
	assert.Len(t, calls[0].Pairs, 2)
	assert.Len(t, calls[1].Pairs, 5)
	assert.Equal(t, calls[1].Pairs[:2], calls[0].Pairs)

	// Warm-up answers are discarded.
	assert.Equal(t, 5, result.Metadata.Algorithms[0].Queries)
	assert.NoFileExists(t, filepath.Join(result.RunDir, analysis.SummariesFileName))
}

func TestRunner_NoAlgorithms(t *testing.T) {
	cfg := testConfig(t, plainGraph, rankedGraph)
	cfg.Algorithms = nil

	_, err := NewRunner(testLogger(), cfg, &fakeSolver{}, Options{}).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no algorithms selected")
}

func TestRunner_EndToEndWithEngine(t *testing.T) {
	engine := filepath.Join(t.TempDir(), "engine.sh")
	script := "#!/bin/sh\n" +
		"echo \"loading $2\"\n" +
		"echo \"distance=7 relaxed=3 time(ns)=2000000\"\n"
	require.NoError(t, os.WriteFile(engine, []byte(script), 0o755))

	cfg := testConfig(t, plainGraph, rankedGraph)
	cfg.Solver.Command = []string{engine}
	cfg.Solver.Timeout = 10 * time.Second

	slv, err := NewSolver(testLogger(), cfg, nil)
	require.NoError(t, err)

	result, err := NewRunner(testLogger(), cfg, slv, Options{}).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, result.Report.Summaries, 3)
	assert.InDelta(t, 2.0, result.Report.Summaries[0].MeanTimeMS, 1e-9)
	assert.InDelta(t, 1.0, result.Report.Speedups[0].Mean, 1e-9)
}

func TestNewSolver(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *config.Config)
		wantName  string
		errSubstr string
	}{
		{
			name:     "single",
			mutate:   func(c *config.Config) { c.Solver.Backend = solver.BackendSingle },
			wantName: solver.BackendSingle,
		},
		{
			name:     "batch",
			mutate:   func(c *config.Config) { c.Solver.Backend = solver.BackendBatch },
			wantName: solver.BackendBatch,
		},
		{
			name:      "docker without manager",
			mutate:    func(c *config.Config) { c.Solver.Backend = solver.BackendDocker },
			errSubstr: "requires a docker manager",
		},
		{
			name:      "unknown",
			mutate:    func(c *config.Config) { c.Solver.Backend = "ssh" },
			errSubstr: `unknown solver backend "ssh"`,
		},
		{
			name: "missing command",
			mutate: func(c *config.Config) {
				c.Solver.Backend = solver.BackendSingle
				c.Solver.Command = nil
			},
			errSubstr: "solver command is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t, plainGraph, rankedGraph)
			tt.mutate(cfg)

			slv, err := NewSolver(testLogger(), cfg, nil)
			if tt.errSubstr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errSubstr)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantName, slv.Name())
		})
	}
}

func TestResourceLimits(t *testing.T) {
	limits, err := resourceLimits(&config.DockerConfig{})
	require.NoError(t, err)
	assert.Nil(t, limits)

	limits, err = resourceLimits(&config.DockerConfig{CpusetCpus: "0,1", Memory: "2g"})
	require.NoError(t, err)
	assert.Equal(t, "0,1", limits.CpusetCpus)
	assert.Equal(t, int64(2<<30), limits.MemoryBytes)

	_, err = resourceLimits(&config.DockerConfig{Memory: "lots"})
	require.Error(t, err)
}

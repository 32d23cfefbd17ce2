package runner

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/docker/go-units"
	"github.com/sirupsen/logrus"

	"github.com/splidsboel/assignment3/pkg/analysis"
	"github.com/splidsboel/assignment3/pkg/config"
	"github.com/splidsboel/assignment3/pkg/fsutil"
	"github.com/splidsboel/assignment3/pkg/graphfile"
	"github.com/splidsboel/assignment3/pkg/results"
	"github.com/splidsboel/assignment3/pkg/solver"
	"github.com/splidsboel/assignment3/pkg/sysinfo"
	"github.com/splidsboel/assignment3/pkg/workload"
)

const (
	// RunsDir is the directory below the results dir holding run directories.
	RunsDir = "runs"

	// ConfigFileName is the resolved configuration snapshot of a run.
	ConfigFileName = "config.yaml"

	// PairsFileName is the query workload shared by every algorithm of a run.
	PairsFileName = "pairs.txt"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Algorithm statuses.
const (
	AlgorithmPending   = "pending"
	AlgorithmCompleted = "completed"
	AlgorithmFailed    = "failed"
)

// roleFormats is the vertex format each graph role must carry.
var roleFormats = map[string]graphfile.Format{
	config.GraphOriginal:  graphfile.FormatPlain,
	config.GraphAugmented: graphfile.FormatRanked,
}

// Runner executes experiment runs.
type Runner interface {
	Start(ctx context.Context) error
	Stop() error

	// Run executes every selected algorithm against the configured graphs
	// and writes a new run directory.
	Run(ctx context.Context) (*Result, error)
}

// Options tune a runner beyond the configuration file.
type Options struct {
	// Algorithms limits the run to the named algorithms.
	Algorithms []string
	// ImageDigest is recorded for the docker backend.
	ImageDigest string
	Owner       *fsutil.OwnerConfig
}

// Result describes a finished run.
type Result struct {
	RunDir   string
	Metadata *RunMetadata
	Report   *analysis.Report
}

// NewRunner creates a new runner instance.
func NewRunner(log logrus.FieldLogger, cfg *config.Config, slv solver.Solver, opts Options) Runner {
	return &runner{
		log:    log.WithField("component", "runner"),
		cfg:    cfg,
		solver: slv,
		opts:   opts,
	}
}

type runner struct {
	log    logrus.FieldLogger
	cfg    *config.Config
	solver solver.Solver
	opts   Options
}

// Ensure interface compliance.
var _ Runner = (*runner)(nil)

// Start initializes the runner.
func (r *runner) Start(_ context.Context) error {
	if err := fsutil.MkdirAll(filepath.Join(r.cfg.Global.ResultsDir, RunsDir), r.opts.Owner); err != nil {
		return fmt.Errorf("creating results directory: %w", err)
	}

	r.log.Debug("Runner started")

	return nil
}

// Stop cleans up the runner.
func (r *runner) Stop() error {
	r.log.Debug("Runner stopped")

	return nil
}

// Run executes one experiment. Any failure aborts the remaining
// algorithms; the run directory is kept and marked failed or cancelled.
func (r *runner) Run(ctx context.Context) (_ *Result, err error) {
	algs := r.cfg.ActiveAlgorithms(r.opts.Algorithms)
	if len(algs) == 0 {
		return nil, fmt.Errorf("no algorithms selected")
	}

	started := time.Now()
	runID := newRunID(started)
	runDir := filepath.Join(r.cfg.Global.ResultsDir, RunsDir, runID)

	if err := fsutil.MkdirAll(runDir, r.opts.Owner); err != nil {
		return nil, fmt.Errorf("creating run directory: %w", err)
	}

	log := r.log.WithFields(logrus.Fields{
		"run_id":  runID,
		"run_dir": runDir,
	})

	meta := r.newMetadata(ctx, runID, started, algs)

	defer func() {
		meta.TimestampEnd = time.Now().Unix()

		switch {
		case err == nil:
			meta.Status = StatusCompleted
		case ctx.Err() != nil:
			meta.Status = StatusCancelled
			meta.TerminationReason = err.Error()
		default:
			meta.Status = StatusFailed
			meta.TerminationReason = err.Error()
		}

		if werr := WriteMetadata(runDir, meta, r.opts.Owner); werr != nil {
			log.WithError(werr).Error("Failed to write run metadata")

			if err == nil {
				err = werr
			}
		}
	}()

	snapshot, err := r.cfg.Snapshot()
	if err != nil {
		return nil, err
	}

	if err := fsutil.WriteFile(filepath.Join(runDir, ConfigFileName), snapshot, r.opts.Owner); err != nil {
		return nil, fmt.Errorf("writing config snapshot: %w", err)
	}

	if err := WriteMetadata(runDir, meta, r.opts.Owner); err != nil {
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"seed":       meta.Seed,
		"pairs":      meta.Pairs,
		"algorithms": len(algs),
		"solver":     r.solver.Name(),
	}).Info("Starting run")

	graphs, err := r.loadGraphs(log, algs, meta)
	if err != nil {
		return nil, err
	}

	pairs, err := r.buildWorkload(log, runDir, graphs)
	if err != nil {
		return nil, err
	}

	metrics := newRunMetrics()
	inputs := make([]analysis.Input, 0, len(algs))

	for i := range algs {
		alg := &algs[i]
		am := meta.Algorithms[i]

		records, wall, err := r.runAlgorithm(ctx, log, alg, graphs[alg.Graph], pairs)
		if err != nil {
			am.Status = AlgorithmFailed

			return nil, fmt.Errorf("algorithm %s: %w", alg.Name, err)
		}

		out := filepath.Join(runDir, alg.Output)
		if err := results.Write(out, records, r.opts.Owner); err != nil {
			am.Status = AlgorithmFailed

			return nil, fmt.Errorf("writing %s results: %w", alg.Name, err)
		}

		metrics.observe(alg.Name, records, wall)

		am.Status = AlgorithmCompleted
		am.Queries = len(records)
		am.DurationMS = wall.Milliseconds()

		if err := WriteMetadata(runDir, meta, r.opts.Owner); err != nil {
			return nil, err
		}

		inputs = append(inputs, analysis.Input{Label: am.Label, Path: out})
	}

	if err := metrics.write(filepath.Join(runDir, MetricsFileName), r.opts.Owner); err != nil {
		return nil, err
	}

	result := &Result{RunDir: runDir, Metadata: meta}

	if r.cfg.Analysis.Enabled {
		report, err := analysis.BuildReport(log, inputs, ReportOptions(runDir, r.cfg, r.opts.Owner))
		if err != nil {
			return nil, fmt.Errorf("building report: %w", err)
		}

		result.Report = report
	}

	log.WithField("duration", time.Since(started).Round(time.Millisecond)).Info("Run completed")

	return result, nil
}

// ReportOptions places every analysis artifact in dir.
func ReportOptions(dir string, cfg *config.Config, owner *fsutil.OwnerConfig) analysis.ReportOptions {
	opts := analysis.ReportOptions{
		Title:         cfg.Analysis.Title,
		TablePath:     filepath.Join(dir, analysis.TableFileName),
		PlotPath:      filepath.Join(dir, analysis.BoxPlotFileName),
		MarkdownPath:  filepath.Join(dir, analysis.MarkdownFileName),
		SummariesPath: filepath.Join(dir, analysis.SummariesFileName),
		Owner:         owner,
	}

	if cfg.Analysis.Scatter {
		opts.ScatterPath = filepath.Join(dir, analysis.ScatterFileName)
	}

	return opts
}

func (r *runner) newMetadata(
	ctx context.Context,
	runID string,
	started time.Time,
	algs []config.AlgorithmConfig,
) *RunMetadata {
	meta := &RunMetadata{
		ID:        runID,
		Timestamp: started.Unix(),
		Status:    StatusRunning,
		Seed:      r.cfg.Experiment.Seed,
		Pairs:     r.cfg.Experiment.Pairs,
		Warmup:    r.cfg.Experiment.Warmup,
		Domain: DomainMetadata{
			Min: r.cfg.Experiment.Domain.Min,
			Max: r.cfg.Experiment.Domain.Max,
		},
		Remap:         r.cfg.Experiment.Remap,
		Backend:       r.cfg.Solver.Backend,
		SolverCommand: r.cfg.Solver.Command,
		Graphs:        make(map[string]*GraphMetadata, 2),
		Algorithms:    make([]*AlgorithmMetadata, 0, len(algs)),
		System:        sysinfo.Collect(ctx, r.log),
		Labels:        r.cfg.Experiment.Labels,
	}

	if r.cfg.Solver.Backend == solver.BackendDocker {
		meta.SolverImage = r.cfg.Solver.Docker.Image
		meta.ImageDigest = r.opts.ImageDigest
	}

	for _, alg := range algs {
		meta.Algorithms = append(meta.Algorithms, &AlgorithmMetadata{
			Name:   alg.Name,
			Label:  alg.DisplayLabel(),
			Mode:   alg.Mode,
			Graph:  alg.Graph,
			Output: alg.Output,
			Status: AlgorithmPending,
		})
	}

	return meta
}

// loadGraphs parses every graph role the algorithms use and checks that
// each file carries the vertex format of its role. It runs before any
// solver invocation.
func (r *runner) loadGraphs(
	log logrus.FieldLogger,
	algs []config.AlgorithmConfig,
	meta *RunMetadata,
) (map[string]graphfile.Descriptor, error) {
	graphs := make(map[string]graphfile.Descriptor, 2)

	for _, alg := range algs {
		if _, ok := graphs[alg.Graph]; ok {
			continue
		}

		path := r.cfg.GraphPath(alg.Graph)
		if path == "" {
			return nil, fmt.Errorf("algorithm %s: no %s graph configured", alg.Name, alg.Graph)
		}

		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("resolving %s graph path: %w", alg.Graph, err)
		}

		desc, err := graphfile.Load(abs)
		if err != nil {
			return nil, fmt.Errorf("loading %s graph: %w", alg.Graph, err)
		}

		if err := graphfile.Expect(desc, roleFormats[alg.Graph]); err != nil {
			return nil, fmt.Errorf("%s graph: %w", alg.Graph, err)
		}

		var size int64
		if info, err := os.Stat(abs); err == nil {
			size = info.Size()
		}

		header := desc.Header()
		meta.Graphs[alg.Graph] = &GraphMetadata{
			Path:      abs,
			Format:    string(desc.Format()),
			Vertices:  header.Vertices,
			Edges:     header.Edges,
			SizeBytes: size,
		}

		log.WithFields(logrus.Fields{
			"role":     alg.Graph,
			"path":     abs,
			"format":   desc.Format(),
			"vertices": header.Vertices,
			"size":     units.HumanSize(float64(size)),
		}).Info("Loaded graph")

		graphs[alg.Graph] = desc
	}

	return graphs, nil
}

// buildWorkload generates the seeded workload once and remaps it onto the
// vertex ids of the original graph, or of the augmented graph when no
// selected algorithm runs on the original one. Every algorithm answers
// the same pairs.
func (r *runner) buildWorkload(
	log logrus.FieldLogger,
	runDir string,
	graphs map[string]graphfile.Descriptor,
) ([]workload.Pair, error) {
	role := config.GraphOriginal

	desc, ok := graphs[role]
	if !ok {
		role = config.GraphAugmented
		desc = graphs[role]
	}

	gen, err := workload.NewGenerator(r.cfg.Experiment.Seed, workload.Domain{
		Min: r.cfg.Experiment.Domain.Min,
		Max: r.cfg.Experiment.Domain.Max,
	})
	if err != nil {
		return nil, fmt.Errorf("creating workload generator: %w", err)
	}

	pairs, err := workload.Build(gen, workload.RemapStrategy(r.cfg.Experiment.Remap),
		desc.VertexIDs(), r.cfg.Experiment.Pairs)
	if err != nil {
		return nil, fmt.Errorf("building workload: %w", err)
	}

	if err := writePairsFile(filepath.Join(runDir, PairsFileName), pairs, r.opts.Owner); err != nil {
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"remapped_on": role,
		"pairs":       len(pairs),
	}).Debug("Workload prepared")

	return pairs, nil
}

func writePairsFile(path string, pairs []workload.Pair, owner *fsutil.OwnerConfig) error {
	f, err := fsutil.Create(path, owner)
	if err != nil {
		return fmt.Errorf("creating pairs file: %w", err)
	}

	if err := workload.WritePairs(f, pairs); err != nil {
		_ = f.Close()

		return fmt.Errorf("writing pairs file: %w", err)
	}

	return f.Close()
}

// runAlgorithm runs the optional warm-up and then the measured queries.
func (r *runner) runAlgorithm(
	ctx context.Context,
	log logrus.FieldLogger,
	alg *config.AlgorithmConfig,
	graph graphfile.Descriptor,
	pairs []workload.Pair,
) ([]results.Record, time.Duration, error) {
	log = log.WithFields(logrus.Fields{
		"algorithm": alg.Name,
		"mode":      alg.Mode,
	})

	if n := min(r.cfg.Experiment.Warmup, len(pairs)); n > 0 {
		log.WithField("queries", n).Info("Warming up")

		if _, err := r.solver.Solve(ctx, &solver.Request{
			Mode:  alg.Mode,
			Graph: graph.Path(),
			Pairs: pairs[:n],
		}); err != nil {
			return nil, 0, fmt.Errorf("warm-up: %w", err)
		}
	}

	log.WithField("queries", len(pairs)).Info("Running queries")

	start := time.Now()

	records, err := r.solver.Solve(ctx, &solver.Request{
		Mode:  alg.Mode,
		Graph: graph.Path(),
		Pairs: pairs,
	})
	if err != nil {
		return nil, 0, err
	}

	wall := time.Since(start)

	log.WithField("duration", wall.Round(time.Millisecond)).Info("Queries completed")

	return records, wall, nil
}

// ReadMetadata loads run.json from a run directory.
func ReadMetadata(runDir string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(runDir, analysis.RunFileName))
	if err != nil {
		return nil, fmt.Errorf("reading run metadata: %w", err)
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parsing run metadata: %w", err)
	}

	return &meta, nil
}

// WriteMetadata stores meta as run.json in runDir.
func WriteMetadata(runDir string, meta *RunMetadata, owner *fsutil.OwnerConfig) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling run metadata: %w", err)
	}

	if err := fsutil.WriteFile(filepath.Join(runDir, analysis.RunFileName), data, owner); err != nil {
		return fmt.Errorf("writing run metadata: %w", err)
	}

	return nil
}

// IsRunDir reports whether dir contains run metadata.
func IsRunDir(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, analysis.RunFileName))

	return err == nil && info.Mode().IsRegular()
}

// newRunID names a run directory after its start time.
var newRunID = func(started time.Time) string {
	return fmt.Sprintf("%d_%s", started.Unix(), generateShortID())
}

// generateShortID generates a short random hex ID (8 characters).
func generateShortID() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%08x", time.Now().UnixNano()&0xFFFFFFFF)
	}

	return hex.EncodeToString(b)
}

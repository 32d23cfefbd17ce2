package main

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/splidsboel/assignment3/pkg/config"
	"github.com/splidsboel/assignment3/pkg/cpufreq"
	"github.com/splidsboel/assignment3/pkg/docker"
	"github.com/splidsboel/assignment3/pkg/fsutil"
	"github.com/splidsboel/assignment3/pkg/runner"
	"github.com/splidsboel/assignment3/pkg/solver"
	"github.com/splidsboel/assignment3/pkg/upload"
)

var (
	runOriginalGraph  string
	runAugmentedGraph string
	runPairs          int
	runWarmup         int
	runSeed           uint64
	runRemap          string
	runResultsDir     string
	runBackend        string
	runLimitAlgs      []string
	runLabels         []string
	runNoAnalysis     bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run an experiment",
	Long: `Generate the query workload, run every selected algorithm against the
engine, store the per-query results and build the comparison report.`,
	RunE: runExperiment,
}

func init() {
	rootCmd.AddCommand(runCmd)

	f := runCmd.Flags()
	f.StringVar(&runOriginalGraph, "original-graph", "", "plain graph file (overrides graphs.original)")
	f.StringVar(&runOriginalGraph, "graph", "", "alias of --original-graph")
	f.StringVar(&runAugmentedGraph, "augmented-graph", "", "ranked graph file (overrides graphs.augmented)")
	f.IntVar(&runPairs, "pairs", config.DefaultPairs, "number of measured query pairs")
	f.IntVar(&runWarmup, "warmup", 0, "number of leading pairs run before measuring")
	f.Uint64Var(&runSeed, "seed", config.DefaultSeed, "workload seed")
	f.StringVar(&runRemap, "remap", config.DefaultRemap, "pair remap strategy (modulo, uniform)")
	f.StringVar(&runResultsDir, "results-dir", config.DefaultResultsDir, "results root directory")
	f.StringVar(&runBackend, "backend", config.DefaultBackend,
		"solver backend ("+strings.Join([]string{solver.BackendSingle, solver.BackendBatch, solver.BackendDocker}, ", ")+")")
	f.StringSliceVar(&runLimitAlgs, "limit-algorithm", nil,
		"Limit to algorithms with these names (comma-separated or repeated flag)")
	f.StringSliceVar(&runLabels, "metadata.label", nil, "Add metadata label as key=value (can be repeated)")
	f.BoolVar(&runNoAnalysis, "no-analysis", false, "skip the comparison report")

	_ = f.MarkDeprecated("graph", "use --original-graph")
}

// applyRunFlags copies explicitly set flags over the loaded config.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()

	if f.Changed("original-graph") || f.Changed("graph") {
		cfg.Graphs.Original = runOriginalGraph
	}

	if f.Changed("augmented-graph") {
		cfg.Graphs.Augmented = runAugmentedGraph
	}

	if f.Changed("pairs") {
		cfg.Experiment.Pairs = runPairs
	}

	if f.Changed("warmup") {
		cfg.Experiment.Warmup = runWarmup
	}

	if f.Changed("seed") {
		cfg.Experiment.Seed = runSeed
	}

	if f.Changed("remap") {
		cfg.Experiment.Remap = runRemap
	}

	if f.Changed("results-dir") {
		cfg.Global.ResultsDir = runResultsDir
	}

	if f.Changed("backend") {
		cfg.Solver.Backend = runBackend
	}

	if runNoAnalysis {
		cfg.Analysis.Enabled = false
	}

	for _, entry := range runLabels {
		k, v, ok := strings.Cut(entry, "=")
		if !ok || k == "" {
			return fmt.Errorf("invalid metadata label %q: must be key=value", entry)
		}

		if cfg.Experiment.Labels == nil {
			cfg.Experiment.Labels = make(map[string]string, len(runLabels))
		}

		cfg.Experiment.Labels[k] = v
	}

	return nil
}

func runExperiment(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if err := applyRunFlags(cmd, cfg); err != nil {
		return err
	}

	if err := cfg.Validate(config.ValidateOpts{
		Algorithms:    runLimitAlgs,
		RequireSolver: true,
	}); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	owner, err := fsutil.ParseOwner(cfg.Global.Owner)
	if err != nil {
		return fmt.Errorf("parsing global.owner: %w", err)
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	var resultsUploader upload.Uploader

	if cfg.Upload.S3.Enabled {
		resultsUploader, err = upload.NewS3Uploader(log, &cfg.Upload.S3)
		if err != nil {
			return fmt.Errorf("creating S3 uploader: %w", err)
		}

		// Fail fast before spending time on the experiment.
		if err := resultsUploader.Preflight(ctx); err != nil {
			return fmt.Errorf("S3 upload preflight check failed: %w", err)
		}

		log.Info("S3 upload preflight check passed")
	}

	opts := runner.Options{Algorithms: runLimitAlgs, Owner: owner}

	var containerMgr docker.Manager

	if cfg.Solver.Backend == solver.BackendDocker {
		containerMgr, err = docker.NewManager(log)
		if err != nil {
			return fmt.Errorf("creating container manager: %w", err)
		}

		if err := containerMgr.Start(ctx); err != nil {
			return fmt.Errorf("starting container manager: %w", err)
		}

		defer func() {
			if err := containerMgr.Stop(); err != nil {
				log.WithError(err).Warn("Failed to stop container manager")
			}
		}()

		image := cfg.Solver.Docker.Image
		if err := containerMgr.PullImage(ctx, image, cfg.Solver.Docker.PullPolicy); err != nil {
			return fmt.Errorf("pulling solver image: %w", err)
		}

		digest, err := containerMgr.GetImageDigest(ctx, image)
		if err != nil {
			log.WithError(err).WithField("image", image).Warn("Failed to resolve image digest")
		}

		opts.ImageDigest = digest
	}

	if cfg.CPUFreq.Enabled() {
		cpus, err := cfg.CPUFreqCPUs()
		if err != nil {
			return err
		}

		freqMgr := cpufreq.NewManager(log, cfg.CPUFreq.StateDir, cfg.CPUFreq.SysfsPath)
		if err := freqMgr.Start(ctx); err != nil {
			return fmt.Errorf("starting cpufreq manager: %w", err)
		}

		defer func() {
			if err := freqMgr.Stop(); err != nil {
				log.WithError(err).Warn("Failed to restore CPU frequency settings")
			}
		}()

		if err := freqMgr.Apply(ctx, cfg.CPUFreq.Settings(), cpus); err != nil {
			return fmt.Errorf("applying CPU frequency settings: %w", err)
		}
	}

	slv, err := runner.NewSolver(log, cfg, containerMgr)
	if err != nil {
		return fmt.Errorf("creating solver: %w", err)
	}

	r := runner.NewRunner(log, cfg, slv, opts)

	if err := r.Start(ctx); err != nil {
		return fmt.Errorf("starting runner: %w", err)
	}

	defer func() {
		if err := r.Stop(); err != nil {
			log.WithError(err).Warn("Failed to stop runner")
		}
	}()

	result, err := r.Run(ctx)
	if err != nil {
		return fmt.Errorf("running experiment: %w", err)
	}

	if result.Report != nil {
		for _, sp := range result.Report.Speedups {
			fmt.Println(sp.String())
		}
	}

	if resultsUploader != nil {
		summary, err := resultsUploader.Upload(ctx, result.RunDir)
		if err != nil {
			return fmt.Errorf("uploading results: %w", err)
		}

		log.WithFields(logrus.Fields{
			"prefix": summary.Prefix,
			"files":  summary.Files,
		}).Info("Results uploaded")
	}

	log.WithField("run_dir", result.RunDir).Info("Experiment completed")

	return nil
}

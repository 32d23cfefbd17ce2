package runner

import (
	"fmt"

	"github.com/docker/go-units"
	"github.com/sirupsen/logrus"

	"github.com/splidsboel/assignment3/pkg/config"
	"github.com/splidsboel/assignment3/pkg/docker"
	"github.com/splidsboel/assignment3/pkg/solver"
)

// SolverOptions translates the solver section of cfg.
func SolverOptions(cfg *config.Config) solver.Options {
	return solver.Options{
		Command:          cfg.Solver.Command,
		Env:              cfg.SolverEnv(),
		Dir:              cfg.Solver.Dir,
		Timeout:          cfg.Solver.Timeout,
		StderrLimit:      cfg.Solver.StderrLimit,
		StdoutSample:     cfg.Solver.StdoutSample,
		ProgressInterval: cfg.Solver.ProgressInterval,
	}
}

// NewSolver builds the configured solver backend. mgr is only used by the
// docker backend and may be nil otherwise.
func NewSolver(log logrus.FieldLogger, cfg *config.Config, mgr docker.Manager) (solver.Solver, error) {
	opts := SolverOptions(cfg)

	switch cfg.Solver.Backend {
	case solver.BackendSingle:
		return solver.NewSingleQuery(log, opts)
	case solver.BackendBatch:
		return solver.NewBatch(log, opts)
	case solver.BackendDocker:
		if mgr == nil {
			return nil, fmt.Errorf("docker backend requires a docker manager")
		}

		limits, err := resourceLimits(&cfg.Solver.Docker)
		if err != nil {
			return nil, err
		}

		return solver.NewDocker(log, mgr, opts, solver.DockerOptions{
			Image:      cfg.Solver.Docker.Image,
			GraphMount: cfg.Solver.Docker.GraphMount,
			Limits:     limits,
		})
	default:
		return nil, fmt.Errorf("unknown solver backend %q", cfg.Solver.Backend)
	}
}

func resourceLimits(cfg *config.DockerConfig) (*docker.ResourceLimits, error) {
	if cfg.CpusetCpus == "" && cfg.Memory == "" {
		return nil, nil
	}

	limits := &docker.ResourceLimits{CpusetCpus: cfg.CpusetCpus}

	if cfg.Memory != "" {
		bytes, err := units.RAMInBytes(cfg.Memory)
		if err != nil {
			return nil, fmt.Errorf("parsing solver.docker.memory %q: %w", cfg.Memory, err)
		}

		limits.MemoryBytes = bytes
	}

	return limits, nil
}

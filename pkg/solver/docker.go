package solver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/splidsboel/assignment3/pkg/docker"
	"github.com/splidsboel/assignment3/pkg/results"
)

// DefaultGraphMount is where the graph directory is mounted in the container.
const DefaultGraphMount = "/graphs"

// DockerOptions configure the container backend.
type DockerOptions struct {
	Image      string
	GraphMount string
	Limits     *docker.ResourceLimits
}

// dockerSolver runs the single-query contract inside a container. The
// graph's directory is bind mounted read-only and Options.Command is used as
// the container entrypoint.
type dockerSolver struct {
	log   logrus.FieldLogger
	mgr   docker.Manager
	opts  Options
	dopts DockerOptions
}

var _ Solver = (*dockerSolver)(nil)

// NewDocker creates a solver backed by containers from mgr. The manager must
// already be started and the image present.
func NewDocker(log logrus.FieldLogger, mgr docker.Manager, opts Options, dopts DockerOptions) (Solver, error) {
	opts.applyDefaults()

	if err := opts.validate(); err != nil {
		return nil, err
	}

	if dopts.Image == "" {
		return nil, fmt.Errorf("docker solver image is required")
	}

	if dopts.GraphMount == "" {
		dopts.GraphMount = DefaultGraphMount
	}

	return &dockerSolver{
		log:   log.WithField("component", "solver-docker"),
		mgr:   mgr,
		opts:  opts,
		dopts: dopts,
	}, nil
}

func (d *dockerSolver) Name() string {
	return BackendDocker
}

func (d *dockerSolver) Solve(ctx context.Context, req *Request) ([]results.Record, error) {
	graphPath, err := filepath.Abs(req.Graph)
	if err != nil {
		return nil, fmt.Errorf("resolving graph path: %w", err)
	}

	inContainer := filepath.ToSlash(filepath.Join(d.dopts.GraphMount, filepath.Base(graphPath)))
	records := make([]results.Record, 0, len(req.Pairs))

	for i, pair := range req.Pairs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		spec := &docker.ContainerSpec{
			Image:      d.dopts.Image,
			Entrypoint: d.opts.Command,
			Command: []string{
				req.Mode,
				inContainer,
				strconv.FormatInt(pair.Source, 10),
				strconv.FormatInt(pair.Target, 10),
			},
			Mounts: []docker.Mount{{
				Source:   filepath.Dir(graphPath),
				Target:   d.dopts.GraphMount,
				ReadOnly: true,
			}},
			Labels:         map[string]string{"chbench.mode": req.Mode},
			ResourceLimits: d.dopts.Limits,
		}

		stdout, err := d.run(ctx, req.Mode, spec)
		if err != nil {
			return nil, err
		}

		rec, err := parseQueryOutput(req.Mode, pair, stdout, d.opts.StdoutSample)
		if err != nil {
			return nil, err
		}

		records = append(records, rec)

		logProgress(d.log, d.opts.ProgressInterval, req.Mode, i+1, len(req.Pairs))
	}

	return records, nil
}

func (d *dockerSolver) run(ctx context.Context, mode string, spec *docker.ContainerSpec) ([]byte, error) {
	runCtx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer

	code, err := d.mgr.RunContainer(runCtx, spec, &stdout, &stderr)

	if ctx.Err() != nil {
		return nil, fmt.Errorf("running %s: %w", mode, ctx.Err())
	}

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return nil, &TimeoutError{Mode: mode, Timeout: d.opts.Timeout}
	}

	if err != nil {
		return nil, fmt.Errorf("running %s container: %w", mode, err)
	}

	if code != 0 {
		return nil, &ExitError{
			Mode:   mode,
			Code:   int(code),
			Stderr: truncate(stderr.String(), d.opts.StderrLimit),
		}
	}

	return stdout.Bytes(), nil
}

// Package solver drives the external shortest-path engine and turns its
// output into result records.
package solver

import (
	"context"
	"fmt"
	"time"

	"github.com/splidsboel/assignment3/pkg/results"
	"github.com/splidsboel/assignment3/pkg/workload"
)

// Backend names.
const (
	BackendSingle = "single"
	BackendBatch  = "batch"
	BackendDocker = "docker"
)

// Default limits.
const (
	DefaultTimeout      = 600 * time.Second
	DefaultStderrLimit  = 500
	DefaultStdoutSample = 200
)

// Request is one unit of work for a solver: every pair is answered by the
// engine running in Mode against Graph.
type Request struct {
	Mode  string
	Graph string
	Pairs []workload.Pair
}

// Solver answers shortest-path queries. Records are returned in the order
// of Request.Pairs.
type Solver interface {
	Solve(ctx context.Context, req *Request) ([]results.Record, error)
	Name() string
}

// Options configure how the engine is launched.
type Options struct {
	// Command is the engine executable followed by fixed leading arguments,
	// for example ["java", "-cp", "app.jar", "ch.Main"].
	Command []string
	// Env holds extra KEY=VALUE entries added to the inherited environment.
	Env []string
	// Dir is the working directory of the engine process.
	Dir string
	// Timeout bounds every single engine invocation.
	Timeout time.Duration
	// StderrLimit caps the stderr excerpt carried by ExitError.
	StderrLimit int
	// StdoutSample caps the stdout excerpt carried by ParseError.
	StdoutSample int
	// ProgressInterval logs progress every N pairs. Zero disables it.
	ProgressInterval int
}

func (o *Options) applyDefaults() {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}

	if o.StderrLimit <= 0 {
		o.StderrLimit = DefaultStderrLimit
	}

	if o.StdoutSample <= 0 {
		o.StdoutSample = DefaultStdoutSample
	}
}

func (o *Options) validate() error {
	if len(o.Command) == 0 || o.Command[0] == "" {
		return fmt.Errorf("solver command is required")
	}

	return nil
}

// argv returns the fixed command prefix followed by args.
func (o *Options) argv(args ...string) []string {
	out := make([]string, 0, len(o.Command)-1+len(args))
	out = append(out, o.Command[1:]...)

	return append(out, args...)
}

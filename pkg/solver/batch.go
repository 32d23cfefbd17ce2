package solver

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/splidsboel/assignment3/pkg/results"
	"github.com/splidsboel/assignment3/pkg/workload"
)

// batch launches the engine once per request and streams the graph and all
// pairs over stdin:
//
//	<graph text>
//	<pair count>
//	<source> <target>
//	...
//
// The engine prints one "source,target,distance,time_ns,relaxed" line per
// pair in input order.
type batch struct {
	log  logrus.FieldLogger
	opts Options
}

var _ Solver = (*batch)(nil)

// NewBatch creates a solver that answers a whole request in one process.
func NewBatch(log logrus.FieldLogger, opts Options) (Solver, error) {
	opts.applyDefaults()

	if err := opts.validate(); err != nil {
		return nil, err
	}

	return &batch{
		log:  log.WithField("component", "solver-batch"),
		opts: opts,
	}, nil
}

func (b *batch) Name() string {
	return BackendBatch
}

func (b *batch) Solve(ctx context.Context, req *Request) ([]results.Record, error) {
	graph, err := os.Open(req.Graph)
	if err != nil {
		return nil, fmt.Errorf("opening graph for %s: %w", req.Mode, err)
	}
	defer func() { _ = graph.Close() }()

	var tail bytes.Buffer

	terminated, err := endsWithNewline(graph)
	if err != nil {
		return nil, fmt.Errorf("reading graph for %s: %w", req.Mode, err)
	}

	if !terminated {
		tail.WriteByte('\n')
	}

	if err := workload.WritePairs(&tail, req.Pairs); err != nil {
		return nil, fmt.Errorf("encoding pairs: %w", err)
	}

	b.log.WithFields(logrus.Fields{
		"mode":  req.Mode,
		"graph": req.Graph,
		"pairs": len(req.Pairs),
	}).Debug("Starting batch invocation")

	stdout, err := runProcess(ctx, &b.opts, req.Mode, io.MultiReader(graph, &tail), req.Mode)
	if err != nil {
		return nil, err
	}

	return parseBatchOutput(req.Mode, req.Pairs, stdout, b.opts.StdoutSample)
}

// endsWithNewline reports whether f is empty or its last byte is '\n'.
func endsWithNewline(f *os.File) (bool, error) {
	info, err := f.Stat()
	if err != nil {
		return false, err
	}

	if info.Size() == 0 {
		return true, nil
	}

	last := make([]byte, 1)
	if _, err := f.ReadAt(last, info.Size()-1); err != nil {
		return false, err
	}

	return last[0] == '\n', nil
}

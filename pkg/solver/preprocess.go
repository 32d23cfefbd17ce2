package solver

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

// PreprocessMode is the engine mode that builds a ranked graph.
const PreprocessMode = "preprocess"

// Preprocess runs the engine's hierarchy construction: the plain graph is
// streamed on stdin and the engine writes the ranked graph to output.
func Preprocess(ctx context.Context, log logrus.FieldLogger, opts Options, plainGraph, output string) error {
	opts.applyDefaults()

	if err := opts.validate(); err != nil {
		return err
	}

	in, err := os.Open(plainGraph)
	if err != nil {
		return fmt.Errorf("opening plain graph: %w", err)
	}
	defer func() { _ = in.Close() }()

	log = log.WithField("component", "solver-preprocess")
	log.WithFields(logrus.Fields{
		"input":  plainGraph,
		"output": output,
	}).Info("Building ranked graph")

	stdout, err := runProcess(ctx, &opts, PreprocessMode, in, PreprocessMode, output)
	if err != nil {
		return err
	}

	log.WithField("stdout", sample(stdout, opts.StdoutSample)).Debug("Preprocess finished")

	return nil
}

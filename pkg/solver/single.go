package solver

import (
	"context"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/splidsboel/assignment3/pkg/results"
)

// singleQuery launches one engine process per pair:
//
//	<command...> <mode> <graph> <source> <target>
type singleQuery struct {
	log  logrus.FieldLogger
	opts Options
}

var _ Solver = (*singleQuery)(nil)

// NewSingleQuery creates a solver that runs the engine once per pair.
func NewSingleQuery(log logrus.FieldLogger, opts Options) (Solver, error) {
	opts.applyDefaults()

	if err := opts.validate(); err != nil {
		return nil, err
	}

	return &singleQuery{
		log:  log.WithField("component", "solver-single"),
		opts: opts,
	}, nil
}

func (s *singleQuery) Name() string {
	return BackendSingle
}

func (s *singleQuery) Solve(ctx context.Context, req *Request) ([]results.Record, error) {
	records := make([]results.Record, 0, len(req.Pairs))

	for i, pair := range req.Pairs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		stdout, err := runProcess(ctx, &s.opts, req.Mode, nil,
			req.Mode,
			req.Graph,
			strconv.FormatInt(pair.Source, 10),
			strconv.FormatInt(pair.Target, 10),
		)
		if err != nil {
			return nil, err
		}

		rec, err := parseQueryOutput(req.Mode, pair, stdout, s.opts.StdoutSample)
		if err != nil {
			return nil, err
		}

		records = append(records, rec)

		logProgress(s.log, s.opts.ProgressInterval, req.Mode, i+1, len(req.Pairs))
	}

	return records, nil
}

func logProgress(log logrus.FieldLogger, interval int, mode string, done, total int) {
	if interval <= 0 || (done%interval != 0 && done != total) {
		return
	}

	log.WithFields(logrus.Fields{
		"mode":  mode,
		"done":  done,
		"total": total,
	}).Info("Query progress")
}

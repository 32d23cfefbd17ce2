// Package indexer keeps the run index in sync with the run directories
// found by one or more storage readers.
package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/splidsboel/assignment3/pkg/analysis"
	"github.com/splidsboel/assignment3/pkg/indexstore"
	"github.com/splidsboel/assignment3/pkg/runner"
	"github.com/splidsboel/assignment3/pkg/storage"
)

// defaultConcurrency is the number of runs indexed in parallel when
// no explicit concurrency value is configured.
const defaultConcurrency = 4

// Stats counts the work done by one indexing pass.
type Stats struct {
	Indexed   int64
	Reindexed int64
	Failed    int64
}

// Indexer is a background service that periodically scans storage and
// upserts run metadata and summaries into the index store.
type Indexer interface {
	Start(ctx context.Context) error
	Stop() error

	// RunOnce performs a single synchronous indexing pass.
	RunOnce(ctx context.Context) (*Stats, error)
}

var _ Indexer = (*indexer)(nil)

type indexer struct {
	log         logrus.FieldLogger
	store       indexstore.Store
	readers     []storage.Reader
	interval    time.Duration
	concurrency int
	done        chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
	dbMu        sync.Mutex // serializes DB writes to avoid SQLite contention
}

// NewIndexer creates a new indexer over readers.
func NewIndexer(
	log logrus.FieldLogger,
	store indexstore.Store,
	readers []storage.Reader,
	interval time.Duration,
	concurrency int,
) Indexer {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	return &indexer{
		log:         log.WithField("component", "indexer"),
		store:       store,
		readers:     readers,
		interval:    interval,
		concurrency: concurrency,
		done:        make(chan struct{}),
	}
}

// Start launches a goroutine that runs an immediate pass and then one
// pass per interval.
func (idx *indexer) Start(ctx context.Context) error {
	if idx.interval <= 0 {
		return fmt.Errorf("indexer interval must be positive")
	}

	idx.log.WithFields(logrus.Fields{
		"interval":    idx.interval.String(),
		"concurrency": idx.concurrency,
		"sources":     len(idx.readers),
	}).Info("Starting indexer")

	idx.wg.Add(1)

	go func() {
		defer idx.wg.Done()

		idx.runPass(ctx)

		ticker := time.NewTicker(idx.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				idx.runPass(ctx)
			case <-idx.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop signals the indexer goroutine to stop and waits for it.
func (idx *indexer) Stop() error {
	idx.stopOnce.Do(func() { close(idx.done) })
	idx.wg.Wait()

	idx.log.Info("Indexer stopped")

	return nil
}

func (idx *indexer) RunOnce(ctx context.Context) (*Stats, error) {
	var (
		stats Stats
		errs  []error
	)

	for _, r := range idx.readers {
		if err := ctx.Err(); err != nil {
			return &stats, err
		}

		if err := idx.indexSource(ctx, r, &stats); err != nil {
			errs = append(errs, fmt.Errorf("source %s: %w", r.Source(), err))
		}
	}

	if len(errs) > 0 {
		return &stats, errs[0]
	}

	return &stats, nil
}

func (idx *indexer) runPass(ctx context.Context) {
	start := time.Now()

	stats, err := idx.RunOnce(ctx)
	if err != nil {
		idx.log.WithError(err).Warn("Indexing pass failed")
	}

	idx.log.WithFields(logrus.Fields{
		"duration":  time.Since(start).Round(time.Millisecond),
		"indexed":   stats.Indexed,
		"reindexed": stats.Reindexed,
		"failed":    stats.Failed,
	}).Info("Indexing pass completed")
}

// indexSource indexes runs that are new to the store and re-indexes runs
// that were still in progress at their last pass.
func (idx *indexer) indexSource(ctx context.Context, r storage.Reader, stats *Stats) error {
	source := r.Source()

	storageIDs, err := r.ListRunIDs(ctx)
	if err != nil {
		return fmt.Errorf("listing storage run IDs: %w", err)
	}

	indexedIDs, err := idx.store.ListRunIDs(ctx, source)
	if err != nil {
		return fmt.Errorf("listing indexed run IDs: %w", err)
	}

	incompleteIDs, err := idx.store.ListIncompleteRunIDs(ctx, source)
	if err != nil {
		return fmt.Errorf("listing incomplete run IDs: %w", err)
	}

	indexedSet := make(map[string]struct{}, len(indexedIDs))
	for _, id := range indexedIDs {
		indexedSet[id] = struct{}{}
	}

	incompleteSet := make(map[string]struct{}, len(incompleteIDs))
	for _, id := range incompleteIDs {
		incompleteSet[id] = struct{}{}
	}

	type runTask struct {
		runID          string
		alreadyIndexed bool
	}

	tasks := make([]runTask, 0, len(storageIDs))

	for _, id := range storageIDs {
		_, alreadyIndexed := indexedSet[id]
		_, isIncomplete := incompleteSet[id]

		if alreadyIndexed && !isIncomplete {
			continue
		}

		tasks = append(tasks, runTask{runID: id, alreadyIndexed: alreadyIndexed})
	}

	srcLog := idx.log.WithField("source", source)

	srcLog.WithFields(logrus.Fields{
		"storage_runs":    len(storageIDs),
		"indexed_runs":    len(indexedIDs),
		"incomplete_runs": len(incompleteIDs),
		"pending":         len(tasks),
	}).Info("Scanning source")

	if len(tasks) == 0 {
		return nil
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(idx.concurrency)

	var indexed, reindexed, failed atomic.Int64

	for _, task := range tasks {
		g.Go(func() error {
			select {
			case <-gCtx.Done():
				return gCtx.Err()
			case <-idx.done:
				return nil
			default:
			}

			if err := idx.indexRun(gCtx, r, task.runID, task.alreadyIndexed); err != nil {
				srcLog.WithError(err).
					WithField("run_id", task.runID).
					Warn("Failed to index run")

				failed.Add(1)

				return nil //nolint:nilerr // log and continue
			}

			if task.alreadyIndexed {
				reindexed.Add(1)
			} else {
				indexed.Add(1)
			}

			srcLog.WithField("run_id", task.runID).Debug("Indexed run")

			return nil
		})
	}

	err = g.Wait()

	stats.Indexed += indexed.Load()
	stats.Reindexed += reindexed.Load()
	stats.Failed += failed.Load()

	if err != nil {
		return fmt.Errorf("indexing runs: %w", err)
	}

	return nil
}

// indexRun reads run.json and, when present, summaries.json of a run and
// upserts the derived rows.
func (idx *indexer) indexRun(
	ctx context.Context, r storage.Reader, runID string, isReindex bool,
) error {
	var (
		metaData, summaryData []byte
		metaErr, summaryErr   error
		fileWg                sync.WaitGroup
	)

	fileWg.Add(2) //nolint:mnd // two files

	go func() {
		defer fileWg.Done()

		metaData, metaErr = r.GetRunFile(ctx, runID, analysis.RunFileName)
	}()

	go func() {
		defer fileWg.Done()

		summaryData, summaryErr = r.GetRunFile(ctx, runID, analysis.SummariesFileName)
	}()

	fileWg.Wait()

	if metaErr != nil {
		return fmt.Errorf("reading %s: %w", analysis.RunFileName, metaErr)
	}

	if metaData == nil {
		return fmt.Errorf("%s not found", analysis.RunFileName)
	}

	var meta runner.RunMetadata
	if err := json.Unmarshal(metaData, &meta); err != nil {
		return fmt.Errorf("parsing %s: %w", analysis.RunFileName, err)
	}

	var report *analysis.Report

	switch {
	case summaryErr != nil:
		idx.log.WithError(summaryErr).WithField("run_id", runID).
			Debug("Failed to read summaries, continuing without them")
	case summaryData != nil:
		parsed, err := analysis.ReadSummaries(summaryData)
		if err != nil {
			idx.log.WithError(err).WithField("run_id", runID).
				Warn("Ignoring unreadable summaries")
		} else {
			report = parsed
		}
	}

	now := time.Now().UTC()
	run := BuildRun(r.Source(), runID, &meta, report != nil)
	run.IndexedAt = now

	if isReindex {
		run.ReindexedAt = &now
	}

	idx.dbMu.Lock()
	defer idx.dbMu.Unlock()

	if err := idx.store.UpsertRun(ctx, run); err != nil {
		return fmt.Errorf("upserting run: %w", err)
	}

	if report == nil {
		return nil
	}

	if err := idx.store.ReplaceSummaries(
		ctx, run.Source, runID, BuildSummaries(&meta, report),
	); err != nil {
		return fmt.Errorf("replacing summaries: %w", err)
	}

	return nil
}

// BuildRun converts run metadata into an index row. runID is the
// directory name, which wins over the ID recorded inside run.json.
func BuildRun(source, runID string, meta *runner.RunMetadata, hasSummaries bool) *indexstore.Run {
	run := &indexstore.Run{
		Source:            source,
		RunID:             runID,
		Timestamp:         meta.Timestamp,
		TimestampEnd:      meta.TimestampEnd,
		Status:            meta.Status,
		TerminationReason: meta.TerminationReason,
		Seed:              meta.Seed,
		Pairs:             meta.Pairs,
		Remap:             meta.Remap,
		Backend:           meta.Backend,
		SolverImage:       meta.SolverImage,
		Algorithms:        len(meta.Algorithms),
		HasSummaries:      hasSummaries,
	}

	if meta.System != nil {
		run.Hostname = meta.System.Hostname
	}

	if len(meta.Labels) > 0 {
		if b, err := json.Marshal(meta.Labels); err == nil {
			run.LabelsJSON = string(b)
		}
	}

	return run
}

// BuildSummaries joins the per-label statistics of report with the
// algorithm records of meta. Speed-ups are attached to their contender.
func BuildSummaries(meta *runner.RunMetadata, report *analysis.Report) []*indexstore.AlgorithmSummary {
	byLabel := make(map[string]*runner.AlgorithmMetadata, len(meta.Algorithms))
	for _, alg := range meta.Algorithms {
		byLabel[alg.Label] = alg
	}

	speedups := make(map[string]analysis.Speedup, len(report.Speedups))
	for _, sp := range report.Speedups {
		speedups[sp.Contender] = sp
	}

	out := make([]*indexstore.AlgorithmSummary, 0, len(report.Summaries))

	for _, s := range report.Summaries {
		row := &indexstore.AlgorithmSummary{
			Label:         s.Label,
			Queries:       s.Count,
			Unreachable:   s.Unreachable,
			MeanTimeMS:    s.MeanTimeMS,
			MedianTimeMS:  s.MedianTimeMS,
			P95TimeMS:     s.P95TimeMS,
			MeanRelaxed:   s.MeanRelaxed,
			MedianRelaxed: s.MedianRelaxed,
		}

		if alg, ok := byLabel[s.Label]; ok {
			row.Algorithm = alg.Name
			row.Status = alg.Status
		}

		if sp, ok := speedups[s.Label]; ok {
			row.SpeedupMean = sp.Mean
			row.SpeedupMedian = sp.Median
		}

		out = append(out, row)
	}

	return out
}

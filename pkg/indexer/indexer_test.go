package indexer_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splidsboel/assignment3/pkg/analysis"
	"github.com/splidsboel/assignment3/pkg/config"
	"github.com/splidsboel/assignment3/pkg/indexer"
	"github.com/splidsboel/assignment3/pkg/indexstore"
	"github.com/splidsboel/assignment3/pkg/runner"
	"github.com/splidsboel/assignment3/pkg/storage"
	"github.com/splidsboel/assignment3/pkg/sysinfo"
)

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	return log
}

func setupStore(t *testing.T) indexstore.Store {
	t.Helper()

	s := indexstore.NewStore(testLogger(), &config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteDatabaseConfig{Path: filepath.Join(t.TempDir(), "index.db")},
	})
	require.NoError(t, s.Start(context.Background()))

	t.Cleanup(func() { _ = s.Stop() })

	return s
}

func testMetadata(id, status string) *runner.RunMetadata {
	return &runner.RunMetadata{
		ID:        id,
		Timestamp: 1700000000,
		Status:    status,
		Seed:      42,
		Pairs:     100,
		Remap:     "modulo",
		Backend:   "single",
		Algorithms: []*runner.AlgorithmMetadata{
			{Name: "dijkstra", Label: "Dijkstra", Status: "completed"},
			{Name: "ch", Label: "CH", Status: "completed"},
		},
		System: &sysinfo.SystemInfo{Hostname: "bench-1"},
		Labels: map[string]string{"host": "lab"},
	}
}

func testReport() *analysis.Report {
	return &analysis.Report{
		Summaries: []analysis.Summary{
			{Label: "Dijkstra", Count: 100, MeanTimeMS: 8, MedianTimeMS: 7},
			{Label: "CH", Count: 100, Unreachable: 2, MeanTimeMS: 2, MedianTimeMS: 1.75},
		},
		Speedups: []analysis.Speedup{
			{Baseline: "Dijkstra", Contender: "CH", Pairs: 98, Mean: 4, Median: 4},
		},
	}
}

func writeRun(t *testing.T, root string, meta *runner.RunMetadata, report *analysis.Report) {
	t.Helper()

	dir := filepath.Join(root, runner.RunsDir, meta.ID)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, runner.WriteMetadata(dir, meta, nil))

	if report != nil {
		require.NoError(t, analysis.WriteSummaries(
			filepath.Join(dir, analysis.SummariesFileName), report, nil,
		))
	}
}

func TestBuildSummaries(t *testing.T) {
	rows := indexer.BuildSummaries(testMetadata("r", "completed"), testReport())
	require.Len(t, rows, 2)

	assert.Equal(t, "dijkstra", rows[0].Algorithm)
	assert.Zero(t, rows[0].SpeedupMean)

	assert.Equal(t, "ch", rows[1].Algorithm)
	assert.Equal(t, "completed", rows[1].Status)
	assert.Equal(t, 2, rows[1].Unreachable)
	assert.InDelta(t, 4.0, rows[1].SpeedupMean, 1e-9)
}

func TestBuildRun(t *testing.T) {
	run := indexer.BuildRun("local", "dir-id", testMetadata("inner-id", "failed"), false)

	assert.Equal(t, "dir-id", run.RunID)
	assert.Equal(t, "failed", run.Status)
	assert.Equal(t, "bench-1", run.Hostname)
	assert.Equal(t, 2, run.Algorithms)
	assert.JSONEq(t, `{"host":"lab"}`, run.LabelsJSON)
	assert.False(t, run.HasSummaries)
}

func TestIndexer_RunOnce(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store := setupStore(t)

	writeRun(t, root, testMetadata("1700000000_aaaaaaaa", "completed"), testReport())
	writeRun(t, root, testMetadata("1700000001_bbbbbbbb", "running"), nil)

	// A directory without run.json is counted as a failure, not fatal.
	require.NoError(t, os.MkdirAll(filepath.Join(root, runner.RunsDir, "stray"), 0o755))

	idx := indexer.NewIndexer(testLogger(), store, []storage.Reader{storage.NewLocalReader(root)}, time.Minute, 2)

	stats, err := idx.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Indexed)
	assert.Equal(t, int64(1), stats.Failed)

	runs, err := store.ListRuns(ctx, indexstore.RunFilter{Source: storage.LocalSource})
	require.NoError(t, err)
	require.Len(t, runs, 2)

	summaries, err := store.ListSummaries(ctx, storage.LocalSource, "1700000000_aaaaaaaa")
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, "CH", summaries[1].Label)

	// Only the running run is picked up again.
	stats, err = idx.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Indexed)
	assert.Equal(t, int64(1), stats.Reindexed)

	// Once it completes with summaries it drops out of the incomplete set.
	writeRun(t, root, testMetadata("1700000001_bbbbbbbb", "completed"), testReport())

	stats, err = idx.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Reindexed)

	run, err := store.GetRun(ctx, storage.LocalSource, "1700000001_bbbbbbbb")
	require.NoError(t, err)
	assert.Equal(t, "completed", run.Status)
	assert.True(t, run.HasSummaries)
	assert.NotNil(t, run.ReindexedAt)

	stats, err = idx.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Indexed+stats.Reindexed)
}

func TestIndexer_StartStop(t *testing.T) {
	root := t.TempDir()
	store := setupStore(t)

	writeRun(t, root, testMetadata("1700000000_cccccccc", "completed"), testReport())

	idx := indexer.NewIndexer(testLogger(), store, []storage.Reader{storage.NewLocalReader(root)}, time.Hour, 0)
	require.NoError(t, idx.Start(context.Background()))

	assert.Eventually(t, func() bool {
		ids, err := store.ListRunIDs(context.Background(), storage.LocalSource)

		return err == nil && len(ids) == 1
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, idx.Stop())
	require.NoError(t, idx.Stop())
}

func TestIndexer_StartRequiresInterval(t *testing.T) {
	idx := indexer.NewIndexer(testLogger(), setupStore(t), nil, 0, 1)
	assert.Error(t, idx.Start(context.Background()))
}

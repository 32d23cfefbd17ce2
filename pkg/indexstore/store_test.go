package indexstore_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splidsboel/assignment3/pkg/config"
	"github.com/splidsboel/assignment3/pkg/indexstore"
)

func setupTestStore(t *testing.T) indexstore.Store {
	t.Helper()

	cfg := &config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteDatabaseConfig{Path: filepath.Join(t.TempDir(), "index.db")},
	}

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	s := indexstore.NewStore(log, cfg)
	require.NoError(t, s.Start(context.Background()))

	t.Cleanup(func() { _ = s.Stop() })

	return s
}

func TestStore_UnsupportedDriver(t *testing.T) {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	s := indexstore.NewStore(log, &config.DatabaseConfig{Driver: "mysql"})
	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database driver")
	assert.NoError(t, s.Stop())
}

func TestStore_UpsertAndListRuns(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	now := time.Now().Unix()

	runs := []indexstore.Run{
		{Source: "local", RunID: "run-1", Timestamp: now, Status: "completed", HasSummaries: true},
		{Source: "local", RunID: "run-2", Timestamp: now + 1, Status: "running"},
		{Source: "s3://bucket/chbench", RunID: "run-3", Timestamp: now + 2, Status: "completed"},
	}
	for i := range runs {
		require.NoError(t, s.UpsertRun(ctx, &runs[i]))
	}

	tests := []struct {
		name   string
		filter indexstore.RunFilter
		want   []string
	}{
		{name: "all newest first", want: []string{"run-3", "run-2", "run-1"}},
		{name: "by source", filter: indexstore.RunFilter{Source: "local"}, want: []string{"run-2", "run-1"}},
		{name: "by status", filter: indexstore.RunFilter{Status: "completed"}, want: []string{"run-3", "run-1"}},
		{name: "limit", filter: indexstore.RunFilter{Limit: 1}, want: []string{"run-3"}},
		{name: "no match", filter: indexstore.RunFilter{Source: "nowhere"}, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			listed, err := s.ListRuns(ctx, tt.filter)
			require.NoError(t, err)

			ids := make([]string, 0, len(listed))
			for _, r := range listed {
				ids = append(ids, r.RunID)
			}

			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestStore_UpsertRunOverwrites(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertRun(ctx, &indexstore.Run{
		Source: "local", RunID: "run-up", Status: "running", Pairs: 10,
	}))
	require.NoError(t, s.UpsertRun(ctx, &indexstore.Run{
		Source: "local", RunID: "run-up", Status: "completed", Pairs: 10, HasSummaries: true,
	}))

	runs, err := s.ListRuns(ctx, indexstore.RunFilter{Source: "local"})
	require.NoError(t, err)
	require.Len(t, runs, 1, "upsert must not duplicate the row")
	assert.Equal(t, "completed", runs[0].Status)
	assert.True(t, runs[0].HasSummaries)
}

func TestStore_GetRun(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertRun(ctx, &indexstore.Run{
		Source: "local", RunID: "run-get", Status: "completed", Seed: 7,
	}))

	run, err := s.GetRun(ctx, "local", "run-get")
	require.NoError(t, err)
	assert.Equal(t, uint64(7), run.Seed)

	run, err = s.GetRun(ctx, "", "run-get")
	require.NoError(t, err)
	assert.Equal(t, "local", run.Source)

	_, err = s.GetRun(ctx, "local", "missing")
	assert.ErrorIs(t, err, indexstore.ErrNotFound)
}

func TestStore_ListRunIDs(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	runs := []indexstore.Run{
		{Source: "a", RunID: "aaa", Status: "completed"},
		{Source: "a", RunID: "bbb", Status: "running"},
		{Source: "b", RunID: "ccc", Status: "completed"},
	}
	for i := range runs {
		require.NoError(t, s.UpsertRun(ctx, &runs[i]))
	}

	ids, err := s.ListRunIDs(ctx, "a")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"aaa", "bbb"}, ids)

	otherIDs, err := s.ListRunIDs(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, []string{"ccc"}, otherIDs)
}

func TestStore_ListIncompleteRunIDs(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	const src = "local"

	tests := []struct {
		name       string
		run        indexstore.Run
		wantInList bool
	}{
		{
			name:       "running without summaries is incomplete",
			run:        indexstore.Run{Source: src, RunID: "r-running", Status: "running"},
			wantInList: true,
		},
		{
			name:       "completed without summaries is terminal",
			run:        indexstore.Run{Source: src, RunID: "r-completed", Status: "completed"},
			wantInList: false,
		},
		{
			name:       "failed is terminal",
			run:        indexstore.Run{Source: src, RunID: "r-failed", Status: "failed"},
			wantInList: false,
		},
		{
			name:       "cancelled is terminal",
			run:        indexstore.Run{Source: src, RunID: "r-cancelled", Status: "cancelled"},
			wantInList: false,
		},
		{
			name: "running with summaries already indexed",
			run: indexstore.Run{
				Source: src, RunID: "r-running-summaries", Status: "running", HasSummaries: true,
			},
			wantInList: false,
		},
	}

	wantIDs := make([]string, 0, len(tests))

	for _, tt := range tests {
		run := tt.run
		require.NoError(t, s.UpsertRun(ctx, &run), tt.name)

		if tt.wantInList {
			wantIDs = append(wantIDs, tt.run.RunID)
		}
	}

	ids, err := s.ListIncompleteRunIDs(ctx, src)
	require.NoError(t, err)
	assert.ElementsMatch(t, wantIDs, ids)
}

func TestStore_Summaries(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.ReplaceSummaries(ctx, "local", "run-1", []*indexstore.AlgorithmSummary{
		{Label: "Dijkstra", Algorithm: "dijkstra", Queries: 100, MeanTimeMS: 4},
		{Label: "CH", Algorithm: "ch", Queries: 100, MeanTimeMS: 1, SpeedupMean: 4},
	}))
	require.NoError(t, s.ReplaceSummaries(ctx, "local", "run-2", []*indexstore.AlgorithmSummary{
		{Label: "CH", Algorithm: "ch", Queries: 50, MeanTimeMS: 2, SpeedupMean: 3},
	}))

	listed, err := s.ListSummaries(ctx, "local", "run-1")
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "Dijkstra", listed[0].Label)
	assert.Equal(t, "run-1", listed[1].RunID)

	// Replacing drops the previous rows.
	require.NoError(t, s.ReplaceSummaries(ctx, "local", "run-1", []*indexstore.AlgorithmSummary{
		{Label: "CH", Algorithm: "ch", Queries: 100, MeanTimeMS: 1.5},
	}))

	listed, err = s.ListSummaries(ctx, "local", "run-1")
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.InDelta(t, 1.5, listed[0].MeanTimeMS, 1e-9)

	byLabel, err := s.ListSummariesByLabel(ctx, "CH")
	require.NoError(t, err)
	require.Len(t, byLabel, 2)
	assert.Equal(t, "run-1", byLabel[0].RunID)
	assert.Equal(t, "run-2", byLabel[1].RunID)

	require.NoError(t, s.ReplaceSummaries(ctx, "local", "run-2", nil))

	byLabel, err = s.ListSummariesByLabel(ctx, "CH")
	require.NoError(t, err)
	assert.Len(t, byLabel, 1)
}

func TestStore_DeleteRun(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertRun(ctx, &indexstore.Run{Source: "local", RunID: "gone", Status: "completed"}))
	require.NoError(t, s.ReplaceSummaries(ctx, "local", "gone", []*indexstore.AlgorithmSummary{
		{Label: "CH"},
	}))

	require.NoError(t, s.DeleteRun(ctx, "local", "gone"))

	_, err := s.GetRun(ctx, "local", "gone")
	assert.ErrorIs(t, err, indexstore.ErrNotFound)

	summaries, err := s.ListSummaries(ctx, "local", "gone")
	require.NoError(t, err)
	assert.Empty(t, summaries)
}

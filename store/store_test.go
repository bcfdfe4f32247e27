package store_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/soocke/score-split-go/store"
)

func openTestStore(t *testing.T) (*store.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "results.db")
	s, err := store.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func TestRunLifecycle(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	run, err := s.CreateRun(ctx, "run.ssplt", "video", 2)
	require.NoError(t, err)
	require.NotEmpty(t, run.ID)
	require.Equal(t, store.StatusRunning, run.Status)

	detected := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.RecordResult(ctx, store.SplitResult{RunID: run.ID, SplitIndex: 1, Score: 99, Confidence: 0.97, FrameSequence: 40, FrameOffset: 20 * time.Second, DetectedAt: detected}))
	require.NoError(t, s.RecordResult(ctx, store.SplitResult{RunID: run.ID, SplitIndex: 0, Score: 482, Confidence: 0.99, FrameSequence: 12, FrameOffset: 6 * time.Second, DetectedAt: detected}))
	require.NoError(t, s.FinishRun(ctx, run.ID, store.StatusCompleted, 55))

	results, err := s.ListResults(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, 0, results[0].SplitIndex)
	require.Equal(t, int64(482), results[0].Score)
	require.Equal(t, 6*time.Second, results[0].FrameOffset)
	require.Equal(t, uint64(40), results[1].FrameSequence)
	require.True(t, results[1].DetectedAt.Equal(detected))

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	require.Equal(t, store.StatusCompleted, got.Status)
	require.Equal(t, int64(55), got.Frames)
	require.NotNil(t, got.FinishedAt)
	require.Equal(t, 2, got.SplitCount)
}

func TestRecordResultReplacesSameSplit(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	run, err := s.CreateRun(ctx, "a.ssplt", "files", 1)
	require.NoError(t, err)

	require.NoError(t, s.RecordResult(ctx, store.SplitResult{RunID: run.ID, SplitIndex: 0, Score: 1}))
	require.NoError(t, s.RecordResult(ctx, store.SplitResult{RunID: run.ID, SplitIndex: 0, Score: 2}))
	results, err := s.ListResults(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, int64(2), results[0].Score)
}

func TestListRunsNewestFirst(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	first, err := s.CreateRun(ctx, "a.ssplt", "screen", 1)
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	second, err := s.CreateRun(ctx, "b.ssplt", "screen", 1)
	require.NoError(t, err)

	runs, err := s.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Equal(t, second.ID, runs[0].ID)
	require.Equal(t, first.ID, runs[1].ID)

	limited, err := s.ListRuns(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
}

func TestUnknownRun(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	_, err := s.GetRun(ctx, "missing")
	require.True(t, errors.Is(err, store.ErrRunNotFound))
	require.ErrorIs(t, s.FinishRun(ctx, "missing", store.StatusStopped, 0), store.ErrRunNotFound)
	require.Error(t, s.RecordResult(ctx, store.SplitResult{RunID: "missing", SplitIndex: 0}))
}

func TestOpenRejectsSchemaMismatch(t *testing.T) {
	s, path := openTestStore(t)
	require.NoError(t, s.Close())

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec("UPDATE schema_version SET version = 99")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = store.Open(path)
	require.ErrorIs(t, err, store.ErrSchemaMismatch)
}

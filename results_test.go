package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const feedHeader = "datetime,filename,train,valid,test,memo,message"

func writeFeed(t *testing.T, tasksDir string, taskID string, userID string, rows ...string) {
	t.Helper()
	dir := taskOutputUserDir(tasksDir, taskID)
	require.NoError(t, os.MkdirAll(dir, 0o755))

	content := feedHeader + "\n" + strings.Join(rows, "\n") + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, userID+".csv"), []byte(content), 0o644))
}

func ledgerFor(ids ...string) map[string]Account {
	accounts := map[string]Account{}
	for _, id := range ids {
		accounts[id] = Account{ID: id, Email: id + "@example.com", Name: "name-" + id}
	}
	return accounts
}

func TestReadTaskResults(t *testing.T) {
	tasksDir := t.TempDir()
	writeFeed(t, tasksDir, "t1", "u1",
		"2025-01-10 09:00:00,f1.py,0.85,0.82,0.90,first try,ok",
		"2025-01-11 10:00:00,f2.py,0.70,0.90,0.95,second,ok",
	)

	stats := ReadTaskResults(tasksDir, "t1", ledgerFor("u1"))
	require.Len(t, stats, 1)
	require.Len(t, stats["u1"], 2)

	first := stats["u1"][0]
	assert.Equal(t, "u1", first.UserID)
	assert.Equal(t, "name-u1", first.UserName)
	assert.Equal(t, "f1.py", first.Filename)
	assert.Equal(t, 0.85, first.Train)
	assert.Equal(t, 0.82, first.Valid)
	assert.Equal(t, 0.90, first.Test)
	assert.Equal(t, "first try", first.Memo)
	assert.Equal(t, time.Date(2025, 1, 10, 9, 0, 0, 0, time.Local), first.Timestamp)
}

func TestReadTaskResultsSkipsMalformedRows(t *testing.T) {
	tasksDir := t.TempDir()
	writeFeed(t, tasksDir, "t1", "u1",
		"not a result row",
		"2025-01-10 09:00:00,f1.py,not-a-float,0.8,0.9,,",
		"2025-01-11 10:00:00,f2.py,0.70,0.90,0.95,,still fine",
	)

	stats := ReadTaskResults(tasksDir, "t1", ledgerFor("u1"))
	require.Len(t, stats["u1"], 1)
	assert.Equal(t, "f2.py", stats["u1"][0].Filename)
}

func TestReadTaskResultsMessageMayContainCommas(t *testing.T) {
	tasksDir := t.TempDir()
	writeFeed(t, tasksDir, "t1", "u1",
		"2025-01-10 09:00:00,f1.py,0.85,0.82,0.90,memo,took 3s, 12 rows, no errors",
	)

	stats := ReadTaskResults(tasksDir, "t1", ledgerFor("u1"))
	require.Len(t, stats["u1"], 1)
	assert.Equal(t, "took 3s, 12 rows, no errors", stats["u1"][0].Message)
}

func TestReadTaskResultsDropsUnknownUsers(t *testing.T) {
	tasksDir := t.TempDir()
	writeFeed(t, tasksDir, "t1", "ghost",
		"2025-01-10 09:00:00,f1.py,0.85,0.82,0.90,,",
	)

	stats := ReadTaskResults(tasksDir, "t1", ledgerFor("u1"))
	assert.Empty(t, stats)
}

func TestReadTaskResultsDropsEmptyFeeds(t *testing.T) {
	tasksDir := t.TempDir()
	writeFeed(t, tasksDir, "t1", "u1", "garbage only")

	stats := ReadTaskResults(tasksDir, "t1", ledgerFor("u1"))
	assert.Empty(t, stats)
}

func TestInProcUsers(t *testing.T) {
	tasksDir := t.TempDir()
	dir := taskOutputUserDir(tasksDir, "t1")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "u1_inproc"), nil, 0o644))

	names := InProcUsers(tasksDir, "t1", ledgerFor("u1", "u2"))
	assert.Equal(t, []string{"name-u1"}, names)
}

func TestReadEvalTimestamp(t *testing.T) {
	tasksDir := t.TempDir()
	assert.Equal(t, "", ReadEvalTimestamp(tasksDir, "t1"))

	dir := filepath.Join(tasksDir, "t1", outputDirName)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "timestamp.txt"), []byte("2025-01-10 09:00:00\n"), 0o644))
	assert.Equal(t, "2025-01-10 09:00:00", ReadEvalTimestamp(tasksDir, "t1"))
}

func resultAt(day int, train, valid, test float64) Result {
	return Result{
		Timestamp: time.Date(2025, 1, day, 12, 0, 0, 0, time.Local),
		Filename:  "f.py",
		Train:     train,
		Valid:     valid,
		Test:      test,
	}
}

func TestDefaultBestSelectorPrefersAchieving(t *testing.T) {
	task := questTask(MetricAccuracy, 0.8)
	results := []Result{
		resultAt(1, 0.9, 0.9, 0.9), // achieves
		resultAt(2, 0.7, 0.9, 0.9), // newer but does not achieve
		resultAt(3, -1, -1, -1),    // newest but failed run
	}

	best, ok := DefaultBestSelector(results, task)
	require.True(t, ok)
	assert.Equal(t, 1, best.Timestamp.Day())
}

func TestDefaultBestSelectorFallsBackToMostRecentValid(t *testing.T) {
	task := questTask(MetricAccuracy, 0.99)
	results := []Result{
		resultAt(1, 0.9, 0.9, 0.9),
		resultAt(2, 0.8, 0.9, 0.9),
	}

	best, ok := DefaultBestSelector(results, task)
	require.True(t, ok)
	assert.Equal(t, 2, best.Timestamp.Day())
}

func TestDefaultBestSelectorNoValidResults(t *testing.T) {
	task := questTask(MetricAccuracy, 0.8)
	_, ok := DefaultBestSelector([]Result{resultAt(1, -1, -1, -1)}, task)
	assert.False(t, ok)

	_, ok = DefaultBestSelector(nil, task)
	assert.False(t, ok)
}

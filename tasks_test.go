package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTaskFile(t *testing.T, dir string, id string, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, id), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, id, taskFileName), []byte(body), 0o644))
}

const questBody = `{
  "name": "Iris",
  "explanation": "classify species",
  "type": "Quest",
  "metric": "Accuracy",
  "goal": 0.95,
  "start_date": "2025-01-01",
  "end_date": "2030-01-01"
}`

const contestBody = `{
  "name": "House Prices",
  "type": "Contest",
  "metric": "MAE",
  "goal": 3.0,
  "start_date": "2025-01-10",
  "end_date": "2025-02-10",
  "timelimit_per_data": 0.5
}`

func TestParseTaskType(t *testing.T) {
	tt, err := ParseTaskType("Quest")
	require.NoError(t, err)
	assert.Equal(t, TypeQuest, tt)

	tt, err = ParseTaskType("Contest")
	require.NoError(t, err)
	assert.Equal(t, TypeContest, tt)

	_, err = ParseTaskType("Raffle")
	assert.Error(t, err)
}

func TestParseMetric(t *testing.T) {
	m, err := ParseMetric("MAE")
	require.NoError(t, err)
	assert.Equal(t, MetricMAE, m)

	_, err = ParseMetric("F1")
	assert.Error(t, err)
}

func TestGoalText(t *testing.T) {
	quest := Task{Metric: MetricAccuracy, Goal: 0.95}
	assert.Equal(t, "accuracy 95 % or higher", quest.GoalText())

	contest := Task{Metric: MetricMAE, Goal: 3.0}
	assert.Equal(t, "MAE 3.0 or lower", contest.GoalText())
}

func TestRegistryReload(t *testing.T) {
	dir := t.TempDir()
	writeTaskFile(t, dir, "iris", questBody)
	writeTaskFile(t, dir, "house", contestBody)
	writeTaskFile(t, dir, "broken", "{ not json")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "empty"), 0o755))

	reg := NewTaskRegistry(dir)
	require.NoError(t, reg.Reload())

	assert.Equal(t, []string{"house", "iris"}, reg.IDs())

	iris, ok := reg.Get("iris")
	require.True(t, ok)
	assert.Equal(t, "Iris", iris.Name)
	assert.Equal(t, TypeQuest, iris.Type)
	assert.Equal(t, MetricAccuracy, iris.Metric)
	assert.Equal(t, 0.95, iris.Goal)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.Local), iris.StartDate)

	house, ok := reg.Get("house")
	require.True(t, ok)
	assert.Equal(t, TypeContest, house.Type)
	assert.Equal(t, MetricMAE, house.Metric)
	assert.Equal(t, 0.5, house.TimeLimitPerData)

	_, ok = reg.Get("broken")
	assert.False(t, ok)
}

func TestRegistrySnapshotIsACopy(t *testing.T) {
	dir := t.TempDir()
	writeTaskFile(t, dir, "iris", questBody)

	reg := NewTaskRegistry(dir)
	require.NoError(t, reg.Reload())

	snap := reg.Snapshot()
	snap["iris"] = Task{ID: "iris", Name: "mutated"}

	iris, ok := reg.Get("iris")
	require.True(t, ok)
	assert.Equal(t, "Iris", iris.Name)
}

func TestRegistryUpdateRewritesAndReloads(t *testing.T) {
	dir := t.TempDir()
	writeTaskFile(t, dir, "iris", questBody)

	reg := NewTaskRegistry(dir)
	require.NoError(t, reg.Reload())

	task, _ := reg.Get("iris")
	task.Goal = 0.99
	task.Suspend = true
	require.NoError(t, reg.Update(task))

	// The registry and the file on disk both reflect the edit.
	got, ok := reg.Get("iris")
	require.True(t, ok)
	assert.Equal(t, 0.99, got.Goal)
	assert.True(t, got.Suspend)

	reloaded, err := loadTaskFile(dir, "iris")
	require.NoError(t, err)
	assert.Equal(t, 0.99, reloaded.Goal)
	assert.True(t, reloaded.Suspend)
}

func TestRegistryUpdateUnknownID(t *testing.T) {
	reg := NewTaskRegistry(t.TempDir())
	assert.Error(t, reg.Update(Task{ID: "nope"}))
}

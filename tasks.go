package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// TaskType distinguishes always-open quests from windowed contests.
type TaskType int

const (
	TypeQuest TaskType = iota
	TypeContest
)

func (t TaskType) String() string {
	switch t {
	case TypeQuest:
		return "Quest"
	case TypeContest:
		return "Contest"
	default:
		return "Unknown"
	}
}

func ParseTaskType(s string) (TaskType, error) {
	switch s {
	case "Quest":
		return TypeQuest, nil
	case "Contest":
		return TypeContest, nil
	default:
		return TypeQuest, fmt.Errorf("unknown task type %q", s)
	}
}

// Metric identifies the scoring metric and its polarity.
type Metric int

const (
	MetricAccuracy Metric = iota
	MetricMAE
)

func (m Metric) String() string {
	switch m {
	case MetricAccuracy:
		return "Accuracy"
	case MetricMAE:
		return "MAE"
	default:
		return "Unknown"
	}
}

func ParseMetric(s string) (Metric, error) {
	switch s {
	case "Accuracy":
		return MetricAccuracy, nil
	case "MAE":
		return MetricMAE, nil
	default:
		return MetricAccuracy, fmt.Errorf("unknown metric %q", s)
	}
}

type Task struct {
	ID               string
	Name             string
	Explanation      string
	Type             TaskType
	Metric           Metric
	Goal             float64
	StartDate        time.Time
	EndDate          time.Time
	TimeLimitPerData float64
	Suspend          bool
}

// GoalText renders the task goal the way the board header shows it.
func (t Task) GoalText() string {
	switch t.Metric {
	case MetricAccuracy:
		return fmt.Sprintf("accuracy %.0f %% or higher", t.Goal*100)
	case MetricMAE:
		return fmt.Sprintf("MAE %.1f or lower", t.Goal)
	default:
		return ""
	}
}

const taskFileName = "task.json"
const taskDateLayout = "2006-01-02"

type taskJSON struct {
	Name             string  `json:"name"`
	Explanation      string  `json:"explanation,omitempty"`
	Type             string  `json:"type"`
	Metric           string  `json:"metric"`
	Goal             float64 `json:"goal"`
	StartDate        string  `json:"start_date"`
	EndDate          string  `json:"end_date"`
	TimeLimitPerData float64 `json:"timelimit_per_data,omitempty"`
	Suspend          bool    `json:"suspend,omitempty"`
}

func loadTaskFile(dir string, id string) (Task, error) {
	raw, err := os.ReadFile(filepath.Join(dir, id, taskFileName))
	if err != nil {
		return Task{}, err
	}

	var tj taskJSON
	if err := json.Unmarshal(raw, &tj); err != nil {
		return Task{}, err
	}

	taskType, err := ParseTaskType(tj.Type)
	if err != nil {
		return Task{}, err
	}
	metric, err := ParseMetric(tj.Metric)
	if err != nil {
		return Task{}, err
	}
	start, err := time.ParseInLocation(taskDateLayout, tj.StartDate, time.Local)
	if err != nil {
		return Task{}, err
	}
	end, err := time.ParseInLocation(taskDateLayout, tj.EndDate, time.Local)
	if err != nil {
		return Task{}, err
	}

	return Task{
		ID:               id,
		Name:             tj.Name,
		Explanation:      tj.Explanation,
		Type:             taskType,
		Metric:           metric,
		Goal:             tj.Goal,
		StartDate:        start,
		EndDate:          end,
		TimeLimitPerData: tj.TimeLimitPerData,
		Suspend:          tj.Suspend,
	}, nil
}

func saveTaskFile(dir string, task Task) error {
	tj := taskJSON{
		Name:             task.Name,
		Explanation:      task.Explanation,
		Type:             task.Type.String(),
		Metric:           task.Metric.String(),
		Goal:             task.Goal,
		StartDate:        task.StartDate.Format(taskDateLayout),
		EndDate:          task.EndDate.Format(taskDateLayout),
		TimeLimitPerData: task.TimeLimitPerData,
		Suspend:          task.Suspend,
	}
	raw, err := json.MarshalIndent(tj, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, task.ID, taskFileName), append(raw, '\n'), 0o644)
}

// TaskRegistry loads task definitions from per-task directories and hands
// out immutable snapshots. Admin edits rewrite task.json and reload the
// registry wholesale.
type TaskRegistry struct {
	dir string

	mu    sync.RWMutex
	tasks map[string]Task
}

func NewTaskRegistry(dir string) *TaskRegistry {
	return &TaskRegistry{dir: dir, tasks: map[string]Task{}}
}

// Reload rescans the tasks directory. Directories without a parseable
// task.json are skipped.
func (r *TaskRegistry) Reload() error {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return err
	}

	tasks := map[string]Task{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		task, err := loadTaskFile(r.dir, entry.Name())
		if err != nil {
			continue
		}
		tasks[entry.Name()] = task
	}

	r.mu.Lock()
	r.tasks = tasks
	r.mu.Unlock()
	return nil
}

// Snapshot returns a copy of the current task map.
func (r *TaskRegistry) Snapshot() map[string]Task {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tasks := make(map[string]Task, len(r.tasks))
	for id, task := range r.tasks {
		tasks[id] = task
	}
	return tasks
}

func (r *TaskRegistry) Get(id string) (Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	task, ok := r.tasks[id]
	return task, ok
}

// IDs returns task ids in stable order.
func (r *TaskRegistry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.tasks))
	for id := range r.tasks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Update rewrites a task's task.json and reloads the registry.
func (r *TaskRegistry) Update(task Task) error {
	if _, ok := r.Get(task.ID); !ok {
		return errors.New("unknown task id")
	}
	if err := saveTaskFile(r.dir, task); err != nil {
		return err
	}
	return r.Reload()
}

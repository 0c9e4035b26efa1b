package main

import (
	"fmt"
	"time"
)

// Star markers shown next to a participant who met the goal.
const (
	StarContest = "★"
	StarQuest   = "☆"
)

// Achieved implements the metric polarity table: Accuracy meets the goal
// at or above it, MAE at or below it.
func Achieved(metric Metric, goal float64, value float64) bool {
	switch metric {
	case MetricAccuracy:
		return value >= goal
	case MetricMAE:
		return value <= goal
	default:
		return false
	}
}

// AchieveGoal is the authoritative check: train and valid must meet the
// goal, and test as well for a contest. A failed evaluation (train < 0)
// never achieves, whatever the metric polarity would say about the
// sentinel value. Time plays no part here.
func AchieveGoal(task Task, r Result) bool {
	if r.Invalid() {
		return false
	}

	phases := []float64{r.Train, r.Valid}
	if task.Type == TypeContest {
		phases = append(phases, r.Test)
	}
	for _, value := range phases {
		if !Achieved(task.Metric, task.Goal, value) {
			return false
		}
	}
	return true
}

// AchieveStar returns the decorative marker for a row. While a contest is
// still open the marker is suppressed for everyone; the outcome must not
// leak mid-contest.
func AchieveStar(task Task, r Result, now time.Time) string {
	if task.Type == TypeContest && now.Before(task.EndDate) {
		return ""
	}
	if !AchieveGoal(task, r) {
		return ""
	}
	if task.Type == TypeContest {
		return StarContest
	}
	return StarQuest
}

// Unlock decides whether hidden test scores and source links are revealed
// to a viewer. Quests unlock as soon as the viewer achieved the goal;
// contests additionally wait for the window to close. The decision is
// applied page-wide, to every row the viewer sees.
func Unlock(task Task, now time.Time, viewerAchieved bool) bool {
	if !viewerAchieved {
		return false
	}
	switch task.Type {
	case TypeQuest:
		return true
	case TypeContest:
		return !now.Before(task.EndDate)
	default:
		return false
	}
}

// FormatValue renders a score in the metric's display unit: percentage
// for Accuracy, three decimals for MAE.
func FormatValue(metric Metric, value float64) string {
	switch metric {
	case MetricAccuracy:
		return fmt.Sprintf("%.2f %%", value*100)
	case MetricMAE:
		return fmt.Sprintf("%.3f", value)
	default:
		return ""
	}
}

package main

import (
	"sort"
	"time"
)

// AnnotatedRow is a result decorated for rendering: the decorative star
// marker and the two unlock facets. Computed fresh per view; never
// persisted.
type AnnotatedRow struct {
	Result
	Star          string
	TestVisible   bool
	SourceVisible bool
}

// BoardAssembler builds the three leaderboard views from a task's result
// feeds. The representative-result choice is delegated to Best.
type BoardAssembler struct {
	Best BestSelector
}

func NewBoardAssembler(best BestSelector) *BoardAssembler {
	if best == nil {
		best = DefaultBestSelector
	}
	return &BoardAssembler{Best: best}
}

// LiveBoard returns one row per user, failed runs dropped, ordered by
// submission time descending. The row is the user's most recent valid
// result, not their best one. Recency, not performance.
func (b *BoardAssembler) LiveBoard(task Task, stats map[string][]Result) []Result {
	var rows []Result
	for _, results := range stats {
		latest, ok := latestValid(results)
		if !ok {
			continue
		}
		rows = append(rows, latest)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Timestamp.After(rows[j].Timestamp)
	})
	return rows
}

func latestValid(results []Result) (Result, bool) {
	var latest Result
	found := false
	for _, r := range results {
		if r.Invalid() {
			continue
		}
		if !found || r.Timestamp.After(latest.Timestamp) {
			latest = r
			found = true
		}
	}
	return latest, found
}

// ContestRanking returns the closure ranking: each user's best result
// submitted within [StartDate, EndDate), ordered by test score
// descending. Nil for quests and for contests still open.
func (b *BoardAssembler) ContestRanking(task Task, stats map[string][]Result, now time.Time) []Result {
	if task.Type != TypeContest || now.Before(task.EndDate) {
		return nil
	}

	var rows []Result
	for _, results := range stats {
		var windowed []Result
		for _, r := range results {
			if !r.Timestamp.Before(task.StartDate) && r.Timestamp.Before(task.EndDate) {
				windowed = append(windowed, r)
			}
		}
		best, ok := b.Best(windowed, task)
		if !ok || best.Invalid() {
			continue
		}
		rows = append(rows, best)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Timestamp.After(rows[j].Timestamp)
	})
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Test > rows[j].Test
	})
	return rows
}

// History returns every result from every user, failed runs included,
// ordered by submission time descending.
func (b *BoardAssembler) History(task Task, stats map[string][]Result) []Result {
	var rows []Result
	for _, results := range stats {
		rows = append(rows, results...)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Timestamp.After(rows[j].Timestamp)
	})
	return rows
}

// ViewerAchieved computes the viewer's own achievement state from their
// representative result. This single decision gates the unlock for every
// row the viewer sees.
func (b *BoardAssembler) ViewerAchieved(task Task, viewerResults []Result) bool {
	best, ok := b.Best(viewerResults, task)
	if !ok {
		return false
	}
	return AchieveGoal(task, best)
}

// Annotate decorates rows with the star marker and the unlock facets.
// The test column is only ever visible on a contest; a quest test cell
// renders as a placeholder no matter what. The source link additionally
// requires the row itself to meet the goal.
func (b *BoardAssembler) Annotate(task Task, rows []Result, now time.Time, unlock bool) []AnnotatedRow {
	annotated := make([]AnnotatedRow, 0, len(rows))
	for _, r := range rows {
		annotated = append(annotated, AnnotatedRow{
			Result:        r,
			Star:          AchieveStar(task, r, now),
			TestVisible:   unlock && task.Type == TypeContest && !r.Invalid(),
			SourceVisible: unlock && AchieveGoal(task, r),
		})
	}
	return annotated
}

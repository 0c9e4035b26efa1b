package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	outputDirName     = "output"
	uploadDirName     = "upload"
	userModuleDirName = "user_module"

	resultTimeLayout = "2006-01-02 15:04:05"
)

// Result is one submission's scored outcome as the external evaluator
// wrote it. Train < 0 is the sentinel for a failed evaluation; such a
// row is never a ranking or achievement candidate.
type Result struct {
	UserID    string
	UserName  string
	Timestamp time.Time
	Filename  string
	Train     float64
	Valid     float64
	Test      float64
	Memo      string
	Message   string
}

// Invalid reports the failed-evaluation sentinel.
func (r Result) Invalid() bool {
	return r.Train < 0
}

// parseResultLine parses one feed row:
// datetime,filename,train,valid,test,memo,message. The message is the
// free-text tail and may itself contain commas.
func parseResultLine(line string) (Result, error) {
	fields := strings.SplitN(strings.TrimRight(line, "\r\n"), ",", 7)
	if len(fields) != 7 {
		return Result{}, fmt.Errorf("short result row")
	}

	ts, err := time.ParseInLocation(resultTimeLayout, fields[0], time.Local)
	if err != nil {
		return Result{}, err
	}
	train, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return Result{}, err
	}
	valid, err := strconv.ParseFloat(fields[3], 64)
	if err != nil {
		return Result{}, err
	}
	test, err := strconv.ParseFloat(fields[4], 64)
	if err != nil {
		return Result{}, err
	}

	return Result{
		Timestamp: ts,
		Filename:  fields[1],
		Train:     train,
		Valid:     valid,
		Test:      test,
		Memo:      fields[5],
		Message:   fields[6],
	}, nil
}

func taskOutputUserDir(tasksDir string, taskID string) string {
	return filepath.Join(tasksDir, taskID, outputDirName, "user")
}

// ReadTaskResults reads every per-user result feed of a task. The feeds
// are append-only files owned by the evaluator; a row that fails to
// parse is skipped so a partially observed feed cannot corrupt the
// output. Users absent from the ledger, and users whose feed yields no
// parseable row, are dropped.
func ReadTaskResults(tasksDir string, taskID string, accounts map[string]Account) map[string][]Result {
	stats := map[string][]Result{}

	paths, err := filepath.Glob(filepath.Join(taskOutputUserDir(tasksDir, taskID), "*.csv"))
	if err != nil {
		return stats
	}

	for _, path := range paths {
		userID := strings.TrimSuffix(filepath.Base(path), ".csv")
		account, known := accounts[userID]
		if !known {
			continue
		}

		results := readUserFeed(path, userID, account.Name)
		if len(results) == 0 {
			continue
		}
		stats[userID] = results
	}

	return stats
}

func readUserFeed(path string, userID string, userName string) []Result {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var results []Result
	scanner := bufio.NewScanner(f)
	first := true
	for scanner.Scan() {
		if first {
			first = false // header
			continue
		}
		r, err := parseResultLine(scanner.Text())
		if err != nil {
			continue
		}
		r.UserID = userID
		r.UserName = userName
		results = append(results, r)
	}
	return results
}

// InProcUsers lists display names of users whose evaluation is currently
// running, detected by the evaluator's <userID>_inproc marker file.
func InProcUsers(tasksDir string, taskID string, accounts map[string]Account) []string {
	var names []string
	for userID, account := range accounts {
		marker := filepath.Join(taskOutputUserDir(tasksDir, taskID), userID+"_inproc")
		if _, err := os.Stat(marker); err == nil {
			names = append(names, account.Name)
		}
	}
	return names
}

// ReadEvalTimestamp returns the evaluator's last-run marker, empty when
// absent.
func ReadEvalTimestamp(tasksDir string, taskID string) string {
	raw, err := os.ReadFile(filepath.Join(tasksDir, taskID, outputDirName, "timestamp.txt"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(raw))
}

// BestSelector picks the single result that stands for a user on a
// board. The tie-break policy is owned by the caller; DefaultBestSelector
// is a replaceable default, not a contract.
type BestSelector func(results []Result, task Task) (Result, bool)

// DefaultBestSelector prefers the most recent valid result that achieves
// the goal; failing that, the most recent valid result.
func DefaultBestSelector(results []Result, task Task) (Result, bool) {
	var best Result
	var bestAchieving Result
	found := false
	foundAchieving := false

	for _, r := range results {
		if r.Invalid() {
			continue
		}
		if !found || r.Timestamp.After(best.Timestamp) {
			best = r
			found = true
		}
		if AchieveGoal(task, r) && (!foundAchieving || r.Timestamp.After(bestAchieving.Timestamp)) {
			bestAchieving = r
			foundAchieving = true
		}
	}

	if foundAchieving {
		return bestAchieving, true
	}
	return best, found
}

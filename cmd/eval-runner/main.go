// eval-runner is a development stand-in for the external evaluation
// worker: it scans task upload directories, assigns pseudo scores to new
// submissions and appends them to the per-user result feeds the server
// reads. Never run it against production data.
package main

import (
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	outputDirName     = "output"
	uploadDirName     = "upload"
	userModuleDirName = "user_module"

	feedHeader     = "datetime,filename,train,valid,test,memo,message"
	feedTimeLayout = "2006-01-02 15:04:05"
)

func tasksDir() string {
	if dir := os.Getenv("TASKS_DIR"); dir != "" {
		return dir
	}
	return "./tasks"
}

func scanInterval() time.Duration {
	if raw := os.Getenv("EVAL_SCAN_INTERVAL"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			return d
		}
	}
	return 10 * time.Second
}

func main() {
	log.Println("eval-runner watching", tasksDir())
	for {
		if err := scanOnce(tasksDir()); err != nil {
			log.Println("scan failed:", err)
		}
		time.Sleep(scanInterval())
	}
}

func scanOnce(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		scanTask(dir, entry.Name())
	}
	return nil
}

func scanTask(dir string, taskID string) {
	userDirs, err := os.ReadDir(filepath.Join(dir, taskID, uploadDirName))
	if err != nil {
		return
	}
	for _, userDir := range userDirs {
		if !userDir.IsDir() {
			continue
		}
		scanUser(dir, taskID, userDir.Name())
	}
}

func scanUser(dir string, taskID string, userID string) {
	uploadDir := filepath.Join(dir, taskID, uploadDirName, userID)
	files, err := os.ReadDir(uploadDir)
	if err != nil {
		return
	}

	for _, file := range files {
		name := file.Name()
		if !strings.HasSuffix(name, ".py") {
			continue
		}
		if err := evaluate(dir, taskID, userID, name); err != nil {
			log.Println("evaluate failed:", taskID, userID, name, err)
		} else {
			log.Println("evaluated", taskID, userID, name)
		}
	}
}

// evaluate scores one submission and archives it the way the real
// evaluator does: marker up, feed row appended, source moved into
// user_module under a timestamp-prefixed name, marker down.
func evaluate(dir string, taskID string, userID string, name string) error {
	outDir := filepath.Join(dir, taskID, outputDirName, "user")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}

	marker := filepath.Join(outDir, userID+"_inproc")
	if err := os.WriteFile(marker, nil, 0o644); err != nil {
		return err
	}
	defer os.Remove(marker)

	now := time.Now()
	archived := fmt.Sprintf("%s_%s_%s_%s_%s",
		now.Format("20060102"), now.Format("150405"), taskID, userID, name)

	memo := ""
	uploadDir := filepath.Join(dir, taskID, uploadDirName, userID)
	if raw, err := os.ReadFile(filepath.Join(uploadDir, name+".txt")); err == nil {
		memo = strings.ReplaceAll(strings.TrimSpace(string(raw)), ",", " ")
	}

	train, valid, test := pseudoScores()
	row := fmt.Sprintf("%s,%s,%.4f,%.4f,%.4f,%s,%s",
		now.Format(feedTimeLayout), archived, train, valid, test, memo, "evaluated by eval-runner")
	if err := appendFeedRow(filepath.Join(outDir, userID+".csv"), row); err != nil {
		return err
	}

	moduleDir := filepath.Join(dir, taskID, userModuleDirName)
	if err := os.MkdirAll(moduleDir, 0o755); err != nil {
		return err
	}
	if err := os.Rename(filepath.Join(uploadDir, name), filepath.Join(moduleDir, archived)); err != nil {
		return err
	}
	os.Remove(filepath.Join(uploadDir, name+".txt"))

	stamp := now.Format(feedTimeLayout)
	_ = os.WriteFile(filepath.Join(dir, taskID, outputDirName, "timestamp.txt"), []byte(stamp), 0o644)
	return nil
}

func pseudoScores() (float64, float64, float64) {
	// one in ten runs fails, as real submissions do
	if rand.Intn(10) == 0 {
		return -1, -1, -1
	}
	base := 0.5 + rand.Float64()*0.5
	jitter := func() float64 { return (rand.Float64() - 0.5) * 0.1 }
	return base, base + jitter(), base + jitter()
}

func appendFeedRow(path string, row string) error {
	_, statErr := os.Stat(path)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if statErr != nil {
		if _, err := fmt.Fprintln(f, feedHeader); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintln(f, row)
	return err
}

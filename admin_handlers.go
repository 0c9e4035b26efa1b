package main

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

type AdminUserItem struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	NumSubmits   int    `json:"numSubmits"`
	LatestSubmit string `json:"latestSubmit,omitempty"`
	LatestTask   string `json:"latestTask,omitempty"`
}

type AdminUsersResponse struct {
	OK    bool            `json:"ok"`
	Error string          `json:"error,omitempty"`
	Users []AdminUserItem `json:"users,omitempty"`
}

type AdminTaskItem struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	Type             string  `json:"type"`
	Metric           string  `json:"metric"`
	Goal             float64 `json:"goal"`
	StartDate        string  `json:"startDate"`
	EndDate          string  `json:"endDate"`
	TimeLimitPerData float64 `json:"timelimitPerData"`
	Suspend          bool    `json:"suspend"`
}

type AdminTasksResponse struct {
	OK    bool            `json:"ok"`
	Error string          `json:"error,omitempty"`
	Tasks []AdminTaskItem `json:"tasks,omitempty"`
}

type AdminTaskUpdateRequest struct {
	TaskID           string  `json:"taskId"`
	StartDate        string  `json:"startDate"`
	EndDate          string  `json:"endDate"`
	Goal             float64 `json:"goal"`
	TimeLimitPerData float64 `json:"timelimitPerData"`
	Suspend          bool    `json:"suspend"`
}

type AdminAuditLogResponse struct {
	OK      bool         `json:"ok"`
	Error   string       `json:"error,omitempty"`
	Entries []AuditEntry `json:"entries,omitempty"`
}

// requireAdmin wraps a handler with the admin-by-email gate.
func (s *server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, _, admin := s.auth.VerifyRequest(r)
		if !admin {
			w.WriteHeader(http.StatusForbidden)
			writeJSON(w, SimpleResponse{OK: false, Error: "FORBIDDEN"})
			return
		}
		next(w, r)
	}
}

func (s *server) adminUsersHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accounts := s.accounts.Load()
		tasks := s.tasks.Snapshot()

		perTask := map[string]map[string][]Result{}
		for id := range tasks {
			perTask[id] = ReadTaskResults(s.cfg.TasksDir, id, accounts)
		}

		resp := AdminUsersResponse{OK: true}
		for userID, account := range accounts {
			item := AdminUserItem{ID: userID, Name: account.Name, Email: account.Email}

			var latest time.Time
			for taskID, stats := range perTask {
				mine := stats[userID]
				item.NumSubmits += len(mine)
				for _, result := range mine {
					if result.Timestamp.After(latest) {
						latest = result.Timestamp
						item.LatestSubmit = result.Timestamp.Format(resultTimeLayout)
						item.LatestTask = tasks[taskID].Name
					}
				}
			}
			resp.Users = append(resp.Users, item)
		}

		writeJSON(w, resp)
	}
}

func (s *server) adminTasksHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// admin view always reflects what is on disk
		if err := s.tasks.Reload(); err != nil {
			s.log.Warn("task registry reload failed", "error", err)
		}

		tasks := s.tasks.Snapshot()
		resp := AdminTasksResponse{OK: true}
		for _, id := range s.tasks.IDs() {
			task := tasks[id]
			resp.Tasks = append(resp.Tasks, AdminTaskItem{
				ID:               id,
				Name:             task.Name,
				Type:             task.Type.String(),
				Metric:           task.Metric.String(),
				Goal:             task.Goal,
				StartDate:        task.StartDate.Format(taskDateLayout),
				EndDate:          task.EndDate.Format(taskDateLayout),
				TimeLimitPerData: task.TimeLimitPerData,
				Suspend:          task.Suspend,
			})
		}
		writeJSON(w, resp)
	}
}

func (s *server) adminTaskUpdateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AdminTaskUpdateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, SimpleResponse{OK: false, Error: "BAD_REQUEST"})
			return
		}

		task, ok := s.tasks.Get(req.TaskID)
		if !ok {
			writeJSON(w, SimpleResponse{OK: false, Error: "TASK_NOT_FOUND"})
			return
		}

		start, err := time.ParseInLocation(taskDateLayout, req.StartDate, time.Local)
		if err != nil {
			writeJSON(w, SimpleResponse{OK: false, Error: "INVALID_DATE"})
			return
		}
		end, err := time.ParseInLocation(taskDateLayout, req.EndDate, time.Local)
		if err != nil {
			writeJSON(w, SimpleResponse{OK: false, Error: "INVALID_DATE"})
			return
		}

		task.StartDate = start
		task.EndDate = end
		task.Goal = req.Goal
		task.TimeLimitPerData = req.TimeLimitPerData
		task.Suspend = req.Suspend

		if err := s.tasks.Update(task); err != nil {
			s.audit.Writef("task_update_failed", "task: %s", task.ID)
			writeJSON(w, SimpleResponse{OK: false, Error: "TASK_WRITE_FAILED"})
			return
		}

		s.audit.Writef("task_update", "task: %s goal: %s suspend: %s",
			task.ID, strconv.FormatFloat(task.Goal, 'f', -1, 64), strconv.FormatBool(task.Suspend))
		writeJSON(w, SimpleResponse{OK: true})
	}
}

// adminLogHandler is the unfiltered per-task history with the unlock
// forced on and evaluator messages included.
func (s *server) adminLogHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		task, ok := s.tasks.Get(chi.URLParam(r, "taskID"))
		if !ok {
			writeJSON(w, BoardResponse{OK: false, Error: "TASK_NOT_FOUND"})
			return
		}

		now := s.now()
		accounts := s.accounts.Load()
		stats := ReadTaskResults(s.cfg.TasksDir, task.ID, accounts)

		resp := BoardResponse{
			OK:       true,
			TaskName: task.Name,
			Goal:     task.GoalText(),
			InProc:   InProcUsers(s.cfg.TasksDir, task.ID, accounts),
		}
		for _, ar := range s.board.Annotate(task, s.board.History(task, stats), now, true) {
			resp.Rows = append(resp.Rows, rowJSON(task, ar))
		}

		writeJSON(w, resp)
	}
}

func (s *server) adminAuditLogHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, AdminAuditLogResponse{OK: true, Entries: s.audit.List(200)})
	}
}

package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

/* ======================
   Request / Response Types
   ====================== */

type SimpleResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type JoinRequest struct {
	Email          string `json:"email"`
	Password       string `json:"password"`
	PasswordVerify string `json:"passwordVerify"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
	ID      string `json:"id,omitempty"`
	Email   string `json:"email,omitempty"`
	Name    string `json:"name,omitempty"`
	Key     string `json:"key,omitempty"`
	IsAdmin bool   `json:"isAdmin,omitempty"`
}

type VerifyResponse struct {
	OK       bool `json:"ok"`
	Verified bool `json:"verified"`
}

type NameUpdateRequest struct {
	NewName string `json:"newName"`
}

type PasswordUpdateRequest struct {
	Password       string `json:"password"`
	PasswordVerify string `json:"passwordVerify"`
}

type TaskInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Explanation string `json:"explanation,omitempty"`
	Period      string `json:"period"`
}

type TaskListResponse struct {
	OK          bool       `json:"ok"`
	ContestName string     `json:"contestName"`
	Quests      []TaskInfo `json:"quests"`
	Open        []TaskInfo `json:"open"`
	Closed      []TaskInfo `json:"closed"`
	Prepare     []TaskInfo `json:"prepare,omitempty"`
}

// BoardRow is one annotated leaderboard row. Train/Valid/Test carry the
// metric's display form; hidden or absent cells carry the placeholder.
type BoardRow struct {
	UserName    string `json:"userName"`
	Star        string `json:"star,omitempty"`
	SubmittedAt string `json:"submittedAt"`
	SourceFile  string `json:"sourceFile,omitempty"`
	Train       string `json:"train"`
	Valid       string `json:"valid"`
	Test        string `json:"test,omitempty"`
	Memo        string `json:"memo,omitempty"`
	Message     string `json:"message,omitempty"`
	Invalid     bool   `json:"invalid,omitempty"`
}

type BoardResponse struct {
	OK            bool       `json:"ok"`
	Error         string     `json:"error,omitempty"`
	TaskName      string     `json:"taskName,omitempty"`
	Goal          string     `json:"goal,omitempty"`
	Rows          []BoardRow `json:"rows,omitempty"`
	ContestResult []BoardRow `json:"contestResult,omitempty"`
	InProc        []string   `json:"inProc,omitempty"`
}

type SubmissionItem struct {
	TaskID string `json:"taskId"`
	Task   string `json:"task"`
	Goal   string `json:"goal,omitempty"`
	BoardRow
}

type SubmissionsResponse struct {
	OK          bool             `json:"ok"`
	Error       string           `json:"error,omitempty"`
	Submissions []SubmissionItem `json:"submissions,omitempty"`
}

type SourceResponse struct {
	OK       bool   `json:"ok"`
	Error    string `json:"error,omitempty"`
	Filename string `json:"filename,omitempty"`
	Source   string `json:"source,omitempty"`
}

/* ======================
   Server
   ====================== */

type server struct {
	cfg      *Config
	log      *slog.Logger
	accounts *AccountStore
	auth     *AuthGateway
	tasks    *TaskRegistry
	board    *BoardAssembler
	audit    *AuditLog
	now      func() time.Time
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

const placeholder = "-"

// rowJSON renders an annotated row. The test cell is "-" for quests and
// invalid rows, "?" while locked, the value once unlocked.
func rowJSON(task Task, ar AnnotatedRow) BoardRow {
	row := BoardRow{
		UserName:    ar.UserName,
		Star:        ar.Star,
		SubmittedAt: ar.Timestamp.Format(resultTimeLayout),
		Memo:        ar.Memo,
		Message:     ar.Message,
		Invalid:     ar.Invalid(),
	}

	if ar.Invalid() {
		row.Train = placeholder
		row.Valid = placeholder
		row.Test = placeholder
		return row
	}

	row.Train = FormatValue(task.Metric, ar.Train)
	row.Valid = FormatValue(task.Metric, ar.Valid)
	switch task.Type {
	case TypeQuest:
		row.Test = placeholder
	case TypeContest:
		if ar.TestVisible {
			row.Test = FormatValue(task.Metric, ar.Test)
		} else {
			row.Test = "?"
		}
	}
	if ar.SourceVisible {
		row.SourceFile = ar.Filename
	}
	return row
}

/* ======================
   Auth Handlers
   ====================== */

func (s *server) joinHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req JoinRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, AuthResponse{OK: false, Error: "BAD_REQUEST"})
			return
		}

		email := strings.TrimSpace(req.Email)
		if !strings.Contains(email, "@") || strings.ContainsAny(email, ", \t") {
			writeJSON(w, AuthResponse{OK: false, Error: "INVALID_EMAIL"})
			return
		}
		if len(req.Password) < 8 || len(req.Password) > 128 {
			writeJSON(w, AuthResponse{OK: false, Error: "INVALID_PASSWORD"})
			return
		}
		if req.Password != req.PasswordVerify {
			writeJSON(w, AuthResponse{OK: false, Error: "PASSWORD_MISMATCH"})
			return
		}

		accounts := s.accounts.Load()
		for _, account := range accounts {
			if account.Email == email {
				s.audit.Writef("join_failed", "email already exists: %s", email)
				writeJSON(w, AuthResponse{OK: false, Error: "EMAIL_EXISTS"})
				return
			}
		}

		id, err := s.auth.NewAccountID(accounts)
		if err != nil {
			writeJSON(w, AuthResponse{OK: false, Error: "INTERNAL_ERROR"})
			return
		}
		hash, err := GeneratePasswordHash(req.Password)
		if err != nil {
			writeJSON(w, AuthResponse{OK: false, Error: "INTERNAL_ERROR"})
			return
		}

		account := Account{
			ID:       id,
			Email:    email,
			Name:     strings.SplitN(email, "@", 2)[0],
			Key:      newOpaqueToken(),
			PassHash: hash,
		}
		if !s.accounts.Add(account) {
			s.audit.Writef("join_failed", "ledger write failed: %s", email)
			writeJSON(w, AuthResponse{OK: false, Error: "LEDGER_WRITE_FAILED"})
			return
		}

		s.audit.Writef("join", "account created: %s", email)
		writeUserCookies(w, account.ID, account.Key, s.cfg.CookieMaxAge)
		writeJSON(w, AuthResponse{
			OK:      true,
			ID:      account.ID,
			Email:   account.Email,
			Name:    account.Name,
			Key:     account.Key,
			IsAdmin: s.auth.IsAdmin(account),
		})
	}
}

func (s *server) loginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, AuthResponse{OK: false, Error: "BAD_REQUEST"})
			return
		}

		verified, account := s.auth.VerifyEmailAndPassword(strings.TrimSpace(req.Email), req.Password)
		if !verified {
			s.audit.Writef("login_failed", "email: %s", req.Email)
			writeJSON(w, AuthResponse{OK: false, Error: "INVALID_CREDENTIALS"})
			return
		}

		key, ok := s.auth.RotateKey(account.ID)
		if !ok {
			writeJSON(w, AuthResponse{OK: false, Error: "LEDGER_WRITE_FAILED"})
			return
		}

		s.audit.Writef("login", "email: %s", account.Email)
		writeUserCookies(w, account.ID, key, s.cfg.CookieMaxAge)
		writeJSON(w, AuthResponse{
			OK:      true,
			ID:      account.ID,
			Email:   account.Email,
			Name:    account.Name,
			Key:     key,
			IsAdmin: s.auth.IsAdmin(account),
		})
	}
}

func (s *server) logoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		verified, account, _ := s.auth.VerifyRequest(r)
		if verified {
			s.audit.Writef("logout", "email: %s", account.Email)
		} else {
			s.audit.Write("logout", "not verified")
		}
		clearUserCookies(w)
		writeJSON(w, SimpleResponse{OK: true})
	}
}

func (s *server) meHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		verified, account, admin := s.auth.VerifyRequest(r)
		if !verified {
			writeJSON(w, AuthResponse{OK: false, Error: "NOT_AUTHENTICATED"})
			return
		}
		writeJSON(w, AuthResponse{
			OK:      true,
			ID:      account.ID,
			Email:   account.Email,
			Name:    account.Name,
			IsAdmin: admin,
		})
	}
}

func (s *server) verifyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		verified, _ := s.auth.VerifyIDAndKey(chi.URLParam(r, "userID"), chi.URLParam(r, "userKey"))
		writeJSON(w, VerifyResponse{OK: true, Verified: verified})
	}
}

/* ======================
   Profile Handlers
   ====================== */

func (s *server) updateNameHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		verified, account, _ := s.auth.VerifyRequest(r)
		if !verified {
			writeJSON(w, SimpleResponse{OK: false, Error: "NOT_AUTHENTICATED"})
			return
		}

		var req NameUpdateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, SimpleResponse{OK: false, Error: "BAD_REQUEST"})
			return
		}
		name := strings.TrimSpace(req.NewName)
		if name == "" || strings.ContainsAny(name, ",\n") {
			writeJSON(w, SimpleResponse{OK: false, Error: "INVALID_NAME"})
			return
		}

		if !s.accounts.UpdateField(account.ID, "name", name) {
			writeJSON(w, SimpleResponse{OK: false, Error: "LEDGER_WRITE_FAILED"})
			return
		}
		s.audit.Writef("name_changed", "user_id: %s", account.ID)
		writeJSON(w, SimpleResponse{OK: true})
	}
}

func (s *server) updatePasswordHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		verified, account, _ := s.auth.VerifyRequest(r)
		if !verified {
			writeJSON(w, SimpleResponse{OK: false, Error: "NOT_AUTHENTICATED"})
			return
		}

		var req PasswordUpdateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, SimpleResponse{OK: false, Error: "BAD_REQUEST"})
			return
		}
		if len(req.Password) < 8 || len(req.Password) > 128 {
			writeJSON(w, SimpleResponse{OK: false, Error: "INVALID_PASSWORD"})
			return
		}
		if req.Password != req.PasswordVerify {
			writeJSON(w, SimpleResponse{OK: false, Error: "PASSWORD_MISMATCH"})
			return
		}

		hash, err := GeneratePasswordHash(req.Password)
		if err != nil {
			writeJSON(w, SimpleResponse{OK: false, Error: "INTERNAL_ERROR"})
			return
		}
		if !s.accounts.UpdateField(account.ID, "pass_hash", hash) {
			writeJSON(w, SimpleResponse{OK: false, Error: "LEDGER_WRITE_FAILED"})
			return
		}
		s.audit.Writef("password_changed", "user_id: %s", account.ID)
		writeJSON(w, SimpleResponse{OK: true})
	}
}

/* ======================
   Task / Board Handlers
   ====================== */

func (s *server) taskListHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, _, admin := s.auth.VerifyRequest(r)
		now := s.now()

		resp := TaskListResponse{
			OK:          true,
			ContestName: s.cfg.ContestName,
			Quests:      []TaskInfo{},
			Open:        []TaskInfo{},
			Closed:      []TaskInfo{},
		}

		tasks := s.tasks.Snapshot()
		for _, id := range s.tasks.IDs() {
			task := tasks[id]
			if task.Suspend {
				continue
			}

			info := TaskInfo{
				ID:          id,
				Name:        task.Name,
				Explanation: task.Explanation,
				Period:      taskPeriodText(task, now),
			}

			if task.StartDate.After(now) {
				if admin {
					resp.Prepare = append(resp.Prepare, info)
				}
				continue
			}
			switch task.Type {
			case TypeQuest:
				resp.Quests = append(resp.Quests, info)
			case TypeContest:
				if task.EndDate.After(now) {
					resp.Open = append(resp.Open, info)
				} else {
					resp.Closed = append(resp.Closed, info)
				}
			}
		}

		writeJSON(w, resp)
	}
}

func taskPeriodText(task Task, now time.Time) string {
	span := task.StartDate.Format(taskDateLayout) + " - " + task.EndDate.AddDate(0, 0, -1).Format(taskDateLayout)
	if task.StartDate.After(now) {
		return "starts " + span
	}
	if task.Type == TypeQuest {
		return "open"
	}
	if !task.EndDate.After(now) {
		return "closed"
	}
	return span
}

func (s *server) boardHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		task, ok := s.tasks.Get(chi.URLParam(r, "taskID"))
		if !ok {
			writeJSON(w, BoardResponse{OK: false, Error: "TASK_NOT_FOUND"})
			return
		}

		verified, account, _ := s.auth.VerifyRequest(r)
		now := s.now()
		accounts := s.accounts.Load()
		stats := ReadTaskResults(s.cfg.TasksDir, task.ID, accounts)

		unlock := false
		if verified {
			achieved := s.board.ViewerAchieved(task, stats[account.ID])
			unlock = Unlock(task, now, achieved)
		}

		resp := BoardResponse{
			OK:       true,
			TaskName: task.Name,
			Goal:     task.GoalText(),
			InProc:   InProcUsers(s.cfg.TasksDir, task.ID, accounts),
		}

		for _, ar := range s.board.Annotate(task, s.board.LiveBoard(task, stats), now, unlock) {
			row := rowJSON(task, ar)
			row.Memo, row.Message = "", ""
			resp.Rows = append(resp.Rows, row)
		}
		for _, ar := range s.board.Annotate(task, s.board.ContestRanking(task, stats, now), now, unlock) {
			row := rowJSON(task, ar)
			row.Memo, row.Message = "", ""
			resp.ContestResult = append(resp.ContestResult, row)
		}

		writeJSON(w, resp)
	}
}

func (s *server) logHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		task, ok := s.tasks.Get(chi.URLParam(r, "taskID"))
		if !ok {
			writeJSON(w, BoardResponse{OK: false, Error: "TASK_NOT_FOUND"})
			return
		}

		verified, account, _ := s.auth.VerifyRequest(r)
		now := s.now()
		accounts := s.accounts.Load()
		stats := ReadTaskResults(s.cfg.TasksDir, task.ID, accounts)

		unlock := false
		if verified {
			achieved := s.board.ViewerAchieved(task, stats[account.ID])
			unlock = Unlock(task, now, achieved)
		}

		resp := BoardResponse{
			OK:       true,
			TaskName: task.Name,
			Goal:     task.GoalText(),
			InProc:   InProcUsers(s.cfg.TasksDir, task.ID, accounts),
		}
		for _, ar := range s.board.Annotate(task, s.board.History(task, stats), now, unlock) {
			resp.Rows = append(resp.Rows, rowJSON(task, ar))
		}

		writeJSON(w, resp)
	}
}

func (s *server) mySubmissionsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		verified, account, _ := s.auth.VerifyRequest(r)
		if !verified {
			writeJSON(w, SubmissionsResponse{OK: false, Error: "NOT_AUTHENTICATED"})
			return
		}

		now := s.now()
		accounts := s.accounts.Load()
		tasks := s.tasks.Snapshot()

		var items []SubmissionItem
		for _, id := range s.tasks.IDs() {
			task := tasks[id]
			stats := ReadTaskResults(s.cfg.TasksDir, id, accounts)
			mine := stats[account.ID]
			if len(mine) == 0 {
				continue
			}

			achieved := s.board.ViewerAchieved(task, mine)
			unlock := Unlock(task, now, achieved)
			for _, ar := range s.board.Annotate(task, mine, now, unlock) {
				ar.SourceVisible = true // own submission
				row := rowJSON(task, ar)
				items = append(items, SubmissionItem{TaskID: id, Task: task.Name, BoardRow: row})
			}
		}

		sortSubmissions(items)
		writeJSON(w, SubmissionsResponse{OK: true, Submissions: items})
	}
}

func (s *server) myBestHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		verified, account, _ := s.auth.VerifyRequest(r)
		if !verified {
			writeJSON(w, SubmissionsResponse{OK: false, Error: "NOT_AUTHENTICATED"})
			return
		}

		now := s.now()
		accounts := s.accounts.Load()
		tasks := s.tasks.Snapshot()

		var items []SubmissionItem
		for _, id := range s.tasks.IDs() {
			task := tasks[id]
			stats := ReadTaskResults(s.cfg.TasksDir, id, accounts)
			best, ok := s.board.Best(stats[account.ID], task)
			if !ok {
				continue
			}

			achieved := s.board.ViewerAchieved(task, stats[account.ID])
			unlock := Unlock(task, now, achieved)
			for _, ar := range s.board.Annotate(task, []Result{best}, now, unlock) {
				ar.SourceVisible = true // own submission
				row := rowJSON(task, ar)
				items = append(items, SubmissionItem{TaskID: id, Task: task.Name, Goal: task.GoalText(), BoardRow: row})
			}
		}

		sortSubmissions(items)
		writeJSON(w, SubmissionsResponse{OK: true, Submissions: items})
	}
}

func sortSubmissions(items []SubmissionItem) {
	// recency order; the display timestamp sorts lexicographically
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].SubmittedAt > items[j].SubmittedAt
	})
}

/* ======================
   Source / Timestamp
   ====================== */

func (s *server) sourceHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		taskID := chi.URLParam(r, "taskID")
		filename := chi.URLParam(r, "filename")
		if _, ok := s.tasks.Get(taskID); !ok {
			writeJSON(w, SourceResponse{OK: false, Error: "TASK_NOT_FOUND"})
			return
		}
		if filename != filepath.Base(filename) || strings.Contains(filename, "..") {
			writeJSON(w, SourceResponse{OK: false, Error: "INVALID_FILENAME"})
			return
		}

		raw, err := os.ReadFile(filepath.Join(s.cfg.TasksDir, taskID, userModuleDirName, filename))
		if err != nil {
			writeJSON(w, SourceResponse{OK: false, Error: "FILE_NOT_FOUND"})
			return
		}

		writeJSON(w, SourceResponse{OK: true, Filename: originalFilename(filename), Source: string(raw)})
	}
}

// originalFilename strips the four underscore-joined prefix segments the
// evaluator prepends when it archives a submission.
func originalFilename(name string) string {
	parts := strings.SplitN(name, "_", 5)
	if len(parts) == 5 {
		return parts[4]
	}
	return name
}

func (s *server) timestampHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := s.tasks.Get(chi.URLParam(r, "taskID")); !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(ReadEvalTimestamp(s.cfg.TasksDir, chi.URLParam(r, "taskID"))))
	}
}

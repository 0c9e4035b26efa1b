package main

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
)

type UploadResponse struct {
	OK       bool   `json:"ok"`
	Error    string `json:"error,omitempty"`
	Filename string `json:"filename,omitempty"`
}

// sanitizeFilename reduces an uploaded name to a safe basename: only
// letters, digits, dot, dash and underscore survive.
func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	var b strings.Builder
	for _, c := range name {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			b.WriteRune(c)
		case c == '.' || c == '-' || c == '_':
			b.WriteRune(c)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// uploadHandler receives one submission: a .py file plus an optional
// memo, stored under the task's per-user upload directory for the
// external evaluator to pick up. The memo lands in a sidecar text file.
func (s *server) uploadHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		task, ok := s.tasks.Get(chi.URLParam(r, "taskID"))
		if !ok || task.Suspend {
			writeJSON(w, UploadResponse{OK: false, Error: "TASK_NOT_FOUND"})
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
		if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
			writeJSON(w, UploadResponse{OK: false, Error: "UPLOAD_TOO_LARGE"})
			return
		}

		verified, _ := s.auth.VerifyIDAndKey(r.FormValue("user_id"), r.FormValue("user_key"))
		if !verified {
			writeJSON(w, UploadResponse{OK: false, Error: "NOT_AUTHENTICATED"})
			return
		}
		userID := r.FormValue("user_id")

		file, header, err := r.FormFile("file")
		if err != nil {
			writeJSON(w, UploadResponse{OK: false, Error: "NO_FILE"})
			return
		}
		defer file.Close()

		filename := sanitizeFilename(header.Filename)
		if !strings.HasSuffix(strings.ToLower(filename), ".py") || filename == ".py" {
			writeJSON(w, UploadResponse{OK: false, Error: "INVALID_FILE_TYPE"})
			return
		}

		saveDir := filepath.Join(s.cfg.TasksDir, task.ID, uploadDirName, userID)
		if err := os.MkdirAll(saveDir, 0o755); err != nil {
			writeJSON(w, UploadResponse{OK: false, Error: "UPLOAD_FAILED"})
			return
		}

		dst, err := os.Create(filepath.Join(saveDir, filename))
		if err != nil {
			writeJSON(w, UploadResponse{OK: false, Error: "UPLOAD_FAILED"})
			return
		}
		if _, err := io.Copy(dst, file); err != nil {
			dst.Close()
			writeJSON(w, UploadResponse{OK: false, Error: "UPLOAD_FAILED"})
			return
		}
		if err := dst.Close(); err != nil {
			writeJSON(w, UploadResponse{OK: false, Error: "UPLOAD_FAILED"})
			return
		}

		if memo := r.FormValue("memo"); memo != "" {
			_ = os.WriteFile(filepath.Join(saveDir, filename+".txt"), []byte(memo), 0o644)
		}

		s.audit.Writef("upload", "task: %s user_id: %s file: %s", task.ID, userID, filename)
		writeJSON(w, UploadResponse{OK: true, Filename: filename})
	}
}

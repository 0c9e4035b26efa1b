package main

import (
	"database/sql"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	_ "github.com/lib/pq"
)

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log := NewLogger(cfg)
	log.Info("starting", "env", cfg.AppEnv, "contest", cfg.ContestName)

	// Audit sink. The platform runs fine without a database; events then
	// land in a local file.
	var db *sql.DB
	if cfg.DatabaseURL != "" {
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err == nil {
			err = db.Ping()
		}
		if err == nil {
			err = ensureAuditSchema(db)
		}
		if err != nil {
			log.Warn("audit database unavailable, falling back to file", "error", err)
			db = nil
		} else {
			log.Info("audit events go to postgres")
		}
	}

	store := NewAccountStore(cfg.UsersCsvPath())
	registry := NewTaskRegistry(cfg.TasksDir)
	if err := registry.Reload(); err != nil {
		log.Warn("task registry load failed", "dir", cfg.TasksDir, "error", err)
	}
	log.Info("tasks loaded", "count", len(registry.Snapshot()))

	srv := &server{
		cfg:      cfg,
		log:      log,
		accounts: store,
		auth:     NewAuthGateway(store, cfg.AdminEmail),
		tasks:    registry,
		board:    NewBoardAssembler(nil),
		audit:    NewAuditLog(db, cfg.DataDir),
		now:      time.Now,
	}

	log.Info("listening", "addr", cfg.AppAddr)
	if err := http.ListenAndServe(cfg.AppAddr, srv.router()); err != nil {
		log.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func (s *server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(requestLogger(s.log))
	r.Use(secureHeaders())

	// credential endpoints get a tighter rate limit
	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(20, time.Minute))
		r.Post("/auth/join", s.joinHandler())
		r.Post("/auth/login", s.loginHandler())
	})

	r.Get("/auth/logout", s.logoutHandler())
	r.Get("/auth/me", s.meHandler())
	r.Get("/verify/{userID}/{userKey}", s.verifyHandler())

	r.Post("/user/name", s.updateNameHandler())
	r.Post("/user/password", s.updatePasswordHandler())

	r.Get("/tasks", s.taskListHandler())
	r.Get("/me/submissions", s.mySubmissionsHandler())
	r.Get("/me/best", s.myBestHandler())
	r.Get("/source/{taskID}/{filename}", s.sourceHandler())

	r.Get("/admin/users", s.requireAdmin(s.adminUsersHandler()))
	r.Get("/admin/tasks", s.requireAdmin(s.adminTasksHandler()))
	r.Post("/admin/tasks/update", s.requireAdmin(s.adminTaskUpdateHandler()))
	r.Get("/admin/audit-log", s.requireAdmin(s.adminAuditLogHandler()))

	r.Route("/{taskID}", func(r chi.Router) {
		r.Get("/board", s.boardHandler())
		r.Get("/log", s.logHandler())
		r.Get("/timestamp", s.timestampHandler())
		r.Post("/upload", s.uploadHandler())
		r.Get("/admin-log", s.requireAdmin(s.adminLogHandler()))
	})

	return r
}

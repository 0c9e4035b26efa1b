package main

import (
	"bufio"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// AuditEntry is one operational event shown on the admin page.
type AuditEntry struct {
	At     string `json:"at"`
	Event  string `json:"event"`
	Detail string `json:"detail,omitempty"`
}

// AuditLog records operational events best-effort: into Postgres when a
// database is configured, into a local append file otherwise. A failed
// write never propagates to the caller.
type AuditLog struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

func NewAuditLog(db *sql.DB, dataDir string) *AuditLog {
	return &AuditLog{db: db, path: filepath.Join(dataDir, "app.log")}
}

func ensureAuditSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS audit_log (
			id BIGSERIAL PRIMARY KEY,
			event TEXT NOT NULL,
			detail TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

// Write records an event. Fire and forget.
func (l *AuditLog) Write(event string, detail string) {
	if l.db != nil {
		_, _ = l.db.Exec(`
			INSERT INTO audit_log (event, detail, created_at)
			VALUES ($1, $2, NOW())
		`, event, detail)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()

	at := time.Now().Format(resultTimeLayout)
	fmt.Fprintf(f, "%s\t%s\t%s\n", at, event, strings.ReplaceAll(detail, "\n", " "))
}

// Writef records a formatted event detail.
func (l *AuditLog) Writef(event string, format string, args ...interface{}) {
	l.Write(event, fmt.Sprintf(format, args...))
}

// List returns up to n most recent entries, newest first.
func (l *AuditLog) List(n int) []AuditEntry {
	if l.db != nil {
		return l.listDB(n)
	}
	return l.listFile(n)
}

func (l *AuditLog) listDB(n int) []AuditEntry {
	rows, err := l.db.Query(`
		SELECT event, detail, created_at
		FROM audit_log
		ORDER BY created_at DESC
		LIMIT $1
	`, n)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var entry AuditEntry
		var at time.Time
		if err := rows.Scan(&entry.Event, &entry.Detail, &at); err != nil {
			continue
		}
		entry.At = at.Local().Format(resultTimeLayout)
		entries = append(entries, entry)
	}
	return entries
}

func (l *AuditLog) listFile(n int) []AuditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var entries []AuditEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.SplitN(scanner.Text(), "\t", 3)
		if len(fields) != 3 {
			continue
		}
		entries = append(entries, AuditEntry{At: fields[0], Event: fields[1], Detail: fields[2]})
	}

	// newest first
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	if len(entries) > n {
		entries = entries[:n]
	}
	return entries
}

package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

type sqliteStore struct {
	baseStore
}

func NewSQLite(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "file:limlog.db?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// a single connection keeps in-memory databases shared across queries
	db.SetMaxOpenConns(1)
	return &sqliteStore{baseStore{
		db:   db,
		bind: func(int) string { return "?" },
		timeArg: func(t time.Time) any {
			return t.Format(time.RFC3339Nano)
		},
	}}, nil
}

func (s *sqliteStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.exec(ctx, []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			started_at TEXT NOT NULL,
			finished_at TEXT NOT NULL,
			lines INTEGER NOT NULL,
			applied INTEGER NOT NULL,
			skipped INTEGER NOT NULL,
			malformed INTEGER NOT NULL,
			filtered INTEGER NOT NULL,
			signals INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_finished ON runs(finished_at)`,
		`CREATE TABLE IF NOT EXISTS violations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL REFERENCES runs(id),
			signal_id TEXT NOT NULL,
			owner TEXT NOT NULL,
			description TEXT NOT NULL,
			phase TEXT NOT NULL,
			kind TEXT NOT NULL,
			first_violation TEXT NOT NULL,
			end_time TEXT NOT NULL,
			toggles INTEGER NOT NULL,
			worst_severity TEXT NOT NULL,
			comment TEXT NOT NULL,
			initial_value REAL,
			min_value REAL,
			max_value REAL,
			limit_value REAL,
			initial_state TEXT NOT NULL,
			limit_state TEXT NOT NULL,
			state_log_json TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_violations_run ON violations(run_id, signal_id)`,
		`CREATE TABLE IF NOT EXISTS msids (
			signal_id TEXT PRIMARY KEY,
			owner TEXT NOT NULL,
			description TEXT NOT NULL
		)`,
	})
}

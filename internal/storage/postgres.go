package storage

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type postgresStore struct {
	baseStore
}

func NewPostgres(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "postgres://localhost:5432/limlog?sslmode=disable"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &postgresStore{baseStore{
		db:      db,
		bind:    func(n int) string { return "$" + strconv.Itoa(n) },
		timeArg: func(t time.Time) any { return t },
	}}, nil
}

func (s *postgresStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.exec(ctx, []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			finished_at TIMESTAMPTZ NOT NULL,
			lines INTEGER NOT NULL,
			applied INTEGER NOT NULL,
			skipped INTEGER NOT NULL,
			malformed INTEGER NOT NULL,
			filtered INTEGER NOT NULL,
			signals INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_finished ON runs(finished_at)`,
		`CREATE TABLE IF NOT EXISTS violations (
			id BIGSERIAL PRIMARY KEY,
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
			initial_value DOUBLE PRECISION,
			min_value DOUBLE PRECISION,
			max_value DOUBLE PRECISION,
			limit_value DOUBLE PRECISION,
			initial_state TEXT NOT NULL,
			limit_state TEXT NOT NULL,
			state_log_json JSONB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_violations_run ON violations(run_id, signal_id)`,
		`CREATE TABLE IF NOT EXISTS msids (
			signal_id TEXT PRIMARY KEY,
			owner TEXT NOT NULL,
			description TEXT NOT NULL
		)`,
	})
}

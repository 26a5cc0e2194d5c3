package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"limlog/internal/config"
	"limlog/internal/metadata"
	"limlog/internal/model"
)

var ErrNotFound = errors.New("not found")

type Store interface {
	Init(ctx context.Context) error
	Close() error
	SaveRun(ctx context.Context, run model.Run) error
	LoadRun(ctx context.Context, id string) (model.Run, error)
	LatestRun(ctx context.Context) (model.Run, error)
	ListRuns(ctx context.Context, limit int) ([]model.Run, error)
	LookupMetadata(ctx context.Context, signalID string) (model.Metadata, error)
	PutMetadata(ctx context.Context, signalID string, md model.Metadata) error
}

func NewStore(cfg config.StorageConfig) (Store, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch strings.ToLower(cfg.Driver) {
	case "sqlite":
		return NewSQLite(cfg.DSN)
	case "postgres", "postgresql":
		return NewPostgres(cfg.DSN)
	default:
		return nil, errors.New("unsupported storage driver")
	}
}

// MetadataResolver serves signal metadata from the msids table.
func MetadataResolver(s Store) metadata.Resolver {
	return metadata.Func(func(ctx context.Context, signalID string) (model.Metadata, error) {
		md, err := s.LookupMetadata(ctx, signalID)
		if errors.Is(err, ErrNotFound) {
			return model.Metadata{}, fmt.Errorf("%s: %w", signalID, metadata.ErrNotFound)
		}
		return md, err
	})
}

// baseStore holds the queries shared by every driver. bind renders the n-th
// (1-based) placeholder; timeArg encodes a timestamp parameter.
type baseStore struct {
	db      *sql.DB
	bind    func(n int) string
	timeArg func(t time.Time) any
}

func (b *baseStore) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

func (b *baseStore) placeholders(from, count int) string {
	parts := make([]string, count)
	for i := range parts {
		parts[i] = b.bind(from + i)
	}
	return strings.Join(parts, ", ")
}

func (b *baseStore) exec(ctx context.Context, stmts []string) error {
	for _, stmt := range stmts {
		if _, err := b.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

const violationColumns = `run_id, signal_id, owner, description, phase, kind, first_violation, end_time,
	toggles, worst_severity, comment, initial_value, min_value, max_value, limit_value,
	initial_state, limit_state, state_log_json`

func (b *baseStore) SaveRun(ctx context.Context, run model.Run) error {
	if b.db == nil {
		return nil
	}
	if run.ID == "" {
		return errors.New("run id is empty")
	}
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, source, started_at, finished_at, lines, applied, skipped, malformed, filtered, signals)
		VALUES (`+b.placeholders(1, 10)+`)`,
		run.ID,
		run.Source,
		b.timeArg(run.StartedAt.UTC()),
		b.timeArg(run.FinishedAt.UTC()),
		run.Stats.Lines,
		run.Stats.Applied,
		run.Stats.Skipped,
		run.Stats.Malformed,
		run.Stats.Filtered,
		run.Stats.Signals,
	)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO violations (`+violationColumns+`) VALUES (`+b.placeholders(1, 18)+`)`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, row := range run.Result.Rows() {
		if _, err := stmt.ExecContext(ctx,
			run.ID,
			row.SignalID,
			row.Owner,
			row.Description,
			row.Phase,
			row.Kind,
			row.FirstViolation,
			row.EndTime,
			row.Toggles,
			row.WorstSeverity,
			row.Comment,
			nullFloat(row.InitialValue),
			nullFloat(row.MinValue),
			nullFloat(row.MaxValue),
			nullFloat(row.Limit),
			row.InitialState,
			row.LimitState,
			encodeJSON(row.StateLog),
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

const runColumns = `id, source, started_at, finished_at, lines, applied, skipped, malformed, filtered, signals`

func (b *baseStore) LoadRun(ctx context.Context, id string) (model.Run, error) {
	row := b.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = `+b.bind(1), id)
	run, err := scanRun(row)
	if err != nil {
		return model.Run{}, err
	}
	run.Result, err = b.loadViolations(ctx, run.ID)
	return run, err
}

func (b *baseStore) LatestRun(ctx context.Context) (model.Run, error) {
	row := b.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY finished_at DESC LIMIT 1`)
	run, err := scanRun(row)
	if err != nil {
		return model.Run{}, err
	}
	run.Result, err = b.loadViolations(ctx, run.ID)
	return run, err
}

// ListRuns returns run summaries, newest first, without their records.
func (b *baseStore) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := b.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY finished_at DESC LIMIT `+b.bind(1), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (model.Run, error) {
	var run model.Run
	var started, finished string
	err := s.Scan(
		&run.ID,
		&run.Source,
		&started,
		&finished,
		&run.Stats.Lines,
		&run.Stats.Applied,
		&run.Stats.Skipped,
		&run.Stats.Malformed,
		&run.Stats.Filtered,
		&run.Stats.Signals,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Run{}, ErrNotFound
	}
	if err != nil {
		return model.Run{}, err
	}
	if run.StartedAt, err = parseTime(started); err != nil {
		return model.Run{}, err
	}
	if run.FinishedAt, err = parseTime(finished); err != nil {
		return model.Run{}, err
	}
	return run, nil
}

func (b *baseStore) loadViolations(ctx context.Context, runID string) (model.Result, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT `+violationColumns+` FROM violations WHERE run_id = `+b.bind(1)+` ORDER BY signal_id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result := make(model.Result)
	for rows.Next() {
		var (
			row                         model.Row
			ignoredRunID                string
			initial, minV, maxV, limitV sql.NullFloat64
			stateLog                    string
		)
		if err := rows.Scan(
			&ignoredRunID,
			&row.SignalID,
			&row.Owner,
			&row.Description,
			&row.Phase,
			&row.Kind,
			&row.FirstViolation,
			&row.EndTime,
			&row.Toggles,
			&row.WorstSeverity,
			&row.Comment,
			&initial,
			&minV,
			&maxV,
			&limitV,
			&row.InitialState,
			&row.LimitState,
			&stateLog,
		); err != nil {
			return nil, err
		}
		row.InitialValue = floatPtr(initial)
		row.MinValue = floatPtr(minV)
		row.MaxValue = floatPtr(maxV)
		row.Limit = floatPtr(limitV)
		if stateLog != "" && stateLog != "null" {
			if err := json.Unmarshal([]byte(stateLog), &row.StateLog); err != nil {
				return nil, fmt.Errorf("decode state log for %s: %w", row.SignalID, err)
			}
		}
		result[row.SignalID] = row.Record()
	}
	return result, rows.Err()
}

func (b *baseStore) LookupMetadata(ctx context.Context, signalID string) (model.Metadata, error) {
	var md model.Metadata
	err := b.db.QueryRowContext(ctx,
		`SELECT owner, description FROM msids WHERE signal_id = `+b.bind(1),
		strings.ToLower(signalID),
	).Scan(&md.Owner, &md.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Metadata{}, ErrNotFound
	}
	return md, err
}

func (b *baseStore) PutMetadata(ctx context.Context, signalID string, md model.Metadata) error {
	_, err := b.db.ExecContext(ctx,
		`INSERT INTO msids (signal_id, owner, description) VALUES (`+b.placeholders(1, 3)+`)
		ON CONFLICT (signal_id) DO UPDATE SET owner = excluded.owner, description = excluded.description`,
		strings.ToLower(signalID), md.Owner, md.Description,
	)
	return err
}

func encodeJSON(value any) string {
	data, _ := json.Marshal(value)
	return string(data)
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05.999999999 -0700 MST"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("parse stored time %q", s)
}

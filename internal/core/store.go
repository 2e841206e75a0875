package core

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/3cpo-dev/ahctl/pkg/api"
)

// Run is one journaled invocation. The journal is write-only from the
// orchestrator's point of view; nothing reads it back to make decisions.
type Run struct {
	ID         string           `json:"id"`
	Kind       string           `json:"kind"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Success    bool             `json:"success"`
	Failed     int              `json:"failed"`
	Results    []api.SyncResult `json:"results"`
}

// Store is a SQLite-backed run journal.
type Store struct{ db *sql.DB }

//go:embed migrations/*.sql
var migrationFS embed.FS

func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema, err := migrationFS.ReadFile("migrations/0001_init.sql")
	if err != nil {
		return err
	}
	if _, err := s.db.Exec(string(schema)); err != nil {
		return fmt.Errorf("apply migration: %w", err)
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

// RecordRun stores the run and its results in one transaction.
func (s *Store) RecordRun(ctx context.Context, run Run) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (id, kind, started_at, finished_at, success, failed) VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.Kind, run.StartedAt.UTC().Format(time.RFC3339Nano), run.FinishedAt.UTC().Format(time.RFC3339Nano),
		run.Success, run.Failed,
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	for i, res := range run.Results {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO results (run_id, position, target_id, target_name, success, skipped, attempts, error)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, i, res.TargetID, res.TargetName, res.Success, res.Skipped, res.Attempts, res.Error,
		); err != nil {
			return fmt.Errorf("insert result %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// RecentRuns returns up to limit runs, newest first, with their results.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, started_at, finished_at, success, failed FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r                 Run
			started, finished string
		)
		if err := rows.Scan(&r.ID, &r.Kind, &started, &finished, &r.Success, &r.Failed); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if r.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, fmt.Errorf("parse started_at: %w", err)
		}
		if r.FinishedAt, err = time.Parse(time.RFC3339Nano, finished); err != nil {
			return nil, fmt.Errorf("parse finished_at: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range runs {
		if runs[i].Results, err = s.results(ctx, runs[i].ID); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

func (s *Store) results(ctx context.Context, runID string) ([]api.SyncResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT target_id, target_name, success, skipped, attempts, error FROM results WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	var out []api.SyncResult
	for rows.Next() {
		var r api.SyncResult
		if err := rows.Scan(&r.TargetID, &r.TargetName, &r.Success, &r.Skipped, &r.Attempts, &r.Error); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package jobs runs download batches in the background for the HTTP
// service and keeps their summaries in a SQLite registry.
package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/paper-harvester/internal/harvest"
	"github.com/pdiddy/paper-harvester/pkg/types"
)

// ErrNotFound is returned when a job ID is unknown.
var ErrNotFound = errors.New("job not found")

// Status is the lifecycle state of a job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Job is the stored summary of one download batch.
type Job struct {
	ID        string        `json:"job_id"`
	OutputDir string        `json:"output_dir"`
	DOIs      []string      `json:"dois"`
	Files     []string      `json:"downloaded_files"`
	Metrics   types.Metrics `json:"metrics"`
	Failures  int           `json:"failures"`
	// FailureLog is the ledger listing failed DOIs and reasons.
	FailureLog string `json:"failure_log,omitempty"`
	DryRun     bool   `json:"dry_run"`
	// Plan is the routing summary computed before any download.
	Plan       *harvest.Plan `json:"plan,omitempty"`
	Status     Status        `json:"status"`
	Error      string        `json:"error,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
}

// Store persists jobs in SQLite.
type Store struct {
	db *sql.DB
}

// OpenStore opens or creates the job database at path.
func OpenStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// Runner goroutines write concurrently; one connection serializes them.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			output_dir TEXT NOT NULL,
			dois TEXT NOT NULL,
			files TEXT NOT NULL,
			metrics TEXT NOT NULL,
			failures INTEGER NOT NULL DEFAULT 0,
			failure_log TEXT,
			dry_run INTEGER NOT NULL,
			plan TEXT,
			status TEXT NOT NULL,
			error TEXT,
			created_at TEXT NOT NULL,
			finished_at TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Save inserts or replaces job.
func (s *Store) Save(ctx context.Context, job *Job) error {
	doisJSON, _ := json.Marshal(nonNil(job.DOIs))
	filesJSON, _ := json.Marshal(nonNil(job.Files))
	metrics := job.Metrics
	if metrics == nil {
		metrics = types.Metrics{}
	}
	metricsJSON, _ := json.Marshal(metrics)
	var plan sql.NullString
	if job.Plan != nil {
		b, _ := json.Marshal(job.Plan)
		plan = sql.NullString{String: string(b), Valid: true}
	}

	var finished sql.NullString
	if job.FinishedAt != nil {
		finished = sql.NullString{String: job.FinishedAt.UTC().Format(time.RFC3339Nano), Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, output_dir, dois, files, metrics, failures, failure_log, dry_run, plan, status, error, created_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			output_dir=excluded.output_dir, dois=excluded.dois, files=excluded.files,
			metrics=excluded.metrics, failures=excluded.failures, failure_log=excluded.failure_log,
			dry_run=excluded.dry_run, plan=excluded.plan, status=excluded.status, error=excluded.error,
			created_at=excluded.created_at, finished_at=excluded.finished_at`,
		job.ID, job.OutputDir, string(doisJSON), string(filesJSON), string(metricsJSON),
		job.Failures, job.FailureLog, job.DryRun, plan, string(job.Status), job.Error,
		job.CreatedAt.UTC().Format(time.RFC3339Nano), finished,
	)
	if err != nil {
		return fmt.Errorf("saving job %s: %w", job.ID, err)
	}
	return nil
}

const selectJob = `SELECT id, output_dir, dois, files, metrics, failures, failure_log, dry_run, plan, status, error, created_at, finished_at FROM jobs`

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*Job, error) {
	var (
		job                            Job
		doisJSON, filesJSON, metrics   string
		failureLog, errMsg, finishedAt sql.NullString
		plan                           sql.NullString
		status, createdAt              string
	)
	if err := row.Scan(&job.ID, &job.OutputDir, &doisJSON, &filesJSON, &metrics,
		&job.Failures, &failureLog, &job.DryRun, &plan, &status, &errMsg, &createdAt, &finishedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(doisJSON), &job.DOIs); err != nil {
		return nil, fmt.Errorf("decoding dois: %w", err)
	}
	if err := json.Unmarshal([]byte(filesJSON), &job.Files); err != nil {
		return nil, fmt.Errorf("decoding files: %w", err)
	}
	if err := json.Unmarshal([]byte(metrics), &job.Metrics); err != nil {
		return nil, fmt.Errorf("decoding metrics: %w", err)
	}
	if plan.Valid {
		job.Plan = &harvest.Plan{}
		if err := json.Unmarshal([]byte(plan.String), job.Plan); err != nil {
			return nil, fmt.Errorf("decoding plan: %w", err)
		}
	}
	job.Status = Status(status)
	job.FailureLog = failureLog.String
	job.Error = errMsg.String
	job.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	if finishedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, finishedAt.String)
		if err == nil {
			job.FinishedAt = &t
		}
	}
	return &job, nil
}

// Get returns the job with id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*Job, error) {
	job, err := scanJob(s.db.QueryRowContext(ctx, selectJob+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading job %s: %w", id, err)
	}
	return job, nil
}

// List returns up to limit jobs, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, selectJob+` ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning job: %w", err)
		}
		out = append(out, *job)
	}
	return out, rows.Err()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

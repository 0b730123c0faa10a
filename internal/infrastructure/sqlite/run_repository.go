package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/zjrosen/lineage/internal/runs"
)

// RunRepository implements runs.Repository using SQLite.
type RunRepository struct {
	db *sql.DB
}

var _ runs.Repository = (*RunRepository)(nil)

// RunModel represents the database row for the migration_run table.
type RunModel struct {
	ID             int64
	RunID          string
	DryRun         bool
	Outcome        string
	StartedAt      int64 // Unix timestamp
	FinishedAt     int64 // Unix timestamp
	Report         string
	AcknowledgedAt *int64 // Unix timestamp, nullable
	CleanedAt      *int64 // Unix timestamp, nullable
}

func (m *RunModel) toDomain() *runs.Run {
	r := &runs.Run{
		ID:         m.ID,
		RunID:      m.RunID,
		DryRun:     m.DryRun,
		Outcome:    runs.Outcome(m.Outcome),
		StartedAt:  time.Unix(m.StartedAt, 0),
		FinishedAt: time.Unix(m.FinishedAt, 0),
		Report:     []byte(m.Report),
	}
	if m.AcknowledgedAt != nil {
		t := time.Unix(*m.AcknowledgedAt, 0)
		r.AcknowledgedAt = &t
	}
	if m.CleanedAt != nil {
		t := time.Unix(*m.CleanedAt, 0)
		r.CleanedAt = &t
	}
	return r
}

const runColumns = `id, run_id, dry_run, outcome, started_at, finished_at, report, acknowledged_at, cleaned_at`

func scanRun(s scanner) (*RunModel, error) {
	var m RunModel
	err := s.Scan(&m.ID, &m.RunID, &m.DryRun, &m.Outcome, &m.StartedAt, &m.FinishedAt,
		&m.Report, &m.AcknowledgedAt, &m.CleanedAt)
	return &m, err
}

// Save inserts a run and sets its ID.
func (r *RunRepository) Save(ctx context.Context, run *runs.Run) error {
	report := string(run.Report)
	if report == "" {
		report = "{}"
	}
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO migration_run (run_id, dry_run, outcome, started_at, finished_at, report)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		run.RunID, run.DryRun, string(run.Outcome), run.StartedAt.Unix(), run.FinishedAt.Unix(), report,
	)
	if err != nil {
		return fmt.Errorf("failed to insert migration run: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	run.ID = id
	return nil
}

// FindByRunID returns runs.ErrRunNotFound when no run has the id.
func (r *RunRepository) FindByRunID(ctx context.Context, runID string) (*runs.Run, error) {
	m, err := scanRun(r.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM migration_run WHERE run_id = ?`, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", runs.ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find migration run: %w", err)
	}
	return m.toDomain(), nil
}

// Latest returns the most recent committed (non dry) run.
func (r *RunRepository) Latest(ctx context.Context) (*runs.Run, error) {
	m, err := scanRun(r.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM migration_run WHERE dry_run = 0 ORDER BY started_at DESC, id DESC LIMIT 1`))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, runs.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find latest migration run: %w", err)
	}
	return m.toDomain(), nil
}

// List returns runs newest first. A limit of 0 returns every run.
func (r *RunRepository) List(ctx context.Context, limit int) ([]*runs.Run, error) {
	query := `SELECT ` + runColumns + ` FROM migration_run ORDER BY started_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list migration runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*runs.Run
	for rows.Next() {
		m, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan migration run: %w", err)
		}
		out = append(out, m.toDomain())
	}
	return out, rows.Err()
}

// Acknowledge records the operator's acceptance of a run outcome.
func (r *RunRepository) Acknowledge(ctx context.Context, runID string, at time.Time) error {
	return r.stamp(ctx, "acknowledged_at", runID, at)
}

// MarkCleaned records that the legacy tables were dropped on the strength of the run.
func (r *RunRepository) MarkCleaned(ctx context.Context, runID string, at time.Time) error {
	return r.stamp(ctx, "cleaned_at", runID, at)
}

func (r *RunRepository) stamp(ctx context.Context, column, runID string, at time.Time) error {
	// column is one of two constants above, never user input.
	result, err := r.db.ExecContext(ctx,
		`UPDATE migration_run SET `+column+` = ? WHERE run_id = ?`, at.Unix(), runID)
	if err != nil {
		return fmt.Errorf("failed to update migration run: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", runs.ErrRunNotFound, runID)
	}
	return nil
}

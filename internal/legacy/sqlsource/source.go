// Package sqlsource reads the legacy dataset from its relational database,
// either the production Postgres instance or a SQLite copy of it.
package sqlsource

import (
	"context"
	"database/sql"
	"fmt"
	"path"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/zjrosen/lineage/internal/legacy"
	"github.com/zjrosen/lineage/internal/log"
)

// Supported database/sql driver names.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// Source implements legacy.Source and legacy.Dropper over database/sql.
type Source struct {
	db     *sql.DB
	driver string
}

var (
	_ legacy.Source  = (*Source)(nil)
	_ legacy.Dropper = (*Source)(nil)
)

// Open connects to the legacy database and verifies the connection.
func Open(driver, dsn string) (*Source, error) {
	switch driver {
	case DriverPostgres, DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported legacy driver %q (want %s or %s)", driver, DriverPostgres, DriverSQLite)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening legacy database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connecting to legacy database: %w", err)
	}
	log.Info(log.CatLegacy, "legacy database opened", "driver", driver)
	return New(db, driver), nil
}

// New wraps an open connection.
func New(db *sql.DB, driver string) *Source {
	return &Source{db: db, driver: driver}
}

// Close closes the connection.
func (s *Source) Close() error {
	return s.db.Close()
}

// Statuses returns the legacy job status enumeration.
func (s *Source) Statuses(ctx context.Context) (map[int64]legacy.Status, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT job_status_id, status FROM job_status`)
	if err != nil {
		return nil, fmt.Errorf("querying job statuses: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[int64]legacy.Status)
	for rows.Next() {
		var (
			id   int64
			name string
		)
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("scanning job status: %w", err)
		}
		out[id] = legacy.ParseStatus(name)
	}
	return out, rows.Err()
}

// ListAnalyses returns every analysis with its files.
func (s *Source) ListAnalyses(ctx context.Context) ([]legacy.Analysis, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT analysis_id, email, name, timestamp
		  FROM analysis
		 ORDER BY analysis_id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying analyses: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []legacy.Analysis
	index := make(map[int64]int)
	for rows.Next() {
		var (
			a  legacy.Analysis
			ts scanTime
		)
		if err := rows.Scan(&a.ID, &a.Email, &a.Name, &ts); err != nil {
			return nil, fmt.Errorf("scanning analysis: %w", err)
		}
		a.Timestamp = ts.Time
		index[a.ID] = len(out)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	files, err := s.filesBy(ctx, `
		SELECT af.analysis_id, f.filepath_id, f.filepath, ft.filepath_type, COALESCE(f.checksum, '')
		  FROM analysis_filepath af
		  JOIN filepath f ON f.filepath_id = af.filepath_id
		  JOIN filepath_type ft ON ft.filepath_type_id = f.filepath_type_id
		 ORDER BY af.analysis_id, f.filepath_id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying analysis files: %w", err)
	}
	for id, fs := range files {
		if i, ok := index[id]; ok {
			out[i].RootFiles = fs
		}
	}
	return out, nil
}

// ListJobs returns every job with its result files, log and analysis links.
func (s *Source) ListJobs(ctx context.Context) ([]legacy.Job, error) {
	return s.listJobs(ctx, "")
}

// listJobs reads the jobs whose options text contains fragment, or every job
// when fragment is empty.
func (s *Source) listJobs(ctx context.Context, fragment string) ([]legacy.Job, error) {
	statuses, err := s.Statuses(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT j.job_id, j.command_id, COALESCE(CAST(j.options AS TEXT), ''), j.job_status_id,
		       j.log_id, l.time, COALESCE(l.msg, '')
		  FROM job j
		  LEFT JOIN logging l ON l.logging_id = j.log_id`
	var args []any
	if fragment != "" {
		query += " WHERE CAST(j.options AS TEXT) LIKE " + s.placeholder(1)
		args = append(args, "%"+fragment+"%")
	}
	rows, err := s.db.QueryContext(ctx, query+" ORDER BY j.job_id", args...)
	if err != nil {
		return nil, fmt.Errorf("querying jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []legacy.Job
	index := make(map[int64]int)
	for rows.Next() {
		var (
			j        legacy.Job
			options  string
			statusID int64
			logID    sql.NullInt64
			logTime  scanTime
			logMsg   string
		)
		if err := rows.Scan(&j.ID, &j.CommandCode, &options, &statusID, &logID, &logTime, &logMsg); err != nil {
			return nil, fmt.Errorf("scanning job: %w", err)
		}
		j.Options = legacy.Options(options)
		j.Status = statuses[statusID]
		if j.Status == "" {
			j.Status = legacy.StatusUnknown
		}
		if logID.Valid {
			j.Log = &legacy.LogEntry{ID: logID.Int64, Time: logTime.Time, Msg: logMsg}
		}
		index[j.ID] = len(out)
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	results, err := s.filesBy(ctx, `
		SELECT jr.job_id, f.filepath_id, f.filepath, ft.filepath_type, COALESCE(f.checksum, '')
		  FROM job_results_filepath jr
		  JOIN filepath f ON f.filepath_id = jr.filepath_id
		  JOIN filepath_type ft ON ft.filepath_type_id = f.filepath_type_id
		 ORDER BY jr.job_id, f.filepath_id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying job results: %w", err)
	}
	for id, fs := range results {
		if i, ok := index[id]; ok {
			out[i].ResultFiles = fs
		}
	}

	links, err := s.db.QueryContext(ctx, `SELECT job_id, analysis_id FROM analysis_job ORDER BY job_id, analysis_id`)
	if err != nil {
		return nil, fmt.Errorf("querying analysis jobs: %w", err)
	}
	defer func() { _ = links.Close() }()
	for links.Next() {
		var jobID, analysisID int64
		if err := links.Scan(&jobID, &analysisID); err != nil {
			return nil, fmt.Errorf("scanning analysis job: %w", err)
		}
		if i, ok := index[jobID]; ok {
			out[i].AnalysisIDs = append(out[i].AnalysisIDs, analysisID)
		}
	}
	return out, links.Err()
}

// ListJobsForAnalysis returns the jobs whose options name rootFilePath's base
// name. SQL narrows the scan to options containing the base name; the exact
// match is made on the parsed options.
func (s *Source) ListJobsForAnalysis(ctx context.Context, rootFilePath string) ([]legacy.Job, error) {
	candidates, err := s.listJobs(ctx, path.Base(rootFilePath))
	if err != nil {
		return nil, err
	}
	var out []legacy.Job
	for _, j := range candidates {
		if j.Options.ReferencesFile(rootFilePath) {
			out = append(out, j)
		}
	}
	return out, nil
}

// filesBy runs a query returning (owner id, file columns) and groups the
// files by owner.
func (s *Source) filesBy(ctx context.Context, query string) (map[int64][]legacy.File, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make(map[int64][]legacy.File)
	for rows.Next() {
		var (
			owner int64
			f     legacy.File
		)
		if err := rows.Scan(&owner, &f.ID, &f.Path, &f.Role, &f.Checksum); err != nil {
			return nil, err
		}
		out[owner] = append(out[owner], f)
	}
	return out, rows.Err()
}

// DropLegacyTables drops the legacy job tables in one transaction.
func (s *Source) DropLegacyTables(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning drop: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range legacy.DroppedTables {
		stmt := "DROP TABLE IF EXISTS " + table
		if s.driver == DriverPostgres {
			stmt += " CASCADE"
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("dropping %s: %w", table, err)
		}
		log.Info(log.CatLegacy, "dropped legacy table", "table", table)
	}
	return tx.Commit()
}

// placeholder returns the n-th bind parameter in the driver's syntax.
func (s *Source) placeholder(n int) string {
	if s.driver == DriverPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// scanTime accepts the timestamp representations of both drivers. NULL scans
// to the zero time.
type scanTime struct {
	Time time.Time
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Scan implements sql.Scanner.
func (t *scanTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.Time = time.Time{}
		return nil
	case time.Time:
		t.Time = v
		return nil
	case int64:
		t.Time = time.Unix(v, 0).UTC()
		return nil
	case []byte:
		return t.parse(string(v))
	case string:
		return t.parse(v)
	default:
		return fmt.Errorf("cannot scan %T into a timestamp", src)
	}
}

func (t *scanTime) parse(s string) error {
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			t.Time = ts
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", s)
}

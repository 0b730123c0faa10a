package testutil

import (
	"database/sql"
	"time"

	"github.com/stretchr/testify/require"
)

// Builder accumulates legacy rows and inserts them in dependency order.
type Builder struct {
	t        T
	db       *sql.DB
	analyses []analysisData
	jobs     []jobData
	files    map[int64]bool
}

// NewBuilder creates a builder for the given legacy database.
func NewBuilder(t T, db *sql.DB) *Builder {
	t.Helper()
	return &Builder{t: t, db: db, files: make(map[int64]bool)}
}

// WithAnalysis adds an analysis.
func (b *Builder) WithAnalysis(id int64, opts ...AnalysisOption) *Builder {
	a := defaultAnalysis(id)
	for _, opt := range opts {
		opt(&a)
	}
	b.analyses = append(b.analyses, a)
	return b
}

// WithJob adds a job with the given legacy command code. Jobs default to
// queued with an empty options object.
func (b *Builder) WithJob(id int64, commandCode int, opts ...JobOption) *Builder {
	empty := "{}"
	j := jobData{id: id, commandCode: commandCode, statusID: StatusQueued, options: &empty}
	for _, opt := range opts {
		opt(&j)
	}
	b.jobs = append(b.jobs, j)
	return b
}

// Build inserts all accumulated data.
func (b *Builder) Build() {
	b.t.Helper()
	for _, a := range b.analyses {
		b.insertAnalysis(a)
	}
	for _, j := range b.jobs {
		b.insertJob(j)
	}
}

func (b *Builder) insertFile(f FileData) {
	b.t.Helper()
	if b.files[f.ID] {
		return
	}
	_, err := b.db.Exec(
		`INSERT INTO filepath (filepath_id, filepath, filepath_type_id, checksum)
		 VALUES (?, ?, (SELECT filepath_type_id FROM filepath_type WHERE filepath_type = ?), ?)`,
		f.ID, f.Path, f.Role, f.Checksum,
	)
	require.NoError(b.t, err, "insert file %d", f.ID)
	b.files[f.ID] = true
}

func (b *Builder) insertAnalysis(a analysisData) {
	b.t.Helper()
	_, err := b.db.Exec(
		`INSERT INTO analysis (analysis_id, email, name, timestamp) VALUES (?, ?, ?, ?)`,
		a.id, a.email, a.name, a.timestamp.UTC().Format(time.RFC3339),
	)
	require.NoError(b.t, err, "insert analysis %d", a.id)
	for _, f := range a.files {
		b.insertFile(f)
		_, err := b.db.Exec(`INSERT INTO analysis_filepath (analysis_id, filepath_id) VALUES (?, ?)`, a.id, f.ID)
		require.NoError(b.t, err)
	}
}

func (b *Builder) insertJob(j jobData) {
	b.t.Helper()
	var logID any
	if j.logID != 0 {
		logID = j.logID
		_, err := b.db.Exec(
			`INSERT INTO logging (logging_id, time, msg) VALUES (?, ?, ?)`,
			j.logID, "2015-11-20T09:30:00Z", j.logMsg,
		)
		require.NoError(b.t, err, "insert log %d", j.logID)
	}
	var options any
	if j.options != nil {
		options = *j.options
	}
	_, err := b.db.Exec(
		`INSERT INTO job (job_id, job_status_id, command_id, options, log_id) VALUES (?, ?, ?, ?, ?)`,
		j.id, j.statusID, j.commandCode, options, logID,
	)
	require.NoError(b.t, err, "insert job %d", j.id)
	for _, f := range j.results {
		b.insertFile(f)
		_, err := b.db.Exec(`INSERT INTO job_results_filepath (job_id, filepath_id) VALUES (?, ?)`, j.id, f.ID)
		require.NoError(b.t, err)
	}
	for _, aid := range j.analyses {
		_, err := b.db.Exec(`INSERT INTO analysis_job (analysis_id, job_id) VALUES (?, ?)`, aid, j.id)
		require.NoError(b.t, err)
	}
}

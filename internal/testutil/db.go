// Package testutil builds legacy datasets for tests.
package testutil

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/stretchr/testify/require"
)

// LegacySchema is the pre-migration schema, reduced to the tables the
// migration reads.
const LegacySchema = `
CREATE TABLE filepath_type (
	filepath_type_id INTEGER PRIMARY KEY,
	filepath_type TEXT NOT NULL UNIQUE
);

CREATE TABLE filepath (
	filepath_id INTEGER PRIMARY KEY,
	filepath TEXT NOT NULL,
	filepath_type_id INTEGER NOT NULL REFERENCES filepath_type(filepath_type_id),
	checksum TEXT
);

CREATE TABLE analysis (
	analysis_id INTEGER PRIMARY KEY,
	email TEXT NOT NULL,
	name TEXT NOT NULL,
	timestamp TIMESTAMP NOT NULL
);

CREATE TABLE analysis_filepath (
	analysis_id INTEGER NOT NULL REFERENCES analysis(analysis_id),
	filepath_id INTEGER NOT NULL REFERENCES filepath(filepath_id),
	PRIMARY KEY (analysis_id, filepath_id)
);

CREATE TABLE logging (
	logging_id INTEGER PRIMARY KEY,
	time TIMESTAMP NOT NULL,
	msg TEXT
);

CREATE TABLE job_status (
	job_status_id INTEGER PRIMARY KEY,
	status TEXT NOT NULL UNIQUE
);

CREATE TABLE command (
	command_id INTEGER PRIMARY KEY,
	name TEXT NOT NULL
);

CREATE TABLE command_data_type (
	command_id INTEGER NOT NULL REFERENCES command(command_id),
	data_type_id INTEGER NOT NULL,
	PRIMARY KEY (command_id, data_type_id)
);

CREATE TABLE job (
	job_id INTEGER PRIMARY KEY,
	job_status_id INTEGER NOT NULL REFERENCES job_status(job_status_id),
	command_id INTEGER NOT NULL,
	options TEXT,
	log_id INTEGER REFERENCES logging(logging_id)
);

CREATE TABLE analysis_job (
	analysis_id INTEGER NOT NULL REFERENCES analysis(analysis_id),
	job_id INTEGER NOT NULL REFERENCES job(job_id),
	PRIMARY KEY (analysis_id, job_id)
);

CREATE TABLE job_results_filepath (
	job_id INTEGER NOT NULL REFERENCES job(job_id),
	filepath_id INTEGER NOT NULL REFERENCES filepath(filepath_id),
	PRIMARY KEY (job_id, filepath_id)
);

INSERT INTO filepath_type (filepath_type_id, filepath_type) VALUES
	(1, 'biom'), (2, 'plain_text'), (3, 'html'), (4, 'directory'), (5, 'tgz'), (6, 'log');

INSERT INTO job_status (job_status_id, status) VALUES
	(1, 'queued'), (2, 'running'), (3, 'completed'), (4, 'error');

INSERT INTO command (command_id, name) VALUES
	(1, 'Summarize Taxa'), (2, 'Beta Diversity'), (3, 'Alpha Rarefaction');

INSERT INTO command_data_type (command_id, data_type_id) VALUES (1, 1), (2, 1), (3, 1);
`

// Legacy status ids seeded by LegacySchema.
const (
	StatusQueued    = 1
	StatusRunning   = 2
	StatusCompleted = 3
	StatusError     = 4
)

// T is the subset of testing.TB the builder needs. It is also satisfied by
// *rapid.T.
type T interface {
	require.TestingT
	Helper()
}

// NewLegacyDB creates a legacy database in a temp file and returns it with
// its path. The database is closed when the test ends.
func NewLegacyDB(t *testing.T) (*sql.DB, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "legacy.db")
	db := OpenLegacyDB(t, path)
	t.Cleanup(func() { _ = db.Close() })
	return db, path
}

// OpenLegacyDB creates the legacy schema in a new database at path. The
// caller closes the database.
func OpenLegacyDB(t T, path string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", "file:"+path+"?_pragma=foreign_keys(1)")
	require.NoError(t, err)
	_, err = db.Exec(LegacySchema)
	require.NoError(t, err, "legacy schema should apply")
	return db
}

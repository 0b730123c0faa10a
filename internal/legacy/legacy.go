// Package legacy is the read-only view over the pre-migration schema: analyses,
// loosely typed jobs and their file associations.
package legacy

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a legacy record does not exist.
var ErrNotFound = errors.New("legacy record not found")

// Status is a legacy job status, resolved once from the old job_status
// enumeration.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
	StatusUnknown   Status = "unknown"
)

// ParseStatus maps the textual legacy status to a Status.
func ParseStatus(s string) Status {
	switch Status(s) {
	case StatusQueued, StatusRunning, StatusCompleted, StatusError:
		return Status(s)
	default:
		return StatusUnknown
	}
}

// File is a file known to the legacy platform.
type File struct {
	ID       int64
	Path     string
	Role     string
	Checksum string
}

// LogEntry is a legacy log row.
type LogEntry struct {
	ID   int64
	Time time.Time
	Msg  string
}

// Analysis is a legacy user analysis and the root data files it started from.
type Analysis struct {
	ID        int64
	Email     string
	Name      string
	Timestamp time.Time
	RootFiles []File
}

// Job is a legacy job. Options is kept raw; callers convert it with Bag.
type Job struct {
	ID          int64
	CommandCode int
	Options     Options
	Status      Status
	ResultFiles []File
	Log         *LogEntry
	AnalysisIDs []int64
}

// Orphan reports whether the job is not linked to any analysis.
func (j Job) Orphan() bool { return len(j.AnalysisIDs) == 0 }

// HasResult reports whether a result file was recorded for the job.
func (j Job) HasResult() bool { return len(j.ResultFiles) > 0 }

// Source reads the legacy dataset. Implementations never mutate it.
type Source interface {
	// ListAnalyses returns every analysis ordered by id.
	ListAnalyses(ctx context.Context) ([]Analysis, error)

	// ListJobs returns every job ordered by id, including orphans.
	ListJobs(ctx context.Context) ([]Job, error)

	// ListJobsForAnalysis returns the jobs whose options reference a file
	// with the same base name as rootFilePath, ordered by id.
	ListJobsForAnalysis(ctx context.Context, rootFilePath string) ([]Job, error)

	// Statuses returns the legacy status enumeration keyed by its old id.
	Statuses(ctx context.Context) (map[int64]Status, error)
}

// Dropper removes the legacy job tables once the migration is accepted.
type Dropper interface {
	// DropLegacyTables drops the legacy job tables. It cannot be undone.
	DropLegacyTables(ctx context.Context) error
}

// DroppedTables lists the legacy tables removed by DropLegacyTables, in drop order.
var DroppedTables = []string{
	"analysis_job",
	"job_results_filepath",
	"job",
	"job_status",
	"command_data_type",
}

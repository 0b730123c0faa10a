package testutil

import "time"

// FileData is a legacy file row.
type FileData struct {
	ID       int64
	Path     string
	Role     string
	Checksum string
}

// File creates a FileData with an empty checksum.
func File(id int64, path, role string) FileData {
	return FileData{ID: id, Path: path, Role: role}
}

// analysisData holds all data for an analysis to be inserted.
type analysisData struct {
	id        int64
	email     string
	name      string
	timestamp time.Time
	files     []FileData
}

func defaultAnalysis(id int64) analysisData {
	return analysisData{
		id:        id,
		email:     "demo@microbio.me",
		name:      "analysis",
		timestamp: time.Date(2015, 11, 20, 9, 0, 0, 0, time.UTC),
	}
}

// AnalysisOption configures an analysis during builder setup.
type AnalysisOption func(*analysisData)

// Email sets the owner email.
func Email(email string) AnalysisOption {
	return func(a *analysisData) { a.email = email }
}

// Name sets the analysis name.
func Name(name string) AnalysisOption {
	return func(a *analysisData) { a.name = name }
}

// At sets the analysis timestamp.
func At(ts time.Time) AnalysisOption {
	return func(a *analysisData) { a.timestamp = ts }
}

// RootFile attaches a file to the analysis.
func RootFile(f FileData) AnalysisOption {
	return func(a *analysisData) { a.files = append(a.files, f) }
}

// jobData holds all data for a legacy job to be inserted.
type jobData struct {
	id          int64
	commandCode int
	statusID    int
	options     *string
	logID       int64
	logMsg      string
	results     []FileData
	analyses    []int64
}

// JobOption configures a job during builder setup.
type JobOption func(*jobData)

// Options sets the raw options blob.
func Options(blob string) JobOption {
	return func(j *jobData) { j.options = &blob }
}

// NullOptions stores the options column as NULL.
func NullOptions() JobOption {
	return func(j *jobData) { j.options = nil }
}

// Result records a result file and marks the job completed.
func Result(f FileData) JobOption {
	return func(j *jobData) {
		j.results = append(j.results, f)
		j.statusID = StatusCompleted
	}
}

// ErrorLog attaches a log entry and marks the job as errored.
func ErrorLog(id int64, msg string) JobOption {
	return func(j *jobData) {
		j.logID = id
		j.logMsg = msg
		j.statusID = StatusError
	}
}

// JobStatus overrides the legacy status id.
func JobStatus(id int) JobOption {
	return func(j *jobData) { j.statusID = id }
}

// InAnalysis links the job to analyses.
func InAnalysis(ids ...int64) JobOption {
	return func(j *jobData) { j.analyses = append(j.analyses, ids...) }
}

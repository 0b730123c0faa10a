// Package domain holds the provenance graph model: artifacts, the processing
// jobs that produce them, and the log entries that explain failed jobs.
//
// Legacy status and visibility codes are resolved into the named enumerations
// below at the adapter boundary; nothing in this package deals in bare integers.
package domain

// JobStatus is the lifecycle state of a processing job.
type JobStatus string

const (
	JobQueued  JobStatus = "queued"
	JobRunning JobStatus = "running"
	JobSuccess JobStatus = "success"
	JobError   JobStatus = "error"
)

// String returns the string representation of the status.
func (s JobStatus) String() string {
	return string(s)
}

// IsValid returns true if the status is a recognized job status.
func (s JobStatus) IsValid() bool {
	switch s {
	case JobQueued, JobRunning, JobSuccess, JobError:
		return true
	default:
		return false
	}
}

// IsTerminal returns true for Success and Error.
func (s JobStatus) IsTerminal() bool {
	return s == JobSuccess || s == JobError
}

// CanTransitionTo reports whether a job may move from s to next.
// Queued → Running → {Success | Error}; terminal states never change.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case JobQueued:
		return next == JobRunning
	case JobRunning:
		return next == JobSuccess || next == JobError
	default:
		return false
	}
}

// Visibility controls who can see an artifact.
type Visibility string

const (
	VisibilitySandbox  Visibility = "sandbox"
	VisibilityPrivate  Visibility = "private"
	VisibilityPublic   Visibility = "public"
	VisibilityArchived Visibility = "archived"
)

// IsValid returns true if the visibility is recognized.
func (v Visibility) IsValid() bool {
	switch v {
	case VisibilitySandbox, VisibilityPrivate, VisibilityPublic, VisibilityArchived:
		return true
	default:
		return false
	}
}

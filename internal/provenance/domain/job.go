package domain

import (
	"time"

	catalog "github.com/zjrosen/lineage/internal/catalog/domain"
)

// ProcessingJob is one execution of a command with a concrete binding.
type ProcessingJob struct {
	id        int64
	commandID int64
	binding   catalog.Binding
	status    JobStatus
	logID     int64
	createdAt time.Time
}

// NewProcessingJob creates a job, not yet persisted. logID is 0 when the job
// has no log entry.
func NewProcessingJob(commandID int64, binding catalog.Binding, status JobStatus, logID int64, createdAt time.Time) *ProcessingJob {
	return &ProcessingJob{
		commandID: commandID,
		binding:   binding,
		status:    status,
		logID:     logID,
		createdAt: createdAt,
	}
}

// ReconstituteProcessingJob recreates a job from persisted data.
func ReconstituteProcessingJob(id, commandID int64, binding catalog.Binding, status JobStatus, logID int64, createdAt time.Time) *ProcessingJob {
	j := NewProcessingJob(commandID, binding, status, logID, createdAt)
	j.id = id
	return j
}

func (j *ProcessingJob) ID() int64 { return j.id }
func (j *ProcessingJob) SetID(id int64) { j.id = id }
func (j *ProcessingJob) CommandID() int64 { return j.commandID }
func (j *ProcessingJob) Binding() catalog.Binding { return j.binding }
func (j *ProcessingJob) Status() JobStatus { return j.status }
func (j *ProcessingJob) LogID() int64 { return j.logID }
func (j *ProcessingJob) HasLog() bool { return j.logID != 0 }
func (j *ProcessingJob) CreatedAt() time.Time { return j.createdAt }

// TransitionTo moves the job to next. An Error job must carry a log entry,
// either one it already has or logID.
func (j *ProcessingJob) TransitionTo(next JobStatus, logID int64) error {
	if !j.status.CanTransitionTo(next) {
		return Violation(ErrInvalidTransition, "job %d: %s -> %s", j.id, j.status, next)
	}
	if logID == 0 {
		logID = j.logID
	}
	if next == JobError && logID == 0 {
		return Violation(ErrMissingLogRef, "job %d", j.id)
	}
	j.status = next
	j.logID = logID
	return nil
}

// LogEntry is a log message attached to a job. LegacyID is the id the entry
// had in the legacy platform, or 0 for entries created by the migration.
type LogEntry struct {
	ID       int64
	LegacyID int64
	Time     time.Time
	Msg      string
}

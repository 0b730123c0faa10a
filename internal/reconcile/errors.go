package reconcile

import (
	"errors"
	"fmt"

	"github.com/zjrosen/lineage/internal/legacy"
)

// Legacy record error kinds. A LegacyRecordError always wraps one of these.
var (
	ErrUnparseableOptions  = legacy.ErrUnparseableOptions
	ErrUnmappedCommand     = errors.New("unmapped legacy command code")
	ErrUnconvertibleOption = errors.New("unconvertible legacy option")
	ErrUnmatchedSource     = errors.New("no root table matches the job's source file")
	ErrNoRootTable         = errors.New("analysis has no root table")
)

// LegacyRecordError reports a malformed legacy job. The job is skipped and
// the rest of its analysis is migrated.
type LegacyRecordError struct {
	JobID int64
	Kind  error
	Msg   string
}

func (e *LegacyRecordError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("legacy job %d: %s", e.JobID, e.Kind)
	}
	return fmt.Sprintf("legacy job %d: %s: %s", e.JobID, e.Kind, e.Msg)
}

func (e *LegacyRecordError) Unwrap() error { return e.Kind }

func recordError(jobID int64, kind error, format string, args ...any) *LegacyRecordError {
	return &LegacyRecordError{JobID: jobID, Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// StorageError reports a unit of work that could not be committed, even
// after a retry.
type StorageError struct {
	AnalysisID int64
	Err        error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("analysis %d: storage: %v", e.AnalysisID, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// errAlreadyMigrated aborts the unit of work of an analysis that already has
// root artifacts linked.
var errAlreadyMigrated = errors.New("analysis already migrated")

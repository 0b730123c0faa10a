// Package runs records migration runs so the irreversible cleanup can check
// what the last run reported and whether the operator accepted it.
package runs

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"
)

// Outcome summarizes a migration run.
type Outcome string

const (
	// OutcomeSuccess means every analysis migrated and no job was skipped.
	OutcomeSuccess Outcome = "success"
	// OutcomePartial means the run completed with skipped jobs or failed analyses.
	OutcomePartial Outcome = "partial"
	// OutcomeFailed means the run aborted before or during migration.
	OutcomeFailed Outcome = "failed"
)

// Run is one recorded migration run.
type Run struct {
	ID             int64
	RunID          string
	DryRun         bool
	Outcome        Outcome
	StartedAt      time.Time
	FinishedAt     time.Time
	Report         json.RawMessage
	AcknowledgedAt *time.Time
	CleanedAt      *time.Time
}

// Acknowledged reports whether an operator accepted the run's outcome.
func (r *Run) Acknowledged() bool {
	return r.AcknowledgedAt != nil
}

// ErrRunNotFound is returned when no run matches the lookup.
var ErrRunNotFound = errors.New("migration run not found")

// NotEligibleError explains why a run cannot authorize the legacy cleanup.
type NotEligibleError struct {
	RunID  string
	Reason string
}

func (e *NotEligibleError) Error() string {
	return fmt.Sprintf("run %s cannot authorize cleanup: %s", e.RunID, e.Reason)
}

// CheckCleanupEligible returns nil when r authorizes dropping the legacy
// tables. acceptPartial is the operator's explicit acceptance of a partial run.
func CheckCleanupEligible(r *Run, acceptPartial bool) error {
	switch {
	case r.DryRun:
		return &NotEligibleError{RunID: r.RunID, Reason: "dry runs commit nothing"}
	case r.CleanedAt != nil:
		return &NotEligibleError{RunID: r.RunID, Reason: "legacy tables were already dropped"}
	case r.Outcome == OutcomeSuccess:
		return nil
	case r.Outcome == OutcomePartial && (acceptPartial || r.Acknowledged()):
		return nil
	case r.Outcome == OutcomePartial:
		return &NotEligibleError{RunID: r.RunID, Reason: "run reported skips or failures; review the report and pass --accept-partial"}
	default:
		return &NotEligibleError{RunID: r.RunID, Reason: fmt.Sprintf("outcome is %s", r.Outcome)}
	}
}

// CheckCleanupHistory looks past the authorizing run at every committed run.
// A re-run reports analyses that already migrated without their skipped jobs,
// so those skips only show in the run that first migrated them. Any committed
// run that did not succeed and was never acknowledged blocks the cleanup
// unless acceptPartial is set. It returns the runs the acceptance covers,
// oldest first.
func CheckCleanupHistory(history []*Run, acceptPartial bool) ([]*Run, error) {
	var outstanding []*Run
	for _, r := range history {
		if r.DryRun || r.Outcome == OutcomeSuccess || r.Acknowledged() {
			continue
		}
		outstanding = append(outstanding, r)
	}
	if len(outstanding) == 0 {
		return nil, nil
	}
	slices.SortFunc(outstanding, func(a, b *Run) int { return cmp.Compare(a.ID, b.ID) })
	if !acceptPartial {
		reason := fmt.Sprintf("%d earlier run(s) reported skips or failures that were never acknowledged; review them and pass --accept-partial",
			len(outstanding))
		return nil, &NotEligibleError{RunID: outstanding[0].RunID, Reason: reason}
	}
	return outstanding, nil
}

// Repository persists migration runs.
type Repository interface {
	Save(ctx context.Context, r *Run) error
	FindByRunID(ctx context.Context, runID string) (*Run, error)
	// Latest returns the most recent run that was not a dry run.
	Latest(ctx context.Context) (*Run, error)
	// List returns runs newest first; limit <= 0 returns all of them.
	List(ctx context.Context, limit int) ([]*Run, error)
	Acknowledge(ctx context.Context, runID string, at time.Time) error
	MarkCleaned(ctx context.Context, runID string, at time.Time) error
}

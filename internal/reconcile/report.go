package reconcile

import (
	"time"

	"github.com/zjrosen/lineage/internal/provenance/application"
	"github.com/zjrosen/lineage/internal/runs"
)

// Pruned is a legacy job removed by the pre-filter. Pruning is expected and
// never counts against the outcome.
type Pruned struct {
	JobID  int64  `json:"job_id"`
	Reason string `json:"reason"`
}

// Pre-filter reasons.
const (
	PrunedEmptyOptions = "empty options"
	PrunedOrphan       = "no analysis link"
)

// Skip is a legacy record left out of an otherwise migrated analysis.
type Skip struct {
	AnalysisID int64  `json:"analysis_id"`
	JobID      int64  `json:"job_id,omitempty"`
	Kind       string `json:"kind"`
	Reason     string `json:"reason"`
}

// Failure is an analysis, or the orphan detach step, that was rolled back.
type Failure struct {
	AnalysisID int64  `json:"analysis_id"`
	Kind       string `json:"kind"`
	Reason     string `json:"reason"`
}

// Failure kinds.
const (
	FailureConstraint = "constraint_violation"
	FailureStorage    = "storage"
)

// Placeholder flags a value the migration invented and the operator is
// expected to correct.
type Placeholder struct {
	Command   string `json:"command"`
	Parameter string `json:"parameter"`
	Value     int64  `json:"value"`
	Jobs      int    `json:"jobs"`
	Notice    string `json:"notice"`
}

// Report is the outcome of a migration run. On a dry run every count is a
// planned insert and nothing was committed.
type Report struct {
	RunID           string             `json:"run_id"`
	DryRun          bool               `json:"dry_run"`
	Outcome         runs.Outcome       `json:"outcome"`
	StartedAt       time.Time          `json:"started_at"`
	FinishedAt      time.Time          `json:"finished_at"`
	Analyses        int                `json:"analyses"`
	Inserts         application.Counts `json:"inserts"`
	Migrated        []int64            `json:"migrated"`
	AlreadyMigrated []int64            `json:"already_migrated"`
	Pruned          []Pruned           `json:"pruned"`
	Skips           []Skip             `json:"skips"`
	Failures        []Failure          `json:"failures"`
	DetachedFiles   []int64            `json:"detached_files"`
	Placeholder     Placeholder        `json:"placeholder"`
	Error           string             `json:"error,omitempty"`
}

func newReport(runID string, dryRun bool, startedAt time.Time) *Report {
	return &Report{
		RunID:           runID,
		DryRun:          dryRun,
		StartedAt:       startedAt,
		Migrated:        []int64{},
		AlreadyMigrated: []int64{},
		Pruned:          []Pruned{},
		Skips:           []Skip{},
		Failures:        []Failure{},
		DetachedFiles:   []int64{},
	}
}

// finish sets the outcome from what was recorded.
func (r *Report) finish(at time.Time) {
	r.FinishedAt = at
	switch {
	case r.Error != "":
		r.Outcome = runs.OutcomeFailed
	case len(r.Skips) > 0 || len(r.Failures) > 0:
		r.Outcome = runs.OutcomePartial
	default:
		r.Outcome = runs.OutcomeSuccess
	}
}

// analysisResult is what one analysis contributes to the report.
type analysisResult struct {
	analysisID int64
	migrated   bool
	already    bool
	counts     application.Counts
	rarefied   int
	skips      []Skip
	failure    *Failure
}

func (r *Report) add(res analysisResult) {
	switch {
	case res.failure != nil:
		r.Failures = append(r.Failures, *res.failure)
		return
	case res.already:
		r.AlreadyMigrated = append(r.AlreadyMigrated, res.analysisID)
		return
	}
	if res.migrated {
		r.Migrated = append(r.Migrated, res.analysisID)
	}
	r.Inserts = r.Inserts.Add(res.counts)
	r.Placeholder.Jobs += res.rarefied
	r.Skips = append(r.Skips, res.skips...)
}

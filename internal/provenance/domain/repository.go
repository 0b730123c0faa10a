package domain

import "context"

// Repository is the raw persistence interface of the provenance graph. It does
// not validate graph invariants; that is the job of the application layer.
// An implementation is bound to one unit of work.
type Repository interface {
	// InsertArtifact persists a new artifact with its parent edges and file
	// links and sets its ID.
	InsertArtifact(ctx context.Context, a *Artifact) error

	// FindArtifact returns NotFoundError if no artifact has the id.
	FindArtifact(ctx context.Context, id int64) (*Artifact, error)

	// ArtifactType returns the type name of an artifact.
	ArtifactType(ctx context.Context, id int64) (string, error)

	// InsertParentEdge adds child -> parent. Duplicate edges are ignored.
	InsertParentEdge(ctx context.Context, childID, parentID int64) error

	// HasAncestor reports whether ancestorID is reachable from id by
	// following parent edges.
	HasAncestor(ctx context.Context, id, ancestorID int64) (bool, error)

	InsertJob(ctx context.Context, j *ProcessingJob) error
	FindJob(ctx context.Context, id int64) (*ProcessingJob, error)
	UpdateJobStatus(ctx context.Context, j *ProcessingJob) error

	InsertLog(ctx context.Context, e *LogEntry) error
	FindLog(ctx context.Context, id int64) (*LogEntry, error)

	// FindLogByLegacyID returns NotFoundError when the legacy entry was never imported.
	FindLogByLegacyID(ctx context.Context, legacyID int64) (*LogEntry, error)

	// SaveFile inserts a file reference, or returns the existing one with the
	// same LegacyID, and sets f.ID.
	SaveFile(ctx context.Context, f *FileRef) error

	// LinkAnalysis associates a root artifact with a legacy analysis.
	LinkAnalysis(ctx context.Context, analysisID, artifactID int64) error

	// AnalysisLinked reports whether the analysis has any artifact link.
	AnalysisLinked(ctx context.Context, analysisID int64) (bool, error)
}

// UnitOfWork runs a function against a Repository inside one all-or-nothing
// transaction.
type UnitOfWork interface {
	// WithinTx commits when fn returns nil and rolls back otherwise.
	WithinTx(ctx context.Context, fn func(Repository) error) error

	// Rehearse runs fn and always rolls back. Used for dry runs.
	Rehearse(ctx context.Context, fn func(Repository) error) error
}

// RowCounts tallies the rows of the provenance store.
type RowCounts struct {
	Artifacts     int `json:"artifacts"`
	Jobs          int `json:"jobs"`
	ParentEdges   int `json:"parent_edges"`
	AnalysisLinks int `json:"analysis_links"`
	Logs          int `json:"logs"`
	Files         int `json:"files"`
}

// Reader gives read access to the whole committed graph.
type Reader interface {
	ListArtifacts(ctx context.Context) ([]*Artifact, error)
	ListJobs(ctx context.Context) ([]*ProcessingJob, error)
	CountRows(ctx context.Context) (RowCounts, error)
}

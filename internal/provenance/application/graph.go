// Package application implements the provenance graph operations on top of a
// domain.Repository, validating every write against the frozen command catalog.
package application

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/zjrosen/lineage/internal/cachemanager"
	catalog "github.com/zjrosen/lineage/internal/catalog/domain"
	"github.com/zjrosen/lineage/internal/log"
	"github.com/zjrosen/lineage/internal/provenance/domain"
)

// Counts tallies the rows a Graph has written.
type Counts struct {
	Artifacts     int `json:"artifacts"`
	Jobs          int `json:"jobs"`
	ParentEdges   int `json:"parent_edges"`
	AnalysisLinks int `json:"analysis_links"`
	Logs          int `json:"logs"`
	Files         int `json:"files"`
}

// Add returns the element-wise sum of c and o.
func (c Counts) Add(o Counts) Counts {
	return Counts{
		Artifacts:     c.Artifacts + o.Artifacts,
		Jobs:          c.Jobs + o.Jobs,
		ParentEdges:   c.ParentEdges + o.ParentEdges,
		AnalysisLinks: c.AnalysisLinks + o.AnalysisLinks,
		Logs:          c.Logs + o.Logs,
		Files:         c.Files + o.Files,
	}
}

// Graph is the provenance graph bound to one unit of work. It is not safe for
// concurrent use; create one per transaction.
type Graph struct {
	catalog *catalog.Registry
	repo    domain.Repository
	types   *cachemanager.ReadThroughCache[string, string]
	counts  Counts
}

// NewGraph binds a graph to repo. reg must be frozen and its commands persisted.
func NewGraph(reg *catalog.Registry, repo domain.Repository) *Graph {
	g := &Graph{catalog: reg, repo: repo}
	g.types = cachemanager.NewReadThroughCache(
		cachemanager.NewInMemoryCacheManager[string, string]("artifact-types", cachemanager.DefaultExpiration, cachemanager.NoCleanup),
		func(ctx context.Context, key string) (string, error) {
			id, err := strconv.ParseInt(key, 10, 64)
			if err != nil {
				return "", err
			}
			return repo.ArtifactType(ctx, id)
		},
		cachemanager.DefaultExpiration,
	)
	return g
}

// Counts returns the rows written so far.
func (g *Graph) Counts() Counts { return g.counts }

// artifactType resolves the type of an existing artifact through the cache.
func (g *Graph) artifactType(ctx context.Context, id int64) (string, error) {
	typ, err := g.types.Get(ctx, strconv.FormatInt(id, 10))
	if domain.IsNotFound(err) {
		return "", domain.Violation(domain.ErrUnknownArtifactRef, "artifact %d does not exist", id)
	}
	return typ, err
}

// ArtifactInput describes an artifact to create. A zero ProducingJobID makes
// a root artifact.
type ArtifactInput struct {
	Type           string
	ProducingJobID int64
	OutputSlot     string
	Parents        []int64
	Visibility     domain.Visibility
	Files          []domain.FileRef
	CreatedAt      time.Time
}

// CreateArtifact validates and inserts an artifact.
//
// A derived artifact must name an output slot of its job's command and carry
// that slot's artifact type. A root artifact has no parents. Files must have
// been saved with ImportFile and carry a role accepted by the type.
func (g *Graph) CreateArtifact(ctx context.Context, in ArtifactInput) (int64, error) {
	at, err := g.catalog.ArtifactType(in.Type)
	if err != nil {
		return 0, domain.Violation(domain.ErrTypeMismatch, "artifact type %q is not registered", in.Type)
	}
	if !in.Visibility.IsValid() {
		return 0, domain.Violation(domain.ErrInvalidVisibility, "%q", in.Visibility)
	}
	for _, f := range in.Files {
		if !at.Accepts(f.Role) {
			return 0, domain.Violation(domain.ErrFileRoleRejected, "%q does not accept role %q (%s)", in.Type, f.Role, f.Path)
		}
	}

	var a *domain.Artifact
	if in.ProducingJobID == 0 {
		if in.OutputSlot != "" {
			return 0, domain.Violation(domain.ErrUnknownOutputSlot, "root artifact cannot name output slot %q", in.OutputSlot)
		}
		if len(in.Parents) > 0 {
			return 0, domain.Violation(domain.ErrRootWithParents, "%d parents given", len(in.Parents))
		}
		a = domain.NewArtifact(in.Type, in.Visibility, in.Files, in.CreatedAt)
	} else {
		if err := g.checkProducer(ctx, in); err != nil {
			return 0, err
		}
		for _, p := range in.Parents {
			if _, err := g.artifactType(ctx, p); err != nil {
				return 0, err
			}
		}
		// A new artifact has no descendants, so none of its parents can reach it.
		a = domain.NewDerivedArtifact(in.Type, in.ProducingJobID, in.OutputSlot, in.Parents, in.Visibility, in.Files, in.CreatedAt)
	}

	if err := g.repo.InsertArtifact(ctx, a); err != nil {
		return 0, err
	}
	g.types.Prime(ctx, strconv.FormatInt(a.ID(), 10), a.Type())
	g.counts.Artifacts++
	g.counts.ParentEdges += len(a.Parents())

	log.Debug(log.CatStore, "artifact created", "id", a.ID(), "type", a.Type(), "job", a.ProducingJobID(), "parents", len(a.Parents()))
	return a.ID(), nil
}

func (g *Graph) checkProducer(ctx context.Context, in ArtifactInput) error {
	job, err := g.repo.FindJob(ctx, in.ProducingJobID)
	if domain.IsNotFound(err) {
		return domain.Violation(domain.ErrUnknownOutputSlot, "producing job %d does not exist", in.ProducingJobID)
	}
	if err != nil {
		return err
	}
	if job.Status() == domain.JobError {
		return domain.Violation(domain.ErrFailedJobOutput, "job %d", job.ID())
	}
	cmd, err := g.catalog.LookupCommandByID(job.CommandID())
	if err != nil {
		return err
	}
	out, ok := cmd.Output(in.OutputSlot)
	if !ok {
		return domain.Violation(domain.ErrUnknownOutputSlot, "%q has no output %q", cmd.Name(), in.OutputSlot)
	}
	if out.ArtifactType() != in.Type {
		return domain.Violation(domain.ErrTypeMismatch, "output %q of %q yields %q, not %q", in.OutputSlot, cmd.Name(), out.ArtifactType(), in.Type)
	}
	return nil
}

// CreateProcessingJob validates the binding against cmd and inserts a job.
// An Error job must reference an existing log entry.
func (g *Graph) CreateProcessingJob(ctx context.Context, cmd *catalog.Command, binding catalog.Binding, status domain.JobStatus, logID int64, createdAt time.Time) (int64, error) {
	if cmd.ID() == 0 {
		return 0, fmt.Errorf("command %q has not been persisted", cmd.Name())
	}
	if !status.IsValid() {
		return 0, domain.Violation(domain.ErrInvalidTransition, "unknown initial status %q", status)
	}
	if err := g.checkBinding(ctx, cmd, binding); err != nil {
		return 0, err
	}
	if err := g.checkLogRef(ctx, status, logID); err != nil {
		return 0, err
	}

	job := domain.NewProcessingJob(cmd.ID(), binding, status, logID, createdAt)
	if err := g.repo.InsertJob(ctx, job); err != nil {
		return 0, err
	}
	g.counts.Jobs++

	log.Debug(log.CatStore, "job created", "id", job.ID(), "command", cmd.Name(), "status", status)
	return job.ID(), nil
}

func (g *Graph) checkBinding(ctx context.Context, cmd *catalog.Command, binding catalog.Binding) error {
	if err := cmd.Validate(binding); err != nil {
		return domain.Violation(domain.ErrInvalidBinding, "%v", err)
	}
	for _, name := range binding.Names() {
		id, ok := binding[name].ArtifactID()
		if !ok {
			continue
		}
		typ, err := g.artifactType(ctx, id)
		if err != nil {
			return err
		}
		p, _ := cmd.Parameter(name)
		if !p.Type().AcceptsArtifactType(typ) {
			return domain.Violation(domain.ErrTypeMismatch, "parameter %q of %q does not accept %q artifact %d", name, cmd.Name(), typ, id)
		}
	}
	return nil
}

func (g *Graph) checkLogRef(ctx context.Context, status domain.JobStatus, logID int64) error {
	if logID == 0 {
		if status == domain.JobError {
			return domain.Violation(domain.ErrMissingLogRef, "")
		}
		return nil
	}
	if _, err := g.repo.FindLog(ctx, logID); err != nil {
		if domain.IsNotFound(err) {
			return domain.Violation(domain.ErrMissingLogRef, "log %d does not exist", logID)
		}
		return err
	}
	return nil
}

// LinkParent adds a parent edge to an existing artifact. It fails with
// ErrCycleDetected when child is already reachable from parent.
func (g *Graph) LinkParent(ctx context.Context, childID, parentID int64) error {
	child, err := g.repo.FindArtifact(ctx, childID)
	if domain.IsNotFound(err) {
		return domain.Violation(domain.ErrUnknownArtifactRef, "artifact %d does not exist", childID)
	}
	if err != nil {
		return err
	}
	if child.IsRoot() {
		return domain.Violation(domain.ErrRootWithParents, "artifact %d", childID)
	}
	if _, err := g.artifactType(ctx, parentID); err != nil {
		return err
	}
	if child.HasParent(parentID) {
		return nil
	}
	if childID == parentID {
		return domain.Violation(domain.ErrCycleDetected, "artifact %d cannot be its own parent", childID)
	}
	cycle, err := g.repo.HasAncestor(ctx, parentID, childID)
	if err != nil {
		return err
	}
	if cycle {
		return domain.Violation(domain.ErrCycleDetected, "artifact %d is an ancestor of %d", childID, parentID)
	}

	if err := g.repo.InsertParentEdge(ctx, childID, parentID); err != nil {
		return err
	}
	g.counts.ParentEdges++
	return nil
}

// MarkJobStatus moves a job along the status state machine. logID may be 0
// when the job already references a log or the target is not Error.
func (g *Graph) MarkJobStatus(ctx context.Context, jobID int64, status domain.JobStatus, logID int64) error {
	job, err := g.repo.FindJob(ctx, jobID)
	if err != nil {
		return err
	}
	if logID != 0 {
		if err := g.checkLogRef(ctx, status, logID); err != nil {
			return err
		}
	}
	if err := job.TransitionTo(status, logID); err != nil {
		return err
	}
	return g.repo.UpdateJobStatus(ctx, job)
}

// RecordLog inserts a log entry. An entry with a LegacyID that was already
// imported is reused instead of duplicated.
func (g *Graph) RecordLog(ctx context.Context, entry *domain.LogEntry) (int64, error) {
	if entry.LegacyID != 0 {
		existing, err := g.repo.FindLogByLegacyID(ctx, entry.LegacyID)
		if err == nil {
			return existing.ID, nil
		}
		if !domain.IsNotFound(err) {
			return 0, err
		}
	}
	if err := g.repo.InsertLog(ctx, entry); err != nil {
		return 0, err
	}
	g.counts.Logs++
	return entry.ID, nil
}

// ImportFile saves a file reference and sets its ID.
func (g *Graph) ImportFile(ctx context.Context, f *domain.FileRef) error {
	before := f.ID
	if err := g.repo.SaveFile(ctx, f); err != nil {
		return err
	}
	if before == 0 {
		g.counts.Files++
	}
	return nil
}

// LinkAnalysis associates a root artifact with a legacy analysis.
func (g *Graph) LinkAnalysis(ctx context.Context, analysisID, artifactID int64) error {
	a, err := g.repo.FindArtifact(ctx, artifactID)
	if err != nil {
		if domain.IsNotFound(err) {
			return domain.Violation(domain.ErrUnknownArtifactRef, "artifact %d does not exist", artifactID)
		}
		return err
	}
	if !a.IsRoot() {
		return domain.Violation(domain.ErrRootWithParents, "only root artifacts seed an analysis, %d is derived", artifactID)
	}
	if err := g.repo.LinkAnalysis(ctx, analysisID, artifactID); err != nil {
		return err
	}
	g.counts.AnalysisLinks++
	return nil
}

// AnalysisMigrated reports whether the analysis already has root artifacts.
func (g *Graph) AnalysisMigrated(ctx context.Context, analysisID int64) (bool, error) {
	return g.repo.AnalysisLinked(ctx, analysisID)
}

// IsConstraintViolation reports whether err breaks a graph invariant.
func IsConstraintViolation(err error) bool {
	var cv *domain.ConstraintViolation
	return errors.As(err, &cv)
}

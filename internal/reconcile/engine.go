// Package reconcile migrates the legacy job and analysis records into the
// typed provenance graph.
//
// Every analysis is migrated in its own unit of work:
//
//  1. the pre-filter drops jobs with empty options and orphan jobs (once, globally)
//  2. each root table of the analysis becomes a root artifact
//  3. each root artifact is rarefied by a synthesized Single Rarefaction job
//  4. legacy jobs that read the root table are transferred onto the rarefied artifact
//  5. the root artifacts are linked to the analysis
//
// An analysis that already has linked root artifacts is skipped, which makes
// a run idempotent and a cancelled run resumable.
package reconcile

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	catalog "github.com/zjrosen/lineage/internal/catalog/domain"
	"github.com/zjrosen/lineage/internal/filestore"
	"github.com/zjrosen/lineage/internal/legacy"
	"github.com/zjrosen/lineage/internal/log"
	"github.com/zjrosen/lineage/internal/provenance/application"
	"github.com/zjrosen/lineage/internal/provenance/domain"
	"github.com/zjrosen/lineage/internal/pubsub"
	"github.com/zjrosen/lineage/internal/runs"
	"github.com/zjrosen/lineage/internal/tracing"
)

// Progress is the payload of the events an Engine publishes.
type Progress struct {
	RunID      string
	AnalysisID int64
	JobID      int64
	Done       int
	Total      int
	Reason     string
}

// Options control a single run.
type Options struct {
	DryRun bool
}

// Engine runs migrations. It is safe to call Run again after a run finished.
type Engine struct {
	catalog *catalog.Registry
	store   domain.UnitOfWork
	source  legacy.Source
	files   filestore.Collaborator
	runs    runs.Repository
	policy  Policy
	tracer  trace.Tracer
	events  pubsub.Publisher[Progress]
	now     func() time.Time

	rarefaction resolved
	targets     map[int]resolved
}

// Option configures an Engine.
type Option func(*Engine)

// WithPolicy replaces DefaultPolicy.
func WithPolicy(p Policy) Option {
	return func(e *Engine) { e.policy = p }
}

// WithFiles sets the collaborator that detaches orphan result files. Without
// one, orphan files are reported but left attached.
func WithFiles(files filestore.Collaborator) Option {
	return func(e *Engine) { e.files = files }
}

// WithRuns records every run in repo.
func WithRuns(repo runs.Repository) Option {
	return func(e *Engine) { e.runs = repo }
}

// WithTracer sets the tracer for run, analysis and job spans.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// WithEvents publishes progress events to p.
func WithEvents(p pubsub.Publisher[Progress]) Option {
	return func(e *Engine) { e.events = p }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an engine. It fails with a catalog.RegistryValidationError when
// reg lacks a command or type the migration writes, before any data is read.
func New(reg *catalog.Registry, store domain.UnitOfWork, source legacy.Source, opts ...Option) (*Engine, error) {
	e := &Engine{
		catalog: reg,
		store:   store,
		source:  source,
		policy:  DefaultPolicy(),
		tracer:  noop.NewTracerProvider().Tracer("noop"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.policy.Workers < 1 {
		e.policy.Workers = 1
	}

	rare, targets, err := resolvePolicy(reg, e.policy)
	if err != nil {
		return nil, err
	}
	e.rarefaction = rare
	e.targets = targets
	return e, nil
}

func (e *Engine) publish(t pubsub.EventType, p Progress) {
	if e.events != nil {
		e.events.Publish(t, p)
	}
}

// Run migrates every analysis. The returned error is a hard failure (the
// legacy source could not be read, or the run could not be recorded); skips
// and failed analyses are only reported.
func (e *Engine) Run(ctx context.Context, opts Options) (*Report, error) {
	report := newReport(uuid.NewString(), opts.DryRun, e.now())
	report.Placeholder = Placeholder{
		Command:   RarefactionCommand,
		Parameter: depthParameter,
		Value:     e.policy.RarefactionDepth,
		Notice:    "the legacy platform did not record rarefaction depths; correct this value from auxiliary data",
	}

	ctx, span := tracing.StartRun(ctx, e.tracer, report.RunID, opts.DryRun)
	err := e.run(ctx, opts, report)
	if err != nil {
		report.Error = err.Error()
	}
	report.finish(e.now())
	span.SetAttributes(attribute.String(tracing.AttrOutcome, string(report.Outcome)))
	tracing.End(span, err)

	if saveErr := e.record(ctx, report); saveErr != nil && err == nil {
		err = saveErr
	}
	e.publish(pubsub.RunFinished, Progress{RunID: report.RunID, Reason: string(report.Outcome)})
	log.Info(log.CatReconcile, "migration run finished",
		"run", report.RunID, "dry_run", opts.DryRun, "outcome", report.Outcome,
		"migrated", len(report.Migrated), "skips", len(report.Skips), "failures", len(report.Failures))
	return report, err
}

func (e *Engine) run(ctx context.Context, opts Options, report *Report) error {
	jobs, err := e.source.ListJobs(ctx)
	if err != nil {
		return fmt.Errorf("reading legacy jobs: %w", err)
	}
	kept, orphanFiles := e.prefilter(ctx, jobs, report)

	analyses, err := e.source.ListAnalyses(ctx)
	if err != nil {
		return fmt.Errorf("reading legacy analyses: %w", err)
	}
	report.Analyses = len(analyses)
	e.publish(pubsub.RunStarted, Progress{RunID: report.RunID, Total: len(analyses)})

	results := make([]analysisResult, len(analyses))
	if e.policy.Workers == 1 {
		for i, a := range analyses {
			results[i] = e.migrateAnalysis(ctx, opts, a, kept)
			e.progress(report.RunID, results[i], i+1, len(analyses))
		}
	} else {
		p := pool.New().WithMaxGoroutines(e.policy.Workers)
		for i, a := range analyses {
			p.Go(func() {
				results[i] = e.migrateAnalysis(ctx, opts, a, kept)
			})
		}
		p.Wait()
		for i, res := range results {
			e.progress(report.RunID, res, i+1, len(analyses))
		}
	}
	for _, res := range results {
		report.add(res)
	}

	return e.detachOrphans(ctx, opts, orphanFiles, report)
}

func (e *Engine) progress(runID string, res analysisResult, done, total int) {
	p := Progress{RunID: runID, AnalysisID: res.analysisID, Done: done, Total: total}
	switch {
	case res.failure != nil:
		p.Reason = res.failure.Reason
		e.publish(pubsub.AnalysisFailed, p)
	case res.already:
		p.Reason = errAlreadyMigrated.Error()
		e.publish(pubsub.AnalysisSkipped, p)
	case !res.migrated:
		// Nothing was written, e.g. an analysis without a root table.
		reasons := make([]string, 0, len(res.skips))
		for _, s := range res.skips {
			reasons = append(reasons, s.Reason)
		}
		p.Reason = strings.Join(reasons, "; ")
		e.publish(pubsub.AnalysisSkipped, p)
	default:
		for _, s := range res.skips {
			e.publish(pubsub.JobSkipped, Progress{RunID: runID, AnalysisID: s.AnalysisID, JobID: s.JobID, Reason: s.Reason})
		}
		e.publish(pubsub.AnalysisMigrated, p)
	}
}

// prefilter drops jobs with empty options and jobs linked to no analysis.
// It returns the surviving jobs by id and the result files of orphans.
func (e *Engine) prefilter(ctx context.Context, jobs []legacy.Job, report *Report) (map[int64]legacy.Job, []legacy.File) {
	span := trace.SpanFromContext(ctx)
	kept := make(map[int64]legacy.Job, len(jobs))
	var orphanFiles []legacy.File
	for _, j := range jobs {
		switch {
		case j.Options.Empty():
			report.Pruned = append(report.Pruned, Pruned{JobID: j.ID, Reason: PrunedEmptyOptions})
		case j.Orphan():
			report.Pruned = append(report.Pruned, Pruned{JobID: j.ID, Reason: PrunedOrphan})
			orphanFiles = append(orphanFiles, j.ResultFiles...)
		default:
			kept[j.ID] = j
			continue
		}
		span.AddEvent(tracing.EventPruned, trace.WithAttributes(attribute.Int64(tracing.AttrLegacyJob, j.ID)))
	}
	log.Info(log.CatReconcile, "pre-filter done", "jobs", len(jobs), "kept", len(kept), "pruned", len(report.Pruned))
	return kept, orphanFiles
}

// rootPlan is one root table of an analysis and the legacy jobs that read it.
type rootPlan struct {
	file legacy.File
	jobs []legacy.Job
}

// plan assigns the kept jobs of analysis a to its root tables before the unit
// of work starts, so a retried unit of work plans nothing again.
func (e *Engine) plan(a legacy.Analysis, kept map[int64]legacy.Job) ([]rootPlan, []Skip) {
	var roots []rootPlan
	for _, f := range a.RootFiles {
		if f.Role == e.policy.RootFileRole {
			roots = append(roots, rootPlan{file: f})
		}
	}
	if len(roots) == 0 {
		return nil, []Skip{{AnalysisID: a.ID, Kind: ErrNoRootTable.Error(), Reason: fmt.Sprintf("no %q file", e.policy.RootFileRole)}}
	}

	// Jobs are matched against the snapshot read at the start of the run.
	var mine []legacy.Job
	for _, id := range sortedIDs(kept) {
		if j := kept[id]; slices.Contains(j.AnalysisIDs, a.ID) {
			mine = append(mine, j)
		}
	}
	claimed := make(map[int64]bool)
	for i := range roots {
		for _, j := range mine {
			if !claimed[j.ID] && j.Options.ReferencesFile(roots[i].file.Path) {
				roots[i].jobs = append(roots[i].jobs, j)
				claimed[j.ID] = true
			}
		}
	}

	// Jobs of the analysis whose options name no source file can only have
	// read its table when there is exactly one.
	var skips []Skip
	for _, j := range mine {
		id := j.ID
		if claimed[id] {
			continue
		}
		bag, err := j.Options.Bag()
		_, named := bag.SourceFile()
		if err == nil && !named && len(roots) == 1 {
			roots[0].jobs = append(roots[0].jobs, j)
			continue
		}
		reason := ErrUnmatchedSource.Error()
		kind := ErrUnmatchedSource.Error()
		if err != nil {
			kind, reason = ErrUnparseableOptions.Error(), err.Error()
		}
		skips = append(skips, Skip{AnalysisID: a.ID, JobID: id, Kind: kind, Reason: reason})
	}
	for i := range roots {
		slices.SortFunc(roots[i].jobs, func(x, y legacy.Job) int { return cmp.Compare(x.ID, y.ID) })
	}
	return roots, skips
}

func sortedIDs(jobs map[int64]legacy.Job) []int64 {
	ids := make([]int64, 0, len(jobs))
	for id := range jobs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// migrateAnalysis runs the unit of work for one analysis, retrying once on a
// storage failure.
func (e *Engine) migrateAnalysis(ctx context.Context, opts Options, a legacy.Analysis, kept map[int64]legacy.Job) analysisResult {
	ctx, span := tracing.StartAnalysis(ctx, e.tracer, a.ID)
	res := analysisResult{analysisID: a.ID}
	e.publish(pubsub.AnalysisStarted, Progress{AnalysisID: a.ID})

	roots, planSkips := e.plan(a, kept)
	if len(roots) == 0 {
		res.skips = planSkips
		log.Warn(log.CatReconcile, "analysis has no root table", "analysis", a.ID)
		tracing.End(span, nil)
		return res
	}

	unit := e.store.WithinTx
	if opts.DryRun {
		unit = e.store.Rehearse
	}

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		if attempt > 1 {
			span.AddEvent(tracing.EventRetry)
			log.Warn(log.CatReconcile, "retrying analysis", "analysis", a.ID, "attempt", attempt)
		}
		var out analysisResult
		err := unit(ctx, func(repo domain.Repository) error {
			var err error
			out, err = e.apply(ctx, application.NewGraph(e.catalog, repo), a, roots)
			return err
		})
		switch {
		case err == nil:
			res.migrated = true
			res.counts, res.rarefied, res.skips = out.counts, out.rarefied, out.skips
			return struct{}{}, nil
		case errors.Is(err, errAlreadyMigrated), application.IsConstraintViolation(err):
			return struct{}{}, backoff.Permanent(err)
		case ctx.Err() != nil:
			return struct{}{}, backoff.Permanent(err)
		default:
			return struct{}{}, err
		}
	}, backoff.WithBackOff(backoff.NewConstantBackOff(e.policy.RetryBackoff)), backoff.WithMaxTries(2))

	switch {
	case err == nil:
		res.skips = append(planSkips, res.skips...)
		log.Info(log.CatReconcile, "analysis migrated", "analysis", a.ID, "roots", len(roots), "skips", len(res.skips), "dry_run", opts.DryRun)
	case errors.Is(err, errAlreadyMigrated):
		res.already = true
		err = nil
		log.Debug(log.CatReconcile, "analysis already migrated", "analysis", a.ID)
	case application.IsConstraintViolation(err):
		res.failure = &Failure{AnalysisID: a.ID, Kind: FailureConstraint, Reason: err.Error()}
		log.ErrorErr(log.CatReconcile, "analysis rolled back", err, "analysis", a.ID)
	default:
		serr := &StorageError{AnalysisID: a.ID, Err: err}
		res.failure = &Failure{AnalysisID: a.ID, Kind: FailureStorage, Reason: serr.Error()}
		log.ErrorErr(log.CatReconcile, "analysis could not be stored", err, "analysis", a.ID, "attempts", attempt)
	}
	tracing.End(span, err)
	return res
}

// apply performs steps 2 to 5 for one analysis inside a unit of work.
func (e *Engine) apply(ctx context.Context, g *application.Graph, a legacy.Analysis, roots []rootPlan) (analysisResult, error) {
	var out analysisResult
	migrated, err := g.AnalysisMigrated(ctx, a.ID)
	if err != nil {
		return out, err
	}
	if migrated {
		return out, errAlreadyMigrated
	}

	rootIDs := make([]int64, 0, len(roots))
	for _, root := range roots {
		rootID, err := e.createRoot(ctx, g, a, root.file)
		if err != nil {
			return out, err
		}
		rootIDs = append(rootIDs, rootID)

		rarefiedID, err := e.rarefy(ctx, g, a, rootID)
		if err != nil {
			return out, err
		}
		out.rarefied++

		for _, j := range root.jobs {
			skip, err := e.transferJob(ctx, g, a, j, rarefiedID)
			if err != nil {
				return out, err
			}
			if skip != nil {
				out.skips = append(out.skips, *skip)
			}
		}
	}

	for _, id := range rootIDs {
		if err := g.LinkAnalysis(ctx, a.ID, id); err != nil {
			return out, err
		}
	}
	out.counts = g.Counts()
	return out, nil
}

func toFileRef(f legacy.File) *domain.FileRef {
	return &domain.FileRef{LegacyID: f.ID, Path: f.Path, Role: catalog.FileRole(f.Role), Checksum: f.Checksum}
}

func (e *Engine) importFiles(ctx context.Context, g *application.Graph, files []legacy.File) ([]domain.FileRef, error) {
	refs := make([]domain.FileRef, 0, len(files))
	for _, f := range files {
		ref := toFileRef(f)
		if ref.Checksum == "" && e.files != nil {
			// Legacy rows without a checksum get one computed from the payload
			// when it is reachable; a missing payload leaves it empty.
			sum, err := e.files.Checksum(f.Path)
			if err != nil {
				log.Warn(log.CatFiles, "cannot checksum legacy file", "file", f.ID, "path", f.Path, "error", err.Error())
			}
			ref.Checksum = sum
		}
		if err := g.ImportFile(ctx, ref); err != nil {
			return nil, fmt.Errorf("importing file %d: %w", f.ID, err)
		}
		refs = append(refs, *ref)
	}
	return refs, nil
}

// createRoot synthesizes the root artifact of one analysis table.
func (e *Engine) createRoot(ctx context.Context, g *application.Graph, a legacy.Analysis, f legacy.File) (int64, error) {
	refs, err := e.importFiles(ctx, g, []legacy.File{f})
	if err != nil {
		return 0, err
	}
	return g.CreateArtifact(ctx, application.ArtifactInput{
		Type:       RootArtifactType,
		Visibility: domain.VisibilitySandbox,
		Files:      refs,
		CreatedAt:  a.Timestamp,
	})
}

// rarefy records the rarefaction every legacy analysis applied to its root
// table before anything else, and returns the rarefied artifact.
func (e *Engine) rarefy(ctx context.Context, g *application.Graph, a legacy.Analysis, rootID int64) (int64, error) {
	cmd := e.rarefaction.command
	binding, err := cmd.Bind(map[string]catalog.Value{
		tableParameter: catalog.ArtifactValue(rootID),
		depthParameter: catalog.IntegerValue(e.policy.RarefactionDepth),
	})
	if err != nil {
		return 0, domain.Violation(domain.ErrInvalidBinding, "%s: %v", cmd.Name(), err)
	}
	jobID, err := g.CreateProcessingJob(ctx, cmd, binding, domain.JobSuccess, 0, a.Timestamp)
	if err != nil {
		return 0, err
	}
	return g.CreateArtifact(ctx, application.ArtifactInput{
		Type:           e.rarefaction.output.ArtifactType(),
		ProducingJobID: jobID,
		OutputSlot:     e.rarefaction.output.Name(),
		Parents:        []int64{rootID},
		Visibility:     domain.VisibilitySandbox,
		CreatedAt:      a.Timestamp,
	})
}

// transferJob moves one legacy job onto the rarefied artifact. A malformed
// job is returned as a skip and writes nothing.
func (e *Engine) transferJob(ctx context.Context, g *application.Graph, a legacy.Analysis, j legacy.Job, rarefiedID int64) (*Skip, error) {
	target, ok := e.targets[j.CommandCode]
	if !ok {
		return e.skip(ctx, a.ID, recordError(j.ID, ErrUnmappedCommand, "code %d", j.CommandCode)), nil
	}

	ctx, span := tracing.StartJob(ctx, e.tracer, j.ID, target.command.Name())
	binding, err := convertOptions(j, target.command, rarefiedID)
	if err != nil {
		var rec *LegacyRecordError
		if errors.As(err, &rec) {
			tracing.End(span, nil)
			return e.skip(ctx, a.ID, rec), nil
		}
		tracing.End(span, err)
		return nil, err
	}

	if !j.HasResult() {
		err = e.transferFailedJob(ctx, g, a, j, target, binding)
		span.SetAttributes(attribute.String(tracing.AttrJobStatus, string(domain.JobError)))
		tracing.End(span, err)
		return nil, err
	}

	err = func() error {
		refs, err := e.importFiles(ctx, g, j.ResultFiles)
		if err != nil {
			return err
		}
		jobID, err := g.CreateProcessingJob(ctx, target.command, binding, domain.JobSuccess, 0, a.Timestamp)
		if err != nil {
			return err
		}
		_, err = g.CreateArtifact(ctx, application.ArtifactInput{
			Type:           target.output.ArtifactType(),
			ProducingJobID: jobID,
			OutputSlot:     target.output.Name(),
			Parents:        []int64{rarefiedID},
			Visibility:     domain.VisibilitySandbox,
			Files:          refs,
			CreatedAt:      a.Timestamp,
		})
		return err
	}()
	span.SetAttributes(attribute.String(tracing.AttrJobStatus, string(domain.JobSuccess)))
	tracing.End(span, err)
	return nil, err
}

// transferFailedJob records a legacy job without results as an Error job,
// reusing its log entry or synthesizing a generic one.
func (e *Engine) transferFailedJob(ctx context.Context, g *application.Graph, a legacy.Analysis, j legacy.Job, target resolved, binding catalog.Binding) error {
	entry := &domain.LogEntry{Time: a.Timestamp, Msg: GenericErrorMessage}
	if j.Log != nil {
		entry = &domain.LogEntry{LegacyID: j.Log.ID, Time: j.Log.Time, Msg: j.Log.Msg}
	}
	logID, err := g.RecordLog(ctx, entry)
	if err != nil {
		return err
	}
	_, err = g.CreateProcessingJob(ctx, target.command, binding, domain.JobError, logID, a.Timestamp)
	return err
}

func (e *Engine) skip(ctx context.Context, analysisID int64, rec *LegacyRecordError) *Skip {
	trace.SpanFromContext(ctx).AddEvent(tracing.EventJobSkipped, trace.WithAttributes(attribute.Int64(tracing.AttrLegacyJob, rec.JobID)))
	log.Warn(log.CatReconcile, "legacy job skipped", "analysis", analysisID, "job", rec.JobID, "reason", rec.Error())
	return &Skip{AnalysisID: analysisID, JobID: rec.JobID, Kind: rec.Kind.Error(), Reason: rec.Error()}
}

// detachOrphans imports the result files of orphan jobs and detaches them,
// leaving the purge to the file-storage collaborator. A dry run only lists
// them.
func (e *Engine) detachOrphans(ctx context.Context, opts Options, files []legacy.File, report *Report) error {
	if len(files) == 0 {
		return nil
	}
	if opts.DryRun || e.files == nil {
		for _, f := range files {
			report.DetachedFiles = append(report.DetachedFiles, f.ID)
		}
		return nil
	}

	ctx, span := e.tracer.Start(ctx, tracing.SpanDetach, trace.WithAttributes(attribute.String(tracing.AttrRunID, report.RunID)))
	var refs []domain.FileRef
	err := e.store.WithinTx(ctx, func(repo domain.Repository) error {
		g := application.NewGraph(e.catalog, repo)
		var err error
		refs, err = e.importFiles(ctx, g, files)
		return err
	})
	if err == nil {
		for _, ref := range refs {
			if err = e.files.DetachFile(ctx, ref.ID); err != nil {
				break
			}
			report.DetachedFiles = append(report.DetachedFiles, ref.LegacyID)
		}
	}
	tracing.End(span, err)
	if err != nil {
		report.Failures = append(report.Failures, Failure{Kind: FailureStorage, Reason: "detaching orphan files: " + err.Error()})
		log.ErrorErr(log.CatFiles, "detaching orphan files failed", err, "files", len(files))
		return nil
	}
	e.publish(pubsub.FilesDetached, Progress{RunID: report.RunID, Done: len(refs)})
	log.Info(log.CatFiles, "orphan result files detached", "files", len(refs))
	return nil
}

// record persists the run for the cleanup gate.
func (e *Engine) record(ctx context.Context, report *Report) error {
	if e.runs == nil {
		return nil
	}
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	run := &runs.Run{
		RunID:      report.RunID,
		DryRun:     report.DryRun,
		Outcome:    report.Outcome,
		StartedAt:  report.StartedAt,
		FinishedAt: report.FinishedAt,
		Report:     data,
	}
	if err := e.runs.Save(ctx, run); err != nil {
		return fmt.Errorf("recording run %s: %w", report.RunID, err)
	}
	return nil
}

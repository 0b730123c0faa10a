package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys.
const (
	AttrRunID      = "migration.run_id"
	AttrDryRun     = "migration.dry_run"
	AttrOutcome    = "migration.outcome"
	AttrAnalysisID = "legacy.analysis_id"
	AttrLegacyJob  = "legacy.job_id"
	AttrCommand    = "catalog.command"
	AttrJobStatus  = "provenance.job_status"
	AttrArtifacts  = "provenance.artifacts"
	AttrErrorType  = "error.type"
)

// Span names.
const (
	SpanRun      = "migration.run"
	SpanAnalysis = "migration.analysis"
	SpanJob      = "migration.job"
	SpanDetach   = "migration.detach_orphans"
	SpanCleanup  = "migration.cleanup"
)

// Event names.
const (
	EventRetry      = "unit_of_work.retry"
	EventJobSkipped = "legacy_job.skipped"
	EventPruned     = "legacy_job.pruned"
)

type runIDKey struct{}

// RunID returns the id of the migration run ctx belongs to, if any.
func RunID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(runIDKey{}).(string)
	return id, ok
}

// StartRun opens the root span of a migration run. The spans started below it
// carry the run id as well.
func StartRun(ctx context.Context, tracer trace.Tracer, runID string, dryRun bool) (context.Context, trace.Span) {
	ctx = context.WithValue(ctx, runIDKey{}, runID)
	return tracer.Start(ctx, SpanRun, trace.WithAttributes(
		attribute.String(AttrRunID, runID),
		attribute.Bool(AttrDryRun, dryRun),
	))
}

// StartAnalysis opens a span for one analysis unit of work.
func StartAnalysis(ctx context.Context, tracer trace.Tracer, analysisID int64) (context.Context, trace.Span) {
	return tracer.Start(ctx, SpanAnalysis, trace.WithAttributes(
		withRunID(ctx, attribute.Int64(AttrAnalysisID, analysisID))...,
	))
}

// StartJob opens a span for the transfer of one legacy job.
func StartJob(ctx context.Context, tracer trace.Tracer, legacyJobID int64, command string) (context.Context, trace.Span) {
	return tracer.Start(ctx, SpanJob, trace.WithAttributes(
		withRunID(ctx, attribute.Int64(AttrLegacyJob, legacyJobID), attribute.String(AttrCommand, command))...,
	))
}

func withRunID(ctx context.Context, attrs ...attribute.KeyValue) []attribute.KeyValue {
	if id, ok := RunID(ctx); ok {
		attrs = append(attrs, attribute.String(AttrRunID, id))
	}
	return attrs
}

// End closes span, marking it failed when err is not nil.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

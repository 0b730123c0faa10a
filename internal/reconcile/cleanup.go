package reconcile

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/lineage/internal/legacy"
	"github.com/zjrosen/lineage/internal/log"
	"github.com/zjrosen/lineage/internal/runs"
	"github.com/zjrosen/lineage/internal/tracing"
)

// CleanupOptions select the run that authorizes the cleanup.
type CleanupOptions struct {
	// RunID is the authorizing run. Empty means the latest non-dry run.
	RunID string

	// AcceptPartial accepts a partial run and records the acknowledgement.
	AcceptPartial bool

	Now    func() time.Time
	Tracer trace.Tracer
}

// Cleanup drops the legacy job tables once a committed run allows it. It
// returns a *runs.NotEligibleError and drops nothing when the run does not.
func Cleanup(ctx context.Context, repo runs.Repository, dropper legacy.Dropper, opts CleanupOptions) (*runs.Run, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Tracer != nil {
		var span trace.Span
		ctx, span = opts.Tracer.Start(ctx, tracing.SpanCleanup, trace.WithAttributes(attribute.String(tracing.AttrRunID, opts.RunID)))
		defer span.End()
	}

	var (
		run *runs.Run
		err error
	)
	if opts.RunID == "" {
		run, err = repo.Latest(ctx)
	} else {
		run, err = repo.FindByRunID(ctx, opts.RunID)
	}
	if err != nil {
		return nil, fmt.Errorf("finding authorizing run: %w", err)
	}

	if err := runs.CheckCleanupEligible(run, opts.AcceptPartial); err != nil {
		log.Warn(log.CatReconcile, "cleanup refused", "run", run.RunID, "outcome", run.Outcome, "reason", err.Error())
		return run, err
	}

	history, err := repo.List(ctx, 0)
	if err != nil {
		return run, fmt.Errorf("listing migration runs: %w", err)
	}
	accepted, err := runs.CheckCleanupHistory(history, opts.AcceptPartial)
	if err != nil {
		log.Warn(log.CatReconcile, "cleanup refused", "run", run.RunID, "reason", err.Error())
		return run, err
	}

	now := opts.Now()
	for _, r := range accepted {
		if err := repo.Acknowledge(ctx, r.RunID, now); err != nil {
			return run, fmt.Errorf("acknowledging run %s: %w", r.RunID, err)
		}
		if r.RunID == run.RunID {
			run.AcknowledgedAt = &now
		}
		log.Info(log.CatReconcile, "run acknowledged", "run", r.RunID, "outcome", r.Outcome)
	}

	if err := dropper.DropLegacyTables(ctx); err != nil {
		return run, fmt.Errorf("dropping legacy tables: %w", err)
	}

	now = opts.Now()
	if err := repo.MarkCleaned(ctx, run.RunID, now); err != nil {
		return run, fmt.Errorf("marking run %s cleaned: %w", run.RunID, err)
	}
	run.CleanedAt = &now
	log.Info(log.CatReconcile, "legacy tables dropped", "run", run.RunID, "tables", len(legacy.DroppedTables))
	return run, nil
}

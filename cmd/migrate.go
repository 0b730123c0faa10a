package cmd

import (
	"context"
	"fmt"
	"sync"

	"github.com/spf13/cobra"

	"github.com/zjrosen/lineage/internal/presentation"
	"github.com/zjrosen/lineage/internal/printer"
	"github.com/zjrosen/lineage/internal/pubsub"
	"github.com/zjrosen/lineage/internal/reconcile"
)

var (
	migrateDryRun bool
	migrateJSON   bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Migrate legacy analyses and jobs into the provenance store",
	Long: `Migrate every legacy analysis into the typed provenance graph.

Each analysis is migrated in its own transaction: its root tables become root
artifacts, each root is rarefied by a synthesized Single Rarefaction job, and
the legacy jobs that read the table are re-attached to the rarefied artifact.
Analyses migrated by an earlier run are skipped, so the command can be re-run
after an interruption.

With --dry-run every analysis is rolled back. Two writes still happen: the
artifact type and command catalog is synced into the store, and the run is
added to the run history, where it is never eligible for cleanup.

Exit status is 0 when everything migrated, 2 when jobs were skipped or
analyses failed (see the report), and 1 on any other error.

Examples:
  # Show what would be inserted without committing any analysis
  lineage migrate --dry-run

  # Migrate and print the full report as JSON
  lineage migrate --json | jq '.skips'`,
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateDryRun, "dry-run", false, "roll back every analysis and report the planned inserts")
	migrateCmd.Flags().BoolVar(&migrateJSON, "json", false, "print the report as JSON")
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	store, reg, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	source, err := openLegacy()
	if err != nil {
		return err
	}
	defer func() { _ = source.Close() }()

	tp, err := newTracing()
	if err != nil {
		return err
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()

	broker := pubsub.NewBrokerWithBuffer[reconcile.Progress](256)
	defer broker.Close()

	engine, err := reconcile.New(reg, store, source,
		reconcile.WithPolicy(cfg.Migration.Policy()),
		reconcile.WithFiles(store.FileStore(cfg.Files.BaseDir)),
		reconcile.WithRuns(store.RunRepository()),
		reconcile.WithTracer(tp.Tracer()),
		reconcile.WithEvents(broker),
	)
	if err != nil {
		return printer.Error("Catalog does not support the migration", err.Error(),
			[]string{"Check catalog.path", "Remove catalog.path to use the built-in catalog"})
	}

	var wg sync.WaitGroup
	if !migrateJSON {
		events := broker.Subscribe(ctx)
		wg.Add(1)
		go func() {
			defer wg.Done()
			pubsub.Listen(ctx, events, printProgress)
		}()
	}

	report, err := engine.Run(ctx, reconcile.Options{DryRun: migrateDryRun})
	// Closing the broker lets the listener drain what is buffered and return.
	broker.Close()
	wg.Wait()
	if n := broker.Dropped(); n > 0 {
		printer.Warning("%d progress events were not shown\n", n)
	}
	if err != nil {
		return printer.ErrorWithContext("Migration failed", err.Error(),
			map[string]string{"run": report.RunID}, nil)
	}

	if migrateJSON {
		if err := presentation.NewFormatter(cmd.OutOrStdout()).FormatResult(report); err != nil {
			return err
		}
	} else {
		printReport(report)
	}

	if len(report.Skips) > 0 || len(report.Failures) > 0 {
		return fmt.Errorf("run %s: %w", report.RunID, errPartial)
	}
	return nil
}

func printProgress(e pubsub.Event[reconcile.Progress]) {
	p := e.Payload
	switch e.Type {
	case pubsub.RunStarted:
		printer.Step("migrating %d analyses (run %s)\n", p.Total, p.RunID)
	case pubsub.AnalysisMigrated:
		printer.Step("[%d/%d] analysis %d migrated\n", p.Done, p.Total, p.AnalysisID)
	case pubsub.AnalysisSkipped:
		printer.Step("[%d/%d] analysis %d skipped: %s\n", p.Done, p.Total, p.AnalysisID, p.Reason)
	case pubsub.AnalysisFailed:
		printer.Warning("[%d/%d] analysis %d rolled back: %s\n", p.Done, p.Total, p.AnalysisID, p.Reason)
	case pubsub.JobSkipped:
		printer.Warning("legacy job %d of analysis %d skipped: %s\n", p.JobID, p.AnalysisID, p.Reason)
	case pubsub.FilesDetached:
		printer.Step("%d orphan result files detached\n", p.Done)
	}
}

func printReport(r *reconcile.Report) {
	verb := "inserted"
	if r.DryRun {
		verb = "would insert"
		printer.Warning("dry run: no analysis was committed\n")
	}
	printer.Info("\n%s %d artifacts, %d jobs, %d logs, %d files\n",
		verb, r.Inserts.Artifacts, r.Inserts.Jobs, r.Inserts.Logs, r.Inserts.Files)
	printer.Info("analyses: %d migrated, %d already migrated, %d failed\n",
		len(r.Migrated), len(r.AlreadyMigrated), len(r.Failures))
	printer.Info("legacy jobs: %d pruned, %d skipped\n", len(r.Pruned), len(r.Skips))
	for _, s := range r.Skips {
		printer.Warning("  analysis %d job %d: %s\n", s.AnalysisID, s.JobID, s.Reason)
	}
	for _, f := range r.Failures {
		printer.Warning("  analysis %d: %s\n", f.AnalysisID, f.Reason)
	}
	if r.Placeholder.Jobs > 0 {
		printer.Warning("%d %s jobs use %s=%d: %s\n",
			r.Placeholder.Jobs, r.Placeholder.Command, r.Placeholder.Parameter, r.Placeholder.Value, r.Placeholder.Notice)
	}

	switch {
	case r.DryRun:
	case len(r.Skips) == 0 && len(r.Failures) == 0:
		printer.Success("run %s succeeded; 'lineage cleanup' may now drop the legacy tables\n", r.RunID)
	default:
		printer.Warning("run %s is partial; review it, then 'lineage cleanup --accept-partial'\n", r.RunID)
	}
}

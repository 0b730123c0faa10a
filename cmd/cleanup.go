package cmd

import (
	"context"
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zjrosen/lineage/internal/legacy"
	"github.com/zjrosen/lineage/internal/printer"
	"github.com/zjrosen/lineage/internal/reconcile"
	"github.com/zjrosen/lineage/internal/runs"
)

var (
	cleanupRunID         string
	cleanupAcceptPartial bool
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Drop the legacy job tables after a successful migration",
	Long: `Drop the legacy job tables once a committed migration run allows it.

This cannot be undone. The authorizing run (the latest committed run unless
--run is given) must have succeeded. A partial run is accepted only with
--accept-partial, which is recorded on the run. Dry runs never qualify.
Every earlier committed run that reported skips or failures must have been
acknowledged too: a re-run does not repeat the skips of analyses that already
migrated. --accept-partial acknowledges all of them.

Dropped tables: ` + strings.Join(legacy.DroppedTables, ", ") + `

Examples:
  lineage cleanup
  lineage cleanup --run 4b0f3c1e-... --accept-partial`,
	RunE: runCleanup,
}

func init() {
	cleanupCmd.Flags().StringVar(&cleanupRunID, "run", "", "authorizing run id (default: latest committed run)")
	cleanupCmd.Flags().BoolVar(&cleanupAcceptPartial, "accept-partial", false, "accept a run that reported skips or failures")
	rootCmd.AddCommand(cleanupCmd)
}

func runCleanup(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	store, _, err := openStore(ctx)
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

	run, err := reconcile.Cleanup(ctx, store.RunRepository(), source, reconcile.CleanupOptions{
		RunID:         cleanupRunID,
		AcceptPartial: cleanupAcceptPartial,
		Tracer:        tp.Tracer(),
	})
	var notEligible *runs.NotEligibleError
	switch {
	case errors.As(err, &notEligible):
		return printer.ErrorWithContext("Cleanup refused", notEligible.Reason,
			map[string]string{"authorizing run": run.RunID, "blocking run": notEligible.RunID},
			[]string{"Run 'lineage migrate' and review the report", "Pass --accept-partial to accept a partial run"})
	case errors.Is(err, runs.ErrRunNotFound):
		return printer.Error("No migration run found", "",
			[]string{"Run 'lineage migrate' first", "Check the id with 'lineage runs:list'"})
	case err != nil:
		return err
	}

	printer.Success("legacy tables dropped (authorized by run %s)\n", run.RunID)
	printer.Info("run 'lineage files:purge' to reclaim files nothing references\n")
	return nil
}

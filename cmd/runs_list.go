package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/zjrosen/lineage/internal/presentation"
)

var (
	runsLimit  int
	runsReport bool
)

var runsListCmd = &cobra.Command{
	Use:   "runs:list",
	Short: "List recorded migration runs",
	Long: `List recorded migration runs as JSON, newest first.

Examples:
  lineage runs:list --limit 5
  lineage runs:list --report | jq '.[0].report.skips'`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		store, _, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		rs, err := store.RunRepository().List(ctx, runsLimit)
		if err != nil {
			return err
		}
		return presentation.NewFormatter(cmd.OutOrStdout()).FormatRuns(presentation.FromRuns(rs, runsReport))
	},
}

func init() {
	runsListCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "maximum number of runs")
	runsListCmd.Flags().BoolVar(&runsReport, "report", false, "include the full report of each run")
	rootCmd.AddCommand(runsListCmd)
}

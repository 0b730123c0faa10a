package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zjrosen/lineage/internal/presentation"
	"github.com/zjrosen/lineage/internal/printer"
	"github.com/zjrosen/lineage/internal/reconcile"
)

var verifyJSON bool

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check every provenance graph invariant over the whole store",
	Long: `Check the committed provenance graph: parent edges are acyclic, artifact
types match their producing output slots, bindings match command signatures,
failed jobs carry a log and produce nothing, and root artifacts have no
parents. Exits 1 when any problem is found.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		store, reg, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		problems, err := reconcile.Verify(ctx, store.Reader(), reg)
		if err != nil {
			return err
		}
		if verifyJSON {
			if problems == nil {
				problems = []reconcile.Problem{}
			}
			if err := presentation.NewFormatter(cmd.OutOrStdout()).FormatResult(problems); err != nil {
				return err
			}
		} else {
			for _, p := range problems {
				printer.Warning("%s\n", p)
			}
		}
		if len(problems) > 0 {
			return fmt.Errorf("%d invariant violations", len(problems))
		}
		if !verifyJSON {
			counts, err := store.Reader().CountRows(ctx)
			if err != nil {
				return err
			}
			printer.Success("%d artifacts and %d jobs verified\n", counts.Artifacts, counts.Jobs)
		}
		return nil
	},
}

func init() {
	verifyCmd.Flags().BoolVar(&verifyJSON, "json", false, "print the problems as JSON")
	rootCmd.AddCommand(verifyCmd)
}

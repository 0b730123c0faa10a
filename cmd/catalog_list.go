package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/zjrosen/lineage/internal/presentation"
)

var catalogSoftware string

var catalogListCmd = &cobra.Command{
	Use:   "catalog:list",
	Short: "List artifact types and command signatures",
	Long: `List the artifact types and command signatures of the catalog as JSON.

The catalog is synced into the store first, so command ids are the persistent
ones jobs refer to.

Examples:
  # List everything
  lineage catalog:list

  # Only the commands of one software package
  lineage catalog:list --software QIIME

  # Parse specific fields with jq
  lineage catalog:list | jq '.commands[].name'`,
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

		return presentation.NewFormatter(cmd.OutOrStdout()).FormatCatalog(presentation.FromRegistry(reg, catalogSoftware))
	},
}

func init() {
	catalogListCmd.Flags().StringVarP(&catalogSoftware, "software", "s", "", "Filter commands by software name (e.g., QIIME)")
	rootCmd.AddCommand(catalogListCmd)
}

package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/zjrosen/lineage/internal/presentation"
	"github.com/zjrosen/lineage/internal/printer"
)

var purgeJSON bool

var filesPurgeCmd = &cobra.Command{
	Use:   "files:purge",
	Short: "Delete files no artifact references",
	Long: `Delete every stored file that no artifact references, both the store row
and the payload under files.base_dir. Payloads already missing on disk are
listed but do not fail the purge.`,
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

		result, err := store.FileStore(cfg.Files.BaseDir).PurgeUnreferencedFiles(ctx)
		if err != nil {
			return err
		}
		if purgeJSON {
			return presentation.NewFormatter(cmd.OutOrStdout()).FormatResult(result)
		}
		for _, p := range result.Missing {
			printer.Warning("already missing: %s\n", p)
		}
		printer.Success("purged %d files (%d bytes)\n", result.Rows, result.BytesFreed)
		return nil
	},
}

func init() {
	filesPurgeCmd.Flags().BoolVar(&purgeJSON, "json", false, "print the purge result as JSON")
	rootCmd.AddCommand(filesPurgeCmd)
}
